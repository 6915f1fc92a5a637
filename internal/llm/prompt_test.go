package llm_test

import (
	"context"
	"errors"
	"testing"

	"github.com/Rrens/chat-gateway/internal/llm"
)

func TestSplitSystem_FirstSystemMessage(t *testing.T) {
	msgs := []llm.Message{
		{Role: llm.RoleSystem, Content: "be brief"},
		{Role: llm.RoleUser, Content: "hi"},
		{Role: llm.RoleSystem, Content: "ignored"},
		{Role: llm.RoleAssistant, Content: "hello"},
	}

	system, turns := llm.SplitSystem(msgs, "")

	if system != "be brief" {
		t.Errorf("expected first system message, got %q", system)
	}
	if len(turns) != 2 {
		t.Fatalf("expected 2 turns, got %d", len(turns))
	}
	for _, m := range turns {
		if m.Role == llm.RoleSystem {
			t.Error("system role must be removed from turns")
		}
	}
}

func TestSplitSystem_ExplicitWins(t *testing.T) {
	msgs := []llm.Message{
		{Role: llm.RoleSystem, Content: "from history"},
		{Role: llm.RoleUser, Content: "hi"},
	}

	system, turns := llm.SplitSystem(msgs, "explicit")

	if system != "explicit" {
		t.Errorf("expected explicit instruction, got %q", system)
	}
	if len(turns) != 1 || turns[0].Content != "hi" {
		t.Errorf("unexpected turns: %+v", turns)
	}
}

func TestSplitSystem_None(t *testing.T) {
	system, turns := llm.SplitSystem([]llm.Message{{Role: llm.RoleUser, Content: "hi"}}, "")
	if system != "" {
		t.Errorf("expected no system instruction, got %q", system)
	}
	if len(turns) != 1 {
		t.Errorf("expected 1 turn, got %d", len(turns))
	}
}

func TestLoadParts_SkipsBrokenAttachments(t *testing.T) {
	atts := []llm.Attachment{
		{MimeType: "image/png", Name: "a.png", Load: func(context.Context) ([]byte, error) { return []byte("A"), nil }},
		{MimeType: "image/png", Name: "broken.png", Load: func(context.Context) ([]byte, error) { return nil, errors.New("missing file") }},
		{MimeType: "text/plain", Name: "b.txt", Load: func(context.Context) ([]byte, error) { return []byte("B"), nil }},
	}

	parts := llm.LoadParts(context.Background(), "test", atts)

	if len(parts) != 2 {
		t.Fatalf("expected 2 parts, got %d", len(parts))
	}
	if parts[0].Name != "a.png" || parts[1].Name != "b.txt" {
		t.Errorf("attachment order not preserved: %+v", parts)
	}
}

func TestDataURL(t *testing.T) {
	got := llm.DataURL("image/png", []byte("hi"))
	if got != "data:image/png;base64,aGk=" {
		t.Errorf("unexpected data url %q", got)
	}
}
