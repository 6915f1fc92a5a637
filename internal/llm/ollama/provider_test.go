package ollama

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Rrens/chat-gateway/internal/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProvider_StreamComplete(t *testing.T) {
	var req chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		w.Header().Set("Content-Type", "application/x-ndjson")
		fmt.Fprintln(w, `{"model":"llava","message":{"role":"assistant","content":"A "},"done":false}`)
		fmt.Fprintln(w, `{"model":"llava","message":{"role":"assistant","content":"cat"},"done":false}`)
		fmt.Fprintln(w, `{"model":"llava","message":{"role":"assistant","content":""},"done":true,"done_reason":"stop","prompt_eval_count":5,"eval_count":2}`)
	}))
	defer srv.Close()

	p, err := NewProvider(llm.ProviderOptions{BaseURL: srv.URL + "/", DefaultModel: "llava"})
	require.NoError(t, err)

	msgs := []llm.Message{
		{Role: llm.RoleSystem, Content: "describe images"},
		{
			Role:    llm.RoleUser,
			Content: "what is it?",
			Attachments: []llm.Attachment{
				{MimeType: "image/jpeg", Name: "cat.jpg", Load: func(context.Context) ([]byte, error) { return []byte("jpg"), nil }},
				{MimeType: "text/plain", Name: "note.txt", Load: func(context.Context) ([]byte, error) { return []byte("a note"), nil }},
			},
		},
	}

	events, err := p.StreamComplete(context.Background(), msgs, llm.Options{MaxTokens: 64})
	require.NoError(t, err)

	var deltas []string
	var final llm.StreamEvent
	for ev := range events {
		if ev.Done {
			final = ev
			continue
		}
		deltas = append(deltas, ev.Delta)
	}

	assert.Equal(t, []string{"A ", "cat"}, deltas)
	assert.NoError(t, final.Err)
	assert.Equal(t, "stop", final.FinishReason)
	assert.Equal(t, 7, final.Usage.TotalTokens)

	assert.True(t, req.Stream)
	assert.Equal(t, "llava", req.Model)
	assert.EqualValues(t, 64, req.Options["num_predict"])
	require.Len(t, req.Messages, 2)
	assert.Equal(t, "system", req.Messages[0].Role)
	assert.Equal(t, []string{"anBn"}, req.Messages[1].Images)
	assert.Equal(t, "[note.txt]\na note\n\nwhat is it?", req.Messages[1].Content)
}

func TestProvider_ErrorLine(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, `{"error":"model 'nope' not found"}`)
	}))
	defer srv.Close()

	p, err := NewProvider(llm.ProviderOptions{BaseURL: srv.URL})
	require.NoError(t, err)

	events, err := p.StreamComplete(context.Background(), []llm.Message{{Role: llm.RoleUser, Content: "hi"}}, llm.Options{Model: "nope"})
	require.NoError(t, err)

	_, _, err = llm.Collect(events)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestProvider_StreamEndsWithoutDone(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, `{"model":"llava","message":{"role":"assistant","content":"A "},"done":false}`)
	}))
	defer srv.Close()

	p, err := NewProvider(llm.ProviderOptions{BaseURL: srv.URL})
	require.NoError(t, err)

	events, err := p.StreamComplete(context.Background(), []llm.Message{{Role: llm.RoleUser, Content: "hi"}}, llm.Options{})
	require.NoError(t, err)

	text, _, err := llm.Collect(events)
	assert.Equal(t, "A ", text)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}
