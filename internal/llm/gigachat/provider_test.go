package gigachat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Rrens/chat-gateway/internal/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGigaChat struct {
	t          *testing.T
	srv        *httptest.Server
	tokenCalls int32
	chatCalls  int32
	// rejectFirst makes the first chat request fail with 401
	rejectFirst bool
	uploads     []string
	lastReq     chatRequest
}

func newFakeGigaChat(t *testing.T) *fakeGigaChat {
	f := &fakeGigaChat{t: t}
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth", func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&f.tokenCalls, 1)
		writeToken(w, fmt.Sprintf("tok-%d", n), time.Now().Add(30*time.Minute))
	})
	mux.HandleFunc("/api/v1/files", func(w http.ResponseWriter, r *http.Request) {
		file, header, err := r.FormFile("file")
		if !assert.NoError(t, err) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		data, _ := io.ReadAll(file)
		assert.Equal(t, "general", r.FormValue("purpose"))
		f.uploads = append(f.uploads, header.Filename+":"+string(data))
		fmt.Fprintf(w, `{"id":"file-%d"}`, len(f.uploads))
	})
	mux.HandleFunc("/api/v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&f.chatCalls, 1)
		if f.rejectFirst && n == 1 {
			w.WriteHeader(http.StatusUnauthorized)
			fmt.Fprint(w, `{"status":401,"message":"Token has expired"}`)
			return
		}
		assert.True(t, strings.HasPrefix(r.Header.Get("Authorization"), "Bearer tok-"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&f.lastReq))

		if !f.lastReq.Stream {
			fmt.Fprint(w, `{"model":"GigaChat","choices":[{"message":{"role":"assistant","content":"whole"},"finish_reason":"stop"}],"usage":{"prompt_tokens":2,"completion_tokens":1,"total_tokens":3}}`)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"При\",\"role\":\"assistant\"},\"index\":0}]}\n\n")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"вет\"},\"index\":0,\"finish_reason\":\"stop\"}],\"usage\":{\"prompt_tokens\":4,\"completion_tokens\":2,\"total_tokens\":6}}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	})
	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeGigaChat) provider(t *testing.T) *Provider {
	p, err := NewProvider(llm.ProviderOptions{
		APIKey:  "auth-key",
		BaseURL: f.srv.URL + "/api/v1",
		AuthURL: f.srv.URL + "/oauth",
	})
	require.NoError(t, err)
	return p.(*Provider)
}

func TestProvider_StreamComplete(t *testing.T) {
	f := newFakeGigaChat(t)
	p := f.provider(t)

	msgs := []llm.Message{
		{Role: llm.RoleSystem, Content: "answer in russian"},
		{Role: llm.RoleUser, Content: "hello"},
	}
	events, err := p.StreamComplete(context.Background(), msgs, llm.Options{})
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

	assert.Equal(t, []string{"При", "вет"}, deltas)
	assert.NoError(t, final.Err)
	assert.Equal(t, "stop", final.FinishReason)
	require.NotNil(t, final.Usage)
	assert.Equal(t, 6, final.Usage.TotalTokens)

	assert.Equal(t, "GigaChat", f.lastReq.Model)
	require.Len(t, f.lastReq.Messages, 2)
	assert.Equal(t, "system", f.lastReq.Messages[0].Role)
	assert.Equal(t, "answer in russian", f.lastReq.Messages[0].Content)
	assert.Equal(t, int32(1), atomic.LoadInt32(&f.tokenCalls))
}

func TestProvider_RefreshesTokenOnUnauthorized(t *testing.T) {
	f := newFakeGigaChat(t)
	f.rejectFirst = true
	p := f.provider(t)

	resp, err := p.Complete(context.Background(), []llm.Message{{Role: llm.RoleUser, Content: "hi"}}, llm.Options{})
	require.NoError(t, err)
	assert.Equal(t, "whole", resp.Text)
	assert.Equal(t, 3, resp.Usage.TotalTokens)

	assert.Equal(t, int32(2), atomic.LoadInt32(&f.chatCalls))
	assert.Equal(t, int32(2), atomic.LoadInt32(&f.tokenCalls))
}

func TestProvider_UploadsAttachments(t *testing.T) {
	f := newFakeGigaChat(t)
	p := f.provider(t)

	msgs := []llm.Message{{
		Role:    llm.RoleUser,
		Content: "describe",
		Attachments: []llm.Attachment{
			{MimeType: "image/jpeg", Name: "cat.jpg", Load: func(context.Context) ([]byte, error) { return []byte("jpeg"), nil }},
			{MimeType: "image/jpeg", Name: "lost.jpg", Load: func(context.Context) ([]byte, error) { return nil, errors.New("missing") }},
		},
	}}

	events, err := p.StreamComplete(context.Background(), msgs, llm.Options{Model: "GigaChat-Pro"})
	require.NoError(t, err)
	_, _, err = llm.Collect(events)
	require.NoError(t, err)

	assert.Equal(t, []string{"cat.jpg:jpeg"}, f.uploads)
	require.Len(t, f.lastReq.Messages, 1)
	assert.Equal(t, []string{"file-1"}, f.lastReq.Messages[0].Attachments)
	assert.Equal(t, "GigaChat-Pro", f.lastReq.Model)
}

func TestProvider_AuthFailureSurfacesBeforeStreaming(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"message":"bad key"}`)
	}))
	defer srv.Close()

	p, err := NewProvider(llm.ProviderOptions{APIKey: "bad", AuthURL: srv.URL, BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = p.StreamComplete(context.Background(), []llm.Message{{Role: llm.RoleUser, Content: "hi"}}, llm.Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad key")
}

func TestProvider_StreamEndsWithoutDoneMarker(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth", func(w http.ResponseWriter, r *http.Request) {
		writeToken(w, "tok-1", time.Now().Add(30*time.Minute))
	})
	mux.HandleFunc("/api/v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"При\"},\"index\":0}]}\n\n")
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	p, err := NewProvider(llm.ProviderOptions{APIKey: "auth-key", BaseURL: srv.URL + "/api/v1", AuthURL: srv.URL + "/oauth"})
	require.NoError(t, err)

	events, err := p.StreamComplete(context.Background(), []llm.Message{{Role: llm.RoleUser, Content: "hi"}}, llm.Options{})
	require.NoError(t, err)

	text, _, err := llm.Collect(events)
	assert.Equal(t, "При", text)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestProvider_ReusesUploadedFiles(t *testing.T) {
	f := newFakeGigaChat(t)
	p := f.provider(t)

	loads := 0
	photo := llm.Attachment{
		ID:       "att-1",
		MimeType: "image/jpeg",
		Name:     "cat.jpg",
		Load: func(context.Context) ([]byte, error) {
			loads++
			return []byte("jpeg"), nil
		},
	}

	first := []llm.Message{{Role: llm.RoleUser, Content: "describe", Attachments: []llm.Attachment{photo}}}
	events, err := p.StreamComplete(context.Background(), first, llm.Options{})
	require.NoError(t, err)
	_, _, err = llm.Collect(events)
	require.NoError(t, err)

	second := append(first,
		llm.Message{Role: llm.RoleAssistant, Content: "a cat"},
		llm.Message{Role: llm.RoleUser, Content: "what colour?"},
	)
	events, err = p.StreamComplete(context.Background(), second, llm.Options{})
	require.NoError(t, err)
	_, _, err = llm.Collect(events)
	require.NoError(t, err)

	assert.Equal(t, 1, loads)
	assert.Equal(t, []string{"cat.jpg:jpeg"}, f.uploads)
	require.Len(t, f.lastReq.Messages, 3)
	assert.Equal(t, []string{"file-1"}, f.lastReq.Messages[0].Attachments)
}
