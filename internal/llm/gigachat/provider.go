package gigachat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"sync"

	"github.com/Rrens/chat-gateway/internal/llm"
	"github.com/rs/zerolog/log"
)

const (
	defaultBaseURL = "https://gigachat.devices.sberbank.ru/api/v1"
	defaultAuthURL = "https://ngw.devices.sberbank.ru:9443/api/v2/oauth"
	defaultScope   = "GIGACHAT_API_PERS"

	maxCachedFiles = 1024
)

// Provider implements llm.Provider for GigaChat. Calls authenticate with a
// short-lived bearer token obtained from the OAuth endpoint.
type Provider struct {
	tokens       *TokenSource
	defaultModel string
	client       *http.Client
	baseURL      string

	// uploaded file ids by attachment id
	mu    sync.Mutex
	files map[string]string
}

// NewProvider creates a new GigaChat provider. opts.APIKey is the base64
// authorization key used for the token exchange.
func NewProvider(opts llm.ProviderOptions) (llm.Provider, error) {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{}
	}

	authURL := opts.AuthURL
	if authURL == "" {
		authURL = defaultAuthURL
	}
	scope := opts.Scope
	if scope == "" {
		scope = defaultScope
	}

	p := &Provider{
		tokens:       NewTokenSource(authURL, opts.APIKey, scope, client),
		defaultModel: opts.DefaultModel,
		client:       client,
		baseURL:      strings.TrimRight(opts.BaseURL, "/"),
		files:        make(map[string]string),
	}
	if p.defaultModel == "" {
		p.defaultModel = "GigaChat"
	}
	if p.baseURL == "" {
		p.baseURL = defaultBaseURL
	}
	return p, nil
}

// Name returns the provider identifier
func (p *Provider) Name() string {
	return "gigachat"
}

// AvailableModels returns list of supported models
func (p *Provider) AvailableModels() []string {
	return []string{
		"GigaChat",
		"GigaChat-Pro",
		"GigaChat-Max",
	}
}

// DefaultModel returns the default model
func (p *Provider) DefaultModel() string {
	return p.defaultModel
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Stream      bool          `json:"stream"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature *float32      `json:"temperature,omitempty"`
}

type chatMessage struct {
	Role        string   `json:"role"`
	Content     string   `json:"content"`
	Attachments []string `json:"attachments,omitempty"`
}

type usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

func (u *usage) toLLM() *llm.Usage {
	if u == nil {
		return nil
	}
	return &llm.Usage{
		PromptTokens:     u.PromptTokens,
		CompletionTokens: u.CompletionTokens,
		TotalTokens:      u.TotalTokens,
	}
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *usage `json:"usage"`
}

// Complete returns the whole reply at once
func (p *Provider) Complete(ctx context.Context, messages []llm.Message, opts llm.Options) (*llm.Response, error) {
	resp, err := p.post(ctx, p.buildRequest(ctx, messages, opts, false))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if len(out.Choices) == 0 {
		return nil, fmt.Errorf("no response from gigachat")
	}

	return &llm.Response{
		Text:  out.Choices[0].Message.Content,
		Model: out.Model,
		Usage: out.Usage.toLLM(),
	}, nil
}

// StreamComplete streams the reply delta by delta
func (p *Provider) StreamComplete(ctx context.Context, messages []llm.Message, opts llm.Options) (<-chan llm.StreamEvent, error) {
	resp, err := p.post(ctx, p.buildRequest(ctx, messages, opts, true))
	if err != nil {
		return nil, err
	}

	return llm.Pipe(ctx, func(w *llm.StreamWriter) error {
		defer resp.Body.Close()

		done := false
		err := llm.ReadSSE(resp.Body, func(ev llm.SSEEvent) (bool, error) {
			if ev.Data == "[DONE]" {
				done = true
				return true, nil
			}

			var chunk chatResponse
			if err := json.Unmarshal([]byte(ev.Data), &chunk); err != nil {
				return false, fmt.Errorf("failed to decode chunk: %w", err)
			}
			if chunk.Usage != nil {
				w.SetUsage(chunk.Usage.toLLM())
			}
			if len(chunk.Choices) == 0 {
				return false, nil
			}
			if fr := chunk.Choices[0].FinishReason; fr != "" {
				w.SetFinishReason(fr)
			}
			return false, w.Delta(chunk.Choices[0].Delta.Content)
		})
		if err != nil {
			return err
		}
		if !done {
			return llm.Truncated("gigachat")
		}
		return nil
	}), nil
}

// post sends a chat request. A 401 on a token presumed valid invalidates
// it and the request is repeated once with a fresh token.
func (p *Provider) post(ctx context.Context, req chatRequest) (*http.Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	for attempt := 0; ; attempt++ {
		token, err := p.tokens.Token(ctx)
		if err != nil {
			return nil, err
		}

		httpReq, err := http.NewRequestWithContext(ctx, "POST", p.baseURL+"/chat/completions", bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("Authorization", "Bearer "+token)
		if req.Stream {
			httpReq.Header.Set("Accept", "text/event-stream")
		}

		resp, err := p.client.Do(httpReq)
		if err != nil {
			return nil, fmt.Errorf("request failed: %w", err)
		}
		if resp.StatusCode == http.StatusOK {
			return resp, nil
		}

		statusErr := llm.NewStatusError("gigachat", resp)
		resp.Body.Close()

		if resp.StatusCode == http.StatusUnauthorized {
			p.tokens.Invalidate(token)
			if attempt == 0 {
				log.Warn().Msg("GigaChat rejected access token, refreshing")
				continue
			}
		}
		return nil, statusErr
	}
}

func (p *Provider) buildRequest(ctx context.Context, messages []llm.Message, opts llm.Options, stream bool) chatRequest {
	system, turns := llm.SplitSystem(messages, opts.System)

	req := chatRequest{
		Model:       llm.ResolveModel(opts, p.defaultModel),
		Messages:    make([]chatMessage, 0, len(turns)+1),
		Stream:      stream,
		MaxTokens:   opts.MaxTokens,
		Temperature: opts.Temperature,
	}
	if system != "" {
		req.Messages = append(req.Messages, chatMessage{Role: "system", Content: system})
	}
	for _, m := range turns {
		req.Messages = append(req.Messages, p.toMessage(ctx, m))
	}
	return req
}

// toMessage uploads attachments and references them by file id. An
// attachment already uploaded for an earlier turn reuses its file id.
// Uploads that fail are skipped with a warning.
func (p *Provider) toMessage(ctx context.Context, m llm.Message) chatMessage {
	role := "user"
	if m.Role == llm.RoleAssistant {
		role = "assistant"
	}
	msg := chatMessage{Role: role, Content: m.Content}

	for _, a := range m.Attachments {
		if id, ok := p.cachedFile(a.ID); ok {
			msg.Attachments = append(msg.Attachments, id)
			continue
		}
		for _, part := range llm.LoadParts(ctx, "gigachat", []llm.Attachment{a}) {
			id, err := p.upload(ctx, part)
			if err != nil {
				log.Warn().Err(err).Str("provider", "gigachat").Str("attachment", part.Name).
					Msg("Skipping attachment that failed to upload")
				continue
			}
			p.cacheFile(a.ID, id)
			msg.Attachments = append(msg.Attachments, id)
		}
	}
	return msg
}

func (p *Provider) cachedFile(attachmentID string) (string, bool) {
	if attachmentID == "" {
		return "", false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	id, ok := p.files[attachmentID]
	return id, ok
}

func (p *Provider) cacheFile(attachmentID, fileID string) {
	if attachmentID == "" {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.files) >= maxCachedFiles {
		p.files = make(map[string]string)
	}
	p.files[attachmentID] = fileID
}

func (p *Provider) upload(ctx context.Context, part llm.Part) (string, error) {
	token, err := p.tokens.Token(ctx)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, part.Name))
	header.Set("Content-Type", part.MimeType)
	fw, err := mw.CreatePart(header)
	if err != nil {
		return "", err
	}
	if _, err := fw.Write(part.Data); err != nil {
		return "", err
	}
	if err := mw.WriteField("purpose", "general"); err != nil {
		return "", err
	}
	if err := mw.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", p.baseURL+"/files", &buf)
	if err != nil {
		return "", fmt.Errorf("failed to create upload request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("upload failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		if resp.StatusCode == http.StatusUnauthorized {
			p.tokens.Invalidate(token)
		}
		return "", llm.NewStatusError("gigachat", resp)
	}

	var out struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to decode upload response: %w", err)
	}
	if out.ID == "" {
		return "", errors.New("upload response without file id")
	}
	return out.ID, nil
}
