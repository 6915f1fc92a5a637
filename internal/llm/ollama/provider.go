package ollama

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/Rrens/chat-gateway/internal/llm"
	"github.com/rs/zerolog/log"
)

// Provider implements llm.Provider for Ollama
type Provider struct {
	host         string
	defaultModel string
	client       *http.Client
}

// NewProvider creates a new Ollama provider
func NewProvider(opts llm.ProviderOptions) (llm.Provider, error) {
	p := &Provider{
		host:         strings.TrimRight(opts.BaseURL, "/"),
		defaultModel: opts.DefaultModel,
		client:       opts.HTTPClient,
	}
	if p.host == "" {
		p.host = "http://localhost:11434"
	}
	if p.defaultModel == "" {
		p.defaultModel = "llama3.2"
	}
	if p.client == nil {
		p.client = &http.Client{}
	}
	return p, nil
}

// Name returns the provider identifier
func (p *Provider) Name() string {
	return "ollama"
}

// AvailableModels returns list of supported models
func (p *Provider) AvailableModels() []string {
	return []string{
		"llama3",
		"llama3.1",
		"llama3.2",
		"llava",
		"mistral",
		"mixtral",
		"phi3",
		"qwen2.5",
	}
}

// DefaultModel returns the default model
func (p *Provider) DefaultModel() string {
	return p.defaultModel
}

type chatRequest struct {
	Model    string         `json:"model"`
	Messages []chatMessage  `json:"messages"`
	Stream   bool           `json:"stream"`
	Options  map[string]any `json:"options,omitempty"`
}

type chatMessage struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"`
}

type chatChunk struct {
	Model   string `json:"model"`
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
	Done            bool   `json:"done"`
	DoneReason      string `json:"done_reason"`
	PromptEvalCount int    `json:"prompt_eval_count"`
	EvalCount       int    `json:"eval_count"`
	Error           string `json:"error"`
}

func (c chatChunk) usage() *llm.Usage {
	return &llm.Usage{
		PromptTokens:     c.PromptEvalCount,
		CompletionTokens: c.EvalCount,
		TotalTokens:      c.PromptEvalCount + c.EvalCount,
	}
}

// Complete returns the whole reply at once
func (p *Provider) Complete(ctx context.Context, messages []llm.Message, opts llm.Options) (*llm.Response, error) {
	resp, err := p.do(ctx, p.buildRequest(ctx, messages, opts, false))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var chunk chatChunk
	if err := json.NewDecoder(resp.Body).Decode(&chunk); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if chunk.Error != "" {
		return nil, fmt.Errorf("ollama error: %s", chunk.Error)
	}

	return &llm.Response{
		Text:  chunk.Message.Content,
		Model: chunk.Model,
		Usage: chunk.usage(),
	}, nil
}

// StreamComplete streams the reply delta by delta. Ollama answers with one
// JSON object per line.
func (p *Provider) StreamComplete(ctx context.Context, messages []llm.Message, opts llm.Options) (<-chan llm.StreamEvent, error) {
	resp, err := p.do(ctx, p.buildRequest(ctx, messages, opts, true))
	if err != nil {
		return nil, err
	}

	return llm.Pipe(ctx, func(w *llm.StreamWriter) error {
		defer resp.Body.Close()

		done := false
		err := llm.ReadLines(resp.Body, func(line []byte) (bool, error) {
			var chunk chatChunk
			if err := json.Unmarshal(line, &chunk); err != nil {
				return false, fmt.Errorf("failed to decode chunk: %w", err)
			}
			if chunk.Error != "" {
				return false, fmt.Errorf("ollama error: %s", chunk.Error)
			}
			if err := w.Delta(chunk.Message.Content); err != nil {
				return false, err
			}
			if chunk.Done {
				w.SetFinishReason(chunk.DoneReason)
				w.SetUsage(chunk.usage())
				done = true
				return true, nil
			}
			return false, nil
		})
		if err != nil {
			return err
		}
		if !done {
			return llm.Truncated("ollama")
		}
		return nil
	}), nil
}

func (p *Provider) do(ctx context.Context, req chatRequest) (*http.Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", p.host+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, llm.NewStatusError("ollama", resp)
	}
	return resp, nil
}

func (p *Provider) buildRequest(ctx context.Context, messages []llm.Message, opts llm.Options, stream bool) chatRequest {
	system, turns := llm.SplitSystem(messages, opts.System)

	req := chatRequest{
		Model:    llm.ResolveModel(opts, p.defaultModel),
		Messages: make([]chatMessage, 0, len(turns)+1),
		Stream:   stream,
	}
	if system != "" {
		req.Messages = append(req.Messages, chatMessage{Role: "system", Content: system})
	}
	for _, m := range turns {
		req.Messages = append(req.Messages, toMessage(ctx, m))
	}

	options := map[string]any{}
	if opts.Temperature != nil {
		options["temperature"] = *opts.Temperature
	}
	if opts.MaxTokens > 0 {
		options["num_predict"] = opts.MaxTokens
	}
	if len(options) > 0 {
		req.Options = options
	}
	return req
}

// toMessage puts images in the images array and prepends text
// attachments to the content.
func toMessage(ctx context.Context, m llm.Message) chatMessage {
	role := "user"
	if m.Role == llm.RoleAssistant {
		role = "assistant"
	}
	msg := chatMessage{Role: role}

	var texts []string
	for _, part := range llm.LoadParts(ctx, "ollama", m.Attachments) {
		switch {
		case llm.IsImage(part.MimeType):
			msg.Images = append(msg.Images, base64.StdEncoding.EncodeToString(part.Data))
		case llm.IsText(part.MimeType):
			texts = append(texts, llm.InlineText(part))
		default:
			log.Warn().Str("provider", "ollama").Str("mime_type", part.MimeType).
				Msg("Skipping unsupported attachment type")
		}
	}

	msg.Content = strings.Join(append(texts, m.Content), "\n\n")
	return msg
}
