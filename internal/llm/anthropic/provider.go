package anthropic

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/Rrens/chat-gateway/internal/llm"
	"github.com/rs/zerolog/log"
)

const (
	apiVersion       = "2023-06-01"
	defaultMaxTokens = 4096
)

// Provider implements llm.Provider for Anthropic
type Provider struct {
	apiKey       string
	defaultModel string
	client       *http.Client
	baseURL      string
}

// NewProvider creates a new Anthropic provider
func NewProvider(opts llm.ProviderOptions) (llm.Provider, error) {
	p := &Provider{
		apiKey:       opts.APIKey,
		defaultModel: opts.DefaultModel,
		client:       opts.HTTPClient,
		baseURL:      opts.BaseURL,
	}
	if p.defaultModel == "" {
		p.defaultModel = "claude-3-5-sonnet-20241022"
	}
	if p.client == nil {
		// no client timeout: streams are bounded by the request context
		p.client = &http.Client{}
	}
	if p.baseURL == "" {
		p.baseURL = "https://api.anthropic.com/v1"
	}
	return p, nil
}

// Name returns the provider identifier
func (p *Provider) Name() string {
	return "anthropic"
}

// AvailableModels returns list of supported models
func (p *Provider) AvailableModels() []string {
	return []string{
		"claude-3-5-sonnet-20241022",
		"claude-3-5-haiku-20241022",
		"claude-3-opus-20240229",
		"claude-3-haiku-20240307",
	}
}

// DefaultModel returns the default model
func (p *Provider) DefaultModel() string {
	return p.defaultModel
}

type messagesRequest struct {
	Model       string    `json:"model"`
	MaxTokens   int       `json:"max_tokens"`
	System      string    `json:"system,omitempty"`
	Messages    []message `json:"messages"`
	Stream      bool      `json:"stream,omitempty"`
	Temperature *float32  `json:"temperature,omitempty"`
}

type message struct {
	Role    string         `json:"role"`
	Content []contentBlock `json:"content"`
}

type contentBlock struct {
	Type   string  `json:"type"`
	Text   string  `json:"text,omitempty"`
	Source *source `json:"source,omitempty"`
}

type source struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

type messagesResponse struct {
	Model   string `json:"model"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage usage `json:"usage"`
}

type usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type streamEvent struct {
	Type  string `json:"type"`
	Delta struct {
		Type       string `json:"type"`
		Text       string `json:"text"`
		StopReason string `json:"stop_reason"`
	} `json:"delta"`
	Message struct {
		Usage usage `json:"usage"`
	} `json:"message"`
	Usage usage `json:"usage"`
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// Complete returns the whole reply at once
func (p *Provider) Complete(ctx context.Context, messages []llm.Message, opts llm.Options) (*llm.Response, error) {
	resp, err := p.do(ctx, p.buildRequest(ctx, messages, opts, false))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var out messagesResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	var text string
	for _, c := range out.Content {
		if c.Type == "text" {
			text += c.Text
		}
	}

	return &llm.Response{
		Text:  text,
		Model: out.Model,
		Usage: &llm.Usage{
			PromptTokens:     out.Usage.InputTokens,
			CompletionTokens: out.Usage.OutputTokens,
			TotalTokens:      out.Usage.InputTokens + out.Usage.OutputTokens,
		},
	}, nil
}

// StreamComplete streams the reply delta by delta
func (p *Provider) StreamComplete(ctx context.Context, messages []llm.Message, opts llm.Options) (<-chan llm.StreamEvent, error) {
	resp, err := p.do(ctx, p.buildRequest(ctx, messages, opts, true))
	if err != nil {
		return nil, err
	}

	return llm.Pipe(ctx, func(w *llm.StreamWriter) error {
		defer resp.Body.Close()

		var in, out int
		stopped := false
		err := llm.ReadSSE(resp.Body, func(ev llm.SSEEvent) (bool, error) {
			var se streamEvent
			if err := json.Unmarshal([]byte(ev.Data), &se); err != nil {
				return false, fmt.Errorf("failed to decode stream event: %w", err)
			}

			switch se.Type {
			case "message_start":
				in = se.Message.Usage.InputTokens
			case "content_block_delta":
				if se.Delta.Type == "text_delta" {
					return false, w.Delta(se.Delta.Text)
				}
			case "message_delta":
				out = se.Usage.OutputTokens
				if se.Delta.StopReason != "" {
					w.SetFinishReason(se.Delta.StopReason)
				}
			case "message_stop":
				stopped = true
				return true, nil
			case "error":
				return false, fmt.Errorf("anthropic stream error: %s: %s", se.Error.Type, se.Error.Message)
			}
			return false, nil
		})
		if err != nil {
			return err
		}
		if !stopped {
			return llm.Truncated("anthropic")
		}

		w.SetUsage(&llm.Usage{PromptTokens: in, CompletionTokens: out, TotalTokens: in + out})
		return nil
	}), nil
}

func (p *Provider) do(ctx context.Context, req messagesRequest) (*http.Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", p.baseURL+"/messages", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", p.apiKey)
	httpReq.Header.Set("anthropic-version", apiVersion)
	if req.Stream {
		httpReq.Header.Set("Accept", "text/event-stream")
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, llm.NewStatusError("anthropic", resp)
	}

	return resp, nil
}

func (p *Provider) buildRequest(ctx context.Context, messages []llm.Message, opts llm.Options, stream bool) messagesRequest {
	system, turns := llm.SplitSystem(messages, opts.System)

	req := messagesRequest{
		Model:       llm.ResolveModel(opts, p.defaultModel),
		MaxTokens:   opts.MaxTokens,
		System:      system,
		Messages:    make([]message, 0, len(turns)),
		Stream:      stream,
		Temperature: opts.Temperature,
	}
	if req.MaxTokens <= 0 {
		req.MaxTokens = defaultMaxTokens
	}

	for _, m := range turns {
		req.Messages = append(req.Messages, toMessage(ctx, m))
	}
	return req
}

func mapRole(r llm.Role) string {
	if r == llm.RoleAssistant {
		return "assistant"
	}
	return "user"
}

// toMessage places attachment blocks before the text block
func toMessage(ctx context.Context, m llm.Message) message {
	var blocks []contentBlock

	for _, part := range llm.LoadParts(ctx, "anthropic", m.Attachments) {
		switch {
		case llm.IsImage(part.MimeType):
			blocks = append(blocks, contentBlock{
				Type: "image",
				Source: &source{
					Type:      "base64",
					MediaType: part.MimeType,
					Data:      base64.StdEncoding.EncodeToString(part.Data),
				},
			})
		case part.MimeType == "application/pdf":
			blocks = append(blocks, contentBlock{
				Type: "document",
				Source: &source{
					Type:      "base64",
					MediaType: part.MimeType,
					Data:      base64.StdEncoding.EncodeToString(part.Data),
				},
			})
		case llm.IsText(part.MimeType):
			blocks = append(blocks, contentBlock{Type: "text", Text: llm.InlineText(part)})
		default:
			log.Warn().Str("provider", "anthropic").Str("mime_type", part.MimeType).
				Msg("Skipping unsupported attachment type")
		}
	}

	blocks = append(blocks, contentBlock{Type: "text", Text: m.Content})
	return message{Role: mapRole(m.Role), Content: blocks}
}
