package openai

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/Rrens/chat-gateway/internal/llm"
	"github.com/rs/zerolog/log"
	goopenai "github.com/sashabaranov/go-openai"
)

const (
	defaultBaseURL = "https://api.openai.com/v1"
	defaultModel   = "gpt-4o-mini"
)

// Provider implements llm.Provider for OpenAI-compatible chat completion APIs
type Provider struct {
	name         string
	client       *goopenai.Client
	defaultModel string
	models       []string
	// imageInput is false for upstreams that reject image parts
	imageInput bool
}

// Config describes an OpenAI-compatible upstream
type Config struct {
	Name         string
	BaseURL      string
	DefaultModel string
	Models       []string
	ImageInput   bool
}

// New creates a provider for any OpenAI-compatible upstream
func New(cfg Config, opts llm.ProviderOptions) *Provider {
	clientCfg := goopenai.DefaultConfig(opts.APIKey)
	clientCfg.BaseURL = cfg.BaseURL
	if opts.BaseURL != "" {
		clientCfg.BaseURL = opts.BaseURL
	}
	if opts.HTTPClient != nil {
		clientCfg.HTTPClient = opts.HTTPClient
	}

	model := cfg.DefaultModel
	if opts.DefaultModel != "" {
		model = opts.DefaultModel
	}

	return &Provider{
		name:         cfg.Name,
		client:       goopenai.NewClientWithConfig(clientCfg),
		defaultModel: model,
		models:       cfg.Models,
		imageInput:   cfg.ImageInput,
	}
}

// NewProvider creates a new OpenAI provider
func NewProvider(opts llm.ProviderOptions) (llm.Provider, error) {
	return New(Config{
		Name:         "openai",
		BaseURL:      defaultBaseURL,
		DefaultModel: defaultModel,
		Models: []string{
			"gpt-4o",
			"gpt-4o-mini",
			"gpt-4-turbo",
			"gpt-4.1",
			"gpt-4.1-mini",
		},
		ImageInput: true,
	}, opts), nil
}

// Name returns the provider identifier
func (p *Provider) Name() string {
	return p.name
}

// AvailableModels returns list of supported models
func (p *Provider) AvailableModels() []string {
	return p.models
}

// DefaultModel returns the default model
func (p *Provider) DefaultModel() string {
	return p.defaultModel
}

// Complete returns the whole reply at once
func (p *Provider) Complete(ctx context.Context, messages []llm.Message, opts llm.Options) (*llm.Response, error) {
	req := p.buildRequest(ctx, messages, opts)

	resp, err := p.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%s request failed: %w", p.name, err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no response from %s", p.name)
	}

	return &llm.Response{
		Text:  resp.Choices[0].Message.Content,
		Model: resp.Model,
		Usage: &llm.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}, nil
}

// StreamComplete streams the reply delta by delta
func (p *Provider) StreamComplete(ctx context.Context, messages []llm.Message, opts llm.Options) (<-chan llm.StreamEvent, error) {
	req := p.buildRequest(ctx, messages, opts)
	req.Stream = true
	req.StreamOptions = &goopenai.StreamOptions{IncludeUsage: true}

	stream, err := p.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%s stream request failed: %w", p.name, err)
	}

	return llm.Pipe(ctx, func(w *llm.StreamWriter) error {
		defer stream.Close()

		// io.EOF arrives with or without [DONE]; only a finish_reason
		// proves the reply is complete
		finished := false
		for {
			chunk, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				if !finished {
					return llm.Truncated(p.name)
				}
				return nil
			}
			if err != nil {
				return fmt.Errorf("%s stream failed: %w", p.name, err)
			}

			if chunk.Usage != nil {
				w.SetUsage(&llm.Usage{
					PromptTokens:     chunk.Usage.PromptTokens,
					CompletionTokens: chunk.Usage.CompletionTokens,
					TotalTokens:      chunk.Usage.TotalTokens,
				})
			}
			if len(chunk.Choices) == 0 {
				continue
			}

			choice := chunk.Choices[0]
			if err := w.Delta(choice.Delta.Content); err != nil {
				return err
			}
			if choice.FinishReason != "" {
				finished = true
				w.SetFinishReason(string(choice.FinishReason))
			}
		}
	}), nil
}

func (p *Provider) buildRequest(ctx context.Context, messages []llm.Message, opts llm.Options) goopenai.ChatCompletionRequest {
	system, turns := llm.SplitSystem(messages, opts.System)

	chat := make([]goopenai.ChatCompletionMessage, 0, len(turns)+1)
	if system != "" {
		chat = append(chat, goopenai.ChatCompletionMessage{
			Role:    goopenai.ChatMessageRoleSystem,
			Content: system,
		})
	}
	for _, m := range turns {
		chat = append(chat, p.toMessage(ctx, m))
	}

	req := goopenai.ChatCompletionRequest{
		Model:     llm.ResolveModel(opts, p.defaultModel),
		Messages:  chat,
		MaxTokens: opts.MaxTokens,
	}
	if opts.Temperature != nil {
		req.Temperature = *opts.Temperature
	}
	return req
}

func mapRole(r llm.Role) string {
	if r == llm.RoleAssistant {
		return goopenai.ChatMessageRoleAssistant
	}
	return goopenai.ChatMessageRoleUser
}

// toMessage encodes attachments first and the text last. Content and
// MultiContent are mutually exclusive in the client library.
func (p *Provider) toMessage(ctx context.Context, m llm.Message) goopenai.ChatCompletionMessage {
	msg := goopenai.ChatCompletionMessage{Role: mapRole(m.Role)}
	if len(m.Attachments) == 0 {
		msg.Content = m.Content
		return msg
	}

	var parts []goopenai.ChatMessagePart
	for _, part := range llm.LoadParts(ctx, p.name, m.Attachments) {
		switch {
		case llm.IsImage(part.MimeType) && p.imageInput:
			parts = append(parts, goopenai.ChatMessagePart{
				Type:     goopenai.ChatMessagePartTypeImageURL,
				ImageURL: &goopenai.ChatMessageImageURL{URL: llm.DataURL(part.MimeType, part.Data)},
			})
		case llm.IsText(part.MimeType):
			parts = append(parts, goopenai.ChatMessagePart{
				Type: goopenai.ChatMessagePartTypeText,
				Text: llm.InlineText(part),
			})
		default:
			log.Warn().Str("provider", p.name).Str("mime_type", part.MimeType).
				Msg("Skipping unsupported attachment type")
		}
	}

	if len(parts) == 0 {
		msg.Content = m.Content
		return msg
	}
	parts = append(parts, goopenai.ChatMessagePart{Type: goopenai.ChatMessagePartTypeText, Text: m.Content})
	msg.MultiContent = parts
	return msg
}
