package gemini

import (
	"context"
	"errors"
	"fmt"

	"github.com/Rrens/chat-gateway/internal/llm"
	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

type Provider struct {
	apiKey   string
	model    string
	endpoint string
}

func NewProvider(opts llm.ProviderOptions) (llm.Provider, error) {
	return &Provider{
		apiKey:   opts.APIKey,
		model:    opts.DefaultModel,
		endpoint: opts.BaseURL,
	}, nil
}

func (p *Provider) Name() string {
	return "gemini"
}

func (p *Provider) AvailableModels() []string {
	return []string{
		"gemini-2.5-flash",
		"gemini-2.5-pro",
		"gemini-2.0-flash",
		"gemini-1.5-flash",
		"gemini-1.5-pro",
	}
}

func (p *Provider) DefaultModel() string {
	if p.model != "" {
		return p.model
	}
	return "gemini-2.5-flash"
}

func (p *Provider) newClient(ctx context.Context) (*genai.Client, error) {
	opts := []option.ClientOption{option.WithAPIKey(p.apiKey)}
	if p.endpoint != "" {
		opts = append(opts, option.WithEndpoint(p.endpoint))
	}
	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	return client, nil
}

func (p *Provider) session(client *genai.Client, c *chat, opts llm.Options) *genai.ChatSession {
	model := client.GenerativeModel(llm.ResolveModel(opts, p.DefaultModel()))
	model.SystemInstruction = c.system
	if opts.Temperature != nil {
		model.SetTemperature(*opts.Temperature)
	}
	if opts.MaxTokens > 0 {
		model.SetMaxOutputTokens(int32(opts.MaxTokens))
	}

	cs := model.StartChat()
	cs.History = c.history
	return cs
}

func (p *Provider) Complete(ctx context.Context, messages []llm.Message, opts llm.Options) (*llm.Response, error) {
	c, err := buildChat(ctx, messages, opts)
	if err != nil {
		return nil, err
	}

	client, err := p.newClient(ctx)
	if err != nil {
		return nil, err
	}
	defer client.Close()

	resp, err := p.session(client, c, opts).SendMessage(ctx, c.last...)
	if err != nil {
		return nil, fmt.Errorf("gemini generation error: %w", err)
	}

	return &llm.Response{
		Text:  responseText(resp),
		Model: llm.ResolveModel(opts, p.DefaultModel()),
		Usage: usage(resp),
	}, nil
}

func (p *Provider) StreamComplete(ctx context.Context, messages []llm.Message, opts llm.Options) (<-chan llm.StreamEvent, error) {
	c, err := buildChat(ctx, messages, opts)
	if err != nil {
		return nil, err
	}

	client, err := p.newClient(ctx)
	if err != nil {
		return nil, err
	}

	iter := p.session(client, c, opts).SendMessageStream(ctx, c.last...)

	return llm.Pipe(ctx, func(w *llm.StreamWriter) error {
		defer client.Close()

		finished := false
		for {
			resp, err := iter.Next()
			if errors.Is(err, iterator.Done) {
				if !finished {
					return llm.Truncated("gemini")
				}
				return nil
			}
			if err != nil {
				return fmt.Errorf("gemini stream error: %w", err)
			}

			if u := usage(resp); u != nil {
				w.SetUsage(u)
			}
			if len(resp.Candidates) > 0 && resp.Candidates[0].FinishReason != genai.FinishReasonUnspecified {
				finished = true
				w.SetFinishReason(resp.Candidates[0].FinishReason.String())
			}
			if err := w.Delta(responseText(resp)); err != nil {
				return err
			}
		}
	}), nil
}

type chat struct {
	system  *genai.Content
	history []*genai.Content
	last    []genai.Part
}

// buildChat splits the turns into history plus the final user parts sent
// with the call. Gemini names the assistant role "model".
func buildChat(ctx context.Context, messages []llm.Message, opts llm.Options) (*chat, error) {
	system, turns := llm.SplitSystem(messages, opts.System)
	if len(turns) == 0 || turns[len(turns)-1].Role != llm.RoleUser {
		return nil, fmt.Errorf("gemini: conversation must end with a user turn")
	}

	c := &chat{}
	if system != "" {
		c.system = &genai.Content{Parts: []genai.Part{genai.Text(system)}}
	}
	for _, m := range turns[:len(turns)-1] {
		c.history = append(c.history, &genai.Content{Role: mapRole(m.Role), Parts: toParts(ctx, m)})
	}
	c.last = toParts(ctx, turns[len(turns)-1])
	return c, nil
}

func mapRole(r llm.Role) string {
	if r == llm.RoleAssistant {
		return "model"
	}
	return "user"
}

// toParts places inline blobs before the text part
func toParts(ctx context.Context, m llm.Message) []genai.Part {
	var parts []genai.Part
	for _, part := range llm.LoadParts(ctx, "gemini", m.Attachments) {
		if llm.IsText(part.MimeType) {
			parts = append(parts, genai.Text(llm.InlineText(part)))
			continue
		}
		parts = append(parts, genai.Blob{MIMEType: part.MimeType, Data: part.Data})
	}
	return append(parts, genai.Text(m.Content))
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}

	var output string
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			output += string(text)
		}
	}
	return output
}

func usage(resp *genai.GenerateContentResponse) *llm.Usage {
	if resp == nil || resp.UsageMetadata == nil {
		return nil
	}
	return &llm.Usage{
		PromptTokens:     int(resp.UsageMetadata.PromptTokenCount),
		CompletionTokens: int(resp.UsageMetadata.CandidatesTokenCount),
		TotalTokens:      int(resp.UsageMetadata.TotalTokenCount),
	}
}
