package llm

import (
	"context"
	"net/http"
)

// Role is the local author of a turn. Adapters map it to the upstream vocabulary.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Attachment is a binary input loaded lazily from storage
type Attachment struct {
	// ID identifies the stored attachment across turns. May be empty.
	ID       string
	MimeType string
	Name     string
	Load     func(ctx context.Context) ([]byte, error)
}

// Message is one turn of the conversation sent upstream
type Message struct {
	Role        Role
	Content     string
	Attachments []Attachment
}

// Options tunes a single completion call
type Options struct {
	// Model overrides the provider default when set
	Model string
	// System takes priority over any system-role message
	System      string
	MaxTokens   int
	Temperature *float32
}

// Usage reports token accounting when the upstream provides it
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Response contains a non-streaming completion result
type Response struct {
	Text  string
	Model string
	Usage *Usage
}

// StreamEvent is one element of a streaming completion. Every stream ends
// with exactly one event where Done is true and Delta is empty; Err is set
// on that event when the stream failed.
type StreamEvent struct {
	Delta        string
	Done         bool
	FinishReason string
	Usage        *Usage
	Err          error
}

// Provider defines the interface for LLM providers
type Provider interface {
	// Name returns the provider identifier
	Name() string

	// AvailableModels returns list of supported models
	AvailableModels() []string

	// DefaultModel returns the default model
	DefaultModel() string

	// Complete returns the whole reply at once
	Complete(ctx context.Context, messages []Message, opts Options) (*Response, error)

	// StreamComplete returns a channel of deltas closed after the terminal event
	StreamComplete(ctx context.Context, messages []Message, opts Options) (<-chan StreamEvent, error)
}

// ProviderOptions carries the credentials and endpoints used to build a provider
type ProviderOptions struct {
	APIKey       string
	DefaultModel string
	BaseURL      string
	AuthURL      string
	Scope        string
	HTTPClient   *http.Client
}

// ProviderFactory creates a new provider instance
type ProviderFactory func(opts ProviderOptions) (Provider, error)

// SecretResolver supplies credentials per provider on demand
type SecretResolver interface {
	Credentials(provider string) (ProviderOptions, bool)
}

// ResolveModel returns the per-call model or the fallback
func ResolveModel(opts Options, fallback string) string {
	if opts.Model != "" {
		return opts.Model
	}
	return fallback
}
