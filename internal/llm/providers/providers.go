// Package providers wires every supported upstream into a registry.
package providers

import (
	"github.com/Rrens/chat-gateway/internal/llm"
	"github.com/Rrens/chat-gateway/internal/llm/anthropic"
	"github.com/Rrens/chat-gateway/internal/llm/deepseek"
	"github.com/Rrens/chat-gateway/internal/llm/gemini"
	"github.com/Rrens/chat-gateway/internal/llm/gigachat"
	"github.com/Rrens/chat-gateway/internal/llm/ollama"
	"github.com/Rrens/chat-gateway/internal/llm/openai"
)

// NewRegistry returns a registry with all built-in providers
func NewRegistry() *llm.Registry {
	r := llm.NewRegistry()
	r.Register("openai", openai.NewProvider, true)
	r.Register("anthropic", anthropic.NewProvider, true)
	r.Register("gemini", gemini.NewProvider, true)
	r.Register("deepseek", deepseek.NewProvider, true)
	r.Register("gigachat", gigachat.NewProvider, true)
	// local server, no key
	r.Register("ollama", ollama.NewProvider, false)
	return r
}
