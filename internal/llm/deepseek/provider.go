package deepseek

import (
	"github.com/Rrens/chat-gateway/internal/llm"
	"github.com/Rrens/chat-gateway/internal/llm/openai"
)

// NewProvider creates a new DeepSeek provider. DeepSeek speaks the OpenAI
// chat completion protocol but accepts no image input.
func NewProvider(opts llm.ProviderOptions) (llm.Provider, error) {
	return openai.New(openai.Config{
		Name:         "deepseek",
		BaseURL:      "https://api.deepseek.com/v1",
		DefaultModel: "deepseek-chat",
		Models: []string{
			"deepseek-chat",
			"deepseek-reasoner",
		},
	}, opts), nil
}
