package service

import (
	"errors"
	"testing"

	"github.com/Rrens/chat-gateway/internal/domain"
	"github.com/Rrens/chat-gateway/internal/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProviderService_Configure(t *testing.T) {
	p := new(MockLLMProvider)
	svc := NewProviderService(newTestRegistry(p, "openai", "anthropic"), nil, "openai")

	_, _, err := svc.Resolve()
	assert.True(t, errors.Is(err, domain.ErrProviderNotConfigured))

	require.NoError(t, svc.Configure(ProviderConfigRequest{Provider: "OpenAI", APIKey: "sk"}))
	name, active, err := svc.Resolve()
	require.NoError(t, err)
	assert.Equal(t, "openai", name)
	assert.Same(t, p, active)

	// failures keep the previous provider
	err = svc.Configure(ProviderConfigRequest{Provider: "mistral", APIKey: "sk"})
	assert.True(t, errors.Is(err, domain.ErrUnknownProvider))

	err = svc.Configure(ProviderConfigRequest{Provider: "anthropic", APIKey: "  "})
	assert.True(t, errors.Is(err, domain.ErrMissingCredential))

	name, _, err = svc.Resolve()
	require.NoError(t, err)
	assert.Equal(t, "openai", name)
}

func TestProviderService_EnvironmentFallback(t *testing.T) {
	p := new(MockLLMProvider)
	secrets := staticSecrets{
		"anthropic": {APIKey: "a"},
		"gemini":    {APIKey: "g"},
	}
	svc := NewProviderService(newTestRegistry(p, "anthropic", "gemini", "openai"), secrets, "gemini")

	name, _, err := svc.Resolve()
	require.NoError(t, err)
	assert.Equal(t, "gemini", name, "default provider wins when it has credentials")

	infos := svc.Info()
	require.Len(t, infos, 3)
	for _, info := range infos {
		assert.Equal(t, info.Name == "gemini", info.Active)
	}
}

func TestProviderService_FallbackSkipsMissing(t *testing.T) {
	p := new(MockLLMProvider)
	secrets := staticSecrets{"anthropic": {APIKey: "a"}, "openai": {}}
	svc := NewProviderService(newTestRegistry(p, "anthropic", "openai"), secrets, "openai")

	name, _, err := svc.Resolve()
	require.NoError(t, err)
	assert.Equal(t, "anthropic", name)
}

func TestProviderService_NoCredentials(t *testing.T) {
	svc := NewProviderService(newTestRegistry(new(MockLLMProvider), "openai"), staticSecrets{}, "openai")

	_, _, err := svc.Resolve()
	assert.True(t, errors.Is(err, domain.ErrProviderNotConfigured))
	assert.Equal(t, domain.CodeProviderNotConfigured, domain.Classify(err).Code)
	assert.Equal(t, []llm.ProviderInfo{{Name: "openai", RequiresCredential: true}}, svc.Info())
}
