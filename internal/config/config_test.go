package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "missing.yaml"))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 3001, cfg.Server.Port)
	assert.Equal(t, "3001-3010", cfg.Server.PortRange)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, 500, cfg.Chat.HistoryLimit)
	assert.Equal(t, 100, cfg.Chat.ListLimit)
	assert.Equal(t, 30*time.Second, cfg.WS.PingInterval)
	assert.Equal(t, "GIGACHAT_API_PERS", cfg.LLM.GigaChat.Scope)
}

func TestLoad_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := []byte(`
server:
  port: 4000
  port_range: ""
llm:
  default_provider: anthropic
  anthropic:
    model: claude-3-haiku-20240307
`)
	require.NoError(t, os.WriteFile(path, yaml, 0o600))

	t.Setenv("CONFIG_PATH", path)
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant-test")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 4000, cfg.Server.Port)
	assert.Equal(t, "anthropic", cfg.LLM.DefaultProvider)
	assert.Equal(t, "sk-ant-test", cfg.LLM.Anthropic.APIKey)
	assert.Equal(t, "claude-3-haiku-20240307", cfg.LLM.Anthropic.Model)
}

func TestServerConfig_Ports(t *testing.T) {
	t.Run("configured port first", func(t *testing.T) {
		ports, err := ServerConfig{Port: 3003, PortRange: "3001-3005"}.Ports()
		require.NoError(t, err)
		assert.Equal(t, []int{3003, 3001, 3002, 3004, 3005}, ports)
	})

	t.Run("no range", func(t *testing.T) {
		ports, err := ServerConfig{Port: 8080}.Ports()
		require.NoError(t, err)
		assert.Equal(t, []int{8080}, ports)
	})

	t.Run("invalid range", func(t *testing.T) {
		for _, r := range []string{"3010-3001", "abc", "1-70000", "3001-x"} {
			_, err := ServerConfig{Port: 3001, PortRange: r}.Ports()
			assert.Error(t, err, r)
		}
	})
}

func TestLLMConfig_Credentials(t *testing.T) {
	cfg := LLMConfig{
		OpenAI: ProviderConfig{APIKey: "sk-1", Model: "gpt-4o-mini"},
		Ollama: ProviderConfig{BaseURL: "http://localhost:11434"},
	}

	opts, ok := cfg.Credentials("openai")
	assert.True(t, ok)
	assert.Equal(t, "sk-1", opts.APIKey)
	assert.Equal(t, "gpt-4o-mini", opts.DefaultModel)

	_, ok = cfg.Credentials("anthropic")
	assert.False(t, ok)

	opts, ok = cfg.Credentials("ollama")
	assert.True(t, ok)
	assert.Equal(t, "http://localhost:11434", opts.BaseURL)

	_, ok = cfg.Credentials("nope")
	assert.False(t, ok)
}
