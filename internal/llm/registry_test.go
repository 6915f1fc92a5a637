package llm

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/Rrens/chat-gateway/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubProvider struct {
	name  string
	model string
}

func (p *stubProvider) Name() string              { return p.name }
func (p *stubProvider) AvailableModels() []string { return []string{p.model} }
func (p *stubProvider) DefaultModel() string      { return p.model }

func (p *stubProvider) Complete(ctx context.Context, messages []Message, opts Options) (*Response, error) {
	return &Response{Text: "ok", Model: p.model}, nil
}

func (p *stubProvider) StreamComplete(ctx context.Context, messages []Message, opts Options) (<-chan StreamEvent, error) {
	return Pipe(ctx, func(w *StreamWriter) error { return w.Delta("ok") }), nil
}

func stubFactory(name string) ProviderFactory {
	return func(opts ProviderOptions) (Provider, error) {
		model := opts.DefaultModel
		if model == "" {
			model = name + "-default"
		}
		return &stubProvider{name: name, model: model}, nil
	}
}

func TestRegistry_Create(t *testing.T) {
	r := NewRegistry()
	r.Register("keyed", stubFactory("keyed"), true)
	r.Register("local", stubFactory("local"), false)

	t.Run("unknown provider", func(t *testing.T) {
		_, err := r.Create("nope", ProviderOptions{APIKey: "k"})
		assert.True(t, errors.Is(err, domain.ErrUnknownProvider))
	})

	t.Run("missing credential", func(t *testing.T) {
		_, err := r.Create("keyed", ProviderOptions{})
		assert.True(t, errors.Is(err, domain.ErrMissingCredential))
	})

	t.Run("credential optional", func(t *testing.T) {
		p, err := r.Create("local", ProviderOptions{})
		require.NoError(t, err)
		assert.Equal(t, "local-default", p.DefaultModel())
	})

	t.Run("default model override", func(t *testing.T) {
		p, err := r.Create("keyed", ProviderOptions{APIKey: "k", DefaultModel: "big"})
		require.NoError(t, err)
		assert.Equal(t, "big", p.DefaultModel())
	})

	assert.Equal(t, []string{"keyed", "local"}, r.Supported())
	assert.True(t, r.IsSupported("local"))
	assert.False(t, r.IsSupported("nope"))
}

func TestRegistry_Info(t *testing.T) {
	r := NewRegistry()
	r.Register("a", stubFactory("a"), true)
	r.Register("b", stubFactory("b"), false)

	var active Active
	active.Store("b", &stubProvider{name: "b", model: "b-1"})

	infos := r.Info(&active)
	require.Len(t, infos, 2)
	assert.Equal(t, ProviderInfo{Name: "a", RequiresCredential: true}, infos[0])
	assert.Equal(t, ProviderInfo{Name: "b", Active: true, Model: "b-1"}, infos[1])
}

func TestActive_StoreIfEmpty(t *testing.T) {
	var active Active

	_, _, ok := active.Load()
	assert.False(t, ok)

	first := &stubProvider{name: "first"}
	second := &stubProvider{name: "second"}

	var wg sync.WaitGroup
	results := make([]string, 2)
	for i, p := range []*stubProvider{first, second} {
		wg.Add(1)
		go func(i int, p *stubProvider) {
			defer wg.Done()
			name, _ := active.StoreIfEmpty(p.name, p)
			results[i] = name
		}(i, p)
	}
	wg.Wait()

	name, _, ok := active.Load()
	require.True(t, ok)
	assert.Equal(t, name, results[0])
	assert.Equal(t, name, results[1])

	active.Store("third", &stubProvider{name: "third"})
	name, _, _ = active.Load()
	assert.Equal(t, "third", name)
}
