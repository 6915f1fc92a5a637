package llm

import (
	"sort"
	"sync"

	"github.com/Rrens/chat-gateway/internal/domain"
)

type registration struct {
	factory            ProviderFactory
	requiresCredential bool
}

// Registry maps provider identifiers to their factories
type Registry struct {
	factories map[string]registration
	mu        sync.RWMutex
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]registration),
	}
}

// Register registers a provider factory. When requiresCredential is set,
// Create refuses to build the provider without an API key.
func (r *Registry) Register(name string, factory ProviderFactory, requiresCredential bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = registration{factory: factory, requiresCredential: requiresCredential}
}

// Create builds a live provider from its identifier and options
func (r *Registry) Create(name string, opts ProviderOptions) (Provider, error) {
	r.mu.RLock()
	reg, ok := r.factories[name]
	r.mu.RUnlock()

	if !ok {
		return nil, domain.UnknownProvider(name)
	}
	if reg.requiresCredential && opts.APIKey == "" {
		return nil, domain.MissingCredential(name)
	}

	return reg.factory(opts)
}

// IsSupported reports whether a factory is registered under name
func (r *Registry) IsSupported(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[name]
	return ok
}

// Supported returns the registered identifiers in sorted order
func (r *Registry) Supported() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sortedLocked()
}

// ProviderInfo contains information about an LLM provider
type ProviderInfo struct {
	Name               string `json:"name"`
	RequiresCredential bool   `json:"requires_credential"`
	Active             bool   `json:"active"`
	Model              string `json:"model,omitempty"`
}

// Info describes every registered provider, marking the active one
func (r *Registry) Info(active *Active) []ProviderInfo {
	var activeName, activeModel string
	if active != nil {
		if name, p, ok := active.Load(); ok {
			activeName, activeModel = name, p.DefaultModel()
		}
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]ProviderInfo, 0, len(r.factories))
	for _, name := range r.sortedLocked() {
		info := ProviderInfo{
			Name:               name,
			RequiresCredential: r.factories[name].requiresCredential,
			Active:             name == activeName,
		}
		if info.Active {
			info.Model = activeModel
		}
		infos = append(infos, info)
	}
	return infos
}

func (r *Registry) sortedLocked() []string {
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
