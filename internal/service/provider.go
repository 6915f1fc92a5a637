package service

import (
	"errors"
	"strings"

	"github.com/Rrens/chat-gateway/internal/domain"
	"github.com/Rrens/chat-gateway/internal/llm"
	"github.com/Rrens/chat-gateway/internal/metrics"
	"github.com/rs/zerolog/log"
)

// ProviderConfigRequest carries a provider.config payload
type ProviderConfigRequest struct {
	Provider     string
	APIKey       string
	DefaultModel string
	BaseURL      string
}

// ProviderService owns the process-wide active provider. Configure is the
// only writer; every send takes a snapshot through Resolve.
type ProviderService struct {
	registry        *llm.Registry
	active          *llm.Active
	secrets         llm.SecretResolver
	defaultProvider string
}

// NewProviderService creates a new provider service. secrets may be nil,
// which disables the environment fallback.
func NewProviderService(registry *llm.Registry, secrets llm.SecretResolver, defaultProvider string) *ProviderService {
	return &ProviderService{
		registry:        registry,
		active:          &llm.Active{},
		secrets:         secrets,
		defaultProvider: defaultProvider,
	}
}

// Configure builds a fresh provider and swaps it in only when construction
// succeeds. A failed attempt leaves the previous provider active.
func (s *ProviderService) Configure(req ProviderConfigRequest) error {
	name := strings.ToLower(strings.TrimSpace(req.Provider))

	p, err := s.registry.Create(name, llm.ProviderOptions{
		APIKey:       strings.TrimSpace(req.APIKey),
		DefaultModel: req.DefaultModel,
		BaseURL:      req.BaseURL,
	})
	if err != nil {
		metrics.ProviderSwapsTotal.WithLabelValues(name, "rejected").Inc()
		var de *domain.Error
		if errors.As(err, &de) {
			return de
		}
		return domain.Wrap(domain.KindProvider, domain.CodeUnknownProvider, "Failed to configure provider "+name, err)
	}

	s.active.Store(name, p)
	metrics.ProviderSwapsTotal.WithLabelValues(name, "applied").Inc()
	log.Info().Str("provider", name).Str("model", p.DefaultModel()).Msg("Active LLM provider replaced")
	return nil
}

// Resolve returns a consistent snapshot of the active provider, installing
// one from the environment when none has been configured.
func (s *ProviderService) Resolve() (string, llm.Provider, error) {
	if name, p, ok := s.active.Load(); ok {
		return name, p, nil
	}
	if s.secrets == nil {
		return "", nil, domain.ErrProviderNotConfigured
	}

	for _, name := range s.fallbackOrder() {
		opts, ok := s.secrets.Credentials(name)
		if !ok {
			continue
		}
		p, err := s.registry.Create(name, opts)
		if err != nil {
			log.Warn().Err(err).Str("provider", name).Msg("Environment provider rejected")
			continue
		}
		activeName, active := s.active.StoreIfEmpty(name, p)
		if activeName == name {
			log.Info().Str("provider", name).Msg("Using LLM provider from environment")
		}
		return activeName, active, nil
	}

	return "", nil, domain.ErrProviderNotConfigured
}

func (s *ProviderService) fallbackOrder() []string {
	order := make([]string, 0, len(s.registry.Supported())+1)
	if s.registry.IsSupported(s.defaultProvider) {
		order = append(order, s.defaultProvider)
	}
	for _, name := range s.registry.Supported() {
		if name != s.defaultProvider {
			order = append(order, name)
		}
	}
	return order
}

// Info describes every supported provider
func (s *ProviderService) Info() []llm.ProviderInfo {
	return s.registry.Info(s.active)
}
