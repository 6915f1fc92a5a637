package handler

import (
	"context"
	"net/http"

	"github.com/Rrens/chat-gateway/internal/api/response"
	"github.com/Rrens/chat-gateway/internal/service"
)

// Pinger reports whether a backend is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthCheck returns a simple health check response
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	response.OK(w, map[string]string{
		"status": "ok",
	})
}

// ReadyCheck returns readiness status including database connectivity
func ReadyCheck(store Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := store.Ping(r.Context()); err != nil {
			response.Error(w, http.StatusServiceUnavailable, "database not ready")
			return
		}

		response.OK(w, map[string]string{
			"status": "ready",
		})
	}
}

// ListLLMProviders returns the supported providers and the active one
func ListLLMProviders(providers *service.ProviderService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		infos := providers.Info()

		active := ""
		for _, info := range infos {
			if info.Active {
				active = info.Name
			}
		}

		response.OK(w, map[string]any{
			"providers":       infos,
			"active_provider": active,
		})
	}
}
