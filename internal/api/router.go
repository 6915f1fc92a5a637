package api

import (
	"net/http"

	"github.com/Rrens/chat-gateway/internal/api/handler"
	customMiddleware "github.com/Rrens/chat-gateway/internal/api/middleware"
	"github.com/Rrens/chat-gateway/internal/config"
	"github.com/Rrens/chat-gateway/internal/security"
	"github.com/Rrens/chat-gateway/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// Dependencies are the components the router exposes
type Dependencies struct {
	Store     handler.Pinger
	Providers *service.ProviderService
	Gateway   http.Handler
	Limiter   security.Limiter
}

// NewRouter creates and configures the HTTP router
func NewRouter(cfg *config.Config, deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(customMiddleware.Logger)
	r.Use(middleware.Recoverer)

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Connection auth is optional: without a secret the gateway is open
	var authMiddleware *customMiddleware.AuthMiddleware
	var tokenHandler *handler.TokenHandler
	if cfg.Auth.JWTSecret != "" {
		jwtManager := security.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
		authMiddleware = customMiddleware.NewAuthMiddleware(jwtManager)
		tokenHandler = handler.NewTokenHandler(jwtManager)
	} else {
		log.Warn().Msg("JWT secret not set, websocket endpoint is unauthenticated")
	}

	// Websocket endpoint; no timeout, the connection is long-lived
	r.Group(func(r chi.Router) {
		if authMiddleware != nil {
			r.Use(authMiddleware.Authenticate)
		}
		r.Handle("/ws", deps.Gateway)
	})

	if cfg.Metrics.Enabled {
		r.Handle(cfg.Metrics.Path, promhttp.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Timeout(cfg.Server.MiddlewareTimeout))

		// Health check
		r.Get("/health", handler.HealthCheck)
		r.Get("/ready", handler.ReadyCheck(deps.Store))

		r.Group(func(r chi.Router) {
			if authMiddleware != nil {
				r.Use(authMiddleware.Authenticate)
			}
			if deps.Limiter != nil {
				r.Use(customMiddleware.NewRateLimitMiddleware(deps.Limiter).Limit)
			}

			r.Get("/llm-providers", handler.ListLLMProviders(deps.Providers))
			if tokenHandler != nil {
				r.Post("/token", tokenHandler.Issue)
			}
		})
	})

	return r
}
