package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/Rrens/chat-gateway/internal/api"
	"github.com/Rrens/chat-gateway/internal/blob"
	"github.com/Rrens/chat-gateway/internal/config"
	"github.com/Rrens/chat-gateway/internal/gateway"
	"github.com/Rrens/chat-gateway/internal/llm/providers"
	"github.com/Rrens/chat-gateway/internal/logger"
	"github.com/Rrens/chat-gateway/internal/repository"
	"github.com/Rrens/chat-gateway/internal/repository/redis"
	"github.com/Rrens/chat-gateway/internal/security"
	"github.com/Rrens/chat-gateway/internal/service"
	"github.com/Rrens/chat-gateway/internal/session"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

func main() {
	// Load .env file - try multiple locations
	envPaths := []string{".env", "../.env", "../../.env"}
	envLoaded := ""
	for _, p := range envPaths {
		if err := godotenv.Load(p); err == nil {
			envLoaded = p
			break
		}
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Setup logger
	logCloser, err := logger.Setup(cfg.Logging, cfg.Env)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to set up logging: %v\n", err)
		os.Exit(1)
	}
	defer logCloser.Close()

	if envLoaded != "" {
		log.Debug().Str("path", envLoaded).Msg("Loaded .env")
	}

	log.Info().
		Str("host", cfg.Server.Host).
		Int("port", cfg.Server.Port).
		Str("database", cfg.Database.Driver).
		Msg("Starting chat gateway")

	ctx := context.Background()

	// Initialize persistence
	store, err := repository.Open(ctx, cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open database")
	}
	defer store.Close()

	blobs, err := blob.New(ctx, cfg.Storage)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open attachment storage")
	}

	// Rate limiting: shared through Redis when enabled, in-process otherwise
	var limiter security.Limiter = security.NewLocalLimiter(
		cfg.Security.RateLimit.RequestsPerMinute,
		cfg.Security.RateLimit.Burst,
	)
	if cfg.Redis.Enabled {
		redisClient, err := redis.NewClient(ctx, cfg.Redis)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to Redis")
		}
		defer redisClient.Close()
		limiter = redis.NewRateLimiter(redisClient, cfg.Security.RateLimit.RequestsPerMinute, cfg.Security.RateLimit.Burst)
	}

	// Initialize services
	registry := providers.NewRegistry()
	log.Info().Strs("providers", registry.Supported()).Str("default", cfg.LLM.DefaultProvider).Msg("LLM providers registered")

	binder := session.NewBinder(store.Conversations)
	providerService := service.NewProviderService(registry, cfg.LLM, cfg.LLM.DefaultProvider)
	chatService := service.NewChatService(
		store.Messages,
		store.Attachments,
		blobs,
		binder,
		providerService,
		cfg.Chat.HistoryLimit,
	)
	conversationService := service.NewConversationService(
		store.Conversations,
		store.Messages,
		store.Attachments,
		blobs,
		binder,
		cfg.Chat.ListLimit,
	)

	dispatcher := gateway.NewDispatcher(chatService, conversationService, providerService, limiter)
	wsServer := gateway.NewServer(dispatcher, binder, cfg.WS)

	// Initialize router
	router := api.NewRouter(cfg, api.Dependencies{
		Store:     store,
		Providers: providerService,
		Gateway:   wsServer,
		Limiter:   limiter,
	})

	listener, err := listen(cfg.Server)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to bind a port")
	}

	// Create HTTP server
	server := &http.Server{
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server in goroutine
	go func() {
		log.Info().Msgf("Server listening on %s", listener.Addr())
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().
		Int("connections", wsServer.Len()).
		Int("bindings", binder.Len()).
		Msg("Shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	// hijacked websocket connections are not covered by http.Server.Shutdown
	if err := wsServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("WebSocket connections did not close in time")
	}

	log.Info().Msg("Server stopped")
}

// listen binds the configured port, falling back through the port range
// when it is taken.
func listen(cfg config.ServerConfig) (net.Listener, error) {
	ports, err := cfg.Ports()
	if err != nil {
		return nil, err
	}

	var lastErr error
	for i, port := range ports {
		l, err := net.Listen("tcp", fmt.Sprintf("%s:%d", cfg.Host, port))
		if err != nil {
			lastErr = err
			log.Debug().Err(err).Int("port", port).Msg("Port unavailable")
			continue
		}
		if i > 0 {
			log.Warn().Int("configured", cfg.Port).Int("port", port).Msg("Configured port busy, using fallback")
		}
		return l, nil
	}
	return nil, fmt.Errorf("no free port among %v: %w", ports, lastErr)
}
