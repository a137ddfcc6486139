package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"

	"chatbot-backend/internal/config"
	"chatbot-backend/internal/database"
	"chatbot-backend/internal/handlers"
	"chatbot-backend/internal/logger"
	"chatbot-backend/internal/metrics"
	"chatbot-backend/internal/middleware"
	"chatbot-backend/internal/router"
	"chatbot-backend/internal/services"
	"chatbot-backend/internal/websocket"
)

// Set with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	// ──── Step 1: Load Environment Variables ────
	cfg := config.Load()
	logger.Setup(cfg.LogLevel, cfg.LogFormat)
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("✗ Invalid configuration")
	}
	log.Info().Str("version", version).Str("env", cfg.Env).Msg("🚀 Starting chatbot backend")

	// ──── Step 2: Load the Model ────
	ctx := context.Background()
	backend, err := newBackend(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Str("backend", cfg.ModelBackend).Msg("✗ Model backend initialization failed")
	}
	model, err := services.NewModelService(ctx, backend, services.ModelOptions{
		ModelName:         cfg.ModelName,
		Concurrency:       cfg.ModelConcurrency,
		LoadTimeout:       cfg.ModelLoadTimeout,
		GenerationTimeout: cfg.GenerationTimeout,
	})
	if err != nil {
		backend.Close()
		log.Fatal().Err(err).Msg("✗ Model load failed")
	}
	defer model.Close()
	log.Info().Str("backend", model.BackendName()).Str("model", model.ModelName()).Msg("✓ Model loaded")

	// ──── Step 3: Metrics ────
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics.Register(registry)
	metrics.SetBuildInfo(version, model.BackendName(), model.ModelName())

	// ──── Step 4: Access Control ────
	var limiter *middleware.RateLimiter
	if cfg.RateLimitPerMin > 0 {
		if cfg.RedisURL != "" {
			redisClient, err := database.NewRedisClient(cfg.RedisURL)
			if err != nil {
				log.Fatal().Err(err).Msg("✗ Redis connection failed")
			}
			defer redisClient.Close()
			limiter = middleware.NewRedisRateLimiter(redisClient, cfg.RateLimitPerMin, time.Minute)
			log.Info().Int("per_minute", cfg.RateLimitPerMin).Msg("✓ Rate limiter enabled (redis)")
		} else {
			limiter = middleware.NewRateLimiter(cfg.RateLimitPerMin, time.Minute)
			log.Info().Int("per_minute", cfg.RateLimitPerMin).Msg("✓ Rate limiter enabled (memory)")
		}
	}

	var jwtAuth *middleware.JWTAuth
	if cfg.JWTSecret != "" {
		jwtAuth = middleware.NewJWTAuth(cfg.JWTSecret)
		log.Info().Msg("✓ JWT auth enabled")
	}

	// ──── Step 5: Start HTTP Server ────
	chatService := services.NewChatService(model)
	wsHub := websocket.NewHub(chatService, cfg.AllowedOrigins)

	r := router.New(
		handlers.NewChatHandler(chatService),
		handlers.NewHealthHandler(model),
		wsHub,
		router.Options{
			AllowedOrigins: cfg.AllowedOrigins,
			JWTAuth:        jwtAuth,
			RateLimiter:    limiter,
			Metrics:        registry,
			TrustProxy:     cfg.TrustProxy,
		},
	)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	idle := make(chan struct{})
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Info().Msg("Shutting down...")
		wsHub.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			log.Error().Err(err).Msg("HTTP shutdown incomplete")
		}
		close(idle)
	}()

	log.Info().Msgf("✓ Chatbot backend ready on http://localhost:%s", cfg.Port)
	log.Info().Msgf("  API: http://localhost:%s/api/chat", cfg.Port)
	log.Info().Msgf("  WS:  ws://localhost:%s/api/chat/ws", cfg.Port)

	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("Server error")
	}
	<-idle
}

func newBackend(ctx context.Context, cfg *config.Config) (services.Backend, error) {
	switch cfg.ModelBackend {
	case "tgi":
		return services.NewTGIBackend(cfg.ModelURL, cfg.ModelName), nil
	case "ollama":
		return services.NewOllamaBackend(cfg.ModelURL, cfg.ModelName), nil
	case "gemini":
		return services.NewGeminiBackend(ctx, cfg.GeminiAPIKey, cfg.ModelName)
	default:
		return nil, fmt.Errorf("unknown model backend %q", cfg.ModelBackend)
	}
}
