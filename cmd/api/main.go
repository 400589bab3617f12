package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"reelsmith/internal/api"
	"reelsmith/internal/auth"
	"reelsmith/internal/config"
	"reelsmith/internal/db"
	"reelsmith/internal/providers"
	"reelsmith/internal/queue"
	"reelsmith/internal/ratelimit"
	"reelsmith/internal/services"
	"reelsmith/internal/storage"
	"reelsmith/internal/worker"
)

func main() {
	logger := newLogger()
	logger.Info().Msg("starting reelsmith API")

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}

	database, err := db.New(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer database.Close()

	if err := database.Migrate(context.Background()); err != nil {
		logger.Fatal().Err(err).Msg("failed to run migrations")
	}
	logger.Info().Msg("database ready")

	q, err := queue.New(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer q.Close()
	logger.Info().Msg("connected to redis queue")

	stor := storage.New(cfg.StorageURL, cfg.StorageServiceKey, cfg.StorageBucket, logger)

	tokens := auth.NewTokenManager(cfg.TokenSecret)
	limiter := ratelimit.New(q.Client(), cfg.RateLimitPerMinute, time.Minute, logger)

	handler := api.NewHandler(database, q, stor, tokens, cfg.DefaultBudget, cfg.UploadFolder, logger)
	router := api.NewRouter(handler, limiter, api.RouterConfig{
		CorsAllowedOrigins: cfg.CorsAllowedOrigins,
	}, logger)

	server := &http.Server{
		Addr:    ":" + cfg.APIPort,
		Handler: router,
	}

	// Start worker if enabled
	var workerCancel context.CancelFunc
	if cfg.WorkerEnabled {
		provider, err := providers.FromConfig(cfg, stor, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to build generation provider")
		}
		logger.Info().Str("provider", provider.Name()).Msg("generation provider ready")

		var enhancer *services.Enhancer
		if cfg.EnhancePrompts {
			enhancer = services.NewEnhancer(cfg.OpenAIKey, logger)
			logger.Info().Msg("prompt enhancement enabled")
		}

		gen := services.NewMediaGenerator(provider, stor, enhancer, cfg.UpscaleEnabled, logger)
		w := worker.New(database, q, gen, time.Duration(cfg.StuckJobMinutes)*time.Minute, logger)

		var workerCtx context.Context
		workerCtx, workerCancel = context.WithCancel(context.Background())
		go w.Start(workerCtx, cfg.MaxConcurrentJobs)
	}

	go func() {
		logger.Info().Str("port", cfg.APIPort).Msg("API server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down")

	if workerCancel != nil {
		workerCancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Fatal().Err(err).Msg("server forced to shutdown")
	}

	logger.Info().Msg("server exited")
}

func newLogger() zerolog.Logger {
	level := zerolog.InfoLevel
	if os.Getenv("APP_ENV") == "development" {
		level = zerolog.DebugLevel
	}

	logger := zerolog.New(os.Stdout).
		Level(level).
		With().
		Timestamp().
		Logger()

	if os.Getenv("APP_ENV") == "development" {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	}

	return logger
}
