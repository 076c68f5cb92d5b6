package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/eldtechnologies/batepapo/internal/api"
	"github.com/eldtechnologies/batepapo/internal/config"
	"github.com/eldtechnologies/batepapo/internal/store"
	"github.com/eldtechnologies/batepapo/internal/sweeper"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		bootLogger := zerolog.New(os.Stderr)
		bootLogger.Fatal().Err(err).Msg("invalid configuration")
	}

	logger := newLogger(cfg)

	ctx := context.Background()

	// Connect to the store selected by DATABASE_URL
	backend, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("store connection failed")
	}
	logger.Info().Str("backend", backend.Backend()).Msg("connected to store")

	// Rate limiting needs Redis; other backends run without it
	var redisClient *redis.Client
	if rs, ok := backend.(*store.RedisStore); ok {
		redisClient = rs.Client()
	} else {
		logger.Warn().Str("backend", backend.Backend()).Msg("rate limiting disabled")
	}

	st := store.Instrument(backend)

	sw := sweeper.New(st, logger, cfg.SweepInterval, cfg.InactivityTimeout)
	sw.Start(ctx)

	router := api.NewRouter(logger, st, redisClient, api.Options{
		MaxBodyBytes:       cfg.MaxBodyBytes,
		RateLimitWhitelist: cfg.RateLimitWhitelist,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info().
			Str("port", cfg.Port).
			Str("env", cfg.Env).
			Str("backend", st.Backend()).
			Msg("server online")

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server failed to start")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server...")

	sw.Stop()

	// Graceful shutdown with 30 second timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server forced to shutdown")
	}

	st.Close()
	logger.Info().Msg("server stopped")
}

// newLogger writes human-readable output in development and JSON otherwise.
func newLogger(cfg *config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	var logger zerolog.Logger
	if cfg.IsDevelopment() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	} else {
		logger = zerolog.New(os.Stdout)
	}
	return logger.Level(level).With().Timestamp().Logger()
}
