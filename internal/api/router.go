package api

import (
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/eldtechnologies/batepapo/internal/api/middleware"
	"github.com/eldtechnologies/batepapo/internal/handlers"
	"github.com/eldtechnologies/batepapo/internal/store"
)

// Options tunes the router's request limits.
type Options struct {
	MaxBodyBytes       int64
	RateLimitWhitelist []string
}

// NewRouter creates and configures the HTTP router. Rate limiting is enabled
// only when redisClient is non-nil.
func NewRouter(logger zerolog.Logger, st store.Store, redisClient *redis.Client, opts Options) *chi.Mux {
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 8 * 1024
	}

	r := chi.NewRouter()

	// Metrics middleware (first to capture all requests)
	r.Use(middleware.Metrics)

	// Security middleware (order matters!)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.MaxBodySize(opts.MaxBodyBytes))
	r.Use(middleware.ValidateRequest)

	// Standard middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger(logger))
	r.Use(chimw.Recoverer)

	if redisClient != nil {
		limiter := middleware.NewRateLimiter(redisClient, logger, middleware.DefaultRateLimits, opts.RateLimitWhitelist)
		r.Use(limiter.Middleware)
	}

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", middleware.UserHeader},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	h := handlers.NewHandler(st, logger)

	r.Handle("/metrics", promhttp.Handler())

	r.Get("/", h.Root)
	r.Get("/health", h.Health)

	r.Post("/participants", h.RegisterParticipant)
	r.Get("/participants", h.ListParticipants)

	// Routes acting on behalf of the User header
	r.Group(func(r chi.Router) {
		r.Use(middleware.Identify)

		r.Post("/messages", h.PostMessage)
		r.Get("/messages", h.GetMessages)
		r.Delete("/messages/{id}", h.DeleteMessage)
		r.Post("/status", h.KeepAlive)
	})

	return r
}
