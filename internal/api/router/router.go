package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/SaibSameer/icmp-sub000/internal/http/handlers"
	httpmiddleware "github.com/SaibSameer/icmp-sub000/internal/http/middleware"
	"github.com/SaibSameer/icmp-sub000/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger           *logging.Logger
	MessageHandler   *handlers.MessageHandler
	AIControlHandler *handlers.AIControlHandler
	MetricsHandler   http.Handler

	CORSAllowedOrigins []string

	// Transport-level rate limiting, requests/sec per client IP.
	// Zero disables the middleware.
	RateLimitPerSecond float64
	RateLimitBurst     int
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}
	if cfg.RateLimitPerSecond > 0 {
		r.Use(httpmiddleware.RateLimit(cfg.RateLimitPerSecond, cfg.RateLimitBurst))
	}

	// Public endpoints (health checks, metrics)
	r.Group(func(public chi.Router) {
		public.Get("/health", handlers.Health)
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
	})

	r.Route("/api", func(api chi.Router) {
		if cfg.MessageHandler != nil {
			api.Post("/messages", cfg.MessageHandler.Process)
		}
		if cfg.AIControlHandler != nil {
			api.Route("/ai-control", func(ctrl chi.Router) {
				ctrl.Post("/stop", cfg.AIControlHandler.Stop)
				ctrl.Post("/resume", cfg.AIControlHandler.Resume)
				ctrl.Get("/status", cfg.AIControlHandler.Status)
			})
		}
	})

	return r
}
