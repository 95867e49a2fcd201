package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	mw "github.com/haulbot/dispatcher/internal/middleware"
)

// HealthCheck probes one dependency for the readiness endpoint.
type HealthCheck func(ctx context.Context) error

// HandlerSet holds handler functions injected from main.go to avoid import cycles.
type HandlerSet struct {
	// Channel webhooks
	WhatsAppWebhook http.HandlerFunc

	// Synthesized audio
	Media http.Handler

	// Admin handlers
	ListChat    http.HandlerFunc
	SendMessage http.HandlerFunc
	ListAudit   http.HandlerFunc

	// Auth middleware
	AuthMiddleware func(http.Handler) http.Handler

	// Worker lanes health
	LanesHealthy func() bool
}

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	CORSAllowedOrigins []string
	WebhookRateLimiter func(http.Handler) http.Handler
	// Checks are named readiness probes, e.g. "database" and "nats".
	Checks map[string]HealthCheck
}

func NewRouter(cfg RouterConfig, h HandlerSet) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(mw.RequestID)
	r.Use(mw.SecurityHeaders)
	r.Use(mw.Logging)
	r.Use(mw.Recovery)
	r.Use(mw.Metrics)
	r.Use(cors.Handler(mw.CORS(cfg.CORSAllowedOrigins)))

	// Liveness probe: always 200, no dependency checks
	r.Get("/health/live", func(w http.ResponseWriter, r *http.Request) {
		JSON(w, http.StatusOK, map[string]string{"status": "alive"})
	})

	readinessHandler := func(w http.ResponseWriter, r *http.Request) {
		health := map[string]string{"status": "healthy"}
		status := http.StatusOK

		for name, check := range cfg.Checks {
			if err := check(r.Context()); err != nil {
				health[name] = "unhealthy"
				health["status"] = "degraded"
				status = http.StatusServiceUnavailable
				continue
			}
			health[name] = "healthy"
		}

		if h.LanesHealthy != nil {
			if h.LanesHealthy() {
				health["workers"] = "healthy"
			} else {
				health["workers"] = "stopped"
				health["status"] = "degraded"
				status = http.StatusServiceUnavailable
			}
		} else {
			health["workers"] = "not configured"
		}

		JSON(w, status, health)
	}

	r.Get("/health/ready", readinessHandler)
	r.Get("/health", readinessHandler)

	// Prometheus metrics
	r.Handle("/metrics", promhttp.Handler())

	if h.Media != nil {
		r.Handle("/media/*", http.StripPrefix("/media/", h.Media))
	}

	r.Route("/webhooks", func(r chi.Router) {
		if cfg.WebhookRateLimiter != nil {
			r.Use(cfg.WebhookRateLimiter)
		}
		r.Post("/whatsapp", h.WhatsAppWebhook)
	})

	// API v1, operator only
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(h.AuthMiddleware)

		r.Get("/chats/{user}", h.ListChat)
		r.Post("/messages", h.SendMessage)
		if h.ListAudit != nil {
			r.Get("/audit/{user}", h.ListAudit)
		}
	})

	return r
}
