// Package router assembles the HTTP surface: health, metrics, and the
// inbound chat webhooks.
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	httpmiddleware "github.com/pulsekit/pulsekit/internal/http/middleware"
	"github.com/pulsekit/pulsekit/pkg/logging"
)

// Config holds router configuration.
type Config struct {
	Logger         *logging.Logger
	SlackWebhook   http.HandlerFunc
	MetricsHandler http.Handler

	// WebhookRateLimit caps inbound webhook requests per second per IP.
	// Zero disables rate limiting.
	WebhookRateLimit float64
	WebhookBurst     int
}

// New creates a chi router with all routes configured.
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	if cfg.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", cfg.MetricsHandler)
	}

	r.Route("/webhooks", func(hooks chi.Router) {
		if cfg.WebhookRateLimit > 0 {
			hooks.Use(httpmiddleware.RateLimit(cfg.WebhookRateLimit, cfg.WebhookBurst))
		}
		if cfg.SlackWebhook != nil {
			hooks.Post("/slack", cfg.SlackWebhook)
		}
	})

	return r
}
