// Package router assembles the HTTP surface: public webhooks and health,
// JWT-protected admin reads, and the Prometheus scrape endpoint.
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dajobrague/au-call-system-sub004/internal/http/handlers"
	httpmiddleware "github.com/dajobrague/au-call-system-sub004/internal/http/middleware"
	"github.com/dajobrague/au-call-system-sub004/pkg/logging"
)

// Config holds router configuration.
type Config struct {
	Logger *logging.Logger

	VoiceWebhook *handlers.VoiceWebhookHandler
	SMSWebhook   *handlers.SMSWebhookHandler
	Admin        *handlers.AdminHandler

	// AdminAuthSecret signs admin bearer tokens; empty disables /admin.
	AdminAuthSecret string

	MetricsHandler     http.Handler
	CORSAllowedOrigins []string
}

// New creates the chi router with all routes configured.
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	// Public: carrier webhooks, liveness, metrics.
	r.Group(func(public chi.Router) {
		public.Get("/health", handlers.Health)
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
		if cfg.VoiceWebhook != nil {
			public.Post("/webhooks/telnyx/voice", cfg.VoiceWebhook.HandleVoice)
		}
		if cfg.SMSWebhook != nil {
			public.Post("/webhooks/sms", cfg.SMSWebhook.HandleInbound)
		}
	})

	// Admin: read-only coverage visibility behind a bearer JWT.
	if cfg.AdminAuthSecret != "" && cfg.Admin != nil {
		r.Route("/admin", func(admin chi.Router) {
			admin.Use(httpmiddleware.AdminJWT(cfg.AdminAuthSecret))
			admin.Use(httpmiddleware.RateLimit(10, 30))
			admin.Get("/providers/{providerID}/shifts/unfilled", cfg.Admin.ListUnfilledShifts)
			admin.Get("/shifts/{occurrenceID}/jobs", cfg.Admin.ListOccurrenceJobs)
			admin.Get("/shifts/{occurrenceID}/calls", cfg.Admin.ListOccurrenceCalls)
		})
	}

	return r
}
