// Package router assembles the HTTP surface: public webhooks and health
// checks, plus the operator API behind CORS.
package router

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/quickagent/callminder/internal/http/handlers"
	httpmiddleware "github.com/quickagent/callminder/internal/http/middleware"
	"github.com/quickagent/callminder/pkg/logging"
)

// Config holds router configuration.
type Config struct {
	Logger             *logging.Logger
	Webhooks           *handlers.CallWebhookHandler
	Dashboard          *handlers.DashboardHandler
	MetricsHandler     http.Handler
	CORSAllowedOrigins []string
}

// New creates a Chi router with all routes configured.
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	// Public endpoints: gateway webhooks, health, metrics.
	r.Group(func(public chi.Router) {
		public.Get("/health", healthCheck)
		if cfg.Webhooks != nil {
			public.Post("/webhooks/voice", cfg.Webhooks.HandleEvent)
			public.Post("/webhooks/messages", cfg.Webhooks.HandleEvent)
		}
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
	})

	// Operator API.
	if cfg.Dashboard != nil {
		r.Route("/api", func(api chi.Router) {
			if len(cfg.CORSAllowedOrigins) > 0 {
				api.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
			}
			api.Get("/appointments", cfg.Dashboard.ListAppointments)
			api.Post("/appointments", cfg.Dashboard.CreateAppointment)
			api.Get("/appointments/{id}", cfg.Dashboard.GetAppointment)
			api.Post("/appointments/{id}/call", cfg.Dashboard.TriggerCall)
			api.Get("/calls/recent", cfg.Dashboard.RecentCalls)
			api.Get("/dashboard-data", cfg.Dashboard.DashboardData)
		})
	}

	return r
}

func healthCheck(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
