package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/labeldash/internal/panel"
)

// healthCheckTimeout bounds each dependency check of /api/v1/health.
const healthCheckTimeout = 2 * time.Second

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.middlewares()...)

	// Document the browser dashboard loads on start.
	r.Get("/config/config.json", s.handleDashboardConfig)

	if s.metrics != nil {
		r.Handle("/metrics", s.metrics)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/state", s.handleGetState)
		r.Get("/system", s.handleSystem)

		r.Route("/subscriptions", func(r chi.Router) {
			r.Get("/", s.handleListSubscriptions)
			r.Post("/", s.handleSubscribe)
			r.Delete("/", s.handleUnsubscribe)
		})

		r.Post("/print", s.handlePrint)
		r.Get("/jobs", s.handleListJobs)

		r.Get("/ws", s.handleWebSocket)
	})

	// Dashboard page (embedded), with SPA fallback.
	r.Handle("/*", panel.Handler(s.panelDir))

	return r
}

// handleHealth reports the server, session and dependency status.
// Any failing dependency turns the response into 503.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	snap := s.session.Snapshot()

	status := http.StatusOK
	checks := make(map[string]string, len(s.checks))
	for name, check := range s.checks {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		err := check.HealthCheck(ctx)
		cancel()
		if err != nil {
			checks[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}

	overall := "ok"
	if status != http.StatusOK {
		overall = "degraded"
	}
	writeJSON(w, status, map[string]any{
		"status":  overall,
		"version": s.version,
		"session": map[string]any{
			"identity":  snap.Identity,
			"status":    snap.Status,
			"connected": snap.Connected,
		},
		"checks": checks,
	})
}

// handleDashboardConfig serves the public subset of the configuration.
func (s *Server) handleDashboardConfig(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Cache-Control", "no-cache")
	writeJSON(w, http.StatusOK, s.cfg.DashboardDocument())
}
