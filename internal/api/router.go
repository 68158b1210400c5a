package api

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
)

// healthCheckTimeout bounds each component probe of /health.
const healthCheckTimeout = 2 * time.Second

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	if s.prometheus != nil {
		path := s.metricsCfg.Path
		if path == "" {
			path = "/metrics"
		}
		r.Handle(path, s.prometheus)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/metrics", s.handleMetrics)

		r.Get("/z21/status", s.handleZ21Status)
		r.Get("/feedback/statistics", s.handleFeedbackStatistics)
		r.Get("/workflows", s.handleListWorkflows)
		r.Get("/journeys", s.handleListJourneys)
		r.Get("/journeys/{id}/state", s.handleJourneyState)
		r.Get("/executions", s.handleListExecutions)
		r.Get("/ws", s.handleWebSocket)

		// Control routes
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Post("/z21/track-power", s.handleTrackPower)
			r.Post("/z21/emergency-stop", s.handleEmergencyStop)
			r.Post("/z21/turnout", s.handleTurnout)
			r.Post("/feedback/{port}/simulate", s.handleSimulateFeedback)
			r.Delete("/feedback/statistics", s.handleResetStatistics)
			r.Delete("/feedback/statistics/{port}", s.handleResetPortStatistics)
			r.Post("/journeys/{id}/reset", s.handleResetJourney)
			r.Post("/automation/reset", s.handleResetAutomation)
		})
	})

	return r
}

// healthResponse is the body of GET /health.
type healthResponse struct {
	Status  string            `json:"status"`
	Version string            `json:"version"`
	Checks  map[string]string `json:"checks"`
}

// handleHealth probes the controller and every registered component.
// A failing probe marks the service "degraded" but still returns 200 so
// that a disconnected layout does not restart the process.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	checks := map[string]HealthChecker{"z21": s.controller}
	for name, c := range s.health {
		checks[name] = c
	}

	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)

	resp := healthResponse{Status: "ok", Version: s.version, Checks: make(map[string]string, len(checks))}
	for _, name := range names {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		err := checks[name].HealthCheck(ctx)
		cancel()
		if err != nil {
			resp.Status = "degraded"
			resp.Checks[name] = err.Error()
			continue
		}
		resp.Checks[name] = "ok"
	}
	writeJSON(w, http.StatusOK, resp)
}
