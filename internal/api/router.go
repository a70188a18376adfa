package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		// Health check (no auth required)
		r.Get("/health", s.handleHealth)

		// System metrics (no auth required for basic monitoring)
		r.Get("/metrics", s.handleMetrics)

		// WebSocket upgrade. Browsers cannot set an Authorization header on
		// an upgrade request, so the handler authenticates with a single-use
		// ticket from POST /auth/ws-ticket instead.
		r.Get("/ws", s.handleWebSocket)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			// WS ticket requires authentication - caller must hold a valid
			// token to request a ticket
			r.Post("/auth/ws-ticket", s.handleWSTicket)

			// Flow endpoints
			r.Route("/flows", func(r chi.Router) {
				r.Get("/", s.handleListFlows)
				r.Post("/", s.handleCreateFlow)

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetFlow)
					r.Put("/", s.handleUpdateFlow)
					r.Delete("/", s.handleDeleteFlow)
					r.Post("/execute", s.handleExecuteFlow)
					r.Get("/executions", s.handleListExecutions)
					r.Get("/sensors", s.handleListFlowSensors)
				})
			})

			// Execution endpoints
			r.Route("/executions/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetExecution)
				r.Get("/screens", s.handleListLearnedScreens)
			})

			// Sensor endpoints
			r.Route("/sensors", func(r chi.Router) {
				r.Get("/", s.handleListSensors)
				r.Post("/", s.handleCreateSensor)

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetSensor)
					r.Delete("/", s.handleDeleteSensor)
					r.Get("/drift", s.handleListDriftHistory)
				})
			})

			// Device endpoints
			r.Route("/devices", func(r chi.Router) {
				r.Get("/", s.handleListDevices)
				r.Post("/{id}/suspend", s.handleSuspendDevice)
				r.Post("/{id}/resume", s.handleResumeDevice)
			})
		})
	})

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
	})
}

// handleWSTicket issues a short-lived single-use WebSocket ticket to an
// authenticated caller.
func (s *Server) handleWSTicket(w http.ResponseWriter, r *http.Request) {
	subject, _ := r.Context().Value(ctxKeySubject).(string) //nolint:errcheck // absent subject yields an anonymous ticket
	ticket := s.tickets.issue(subject)
	writeJSON(w, http.StatusOK, map[string]any{
		"ticket":     ticket,
		"expires_in": int(ticketTTL.Seconds()),
	})
}
