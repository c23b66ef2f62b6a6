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
		r.Get("/health", s.handleHealth)
		r.Get("/metrics", s.handleMetrics)
		r.Get("/status", s.handleStatus)

		// Session control
		r.Route("/session", func(r chi.Router) {
			r.Post("/start", s.handleStartSession)
			r.Post("/stop", s.handleStopSession)
		})

		// Session history
		r.Route("/sessions", func(r chi.Router) {
			r.Get("/", s.handleListSessions)
			r.Get("/{id}/items", s.handleListSessionItems)
		})

		// Scanner input from the kiosk UI
		r.Route("/input", func(r chi.Router) {
			r.Post("/scan", s.handleInjectScan)
			r.Post("/keys", s.handleInjectKeys)
		})

		// Validation settings and reference dataset
		r.Route("/settings", func(r chi.Router) {
			r.Get("/", s.handleGetSettings)
			r.Put("/", s.handleUpdateSettings)
		})
		r.Route("/reference", func(r chi.Router) {
			r.Get("/", s.handleGetReference)
			r.Post("/reload", s.handleReloadReference)
		})

		// Hardware commissioning
		r.Route("/test", func(r chi.Router) {
			r.Post("/pass", s.handleTestPass)
			r.Post("/fail", s.handleTestFail)
			r.Post("/status", s.handleTestStatus)
		})

		// Audit trail
		r.Get("/audit", s.handleListAuditLogs)

		// WebSocket
		r.Get("/ws", s.handleWebSocket)
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
