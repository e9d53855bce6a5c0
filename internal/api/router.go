package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nerrad567/gray-logic-rfbridge/internal/auth"
	"github.com/nerrad567/gray-logic-rfbridge/internal/bridges/core"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		// WebSocket (token in query, validated in handler)
		r.Get("/ws", s.handleWebSocket)

		// Read-only routes
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware(auth.RoleViewer))

			r.Get("/bridges", s.handleListBridges)
			r.Get("/bridges/{id}", s.handleGetBridge)
			r.Get("/devices", s.handleListDevices)
			r.Get("/devices/{family}/{address}", s.handleGetDevice)
			r.Get("/discovery", s.handleListCandidates)
			r.Get("/serial/ports", s.handleListPorts)
		})

		// Routes that change bridge state
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware(auth.RoleOperator))

			r.Post("/bridges/{id}/reinitialize", s.handleReinitialize)
			r.Post("/bridges/{id}/discovery", s.handleStartDiscovery)
			r.Delete("/bridges/{id}/discovery", s.handleStopDiscovery)
			r.Post("/devices", s.handleCreateDevice)
			r.Delete("/devices/{family}/{address}", s.handleDeleteDevice)
			r.Post("/devices/{family}/{address}/commands", s.handleDeviceCommand)
			r.Delete("/discovery/{family}/{address}", s.handleDismissCandidate)
		})
	})

	return r
}

// handleHealth returns the service health. It reports "degraded" when any
// bridge has no open connection.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	status := "ok"
	for _, b := range s.bridges {
		if b.State() != core.StateOpen {
			status = "degraded"
			break
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":         status,
		"version":        s.version,
		"bridges":        len(s.bridges),
		"uptime_seconds": int64(time.Since(s.startedAt).Seconds()),
	})
}
