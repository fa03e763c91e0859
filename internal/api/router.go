package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/nerrad567/mannito-bridge/internal/auth"
)

// buildRouter wires every /api/v1 route. Reads need entity:read, switching
// needs device:operate and controller maintenance needs controller:manage.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(
		s.requestIDMiddleware,
		s.loggingMiddleware,
		s.recoveryMiddleware,
		s.corsMiddleware,
		middleware.CleanPath,
		s.bodySizeLimitMiddleware,
	)
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeNotFound(w, "no such endpoint")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/metrics", s.handleMetrics)
		r.Post("/auth/login", s.handleLogin)
		// Ticket checked inside the handler.
		r.Get("/ws", s.handleWebSocket)

		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)
			r.Post("/auth/ws-ticket", s.handleWSTicket)

			read := r.With(s.requirePermission(auth.PermEntityRead))
			read.Get("/info", s.handleGetInfo)
			read.Get("/devices", s.handleListDevices)
			read.Get("/devices/{id}", s.handleGetDevice)
			read.Get("/devices/{id}/history", s.handleGetDeviceHistory)
			read.Get("/sensors", s.handleListSensors)
			read.Get("/sensors/{id}", s.handleGetSensor)
			read.Get("/slots", s.handleListSlots)
			read.Get("/slots/{id}", s.handleGetSlot)

			operate := r.With(s.requirePermission(auth.PermDeviceOperate))
			operate.Put("/devices/{id}/state", s.handleSetDeviceState)
			operate.Put("/devices/{id}/powerlevel", s.handleSetPowerLevel)

			manage := r.With(s.requirePermission(auth.PermControllerManage))
			manage.Get("/devices/{id}/probe", s.handleProbeDevice)
			manage.Post("/info/invalidate", s.handleInvalidateInfo)
			manage.Post("/refresh", s.handleRefresh)
			manage.Get("/audit", s.handleListAudit)
		})
	})

	return r
}
