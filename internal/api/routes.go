package api

import (
	"net/http"

	"github.com/dgarciamx/Tramita/internal/auth"
)

// RegisterRoutes регистрирует все маршруты API.
func (h *Handler) RegisterRoutes(mux *http.ServeMux, verifier auth.Verifier) {
	// Middleware chain
	chain := Chain(
		Recovery(h.logger),
		Logging(h.logger),
		Auth(verifier, h.logger),
	)

	// Tasks
	mux.Handle("POST /api/v1/tasks", chain(http.HandlerFunc(h.CreateTask)))
	mux.Handle("GET /api/v1/tasks", chain(http.HandlerFunc(h.ListTasks)))
	mux.Handle("GET /api/v1/tasks/{id}", chain(http.HandlerFunc(h.GetTask)))

	// Commands
	mux.Handle("POST /api/v1/tasks/{id}/cancel", chain(http.HandlerFunc(h.CancelTask)))
	mux.Handle("POST /api/v1/tasks/{id}/stop", chain(http.HandlerFunc(h.StopTask)))
	mux.Handle("POST /api/v1/tasks/{id}/pause", chain(http.HandlerFunc(h.PauseTask)))
	mux.Handle("POST /api/v1/tasks/{id}/resume", chain(http.HandlerFunc(h.ResumeTask)))
	mux.Handle("POST /api/v1/tasks/{id}/take-control", chain(http.HandlerFunc(h.TakeControlTask)))

	// Events
	mux.Handle("GET /api/v1/tasks/{id}/events", chain(http.HandlerFunc(h.ListEvents)))
	mux.Handle("GET /api/v1/tasks/{id}/events/stream", chain(http.HandlerFunc(h.StreamEvents)))

	// Stats
	mux.Handle("GET /api/v1/stats", chain(http.HandlerFunc(h.GetStats)))

	// Health probe остаётся без аутентификации.
	probe := Chain(Recovery(h.logger))
	mux.Handle("GET /healthz", probe(http.HandlerFunc(h.Health)))
}
