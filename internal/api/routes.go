package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/fieldform/dashboard/internal/config"
	"github.com/fieldform/dashboard/internal/orchestrator"
	"github.com/fieldform/dashboard/internal/ws"
)

func NewRouter(cfg *config.Config, orch *orchestrator.Orchestrator, hub *ws.Hub) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)

	h := NewHandlers(cfg, orch)

	r.Get("/health", h.Health)
	r.Get("/info", h.Info)

	r.Post("/api/jobs/single", h.LaunchSingle)
	r.Get("/api/jobs/single", h.SingleState)
	r.Post("/api/jobs/batch", h.LaunchBatch)
	r.Get("/api/jobs/batch", h.BatchState)
	r.Post("/api/jobs/cancel", h.Cancel)
	r.Get("/api/jobs/last-url", h.LastURL)

	if hub != nil {
		r.Get("/ws/updates", hub.Handle)
	}

	return r
}
