package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"ecommerce-analytics-pipeline/internal/api/handler"
	"ecommerce-analytics-pipeline/pkg/logger"
	"ecommerce-analytics-pipeline/pkg/metrics"
	"ecommerce-analytics-pipeline/pkg/router"
)

// NewRouter mounts the run history API, the health check and the metrics
// endpoint.
func NewRouter(h *handler.PipelineHandler, m *metrics.Manager, log *logger.Logger) http.Handler {
	r := router.New(log)

	r.Get("/healthz", h.Health)
	if m != nil {
		r.Handle("/metrics", m.Handler())
	}

	r.Route("/api/v1/runs", func(r chi.Router) {
		r.Get("/", h.ListRuns)
		r.Post("/", h.CreateRun)
		r.Get("/{id}", h.GetRun)
		r.Get("/{id}/files/{name}", h.GetRunFile)
	})
	return r
}
