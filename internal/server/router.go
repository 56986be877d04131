package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/docuforge/docuforge/internal/api"
	"github.com/docuforge/docuforge/internal/api/handlers"
	"github.com/docuforge/docuforge/internal/api/middleware"
)

type RouterConfig struct {
	IngestHandler   *handlers.IngestHandler
	AssetHandler    *handlers.AssetHandler
	JobHandler      *handlers.JobHandler
	ProgressHandler *handlers.ProgressHandler
	MaxBodyBytes    int64
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	maxBodyBytes := cfg.MaxBodyBytes
	if maxBodyBytes <= 0 {
		maxBodyBytes = 50 * 1024 * 1024
	}

	r.Use(middleware.RequestID)
	r.Use(middleware.SentryMiddleware)
	r.Use(middleware.AccessLog)
	r.Use(middleware.MaxBodyBytes(maxBodyBytes))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		api.Success(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(middleware.TenantIdentity)

			r.Post("/ingest", cfg.IngestHandler.Ingest)

			r.Route("/assets", func(r chi.Router) {
				r.Get("/expiring", cfg.AssetHandler.ListExpiring)
				r.Get("/{id}", cfg.AssetHandler.Get)
			})
		})

		r.Get("/progress/{correlationID}", cfg.ProgressHandler.Stream)

		r.Route("/jobs", func(r chi.Router) {
			r.Get("/", cfg.JobHandler.List)
			r.Get("/{id}", cfg.JobHandler.Get)
			r.Post("/{id}/retry", cfg.JobHandler.Retry)
			r.Delete("/{id}", cfg.JobHandler.Delete)
		})
	})

	return r
}
