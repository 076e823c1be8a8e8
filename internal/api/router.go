// Package api assembles the HTTP surface: routes, middleware and handlers.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/jzebell/gov-proposal-ai-sub006/internal/api/handlers"
	"github.com/jzebell/gov-proposal-ai-sub006/internal/api/middleware"
	"github.com/jzebell/gov-proposal-ai-sub006/internal/observability"
)

// Handlers are the endpoint groups served by the router.
type Handlers struct {
	Health               *handlers.HealthHandler
	Search               *handlers.SearchHandler
	Technologies         *handlers.TechnologiesHandler
	Capabilities         *handlers.CapabilitiesHandler
	Ingest               *handlers.IngestHandler
	SearchConfigurations *handlers.SearchConfigurationsHandler
}

// RouterConfig controls authentication, limits and metrics of the router.
type RouterConfig struct {
	APIKey              string
	MaxRequestBodyBytes int64
	Metrics             observability.APIMetrics
	// MetricsHandler serves GET /metrics when the Prometheus exporter is enabled.
	MetricsHandler http.Handler
}

// NewRouter builds the chi router. /health and /metrics are public; everything under /v1
// requires the API key.
func NewRouter(h Handlers, cfg RouterConfig) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Metrics(cfg.Metrics))

	r.Get("/health", h.Health.Check)

	if cfg.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", cfg.MetricsHandler)
	}

	r.Route("/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.APIKey))
		r.Use(middleware.MaxBody(cfg.MaxRequestBodyBytes, cfg.Metrics))

		r.Route("/search", func(r chi.Router) {
			r.Post("/project-context", h.Search.ProjectContext)
			r.Post("/freetext", h.Search.Freetext)
			r.Post("/research", h.Search.Research)
			r.Post("/context", h.Search.Context)
		})

		r.Get("/technologies", h.Technologies.List)
		r.Post("/technologies/approve", h.Technologies.Approve)
		r.Post("/technologies/reject", h.Technologies.Reject)

		r.Get("/capabilities/unified", h.Capabilities.Unified)

		r.Post("/ingest", h.Ingest.Ingest)
		r.Post("/past-performances/{id}/archive", h.Ingest.Archive)

		r.Get("/search-configurations", h.SearchConfigurations.List)
		r.Post("/search-configurations", h.SearchConfigurations.Create)
	})

	return r
}
