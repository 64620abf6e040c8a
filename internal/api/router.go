// Package api exposes price lookups, refresh and repricing over HTTP.
package api

import (
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"metalprice/internal/metrics"
)

// RouterConfig holds configuration for the API router.
type RouterConfig struct {
	// MaxBodyBytes caps POST bodies. Zero means 1MB.
	MaxBodyBytes int64
	// Timeout bounds each request. Zero means 30s.
	Timeout time.Duration
	// Gatherer backs /metrics. Nil uses the default registry.
	Gatherer prometheus.Gatherer
	// Metrics records per-route request metrics (optional).
	Metrics *metrics.Metrics
}

// NewRouter creates the API router.
func NewRouter(h *Handler, logger zerolog.Logger, cfg RouterConfig) *chi.Mux {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 1 << 20
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(NewLoggingMiddleware(logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(cfg.Timeout))
	r.Use(middleware.Compress(5, "application/json"))
	r.Use(limitBody(cfg.MaxBodyBytes))
	r.Use(NewMetricsMiddleware(cfg.Metrics))

	r.Get("/healthz", h.Health)
	r.Handle("/metrics", metrics.Handler(cfg.Gatherer))

	r.Route("/api", func(r chi.Router) {
		r.Route("/prices", func(r chi.Router) {
			r.Get("/", h.GetStoredPrices)
			r.Post("/refresh", h.Refresh)
			r.Get("/{material}", h.GetMaterialPrice)
		})
		r.Post("/products/price", h.PriceProducts)
		r.Get("/catalog/prices", h.PriceCatalog)
	})

	return r
}
