// Package metrics provides Prometheus metrics for the price service.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "metalprice"

// Metrics holds all Prometheus metrics. A nil *Metrics is valid and records
// nothing, so components can be built without a registry in tests.
type Metrics struct {
	// Spot price resolution
	ResolutionsTotal *prometheus.CounterVec
	APIRequestsTotal *prometheus.CounterVec
	StaleReadsTotal  *prometheus.CounterVec

	// Scheduled refresh
	RefreshTotal       *prometheus.CounterVec
	RefreshDuration    prometheus.Histogram
	LastRefreshSuccess prometheus.Gauge

	// Batch repricing
	BatchProductsTotal *prometheus.CounterVec

	// HTTP
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// NewWithRegistry creates the metrics and registers them with reg.
func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ResolutionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "price_resolutions_total",
			Help:      "Spot price resolutions by metal and source tier.",
		}, []string{"metal", "tier"}),
		APIRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "api_requests_total",
			Help:      "Calls to the spot price API by outcome.",
		}, []string{"outcome"}),
		StaleReadsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stale_reads_total",
			Help:      "Prices served past their validity window.",
		}, []string{"source"}),
		RefreshTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refresh_total",
			Help:      "Scheduled and manual refresh runs by outcome.",
		}, []string{"source", "outcome"}),
		RefreshDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "refresh_duration_seconds",
			Help:      "Refresh run duration in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		}),
		LastRefreshSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_refresh_success_timestamp_seconds",
			Help:      "Unix time of the last successful refresh.",
		}),
		BatchProductsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batch_products_total",
			Help:      "Products priced by batch runs, by tier.",
		}, []string{"tier"}),
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"method", "route", "status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}

	reg.MustRegister(
		m.ResolutionsTotal,
		m.APIRequestsTotal,
		m.StaleReadsTotal,
		m.RefreshTotal,
		m.RefreshDuration,
		m.LastRefreshSuccess,
		m.BatchProductsTotal,
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
	)
	return m
}

// New registers with the default Prometheus registerer.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// Handler returns the Prometheus HTTP handler for g.
func Handler(g prometheus.Gatherer) http.Handler {
	if g == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

func (m *Metrics) RecordResolution(metal, tier string) {
	if m == nil {
		return
	}
	m.ResolutionsTotal.WithLabelValues(metal, tier).Inc()
}

func (m *Metrics) RecordAPIRequest(outcome string) {
	if m == nil {
		return
	}
	m.APIRequestsTotal.WithLabelValues(outcome).Inc()
}

// RecordStaleRead counts a stale value served from source ("store", "cache").
func (m *Metrics) RecordStaleRead(source string) {
	if m == nil {
		return
	}
	m.StaleReadsTotal.WithLabelValues(source).Inc()
}

// RecordRefresh records a refresh run. outcome is "success", "fallback" or "error".
func (m *Metrics) RecordRefresh(source, outcome string, seconds float64, unix int64) {
	if m == nil {
		return
	}
	m.RefreshTotal.WithLabelValues(source, outcome).Inc()
	m.RefreshDuration.Observe(seconds)
	if outcome == "success" {
		m.LastRefreshSuccess.Set(float64(unix))
	}
}

func (m *Metrics) RecordBatchProduct(tier string) {
	if m == nil {
		return
	}
	m.BatchProductsTotal.WithLabelValues(tier).Inc()
}

// RecordHTTPRequest records an HTTP request metric.
func (m *Metrics) RecordHTTPRequest(method, route, status string, duration float64) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, route, status).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(duration)
}
