// Package observability holds the Prometheus collectors exported on /metrics.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics. A nil *Metrics is valid and records nothing.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Event store metrics
	StoreQueryDuration *prometheus.HistogramVec
	StoreErrorsTotal   *prometheus.CounterVec

	// Insights metrics
	InsightsOperationsTotal   *prometheus.CounterVec
	InsightsOperationDuration *prometheus.HistogramVec
	SessionsReconstructed     prometheus.Histogram

	// Identified users projection refresh
	ProjectionRefreshTotal *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "beacon_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "beacon_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		StoreQueryDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "beacon_store_query_duration_seconds",
				Help:    "Event store query duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"query", "environment"},
		),
		StoreErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "beacon_store_errors_total",
				Help: "Total number of failed event store queries",
			},
			[]string{"query", "environment"},
		),
		InsightsOperationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "beacon_insights_operations_total",
				Help: "Total number of insights operations by outcome",
			},
			[]string{"operation", "status"},
		),
		InsightsOperationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "beacon_insights_operation_duration_seconds",
				Help:    "Insights operation duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		SessionsReconstructed: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "beacon_sessions_reconstructed",
				Help:    "Number of sessions rebuilt per sessions request",
				Buckets: prometheus.ExponentialBuckets(1, 2, 10),
			},
		),
		ProjectionRefreshTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "beacon_identified_users_refresh_total",
				Help: "Identified users projection refresh attempts by outcome",
			},
			[]string{"status"},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.StoreQueryDuration,
		m.StoreErrorsTotal,
		m.InsightsOperationsTotal,
		m.InsightsOperationDuration,
		m.SessionsReconstructed,
		m.ProjectionRefreshTotal,
	)

	return m
}

// ObserveQuery records the duration and outcome of one store query.
func (m *Metrics) ObserveQuery(query, environment string, start time.Time, err error) {
	if m == nil {
		return
	}
	m.StoreQueryDuration.WithLabelValues(query, environment).Observe(time.Since(start).Seconds())
	if err != nil {
		m.StoreErrorsTotal.WithLabelValues(query, environment).Inc()
	}
}

// ObserveOperation records one insights operation.
func (m *Metrics) ObserveOperation(operation string, start time.Time, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.InsightsOperationsTotal.WithLabelValues(operation, status).Inc()
	m.InsightsOperationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

// ObserveSessions records how many sessions one request produced.
func (m *Metrics) ObserveSessions(n int) {
	if m == nil {
		return
	}
	m.SessionsReconstructed.Observe(float64(n))
}

// ObserveRefresh records one projection refresh attempt.
func (m *Metrics) ObserveRefresh(err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.ProjectionRefreshTotal.WithLabelValues(status).Inc()
}

// ObserveHTTP records one served HTTP request.
func (m *Metrics) ObserveHTTP(method, path, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// Handler returns the /metrics handler for registry.
func Handler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
