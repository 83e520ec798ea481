package metrics

import (
	"context"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/harun/toolhub/pkg/toolexecutor"
)

// Metrics holds all Prometheus metrics for the application
type Metrics struct {
	registry *prometheus.Registry

	// Tool metrics
	ToolExecutionsTotal      *prometheus.CounterVec
	ToolExecutionDuration    *prometheus.HistogramVec
	ToolExecutionErrorsTotal *prometheus.CounterVec

	// Registry metrics
	CacheRefreshesTotal prometheus.Counter
	ToolsRegistered     prometheus.Gauge

	// Transport metrics
	HTTPRequestsTotal *prometheus.CounterVec
	RateLimitedTotal  prometheus.Counter
	GatewayClients    prometheus.Gauge

	// Maintenance metrics
	RunLogsPrunedTotal prometheus.Counter
}

// NewMetrics creates and registers all metrics
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,

		// Tool metrics
		ToolExecutionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tool_executions_total",
				Help: "Total number of tool executions",
			},
			[]string{"tool_name", "status"},
		),
		ToolExecutionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tool_execution_duration_seconds",
				Help:    "Duration of tool executions in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"tool_name"},
		),
		ToolExecutionErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tool_execution_errors_total",
				Help: "Total number of tool execution errors",
			},
			[]string{"tool_name", "error_type"},
		),

		// Registry metrics
		CacheRefreshesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "registry_cache_refreshes_total",
				Help: "Total number of registry cache refreshes",
			},
		),
		ToolsRegistered: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "tools_registered",
				Help: "Number of active tools in the registry",
			},
		),

		// Transport metrics
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"route", "code"},
		),
		RateLimitedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "http_rate_limited_total",
				Help: "Total number of requests rejected by the rate limiter",
			},
		),
		GatewayClients: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "gateway_clients",
				Help: "Number of connected websocket clients",
			},
		),

		// Maintenance metrics
		RunLogsPrunedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "run_logs_pruned_total",
				Help: "Total number of run log rows removed by retention",
			},
		),
	}

	// Register all metrics
	m.registerMetrics()

	return m
}

// registerMetrics registers all metrics with the registry
func (m *Metrics) registerMetrics() {
	m.registry.MustRegister(m.ToolExecutionsTotal)
	m.registry.MustRegister(m.ToolExecutionDuration)
	m.registry.MustRegister(m.ToolExecutionErrorsTotal)

	m.registry.MustRegister(m.CacheRefreshesTotal)
	m.registry.MustRegister(m.ToolsRegistered)

	m.registry.MustRegister(m.HTTPRequestsTotal)
	m.registry.MustRegister(m.RateLimitedTotal)
	m.registry.MustRegister(m.GatewayClients)

	m.registry.MustRegister(m.RunLogsPrunedTotal)
}

// Record implements toolexecutor.Auditor so every invocation is counted
func (m *Metrics) Record(_ context.Context, rec *toolexecutor.RunRecord) error {
	m.ToolExecutionsTotal.WithLabelValues(rec.ToolName, rec.Status()).Inc()
	m.ToolExecutionDuration.WithLabelValues(rec.ToolName).Observe(rec.ExecutionTimeMS / 1000)
	if rec.IsError {
		m.ToolExecutionErrorsTotal.WithLabelValues(rec.ToolName, rec.ErrorType).Inc()
	}
	return nil
}

// InvalidateCache counts a registry refresh. It lets Metrics sit in the
// registry's invalidator list.
func (m *Metrics) InvalidateCache() {
	m.CacheRefreshesTotal.Inc()
}

// ObserveRequest counts one HTTP request by route pattern and status code
func (m *Metrics) ObserveRequest(route string, code int) {
	m.HTTPRequestsTotal.WithLabelValues(route, strconv.Itoa(code)).Inc()
}

// ObserveRateLimited counts one rejected request
func (m *Metrics) ObserveRateLimited() {
	m.RateLimitedTotal.Inc()
}

// SetGatewayClients records the number of connected gateway clients
func (m *Metrics) SetGatewayClients(n int) {
	m.GatewayClients.Set(float64(n))
}

// Handler returns an HTTP handler for the metrics endpoint
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// Registry returns the Prometheus registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
