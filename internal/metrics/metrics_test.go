package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/harun/toolhub/pkg/toolexecutor"
)

func TestNewMetrics(t *testing.T) {
	m := NewMetrics()

	if m == nil {
		t.Fatal("NewMetrics returned nil")
	}
	if m.registry == nil {
		t.Error("Registry is nil")
	}
	if m.ToolExecutionsTotal == nil || m.ToolExecutionDuration == nil || m.ToolExecutionErrorsTotal == nil {
		t.Error("tool metrics not initialized")
	}
	if m.CacheRefreshesTotal == nil || m.ToolsRegistered == nil {
		t.Error("registry metrics not initialized")
	}
	if m.HTTPRequestsTotal == nil || m.RateLimitedTotal == nil || m.GatewayClients == nil {
		t.Error("transport metrics not initialized")
	}
	if m.RunLogsPrunedTotal == nil {
		t.Error("RunLogsPrunedTotal is nil")
	}
}

func TestMetricsHandler(t *testing.T) {
	m := NewMetrics()

	m.ToolExecutionsTotal.WithLabelValues("test", "success").Inc()
	m.ToolExecutionDuration.WithLabelValues("test").Observe(0.5)
	m.ToolExecutionErrorsTotal.WithLabelValues("test", "execution_error").Inc()
	m.HTTPRequestsTotal.WithLabelValues("/mcp/run_tool", "200").Inc()

	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}

	body := w.Body.String()
	expectedMetrics := []string{
		"tool_executions_total",
		"tool_execution_duration_seconds",
		"tool_execution_errors_total",
		"registry_cache_refreshes_total",
		"tools_registered",
		"http_requests_total",
		"http_rate_limited_total",
		"gateway_clients",
		"run_logs_pruned_total",
	}
	for _, metric := range expectedMetrics {
		if !strings.Contains(body, metric) {
			t.Errorf("Metrics output missing: %s", metric)
		}
	}
}

func TestMetricsRegistry(t *testing.T) {
	m := NewMetrics()

	m.ToolExecutionsTotal.WithLabelValues("test", "success").Inc()
	m.ToolExecutionDuration.WithLabelValues("test").Observe(0.5)
	m.ToolExecutionErrorsTotal.WithLabelValues("test", "error").Inc()
	m.HTTPRequestsTotal.WithLabelValues("/health", "200").Inc()

	metricFamilies, err := m.Registry().Gather()
	if err != nil {
		t.Fatalf("Failed to gather metrics: %v", err)
	}

	metricNames := make(map[string]bool)
	for _, mf := range metricFamilies {
		metricNames[*mf.Name] = true
	}

	expectedCount := 9
	if len(metricNames) != expectedCount {
		t.Errorf("Expected %d metrics, got %d", expectedCount, len(metricNames))
	}
}

func TestRecordRunRecord(t *testing.T) {
	m := NewMetrics()
	ctx := context.Background()

	var _ toolexecutor.Auditor = m

	if err := m.Record(ctx, &toolexecutor.RunRecord{ToolName: "echo", ExecutionTimeMS: 12}); err != nil {
		t.Fatalf("Record returned %v", err)
	}
	if err := m.Record(ctx, &toolexecutor.RunRecord{ToolName: "echo", ExecutionTimeMS: 3}); err != nil {
		t.Fatalf("Record returned %v", err)
	}
	if err := m.Record(ctx, &toolexecutor.RunRecord{
		ToolName:  "echo",
		IsError:   true,
		ErrorType: "invalid_input",
	}); err != nil {
		t.Fatalf("Record returned %v", err)
	}

	if got := testutil.ToFloat64(m.ToolExecutionsTotal.WithLabelValues("echo", "success")); got != 2 {
		t.Errorf("Expected 2 successes, got %f", got)
	}
	if got := testutil.ToFloat64(m.ToolExecutionsTotal.WithLabelValues("echo", "failure")); got != 1 {
		t.Errorf("Expected 1 failure, got %f", got)
	}
	if got := testutil.ToFloat64(m.ToolExecutionErrorsTotal.WithLabelValues("echo", "invalid_input")); got != 1 {
		t.Errorf("Expected 1 invalid_input error, got %f", got)
	}
	if got := testutil.CollectAndCount(m.ToolExecutionDuration); got != 1 {
		t.Errorf("Expected 1 duration series, got %d", got)
	}
}

func TestInvalidateCacheCountsRefreshes(t *testing.T) {
	m := NewMetrics()
	m.InvalidateCache()
	m.InvalidateCache()

	if got := testutil.ToFloat64(m.CacheRefreshesTotal); got != 2 {
		t.Errorf("Expected 2 refreshes, got %f", got)
	}
}

func TestMetricsIsolation(t *testing.T) {
	m1 := NewMetrics()
	m2 := NewMetrics()

	m1.RateLimitedTotal.Inc()
	m1.RateLimitedTotal.Inc()
	m2.RateLimitedTotal.Inc()

	if got := testutil.ToFloat64(m1.RateLimitedTotal); got != 2 {
		t.Errorf("m1: Expected value 2, got %f", got)
	}
	if got := testutil.ToFloat64(m2.RateLimitedTotal); got != 1 {
		t.Errorf("m2: Expected value 1, got %f", got)
	}
}

func TestObserveRequest(t *testing.T) {
	m := NewMetrics()
	m.ObserveRequest("/mcp/run_tool", 200)
	m.ObserveRequest("/mcp/run_tool", 200)
	m.ObserveRequest("/mcp/run_tool", 400)
	m.ObserveRateLimited()

	if got := testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("/mcp/run_tool", "200")); got != 2 {
		t.Errorf("Expected 2 OK requests, got %f", got)
	}
	if got := testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("/mcp/run_tool", "400")); got != 1 {
		t.Errorf("Expected 1 bad request, got %f", got)
	}
	if got := testutil.ToFloat64(m.RateLimitedTotal); got != 1 {
		t.Errorf("Expected 1 rate limited request, got %f", got)
	}
}

func TestSetGatewayClients(t *testing.T) {
	m := NewMetrics()
	m.SetGatewayClients(3)
	m.SetGatewayClients(1)

	if got := testutil.ToFloat64(m.GatewayClients); got != 1 {
		t.Errorf("Expected 1 gateway client, got %f", got)
	}
}
