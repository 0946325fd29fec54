package metrics

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	dto "github.com/prometheus/client_model/go"
	"github.com/usagedeck/usagedeck/internal/logging"
)

func gatherFamily(t *testing.T, m *Metrics, name string) *dto.MetricFamily {
	t.Helper()

	families, err := m.registry.Gather()
	if err != nil {
		t.Fatalf("gather failed: %v", err)
	}
	for _, family := range families {
		if family.GetName() == name {
			return family
		}
	}
	return nil
}

func counterValue(t *testing.T, m *Metrics, name string, labels map[string]string) float64 {
	t.Helper()

	family := gatherFamily(t, m, name)
	if family == nil {
		return 0
	}

outer:
	for _, metric := range family.GetMetric() {
		for _, pair := range metric.GetLabel() {
			if want, ok := labels[pair.GetName()]; ok && want != pair.GetValue() {
				continue outer
			}
		}
		return metric.GetCounter().GetValue()
	}
	return 0
}

func TestRecordAggregationCycle(t *testing.T) {
	m := NewMetrics("test")

	m.RecordAggregationCycle("ok")
	m.RecordAggregationCycle("ok")
	m.RecordAggregationCycle("proxy_error")

	if got := counterValue(t, m, "test_aggregation_cycles_total", map[string]string{"outcome": "ok"}); got != 2 {
		t.Errorf("ok cycles = %v, want 2", got)
	}
	if got := counterValue(t, m, "test_aggregation_cycles_total", map[string]string{"outcome": "proxy_error"}); got != 1 {
		t.Errorf("proxy_error cycles = %v, want 1", got)
	}
}

func TestRecordProviderFetch(t *testing.T) {
	m := NewMetrics("test")

	m.RecordProviderFetch("claude", "ok")
	m.RecordProviderFetch("claude", "error")
	m.RecordProviderFetch("gemini-cli", "ok")

	if got := counterValue(t, m, "test_provider_fetches_total", map[string]string{"provider": "claude", "outcome": "ok"}); got != 1 {
		t.Errorf("claude/ok = %v", got)
	}
	if got := counterValue(t, m, "test_provider_fetches_total", map[string]string{"provider": "gemini-cli", "outcome": "ok"}); got != 1 {
		t.Errorf("gemini-cli/ok = %v", got)
	}
}

func TestRecordAccountUtilization(t *testing.T) {
	m := NewMetrics("test")

	m.RecordAccountUtilization("a@example.com", "five_hour", 42.5)
	m.RecordAccountUtilization("a@example.com", "five_hour", 66)

	family := gatherFamily(t, m, "test_account_utilization_percent")
	if family == nil {
		t.Fatal("gauge family not registered")
	}
	if got := family.GetMetric()[0].GetGauge().GetValue(); got != 66 {
		t.Errorf("gauge = %v, want latest value 66", got)
	}
}

func TestRecordSnapshotsPruned(t *testing.T) {
	m := NewMetrics("test")

	m.RecordSnapshotsPruned(3)
	m.RecordSnapshotsPruned(0)
	m.RecordSnapshotsPruned(-1)

	family := gatherFamily(t, m, "test_snapshots_pruned_total")
	if family == nil {
		t.Fatal("counter family not registered")
	}
	if got := family.GetMetric()[0].GetCounter().GetValue(); got != 3 {
		t.Errorf("pruned total = %v, want 3 (non-positive adds ignored)", got)
	}
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := NewMetrics("test")
	m.RecordAlert("telegram", "ok")

	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("metrics endpoint returned %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "test_alerts_sent_total") {
		t.Error("exposition should include the alerts counter")
	}
}

func TestMiddlewareRecordsRequests(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := NewMetrics("test")
	logger := logging.NewLogger(logging.WithOutput(io.Discard))

	router := gin.New()
	router.Use(Middleware(m, logger))
	router.GET("/api/usage", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/usage", nil))
	}

	labels := map[string]string{"endpoint": "/api/usage", "method": "GET", "status": "200"}
	if got := counterValue(t, m, "test_http_requests_total", labels); got != 3 {
		t.Errorf("request counter = %v, want 3", got)
	}

	latency := gatherFamily(t, m, "test_request_latency_seconds")
	if latency == nil {
		t.Fatal("latency family not registered")
	}
	if got := latency.GetMetric()[0].GetHistogram().GetSampleCount(); got != 3 {
		t.Errorf("latency sample count = %v, want 3", got)
	}

	// In-flight returns to zero once requests finish.
	inflight := gatherFamily(t, m, "test_http_requests_in_flight")
	if got := inflight.GetMetric()[0].GetGauge().GetValue(); got != 0 {
		t.Errorf("in-flight gauge = %v, want 0", got)
	}
}

func TestMiddlewareLogsWithCorrelationID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := NewMetrics("test")

	var buf bytes.Buffer
	logger := logging.NewLogger(logging.WithOutput(&buf))

	var handlerID string
	router := gin.New()
	router.Use(Middleware(m, logger))
	router.GET("/api/usage", func(c *gin.Context) {
		handlerID = logging.GetCorrelationID(c.Request.Context())
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/api/usage", nil)
	req.Header.Set("X-Correlation-ID", "req-42")
	router.ServeHTTP(httptest.NewRecorder(), req)

	if handlerID != "req-42" {
		t.Errorf("handler context correlation ID = %q, want caller-supplied req-42", handlerID)
	}

	var entry map[string]interface{}
	if err := json.Unmarshal([]byte(strings.TrimSpace(buf.String())), &entry); err != nil {
		t.Fatalf("completion line is not valid JSON: %v", err)
	}
	if entry["message"] != "request completed" {
		t.Errorf("message = %v", entry["message"])
	}
	if entry["correlation_id"] != "req-42" {
		t.Errorf("correlation_id = %v", entry["correlation_id"])
	}
	fields, _ := entry["fields"].(map[string]interface{})
	if fields["status"] != float64(http.StatusOK) || fields["method"] != "GET" {
		t.Errorf("fields = %v", fields)
	}
}
