package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/usagedeck/usagedeck/internal/aggregator"
	"github.com/usagedeck/usagedeck/internal/config"
	apperrors "github.com/usagedeck/usagedeck/internal/errors"
	"github.com/usagedeck/usagedeck/internal/history"
	"github.com/usagedeck/usagedeck/internal/logging"
	"github.com/usagedeck/usagedeck/internal/metrics"
	"github.com/usagedeck/usagedeck/internal/models"
	"github.com/usagedeck/usagedeck/internal/proxy"
)

type stubSource struct {
	configured bool
	accounts   []models.ProxyAccount
	listErr    error
	handler    func(ctx context.Context, call proxy.CallRequest) (*proxy.CallResult, error)
}

func (s *stubSource) Configured() bool {
	return s.configured
}

func (s *stubSource) ListAccounts(ctx context.Context) ([]models.ProxyAccount, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	return s.accounts, nil
}

func (s *stubSource) ExecuteCall(ctx context.Context, call proxy.CallRequest) (*proxy.CallResult, error) {
	if s.handler != nil {
		return s.handler(ctx, call)
	}
	return &proxy.CallResult{StatusCode: 200, Body: `{}`}, nil
}

func newTestServer(t *testing.T, source *stubSource, store *history.Store, apiCfg config.APIConfig) *Server {
	t.Helper()

	logger := logging.NewLogger(logging.WithOutput(io.Discard))
	m := metrics.NewMetrics("usagedeck_test")
	svc := aggregator.NewService(source, nil, nil, logger, m, aggregator.Options{CallTimeout: time.Second})
	assembler := history.NewAssembler(store)

	cfg := config.ServerConfig{Host: "127.0.0.1", HTTPPort: 0}
	return NewServer(cfg, apiCfg, svc, assembler, m, logger)
}

func newTestStore(t *testing.T) *history.Store {
	t.Helper()

	store, err := history.NewStore(filepath.Join(t.TempDir(), "snapshots.db"), logging.NewLogger(logging.WithOutput(io.Discard)))
	require.NoError(t, err)
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

func TestHealthEndpoint(t *testing.T) {
	server := newTestServer(t, &stubSource{configured: true}, nil, config.APIConfig{})

	w := httptest.NewRecorder()
	server.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, false, body["history_available"])
}

func TestUsageNotConfigured(t *testing.T) {
	server := newTestServer(t, &stubSource{configured: false}, nil, config.APIConfig{})

	w := httptest.NewRecorder()
	server.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/usage", nil))

	require.Equal(t, http.StatusServiceUnavailable, w.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "not_configured", body["status"])
}

func TestUsageProxyUnreachable(t *testing.T) {
	source := &stubSource{
		configured: true,
		listErr:    &apperrors.ErrProxyUnreachable{StatusCode: 500},
	}
	server := newTestServer(t, source, nil, config.APIConfig{})

	w := httptest.NewRecorder()
	server.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/usage", nil))

	require.Equal(t, http.StatusBadGateway, w.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "proxy_unreachable", body["status"])
}

func TestUsagePartialFailureIs200(t *testing.T) {
	source := &stubSource{
		configured: true,
		accounts: []models.ProxyAccount{
			{AuthIndex: "0", Provider: "claude", Email: "good@example.com"},
			{AuthIndex: "1", Provider: "claude", Email: "bad@example.com"},
		},
		handler: func(ctx context.Context, call proxy.CallRequest) (*proxy.CallResult, error) {
			if call.AuthIndex == "1" {
				return nil, context.DeadlineExceeded
			}
			return &proxy.CallResult{StatusCode: 200, Body: `{"five_hour":{"utilization":33}}`}, nil
		},
	}
	server := newTestServer(t, source, nil, config.APIConfig{})

	w := httptest.NewRecorder()
	server.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/usage", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Cache-Control"), "no-store")

	var report models.UsageReport
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
	require.Len(t, report.Accounts, 2)
	assert.Equal(t, models.StatusActive, report.Accounts[0].Status)
	assert.Equal(t, 33.0, report.Accounts[0].FiveHour.Utilization)
	assert.Equal(t, models.StatusError, report.Accounts[1].Status)
}

func TestHistoryUnavailableWithoutStore(t *testing.T) {
	server := newTestServer(t, &stubSource{configured: true}, nil, config.APIConfig{})

	w := httptest.NewRecorder()
	server.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/usage/history?account=a@example.com", nil))

	require.Equal(t, http.StatusServiceUnavailable, w.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "unavailable", body["status"])
}

func TestHistoryValidation(t *testing.T) {
	server := newTestServer(t, &stubSource{configured: true}, newTestStore(t), config.APIConfig{})

	w := httptest.NewRecorder()
	server.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/usage/history", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code, "missing account")

	w = httptest.NewRecorder()
	server.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/usage/history?account=a&metric=bogus", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code, "unknown metric")

	w = httptest.NewRecorder()
	server.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/usage/history?account=a&range=90d", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code, "unknown range")
}

func TestHistoryReturnsPoints(t *testing.T) {
	store := newTestStore(t)
	now := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, store.InsertBatch(context.Background(), []models.UsageSnapshot{
		{Account: "a@example.com", Metric: models.MetricFiveHour, Utilization: 44, Timestamp: now.Add(-time.Hour)},
	}))

	server := newTestServer(t, &stubSource{configured: true}, store, config.APIConfig{})

	w := httptest.NewRecorder()
	server.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/usage/history?account=a@example.com&metric=five_hour&range=24h", nil))

	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Status string               `json:"status"`
		Points []models.SeriesPoint `json:"points"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ok", body.Status)
	require.Len(t, body.Points, 1)
	assert.Equal(t, 44.0, body.Points[0].Value)
}

func TestHistoryEmptySeries(t *testing.T) {
	server := newTestServer(t, &stubSource{configured: true}, newTestStore(t), config.APIConfig{})

	w := httptest.NewRecorder()
	server.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/usage/history?account=nobody@example.com", nil))

	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "empty", body["status"])
}

func TestMergedHistory(t *testing.T) {
	store := newTestStore(t)
	now := time.Now().UTC().Truncate(time.Second)
	ts := now.Add(-time.Hour)
	require.NoError(t, store.InsertBatch(context.Background(), []models.UsageSnapshot{
		{Account: "a@example.com", Metric: models.MetricFiveHour, Utilization: 10, Timestamp: ts},
		{Account: "a@example.com", Metric: models.MetricSevenDay, Utilization: 20, Timestamp: ts},
	}))

	server := newTestServer(t, &stubSource{configured: true}, store, config.APIConfig{})

	w := httptest.NewRecorder()
	server.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/usage/history/merged?account=a@example.com&range=24h", nil))

	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Status string             `json:"status"`
		Rows   []models.MergedRow `json:"rows"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ok", body.Status)
	require.Len(t, body.Rows, 1)
	assert.Equal(t, 10.0, body.Rows[0].Values[models.MetricFiveHour])
	assert.Equal(t, 20.0, body.Rows[0].Values[models.MetricSevenDay])
	// The merged row zero-fills the metric that has no sample.
	assert.Equal(t, 0.0, body.Rows[0].Values[models.MetricSevenDaySonnet])
}

func TestAPIKeyAuthProtectsUsage(t *testing.T) {
	apiCfg := config.APIConfig{Auth: config.AuthConfig{APIKeys: []string{"sekret"}}}
	server := newTestServer(t, &stubSource{configured: true}, nil, apiCfg)

	w := httptest.NewRecorder()
	server.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/usage", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code, "missing key")

	req := httptest.NewRequest(http.MethodGet, "/api/usage", nil)
	req.Header.Set(DefaultAPIKeyHeader, "wrong")
	w = httptest.NewRecorder()
	server.Router().ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code, "invalid key")

	req = httptest.NewRequest(http.MethodGet, "/api/usage", nil)
	req.Header.Set(DefaultAPIKeyHeader, "sekret")
	w = httptest.NewRecorder()
	server.Router().ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code, "valid key")

	// Health and metrics stay open.
	w = httptest.NewRecorder()
	server.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	server.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}
