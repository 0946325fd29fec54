package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application
type Metrics struct {
	// RequestLatency tracks HTTP request latency by endpoint and method
	RequestLatency *prometheus.HistogramVec
	// HTTPRequestsTotal total HTTP requests
	HTTPRequestsTotal *prometheus.CounterVec
	// HTTPRequestsInFlight current HTTP requests being processed
	HTTPRequestsInFlight prometheus.Gauge
	// AggregationCycles counts aggregation cycles by outcome
	AggregationCycles *prometheus.CounterVec
	// ProviderFetches counts per-account provider fetches by provider and outcome
	ProviderFetches *prometheus.CounterVec
	// AccountUtilization tracks the latest utilization percentage per account/metric
	AccountUtilization *prometheus.GaugeVec
	// SnapshotWrites counts snapshot batch writes by outcome
	SnapshotWrites *prometheus.CounterVec
	// SnapshotsPruned counts snapshot rows removed by retention pruning
	SnapshotsPruned prometheus.Counter
	// AlertsSent counts threshold alerts by channel and outcome
	AlertsSent *prometheus.CounterVec
	// registry is the custom registry for this metrics instance
	registry *prometheus.Registry
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(namespace string) *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		RequestLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "request_latency_seconds",
				Help:      "HTTP request latency in seconds",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
			[]string{"endpoint", "method", "status"},
		),
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"endpoint", "method", "status"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "http_requests_in_flight",
				Help:      "Current number of HTTP requests being processed",
			},
		),
		AggregationCycles: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "aggregation_cycles_total",
				Help:      "Total number of usage aggregation cycles",
			},
			[]string{"outcome"},
		),
		ProviderFetches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "provider_fetches_total",
				Help:      "Total number of per-account provider usage fetches",
			},
			[]string{"provider", "outcome"},
		),
		AccountUtilization: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "account_utilization_percent",
				Help:      "Latest utilization percentage per account and metric",
			},
			[]string{"account", "metric"},
		),
		SnapshotWrites: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "snapshot_writes_total",
				Help:      "Total number of snapshot batch writes",
			},
			[]string{"outcome"},
		),
		SnapshotsPruned: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "snapshots_pruned_total",
				Help:      "Total number of snapshot rows removed by retention pruning",
			},
		),
		AlertsSent: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "alerts_sent_total",
				Help:      "Total number of threshold alerts sent",
			},
			[]string{"channel", "outcome"},
		),
	}

	registry.MustRegister(
		m.RequestLatency,
		m.HTTPRequestsTotal,
		m.HTTPRequestsInFlight,
		m.AggregationCycles,
		m.ProviderFetches,
		m.AccountUtilization,
		m.SnapshotWrites,
		m.SnapshotsPruned,
		m.AlertsSent,
	)

	return m
}

// Handler returns an HTTP handler for the /metrics endpoint
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordRequestLatency records HTTP request latency
func (m *Metrics) RecordRequestLatency(endpoint, method, status string, seconds float64) {
	m.RequestLatency.WithLabelValues(endpoint, method, status).Observe(seconds)
}

// RecordHTTPRequest increments the HTTP request counter
func (m *Metrics) RecordHTTPRequest(endpoint, method, status string) {
	m.HTTPRequestsTotal.WithLabelValues(endpoint, method, status).Inc()
}

// IncHTTPRequestsInFlight increments the in-flight gauge
func (m *Metrics) IncHTTPRequestsInFlight() {
	m.HTTPRequestsInFlight.Inc()
}

// DecHTTPRequestsInFlight decrements the in-flight gauge
func (m *Metrics) DecHTTPRequestsInFlight() {
	m.HTTPRequestsInFlight.Dec()
}

// RecordAggregationCycle records one aggregation cycle outcome
func (m *Metrics) RecordAggregationCycle(outcome string) {
	m.AggregationCycles.WithLabelValues(outcome).Inc()
}

// RecordProviderFetch records one per-account fetch outcome
func (m *Metrics) RecordProviderFetch(provider, outcome string) {
	m.ProviderFetches.WithLabelValues(provider, outcome).Inc()
}

// RecordAccountUtilization sets the latest utilization gauge
func (m *Metrics) RecordAccountUtilization(account, metric string, value float64) {
	m.AccountUtilization.WithLabelValues(account, metric).Set(value)
}

// RecordSnapshotWrite records one snapshot batch write outcome
func (m *Metrics) RecordSnapshotWrite(outcome string) {
	m.SnapshotWrites.WithLabelValues(outcome).Inc()
}

// RecordSnapshotsPruned adds pruned row counts
func (m *Metrics) RecordSnapshotsPruned(rows int64) {
	if rows > 0 {
		m.SnapshotsPruned.Add(float64(rows))
	}
}

// RecordAlert records one alert delivery outcome
func (m *Metrics) RecordAlert(channel, outcome string) {
	m.AlertsSent.WithLabelValues(channel, outcome).Inc()
}
