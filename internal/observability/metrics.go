// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "solana_token_console"

// Metrics holds all Prometheus metrics for the application.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	// RPC metrics
	RPCCallLatency *prometheus.HistogramVec
	WSMessages     *prometheus.CounterVec

	// Transaction metrics
	TransactionsTotal   *prometheus.CounterVec
	ConfirmationLatency *prometheus.HistogramVec

	// Directory metrics
	DirectoryRefreshes      *prometheus.CounterVec
	DirectoryItems          *prometheus.CounterVec
	DirectoryRefreshLatency prometheus.Histogram
	DirectoryStaleResults   prometheus.Counter

	// Session metrics
	WalletConnected prometheus.Gauge
	AuthGeneration  prometheus.Gauge

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec

	// Health metrics
	LastSuccessfulRefresh prometheus.Gauge
	StartTime             prometheus.Gauge
}

// NewMetrics creates a Metrics instance registered on its own registry,
// together with the Go runtime and process collectors.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = DefaultNamespace
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	m := &Metrics{
		registry: reg,

		RPCCallLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "solana",
			Name:      "rpc_call_latency_seconds",
			Help:      "Solana RPC call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		WSMessages: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "solana",
			Name:      "ws_messages_total",
			Help:      "WebSocket messages received by kind",
		}, []string{"kind"}),

		TransactionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "mutation",
			Name:      "transactions_total",
			Help:      "Token transactions by kind and outcome",
		}, []string{"kind", "status"}),
		ConfirmationLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "mutation",
			Name:      "confirmation_latency_seconds",
			Help:      "Time from submission to confirmation in seconds",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 90},
		}, []string{"kind"}),

		DirectoryRefreshes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "directory",
			Name:      "refreshes_total",
			Help:      "Directory refresh cycles by outcome",
		}, []string{"status"}),
		DirectoryItems: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "directory",
			Name:      "items_total",
			Help:      "Per-mint directory lookups by outcome",
		}, []string{"status"}),
		DirectoryRefreshLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "directory",
			Name:      "refresh_duration_seconds",
			Help:      "Directory refresh duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
		DirectoryStaleResults: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "directory",
			Name:      "stale_results_total",
			Help:      "Listings discarded because authentication changed mid-fetch",
		}),

		WalletConnected: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "wallet_connected",
			Help:      "1 while a wallet is connected",
		}),
		AuthGeneration: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "auth_generation",
			Help:      "Current authentication state generation",
		}),

		DBQueryDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),

		LastSuccessfulRefresh: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_refresh_timestamp",
			Help:      "Unix timestamp of last complete directory refresh",
		}),
		StartTime: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "start_time_seconds",
			Help:      "Unix timestamp of process start",
		}),
	}
	m.StartTime.SetToCurrentTime()
	return m
}

// Handler returns an HTTP handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// RecordRPCLatency records RPC call latency.
func (m *Metrics) RecordRPCLatency(method string, d time.Duration) {
	if m == nil {
		return
	}
	m.RPCCallLatency.WithLabelValues(method).Observe(d.Seconds())
}

// RecordWSMessage counts a WebSocket message of the given kind.
func (m *Metrics) RecordWSMessage(kind string) {
	if m == nil {
		return
	}
	m.WSMessages.WithLabelValues(kind).Inc()
}

// RecordTransaction records the outcome of a create or update transaction.
// confirmLatency is ignored when zero.
func (m *Metrics) RecordTransaction(kind, status string, confirmLatency time.Duration) {
	if m == nil {
		return
	}
	m.TransactionsTotal.WithLabelValues(kind, status).Inc()
	if confirmLatency > 0 {
		m.ConfirmationLatency.WithLabelValues(kind).Observe(confirmLatency.Seconds())
	}
}

// RecordRefresh records a directory refresh cycle and its per-item counts.
func (m *Metrics) RecordRefresh(status string, ok, failed int, d time.Duration) {
	if m == nil {
		return
	}
	m.DirectoryRefreshes.WithLabelValues(status).Inc()
	m.DirectoryItems.WithLabelValues("ok").Add(float64(ok))
	m.DirectoryItems.WithLabelValues("failed").Add(float64(failed))
	m.DirectoryRefreshLatency.Observe(d.Seconds())
	if status == "ok" {
		m.LastSuccessfulRefresh.SetToCurrentTime()
	}
}

// RecordStaleResult counts a listing dropped for a superseded generation.
func (m *Metrics) RecordStaleResult() {
	if m == nil {
		return
	}
	m.DirectoryStaleResults.Inc()
}

// SetSession publishes the current authentication snapshot.
func (m *Metrics) SetSession(connected bool, generation uint64) {
	if m == nil {
		return
	}
	if connected {
		m.WalletConnected.Set(1)
	} else {
		m.WalletConnected.Set(0)
	}
	m.AuthGeneration.Set(float64(generation))
}

// RecordDBQuery records database query metrics.
func (m *Metrics) RecordDBQuery(database, operation string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.DBQueryDuration.WithLabelValues(database, operation).Observe(d.Seconds())
	if err != nil {
		m.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}
