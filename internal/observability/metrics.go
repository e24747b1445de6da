// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Snapshot load metrics
	ObjectsLoaded    *prometheus.CounterVec
	SnapshotLoadTime prometheus.Histogram

	// Book build metrics
	BuildsTotal     *prometheus.CounterVec
	BuildDuration   *prometheus.HistogramVec
	BookLevels      *prometheus.GaugeVec
	BookCheckpoint  *prometheus.GaugeVec
	QueriesExecuted prometheus.Counter

	// Session metrics
	SessionsActive  prometheus.Gauge
	SessionsCreated prometheus.Counter
	SessionsExpired prometheus.Counter
	FaucetDispensed *prometheus.CounterVec

	// Swap metrics
	SwapsExecuted *prometheus.CounterVec
	QuotesServed  *prometheus.CounterVec
	SwapLatency   prometheus.Histogram

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "deepbook_sandbox"
	}

	return &Metrics{
		ObjectsLoaded: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "snapshot",
			Name:      "objects_loaded_total",
			Help:      "Total number of ledger objects loaded by market",
		}, []string{"market"}),
		SnapshotLoadTime: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "snapshot",
			Name:      "load_duration_seconds",
			Help:      "Snapshot load duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}),

		BuildsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "book",
			Name:      "builds_total",
			Help:      "Total number of book builds by market and status",
		}, []string{"market", "status"}),
		BuildDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "book",
			Name:      "build_duration_seconds",
			Help:      "Book build duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
		}, []string{"market"}),
		BookLevels: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "book",
			Name:      "levels",
			Help:      "Number of aggregated price levels by market and side",
		}, []string{"market", "side"}),
		BookCheckpoint: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "book",
			Name:      "checkpoint",
			Help:      "Checkpoint of the served snapshot by market",
		}, []string{"market"}),
		QueriesExecuted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "book",
			Name:      "queries_executed_total",
			Help:      "Total number of order queries executed",
		}),

		SessionsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "active",
			Help:      "Number of live sessions",
		}),
		SessionsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "created_total",
			Help:      "Total number of sessions created",
		}),
		SessionsExpired: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "expired_total",
			Help:      "Total number of sessions reclaimed after expiry",
		}),
		FaucetDispensed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "faucet_dispensed_total",
			Help:      "Total faucet credits by token",
		}, []string{"token"}),

		SwapsExecuted: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "swap",
			Name:      "executed_total",
			Help:      "Total number of swaps executed by route and status",
		}, []string{"route", "status"}),
		QuotesServed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "swap",
			Name:      "quotes_total",
			Help:      "Total number of quotes served by route",
		}, []string{"route"}),
		SwapLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "swap",
			Name:      "latency_seconds",
			Help:      "Swap execution latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}),

		DBQueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordBuild records one build outcome for a market.
func RecordBuild(market, status string, seconds float64) {
	DefaultMetrics.BuildsTotal.WithLabelValues(market, status).Inc()
	DefaultMetrics.BuildDuration.WithLabelValues(market).Observe(seconds)
}

// RecordSwap records one swap execution outcome.
func RecordSwap(route, status string) {
	DefaultMetrics.SwapsExecuted.WithLabelValues(route, status).Inc()
}

// RecordQuote records one served quote.
func RecordQuote(route string) {
	DefaultMetrics.QuotesServed.WithLabelValues(route).Inc()
}
