// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"solana-sniper/internal/domain"
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "solana_sniper"

// Skip reasons for DispatchSkipped.
const (
	SkipStopped    = "stopped"
	SkipNoIdentity = "no_identity"
	SkipZeroAmount = "zero_amount"
)

// Metrics holds all Prometheus metrics for the engine.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Discovery metrics
	CandidatesDiscovered *prometheus.CounterVec
	FeedDropped          prometheus.Counter

	// Dispatch metrics
	DispatchOutcomes *prometheus.CounterVec
	DispatchSkipped  *prometheus.CounterVec
	DispatchLatency  prometheus.Histogram

	// Balance metrics
	Balance                prometheus.Gauge
	BalanceRefreshFailures *prometheus.CounterVec

	// Engine metrics
	EngineRunning   prometheus.Gauge
	EventLogEntries *prometheus.CounterVec

	// Latency metrics
	RPCCallLatency *prometheus.HistogramVec
}

// NewMetrics registers all metrics with reg.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	factory := promauto.With(reg)

	return &Metrics{
		CandidatesDiscovered: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "discovery",
			Name:      "candidates_total",
			Help:      "Candidates surfaced by the discovery loop",
		}, []string{"source"}),
		FeedDropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "discovery",
			Name:      "feed_dropped_total",
			Help:      "Launches evicted from the feed buffer before a tick consumed them",
		}),

		DispatchOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "outcomes_total",
			Help:      "Trade attempts by outcome",
		}, []string{"outcome"}),
		DispatchSkipped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "skipped_total",
			Help:      "Candidates not executed, by reason",
		}, []string{"reason"}),
		DispatchLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "submit_latency_seconds",
			Help:      "Time from submission to chain reply",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}),

		Balance: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "balance",
			Name:      "sol",
			Help:      "Last known balance of the active identity in SOL",
		}),
		BalanceRefreshFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "balance",
			Name:      "refresh_failures_total",
			Help:      "Failed balance refreshes by error kind",
		}, []string{"kind"}),

		EngineRunning: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "running",
			Help:      "1 while the engine is running",
		}),
		EventLogEntries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "log_entries_total",
			Help:      "Event log entries by level",
		}, []string{"level"}),

		RPCCallLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "rpc",
			Name:      "call_latency_seconds",
			Help:      "JSON-RPC call latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "status"}),
	}
}

// NewRegistry returns a registry with the Go and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// RecordCandidate counts a discovered candidate.
func (m *Metrics) RecordCandidate(source domain.Source) {
	if m == nil {
		return
	}
	m.CandidatesDiscovered.WithLabelValues(source.String()).Inc()
}

// RecordFeedDrop counts an evicted launch.
func (m *Metrics) RecordFeedDrop() {
	if m == nil {
		return
	}
	m.FeedDropped.Inc()
}

// RecordTrade records a dispatch outcome.
func (m *Metrics) RecordTrade(r domain.TradeResult) {
	if m == nil {
		return
	}
	outcome := "success"
	if !r.Success {
		outcome = string(r.ErrorKind)
	}
	m.DispatchOutcomes.WithLabelValues(outcome).Inc()
	m.DispatchLatency.Observe(r.Latency.Seconds())
}

// RecordSkip counts a candidate that was not executed.
func (m *Metrics) RecordSkip(reason string) {
	if m == nil {
		return
	}
	m.DispatchSkipped.WithLabelValues(reason).Inc()
}

// RecordBalance sets the balance gauge.
func (m *Metrics) RecordBalance(snap domain.BalanceSnapshot) {
	if m == nil {
		return
	}
	m.Balance.Set(snap.Value.InexactFloat64())
}

// RecordBalanceFailure counts a failed refresh.
func (m *Metrics) RecordBalanceFailure(kind domain.ErrorKind) {
	if m == nil {
		return
	}
	m.BalanceRefreshFailures.WithLabelValues(string(kind)).Inc()
}

// SetRunning sets the engine running gauge.
func (m *Metrics) SetRunning(running bool) {
	if m == nil {
		return
	}
	if running {
		m.EngineRunning.Set(1)
		return
	}
	m.EngineRunning.Set(0)
}

// RecordLogEntry counts an event log entry.
func (m *Metrics) RecordLogEntry(e domain.LogEntry) {
	if m == nil {
		return
	}
	m.EventLogEntries.WithLabelValues(string(e.Level)).Inc()
}

// ObserveRPC matches the RPC client's call observer signature.
func (m *Metrics) ObserveRPC(method string, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.RPCCallLatency.WithLabelValues(method, status).Observe(elapsed.Seconds())
}
