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
	// Ingestion metrics
	LogNotifications     prometheus.Counter
	NotificationsDropped *prometheus.CounterVec
	DecodeSkips          *prometheus.CounterVec
	MarketsDecoded       prometheus.Counter
	FastChecks           prometheus.Counter
	FetchErrors          prometheus.Counter
	StreamReconnects     prometheus.Counter
	StreamConnected      prometheus.Gauge
	DedupCacheSize       prometheus.Gauge
	HighestSlotSeen      prometheus.Gauge

	// Risk metrics
	RiskAnalyses        prometheus.Counter
	RiskCheckDegraded   *prometheus.CounterVec
	RiskAnalysisLatency prometheus.Histogram
	RiskScore           prometheus.Histogram

	// Decision metrics
	Decisions         *prometheus.CounterVec
	Rejections        *prometheus.CounterVec
	FinalScore        prometheus.Histogram
	DecisionsInFlight prometheus.Gauge

	// Execution metrics
	ExecutionSubmits *prometheus.CounterVec

	// Latency metrics
	RPCCallLatency *prometheus.HistogramVec
	RPCCallErrors  *prometheus.CounterVec

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec

	// Health metrics
	LastMarketObserved prometheus.Gauge
	UptimeSeconds      prometheus.Counter
}

// NewMetrics creates a new Metrics instance registered with reg.
// A nil reg registers with the default Prometheus registry.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "launch_gate"
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &Metrics{
		// Ingestion metrics
		LogNotifications: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "log_notifications_total",
			Help:      "Total number of program log notifications received",
		}),
		NotificationsDropped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "notifications_dropped_total",
			Help:      "Notifications dropped before decoding by reason",
		}, []string{"reason"}),
		DecodeSkips: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "decode_skips_total",
			Help:      "Transactions that did not decode into a market by reason",
		}, []string{"reason"}),
		MarketsDecoded: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "markets_decoded_total",
			Help:      "Total number of new markets decoded",
		}),
		FastChecks: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "fast_checks_total",
			Help:      "Total number of markets emitted on the fast path",
		}),
		FetchErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "fetch_errors_total",
			Help:      "Transactions that could not be fetched after retries",
		}),
		StreamReconnects: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "stream_reconnects_total",
			Help:      "Total number of log stream disconnects",
		}),
		StreamConnected: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "stream_connected",
			Help:      "1 when the log stream is connected",
		}),
		DedupCacheSize: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "dedup_cache_size",
			Help:      "Current number of signatures held in the dedup cache",
		}),
		HighestSlotSeen: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "highest_slot_seen",
			Help:      "Highest Solana slot number seen",
		}),

		// Risk metrics
		RiskAnalyses: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "risk",
			Name:      "analyses_total",
			Help:      "Total number of security analyses",
		}),
		RiskCheckDegraded: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "risk",
			Name:      "check_degraded_total",
			Help:      "Checks that failed and used their conservative default",
		}, []string{"check"}),
		RiskAnalysisLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "risk",
			Name:      "analysis_duration_seconds",
			Help:      "Security analysis duration in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 30},
		}),
		RiskScore: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "risk",
			Name:      "score",
			Help:      "Distribution of risk scores",
			Buckets:   prometheus.LinearBuckets(0, 10, 11),
		}),

		// Decision metrics
		Decisions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "decision",
			Name:      "decisions_total",
			Help:      "Total number of decisions by outcome and path",
		}, []string{"outcome", "path"}),
		Rejections: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "decision",
			Name:      "rejections_total",
			Help:      "Total number of rejections by reason",
		}, []string{"reason"}),
		FinalScore: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "decision",
			Name:      "final_score",
			Help:      "Distribution of final scores",
			Buckets:   prometheus.LinearBuckets(0, 10, 11),
		}),
		DecisionsInFlight: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "decision",
			Name:      "in_flight",
			Help:      "Number of events currently being evaluated",
		}),

		// Execution metrics
		ExecutionSubmits: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "execution",
			Name:      "submits_total",
			Help:      "Total number of execution submissions by status",
		}, []string{"status"}),

		// Latency metrics
		RPCCallLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "solana",
			Name:      "rpc_call_latency_seconds",
			Help:      "Solana RPC call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		RPCCallErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "solana",
			Name:      "rpc_call_errors_total",
			Help:      "Total number of failed Solana RPC calls",
		}, []string{"method"}),

		// Database metrics
		DBQueryDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),

		// Health metrics
		LastMarketObserved: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_market_observed_timestamp",
			Help:      "Unix timestamp of the last decoded market",
		}),
		UptimeSeconds: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "uptime_seconds_total",
			Help:      "Total uptime in seconds",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("", nil)

// RecordNotification increments the log notification counter.
func RecordNotification() {
	DefaultMetrics.LogNotifications.Inc()
}

// RecordDropped records a notification dropped before decoding.
func RecordDropped(reason string) {
	DefaultMetrics.NotificationsDropped.WithLabelValues(reason).Inc()
}

// RecordDecodeSkip records a transaction that did not decode.
func RecordDecodeSkip(reason string) {
	DefaultMetrics.DecodeSkips.WithLabelValues(reason).Inc()
}

// RecordMarket records a decoded market at the given slot and unix second.
func RecordMarket(slot int64, unixSeconds int64) {
	DefaultMetrics.MarketsDecoded.Inc()
	DefaultMetrics.LastMarketObserved.Set(float64(unixSeconds))
	UpdateHighestSlot(slot)
}

// RecordFastCheck increments the fast path counter.
func RecordFastCheck() {
	DefaultMetrics.FastChecks.Inc()
}

// RecordFetchError increments the fetch error counter.
func RecordFetchError() {
	DefaultMetrics.FetchErrors.Inc()
}

// SetStreamConnected updates the connection gauge and counts disconnects.
func SetStreamConnected(connected bool) {
	if connected {
		DefaultMetrics.StreamConnected.Set(1)
		return
	}
	DefaultMetrics.StreamConnected.Set(0)
	DefaultMetrics.StreamReconnects.Inc()
}

// UpdateDedupCacheSize updates the dedup cache gauge.
func UpdateDedupCacheSize(n int) {
	DefaultMetrics.DedupCacheSize.Set(float64(n))
}

// UpdateHighestSlot updates the highest slot seen gauge.
func UpdateHighestSlot(slot int64) {
	DefaultMetrics.HighestSlotSeen.Set(float64(slot))
}

// RecordRiskAnalysis records one completed security analysis.
func RecordRiskAnalysis(score int, seconds float64) {
	DefaultMetrics.RiskAnalyses.Inc()
	DefaultMetrics.RiskScore.Observe(float64(score))
	DefaultMetrics.RiskAnalysisLatency.Observe(seconds)
}

// RecordCheckDegraded records a check that fell back to its default.
func RecordCheckDegraded(check string) {
	DefaultMetrics.RiskCheckDegraded.WithLabelValues(check).Inc()
}

// RecordDecision records a decision outcome.
func RecordDecision(accepted, fastPath bool, reason string) {
	outcome, path := "rejected", "standard"
	if accepted {
		outcome = "accepted"
	}
	if fastPath {
		path = "fast"
	}
	DefaultMetrics.Decisions.WithLabelValues(outcome, path).Inc()
	if !accepted && reason != "" {
		DefaultMetrics.Rejections.WithLabelValues(reason).Inc()
	}
}

// RecordFinalScore observes a computed final score.
func RecordFinalScore(score int) {
	DefaultMetrics.FinalScore.Observe(float64(score))
}

// AddInFlight adjusts the in-flight decisions gauge.
func AddInFlight(delta float64) {
	DefaultMetrics.DecisionsInFlight.Add(delta)
}

// RecordExecution records an execution submission.
func RecordExecution(err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	DefaultMetrics.ExecutionSubmits.WithLabelValues(status).Inc()
}

// RecordRPCCall records RPC call latency and failures. It matches the
// solana.WithObserver callback signature after conversion to seconds.
func RecordRPCCall(method string, seconds float64, err error) {
	DefaultMetrics.RPCCallLatency.WithLabelValues(method).Observe(seconds)
	if err != nil {
		DefaultMetrics.RPCCallErrors.WithLabelValues(method).Inc()
	}
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}
