package metrics

import (
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Probe outcomes
const (
	ProbeReachable   = "reachable"
	ProbeUnreachable = "unreachable"
	ProbeTimeout     = "timeout"
)

// Global counters for the health summary (prometheus metrics can't be read directly)
var (
	probesIssuedCount   int64
	cyclesCompleted     int64
	lastCycleTimestamp  int64
	lastCycleDurationMs int64
)

// Metrics for relay resolution and routing
var (
	// Probe metrics
	ProbesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "relaymap_probes_total",
		Help: "Reachability probes by outcome",
	}, []string{"outcome"})

	ProbeDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "relaymap_probe_duration_seconds",
		Help:    "Time until a probe produced an answer",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 10), // 10ms .. ~5s
	})

	ProbeBatchSize = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "relaymap_probe_batch_size",
		Help:    "Distinct URLs per probe batch",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12), // 1 .. 2048
	})

	// Connector metrics
	ConnectAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "relaymap_connect_attempts_total",
		Help: "Relay connection attempts by outcome",
	}, []string{"outcome"}) // "success", "failure"

	RelayUnreachable = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relaymap_relay_unreachable_total",
		Help: "Connections that failed after exhausting their attempts",
	})

	// Query metrics
	QueryEvents = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relaymap_query_events_total",
		Help: "Distinct events received from relay queries",
	})

	QueryRelayErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relaymap_query_relay_errors_total",
		Help: "Per-relay query failures",
	})

	// Resolution metrics
	ResolutionCycles = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "relaymap_resolution_cycles_total",
		Help: "Resolution cycles by status",
	}, []string{"status"}) // "success", "failure"

	ResolutionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "relaymap_resolution_duration_seconds",
		Help:    "Duration of a full resolution cycle",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 8), // 100ms .. ~12.8s
	})

	UserRelays = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "relaymap_user_relays",
		Help: "Reachable user relays by capability",
	}, []string{"type"}) // "read", "write"

	FollowsMapped = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "relaymap_follows_mapped",
		Help: "Authors present in the current follows relay map",
	})

	FollowsWithoutRelays = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "relaymap_follows_without_relays",
		Help: "Authors in the current map with no reachable relay",
	})

	// Error metrics
	ErrorsCount = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "relaymap_errors_total",
		Help: "The total number of errors by type",
	}, []string{"type"})

	// Storage metrics
	DBOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "relaymap_db_operations_total",
		Help: "Snapshot storage operations by result",
	}, []string{"operation", "status"})

	DBConnections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "relaymap_db_connections_total",
		Help: "Database connection attempts by status",
	}, []string{"status"}) // "success", "failure", "closed"

	DBErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "relaymap_db_errors_total",
		Help: "Database errors by type",
	}, []string{"type"})
)

// RecordProbe counts a finished probe.
func RecordProbe(outcome string, elapsed time.Duration) {
	ProbesTotal.WithLabelValues(outcome).Inc()
	if outcome != ProbeTimeout {
		ProbeDuration.Observe(elapsed.Seconds())
	}
}

// IncrementProbesIssued counts probes started, regardless of outcome.
func IncrementProbesIssued(n int) {
	atomic.AddInt64(&probesIssuedCount, int64(n))
}

// GetProbesIssuedCount returns the number of probes started since launch.
func GetProbesIssuedCount() int64 {
	return atomic.LoadInt64(&probesIssuedCount)
}

// RecordCycle stores the outcome of a resolution cycle.
func RecordCycle(ok bool, elapsed time.Duration) {
	ResolutionDuration.Observe(elapsed.Seconds())
	if !ok {
		ResolutionCycles.WithLabelValues("failure").Inc()
		return
	}
	ResolutionCycles.WithLabelValues("success").Inc()
	atomic.AddInt64(&cyclesCompleted, 1)
	atomic.StoreInt64(&lastCycleTimestamp, time.Now().Unix())
	atomic.StoreInt64(&lastCycleDurationMs, elapsed.Milliseconds())
}

// GetCyclesCompleted returns the number of successful cycles.
func GetCyclesCompleted() int64 {
	return atomic.LoadInt64(&cyclesCompleted)
}

// GetLastCycleDuration returns the duration of the last successful cycle.
func GetLastCycleDuration() time.Duration {
	return time.Duration(atomic.LoadInt64(&lastCycleDurationMs)) * time.Millisecond
}

// RecordSnapshot updates the routing gauges from a freshly published snapshot.
func RecordSnapshot(readRelays, writeRelays, mapped, withoutRelays int) {
	UserRelays.WithLabelValues("read").Set(float64(readRelays))
	UserRelays.WithLabelValues("write").Set(float64(writeRelays))
	FollowsMapped.Set(float64(mapped))
	FollowsWithoutRelays.Set(float64(withoutRelays))
}

// RegisterMetrics pre-registers label values so series exist from startup
func RegisterMetrics() {
	for _, outcome := range []string{ProbeReachable, ProbeUnreachable, ProbeTimeout} {
		ProbesTotal.WithLabelValues(outcome)
	}
	for _, outcome := range []string{"success", "failure"} {
		ConnectAttempts.WithLabelValues(outcome)
		ResolutionCycles.WithLabelValues(outcome)
	}
	for _, relayType := range []string{"read", "write"} {
		UserRelays.WithLabelValues(relayType)
	}
	for _, errType := range []string{"validation", "network", "database", "internal", "not_found"} {
		ErrorsCount.WithLabelValues(errType)
	}
	for _, status := range []string{"success", "failure", "closed"} {
		DBConnections.WithLabelValues(status)
	}
	for _, op := range []string{"save_snapshot", "load_snapshot"} {
		DBOperations.WithLabelValues(op, "success")
		DBOperations.WithLabelValues(op, "failure")
	}
}
