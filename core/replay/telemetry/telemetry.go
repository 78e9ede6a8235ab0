// Package telemetry exposes prometheus counters for the replay engine,
// using github.com/prometheus/client_golang the way chain-level metrics
// usually do, here scoped to replay outcomes instead of block import rates.
package telemetry

import "github.com/prometheus/client_golang/prometheus"

// Metrics bundles the replay counters and histogram. The Engine updates
// ReplaysTotal and ReconcileMismatches; it does not update RecoveryAttempts
// or ExecutionDuration. Callers register it with their own
// prometheus.Registerer; Metrics from NewNop are safe to use but never
// exported, for tests and one-off CLI runs.
type Metrics struct {
	ReplaysTotal       *prometheus.CounterVec
	ReconcileMismatches *prometheus.CounterVec
	RecoveryAttempts   *prometheus.CounterVec
	ExecutionDuration  prometheus.Histogram
}

// New constructs Metrics and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ReplaysTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "replaycore",
			Name:      "replays_total",
			Help:      "Replays attempted, partitioned by outcome.",
		}, []string{"outcome"}),
		ReconcileMismatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "replaycore",
			Name:      "reconcile_mismatches_total",
			Help:      "Reconciliation mismatches, partitioned by policy.",
		}, []string{"policy"}),
		RecoveryAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "replaycore",
			Name:      "recovery_attempts_total",
			Help:      "Recovery attempts, partitioned by kind (synthesize_input, self_heal_field).",
		}, []string{"kind"}),
		ExecutionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "replaycore",
			Name:      "execution_duration_seconds",
			Help:      "Wall-clock time spent in the harness execution step.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	if reg != nil {
		reg.MustRegister(m.ReplaysTotal, m.ReconcileMismatches, m.RecoveryAttempts, m.ExecutionDuration)
	}
	return m
}

// NewNop returns Metrics backed by a private, unregistered registry: calls
// are safe and cheap but never exported.
func NewNop() *Metrics {
	return New(prometheus.NewRegistry())
}
