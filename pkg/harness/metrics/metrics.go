// Package metrics exposes the harness's run-level counters as Prometheus
// collectors, grounded on the teacher's
// internal/controller/filewatcher.metrics.go (promauto-registered
// CounterVec/GaugeVec/Histogram pattern), generalized from file-watch
// events onto signal dispatch and agent activations.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SignalsEmitted counts every signal a run's Hub dispatches, labeled
	// by signal name.
	SignalsEmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "openharness_signals_emitted_total",
			Help: "Total signals emitted, by signal name",
		},
		[]string{"signal"},
	)

	// ActivationsStarted counts agent activations scheduled by the
	// harness, labeled by agent name.
	ActivationsStarted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "openharness_activations_started_total",
			Help: "Total agent activations started, by agent name",
		},
		[]string{"agent"},
	)

	// ActivationsFailed counts activations whose execution adapter
	// returned an error, labeled by agent name.
	ActivationsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "openharness_activations_failed_total",
			Help: "Total agent activations that errored, by agent name",
		},
		[]string{"agent"},
	)

	// ActivationDuration observes wall-clock time spent inside an
	// execution adapter's Run call, labeled by agent name.
	ActivationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "openharness_activation_duration_seconds",
			Help:    "Agent activation duration in seconds, by agent name",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"agent"},
	)

	// RunsTerminated counts finished runs, labeled by terminal status
	// (complete, aborted, failed) and reason.
	RunsTerminated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "openharness_runs_terminated_total",
			Help: "Total runs that reached a terminal status, by status and reason",
		},
		[]string{"status", "reason"},
	)

	// ActivationBudgetRemaining reports how much of a run's global
	// activation budget is left, labeled by run id. It is a gauge rather
	// than a counter since budget only ever decreases within a run but
	// the metric itself is reset (the label series removed) once the run
	// ends, by RecordRunTerminated.
	ActivationBudgetRemaining = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "openharness_activation_budget_remaining",
			Help: "Remaining global activation budget for an in-progress run, by run id",
		},
		[]string{"run_id"},
	)
)

// RecordSignal increments the signal counter for name.
func RecordSignal(name string) {
	SignalsEmitted.WithLabelValues(name).Inc()
}

// RecordActivationStart increments the activation counter for agent.
func RecordActivationStart(agentName string) {
	ActivationsStarted.WithLabelValues(agentName).Inc()
}

// RecordActivationFailure increments the activation failure counter for agent.
func RecordActivationFailure(agentName string) {
	ActivationsFailed.WithLabelValues(agentName).Inc()
}

// ObserveActivationDuration records how long an activation took.
func ObserveActivationDuration(agentName string, d time.Duration) {
	ActivationDuration.WithLabelValues(agentName).Observe(d.Seconds())
}

// RecordRunTerminated increments the run-termination counter and drops
// the run's budget gauge series, since it no longer applies once the run
// is over.
func RecordRunTerminated(runID, status, reason string) {
	RunsTerminated.WithLabelValues(status, reason).Inc()
	ActivationBudgetRemaining.DeleteLabelValues(runID)
}

// SetActivationBudgetRemaining publishes the remaining global activation
// budget for an in-progress run.
func SetActivationBudgetRemaining(runID string, remaining int) {
	ActivationBudgetRemaining.WithLabelValues(runID).Set(float64(remaining))
}
