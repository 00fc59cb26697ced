// Package metrics provides Prometheus metrics for the roomgate admission
// subsystem and the reference room service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// No cardinality explosion: no room IDs, attempt IDs or request IDs in
// labels.

var (
	// AttemptsTotal counts started admission attempts by action.
	AttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "roomgate_admission_attempts_total",
		Help: "Total number of started admission attempts, by action.",
	}, []string{"action"})

	// OutcomesTotal counts concluded attempts by action and outcome
	// (redirected, blocked, cancelled).
	OutcomesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "roomgate_admission_outcomes_total",
		Help: "Total number of concluded admission attempts, by action and outcome.",
	}, []string{"action", "outcome"})

	// FailuresTotal counts classified failures by phase and kind.
	FailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "roomgate_admission_failures_total",
		Help: "Total number of classified admission failures, by phase and kind.",
	}, []string{"phase", "kind"})

	// ReprobeTotal counts re-entrant probe runs by cause
	// (consent_conflict, action_rewrite).
	ReprobeTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "roomgate_admission_reprobe_total",
		Help: "Total number of re-entrant capability probes, by cause.",
	}, []string{"cause"})

	// AttemptsInFlight tracks attempts currently between trigger and
	// terminal outcome.
	AttemptsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "roomgate_admission_attempts_in_flight",
		Help: "Current number of admission attempts in flight.",
	})
)

// RecordAttempt increments the attempt counter for a started attempt.
func RecordAttempt(action string) {
	AttemptsTotal.WithLabelValues(action).Inc()
	AttemptsInFlight.Inc()
}

// RecordOutcome increments the outcome counter for a concluded attempt.
func RecordOutcome(action, outcome string) {
	OutcomesTotal.WithLabelValues(action, outcome).Inc()
	AttemptsInFlight.Dec()
}

// RecordFailure increments the classified failure counter.
func RecordFailure(phase, kind string) {
	FailuresTotal.WithLabelValues(phase, kind).Inc()
}

// RecordReprobe increments the re-entrant probe counter.
func RecordReprobe(cause string) {
	ReprobeTotal.WithLabelValues(cause).Inc()
}
