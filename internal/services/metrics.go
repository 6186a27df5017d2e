// Package services – ledger operation metrics.
//
// Prometheus counters for the engine, mirroring the label discipline of the
// HTTP metrics middleware: bounded label cardinality (operation name and a
// coarse outcome), no per-tenant labels.
package services

import "github.com/prometheus/client_golang/prometheus"

var (
	// ledgerOps counts engine invocations by operation and outcome.
	// Outcomes: ok, replay (idempotent hit), rejected (business rule),
	// error (infrastructure).
	ledgerOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_operations_total",
			Help: "Total number of ledger engine operations.",
		},
		[]string{"op", "outcome"},
	)

	// sweptEntries counts inventory entries zeroed by expire sweeps.
	sweptEntries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ledger_swept_entries_total",
			Help: "Total number of inventory entries zeroed by expire sweeps.",
		},
	)
)

func init() {
	prometheus.MustRegister(ledgerOps, sweptEntries)
}

const (
	outcomeOK       = "ok"
	outcomeReplay   = "replay"
	outcomeRejected = "rejected"
	outcomeError    = "error"
)

// observe records one engine invocation outcome.
func observe(op string, err error, replayed bool) {
	switch {
	case err == nil && replayed:
		ledgerOps.WithLabelValues(op, outcomeReplay).Inc()
	case err == nil:
		ledgerOps.WithLabelValues(op, outcomeOK).Inc()
	case IsConflict(err) || IsNotFound(err) || IsValidation(err):
		ledgerOps.WithLabelValues(op, outcomeRejected).Inc()
	default:
		ledgerOps.WithLabelValues(op, outcomeError).Inc()
	}
}
