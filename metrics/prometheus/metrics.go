// Package prometheus provides Prometheus metrics for EdenKit workflows, the
// ledger and settlement.
package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "edenkit"

var (
	// workflowStepsTotal is a counter of steps entered, by outcome.
	workflowStepsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "workflow_steps_total",
			Help:      "Total number of workflow steps run",
		},
		[]string{"workflow", "kind", "status"}, // status: success, error
	)

	// workflowStepDuration is a histogram of step action time.
	workflowStepDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "workflow_step_duration_seconds",
			Help:      "Histogram of workflow step duration in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"workflow", "kind"},
	)

	// decisionsPending is a gauge of executions waiting for a decision.
	decisionsPending = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "workflow_decisions_pending",
			Help:      "Number of executions currently waiting for a decision",
		},
	)

	// workflowsTotal is a counter of execution lifecycle events.
	workflowsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "workflows_total",
			Help:      "Total number of workflow executions by lifecycle status",
		},
		[]string{"status"}, // status: started, completed, failed
	)

	// ledgerEntriesTotal is a counter of ledger entries reaching each status.
	ledgerEntriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ledger_entries_total",
			Help:      "Total number of ledger entries reaching each status",
		},
		[]string{"status"}, // status: pending, processed, completed, failed
	)

	// paymentsTotal is a counter of payment attempts.
	paymentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payments_total",
			Help:      "Total number of payment attempts",
		},
		[]string{"status"}, // status: success, failed
	)

	// paymentAmountTotal is a counter of debited amounts in minor units.
	paymentAmountTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_amount_minor_total",
			Help:      "Total amount debited by successful payments, in minor units",
		},
	)

	// feesDistributedTotal is a counter of fee shares credited, in minor units.
	feesDistributedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fees_distributed_minor_total",
			Help:      "Total fee shares credited after settlement, in minor units",
		},
		[]string{"party"}, // party: authority, garden, provider, tax
	)

	// allMetrics is a list of all metrics for registration.
	allMetrics = []prometheus.Collector{
		workflowStepsTotal,
		workflowStepDuration,
		decisionsPending,
		workflowsTotal,
		ledgerEntriesTotal,
		paymentsTotal,
		paymentAmountTotal,
		feesDistributedTotal,
	}
)

// RecordStep records a step run and, on success, how long its actions took.
func RecordStep(workflow, kind, status string, durationSeconds float64) {
	workflowStepsTotal.WithLabelValues(workflow, kind, status).Inc()
	if status == statusSuccess {
		workflowStepDuration.WithLabelValues(workflow, kind).Observe(durationSeconds)
	}
}

// RecordDecisionRequested records an execution pausing for a decision.
func RecordDecisionRequested() {
	decisionsPending.Inc()
}

// RecordDecisionEnded records a pending decision resolving or expiring.
func RecordDecisionEnded() {
	decisionsPending.Dec()
}

// RecordWorkflow records an execution lifecycle event.
func RecordWorkflow(status string) {
	workflowsTotal.WithLabelValues(status).Inc()
}

// RecordLedgerEntry records a ledger entry reaching status.
func RecordLedgerEntry(status string) {
	ledgerEntriesTotal.WithLabelValues(status).Inc()
}

// RecordPayment records a payment attempt. Only successful payments add to
// the debited amount.
func RecordPayment(status string, amountMinor int64) {
	paymentsTotal.WithLabelValues(status).Inc()
	if status == statusSuccess && amountMinor > 0 {
		paymentAmountTotal.Add(float64(amountMinor))
	}
}

// RecordFeeShare records one fee share credited to party.
func RecordFeeShare(party string, amountMinor int64) {
	if amountMinor > 0 {
		feesDistributedTotal.WithLabelValues(party).Add(float64(amountMinor))
	}
}
