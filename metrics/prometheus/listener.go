package prometheus

import (
	"github.com/AltairaLabs/EdenKit/events"
)

// Status constants for metric labels.
const (
	statusSuccess   = "success"
	statusError     = "error"
	statusFailed    = "failed"
	statusStarted   = "started"
	statusCompleted = "completed"

	entryPending   = "pending"
	entryProcessed = "processed"
)

// MetricsListener records workflow, ledger and payment events as Prometheus
// metrics. Register it with an EventBus using SubscribeAll.
type MetricsListener struct{}

// NewMetricsListener creates a new MetricsListener.
func NewMetricsListener() *MetricsListener {
	return &MetricsListener{}
}

// Handle processes an event and records relevant metrics.
func (l *MetricsListener) Handle(event *events.Event) {
	//exhaustive:ignore
	switch event.Type {
	case events.EventWorkflowStarted:
		RecordWorkflow(statusStarted)
	case events.EventWorkflowCompleted:
		RecordWorkflow(statusCompleted)
	case events.EventWorkflowFailed:
		l.handleWorkflowFailed(event)
	case events.EventWorkflowStepExecuted:
		l.handleStepExecuted(event)
	case events.EventWorkflowDecisionRequested:
		RecordDecisionRequested()
	case events.EventWorkflowDecisionResolved, events.EventWorkflowDecisionTimeout:
		RecordDecisionEnded()
	case events.EventLedgerEntryAdded:
		RecordLedgerEntry(entryPending)
	case events.EventLedgerEntrySettled:
		l.handleEntrySettled(event)
	case events.EventPaymentProcessed:
		l.handlePaymentProcessed(event)
	case events.EventPaymentFailed:
		RecordPayment(statusFailed, 0)
		RecordLedgerEntry(statusFailed)
	case events.EventFeesDistributed:
		l.handleFeesDistributed(event)
	default:
		// Ignore events that don't have metrics
	}
}

func (l *MetricsListener) handleWorkflowFailed(event *events.Event) {
	RecordWorkflow(statusFailed)
	if _, ok := event.Data.(*events.WorkflowFailedData); ok {
		RecordStep(event.Workflow, "", statusError, 0)
	}
}

func (l *MetricsListener) handleStepExecuted(event *events.Event) {
	if data, ok := event.Data.(*events.StepExecutedData); ok {
		RecordStep(event.Workflow, data.Kind, statusSuccess, data.Duration.Seconds())
	}
}

func (l *MetricsListener) handleEntrySettled(event *events.Event) {
	if data, ok := event.Data.(*events.LedgerEntrySettledData); ok {
		RecordLedgerEntry(data.Status)
	}
}

func (l *MetricsListener) handlePaymentProcessed(event *events.Event) {
	if data, ok := event.Data.(*events.PaymentProcessedData); ok {
		RecordPayment(statusSuccess, data.Amount.Minor())
		RecordLedgerEntry(entryProcessed)
	}
}

func (l *MetricsListener) handleFeesDistributed(event *events.Event) {
	if data, ok := event.Data.(*events.FeesDistributedData); ok {
		for _, share := range data.Shares {
			RecordFeeShare(share.Party, share.Amount.Minor())
		}
	}
}

// Listener returns an events.Listener function that can be registered with an EventBus.
func (l *MetricsListener) Listener() events.Listener {
	return l.Handle
}
