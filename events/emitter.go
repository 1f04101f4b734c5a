package events

import (
	"time"

	"github.com/AltairaLabs/EdenKit/money"
)

// Emitter publishes events with shared execution metadata. A nil Emitter or one
// without a sink drops every event.
type Emitter struct {
	sink        Sink
	executionID string
	workflow    string
	now         func() time.Time
}

// NewEmitter creates a new event emitter.
func NewEmitter(sink Sink, executionID, workflow string) *Emitter {
	return &Emitter{
		sink:        sink,
		executionID: executionID,
		workflow:    workflow,
		now:         time.Now,
	}
}

// WithClock returns a copy of the emitter stamping events with now.
func (e *Emitter) WithClock(now func() time.Time) *Emitter {
	if e == nil {
		return nil
	}
	cp := *e
	if now != nil {
		cp.now = now
	}
	return &cp
}

// ForExecution returns a copy of the emitter bound to another execution.
func (e *Emitter) ForExecution(executionID, workflow string) *Emitter {
	if e == nil {
		return nil
	}
	cp := *e
	cp.executionID = executionID
	cp.workflow = workflow
	return &cp
}

func (e *Emitter) emit(eventType EventType, data EventData) {
	if e == nil || e.sink == nil {
		return
	}
	e.sink.Emit(&Event{
		Type:        eventType,
		Timestamp:   e.now(),
		ExecutionID: e.executionID,
		Workflow:    e.workflow,
		Data:        data,
	})
}

// LedgerEntryAdded emits the ledger.entry_added event.
func (e *Emitter) LedgerEntryAdded(data *LedgerEntryAddedData) {
	if data == nil {
		return
	}
	e.emit(EventLedgerEntryAdded, data)
}

// LedgerEntrySettled emits the ledger.entry_settled event.
func (e *Emitter) LedgerEntrySettled(entryID, txID, status string, corrected bool) {
	e.emit(EventLedgerEntrySettled, &LedgerEntrySettledData{
		EntryID:   entryID,
		TxID:      txID,
		Status:    status,
		Corrected: corrected,
	})
}

// PaymentProcessed emits the payment.processed event.
func (e *Emitter) PaymentProcessed(entryID, payer, cashierID string, amount, balanceAfter money.Amount) {
	e.emit(EventPaymentProcessed, &PaymentProcessedData{
		EntryID:      entryID,
		Payer:        payer,
		CashierID:    cashierID,
		Amount:       amount,
		BalanceAfter: balanceAfter,
	})
}

// PaymentFailed emits the payment.failed event.
func (e *Emitter) PaymentFailed(data *PaymentFailedData) {
	if data == nil {
		return
	}
	e.emit(EventPaymentFailed, data)
}

// WalletCredited emits the wallet.credited event.
func (e *Emitter) WalletCredited(data *WalletChangedData) {
	if data == nil {
		return
	}
	e.emit(EventWalletCredited, data)
}

// WalletDebited emits the wallet.debited event.
func (e *Emitter) WalletDebited(data *WalletChangedData) {
	if data == nil {
		return
	}
	e.emit(EventWalletDebited, data)
}

// FeesDistributed emits the settlement.fees_distributed event.
func (e *Emitter) FeesDistributed(entryID string, total money.Amount, shares []FeeShare) {
	e.emit(EventFeesDistributed, &FeesDistributedData{
		EntryID: entryID,
		Total:   total,
		Shares:  shares,
	})
}

// WorkflowStarted emits the workflow.started event.
func (e *Emitter) WorkflowStarted(version, initialStep string) {
	e.emit(EventWorkflowStarted, &WorkflowStartedData{Version: version, InitialStep: initialStep})
}

// StepExecuted emits the workflow.step_executed event.
func (e *Emitter) StepExecuted(step, kind string, actions int, duration time.Duration) {
	e.emit(EventWorkflowStepExecuted, &StepExecutedData{
		Step:     step,
		Kind:     kind,
		Actions:  actions,
		Duration: duration,
	})
}

// DecisionRequested emits the workflow.decision_requested event.
func (e *Emitter) DecisionRequested(step, prompt string, options int, timeout time.Duration) {
	e.emit(EventWorkflowDecisionRequested, &DecisionRequestedData{
		Step:    step,
		Prompt:  prompt,
		Options: options,
		Timeout: timeout,
	})
}

// DecisionResolved emits the workflow.decision_resolved event.
func (e *Emitter) DecisionResolved(step, decision string) {
	e.emit(EventWorkflowDecisionResolved, &DecisionResolvedData{Step: step, Decision: decision})
}

// DecisionTimeout emits the workflow.decision_timeout event.
func (e *Emitter) DecisionTimeout(step string, timeout time.Duration, route string) {
	e.emit(EventWorkflowDecisionTimeout, &DecisionTimeoutData{Step: step, Timeout: timeout, Route: route})
}

// Transitioned emits the workflow.transitioned event.
func (e *Emitter) Transitioned(from, to, condition string) {
	e.emit(EventWorkflowTransitioned, &WorkflowTransitionedData{From: from, To: to, Condition: condition})
}

// Completed emits the workflow.completed event.
func (e *Emitter) Completed(finalStep string, steps int) {
	e.emit(EventWorkflowCompleted, &WorkflowCompletedData{FinalStep: finalStep, Steps: steps})
}

// Failed emits the workflow.failed event.
func (e *Emitter) Failed(step string, err error) {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	e.emit(EventWorkflowFailed, &WorkflowFailedData{Step: step, Error: msg})
}

// Broadcast emits the workflow.broadcast event.
func (e *Emitter) Broadcast(step, name string, payload map[string]any) {
	e.emit(EventWorkflowBroadcast, &BroadcastData{Step: step, Name: name, Payload: payload})
}

// CertificateIssued emits the certificate.issued event.
func (e *Emitter) CertificateIssued(subject string, capabilities []string, expiresAt time.Time) {
	e.emit(EventCertificateIssued, &CertificateIssuedData{
		Subject:      subject,
		Capabilities: capabilities,
		ExpiresAt:    expiresAt,
	})
}

// CertificateRevoked emits the certificate.revoked event.
func (e *Emitter) CertificateRevoked(subject, reason string) {
	e.emit(EventCertificateRevoked, &CertificateRevokedData{Subject: subject, Reason: reason})
}
