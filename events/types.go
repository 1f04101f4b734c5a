// Package events provides the notification sink used by the workflow engine,
// the ledger and the wallet, plus an asynchronous pub/sub bus implementing it.
package events

import (
	"time"

	"github.com/AltairaLabs/EdenKit/money"
)

// EventType identifies the type of event emitted by the engine or the settlement pipeline.
type EventType string

const (
	// EventLedgerEntryAdded marks a new pending ledger entry.
	EventLedgerEntryAdded EventType = "ledger.entry_added"
	// EventLedgerEntrySettled marks a processed entry moving to completed.
	EventLedgerEntrySettled EventType = "ledger.entry_settled"

	// EventPaymentProcessed marks a successful payer debit.
	EventPaymentProcessed EventType = "payment.processed"
	// EventPaymentFailed marks a rejected payer debit.
	EventPaymentFailed EventType = "payment.failed"

	// EventWalletCredited marks a balance increase.
	EventWalletCredited EventType = "wallet.credited"
	// EventWalletDebited marks a balance decrease.
	EventWalletDebited EventType = "wallet.debited"

	// EventFeesDistributed marks fee shares credited after settlement.
	EventFeesDistributed EventType = "settlement.fees_distributed"

	// EventWorkflowStarted marks a new execution.
	EventWorkflowStarted EventType = "workflow.started"
	// EventWorkflowStepExecuted marks a step whose actions all succeeded.
	EventWorkflowStepExecuted EventType = "workflow.step_executed"
	// EventWorkflowDecisionRequested marks an execution pausing for a decision.
	EventWorkflowDecisionRequested EventType = "workflow.decision_requested"
	// EventWorkflowDecisionResolved marks a submitted decision.
	EventWorkflowDecisionResolved EventType = "workflow.decision_resolved"
	// EventWorkflowDecisionTimeout marks a decision window expiring.
	EventWorkflowDecisionTimeout EventType = "workflow.decision_timeout"
	// EventWorkflowTransitioned marks a workflow state transition.
	EventWorkflowTransitioned EventType = "workflow.transitioned"
	// EventWorkflowCompleted marks a workflow reaching a terminal state.
	EventWorkflowCompleted EventType = "workflow.completed"
	// EventWorkflowFailed marks an execution that can no longer make progress.
	EventWorkflowFailed EventType = "workflow.failed"
	// EventWorkflowBroadcast carries a step's resolved outbound event.
	EventWorkflowBroadcast EventType = "workflow.broadcast"

	// EventCertificateIssued marks a certificate registered for a subject.
	EventCertificateIssued EventType = "certificate.issued"
	// EventCertificateRevoked marks a subject added to the revocation set.
	EventCertificateRevoked EventType = "certificate.revoked"
)

// EventData is a marker interface for event payloads.
type EventData interface {
	eventData()
}

// Event is a notification delivered to a Sink.
type Event struct {
	Type        EventType `json:"type"`
	Timestamp   time.Time `json:"timestamp"`
	ExecutionID string    `json:"executionId,omitempty"`
	Workflow    string    `json:"workflow,omitempty"`
	Data        EventData `json:"data,omitempty"`
}

type baseEventData struct{}

func (baseEventData) eventData() {}

// --- Ledger and payment events ---

// LedgerEntryAddedData describes a newly created ledger entry.
type LedgerEntryAddedData struct {
	baseEventData
	EntryID     string       `json:"entryId"`
	TxID        string       `json:"txId"`
	Payer       string       `json:"payer"`
	Merchant    string       `json:"merchant"`
	ProviderID  string       `json:"providerId"`
	ServiceType string       `json:"serviceType"`
	Amount      money.Amount `json:"amount"`
}

// LedgerEntrySettledData describes a completed settlement.
// Corrected is set when the read-back found a stale status and rewrote it.
type LedgerEntrySettledData struct {
	baseEventData
	EntryID   string `json:"entryId"`
	TxID      string `json:"txId"`
	Status    string `json:"status"`
	Corrected bool   `json:"corrected,omitempty"`
}

// PaymentProcessedData describes a successful payment.
type PaymentProcessedData struct {
	baseEventData
	EntryID      string       `json:"entryId"`
	Payer        string       `json:"payer"`
	CashierID    string       `json:"cashierId"`
	Amount       money.Amount `json:"amount"`
	BalanceAfter money.Amount `json:"balanceAfter"`
}

// PaymentFailedData describes a rejected payment and its shortfall.
type PaymentFailedData struct {
	baseEventData
	EntryID   string       `json:"entryId"`
	Payer     string       `json:"payer"`
	Amount    money.Amount `json:"amount"`
	Balance   money.Amount `json:"balance"`
	Shortfall money.Amount `json:"shortfall"`
	Reason    string       `json:"reason"`
}

// WalletChangedData describes one wallet audit record.
type WalletChangedData struct {
	baseEventData
	Identity string       `json:"identity"`
	TxID     string       `json:"txId"`
	Amount   money.Amount `json:"amount"`
	Previous money.Amount `json:"previous"`
	New      money.Amount `json:"new"`
	Reason   string       `json:"reason"`
}

// FeeShare is one party's portion of a fee distribution.
type FeeShare struct {
	Party     string       `json:"party"`
	Recipient string       `json:"recipient"`
	Amount    money.Amount `json:"amount"`
}

// FeesDistributedData describes fee shares credited for a settled entry.
type FeesDistributedData struct {
	baseEventData
	EntryID string       `json:"entryId"`
	Total   money.Amount `json:"total"`
	Shares  []FeeShare   `json:"shares"`
}

// --- Workflow events ---

// WorkflowStartedData describes a new execution.
type WorkflowStartedData struct {
	baseEventData
	Version     string `json:"version"`
	InitialStep string `json:"initialStep"`
}

// StepExecutedData describes a step whose actions ran.
type StepExecutedData struct {
	baseEventData
	Step     string        `json:"step"`
	Kind     string        `json:"kind"`
	Actions  int           `json:"actions"`
	Duration time.Duration `json:"duration"`
}

// DecisionRequestedData describes a pause awaiting an external decision.
type DecisionRequestedData struct {
	baseEventData
	Step    string        `json:"step"`
	Prompt  string        `json:"prompt"`
	Options int           `json:"options"`
	Timeout time.Duration `json:"timeout"`
}

// DecisionResolvedData describes a submitted decision.
type DecisionResolvedData struct {
	baseEventData
	Step     string `json:"step"`
	Decision string `json:"decision"`
}

// DecisionTimeoutData describes an expired decision window.
// Route is empty when the step declares no timeout target.
type DecisionTimeoutData struct {
	baseEventData
	Step    string        `json:"step"`
	Timeout time.Duration `json:"timeout"`
	Route   string        `json:"route,omitempty"`
}

// WorkflowTransitionedData describes a chosen transition.
type WorkflowTransitionedData struct {
	baseEventData
	From      string `json:"from"`
	To        string `json:"to"`
	Condition string `json:"condition,omitempty"`
}

// WorkflowCompletedData describes an execution reaching completion.
type WorkflowCompletedData struct {
	baseEventData
	FinalStep string `json:"finalStep"`
	Steps     int    `json:"steps"`
}

// WorkflowFailedData describes an execution that stopped on an error.
type WorkflowFailedData struct {
	baseEventData
	Step  string `json:"step"`
	Error string `json:"error"`
}

// BroadcastData carries a step's resolved outbound event payload.
type BroadcastData struct {
	baseEventData
	Step    string         `json:"step"`
	Name    string         `json:"name"`
	Payload map[string]any `json:"payload,omitempty"`
}

// --- Certificate events ---

// CertificateIssuedData describes an issued certificate.
type CertificateIssuedData struct {
	baseEventData
	Subject      string    `json:"subject"`
	Capabilities []string  `json:"capabilities"`
	ExpiresAt    time.Time `json:"expiresAt"`
}

// CertificateRevokedData describes a revoked subject.
type CertificateRevokedData struct {
	baseEventData
	Subject string `json:"subject"`
	Reason  string `json:"reason,omitempty"`
}
