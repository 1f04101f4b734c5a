// Package ledger keeps append-only transaction records with a forward-only
// status lifecycle, persists every change to a write-ahead log and forwards new
// entries to the settlement queue.
package ledger

import (
	"maps"
	"time"

	"github.com/AltairaLabs/EdenKit/money"
)

// Status is the lifecycle state of an entry.
type Status string

// Entry statuses. Status only moves forward: pending -> processed -> completed,
// and pending or processed may move to failed.
const (
	StatusPending   Status = "pending"
	StatusProcessed Status = "processed"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

var transitions = map[Status][]Status{
	StatusPending:   {StatusProcessed, StatusFailed},
	StatusProcessed: {StatusCompleted, StatusFailed},
}

// CanTransition reports whether s may move to next.
func (s Status) CanTransition(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return len(transitions[s]) == 0
}

// Snapshot is the transaction a ledger entry is created from.
type Snapshot struct {
	TxID      string                  `json:"txId" mapstructure:"txId"`
	BlockTime time.Time               `json:"blockTime" mapstructure:"blockTime"`
	Payer     string                  `json:"payer" mapstructure:"payer"`
	Amount    money.Amount            `json:"amount" mapstructure:"amount"`
	FeeSplit  map[string]money.Amount `json:"feeSplit,omitempty" mapstructure:"feeSplit"`
}

// Entry is one transaction record.
type Entry struct {
	EntryID        string                  `json:"entryId"`
	TxID           string                  `json:"txId"`
	Timestamp      time.Time               `json:"timestamp"`
	Payer          string                  `json:"payer"`
	Merchant       string                  `json:"merchant"`
	ProviderID     string                  `json:"providerId"`
	ServiceType    string                  `json:"serviceType"`
	Amount         money.Amount            `json:"amount"`
	FeeCost        money.Amount            `json:"feeCost"`
	Fees           map[string]money.Amount `json:"fees,omitempty"`
	CashierID      string                  `json:"cashierId,omitempty"`
	BookingDetails map[string]any          `json:"bookingDetails,omitempty"`
	Status         Status                  `json:"status"`
	FailureReason  string                  `json:"failureReason,omitempty"`
	UpdatedAt      time.Time               `json:"updatedAt"`
}

// Clone returns a copy that shares no maps with e.
func (e *Entry) Clone() *Entry {
	if e == nil {
		return nil
	}
	cp := *e
	cp.Fees = maps.Clone(e.Fees)
	cp.BookingDetails = maps.Clone(e.BookingDetails)
	return &cp
}

// NewEntry describes an entry to add.
type NewEntry struct {
	Snapshot       Snapshot
	ServiceType    string
	FeeCost        money.Amount
	Payer          string
	Merchant       string
	ProviderID     string
	BookingDetails map[string]any
}

// StatusUpdate describes a status change.
type StatusUpdate struct {
	Status    Status
	CashierID string
	Reason    string
}
