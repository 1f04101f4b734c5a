package settlement

import (
	"sync"

	"github.com/AltairaLabs/EdenKit/money"
)

// Cashier is the actor that executes payment debits. It keeps running
// counters of what it has processed.
type Cashier struct {
	ID   string
	Name string

	mu             sync.Mutex
	processedCount int64
	totalProcessed money.Amount
}

// CashierSnapshot is a point-in-time copy of a cashier's counters.
type CashierSnapshot struct {
	ID             string       `json:"id"`
	Name           string       `json:"name"`
	ProcessedCount int64        `json:"processedCount"`
	TotalProcessed money.Amount `json:"totalProcessed"`
}

// NewCashier creates a cashier with zeroed counters.
func NewCashier(id, name string) *Cashier {
	return &Cashier{ID: id, Name: name}
}

func (c *Cashier) record(amount money.Amount) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.processedCount++
	c.totalProcessed += amount
}

// Snapshot returns the current counters.
func (c *Cashier) Snapshot() CashierSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CashierSnapshot{
		ID:             c.ID,
		Name:           c.Name,
		ProcessedCount: c.processedCount,
		TotalProcessed: c.totalProcessed,
	}
}
