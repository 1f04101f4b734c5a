package ledger

import "errors"

// Sentinel errors.
var (
	// ErrEntryNotFound is returned when no entry has the requested id.
	ErrEntryNotFound = errors.New("ledger entry not found")

	// ErrInvalidAmount is returned when an entry would be created with amount <= 0.
	ErrInvalidAmount = errors.New("ledger entry amount must be positive")

	// ErrInvalidTransition is returned when a status change would move backwards.
	ErrInvalidTransition = errors.New("invalid ledger status transition")

	// ErrMissingPayer is returned when an entry has no payer.
	ErrMissingPayer = errors.New("ledger entry payer is required")
)
