package wallet

import (
	"errors"

	"github.com/AltairaLabs/EdenKit/money"
)

// Sentinel errors.
var (
	// ErrInsufficientBalance is matched by *InsufficientBalanceError via errors.Is.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrInvalidAmount is returned for negative amounts.
	ErrInvalidAmount = errors.New("amount must not be negative")

	// ErrInvalidIdentity is returned when the identity is empty.
	ErrInvalidIdentity = errors.New("identity is required")

	// ErrUnknownIntent is returned for an unrecognised intent kind.
	ErrUnknownIntent = errors.New("unknown wallet intent")
)

// InsufficientBalanceError reports a debit refused because the balance was too low.
type InsufficientBalanceError struct {
	Identity string
	Balance  money.Amount
	Required money.Amount
}

// Error implements the error interface.
func (e *InsufficientBalanceError) Error() string {
	return "insufficient balance for " + e.Identity + ": have " + e.Balance.String() +
		", need " + e.Required.String()
}

// Shortfall returns how much more the identity would need.
func (e *InsufficientBalanceError) Shortfall() money.Amount {
	return e.Required - e.Balance
}

// Is lets errors.Is match ErrInsufficientBalance.
func (e *InsufficientBalanceError) Is(target error) bool {
	return target == ErrInsufficientBalance
}

// AsInsufficientBalance checks if an error is an InsufficientBalanceError and returns it.
func AsInsufficientBalance(err error) (*InsufficientBalanceError, bool) {
	var iErr *InsufficientBalanceError
	if errors.As(err, &iErr) {
		return iErr, true
	}
	return nil, false
}
