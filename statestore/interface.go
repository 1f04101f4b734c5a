// Package statestore provides the durable key-value and append-log collaborator
// the ledger and the workflow engine persist through.
package statestore

import (
	"context"
	"errors"
)

// Store defines the persistence contract. Values are opaque bytes; callers own
// the encoding.
type Store interface {
	// Get returns the value stored under key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key string, value []byte) error

	// AppendLedgerEntries appends records to the ledger log in order. The log is
	// never truncated or rewritten.
	AppendLedgerEntries(ctx context.Context, entries ...[]byte) error

	// LedgerEntries returns every record appended so far, oldest first.
	LedgerEntries(ctx context.Context) ([][]byte, error)

	// Append adds records to the end of the named list. Lists are never
	// truncated or rewritten.
	Append(ctx context.Context, list string, records ...[]byte) error

	// List returns every record appended to the named list, oldest first. A
	// list that was never appended to is empty.
	List(ctx context.Context, list string) ([][]byte, error)
}

// Common errors
var (
	// ErrNotFound is returned when a key does not exist.
	ErrNotFound = errors.New("key not found")

	// ErrInvalidKey is returned when an empty key is supplied.
	ErrInvalidKey = errors.New("invalid key: cannot be empty")
)
