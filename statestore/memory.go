package statestore

import (
	"context"
	"sync"
)

// MemoryStore provides an in-memory implementation of the Store interface.
// Values are copied on the way in and out so callers never share backing arrays
// with the store.
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string][]byte
	log    [][]byte
	lists  map[string][][]byte
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		values: make(map[string][]byte),
		lists:  make(map[string][][]byte),
	}
}

// Get returns a copy of the value stored under key.
func (s *MemoryStore) Get(ctx context.Context, key string) ([]byte, error) {
	if key == "" {
		return nil, ErrInvalidKey
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(v), nil
}

// Set stores a copy of value under key.
func (s *MemoryStore) Set(ctx context.Context, key string, value []byte) error {
	if key == "" {
		return ErrInvalidKey
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = clone(value)
	return nil
}

// AppendLedgerEntries appends copies of entries to the log.
func (s *MemoryStore) AppendLedgerEntries(ctx context.Context, entries ...[]byte) error {
	if len(entries) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range entries {
		s.log = append(s.log, clone(e))
	}
	return nil
}

// LedgerEntries returns copies of all appended records.
func (s *MemoryStore) LedgerEntries(ctx context.Context) ([][]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([][]byte, len(s.log))
	for i, e := range s.log {
		out[i] = clone(e)
	}
	return out, nil
}

// Append appends copies of records to the named list.
func (s *MemoryStore) Append(ctx context.Context, list string, records ...[]byte) error {
	if list == "" {
		return ErrInvalidKey
	}
	if len(records) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range records {
		s.lists[list] = append(s.lists[list], clone(r))
	}
	return nil
}

// List returns copies of the records in the named list.
func (s *MemoryStore) List(ctx context.Context, list string) ([][]byte, error) {
	if list == "" {
		return nil, ErrInvalidKey
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	src := s.lists[list]
	out := make([][]byte, len(src))
	for i, r := range src {
		out[i] = clone(r)
	}
	return out, nil
}

// Len returns the number of keys held. Primarily for tests.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.values)
}

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

var _ Store = (*MemoryStore)(nil)
