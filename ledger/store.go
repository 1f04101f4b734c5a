package ledger

import (
	"context"
	"fmt"
	"maps"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/AltairaLabs/EdenKit/events"
	"github.com/AltairaLabs/EdenKit/logger"
	"github.com/AltairaLabs/EdenKit/statestore"
)

// Forwarder receives new entries for settlement. Enqueue is called off the
// request path; its failures are logged and never reach AddEntry's caller.
type Forwarder interface {
	Enqueue(ctx context.Context, entry *Entry) error
}

const (
	defaultForwardConcurrency = 4
	defaultForwardRetries     = 3
	defaultForwardRetryWait   = 100 * time.Millisecond
)

// Store is the ledger. Entries are never deleted; only their status changes.
type Store struct {
	mu      sync.RWMutex
	entries map[string]*Entry
	order   []string

	persist  statestore.Store
	debounce time.Duration
	snapMu   sync.Mutex
	snapshot *time.Timer

	forwarder  Forwarder
	sem        *semaphore.Weighted
	retries    int
	retryWait  time.Duration
	forwarding sync.WaitGroup
	emitter    *events.Emitter
	now        func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithPersistence sets the durable store. Defaults to an in-memory store.
func WithPersistence(store statestore.Store) Option {
	return func(s *Store) {
		if store != nil {
			s.persist = store
		}
	}
}

// WithForwarder sets where new entries are forwarded for settlement.
func WithForwarder(f Forwarder) Option {
	return func(s *Store) {
		s.forwarder = f
	}
}

// WithEmitter publishes ledger notifications.
func WithEmitter(em *events.Emitter) Option {
	return func(s *Store) {
		s.emitter = em
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithDebounce coalesces routine snapshot writes within d. Zero writes every
// snapshot immediately.
func WithDebounce(d time.Duration) Option {
	return func(s *Store) {
		s.debounce = d
	}
}

// WithForwardConcurrency bounds how many forwards may be in flight at once.
func WithForwardConcurrency(n int64) Option {
	return func(s *Store) {
		if n > 0 {
			s.sem = semaphore.NewWeighted(n)
		}
	}
}

// WithForwardRetries sets how many attempts a forward gets and the base backoff.
func WithForwardRetries(attempts int, base time.Duration) Option {
	return func(s *Store) {
		if attempts > 0 {
			s.retries = attempts
		}
		if base > 0 {
			s.retryWait = base
		}
	}
}

// NewStore creates an empty ledger.
func NewStore(opts ...Option) *Store {
	s := &Store{
		entries:   make(map[string]*Entry),
		persist:   statestore.NewMemoryStore(),
		sem:       semaphore.NewWeighted(defaultForwardConcurrency),
		retries:   defaultForwardRetries,
		retryWait: defaultForwardRetryWait,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AddEntry creates a pending entry. The entry is on the write-ahead log and
// readable through Persisted before AddEntry returns. Forwarding to settlement
// happens in the background.
func (s *Store) AddEntry(ctx context.Context, req NewEntry) (*Entry, error) {
	if !req.Snapshot.Amount.IsPositive() {
		return nil, fmt.Errorf("%w: got %s", ErrInvalidAmount, req.Snapshot.Amount)
	}
	payer := strings.TrimSpace(req.Payer)
	if payer == "" {
		payer = strings.TrimSpace(req.Snapshot.Payer)
	}
	if payer == "" {
		return nil, ErrMissingPayer
	}

	now := s.now()
	txID := req.Snapshot.TxID
	if txID == "" {
		txID = uuid.NewString()
	}
	entry := &Entry{
		EntryID:        uuid.NewString(),
		TxID:           txID,
		Timestamp:      now,
		Payer:          payer,
		Merchant:       req.Merchant,
		ProviderID:     req.ProviderID,
		ServiceType:    req.ServiceType,
		Amount:         req.Snapshot.Amount,
		FeeCost:        req.FeeCost,
		Fees:           maps.Clone(req.Snapshot.FeeSplit),
		BookingDetails: maps.Clone(req.BookingDetails),
		Status:         StatusPending,
		UpdatedAt:      now,
	}

	s.mu.Lock()
	if err := s.writeAhead(ctx, opAdd, entry); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	s.entries[entry.EntryID] = entry
	s.order = append(s.order, entry.EntryID)
	s.mu.Unlock()

	ctx = logger.WithEntryID(ctx, entry.EntryID)
	logger.InfoContext(ctx, "ledger entry added",
		"tx_id", entry.TxID, "payer", entry.Payer, "amount", entry.Amount, "service_type", entry.ServiceType)
	s.scheduleSnapshot()
	s.emitter.LedgerEntryAdded(&events.LedgerEntryAddedData{
		EntryID:     entry.EntryID,
		TxID:        entry.TxID,
		Payer:       entry.Payer,
		Merchant:    entry.Merchant,
		ProviderID:  entry.ProviderID,
		ServiceType: entry.ServiceType,
		Amount:      entry.Amount,
	})
	s.forward(ctx, entry.Clone())
	return entry.Clone(), nil
}

// FindByEntryID returns a copy of the entry with the given id.
func (s *Store) FindByEntryID(id string) (*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrEntryNotFound, id)
	}
	return e.Clone(), nil
}

// ListByPayer returns copies of the payer's entries in insertion order.
func (s *Store) ListByPayer(payer string) []*Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Entry
	for _, id := range s.order {
		if e := s.entries[id]; e.Payer == payer {
			out = append(out, e.Clone())
		}
	}
	return out
}

// All returns copies of every entry in insertion order.
func (s *Store) All() []*Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Entry, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.entries[id].Clone())
	}
	return out
}

// UpdateStatus moves an entry forward. Setting the current status again is a
// no-op. The change is written through to the log, the entry key and the
// snapshot before UpdateStatus returns.
func (s *Store) UpdateStatus(ctx context.Context, id string, upd StatusUpdate) (*Entry, error) {
	s.mu.Lock()
	current, ok := s.entries[id]
	if !ok {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrEntryNotFound, id)
	}
	if current.Status == upd.Status {
		s.mu.Unlock()
		return current.Clone(), nil
	}
	if !current.Status.CanTransition(upd.Status) {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %s -> %s for %s", ErrInvalidTransition, current.Status, upd.Status, id)
	}

	next := current.Clone()
	next.Status = upd.Status
	next.UpdatedAt = s.now()
	if upd.CashierID != "" {
		next.CashierID = upd.CashierID
	}
	if upd.Reason != "" {
		next.FailureReason = upd.Reason
	}
	if err := s.writeAhead(ctx, opStatus, next); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	s.entries[id] = next
	s.mu.Unlock()

	logger.InfoContext(logger.WithEntryID(ctx, id), "ledger entry status changed",
		"from", current.Status, "to", next.Status)
	if err := s.Flush(ctx); err != nil {
		logger.ErrorContext(ctx, "ledger snapshot write failed after status change", "entry_id", id, "error", err)
	}
	return next.Clone(), nil
}

// Close flushes the snapshot and waits for in-flight forwards.
func (s *Store) Close(ctx context.Context) error {
	err := s.Flush(ctx)
	done := make(chan struct{})
	go func() {
		s.forwarding.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return err
}

// Len returns the number of entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}
