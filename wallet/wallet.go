// Package wallet keeps one balance per identity with atomic credit and debit
// and an append-only audit trail of every change.
package wallet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/AltairaLabs/EdenKit/events"
	"github.com/AltairaLabs/EdenKit/logger"
	"github.com/AltairaLabs/EdenKit/money"
	"github.com/AltairaLabs/EdenKit/statestore"
)

// IntentKind names a wallet operation.
type IntentKind string

// Intent kinds. HOLD and RELEASE report the balance without reserving funds.
const (
	IntentCredit  IntentKind = "CREDIT"
	IntentDebit   IntentKind = "DEBIT"
	IntentHold    IntentKind = "HOLD"
	IntentRelease IntentKind = "RELEASE"
)

// Intent is a request to change or inspect a balance.
type Intent struct {
	Kind     IntentKind
	Identity string
	Amount   money.Amount
	TxID     string
	Reason   string
	Metadata map[string]any
}

// Record is one audit entry.
type Record struct {
	ID        string         `json:"id"`
	Identity  string         `json:"identity"`
	Kind      IntentKind     `json:"kind"`
	TxID      string         `json:"txId,omitempty"`
	Amount    money.Amount   `json:"amount"`
	Previous  money.Amount   `json:"previous"`
	New       money.Amount   `json:"new"`
	Reason    string         `json:"reason,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Result is the outcome of ProcessIntent.
type Result struct {
	Identity string
	Balance  money.Amount
	// Record is nil for HOLD and RELEASE.
	Record *Record
}

type account struct {
	Identity  string       `json:"identity"`
	Balance   money.Amount `json:"balance"`
	UpdatedAt time.Time    `json:"updatedAt"`
}

// Service is the wallet. Balance changes and their audit records are written
// through to the store before they become visible, so a failed write leaves
// the balance untouched.
type Service struct {
	mu       sync.Mutex
	balances map[string]money.Amount
	loaded   map[string]bool
	audit    map[string][]Record
	store    statestore.Store
	emitter  *events.Emitter
	now      func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithStore persists balances under "wallet:<identity>" and audit records in
// the list "wallet:audit:<identity>".
func WithStore(store statestore.Store) Option {
	return func(s *Service) {
		s.store = store
	}
}

// WithEmitter publishes wallet.credited and wallet.debited notifications.
func WithEmitter(em *events.Emitter) Option {
	return func(s *Service) {
		s.emitter = em
	}
}

// WithClock overrides the time source used for audit records.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService creates an empty wallet.
func NewService(opts ...Option) *Service {
	s := &Service{
		balances: make(map[string]money.Amount),
		loaded:   make(map[string]bool),
		audit:    make(map[string][]Record),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetBalance returns the current balance for identity. Unknown identities have
// a zero balance.
func (s *Service) GetBalance(ctx context.Context, identity string) (money.Amount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoaded(ctx, identity); err != nil {
		return 0, err
	}
	return s.balances[identity], nil
}

// Credit increases the balance of identity by amount.
func (s *Service) Credit(
	ctx context.Context, identity string, amount money.Amount, txID, reason string, metadata map[string]any,
) (*Record, error) {
	rec, err := s.apply(ctx, IntentCredit, identity, amount, txID, reason, metadata)
	if err != nil {
		return nil, err
	}
	s.emitter.WalletCredited(changedData(rec))
	return rec, nil
}

// Debit decreases the balance of identity by amount. The read and the decrement
// happen under one lock; a debit larger than the balance fails with
// *InsufficientBalanceError and changes nothing.
func (s *Service) Debit(
	ctx context.Context, identity string, amount money.Amount, txID, reason string, metadata map[string]any,
) (*Record, error) {
	rec, err := s.apply(ctx, IntentDebit, identity, amount, txID, reason, metadata)
	if err != nil {
		return nil, err
	}
	s.emitter.WalletDebited(changedData(rec))
	return rec, nil
}

// ProcessIntent dispatches on the intent kind.
func (s *Service) ProcessIntent(ctx context.Context, intent Intent) (*Result, error) {
	var (
		rec *Record
		err error
	)
	switch IntentKind(strings.ToUpper(string(intent.Kind))) {
	case IntentCredit:
		rec, err = s.Credit(ctx, intent.Identity, intent.Amount, intent.TxID, intent.Reason, intent.Metadata)
	case IntentDebit:
		rec, err = s.Debit(ctx, intent.Identity, intent.Amount, intent.TxID, intent.Reason, intent.Metadata)
	case IntentHold, IntentRelease:
		bal, berr := s.GetBalance(ctx, intent.Identity)
		if berr != nil {
			return nil, berr
		}
		logger.DebugContext(ctx, "wallet intent is a pass-through",
			"kind", intent.Kind, "identity", intent.Identity, "balance", bal)
		return &Result{Identity: intent.Identity, Balance: bal}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownIntent, intent.Kind)
	}
	if err != nil {
		return nil, err
	}
	return &Result{Identity: intent.Identity, Balance: rec.New, Record: rec}, nil
}

// History returns the audit records for identity, oldest first, including
// those written before a restart.
func (s *Service) History(ctx context.Context, identity string) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoaded(ctx, identity); err != nil {
		return nil, err
	}
	return slices.Clone(s.audit[identity]), nil
}

// Audit returns the audit records of every identity this service has loaded,
// oldest first.
func (s *Service) Audit() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Record
	for _, recs := range s.audit {
		out = append(out, recs...)
	}
	slices.SortStableFunc(out, func(a, b Record) int {
		return a.Timestamp.Compare(b.Timestamp)
	})
	return out
}

// Balances returns a copy of all known balances.
func (s *Service) Balances() map[string]money.Amount {
	s.mu.Lock()
	defer s.mu.Unlock()
	return maps.Clone(s.balances)
}

func (s *Service) apply(
	ctx context.Context, kind IntentKind, identity string, amount money.Amount,
	txID, reason string, metadata map[string]any,
) (*Record, error) {
	if strings.TrimSpace(identity) == "" {
		return nil, ErrInvalidIdentity
	}
	if amount.IsNegative() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidAmount, amount)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoaded(ctx, identity); err != nil {
		return nil, err
	}

	previous := s.balances[identity]
	next := previous + amount
	if kind == IntentDebit {
		if previous < amount {
			return nil, &InsufficientBalanceError{Identity: identity, Balance: previous, Required: amount}
		}
		next = previous - amount
	}

	now := s.now()
	rec := Record{
		ID:        uuid.NewString(),
		Identity:  identity,
		Kind:      kind,
		TxID:      txID,
		Amount:    amount,
		Previous:  previous,
		New:       next,
		Reason:    reason,
		Metadata:  maps.Clone(metadata),
		Timestamp: now,
	}
	if err := s.persist(ctx, identity, next, now); err != nil {
		return nil, err
	}
	if err := s.appendAudit(ctx, rec); err != nil {
		if rerr := s.persist(ctx, identity, previous, now); rerr != nil {
			logger.ErrorContext(ctx, "wallet balance rollback failed", "identity", identity, "error", rerr)
		}
		return nil, err
	}
	s.balances[identity] = next
	s.audit[identity] = append(s.audit[identity], rec)
	logger.DebugContext(ctx, "wallet balance changed",
		"identity", identity, "kind", kind, "amount", amount, "previous", previous, "new", next)
	return &rec, nil
}

// ensureLoaded hydrates the balance and audit trail of identity from the store
// the first time it is touched. Must be called with mu held.
func (s *Service) ensureLoaded(ctx context.Context, identity string) error {
	if s.store == nil || s.loaded[identity] {
		return nil
	}
	data, err := s.store.Get(ctx, accountKey(identity))
	switch {
	case errors.Is(err, statestore.ErrNotFound):
	case err != nil:
		return fmt.Errorf("load wallet %s: %w", identity, err)
	default:
		var acct account
		if err := json.Unmarshal(data, &acct); err != nil {
			return fmt.Errorf("decode wallet %s: %w", identity, err)
		}
		s.balances[identity] = acct.Balance
	}

	raw, err := s.store.List(ctx, auditList(identity))
	if err != nil {
		return fmt.Errorf("load wallet audit %s: %w", identity, err)
	}
	recs := make([]Record, 0, len(raw))
	for _, r := range raw {
		var rec Record
		if err := json.Unmarshal(r, &rec); err != nil {
			return fmt.Errorf("decode wallet audit %s: %w", identity, err)
		}
		recs = append(recs, rec)
	}
	s.audit[identity] = recs
	s.loaded[identity] = true
	return nil
}

// Must be called with mu held.
func (s *Service) appendAudit(ctx context.Context, rec Record) error {
	if s.store == nil {
		return nil
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode wallet audit %s: %w", rec.Identity, err)
	}
	if err := s.store.Append(ctx, auditList(rec.Identity), data); err != nil {
		return fmt.Errorf("persist wallet audit %s: %w", rec.Identity, err)
	}
	return nil
}

// Must be called with mu held.
func (s *Service) persist(ctx context.Context, identity string, balance money.Amount, now time.Time) error {
	if s.store == nil {
		return nil
	}
	data, err := json.Marshal(account{Identity: identity, Balance: balance, UpdatedAt: now})
	if err != nil {
		return fmt.Errorf("encode wallet %s: %w", identity, err)
	}
	if err := s.store.Set(ctx, accountKey(identity), data); err != nil {
		return fmt.Errorf("persist wallet %s: %w", identity, err)
	}
	return nil
}

func accountKey(identity string) string {
	return "wallet:" + identity
}

func auditList(identity string) string {
	return "wallet:audit:" + identity
}

func changedData(rec *Record) *events.WalletChangedData {
	return &events.WalletChangedData{
		Identity: rec.Identity,
		TxID:     rec.TxID,
		Amount:   rec.Amount,
		Previous: rec.Previous,
		New:      rec.New,
		Reason:   rec.Reason,
	}
}
