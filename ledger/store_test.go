package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AltairaLabs/EdenKit/events"
	"github.com/AltairaLabs/EdenKit/money"
	"github.com/AltairaLabs/EdenKit/statestore"
)

type recordingForwarder struct {
	mu      sync.Mutex
	entries []*Entry
	fails   int32
	calls   atomic.Int32
}

func (f *recordingForwarder) Enqueue(_ context.Context, e *Entry) error {
	n := f.calls.Add(1)
	if n <= atomic.LoadInt32(&f.fails) {
		return errors.New("queue unavailable")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, e)
	return nil
}

func (f *recordingForwarder) received() []*Entry {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*Entry(nil), f.entries...)
}

type appendFailingStore struct {
	statestore.Store
}

func (appendFailingStore) AppendLedgerEntries(context.Context, ...[]byte) error {
	return errors.New("log offline")
}

func newEntry(payer string, amount money.Amount) NewEntry {
	return NewEntry{
		Snapshot: Snapshot{
			TxID:   "tx-" + payer,
			Payer:  payer,
			Amount: amount,
		},
		ServiceType: "movie",
		Merchant:    "cinema-1",
		ProviderID:  "provider-1",
	}
}

func TestAddEntryPersistsBeforeReturn(t *testing.T) {
	ctx := context.Background()
	persist := statestore.NewMemoryStore()
	rec := events.NewRecorder()
	s := NewStore(WithPersistence(persist), WithEmitter(events.NewEmitter(rec, "", "")))

	e, err := s.AddEntry(ctx, newEntry("alice", 1000))
	require.NoError(t, err)
	assert.NotEmpty(t, e.EntryID)
	assert.Equal(t, StatusPending, e.Status)
	assert.Equal(t, "tx-alice", e.TxID)

	got, err := s.Persisted(ctx, e.EntryID)
	require.NoError(t, err)
	assert.Equal(t, e.EntryID, got.EntryID)
	assert.Equal(t, money.Amount(1000), got.Amount)
	assert.Equal(t, StatusPending, got.Status)

	log, err := persist.LedgerEntries(ctx)
	require.NoError(t, err)
	require.Len(t, log, 1)
	var walRec walRecord
	require.NoError(t, json.Unmarshal(log[0], &walRec))
	assert.Equal(t, opAdd, walRec.Op)

	snap, err := persist.Get(ctx, snapshotKey)
	require.NoError(t, err)
	var all []*Entry
	require.NoError(t, json.Unmarshal(snap, &all))
	assert.Len(t, all, 1)

	assert.Len(t, rec.OfType(events.EventLedgerEntryAdded), 1)
}

func TestAddEntryRejectsNonPositiveAmount(t *testing.T) {
	ctx := context.Background()
	persist := statestore.NewMemoryStore()
	s := NewStore(WithPersistence(persist))

	for _, amt := range []money.Amount{0, -100} {
		_, err := s.AddEntry(ctx, newEntry("alice", amt))
		assert.ErrorIs(t, err, ErrInvalidAmount)
	}
	assert.Equal(t, 0, s.Len())
	log, err := persist.LedgerEntries(ctx)
	require.NoError(t, err)
	assert.Empty(t, log)
}

func TestAddEntryRequiresPayer(t *testing.T) {
	s := NewStore()
	_, err := s.AddEntry(context.Background(), newEntry("", 100))
	assert.ErrorIs(t, err, ErrMissingPayer)
}

func TestAddEntryFailsWhenLogUnavailable(t *testing.T) {
	s := NewStore(WithPersistence(appendFailingStore{Store: statestore.NewMemoryStore()}))
	_, err := s.AddEntry(context.Background(), newEntry("alice", 100))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "log offline")
	assert.Equal(t, 0, s.Len())
}

func TestQueries(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	a1, err := s.AddEntry(ctx, newEntry("alice", 100))
	require.NoError(t, err)
	_, err = s.AddEntry(ctx, newEntry("bob", 200))
	require.NoError(t, err)
	a2, err := s.AddEntry(ctx, newEntry("alice", 300))
	require.NoError(t, err)

	byAlice := s.ListByPayer("alice")
	require.Len(t, byAlice, 2)
	assert.Equal(t, a1.EntryID, byAlice[0].EntryID)
	assert.Equal(t, a2.EntryID, byAlice[1].EntryID)
	assert.Len(t, s.All(), 3)

	_, err = s.FindByEntryID("nope")
	assert.ErrorIs(t, err, ErrEntryNotFound)

	found, err := s.FindByEntryID(a1.EntryID)
	require.NoError(t, err)
	found.Status = StatusFailed
	again, err := s.FindByEntryID(a1.EntryID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, again.Status, "returned entries must be copies")
}

func TestStatusTransitions(t *testing.T) {
	tests := []struct {
		from, to Status
		ok       bool
	}{
		{StatusPending, StatusProcessed, true},
		{StatusPending, StatusFailed, true},
		{StatusPending, StatusCompleted, false},
		{StatusProcessed, StatusCompleted, true},
		{StatusProcessed, StatusFailed, true},
		{StatusProcessed, StatusPending, false},
		{StatusCompleted, StatusFailed, false},
		{StatusCompleted, StatusPending, false},
		{StatusFailed, StatusProcessed, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.ok, tt.from.CanTransition(tt.to))
		})
	}
	assert.True(t, StatusCompleted.Terminal())
	assert.True(t, StatusFailed.Terminal())
	assert.False(t, StatusPending.Terminal())
}

func TestUpdateStatus(t *testing.T) {
	ctx := context.Background()
	persist := statestore.NewMemoryStore()
	s := NewStore(WithPersistence(persist), WithDebounce(time.Hour))
	e, err := s.AddEntry(ctx, newEntry("alice", 500))
	require.NoError(t, err)

	processed, err := s.UpdateStatus(ctx, e.EntryID, StatusUpdate{Status: StatusProcessed, CashierID: "cashier-1"})
	require.NoError(t, err)
	assert.Equal(t, StatusProcessed, processed.Status)
	assert.Equal(t, "cashier-1", processed.CashierID)

	same, err := s.UpdateStatus(ctx, e.EntryID, StatusUpdate{Status: StatusProcessed})
	require.NoError(t, err)
	assert.Equal(t, StatusProcessed, same.Status)

	_, err = s.UpdateStatus(ctx, e.EntryID, StatusUpdate{Status: StatusPending})
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = s.UpdateStatus(ctx, e.EntryID, StatusUpdate{Status: StatusCompleted})
	require.NoError(t, err)

	_, err = s.UpdateStatus(ctx, e.EntryID, StatusUpdate{Status: StatusFailed, Reason: "late"})
	assert.ErrorIs(t, err, ErrInvalidTransition)

	persisted, err := s.Persisted(ctx, e.EntryID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, persisted.Status)

	// A status change flushes the snapshot even with a long debounce.
	snap, err := persist.Get(ctx, snapshotKey)
	require.NoError(t, err)
	var all []*Entry
	require.NoError(t, json.Unmarshal(snap, &all))
	require.Len(t, all, 1)
	assert.Equal(t, StatusCompleted, all[0].Status)

	_, err = s.UpdateStatus(ctx, "missing", StatusUpdate{Status: StatusProcessed})
	assert.ErrorIs(t, err, ErrEntryNotFound)
}

func TestDebouncedSnapshot(t *testing.T) {
	ctx := context.Background()
	persist := statestore.NewMemoryStore()
	s := NewStore(WithPersistence(persist), WithDebounce(20*time.Millisecond))

	_, err := s.AddEntry(ctx, newEntry("alice", 100))
	require.NoError(t, err)
	_, err = persist.Get(ctx, snapshotKey)
	assert.ErrorIs(t, err, statestore.ErrNotFound)

	assert.Eventually(t, func() bool {
		_, err := persist.Get(ctx, snapshotKey)
		return err == nil
	}, time.Second, 5*time.Millisecond)
}

func TestForwardsEntries(t *testing.T) {
	ctx := context.Background()
	fwd := &recordingForwarder{}
	s := NewStore(WithForwarder(fwd))

	e, err := s.AddEntry(ctx, newEntry("alice", 100))
	require.NoError(t, err)
	require.NoError(t, s.Close(ctx))

	got := fwd.received()
	require.Len(t, got, 1)
	assert.Equal(t, e.EntryID, got[0].EntryID)
}

func TestForwardRetriesThenSucceeds(t *testing.T) {
	ctx := context.Background()
	fwd := &recordingForwarder{fails: 2}
	s := NewStore(WithForwarder(fwd), WithForwardRetries(3, time.Millisecond))

	_, err := s.AddEntry(ctx, newEntry("alice", 100))
	require.NoError(t, err)
	require.NoError(t, s.Close(ctx))

	assert.Equal(t, int32(3), fwd.calls.Load())
	assert.Len(t, fwd.received(), 1)
}

func TestForwardFailureDoesNotReachCaller(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	fwd := &recordingForwarder{fails: 100}
	s := NewStore(WithForwarder(fwd), WithForwardRetries(2, time.Millisecond))

	e, err := s.AddEntry(ctx, newEntry("alice", 100))
	cancel()
	require.NoError(t, err)
	require.NoError(t, s.Close(context.Background()))

	assert.Equal(t, int32(2), fwd.calls.Load())
	assert.Empty(t, fwd.received())
	found, err := s.FindByEntryID(e.EntryID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, found.Status)
}

func TestVerifyPersistedCorrectsMismatch(t *testing.T) {
	ctx := context.Background()
	persist := statestore.NewMemoryStore()
	s := NewStore(WithPersistence(persist))
	e, err := s.AddEntry(ctx, newEntry("alice", 100))
	require.NoError(t, err)

	corrected, err := s.VerifyPersisted(ctx, e.EntryID)
	require.NoError(t, err)
	assert.False(t, corrected)

	stale := e.Clone()
	stale.Status = StatusFailed
	data, err := json.Marshal(stale)
	require.NoError(t, err)
	require.NoError(t, persist.Set(ctx, entryKey(e.EntryID), data))

	corrected, err = s.VerifyPersisted(ctx, e.EntryID)
	require.NoError(t, err)
	assert.True(t, corrected)

	got, err := s.Persisted(ctx, e.EntryID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, got.Status)

	_, err = s.VerifyPersisted(ctx, "missing")
	assert.ErrorIs(t, err, ErrEntryNotFound)
}

func TestLoadReplaysLog(t *testing.T) {
	ctx := context.Background()
	persist := statestore.NewMemoryStore()
	s := NewStore(WithPersistence(persist))
	a, err := s.AddEntry(ctx, newEntry("alice", 100))
	require.NoError(t, err)
	b, err := s.AddEntry(ctx, newEntry("bob", 200))
	require.NoError(t, err)
	_, err = s.UpdateStatus(ctx, a.EntryID, StatusUpdate{Status: StatusProcessed})
	require.NoError(t, err)

	restored := NewStore(WithPersistence(persist))
	require.NoError(t, restored.Load(ctx))
	assert.Equal(t, 2, restored.Len())

	all := restored.All()
	assert.Equal(t, a.EntryID, all[0].EntryID)
	assert.Equal(t, StatusProcessed, all[0].Status)
	assert.Equal(t, b.EntryID, all[1].EntryID)
	assert.Equal(t, StatusPending, all[1].Status)
}
