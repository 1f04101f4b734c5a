package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/AltairaLabs/EdenKit/logger"
	"github.com/AltairaLabs/EdenKit/statestore"
)

const (
	opAdd     = "add"
	opStatus  = "status"
	opCorrect = "correct"

	snapshotKey = "ledger:snapshot"
)

// walRecord is one line of the ledger write-ahead log.
type walRecord struct {
	Op    string    `json:"op"`
	At    time.Time `json:"at"`
	Entry *Entry    `json:"entry"`
}

func entryKey(id string) string {
	return "ledger:entry:" + id
}

// writeAhead appends the change to the log and rewrites the entry key.
// Must be called with mu held.
func (s *Store) writeAhead(ctx context.Context, op string, entry *Entry) error {
	rec, err := json.Marshal(walRecord{Op: op, At: s.now(), Entry: entry})
	if err != nil {
		return fmt.Errorf("encode ledger record: %w", err)
	}
	if err := s.persist.AppendLedgerEntries(ctx, rec); err != nil {
		return fmt.Errorf("append ledger record: %w", err)
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode ledger entry: %w", err)
	}
	if err := s.persist.Set(ctx, entryKey(entry.EntryID), data); err != nil {
		return fmt.Errorf("persist ledger entry: %w", err)
	}
	return nil
}

// scheduleSnapshot coalesces routine snapshot writes within the debounce window.
func (s *Store) scheduleSnapshot() {
	if s.debounce <= 0 {
		if err := s.Flush(context.Background()); err != nil {
			logger.Error("ledger snapshot write failed", "error", err)
		}
		return
	}
	s.snapMu.Lock()
	defer s.snapMu.Unlock()
	if s.snapshot != nil {
		s.snapshot.Stop()
	}
	s.snapshot = time.AfterFunc(s.debounce, func() {
		if err := s.Flush(context.Background()); err != nil {
			logger.Error("ledger snapshot write failed", "error", err)
		}
	})
}

// Flush cancels any pending debounced snapshot and writes one now.
func (s *Store) Flush(ctx context.Context) error {
	s.snapMu.Lock()
	if s.snapshot != nil {
		s.snapshot.Stop()
		s.snapshot = nil
	}
	s.snapMu.Unlock()

	data, err := json.Marshal(s.All())
	if err != nil {
		return fmt.Errorf("encode ledger snapshot: %w", err)
	}
	if err := s.persist.Set(ctx, snapshotKey, data); err != nil {
		return fmt.Errorf("persist ledger snapshot: %w", err)
	}
	return nil
}

// Persisted reads an entry back from the durable store, bypassing memory.
func (s *Store) Persisted(ctx context.Context, id string) (*Entry, error) {
	data, err := s.persist.Get(ctx, entryKey(id))
	if errors.Is(err, statestore.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrEntryNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("read ledger entry %s: %w", id, err)
	}
	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("decode ledger entry %s: %w", id, err)
	}
	return &e, nil
}

// VerifyPersisted compares the durable status of an entry with the in-memory
// one and rewrites the durable copy when they differ. It reports whether a
// correction was made.
func (s *Store) VerifyPersisted(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.entries[id]
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrEntryNotFound, id)
	}
	persisted, err := s.Persisted(ctx, id)
	if err != nil && !errors.Is(err, ErrEntryNotFound) {
		return false, err
	}
	if persisted != nil && persisted.Status == current.Status {
		return false, nil
	}

	got := "missing"
	if persisted != nil {
		got = string(persisted.Status)
	}
	logger.WarnContext(ctx, "persisted ledger status mismatch, correcting",
		"entry_id", id, "persisted", got, "expected", current.Status)
	if err := s.writeAhead(ctx, opCorrect, current); err != nil {
		return false, err
	}
	return true, nil
}

// Load rebuilds the in-memory ledger by replaying the write-ahead log. Later
// records for the same entry replace earlier ones.
func (s *Store) Load(ctx context.Context) error {
	records, err := s.persist.LedgerEntries(ctx)
	if err != nil {
		return fmt.Errorf("read ledger log: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, raw := range records {
		var rec walRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			return fmt.Errorf("decode ledger record %d: %w", i, err)
		}
		if rec.Entry == nil || rec.Entry.EntryID == "" {
			continue
		}
		if _, seen := s.entries[rec.Entry.EntryID]; !seen {
			s.order = append(s.order, rec.Entry.EntryID)
		}
		s.entries[rec.Entry.EntryID] = rec.Entry
	}
	logger.InfoContext(ctx, "ledger replayed", "records", len(records), "entries", len(s.order))
	return nil
}
