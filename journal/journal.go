// Package journal is an append-only audit log of lifecycle activity.
// Transitions, consistency anomalies, and clock-skew events are written
// here so that auto-repaired conditions leave a durable trace instead of
// disappearing silently.
package journal

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

// Entry kinds.
const (
	KindTransition = "transition"
	KindAnomaly    = "anomaly"
	KindClockSkew  = "clock_skew"
)

// Entry is one audit record.
type Entry struct {
	Kind       string    `json:"kind"`
	OwnerID    string    `json:"owner_id,omitempty"`
	TaskID     string    `json:"task_id,omitempty"`
	SessionID  string    `json:"session_id,omitempty"`
	From       string    `json:"from,omitempty"`
	To         string    `json:"to,omitempty"`
	RawSeconds int64     `json:"raw_seconds,omitempty"`
	Detail     string    `json:"detail,omitempty"`
	At         time.Time `json:"at"`
}

// Recorder accepts audit entries. Recording must never block or fail a
// lifecycle operation; implementations log and swallow their own errors.
type Recorder interface {
	Record(ctx context.Context, e Entry)
}

// Nop discards every entry.
type Nop struct{}

func (Nop) Record(context.Context, Entry) {}

// Buffer queues entries in memory until Flush. Callers that record from
// inside a storage transaction buffer first and flush only after the
// transaction commits, so a rolled-back state change leaves no entry.
type Buffer struct {
	entries []Entry
}

func (b *Buffer) Record(_ context.Context, e Entry) {
	b.entries = append(b.entries, e)
}

// Flush forwards every buffered entry to rec and empties the buffer.
func (b *Buffer) Flush(ctx context.Context, rec Recorder) {
	for _, e := range b.entries {
		rec.Record(ctx, e)
	}
	b.entries = nil
}

// Badger persists entries to a BadgerDB keyed by kind and timestamp.
type Badger struct {
	db *badger.DB
}

// Open opens (or creates) the journal database at path.
func Open(path string) (*Badger, error) {
	db, err := badger.Open(badger.DefaultOptions(path).WithLogger(nil))
	if err != nil {
		return nil, fmt.Errorf("opening journal db: %w", err)
	}
	return &Badger{db: db}, nil
}

func (b *Badger) Close() error {
	return b.db.Close()
}

func (b *Badger) Record(_ context.Context, e Entry) {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	val, err := json.Marshal(e)
	if err != nil {
		return
	}
	key := fmt.Sprintf("%s:%d:%s", e.Kind, e.At.UnixNano(), uuid.NewString()[:8])
	// Best effort: a failed audit write must not fail the operation.
	_ = b.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), val)
	})
}

// ListByKind returns up to limit entries of the given kind, oldest first.
func (b *Badger) ListByKind(kind string, limit int) ([]Entry, error) {
	var entries []Entry
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(kind + ":")
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			if limit > 0 && len(entries) >= limit {
				break
			}
			err := it.Item().Value(func(val []byte) error {
				var e Entry
				if err := json.Unmarshal(val, &e); err != nil {
					return err
				}
				entries = append(entries, e)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// Memory keeps entries in a slice, for tests and the memory storage mode.
type Memory struct {
	mu      sync.Mutex
	entries []Entry
}

func (m *Memory) Record(_ context.Context, e Entry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, e)
}

// Entries returns a copy of everything recorded so far.
func (m *Memory) Entries() []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Entry, len(m.entries))
	copy(out, m.entries)
	return out
}

// ByKind filters recorded entries by kind.
func (m *Memory) ByKind(kind string) []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Entry
	for _, e := range m.entries {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}
