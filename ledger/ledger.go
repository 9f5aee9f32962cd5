// Package ledger records focus intervals (time sessions) per task and
// turns them into durable total_time credits when they close.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ahmadzakiakmal/timetrack/clock"
	"github.com/ahmadzakiakmal/timetrack/journal"
	"github.com/ahmadzakiakmal/timetrack/logging"
	"github.com/ahmadzakiakmal/timetrack/repository/models"
)

var (
	// ErrSessionActive is returned by Open when the task already has an
	// open session.
	ErrSessionActive = errors.New("task already has an active session")
	// ErrSessionClosed is returned by Close when the session is not
	// active anymore. Closing is never silently double-credited.
	ErrSessionClosed = errors.New("session already closed")
)

// Store is the slice of persistence the ledger needs. The full store
// used by the engine satisfies it.
type Store interface {
	InsertSession(ctx context.Context, s *models.TimeSession) error
	UpdateSession(ctx context.Context, s *models.TimeSession) error
	SessionByID(ctx context.Context, id string) (*models.TimeSession, error)
	ActiveSessionByTask(ctx context.Context, taskID string) (*models.TimeSession, error)
	ActiveSessionsByOwner(ctx context.Context, ownerID string) ([]models.TimeSession, error)
	SessionsByTask(ctx context.Context, taskID string) ([]models.TimeSession, error)
	AddTaskTime(ctx context.Context, taskID string, seconds int64, now time.Time) error
}

// Ledger opens and closes sessions against whatever store it is handed,
// so the engine can run it inside a storage transaction.
type Ledger struct {
	clock   clock.Clock
	journal journal.Recorder
}

func New(clk clock.Clock, rec journal.Recorder) *Ledger {
	if rec == nil {
		rec = journal.Nop{}
	}
	return &Ledger{clock: clk, journal: rec}
}

// WithRecorder returns a copy of the ledger that records to rec instead
// of the recorder it was built with. The engine uses this to point the
// ledger at a per-transaction journal buffer.
func (l *Ledger) WithRecorder(rec journal.Recorder) *Ledger {
	cp := *l
	cp.journal = rec
	return &cp
}

// Open starts a new session for the task. Fails with ErrSessionActive if
// one is already open.
func (l *Ledger) Open(ctx context.Context, s Store, ownerID, taskID string) (*models.TimeSession, error) {
	_, err := s.ActiveSessionByTask(ctx, taskID)
	if err == nil {
		return nil, ErrSessionActive
	}
	if !errors.Is(err, models.ErrNotFound) {
		return nil, err
	}

	now := l.clock.Now()
	session := &models.TimeSession{
		ID:        uuid.NewString(),
		TaskID:    taskID,
		OwnerID:   ownerID,
		StartedAt: now,
		IsActive:  true,
		CreatedAt: now,
	}
	if err := s.InsertSession(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

// FindActive returns the open session for the task, or nil if there is
// none.
func (l *Ledger) FindActive(ctx context.Context, s Store, taskID string) (*models.TimeSession, error) {
	session, err := s.ActiveSessionByTask(ctx, taskID)
	if errors.Is(err, models.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return session, nil
}

// Close ends the session, computes its duration, and credits the owning
// task's total_time in the same store. A non-positive delta between the
// clock and started_at is clamped to zero; the raw value is journaled.
func (l *Ledger) Close(ctx context.Context, s Store, sessionID, note string) (*models.TimeSession, error) {
	session, err := s.SessionByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !session.IsActive {
		return nil, ErrSessionClosed
	}
	return l.close(ctx, s, session, note)
}

func (l *Ledger) close(ctx context.Context, s Store, session *models.TimeSession, note string) (*models.TimeSession, error) {
	now := l.clock.Now()
	raw := int64(now.Sub(session.StartedAt) / time.Second)
	duration := raw
	if raw < 0 {
		duration = 0
		logging.Log(fmt.Sprintf("clock skew closing session %s: raw delta %ds", session.ID, raw), slog.LevelWarn)
		l.journal.Record(ctx, journal.Entry{
			Kind:       journal.KindClockSkew,
			OwnerID:    session.OwnerID,
			TaskID:     session.TaskID,
			SessionID:  session.ID,
			RawSeconds: raw,
			Detail:     "negative session delta clamped to 0",
			At:         now,
		})
	}

	session.EndedAt = &now
	session.Duration = duration
	session.IsActive = false
	if note != "" {
		session.Note = note
	}
	if err := s.UpdateSession(ctx, session); err != nil {
		return nil, err
	}
	if err := s.AddTaskTime(ctx, session.TaskID, duration, now); err != nil {
		return nil, err
	}
	return session, nil
}

// CloseAllActiveForOwner ends every open session the owner has,
// crediting each one, and returns the closed sessions.
func (l *Ledger) CloseAllActiveForOwner(ctx context.Context, s Store, ownerID string) ([]models.TimeSession, error) {
	active, err := s.ActiveSessionsByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	closed := make([]models.TimeSession, 0, len(active))
	for i := range active {
		session, err := l.close(ctx, s, &active[i], "")
		if err != nil {
			return nil, err
		}
		closed = append(closed, *session)
	}
	return closed, nil
}

// ListByTask returns the task's sessions, newest first.
func (l *Ledger) ListByTask(ctx context.Context, s Store, taskID string) ([]models.TimeSession, error) {
	return s.SessionsByTask(ctx, taskID)
}
