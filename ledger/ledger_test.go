package ledger_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ahmadzakiakmal/timetrack/clock"
	"github.com/ahmadzakiakmal/timetrack/journal"
	"github.com/ahmadzakiakmal/timetrack/ledger"
	"github.com/ahmadzakiakmal/timetrack/repository/inmem"
	"github.com/ahmadzakiakmal/timetrack/repository/models"
)

const owner = "USR-LEDGER-001"

func setup(t *testing.T) (*ledger.Ledger, *inmem.Store, *clock.Manual, *journal.Memory, *models.Task) {
	t.Helper()
	store := inmem.NewStore()
	clk := clock.NewManual(time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC))
	rec := &journal.Memory{}
	led := ledger.New(clk, rec)

	task := &models.Task{
		ID:        "TSK-001",
		OwnerID:   owner,
		Title:     "ledger target",
		Status:    models.StatusInProgress,
		Priority:  models.PriorityMedium,
		CreatedAt: clk.Now(),
		UpdatedAt: clk.Now(),
	}
	if err := store.InsertTask(context.Background(), task); err != nil {
		t.Fatalf("InsertTask: %v", err)
	}
	return led, store, clk, rec, task
}

func TestOpenAndClose(t *testing.T) {
	led, store, clk, _, task := setup(t)
	ctx := context.Background()

	session, err := led.Open(ctx, store, owner, task.ID)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if !session.IsActive {
		t.Fatal("new session should be active")
	}

	t.Run("second open rejected", func(t *testing.T) {
		_, err := led.Open(ctx, store, owner, task.ID)
		if !errors.Is(err, ledger.ErrSessionActive) {
			t.Fatalf("err = %v, want ErrSessionActive", err)
		}
	})

	clk.Advance(90 * time.Second)
	closed, err := led.Close(ctx, store, session.ID, "break")
	if err != nil {
		t.Fatalf("Close: %v", err)
	}
	if closed.Duration != 90 {
		t.Errorf("duration = %d, want 90", closed.Duration)
	}
	if closed.IsActive || closed.EndedAt == nil {
		t.Errorf("session not closed: %+v", closed)
	}
	if closed.Note != "break" {
		t.Errorf("note = %q", closed.Note)
	}

	got, err := store.TaskByID(ctx, owner, task.ID)
	if err != nil {
		t.Fatalf("TaskByID: %v", err)
	}
	if got.TotalTime != 90 {
		t.Errorf("task total_time = %d, want 90", got.TotalTime)
	}

	t.Run("double close rejected", func(t *testing.T) {
		_, err := led.Close(ctx, store, session.ID, "")
		if !errors.Is(err, ledger.ErrSessionClosed) {
			t.Fatalf("err = %v, want ErrSessionClosed", err)
		}
		// Credit must not apply twice.
		got, _ := store.TaskByID(ctx, owner, task.ID)
		if got.TotalTime != 90 {
			t.Errorf("total_time = %d after double close, want 90", got.TotalTime)
		}
	})
}

func TestCloseClampsNegativeDelta(t *testing.T) {
	led, store, clk, rec, task := setup(t)
	ctx := context.Background()

	session, err := led.Open(ctx, store, owner, task.ID)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	clk.Set(clk.Now().Add(-42 * time.Second))

	closed, err := led.Close(ctx, store, session.ID, "")
	if err != nil {
		t.Fatalf("Close: %v", err)
	}
	if closed.Duration != 0 {
		t.Errorf("duration = %d, want 0", closed.Duration)
	}

	got, _ := store.TaskByID(ctx, owner, task.ID)
	if got.TotalTime != 0 {
		t.Errorf("total_time = %d, want 0", got.TotalTime)
	}

	skews := rec.ByKind(journal.KindClockSkew)
	if len(skews) != 1 {
		t.Fatalf("clock_skew entries = %d, want 1", len(skews))
	}
	if skews[0].RawSeconds != -42 {
		t.Errorf("raw seconds = %d, want -42", skews[0].RawSeconds)
	}
}

func TestFindActive(t *testing.T) {
	led, store, _, _, task := setup(t)
	ctx := context.Background()

	got, err := led.FindActive(ctx, store, task.ID)
	if err != nil {
		t.Fatalf("FindActive: %v", err)
	}
	if got != nil {
		t.Fatalf("want nil when no session open, got %+v", got)
	}

	session, _ := led.Open(ctx, store, owner, task.ID)
	got, err = led.FindActive(ctx, store, task.ID)
	if err != nil {
		t.Fatalf("FindActive: %v", err)
	}
	if got == nil || got.ID != session.ID {
		t.Fatalf("got %+v, want %s", got, session.ID)
	}
}

func TestCloseAllActiveForOwner(t *testing.T) {
	led, store, clk, _, task := setup(t)
	ctx := context.Background()

	other := &models.Task{
		ID:        "TSK-002",
		OwnerID:   owner,
		Title:     "second",
		Status:    models.StatusInProgress,
		Priority:  models.PriorityMedium,
		CreatedAt: clk.Now(),
		UpdatedAt: clk.Now(),
	}
	if err := store.InsertTask(ctx, other); err != nil {
		t.Fatalf("InsertTask: %v", err)
	}

	if _, err := led.Open(ctx, store, owner, task.ID); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := led.Open(ctx, store, owner, other.ID); err != nil {
		t.Fatalf("Open: %v", err)
	}
	clk.Advance(15 * time.Second)

	closed, err := led.CloseAllActiveForOwner(ctx, store, owner)
	if err != nil {
		t.Fatalf("CloseAllActiveForOwner: %v", err)
	}
	if len(closed) != 2 {
		t.Fatalf("closed = %d, want 2", len(closed))
	}
	for _, s := range closed {
		if s.IsActive || s.Duration != 15 {
			t.Errorf("session %s: active=%v dur=%d, want closed/15s", s.ID, s.IsActive, s.Duration)
		}
	}

	active, _ := store.ActiveSessionsByOwner(ctx, owner)
	if len(active) != 0 {
		t.Errorf("active sessions remaining = %d, want 0", len(active))
	}
}
