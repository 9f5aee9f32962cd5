package inmem

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ahmadzakiakmal/timetrack/engine"
	"github.com/ahmadzakiakmal/timetrack/repository/models"
)

func TestAtomicRollsBackOnError(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	now := time.Now()

	boom := errors.New("boom")
	err := store.Atomic(ctx, func(tx engine.Store) error {
		if err := tx.InsertTask(ctx, &models.Task{
			ID: "TSK-1", OwnerID: "u1", Title: "doomed",
			Status: models.StatusPending, Priority: models.PriorityMedium,
			CreatedAt: now, UpdatedAt: now,
		}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}
	if _, err := store.TaskByID(ctx, "u1", "TSK-1"); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("task survived rollback: %v", err)
	}
}

func TestAtomicCommits(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	now := time.Now()

	err := store.Atomic(ctx, func(tx engine.Store) error {
		return tx.InsertTask(ctx, &models.Task{
			ID: "TSK-1", OwnerID: "u1", Title: "kept",
			Status: models.StatusPending, Priority: models.PriorityMedium,
			CreatedAt: now, UpdatedAt: now,
		})
	})
	if err != nil {
		t.Fatalf("Atomic: %v", err)
	}
	task, err := store.TaskByID(ctx, "u1", "TSK-1")
	if err != nil {
		t.Fatalf("TaskByID: %v", err)
	}
	if task.Title != "kept" {
		t.Errorf("title = %q", task.Title)
	}
}

func TestCopiesAreIsolated(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	now := time.Now()

	if err := store.InsertTask(ctx, &models.Task{
		ID: "TSK-1", OwnerID: "u1", Title: "original",
		Status: models.StatusPending, Priority: models.PriorityMedium,
		Tags: []string{"a"}, CreatedAt: now, UpdatedAt: now,
	}); err != nil {
		t.Fatalf("InsertTask: %v", err)
	}

	got, _ := store.TaskByID(ctx, "u1", "TSK-1")
	got.Title = "mutated"
	got.Tags[0] = "z"

	fresh, _ := store.TaskByID(ctx, "u1", "TSK-1")
	if fresh.Title != "original" || fresh.Tags[0] != "a" {
		t.Errorf("caller mutation leaked into store: %+v", fresh)
	}
}
