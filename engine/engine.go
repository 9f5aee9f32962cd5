// Package engine owns the task lifecycle state machine. It enforces the
// two core invariants: per owner at most one task is in_progress, and
// per task at most one time session is open. Every lifecycle mutation
// for an owner is serialized through a per-owner mutex and applied in a
// single store transaction.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/ahmadzakiakmal/timetrack/clock"
	"github.com/ahmadzakiakmal/timetrack/journal"
	"github.com/ahmadzakiakmal/timetrack/ledger"
	"github.com/ahmadzakiakmal/timetrack/logging"
	"github.com/ahmadzakiakmal/timetrack/repository/models"
)

type Engine struct {
	store   Store
	ledger  *ledger.Ledger
	clock   clock.Clock
	journal journal.Recorder

	mu     sync.Mutex
	owners map[string]*sync.Mutex
}

func New(store Store, led *ledger.Ledger, clk clock.Clock, rec journal.Recorder) *Engine {
	if rec == nil {
		rec = journal.Nop{}
	}
	return &Engine{
		store:   store,
		ledger:  led,
		clock:   clk,
		journal: rec,
		owners:  make(map[string]*sync.Mutex),
	}
}

// ownerLock is the serialization point for one owner's lifecycle
// mutations. Two concurrent starts for the same owner take turns here,
// so both observe (and repair) the other's in_progress state.
func (e *Engine) ownerLock(ownerID string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.owners[ownerID]
	if !ok {
		l = &sync.Mutex{}
		e.owners[ownerID] = l
	}
	return l
}

// txScope bundles the transactional view of the store with the journal
// buffer and the ledger bound to it for one lifecycle operation.
type txScope struct {
	tx  Store
	led *ledger.Ledger
	rec journal.Recorder
}

// atomic runs fn in one store transaction, buffering journal entries and
// flushing them only after the transaction commits. A transaction that
// fails leaves no audit trace of the state it rolled back.
func (e *Engine) atomic(ctx context.Context, fn func(s *txScope) error) error {
	buf := &journal.Buffer{}
	err := e.store.Atomic(ctx, func(tx Store) error {
		return fn(&txScope{tx: tx, led: e.ledger.WithRecorder(buf), rec: buf})
	})
	if err != nil {
		return err
	}
	buf.Flush(ctx, e.journal)
	return nil
}

// CreateTaskInput carries the fields accepted at creation time.
type CreateTaskInput struct {
	Title       string
	Description string
	Priority    models.TaskPriority
	Status      models.TaskStatus
	CategoryID  *string
	Tags        []string
	Notes       string
}

// CreateTask validates and persists a new task. If the requested initial
// status is in_progress the full start sequence runs before returning,
// so creation cannot bypass the single-active-task invariant.
func (e *Engine) CreateTask(ctx context.Context, ownerID string, in CreateTaskInput) (*models.Task, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, validationErr("task title is required")
	}
	if in.Priority == "" {
		in.Priority = models.PriorityMedium
	}
	if !models.ValidPriority(in.Priority) {
		return nil, validationErr("invalid priority level")
	}
	if in.Status == "" {
		in.Status = models.StatusPending
	}
	if !models.ValidStatus(in.Status) {
		return nil, validationErr("invalid status")
	}

	lock := e.ownerLock(ownerID)
	lock.Lock()
	defer lock.Unlock()

	now := e.clock.Now()
	task := &models.Task{
		ID:          uuid.NewString(),
		OwnerID:     ownerID,
		Title:       title,
		Description: strings.TrimSpace(in.Description),
		Status:      models.StatusPending,
		Priority:    in.Priority,
		Tags:        in.Tags,
		Notes:       strings.TrimSpace(in.Notes),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if task.Tags == nil {
		task.Tags = []string{}
	}

	err := e.atomic(ctx, func(s *txScope) error {
		if in.CategoryID != nil && *in.CategoryID != "" {
			if _, err := s.tx.CategoryByID(ctx, ownerID, *in.CategoryID); err != nil {
				return wrapErr(err, "category not found")
			}
			task.CategoryID = in.CategoryID
		}
		if err := s.tx.InsertTask(ctx, task); err != nil {
			return wrapErr(err, "failed to create task")
		}
		switch in.Status {
		case models.StatusInProgress:
			return e.activate(ctx, s, ownerID, task.ID)
		case models.StatusPending:
			return nil
		default:
			return e.setStatus(ctx, s, task, in.Status)
		}
	})
	if err != nil {
		return nil, err
	}
	return e.GetTask(ctx, ownerID, task.ID)
}

// StartTask makes the task the owner's single active one: every other
// in_progress task is paused with its session closed and credited, then
// the target goes in_progress with a fresh open session.
func (e *Engine) StartTask(ctx context.Context, ownerID, taskID string) (*models.Task, error) {
	lock := e.ownerLock(ownerID)
	lock.Lock()
	defer lock.Unlock()

	err := e.atomic(ctx, func(s *txScope) error {
		if _, err := s.tx.TaskByID(ctx, ownerID, taskID); err != nil {
			return wrapErr(err, "task not found")
		}
		return e.activate(ctx, s, ownerID, taskID)
	})
	if err != nil {
		return nil, err
	}
	return e.GetTask(ctx, ownerID, taskID)
}

// activate runs the ordered start sequence under the owner lock:
// sweep-pause every other active task (closing and crediting sessions),
// then flip the target and open its session. Re-activating the sole
// active task never opens a duplicate session but still sweeps.
func (e *Engine) activate(ctx context.Context, s *txScope, ownerID, taskID string) error {
	now := e.clock.Now()

	active, err := s.tx.TasksByStatus(ctx, ownerID, models.StatusInProgress)
	if err != nil {
		return wrapErr(err, "failed to list active tasks")
	}
	for i := range active {
		other := &active[i]
		if other.ID == taskID {
			continue
		}
		if err := e.closeActiveSession(ctx, s, other.ID, ""); err != nil {
			return err
		}
		if err := s.tx.SetTaskStatus(ctx, other.ID, models.StatusPaused, now); err != nil {
			return wrapErr(err, "failed to pause task")
		}
		s.rec.Record(ctx, journal.Entry{
			Kind: journal.KindTransition, OwnerID: ownerID, TaskID: other.ID,
			From: string(models.StatusInProgress), To: string(models.StatusPaused),
			Detail: "swept by start of " + taskID, At: now,
		})
	}

	task, err := s.tx.TaskByID(ctx, ownerID, taskID)
	if err != nil {
		return wrapErr(err, "task not found")
	}
	if task.Status != models.StatusInProgress {
		if err := s.tx.SetTaskStatus(ctx, taskID, models.StatusInProgress, now); err != nil {
			return wrapErr(err, "failed to start task")
		}
		s.rec.Record(ctx, journal.Entry{
			Kind: journal.KindTransition, OwnerID: ownerID, TaskID: taskID,
			From: string(task.Status), To: string(models.StatusInProgress), At: now,
		})
	}

	open, err := s.led.FindActive(ctx, s.tx, taskID)
	if err != nil {
		return wrapErr(err, "failed to look up active session")
	}
	if open == nil {
		if _, err := s.led.Open(ctx, s.tx, ownerID, taskID); err != nil {
			return wrapErr(err, "failed to open session")
		}
	}
	return nil
}

// closeActiveSession closes and credits the task's open session if one
// exists. A missing session on an in_progress task is tolerated here;
// callers that treat it as an anomaly journal it themselves.
func (e *Engine) closeActiveSession(ctx context.Context, s *txScope, taskID, note string) error {
	open, err := s.led.FindActive(ctx, s.tx, taskID)
	if err != nil {
		return wrapErr(err, "failed to look up active session")
	}
	if open == nil {
		return nil
	}
	if _, err := s.led.Close(ctx, s.tx, open.ID, note); err != nil {
		return wrapErr(err, "failed to close session")
	}
	return nil
}

// PauseTask closes the active session, credits its duration, and parks
// the task. Only an in_progress task can be paused.
func (e *Engine) PauseTask(ctx context.Context, ownerID, taskID string) (*models.Task, error) {
	lock := e.ownerLock(ownerID)
	lock.Lock()
	defer lock.Unlock()

	err := e.atomic(ctx, func(s *txScope) error {
		task, err := s.tx.TaskByID(ctx, ownerID, taskID)
		if err != nil {
			return wrapErr(err, "task not found")
		}
		if task.Status != models.StatusInProgress {
			return invalidStateErr("task is not currently in progress")
		}
		if err := e.closeActiveSession(ctx, s, taskID, ""); err != nil {
			return err
		}
		now := e.clock.Now()
		if err := s.tx.SetTaskStatus(ctx, taskID, models.StatusPaused, now); err != nil {
			return wrapErr(err, "failed to pause task")
		}
		s.rec.Record(ctx, journal.Entry{
			Kind: journal.KindTransition, OwnerID: ownerID, TaskID: taskID,
			From: string(models.StatusInProgress), To: string(models.StatusPaused), At: now,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return e.GetTask(ctx, ownerID, taskID)
}

// FinishTask completes the task from any non-completed status. An open
// session, if present, is closed and credited with the note attached.
func (e *Engine) FinishTask(ctx context.Context, ownerID, taskID, note string) (*models.Task, error) {
	lock := e.ownerLock(ownerID)
	lock.Lock()
	defer lock.Unlock()

	err := e.atomic(ctx, func(s *txScope) error {
		task, err := s.tx.TaskByID(ctx, ownerID, taskID)
		if err != nil {
			return wrapErr(err, "task not found")
		}
		if task.Status == models.StatusCompleted {
			return invalidStateErr("task is already completed")
		}
		return e.finish(ctx, s, task, note)
	})
	if err != nil {
		return nil, err
	}
	return e.GetTask(ctx, ownerID, taskID)
}

func (e *Engine) finish(ctx context.Context, s *txScope, task *models.Task, note string) error {
	if err := e.closeActiveSession(ctx, s, task.ID, note); err != nil {
		return err
	}
	now := e.clock.Now()
	if err := s.tx.SetTaskStatus(ctx, task.ID, models.StatusCompleted, now); err != nil {
		return wrapErr(err, "failed to finish task")
	}
	s.rec.Record(ctx, journal.Entry{
		Kind: journal.KindTransition, OwnerID: task.OwnerID, TaskID: task.ID,
		From: string(task.Status), To: string(models.StatusCompleted), At: now,
	})
	return nil
}

// PauseAll parks every in_progress task the owner has and then sweeps
// orphan open sessions: a session left open on a task that is not
// in_progress is a consistency anomaly that is still closed, credited,
// and journaled. Returns the number of tasks transitioned.
func (e *Engine) PauseAll(ctx context.Context, ownerID string) (int, error) {
	lock := e.ownerLock(ownerID)
	lock.Lock()
	defer lock.Unlock()

	paused := 0
	err := e.atomic(ctx, func(s *txScope) error {
		now := e.clock.Now()
		active, err := s.tx.TasksByStatus(ctx, ownerID, models.StatusInProgress)
		if err != nil {
			return wrapErr(err, "failed to list active tasks")
		}
		for i := range active {
			task := &active[i]
			if err := e.closeActiveSession(ctx, s, task.ID, ""); err != nil {
				return err
			}
			if err := s.tx.SetTaskStatus(ctx, task.ID, models.StatusPaused, now); err != nil {
				return wrapErr(err, "failed to pause task")
			}
			s.rec.Record(ctx, journal.Entry{
				Kind: journal.KindTransition, OwnerID: ownerID, TaskID: task.ID,
				From: string(models.StatusInProgress), To: string(models.StatusPaused), At: now,
			})
			paused++
		}

		orphans, err := s.led.CloseAllActiveForOwner(ctx, s.tx, ownerID)
		if err != nil {
			return wrapErr(err, "failed to close orphan sessions")
		}
		for _, orphan := range orphans {
			logging.Log(fmt.Sprintf("closed orphan session %s for task %s", orphan.ID, orphan.TaskID), slog.LevelWarn)
			s.rec.Record(ctx, journal.Entry{
				Kind: journal.KindAnomaly, OwnerID: ownerID, TaskID: orphan.TaskID, SessionID: orphan.ID,
				Detail: "active session without in_progress task", At: now,
			})
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return paused, nil
}

// UpdateTaskInput is a partial task update. Nil fields are untouched. An
// empty CategoryID clears the category.
type UpdateTaskInput struct {
	Title       *string
	Description *string
	Priority    *models.TaskPriority
	Status      *models.TaskStatus
	CategoryID  *string
	Tags        *[]string
	Notes       *string
}

// UpdateTask applies a partial field update. A status change carries the
// side effects of the target status: in_progress runs the start
// sequence, paused from in_progress closes the session, completed runs
// the finish sequence. Leaving completed clears completed_at.
func (e *Engine) UpdateTask(ctx context.Context, ownerID, taskID string, in UpdateTaskInput) (*models.Task, error) {
	if in.Title != nil && strings.TrimSpace(*in.Title) == "" {
		return nil, validationErr("task title is required")
	}
	if in.Priority != nil && !models.ValidPriority(*in.Priority) {
		return nil, validationErr("invalid priority level")
	}
	if in.Status != nil && !models.ValidStatus(*in.Status) {
		return nil, validationErr("invalid status")
	}

	lock := e.ownerLock(ownerID)
	lock.Lock()
	defer lock.Unlock()

	err := e.atomic(ctx, func(s *txScope) error {
		task, err := s.tx.TaskByID(ctx, ownerID, taskID)
		if err != nil {
			return wrapErr(err, "task not found")
		}
		oldStatus := task.Status

		if in.Title != nil {
			task.Title = strings.TrimSpace(*in.Title)
		}
		if in.Description != nil {
			task.Description = strings.TrimSpace(*in.Description)
		}
		if in.Priority != nil {
			task.Priority = *in.Priority
		}
		if in.Tags != nil {
			task.Tags = *in.Tags
		}
		if in.Notes != nil {
			task.Notes = strings.TrimSpace(*in.Notes)
		}
		if in.CategoryID != nil {
			if *in.CategoryID == "" {
				task.CategoryID = nil
			} else {
				if _, err := s.tx.CategoryByID(ctx, ownerID, *in.CategoryID); err != nil {
					return wrapErr(err, "category not found")
				}
				task.CategoryID = in.CategoryID
			}
		}
		task.UpdatedAt = e.clock.Now()
		if err := s.tx.UpdateTask(ctx, task); err != nil {
			return wrapErr(err, "failed to update task")
		}

		if in.Status == nil || *in.Status == oldStatus {
			return nil
		}
		switch *in.Status {
		case models.StatusInProgress:
			return e.activate(ctx, s, ownerID, taskID)
		case models.StatusCompleted:
			return e.finish(ctx, s, task, "")
		default:
			return e.setStatus(ctx, s, task, *in.Status)
		}
	})
	if err != nil {
		return nil, err
	}
	return e.GetTask(ctx, ownerID, taskID)
}

// setStatus handles the plain transitions (to pending or paused): close
// the session when the task was actively running, then flip the status.
func (e *Engine) setStatus(ctx context.Context, s *txScope, task *models.Task, st models.TaskStatus) error {
	if task.Status == models.StatusInProgress {
		if err := e.closeActiveSession(ctx, s, task.ID, ""); err != nil {
			return err
		}
	}
	now := e.clock.Now()
	if err := s.tx.SetTaskStatus(ctx, task.ID, st, now); err != nil {
		return wrapErr(err, "failed to update status")
	}
	s.rec.Record(ctx, journal.Entry{
		Kind: journal.KindTransition, OwnerID: task.OwnerID, TaskID: task.ID,
		From: string(task.Status), To: string(st), At: now,
	})
	return nil
}

// GetTask returns the task, scoped to its owner.
func (e *Engine) GetTask(ctx context.Context, ownerID, taskID string) (*models.Task, error) {
	task, err := e.store.TaskByID(ctx, ownerID, taskID)
	if err != nil {
		return nil, wrapErr(err, "task not found")
	}
	return task, nil
}

// ListTasks returns the owner's tasks, newest first, optionally
// filtered by status, priority, or category.
func (e *Engine) ListTasks(ctx context.Context, ownerID string, f TaskFilter) ([]models.Task, error) {
	tasks, err := e.store.ListTasks(ctx, ownerID, f)
	if err != nil {
		return nil, wrapErr(err, "failed to list tasks")
	}
	return tasks, nil
}

// ActiveTask returns the owner's in_progress task, or nil if none.
func (e *Engine) ActiveTask(ctx context.Context, ownerID string) (*models.Task, error) {
	tasks, err := e.store.TasksByStatus(ctx, ownerID, models.StatusInProgress)
	if err != nil {
		return nil, wrapErr(err, "failed to query active task")
	}
	if len(tasks) == 0 {
		return nil, nil
	}
	return &tasks[0], nil
}

// DeleteTask removes the task together with its sessions and links. An
// open session is closed and credited first, so the transition is
// journaled before the history disappears.
func (e *Engine) DeleteTask(ctx context.Context, ownerID, taskID string) error {
	lock := e.ownerLock(ownerID)
	lock.Lock()
	defer lock.Unlock()

	return e.atomic(ctx, func(s *txScope) error {
		if _, err := s.tx.TaskByID(ctx, ownerID, taskID); err != nil {
			return wrapErr(err, "task not found")
		}
		if err := e.closeActiveSession(ctx, s, taskID, ""); err != nil {
			return err
		}
		if err := s.tx.DeleteLinksByTask(ctx, taskID); err != nil {
			return wrapErr(err, "failed to delete task links")
		}
		if err := s.tx.DeleteTask(ctx, ownerID, taskID); err != nil {
			return wrapErr(err, "failed to delete task")
		}
		return nil
	})
}

// Sessions returns the task's sessions, newest first.
func (e *Engine) Sessions(ctx context.Context, ownerID, taskID string) ([]models.TimeSession, error) {
	if _, err := e.store.TaskByID(ctx, ownerID, taskID); err != nil {
		return nil, wrapErr(err, "task not found")
	}
	sessions, err := e.ledger.ListByTask(ctx, e.store, taskID)
	if err != nil {
		return nil, wrapErr(err, "failed to list sessions")
	}
	return sessions, nil
}
