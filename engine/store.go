package engine

import (
	"context"
	"time"

	"github.com/ahmadzakiakmal/timetrack/ledger"
	"github.com/ahmadzakiakmal/timetrack/repository/models"
)

// TaskFilter narrows ListTasks. Nil fields match everything.
type TaskFilter struct {
	Status     *models.TaskStatus
	Priority   *models.TaskPriority
	CategoryID *string
}

// Store is the persistence collaborator the engine drives. Lookups that
// match nothing return models.ErrNotFound. Implementations must scope
// every task/category/link query by owner.
type Store interface {
	ledger.Store

	// Atomic runs fn against a store bound to one transaction; if fn
	// returns an error nothing fn did is kept.
	Atomic(ctx context.Context, fn func(Store) error) error

	InsertTask(ctx context.Context, t *models.Task) error
	UpdateTask(ctx context.Context, t *models.Task) error
	// SetTaskStatus updates only status, completed_at, and updated_at.
	// completed_at is derived: set to now when st is completed, cleared
	// otherwise.
	SetTaskStatus(ctx context.Context, taskID string, st models.TaskStatus, now time.Time) error
	DeleteTask(ctx context.Context, ownerID, taskID string) error
	TaskByID(ctx context.Context, ownerID, taskID string) (*models.Task, error)
	ListTasks(ctx context.Context, ownerID string, f TaskFilter) ([]models.Task, error)
	TasksByStatus(ctx context.Context, ownerID string, st models.TaskStatus) ([]models.Task, error)
	CountTasksByCategory(ctx context.Context, ownerID, categoryID string) (int64, error)

	SessionsByOwner(ctx context.Context, ownerID string) ([]models.TimeSession, error)
	SessionsInRange(ctx context.Context, ownerID string, from, to time.Time) ([]models.TimeSession, error)

	InsertCategory(ctx context.Context, c *models.Category) error
	UpdateCategory(ctx context.Context, c *models.Category) error
	DeleteCategory(ctx context.Context, ownerID, categoryID string) error
	CategoryByID(ctx context.Context, ownerID, categoryID string) (*models.Category, error)
	CategoryByName(ctx context.Context, ownerID, name string) (*models.Category, error)
	ListCategories(ctx context.Context, ownerID string) ([]models.Category, error)

	InsertLink(ctx context.Context, l *models.TaskLink) error
	LinkByID(ctx context.Context, ownerID, linkID string) (*models.TaskLink, error)
	LinksByTask(ctx context.Context, taskID string) ([]models.TaskLink, error)
	DeleteLink(ctx context.Context, ownerID, linkID string) error
	DeleteLinksByTask(ctx context.Context, taskID string) error

	InsertUser(ctx context.Context, u *models.User) error
	UserByEmail(ctx context.Context, email string) (*models.User, error)
	UserByID(ctx context.Context, userID string) (*models.User, error)
}
