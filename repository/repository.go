// Package repository is the Postgres persistence layer. It implements
// the store interface the task engine drives, mapping gorm and pgconn
// errors into typed repository errors.
package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/ahmadzakiakmal/timetrack/engine"
	"github.com/ahmadzakiakmal/timetrack/logging"
	"github.com/ahmadzakiakmal/timetrack/repository/models"
)

// PostgreSQL error codes as constants
const (
	// Class 23 — Integrity Constraint Violation
	PgErrForeignKeyViolation = "23503" // foreign_key_violation
	PgErrUniqueViolation     = "23505" // unique_violation
	PgErrCheckViolation      = "23514" // check_violation
	PgErrNotNullViolation    = "23502" // not_null_violation

	// Class 40 — Transaction Rollback
	PgErrTransactionRollback = "40000" // transaction_rollback
	PgErrSerializationFail   = "40001" // serialization_failure

	// Class 08 — Connection Exception
	PgErrConnectionException = "08000" // connection_exception
	PgErrConnectionFailure   = "08006" // connection_failure
)

// RepositoryError represents an error in the persistence layer.
type RepositoryError struct {
	Code    string
	Message string
	Detail  string
}

func (e *RepositoryError) Error() string {
	return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Detail)
}

// dbErr translates gorm/pgconn errors into the errors the engine
// expects: gorm.ErrRecordNotFound becomes models.ErrNotFound, unique
// violations become models.ErrDuplicate, other Postgres errors keep
// their SQLSTATE code.
func dbErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Code == PgErrUniqueViolation {
			return fmt.Errorf("%w: %s", models.ErrDuplicate, pgErr.Detail)
		}
		return &RepositoryError{
			Code:    pgErr.Code,
			Message: pgErr.Message,
			Detail:  pgErr.Detail,
		}
	}
	return &RepositoryError{
		Code:    "DATABASE_ERROR",
		Message: "database error occurred",
		Detail:  err.Error(),
	}
}

type Repository struct {
	db *gorm.DB
}

var _ engine.Store = (*Repository)(nil)

func NewRepository() *Repository {
	return &Repository{}
}

// ConnectDB dials Postgres, retrying for a while so the service can
// come up before the database does.
func (r *Repository) ConnectDB(dsn string) error {
	var lastErr error
	for i := range 10 {
		logging.Log(fmt.Sprintf("Postgres connection attempt %d...", i+1), slog.LevelInfo)
		db, err := gorm.Open(postgres.Open(dsn))
		if err == nil {
			r.db = db
			logging.Log("Connected to Postgres", slog.LevelInfo)
			return nil
		}
		lastErr = err
		logging.Log(fmt.Sprintf("Connection attempt %d failed: %v", i+1, err), slog.LevelWarn)
		time.Sleep(2 * time.Second)
	}
	return fmt.Errorf("connect postgres: %w", lastErr)
}

func (r *Repository) Migrate() error {
	err := r.db.AutoMigrate(
		&models.User{},
		&models.Category{},
		&models.Task{},
		&models.TimeSession{},
		&models.TaskLink{},
	)
	if err != nil {
		return dbErr(err)
	}
	logging.Log("Database migration completed successfully", slog.LevelInfo)
	return nil
}

// Seed inserts a demo user and starter categories so a fresh install
// is usable immediately. Safe to run repeatedly.
func (r *Repository) Seed() {
	var userCount int64
	r.db.Model(&models.User{}).Count(&userCount)
	if userCount > 0 {
		logging.Log("Seed data already exists, skipping...", slog.LevelInfo)
		return
	}

	logging.Log("Seeding database with initial data...", slog.LevelInfo)

	demo := models.User{
		ID:       "USR-DEMO-001",
		FullName: "Demo User",
		Email:    "demo@timetrack.local",
		Password: "demo-password",
	}
	if err := r.db.Create(&demo).Error; err != nil {
		logging.Log(fmt.Sprintf("Error creating demo user: %v", err), slog.LevelError)
	}

	categories := []models.Category{
		{ID: "CTG-001", OwnerID: demo.ID, Name: "Work", Color: "#007bff", Description: "Job and client work"},
		{ID: "CTG-002", OwnerID: demo.ID, Name: "Personal", Color: "#28a745", Description: "Errands and personal projects"},
		{ID: "CTG-003", OwnerID: demo.ID, Name: "Learning", Color: "#ffc107", Description: "Courses, reading, practice"},
	}
	for _, category := range categories {
		if err := r.db.Create(&category).Error; err != nil {
			logging.Log(fmt.Sprintf("Error creating category %s: %v", category.ID, err), slog.LevelError)
		}
	}

	logging.Log("Database seeding completed successfully", slog.LevelInfo)
}

// Atomic runs fn inside one database transaction.
func (r *Repository) Atomic(ctx context.Context, fn func(engine.Store) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Repository{db: tx})
	})
}

// ---- tasks ----

func (r *Repository) InsertTask(ctx context.Context, t *models.Task) error {
	return dbErr(r.db.WithContext(ctx).Create(t).Error)
}

func (r *Repository) UpdateTask(ctx context.Context, t *models.Task) error {
	return dbErr(r.db.WithContext(ctx).Save(t).Error)
}

func (r *Repository) SetTaskStatus(ctx context.Context, taskID string, st models.TaskStatus, now time.Time) error {
	fields := map[string]interface{}{
		"status":     st,
		"updated_at": now,
	}
	if st == models.StatusCompleted {
		fields["completed_at"] = now
	} else {
		fields["completed_at"] = nil
	}
	res := r.db.WithContext(ctx).Model(&models.Task{}).
		Where("task_id = ?", taskID).
		Updates(fields)
	if res.Error != nil {
		return dbErr(res.Error)
	}
	if res.RowsAffected == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (r *Repository) DeleteTask(ctx context.Context, ownerID, taskID string) error {
	res := r.db.WithContext(ctx).
		Where("task_id = ? AND owner_id = ?", taskID, ownerID).
		Delete(&models.Task{})
	if res.Error != nil {
		return dbErr(res.Error)
	}
	if res.RowsAffected == 0 {
		return models.ErrNotFound
	}
	return dbErr(r.db.WithContext(ctx).Where("task_id = ?", taskID).Delete(&models.TimeSession{}).Error)
}

func (r *Repository) TaskByID(ctx context.Context, ownerID, taskID string) (*models.Task, error) {
	var task models.Task
	err := r.db.WithContext(ctx).
		Where("task_id = ? AND owner_id = ?", taskID, ownerID).
		First(&task).Error
	if err != nil {
		return nil, dbErr(err)
	}
	return &task, nil
}

func (r *Repository) ListTasks(ctx context.Context, ownerID string, f engine.TaskFilter) ([]models.Task, error) {
	q := r.db.WithContext(ctx).Where("owner_id = ?", ownerID)
	if f.Status != nil {
		q = q.Where("status = ?", *f.Status)
	}
	if f.Priority != nil {
		q = q.Where("priority = ?", *f.Priority)
	}
	if f.CategoryID != nil {
		q = q.Where("category_id = ?", *f.CategoryID)
	}
	var tasks []models.Task
	if err := q.Order("created_at DESC").Find(&tasks).Error; err != nil {
		return nil, dbErr(err)
	}
	return tasks, nil
}

func (r *Repository) TasksByStatus(ctx context.Context, ownerID string, st models.TaskStatus) ([]models.Task, error) {
	return r.ListTasks(ctx, ownerID, engine.TaskFilter{Status: &st})
}

func (r *Repository) CountTasksByCategory(ctx context.Context, ownerID, categoryID string) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.Task{}).
		Where("owner_id = ? AND category_id = ?", ownerID, categoryID).
		Count(&n).Error
	if err != nil {
		return 0, dbErr(err)
	}
	return n, nil
}

// AddTaskTime credits seconds to the task's running total in a single
// UPDATE, so concurrent credits never overwrite each other.
func (r *Repository) AddTaskTime(ctx context.Context, taskID string, seconds int64, now time.Time) error {
	res := r.db.WithContext(ctx).Model(&models.Task{}).
		Where("task_id = ?", taskID).
		Updates(map[string]interface{}{
			"total_time": gorm.Expr("total_time + ?", seconds),
			"updated_at": now,
		})
	if res.Error != nil {
		return dbErr(res.Error)
	}
	if res.RowsAffected == 0 {
		return models.ErrNotFound
	}
	return nil
}

// ---- sessions ----

func (r *Repository) InsertSession(ctx context.Context, s *models.TimeSession) error {
	return dbErr(r.db.WithContext(ctx).Create(s).Error)
}

func (r *Repository) UpdateSession(ctx context.Context, s *models.TimeSession) error {
	return dbErr(r.db.WithContext(ctx).Save(s).Error)
}

func (r *Repository) SessionByID(ctx context.Context, id string) (*models.TimeSession, error) {
	var session models.TimeSession
	err := r.db.WithContext(ctx).Where("session_id = ?", id).First(&session).Error
	if err != nil {
		return nil, dbErr(err)
	}
	return &session, nil
}

func (r *Repository) ActiveSessionByTask(ctx context.Context, taskID string) (*models.TimeSession, error) {
	var session models.TimeSession
	err := r.db.WithContext(ctx).
		Where("task_id = ? AND is_active = ?", taskID, true).
		First(&session).Error
	if err != nil {
		return nil, dbErr(err)
	}
	return &session, nil
}

func (r *Repository) ActiveSessionsByOwner(ctx context.Context, ownerID string) ([]models.TimeSession, error) {
	var sessions []models.TimeSession
	err := r.db.WithContext(ctx).
		Where("owner_id = ? AND is_active = ?", ownerID, true).
		Order("started_at DESC").
		Find(&sessions).Error
	if err != nil {
		return nil, dbErr(err)
	}
	return sessions, nil
}

func (r *Repository) SessionsByTask(ctx context.Context, taskID string) ([]models.TimeSession, error) {
	var sessions []models.TimeSession
	err := r.db.WithContext(ctx).
		Where("task_id = ?", taskID).
		Order("started_at DESC").
		Find(&sessions).Error
	if err != nil {
		return nil, dbErr(err)
	}
	return sessions, nil
}

func (r *Repository) SessionsByOwner(ctx context.Context, ownerID string) ([]models.TimeSession, error) {
	var sessions []models.TimeSession
	err := r.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("started_at DESC").
		Find(&sessions).Error
	if err != nil {
		return nil, dbErr(err)
	}
	return sessions, nil
}

func (r *Repository) SessionsInRange(ctx context.Context, ownerID string, from, to time.Time) ([]models.TimeSession, error) {
	var sessions []models.TimeSession
	err := r.db.WithContext(ctx).
		Where("owner_id = ? AND started_at BETWEEN ? AND ?", ownerID, from, to).
		Order("started_at DESC").
		Find(&sessions).Error
	if err != nil {
		return nil, dbErr(err)
	}
	return sessions, nil
}

// ---- categories ----

func (r *Repository) InsertCategory(ctx context.Context, c *models.Category) error {
	return dbErr(r.db.WithContext(ctx).Create(c).Error)
}

func (r *Repository) UpdateCategory(ctx context.Context, c *models.Category) error {
	return dbErr(r.db.WithContext(ctx).Save(c).Error)
}

func (r *Repository) DeleteCategory(ctx context.Context, ownerID, categoryID string) error {
	res := r.db.WithContext(ctx).
		Where("category_id = ? AND owner_id = ?", categoryID, ownerID).
		Delete(&models.Category{})
	if res.Error != nil {
		return dbErr(res.Error)
	}
	if res.RowsAffected == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (r *Repository) CategoryByID(ctx context.Context, ownerID, categoryID string) (*models.Category, error) {
	var category models.Category
	err := r.db.WithContext(ctx).
		Where("category_id = ? AND owner_id = ?", categoryID, ownerID).
		First(&category).Error
	if err != nil {
		return nil, dbErr(err)
	}
	return &category, nil
}

func (r *Repository) CategoryByName(ctx context.Context, ownerID, name string) (*models.Category, error) {
	var category models.Category
	err := r.db.WithContext(ctx).
		Where("owner_id = ? AND LOWER(name) = LOWER(?)", ownerID, name).
		First(&category).Error
	if err != nil {
		return nil, dbErr(err)
	}
	return &category, nil
}

func (r *Repository) ListCategories(ctx context.Context, ownerID string) ([]models.Category, error) {
	var categories []models.Category
	err := r.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("name ASC").
		Find(&categories).Error
	if err != nil {
		return nil, dbErr(err)
	}
	return categories, nil
}

// ---- links ----

func (r *Repository) InsertLink(ctx context.Context, l *models.TaskLink) error {
	return dbErr(r.db.WithContext(ctx).Create(l).Error)
}

func (r *Repository) LinkByID(ctx context.Context, ownerID, linkID string) (*models.TaskLink, error) {
	var link models.TaskLink
	err := r.db.WithContext(ctx).
		Where("link_id = ? AND owner_id = ?", linkID, ownerID).
		First(&link).Error
	if err != nil {
		return nil, dbErr(err)
	}
	return &link, nil
}

func (r *Repository) LinksByTask(ctx context.Context, taskID string) ([]models.TaskLink, error) {
	var links []models.TaskLink
	err := r.db.WithContext(ctx).
		Where("task_id = ?", taskID).
		Order("created_at ASC").
		Find(&links).Error
	if err != nil {
		return nil, dbErr(err)
	}
	return links, nil
}

func (r *Repository) DeleteLink(ctx context.Context, ownerID, linkID string) error {
	res := r.db.WithContext(ctx).
		Where("link_id = ? AND owner_id = ?", linkID, ownerID).
		Delete(&models.TaskLink{})
	if res.Error != nil {
		return dbErr(res.Error)
	}
	if res.RowsAffected == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (r *Repository) DeleteLinksByTask(ctx context.Context, taskID string) error {
	return dbErr(r.db.WithContext(ctx).Where("task_id = ?", taskID).Delete(&models.TaskLink{}).Error)
}

// ---- users ----

func (r *Repository) InsertUser(ctx context.Context, u *models.User) error {
	return dbErr(r.db.WithContext(ctx).Create(u).Error)
}

func (r *Repository) UserByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).Where("LOWER(email) = LOWER(?)", email).First(&user).Error
	if err != nil {
		return nil, dbErr(err)
	}
	return &user, nil
}

func (r *Repository) UserByID(ctx context.Context, userID string) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&user).Error
	if err != nil {
		return nil, dbErr(err)
	}
	return &user, nil
}
