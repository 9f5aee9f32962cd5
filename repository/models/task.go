package models

import "time"

// TaskStatus is the lifecycle state of a task.
type TaskStatus string

const (
	StatusPending    TaskStatus = "pending"
	StatusInProgress TaskStatus = "in_progress"
	StatusPaused     TaskStatus = "paused"
	StatusCompleted  TaskStatus = "completed"
)

// ValidStatus reports whether s is one of the known lifecycle states.
func ValidStatus(s TaskStatus) bool {
	switch s {
	case StatusPending, StatusInProgress, StatusPaused, StatusCompleted:
		return true
	}
	return false
}

// TaskPriority is the priority level of a task.
type TaskPriority string

const (
	PriorityLow    TaskPriority = "low"
	PriorityMedium TaskPriority = "medium"
	PriorityHigh   TaskPriority = "high"
)

// ValidPriority reports whether p is one of the known priority levels.
func ValidPriority(p TaskPriority) bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

// Task represents a unit of work owned by a single user.
// TotalTime accumulates the duration of every closed time session,
// only at the moment a session closes; it is never ticked while running.
type Task struct {
	ID          string       `gorm:"column:task_id;primaryKey;type:varchar(50)" json:"id"`
	OwnerID     string       `gorm:"column:owner_id;type:varchar(50);index;not null" json:"owner_id"`
	Title       string       `gorm:"column:title;type:varchar(255);not null" json:"title"`
	Description string       `gorm:"column:description;type:text" json:"description"`
	Status      TaskStatus   `gorm:"column:status;type:varchar(20);default:'pending'" json:"status"`
	Priority    TaskPriority `gorm:"column:priority;type:varchar(20);default:'medium'" json:"priority"`
	CategoryID  *string      `gorm:"column:category_id;type:varchar(50);index" json:"category"`
	Category    *Category    `gorm:"foreignKey:CategoryID" json:"-"`
	Tags        []string     `gorm:"column:tags;serializer:json;type:text" json:"tags"`
	Notes       string       `gorm:"column:notes;type:text" json:"notes"`
	TotalTime   int64        `gorm:"column:total_time;default:0" json:"total_time"`
	CreatedAt   time.Time    `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time    `gorm:"column:updated_at" json:"updated_at"`
	CompletedAt *time.Time   `gorm:"column:completed_at" json:"completed_at"`

	// Relationships
	Sessions []TimeSession `gorm:"foreignKey:TaskID" json:"-"`
	Links    []TaskLink    `gorm:"foreignKey:TaskID" json:"-"`
}
