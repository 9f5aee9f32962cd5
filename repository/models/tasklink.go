package models

import "time"

// TaskLink is a reference URL attached to a task.
type TaskLink struct {
	ID        string    `gorm:"column:link_id;primaryKey;type:varchar(50)" json:"id"`
	TaskID    string    `gorm:"column:task_id;type:varchar(50);index;not null" json:"task_id"`
	Task      *Task     `gorm:"foreignKey:TaskID" json:"-"`
	OwnerID   string    `gorm:"column:owner_id;type:varchar(50);index;not null" json:"owner_id"`
	URL       string    `gorm:"column:url;type:text;not null" json:"url"`
	Title     string    `gorm:"column:title;type:varchar(255)" json:"title"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}
