package models

import "time"

// TimeSession is a single focus interval recorded against a task.
// A session is open from creation until it is closed; Duration is only
// meaningful once EndedAt is set. Closed sessions are immutable except
// for the note attached at close time.
type TimeSession struct {
	ID        string     `gorm:"column:session_id;primaryKey;type:varchar(50)" json:"id"`
	TaskID    string     `gorm:"column:task_id;type:varchar(50);index;not null" json:"task_id"`
	Task      *Task      `gorm:"foreignKey:TaskID" json:"-"`
	OwnerID   string     `gorm:"column:owner_id;type:varchar(50);index;not null" json:"owner_id"`
	StartedAt time.Time  `gorm:"column:started_at;not null" json:"started_at"`
	EndedAt   *time.Time `gorm:"column:ended_at" json:"ended_at"`
	Duration  int64      `gorm:"column:duration;default:0" json:"duration"`
	IsActive  bool       `gorm:"column:is_active;default:true;index" json:"is_active"`
	Note      string     `gorm:"column:note;type:text" json:"note"`
	CreatedAt time.Time  `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}
