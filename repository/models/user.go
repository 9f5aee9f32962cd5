package models

import "time"

// User owns tasks, sessions, and categories. The password is stored as
// given; credential hardening is handled outside this service.
type User struct {
	ID        string    `gorm:"column:user_id;primaryKey;type:varchar(50)" json:"id"`
	FullName  string    `gorm:"column:full_name;type:varchar(100);not null" json:"full_name"`
	Email     string    `gorm:"column:email;type:varchar(255);uniqueIndex;not null" json:"email"`
	Password  string    `gorm:"column:password;type:varchar(255);not null" json:"-"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at" json:"updated_at"`
}
