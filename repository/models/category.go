package models

import "time"

// Category groups tasks for a single owner. Names are unique per owner,
// enforced by the composite index so concurrent creates cannot race the
// engine's existence check.
type Category struct {
	ID          string    `gorm:"column:category_id;primaryKey;type:varchar(50)" json:"id"`
	OwnerID     string    `gorm:"column:owner_id;type:varchar(50);uniqueIndex:idx_categories_owner_name;not null" json:"owner_id"`
	Name        string    `gorm:"column:name;type:varchar(100);uniqueIndex:idx_categories_owner_name;not null" json:"name"`
	Color       string    `gorm:"column:color;type:varchar(20);default:'#007bff'" json:"color"`
	Description string    `gorm:"column:description;type:text" json:"description"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"column:updated_at" json:"updated_at"`

	// Relationships
	Tasks []Task `gorm:"foreignKey:CategoryID" json:"-"`
}
