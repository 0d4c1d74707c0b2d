package models

import "time"

// DefaultCategoryName is the fallback for processes without a mapping.
const DefaultCategoryName = "Other"

type Category struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"not null;uniqueIndex" json:"name"`
	Color     string    `gorm:"not null" json:"color"`
	Icon      string    `json:"icon,omitempty"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// AppCategory maps a case-insensitive process wildcard to a category.
type AppCategory struct {
	ProcessPattern string   `gorm:"primaryKey" json:"process_pattern"`
	CategoryID     uint     `gorm:"not null;index" json:"category_id"`
	Category       Category `gorm:"constraint:OnDelete:CASCADE" json:"category"`
}

// BlacklistEntry is a process wildcard the tracker never records.
type BlacklistEntry struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Pattern     string    `gorm:"not null;uniqueIndex" json:"pattern"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
}
