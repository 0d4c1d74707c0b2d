package models

import (
	"time"

	"gorm.io/gorm"
)

// Error sources recorded by the daemon.
const (
	SourceDetector = "detector"
	SourceFlush    = "flush"
	SourceInput    = "input"
	SourceMedia    = "media"
)

// ErrorLog is a persisted runtime failure. Repeated failures of the same
// kind are recorded once per streak.
type ErrorLog struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	Timestamp time.Time      `gorm:"not null;index" json:"timestamp"`
	Source    string         `gorm:"not null;default:'detector';index" json:"source"`
	ErrorMsg  string         `gorm:"not null" json:"error_msg"`
	CreatedAt time.Time      `gorm:"autoCreateTime;index" json:"created_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// NewErrorLog records err from source at t, stored in UTC.
func NewErrorLog(source string, err error, t time.Time) *ErrorLog {
	return &ErrorLog{
		Timestamp: t.UTC(),
		Source:    source,
		ErrorMsg:  err.Error(),
	}
}
