package models

import (
	"time"

	"github.com/ownmon/ownmon/internal/activity"
)

// Session is a finalized focus or idle interval. UUID is the identity the
// tracker assigns on finalize and makes repeated flushes idempotent.
type Session struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	UUID         string     `gorm:"column:uuid;not null;uniqueIndex" json:"uuid"`
	ProcessName  string     `gorm:"not null;index" json:"process_name"`
	WindowTitle  string     `gorm:"not null;default:''" json:"window_title"`
	StartTime    time.Time  `gorm:"not null;index" json:"start_time"`
	EndTime      *time.Time `json:"end_time,omitempty"`
	DurationSecs int64      `gorm:"not null;default:0" json:"duration_secs"`
	Keystrokes   int64      `gorm:"not null;default:0" json:"keystrokes"`
	Clicks       int64      `gorm:"not null;default:0" json:"clicks"`
	Scrolls      int64      `gorm:"not null;default:0" json:"scrolls"`
	IsIdle       bool       `gorm:"not null;default:false;index" json:"is_idle"`
	CreatedAt    time.Time  `gorm:"autoCreateTime" json:"created_at"`
}

// NewSession converts a finalized in-memory session into a row.
func NewSession(s activity.WindowSession) Session {
	row := Session{
		UUID:        s.ID,
		ProcessName: s.ProcessName,
		WindowTitle: s.WindowTitle,
		StartTime:   s.StartTime.UTC(),
		Keystrokes:  int64(s.Keystrokes),
		Clicks:      int64(s.Clicks),
		Scrolls:     int64(s.Scrolls),
		IsIdle:      s.IsIdle,
	}
	if s.EndTime != nil {
		end := s.EndTime.UTC()
		row.EndTime = &end
		row.DurationSecs = int64(end.Sub(s.StartTime).Seconds())
	}
	return row
}

// Activity converts the row back into the in-memory shape.
func (s Session) Activity() activity.WindowSession {
	return activity.WindowSession{
		ID:          s.UUID,
		ProcessName: s.ProcessName,
		WindowTitle: s.WindowTitle,
		StartTime:   s.StartTime,
		EndTime:     s.EndTime,
		Keystrokes:  uint64(s.Keystrokes),
		Clicks:      uint64(s.Clicks),
		Scrolls:     uint64(s.Scrolls),
		IsIdle:      s.IsIdle,
	}
}

// AppAggregate holds lifetime per-process totals recomputed from sessions.
type AppAggregate struct {
	ProcessName  string    `gorm:"primaryKey" json:"process_name"`
	FocusSecs    int64     `gorm:"not null;default:0" json:"focus_secs"`
	IdleSecs     int64     `gorm:"not null;default:0" json:"idle_secs"`
	Keystrokes   int64     `gorm:"not null;default:0" json:"keystrokes"`
	Clicks       int64     `gorm:"not null;default:0" json:"clicks"`
	Scrolls      int64     `gorm:"not null;default:0" json:"scrolls"`
	SessionCount int64     `gorm:"not null;default:0" json:"session_count"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// MediaSession is one persisted playback interval.
type MediaSession struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	UUID         string     `gorm:"column:uuid;not null;uniqueIndex" json:"uuid"`
	Title        string     `gorm:"not null" json:"title"`
	Artist       string     `json:"artist"`
	Album        string     `json:"album"`
	SourceApp    string     `json:"source_app"`
	StartTime    time.Time  `gorm:"not null;index" json:"start_time"`
	EndTime      *time.Time `json:"end_time,omitempty"`
	DurationSecs int64      `gorm:"not null;default:0" json:"duration_secs"`
}

// NewMediaSession converts a finalized media session into a row.
func NewMediaSession(m activity.MediaSession) MediaSession {
	row := MediaSession{
		UUID:      m.ID,
		Title:     m.Title,
		Artist:    m.Artist,
		Album:     m.Album,
		SourceApp: m.Player,
		StartTime: m.StartTime.UTC(),
	}
	if m.EndTime != nil {
		end := m.EndTime.UTC()
		row.EndTime = &end
		row.DurationSecs = int64(end.Sub(m.StartTime).Seconds())
	}
	return row
}

type AppSummary struct {
	AppName      string  `json:"app_name"`
	TotalSeconds int64   `json:"total_seconds"`
	TotalMinutes float64 `json:"total_minutes"`
	TotalHours   float64 `json:"total_hours"`
	Keystrokes   int64   `json:"keystrokes"`
	Clicks       int64   `json:"clicks"`
	EventCount   int     `json:"event_count"`
	Percentage   float64 `json:"percentage,omitempty"`
}

type ReportPeriod struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
	Type  string    `json:"type"` // "day", "week", "month"
}

type Report struct {
	Period       ReportPeriod `json:"period"`
	Apps         []AppSummary `json:"apps"`
	TotalSeconds int64        `json:"total_seconds"`
	TotalMinutes float64      `json:"total_minutes"`
	TotalHours   float64      `json:"total_hours"`
	Keystrokes   int64        `json:"keystrokes"`
	Clicks       int64        `json:"clicks"`
	GeneratedAt  time.Time    `json:"generated_at"`
}
