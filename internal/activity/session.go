package activity

import (
	"errors"
	"time"
)

var (
	// ErrContended is returned by TryObserve when the write lock is held.
	ErrContended = errors.New("activity store is busy")
	// ErrNoSession is returned when an operation needs an open session.
	ErrNoSession = errors.New("no open session")
)

// Sample is one observation of the foreground window.
type Sample struct {
	ProcessName string
	WindowTitle string
	// SystemActive marks input reported by the display server. It stands
	// in for counter deltas when input hooks are unavailable.
	SystemActive bool
}

// WindowSession is one continuous focus (or idle) interval.
type WindowSession struct {
	ID          string     `json:"id,omitempty"` // assigned on finalize
	ProcessName string     `json:"process_name"`
	WindowTitle string     `json:"window_title"`
	StartTime   time.Time  `json:"start_time"`
	EndTime     *time.Time `json:"end_time,omitempty"`
	Keystrokes  uint64     `json:"keystrokes"`
	Clicks      uint64     `json:"clicks"`
	Scrolls     uint64     `json:"scrolls"`
	IsIdle      bool       `json:"is_idle"`
}

// IsOpen reports whether the session has not been finalized.
func (s *WindowSession) IsOpen() bool {
	return s.EndTime == nil
}

// Duration returns end-start, or now-start while the session is open.
func (s *WindowSession) Duration(now time.Time) time.Duration {
	end := now
	if s.EndTime != nil {
		end = *s.EndTime
	}
	if d := end.Sub(s.StartTime); d > 0 {
		return d
	}
	return 0
}

func (s *WindowSession) merge(c Counts) {
	s.Keystrokes += c.Keystrokes
	s.Clicks += c.Clicks
	s.Scrolls += c.Scrolls
}

func (s *WindowSession) hasInput() bool {
	return s.Keystrokes > 0 || s.Clicks > 0 || s.Scrolls > 0
}

// ApplicationAggregate holds rolling per-process totals over finalized sessions.
type ApplicationAggregate struct {
	ProcessName   string        `json:"process_name"`
	FocusDuration time.Duration `json:"focus_duration"`
	IdleDuration  time.Duration `json:"idle_duration"`
	Keystrokes    uint64        `json:"keystrokes"`
	Clicks        uint64        `json:"clicks"`
	Scrolls       uint64        `json:"scrolls"`
	SessionCount  int           `json:"session_count"`
}

func (a *ApplicationAggregate) add(s *WindowSession, now time.Time) {
	d := s.Duration(now)
	if s.IsIdle {
		a.IdleDuration += d
	} else {
		a.FocusDuration += d
	}
	a.Keystrokes += s.Keystrokes
	a.Clicks += s.Clicks
	a.Scrolls += s.Scrolls
	a.SessionCount++
}

// Settings are the resolved thresholds the store consumes.
type Settings struct {
	AFKThreshold       time.Duration
	MinSessionDuration time.Duration
	TrackTitleChanges  bool
	MaxSessions        int
	Retention          time.Duration
	// AFKExempt lists process patterns that never go idle on the AFK
	// threshold (full-screen apps that bypass input hooks).
	AFKExempt []string
}

// DefaultSettings mirrors the daemon defaults.
func DefaultSettings() Settings {
	return Settings{
		AFKThreshold:       5 * time.Minute,
		MinSessionDuration: 10 * time.Second,
		MaxSessions:        1000,
		Retention:          24 * time.Hour,
	}
}
