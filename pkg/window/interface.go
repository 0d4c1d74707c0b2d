package window

import (
	"strings"
	"time"
	"unicode"
)

// Display server names reported by detectors.
const (
	DisplayX11     = "x11"
	DisplayWayland = "wayland"
)

// WindowInfo represents information about the currently focused window
type WindowInfo struct {
	AppName       string
	WindowTitle   string
	ProcessName   string
	PID           uint32
	DisplayServer string
}

// IdleInfo represents system idle/lock state
type IdleInfo struct {
	IsIdle   bool
	IsLocked bool
	Idle     time.Duration // time since the display server last saw input
}

// Detector is the interface that all window detection implementations must satisfy
type Detector interface {
	// GetFocusedWindow returns information about the currently focused window
	GetFocusedWindow() (*WindowInfo, error)

	// GetIdleInfo returns information about system idle/lock state
	GetIdleInfo() (*IdleInfo, error)

	// IsAvailable checks if this detector can run on the current system
	IsAvailable() bool

	// GetDisplayServer returns the display server type ("x11" or "wayland")
	GetDisplayServer() string

	// Close cleans up any resources used by the detector
	Close() error
}

const maxTitleName = 32

// Name returns the name sessions are keyed by. It prefers the
// process name, then the application class, then a cleaned prefix of the
// title. The result is lower-cased; an empty string means the window
// cannot be attributed.
func (w *WindowInfo) Name() string {
	if w == nil {
		return ""
	}
	for _, s := range []string{w.ProcessName, w.AppName} {
		if s = strings.TrimSpace(s); s != "" {
			return strings.ToLower(s)
		}
	}
	return nameFromTitle(w.WindowTitle)
}

// nameFromTitle keeps the trailing " - App" segment when present, since
// most toolkits put the application name last.
func nameFromTitle(title string) string {
	title = strings.TrimSpace(title)
	if i := strings.LastIndex(title, " - "); i >= 0 {
		title = title[i+3:]
	}

	var b strings.Builder
	dash := false
	for _, r := range title {
		if b.Len() >= maxTitleName {
			break
		}
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(unicode.ToLower(r))
			dash = false
		case r == ' ' || r == '-' || r == '_' || r == '.':
			if b.Len() > 0 && !dash {
				b.WriteRune('-')
				dash = true
			}
		}
	}
	return strings.Trim(b.String(), "-")
}
