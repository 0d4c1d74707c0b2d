package activity

import (
	"sort"
	"time"
)

const (
	DefaultQueryLimit = 500
	MaxQueryLimit     = 2000
)

// CategoryResolver maps a process name to its category name, or "".
type CategoryResolver func(processName string) string

// Filter selects sessions for Query. Zero values mean "no constraint".
type Filter struct {
	From           time.Time
	To             time.Time
	App            string // wildcard, case-insensitive
	Category       string
	Categories     CategoryResolver
	ExcludeIdle    bool
	IncludeCurrent bool
	Limit          int
	Offset         int
	Descending     bool
}

// Normalize clamps Limit and Offset into their accepted ranges.
func (f Filter) Normalize() Filter {
	if f.Limit <= 0 {
		f.Limit = DefaultQueryLimit
	}
	if f.Limit > MaxQueryLimit {
		f.Limit = MaxQueryLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}

// ForDay returns a filter covering the local calendar day containing t.
func ForDay(t time.Time) Filter {
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	return Filter{From: start, To: start.AddDate(0, 0, 1)}
}

func (f *Filter) match(s *WindowSession) bool {
	if !f.From.IsZero() && s.StartTime.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && !s.StartTime.Before(f.To) {
		return false
	}
	if f.ExcludeIdle && s.IsIdle {
		return false
	}
	if f.App != "" && !MatchPattern(f.App, s.ProcessName) {
		return false
	}
	if f.Category != "" {
		if f.Categories == nil || f.Categories(s.ProcessName) != f.Category {
			return false
		}
	}
	return true
}

// QueryResult is one page of matching sessions.
type QueryResult struct {
	Sessions []WindowSession `json:"sessions"`
	Total    int             `json:"total"`
	Limit    int             `json:"limit"`
	Offset   int             `json:"offset"`
}

// Query returns in-memory sessions matching f. It never mutates the store.
func (s *Store) Query(f Filter) QueryResult {
	f = f.Normalize()

	s.mu.RLock()
	var matched []WindowSession
	for i := range s.completed {
		if f.match(&s.completed[i]) {
			matched = append(matched, s.completed[i])
		}
	}
	if f.IncludeCurrent && s.current != nil && f.match(s.current) {
		matched = append(matched, *s.current)
	}
	s.mu.RUnlock()

	sort.SliceStable(matched, func(i, j int) bool {
		if f.Descending {
			return matched[i].StartTime.After(matched[j].StartTime)
		}
		return matched[i].StartTime.Before(matched[j].StartTime)
	})

	res := QueryResult{Total: len(matched), Limit: f.Limit, Offset: f.Offset}
	if f.Offset >= len(matched) {
		res.Sessions = []WindowSession{}
		return res
	}
	end := f.Offset + f.Limit
	if end > len(matched) {
		end = len(matched)
	}
	res.Sessions = matched[f.Offset:end]
	return res
}
