package tracker

import (
	"sync"

	"github.com/ownmon/ownmon/internal/activity"
)

// Filter decides which processes are never recorded. Patterns from the
// config are fixed; patterns from the database are replaced on refresh.
type Filter struct {
	mu      sync.RWMutex
	static  []string
	dynamic []string
}

// NewFilter returns a filter with the given fixed patterns.
func NewFilter(static []string) *Filter {
	return &Filter{static: append([]string(nil), static...)}
}

// Set replaces the refreshable patterns.
func (f *Filter) Set(patterns []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dynamic = append([]string(nil), patterns...)
}

// Blocked reports whether process matches any pattern.
func (f *Filter) Blocked(process string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return activity.MatchAny(f.static, process) || activity.MatchAny(f.dynamic, process)
}

// Patterns returns every active pattern, fixed ones first.
func (f *Filter) Patterns() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]string, 0, len(f.static)+len(f.dynamic))
	out = append(out, f.static...)
	return append(out, f.dynamic...)
}
