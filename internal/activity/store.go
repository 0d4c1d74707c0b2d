package activity

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Store is the single source of truth for session state. The sampler
// goroutine is the only writer; any number of readers may take snapshots
// concurrently. Readers only ever see the state between two transitions.
type Store struct {
	mu       sync.RWMutex
	settings Settings

	current      *WindowSession
	completed    []WindowSession
	aggregates   map[string]*ApplicationAggregate
	lastActivity time.Time
	lastPoll     time.Time

	currentMedia *MediaSession
	mediaHistory []MediaSession

	// Finalized rows not yet acknowledged by persistence.
	pendingSessions []WindowSession
	pendingMedia    []MediaSession

	newID func() string
}

// NewStore creates an empty store using the given thresholds.
func NewStore(settings Settings) *Store {
	return &Store{
		settings:   settings,
		aggregates: make(map[string]*ApplicationAggregate),
		newID:      uuid.NewString,
	}
}

// Settings returns the thresholds the store was created with.
func (s *Store) Settings() Settings {
	return s.settings
}

// Batch is a set of finalized rows handed to persistence.
type Batch struct {
	Sessions   []WindowSession
	Aggregates []ApplicationAggregate
	Media      []MediaSession
}

// Empty reports whether the batch carries nothing to persist.
func (b Batch) Empty() bool {
	return len(b.Sessions) == 0 && len(b.Media) == 0
}

// Pending copies finalized rows that persistence has not acknowledged,
// together with the aggregates of every process they touch.
func (s *Store) Pending() Batch {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b := Batch{
		Sessions: append([]WindowSession(nil), s.pendingSessions...),
		Media:    append([]MediaSession(nil), s.pendingMedia...),
	}
	seen := make(map[string]bool)
	for _, sess := range b.Sessions {
		if seen[sess.ProcessName] {
			continue
		}
		seen[sess.ProcessName] = true
		if agg, ok := s.aggregates[sess.ProcessName]; ok {
			b.Aggregates = append(b.Aggregates, *agg)
		}
	}
	return b
}

// Acknowledge drops rows of a batch that persistence has stored.
func (s *Store) Acknowledge(b Batch) {
	if b.Empty() {
		return
	}
	done := make(map[string]bool, len(b.Sessions)+len(b.Media))
	for _, sess := range b.Sessions {
		done[sess.ID] = true
	}
	for _, m := range b.Media {
		done[m.ID] = true
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sessions := s.pendingSessions[:0]
	for _, sess := range s.pendingSessions {
		if !done[sess.ID] {
			sessions = append(sessions, sess)
		}
	}
	s.pendingSessions = sessions

	media := s.pendingMedia[:0]
	for _, m := range s.pendingMedia {
		if !done[m.ID] {
			media = append(media, m)
		}
	}
	s.pendingMedia = media
}

// PruneResult reports what a prune pass removed.
type PruneResult struct {
	Sessions int
	Media    int
	Pending  int
}

// Prune drops completed sessions that ended before the retention window
// and then trims history to the newest MaxSessions entries. The open
// session is never touched. Pending rows past retention are dropped too.
func (s *Store) Prune(now time.Time) PruneResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	var res PruneResult
	if s.settings.Retention > 0 {
		cutoff := now.Add(-s.settings.Retention)

		before := len(s.completed)
		s.completed = keepSessions(s.completed, cutoff)
		res.Sessions += before - len(s.completed)

		before = len(s.pendingSessions)
		s.pendingSessions = keepSessions(s.pendingSessions, cutoff)
		res.Pending += before - len(s.pendingSessions)

		before = len(s.mediaHistory)
		s.mediaHistory = keepMedia(s.mediaHistory, cutoff)
		res.Media += before - len(s.mediaHistory)

		before = len(s.pendingMedia)
		s.pendingMedia = keepMedia(s.pendingMedia, cutoff)
		res.Pending += before - len(s.pendingMedia)
	}

	if max := s.settings.MaxSessions; max > 0 {
		if n := len(s.completed) - max; n > 0 {
			s.completed = append(s.completed[:0:0], s.completed[n:]...)
			res.Sessions += n
		}
		if n := len(s.mediaHistory) - max; n > 0 {
			s.mediaHistory = append(s.mediaHistory[:0:0], s.mediaHistory[n:]...)
			res.Media += n
		}
	}
	return res
}

func keepSessions(in []WindowSession, cutoff time.Time) []WindowSession {
	out := in[:0]
	for _, sess := range in {
		if sess.EndTime != nil && sess.EndTime.Before(cutoff) {
			continue
		}
		out = append(out, sess)
	}
	return out
}

func keepMedia(in []MediaSession, cutoff time.Time) []MediaSession {
	out := in[:0]
	for _, m := range in {
		if m.EndTime != nil && m.EndTime.Before(cutoff) {
			continue
		}
		out = append(out, m)
	}
	return out
}

// ResetAggregates clears per-application totals.
func (s *Store) ResetAggregates() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.aggregates = make(map[string]*ApplicationAggregate)
}

// Snapshot is a consistent deep copy of the store taken under read access.
type Snapshot struct {
	TakenAt      time.Time              `json:"taken_at"`
	Current      *WindowSession         `json:"current_session,omitempty"`
	Completed    []WindowSession        `json:"-"`
	Aggregates   []ApplicationAggregate `json:"aggregates"`
	LastActivity time.Time              `json:"last_activity"`
	LastPoll     time.Time              `json:"last_poll"`
	CurrentMedia *MediaSession          `json:"current_media,omitempty"`
	MediaHistory []MediaSession         `json:"-"`
	Pending      int                    `json:"pending"`
}

// Idle reports whether the open session is an idle one.
func (s Snapshot) Idle() bool {
	return s.Current != nil && s.Current.IsIdle
}

// Recent returns up to n completed sessions, newest first.
func (s Snapshot) Recent(n int) []WindowSession {
	if n <= 0 || n > len(s.Completed) {
		n = len(s.Completed)
	}
	out := make([]WindowSession, 0, n)
	for i := len(s.Completed) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, s.Completed[i])
	}
	return out
}

// Snapshot copies the store state.
func (s *Store) Snapshot(now time.Time) Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		TakenAt:      now,
		Completed:    append([]WindowSession(nil), s.completed...),
		LastActivity: s.lastActivity,
		LastPoll:     s.lastPoll,
		MediaHistory: append([]MediaSession(nil), s.mediaHistory...),
		Pending:      len(s.pendingSessions) + len(s.pendingMedia),
	}
	if s.current != nil {
		cur := *s.current
		snap.Current = &cur
	}
	if s.currentMedia != nil {
		m := *s.currentMedia
		snap.CurrentMedia = &m
	}
	for _, agg := range s.aggregates {
		snap.Aggregates = append(snap.Aggregates, *agg)
	}
	sort.Slice(snap.Aggregates, func(i, j int) bool {
		if snap.Aggregates[i].FocusDuration == snap.Aggregates[j].FocusDuration {
			return snap.Aggregates[i].ProcessName < snap.Aggregates[j].ProcessName
		}
		return snap.Aggregates[i].FocusDuration > snap.Aggregates[j].FocusDuration
	})
	return snap
}
