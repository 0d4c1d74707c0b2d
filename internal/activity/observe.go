package activity

import "time"

// Transition names what a single Observe call did to the open session.
type Transition int

const (
	TransitionNone Transition = iota
	TransitionOpened
	TransitionFocusChanged
	TransitionWentIdle
	TransitionResumed
)

func (t Transition) String() string {
	switch t {
	case TransitionOpened:
		return "opened"
	case TransitionFocusChanged:
		return "focus_changed"
	case TransitionWentIdle:
		return "went_idle"
	case TransitionResumed:
		return "resumed"
	default:
		return "none"
	}
}

// Observe feeds one sampler tick into the session state machine, waiting
// for write access if a reader holds the lock.
func (s *Store) Observe(sample Sample, delta Counts, now time.Time) Transition {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.observeLocked(sample, delta, now)
}

// TryObserve is Observe without waiting. It returns ErrContended when the
// lock is held, in which case the caller keeps delta for the next tick.
func (s *Store) TryObserve(sample Sample, delta Counts, now time.Time) (Transition, error) {
	if !s.mu.TryLock() {
		return TransitionNone, ErrContended
	}
	defer s.mu.Unlock()
	return s.observeLocked(sample, delta, now), nil
}

func (s *Store) observeLocked(sample Sample, delta Counts, now time.Time) Transition {
	s.lastPoll = now
	active := delta.HasActivity() || sample.SystemActive

	cur := s.current
	if cur == nil {
		s.open(sample, now, false)
		s.current.merge(delta)
		if active || s.lastActivity.IsZero() {
			s.lastActivity = now
		}
		return TransitionOpened
	}

	if s.focusChanged(cur, sample) {
		s.finalize(now, now)
		s.open(sample, now, false)
		s.current.merge(delta)
		if active {
			s.lastActivity = now
		}
		return TransitionFocusChanged
	}

	if cur.IsIdle {
		if !active {
			return TransitionNone
		}
		s.finalize(now, now)
		s.open(sample, now, false)
		s.current.merge(delta)
		s.lastActivity = now
		return TransitionResumed
	}

	if active {
		// No tick saw the threshold pass (suspend, long stall), so the gap
		// is split off as idle before the new input is attributed.
		if s.afkElapsed(cur, now) {
			s.splitIdle(now)
			s.finalize(now, now)
			s.open(sample, now, false)
			s.current.merge(delta)
			s.lastActivity = now
			return TransitionResumed
		}
		cur.merge(delta)
		s.lastActivity = now
		return TransitionNone
	}

	if !s.afkElapsed(cur, now) {
		return TransitionNone
	}
	s.splitIdle(now)
	return TransitionWentIdle
}

// CheckIdle runs the AFK check for a tick that has no usable sample, such
// as an unresolvable or blacklisted foreground window. present reports
// input seen during the tick; it keeps the open session active but is not
// attributed to it. Like TryObserve it never waits for the lock.
func (s *Store) CheckIdle(present bool, now time.Time) (Transition, error) {
	if !s.mu.TryLock() {
		return TransitionNone, ErrContended
	}
	defer s.mu.Unlock()

	s.lastPoll = now
	if present {
		s.lastActivity = now
		return TransitionNone, nil
	}
	cur := s.current
	if cur == nil || cur.IsIdle || !s.afkElapsed(cur, now) {
		return TransitionNone, nil
	}
	s.splitIdle(now)
	return TransitionWentIdle, nil
}

func (s *Store) afkElapsed(cur *WindowSession, now time.Time) bool {
	if s.settings.AFKThreshold <= 0 || now.Sub(s.lastActivity) < s.settings.AFKThreshold {
		return false
	}
	return !MatchAny(s.settings.AFKExempt, cur.ProcessName)
}

// splitIdle finalizes the open active session and opens an idle one for
// the same window. The idle interval begins at the last input, not at
// detection time.
func (s *Store) splitIdle(now time.Time) {
	cur := s.current
	split := s.lastActivity
	if split.Before(cur.StartTime) {
		split = cur.StartTime
	}
	next := Sample{ProcessName: cur.ProcessName, WindowTitle: cur.WindowTitle}
	s.finalize(split, now)
	s.open(next, split, true)
}

func (s *Store) focusChanged(cur *WindowSession, sample Sample) bool {
	if cur.ProcessName != sample.ProcessName {
		return true
	}
	return s.settings.TrackTitleChanges && cur.WindowTitle != sample.WindowTitle
}

func (s *Store) open(sample Sample, at time.Time, idle bool) {
	s.current = &WindowSession{
		ProcessName: sample.ProcessName,
		WindowTitle: sample.WindowTitle,
		StartTime:   at,
		IsIdle:      idle,
	}
}

// finalize closes the open session at end and moves it to history unless
// it is shorter than MinSessionDuration. now is only used for aggregates.
func (s *Store) finalize(end, now time.Time) bool {
	cur := s.current
	s.current = nil
	if cur == nil {
		return false
	}
	if end.Before(cur.StartTime) {
		end = cur.StartTime
	}
	cur.EndTime = &end
	if cur.Duration(now) < s.settings.MinSessionDuration {
		return false
	}

	cur.ID = s.newID()
	s.completed = append(s.completed, *cur)
	s.pendingSessions = append(s.pendingSessions, *cur)

	agg, ok := s.aggregates[cur.ProcessName]
	if !ok {
		agg = &ApplicationAggregate{ProcessName: cur.ProcessName}
		s.aggregates[cur.ProcessName] = agg
	}
	agg.add(cur, now)
	return true
}

// Shutdown merges the last delta into the open session and finalizes it
// together with any open media session. It reports whether a session was
// kept after the minimum duration gate.
func (s *Store) Shutdown(delta Counts, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastPoll = now
	s.finalizeMedia(now)
	if s.current == nil {
		return false
	}
	s.current.merge(delta)
	if delta.HasActivity() {
		s.lastActivity = now
	}
	return s.finalize(now, now)
}
