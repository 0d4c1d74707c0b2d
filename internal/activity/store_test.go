package activity

import (
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2026, 3, 2, 10, 0, 0, 0, time.Local)

func testSettings() Settings {
	return Settings{
		AFKThreshold:       5 * time.Minute,
		MinSessionDuration: 10 * time.Second,
		MaxSessions:        1000,
		Retention:          24 * time.Hour,
	}
}

func newTestStore(s Settings) *Store {
	st := NewStore(s)
	n := 0
	st.newID = func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	}
	return st
}

func at(d time.Duration) time.Time { return base.Add(d) }

func keys(n uint64) Counts { return Counts{Keystrokes: n} }

// requireWellFormed checks the store-wide session invariants.
func requireWellFormed(t *testing.T, st *Store, now time.Time) {
	t.Helper()
	snap := st.Snapshot(now)
	for i, s := range snap.Completed {
		require.NotNil(t, s.EndTime)
		require.False(t, s.EndTime.Before(s.StartTime), "end before start: %+v", s)
		require.GreaterOrEqual(t, s.Duration(now), st.settings.MinSessionDuration)
		if i > 0 {
			require.False(t, s.StartTime.Before(*snap.Completed[i-1].EndTime), "overlapping sessions: %+v", s)
		}
	}
	if snap.Current != nil {
		require.Nil(t, snap.Current.EndTime)
		require.Empty(t, snap.Current.ID)
		if n := len(snap.Completed); n > 0 {
			require.False(t, snap.Current.StartTime.Before(*snap.Completed[n-1].EndTime))
		}
	}
}

func TestObserveOpensFirstSession(t *testing.T) {
	st := newTestStore(testSettings())

	tr := st.Observe(Sample{ProcessName: "code", WindowTitle: "main.go"}, keys(2), at(0))
	assert.Equal(t, TransitionOpened, tr)

	snap := st.Snapshot(at(time.Second))
	require.NotNil(t, snap.Current)
	assert.Equal(t, "code", snap.Current.ProcessName)
	assert.Equal(t, uint64(2), snap.Current.Keystrokes)
	assert.False(t, snap.Current.IsIdle)
	assert.Equal(t, at(0), snap.LastActivity)
	assert.Equal(t, at(0), snap.LastPoll)
}

func TestObserveFocusChange(t *testing.T) {
	st := newTestStore(testSettings())
	st.Observe(Sample{ProcessName: "code"}, keys(1), at(0))
	st.Observe(Sample{ProcessName: "code"}, Counts{Clicks: 2}, at(20*time.Second))

	tr := st.Observe(Sample{ProcessName: "firefox"}, Counts{}, at(30*time.Second))
	assert.Equal(t, TransitionFocusChanged, tr)

	snap := st.Snapshot(at(30 * time.Second))
	require.Len(t, snap.Completed, 1)
	done := snap.Completed[0]
	assert.Equal(t, "code", done.ProcessName)
	assert.Equal(t, at(30*time.Second), *done.EndTime)
	assert.Equal(t, uint64(1), done.Keystrokes)
	assert.Equal(t, uint64(2), done.Clicks)
	assert.Equal(t, "id-1", done.ID)

	require.NotNil(t, snap.Current)
	assert.Equal(t, "firefox", snap.Current.ProcessName)
	// No activity on the new window, so last activity carries forward.
	assert.Equal(t, at(20*time.Second), snap.LastActivity)

	require.Len(t, snap.Aggregates, 1)
	assert.Equal(t, 30*time.Second, snap.Aggregates[0].FocusDuration)
	assert.Equal(t, 1, snap.Aggregates[0].SessionCount)
	requireWellFormed(t, st, at(30*time.Second))
}

func TestObserveFocusChangeFromIdle(t *testing.T) {
	st := newTestStore(testSettings())
	st.Observe(Sample{ProcessName: "code"}, keys(1), at(0))
	st.Observe(Sample{ProcessName: "code"}, Counts{}, at(6*time.Minute))
	require.True(t, st.Snapshot(at(6*time.Minute)).Idle())

	tr := st.Observe(Sample{ProcessName: "slack"}, Counts{}, at(8*time.Minute))
	assert.Equal(t, TransitionFocusChanged, tr)

	snap := st.Snapshot(at(8 * time.Minute))
	require.NotNil(t, snap.Current)
	assert.False(t, snap.Current.IsIdle)
	assert.Equal(t, "slack", snap.Current.ProcessName)
	last := snap.Completed[len(snap.Completed)-1]
	assert.True(t, last.IsIdle)
	assert.Equal(t, at(8*time.Minute), *last.EndTime)
}

func TestObserveAFKSplitsAtLastActivity(t *testing.T) {
	st := newTestStore(testSettings())
	st.Observe(Sample{ProcessName: "code"}, keys(1), at(0))
	st.Observe(Sample{ProcessName: "code"}, keys(1), at(time.Minute))

	// One tick short of the threshold does nothing.
	tr := st.Observe(Sample{ProcessName: "code"}, Counts{}, at(time.Minute+5*time.Minute-time.Millisecond))
	assert.Equal(t, TransitionNone, tr)
	assert.False(t, st.Snapshot(at(6*time.Minute)).Idle())

	tr = st.Observe(Sample{ProcessName: "code"}, Counts{}, at(6*time.Minute))
	assert.Equal(t, TransitionWentIdle, tr)

	snap := st.Snapshot(at(6 * time.Minute))
	require.Len(t, snap.Completed, 1)
	active := snap.Completed[0]
	assert.False(t, active.IsIdle)
	assert.Equal(t, at(time.Minute), *active.EndTime)
	assert.Equal(t, uint64(2), active.Keystrokes)

	require.NotNil(t, snap.Current)
	assert.True(t, snap.Current.IsIdle)
	assert.Equal(t, at(time.Minute), snap.Current.StartTime)
	assert.Equal(t, uint64(0), snap.Current.Keystrokes)
	assert.Equal(t, 5*time.Minute, snap.Current.Duration(at(6*time.Minute)))
	requireWellFormed(t, st, at(6*time.Minute))
}

func TestObserveIdleStaysOpenWithoutActivity(t *testing.T) {
	st := newTestStore(testSettings())
	st.Observe(Sample{ProcessName: "code"}, keys(1), at(0))
	st.Observe(Sample{ProcessName: "code"}, Counts{}, at(5*time.Minute))

	for i := 1; i <= 10; i++ {
		tr := st.Observe(Sample{ProcessName: "code"}, Counts{}, at(5*time.Minute+time.Duration(i)*time.Minute))
		assert.Equal(t, TransitionNone, tr)
	}
	snap := st.Snapshot(at(15 * time.Minute))
	require.NotNil(t, snap.Current)
	assert.True(t, snap.Current.IsIdle)
	assert.Nil(t, snap.Current.EndTime)
	assert.Equal(t, 15*time.Minute, snap.Current.Duration(at(15*time.Minute)))
}

func TestObserveResumeFromIdle(t *testing.T) {
	st := newTestStore(testSettings())
	st.Observe(Sample{ProcessName: "code"}, keys(1), at(0))
	st.Observe(Sample{ProcessName: "code"}, Counts{}, at(5*time.Minute))

	tr := st.Observe(Sample{ProcessName: "code", WindowTitle: "back"}, keys(4), at(20*time.Minute))
	assert.Equal(t, TransitionResumed, tr)

	snap := st.Snapshot(at(20 * time.Minute))
	idle := snap.Completed[len(snap.Completed)-1]
	assert.True(t, idle.IsIdle)
	assert.Equal(t, at(20*time.Minute), *idle.EndTime)

	require.NotNil(t, snap.Current)
	assert.False(t, snap.Current.IsIdle)
	assert.Equal(t, at(20*time.Minute), snap.Current.StartTime)
	assert.Equal(t, "back", snap.Current.WindowTitle)
	assert.Equal(t, uint64(4), snap.Current.Keystrokes)
	assert.Equal(t, at(20*time.Minute), snap.LastActivity)

	// The zero-length active session before the split is discarded.
	require.Len(t, snap.Aggregates, 1)
	assert.Equal(t, 20*time.Minute, snap.Aggregates[0].IdleDuration)
	assert.Zero(t, snap.Aggregates[0].FocusDuration)
}

func TestObserveSystemActiveWithoutCounters(t *testing.T) {
	st := newTestStore(testSettings())
	st.Observe(Sample{ProcessName: "mpv", SystemActive: true}, Counts{}, at(0))
	for i := 1; i <= 10; i++ {
		tr := st.Observe(Sample{ProcessName: "mpv", SystemActive: true}, Counts{}, at(time.Duration(i)*time.Minute))
		assert.Equal(t, TransitionNone, tr)
	}

	snap := st.Snapshot(at(10 * time.Minute))
	require.NotNil(t, snap.Current)
	assert.False(t, snap.Current.IsIdle)
	assert.Equal(t, at(10*time.Minute), snap.LastActivity)
	assert.Zero(t, snap.Current.Keystrokes)

	// Display idle resumes the AFK countdown from the last active sample.
	tr := st.Observe(Sample{ProcessName: "mpv"}, Counts{}, at(15*time.Minute))
	assert.Equal(t, TransitionWentIdle, tr)
	snap = st.Snapshot(at(15 * time.Minute))
	assert.True(t, snap.Current.IsIdle)
	assert.Equal(t, at(10*time.Minute), snap.Current.StartTime)
}

func TestObserveSplitsIdleGapWithoutTicks(t *testing.T) {
	st := newTestStore(testSettings())
	st.Observe(Sample{ProcessName: "code"}, keys(1), at(0))
	st.Observe(Sample{ProcessName: "code"}, keys(1), at(time.Minute))

	// Nothing sampled for an hour, e.g. a suspended laptop.
	tr := st.Observe(Sample{ProcessName: "code"}, keys(2), at(time.Hour))
	assert.Equal(t, TransitionResumed, tr)

	snap := st.Snapshot(at(time.Hour))
	require.Len(t, snap.Completed, 2)
	assert.False(t, snap.Completed[0].IsIdle)
	assert.Equal(t, at(time.Minute), *snap.Completed[0].EndTime)
	assert.True(t, snap.Completed[1].IsIdle)
	assert.Equal(t, at(time.Minute), snap.Completed[1].StartTime)
	assert.Equal(t, at(time.Hour), *snap.Completed[1].EndTime)

	require.NotNil(t, snap.Current)
	assert.False(t, snap.Current.IsIdle)
	assert.Equal(t, at(time.Hour), snap.Current.StartTime)
	assert.Equal(t, uint64(2), snap.Current.Keystrokes)
	requireWellFormed(t, st, at(time.Hour))
}

func TestCheckIdle(t *testing.T) {
	st := newTestStore(testSettings())

	tr, err := st.CheckIdle(false, at(0))
	require.NoError(t, err)
	assert.Equal(t, TransitionNone, tr, "no open session")

	st.Observe(Sample{ProcessName: "code"}, keys(1), at(0))

	// Input seen without a usable window keeps the session active.
	tr, err = st.CheckIdle(true, at(4*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, TransitionNone, tr)
	tr, _ = st.CheckIdle(false, at(8*time.Minute))
	assert.Equal(t, TransitionNone, tr)

	tr, _ = st.CheckIdle(false, at(9*time.Minute))
	assert.Equal(t, TransitionWentIdle, tr)
	snap := st.Snapshot(at(9 * time.Minute))
	require.NotNil(t, snap.Current)
	assert.True(t, snap.Current.IsIdle)
	assert.Equal(t, "code", snap.Current.ProcessName)
	assert.Equal(t, at(4*time.Minute), snap.Current.StartTime)
	assert.Zero(t, snap.Current.Keystrokes)

	tr, _ = st.CheckIdle(false, at(time.Hour))
	assert.Equal(t, TransitionNone, tr, "already idle")

	st.mu.RLock()
	_, err = st.CheckIdle(false, at(time.Hour))
	st.mu.RUnlock()
	assert.ErrorIs(t, err, ErrContended)
	requireWellFormed(t, st, at(time.Hour))
}

func TestCheckIdleHonorsAFKExempt(t *testing.T) {
	s := testSettings()
	s.AFKExempt = []string{"steam_app_*"}
	st := newTestStore(s)
	st.Observe(Sample{ProcessName: "steam_app_42"}, keys(1), at(0))

	tr, err := st.CheckIdle(false, at(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, TransitionNone, tr)
	assert.False(t, st.Snapshot(at(time.Hour)).Idle())
}

func TestObserveTitleChanges(t *testing.T) {
	t.Run("ignored by default", func(t *testing.T) {
		st := newTestStore(testSettings())
		st.Observe(Sample{ProcessName: "code", WindowTitle: "a.go"}, keys(1), at(0))
		tr := st.Observe(Sample{ProcessName: "code", WindowTitle: "b.go"}, keys(1), at(time.Minute))
		assert.Equal(t, TransitionNone, tr)

		snap := st.Snapshot(at(time.Minute))
		assert.Empty(t, snap.Completed)
		assert.Equal(t, "a.go", snap.Current.WindowTitle)
		assert.Equal(t, uint64(2), snap.Current.Keystrokes)
	})

	t.Run("tracked splits", func(t *testing.T) {
		s := testSettings()
		s.TrackTitleChanges = true
		st := newTestStore(s)
		st.Observe(Sample{ProcessName: "code", WindowTitle: "a.go"}, keys(1), at(0))
		tr := st.Observe(Sample{ProcessName: "code", WindowTitle: "b.go"}, keys(1), at(time.Minute))
		assert.Equal(t, TransitionFocusChanged, tr)

		snap := st.Snapshot(at(time.Minute))
		require.Len(t, snap.Completed, 1)
		assert.Equal(t, "a.go", snap.Completed[0].WindowTitle)
		assert.Equal(t, "b.go", snap.Current.WindowTitle)
	})
}

func TestObserveDiscardsShortSessions(t *testing.T) {
	st := newTestStore(testSettings())
	st.Observe(Sample{ProcessName: "code"}, keys(3), at(0))
	st.Observe(Sample{ProcessName: "term"}, keys(1), at(5*time.Second))
	st.Observe(Sample{ProcessName: "code"}, keys(1), at(30*time.Second))

	snap := st.Snapshot(at(30 * time.Second))
	require.Len(t, snap.Completed, 1)
	assert.Equal(t, "term", snap.Completed[0].ProcessName)
	require.Len(t, snap.Aggregates, 1)
	assert.Equal(t, "term", snap.Aggregates[0].ProcessName)
	assert.Len(t, st.Pending().Sessions, 1)
	requireWellFormed(t, st, at(30*time.Second))
}

func TestObserveAFKExempt(t *testing.T) {
	s := testSettings()
	s.AFKExempt = []string{"steam_app_*"}
	st := newTestStore(s)
	st.Observe(Sample{ProcessName: "steam_app_42"}, keys(1), at(0))

	tr := st.Observe(Sample{ProcessName: "steam_app_42"}, Counts{}, at(time.Hour))
	assert.Equal(t, TransitionNone, tr)
	assert.False(t, st.Snapshot(at(time.Hour)).Idle())
}

func TestObserveAFKDisabled(t *testing.T) {
	s := testSettings()
	s.AFKThreshold = 0
	st := newTestStore(s)
	st.Observe(Sample{ProcessName: "code"}, keys(1), at(0))
	st.Observe(Sample{ProcessName: "code"}, Counts{}, at(time.Hour))
	assert.False(t, st.Snapshot(at(time.Hour)).Idle())
}

// Five keys on A, a switch to B left alone past the threshold, then three
// keys on B.
func TestObserveScenario(t *testing.T) {
	st := newTestStore(testSettings())

	for i := 0; i < 5; i++ {
		st.Observe(Sample{ProcessName: "A"}, keys(1), at(time.Duration(i)*10*time.Second))
	}
	st.Observe(Sample{ProcessName: "B"}, Counts{}, at(time.Minute))
	for tick := time.Minute; tick <= 7*time.Minute; tick += 100 * time.Millisecond {
		st.Observe(Sample{ProcessName: "B"}, Counts{}, at(tick))
		requireWellFormed(t, st, at(tick))
	}
	st.Observe(Sample{ProcessName: "B"}, keys(3), at(8*time.Minute))

	snap := st.Snapshot(at(8 * time.Minute))
	require.Len(t, snap.Completed, 2)

	a := snap.Completed[0]
	assert.Equal(t, "A", a.ProcessName)
	assert.False(t, a.IsIdle)
	assert.Equal(t, uint64(5), a.Keystrokes)

	idle := snap.Completed[1]
	assert.True(t, idle.IsIdle)
	assert.Equal(t, at(time.Minute), idle.StartTime)
	assert.Equal(t, at(8*time.Minute), *idle.EndTime)

	require.NotNil(t, snap.Current)
	assert.Equal(t, "B", snap.Current.ProcessName)
	assert.False(t, snap.Current.IsIdle)
	assert.Equal(t, uint64(3), snap.Current.Keystrokes)
}

func TestTryObserveContended(t *testing.T) {
	st := newTestStore(testSettings())
	st.mu.RLock()
	_, err := st.TryObserve(Sample{ProcessName: "code"}, keys(1), at(0))
	st.mu.RUnlock()
	assert.ErrorIs(t, err, ErrContended)
	assert.Nil(t, st.Snapshot(at(0)).Current)

	tr, err := st.TryObserve(Sample{ProcessName: "code"}, keys(1), at(0))
	require.NoError(t, err)
	assert.Equal(t, TransitionOpened, tr)
}

func TestShutdownFinalizesOpenSession(t *testing.T) {
	st := newTestStore(testSettings())
	st.Observe(Sample{ProcessName: "code"}, keys(1), at(0))

	kept := st.Shutdown(keys(2), at(time.Minute))
	assert.True(t, kept)

	snap := st.Snapshot(at(time.Minute))
	assert.Nil(t, snap.Current)
	require.Len(t, snap.Completed, 1)
	assert.Equal(t, uint64(3), snap.Completed[0].Keystrokes)

	// Shutdown applies the same minimum duration gate.
	st2 := newTestStore(testSettings())
	st2.Observe(Sample{ProcessName: "code"}, keys(1), at(0))
	assert.False(t, st2.Shutdown(Counts{}, at(time.Second)))
	assert.Empty(t, st2.Snapshot(at(time.Second)).Completed)
	assert.False(t, newTestStore(testSettings()).Shutdown(Counts{}, at(0)))
}

func TestPendingAndAcknowledge(t *testing.T) {
	st := newTestStore(testSettings())
	st.Observe(Sample{ProcessName: "code"}, keys(1), at(0))
	st.Observe(Sample{ProcessName: "term"}, keys(1), at(time.Minute))

	batch := st.Pending()
	require.Len(t, batch.Sessions, 1)
	require.Len(t, batch.Aggregates, 1)
	assert.Equal(t, "code", batch.Aggregates[0].ProcessName)

	st.Observe(Sample{ProcessName: "code"}, keys(1), at(2*time.Minute))
	st.Acknowledge(batch)

	next := st.Pending()
	require.Len(t, next.Sessions, 1)
	assert.Equal(t, "term", next.Sessions[0].ProcessName)
	// Completed history is unaffected by acknowledgement.
	assert.Len(t, st.Snapshot(at(2*time.Minute)).Completed, 2)

	st.Acknowledge(next)
	assert.True(t, st.Pending().Empty())
}

func TestPruneByCount(t *testing.T) {
	s := testSettings()
	s.MaxSessions = 3
	st := newTestStore(s)
	apps := []string{"a", "b", "c", "d", "e", "f"}
	for i, app := range apps {
		st.Observe(Sample{ProcessName: app}, keys(1), at(time.Duration(i)*time.Minute))
	}

	res := st.Prune(at(6 * time.Minute))
	assert.Equal(t, 2, res.Sessions)

	snap := st.Snapshot(at(6 * time.Minute))
	require.Len(t, snap.Completed, 3)
	assert.Equal(t, "c", snap.Completed[0].ProcessName)
	assert.Equal(t, "e", snap.Completed[2].ProcessName)
	require.NotNil(t, snap.Current)
	assert.Equal(t, "f", snap.Current.ProcessName)
}

func TestPruneByRetention(t *testing.T) {
	s := testSettings()
	s.Retention = time.Hour
	st := newTestStore(s)
	st.Observe(Sample{ProcessName: "old"}, keys(1), at(0))
	st.Observe(Sample{ProcessName: "new"}, keys(1), at(time.Minute))
	st.Observe(Sample{ProcessName: "open"}, keys(1), at(2*time.Hour))

	res := st.Prune(at(2*time.Hour + time.Minute))
	assert.Equal(t, 1, res.Sessions)
	assert.Equal(t, 1, res.Pending)

	snap := st.Snapshot(at(2*time.Hour + time.Minute))
	require.Len(t, snap.Completed, 1)
	assert.Equal(t, "new", snap.Completed[0].ProcessName)
	assert.Equal(t, "open", snap.Current.ProcessName)
	assert.Len(t, st.Pending().Sessions, 1)
}

func TestPruneEmptyStore(t *testing.T) {
	st := newTestStore(testSettings())
	assert.Equal(t, PruneResult{}, st.Prune(at(0)))
}

func TestSnapshotIsACopy(t *testing.T) {
	st := newTestStore(testSettings())
	st.Observe(Sample{ProcessName: "code"}, keys(1), at(0))
	st.Observe(Sample{ProcessName: "term"}, keys(1), at(time.Minute))

	snap := st.Snapshot(at(time.Minute))
	snap.Current.Keystrokes = 99
	snap.Completed[0].ProcessName = "changed"

	again := st.Snapshot(at(time.Minute))
	assert.Equal(t, uint64(1), again.Current.Keystrokes)
	assert.Equal(t, "code", again.Completed[0].ProcessName)
	assert.Equal(t, []WindowSession{again.Completed[0]}, again.Recent(5))
}

func TestResetAggregates(t *testing.T) {
	st := newTestStore(testSettings())
	st.Observe(Sample{ProcessName: "code"}, keys(1), at(0))
	st.Observe(Sample{ProcessName: "term"}, keys(1), at(time.Minute))
	require.Len(t, st.Snapshot(at(time.Minute)).Aggregates, 1)

	st.ResetAggregates()
	assert.Empty(t, st.Snapshot(at(time.Minute)).Aggregates)
}

func TestQuery(t *testing.T) {
	st := newTestStore(testSettings())
	apps := []string{"firefox", "code", "firefox-dev", "slack"}
	for i, app := range apps {
		st.Observe(Sample{ProcessName: app}, keys(1), at(time.Duration(i)*time.Minute))
	}
	st.Observe(Sample{ProcessName: "term"}, keys(1), at(10*time.Minute))

	res := st.Query(Filter{App: "fire*"})
	assert.Equal(t, 2, res.Total)
	assert.Equal(t, DefaultQueryLimit, res.Limit)

	res = st.Query(Filter{Descending: true, Limit: 2})
	require.Len(t, res.Sessions, 2)
	assert.Equal(t, 4, res.Total)
	assert.Equal(t, "slack", res.Sessions[0].ProcessName)

	res = st.Query(Filter{Offset: 3, Limit: 5000})
	assert.Equal(t, MaxQueryLimit, res.Limit)
	require.Len(t, res.Sessions, 1)
	assert.Equal(t, "slack", res.Sessions[0].ProcessName)

	res = st.Query(Filter{Offset: 10})
	assert.Empty(t, res.Sessions)

	res = st.Query(Filter{From: at(time.Minute), To: at(3 * time.Minute)})
	assert.Equal(t, 2, res.Total)

	res = st.Query(Filter{IncludeCurrent: true, App: "term"})
	require.Len(t, res.Sessions, 1)
	assert.True(t, res.Sessions[0].IsOpen())

	browsers := func(p string) string {
		if MatchPattern("fire*", p) {
			return "Browsers"
		}
		return ""
	}
	res = st.Query(Filter{Category: "Browsers", Categories: browsers})
	assert.Equal(t, 2, res.Total)
	assert.Zero(t, st.Query(Filter{Category: "Browsers"}).Total)
}

func TestObserveMedia(t *testing.T) {
	st := newTestStore(testSettings())
	song := &MediaInfo{Title: "Song", Artist: "Band", Player: "spotify", Playing: true}

	st.ObserveMedia(song, at(0))
	st.ObserveMedia(song, at(time.Minute))
	snap := st.Snapshot(at(time.Minute))
	require.NotNil(t, snap.CurrentMedia)
	assert.Equal(t, at(0), snap.CurrentMedia.StartTime)

	st.ObserveMedia(&MediaInfo{Title: "Next", Player: "spotify", Playing: true}, at(3*time.Minute))
	st.ObserveMedia(&MediaInfo{Title: "Next", Player: "spotify", Playing: false}, at(4*time.Minute))

	snap = st.Snapshot(at(4 * time.Minute))
	assert.Nil(t, snap.CurrentMedia)
	require.Len(t, snap.MediaHistory, 2)
	assert.Equal(t, "Song", snap.MediaHistory[0].Title)
	assert.Equal(t, 3*time.Minute, snap.MediaHistory[0].Duration(at(4*time.Minute)))
	assert.Len(t, st.Pending().Media, 2)

	st.ObserveMedia(song, at(5*time.Minute))
	st.ObserveMedia(nil, at(5*time.Minute+time.Second))
	assert.Len(t, st.Snapshot(at(6*time.Minute)).MediaHistory, 2)
}

func TestTransitionString(t *testing.T) {
	assert.Equal(t, "went_idle", TransitionWentIdle.String())
	assert.Equal(t, "none", Transition(99).String())
}

// Random tick sequences with focus switches, bursts of input and jumps in
// time keep the store well formed after every step. Without a minimum
// duration no input is lost either.
func TestObserveRandomSequences(t *testing.T) {
	apps := []string{"code", "firefox", "slack", "steam_app_7"}
	for _, minDur := range []time.Duration{0, 10 * time.Second} {
		for seed := int64(1); seed <= 25; seed++ {
			t.Run(fmt.Sprintf("min=%s/seed=%d", minDur, seed), func(t *testing.T) {
				rng := rand.New(rand.NewSource(seed))
				s := testSettings()
				s.MinSessionDuration = minDur
				s.TrackTitleChanges = seed%2 == 0
				s.AFKExempt = []string{"steam_app_*"}
				st := newTestStore(s)

				now := base
				app, title := apps[0], "a"
				var fed uint64
				for i := 0; i < 1500; i++ {
					switch r := rng.Intn(100); {
					case r < 2:
						now = now.Add(time.Duration(rng.Intn(90)) * time.Minute)
					case r < 10:
						now = now.Add(time.Duration(rng.Intn(120)) * time.Second)
					default:
						now = now.Add(time.Duration(rng.Intn(10)*100) * time.Millisecond)
					}
					if rng.Intn(30) == 0 {
						app = apps[rng.Intn(len(apps))]
					}
					if rng.Intn(20) == 0 {
						title = string(rune('a' + rng.Intn(3)))
					}

					if rng.Intn(12) == 0 {
						_, err := st.CheckIdle(rng.Intn(3) == 0, now)
						require.NoError(t, err)
					} else {
						var delta Counts
						if rng.Intn(3) == 0 {
							delta = keys(uint64(rng.Intn(4) + 1))
						}
						fed += delta.Keystrokes
						st.Observe(Sample{ProcessName: app, WindowTitle: title, SystemActive: rng.Intn(25) == 0}, delta, now)
					}
					requireWellFormed(t, st, now)
				}

				if minDur == 0 {
					snap := st.Snapshot(now)
					var got uint64
					for _, c := range snap.Completed {
						got += c.Keystrokes
					}
					if snap.Current != nil {
						got += snap.Current.Keystrokes
					}
					assert.Equal(t, fed, got)
				}
			})
		}
	}
}

// One writer drives the state machine while readers, the pruner and the
// flush acknowledger run concurrently. Run with -race.
func TestConcurrentAccess(t *testing.T) {
	s := testSettings()
	s.MaxSessions = 50
	st := newTestStore(s)

	var clock atomic.Int64
	clock.Store(base.UnixNano())
	now := func() time.Time { return time.Unix(0, clock.Load()) }

	done := make(chan struct{})
	var wg sync.WaitGroup
	reader := func(fn func()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
					fn()
				}
			}
		}()
	}

	reader(func() {
		snap := st.Snapshot(now())
		for _, c := range snap.Completed {
			assert.NotNil(t, c.EndTime)
			assert.NotEmpty(t, c.ID)
		}
		if snap.Current != nil {
			assert.Nil(t, snap.Current.EndTime)
			if n := len(snap.Completed); n > 0 {
				assert.False(t, snap.Current.StartTime.Before(*snap.Completed[n-1].EndTime))
			}
		}
	})
	reader(func() {
		res := st.Query(Filter{IncludeCurrent: true, Limit: MaxQueryLimit})
		open := 0
		for _, ws := range res.Sessions {
			if ws.IsOpen() {
				open++
			}
		}
		assert.LessOrEqual(t, open, 1)
	})
	reader(func() { st.Prune(now()) })
	reader(func() { st.Acknowledge(st.Pending()) })

	apps := []string{"code", "firefox", "slack"}
	for i := 0; i < 5000; i++ {
		step := time.Duration(1+i%7) * time.Second
		if i%97 == 96 {
			step += 6 * time.Minute
		}
		clock.Add(int64(step))
		var delta Counts
		if i%4 != 0 {
			delta = keys(1)
		}
		sample := Sample{ProcessName: apps[(i/25)%len(apps)]}
		if _, err := st.TryObserve(sample, delta, now()); err != nil {
			require.ErrorIs(t, err, ErrContended)
			st.Observe(sample, delta, now())
		}
	}
	close(done)
	wg.Wait()

	requireWellFormed(t, st, now())
	st.Prune(now())
	assert.LessOrEqual(t, len(st.Snapshot(now()).Completed), s.MaxSessions)
}
