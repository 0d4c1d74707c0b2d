package activity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func session(app string, start, end time.Time, keys uint64, idle bool) WindowSession {
	s := WindowSession{ProcessName: app, StartTime: start, Keystrokes: keys, IsIdle: idle}
	if !end.IsZero() {
		s.EndTime = &end
	}
	return s
}

func TestAggregatorToday(t *testing.T) {
	now := at(2 * time.Hour)
	yesterday := startOfDay(now).Add(-time.Hour)
	open := session("code", at(90*time.Minute), time.Time{}, 7, false)
	mediaEnd := at(30 * time.Minute)

	snap := Snapshot{
		Completed: []WindowSession{
			session("old", yesterday, yesterday.Add(30*time.Minute), 100, false),
			session("firefox", at(0), at(30*time.Minute), 5, false),
			session("firefox", at(30*time.Minute), at(60*time.Minute), 0, true),
			session("term", at(60*time.Minute), at(90*time.Minute), 3, false),
		},
		Current:      &open,
		MediaHistory: []MediaSession{{Title: "a", StartTime: at(0), EndTime: &mediaEnd}},
		CurrentMedia: &MediaSession{Title: "b", StartTime: at(110 * time.Minute)},
	}

	sum := Aggregator{}.Today(snap, now)
	assert.Equal(t, 4, sum.Sessions)
	assert.Equal(t, 3, sum.Apps)
	assert.Equal(t, uint64(15), sum.Keystrokes)
	assert.Equal(t, (90 * time.Minute).Seconds(), sum.FocusSeconds)
	assert.Equal(t, (30 * time.Minute).Seconds(), sum.IdleSeconds)
	assert.Equal(t, (40 * time.Minute).Seconds(), sum.MediaSeconds)
	assert.Equal(t, startOfDay(now).Format("2006-01-02"), sum.Date)

	// Nothing in the snapshot was mutated by the read.
	assert.Nil(t, snap.Current.EndTime)
}

func TestAggregatorTodaySpansMidnight(t *testing.T) {
	midnight := startOfDay(base)
	now := midnight.Add(time.Hour)
	snap := Snapshot{Completed: []WindowSession{
		session("code", midnight.Add(-time.Hour), midnight.Add(30*time.Minute), 1, false),
	}}

	sum := Aggregator{}.Today(snap, now)
	assert.Equal(t, 1, sum.Sessions)
	assert.Equal(t, (30 * time.Minute).Seconds(), sum.FocusSeconds)
}

func TestAggregatorTopApps(t *testing.T) {
	now := at(2 * time.Hour)
	open := session("code", at(60*time.Minute), time.Time{}, 1, false)
	snap := Snapshot{
		Completed: []WindowSession{
			session("firefox", at(0), at(20*time.Minute), 5, false),
			session("term", at(20*time.Minute), at(30*time.Minute), 3, false),
			session("term", at(30*time.Minute), at(60*time.Minute), 0, true),
		},
		Current: &open,
	}

	top := Aggregator{}.TopApps(snap, now, 0)
	require.Len(t, top, 3)
	assert.Equal(t, "code", top[0].ProcessName)
	assert.Equal(t, "firefox", top[1].ProcessName)
	assert.Equal(t, "term", top[2].ProcessName)
	assert.Equal(t, 2, top[2].Sessions)
	assert.InDelta(t, 66.667, top[0].Percentage, 0.001)

	top = Aggregator{ExcludeIdle: true}.TopApps(snap, now, 2)
	require.Len(t, top, 2)
	assert.Equal(t, "firefox", top[1].ProcessName)

	all := Aggregator{ExcludeIdle: true}.TopApps(snap, now, 0)
	assert.Equal(t, 1, all[2].Sessions)
}

func TestAggregatorHourlySplitsAcrossHours(t *testing.T) {
	day := startOfDay(base)
	now := day.Add(12 * time.Hour)
	sessions := []WindowSession{
		session("code", day.Add(9*time.Hour+45*time.Minute), day.Add(10*time.Hour+15*time.Minute), 4, false),
		session("code", day.Add(10*time.Hour+15*time.Minute), day.Add(10*time.Hour+30*time.Minute), 0, true),
		session("term", day.Add(11*time.Hour+50*time.Minute), time.Time{}, 2, false),
	}

	buckets := Aggregator{}.Hourly(sessions, now)
	require.Len(t, buckets, 24)
	assert.Equal(t, (15 * time.Minute).Seconds(), buckets[9].FocusSeconds)
	assert.Equal(t, (15 * time.Minute).Seconds(), buckets[10].FocusSeconds)
	assert.Equal(t, (15 * time.Minute).Seconds(), buckets[10].IdleSeconds)
	assert.Equal(t, uint64(4), buckets[9].Keystrokes)
	assert.Equal(t, 1, buckets[9].Sessions)
	assert.Equal(t, 1, buckets[10].Sessions)
	assert.Equal(t, (10 * time.Minute).Seconds(), buckets[11].FocusSeconds)
	assert.Zero(t, buckets[12].FocusSeconds)

	buckets = Aggregator{ExcludeIdle: true}.Hourly(sessions, now)
	assert.Zero(t, buckets[10].IdleSeconds)
}

func TestAggregatorDaily(t *testing.T) {
	day := startOfDay(base)
	now := day.Add(12 * time.Hour)
	sessions := []WindowSession{
		session("code", day.AddDate(0, 0, -2).Add(23*time.Hour), day.AddDate(0, 0, -1).Add(time.Hour), 1, false),
		session("code", day.Add(time.Hour), day.Add(2*time.Hour), 1, false),
		session("old", day.AddDate(0, 0, -10), day.AddDate(0, 0, -10).Add(time.Hour), 1, false),
	}

	buckets := Aggregator{}.Daily(sessions, 3, now)
	require.Len(t, buckets, 3)
	assert.Equal(t, day.AddDate(0, 0, -2), buckets[0].Start)
	assert.Equal(t, time.Hour.Seconds(), buckets[0].FocusSeconds)
	assert.Equal(t, time.Hour.Seconds(), buckets[1].FocusSeconds)
	assert.Equal(t, 1, buckets[0].Sessions)
	assert.Equal(t, 0, buckets[1].Sessions)
	assert.Equal(t, time.Hour.Seconds(), buckets[2].FocusSeconds)

	assert.Len(t, Aggregator{}.Daily(nil, 0, now), 1)
}
