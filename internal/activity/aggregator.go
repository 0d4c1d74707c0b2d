package activity

import (
	"sort"
	"time"
)

// DailySummary holds today's totals.
type DailySummary struct {
	Date         string  `json:"date"`
	Sessions     int     `json:"sessions"`
	Apps         int     `json:"apps"`
	Keystrokes   uint64  `json:"keystrokes"`
	Clicks       uint64  `json:"clicks"`
	Scrolls      uint64  `json:"scrolls"`
	FocusSeconds float64 `json:"focus_seconds"`
	IdleSeconds  float64 `json:"idle_seconds"`
	MediaSeconds float64 `json:"media_seconds"`
}

// AppUsage is one row of a top-applications ranking.
type AppUsage struct {
	ProcessName  string  `json:"process_name"`
	FocusSeconds float64 `json:"focus_seconds"`
	Keystrokes   uint64  `json:"keystrokes"`
	Clicks       uint64  `json:"clicks"`
	Scrolls      uint64  `json:"scrolls"`
	Sessions     int     `json:"sessions"`
	Percentage   float64 `json:"percentage"`
}

// Bucket is one hour or one day of rolled-up activity.
type Bucket struct {
	Start        time.Time `json:"start"`
	FocusSeconds float64   `json:"focus_seconds"`
	IdleSeconds  float64   `json:"idle_seconds"`
	Keystrokes   uint64    `json:"keystrokes"`
	Clicks       uint64    `json:"clicks"`
	Sessions     int       `json:"sessions"`
}

// Aggregator derives statistics from snapshots. It never touches the store.
type Aggregator struct {
	// ExcludeIdle drops idle sessions from rankings and buckets.
	ExcludeIdle bool
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// sessionsWithCurrent returns completed sessions plus the open one.
func sessionsWithCurrent(snap *Snapshot) []WindowSession {
	out := make([]WindowSession, 0, len(snap.Completed)+1)
	out = append(out, snap.Completed...)
	if snap.Current != nil {
		out = append(out, *snap.Current)
	}
	return out
}

// overlap returns the part of [start,end) that falls in [from,to).
func overlap(start, end, from, to time.Time) time.Duration {
	if start.Before(from) {
		start = from
	}
	if end.After(to) {
		end = to
	}
	if d := end.Sub(start); d > 0 {
		return d
	}
	return 0
}

func sessionEnd(s *WindowSession, now time.Time) time.Time {
	if s.EndTime != nil {
		return *s.EndTime
	}
	return now
}

// Today totals every session overlapping the local day of now, counting
// the open session up to now.
func (a Aggregator) Today(snap Snapshot, now time.Time) DailySummary {
	from := startOfDay(now)
	to := from.AddDate(0, 0, 1)
	sum := DailySummary{Date: from.Format("2006-01-02")}
	apps := make(map[string]struct{})

	for _, s := range sessionsWithCurrent(&snap) {
		d := overlap(s.StartTime, sessionEnd(&s, now), from, to)
		if d == 0 && s.StartTime.Before(from) {
			continue
		}
		sum.Sessions++
		apps[s.ProcessName] = struct{}{}
		sum.Keystrokes += s.Keystrokes
		sum.Clicks += s.Clicks
		sum.Scrolls += s.Scrolls
		if s.IsIdle {
			sum.IdleSeconds += d.Seconds()
		} else {
			sum.FocusSeconds += d.Seconds()
		}
	}
	sum.Apps = len(apps)

	media := append([]MediaSession(nil), snap.MediaHistory...)
	if snap.CurrentMedia != nil {
		media = append(media, *snap.CurrentMedia)
	}
	for _, m := range media {
		end := now
		if m.EndTime != nil {
			end = *m.EndTime
		}
		sum.MediaSeconds += overlap(m.StartTime, end, from, to).Seconds()
	}
	return sum
}

// TopApps ranks processes by focus time within today. n <= 0 returns all.
func (a Aggregator) TopApps(snap Snapshot, now time.Time, n int) []AppUsage {
	from := startOfDay(now)
	to := from.AddDate(0, 0, 1)
	byApp := make(map[string]*AppUsage)
	var total float64

	for _, s := range sessionsWithCurrent(&snap) {
		if s.IsIdle && a.ExcludeIdle {
			continue
		}
		d := overlap(s.StartTime, sessionEnd(&s, now), from, to)
		if d == 0 {
			continue
		}
		u, ok := byApp[s.ProcessName]
		if !ok {
			u = &AppUsage{ProcessName: s.ProcessName}
			byApp[s.ProcessName] = u
		}
		if !s.IsIdle {
			u.FocusSeconds += d.Seconds()
			total += d.Seconds()
		}
		u.Keystrokes += s.Keystrokes
		u.Clicks += s.Clicks
		u.Scrolls += s.Scrolls
		u.Sessions++
	}

	out := make([]AppUsage, 0, len(byApp))
	for _, u := range byApp {
		if total > 0 {
			u.Percentage = u.FocusSeconds / total * 100
		}
		out = append(out, *u)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].FocusSeconds == out[j].FocusSeconds {
			return out[i].ProcessName < out[j].ProcessName
		}
		return out[i].FocusSeconds > out[j].FocusSeconds
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

// Hourly returns 24 buckets for the local day of now. Durations spanning
// an hour boundary are split between the buckets they cover; counts go to
// the bucket the session started in.
func (a Aggregator) Hourly(sessions []WindowSession, now time.Time) []Bucket {
	day := startOfDay(now)
	buckets := make([]Bucket, 24)
	for h := range buckets {
		buckets[h].Start = day.Add(time.Duration(h) * time.Hour)
	}

	for i := range sessions {
		s := &sessions[i]
		if s.IsIdle && a.ExcludeIdle {
			continue
		}
		end := sessionEnd(s, now)
		for h := range buckets {
			from := buckets[h].Start
			d := overlap(s.StartTime, end, from, from.Add(time.Hour))
			if s.IsIdle {
				buckets[h].IdleSeconds += d.Seconds()
			} else {
				buckets[h].FocusSeconds += d.Seconds()
			}
			if !s.StartTime.Before(from) && s.StartTime.Before(from.Add(time.Hour)) {
				buckets[h].Keystrokes += s.Keystrokes
				buckets[h].Clicks += s.Clicks
				buckets[h].Sessions++
			}
		}
	}
	return buckets
}

// Daily returns one bucket per local day for the last days days ending
// with the day of now, oldest first.
func (a Aggregator) Daily(sessions []WindowSession, days int, now time.Time) []Bucket {
	if days <= 0 {
		days = 1
	}
	first := startOfDay(now).AddDate(0, 0, -(days - 1))
	buckets := make([]Bucket, days)
	for i := range buckets {
		buckets[i].Start = first.AddDate(0, 0, i)
	}

	for i := range sessions {
		s := &sessions[i]
		if s.IsIdle && a.ExcludeIdle {
			continue
		}
		end := sessionEnd(s, now)
		for b := range buckets {
			from := buckets[b].Start
			to := from.AddDate(0, 0, 1)
			d := overlap(s.StartTime, end, from, to)
			if s.IsIdle {
				buckets[b].IdleSeconds += d.Seconds()
			} else {
				buckets[b].FocusSeconds += d.Seconds()
			}
			if !s.StartTime.Before(from) && s.StartTime.Before(to) {
				buckets[b].Keystrokes += s.Keystrokes
				buckets[b].Clicks += s.Clicks
				buckets[b].Sessions++
			}
		}
	}
	return buckets
}
