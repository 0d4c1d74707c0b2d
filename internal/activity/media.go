package activity

import "time"

// MediaInfo is what the media collaborator reports for the active player.
type MediaInfo struct {
	Title   string `json:"title"`
	Artist  string `json:"artist"`
	Album   string `json:"album,omitempty"`
	Player  string `json:"player"`
	Playing bool   `json:"playing"`
}

// sameTrack compares identity, ignoring playback status.
func (m MediaInfo) sameTrack(o MediaInfo) bool {
	return m.Title == o.Title && m.Artist == o.Artist && m.Player == o.Player
}

// MediaSession is one continuous playback interval of a single track.
type MediaSession struct {
	ID        string     `json:"id,omitempty"`
	Title     string     `json:"title"`
	Artist    string     `json:"artist"`
	Album     string     `json:"album,omitempty"`
	Player    string     `json:"player"`
	StartTime time.Time  `json:"start_time"`
	EndTime   *time.Time `json:"end_time,omitempty"`
}

// Duration returns end-start, or now-start while playback continues.
func (m *MediaSession) Duration(now time.Time) time.Duration {
	end := now
	if m.EndTime != nil {
		end = *m.EndTime
	}
	if d := end.Sub(m.StartTime); d > 0 {
		return d
	}
	return 0
}

// ObserveMedia updates the media session from a sample. A nil info or a
// paused player closes the open media session.
func (s *Store) ObserveMedia(info *MediaInfo, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if info == nil || !info.Playing || info.Title == "" {
		s.finalizeMedia(now)
		return
	}
	if cur := s.currentMedia; cur != nil {
		prev := MediaInfo{Title: cur.Title, Artist: cur.Artist, Player: cur.Player}
		if prev.sameTrack(*info) {
			return
		}
		s.finalizeMedia(now)
	}
	s.currentMedia = &MediaSession{
		Title:     info.Title,
		Artist:    info.Artist,
		Album:     info.Album,
		Player:    info.Player,
		StartTime: now,
	}
}

func (s *Store) finalizeMedia(now time.Time) {
	cur := s.currentMedia
	s.currentMedia = nil
	if cur == nil {
		return
	}
	cur.EndTime = &now
	if cur.Duration(now) < s.settings.MinSessionDuration {
		return
	}
	cur.ID = s.newID()
	s.mediaHistory = append(s.mediaHistory, *cur)
	s.pendingMedia = append(s.pendingMedia, *cur)
}
