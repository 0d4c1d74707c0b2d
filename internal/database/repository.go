package database

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ownmon/ownmon/internal/activity"
	"github.com/ownmon/ownmon/internal/models"

	"github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository handles all database operations
type Repository struct {
	db *DB
}

// NewRepository creates a new repository instance
func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

// IsRetryable reports whether err is sqlite contention that a later
// attempt may not hit.
func IsRetryable(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked
}

// Flush stores a batch of finalized rows in one transaction. Rows already
// present (same uuid) are skipped, so a retried batch never duplicates.
// Lifetime aggregates of every process in the batch are recomputed.
func (r *Repository) Flush(ctx context.Context, batch activity.Batch) error {
	if batch.Empty() {
		return nil
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(batch.Sessions) > 0 {
			rows := make([]models.Session, 0, len(batch.Sessions))
			for _, s := range batch.Sessions {
				rows = append(rows, models.NewSession(s))
			}
			result := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "uuid"}},
				DoNothing: true,
			}).Create(&rows)
			if result.Error != nil {
				return errors.Wrap(result.Error, "failed to insert sessions")
			}
		}

		if len(batch.Media) > 0 {
			rows := make([]models.MediaSession, 0, len(batch.Media))
			for _, m := range batch.Media {
				rows = append(rows, models.NewMediaSession(m))
			}
			result := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "uuid"}},
				DoNothing: true,
			}).Create(&rows)
			if result.Error != nil {
				return errors.Wrap(result.Error, "failed to insert media sessions")
			}
		}

		seen := make(map[string]bool)
		var procs []string
		for _, s := range batch.Sessions {
			if !seen[s.ProcessName] {
				seen[s.ProcessName] = true
				procs = append(procs, s.ProcessName)
			}
		}
		for _, a := range batch.Aggregates {
			if !seen[a.ProcessName] {
				seen[a.ProcessName] = true
				procs = append(procs, a.ProcessName)
			}
		}
		return recomputeAggregates(tx, procs)
	})
}

func recomputeAggregates(tx *gorm.DB, procs []string) error {
	if len(procs) == 0 {
		return nil
	}

	var aggs []models.AppAggregate
	result := tx.Model(&models.Session{}).
		Select(`process_name,
			COALESCE(SUM(CASE WHEN is_idle THEN 0 ELSE duration_secs END), 0) AS focus_secs,
			COALESCE(SUM(CASE WHEN is_idle THEN duration_secs ELSE 0 END), 0) AS idle_secs,
			COALESCE(SUM(keystrokes), 0) AS keystrokes,
			COALESCE(SUM(clicks), 0) AS clicks,
			COALESCE(SUM(scrolls), 0) AS scrolls,
			COUNT(*) AS session_count`).
		Where("process_name IN ?", procs).
		Group("process_name").
		Scan(&aggs)
	if result.Error != nil {
		return errors.Wrap(result.Error, "failed to compute aggregates")
	}
	if len(aggs) == 0 {
		return nil
	}

	result = tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "process_name"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"focus_secs", "idle_secs", "keystrokes", "clicks", "scrolls", "session_count", "updated_at",
		}),
	}).Create(&aggs)
	if result.Error != nil {
		return errors.Wrap(result.Error, "failed to upsert aggregates")
	}
	return nil
}

// SessionQuery filters persisted sessions. Zero values mean no constraint.
// Times are compared in UTC, which is how rows are stored.
type SessionQuery struct {
	Date        string // YYYY-MM-DD in Location
	From        time.Time
	To          time.Time
	App         string // * and ? wildcards, case-insensitive
	Category    string
	ExcludeIdle bool
	Limit       int
	Offset      int
	Descending  bool
	Location    *time.Location
}

// toLike converts a wildcard pattern to a LIKE pattern.
func toLike(pattern string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`, `*`, `%`, `?`, `_`)
	return r.Replace(strings.ToLower(pattern))
}

func (r *Repository) applyQuery(tx *gorm.DB, q SessionQuery) (*gorm.DB, error) {
	tx = tx.Where("end_time IS NOT NULL")

	if q.Date != "" {
		loc := q.Location
		if loc == nil {
			loc = time.Local
		}
		day, err := time.ParseInLocation("2006-01-02", q.Date, loc)
		if err != nil {
			return nil, fmt.Errorf("invalid date %q: %w", q.Date, err)
		}
		tx = tx.Where("start_time >= ? AND start_time < ?", day.UTC(), day.AddDate(0, 0, 1).UTC())
	}
	if !q.From.IsZero() {
		tx = tx.Where("start_time >= ?", q.From.UTC())
	}
	if !q.To.IsZero() {
		tx = tx.Where("start_time <= ?", q.To.UTC())
	}
	if q.App != "" {
		if strings.ContainsAny(q.App, "*?") {
			tx = tx.Where(`LOWER(process_name) LIKE ? ESCAPE '\'`, toLike(q.App))
		} else {
			tx = tx.Where("LOWER(process_name) = ?", strings.ToLower(q.App))
		}
	}
	if q.ExcludeIdle {
		tx = tx.Where("is_idle = ?", false)
	}
	if q.Category != "" {
		procs, err := r.processesInCategory(q.Category)
		if err != nil {
			return nil, err
		}
		tx = tx.Where("process_name IN ?", procs)
	}
	return tx, nil
}

// QuerySessions returns one page of matching sessions and the total match count.
func (r *Repository) QuerySessions(ctx context.Context, q SessionQuery) ([]models.Session, int64, error) {
	f := activity.Filter{Limit: q.Limit, Offset: q.Offset}.Normalize()

	base, err := r.applyQuery(r.db.WithContext(ctx).Model(&models.Session{}), q)
	if err != nil {
		return nil, 0, err
	}

	var total int64
	if err := base.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, errors.Wrap(err, "failed to count sessions")
	}

	order := "start_time ASC"
	if q.Descending {
		order = "start_time DESC"
	}
	sessions := []models.Session{}
	result := base.Session(&gorm.Session{}).
		Order(order).
		Limit(f.Limit).
		Offset(f.Offset).
		Find(&sessions)
	if result.Error != nil {
		return nil, 0, errors.Wrap(result.Error, "failed to query sessions")
	}
	return sessions, total, nil
}

// SessionsBetween returns sessions overlapping [from, to), oldest first.
func (r *Repository) SessionsBetween(ctx context.Context, from, to time.Time) ([]models.Session, error) {
	var sessions []models.Session
	result := r.db.WithContext(ctx).
		Where("start_time < ? AND end_time > ?", to.UTC(), from.UTC()).
		Order("start_time ASC").
		Find(&sessions)
	if result.Error != nil {
		return nil, errors.Wrap(result.Error, "failed to query sessions")
	}
	return sessions, nil
}

// GetAppSummaryBetween returns per-app totals for sessions starting in [start, end).
// SQL does the SUM, the reporter derives percentages.
func (r *Repository) GetAppSummaryBetween(ctx context.Context, start, end time.Time, excludeIdle bool) ([]models.AppSummary, error) {
	var summaries []models.AppSummary

	tx := r.db.WithContext(ctx).Model(&models.Session{}).
		Select(`process_name AS app_name, SUM(duration_secs) AS total_seconds,
			SUM(keystrokes) AS keystrokes, SUM(clicks) AS clicks, COUNT(*) AS event_count`).
		Where("start_time >= ? AND start_time < ?", start.UTC(), end.UTC())
	if excludeIdle {
		tx = tx.Where("is_idle = ?", false)
	}
	result := tx.Group("process_name").Order("total_seconds DESC").Scan(&summaries)
	if result.Error != nil {
		return nil, errors.Wrap(result.Error, "failed to query app summary")
	}
	return summaries, nil
}

// HourlyStats buckets the sessions of day into 24 local hours.
func (r *Repository) HourlyStats(ctx context.Context, day time.Time, excludeIdle bool) ([]activity.Bucket, error) {
	from := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	rows, err := r.SessionsBetween(ctx, from, from.AddDate(0, 0, 1))
	if err != nil {
		return nil, err
	}
	return activity.Aggregator{ExcludeIdle: excludeIdle}.Hourly(toActivity(rows), from), nil
}

// Timeline returns one bucket per day for the last days days up to now.
func (r *Repository) Timeline(ctx context.Context, days int, now time.Time, excludeIdle bool) ([]activity.Bucket, error) {
	if days <= 0 {
		days = 7
	}
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	rows, err := r.SessionsBetween(ctx, today.AddDate(0, 0, -(days-1)), today.AddDate(0, 0, 1))
	if err != nil {
		return nil, err
	}
	return activity.Aggregator{ExcludeIdle: excludeIdle}.Daily(toActivity(rows), days, now), nil
}

func toActivity(rows []models.Session) []activity.WindowSession {
	out := make([]activity.WindowSession, len(rows))
	for i := range rows {
		out[i] = rows[i].Activity()
	}
	return out
}

// AppAggregates returns lifetime totals ordered by focus time.
func (r *Repository) AppAggregates(ctx context.Context, limit int) ([]models.AppAggregate, error) {
	var aggs []models.AppAggregate
	tx := r.db.WithContext(ctx).Order("focus_secs DESC")
	if limit > 0 {
		tx = tx.Limit(limit)
	}
	if err := tx.Find(&aggs).Error; err != nil {
		return nil, errors.Wrap(err, "failed to query aggregates")
	}
	return aggs, nil
}

// MediaBetween returns media sessions starting in [from, to), newest first.
func (r *Repository) MediaBetween(ctx context.Context, from, to time.Time, limit int) ([]models.MediaSession, error) {
	var media []models.MediaSession
	tx := r.db.WithContext(ctx).Where("start_time >= ? AND start_time < ?", from.UTC(), to.UTC()).Order("start_time DESC")
	if limit > 0 {
		tx = tx.Limit(limit)
	}
	if err := tx.Find(&media).Error; err != nil {
		return nil, errors.Wrap(err, "failed to query media")
	}
	return media, nil
}

// CreateErrorLog inserts a new error log into the database
func (r *Repository) CreateErrorLog(errorLog *models.ErrorLog) error {
	result := r.db.Create(errorLog)
	if result.Error != nil {
		return errors.Wrap(result.Error, "failed to insert error log")
	}
	return nil
}

// RecentErrors returns the newest error log rows.
func (r *Repository) RecentErrors(ctx context.Context, limit int) ([]models.ErrorLog, error) {
	var logs []models.ErrorLog
	if err := r.db.WithContext(ctx).Order("timestamp DESC").Limit(limit).Find(&logs).Error; err != nil {
		return nil, errors.Wrap(err, "failed to query error log")
	}
	return logs, nil
}

// DeleteSessionsBefore removes sessions that ended before t.
func (r *Repository) DeleteSessionsBefore(ctx context.Context, t time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Where("end_time < ?", t.UTC()).Delete(&models.Session{})
	if result.Error != nil {
		return 0, errors.Wrap(result.Error, "failed to delete old sessions")
	}
	return result.RowsAffected, nil
}

// Clear removes all recorded activity. Categories and blacklist are kept.
func (r *Repository) Clear(ctx context.Context) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, table := range []string{"sessions", "app_aggregates", "media_sessions"} {
			if err := tx.Exec("DELETE FROM " + table).Error; err != nil {
				return errors.Wrapf(err, "failed to clear %s", table)
			}
		}
		return nil
	})
}
