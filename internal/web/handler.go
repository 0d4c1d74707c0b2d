package web

import (
	"encoding/json"
	"fmt"
	"html"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ownmon/ownmon/internal/activity"
	"github.com/ownmon/ownmon/internal/config"
	"github.com/ownmon/ownmon/internal/database"
	"github.com/ownmon/ownmon/internal/logging"
	"github.com/ownmon/ownmon/internal/models"
	"github.com/ownmon/ownmon/internal/reporter"
	"github.com/ownmon/ownmon/internal/tracker"
	"github.com/ownmon/ownmon/pkg/utils"
)

// StatusProvider reports sampler health. tracker.Service implements it.
type StatusProvider interface {
	Status() tracker.Status
}

var _ StatusProvider = (*tracker.Service)(nil)

type Handler struct {
	config   *config.Config
	repo     *database.Repository
	store    *activity.Store
	status   StatusProvider
	reporter *reporter.Reporter
	agg      activity.Aggregator
	now      func() time.Time
	started  time.Time
}

// NewHandler serves live data from store and history from repo. store and
// status may be nil when only the database is available.
func NewHandler(cfg *config.Config, repo *database.Repository, store *activity.Store, status StatusProvider) *Handler {
	return &Handler{
		config:   cfg,
		repo:     repo,
		store:    store,
		status:   status,
		reporter: reporter.New(cfg, repo),
		agg:      activity.Aggregator{ExcludeIdle: cfg.Report.ExcludeIdle},
		now:      time.Now,
		started:  time.Now(),
	}
}

func (h *Handler) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/stats", h.handleStats)
	mux.HandleFunc("/api/stats/hourly", h.handleHourly)
	mux.HandleFunc("/api/stats/timeline", h.handleTimeline)
	mux.HandleFunc("/api/apps", h.handleApps)
	mux.HandleFunc("/api/current", h.handleCurrent)
	mux.HandleFunc("/api/sessions", h.handleSessions)
	mux.HandleFunc("/api/media", h.handleMedia)
	mux.HandleFunc("/api/report", h.handleReport)
	mux.HandleFunc("/api/summary", h.handleSummary)
	mux.HandleFunc("/api/categories", h.handleCategories)
	mux.HandleFunc("/api/categories/map", h.handleCategoryMap)
	mux.HandleFunc("/api/blacklist", h.handleBlacklist)
	mux.HandleFunc("/api/errors", h.handleErrors)
	mux.HandleFunc("/api/status", h.handleStatus)

	mux.HandleFunc("/health", h.handleHealth)

	mux.HandleFunc("/", h.handleIndex)
}

func (h *Handler) location() *time.Location {
	loc, err := h.config.Location()
	if err != nil {
		return time.Local
	}
	return loc
}

func (h *Handler) snapshot() (activity.Snapshot, bool) {
	if h.store == nil {
		return activity.Snapshot{}, false
	}
	return h.store.Snapshot(h.now()), true
}

func requireGet(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	return true
}

func intParam(r *http.Request, key string, def int) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, v)
	}
	return n, nil
}

func boolParam(r *http.Request, key string, def bool) bool {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func timeParam(r *http.Request, key string, loc *time.Location) (time.Time, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	t, err := time.ParseInLocation("2006-01-02", v, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid %s: %q (want RFC3339 or YYYY-MM-DD)", key, v)
	}
	return t, nil
}

// handleStats returns today's totals from the live store.
func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	if !requireGet(w, r) {
		return
	}
	snap, ok := h.snapshot()
	if !ok {
		http.Error(w, "Tracker not running", http.StatusServiceUnavailable)
		return
	}
	now := h.now().In(h.location())
	respondJSON(w, h.agg.Today(snap, now))
}

func (h *Handler) handleHourly(w http.ResponseWriter, r *http.Request) {
	if !requireGet(w, r) {
		return
	}
	loc := h.location()
	day, err := timeParam(r, "date", loc)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if day.IsZero() {
		day = h.now().In(loc)
	}
	buckets, err := h.repo.HourlyStats(r.Context(), day.In(loc), boolParam(r, "exclude_idle", h.config.Report.ExcludeIdle))
	if err != nil {
		h.serverError(w, "Failed to get hourly stats", err)
		return
	}
	respondJSON(w, buckets)
}

func (h *Handler) handleTimeline(w http.ResponseWriter, r *http.Request) {
	if !requireGet(w, r) {
		return
	}
	days, err := intParam(r, "days", 7)
	if err != nil || days == 0 || days > 366 {
		http.Error(w, "days must be between 1 and 366", http.StatusBadRequest)
		return
	}
	buckets, err := h.repo.Timeline(r.Context(), days, h.now().In(h.location()),
		boolParam(r, "exclude_idle", h.config.Report.ExcludeIdle))
	if err != nil {
		h.serverError(w, "Failed to get timeline", err)
		return
	}
	respondJSON(w, buckets)
}

// handleApps ranks today's applications from the live store, or lifetime
// totals from the database with scope=lifetime.
func (h *Handler) handleApps(w http.ResponseWriter, r *http.Request) {
	if !requireGet(w, r) {
		return
	}
	limit, err := intParam(r, "limit", 10)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if r.URL.Query().Get("scope") == "lifetime" {
		aggs, err := h.repo.AppAggregates(r.Context(), limit)
		if err != nil {
			h.serverError(w, "Failed to get aggregates", err)
			return
		}
		respondJSON(w, aggs)
		return
	}

	snap, ok := h.snapshot()
	if !ok {
		http.Error(w, "Tracker not running", http.StatusServiceUnavailable)
		return
	}
	respondJSON(w, h.agg.TopApps(snap, h.now().In(h.location()), limit))
}

type currentResponse struct {
	Session      *activity.WindowSession `json:"session"`
	Category     string                  `json:"category,omitempty"`
	DurationSecs float64                 `json:"duration_secs"`
	Idle         bool                    `json:"idle"`
	LastActivity time.Time               `json:"last_activity"`
	LastPoll     time.Time               `json:"last_poll"`
	Media        *activity.MediaSession  `json:"media,omitempty"`
}

func (h *Handler) handleCurrent(w http.ResponseWriter, r *http.Request) {
	if !requireGet(w, r) {
		return
	}
	snap, ok := h.snapshot()
	if !ok {
		http.Error(w, "Tracker not running", http.StatusServiceUnavailable)
		return
	}
	resp := currentResponse{
		Session:      snap.Current,
		Idle:         snap.Idle(),
		LastActivity: snap.LastActivity,
		LastPoll:     snap.LastPoll,
		Media:        snap.CurrentMedia,
	}
	if snap.Current != nil {
		resp.DurationSecs = snap.Current.Duration(snap.TakenAt).Seconds()
		if cat, err := h.repo.CategoryFor(r.Context(), snap.Current.ProcessName); err == nil {
			resp.Category = cat
		}
	}
	respondJSON(w, resp)
}

type sessionsResponse struct {
	Sessions any   `json:"sessions"`
	Total    int64 `json:"total"`
	Limit    int   `json:"limit"`
	Offset   int   `json:"offset"`
}

// handleSessions queries history. source=live answers from the in-memory
// store, which includes sessions not yet flushed.
func (h *Handler) handleSessions(w http.ResponseWriter, r *http.Request) {
	if !requireGet(w, r) {
		return
	}
	q := r.URL.Query()
	loc := h.location()

	limit, err := intParam(r, "limit", activity.DefaultQueryLimit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	offset, err := intParam(r, "offset", 0)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	from, err := timeParam(r, "from", loc)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	to, err := timeParam(r, "to", loc)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	date := q.Get("date")
	if date != "" {
		if _, err := time.ParseInLocation("2006-01-02", date, loc); err != nil {
			http.Error(w, "invalid date (want YYYY-MM-DD)", http.StatusBadRequest)
			return
		}
	}
	descending := strings.EqualFold(q.Get("order"), "desc")
	excludeIdle := boolParam(r, "exclude_idle", false)

	if q.Get("source") == "live" {
		if h.store == nil {
			http.Error(w, "Tracker not running", http.StatusServiceUnavailable)
			return
		}
		f := activity.Filter{
			From:           from,
			To:             to,
			App:            q.Get("app"),
			Category:       q.Get("category"),
			ExcludeIdle:    excludeIdle,
			IncludeCurrent: boolParam(r, "include_current", true),
			Limit:          limit,
			Offset:         offset,
			Descending:     descending,
		}
		if date != "" {
			day, _ := time.ParseInLocation("2006-01-02", date, loc)
			span := activity.ForDay(day)
			f.From, f.To = span.From, span.To
		}
		if f.Category != "" {
			resolve, err := h.repo.CategoryResolver(r.Context())
			if err != nil {
				h.serverError(w, "Failed to load categories", err)
				return
			}
			f.Categories = resolve
		}
		res := h.store.Query(f)
		respondJSON(w, sessionsResponse{Sessions: res.Sessions, Total: int64(res.Total), Limit: res.Limit, Offset: res.Offset})
		return
	}

	sq := database.SessionQuery{
		Date:        date,
		From:        from,
		To:          to,
		App:         q.Get("app"),
		Category:    q.Get("category"),
		ExcludeIdle: excludeIdle,
		Limit:       limit,
		Offset:      offset,
		Descending:  descending,
		Location:    loc,
	}
	rows, total, err := h.repo.QuerySessions(r.Context(), sq)
	if err != nil {
		h.serverError(w, "Failed to query sessions", err)
		return
	}
	norm := activity.Filter{Limit: limit, Offset: offset}.Normalize()
	respondJSON(w, sessionsResponse{Sessions: rows, Total: total, Limit: norm.Limit, Offset: norm.Offset})
}

func (h *Handler) handleMedia(w http.ResponseWriter, r *http.Request) {
	if !requireGet(w, r) {
		return
	}
	loc := h.location()
	day, err := timeParam(r, "date", loc)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if day.IsZero() {
		day = h.now().In(loc)
	}
	day = day.In(loc)
	from := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, loc)
	limit, err := intParam(r, "limit", 100)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	rows, err := h.repo.MediaBetween(r.Context(), from, from.AddDate(0, 0, 1), limit)
	if err != nil {
		h.serverError(w, "Failed to query media", err)
		return
	}
	respondJSON(w, rows)
}

func (h *Handler) handleReport(w http.ResponseWriter, r *http.Request) {
	if !requireGet(w, r) {
		return
	}

	periodType := r.URL.Query().Get("period")
	if periodType == "" {
		periodType = "day"
	}

	report, err := h.reporter.GenerateReport(r.Context(), periodType)
	if err != nil {
		if strings.Contains(err.Error(), "invalid period type") {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		h.serverError(w, "Failed to generate report", err)
		return
	}

	respondJSON(w, report)
}

// handleSummary is the report as an HTML fragment for htmx requests.
func (h *Handler) handleSummary(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("HX-Request") != "true" {
		h.handleReport(w, r)
		return
	}
	if !requireGet(w, r) {
		return
	}
	periodType := r.URL.Query().Get("period")
	if periodType == "" {
		periodType = "day"
	}
	report, err := h.reporter.GenerateReport(r.Context(), periodType)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	h.respondSummaryHTML(w, report)
}

func (h *Handler) respondSummaryHTML(w http.ResponseWriter, report *models.Report) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")

	if len(report.Apps) == 0 {
		w.Write([]byte(`<div class="loading">No data available</div>`))
		return
	}

	var b strings.Builder
	for _, app := range report.Apps {
		fmt.Fprintf(&b,
			`<div class="app-item" style="--bar-width: %.1f%%"><span class="app-name">%s</span><span class="app-time">%s</span><span class="app-percentage">%.1f%%</span></div>`,
			app.Percentage, html.EscapeString(app.AppName), utils.FormatRoundedUnit(app.TotalSeconds), app.Percentage)
	}
	fmt.Fprintf(&b, `<div class="total">Total: %s</div>`, utils.FormatDuration(report.TotalSeconds))

	w.Write([]byte(b.String()))
}

const defaultCategoryColor = "#95a5a6"

type categoryRequest struct {
	Name  string `json:"name"`
	Color string `json:"color"`
	Icon  string `json:"icon"`
}

func (h *Handler) handleCategories(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		cats, err := h.repo.Categories(r.Context())
		if err != nil {
			h.serverError(w, "Failed to get categories", err)
			return
		}
		respondJSON(w, cats)

	case http.MethodPost:
		var req categoryRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Name) == "" {
			http.Error(w, "name is required", http.StatusBadRequest)
			return
		}
		if req.Color == "" {
			req.Color = defaultCategoryColor
		}
		cat := &models.Category{Name: strings.TrimSpace(req.Name), Color: req.Color, Icon: req.Icon}
		if err := h.repo.CreateCategory(r.Context(), cat); err != nil {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		respondJSONStatus(w, http.StatusCreated, cat)

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

type mappingRequest struct {
	Pattern    string `json:"pattern"`
	CategoryID uint   `json:"category_id"`
}

func (h *Handler) handleCategoryMap(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		mappings, err := h.repo.AppCategories(r.Context())
		if err != nil {
			h.serverError(w, "Failed to get mappings", err)
			return
		}
		respondJSON(w, mappings)

	case http.MethodPut, http.MethodPost:
		var req mappingRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Pattern == "" || req.CategoryID == 0 {
			http.Error(w, "pattern and category_id are required", http.StatusBadRequest)
			return
		}
		if err := h.repo.SetAppCategory(r.Context(), req.Pattern, req.CategoryID); err != nil {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		respondJSON(w, map[string]any{"pattern": strings.ToLower(req.Pattern), "category_id": req.CategoryID})

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

type blacklistRequest struct {
	Pattern     string `json:"pattern"`
	Description string `json:"description"`
}

func (h *Handler) handleBlacklist(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		entries, err := h.repo.Blacklist(r.Context())
		if err != nil {
			h.serverError(w, "Failed to get blacklist", err)
			return
		}
		respondJSON(w, entries)

	case http.MethodPost:
		var req blacklistRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Pattern) == "" {
			http.Error(w, "pattern is required", http.StatusBadRequest)
			return
		}
		if err := h.repo.AddToBlacklist(r.Context(), strings.TrimSpace(req.Pattern), req.Description); err != nil {
			h.serverError(w, "Failed to add blacklist entry", err)
			return
		}
		respondJSONStatus(w, http.StatusCreated, req)

	case http.MethodDelete:
		pattern := r.URL.Query().Get("pattern")
		if pattern == "" {
			http.Error(w, "pattern is required", http.StatusBadRequest)
			return
		}
		removed, err := h.repo.RemoveFromBlacklist(r.Context(), pattern)
		if err != nil {
			h.serverError(w, "Failed to remove blacklist entry", err)
			return
		}
		if !removed {
			http.Error(w, "Pattern not found", http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *Handler) handleErrors(w http.ResponseWriter, r *http.Request) {
	if !requireGet(w, r) {
		return
	}
	limit, err := intParam(r, "limit", 50)
	if err != nil || limit == 0 {
		limit = 50
	}
	logs, err := h.repo.RecentErrors(r.Context(), limit)
	if err != nil {
		h.serverError(w, "Failed to get errors", err)
		return
	}
	respondJSON(w, logs)
}

// StatusResponse is the payload of /api/status, also consumed by the
// watch and tray clients.
type StatusResponse struct {
	Running       bool                    `json:"running"`
	Uptime        string                  `json:"uptime"`
	PollInterval  string                  `json:"poll_interval"`
	AFKThreshold  string                  `json:"afk_threshold"`
	DatabasePath  string                  `json:"database_path"`
	ExcludeIdle   bool                    `json:"exclude_idle"`
	Tracker       *tracker.Status         `json:"tracker,omitempty"`
	Current       *activity.WindowSession `json:"current,omitempty"`
	CurrentSecs   float64                 `json:"current_secs"`
	Idle          bool                    `json:"idle"`
	Media         *activity.MediaSession  `json:"media,omitempty"`
	Today         *activity.DailySummary  `json:"today,omitempty"`
	TopApps       []activity.AppUsage     `json:"top_apps,omitempty"`
	PendingWrites int                     `json:"pending_writes"`
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	if !requireGet(w, r) {
		return
	}

	dbPath, _ := h.config.DatabasePath()
	resp := StatusResponse{
		Running:      h.store != nil,
		Uptime:       h.now().Sub(h.started).Truncate(time.Second).String(),
		PollInterval: h.config.Tracker.PollInterval.String(),
		AFKThreshold: h.config.Tracker.AFKThreshold.String(),
		DatabasePath: dbPath,
		ExcludeIdle:  h.config.Report.ExcludeIdle,
	}
	if h.status != nil {
		st := h.status.Status()
		resp.Tracker = &st
		resp.Running = st.Running
	}
	if snap, ok := h.snapshot(); ok {
		now := h.now().In(h.location())
		today := h.agg.Today(snap, now)
		resp.Current = snap.Current
		if snap.Current != nil {
			resp.CurrentSecs = snap.Current.Duration(snap.TakenAt).Seconds()
		}
		resp.Idle = snap.Idle()
		resp.Media = snap.CurrentMedia
		resp.Today = &today
		resp.TopApps = h.agg.TopApps(snap, now, 5)
		resp.PendingWrites = snap.Pending
	}

	respondJSON(w, resp)
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]string{
		"status": "healthy",
		"time":   h.now().Format(time.RFC3339),
	})
}

func (h *Handler) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte(indexHTML))
}

func (h *Handler) serverError(w http.ResponseWriter, msg string, err error) {
	logging.Logger.Error(msg, "error", err)
	http.Error(w, fmt.Sprintf("%s: %v", msg, err), http.StatusInternalServerError)
}

func respondJSON(w http.ResponseWriter, data interface{}) {
	respondJSONStatus(w, http.StatusOK, data)
}

func respondJSONStatus(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logging.Logger.Error("failed to encode JSON response", "error", err)
	}
}
