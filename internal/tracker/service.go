package tracker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ownmon/ownmon/internal/activity"
	"github.com/ownmon/ownmon/internal/config"
	"github.com/ownmon/ownmon/internal/database"
	"github.com/ownmon/ownmon/internal/logging"
	"github.com/ownmon/ownmon/internal/models"
	"github.com/ownmon/ownmon/pkg/input"
	"github.com/ownmon/ownmon/pkg/media"
	"github.com/ownmon/ownmon/pkg/window"
)

// SessionStore is the write side of the activity store driven by the
// sampler.
type SessionStore interface {
	TryObserve(sample activity.Sample, delta activity.Counts, now time.Time) (activity.Transition, error)
	CheckIdle(present bool, now time.Time) (activity.Transition, error)
	ObserveMedia(info *activity.MediaInfo, now time.Time)
	Pending() activity.Batch
	Acknowledge(batch activity.Batch)
	Prune(now time.Time) activity.PruneResult
	Shutdown(delta activity.Counts, now time.Time) bool
}

// Sink persists finalized sessions. Flush must be idempotent per session ID.
type Sink interface {
	Flush(ctx context.Context, batch activity.Batch) error
}

// ErrorRecorder stores errors for later inspection.
type ErrorRecorder interface {
	CreateErrorLog(errorLog *models.ErrorLog) error
}

// BlacklistSource supplies refreshable blacklist patterns.
type BlacklistSource interface {
	BlacklistPatterns(ctx context.Context) ([]string, error)
}

// HookMonitor reports the health of the input readers. input.Hooks
// implements it.
type HookMonitor interface {
	Alive() int
	Errors() []error
}

// MediaSource reports the current media player state. A nil Info means
// nothing is playing.
type MediaSource interface {
	Current(ctx context.Context) (*media.Info, error)
}

var (
	_ SessionStore    = (*activity.Store)(nil)
	_ Sink            = (*database.Repository)(nil)
	_ ErrorRecorder   = (*database.Repository)(nil)
	_ BlacklistSource = (*database.Repository)(nil)
	_ MediaSource     = (*media.Playerctl)(nil)
	_ HookMonitor     = (*input.Hooks)(nil)
)

// Options are the cadences the service runs at.
type Options struct {
	PollInterval     time.Duration
	FlushInterval    time.Duration
	PruneInterval    time.Duration
	MediaInterval    time.Duration
	BlacklistRefresh time.Duration
	FlushTimeout     time.Duration
	HookCheck        time.Duration
	Blacklist        []string
	// FocusOnly is set when input hooks could not be installed. Activity
	// then comes from the display server's idle time. A running service
	// also switches to it when every input reader has stopped.
	FocusOnly bool
}

// OptionsFromConfig resolves Options from the tracker config.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		PollInterval:     cfg.Tracker.PollInterval,
		FlushInterval:    cfg.Tracker.FlushInterval,
		PruneInterval:    cfg.Tracker.PruneInterval,
		MediaInterval:    cfg.Tracker.MediaInterval,
		BlacklistRefresh: time.Minute,
		FlushTimeout:     10 * time.Second,
		HookCheck:        5 * time.Second,
		Blacklist:        cfg.Tracker.Blacklist,
	}
}

// Deps are the collaborators of a Service. Errors, Blacklist, Hooks and
// Media are optional.
type Deps struct {
	Store     SessionStore
	Counters  *activity.Counters
	Detector  window.Detector
	Sink      Sink
	Errors    ErrorRecorder
	Blacklist BlacklistSource
	Hooks     HookMonitor
	Media     MediaSource
}

// Status is a point-in-time view of the sampler for the status endpoint.
type Status struct {
	Running       bool      `json:"running"`
	FocusOnly     bool      `json:"focus_only"`
	DisplayServer string    `json:"display_server"`
	Ticks         uint64    `json:"ticks"`
	Skipped       uint64    `json:"skipped"`
	Contended     uint64    `json:"contended"`
	Flushes       uint64    `json:"flushes"`
	FlushFailures uint64    `json:"flush_failures"`
	LastFlush     time.Time `json:"last_flush"`
	LastError     string    `json:"last_error,omitempty"`
	Blacklist     []string  `json:"blacklist"`
	// PendingInput is input counted but not yet attributed to a session.
	PendingInput activity.Counts `json:"pending_input"`
}

const idleQueryInterval = time.Second

type Service struct {
	opts     Options
	deps     Deps
	filter   *Filter
	now      func() time.Time
	stopChan chan struct{}
	stopOnce sync.Once
	running  atomic.Bool

	focusOnly atomic.Bool

	// Owned by the sampler goroutine.
	carry       activity.Counts
	failStreak  int
	lastIdleAt  time.Time
	lastIdle    *window.IdleInfo
	lastProcess string
	peeked      activity.Counts

	flushMu sync.Mutex

	ticks, skipped, contended atomic.Uint64
	flushes, flushFailures    atomic.Uint64
	lastFlush                 atomic.Int64

	errMu     sync.Mutex
	lastError string
}

func NewService(opts Options, deps Deps) *Service {
	s := &Service{
		opts:     opts,
		deps:     deps,
		filter:   NewFilter(opts.Blacklist),
		now:      time.Now,
		stopChan: make(chan struct{}),
	}
	s.focusOnly.Store(opts.FocusOnly)
	return s
}

// Filter returns the blacklist filter applied by the sampler.
func (s *Service) Filter() *Filter {
	return s.filter
}

// Start runs the sampler until ctx is cancelled or Stop is called, then
// finalizes the open session and flushes once more. It returns ctx.Err()
// when the context ended the run and nil after Stop.
func (s *Service) Start(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return fmt.Errorf("tracker is already running")
	}
	defer s.running.Store(false)

	logging.Logger.Info("starting tracker",
		"poll_interval", s.opts.PollInterval,
		"flush_interval", s.opts.FlushInterval,
		"focus_only", s.focusOnly.Load(),
		"display_server", s.deps.Detector.GetDisplayServer())

	s.refreshBlacklist(ctx)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-s.stopChan:
			cancel()
		case <-runCtx.Done():
		}
	}()

	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error { return s.sampleLoop(gctx) })
	g.Go(func() error { return s.flushLoop(gctx) })
	g.Go(func() error { return s.maintenanceLoop(gctx) })
	if s.deps.Media != nil && s.opts.MediaInterval > 0 {
		g.Go(func() error { return s.mediaLoop(gctx) })
	}
	err := g.Wait()

	s.shutdown(ctx)

	if ctx.Err() != nil {
		logging.Logger.Info("tracker stopped by context")
		return ctx.Err()
	}
	logging.Logger.Info("tracker stopped")
	return err
}

// Stop ends a running Start. It is safe to call more than once.
func (s *Service) Stop() {
	s.stopOnce.Do(func() { close(s.stopChan) })
}

func (s *Service) IsRunning() bool {
	return s.running.Load()
}

// Status returns sampler counters and the active blacklist.
func (s *Service) Status() Status {
	st := Status{
		Running:       s.running.Load(),
		FocusOnly:     s.focusOnly.Load(),
		DisplayServer: s.deps.Detector.GetDisplayServer(),
		Ticks:         s.ticks.Load(),
		Skipped:       s.skipped.Load(),
		Contended:     s.contended.Load(),
		Flushes:       s.flushes.Load(),
		FlushFailures: s.flushFailures.Load(),
		Blacklist:     s.filter.Patterns(),
		PendingInput:  s.deps.Counters.Peek(),
	}
	if ns := s.lastFlush.Load(); ns > 0 {
		st.LastFlush = time.Unix(0, ns)
	}
	s.errMu.Lock()
	st.LastError = s.lastError
	s.errMu.Unlock()
	return st
}

func (s *Service) sampleLoop(ctx context.Context) error {
	ticker := time.NewTicker(s.opts.PollInterval)
	defer ticker.Stop()

	s.tick(s.now())
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.tick(s.now())
		}
	}
}

// tick runs one sampler step. Unresolvable windows leave the counters
// untouched so the input is attributed to the next resolvable window.
// Skipped ticks still run the AFK check, so a locked screen goes idle.
func (s *Service) tick(now time.Time) activity.Transition {
	s.ticks.Add(1)

	sample, ok, blocked := s.sample(now)
	if blocked {
		// Input inside a blacklisted window is dropped, not reattributed.
		present := s.deps.Counters.Drain().Add(s.carry).HasActivity()
		s.carry, s.peeked = activity.Counts{}, activity.Counts{}
		s.skipped.Add(1)
		return s.checkIdle(present || s.displayActive(now), now)
	}
	if !ok {
		// Counters keep growing until drained, so only new input counts.
		peek := s.deps.Counters.Peek()
		present := peek != s.peeked
		s.peeked = peek
		s.skipped.Add(1)
		return s.checkIdle(present || s.displayActive(now), now)
	}

	delta := s.deps.Counters.Drain().Add(s.carry)
	s.peeked = activity.Counts{}
	tr, err := s.deps.Store.TryObserve(sample, delta, now)
	if errors.Is(err, activity.ErrContended) {
		s.carry = delta
		s.contended.Add(1)
		return activity.TransitionNone
	}
	s.carry = activity.Counts{}

	if tr != activity.TransitionNone {
		logging.Logger.Debug("session transition",
			"transition", tr.String(),
			"process", sample.ProcessName)
	}
	return tr
}

func (s *Service) checkIdle(present bool, now time.Time) activity.Transition {
	tr, err := s.deps.Store.CheckIdle(present, now)
	if errors.Is(err, activity.ErrContended) {
		s.contended.Add(1)
		return activity.TransitionNone
	}
	if tr != activity.TransitionNone {
		logging.Logger.Debug("session transition without a usable window",
			"transition", tr.String())
	}
	return tr
}

func (s *Service) displayActive(now time.Time) bool {
	return s.focusOnly.Load() && s.systemActive(now)
}

func (s *Service) sample(now time.Time) (activity.Sample, bool, bool) {
	info, err := s.deps.Detector.GetFocusedWindow()
	if err == nil && info == nil {
		err = errors.New("no focused window")
	}
	name := info.Name()
	if err == nil && name == "" {
		err = errors.New("focused window has no usable name")
	}
	if err != nil {
		s.detectionFailed(fmt.Errorf("failed to get focused window: %w", err))
		return activity.Sample{}, false, false
	}
	if s.failStreak > 0 {
		logging.Logger.Info("window detection recovered", "failed_ticks", s.failStreak)
		s.failStreak = 0
	}

	if s.filter.Blocked(name) {
		if name != s.lastProcess {
			logging.Logger.Debug("skipping blacklisted process", "process", name)
		}
		s.lastProcess = name
		return activity.Sample{}, false, true
	}
	s.lastProcess = name

	sample := activity.Sample{ProcessName: name, WindowTitle: info.WindowTitle}
	sample.SystemActive = s.displayActive(now)
	return sample, true, false
}

// systemActive reports whether the display server saw input within the
// last idle query window. Queries are throttled since some backends shell
// out.
func (s *Service) systemActive(now time.Time) bool {
	if s.lastIdle == nil || now.Sub(s.lastIdleAt) >= idleQueryInterval {
		idle, err := s.deps.Detector.GetIdleInfo()
		if err != nil {
			logging.Logger.Debug("failed to get idle info", "error", err)
			idle = nil
		}
		s.lastIdle, s.lastIdleAt = idle, now
		return idle != nil && !idle.IsLocked && idle.Idle < idleQueryInterval
	}
	return false
}

// detectionFailed records the first failure of a streak and only counts
// the rest, since a locked screen can fail every tick for hours.
func (s *Service) detectionFailed(err error) {
	s.failStreak++
	if s.failStreak == 1 {
		logging.Logger.Debug("window detection failed", "error", err)
		s.storeError(models.SourceDetector, err)
	}
}

func (s *Service) flushLoop(ctx context.Context) error {
	ticker := time.NewTicker(s.opts.FlushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			_ = s.Flush(ctx)
		}
	}
}

// Flush hands pending sessions to the sink outside the store lock and
// acknowledges them on success. On failure they stay pending.
func (s *Service) Flush(ctx context.Context) error {
	s.flushMu.Lock()
	defer s.flushMu.Unlock()

	batch := s.deps.Store.Pending()
	if batch.Empty() {
		return nil
	}

	if err := s.deps.Sink.Flush(ctx, batch); err != nil {
		s.flushFailures.Add(1)
		if database.IsRetryable(err) {
			logging.Logger.Warn("flush deferred, database busy",
				"sessions", len(batch.Sessions), "error", err)
		} else {
			logging.Logger.Error("flush failed",
				"sessions", len(batch.Sessions), "error", err)
			s.storeError(models.SourceFlush, err)
		}
		return err
	}

	s.deps.Store.Acknowledge(batch)
	s.flushes.Add(1)
	s.lastFlush.Store(s.now().UnixNano())
	logging.Logger.Debug("flushed sessions",
		"sessions", len(batch.Sessions),
		"media", len(batch.Media))
	return nil
}

func (s *Service) maintenanceLoop(ctx context.Context) error {
	prune := time.NewTicker(s.opts.PruneInterval)
	defer prune.Stop()

	var refresh <-chan time.Time
	if s.deps.Blacklist != nil && s.opts.BlacklistRefresh > 0 {
		t := time.NewTicker(s.opts.BlacklistRefresh)
		defer t.Stop()
		refresh = t.C
	}

	var hooks <-chan time.Time
	if s.deps.Hooks != nil && s.opts.HookCheck > 0 {
		t := time.NewTicker(s.opts.HookCheck)
		defer t.Stop()
		hooks = t.C
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-prune.C:
			res := s.deps.Store.Prune(s.now())
			if res.Pending > 0 {
				logging.Logger.Warn("dropped unflushed sessions past retention", "count", res.Pending)
			}
			logging.Logger.Debug("pruned history", "sessions", res.Sessions, "media", res.Media)
		case <-refresh:
			s.refreshBlacklist(ctx)
		case <-hooks:
			if s.checkHooks() {
				hooks = nil
			}
		}
	}
}

// checkHooks degrades to focus-only tracking once every input reader has
// stopped. It reports whether the service is in focus-only mode.
func (s *Service) checkHooks() bool {
	if s.focusOnly.Load() {
		return true
	}
	if s.deps.Hooks.Alive() > 0 {
		return false
	}

	cause := errors.Join(s.deps.Hooks.Errors()...)
	if cause == nil {
		cause = errors.New("all input devices closed")
	}
	err := fmt.Errorf("input hooks stopped, tracking focus only: %w", cause)
	logging.Logger.Warn("input hooks stopped, tracking focus only", "error", cause)
	s.storeError(models.SourceInput, err)
	s.focusOnly.Store(true)
	return true
}

func (s *Service) refreshBlacklist(ctx context.Context) {
	if s.deps.Blacklist == nil {
		return
	}
	patterns, err := s.deps.Blacklist.BlacklistPatterns(ctx)
	if err != nil {
		logging.Logger.Warn("failed to refresh blacklist", "error", err)
		return
	}
	s.filter.Set(patterns)
}

func (s *Service) mediaLoop(ctx context.Context) error {
	ticker := time.NewTicker(s.opts.MediaInterval)
	defer ticker.Stop()
	failing := false
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			info, err := s.deps.Media.Current(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				if !failing {
					logging.Logger.Debug("media query failed", "error", err)
					s.storeError(models.SourceMedia, err)
				}
				failing = true
				continue
			}
			failing = false
			s.deps.Store.ObserveMedia(toActivityMedia(info), s.now())
		}
	}
}

func toActivityMedia(info *media.Info) *activity.MediaInfo {
	if info == nil {
		return nil
	}
	return &activity.MediaInfo{
		Title:   info.Title,
		Artist:  info.Artist,
		Album:   info.Album,
		Player:  info.Player,
		Playing: info.Playing,
	}
}

// shutdown attributes the last counts and flushes with a fresh deadline,
// since ctx is usually already cancelled here.
func (s *Service) shutdown(ctx context.Context) {
	delta := s.deps.Counters.Drain().Add(s.carry)
	s.carry = activity.Counts{}
	if s.deps.Store.Shutdown(delta, s.now()) {
		logging.Logger.Debug("finalized open session on shutdown")
	}

	flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.FlushTimeout)
	defer cancel()
	if err := s.Flush(flushCtx); err != nil {
		logging.Logger.Error("final flush failed", "error", err)
	}
}

func (s *Service) storeError(source string, err error) {
	s.errMu.Lock()
	s.lastError = err.Error()
	s.errMu.Unlock()

	if s.deps.Errors == nil {
		return
	}
	if dbErr := s.deps.Errors.CreateErrorLog(models.NewErrorLog(source, err, s.now())); dbErr != nil {
		logging.Logger.Warn("failed to store error in database",
			"error", dbErr, "original_error", err)
	}
}

// RecordError stores an error raised outside the sampler, such as input
// hook installation failures.
func (s *Service) RecordError(source string, err error) {
	s.storeError(source, err)
}
