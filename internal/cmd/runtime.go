package cmd

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ownmon/ownmon/internal/activity"
	"github.com/ownmon/ownmon/internal/config"
	"github.com/ownmon/ownmon/internal/database"
	"github.com/ownmon/ownmon/internal/logging"
	"github.com/ownmon/ownmon/internal/models"
	"github.com/ownmon/ownmon/internal/tracker"
	"github.com/ownmon/ownmon/internal/web"
	"github.com/ownmon/ownmon/pkg/detector"
	"github.com/ownmon/ownmon/pkg/input"
	"github.com/ownmon/ownmon/pkg/media"
	"github.com/ownmon/ownmon/pkg/window"
)

const (
	mediaTimeout    = time.Second
	webShutdownWait = 5 * time.Second
)

// daemonRuntime owns everything a running daemon acquires. Close releases it in
// reverse order.
type daemonRuntime struct {
	cfg      *config.Config
	db       *database.DB
	repo     *database.Repository
	store    *activity.Store
	counters *activity.Counters
	detector window.Detector
	hooks    *input.Hooks
	service  *tracker.Service
}

// newRuntime performs setup. Only failures here terminate the daemon:
// missing input hooks or media support degrade instead.
func newRuntime(cfg *config.Config) (_ *daemonRuntime, err error) {
	rt := &daemonRuntime{cfg: cfg}
	defer func() {
		if err != nil {
			_ = rt.Close()
		}
	}()

	rt.db, rt.repo, err = openRepository(cfg)
	if err != nil {
		return nil, err
	}

	rt.detector, err = detector.New(cfg.Tracker.AFKThreshold, cfg.Tracker.PollInterval)
	if err != nil {
		return nil, err
	}
	logging.Logger.Info("window detector initialized", "display_server", rt.detector.GetDisplayServer())

	rt.store = activity.NewStore(cfg.ActivitySettings())
	rt.counters = activity.NewCounters()

	hooks, hookErr := input.Open(rt.counters, cfg.Tracker.InputDevices)
	if hookErr != nil {
		logging.Logger.Warn("input hooks unavailable, tracking focus only", "error", hookErr)
	} else {
		rt.hooks = hooks
		logging.Logger.Info("input hooks installed", "devices", hooks.Devices())
	}

	opts := tracker.OptionsFromConfig(cfg)
	opts.FocusOnly = hookErr != nil

	deps := tracker.Deps{
		Store:     rt.store,
		Counters:  rt.counters,
		Detector:  rt.detector,
		Sink:      rt.repo,
		Errors:    rt.repo,
		Blacklist: rt.repo,
	}
	if rt.hooks != nil {
		deps.Hooks = rt.hooks
	}
	if media.Available() {
		deps.Media = media.NewPlayerctl(mediaTimeout)
	} else {
		logging.Logger.Info("playerctl not found, media tracking disabled")
	}

	rt.service = tracker.NewService(opts, deps)
	if hookErr != nil {
		rt.service.RecordError(models.SourceInput, hookErr)
	}
	return rt, nil
}

// run supervises the tracker and the optional web server until ctx is
// cancelled or one of them fails.
func (rt *daemonRuntime) run(ctx context.Context, srv *web.Server) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := rt.service.Start(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	if srv != nil {
		g.Go(srv.Start)
		g.Go(func() error {
			<-gctx.Done()
			sctx, cancel := context.WithTimeout(context.WithoutCancel(gctx), webShutdownWait)
			defer cancel()
			return srv.Shutdown(sctx)
		})
	}

	return g.Wait()
}

func (rt *daemonRuntime) Close() error {
	var errs []error
	if rt.hooks != nil {
		errs = append(errs, rt.hooks.Close())
	}
	if rt.detector != nil {
		errs = append(errs, rt.detector.Close())
	}
	if rt.db != nil {
		errs = append(errs, rt.db.Close())
	}
	return errors.Join(errs...)
}
