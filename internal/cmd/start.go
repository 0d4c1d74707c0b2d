package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ownmon/ownmon/internal/daemon"
	"github.com/ownmon/ownmon/internal/logging"
	"github.com/ownmon/ownmon/internal/web"
)

// StartCmd runs the tracker without the web API
type StartCmd struct {
	Detach bool `help:"Run in the background" short:"b"`
}

func (s *StartCmd) Run(cli *CLI) error {
	return runDaemon(cli, s.Detach, false, 0)
}

// ServeCmd runs the tracker and the web API
type ServeCmd struct {
	Port   int  `help:"Web API port (overrides config)" short:"p"`
	Detach bool `help:"Run in the background" short:"b"`
}

func (s *ServeCmd) Run(cli *CLI) error {
	return runDaemon(cli, s.Detach, true, s.Port)
}

func runDaemon(cli *CLI, detach, withWeb bool, port int) error {
	cfg := cli.Cfg()
	dm := daemon.New(cfg.Daemon.PIDFile)

	running, pid, err := dm.IsRunning()
	if err != nil {
		return fmt.Errorf("failed to check daemon status: %w", err)
	}
	if running {
		return fmt.Errorf("%w (pid %d)", daemon.ErrAlreadyRunning, pid)
	}

	if detach && !daemon.IsChild() {
		pid, err := daemon.Detach(os.Args[1:])
		if err != nil {
			return err
		}
		fmt.Printf("Daemon started successfully (PID: %d)\n", pid)
		if withWeb {
			fmt.Printf("Web API available at: %s\n", web.BaseURL(cfg))
		}
		return nil
	}

	rt, err := newRuntime(cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	if err := dm.Acquire(); err != nil {
		return err
	}
	defer dm.Release()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var srv *web.Server
	if withWeb {
		srv = web.NewServer(cfg, rt.repo, rt.store, rt.service, port)
		logging.Logger.Info("web API enabled", "addr", srv.GetAddress())
	}

	logging.Logger.Info("starting ownmon daemon", "pid", os.Getpid(), "config", cfg.String())
	started := time.Now()
	err = rt.run(ctx, srv)
	logging.Logger.Info("daemon stopped", "uptime", time.Since(started).Truncate(time.Second).String())

	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// StopCmd signals the running daemon and waits for its final flush
type StopCmd struct {
	Timeout time.Duration `help:"How long to wait for the daemon to exit" default:"15s"`
}

func (s *StopCmd) Run(cli *CLI) error {
	dm := daemon.New(cli.Cfg().Daemon.PIDFile)

	ctx, cancel := context.WithTimeout(context.Background(), s.Timeout)
	defer cancel()

	pid, err := dm.Stop(ctx)
	if errors.Is(err, daemon.ErrNotRunning) {
		fmt.Println("Daemon is not running")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to stop daemon: %w", err)
	}

	fmt.Printf("Daemon stopped successfully (PID: %d)\n", pid)
	return nil
}
