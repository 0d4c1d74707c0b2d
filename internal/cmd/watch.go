package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ownmon/ownmon/internal/tray"
	"github.com/ownmon/ownmon/internal/ui"
	"github.com/ownmon/ownmon/internal/web"
)

// WatchCmd opens the live terminal view
type WatchCmd struct {
	Interval time.Duration `help:"Refresh interval" default:"1s"`
	URL      string        `help:"API base URL (defaults to the configured web address)"`
}

func (w *WatchCmd) Run(cli *CLI) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM)
	defer stop()
	return ui.Run(ctx, web.NewClient(apiURL(cli, w.URL)), w.Interval)
}

// TrayCmd shows statistics in the system tray
type TrayCmd struct {
	Interval time.Duration `help:"Refresh interval" default:"5s"`
	URL      string        `help:"API base URL (defaults to the configured web address)"`
}

func (t *TrayCmd) Run(cli *CLI) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	base := apiURL(cli, t.URL)
	tray.Run(ctx, web.NewClient(base), base, t.Interval)
	return nil
}

func apiURL(cli *CLI, override string) string {
	if override != "" {
		return override
	}
	return web.BaseURL(cli.Cfg())
}
