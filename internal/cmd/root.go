package cmd

import (
	"fmt"
	"strings"

	"github.com/alecthomas/kong"

	"github.com/ownmon/ownmon/internal/config"
	"github.com/ownmon/ownmon/internal/daemon"
	"github.com/ownmon/ownmon/internal/database"
	"github.com/ownmon/ownmon/internal/logging"
)

// Build information, set with -ldflags at release time.
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

// CLI represents the command-line interface structure
type CLI struct {
	Version     kong.VersionFlag `help:"Show version information"`
	Debug       bool             `help:"Enable debug logging to file" short:"d"`
	LogFile     string           `help:"Custom path for the log file (disables automatic cleanup)" type:"path"`
	MaxLogFiles int              `help:"Maximum number of log files to keep" default:"0"`
	Config      string           `help:"Path to the YAML config file" type:"path" env:"OWNMON_CONFIG"`

	Start    StartCmd    `cmd:"" help:"Start the tracking daemon"`
	Serve    ServeCmd    `cmd:"" help:"Start the tracking daemon with the web API"`
	Stop     StopCmd     `cmd:"" help:"Stop the tracking daemon"`
	Status   StatusCmd   `cmd:"" help:"Show daemon status and the focused application"`
	Report   ReportCmd   `cmd:"" help:"Generate a time report"`
	Sessions SessionsCmd `cmd:"" help:"List recorded sessions"`
	Clear    ClearCmd    `cmd:"" help:"Delete all tracking data"`
	Watch    WatchCmd    `cmd:"" help:"Live terminal view of a running daemon"`
	Tray     TrayCmd     `cmd:"" help:"Show statistics in the system tray"`
	Info     VersionCmd  `cmd:"" name:"version" help:"Show version information"`

	cfg *config.Config `kong:"-"`
}

// AfterApply loads the configuration and initializes logging after CLI
// parsing. Flags win over the config file.
func (c *CLI) AfterApply(kctx *kong.Context) error {
	path := c.Config
	if path == "" {
		path = config.Path()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	config.LoadFromEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	c.cfg = cfg

	opts := logging.Options{
		Debug:       c.Debug || cfg.Log.Debug,
		File:        c.LogFile,
		MaxLogFiles: c.MaxLogFiles,
	}
	if opts.File == "" {
		opts.File = cfg.Log.File
	}
	if opts.MaxLogFiles == 0 {
		opts.MaxLogFiles = cfg.Log.MaxLogFiles
	}
	// Foreground daemons report to the terminal. The TUI owns it otherwise.
	command := kctx.Command()
	opts.Stderr = !daemon.IsChild() && (strings.HasPrefix(command, "start") || strings.HasPrefix(command, "serve"))

	if _, err := logging.Initialize(opts); err != nil {
		return err
	}
	return nil
}

// Cfg returns the resolved configuration.
func (c *CLI) Cfg() *config.Config {
	return c.cfg
}

// openRepository connects to the configured database and migrates it.
func openRepository(cfg *config.Config) (*database.DB, *database.Repository, error) {
	path, err := cfg.DatabasePath()
	if err != nil {
		return nil, nil, err
	}
	db, err := database.Connect(path)
	if err != nil {
		return nil, nil, err
	}
	if err := db.Initialize(); err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	return db, database.NewRepository(db), nil
}

// VersionCmd prints build information
type VersionCmd struct{}

func (v *VersionCmd) Run() error {
	fmt.Printf("ownmon version %s\n", Version)
	fmt.Printf("  commit: %s\n", Commit)
	fmt.Printf("  built:  %s\n", Date)
	return nil
}
