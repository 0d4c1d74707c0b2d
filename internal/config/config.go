package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ownmon/ownmon/internal/activity"
)

// Config holds all application configuration
type Config struct {
	// Database configuration
	Database DatabaseConfig `yaml:"database"`

	// Tracker configuration
	Tracker TrackerConfig `yaml:"tracker"`

	// Daemon configuration
	Daemon DaemonConfig `yaml:"daemon"`

	// Report configuration
	Report ReportConfig `yaml:"report"`

	// Web server configuration
	Web WebConfig `yaml:"web"`

	// Logging configuration
	Log LogConfig `yaml:"log"`
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	Path string `yaml:"path,omitempty"` // Path to SQLite database file
}

// TrackerConfig holds tracking behavior configuration
type TrackerConfig struct {
	PollInterval       time.Duration `yaml:"poll_interval"` // How often to sample the focused window
	MinPollInterval    time.Duration `yaml:"-"`
	MaxPollInterval    time.Duration `yaml:"-"`
	AFKThreshold       time.Duration `yaml:"afk_threshold"` // No input for this long splits off an idle session; 0 disables
	MinSessionDuration time.Duration `yaml:"min_session_duration"`
	TrackTitleChanges  bool          `yaml:"track_title_changes"`
	MaxSessions        int           `yaml:"max_sessions"` // In-memory history bound
	Retention          time.Duration `yaml:"retention"`
	PruneInterval      time.Duration `yaml:"prune_interval"`
	FlushInterval      time.Duration `yaml:"flush_interval"`
	MediaInterval      time.Duration `yaml:"media_interval"` // 0 disables media tracking
	AFKExempt          []string      `yaml:"afk_exempt,omitempty"`
	Blacklist          []string      `yaml:"blacklist,omitempty"`
	InputDevices       []string      `yaml:"input_devices,omitempty"` // evdev paths; empty means autodetect
}

// DaemonConfig holds daemon process configuration
type DaemonConfig struct {
	PIDFile string `yaml:"pid_file"` // Path to PID file for daemon management
}

// ReportConfig holds report generation configuration
type ReportConfig struct {
	ExcludeIdle bool   `yaml:"exclude_idle"` // Whether to exclude idle time from reports
	TimeZone    string `yaml:"time_zone"`
}

// WebConfig holds web server configuration
type WebConfig struct {
	Host string `yaml:"host"` // Host to bind web server to
	Port int    `yaml:"port"` // Port for web server
}

// LogConfig holds logging configuration
type LogConfig struct {
	Debug       bool   `yaml:"debug"`
	File        string `yaml:"file,omitempty"`
	MaxLogFiles int    `yaml:"max_log_files"`
}

// Default returns a Config with sensible default values
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path: "", // Empty means use default ~/.config/ownmon/ownmon.db
		},
		Tracker: TrackerConfig{
			PollInterval:       100 * time.Millisecond,
			MinPollInterval:    10 * time.Millisecond,
			MaxPollInterval:    5 * time.Second,
			AFKThreshold:       300 * time.Second,
			MinSessionDuration: 10 * time.Second,
			MaxSessions:        1000,
			Retention:          24 * time.Hour,
			PruneInterval:      time.Hour,
			FlushInterval:      5 * time.Second,
			MediaInterval:      2 * time.Second,
		},
		Daemon: DaemonConfig{
			PIDFile: fmt.Sprintf("/tmp/ownmon-%d.pid", os.Getuid()),
		},
		Report: ReportConfig{
			ExcludeIdle: true, // Exclude idle time by default
			TimeZone:    "Local",
		},
		Web: WebConfig{
			Host: "localhost",
			Port: 9473,
		},
		Log: LogConfig{
			MaxLogFiles: 50,
		},
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	t := c.Tracker
	if t.PollInterval < t.MinPollInterval {
		return fmt.Errorf("poll interval (%v) cannot be less than minimum (%v)",
			t.PollInterval, t.MinPollInterval)
	}
	if t.PollInterval > t.MaxPollInterval {
		return fmt.Errorf("poll interval (%v) cannot be greater than maximum (%v)",
			t.PollInterval, t.MaxPollInterval)
	}
	if t.AFKThreshold < 0 {
		return fmt.Errorf("afk threshold cannot be negative")
	}
	if t.MinSessionDuration < 0 {
		return fmt.Errorf("min session duration cannot be negative")
	}
	if t.MaxSessions < 0 {
		return fmt.Errorf("max sessions cannot be negative, got %d", t.MaxSessions)
	}
	if t.Retention < 0 || t.MediaInterval < 0 {
		return fmt.Errorf("retention and media interval cannot be negative")
	}
	if t.PruneInterval <= 0 {
		return fmt.Errorf("prune interval must be positive, got %v", t.PruneInterval)
	}
	if t.FlushInterval <= 0 {
		return fmt.Errorf("flush interval must be positive, got %v", t.FlushInterval)
	}
	if t.Retention > 0 && t.Retention < t.AFKThreshold {
		return fmt.Errorf("retention (%v) cannot be shorter than the afk threshold (%v)",
			t.Retention, t.AFKThreshold)
	}

	if _, err := c.Location(); err != nil {
		return err
	}

	// Validate web config
	if c.Web.Port < 1 || c.Web.Port > 65535 {
		return fmt.Errorf("web port must be between 1 and 65535, got %d", c.Web.Port)
	}
	if c.Web.Host == "" {
		return fmt.Errorf("web host cannot be empty")
	}

	// Validate daemon config
	if c.Daemon.PIDFile == "" {
		return fmt.Errorf("PID file path cannot be empty")
	}

	return nil
}

// ActivitySettings resolves the thresholds the activity store consumes.
func (c *Config) ActivitySettings() activity.Settings {
	return activity.Settings{
		AFKThreshold:       c.Tracker.AFKThreshold,
		MinSessionDuration: c.Tracker.MinSessionDuration,
		TrackTitleChanges:  c.Tracker.TrackTitleChanges,
		MaxSessions:        c.Tracker.MaxSessions,
		Retention:          c.Tracker.Retention,
		AFKExempt:          append([]string(nil), c.Tracker.AFKExempt...),
	}
}

// Location returns the report time zone.
func (c *Config) Location() (*time.Location, error) {
	if c.Report.TimeZone == "" || strings.EqualFold(c.Report.TimeZone, "local") {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Report.TimeZone)
	if err != nil {
		return nil, fmt.Errorf("invalid time zone %q: %w", c.Report.TimeZone, err)
	}
	return loc, nil
}

// SetPollInterval sets the poll interval with validation
func (c *Config) SetPollInterval(interval time.Duration) error {
	if interval < c.Tracker.MinPollInterval {
		return fmt.Errorf("poll interval cannot be less than %v", c.Tracker.MinPollInterval)
	}
	if interval > c.Tracker.MaxPollInterval {
		return fmt.Errorf("poll interval cannot be greater than %v", c.Tracker.MaxPollInterval)
	}
	c.Tracker.PollInterval = interval
	return nil
}

// SetWebPort sets the web server port with validation
func (c *Config) SetWebPort(port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", port)
	}
	c.Web.Port = port
	return nil
}

// DataDir returns the directory holding the database by default.
func DataDir() (string, error) {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "ownmon"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".config", "ownmon"), nil
}

// DatabasePath returns the configured database path or the default one.
func (c *Config) DatabasePath() (string, error) {
	if c.Database.Path != "" {
		return c.Database.Path, nil
	}
	dir, err := DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "ownmon.db"), nil
}

// String returns a string representation of the config
func (c *Config) String() string {
	return fmt.Sprintf(`Configuration:
  Database:
    Path: %s
  Tracker:
    Poll Interval: %v
    AFK Threshold: %v
    Min Session: %v
    Track Titles: %v
    Max Sessions: %d
    Retention: %v
    Prune Interval: %v
    Flush Interval: %v
    Media Interval: %v
  Daemon:
    PID File: %s
  Report:
    Exclude Idle: %v
    Time Zone: %s
  Web:
    Host: %s
    Port: %d`,
		c.Database.Path,
		c.Tracker.PollInterval,
		c.Tracker.AFKThreshold,
		c.Tracker.MinSessionDuration,
		c.Tracker.TrackTitleChanges,
		c.Tracker.MaxSessions,
		c.Tracker.Retention,
		c.Tracker.PruneInterval,
		c.Tracker.FlushInterval,
		c.Tracker.MediaInterval,
		c.Daemon.PIDFile,
		c.Report.ExcludeIdle,
		c.Report.TimeZone,
		c.Web.Host,
		c.Web.Port,
	)
}
