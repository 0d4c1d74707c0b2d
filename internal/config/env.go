package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// LoadFromEnv loads configuration from environment variables
// Environment variables override file and default values
func LoadFromEnv(cfg *Config) {
	// Database configuration
	if dbPath := os.Getenv("OWNMON_DB_PATH"); dbPath != "" {
		cfg.Database.Path = dbPath
	}

	// Tracker configuration
	if d, ok := envDuration("OWNMON_POLL_INTERVAL"); ok && d > 0 {
		if d >= cfg.Tracker.MinPollInterval && d <= cfg.Tracker.MaxPollInterval {
			cfg.Tracker.PollInterval = d
		}
	}
	if d, ok := envDuration("OWNMON_AFK_THRESHOLD"); ok && d >= 0 {
		cfg.Tracker.AFKThreshold = d
	}
	if d, ok := envDuration("OWNMON_MIN_SESSION_DURATION"); ok && d >= 0 {
		cfg.Tracker.MinSessionDuration = d
	}
	if v, ok := envBool("OWNMON_TRACK_TITLE_CHANGES"); ok {
		cfg.Tracker.TrackTitleChanges = v
	}
	if n, err := strconv.Atoi(os.Getenv("OWNMON_MAX_SESSIONS")); err == nil && n >= 0 {
		cfg.Tracker.MaxSessions = n
	}
	if d, ok := envDuration("OWNMON_RETENTION"); ok && d >= 0 {
		cfg.Tracker.Retention = d
	}
	if d, ok := envDuration("OWNMON_PRUNE_INTERVAL"); ok && d > 0 {
		cfg.Tracker.PruneInterval = d
	}
	if d, ok := envDuration("OWNMON_FLUSH_INTERVAL"); ok && d > 0 {
		cfg.Tracker.FlushInterval = d
	}
	if d, ok := envDuration("OWNMON_MEDIA_INTERVAL"); ok && d >= 0 {
		cfg.Tracker.MediaInterval = d
	}
	if list := envList("OWNMON_AFK_EXEMPT"); list != nil {
		cfg.Tracker.AFKExempt = list
	}
	if list := envList("OWNMON_BLACKLIST"); list != nil {
		cfg.Tracker.Blacklist = list
	}
	if list := envList("OWNMON_INPUT_DEVICES"); list != nil {
		cfg.Tracker.InputDevices = list
	}

	// Daemon configuration
	if pidFile := os.Getenv("OWNMON_PID_FILE"); pidFile != "" {
		cfg.Daemon.PIDFile = pidFile
	}

	// Report configuration
	if v, ok := envBool("OWNMON_EXCLUDE_IDLE"); ok {
		cfg.Report.ExcludeIdle = v
	}
	if timeZone := os.Getenv("OWNMON_TIMEZONE"); timeZone != "" {
		cfg.Report.TimeZone = timeZone
	}

	// Web configuration
	if webHost := os.Getenv("OWNMON_WEB_HOST"); webHost != "" {
		cfg.Web.Host = webHost
	}
	if webPort := os.Getenv("OWNMON_WEB_PORT"); webPort != "" {
		if port, err := strconv.Atoi(webPort); err == nil && port > 0 && port <= 65535 {
			cfg.Web.Port = port
		}
	}
}

// envDuration accepts either a Go duration ("250ms") or whole seconds.
func envDuration(key string) (time.Duration, bool) {
	raw := os.Getenv(key)
	if raw == "" {
		return 0, false
	}
	if seconds, err := strconv.Atoi(raw); err == nil {
		return time.Duration(seconds) * time.Second, true
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, false
	}
	return d, true
}

func envBool(key string) (bool, bool) {
	raw := os.Getenv(key)
	if raw == "" {
		return false, false
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false
	}
	return v, true
}

// envList splits a comma separated value, dropping empty items.
func envList(key string) []string {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil
	}
	out := []string{}
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// New creates a new Config from defaults, the config file and the environment
func New() (*Config, error) {
	cfg, err := Load(Path())
	if err != nil {
		return nil, err
	}
	LoadFromEnv(cfg)
	return cfg, nil
}
