package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
)

const (
	// DefaultMaxLogFiles bounds how many per-run log files are kept.
	DefaultMaxLogFiles = 50

	envDebug       = "OWNMON_DEBUG"
	envLogFile     = "OWNMON_LOG_FILE"
	envMaxLogFiles = "OWNMON_MAX_LOG_FILES"
)

// Logger is the process-wide logger. It discards everything until
// Initialize is called.
var Logger = slog.New(slog.NewJSONHandler(io.Discard, nil))

// Options controls where logs go.
type Options struct {
	Debug       bool
	File        string // explicit log file, disables rotation
	MaxLogFiles int
	// Stderr mirrors info-level records to stderr in text form.
	Stderr bool
}

// Initialize sets up Logger. Without Debug or File, records below warn
// level are dropped and warnings go to stderr only when Stderr is set.
func Initialize(opts Options) (string, error) {
	if os.Getenv(envDebug) == "1" {
		opts.Debug = true
	}
	if f := os.Getenv(envLogFile); f != "" && opts.File == "" {
		opts.File = f
	}
	if v := os.Getenv(envMaxLogFiles); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			opts.MaxLogFiles = n
		}
	}
	if opts.MaxLogFiles == 0 {
		opts.MaxLogFiles = DefaultMaxLogFiles
	}

	if !opts.Debug && opts.File == "" {
		if opts.Stderr {
			Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
		} else {
			Logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
		}
		return "", nil
	}

	path := opts.File
	if path == "" {
		dir, err := LogDir()
		if err != nil {
			return "", fmt.Errorf("failed to get log directory: %w", err)
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return "", fmt.Errorf("failed to create log directory: %w", err)
		}
		if opts.MaxLogFiles > 0 {
			if err := rotateLogs(dir, opts.MaxLogFiles); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: log rotation failed: %v\n", err)
			}
		}
		path = filepath.Join(dir, uuid.NewString()+".log")
	} else if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("failed to create log directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return "", fmt.Errorf("failed to create log file: %w", err)
	}

	level := slog.LevelInfo
	if opts.Debug {
		level = slog.LevelDebug
	}
	var w io.Writer = f
	if opts.Stderr {
		w = io.MultiWriter(f, os.Stderr)
	}
	Logger = slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
	Logger.Info("logging initialized", "log_file", path, "debug", opts.Debug)
	return path, nil
}

// rotateLogs removes the oldest .log files so that, after the new run's
// file is created, at most maxLogFiles remain.
func rotateLogs(logDir string, maxLogFiles int) error {
	entries, err := os.ReadDir(logDir)
	if err != nil {
		return fmt.Errorf("failed to read log directory: %w", err)
	}

	type logFileInfo struct {
		path    string
		modTime time.Time
	}
	var logFiles []logFileInfo
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".log" {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		logFiles = append(logFiles, logFileInfo{
			path:    filepath.Join(logDir, entry.Name()),
			modTime: info.ModTime(),
		})
	}
	if len(logFiles) < maxLogFiles {
		return nil
	}

	sort.Slice(logFiles, func(i, j int) bool {
		return logFiles[i].modTime.Before(logFiles[j].modTime)
	})
	excess := len(logFiles) - maxLogFiles + 1
	for i := 0; i < excess; i++ {
		if err := os.Remove(logFiles[i].path); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to delete old log file %s: %v\n", logFiles[i].path, err)
		}
	}
	return nil
}

// LogDir returns $XDG_STATE_HOME/ownmon, falling back to ~/.local/state.
func LogDir() (string, error) {
	stateHome := os.Getenv("XDG_STATE_HOME")
	if stateHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		stateHome = filepath.Join(home, ".local", "state")
	}
	return filepath.Join(stateHome, "ownmon"), nil
}
