// Package daemon manages the PID file that lets one CLI invocation find
// and signal the running tracker.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"
)

var (
	ErrAlreadyRunning = errors.New("ownmon is already running")
	ErrNotRunning     = errors.New("ownmon is not running")
)

type Daemon struct {
	pidFile string
	// alive reports whether pid names a live process. Replaced in tests.
	alive func(pid int) bool
}

func New(pidFile string) *Daemon {
	return &Daemon{pidFile: pidFile, alive: processAlive}
}

func (d *Daemon) Path() string {
	return d.pidFile
}

// Acquire writes the current PID unless another live process already
// holds the file. A stale file is replaced.
func (d *Daemon) Acquire() error {
	running, pid, err := d.IsRunning()
	if err != nil {
		return err
	}
	if running && pid != os.Getpid() {
		return fmt.Errorf("%w (pid %d)", ErrAlreadyRunning, pid)
	}
	return d.WritePID()
}

// WritePID replaces the PID file atomically.
func (d *Daemon) WritePID() error {
	if err := os.MkdirAll(filepath.Dir(d.pidFile), 0o755); err != nil {
		return fmt.Errorf("failed to create PID directory: %w", err)
	}
	tmp := d.pidFile + ".tmp"
	if err := os.WriteFile(tmp, []byte(strconv.Itoa(os.Getpid())+"\n"), 0o644); err != nil {
		return fmt.Errorf("failed to write PID file: %w", err)
	}
	if err := os.Rename(tmp, d.pidFile); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to write PID file: %w", err)
	}
	return nil
}

// ReadPID returns 0 without error when no PID file exists.
func (d *Daemon) ReadPID() (int, error) {
	data, err := os.ReadFile(d.pidFile)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read PID file: %w", err)
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("invalid PID in file %s: %q", d.pidFile, strings.TrimSpace(string(data)))
	}

	return pid, nil
}

func (d *Daemon) RemovePID() error {
	if err := os.Remove(d.pidFile); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove PID file: %w", err)
	}
	return nil
}

// Release removes the PID file if it still names this process.
func (d *Daemon) Release() error {
	pid, err := d.ReadPID()
	if err != nil || pid != os.Getpid() {
		return err
	}
	return d.RemovePID()
}

// IsRunning removes a stale PID file as a side effect.
func (d *Daemon) IsRunning() (bool, int, error) {
	pid, err := d.ReadPID()
	if err != nil {
		return false, 0, err
	}

	if pid == 0 {
		return false, 0, nil
	}

	if !d.alive(pid) {
		_ = d.RemovePID()
		return false, 0, nil
	}

	return true, pid, nil
}

// Stop sends SIGTERM and waits until the process exits or ctx is done.
// The tracker flushes on SIGTERM, so callers should allow a few seconds.
func (d *Daemon) Stop(ctx context.Context) (int, error) {
	running, pid, err := d.IsRunning()
	if err != nil {
		return 0, fmt.Errorf("error checking daemon status: %w", err)
	}

	if !running {
		return 0, ErrNotRunning
	}

	if err := syscall.Kill(pid, syscall.SIGTERM); err != nil {
		if errors.Is(err, syscall.ESRCH) {
			_ = d.RemovePID()
			return pid, ErrNotRunning
		}
		return pid, fmt.Errorf("failed to send SIGTERM: %w", err)
	}

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for d.alive(pid) {
		select {
		case <-ctx.Done():
			return pid, fmt.Errorf("process %d did not exit: %w", pid, ctx.Err())
		case <-ticker.C:
		}
	}

	return pid, d.RemovePID()
}

func processAlive(pid int) bool {
	err := syscall.Kill(pid, syscall.Signal(0))
	return err == nil || errors.Is(err, syscall.EPERM)
}

// ChildEnv marks a process started by Detach.
const ChildEnv = "OWNMON_DAEMON_CHILD"

// IsChild reports whether this process was started by Detach.
func IsChild() bool {
	return os.Getenv(ChildEnv) == "1"
}

// Detach re-executes the current binary with args in a new session, with
// stdio closed, and returns the child's PID.
func Detach(args []string) (int, error) {
	exe, err := os.Executable()
	if err != nil {
		return 0, fmt.Errorf("failed to resolve executable: %w", err)
	}

	procAttr := &os.ProcAttr{
		Env:   append(os.Environ(), ChildEnv+"=1"),
		Files: []*os.File{nil, nil, nil},
		Sys:   &syscall.SysProcAttr{Setsid: true},
	}

	process, err := os.StartProcess(exe, append([]string{exe}, args...), procAttr)
	if err != nil {
		return 0, fmt.Errorf("failed to start daemon process: %w", err)
	}
	pid := process.Pid
	_ = process.Release()
	return pid, nil
}
