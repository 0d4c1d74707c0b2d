// Package media reads now-playing information from MPRIS players through
// playerctl.
package media

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// Info describes what the active player reports.
type Info struct {
	Title   string
	Artist  string
	Album   string
	Player  string
	Playing bool
}

const format = "{{status}}\t{{title}}\t{{artist}}\t{{album}}\t{{playerName}}"

// Playerctl queries the most recently active MPRIS player.
type Playerctl struct {
	timeout time.Duration
	run     func(ctx context.Context, args ...string) ([]byte, error)
}

// NewPlayerctl returns a source bounded by timeout per query.
func NewPlayerctl(timeout time.Duration) *Playerctl {
	return &Playerctl{
		timeout: timeout,
		run: func(ctx context.Context, args ...string) ([]byte, error) {
			return exec.CommandContext(ctx, "playerctl", args...).Output()
		},
	}
}

// Available reports whether playerctl is installed.
func Available() bool {
	_, err := exec.LookPath("playerctl")
	return err == nil
}

// Current returns the active player's state, or nil when no player is
// running.
func (p *Playerctl) Current(ctx context.Context) (*Info, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	out, err := p.run(ctx, "metadata", "--format", format)
	if err != nil {
		var exitErr *exec.ExitError
		// playerctl exits 1 with "No players found".
		if errors.As(err, &exitErr) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query playerctl: %w", err)
	}
	return parse(string(out)), nil
}

func parse(out string) *Info {
	out = strings.TrimRight(out, "\r\n")
	if out == "" {
		return nil
	}
	fields := strings.Split(out, "\t")
	for len(fields) < 5 {
		fields = append(fields, "")
	}
	info := &Info{
		Playing: strings.EqualFold(fields[0], "Playing"),
		Title:   strings.TrimSpace(fields[1]),
		Artist:  strings.TrimSpace(fields[2]),
		Album:   strings.TrimSpace(fields[3]),
		Player:  strings.TrimSpace(fields[4]),
	}
	if info.Title == "" {
		return nil
	}
	return info
}
