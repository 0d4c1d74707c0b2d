package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/ownmon/ownmon/internal/daemon"
	"github.com/ownmon/ownmon/internal/web"
	"github.com/ownmon/ownmon/pkg/detector"
	"github.com/ownmon/ownmon/pkg/utils"
)

// StatusCmd shows whether the daemon runs and what is focused right now
type StatusCmd struct {
	JSON bool `help:"Print the daemon's status as JSON"`
}

func (s *StatusCmd) Run(cli *CLI) error {
	cfg := cli.Cfg()
	dm := daemon.New(cfg.Daemon.PIDFile)

	running, pid, err := dm.IsRunning()
	if err != nil {
		return fmt.Errorf("failed to check daemon status: %w", err)
	}

	var st *web.StatusResponse
	if running {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		st, _ = web.NewClient(web.BaseURL(cfg)).Status(ctx)
		cancel()
	}

	if s.JSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{"running": running, "pid": pid, "status": st})
	}

	if !running {
		fmt.Println("Status: Not running")
	} else {
		fmt.Printf("Status: Running (PID: %d)\n", pid)
		fmt.Printf("Poll Interval: %v\n", cfg.Tracker.PollInterval)
		path, _ := cfg.DatabasePath()
		fmt.Printf("Database: %s\n", path)
	}

	if st != nil {
		printLiveStatus(st)
		return nil
	}

	// Without the web API, probe the display server directly.
	det, err := detector.New(cfg.Tracker.AFKThreshold, 0)
	if err != nil {
		fmt.Printf("\nCould not detect current window: %v\n", err)
		return nil
	}
	defer det.Close()

	info, err := det.GetFocusedWindow()
	if err == nil && info != nil {
		fmt.Printf("\nCurrent Window:\n")
		fmt.Printf("  App: %s\n", info.Name())
		fmt.Printf("  Title: %s\n", info.WindowTitle)
		fmt.Printf("  Display: %s\n", info.DisplayServer)
	}

	idle, err := det.GetIdleInfo()
	if err == nil && idle != nil {
		fmt.Printf("\nSystem State:\n")
		fmt.Printf("  Idle: %v\n", idle.IsIdle)
		fmt.Printf("  Locked: %v\n", idle.IsLocked)
		if idle.Idle > 0 {
			fmt.Printf("  Idle Time: %s\n", idle.Idle.Truncate(time.Second))
		}
	}
	return nil
}

func printLiveStatus(st *web.StatusResponse) {
	if tr := st.Tracker; tr != nil {
		mode := "input hooks"
		if tr.FocusOnly {
			mode = "focus only"
		}
		fmt.Printf("Tracker: %s, %s, %s ticks\n", tr.DisplayServer, mode, humanize.Comma(int64(tr.Ticks)))
		if !tr.LastFlush.IsZero() {
			fmt.Printf("Last Flush: %s\n", humanize.Time(tr.LastFlush))
		}
		if tr.LastError != "" {
			fmt.Printf("Last Error: %s\n", tr.LastError)
		}
	}
	fmt.Printf("Uptime: %s\n", st.Uptime)

	if st.Current != nil {
		fmt.Printf("\nCurrent Window:\n")
		fmt.Printf("  App: %s\n", st.Current.ProcessName)
		fmt.Printf("  Title: %s\n", st.Current.WindowTitle)
		fmt.Printf("  For: %s\n", utils.FormatDuration(int64(st.CurrentSecs)))
		fmt.Printf("  Idle: %v\n", st.Idle)
	}
	if st.Media != nil {
		fmt.Printf("\nMedia: %s - %s (%s)\n", st.Media.Artist, st.Media.Title, st.Media.Player)
	}
	if t := st.Today; t != nil {
		fmt.Printf("\nToday: %s focused, %s keys, %s clicks\n",
			utils.FormatDuration(int64(t.FocusSeconds)),
			humanize.Comma(int64(t.Keystrokes)),
			humanize.Comma(int64(t.Clicks)))
	}
}
