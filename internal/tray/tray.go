// Package tray shows the tracker's live state in the system tray.
package tray

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/getlantern/systray"

	"github.com/ownmon/ownmon/internal/logging"
	"github.com/ownmon/ownmon/internal/web"
	"github.com/ownmon/ownmon/pkg/utils"
)

const topSlots = 5

// StatusFetcher loads the tracker status. web.Client implements it.
type StatusFetcher interface {
	Status(ctx context.Context) (*web.StatusResponse, error)
}

// View is what the tray displays for one status.
type View struct {
	Title   string
	Tooltip string
	Current string
	Today   string
	Top     []string
}

// Present renders st for the tray. A nil st means the API is unreachable.
func Present(st *web.StatusResponse) View {
	if st == nil {
		return View{
			Title:   "ownmon",
			Tooltip: "ownmon: not running",
			Current: "Tracker not running",
			Today:   "Start it with `ownmon serve`",
		}
	}

	v := View{Title: "ownmon", Current: "No focused window"}
	if st.Current != nil {
		v.Current = st.Current.ProcessName
		if st.Idle {
			v.Current += " (idle)"
		} else {
			v.Current += " · " + utils.FormatDuration(int64(st.CurrentSecs))
		}
	}
	if st.Today != nil {
		v.Today = fmt.Sprintf("Today: %s, %d keys",
			utils.FormatDuration(int64(st.Today.FocusSeconds)), st.Today.Keystrokes)
		v.Title = utils.FormatDuration(int64(st.Today.FocusSeconds))
	}
	for i, app := range st.TopApps {
		if i == topSlots {
			break
		}
		v.Top = append(v.Top, fmt.Sprintf("%s  %s (%.0f%%)",
			app.ProcessName, utils.FormatRoundedUnit(int64(app.FocusSeconds)), app.Percentage))
	}

	tip := []string{"ownmon", v.Current}
	if v.Today != "" {
		tip = append(tip, v.Today)
	}
	if st.Media != nil && st.Media.Title != "" {
		tip = append(tip, "♪ "+st.Media.Title)
	}
	v.Tooltip = strings.Join(tip, "\n")
	return v
}

type menu struct {
	current   *systray.MenuItem
	today     *systray.MenuItem
	top       *systray.MenuItem
	topItems  []*systray.MenuItem
	dashboard *systray.MenuItem
	refresh   *systray.MenuItem
	quit      *systray.MenuItem
}

func (m *menu) apply(v View) {
	systray.SetTitle(v.Title)
	systray.SetTooltip(v.Tooltip)
	m.current.SetTitle(v.Current)
	if v.Today == "" {
		m.today.Hide()
	} else {
		m.today.SetTitle(v.Today)
		m.today.Show()
	}
	for i, item := range m.topItems {
		if i < len(v.Top) {
			item.SetTitle(v.Top[i])
			item.Show()
		} else {
			item.Hide()
		}
	}
	if len(v.Top) == 0 {
		m.top.Disable()
	} else {
		m.top.Enable()
	}
}

// Run blocks in the tray event loop until Quit is clicked or ctx is done.
func Run(ctx context.Context, fetcher StatusFetcher, dashboardURL string, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	onReady := func() {
		systray.SetTitle("ownmon")
		systray.SetTooltip("ownmon")

		m := &menu{}
		m.current = systray.AddMenuItem("Loading...", "Focused application")
		m.current.Disable()
		m.today = systray.AddMenuItem("", "Totals for today")
		m.today.Disable()
		m.top = systray.AddMenuItem("Top applications", "Most used applications today")
		for i := 0; i < topSlots; i++ {
			item := m.top.AddSubMenuItem("", "")
			item.Disable()
			item.Hide()
			m.topItems = append(m.topItems, item)
		}
		systray.AddSeparator()
		m.dashboard = systray.AddMenuItem("Open dashboard", "Open "+dashboardURL+" in the browser")
		m.refresh = systray.AddMenuItem("Refresh", "Reload statistics")
		m.quit = systray.AddMenuItem("Quit", "Close the tray icon")

		go loop(ctx, m, fetcher, dashboardURL, interval)
	}

	go func() {
		<-ctx.Done()
		systray.Quit()
	}()

	systray.Run(onReady, cancel)
}

func loop(ctx context.Context, m *menu, fetcher StatusFetcher, dashboardURL string, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	update := func() {
		fctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		st, err := fetcher.Status(fctx)
		if err != nil {
			logging.Logger.Debug("tray status fetch failed", "error", err)
			st = nil
		}
		m.apply(Present(st))
	}
	update()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			update()
		case <-m.refresh.ClickedCh:
			update()
		case <-m.dashboard.ClickedCh:
			if err := exec.Command("xdg-open", dashboardURL).Start(); err != nil {
				logging.Logger.Warn("failed to open dashboard", "url", dashboardURL, "error", err)
			}
		case <-m.quit.ClickedCh:
			systray.Quit()
			return
		}
	}
}
