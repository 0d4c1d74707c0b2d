// Package ui renders the live terminal view of a running tracker.
package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/ownmon/ownmon/internal/web"
	"github.com/ownmon/ownmon/pkg/utils"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("99"))

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")).
			Width(12)

	appStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("255")).
			Bold(true)

	idleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214"))

	barStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("33"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")).
			MarginTop(1)
)

const barWidth = 20

// StatusFetcher loads the tracker status. web.Client implements it.
type StatusFetcher interface {
	Status(ctx context.Context) (*web.StatusResponse, error)
}

type statusMsg struct {
	status *web.StatusResponse
	err    error
	at     time.Time
}

type tickMsg time.Time

// Model is the bubbletea model of the watch view.
type Model struct {
	fetcher  StatusFetcher
	interval time.Duration
	status   *web.StatusResponse
	err      error
	updated  time.Time
	width    int
}

func NewModel(fetcher StatusFetcher, interval time.Duration) *Model {
	if interval <= 0 {
		interval = time.Second
	}
	return &Model{fetcher: fetcher, interval: interval}
}

// Init implements tea.Model
func (m *Model) Init() tea.Cmd {
	return m.fetch()
}

func (m *Model) fetch() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		st, err := m.fetcher.Status(ctx)
		return statusMsg{status: st, err: err, at: time.Now()}
	}
}

func (m *Model) tick() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// Update implements tea.Model
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			return m, tea.Quit
		case "r":
			return m, m.fetch()
		}
	case tea.WindowSizeMsg:
		m.width = msg.Width
	case statusMsg:
		m.err = msg.err
		if msg.err == nil {
			m.status = msg.status
			m.updated = msg.at
		}
		return m, m.tick()
	case tickMsg:
		return m, m.fetch()
	}
	return m, nil
}

// View implements tea.Model
func (m *Model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("ownmon"))
	b.WriteString("\n\n")

	if m.status == nil {
		if m.err != nil {
			b.WriteString(errorStyle.Render(m.err.Error()))
		} else {
			b.WriteString("Connecting...")
		}
		b.WriteString(helpStyle.Render("\nq quit • r refresh"))
		return b.String()
	}

	st := m.status
	if st.Current != nil {
		app := appStyle.Render(st.Current.ProcessName)
		if st.Idle {
			app += " " + idleStyle.Render("(idle)")
		}
		row(&b, "Focused", app)
		if st.Current.WindowTitle != "" {
			row(&b, "Title", truncate(st.Current.WindowTitle, 60))
		}
		row(&b, "For", utils.FormatDuration(int64(st.CurrentSecs)))
	} else {
		row(&b, "Focused", "-")
	}
	if st.Media != nil {
		track := st.Media.Title
		if st.Media.Artist != "" {
			track += " – " + st.Media.Artist
		}
		row(&b, "Playing", truncate(track, 60))
	}

	if t := st.Today; t != nil {
		b.WriteString("\n")
		row(&b, "Today", utils.FormatDuration(int64(t.FocusSeconds)))
		row(&b, "Keys", humanize.Comma(int64(t.Keystrokes)))
		row(&b, "Clicks", humanize.Comma(int64(t.Clicks)))
		row(&b, "Scrolls", humanize.Comma(int64(t.Scrolls)))
	}

	if len(st.TopApps) > 0 {
		b.WriteString("\n")
		for _, app := range st.TopApps {
			filled := int(app.Percentage / 100 * barWidth)
			bar := barStyle.Render(strings.Repeat("█", filled)) + strings.Repeat("░", barWidth-filled)
			fmt.Fprintf(&b, "%-18s %s %5.1f%%  %s\n",
				truncate(app.ProcessName, 18), bar, app.Percentage, utils.FormatDuration(int64(app.FocusSeconds)))
		}
	}

	if tr := st.Tracker; tr != nil {
		b.WriteString("\n")
		mode := "input hooks"
		if tr.FocusOnly {
			mode = "focus only"
		}
		row(&b, "Tracker", fmt.Sprintf("%s, %s, %d ticks", tr.DisplayServer, mode, tr.Ticks))
		if tr.LastError != "" {
			row(&b, "Last error", errorStyle.Render(truncate(tr.LastError, 60)))
		}
	}
	row(&b, "Pending", fmt.Sprintf("%d", st.PendingWrites))

	if m.err != nil {
		b.WriteString(errorStyle.Render("\n" + m.err.Error()))
	}
	b.WriteString(helpStyle.Render(fmt.Sprintf("\nupdated %s • q quit • r refresh", humanize.Time(m.updated))))
	return b.String()
}

func row(b *strings.Builder, label, value string) {
	b.WriteString(labelStyle.Render(label))
	b.WriteString(value)
	b.WriteString("\n")
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

// Run blocks until the user quits or ctx is cancelled.
func Run(ctx context.Context, fetcher StatusFetcher, interval time.Duration) error {
	p := tea.NewProgram(NewModel(fetcher, interval), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	if err != nil && ctx.Err() != nil {
		return nil
	}
	return err
}
