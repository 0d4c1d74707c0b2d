package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/ownmon/ownmon/internal/database"
	"github.com/ownmon/ownmon/internal/models"
	"github.com/ownmon/ownmon/pkg/utils"
)

// SessionsCmd queries persisted sessions
type SessionsCmd struct {
	Date        string    `help:"Only sessions on this day (YYYY-MM-DD)" short:"D"`
	From        time.Time `help:"Sessions starting at or after (RFC3339)" format:"2006-01-02T15:04:05Z07:00"`
	To          time.Time `help:"Sessions starting before (RFC3339)" format:"2006-01-02T15:04:05Z07:00"`
	App         string    `help:"Process name wildcard, e.g. 'firefox*'" short:"a"`
	Category    string    `help:"Category name" short:"c"`
	ExcludeIdle bool      `help:"Hide idle sessions"`
	Limit       int       `help:"Maximum number of sessions" default:"50" short:"n"`
	Offset      int       `help:"Skip this many sessions"`
	Asc         bool      `help:"Oldest first"`
	JSON        bool      `help:"Print sessions as JSON"`
}

func (s *SessionsCmd) Run(cli *CLI) error {
	cfg := cli.Cfg()
	loc, err := cfg.Location()
	if err != nil {
		return err
	}
	if s.Date != "" {
		if _, err := time.ParseInLocation("2006-01-02", s.Date, loc); err != nil {
			return fmt.Errorf("invalid --date %q (want YYYY-MM-DD)", s.Date)
		}
	}

	db, repo, err := openRepository(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	rows, total, err := repo.QuerySessions(context.Background(), s.query(loc))
	if err != nil {
		return err
	}

	if s.JSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{"sessions": rows, "total": total})
	}
	printSessions(os.Stdout, rows, total, loc)
	return nil
}

func (s *SessionsCmd) query(loc *time.Location) database.SessionQuery {
	return database.SessionQuery{
		Date:        s.Date,
		From:        s.From,
		To:          s.To,
		App:         s.App,
		Category:    s.Category,
		ExcludeIdle: s.ExcludeIdle,
		Limit:       s.Limit,
		Offset:      s.Offset,
		Descending:  !s.Asc,
		Location:    loc,
	}
}

func printSessions(w io.Writer, rows []models.Session, total int64, loc *time.Location) {
	if len(rows) == 0 {
		fmt.Fprintln(w, "No sessions found.")
		return
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "START\tDURATION\tAPP\tKEYS\tCLICKS\tTITLE")
	for _, r := range rows {
		app := r.ProcessName
		if r.IsIdle {
			app += " (idle)"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			r.StartTime.In(loc).Format("2006-01-02 15:04:05"),
			utils.FormatDuration(r.DurationSecs),
			app,
			humanize.Comma(r.Keystrokes),
			humanize.Comma(r.Clicks),
			shorten(r.WindowTitle, 50))
	}
	tw.Flush()
	fmt.Fprintf(w, "\n%d of %s sessions\n", len(rows), humanize.Comma(total))
}

func shorten(s string, n int) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
