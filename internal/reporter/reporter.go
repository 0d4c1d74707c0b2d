package reporter

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/ownmon/ownmon/internal/config"
	"github.com/ownmon/ownmon/internal/models"
	"github.com/ownmon/ownmon/pkg/utils"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("99"))

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("250"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))
)

// SummarySource returns per-app totals of persisted sessions.
type SummarySource interface {
	GetAppSummaryBetween(ctx context.Context, start, end time.Time, excludeIdle bool) ([]models.AppSummary, error)
}

// Reporter handles report generation
type Reporter struct {
	config *config.Config
	repo   SummarySource
	now    func() time.Time
}

// New creates a new reporter
func New(cfg *config.Config, repo SummarySource) *Reporter {
	return &Reporter{
		config: cfg,
		repo:   repo,
		now:    time.Now,
	}
}

// GenerateReport generates a report for the specified period
func (r *Reporter) GenerateReport(ctx context.Context, periodType string) (*models.Report, error) {
	period, err := r.getPeriod(periodType)
	if err != nil {
		return nil, err
	}

	// SQL does the SUM
	summaries, err := r.repo.GetAppSummaryBetween(ctx, period.Start, period.End, r.config.Report.ExcludeIdle)
	if err != nil {
		return nil, fmt.Errorf("failed to get app summary: %w", err)
	}
	if summaries == nil {
		summaries = []models.AppSummary{}
	}

	report := &models.Report{
		Period:      *period,
		Apps:        summaries,
		GeneratedAt: r.now(),
	}
	for i := range summaries {
		summaries[i].TotalMinutes = float64(summaries[i].TotalSeconds) / 60.0
		summaries[i].TotalHours = float64(summaries[i].TotalSeconds) / 3600.0
		report.TotalSeconds += summaries[i].TotalSeconds
		report.Keystrokes += summaries[i].Keystrokes
		report.Clicks += summaries[i].Clicks
	}
	if report.TotalSeconds > 0 {
		for i := range summaries {
			summaries[i].Percentage = (float64(summaries[i].TotalSeconds) / float64(report.TotalSeconds)) * 100.0
		}
	}
	report.TotalMinutes = float64(report.TotalSeconds) / 60.0
	report.TotalHours = float64(report.TotalSeconds) / 3600.0

	return report, nil
}

// getPeriod calculates the time range for the report in the configured zone
func (r *Reporter) getPeriod(periodType string) (*models.ReportPeriod, error) {
	loc, err := r.config.Location()
	if err != nil {
		return nil, err
	}
	now := r.now().In(loc)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
	var start, end time.Time

	switch periodType {
	case "day", "today":
		periodType = "day"
		start = today
		end = start.AddDate(0, 0, 1)

	case "yesterday":
		start = today.AddDate(0, 0, -1)
		end = today

	case "week":
		// Start of week (Monday)
		weekday := int(now.Weekday())
		if weekday == 0 {
			weekday = 7 // Sunday = 7
		}
		start = today.AddDate(0, 0, -(weekday - 1))
		end = start.AddDate(0, 0, 7)

	case "month":
		start = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, loc)
		end = start.AddDate(0, 1, 0)

	default:
		return nil, fmt.Errorf("invalid period type: %s (valid: day, yesterday, week, month)", periodType)
	}

	return &models.ReportPeriod{
		Start: start,
		End:   end,
		Type:  periodType,
	}, nil
}

// FormatReportText formats the report as human-readable text
func (r *Reporter) FormatReportText(report *models.Report) string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("Activity Report - "+report.Period.Type) + "\n")
	b.WriteString(dimStyle.Render(fmt.Sprintf("Period: %s to %s",
		report.Period.Start.Format("2006-01-02 15:04"),
		report.Period.End.Format("2006-01-02 15:04"))) + "\n")
	fmt.Fprintf(&b, "Total Time: %.2fh (%.0fm)  Keystrokes: %s  Clicks: %s\n\n",
		report.TotalHours, report.TotalMinutes,
		humanize.Comma(report.Keystrokes), humanize.Comma(report.Clicks))

	if len(report.Apps) == 0 {
		b.WriteString("No activity recorded for this period.\n")
		return b.String()
	}

	b.WriteString(headerStyle.Render(fmt.Sprintf("%-30s %8s %10s %12s %8s",
		"Application", "Time", "Minutes", "Keystrokes", "Percent")) + "\n")
	b.WriteString(dimStyle.Render(strings.Repeat("-", 72)) + "\n")

	for _, app := range report.Apps {
		fmt.Fprintf(&b, "%-30s %8s %10.0f %12s %7.1f%%\n",
			truncate(app.AppName, 30),
			utils.FormatDuration(app.TotalSeconds),
			app.TotalMinutes,
			humanize.Comma(app.Keystrokes),
			app.Percentage)
	}

	return b.String()
}

// FormatReportJSON formats the report as JSON
func (r *Reporter) FormatReportJSON(report *models.Report) (string, error) {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal JSON: %w", err)
	}
	return string(data), nil
}

// truncate truncates a string to the specified number of runes
func truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen-3]) + "..."
}
