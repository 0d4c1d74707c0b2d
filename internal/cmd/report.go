package cmd

import (
	"context"
	"fmt"

	"github.com/ownmon/ownmon/internal/reporter"
)

// ReportCmd prints per-application totals for a period
type ReportCmd struct {
	Period string `arg:"" optional:"" help:"Report period" default:"day" enum:"day,today,yesterday,week,month"`
	JSON   bool   `help:"Print the report as JSON"`
}

func (r *ReportCmd) Run(cli *CLI) error {
	cfg := cli.Cfg()
	db, repo, err := openRepository(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	rep := reporter.New(cfg, repo)
	report, err := rep.GenerateReport(context.Background(), r.Period)
	if err != nil {
		return fmt.Errorf("failed to generate report: %w", err)
	}

	if r.JSON {
		out, err := rep.FormatReportJSON(report)
		if err != nil {
			return fmt.Errorf("failed to format JSON: %w", err)
		}
		fmt.Println(out)
		return nil
	}
	fmt.Println(rep.FormatReportText(report))
	return nil
}
