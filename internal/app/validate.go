package app

import (
	"context"
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/vk/pipestack/internal/validate"
)

// Validate checks the stack and prints the findings. The returned error is
// non-nil when any finding is an error.
func (a *App) Validate(ctx context.Context, output string) (*validate.Report, error) {
	st, _, err := a.Load(ctx)
	if err != nil {
		return nil, err
	}
	report := validate.Validate(a.context(ctx), st)

	if err := a.writeReport(report, output); err != nil {
		return report, err
	}
	a.logger.Info("Validation finished.", "errors", len(report.Errors()), "warnings", len(report.Warnings()))
	return report, report.Err()
}

func (a *App) writeReport(report *validate.Report, output string) error {
	if output != OutputTable {
		return writeStructured(a.outW, output, report)
	}
	if len(report.Findings) == 0 {
		_, err := fmt.Fprintln(a.outW, "No findings.")
		return err
	}
	t := newTable(table.Row{"Severity", "Rule", "Resource", "Message"})
	for _, f := range report.Findings {
		t.AppendRow(table.Row{f.Severity, f.Rule, f.Resource, f.Message})
	}
	return writeTable(a.outW, t)
}
