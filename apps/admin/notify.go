package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/schoolerp/core/library"
)

func (cli *commandLine) notify(dryRun bool, timeout time.Duration) error {
	ctx := context.Background()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	report, err := cli.librarySvc.Run(ctx, library.RunOptions{DryRun: dryRun})
	if err != nil {
		return errors.Wrap(err, "running library notifications")
	}
	return cli.printReport(report)
}

// printReport prints report as JSON when the output is not a terminal (cron, pipes).
func (cli *commandLine) printReport(report library.Report) error {
	if !isTerminalFunc() {
		enc := json.NewEncoder(cli.out)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	if report.DryRun {
		_, _ = fmt.Fprintln(cli.out, "DRY RUN: nothing was sent")
		for _, p := range report.Planned {
			line := fmt.Sprintf("  %-8s borrowing %s -> %s", p.Kind, p.BorrowingID, p.Email)
			if p.Kind == library.NoticeOverdue {
				line += fmt.Sprintf(" (%d day(s), fee %s)", p.DaysOverdue, p.Fee)
			}
			_, _ = fmt.Fprintln(cli.out, line)
		}
	}
	_, _ = fmt.Fprintf(cli.out, "emails sent:           %d\n", report.EmailsSent)
	_, _ = fmt.Fprintf(cli.out, "notifications created: %d\n", report.NotificationsCreated)
	if report.Skipped > 0 {
		_, _ = fmt.Fprintf(cli.out, "skipped:               %d\n", report.Skipped)
	}
	for _, f := range report.Failures {
		_, _ = fmt.Fprintf(cli.out, "failed [%s] %s: %s\n", f.Stage, f.BorrowingID, f.Error)
	}
	return nil
}
