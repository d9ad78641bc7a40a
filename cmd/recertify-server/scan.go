package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newScanCmd(setup setupFn) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Run one review pass and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			a, err := buildApp(cmd.Context(), cfg, logger, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			out := cmd.OutOrStdout()

			if dryRun {
				due, err := a.selector.Due(cmd.Context())
				if err != nil {
					return err
				}
				notes, err := a.dispatcher.Build(due)
				if err != nil {
					return err
				}
				for _, n := range notes {
					fmt.Fprintf(out, "%s (%s): %d pending, due by %s\n",
						n.ReviewerID, n.ReviewerName, n.PendingCount, n.Deadline.Format("2006-01-02"))
				}
				fmt.Fprintf(out, "%d entitlements due, %d reviewers\n", len(due), len(notes))
				return nil
			}

			report := a.trigger.RunNow(cmd.Context())
			if report.Err != nil {
				return fmt.Errorf("review run %s: %w", report.RunID, report.Err)
			}
			logger.Info("scan finished",
				zap.String("run_id", report.RunID),
				zap.Int("due", report.Due),
				zap.Int("notified", report.Dispatch.Delivered),
			)
			fmt.Fprintf(out, "%d entitlements due, %d reviewers notified, %d failed\n",
				report.Due, report.Dispatch.Delivered, len(report.Dispatch.Failures))
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "print the reminders without sending them")
	return cmd
}
