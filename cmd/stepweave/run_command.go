package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"stepweave/internal/config"
	"stepweave/internal/logging"
	"stepweave/internal/notifications"
	"stepweave/internal/pipeline"
	"stepweave/internal/store"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var taskID string
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run every pending stage for a manifest task",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireTask(taskID); err != nil {
				return err
			}
			task, err := ctx.manifestTask(taskID)
			if err != nil {
				return err
			}
			logger, err := ctx.logger()
			if err != nil {
				return err
			}
			return ctx.withStore(func(cfg *config.Config, st *store.Store) error {
				pipe, err := ctx.pipeline(cfg, st, logger)
				if err != nil {
					return err
				}
				notifier := notifications.NewService(cfg)
				started := time.Now()
				report, err := pipe.Run(cmd.Context(), task)
				if err != nil {
					if notifyErr := notifier.NotifyRunFailed(context.WithoutCancel(cmd.Context()), task.ID, err); notifyErr != nil {
						logger.Warn("run notification failed", logging.Error(notifyErr))
					}
					return fmt.Errorf("run %s: %w", task.ID, err)
				}
				if notifyErr := notifier.NotifyRunCompleted(cmd.Context(), notifications.RunSummary{
					TaskID:   task.ID,
					Title:    task.Title,
					Sources:  report.Sources,
					Notables: report.Notables,
					Hooks:    report.Hooks,
					Warnings: len(report.Validation.Warnings),
					Duration: time.Since(started),
				}); notifyErr != nil {
					logger.Warn("run notification failed", logging.Error(notifyErr))
				}
				if jsonOutput {
					return writeJSON(cmd, report)
				}
				printReport(cmd, report)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&taskID, "task", "t", "", "Task id from the manifest")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the run report as JSON")
	return cmd
}

func printReport(cmd *cobra.Command, report pipeline.Report) {
	out := cmd.OutOrStdout()
	color := shouldColorize(out)

	rows := make([][]string, 0, len(report.Stages))
	for _, result := range report.Stages {
		status := "ran"
		if result.Skipped {
			status = "skipped"
		}
		rows = append(rows, []string{
			string(result.Stage),
			colorize(status, statusColor(status), color),
			result.Duration.Round(time.Millisecond).String(),
			strconv.Itoa(result.Warnings),
		})
	}
	fmt.Fprintln(out, renderTable([]string{"Stage", "Status", "Duration", "Warnings"}, rows,
		[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight}))

	fmt.Fprintf(out, "Task %s (run %s)\n", report.TaskID, report.RunID)
	fmt.Fprintf(out, "sources: %d  subgoals: %d  records: %d  notables: %d  hooks: %d\n",
		report.Sources, report.Subgoals, report.Records, report.Notables, report.Hooks)
	if len(report.Validation.Warnings) > 0 {
		fmt.Fprintf(out, "%d warnings:\n", len(report.Validation.Warnings))
		for _, w := range report.Validation.Warnings {
			fmt.Fprintf(out, "  %s\n", colorize(w.String(), ansiYellow, color))
		}
	}
}
