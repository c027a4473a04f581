package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"stepweave/internal/logging"
	"stepweave/internal/logs"
)

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var lines int
	var follow bool
	var taskID string
	var day string

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Print the daily log file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			when := time.Now()
			if day = strings.TrimSpace(day); day != "" {
				if when, err = time.Parse(time.DateOnly, day); err != nil {
					return fmt.Errorf("--date must be YYYY-MM-DD: %w", err)
				}
			}
			path := logging.DailyLogPath(cfg.Paths.LogDir, when)
			keep := logs.Contains(taskID)

			out := cmd.OutOrStdout()
			tail, offset, err := logs.Last(path, lines, keep)
			if err != nil {
				return err
			}
			for _, line := range tail {
				fmt.Fprintln(out, line)
			}
			if !follow {
				return nil
			}
			return logs.Follow(cmd.Context(), path, offset, keep, func(line string) {
				fmt.Fprintln(out, line)
			})
		},
	}

	cmd.Flags().IntVarP(&lines, "lines", "n", 50, "Number of trailing lines to print")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep printing new lines")
	cmd.Flags().StringVarP(&taskID, "task", "t", "", "Only lines mentioning this task")
	cmd.Flags().StringVar(&day, "date", "", "Log day to read (UTC, defaults to today)")
	return cmd
}
