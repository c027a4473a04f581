package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"stepweave/internal/preflight"
)

func newHealthCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check directories, the manifest, services and external binaries",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			color := shouldColorize(out)

			results := preflight.RunAll(cmd.Context(), cfg)
			rows := make([][]string, 0, len(results))
			for _, r := range results {
				status := "error"
				switch {
				case r.Skipped:
					status = "skipped"
				case r.Passed:
					status = "ok"
				}
				rows = append(rows, []string{r.Name, colorize(status, statusColor(status), color), r.Detail})
			}
			fmt.Fprintln(out, renderTable([]string{"Check", "Status", "Detail"}, rows, nil))
			if failed := preflight.Failed(results); failed > 0 {
				return fmt.Errorf("%d health checks failed", failed)
			}
			return nil
		},
	}
}
