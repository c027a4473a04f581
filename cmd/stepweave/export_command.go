package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"stepweave/internal/config"
	"stepweave/internal/export"
	"stepweave/internal/pipeline"
	"stepweave/internal/store"
)

func newExportCommand(ctx *commandContext) *cobra.Command {
	var taskID string
	var outDir string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the viewer bundle for a task",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireTask(taskID); err != nil {
				return err
			}
			return ctx.withStore(func(cfg *config.Config, st *store.Store) error {
				artifacts, err := pipeline.LoadArtifacts(cmd.Context(), st, taskID)
				if err != nil {
					return err
				}
				dir := strings.TrimSpace(outDir)
				if dir == "" {
					dir = cfg.ExportDir(taskID)
				} else if dir, err = config.ExpandPath(dir); err != nil {
					return fmt.Errorf("resolve output directory: %w", err)
				}
				path, err := export.Write(dir, export.Build(artifacts))
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&taskID, "task", "t", "", "Task id")
	cmd.Flags().StringVarP(&outDir, "out", "o", "", "Output directory (defaults to the task's export directory)")
	return cmd
}
