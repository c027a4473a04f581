package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"stepweave/internal/config"
	"stepweave/internal/pipeline"
	"stepweave/internal/store"
)

func newResetCommand(ctx *commandContext) *cobra.Command {
	var taskID string
	var from string

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Drop a stage's stored output and everything after it",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireTask(taskID); err != nil {
				return err
			}
			stage, err := pipeline.ParseStage(from)
			if err != nil {
				return err
			}
			logger, err := ctx.logger()
			if err != nil {
				return err
			}
			return ctx.withStore(func(cfg *config.Config, st *store.Store) error {
				pipe, err := pipeline.New(cfg, st, pipeline.Deps{}, pipeline.WithLogger(logger))
				if err != nil {
					return err
				}
				removed, err := pipe.Reset(cmd.Context(), taskID, stage)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(removed) == 0 {
					fmt.Fprintf(out, "Reset %s from %s; no stored artifacts removed\n", taskID, stage)
					return nil
				}
				names := make([]string, len(removed))
				for i, kind := range removed {
					names[i] = string(kind)
				}
				fmt.Fprintf(out, "Reset %s from %s; removed %s\n", taskID, stage, strings.Join(names, ", "))
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&taskID, "task", "t", "", "Task id")
	cmd.Flags().StringVar(&from, "from", "", "First stage to recompute ("+stageNames()+")")
	return cmd
}

func stageNames() string {
	stages := pipeline.Stages()
	names := make([]string, len(stages))
	for i, stage := range stages {
		names[i] = string(stage)
	}
	return strings.Join(names, ", ")
}
