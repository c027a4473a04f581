package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"stepweave/internal/config"
	"stepweave/internal/manifest"
	"stepweave/internal/store"
)

func newTasksCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "tasks",
		Short: "List manifest tasks with their latest run",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, st *store.Store) error {
				m, err := manifest.Load(cfg.Paths.Manifest)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				ids := m.IDs()
				if len(ids) == 0 {
					fmt.Fprintf(out, "No tasks in %s\n", cfg.Paths.Manifest)
					return nil
				}
				color := shouldColorize(out)
				rows := make([][]string, 0, len(ids))
				for _, id := range ids {
					entry := m.Tasks[id]
					status := "never run"
					runs, err := st.Runs(cmd.Context(), id, 1)
					if err != nil {
						return err
					}
					if len(runs) > 0 {
						status = colorize(string(runs[0].Status), statusColor(string(runs[0].Status)), color)
					}
					rows = append(rows, []string{id, entry.Title, strconv.Itoa(len(entry.Sources)), status})
				}
				fmt.Fprintln(out, renderTable([]string{"Task", "Title", "Sources", "Last Run"}, rows,
					[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft}))
				return nil
			})
		},
	}
}
