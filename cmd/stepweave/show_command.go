package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"stepweave/internal/config"
	"stepweave/internal/export"
	"stepweave/internal/pipeline"
	"stepweave/internal/store"
)

var showViews = []string{"summary", "sources", "subgoals", "notables", "hooks", "runs"}

func newShowCommand(ctx *commandContext) *cobra.Command {
	var taskID string
	var view string
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Display a task's stored artifacts",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireTask(taskID); err != nil {
				return err
			}
			view = strings.ToLower(strings.TrimSpace(view))
			return ctx.withStore(func(cfg *config.Config, st *store.Store) error {
				if view == "runs" {
					runs, err := st.Runs(cmd.Context(), taskID, 0)
					if err != nil {
						return err
					}
					if jsonOutput {
						return writeJSON(cmd, runs)
					}
					return showRuns(cmd, runs)
				}
				artifacts, err := pipeline.LoadArtifacts(cmd.Context(), st, taskID)
				if err != nil {
					return err
				}
				return showArtifacts(cmd, view, artifacts, jsonOutput)
			})
		},
	}

	cmd.Flags().StringVarP(&taskID, "task", "t", "", "Task id")
	cmd.Flags().StringVarP(&view, "kind", "k", "summary", "What to show ("+strings.Join(showViews, ", ")+")")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print raw JSON")
	return cmd
}

func showArtifacts(cmd *cobra.Command, view string, a export.Artifacts, jsonOutput bool) error {
	out := cmd.OutOrStdout()
	switch view {
	case "summary":
		counts := map[string]int{
			"sources":  len(a.Sources),
			"subgoals": len(a.Subgoals),
			"notables": len(a.Notables),
			"hooks":    len(a.Hooks),
		}
		if jsonOutput {
			return writeJSON(cmd, map[string]any{"task": a.Task, "counts": counts, "reconciled": a.Reconciled})
		}
		fmt.Fprintf(out, "%s: %s\n", a.Task.ID, a.Task.Title)
		rows := [][]string{
			{"sources", strconv.Itoa(counts["sources"])},
			{"subgoals", strconv.Itoa(counts["subgoals"])},
			{"notables", strconv.Itoa(counts["notables"])},
			{"hooks", strconv.Itoa(counts["hooks"])},
		}
		fmt.Fprintln(out, renderTable([]string{"Artifact", "Count"}, rows, []columnAlignment{alignLeft, alignRight}))
		return nil
	case "sources":
		if jsonOutput {
			return writeJSON(cmd, a.Sources)
		}
		rows := make([][]string, 0, len(a.Sources))
		for _, src := range a.Sources {
			rows = append(rows, []string{
				src.ID, src.Title,
				strconv.Itoa(len(src.Sentences)), strconv.Itoa(len(src.Frames)),
				strconv.Itoa(len(src.Steps)), strconv.Itoa(len(src.Segments)),
			})
		}
		fmt.Fprintln(out, renderTable([]string{"Source", "Title", "Sentences", "Frames", "Steps", "Segments"}, rows,
			[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignRight, alignRight}))
		return nil
	case "subgoals":
		if jsonOutput {
			return writeJSON(cmd, a.Subgoals)
		}
		rows := make([][]string, 0, len(a.Subgoals))
		for _, sg := range a.Subgoals {
			rows = append(rows, []string{sg.Title, strconv.Itoa(len(sg.Steps)), sg.Description})
		}
		fmt.Fprintln(out, renderTable([]string{"Subgoal", "Steps", "Description"}, rows,
			[]columnAlignment{alignLeft, alignRight, alignLeft}))
		return nil
	case "notables":
		if jsonOutput {
			return writeJSON(cmd, a.Notables)
		}
		rows := make([][]string, 0, len(a.Notables))
		for _, n := range a.Notables {
			rows = append(rows, []string{
				n.ID, n.SourceID, n.Subgoal, string(n.Aspect), n.Title,
				formatScore(n.Importance), formatScore(n.Uniqueness), strconv.Itoa(len(n.Links)),
			})
		}
		fmt.Fprintln(out, renderTable([]string{"ID", "Source", "Subgoal", "Aspect", "Title", "Importance", "Uniqueness", "Links"}, rows,
			[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight}))
		return nil
	case "hooks":
		if jsonOutput {
			return writeJSON(cmd, a.Hooks)
		}
		rows := make([][]string, 0, len(a.Hooks))
		for _, h := range a.Hooks {
			rows = append(rows, []string{
				h.ID, h.TargetSourceID, h.Subgoal, string(h.Relation), string(h.Aspect), h.Title,
				formatScore(h.Importance), strconv.Itoa(len(h.Links)),
			})
		}
		fmt.Fprintln(out, renderTable([]string{"ID", "Target", "Subgoal", "Relation", "Aspect", "Title", "Importance", "Links"}, rows,
			[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignRight}))
		return nil
	default:
		return fmt.Errorf("unknown kind %q (want one of %s)", view, strings.Join(showViews, ", "))
	}
}

func showRuns(cmd *cobra.Command, runs []store.Run) error {
	out := cmd.OutOrStdout()
	if len(runs) == 0 {
		fmt.Fprintln(out, "No runs recorded")
		return nil
	}
	color := shouldColorize(out)
	rows := make([][]string, 0, len(runs))
	for _, run := range runs {
		finished := "-"
		if run.FinishedAt != nil {
			finished = run.FinishedAt.Local().Format(time.DateTime)
		}
		rows = append(rows, []string{
			shortID(run.ID),
			run.StartedAt.Local().Format(time.DateTime),
			finished,
			colorize(string(run.Status), statusColor(string(run.Status)), color),
			strconv.Itoa(run.Warnings),
			run.Error,
		})
	}
	fmt.Fprintln(out, renderTable([]string{"Run", "Started", "Finished", "Status", "Warnings", "Error"}, rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignLeft}))
	return nil
}

func formatScore(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
