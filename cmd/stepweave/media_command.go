package main

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"stepweave/internal/acquire"
	"stepweave/internal/manifest"
	"stepweave/internal/mediacache"
)

func newMediaCommand(ctx *commandContext) *cobra.Command {
	mediaCmd := &cobra.Command{
		Use:   "media",
		Short: "Inspect and prune materialised sources",
	}
	mediaCmd.AddCommand(newMediaListCommand(ctx))
	mediaCmd.AddCommand(newMediaPruneCommand(ctx))
	return mediaCmd
}

// activeSources collects the source ids every manifest task references.
func (c *commandContext) activeSources() (string, map[string]struct{}, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return "", nil, err
	}
	m, err := manifest.Load(cfg.Paths.Manifest)
	if err != nil {
		return "", nil, err
	}
	active := make(map[string]struct{})
	for _, entry := range m.Tasks {
		for _, locator := range entry.Sources {
			active[acquire.SourceID(locator)] = struct{}{}
		}
	}
	return cfg.Paths.MediaDir, active, nil
}

func newMediaListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List source directories in the media cache",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, active, err := ctx.activeSources()
			if err != nil {
				return err
			}
			entries, err := mediacache.List(dir, active)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(entries) == 0 {
				fmt.Fprintf(out, "No sources under %s\n", dir)
				return nil
			}
			rows := make([][]string, 0, len(entries))
			for _, e := range entries {
				state := "orphaned"
				if e.Active {
					state = "active"
				}
				rows = append(rows, []string{e.ID, state, humanize.Bytes(uint64(e.Size)), humanize.Time(e.ModTime)})
			}
			fmt.Fprintln(out, renderTable([]string{"Source", "State", "Size", "Modified"}, rows,
				[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft}))
			return nil
		},
	}
}

func newMediaPruneCommand(ctx *commandContext) *cobra.Command {
	var olderThan time.Duration
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Remove source directories no manifest task references",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, active, err := ctx.activeSources()
			if err != nil {
				return err
			}
			logger, err := ctx.logger()
			if err != nil {
				return err
			}
			result, err := mediacache.Prune(dir, active, mediacache.PruneOptions{MaxAge: olderThan, DryRun: dryRun}, logger)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			verb := "Removed"
			if dryRun {
				verb = "Would remove"
			}
			for _, e := range result.Removed {
				fmt.Fprintf(out, "%s %s (%s)\n", verb, e.ID, humanize.Bytes(uint64(e.Size)))
			}
			fmt.Fprintf(out, "%s %d sources, %s\n", verb, len(result.Removed), humanize.Bytes(uint64(result.Freed())))
			if len(result.Errors) > 0 {
				return fmt.Errorf("%d media directories could not be removed", len(result.Errors))
			}
			return nil
		},
	}

	cmd.Flags().DurationVar(&olderThan, "older-than", 0, "Only prune directories untouched for this long")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "List what would be removed")
	return cmd
}
