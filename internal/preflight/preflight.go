package preflight

import (
	"context"

	"stepweave/internal/config"
	"stepweave/internal/deps"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	// Skipped marks checks for disabled features; they never fail.
	Skipped bool
	Detail  string
}

// Failed counts results that did not pass.
func Failed(results []Result) int {
	n := 0
	for _, r := range results {
		if !r.Passed && !r.Skipped {
			n++
		}
	}
	return n
}

// RunAll executes every check for cfg in a fixed order.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}
	results := []Result{
		CheckDirectoryAccess("Data directory", cfg.Paths.DataDir),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
		CheckOptionalDirectory("Media directory", cfg.Paths.MediaDir),
		CheckManifest(cfg.Paths.Manifest),
		CheckLLM(ctx, cfg),
		CheckEmbedding(ctx, cfg),
	}
	for _, status := range deps.CheckBinaries(deps.Requirements(cfg)) {
		results = append(results, binaryResult(status))
	}
	return results
}
