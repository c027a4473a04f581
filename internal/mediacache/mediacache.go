// Package mediacache lists and prunes materialised source directories under
// the media directory.
package mediacache

import (
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"stepweave/internal/logging"
)

// Entry describes one source directory.
type Entry struct {
	ID      string
	Path    string
	ModTime time.Time
	Size    int64
	// Active reports whether a manifest task still lists the source.
	Active bool
}

// PruneOptions selects which inactive entries Prune removes. A zero MaxAge
// removes every inactive entry.
type PruneOptions struct {
	MaxAge time.Duration
	DryRun bool
	Now    time.Time
}

// PruneError pairs a directory with the error removing it.
type PruneError struct {
	Path string
	Err  error
}

// PruneResult is the outcome of a prune.
type PruneResult struct {
	Removed []Entry
	Errors  []PruneError
}

// Freed sums the sizes of removed entries.
func (r PruneResult) Freed() int64 {
	var total int64
	for _, e := range r.Removed {
		total += e.Size
	}
	return total
}

// List returns the source directories under dir sorted by id. active holds
// the source ids the manifest references. A missing dir lists nothing.
func List(dir string, active map[string]struct{}) ([]Entry, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var out []Entry
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		_, isActive := active[entry.Name()]
		out = append(out, Entry{
			ID:      entry.Name(),
			Path:    path,
			ModTime: info.ModTime(),
			Size:    dirSize(path),
			Active:  isActive,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Prune removes inactive source directories older than opts.MaxAge.
func Prune(dir string, active map[string]struct{}, opts PruneOptions, logger *slog.Logger) (PruneResult, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}
	entries, err := List(dir, active)
	if err != nil {
		return PruneResult{}, err
	}

	var result PruneResult
	for _, entry := range entries {
		if entry.Active || now.Sub(entry.ModTime) < opts.MaxAge {
			continue
		}
		if opts.DryRun {
			result.Removed = append(result.Removed, entry)
			continue
		}
		if err := os.RemoveAll(entry.Path); err != nil {
			result.Errors = append(result.Errors, PruneError{Path: entry.Path, Err: err})
			logger.Warn("failed to remove media directory",
				logging.String("path", entry.Path),
				logging.Error(err),
				logging.String(logging.FieldEventType, "media_prune_failed"),
				logging.String(logging.FieldErrorHint, "check media_dir permissions"),
				logging.String(logging.FieldImpact, "disk space not reclaimed"),
			)
			continue
		}
		result.Removed = append(result.Removed, entry)
		logger.Info("removed media directory",
			logging.String(logging.FieldSourceID, entry.ID),
			logging.Duration("age", now.Sub(entry.ModTime)),
			logging.Int("bytes", int(entry.Size)),
			logging.String(logging.FieldEventType, "media_prune"),
		)
	}
	return result, nil
}

func dirSize(path string) int64 {
	var size int64
	_ = filepath.WalkDir(path, func(_ string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if info, err := d.Info(); err == nil {
			size += info.Size()
		}
		return nil
	})
	return size
}
