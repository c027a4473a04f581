package logging

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// PruneLogs removes daily log files under dir whose modification time is
// older than retentionDays. The file in use, if any, is never removed.
// A retentionDays value of 0 disables pruning. It returns the removed paths.
func PruneLogs(logger *slog.Logger, dir string, retentionDays int, inUse string, now time.Time) []string {
	dir = strings.TrimSpace(dir)
	if retentionDays <= 0 || dir == "" {
		return nil
	}
	cutoff := now.AddDate(0, 0, -retentionDays)

	skip := ""
	if trimmed := strings.TrimSpace(inUse); trimmed != "" {
		if abs, err := filepath.Abs(trimmed); err == nil {
			skip = abs
		}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var removed []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if matched, err := filepath.Match(LogFilePrefix+"*.log", name); err != nil || !matched {
			continue
		}
		fullPath := filepath.Join(dir, name)
		if abs, err := filepath.Abs(fullPath); err == nil {
			fullPath = abs
		}
		if fullPath == skip {
			continue
		}
		info, err := entry.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(fullPath); err != nil {
			WarnWithContext(logger, "log retention remove failed; file remains", "log_retention_failed",
				String("path", fullPath),
				Error(err),
				String(FieldErrorHint, "check file permissions and log_dir ownership"),
				String(FieldImpact, "old log file remains on disk"),
			)
			continue
		}
		if logger != nil {
			logger.Info("log pruned",
				String("path", fullPath),
				String(FieldEventType, "log_pruned"),
			)
		}
		removed = append(removed, fullPath)
	}
	return removed
}
