package logging_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"stepweave/internal/config"
	"stepweave/internal/logging"
	"stepweave/internal/services"
)

func TestNewFromConfigWritesDailyFile(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.LogDir = t.TempDir()

	logger, err := logging.NewFromConfig(&cfg)
	if err != nil {
		t.Fatalf("NewFromConfig returned error: %v", err)
	}
	logger.Info("hello from test")

	path := logging.DailyLogPath(cfg.Paths.LogDir, time.Now())
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(content), "hello from test") {
		t.Fatalf("log file missing message: %q", content)
	}
}

func TestConsoleLoggerOmitsCallerForInfo(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "console-info.log")
	logger, err := logging.New(logging.Options{Format: "console", Level: "info", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logger.Info("message without caller")

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if strings.Contains(string(content), ".go:") {
		t.Fatalf("expected no caller information in info logs, got %q", content)
	}
}

func TestConsoleLoggerIncludesCallerForDebug(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "console-debug.log")
	logger, err := logging.New(logging.Options{Format: "console", Level: "debug", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logger.Info("message with caller")

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(content), ".go:") {
		t.Fatalf("expected caller information in debug logs, got %q", content)
	}
}

func TestConsoleLoggerRendersComponentPrefix(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "component.log")
	logger, err := logging.New(logging.Options{Format: "console", Level: "info", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logging.NewComponentLogger(logger, "reconcile").Info("pair compared", logging.String("pair", "a b"))

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	line := string(content)
	if !strings.Contains(line, "reconcile: pair compared") {
		t.Fatalf("expected component prefix, got %q", line)
	}
	if !strings.Contains(line, `pair="a b"`) {
		t.Fatalf("expected quoted value, got %q", line)
	}
}

func TestJSONLoggerEmitsStructuredFields(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "json.log")
	logger, err := logging.New(logging.Options{Format: "json", Level: "info", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Info("json message", logging.String("k", "v"))

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	var record map[string]any
	if err := json.Unmarshal(content, &record); err != nil {
		t.Fatalf("decode json log: %v (%q)", err, content)
	}
	if record["k"] != "v" || record["level"] != "info" || record["msg"] != "json message" {
		t.Fatalf("unexpected record %v", record)
	}
	if _, ok := record["ts"]; !ok {
		t.Fatalf("expected ts field, got %v", record)
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestInvalidLevelDefaultsToInfo(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "level.log")
	logger, err := logging.New(logging.Options{Format: "console", Level: "invalid", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Debug("hidden")
	logger.Info("shown")

	content, _ := os.ReadFile(logPath)
	if strings.Contains(string(content), "hidden") || !strings.Contains(string(content), "shown") {
		t.Fatalf("unexpected output %q", content)
	}
}

func TestStageOverrideLowersLevelForStageOnly(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "override.log")
	overrides := map[string]string{"reconcile": "debug"}
	logger, err := logging.New(logging.Options{
		Format:         "console",
		Level:          "info",
		OutputPaths:    []string{logPath},
		StageOverrides: overrides,
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logger.Debug("root debug")
	logging.ForStage(logger, overrides, "reconcile").Debug("stage debug")
	logging.ForStage(logger, overrides, "notables").Debug("other stage debug")

	content, _ := os.ReadFile(logPath)
	out := string(content)
	if strings.Contains(out, "root debug") || strings.Contains(out, "other stage debug") {
		t.Fatalf("debug leaked past info level: %q", out)
	}
	if !strings.Contains(out, "stage debug") {
		t.Fatalf("expected stage override to admit debug, got %q", out)
	}
}

type captureHandler struct {
	attrs   []slog.Attr
	records []slog.Record
}

func (h *captureHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *captureHandler) Handle(_ context.Context, r slog.Record) error {
	h.records = append(h.records, r)
	return nil
}

func (h *captureHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	h.attrs = append(h.attrs, attrs...)
	return h
}

func (h *captureHandler) WithGroup(string) slog.Handler { return h }

func TestWithContextAddsFields(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithTaskID(ctx, "lemonade")
	ctx = services.WithStage(ctx, "alignments")
	ctx = services.WithSourceID(ctx, "vidA")
	ctx = services.WithRequestID(ctx, "run-xyz")

	handler := &captureHandler{}
	logging.WithContext(ctx, slog.New(handler)).Info("contextual log")

	if len(handler.records) != 1 {
		t.Fatalf("expected 1 log entry, got %d", len(handler.records))
	}
	want := map[string]string{
		logging.FieldTaskID:        "lemonade",
		logging.FieldStage:         "alignments",
		logging.FieldSourceID:      "vidA",
		logging.FieldCorrelationID: "run-xyz",
	}
	for key, value := range want {
		found := false
		for _, attr := range handler.attrs {
			if attr.Key == key {
				found = true
				if attr.Value.String() != value {
					t.Fatalf("field %s = %q, want %q", key, attr.Value.String(), value)
				}
			}
		}
		if !found {
			t.Fatalf("field %s not found", key)
		}
	}
}

func TestWarnWithContextInjectsDefaults(t *testing.T) {
	handler := &captureHandler{}
	logging.WarnWithContext(slog.New(handler), "low confidence", "localize_low_confidence",
		logging.String(logging.FieldImpact, "anchor may be imprecise"))

	if len(handler.records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(handler.records))
	}
	got := map[string]string{}
	handler.records[0].Attrs(func(a slog.Attr) bool {
		got[a.Key] = a.Value.String()
		return true
	})
	if got[logging.FieldEventType] != "localize_low_confidence" {
		t.Fatalf("event_type = %q", got[logging.FieldEventType])
	}
	if got[logging.FieldImpact] != "anchor may be imprecise" {
		t.Fatalf("impact overwritten: %q", got[logging.FieldImpact])
	}
	if got[logging.FieldErrorHint] == "" {
		t.Fatal("expected default error_hint")
	}
}

func TestPruneLogsRemovesOldFilesOnly(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	old := filepath.Join(dir, "stepweave-20260101.log")
	recent := filepath.Join(dir, "stepweave-20260309.log")
	inUse := filepath.Join(dir, "stepweave-20251201.log")
	other := filepath.Join(dir, "notes.txt")
	for _, p := range []string{old, recent, inUse, other} {
		if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
			t.Fatalf("write %s: %v", p, err)
		}
	}
	stale := now.AddDate(0, 0, -30)
	for _, p := range []string{old, inUse, other} {
		if err := os.Chtimes(p, stale, stale); err != nil {
			t.Fatalf("chtimes: %v", err)
		}
	}
	if err := os.Chtimes(recent, now, now); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	removed := logging.PruneLogs(logging.NewNop(), dir, 7, inUse, now)
	if len(removed) != 1 || filepath.Base(removed[0]) != "stepweave-20260101.log" {
		t.Fatalf("removed = %v", removed)
	}
	for _, p := range []string{recent, inUse, other} {
		if _, err := os.Stat(p); err != nil {
			t.Fatalf("expected %s to remain: %v", p, err)
		}
	}

	if got := logging.PruneLogs(nil, dir, 0, "", now); got != nil {
		t.Fatalf("retention 0 should disable pruning, got %v", got)
	}
}
