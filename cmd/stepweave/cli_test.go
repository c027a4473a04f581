package main

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"

	"stepweave/internal/acquire"
	"stepweave/internal/config"
	"stepweave/internal/export"
	"stepweave/internal/generation"
	"stepweave/internal/logging"
	"stepweave/internal/model"
	"stepweave/internal/pipeline"
	"stepweave/internal/services/embedding"
	"stepweave/internal/services/whisperx"
	"stepweave/internal/store"
	"stepweave/internal/testsupport"
)

const testManifest = `tasks:
  lemonade:
    title: Make lemonade
    sources:
      - https://example.com/watch?v=A
      - https://example.com/watch?v=B
`

type cliEnv struct {
	cfg        *config.Config
	configPath string
}

func setupCLIEnv(t *testing.T, opts ...testsupport.ConfigOption) cliEnv {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	t.Setenv("OPENROUTER_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "")
	cfg := testsupport.NewConfig(t, opts...)
	testsupport.WriteFile(t, cfg.Paths.Manifest, []byte(testManifest))

	data, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	configPath := filepath.Join(testsupport.BaseDir(cfg), "config.toml")
	testsupport.WriteFile(t, configPath, data)
	return cliEnv{cfg: cfg, configPath: configPath}
}

func runCLI(t *testing.T, ctx *commandContext, args ...string) (string, string, error) {
	t.Helper()
	if ctx == nil {
		ctx = newCommandContext()
	}
	root := newRootCommandWithContext(ctx)
	var stdout, stderr bytes.Buffer
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, haystack, needle string) {
	t.Helper()
	if !strings.Contains(haystack, needle) {
		t.Fatalf("expected output to contain %q\noutput:\n%s", needle, haystack)
	}
}

func scriptedDeps(cfg *config.Config, _ *slog.Logger) (pipeline.Deps, error) {
	gen := &testsupport.Generator{
		ExtractStepsFunc: func(context.Context, string, []generation.Content) ([]string, error) {
			return []string{"Squeeze lemons", "Stir drink"}, nil
		},
		ExtractSubgoalsFunc: func(context.Context, string, []string) (generation.SubgoalPartition, error) {
			return generation.SubgoalPartition{
				Subgoals: []generation.SubgoalDefinition{{Title: "Prep"}, {Title: "Mix"}},
				Assignments: []generation.SubgoalAssignment{
					{Step: "Squeeze lemons", Subgoal: "Prep"},
					{Step: "Stir drink", Subgoal: "Mix"},
				},
			}, nil
		},
		SegmentSourceFunc: func(_ context.Context, _ string, _ []generation.Content, labels []string) ([]generation.Span, error) {
			return []generation.Span{
				{Step: labels[0], StartIndex: 0, EndIndex: 0},
				{Step: labels[1], StartIndex: 1, EndIndex: 1},
			}, nil
		},
	}
	fp := embedding.NewFingerprint(cfg.Embedding.Dimensions)
	return pipeline.Deps{Generator: gen, Embedder: fp, Images: fp, Acquirer: acquire.NewLocal(cfg.Paths.MediaDir)}, nil
}

func writeSources(t *testing.T, cfg *config.Config) {
	t.Helper()
	for _, id := range []string{"A", "B"} {
		testsupport.WriteSourceDir(t, filepath.Join(cfg.Paths.MediaDir, id), testsupport.SourceDir{
			Segments: []whisperx.Segment{
				{Text: " Squeeze the lemons.", Start: 0, End: 2},
				{Text: " Stir the drink.", Start: 2, End: 4},
			},
			Frames: []int{1},
			Title:  "Lemonade " + id,
		})
	}
}

func scriptedContext() *commandContext {
	ctx := newCommandContext()
	ctx.newDeps = scriptedDeps
	return ctx
}

func TestConfigInitAndShow(t *testing.T) {
	env := setupCLIEnv(t)

	target := filepath.Join(t.TempDir(), "config.toml")
	out, _, err := runCLI(t, nil, "config", "init", "--path", target)
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, "Wrote sample configuration")
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected config file at %s: %v", target, err)
	}
	if _, _, err := runCLI(t, nil, "config", "init", "--path", target); err == nil {
		t.Fatal("expected error when config exists")
	}

	out, _, err = runCLI(t, nil, "--config", env.configPath, "config", "show")
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	requireContains(t, out, "********")
	if strings.Contains(out, `api_key = 'test'`) || strings.Contains(out, `api_key = "test"`) {
		t.Fatalf("api key not redacted:\n%s", out)
	}
}

func TestRunShowExportAndReset(t *testing.T) {
	env := setupCLIEnv(t)
	writeSources(t, env.cfg)

	out, _, err := runCLI(t, scriptedContext(), "--config", env.configPath, "run", "--task", "lemonade")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	requireContains(t, out, "acquire")
	requireContains(t, out, "sources: 2  subgoals: 2")

	out, _, err = runCLI(t, scriptedContext(), "--config", env.configPath, "run", "--task", "lemonade")
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	requireContains(t, out, "skipped")

	out, _, err = runCLI(t, nil, "--config", env.configPath, "show", "--task", "lemonade", "--kind", "subgoals")
	if err != nil {
		t.Fatalf("show subgoals: %v", err)
	}
	requireContains(t, out, "Prep")
	requireContains(t, out, "Mix")

	out, _, err = runCLI(t, nil, "--config", env.configPath, "show", "--task", "lemonade", "--kind", "subgoals", "--json")
	if err != nil {
		t.Fatalf("show subgoals json: %v", err)
	}
	var subgoals []model.Subgoal
	if err := json.Unmarshal([]byte(out), &subgoals); err != nil {
		t.Fatalf("decode subgoals: %v\n%s", err, out)
	}
	if len(subgoals) != 2 || subgoals[0].Title != "Prep" {
		t.Fatalf("subgoals = %+v", subgoals)
	}

	out, _, err = runCLI(t, nil, "--config", env.configPath, "show", "--task", "lemonade", "--kind", "runs")
	if err != nil {
		t.Fatalf("show runs: %v", err)
	}
	requireContains(t, out, string(store.RunSucceeded))

	out, _, err = runCLI(t, nil, "--config", env.configPath, "tasks")
	if err != nil {
		t.Fatalf("tasks: %v", err)
	}
	requireContains(t, out, "lemonade")
	requireContains(t, out, "Make lemonade")

	exportDir := filepath.Join(t.TempDir(), "bundle")
	out, _, err = runCLI(t, nil, "--config", env.configPath, "export", "--task", "lemonade", "--out", exportDir)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	requireContains(t, out, filepath.Join(exportDir, export.FileName))
	data, err := os.ReadFile(filepath.Join(exportDir, export.FileName))
	if err != nil {
		t.Fatalf("read bundle: %v", err)
	}
	requireContains(t, string(data), `"task": "Make lemonade"`)
	requireContains(t, string(data), `"`+model.DefaultApproach+`"`)

	out, _, err = runCLI(t, nil, "--config", env.configPath, "reset", "--task", "lemonade", "--from", "reconcile")
	if err != nil {
		t.Fatalf("reset: %v", err)
	}
	requireContains(t, out, "removed alignments")

	st := testsupport.MustOpenStore(t, env.cfg)
	if has, err := st.Has(context.Background(), "lemonade", store.KindAlignments); err != nil || has {
		t.Fatalf("alignments after reset = %v, %v", has, err)
	}
}

func TestResetRejectsUnknownStage(t *testing.T) {
	env := setupCLIEnv(t)
	_, _, err := runCLI(t, nil, "--config", env.configPath, "reset", "--task", "lemonade", "--from", "frames")
	if err == nil || !strings.Contains(err.Error(), "unknown stage") {
		t.Fatalf("err = %v", err)
	}
}

func TestRunRequiresTask(t *testing.T) {
	env := setupCLIEnv(t)
	_, _, err := runCLI(t, scriptedContext(), "--config", env.configPath, "run")
	if err == nil || !strings.Contains(err.Error(), "--task") {
		t.Fatalf("err = %v", err)
	}
	if _, _, err := runCLI(t, scriptedContext(), "--config", env.configPath, "run", "--task", "missing"); err == nil {
		t.Fatal("expected error for a task absent from the manifest")
	}
}

func TestShowRejectsUnknownKind(t *testing.T) {
	env := setupCLIEnv(t)
	st := testsupport.MustOpenStore(t, env.cfg)
	testsupport.PutTask(t, st, "lemonade", "Make lemonade")
	_, _, err := runCLI(t, nil, "--config", env.configPath, "show", "--task", "lemonade", "--kind", "frames")
	if err == nil || !strings.Contains(err.Error(), "unknown kind") {
		t.Fatalf("err = %v", err)
	}
}

func TestHealthReportsServices(t *testing.T) {
	llmServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"finish_reason":"stop","message":{"content":"{\"ok\":true}"}}]}`))
	}))
	defer llmServer.Close()
	embedServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"embeddings":[[0.6,0.8]]}`))
	}))
	defer embedServer.Close()

	env := setupCLIEnv(t,
		testsupport.WithLLMEndpoint(llmServer.URL),
		testsupport.WithEmbeddingEndpoint(embedServer.URL),
	)
	out, _, err := runCLI(t, nil, "--config", env.configPath, "health")
	if err != nil {
		t.Fatalf("health: %v\n%s", err, out)
	}
	requireContains(t, out, "Generation LLM")
	requireContains(t, out, "Task manifest")

	embedServer.Close()
	out, _, err = runCLI(t, nil, "--config", env.configPath, "health")
	if err == nil {
		t.Fatalf("expected failure with embedding server down\n%s", out)
	}
	requireContains(t, out, "error")
}

func TestRunSendsNotification(t *testing.T) {
	titles := make(chan string, 4)
	ntfy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		titles <- r.Header.Get("Title")
	}))
	defer ntfy.Close()

	env := setupCLIEnv(t, testsupport.WithNtfyTopic(ntfy.URL))
	writeSources(t, env.cfg)
	if _, _, err := runCLI(t, scriptedContext(), "--config", env.configPath, "run", "--task", "lemonade"); err != nil {
		t.Fatalf("run: %v", err)
	}
	select {
	case title := <-titles:
		if title != "stepweave - Run Complete" {
			t.Fatalf("title = %q", title)
		}
	default:
		t.Fatal("no notification sent")
	}

	out, _, err := runCLI(t, nil, "--config", env.configPath, "test-notify")
	if err != nil {
		t.Fatalf("test-notify: %v", err)
	}
	requireContains(t, out, "Test notification sent")
}

func TestLogsPrintsFilteredTail(t *testing.T) {
	env := setupCLIEnv(t)
	path := logging.DailyLogPath(env.cfg.Paths.LogDir, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	testsupport.WriteFile(t, path, []byte("task_id=lemonade one\ntask_id=tea two\ntask_id=lemonade three\n"))

	out, _, err := runCLI(t, nil, "--config", env.configPath, "logs", "--date", "2026-03-01", "--task", "lemonade", "-n", "5")
	if err != nil {
		t.Fatalf("logs: %v", err)
	}
	if out != "task_id=lemonade one\ntask_id=lemonade three\n" {
		t.Fatalf("logs output = %q", out)
	}
	if _, _, err := runCLI(t, nil, "--config", env.configPath, "logs", "--date", "March"); err == nil {
		t.Fatal("expected error for bad date")
	}
}

func TestMediaPruneKeepsManifestSources(t *testing.T) {
	env := setupCLIEnv(t)
	writeSources(t, env.cfg)
	testsupport.WriteFile(t, filepath.Join(env.cfg.Paths.MediaDir, "stale", "transcript.json"), []byte("{}"))

	out, _, err := runCLI(t, nil, "--config", env.configPath, "media", "list")
	if err != nil {
		t.Fatalf("media list: %v", err)
	}
	requireContains(t, out, "orphaned")
	requireContains(t, out, "active")

	out, _, err = runCLI(t, nil, "--config", env.configPath, "media", "prune", "--dry-run")
	if err != nil {
		t.Fatalf("media prune --dry-run: %v", err)
	}
	requireContains(t, out, "Would remove stale")

	if _, _, err := runCLI(t, nil, "--config", env.configPath, "media", "prune"); err != nil {
		t.Fatalf("media prune: %v", err)
	}
	if _, err := os.Stat(filepath.Join(env.cfg.Paths.MediaDir, "stale")); !os.IsNotExist(err) {
		t.Fatalf("stale source still present: %v", err)
	}
	for _, id := range []string{"A", "B"} {
		if _, err := os.Stat(filepath.Join(env.cfg.Paths.MediaDir, id)); err != nil {
			t.Fatalf("active source %s removed: %v", id, err)
		}
	}
}
