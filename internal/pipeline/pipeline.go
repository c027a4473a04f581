package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"stepweave/internal/acquire"
	"stepweave/internal/config"
	"stepweave/internal/generation"
	"stepweave/internal/logging"
	"stepweave/internal/model"
	"stepweave/internal/services"
	"stepweave/internal/services/embedding"
	"stepweave/internal/store"
)

// Deps are the external collaborators a pipeline drives.
type Deps struct {
	Generator generation.Generator
	Embedder  embedding.Embedder
	// Images ranks frames for summary list fields. Nil disables ranking.
	Images   embedding.CrossModal
	Acquirer acquire.Acquirer
}

// Pipeline runs tasks through every stage.
type Pipeline struct {
	cfg    *config.Config
	store  *store.Store
	deps   Deps
	newID  func() string
	logger *slog.Logger
}

// Option customizes a Pipeline.
type Option func(*Pipeline)

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithIDFunc replaces the random id suffix used for records, notables and
// hooks.
func WithIDFunc(fn func() string) Option {
	return func(p *Pipeline) { p.newID = fn }
}

// New returns a pipeline persisting through st. Deps may be empty for a
// pipeline that only resets stored output.
func New(cfg *config.Config, st *store.Store, deps Deps, opts ...Option) (*Pipeline, error) {
	if cfg == nil || st == nil {
		return nil, errors.New("pipeline requires config and store")
	}
	p := &Pipeline{cfg: cfg, store: st, deps: deps, logger: logging.NewNop()}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = logging.NewComponentLogger(p.logger, "pipeline")
	return p, nil
}

// Report summarises one run.
type Report struct {
	TaskID     string
	RunID      string
	Stages     []StageResult
	Sources    int
	Subgoals   int
	Records    int
	Notables   int
	Hooks      int
	Validation model.Validation
}

// Ran reports whether stage executed rather than being skipped.
func (r Report) Ran(stage Stage) bool {
	for _, result := range r.Stages {
		if result.Stage == stage {
			return !result.Skipped
		}
	}
	return false
}

// Run brings task up to date, executing every stage whose output is not yet
// stored. Unit failures become warnings in the report; the returned error is
// reserved for cancellation, configuration problems and store failures.
func (p *Pipeline) Run(ctx context.Context, task model.Task) (Report, error) {
	report := Report{TaskID: task.ID}
	if p.deps.Generator == nil || p.deps.Embedder == nil || p.deps.Acquirer == nil {
		return report, errors.New("pipeline requires a generator, an embedder and an acquirer")
	}
	lock, err := lockTask(p.cfg, task.ID)
	if err != nil {
		return report, err
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			p.logger.Warn("failed to release task lock", logging.String(logging.FieldTaskID, task.ID), logging.Error(err))
		}
	}()

	if err := p.store.PutTask(ctx, task); err != nil {
		return report, err
	}
	run, err := p.store.BeginRun(ctx, task.ID)
	if err != nil {
		return report, err
	}
	report.RunID = run.ID
	ctx = services.WithRequestID(services.WithTaskID(ctx, task.ID), run.ID)
	logger := logging.WithContext(ctx, p.logger)
	logger.Info("run started",
		logging.String(logging.FieldEventType, "run_start"),
		logging.Int("locators", len(task.Locators)),
	)

	runErr := p.run(ctx, task, &report)

	status := store.RunSucceeded
	if runErr != nil {
		status = store.RunFailed
	}
	if err := p.store.FinishRun(context.WithoutCancel(ctx), run.ID, status, len(report.Validation.Warnings), runErr); err != nil {
		logger.Warn("failed to record run outcome", logging.Error(err))
	}
	if runErr != nil {
		logging.ErrorWithContext(logger, "run failed", "run_failure",
			logging.Error(runErr),
			logging.String(logging.FieldErrorHint, "rerun the task; finished stages are skipped"),
		)
		return report, runErr
	}
	logger.Info("run completed",
		logging.String(logging.FieldEventType, "run_complete"),
		logging.Int("sources", report.Sources),
		logging.Int("notables", report.Notables),
		logging.Int("hooks", report.Hooks),
		logging.Int("warnings", len(report.Validation.Warnings)),
	)
	return report, nil
}

func (p *Pipeline) run(ctx context.Context, task model.Task, report *Report) error {
	st, err := loadState(ctx, p.store, task.ID)
	if err != nil {
		return err
	}
	for _, spec := range p.stages(task, st) {
		if err := p.execute(ctx, report, spec); err != nil {
			return err
		}
	}
	report.Sources = len(st.sources)
	report.Subgoals = len(st.subgoals)
	for _, set := range st.alignments {
		report.Records += len(set.Records)
	}
	report.Notables = len(st.notables)
	report.Hooks = len(st.hooks)
	return nil
}

func (p *Pipeline) save(ctx context.Context, st *state, kind store.Kind, v any) error {
	if err := p.store.Save(ctx, st.taskID, kind, v); err != nil {
		return fmt.Errorf("persist %s: %w", kind, err)
	}
	st.has[kind] = true
	return nil
}

func (p *Pipeline) concurrency() int {
	if p.cfg.Pipeline.Concurrency > 0 {
		return p.cfg.Pipeline.Concurrency
	}
	return 1
}
