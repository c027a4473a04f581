package pipeline

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"stepweave/internal/aggregate"
	"stepweave/internal/cluster"
	"stepweave/internal/hook"
	"stepweave/internal/localize"
	"stepweave/internal/logging"
	"stepweave/internal/model"
	"stepweave/internal/notable"
	"stepweave/internal/reconcile"
	"stepweave/internal/segment"
	"stepweave/internal/services"
	"stepweave/internal/store"
)

func (p *Pipeline) stages(task model.Task, st *state) []stageSpec {
	return []stageSpec{
		{
			name: StageAcquire,
			done: func() bool { return st.has[store.KindSources] },
			run: func(ctx context.Context, logger *slog.Logger) (model.Validation, error) {
				return p.acquireSources(ctx, logger, task, st)
			},
		},
		{
			name: StageSteps,
			done: st.stepsExtracted,
			run: func(ctx context.Context, logger *slog.Logger) (model.Validation, error) {
				return p.extractSteps(ctx, logger, task, st)
			},
		},
		{
			name: StageAggregate,
			done: func() bool { return st.has[store.KindSteps] && st.has[store.KindSubgoals] },
			run: func(ctx context.Context, logger *slog.Logger) (model.Validation, error) {
				return p.aggregateSteps(ctx, logger, task, st)
			},
		},
		{
			name: StageSegment,
			done: st.segmented,
			run: func(ctx context.Context, logger *slog.Logger) (model.Validation, error) {
				return p.segmentSources(ctx, logger, task, st)
			},
		},
		{
			name: StageReconcile,
			done: st.reconciled,
			run: func(ctx context.Context, logger *slog.Logger) (model.Validation, error) {
				return p.reconcileSources(ctx, logger, task, st)
			},
		},
		{
			name: StageNotable,
			done: func() bool { return st.has[store.KindNotables] },
			run: func(ctx context.Context, logger *slog.Logger) (model.Validation, error) {
				synth := notable.New(p.deps.Generator, cluster.New(p.deps.Embedder),
					notable.WithThreshold(p.cfg.Pipeline.NotableThreshold),
					notable.WithIDFunc(p.newID),
					notable.WithLogger(logger),
				)
				notables, validation, err := synth.Synthesize(ctx, task.Title, st.alignments)
				if err != nil {
					return validation, err
				}
				st.notables = notables
				return validation, p.save(ctx, st, store.KindNotables, notables)
			},
		},
		{
			name: StageHook,
			done: func() bool { return st.has[store.KindHooks] },
			run: func(ctx context.Context, logger *slog.Logger) (model.Validation, error) {
				synth := hook.New(p.deps.Generator, cluster.New(p.deps.Embedder),
					hook.WithThreshold(p.cfg.Pipeline.HookThreshold),
					hook.WithStrategy(p.cfg.Pipeline.HookStrategy),
					hook.WithIDFunc(p.newID),
					hook.WithLogger(logger),
				)
				hooks, validation, err := synth.Synthesize(ctx, task.Title, st.notables)
				if err != nil {
					return validation, err
				}
				st.hooks = hooks
				return validation, p.save(ctx, st, store.KindHooks, hooks)
			},
		},
	}
}

// acquireSources materialises every locator. A source that cannot be
// acquired is dropped with a warning, and a locator resolving to an id
// already acquired is ignored.
func (p *Pipeline) acquireSources(ctx context.Context, logger *slog.Logger, task model.Task, st *state) (model.Validation, error) {
	var validation model.Validation
	acquired := make([]*model.Source, len(task.Locators))
	warnings := make([]model.Validation, len(task.Locators))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency())
	for i, locator := range task.Locators {
		g.Go(func() error {
			src, err := p.deps.Acquirer.Acquire(gctx, locator)
			if err != nil {
				if services.Fatal(err) {
					return err
				}
				warnings[i].Add(string(StageAcquire), model.WarnAcquisitionFailure, locator,
					"source dropped: %s", services.ErrorDetails(err).Message)
				logging.WarnWithContext(logger, "source acquisition failed", "acquisition_failed",
					logging.String("locator", locator),
					logging.Error(err),
					logging.String(logging.FieldImpact, "source dropped from the task"),
					logging.String(logging.FieldErrorHint, "materialise the source under the media directory and reset from acquire"),
				)
				return nil
			}
			acquired[i] = src
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return validation, err
	}

	sources := make([]*model.Source, 0, len(acquired))
	seen := make(map[string]bool, len(acquired))
	for i, src := range acquired {
		validation.Extend(warnings[i])
		if src == nil {
			continue
		}
		if seen[src.ID] {
			logger.Warn("duplicate source ignored",
				logging.String(logging.FieldSourceID, src.ID),
				logging.String("locator", task.Locators[i]),
				logging.String(logging.FieldEventType, "duplicate_source"),
			)
			continue
		}
		seen[src.ID] = true
		sources = append(sources, src)
	}
	st.sources = sources
	logger.Info("sources acquired", logging.Int("sources", len(sources)), logging.Int("locators", len(task.Locators)))
	return validation, p.save(ctx, st, store.KindSources, sources)
}

func (p *Pipeline) segmenter(logger *slog.Logger) *segment.Segmenter {
	opts := []segment.Option{segment.WithLogger(logger)}
	if p.deps.Images != nil {
		opts = append(opts, segment.WithFrameRanker(localize.NewFrameRanker(p.deps.Images), p.cfg.Pipeline.FrameTopK))
	}
	return segment.New(p.deps.Generator, opts...)
}

// forEachSource runs fn for every source under the concurrency limit and
// joins the per-source warnings in source order.
func (p *Pipeline) forEachSource(ctx context.Context, sources []*model.Source, fn func(context.Context, *model.Source) (model.Validation, error)) (model.Validation, error) {
	var validation model.Validation
	results := make([]model.Validation, len(sources))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency())
	for i, src := range sources {
		g.Go(func() error {
			v, err := fn(services.WithSourceID(gctx, src.ID), src)
			results[i] = v
			return err
		})
	}
	err := g.Wait()
	for _, v := range results {
		validation.Extend(v)
	}
	return validation, err
}

func (p *Pipeline) extractSteps(ctx context.Context, logger *slog.Logger, task model.Task, st *state) (model.Validation, error) {
	seg := p.segmenter(logger)
	validation, err := p.forEachSource(ctx, st.sources, func(ctx context.Context, src *model.Source) (model.Validation, error) {
		return seg.ExtractSteps(ctx, task.Title, src)
	})
	if err != nil {
		return validation, err
	}
	return validation, p.save(ctx, st, store.KindSources, st.sources)
}

func (p *Pipeline) aggregateSteps(ctx context.Context, logger *slog.Logger, task model.Task, st *state) (model.Validation, error) {
	var validation model.Validation
	agg := aggregate.New(p.deps.Generator, logger)
	if !st.has[store.KindSteps] {
		sequences := make([][]string, 0, len(st.sources))
		for _, src := range st.sources {
			sequences = append(sequences, src.Steps)
		}
		result, err := agg.Fold(ctx, task.Title, sequences)
		if err != nil {
			return validation, err
		}
		validation.Extend(result.Validation)
		validation.Extend(aggregate.CheckProvenance(sequences, result.Steps))
		st.steps = result.Steps
		if err := p.save(ctx, st, store.KindSteps, st.steps); err != nil {
			return validation, err
		}
	}
	subgoals, partition, err := agg.Partition(ctx, task.Title, st.steps)
	validation.Extend(partition)
	if err != nil {
		return validation, err
	}
	st.subgoals = subgoals
	logger.Info("subgoals defined",
		logging.Int("canonical_steps", len(st.steps)),
		logging.Int("subgoals", len(subgoals)),
	)
	return validation, p.save(ctx, st, store.KindSubgoals, subgoals)
}

func (p *Pipeline) segmentSources(ctx context.Context, logger *slog.Logger, task model.Task, st *state) (model.Validation, error) {
	seg := p.segmenter(logger)
	validation, err := p.forEachSource(ctx, st.sources, func(ctx context.Context, src *model.Source) (model.Validation, error) {
		v, err := seg.Segment(ctx, task.Title, src, st.subgoals)
		if err != nil {
			return v, err
		}
		summarized, err := seg.Summarize(ctx, task.Title, src)
		v.Extend(summarized)
		return v, err
	})
	if err != nil {
		return validation, err
	}
	return validation, p.save(ctx, st, store.KindSources, st.sources)
}

func (p *Pipeline) reconcileSources(ctx context.Context, logger *slog.Logger, task model.Task, st *state) (model.Validation, error) {
	anchors := make(map[string]reconcile.Anchorer, len(st.sources))
	for _, src := range st.sources {
		anchors[src.ID] = localize.New(src, p.deps.Embedder,
			localize.WithFloor(p.cfg.Pipeline.LowConfidenceFloor),
			localize.WithLogger(logger),
		)
	}
	rec := reconcile.New(p.deps.Generator, anchors,
		reconcile.WithConcurrency(p.concurrency()),
		reconcile.WithIDFunc(p.newID),
		reconcile.WithLogger(logger),
	)
	sets, validation, err := rec.Run(ctx, task.Title, st.sources, st.subgoals)
	if err != nil {
		return validation, err
	}
	// Notables and hooks stored from an earlier, empty comparison are stale.
	if st.has[store.KindNotables] || st.has[store.KindHooks] {
		removed, err := p.store.ResetFrom(ctx, st.taskID, store.KindNotables)
		if err != nil {
			return validation, err
		}
		for _, kind := range removed {
			st.has[kind] = false
		}
		st.notables, st.hooks = nil, nil
		logger.Debug("dropped stale downstream artifacts", logging.Int("kinds", len(removed)))
	}
	st.alignments = sets
	return validation, p.save(ctx, st, store.KindAlignments, sets)
}
