package pipeline

import (
	"context"

	"stepweave/internal/logging"
	"stepweave/internal/model"
	"stepweave/internal/store"
)

// Reset drops the output of stage and of every later stage so the next run
// recomputes them. Per-source results kept inside the sources artifact are
// cleared in place. It returns the artifact kinds that were removed.
func (p *Pipeline) Reset(ctx context.Context, taskID string, stage Stage) ([]store.Kind, error) {
	lock, err := lockTask(p.cfg, taskID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = lock.Unlock() }()

	from := store.KindAlignments
	var wipe func(*model.Source)
	switch stage {
	case StageAcquire:
		from = store.KindSources
	case StageSteps:
		from = store.KindSteps
		wipe = func(src *model.Source) {
			src.Steps = []string{}
			src.Segments = []model.Segment{}
			src.Summaries = []model.SegmentSummary{}
		}
	case StageAggregate, StageSegment:
		if stage == StageAggregate {
			from = store.KindSteps
		}
		wipe = func(src *model.Source) {
			src.Segments = []model.Segment{}
			src.Summaries = []model.SegmentSummary{}
		}
	case StageReconcile:
		from = store.KindAlignments
	case StageNotable:
		from = store.KindNotables
	case StageHook:
		from = store.KindHooks
	default:
		_, err := ParseStage(string(stage))
		return nil, err
	}

	if wipe != nil {
		if err := p.clearSources(ctx, taskID, wipe); err != nil {
			return nil, err
		}
	}
	removed, err := p.store.ResetFrom(ctx, taskID, from)
	if err != nil {
		return nil, err
	}
	p.logger.Info("task reset",
		logging.String(logging.FieldTaskID, taskID),
		logging.String(logging.FieldStage, string(stage)),
		logging.Int("artifacts_removed", len(removed)),
	)
	return removed, nil
}

func (p *Pipeline) clearSources(ctx context.Context, taskID string, wipe func(*model.Source)) error {
	ok, err := p.store.Has(ctx, taskID, store.KindSources)
	if err != nil || !ok {
		return err
	}
	var sources []*model.Source
	if err := p.store.Load(ctx, taskID, store.KindSources, &sources); err != nil {
		return err
	}
	for _, src := range sources {
		wipe(src)
	}
	return p.store.Save(ctx, taskID, store.KindSources, sources)
}
