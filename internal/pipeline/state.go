package pipeline

import (
	"context"

	"stepweave/internal/export"
	"stepweave/internal/model"
	"stepweave/internal/store"
)

// state holds a task's stored artifacts while a run advances them.
type state struct {
	taskID     string
	sources    []*model.Source
	steps      []model.CanonicalStep
	subgoals   []model.Subgoal
	alignments []model.AlignmentSet
	notables   []model.Notable
	hooks      []model.Hook
	has        map[store.Kind]bool
}

func loadState(ctx context.Context, st *store.Store, taskID string) (*state, error) {
	s := &state{taskID: taskID, has: make(map[store.Kind]bool)}
	targets := map[store.Kind]any{
		store.KindSources:    &s.sources,
		store.KindSteps:      &s.steps,
		store.KindSubgoals:   &s.subgoals,
		store.KindAlignments: &s.alignments,
		store.KindNotables:   &s.notables,
		store.KindHooks:      &s.hooks,
	}
	for _, kind := range store.Kinds() {
		ok, err := st.Has(ctx, taskID, kind)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		if err := st.Load(ctx, taskID, kind, targets[kind]); err != nil {
			return nil, err
		}
		s.has[kind] = true
	}
	return s, nil
}

// LoadArtifacts reads everything stored for a task in the shape the export
// bundle is built from.
func LoadArtifacts(ctx context.Context, st *store.Store, taskID string) (export.Artifacts, error) {
	task, err := st.Task(ctx, taskID)
	if err != nil {
		return export.Artifacts{}, err
	}
	s, err := loadState(ctx, st, taskID)
	if err != nil {
		return export.Artifacts{}, err
	}
	return export.Artifacts{
		Task:       task,
		Sources:    s.sources,
		Subgoals:   s.subgoals,
		Alignments: s.alignments,
		Notables:   s.notables,
		Hooks:      s.hooks,
		Reconciled: s.has[store.KindAlignments],
	}, nil
}

// stepsExtracted reports whether every source has a step list.
func (s *state) stepsExtracted() bool {
	for _, src := range s.sources {
		if len(src.Steps) == 0 {
			return false
		}
	}
	return true
}

// reconciled reports whether the stored alignment sets hold at least one
// record. An empty stored list is compared again.
func (s *state) reconciled() bool {
	if !s.has[store.KindAlignments] {
		return false
	}
	for _, set := range s.alignments {
		if len(set.Records) > 0 {
			return true
		}
	}
	return false
}

// segmented reports whether every source with sentences has segments and,
// when any segment carries a subgoal, summaries.
func (s *state) segmented() bool {
	for _, src := range s.sources {
		if !sourceSegmented(src) {
			return false
		}
	}
	return true
}

func sourceSegmented(src *model.Source) bool {
	if len(src.Sentences) == 0 {
		return true
	}
	if len(src.Segments) == 0 {
		return false
	}
	for _, segment := range src.Segments {
		if segment.Title != "" {
			return len(src.Summaries) > 0
		}
	}
	return true
}
