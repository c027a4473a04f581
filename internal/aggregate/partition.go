package aggregate

import (
	"context"
	"slices"
	"strings"

	"stepweave/internal/logging"
	"stepweave/internal/model"
	"stepweave/internal/services"
)

// Partition groups canonical steps into subgoals with one judgment. Each
// subgoal's original steps are the provenance of the canonical steps assigned
// to it.
func (a *Aggregator) Partition(ctx context.Context, task string, steps []model.CanonicalStep) ([]model.Subgoal, model.Validation, error) {
	var validation model.Validation
	if len(steps) == 0 {
		return []model.Subgoal{}, validation, nil
	}
	texts := make([]string, 0, len(steps))
	positions := make(map[string]int, len(steps))
	for i, step := range steps {
		texts = append(texts, step.Text)
		if _, ok := positions[step.Text]; !ok {
			positions[step.Text] = i
		}
	}

	resp, err := a.gen.ExtractSubgoals(ctx, task, texts)
	if err != nil {
		return nil, validation, services.Wrap(services.ErrExternalTool, stageName, "extract subgoals", "", err)
	}

	subgoals := make([]model.Subgoal, 0, len(resp.Subgoals))
	titles := make(map[string]int, len(resp.Subgoals))
	for _, def := range resp.Subgoals {
		title := strings.TrimSpace(def.Title)
		if title == "" {
			continue
		}
		if _, ok := titles[title]; ok {
			validation.Add(stageName, model.WarnDuplicateAssignment, title, "subgoal title returned more than once")
			continue
		}
		titles[title] = len(subgoals)
		subgoals = append(subgoals, model.Subgoal{
			Title:         title,
			Description:   strings.TrimSpace(def.Description),
			Steps:         []string{},
			OriginalSteps: []string{},
		})
	}

	index := newOwnerIndex()
	for _, assignment := range resp.Assignments {
		step := strings.TrimSpace(assignment.Step)
		if _, ok := positions[step]; !ok {
			validation.Add(stageName, model.WarnUnknownTarget, step, "assigned step is not a canonical step")
			continue
		}
		owner, ok := titles[strings.TrimSpace(assignment.Subgoal)]
		if !ok {
			validation.Add(stageName, model.WarnUnknownTarget, step,
				"step assigned to unknown subgoal %q", assignment.Subgoal)
			continue
		}
		if prev, moved := index.assign(step, owner); moved {
			validation.Add(stageName, model.WarnDuplicateAssignment, step,
				"step assigned to both %q and %q, keeping the latter", subgoals[prev].Title, subgoals[owner].Title)
		}
	}

	for _, step := range steps {
		owner, ok := index.owners[step.Text]
		if !ok {
			validation.Add(stageName, model.WarnUnassignedStep, step.Text, "canonical step has no subgoal")
			continue
		}
		if slices.Contains(subgoals[owner].Steps, step.Text) {
			continue
		}
		subgoals[owner].Steps = append(subgoals[owner].Steps, step.Text)
		subgoals[owner].OriginalSteps = append(subgoals[owner].OriginalSteps, step.Provenance...)
	}
	for _, subgoal := range subgoals {
		if len(subgoal.Steps) == 0 {
			validation.Add(stageName, model.WarnUnassignedStep, subgoal.Title, "subgoal received no steps")
		}
	}

	for _, w := range validation.Warnings {
		a.logger.Warn("subgoal partition warning",
			logging.String("code", string(w.Code)),
			logging.String("scope", w.Scope),
			logging.String("detail", w.Message),
			logging.String(logging.FieldEventType, "partition_warning"),
		)
	}
	a.logger.Info("subgoals extracted",
		logging.Int("subgoals", len(subgoals)),
		logging.Int("canonical_steps", len(steps)),
		logging.Int("warnings", len(validation.Warnings)),
	)
	return subgoals, validation, nil
}
