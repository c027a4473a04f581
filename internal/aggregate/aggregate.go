// Package aggregate folds every source's step list into one canonical step
// sequence with per-source provenance and partitions it into subgoals.
//
// Provenance is tracked with an owner index mapping each original step string
// to the canonical entry that owns it, so every original step has exactly one
// owner after each fold. Judgment responses that leave a step unassigned,
// assign it twice, or point at an unknown entry are recorded as warnings and
// repaired rather than failing the fold.
package aggregate

import (
	"context"
	"log/slog"
	"strconv"
	"strings"

	"stepweave/internal/generation"
	"stepweave/internal/logging"
	"stepweave/internal/model"
	"stepweave/internal/services"
)

const stageName = "aggregate"

// Result is the canonical step list after folding.
type Result struct {
	Steps []model.CanonicalStep
	// Owners maps every original step string to its index in Steps.
	Owners     map[string]int
	Validation model.Validation
}

// Texts returns the canonical step texts in order.
func (r Result) Texts() []string {
	out := make([]string, 0, len(r.Steps))
	for _, step := range r.Steps {
		out = append(out, step.Text)
	}
	return out
}

// Aggregator runs the sequential fold and the subgoal partition.
type Aggregator struct {
	gen    generation.Generator
	logger *slog.Logger
}

// New returns an aggregator issuing judgments through gen.
func New(gen generation.Generator, logger *slog.Logger) *Aggregator {
	return &Aggregator{
		gen:    gen,
		logger: logging.NewComponentLogger(logger, stageName),
	}
}

// ownerIndex assigns original steps to canonical entries in first-seen order.
type ownerIndex struct {
	order  []string
	owners map[string]int
}

func newOwnerIndex() *ownerIndex {
	return &ownerIndex{owners: make(map[string]int)}
}

// assign makes idx the owner of step and reports the previous owner when it
// differed.
func (o *ownerIndex) assign(step string, idx int) (int, bool) {
	prev, ok := o.owners[step]
	if !ok {
		o.order = append(o.order, step)
	}
	o.owners[step] = idx
	return prev, ok && prev != idx
}

func (o *ownerIndex) owned(step string) bool {
	_, ok := o.owners[step]
	return ok
}

func (o *ownerIndex) build(texts []string) Result {
	steps := make([]model.CanonicalStep, len(texts))
	for i, text := range texts {
		steps[i] = model.CanonicalStep{Text: text, Provenance: []string{}}
	}
	for _, step := range o.order {
		idx := o.owners[step]
		steps[idx].Provenance = append(steps[idx].Provenance, step)
	}
	return Result{Steps: steps, Owners: o.owners}
}

// Seed builds the canonical list from the first source's steps, each entry
// owning itself.
func Seed(steps []string) Result {
	index := newOwnerIndex()
	var texts []string
	positions := make(map[string]int)
	for _, step := range steps {
		step = strings.TrimSpace(step)
		if step == "" {
			continue
		}
		idx, ok := positions[step]
		if !ok {
			idx = len(texts)
			positions[step] = idx
			texts = append(texts, step)
		}
		index.assign(step, idx)
	}
	return index.build(texts)
}

// Fold seeds from the first sequence and merges each later sequence through
// one aggregation judgment. Judgment failures other than cancellation keep
// the current list and append the incoming steps as new entries.
func (a *Aggregator) Fold(ctx context.Context, task string, sequences [][]string) (Result, error) {
	if len(sequences) == 0 {
		return Result{Steps: []model.CanonicalStep{}, Owners: map[string]int{}}, nil
	}
	current := Seed(sequences[0])
	var validation model.Validation
	for i := 1; i < len(sequences); i++ {
		incoming := cleanSteps(sequences[i])
		if len(incoming) == 0 {
			continue
		}
		resp, err := a.gen.AggregateSteps(ctx, task, current.Texts(), incoming)
		if err != nil {
			if services.Fatal(err) {
				return Result{}, err
			}
			scope := sourceScope(i)
			validation.Add(stageName, services.WarningCode(err), scope,
				"aggregation judgment failed, steps appended unmerged: %s", services.ErrorDetails(err).Message)
			logging.WarnWithContext(a.logger, "aggregation judgment failed", "aggregate_judgment_failed",
				logging.String("scope", scope),
				logging.Error(err),
				logging.String(logging.FieldImpact, "steps from this source are kept as separate canonical steps"),
			)
			current = appendUnmerged(current, incoming)
			continue
		}
		next, warnings := applyJudgment(current, incoming, resp, sourceScope(i))
		validation.Extend(warnings)
		current = next
	}
	current.Validation = validation
	for _, w := range validation.Warnings {
		a.logger.Warn("aggregation warning",
			logging.String("code", string(w.Code)),
			logging.String("scope", w.Scope),
			logging.String("detail", w.Message),
			logging.String(logging.FieldEventType, "aggregate_warning"),
		)
	}
	return current, nil
}

// applyJudgment rebuilds provenance from one aggregation response. Old
// entries and incoming steps the response leaves unassigned become entries of
// their own so ownership stays total.
func applyJudgment(current Result, incoming []string, resp generation.StepAggregation, scope string) (Result, model.Validation) {
	var validation model.Validation

	var texts []string
	positions := make(map[string]int)
	for _, text := range resp.AggSteps {
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		if _, ok := positions[text]; ok {
			continue
		}
		positions[text] = len(texts)
		texts = append(texts, text)
	}
	target := func(text string) (int, bool) {
		idx, ok := positions[strings.TrimSpace(text)]
		return idx, ok
	}

	oldPositions := make(map[string]int, len(current.Steps))
	for i, step := range current.Steps {
		if _, ok := oldPositions[step.Text]; !ok {
			oldPositions[step.Text] = i
		}
	}
	oldTargets := make(map[int]int, len(current.Steps))
	for _, assignment := range resp.Assignments1 {
		old, ok := oldPositions[strings.TrimSpace(assignment.OriginalStep)]
		if !ok {
			validation.Add(stageName, model.WarnUnknownTarget, scope,
				"canonical step %q is not in the canonical list", assignment.OriginalStep)
			continue
		}
		idx, ok := target(assignment.AggStep)
		if !ok {
			validation.Add(stageName, model.WarnUnknownTarget, scope,
				"canonical step %q mapped to unknown aggregated step %q", assignment.OriginalStep, assignment.AggStep)
			continue
		}
		if prev, ok := oldTargets[old]; ok && prev != idx {
			validation.Add(stageName, model.WarnDuplicateAssignment, scope,
				"canonical step %q mapped to both %q and %q", assignment.OriginalStep, texts[prev], texts[idx])
		}
		oldTargets[old] = idx
	}

	incomingSet := make(map[string]struct{}, len(incoming))
	for _, step := range incoming {
		incomingSet[step] = struct{}{}
	}
	newTargets := make(map[string]int, len(incoming))
	for _, assignment := range resp.Assignments2 {
		step := strings.TrimSpace(assignment.OriginalStep)
		if _, ok := incomingSet[step]; !ok {
			validation.Add(stageName, model.WarnUnknownTarget, scope,
				"step %q is not in the incoming list", assignment.OriginalStep)
			continue
		}
		idx, ok := target(assignment.AggStep)
		if !ok {
			validation.Add(stageName, model.WarnUnknownTarget, scope,
				"step %q mapped to unknown aggregated step %q", assignment.OriginalStep, assignment.AggStep)
			continue
		}
		if prev, ok := newTargets[step]; ok && prev != idx {
			validation.Add(stageName, model.WarnDuplicateAssignment, scope,
				"step %q mapped to both %q and %q", step, texts[prev], texts[idx])
		}
		newTargets[step] = idx
	}

	for i, step := range current.Steps {
		if _, ok := oldTargets[i]; ok {
			continue
		}
		validation.Add(stageName, model.WarnUnassignedStep, scope,
			"canonical step %q missing from the judgment, kept as its own entry", step.Text)
		oldTargets[i] = appendText(&texts, positions, step.Text)
	}
	for _, step := range incoming {
		if _, ok := newTargets[step]; ok {
			continue
		}
		validation.Add(stageName, model.WarnUnassignedStep, scope,
			"step %q missing from the judgment, kept as its own entry", step)
		newTargets[step] = appendText(&texts, positions, step)
	}

	index := newOwnerIndex()
	for _, step := range incoming {
		index.assign(step, newTargets[step])
	}
	for i, step := range current.Steps {
		for _, original := range step.Provenance {
			if prev, moved := index.assign(original, oldTargets[i]); moved {
				validation.Add(stageName, model.WarnDuplicateAssignment, scope,
					"original step %q owned by both %q and %q, keeping the latter", original, texts[prev], texts[oldTargets[i]])
			}
		}
	}
	return index.build(texts), validation
}

// appendText returns the position of text, adding it when absent.
func appendText(texts *[]string, positions map[string]int, text string) int {
	if idx, ok := positions[text]; ok {
		return idx
	}
	idx := len(*texts)
	positions[text] = idx
	*texts = append(*texts, text)
	return idx
}

func appendUnmerged(current Result, incoming []string) Result {
	index := newOwnerIndex()
	texts := current.Texts()
	positions := make(map[string]int, len(texts))
	for i, text := range texts {
		if _, ok := positions[text]; !ok {
			positions[text] = i
		}
	}
	for i, step := range current.Steps {
		for _, original := range step.Provenance {
			index.assign(original, i)
		}
	}
	for _, step := range incoming {
		if index.owned(step) {
			continue
		}
		index.assign(step, appendText(&texts, positions, step))
	}
	return index.build(texts)
}

// CheckProvenance verifies that every original step of every sequence is
// owned by exactly one canonical step.
func CheckProvenance(sequences [][]string, steps []model.CanonicalStep) model.Validation {
	var validation model.Validation
	counts := make(map[string]int)
	for _, step := range steps {
		for _, original := range step.Provenance {
			counts[original]++
		}
	}
	seen := make(map[string]bool)
	for i, sequence := range sequences {
		for _, step := range cleanSteps(sequence) {
			if seen[step] {
				continue
			}
			seen[step] = true
			switch n := counts[step]; {
			case n == 0:
				validation.Add(stageName, model.WarnUnassignedStep, sourceScope(i),
					"original step %q has no canonical owner", step)
			case n > 1:
				validation.Add(stageName, model.WarnDuplicateAssignment, sourceScope(i),
					"original step %q owned by %d canonical steps", step, n)
			}
		}
	}
	return validation
}

func cleanSteps(steps []string) []string {
	out := make([]string, 0, len(steps))
	seen := make(map[string]bool, len(steps))
	for _, step := range steps {
		step = strings.TrimSpace(step)
		if step == "" || seen[step] {
			continue
		}
		seen[step] = true
		out = append(out, step)
	}
	return out
}

func sourceScope(i int) string {
	return "source#" + strconv.Itoa(i)
}
