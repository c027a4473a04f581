package aggregate_test

import (
	"context"
	"fmt"
	"slices"
	"testing"

	"pgregory.net/rapid"

	"stepweave/internal/aggregate"
	"stepweave/internal/generation"
	"stepweave/internal/model"
	"stepweave/internal/testsupport"
)

func assign(pairs ...string) []generation.StepAssignment {
	out := make([]generation.StepAssignment, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, generation.StepAssignment{OriginalStep: pairs[i], AggStep: pairs[i+1]})
	}
	return out
}

func provenanceOf(t *testing.T, steps []model.CanonicalStep, text string) []string {
	t.Helper()
	for _, step := range steps {
		if step.Text == text {
			return step.Provenance
		}
	}
	t.Fatalf("canonical step %q not found in %+v", text, steps)
	return nil
}

func TestFoldTracksProvenanceAcrossSources(t *testing.T) {
	sequences := [][]string{
		{"Cut lemons", "Add sugar"},
		{"Slice lemons", "Pour water"},
		{"Halve the lemons", "Stir"},
	}
	gen := &testsupport.Generator{}
	gen.AggregateStepsFunc = func(_ context.Context, _ string, canonical, incoming []string) (generation.StepAggregation, error) {
		switch incoming[0] {
		case "Slice lemons":
			return generation.StepAggregation{
				AggSteps:     []string{"Slice the lemons", "Add sugar", "Pour water"},
				Assignments1: assign("Cut lemons", "Slice the lemons", "Add sugar", "Add sugar"),
				Assignments2: assign("Slice lemons", "Slice the lemons", "Pour water", "Pour water"),
			}, nil
		default:
			return generation.StepAggregation{
				AggSteps: []string{"Slice the lemons", "Sweeten", "Pour water"},
				Assignments1: assign(
					"Slice the lemons", "Slice the lemons",
					"Add sugar", "Sweeten",
					"Pour water", "Pour water",
				),
				Assignments2: assign("Halve the lemons", "Slice the lemons", "Stir", "Sweeten"),
			}, nil
		}
	}

	result, err := aggregate.New(gen, nil).Fold(context.Background(), "make lemonade", sequences)
	if err != nil {
		t.Fatalf("Fold: %v", err)
	}
	if !result.Validation.Empty() {
		t.Fatalf("unexpected warnings: %v", result.Validation.Warnings)
	}
	if got := result.Texts(); !slices.Equal(got, []string{"Slice the lemons", "Sweeten", "Pour water"}) {
		t.Fatalf("canonical = %q", got)
	}
	lemons := provenanceOf(t, result.Steps, "Slice the lemons")
	slices.Sort(lemons)
	if !slices.Equal(lemons, []string{"Cut lemons", "Halve the lemons", "Slice lemons"}) {
		t.Fatalf("lemon provenance = %q", lemons)
	}
	sweeten := provenanceOf(t, result.Steps, "Sweeten")
	slices.Sort(sweeten)
	if !slices.Equal(sweeten, []string{"Add sugar", "Stir"}) {
		t.Fatalf("sweeten provenance = %q", sweeten)
	}
	if owner := result.Owners["Cut lemons"]; result.Steps[owner].Text != "Slice the lemons" {
		t.Fatalf("owner of Cut lemons = %q", result.Steps[owner].Text)
	}
	if check := aggregate.CheckProvenance(sequences, result.Steps); !check.Empty() {
		t.Fatalf("provenance check: %v", check.Warnings)
	}
	if gen.Calls("AggregateSteps") != 2 {
		t.Fatalf("aggregate calls = %d, want 2", gen.Calls("AggregateSteps"))
	}
}

func TestFoldInconsistentJudgmentWarnsAndRepairs(t *testing.T) {
	sequences := [][]string{
		{"Cut lemons", "Add sugar"},
		{"Slice lemons", "Pour water", "Serve"},
	}
	gen := &testsupport.Generator{
		AggregateStepsFunc: func(context.Context, string, []string, []string) (generation.StepAggregation, error) {
			return generation.StepAggregation{
				AggSteps: []string{"Slice the lemons", "Sweeten", "Pour water"},
				Assignments1: assign(
					"Cut lemons", "Slice the lemons",
					"Add sugar", "Sweeten",
					"Add sugar", "Pour water",
				),
				// "Serve" is left out and "Slice lemons" points nowhere.
				Assignments2: assign("Slice lemons", "Chop", "Pour water", "Pour water"),
			}, nil
		},
	}

	result, err := aggregate.New(gen, nil).Fold(context.Background(), "make lemonade", sequences)
	if err != nil {
		t.Fatalf("Fold: %v", err)
	}
	v := result.Validation
	if !v.Has(model.WarnDuplicateAssignment) {
		t.Fatalf("expected duplicate_assignment, got %v", v.Warnings)
	}
	if !v.Has(model.WarnUnknownTarget) {
		t.Fatalf("expected unknown_target, got %v", v.Warnings)
	}
	if v.Count(model.WarnUnassignedStep) != 2 {
		t.Fatalf("expected 2 unassigned_step warnings, got %v", v.Warnings)
	}
	// Most recent assignment wins.
	if owner := result.Owners["Add sugar"]; result.Steps[owner].Text != "Pour water" {
		t.Fatalf("Add sugar owned by %q, want Pour water", result.Steps[owner].Text)
	}
	if check := aggregate.CheckProvenance(sequences, result.Steps); !check.Empty() {
		t.Fatalf("repair left provenance inconsistent: %v", check.Warnings)
	}
}

func TestFoldRefusalAppendsUnmergedSteps(t *testing.T) {
	sequences := [][]string{{"Cut lemons"}, {"Cut lemons", "Stir"}}
	gen := &testsupport.Generator{
		AggregateStepsFunc: func(context.Context, string, []string, []string) (generation.StepAggregation, error) {
			return generation.StepAggregation{}, testsupport.Refusal("aggregate_steps")
		},
	}
	result, err := aggregate.New(gen, nil).Fold(context.Background(), "task", sequences)
	if err != nil {
		t.Fatalf("Fold: %v", err)
	}
	if !result.Validation.Has(model.WarnGenerationRefusal) {
		t.Fatalf("expected refusal warning, got %v", result.Validation.Warnings)
	}
	if got := result.Texts(); !slices.Equal(got, []string{"Cut lemons", "Stir"}) {
		t.Fatalf("canonical = %q", got)
	}
	if check := aggregate.CheckProvenance(sequences, result.Steps); !check.Empty() {
		t.Fatalf("provenance check: %v", check.Warnings)
	}
}

func TestFoldCancelledContextAborts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	gen := &testsupport.Generator{
		AggregateStepsFunc: func(ctx context.Context, _ string, _, _ []string) (generation.StepAggregation, error) {
			return generation.StepAggregation{}, ctx.Err()
		},
	}
	if _, err := aggregate.New(gen, nil).Fold(ctx, "task", [][]string{{"a"}, {"b"}}); err == nil {
		t.Fatal("expected cancellation error")
	}
}

func TestCheckProvenanceReportsViolations(t *testing.T) {
	sequences := [][]string{{"a", "b"}, {"c"}}
	steps := []model.CanonicalStep{
		{Text: "A", Provenance: []string{"a"}},
		{Text: "AB", Provenance: []string{"a", "b"}},
	}
	v := aggregate.CheckProvenance(sequences, steps)
	if v.Count(model.WarnDuplicateAssignment) != 1 || v.Count(model.WarnUnassignedStep) != 1 {
		t.Fatalf("warnings = %v", v.Warnings)
	}
}

func TestPartitionExpandsProvenance(t *testing.T) {
	steps := []model.CanonicalStep{
		{Text: "Slice the lemons", Provenance: []string{"Cut lemons", "Slice lemons"}},
		{Text: "Sweeten", Provenance: []string{"Add sugar"}},
		{Text: "Pour water", Provenance: []string{"Pour water"}},
		{Text: "Garnish", Provenance: []string{"Add mint"}},
	}
	gen := &testsupport.Generator{
		ExtractSubgoalsFunc: func(context.Context, string, []string) (generation.SubgoalPartition, error) {
			return generation.SubgoalPartition{
				Subgoals: []generation.SubgoalDefinition{
					{Title: "Prep", Description: "Get the fruit ready"},
					{Title: "Mix", Description: "Combine everything"},
					{Title: "Serve", Description: "Pour into glasses"},
				},
				Assignments: []generation.SubgoalAssignment{
					{Step: "Slice the lemons", Subgoal: "Prep"},
					{Step: "Sweeten", Subgoal: "Mix"},
					{Step: "Pour water", Subgoal: "Mix"},
					{Step: "Squeeze", Subgoal: "Prep"},
				},
			}, nil
		},
	}

	subgoals, v, err := aggregate.New(gen, nil).Partition(context.Background(), "make lemonade", steps)
	if err != nil {
		t.Fatalf("Partition: %v", err)
	}
	if len(subgoals) != 3 {
		t.Fatalf("subgoals = %+v", subgoals)
	}
	if !slices.Equal(subgoals[0].OriginalSteps, []string{"Cut lemons", "Slice lemons"}) {
		t.Fatalf("Prep originals = %q", subgoals[0].OriginalSteps)
	}
	if !slices.Equal(subgoals[1].OriginalSteps, []string{"Add sugar", "Pour water"}) {
		t.Fatalf("Mix originals = %q", subgoals[1].OriginalSteps)
	}
	// Garnish has no subgoal, Serve has no steps, Squeeze is unknown.
	if v.Count(model.WarnUnassignedStep) != 2 || v.Count(model.WarnUnknownTarget) != 1 {
		t.Fatalf("warnings = %v", v.Warnings)
	}
}

// consistentJudge merges each incoming step into a random existing entry or
// a new one, always mapping every step exactly once.
func consistentJudge(rt *rapid.T) func(context.Context, string, []string, []string) (generation.StepAggregation, error) {
	call := 0
	return func(_ context.Context, _ string, canonical, incoming []string) (generation.StepAggregation, error) {
		call++
		var resp generation.StepAggregation
		resp.AggSteps = append(resp.AggSteps, canonical...)
		for _, step := range canonical {
			resp.Assignments1 = append(resp.Assignments1, generation.StepAssignment{OriginalStep: step, AggStep: step})
		}
		for i, step := range incoming {
			if len(resp.AggSteps) > 0 && rapid.Bool().Draw(rt, fmt.Sprintf("merge_%d_%d", call, i)) {
				target := rapid.SampledFrom(resp.AggSteps).Draw(rt, fmt.Sprintf("target_%d_%d", call, i))
				resp.Assignments2 = append(resp.Assignments2, generation.StepAssignment{OriginalStep: step, AggStep: target})
				continue
			}
			entry := fmt.Sprintf("canonical %d.%d", call, i)
			resp.AggSteps = append(resp.AggSteps, entry)
			resp.Assignments2 = append(resp.Assignments2, generation.StepAssignment{OriginalStep: step, AggStep: entry})
		}
		return resp, nil
	}
}

func TestFoldProvenanceExactlyOnceProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		sources := rapid.IntRange(1, 5).Draw(rt, "sources")
		sequences := make([][]string, sources)
		for s := range sequences {
			n := rapid.IntRange(0, 6).Draw(rt, fmt.Sprintf("steps_%d", s))
			for i := 0; i < n; i++ {
				sequences[s] = append(sequences[s], fmt.Sprintf("source %d step %d", s, i))
			}
		}
		gen := &testsupport.Generator{AggregateStepsFunc: consistentJudge(rt)}
		result, err := aggregate.New(gen, nil).Fold(context.Background(), "task", sequences)
		if err != nil {
			rt.Fatalf("Fold: %v", err)
		}
		if !result.Validation.Empty() {
			rt.Fatalf("consistent judgments produced warnings: %v", result.Validation.Warnings)
		}
		if check := aggregate.CheckProvenance(sequences, result.Steps); !check.Empty() {
			rt.Fatalf("provenance violated: %v", check.Warnings)
		}
		for step, owner := range result.Owners {
			if !slices.Contains(result.Steps[owner].Provenance, step) {
				rt.Fatalf("owner index disagrees with provenance for %q", step)
			}
		}
	})
}
