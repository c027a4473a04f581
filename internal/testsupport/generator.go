package testsupport

import (
	"context"
	"sync"

	"stepweave/internal/generation"
	"stepweave/internal/services/llm"
)

// Generator is a scripted generation.Generator. Each judgment delegates to
// its function field when set and otherwise returns an empty result. Calls
// are recorded by judgment name.
type Generator struct {
	ExtractStepsFunc     func(ctx context.Context, task string, sentences []generation.Content) ([]string, error)
	AggregateStepsFunc   func(ctx context.Context, task string, canonical, incoming []string) (generation.StepAggregation, error)
	ExtractSubgoalsFunc  func(ctx context.Context, task string, steps []string) (generation.SubgoalPartition, error)
	SegmentSourceFunc    func(ctx context.Context, task string, sentences []generation.Content, labels []string) ([]generation.Span, error)
	SummarizeSegmentFunc func(ctx context.Context, task string, sentences []generation.Content, steps []string) (generation.SegmentExtraction, error)
	DiffSubgoalFunc      func(ctx context.Context, task, subgoal string, a, b []generation.Content) (generation.Diff, error)
	DiffStepsFunc        func(ctx context.Context, task string, a, b []string) (generation.Diff, error)
	SummarizeNotableFunc func(ctx context.Context, task, subgoal, aspect string, items []generation.Content) (generation.Summary, error)
	SummarizeHookFunc    func(ctx context.Context, task, subgoal, relation, aspect string, items []generation.Content) (generation.Group, error)
	GroupHooksFunc       func(ctx context.Context, task, subgoal, relation, aspect string, items []generation.Content) (generation.Grouping, error)

	mu    sync.Mutex
	calls map[string]int
}

// Calls reports how many times the named judgment ran.
func (g *Generator) Calls(name string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls[name]
}

func (g *Generator) record(name string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.calls == nil {
		g.calls = make(map[string]int)
	}
	g.calls[name]++
}

func (g *Generator) ExtractSteps(ctx context.Context, task string, sentences []generation.Content) ([]string, error) {
	g.record("ExtractSteps")
	if g.ExtractStepsFunc != nil {
		return g.ExtractStepsFunc(ctx, task, sentences)
	}
	return []string{}, nil
}

func (g *Generator) AggregateSteps(ctx context.Context, task string, canonical, incoming []string) (generation.StepAggregation, error) {
	g.record("AggregateSteps")
	if g.AggregateStepsFunc != nil {
		return g.AggregateStepsFunc(ctx, task, canonical, incoming)
	}
	return IdentityAggregation(canonical, incoming), nil
}

func (g *Generator) ExtractSubgoals(ctx context.Context, task string, steps []string) (generation.SubgoalPartition, error) {
	g.record("ExtractSubgoals")
	if g.ExtractSubgoalsFunc != nil {
		return g.ExtractSubgoalsFunc(ctx, task, steps)
	}
	return generation.SubgoalPartition{}, nil
}

func (g *Generator) SegmentSource(ctx context.Context, task string, sentences []generation.Content, labels []string) ([]generation.Span, error) {
	g.record("SegmentSource")
	if g.SegmentSourceFunc != nil {
		return g.SegmentSourceFunc(ctx, task, sentences, labels)
	}
	return []generation.Span{}, nil
}

func (g *Generator) SummarizeSegment(ctx context.Context, task string, sentences []generation.Content, steps []string) (generation.SegmentExtraction, error) {
	g.record("SummarizeSegment")
	if g.SummarizeSegmentFunc != nil {
		return g.SummarizeSegmentFunc(ctx, task, sentences, steps)
	}
	return generation.SegmentExtraction{}, nil
}

func (g *Generator) DiffSubgoal(ctx context.Context, task, subgoal string, a, b []generation.Content) (generation.Diff, error) {
	g.record("DiffSubgoal")
	if g.DiffSubgoalFunc != nil {
		return g.DiffSubgoalFunc(ctx, task, subgoal, a, b)
	}
	return generation.Diff{}, nil
}

func (g *Generator) DiffSteps(ctx context.Context, task string, a, b []string) (generation.Diff, error) {
	g.record("DiffSteps")
	if g.DiffStepsFunc != nil {
		return g.DiffStepsFunc(ctx, task, a, b)
	}
	return generation.Diff{}, nil
}

func (g *Generator) SummarizeNotable(ctx context.Context, task, subgoal, aspect string, items []generation.Content) (generation.Summary, error) {
	g.record("SummarizeNotable")
	if g.SummarizeNotableFunc != nil {
		return g.SummarizeNotableFunc(ctx, task, subgoal, aspect, items)
	}
	return generation.Summary{Title: "summary of " + aspect}, nil
}

func (g *Generator) SummarizeHook(ctx context.Context, task, subgoal, relation, aspect string, items []generation.Content) (generation.Group, error) {
	g.record("SummarizeHook")
	if g.SummarizeHookFunc != nil {
		return g.SummarizeHookFunc(ctx, task, subgoal, relation, aspect, items)
	}
	return generation.Group{Title: "hook " + relation + " " + aspect}, nil
}

func (g *Generator) GroupHooks(ctx context.Context, task, subgoal, relation, aspect string, items []generation.Content) (generation.Grouping, error) {
	g.record("GroupHooks")
	if g.GroupHooksFunc != nil {
		return g.GroupHooksFunc(ctx, task, subgoal, relation, aspect, items)
	}
	return generation.Grouping{}, nil
}

// IdentityAggregation keeps every canonical step, appends incoming steps not
// already present, and maps each step to the entry with its own text.
func IdentityAggregation(canonical, incoming []string) generation.StepAggregation {
	var resp generation.StepAggregation
	seen := make(map[string]bool, len(canonical)+len(incoming))
	for _, step := range canonical {
		if !seen[step] {
			seen[step] = true
			resp.AggSteps = append(resp.AggSteps, step)
		}
		resp.Assignments1 = append(resp.Assignments1, generation.StepAssignment{OriginalStep: step, AggStep: step})
	}
	for _, step := range incoming {
		if !seen[step] {
			seen[step] = true
			resp.AggSteps = append(resp.AggSteps, step)
		}
		resp.Assignments2 = append(resp.Assignments2, generation.StepAssignment{OriginalStep: step, AggStep: step})
	}
	return resp
}

// Refusal returns the error a generator reports when the model declines.
func Refusal(op string) error {
	return &llm.RefusalError{Op: op, Refusal: "I can't help with that."}
}
