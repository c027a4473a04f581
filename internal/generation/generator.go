package generation

import "context"

// Generator issues the structured judgments the pipeline depends on. Every
// method blocks on the backing model and returns an error wrapping
// services.ErrRefusal when the model declines to answer.
type Generator interface {
	// ExtractSteps lists the steps a narration demonstrates.
	ExtractSteps(ctx context.Context, task string, sentences []Content) ([]string, error)
	// AggregateSteps merges the canonical list with one source's steps.
	AggregateSteps(ctx context.Context, task string, canonical, incoming []string) (StepAggregation, error)
	// ExtractSubgoals partitions canonical steps into subgoals.
	ExtractSubgoals(ctx context.Context, task string, steps []string) (SubgoalPartition, error)
	// SegmentSource labels sentence index spans with one of labels.
	SegmentSource(ctx context.Context, task string, sentences []Content, labels []string) ([]Span, error)
	// SummarizeSegment extracts the structured summary of the given steps.
	SummarizeSegment(ctx context.Context, task string, sentences []Content, steps []string) (SegmentExtraction, error)
	// DiffSubgoal compares two sources' contents for one subgoal.
	DiffSubgoal(ctx context.Context, task, subgoal string, a, b []Content) (Diff, error)
	// DiffSteps compares two sources' whole step lists.
	DiffSteps(ctx context.Context, task string, a, b []string) (Diff, error)
	// SummarizeNotable condenses records from one source into one.
	SummarizeNotable(ctx context.Context, task, subgoal string, aspect string, items []Content) (Summary, error)
	// SummarizeHook titles notables from other sources aimed at one target.
	SummarizeHook(ctx context.Context, task, subgoal, relation, aspect string, items []Content) (Group, error)
	// GroupHooks groups notables aimed at one target and titles each group.
	GroupHooks(ctx context.Context, task, subgoal, relation, aspect string, items []Content) (Grouping, error)
}
