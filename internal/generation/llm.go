package generation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"stepweave/internal/logging"
	"stepweave/internal/services/llm"
)

// Completer is the structured completion surface of llm.Client.
type Completer interface {
	CompleteStructured(ctx context.Context, req llm.Request, target any) (string, error)
}

// LLM implements Generator over a chat completion model.
type LLM struct {
	client     Completer
	sendImages bool
	logger     *slog.Logger
}

// Option customizes an LLM generator.
type Option func(*LLM)

// WithImages inlines frames as image parts in judgments that look at them.
func WithImages(enabled bool) Option {
	return func(g *LLM) {
		g.sendImages = enabled
	}
}

// WithLogger attaches a logger for request diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(g *LLM) {
		g.logger = logger
	}
}

// NewLLM returns a generator backed by client.
func NewLLM(client Completer, opts ...Option) *LLM {
	g := &LLM{client: client}
	for _, opt := range opts {
		opt(g)
	}
	g.logger = logging.NewComponentLogger(g.logger, "generation")
	return g
}

// ExtractSteps implements Generator.
func (g *LLM) ExtractSteps(ctx context.Context, task string, sentences []Content) ([]string, error) {
	if len(sentences) == 0 {
		return []string{}, nil
	}
	schema, err := schemaFor[StepList]()
	if err != nil {
		return nil, err
	}
	parts, err := g.render("Contents:", sentences, false, false)
	if err != nil {
		return nil, err
	}
	var resp StepList
	if err := g.complete(ctx, "steps", fmt.Sprintf(StepsPrompt, task), parts, schema, &resp); err != nil {
		return nil, err
	}
	return trimAll(resp.Steps), nil
}

// AggregateSteps implements Generator.
func (g *LLM) AggregateSteps(ctx context.Context, task string, canonical, incoming []string) (StepAggregation, error) {
	schema, err := schemaFor[StepAggregation]()
	if err != nil {
		return StepAggregation{}, err
	}
	parts := []llm.Part{
		llm.Text("## Video 1:\n" + strings.Join(canonical, "\n")),
		llm.Text("## Video 2:\n" + strings.Join(incoming, "\n")),
	}
	var resp StepAggregation
	if err := g.complete(ctx, "aggregate_steps", fmt.Sprintf(AggregateStepsPrompt, task), parts, schema, &resp); err != nil {
		return StepAggregation{}, err
	}
	return resp, nil
}

// ExtractSubgoals implements Generator.
func (g *LLM) ExtractSubgoals(ctx context.Context, task string, steps []string) (SubgoalPartition, error) {
	schema, err := schemaFor[SubgoalPartition]()
	if err != nil {
		return SubgoalPartition{}, err
	}
	parts := []llm.Part{llm.Text("## Generalized Steps:\n" + strings.Join(steps, "\n"))}
	var resp SubgoalPartition
	if err := g.complete(ctx, "subgoals", fmt.Sprintf(SubgoalsPrompt, task), parts, schema, &resp); err != nil {
		return SubgoalPartition{}, err
	}
	return resp, nil
}

// SegmentSource implements Generator.
func (g *LLM) SegmentSource(ctx context.Context, task string, sentences []Content, labels []string) ([]Span, error) {
	if len(sentences) == 0 {
		return []Span{}, nil
	}
	schema, err := segmentationSchema(labels)
	if err != nil {
		return nil, err
	}
	parts := []llm.Part{llm.Text("## Steps:\n" + strings.Join(labels, "\n"))}
	contents, err := g.render("## Contents:", sentences, true, false)
	if err != nil {
		return nil, err
	}
	parts = append(parts, contents...)
	var resp Segmentation
	if err := g.complete(ctx, "segmentation", fmt.Sprintf(SegmentPrompt, task), parts, schema, &resp); err != nil {
		return nil, err
	}
	return resp.Segments, nil
}

// SummarizeSegment implements Generator.
func (g *LLM) SummarizeSegment(ctx context.Context, task string, sentences []Content, steps []string) (SegmentExtraction, error) {
	if len(steps) == 0 {
		return SegmentExtraction{}, errors.New("summarize segment: no steps given")
	}
	schema, err := schemaFor[SegmentExtraction]()
	if err != nil {
		return SegmentExtraction{}, err
	}
	parts, err := g.render("Contents:", sentences, true, false)
	if err != nil {
		return SegmentExtraction{}, err
	}
	var resp SegmentExtraction
	system := fmt.Sprintf(SummarizeSegmentPrompt, task, stepReference(steps))
	if err := g.complete(ctx, "step_summary", system, parts, schema, &resp); err != nil {
		return SegmentExtraction{}, err
	}
	return resp, nil
}

// DiffSubgoal implements Generator.
func (g *LLM) DiffSubgoal(ctx context.Context, task, subgoal string, a, b []Content) (Diff, error) {
	schema, err := diffSchema()
	if err != nil {
		return Diff{}, err
	}
	first, err := g.render("## Video 1:", a, false, true)
	if err != nil {
		return Diff{}, err
	}
	second, err := g.render("## Video 2:", b, false, true)
	if err != nil {
		return Diff{}, err
	}
	var resp Diff
	system := fmt.Sprintf(DiffSubgoalPrompt, task, subgoal)
	if err := g.complete(ctx, "subgoal_diff", system, append(first, second...), schema, &resp); err != nil {
		return Diff{}, err
	}
	return resp, nil
}

// DiffSteps implements Generator.
func (g *LLM) DiffSteps(ctx context.Context, task string, a, b []string) (Diff, error) {
	schema, err := diffSchema()
	if err != nil {
		return Diff{}, err
	}
	parts := []llm.Part{
		llm.Text("## Video 1:\n" + numbered(a)),
		llm.Text("## Video 2:\n" + numbered(b)),
	}
	var resp Diff
	if err := g.complete(ctx, "steps_diff", fmt.Sprintf(DiffStepsPrompt, task), parts, schema, &resp); err != nil {
		return Diff{}, err
	}
	return resp, nil
}

// SummarizeNotable implements Generator.
func (g *LLM) SummarizeNotable(ctx context.Context, task, subgoal, aspect string, items []Content) (Summary, error) {
	schema, err := schemaFor[Summary]()
	if err != nil {
		return Summary{}, err
	}
	parts, err := g.render("", items, false, false)
	if err != nil {
		return Summary{}, err
	}
	var resp Summary
	system := fmt.Sprintf(NotablePrompt, task, aspect, subgoal)
	if err := g.complete(ctx, "notable", system, parts, schema, &resp); err != nil {
		return Summary{}, err
	}
	return resp, nil
}

// SummarizeHook implements Generator.
func (g *LLM) SummarizeHook(ctx context.Context, task, subgoal, relation, aspect string, items []Content) (Group, error) {
	schema, err := schemaFor[Group]()
	if err != nil {
		return Group{}, err
	}
	parts, err := g.render("", items, true, false)
	if err != nil {
		return Group{}, err
	}
	var resp Group
	system := fmt.Sprintf(HookPrompt, task, relation, aspect, subgoal)
	if err := g.complete(ctx, "hook", system, parts, schema, &resp); err != nil {
		return Group{}, err
	}
	return resp, nil
}

// GroupHooks implements Generator.
func (g *LLM) GroupHooks(ctx context.Context, task, subgoal, relation, aspect string, items []Content) (Grouping, error) {
	schema, err := schemaFor[Grouping]()
	if err != nil {
		return Grouping{}, err
	}
	parts, err := g.render("", items, true, false)
	if err != nil {
		return Grouping{}, err
	}
	var resp Grouping
	system := fmt.Sprintf(GroupHooksPrompt, task, relation, aspect, subgoal)
	if err := g.complete(ctx, "hooks", system, parts, schema, &resp); err != nil {
		return Grouping{}, err
	}
	return resp, nil
}

func (g *LLM) complete(ctx context.Context, name, system string, parts []llm.Part, schema any, target any) error {
	g.logger.Debug("generation request",
		logging.String("judgment", name),
		logging.Int("parts", len(parts)),
	)
	_, err := g.client.CompleteStructured(ctx, llm.Request{
		System:     system,
		Parts:      parts,
		SchemaName: name,
		Schema:     schema,
	}, target)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

// render turns contents into message parts: an optional header, one text part
// per content prefixed with its index when withIDs is set, and its frames when
// images are both requested and enabled.
func (g *LLM) render(header string, contents []Content, withIDs, withImages bool) ([]llm.Part, error) {
	parts := make([]llm.Part, 0, len(contents)+1)
	if header != "" {
		parts = append(parts, llm.Text(header))
	}
	for i, content := range contents {
		text := content.Text
		if withIDs {
			text = fmt.Sprintf("%d. %s", i, text)
		}
		parts = append(parts, llm.Text(text))
		if !withImages || !g.sendImages {
			continue
		}
		for _, path := range content.FramePaths {
			image, err := llm.ImageFile(path)
			if err != nil {
				return nil, err
			}
			parts = append(parts, image)
		}
	}
	return parts, nil
}

func stepReference(steps []string) string {
	if len(steps) == 1 {
		return "step `" + steps[0] + "`"
	}
	return "steps ```\n" + strings.Join(steps, "; ") + "\n```"
}

func numbered(items []string) string {
	lines := make([]string, 0, len(items))
	for i, item := range items {
		lines = append(lines, fmt.Sprintf("%d. %s", i+1, item))
	}
	return strings.Join(lines, "\n")
}

func trimAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, value := range values {
		if value = strings.TrimSpace(value); value != "" {
			out = append(out, value)
		}
	}
	return out
}
