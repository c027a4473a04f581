package segment_test

import (
	"context"
	"slices"
	"testing"

	"stepweave/internal/generation"
	"stepweave/internal/model"
	"stepweave/internal/segment"
	"stepweave/internal/testsupport"
)

func lemonadeSource() *model.Source {
	src := model.NewSource("vidA", "https://example.com/watch?v=vidA")
	src.Sentences = []model.Sentence{
		{Start: 0, End: 2, Text: "Slice the lemons"},
		{Start: 2, End: 4, Text: "Squeeze out the juice"},
		{Start: 5, End: 7, Text: "Add the sugar"},
		{Start: 7, End: 9, Text: "Pour in cold water"},
	}
	src.Frames = []model.Frame{
		{Second: 1, Path: "/frames/1.jpg"},
		{Second: 3, Path: "/frames/3.jpg"},
		{Second: 6, Path: "/frames/6.jpg"},
		{Second: 8, Path: "/frames/8.jpg"},
	}
	src.AssignSentenceIDs()
	src.Steps = []string{"Cut lemons", "Juice", "Sweeten", "Dilute"}
	return src
}

func TestBuildSegmentsMergesSameLabel(t *testing.T) {
	src := lemonadeSource()
	segments, v := segment.BuildSegments(src, []generation.Span{
		{Step: "Cut lemons", StartIndex: 0, EndIndex: 1},
		{Step: "Sweeten", StartIndex: 2, EndIndex: 3},
	})
	if !v.Empty() {
		t.Fatalf("unexpected warnings: %v", v.Warnings)
	}
	if len(segments) != 2 {
		t.Fatalf("segments = %+v", segments)
	}
	first := segments[0]
	if first.Text != "Slice the lemons Squeeze out the juice" {
		t.Fatalf("text = %q", first.Text)
	}
	if !slices.Equal(first.ContentIDs, []string{"vidA-0", "vidA-1"}) {
		t.Fatalf("content ids = %v", first.ContentIDs)
	}
	if !slices.Equal(first.FramePaths, []string{"/frames/1.jpg", "/frames/3.jpg"}) {
		t.Fatalf("frames = %v", first.FramePaths)
	}
	if first.Start != 0 {
		t.Fatalf("first segment starts at %v, want 0", first.Start)
	}
	// Boundary is halfway between sentence 1's end (4) and sentence 2's start (5).
	if first.End != 4.5 || segments[1].Start != 4.5 {
		t.Fatalf("boundary = %v / %v, want 4.5", first.End, segments[1].Start)
	}
	if segments[1].End != 9 {
		t.Fatalf("last end = %v, want 9", segments[1].End)
	}
	if segments[0].ID != "vidA-subgoal-0" || segments[1].ID != "vidA-subgoal-1" {
		t.Fatalf("ids = %s, %s", segments[0].ID, segments[1].ID)
	}
}

func TestBuildSegmentsOverlapAndCoverageWarnings(t *testing.T) {
	src := lemonadeSource()
	segments, v := segment.BuildSegments(src, []generation.Span{
		{Step: "Juice", StartIndex: 1, EndIndex: 1},
		{Step: "Cut lemons", StartIndex: 0, EndIndex: 1},
		{Step: "Dilute", StartIndex: 3, EndIndex: 7},
	})
	if !v.Has(model.WarnOverlappingSegment) {
		t.Fatalf("expected overlap warning, got %v", v.Warnings)
	}
	if !v.Has(model.WarnUncoveredSentence) {
		t.Fatalf("expected uncovered warning, got %v", v.Warnings)
	}
	if !v.Has(model.WarnUnknownTarget) {
		t.Fatalf("expected out of range warning, got %v", v.Warnings)
	}
	// Spans apply in start order, so "Juice" overwrites sentence 1.
	titles := make([]string, 0, len(segments))
	for _, s := range segments {
		titles = append(titles, s.Title)
	}
	if !slices.Equal(titles, []string{"Cut lemons", "Juice", "", "Dilute"}) {
		t.Fatalf("titles = %q", titles)
	}
}

func subgoals() []model.Subgoal {
	return []model.Subgoal{
		{Title: "Prep", OriginalSteps: []string{"Cut lemons", "Juice"}},
		{Title: "Mix", OriginalSteps: []string{"Sweeten", "Dilute"}},
	}
}

func TestRelabelMergesBySubgoal(t *testing.T) {
	src := lemonadeSource()
	steps, _ := segment.BuildSegments(src, []generation.Span{
		{Step: "Cut lemons", StartIndex: 0, EndIndex: 0},
		{Step: "Juice", StartIndex: 1, EndIndex: 1},
		{Step: "Unlisted", StartIndex: 2, EndIndex: 2},
		{Step: "Dilute", StartIndex: 3, EndIndex: 3},
	})
	relabeled, v := segment.Relabel(steps, subgoals())
	if !v.Empty() {
		t.Fatalf("unexpected warnings: %v", v.Warnings)
	}
	if len(relabeled) != 2 {
		t.Fatalf("relabeled = %+v", relabeled)
	}
	prep := relabeled[0]
	if prep.Title != "Prep" || !slices.Equal(prep.StepLabels, []string{"Cut lemons", "Juice", "Unlisted"}) {
		t.Fatalf("prep = %+v", prep)
	}
	if !slices.Equal(prep.ContentIDs, []string{"vidA-0", "vidA-1", "vidA-2"}) {
		t.Fatalf("prep ids = %v", prep.ContentIDs)
	}
	if relabeled[1].Title != "Mix" || relabeled[1].Start != steps[3].Start {
		t.Fatalf("mix = %+v", relabeled[1])
	}
}

func TestRelabelWarnsOnDoubleOwnership(t *testing.T) {
	steps := []model.Segment{{Title: "Juice"}}
	goals := append(subgoals(), model.Subgoal{Title: "Extract", OriginalSteps: []string{"Juice"}})
	relabeled, v := segment.Relabel(steps, goals)
	if !v.Has(model.WarnDuplicateAssignment) {
		t.Fatalf("expected duplicate warning, got %v", v.Warnings)
	}
	if relabeled[0].Title != "Extract" {
		t.Fatalf("title = %q, want last owner Extract", relabeled[0].Title)
	}
}

type stubRanker struct {
	calls int
}

func (r *stubRanker) Rank(_ context.Context, texts []string, frames []string, _ int) ([][]string, error) {
	r.calls++
	out := make([][]string, len(texts))
	for i := range texts {
		out[i] = []string{frames[len(frames)-1]}
	}
	return out, nil
}

func TestSegmentAndSummarize(t *testing.T) {
	src := lemonadeSource()
	gen := &testsupport.Generator{
		SegmentSourceFunc: func(_ context.Context, _ string, sentences []generation.Content, labels []string) ([]generation.Span, error) {
			if len(sentences) != 4 || !slices.Equal(labels, src.Steps) {
				t.Errorf("segment input: %d sentences, labels %q", len(sentences), labels)
			}
			return []generation.Span{
				{Step: "Cut lemons", StartIndex: 0, EndIndex: 0},
				{Step: "Juice", StartIndex: 1, EndIndex: 1},
				{Step: "Sweeten", StartIndex: 2, EndIndex: 3},
			}, nil
		},
		SummarizeSegmentFunc: func(_ context.Context, _ string, _ []generation.Content, steps []string) (generation.SegmentExtraction, error) {
			if steps[0] == "Cut lemons" {
				return generation.SegmentExtraction{
					Materials:           []string{"lemons", " "},
					MaterialsContentIDs: []int{0, 0, 9},
					Instructions:        "Slice then squeeze",
					// no evidence: cleared
					Tips: "Roll the lemons first",
				}, nil
			}
			return generation.SegmentExtraction{}, testsupport.Refusal("step_summary")
		},
	}
	ranker := &stubRanker{}
	seg := segment.New(gen, segment.WithFrameRanker(ranker, 1))
	ctx := context.Background()

	if _, err := seg.Segment(ctx, "make lemonade", src, subgoals()); err != nil {
		t.Fatalf("Segment: %v", err)
	}
	if len(src.Segments) != 2 || src.Segments[0].Title != "Prep" || src.Segments[1].Title != "Mix" {
		t.Fatalf("segments = %+v", src.Segments)
	}

	v, err := seg.Summarize(ctx, "make lemonade", src)
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if !v.Has(model.WarnGenerationRefusal) || !v.Has(model.WarnUnknownTarget) {
		t.Fatalf("warnings = %v", v.Warnings)
	}
	if len(src.Summaries) != 1 {
		t.Fatalf("summaries = %+v", src.Summaries)
	}
	summary := src.Summaries[0]
	if summary.Subgoal != "Prep" {
		t.Fatalf("subgoal = %q", summary.Subgoal)
	}
	if !slices.Equal(summary.Materials.Items, []string{"lemons"}) || !slices.Equal(summary.Materials.ContentIDs, []string{"vidA-0"}) {
		t.Fatalf("materials = %+v", summary.Materials)
	}
	if !slices.Equal(summary.Materials.FramePaths, []string{"/frames/3.jpg"}) {
		t.Fatalf("material frames = %v", summary.Materials.FramePaths)
	}
	if summary.Instructions.Text != "" || summary.Tips.Text != "" {
		t.Fatalf("evidence-less text kept: %+v / %+v", summary.Instructions, summary.Tips)
	}
	if ranker.calls != 1 {
		t.Fatalf("ranker calls = %d, want 1", ranker.calls)
	}

	// Both passes are skipped once their output exists.
	if _, err := seg.Segment(ctx, "make lemonade", src, subgoals()); err != nil {
		t.Fatalf("Segment again: %v", err)
	}
	if _, err := seg.Summarize(ctx, "make lemonade", src); err != nil {
		t.Fatalf("Summarize again: %v", err)
	}
	if gen.Calls("SegmentSource") != 1 || gen.Calls("SummarizeSegment") != 2 {
		t.Fatalf("calls: segment=%d summarize=%d", gen.Calls("SegmentSource"), gen.Calls("SummarizeSegment"))
	}
}

func TestExtractStepsOnlyWhenMissing(t *testing.T) {
	gen := &testsupport.Generator{
		ExtractStepsFunc: func(context.Context, string, []generation.Content) ([]string, error) {
			return []string{"Slice", "Stir"}, nil
		},
	}
	seg := segment.New(gen)
	src := lemonadeSource()
	src.Steps = nil
	if _, err := seg.ExtractSteps(context.Background(), "task", src); err != nil {
		t.Fatalf("ExtractSteps: %v", err)
	}
	if !slices.Equal(src.Steps, []string{"Slice", "Stir"}) {
		t.Fatalf("steps = %q", src.Steps)
	}
	if _, err := seg.ExtractSteps(context.Background(), "task", src); err != nil {
		t.Fatalf("ExtractSteps again: %v", err)
	}
	if gen.Calls("ExtractSteps") != 1 {
		t.Fatalf("calls = %d", gen.Calls("ExtractSteps"))
	}
}
