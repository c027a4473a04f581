package segment

import (
	"fmt"
	"slices"
	"sort"
	"strings"

	"stepweave/internal/generation"
	"stepweave/internal/model"
)

// BuildSegments converts labelled sentence spans into contiguous segments.
// Spans are applied in start order and a later span overwrites an earlier one
// where they overlap. Adjacent sentences with the same label share a segment;
// when the label changes the boundary is placed halfway between the previous
// segment's end and the next sentence's start.
func BuildSegments(source *model.Source, spans []generation.Span) ([]model.Segment, model.Validation) {
	var validation model.Validation
	n := len(source.Sentences)
	labels := make([]string, n)
	covered := make([]bool, n)

	ordered := slices.Clone(spans)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].StartIndex < ordered[j].StartIndex })
	for _, span := range ordered {
		start, end := span.StartIndex, span.EndIndex
		if start < 0 || end >= n {
			validation.Add(stageName, model.WarnUnknownTarget, source.ID,
				"span %q [%d, %d] outside %d sentences, clamped", span.Step, start, end, n)
			start = max(start, 0)
			end = min(end, n-1)
		}
		if start > end {
			continue
		}
		overlapped := false
		for i := start; i <= end; i++ {
			if covered[i] {
				overlapped = true
			}
			labels[i] = strings.TrimSpace(span.Step)
			covered[i] = true
		}
		if overlapped {
			validation.Add(stageName, model.WarnOverlappingSegment, source.ID,
				"span %q [%d, %d] overlaps an earlier span", span.Step, span.StartIndex, span.EndIndex)
		}
	}
	uncovered := 0
	for _, ok := range covered {
		if !ok {
			uncovered++
		}
	}
	if uncovered > 0 {
		validation.Add(stageName, model.WarnUncoveredSentence, source.ID,
			"%d of %d sentences not covered by any span", uncovered, n)
	}

	segments := make([]model.Segment, 0)
	for i, sentence := range source.Sentences {
		label := labels[i]
		if last := len(segments) - 1; last >= 0 && segments[last].Title == label {
			current := &segments[last]
			current.End = sentence.End
			current.Text = joinText(current.Text, sentence.Text)
			current.FramePaths = append(current.FramePaths, sentence.FramePaths...)
			current.ContentIDs = append(current.ContentIDs, sentence.ID)
			continue
		}
		start := sentence.Start
		if last := len(segments) - 1; last >= 0 {
			start = (segments[last].End + sentence.Start) / 2
			segments[last].End = start
		}
		segments = append(segments, model.Segment{
			ID:         fmt.Sprintf("%s-subgoal-%d", source.ID, len(segments)),
			Title:      label,
			StepLabels: []string{},
			Start:      start,
			End:        sentence.End,
			Text:       sentence.Text,
			FramePaths: slices.Clone(sentence.FramePaths),
			ContentIDs: []string{sentence.ID},
		})
	}
	return segments, validation
}

// Relabel replaces each segment's step label with the title of the subgoal
// whose provenance contains it. A segment whose label has no subgoal, or maps
// to the same subgoal as the segment before it, is merged into that segment.
func Relabel(segments []model.Segment, subgoals []model.Subgoal) ([]model.Segment, model.Validation) {
	var validation model.Validation
	owners := make(map[string]string)
	for _, subgoal := range subgoals {
		for _, step := range subgoal.OriginalSteps {
			if prev, ok := owners[step]; ok && prev != subgoal.Title {
				validation.Add(stageName, model.WarnDuplicateAssignment, step,
					"step belongs to both %q and %q, using %q", prev, subgoal.Title, subgoal.Title)
			}
			owners[step] = subgoal.Title
		}
	}

	out := make([]model.Segment, 0, len(segments))
	for _, segment := range segments {
		title := owners[segment.Title]
		if last := len(out) - 1; last >= 0 && (out[last].Title == title || title == "") {
			merged := &out[last]
			merged.End = segment.End
			merged.Text = joinText(merged.Text, segment.Text)
			merged.FramePaths = append(merged.FramePaths, segment.FramePaths...)
			merged.ContentIDs = append(merged.ContentIDs, segment.ContentIDs...)
			merged.StepLabels = addLabel(merged.StepLabels, segment.Title)
			continue
		}
		out = append(out, model.Segment{
			ID:         segment.ID,
			Title:      title,
			StepLabels: addLabel([]string{}, segment.Title),
			Start:      segment.Start,
			End:        segment.End,
			Text:       segment.Text,
			FramePaths: slices.Clone(segment.FramePaths),
			ContentIDs: slices.Clone(segment.ContentIDs),
		})
	}
	return out, validation
}

func addLabel(labels []string, label string) []string {
	if label == "" || slices.Contains(labels, label) {
		return labels
	}
	return append(labels, label)
}

func joinText(a, b string) string {
	switch {
	case a == "":
		return b
	case b == "":
		return a
	default:
		return a + " " + b
	}
}
