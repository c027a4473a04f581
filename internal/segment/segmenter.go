// Package segment assigns subgoal labels to a source's timeline and extracts
// a structured summary for each labelled segment.
package segment

import (
	"context"
	"log/slog"
	"slices"
	"strings"

	"stepweave/internal/generation"
	"stepweave/internal/logging"
	"stepweave/internal/model"
	"stepweave/internal/services"
)

const stageName = "segment"

// FrameRanker picks the frames that best depict each text.
type FrameRanker interface {
	Rank(ctx context.Context, texts []string, frames []string, topK int) ([][]string, error)
}

// Segmenter runs step extraction, segmentation and summarization for one
// source at a time. It is safe for concurrent use on distinct sources.
type Segmenter struct {
	gen    generation.Generator
	ranker FrameRanker
	topK   int
	logger *slog.Logger
}

// Option customizes a Segmenter.
type Option func(*Segmenter)

// WithFrameRanker resolves frames for list fields of each summary.
func WithFrameRanker(ranker FrameRanker, topK int) Option {
	return func(s *Segmenter) {
		s.ranker = ranker
		if topK > 0 {
			s.topK = topK
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Segmenter) {
		s.logger = logger
	}
}

// New returns a segmenter issuing judgments through gen.
func New(gen generation.Generator, opts ...Option) *Segmenter {
	s := &Segmenter{gen: gen, topK: 1}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logging.NewComponentLogger(s.logger, stageName)
	return s
}

// Contents renders a source's sentences as generation contents.
func Contents(source *model.Source) []generation.Content {
	out := make([]generation.Content, 0, len(source.Sentences))
	for _, sentence := range source.Sentences {
		out = append(out, generation.Content{Text: sentence.Text, FramePaths: sentence.FramePaths})
	}
	return out
}

// ExtractSteps fills the source's step list when it is empty.
func (s *Segmenter) ExtractSteps(ctx context.Context, task string, source *model.Source) (model.Validation, error) {
	var validation model.Validation
	if len(source.Steps) > 0 {
		return validation, nil
	}
	steps, err := s.gen.ExtractSteps(ctx, task, Contents(source))
	if err != nil {
		return validation, s.isolate(&validation, source.ID, "extract steps", err)
	}
	source.Steps = steps
	s.logger.Info("steps extracted",
		logging.String(logging.FieldSourceID, source.ID),
		logging.Int("steps", len(steps)),
	)
	return validation, nil
}

// Segment labels the source's sentences with its own steps, then relabels
// the resulting segments with subgoal titles. Sources that already have
// segments are left untouched.
func (s *Segmenter) Segment(ctx context.Context, task string, source *model.Source, subgoals []model.Subgoal) (model.Validation, error) {
	var validation model.Validation
	if len(source.Segments) > 0 || len(source.Sentences) == 0 {
		return validation, nil
	}
	spans, err := s.gen.SegmentSource(ctx, task, Contents(source), source.Steps)
	if err != nil {
		return validation, s.isolate(&validation, source.ID, "segment source", err)
	}
	segments, built := BuildSegments(source, spans)
	validation.Extend(built)
	relabeled, relabel := Relabel(segments, subgoals)
	validation.Extend(relabel)
	source.Segments = relabeled

	s.logWarnings(source.ID, validation)
	s.logger.Info("source segmented",
		logging.String(logging.FieldSourceID, source.ID),
		logging.Int("spans", len(spans)),
		logging.Int("step_segments", len(segments)),
		logging.Int("subgoal_segments", len(relabeled)),
	)
	return validation, nil
}

// Summarize extracts a summary for every segment with a subgoal title.
// Sources that already have summaries are left untouched.
func (s *Segmenter) Summarize(ctx context.Context, task string, source *model.Source) (model.Validation, error) {
	var validation model.Validation
	if len(source.Summaries) > 0 {
		return validation, nil
	}
	contents := Contents(source)
	summaries := make([]model.SegmentSummary, 0, len(source.Segments))
	for _, segment := range source.Segments {
		if segment.Title == "" {
			continue
		}
		steps := segment.StepLabels
		if len(steps) == 0 {
			steps = []string{segment.Title}
		}
		extraction, err := s.gen.SummarizeSegment(ctx, task, contents, steps)
		if err != nil {
			if fatal := s.isolate(&validation, source.ID+"/"+segment.Title, "summarize segment", err); fatal != nil {
				return validation, fatal
			}
			continue
		}
		summary, mapped := ToSummary(source, segment.Title, extraction)
		validation.Extend(mapped)

		frames := segment.FramePaths
		if len(frames) == 0 {
			frames = source.FramePaths()
		}
		summary.FramePaths = slices.Clone(frames)
		if err := s.attachFrames(ctx, &summary, frames); err != nil {
			if services.Fatal(err) {
				return validation, err
			}
			logging.WarnWithContext(s.logger, "frame ranking failed", "frame_ranking_failed",
				logging.String(logging.FieldSourceID, source.ID),
				logging.String("subgoal", segment.Title),
				logging.Error(err),
				logging.String(logging.FieldImpact, "summary fields have no frames"),
			)
		}
		summaries = append(summaries, summary)
	}
	source.Summaries = summaries
	s.logWarnings(source.ID, validation)
	s.logger.Info("source summarized",
		logging.String(logging.FieldSourceID, source.ID),
		logging.Int("summaries", len(summaries)),
	)
	return validation, nil
}

// ToSummary maps an extraction onto a segment summary. Sentence indices
// become sentence ids, unknown indices are dropped, and free-text fields
// without evidence are cleared.
func ToSummary(source *model.Source, subgoal string, ext generation.SegmentExtraction) (model.SegmentSummary, model.Validation) {
	var validation model.Validation
	ids := func(field string, indices []int) []string {
		out := make([]string, 0, len(indices))
		for _, idx := range indices {
			if idx < 0 || idx >= len(source.Sentences) {
				validation.Add(stageName, model.WarnUnknownTarget, source.ID+"/"+subgoal,
					"%s cites sentence %d of %d", field, idx, len(source.Sentences))
				continue
			}
			id := source.Sentences[idx].ID
			if !slices.Contains(out, id) {
				out = append(out, id)
			}
		}
		return out
	}
	list := func(field string, items []string, indices []int) model.ListField {
		return model.ListField{Items: cleanItems(items), ContentIDs: ids(field, indices), FramePaths: []string{}}
	}
	text := func(field, value string, indices []int) model.TextField {
		f := model.TextField{Text: strings.TrimSpace(value), ContentIDs: ids(field, indices)}
		if len(f.ContentIDs) == 0 {
			f.Text = ""
		}
		return f
	}
	summary := model.SegmentSummary{
		Subgoal:      subgoal,
		Materials:    list("materials", ext.Materials, ext.MaterialsContentIDs),
		Outcome:      list("outcome", ext.Outcome, ext.OutcomeContentIDs),
		Tools:        list("tools", ext.Tools, ext.ToolsContentIDs),
		Instructions: text("instructions", ext.Instructions, ext.InstructionsContentIDs),
		Explanation:  text("explanation", ext.Explanation, ext.ExplanationContentIDs),
		Tips:         text("tips", ext.Tips, ext.TipsContentIDs),
		FramePaths:   []string{},
	}
	return summary, validation
}

func (s *Segmenter) attachFrames(ctx context.Context, summary *model.SegmentSummary, frames []string) error {
	if s.ranker == nil || len(frames) == 0 {
		return nil
	}
	for _, field := range []*model.ListField{&summary.Outcome, &summary.Materials, &summary.Tools} {
		if field.Empty() {
			continue
		}
		ranked, err := s.ranker.Rank(ctx, field.Items, frames, s.topK)
		if err != nil {
			return err
		}
		var paths []string
		for _, top := range ranked {
			for _, path := range top {
				if !slices.Contains(paths, path) {
					paths = append(paths, path)
				}
			}
		}
		if paths != nil {
			field.FramePaths = paths
		}
	}
	return nil
}

// isolate records a unit failure as a warning. Fatal errors are returned.
func (s *Segmenter) isolate(validation *model.Validation, scope, op string, err error) error {
	if services.Fatal(err) {
		return err
	}
	validation.Add(stageName, services.WarningCode(err), scope, "%s: %s", op, services.ErrorDetails(err).Message)
	logging.WarnWithContext(s.logger, op+" failed", "segment_unit_failed",
		logging.String("scope", scope),
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "rerun the task to retry the judgment"),
		logging.String(logging.FieldImpact, "unit skipped"),
	)
	return nil
}

func (s *Segmenter) logWarnings(sourceID string, validation model.Validation) {
	for _, w := range validation.Warnings {
		s.logger.Warn("segmentation warning",
			logging.String(logging.FieldSourceID, sourceID),
			logging.String("code", string(w.Code)),
			logging.String("scope", w.Scope),
			logging.String("detail", w.Message),
			logging.String(logging.FieldEventType, "segment_warning"),
		)
	}
}

func cleanItems(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
