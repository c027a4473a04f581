// Package export assembles the viewer bundle for a finished task.
package export

import (
	"fmt"
	"path/filepath"

	"stepweave/internal/fileutil"
	"stepweave/internal/model"
)

// FileName is the bundle's name inside a task's export directory.
const FileName = "output.json"

// Metadata is the short descriptive block exported per source.
type Metadata struct {
	Title    string  `json:"title"`
	Duration float64 `json:"duration"`
}

// Segment is a source segment whose title is made unique by its position.
type Segment struct {
	model.Segment
	OriginalTitle string `json:"original_title"`
}

// Summary is a segment summary re-keyed to the unique segment title.
type Summary struct {
	model.SegmentSummary
	OriginalTitle string `json:"original_title"`
}

// Source is the exported form of one source.
type Source struct {
	ID        string           `json:"video_id"`
	Locator   string           `json:"video_link"`
	Frames    []model.Frame    `json:"frames"`
	Sentences []model.Sentence `json:"sentences"`
	Steps     []string         `json:"steps"`
	Segments  []Segment        `json:"subgoals"`
	Summaries []Summary        `json:"subgoal_summaries"`
	Metadata  Metadata         `json:"metadata"`
}

// Bundle is the exported document. Hooks maps each approach to its hooks
// followed by its notables.
type Bundle struct {
	Task     string           `json:"task"`
	Sources  []Source         `json:"videos"`
	Subgoals []model.Subgoal  `json:"subgoal_definitions"`
	Hooks    map[string][]any `json:"hooks"`
}

// Artifacts are the stage outputs a bundle is built from.
type Artifacts struct {
	Task       model.Task
	Sources    []*model.Source
	Subgoals   []model.Subgoal
	Alignments []model.AlignmentSet
	Notables   []model.Notable
	Hooks      []model.Hook
	// Reconciled reports whether the reconcile stage produced output, even
	// an empty one.
	Reconciled bool
}

// Build assembles a bundle. The approach entry is present only once the
// sources were reconciled.
func Build(a Artifacts) Bundle {
	bundle := Bundle{
		Task:     a.Task.Title,
		Sources:  make([]Source, 0, len(a.Sources)),
		Subgoals: a.Subgoals,
		Hooks:    map[string][]any{},
	}
	if bundle.Subgoals == nil {
		bundle.Subgoals = []model.Subgoal{}
	}
	for _, src := range a.Sources {
		bundle.Sources = append(bundle.Sources, exportSource(src))
	}
	if a.Reconciled || len(a.Alignments) > 0 {
		items := make([]any, 0, len(a.Hooks)+len(a.Notables))
		for _, h := range a.Hooks {
			items = append(items, h)
		}
		for _, n := range a.Notables {
			items = append(items, n)
		}
		bundle.Hooks[model.DefaultApproach] = items
	}
	return bundle
}

// Write stores the bundle as dir/output.json and returns the path.
func Write(dir string, bundle Bundle) (string, error) {
	path := filepath.Join(dir, FileName)
	if err := fileutil.WriteJSON(path, bundle); err != nil {
		return "", fmt.Errorf("write bundle: %w", err)
	}
	return path, nil
}

// exportSource suffixes every segment title with its index so repeated
// subgoals stay distinguishable, and points summaries at the last segment
// carrying their original title.
func exportSource(src *model.Source) Source {
	out := Source{
		ID:        src.ID,
		Locator:   src.Locator,
		Frames:    src.Frames,
		Sentences: src.Sentences,
		Steps:     src.Steps,
		Segments:  make([]Segment, 0, len(src.Segments)),
		Summaries: make([]Summary, 0, len(src.Summaries)),
		Metadata:  Metadata{Title: src.Title, Duration: src.Duration},
	}
	for i, segment := range src.Segments {
		renamed := segment
		renamed.Title = fmt.Sprintf("%s-%d", segment.Title, i)
		out.Segments = append(out.Segments, Segment{Segment: renamed, OriginalTitle: segment.Title})
	}
	for _, summary := range src.Summaries {
		renamed := summary
		for _, segment := range out.Segments {
			if segment.OriginalTitle == summary.Subgoal {
				renamed.Subgoal = segment.Title
			}
		}
		out.Summaries = append(out.Summaries, Summary{SegmentSummary: renamed, OriginalTitle: summary.Subgoal})
	}
	return out
}
