package model

import (
	"fmt"
	"math"
	"strings"
)

// Sentence is one transcript unit of a source. Its ID is stable once assigned.
type Sentence struct {
	ID         string   `json:"id"`
	Start      float64  `json:"start"`
	End        float64  `json:"finish"`
	Text       string   `json:"text"`
	FramePaths []string `json:"frame_paths"`
}

// Frame is a sampled still from a source at a whole second offset.
type Frame struct {
	Second int    `json:"second"`
	Path   string `json:"path"`
}

// Source is one instructional recording participating in a task.
type Source struct {
	ID        string           `json:"video_id"`
	Locator   string           `json:"video_link"`
	Title     string           `json:"title"`
	Duration  float64          `json:"duration"`
	Sentences []Sentence       `json:"sentences"`
	Frames    []Frame          `json:"frames"`
	Steps     []string         `json:"steps"`
	Segments  []Segment        `json:"subgoals"`
	Summaries []SegmentSummary `json:"subgoal_summaries"`
}

// NewSource returns an empty source with its collections initialized.
func NewSource(id, locator string) *Source {
	return &Source{
		ID:        strings.TrimSpace(id),
		Locator:   strings.TrimSpace(locator),
		Sentences: []Sentence{},
		Frames:    []Frame{},
		Steps:     []string{},
		Segments:  []Segment{},
		Summaries: []SegmentSummary{},
	}
}

// SentenceID formats the content id of the sentence at index within source.
func SentenceID(sourceID string, index int) string {
	return fmt.Sprintf("%s-%d", sourceID, index)
}

// AssignSentenceIDs numbers sentences in order and attaches the frame sampled
// at the rounded midpoint of each sentence, when one exists.
func (s *Source) AssignSentenceIDs() {
	frames := make(map[int]string, len(s.Frames))
	for _, frame := range s.Frames {
		frames[frame.Second] = frame.Path
	}
	for i := range s.Sentences {
		sentence := &s.Sentences[i]
		sentence.ID = SentenceID(s.ID, i)
		mid := int(math.Round((sentence.Start + sentence.End) / 2))
		if path, ok := frames[mid]; ok {
			sentence.FramePaths = []string{path}
		} else if sentence.FramePaths == nil {
			sentence.FramePaths = []string{}
		}
	}
}

// SentenceIndex returns the position of the sentence with id, or -1.
func (s *Source) SentenceIndex(id string) int {
	for i := range s.Sentences {
		if s.Sentences[i].ID == id {
			return i
		}
	}
	return -1
}

// SentenceByID returns the sentence with id.
func (s *Source) SentenceByID(id string) (Sentence, bool) {
	if idx := s.SentenceIndex(id); idx >= 0 {
		return s.Sentences[idx], true
	}
	return Sentence{}, false
}

// FramePaths lists every frame path of the source in time order.
func (s *Source) FramePaths() []string {
	paths := make([]string, 0, len(s.Frames))
	for _, frame := range s.Frames {
		paths = append(paths, frame.Path)
	}
	return paths
}

// SegmentsWithTitle returns the segments labelled with the given subgoal title.
func (s *Source) SegmentsWithTitle(title string) []Segment {
	var out []Segment
	for _, segment := range s.Segments {
		if segment.Title == title {
			out = append(out, segment)
		}
	}
	return out
}

// SummariesFor returns the summaries produced for the given subgoal title.
func (s *Source) SummariesFor(title string) []SegmentSummary {
	var out []SegmentSummary
	for _, summary := range s.Summaries {
		if summary.Subgoal == title {
			out = append(out, summary)
		}
	}
	return out
}

// Segment is a contiguous time span of one source assigned to a subgoal.
type Segment struct {
	ID         string   `json:"id"`
	Title      string   `json:"title"`
	StepLabels []string `json:"original_steps"`
	Start      float64  `json:"start"`
	End        float64  `json:"finish"`
	Text       string   `json:"text"`
	FramePaths []string `json:"frame_paths"`
	ContentIDs []string `json:"content_ids"`
}

// ListField is a list-valued summary category with its supporting evidence.
type ListField struct {
	Items      []string `json:"items"`
	ContentIDs []string `json:"content_ids"`
	FramePaths []string `json:"frame_paths"`
}

// Empty reports whether the field carries no items.
func (f ListField) Empty() bool { return len(f.Items) == 0 }

// TextField is a free-text summary category with its supporting evidence.
type TextField struct {
	Text       string   `json:"text"`
	ContentIDs []string `json:"content_ids"`
}

// Empty reports whether the field carries no text.
func (f TextField) Empty() bool { return strings.TrimSpace(f.Text) == "" }

// SegmentSummary is the structured extraction for one subgoal segment.
type SegmentSummary struct {
	Subgoal      string    `json:"title"`
	Materials    ListField `json:"materials"`
	Outcome      ListField `json:"outcome"`
	Tools        ListField `json:"tools"`
	Instructions TextField `json:"instructions"`
	Explanation  TextField `json:"explanation"`
	Tips         TextField `json:"tips"`
	FramePaths   []string  `json:"frame_paths"`
}

// SummaryPart is one rendered category of a summary.
type SummaryPart struct {
	Aspect     Aspect
	Text       string
	FramePaths []string
}

// Parts renders the non-empty categories in a fixed order.
func (s SegmentSummary) Parts() []SummaryPart {
	var parts []SummaryPart
	lists := []struct {
		aspect Aspect
		field  ListField
	}{
		{AspectMaterials, s.Materials},
		{AspectOutcome, s.Outcome},
		{AspectTools, s.Tools},
	}
	for _, entry := range lists {
		if entry.field.Empty() {
			continue
		}
		parts = append(parts, SummaryPart{
			Aspect:     entry.aspect,
			Text:       fmt.Sprintf("%s: %s", entry.aspect, strings.Join(entry.field.Items, "; ")),
			FramePaths: entry.field.FramePaths,
		})
	}
	texts := []struct {
		aspect Aspect
		field  TextField
	}{
		{AspectInstructions, s.Instructions},
		{AspectExplanation, s.Explanation},
		{AspectTips, s.Tips},
	}
	for _, entry := range texts {
		if entry.field.Empty() {
			continue
		}
		parts = append(parts, SummaryPart{
			Aspect: entry.aspect,
			Text:   fmt.Sprintf("%s: %s", entry.aspect, strings.TrimSpace(entry.field.Text)),
		})
	}
	return parts
}
