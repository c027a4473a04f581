package model

import "slices"

// Aspect is the closed category of procedural content a record describes.
type Aspect string

const (
	AspectMaterials    Aspect = "materials"
	AspectOutcome      Aspect = "outcome"
	AspectSetting      Aspect = "setting"
	AspectInstructions Aspect = "instructions"
	AspectExplanation  Aspect = "explanation"
	AspectTips         Aspect = "tips"
	AspectTools        Aspect = "tools"
	AspectOther        Aspect = "other"
)

// Aspects lists every aspect in canonical order.
func Aspects() []Aspect {
	return []Aspect{
		AspectMaterials, AspectOutcome, AspectSetting, AspectInstructions,
		AspectExplanation, AspectTips, AspectTools, AspectOther,
	}
}

// Valid reports whether a is a member of the closed set.
func (a Aspect) Valid() bool { return slices.Contains(Aspects(), a) }

// Relation describes how a record's content relates to the other source.
type Relation string

const (
	RelationAdditional  Relation = "additional"
	RelationAlternative Relation = "alternative"
)

// Valid reports whether r is a member of the closed set.
func (r Relation) Valid() bool {
	return r == RelationAdditional || r == RelationAlternative
}

const (
	// MetaSubgoal tags records from the whole-narration step diff.
	MetaSubgoal = "Meta"
	// DefaultApproach keys the per-approach artifacts produced by this pipeline.
	DefaultApproach = "subgoal"
)

// CanonicalStep is a merged cross-source step and the original steps it absorbed.
type CanonicalStep struct {
	Text       string   `json:"step"`
	Provenance []string `json:"original_steps"`
}

// Subgoal is a task-wide intermediate goal spanning canonical steps.
type Subgoal struct {
	Title         string   `json:"title"`
	Description   string   `json:"description"`
	Steps         []string `json:"steps"`
	OriginalSteps []string `json:"original_steps"`
}

// AlignmentRecord is one unit of content present in one source and absent
// from, or different in, another.
type AlignmentRecord struct {
	ID            string   `json:"id"`
	SourceID      string   `json:"video_id"`
	OtherSourceID string   `json:"other_video_id"`
	Subgoal       string   `json:"subgoal_title"`
	Aspect        Aspect   `json:"aspect"`
	Relation      Relation `json:"relation"`
	Importance    int      `json:"importance"`
	Seconds       float64  `json:"seconds"`
	Title         string   `json:"title"`
	Description   string   `json:"description"`
	Reasoning     string   `json:"reasoning"`
	Comparison    string   `json:"comparison"`
}

// AlignmentSet holds the records one pair comparison attributed to a source.
type AlignmentSet struct {
	SourceID string            `json:"video_id"`
	Records  []AlignmentRecord `json:"alignments"`
}

// DistinctSources counts the distinct source ids across sets.
func DistinctSources(sets []AlignmentSet) int {
	seen := make(map[string]struct{}, len(sets))
	for _, set := range sets {
		seen[set.SourceID] = struct{}{}
	}
	return len(seen)
}

// NotableLink merges the records of one notable that share the other source
// and relation.
type NotableLink struct {
	ID            string   `json:"id"`
	OtherSourceID string   `json:"other_video_id"`
	Subgoal       string   `json:"subgoal_title"`
	Aspect        Aspect   `json:"aspect"`
	Relation      Relation `json:"relation"`
	Title         string   `json:"title"`
	Description   string   `json:"description"`
	Reasoning     string   `json:"reasoning"`
	Comparison    string   `json:"comparison"`
	Importance    float64  `json:"importance"`
	Seconds       float64  `json:"seconds"`
	RecordIDs     []string `json:"record_ids"`
}

// Notable is a deduplicated cluster of records for one source, subgoal and
// aspect.
type Notable struct {
	ID           string        `json:"id"`
	SourceID     string        `json:"video_id"`
	Subgoal      string        `json:"subgoal_title"`
	Aspect       Aspect        `json:"aspect"`
	Title        string        `json:"title"`
	Description  string        `json:"description"`
	Reasoning    string        `json:"reasoning"`
	Comparison   string        `json:"comparison"`
	Links        []NotableLink `json:"links"`
	Importance   float64       `json:"importance"`
	Uniqueness   float64       `json:"uniqueness"`
	Seconds      float64       `json:"seconds"`
	ClusterCount int           `json:"step_aspect_complexity"`
}

// HookLink points a hook back at the notable it was derived from.
type HookLink struct {
	NotableID    string   `json:"notable_id"`
	SourceID     string   `json:"other_video_id"`
	Subgoal      string   `json:"subgoal_title"`
	Aspect       Aspect   `json:"aspect"`
	Relation     Relation `json:"relation"`
	Title        string   `json:"title"`
	Description  string   `json:"description"`
	Reasoning    string   `json:"reasoning"`
	Comparison   string   `json:"comparison"`
	Importance   float64  `json:"importance"`
	Uniqueness   float64  `json:"uniqueness"`
	ClusterCount int      `json:"step_aspect_complexity"`
	Seconds      float64  `json:"other_seconds"`
}

// Hook is a cluster of notables regrouped by the source meant to receive them.
type Hook struct {
	ID             string     `json:"id"`
	TargetSourceID string     `json:"video_id"`
	Subgoal        string     `json:"subgoal_title"`
	Aspect         Aspect     `json:"aspect"`
	Relation       Relation   `json:"relation"`
	Title          string     `json:"title"`
	Description    string     `json:"description"`
	Comparison     string     `json:"comparison"`
	Links          []HookLink `json:"links"`
	Importance     float64    `json:"importance"`
}

// Task names the procedure every source of a run demonstrates.
type Task struct {
	ID       string   `json:"id" yaml:"id"`
	Title    string   `json:"task" yaml:"title"`
	Locators []string `json:"sources" yaml:"sources"`
}
