package generation

import "stepweave/internal/model"

// Content is one item of context sent with a judgment: a sentence or a
// rendered summary field, with the frames that illustrate it.
type Content struct {
	Text       string
	FramePaths []string
}

// Texts wraps plain strings as contents without frames.
func Texts(texts []string) []Content {
	out := make([]Content, 0, len(texts))
	for _, text := range texts {
		out = append(out, Content{Text: text})
	}
	return out
}

// StepList is the step extraction response.
type StepList struct {
	Steps []string `json:"steps" jsonschema:"A comprehensive list of steps to achieve the task, in the order they are demonstrated."`
}

// StepAssignment maps one original step onto an aggregated step.
type StepAssignment struct {
	OriginalStep string `json:"original_step" jsonschema:"The original step from one of the lists."`
	AggStep      string `json:"agg_step" jsonschema:"The aggregated step the original step is mapped to."`
}

// StepAggregation is the judgment merging a canonical list with a new
// source's steps. Assignments1 covers the canonical list, Assignments2 the
// incoming one.
type StepAggregation struct {
	AggSteps     []string         `json:"agg_steps" jsonschema:"The aggregated list of steps to achieve the task."`
	Assignments1 []StepAssignment `json:"assignments_1" jsonschema:"The mapping of every step in the first list to an aggregated step."`
	Assignments2 []StepAssignment `json:"assignments_2" jsonschema:"The mapping of every step in the second list to an aggregated step."`
}

// SubgoalDefinition is one subgoal proposed by the partition judgment.
type SubgoalDefinition struct {
	Title       string `json:"title" jsonschema:"A 1 to 3 word title of the subgoal."`
	Description string `json:"description" jsonschema:"What the subgoal covers in a tutorial for the task."`
}

// SubgoalAssignment places one canonical step under a subgoal.
type SubgoalAssignment struct {
	Step    string `json:"step" jsonschema:"The canonical step being assigned."`
	Subgoal string `json:"subgoal" jsonschema:"The title of the subgoal the step belongs to."`
}

// SubgoalPartition is the subgoal extraction response.
type SubgoalPartition struct {
	Subgoals    []SubgoalDefinition `json:"subgoals" jsonschema:"The list of subgoals of the procedure."`
	Assignments []SubgoalAssignment `json:"assignments" jsonschema:"The mapping of steps to subgoals."`
}

// Span labels an inclusive sentence index range with a step.
type Span struct {
	Step       string `json:"step" jsonschema:"The step the segment belongs to."`
	StartIndex int    `json:"start_index" jsonschema:"The index of the first sentence of the segment."`
	EndIndex   int    `json:"end_index" jsonschema:"The index of the last sentence of the segment."`
}

// Segmentation is the span labelling response.
type Segmentation struct {
	Segments []Span `json:"segments" jsonschema:"The comprehensive list of segments of the narration."`
}

// SegmentExtraction is the structured summary of one segment. Content id
// lists hold sentence indices as rendered to the model.
type SegmentExtraction struct {
	Materials              []string `json:"materials" jsonschema:"Ingredients and materials required for the step with their visual descriptions."`
	MaterialsContentIDs    []int    `json:"materials_content_ids" jsonschema:"Sentence ids that mention the materials."`
	Outcome                []string `json:"outcome" jsonschema:"Concise visual descriptions of what is achieved when the step is done."`
	OutcomeContentIDs      []int    `json:"outcome_content_ids" jsonschema:"Sentence ids that mention the outcome."`
	Instructions           string   `json:"instructions" jsonschema:"The instructions given for completing the step."`
	InstructionsContentIDs []int    `json:"instructions_content_ids" jsonschema:"Sentence ids that mention the instructions."`
	Explanation            string   `json:"explanation" jsonschema:"Why the instructions are performed or what they lead to."`
	ExplanationContentIDs  []int    `json:"explanation_content_ids" jsonschema:"Sentence ids that mention the explanation."`
	Tips                   string   `json:"tips" jsonschema:"Tips that make the step easier and warnings that help avoid mistakes."`
	TipsContentIDs         []int    `json:"tips_content_ids" jsonschema:"Sentence ids that mention the tips or warnings."`
	Tools                  []string `json:"tools" jsonschema:"Tools or equipment required for the step with their descriptions."`
	ToolsContentIDs        []int    `json:"tools_content_ids" jsonschema:"Sentence ids that mention the tools."`
}

// Candidate is one unit of content a diff judgment found in one source and
// not in the other.
type Candidate struct {
	Title       string         `json:"title" jsonschema:"A 1 to 5 word title for the new content."`
	Description string         `json:"description" jsonschema:"A brief and specific description of the new content."`
	Reasoning   string         `json:"reasoning" jsonschema:"Why this content is included in the video."`
	Comparison  string         `json:"comparison" jsonschema:"Why the content differs from or is missing in the other video, without naming it."`
	Aspect      model.Aspect   `json:"aspect" jsonschema:"The procedural aspect of the new content."`
	Relation    model.Relation `json:"relation" jsonschema:"additional when the content supplements the other video; alternative when it contradicts or differs from it."`
	Importance  int            `json:"importance" jsonschema:"Importance for completing the task from 1 (minor detail) to 5 (critical)."`
}

// Diff is the two-sided content diff of a pair of sources.
type Diff struct {
	NewContentsIn1 []Candidate `json:"new_contents_in_1" jsonschema:"New contents in video 1 that are not present in video 2."`
	NewContentsIn2 []Candidate `json:"new_contents_in_2" jsonschema:"New contents in video 2 that are not present in video 1."`
}

// Summary condenses several records into one.
type Summary struct {
	Title       string `json:"title" jsonschema:"A 1 to 5 word title that concisely describes the content."`
	Description string `json:"description" jsonschema:"A brief and specific description of the content."`
	Reasoning   string `json:"reasoning" jsonschema:"Why this content is included in the video."`
	Comparison  string `json:"comparison" jsonschema:"How the content compares to the other videos, without naming them."`
}

// Group is a titled cluster of contents aimed at one receiving source.
type Group struct {
	Title       string `json:"title" jsonschema:"A 1 to 5 word title describing every content in the group."`
	Description string `json:"description" jsonschema:"A brief and specific description of the contents in the group."`
	Comparison  string `json:"comparison" jsonschema:"A brief summary of how the contents compare to the current video."`
}

// GroupAssignment places one content index in a group.
type GroupAssignment struct {
	Group        string `json:"group" jsonschema:"The title of the group."`
	ContentIndex int    `json:"content_index" jsonschema:"The index of the content in the list of contents."`
}

// Grouping is the response of the grouping judgment.
type Grouping struct {
	Groups      []Group           `json:"groups" jsonschema:"Groups of similar procedural contents."`
	Assignments []GroupAssignment `json:"assignments" jsonschema:"The mapping of each content to a group."`
}
