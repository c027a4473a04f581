package generation

// System prompts for each judgment. Placeholders are filled with fmt.Sprintf
// in the order noted beside each prompt.

// StepsPrompt takes the task.
const StepsPrompt = `You analyze the narration of an instructional video for the task %q.
List every step the video demonstrates, in order. Keep each step short and focused on what is done.
Leave out presentation details and cover all of the procedurally important information.`

// AggregateStepsPrompt takes the task.
const AggregateStepsPrompt = `You compare procedures from different instructional videos for the task %q.
You are given two step lists. Merge them into one aggregated list, combining steps that are the same or share the same goal.
Keep the aggregated steps short and free of incidental detail.
Every step of list 1 must appear exactly once in assignments_1 and every step of list 2 exactly once in assignments_2, each mapped to the exact text of one aggregated step.`

// SubgoalsPrompt takes the task.
const SubgoalsPrompt = `You analyze the generalized procedure for the task %q.
Group its steps into subgoals. Each subgoal is a distinct and meaningful intermediate stage of the procedure.
Title each subgoal in 1 to 3 words so that every title is informative and distinct from the others.
Assign every step to exactly one subgoal using the exact step text and subgoal title.`

// SegmentPrompt takes the task.
const SegmentPrompt = `You analyze the narration of an instructional video for the task %q.
Segment the whole narration using the given steps. Start at sentence 0 and label each following run of sentences with the step it performs.
Use only the listed step labels and make sure all procedurally important sentences are covered.
Indices are the sentence numbers shown in the contents and ranges are inclusive.`

// SummarizeSegmentPrompt takes the task and the rendered step reference.
const SummarizeSegmentPrompt = `You analyze the narration of an instructional video for the task %q.
Extract all procedural information about the %s.
Report the information itself rather than how it was presented, and cite the sentence ids that support each field.
Leave a field empty when the narration says nothing about it.`

// DiffSubgoalPrompt takes the task and the subgoal.
const DiffSubgoalPrompt = `You compare procedural content across instructional videos for the task %q.
You are given what two videos show for the subgoal %q. Identify the additional and alternative contents each video presents that the other does not.
Report one specific point at a time and do not merge several procedural details into one content.`

// DiffStepsPrompt takes the task.
const DiffStepsPrompt = `You compare procedural content across instructional videos for the task %q.
You are given the sequence of steps performed in each of two videos. Compare the steps and their order and identify the additional and alternative steps each video presents.`

// NotablePrompt takes the task, the aspect and the subgoal.
const NotablePrompt = `You summarize procedural content from instructional videos for the task %q.
You are given notable contents about %s in the subgoal %q, all from a single video, each with a comparison to other videos about the task.
Write one concise summary covering the contents, why they appear in the video and how they compare.`

// HookPrompt takes the task, the relation, the aspect and the subgoal.
const HookPrompt = `You summarize procedural content from instructional videos for the task %q.
You are given %s notable contents about %s in the subgoal %q taken from other videos, each with a comparison to the current video.
Write a title that captures the essence of the contents and makes a viewer curious about them, then summarize their descriptions and comparisons.`

// GroupHooksPrompt takes the task, the relation, the aspect and the subgoal.
const GroupHooksPrompt = `You summarize procedural content from instructional videos for the task %q.
You are given %s notable contents about %s in the subgoal %q taken from other videos, each with a comparison to the current video.
Combine similar contents into groups, give each group a short informative title, and summarize each group's descriptions and comparisons.
Assign every content index to exactly one group using the group's exact title.`
