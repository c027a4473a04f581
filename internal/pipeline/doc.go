// Package pipeline runs a task through every reconciliation stage.
//
// Stages run in a fixed order: acquire, steps, aggregate, segment,
// reconcile, notable and hook. Each stage persists its output through the
// store before the next one starts, and a stage whose output is already
// stored is skipped, so an interrupted run resumes where it stopped. Reset
// drops a stage's output together with everything downstream of it.
//
// One run per task holds a file lock under the data directory, and every run
// is recorded in the store's run history with its outcome and warning count.
package pipeline
