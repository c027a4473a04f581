// Package store persists a task's stage artifacts so reruns resume where the
// previous run stopped.
//
// Artifacts are JSON payloads keyed by task, kind and approach in a single
// SQLite database (modernc.org/sqlite, WAL mode). Kinds follow pipeline order,
// which lets ResetFrom drop a stage together with everything derived from it.
// Each pipeline invocation is also recorded in the runs table.
package store
