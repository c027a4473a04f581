// Package logging builds the slog loggers used by the pipeline and the CLI.
//
// Loggers write either a compact console line or JSON, to stderr and a daily
// file under the configured log directory. Stage code tags lines with the
// task, stage, and source carried in the context, and may lower or raise its
// own level through per-stage overrides. NewNop serves tests and wiring code
// that has no logger to hand.
package logging
