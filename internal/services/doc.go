// Package services defines shared utilities consumed by pipeline stages and
// external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp task ids, stage names, source ids, and
//     correlation identifiers for logging.
//   - Structured error markers plus the Wrap helper, and the mapping from a
//     failed unit of work to the warning recorded when it is skipped.
//
// Subpackages hold the adapters for external services: structured generation
// (llm), embeddings (embedding), and WhisperX transcription (whisperx).
package services
