// Package preflight checks that a configuration can run a task: writable
// directories, a readable manifest, reachable generation and embedding
// services, and the binaries transcription needs.
package preflight
