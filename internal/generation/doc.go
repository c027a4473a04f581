// Package generation defines the structured judgments the reconciliation
// pipeline asks of a language model, their typed response contracts, and an
// implementation over an OpenAI-compatible chat completion client.
//
// Each judgment sends a JSON Schema inferred from its response type, so the
// model output decodes straight into the Go structs in types.go.
package generation
