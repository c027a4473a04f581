// Package embedding provides the vector encoders used for clustering and
// localisation: an HTTP client for an Ollama-compatible embedding server with
// an optional image endpoint, and a deterministic offline fingerprint encoder.
package embedding

import (
	"context"
	"strings"
)

// Embedder maps texts to fixed-dimension vectors suitable for cosine scoring.
type Embedder interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float64, error)
}

// CrossModal embeds texts and images into a shared space.
type CrossModal interface {
	Embedder
	EmbedImages(ctx context.Context, paths []string) ([][]float64, error)
}

// fillBlank substitutes a single space for empty inputs, which some encoders
// reject or map to degenerate vectors.
func fillBlank(texts []string) []string {
	out := make([]string, len(texts))
	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			out[i] = " "
			continue
		}
		out[i] = text
	}
	return out
}
