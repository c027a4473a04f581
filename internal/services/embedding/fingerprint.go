package embedding

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"stepweave/internal/textutil"
)

// DefaultFingerprintDims is the bucket count used when none is configured.
const DefaultFingerprintDims = 512

// Fingerprint is an offline encoder that hashes term frequencies into a
// fixed-width vector. Images are represented by a caption sidecar
// ("<frame>.txt") when present, otherwise by the tokens of the file name.
type Fingerprint struct {
	Dims int
}

// NewFingerprint returns a fingerprint encoder with dims buckets.
func NewFingerprint(dims int) *Fingerprint {
	if dims <= 0 {
		dims = DefaultFingerprintDims
	}
	return &Fingerprint{Dims: dims}
}

// EmbedTexts implements Embedder.
func (f *Fingerprint) EmbedTexts(ctx context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, len(texts))
	for i, text := range fillBlank(texts) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = textutil.NewFingerprint(text).Vector(f.dims())
	}
	return out, nil
}

// EmbedImages implements CrossModal.
func (f *Fingerprint) EmbedImages(ctx context.Context, paths []string) ([][]float64, error) {
	captions := make([]string, len(paths))
	for i, path := range paths {
		captions[i] = imageCaption(path)
	}
	return f.EmbedTexts(ctx, captions)
}

func (f *Fingerprint) dims() int {
	if f == nil || f.Dims <= 0 {
		return DefaultFingerprintDims
	}
	return f.Dims
}

func imageCaption(path string) string {
	sidecar := strings.TrimSuffix(path, filepath.Ext(path)) + ".txt"
	if data, err := os.ReadFile(sidecar); err == nil {
		if caption := strings.TrimSpace(string(data)); caption != "" {
			return caption
		}
	}
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
