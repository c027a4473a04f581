package localize

import (
	"context"
	"fmt"

	"stepweave/internal/services/embedding"
	"stepweave/internal/vecmath"
)

// softmaxScale matches the logit scale of contrastive text-image models.
const softmaxScale = 100

// FrameRanker ranks frames against texts with a cross-modal encoder.
type FrameRanker struct {
	Encoder embedding.CrossModal
}

// NewFrameRanker returns a ranker backed by encoder.
func NewFrameRanker(encoder embedding.CrossModal) *FrameRanker {
	return &FrameRanker{Encoder: encoder}
}

// Rank returns, for each text, the topK frame paths in descending order of
// probability. Equal probabilities favour the later frame.
func (r *FrameRanker) Rank(ctx context.Context, texts []string, frames []string, topK int) ([][]string, error) {
	out := make([][]string, len(texts))
	if len(texts) == 0 {
		return out, nil
	}
	if len(frames) == 0 || topK <= 0 {
		for i := range out {
			out[i] = []string{}
		}
		return out, nil
	}
	if r == nil || r.Encoder == nil {
		return nil, fmt.Errorf("rank frames: encoder unavailable")
	}
	imageVectors, err := r.Encoder.EmbedImages(ctx, frames)
	if err != nil {
		return nil, fmt.Errorf("rank frames: embed images: %w", err)
	}
	textVectors, err := r.Encoder.EmbedTexts(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("rank frames: embed texts: %w", err)
	}
	if len(imageVectors) != len(frames) || len(textVectors) != len(texts) {
		return nil, fmt.Errorf("rank frames: encoder returned mismatched vector counts")
	}
	for i, textVector := range textVectors {
		probs := vecmath.Softmax(vecmath.Scores(textVector, imageVectors), softmaxScale)
		ranked := vecmath.TopK(probs, topK)
		paths := make([]string, len(ranked))
		for j, idx := range ranked {
			paths[j] = frames[idx]
		}
		out[i] = paths
	}
	return out, nil
}
