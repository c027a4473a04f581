// Package localize finds where free-text claims are grounded in a source:
// the best matching sentence for a query, the time a subgoal claim should
// anchor to, and the frames that best depict a list of items.
package localize

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"stepweave/internal/logging"
	"stepweave/internal/model"
	"stepweave/internal/services/embedding"
	"stepweave/internal/vecmath"
)

// LowConfidenceFloor is the score below which a match is flagged.
const LowConfidenceFloor = 0.8

const stageName = "localize"

// Match is the best candidate sentence for one query.
type Match struct {
	SentenceID    string
	Index         int
	Score         float64
	LowConfidence bool
}

// Localizer matches queries against one source's sentences. Sentence
// embeddings are computed on first use and kept for the localizer's lifetime.
type Localizer struct {
	source   *model.Source
	embedder embedding.Embedder
	floor    float64
	logger   *slog.Logger

	mu      sync.Mutex
	vectors [][]float64
}

// Option customizes a Localizer.
type Option func(*Localizer)

// WithFloor overrides the low-confidence floor.
func WithFloor(floor float64) Option {
	return func(l *Localizer) {
		if floor > 0 {
			l.floor = floor
		}
	}
}

// WithLogger attaches a logger for low-confidence diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Localizer) {
		l.logger = logger
	}
}

// New returns a localizer over source.
func New(source *model.Source, embedder embedding.Embedder, opts ...Option) *Localizer {
	l := &Localizer{
		source:   source,
		embedder: embedder,
		floor:    LowConfidenceFloor,
	}
	for _, opt := range opts {
		opt(l)
	}
	l.logger = logging.NewComponentLogger(l.logger, "localizer").With(logging.String(logging.FieldSourceID, source.ID))
	return l
}

// SourceID returns the id of the source being searched.
func (l *Localizer) SourceID() string { return l.source.ID }

func (l *Localizer) sentenceVectors(ctx context.Context) ([][]float64, error) {
	l.mu.Lock()
	cached := l.vectors
	l.mu.Unlock()
	if cached != nil {
		return cached, nil
	}

	texts := make([]string, len(l.source.Sentences))
	for i, sentence := range l.source.Sentences {
		texts[i] = sentence.Text
	}
	vectors, err := l.embedder.EmbedTexts(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed sentences of %s: %w", l.source.ID, err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("embed sentences of %s: got %d vectors for %d sentences", l.source.ID, len(vectors), len(texts))
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.vectors == nil {
		l.vectors = vectors
	}
	return l.vectors, nil
}

// Match returns the best sentence for each query. A nil scope searches the
// whole source; otherwise only sentences whose ids appear in scope are
// candidates. Queries with no candidates yield a zero Match with Index -1.
func (l *Localizer) Match(ctx context.Context, queries []string, scope []string) ([]Match, error) {
	if len(queries) == 0 {
		return []Match{}, nil
	}
	vectors, err := l.sentenceVectors(ctx)
	if err != nil {
		return nil, err
	}
	candidates := l.candidateIndices(scope)
	out := make([]Match, len(queries))
	if len(candidates) == 0 {
		for i := range out {
			out[i] = Match{Index: -1}
		}
		return out, nil
	}

	queryVectors, err := l.embedder.EmbedTexts(ctx, queries)
	if err != nil {
		return nil, fmt.Errorf("embed queries: %w", err)
	}
	if len(queryVectors) != len(queries) {
		return nil, fmt.Errorf("embed queries: got %d vectors for %d queries", len(queryVectors), len(queries))
	}

	pool := make([][]float64, len(candidates))
	for i, idx := range candidates {
		pool[i] = vectors[idx]
	}
	for qi, query := range queryVectors {
		scores := vecmath.Scores(query, pool)
		best := vecmath.Argmax(scores)
		idx := candidates[best]
		match := Match{
			SentenceID: l.source.Sentences[idx].ID,
			Index:      idx,
			Score:      scores[best],
		}
		if match.Score < l.floor {
			match.LowConfidence = true
			logging.WarnWithContext(l.logger, "low confidence sentence match", "localize_low_confidence",
				logging.String("query", queries[qi]),
				logging.String("sentence_id", match.SentenceID),
				logging.Float64("score", match.Score),
				logging.String(logging.FieldErrorHint, "the claim may paraphrase the narration loosely"),
				logging.String(logging.FieldImpact, "anchor time may be imprecise"),
			)
		}
		out[qi] = match
	}
	return out, nil
}

// ContentIDs maps each quote to the id of its best sentence in the source.
func (l *Localizer) ContentIDs(ctx context.Context, quotes []string) ([]string, error) {
	matches, err := l.Match(ctx, quotes, nil)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(matches))
	for _, match := range matches {
		if match.Index >= 0 {
			ids = append(ids, match.SentenceID)
		}
	}
	return ids, nil
}

func (l *Localizer) candidateIndices(scope []string) []int {
	if scope == nil {
		out := make([]int, len(l.source.Sentences))
		for i := range out {
			out[i] = i
		}
		return out
	}
	allowed := make(map[string]struct{}, len(scope))
	for _, id := range scope {
		allowed[id] = struct{}{}
	}
	var out []int
	for i, sentence := range l.source.Sentences {
		if _, ok := allowed[sentence.ID]; ok {
			out = append(out, i)
		}
	}
	return out
}

// AnchorSeconds resolves the time a claim about subgoal should point to in
// the source. Without segments it returns 0. When no segment carries the
// subgoal title it falls back to the end of the last segment and reports a
// missing_subgoal warning. Otherwise the best sentence among the matching
// segments' content gives the start time; with no candidate sentences the
// start of the last matching segment is used.
func (l *Localizer) AnchorSeconds(ctx context.Context, subgoal, query string) (float64, model.Validation, error) {
	var validation model.Validation
	segments := l.source.Segments
	if len(segments) == 0 {
		return 0, validation, nil
	}
	matching := l.source.SegmentsWithTitle(subgoal)
	if len(matching) == 0 {
		validation.Add(stageName, model.WarnMissingSubgoal, l.source.ID,
			"no segment titled %q; anchoring to end of last segment", subgoal)
		return segments[len(segments)-1].End, validation, nil
	}
	scope := make([]string, 0)
	for _, segment := range matching {
		scope = append(scope, segment.ContentIDs...)
	}
	last := matching[len(matching)-1]
	if len(scope) == 0 {
		return last.Start, validation, nil
	}
	matches, err := l.Match(ctx, []string{query}, scope)
	if err != nil {
		return 0, validation, err
	}
	match := matches[0]
	if match.Index < 0 {
		return last.Start, validation, nil
	}
	if match.LowConfidence {
		validation.Add(stageName, model.WarnLowConfidence, match.SentenceID,
			"best score %.3f below %.2f for %q", match.Score, l.floor, query)
	}
	return l.source.Sentences[match.Index].Start, validation, nil
}
