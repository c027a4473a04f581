package localize

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"

	"stepweave/internal/model"
	"stepweave/internal/services/embedding"
)

type countingEmbedder struct {
	inner embedding.Embedder
	calls int
}

func (e *countingEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float64, error) {
	e.calls++
	return e.inner.EmbedTexts(ctx, texts)
}

func lemonSource() *model.Source {
	src := model.NewSource("vidA", "https://example.com/watch?v=vidA")
	src.Sentences = []model.Sentence{
		{Start: 0, End: 2, Text: "Slice the lemon into thin wedges"},
		{Start: 2, End: 4, Text: "Pour the sugar into the pitcher"},
		{Start: 4, End: 6, Text: "Stir until the sugar dissolves completely"},
		{Start: 6, End: 8, Text: "Slice the lemon into thin wedges"},
	}
	src.AssignSentenceIDs()
	src.Segments = []model.Segment{
		{Title: "Prep", Start: 0, End: 4, ContentIDs: []string{"vidA-0", "vidA-1"}},
		{Title: "Mix", Start: 4, End: 6, ContentIDs: []string{"vidA-2"}},
		{Title: "Prep", Start: 6, End: 8, ContentIDs: []string{"vidA-3"}},
	}
	return src
}

func TestMatchExactTextScoresOne(t *testing.T) {
	src := lemonSource()
	loc := New(src, embedding.NewFingerprint(256))

	matches, err := loc.Match(context.Background(), []string{"Pour the sugar into the pitcher"}, nil)
	if err != nil {
		t.Fatalf("Match returned error: %v", err)
	}
	if matches[0].SentenceID != "vidA-1" {
		t.Fatalf("matched %q, want vidA-1", matches[0].SentenceID)
	}
	if math.Abs(matches[0].Score-1) > 1e-9 {
		t.Fatalf("score = %v, want 1", matches[0].Score)
	}
	if matches[0].LowConfidence {
		t.Fatal("exact match flagged low confidence")
	}
}

func TestMatchTiesPreferLowestIndex(t *testing.T) {
	loc := New(lemonSource(), embedding.NewFingerprint(256))
	matches, err := loc.Match(context.Background(), []string{"Slice the lemon into thin wedges"}, nil)
	if err != nil {
		t.Fatalf("Match returned error: %v", err)
	}
	if matches[0].Index != 0 {
		t.Fatalf("index = %d, want 0", matches[0].Index)
	}
}

func TestMatchRestrictedScope(t *testing.T) {
	loc := New(lemonSource(), embedding.NewFingerprint(256))
	scope := []string{"vidA-2", "vidA-3"}
	matches, err := loc.Match(context.Background(), []string{"Pour the sugar into the pitcher"}, scope)
	if err != nil {
		t.Fatalf("Match returned error: %v", err)
	}
	got := matches[0].SentenceID
	if got != "vidA-2" && got != "vidA-3" {
		t.Fatalf("match %q outside scope %v", got, scope)
	}
}

func TestMatchFlagsLowConfidence(t *testing.T) {
	loc := New(lemonSource(), embedding.NewFingerprint(256))
	matches, err := loc.Match(context.Background(), []string{"preheat oven"}, nil)
	if err != nil {
		t.Fatalf("Match returned error: %v", err)
	}
	if !matches[0].LowConfidence {
		t.Fatalf("expected low confidence flag, score %v", matches[0].Score)
	}
	if matches[0].Index < 0 {
		t.Fatal("low confidence match must still be returned")
	}
}

func TestSentenceEmbeddingsCached(t *testing.T) {
	embedder := &countingEmbedder{inner: embedding.NewFingerprint(64)}
	loc := New(lemonSource(), embedder)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, err := loc.Match(ctx, []string{"lemon"}, nil); err != nil {
			t.Fatalf("Match: %v", err)
		}
	}
	// one sentence embedding plus one query embedding per call
	if embedder.calls != 4 {
		t.Fatalf("embed calls = %d, want 4", embedder.calls)
	}
}

func TestAnchorSeconds(t *testing.T) {
	ctx := context.Background()
	src := lemonSource()
	loc := New(src, embedding.NewFingerprint(256))

	seconds, validation, err := loc.AnchorSeconds(ctx, "Prep", "Slice the lemon into thin wedges")
	if err != nil {
		t.Fatalf("AnchorSeconds: %v", err)
	}
	if seconds != 0 || !validation.Empty() {
		t.Fatalf("seconds = %v warnings = %v, want 0 and none", seconds, validation.Warnings)
	}

	seconds, validation, err = loc.AnchorSeconds(ctx, model.MetaSubgoal, "anything")
	if err != nil {
		t.Fatalf("AnchorSeconds meta: %v", err)
	}
	if seconds != 8 {
		t.Fatalf("missing subgoal seconds = %v, want end of last segment 8", seconds)
	}
	if !validation.Has(model.WarnMissingSubgoal) {
		t.Fatalf("expected missing_subgoal warning, got %v", validation.Warnings)
	}

	empty := model.NewSource("vidB", "vidB")
	seconds, _, err = New(empty, embedding.NewFingerprint(8)).AnchorSeconds(ctx, "Prep", "lemon")
	if err != nil || seconds != 0 {
		t.Fatalf("no segments: seconds=%v err=%v, want 0", seconds, err)
	}

	src.Segments = append(src.Segments, model.Segment{Title: "Serve", Start: 8, End: 9})
	seconds, _, err = loc.AnchorSeconds(ctx, "Serve", "pour into glasses")
	if err != nil || seconds != 8 {
		t.Fatalf("no content ids: seconds=%v err=%v, want segment start 8", seconds, err)
	}
}

func TestFrameRankerTiesFavourLaterFrame(t *testing.T) {
	dir := t.TempDir()
	var frames []string
	for _, name := range []string{"1", "2", "3"} {
		path := filepath.Join(dir, name+".jpg")
		if err := os.WriteFile(path, []byte{0xff}, 0o644); err != nil {
			t.Fatalf("write frame: %v", err)
		}
		caption := "lemon wedges on a board"
		if name == "2" {
			caption = "empty pitcher"
		}
		if err := os.WriteFile(filepath.Join(dir, name+".txt"), []byte(caption), 0o644); err != nil {
			t.Fatalf("write caption: %v", err)
		}
		frames = append(frames, path)
	}

	ranker := NewFrameRanker(embedding.NewFingerprint(128))
	ranked, err := ranker.Rank(context.Background(), []string{"lemon wedges"}, frames, 1)
	if err != nil {
		t.Fatalf("Rank: %v", err)
	}
	if len(ranked[0]) != 1 || ranked[0][0] != frames[2] {
		t.Fatalf("ranked = %v, want later tied frame %s", ranked, frames[2])
	}

	none, err := ranker.Rank(context.Background(), []string{"lemon"}, nil, 1)
	if err != nil || len(none[0]) != 0 {
		t.Fatalf("Rank without frames = %v err=%v", none, err)
	}
}
