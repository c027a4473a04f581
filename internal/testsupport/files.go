package testsupport

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"stepweave/internal/services/whisperx"
)

// SourceDir describes a materialised source directory for acquisition tests.
type SourceDir struct {
	Segments []whisperx.Segment
	Frames   []int
	Title    string
	Duration float64
}

// WriteSourceDir lays out dir the way acquisition expects: transcript.json,
// frames/<second>.jpg and metadata.json when a title is set.
func WriteSourceDir(t testing.TB, dir string, src SourceDir) {
	t.Helper()

	writeJSON(t, filepath.Join(dir, whisperx.TranscriptFile), map[string]any{"segments": src.Segments})
	for _, second := range src.Frames {
		WriteFile(t, filepath.Join(dir, "frames", strconv.Itoa(second)+".jpg"), []byte{0xff, 0xd8, 0xff})
	}
	if src.Title != "" {
		writeJSON(t, filepath.Join(dir, "metadata.json"), map[string]any{"title": src.Title, "duration": src.Duration})
	}
}

// WriteFile writes data to path, creating parent directories.
func WriteFile(t testing.TB, path string, data []byte) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func writeJSON(t testing.TB, path string, v any) {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal %s: %v", path, err)
	}
	WriteFile(t, path, data)
}
