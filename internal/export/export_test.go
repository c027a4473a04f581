package export_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"stepweave/internal/export"
	"stepweave/internal/model"
)

func TestBuildRenamesSegmentsAndOrdersHooks(t *testing.T) {
	src := model.NewSource("A", "https://example.com/watch?v=A")
	src.Title = "Lemonade"
	src.Duration = 60
	src.Segments = []model.Segment{{Title: "Prep"}, {Title: "Mix"}, {Title: "Prep"}}
	src.Summaries = []model.SegmentSummary{{Subgoal: "Prep"}, {Subgoal: "Mix"}}

	bundle := export.Build(export.Artifacts{
		Task:       model.Task{ID: "t1", Title: "Make lemonade"},
		Sources:    []*model.Source{src},
		Subgoals:   []model.Subgoal{{Title: "Prep"}, {Title: "Mix"}},
		Alignments: []model.AlignmentSet{{SourceID: "A"}},
		Notables:   []model.Notable{{ID: "notable-A-1"}},
		Hooks:      []model.Hook{{ID: "hook-B-1"}},
	})

	if bundle.Task != "Make lemonade" {
		t.Fatalf("task = %q", bundle.Task)
	}
	segments := bundle.Sources[0].Segments
	if segments[0].Title != "Prep-0" || segments[2].Title != "Prep-2" || segments[2].OriginalTitle != "Prep" {
		t.Fatalf("segments = %+v", segments)
	}
	summaries := bundle.Sources[0].Summaries
	if summaries[0].Subgoal != "Prep-2" || summaries[1].Subgoal != "Mix-1" || summaries[0].OriginalTitle != "Prep" {
		t.Fatalf("summaries = %+v", summaries)
	}
	if src.Segments[0].Title != "Prep" {
		t.Fatal("source was modified")
	}
	items := bundle.Hooks[model.DefaultApproach]
	if len(items) != 2 {
		t.Fatalf("hooks = %+v", items)
	}
	if h, ok := items[0].(model.Hook); !ok || h.ID != "hook-B-1" {
		t.Fatalf("first item = %#v", items[0])
	}
	if n, ok := items[1].(model.Notable); !ok || n.ID != "notable-A-1" {
		t.Fatalf("second item = %#v", items[1])
	}
	if bundle.Sources[0].Metadata.Title != "Lemonade" {
		t.Fatalf("metadata = %+v", bundle.Sources[0].Metadata)
	}
}

func TestBuildOmitsApproachBeforeReconcile(t *testing.T) {
	bundle := export.Build(export.Artifacts{Task: model.Task{Title: "t"}})
	if _, ok := bundle.Hooks[model.DefaultApproach]; ok {
		t.Fatal("approach present without alignments")
	}
	bundle = export.Build(export.Artifacts{Task: model.Task{Title: "t"}, Reconciled: true})
	if items, ok := bundle.Hooks[model.DefaultApproach]; !ok || len(items) != 0 {
		t.Fatalf("reconciled bundle hooks = %#v", bundle.Hooks)
	}
}

func TestWrite(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "exports", "t1")
	bundle := export.Build(export.Artifacts{Task: model.Task{Title: "Make lemonade"}, Reconciled: true})
	path, err := export.Write(dir, bundle)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if filepath.Base(path) != export.FileName {
		t.Fatalf("path = %s", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"task", "videos", "subgoal_definitions", "hooks"} {
		if _, ok := decoded[key]; !ok {
			t.Fatalf("missing key %q in %s", key, data)
		}
	}
}
