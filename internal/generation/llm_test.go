package generation

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/google/jsonschema-go/jsonschema"

	"stepweave/internal/services"
	"stepweave/internal/services/llm"
)

type scriptedCompleter struct {
	response string
	err      error
	requests []llm.Request
}

func (c *scriptedCompleter) CompleteStructured(_ context.Context, req llm.Request, target any) (string, error) {
	c.requests = append(c.requests, req)
	if c.err != nil {
		return "", c.err
	}
	return c.response, json.Unmarshal([]byte(c.response), target)
}

func partTexts(parts []llm.Part) []string {
	var out []string
	for _, part := range parts {
		if part.Type == "text" {
			out = append(out, part.Text)
		}
	}
	return out
}

func TestSegmentSourceNumbersSentencesAndConstrainsLabels(t *testing.T) {
	completer := &scriptedCompleter{response: `{"segments":[{"step":"Prep","start_index":0,"end_index":1}]}`}
	gen := NewLLM(completer)

	spans, err := gen.SegmentSource(context.Background(), "make lemonade",
		Texts([]string{"Slice the lemons", "Squeeze them"}), []string{"Prep", "Mix"})
	if err != nil {
		t.Fatalf("SegmentSource: %v", err)
	}
	if len(spans) != 1 || spans[0].Step != "Prep" || spans[0].EndIndex != 1 {
		t.Fatalf("spans = %+v", spans)
	}

	req := completer.requests[0]
	texts := partTexts(req.Parts)
	if !slices.Contains(texts, "0. Slice the lemons") || !slices.Contains(texts, "1. Squeeze them") {
		t.Fatalf("sentences not numbered: %q", texts)
	}
	if !strings.Contains(req.System, `"make lemonade"`) {
		t.Fatalf("system prompt missing task: %s", req.System)
	}
	schema, ok := req.Schema.(*jsonschema.Schema)
	if !ok {
		t.Fatalf("schema type = %T", req.Schema)
	}
	step := schema.Properties["segments"].Items.Properties["step"]
	if len(step.Enum) != 2 || step.Enum[0] != "Prep" || step.Enum[1] != "Mix" {
		t.Fatalf("step enum = %v", step.Enum)
	}
}

func TestDiffSchemaRestrictsAspectAndRelation(t *testing.T) {
	schema, err := diffSchema()
	if err != nil {
		t.Fatalf("diffSchema: %v", err)
	}
	for _, side := range []string{"new_contents_in_1", "new_contents_in_2"} {
		item := schema.Properties[side].Items
		if len(item.Properties["aspect"].Enum) != 8 {
			t.Fatalf("%s aspect enum = %v", side, item.Properties["aspect"].Enum)
		}
		if len(item.Properties["relation"].Enum) != 2 {
			t.Fatalf("%s relation enum = %v", side, item.Properties["relation"].Enum)
		}
		if !slices.Contains(item.Required, "importance") {
			t.Fatalf("%s importance not required: %v", side, item.Required)
		}
	}
}

func TestDiffSubgoalInlinesFramesOnlyWhenEnabled(t *testing.T) {
	dir := t.TempDir()
	frame := filepath.Join(dir, "3.jpg")
	if err := os.WriteFile(frame, []byte{0xff, 0xd8}, 0o644); err != nil {
		t.Fatalf("write frame: %v", err)
	}
	contents := []Content{{Text: "materials: lemons", FramePaths: []string{frame}}}
	response := `{"new_contents_in_1":[],"new_contents_in_2":[]}`

	for _, enabled := range []bool{false, true} {
		completer := &scriptedCompleter{response: response}
		gen := NewLLM(completer, WithImages(enabled))
		if _, err := gen.DiffSubgoal(context.Background(), "task", "Prep", contents, contents); err != nil {
			t.Fatalf("DiffSubgoal: %v", err)
		}
		images := 0
		for _, part := range completer.requests[0].Parts {
			if part.Type == "image_url" {
				images++
				if !strings.HasPrefix(part.ImageURL.URL, "data:image/jpeg;base64,") {
					t.Fatalf("image url = %s", part.ImageURL.URL)
				}
			}
		}
		want := 0
		if enabled {
			want = 2
		}
		if images != want {
			t.Fatalf("images enabled=%v: got %d parts, want %d", enabled, images, want)
		}
	}
}

func TestDiffStepsNumbersFromOne(t *testing.T) {
	completer := &scriptedCompleter{response: `{"new_contents_in_1":[{"title":"Chill","description":"d","reasoning":"r","comparison":"c","aspect":"instructions","relation":"additional","importance":3}],"new_contents_in_2":[]}`}
	gen := NewLLM(completer)
	diff, err := gen.DiffSteps(context.Background(), "task", []string{"Slice", "Chill"}, []string{"Slice"})
	if err != nil {
		t.Fatalf("DiffSteps: %v", err)
	}
	if len(diff.NewContentsIn1) != 1 || diff.NewContentsIn1[0].Importance != 3 {
		t.Fatalf("diff = %+v", diff)
	}
	texts := partTexts(completer.requests[0].Parts)
	if texts[0] != "## Video 1:\n1. Slice\n2. Chill" {
		t.Fatalf("video 1 text = %q", texts[0])
	}
}

func TestSummarizeSegmentStepReference(t *testing.T) {
	completer := &scriptedCompleter{response: `{"materials":[],"materials_content_ids":[],"outcome":[],"outcome_content_ids":[],"instructions":"","instructions_content_ids":[],"explanation":"","explanation_content_ids":[],"tips":"","tips_content_ids":[],"tools":[],"tools_content_ids":[]}`}
	gen := NewLLM(completer)
	ctx := context.Background()

	if _, err := gen.SummarizeSegment(ctx, "task", Texts([]string{"a"}), []string{"Slice"}); err != nil {
		t.Fatalf("SummarizeSegment: %v", err)
	}
	if !strings.Contains(completer.requests[0].System, "step `Slice`") {
		t.Fatalf("single step reference missing: %s", completer.requests[0].System)
	}
	if _, err := gen.SummarizeSegment(ctx, "task", Texts([]string{"a"}), []string{"Slice", "Squeeze"}); err != nil {
		t.Fatalf("SummarizeSegment: %v", err)
	}
	if !strings.Contains(completer.requests[1].System, "steps ```\nSlice; Squeeze\n```") {
		t.Fatalf("multi step reference missing: %s", completer.requests[1].System)
	}
	if _, err := gen.SummarizeSegment(ctx, "task", Texts([]string{"a"}), nil); err == nil {
		t.Fatal("expected error without steps")
	}
}

func TestRefusalPropagates(t *testing.T) {
	completer := &scriptedCompleter{err: &llm.RefusalError{Op: "llm notable", Refusal: "no"}}
	gen := NewLLM(completer)
	_, err := gen.SummarizeNotable(context.Background(), "task", "Prep", "materials", Texts([]string{"x"}))
	if !errors.Is(err, services.ErrRefusal) {
		t.Fatalf("err = %v, want refusal", err)
	}
	if services.WarningCode(err) != "generation_refusal" {
		t.Fatalf("warning code = %s", services.WarningCode(err))
	}
}

func TestExtractStepsTrimsBlankSteps(t *testing.T) {
	completer := &scriptedCompleter{response: `{"steps":[" Slice lemons ",""," Mix "]}`}
	steps, err := NewLLM(completer).ExtractSteps(context.Background(), "task", Texts([]string{"a"}))
	if err != nil {
		t.Fatalf("ExtractSteps: %v", err)
	}
	if !slices.Equal(steps, []string{"Slice lemons", "Mix"}) {
		t.Fatalf("steps = %q", steps)
	}
	if got, err := NewLLM(completer).ExtractSteps(context.Background(), "task", nil); err != nil || len(got) != 0 {
		t.Fatalf("empty narration: steps=%v err=%v", got, err)
	}
}
