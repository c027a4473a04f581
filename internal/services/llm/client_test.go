package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"stepweave/internal/services"
)

type stepList struct {
	Steps []string `json:"steps"`
}

func messagePayload(content string) map[string]any {
	return map[string]any{
		"choices": []any{
			map[string]any{
				"finish_reason": "stop",
				"message":       map[string]any{"content": content},
			},
		},
	}
}

func newTestClient(url string, opts ...Option) *Client {
	opts = append([]Option{WithRetryBackoff(0, 0), WithSleeper(func(time.Duration) {})}, opts...)
	return NewClient(Config{APIKey: "test", BaseURL: url, Model: "demo-model"}, opts...)
}

func stepsRequest() Request {
	return Request{
		System:     "Extract the steps.",
		Parts:      []Part{Text("0. Slice the lemons."), Text("1. Stir in sugar.")},
		SchemaName: "steps",
		Schema:     map[string]any{"type": "object"},
	}
}

func TestClientHealthCheck(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(messagePayload(`{"ok":true}`))
	}))
	defer server.Close()

	client := NewClient(Config{APIKey: "test", BaseURL: server.URL, Model: "demo-model"})
	if err := client.HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck returned error: %v", err)
	}
}

func TestClientHealthCheckFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "unauthorized"})
	}))
	defer server.Close()

	client := NewClient(Config{APIKey: "bad", BaseURL: server.URL, Model: "demo"})
	if err := client.HealthCheck(context.Background()); err == nil {
		t.Fatal("expected health check to fail")
	}
}

func TestCompleteStructuredSendsSchemaAndParts(t *testing.T) {
	var captured map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test" {
			t.Errorf("authorization header = %q", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_ = json.NewEncoder(w).Encode(messagePayload(`{"steps":["Slice lemons","Stir sugar"]}`))
	}))
	defer server.Close()

	var out stepList
	raw, err := newTestClient(server.URL).CompleteStructured(context.Background(), stepsRequest(), &out)
	if err != nil {
		t.Fatalf("CompleteStructured returned error: %v", err)
	}
	if len(out.Steps) != 2 || out.Steps[0] != "Slice lemons" {
		t.Fatalf("unexpected decoded steps %v", out.Steps)
	}
	if !strings.Contains(raw, "Stir sugar") {
		t.Fatalf("raw content = %q", raw)
	}

	format, _ := captured["response_format"].(map[string]any)
	if format["type"] != "json_schema" {
		t.Fatalf("response_format = %v", format)
	}
	schema, _ := format["json_schema"].(map[string]any)
	if schema["name"] != "steps" || schema["strict"] != true {
		t.Fatalf("json_schema = %v", schema)
	}
	messages, _ := captured["messages"].([]any)
	if len(messages) != 2 {
		t.Fatalf("messages = %v", messages)
	}
	user, _ := messages[1].(map[string]any)
	parts, _ := user["content"].([]any)
	if len(parts) != 2 {
		t.Fatalf("expected two content parts, got %v", user["content"])
	}
}

func TestCompleteStructuredToleratesCodeFence(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(messagePayload("```json\n{\"steps\":[\"Juice lemons\"]}\n```"))
	}))
	defer server.Close()

	var out stepList
	if _, err := newTestClient(server.URL).CompleteStructured(context.Background(), stepsRequest(), &out); err != nil {
		t.Fatalf("CompleteStructured returned error: %v", err)
	}
	if len(out.Steps) != 1 || out.Steps[0] != "Juice lemons" {
		t.Fatalf("unexpected steps %v", out.Steps)
	}
}

func TestCompleteStructuredToolCallArguments(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		payload := map[string]any{
			"choices": []any{
				map[string]any{
					"finish_reason": "tool_calls",
					"message": map[string]any{
						"content": "",
						"tool_calls": []any{
							map[string]any{
								"type":     "function",
								"id":       "call_1",
								"function": map[string]any{"name": "steps", "arguments": `{"steps":["Chill"]}`},
							},
						},
					},
				},
			},
		}
		_ = json.NewEncoder(w).Encode(payload)
	}))
	defer server.Close()

	var out stepList
	if _, err := newTestClient(server.URL).CompleteStructured(context.Background(), stepsRequest(), &out); err != nil {
		t.Fatalf("CompleteStructured returned error: %v", err)
	}
	if len(out.Steps) != 1 || out.Steps[0] != "Chill" {
		t.Fatalf("unexpected steps %v", out.Steps)
	}
}

func TestCompleteStructuredRefusalIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		payload := map[string]any{
			"choices": []any{
				map[string]any{
					"finish_reason": "stop",
					"message":       map[string]any{"content": "", "refusal": "I can't help with that."},
				},
			},
		}
		_ = json.NewEncoder(w).Encode(payload)
	}))
	defer server.Close()

	var out stepList
	_, err := newTestClient(server.URL).CompleteStructured(context.Background(), stepsRequest(), &out)
	if !errors.Is(err, services.ErrRefusal) {
		t.Fatalf("expected refusal error, got %v", err)
	}
	var refusal *RefusalError
	if !errors.As(err, &refusal) || !strings.Contains(refusal.Refusal, "can't help") {
		t.Fatalf("expected refusal text, got %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("refusal retried: %d calls", calls.Load())
	}
}

func TestCompleteStructuredMalformedRetriesThenFails(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_ = json.NewEncoder(w).Encode(messagePayload(`{"steps": ["Slice lemons", `))
	}))
	defer server.Close()

	var out stepList
	_, err := newTestClient(server.URL, WithMalformedRetries(2)).CompleteStructured(context.Background(), stepsRequest(), &out)
	if !errors.Is(err, services.ErrMalformed) {
		t.Fatalf("expected malformed error, got %v", err)
	}
	var malformed *MalformedOutputError
	if !errors.As(err, &malformed) {
		t.Fatalf("expected MalformedOutputError, got %T", err)
	}
	if !strings.Contains(malformed.Partial, "Slice lemons") {
		t.Fatalf("partial text lost: %q", malformed.Partial)
	}
	if calls.Load() != 3 {
		t.Fatalf("expected 3 completions, got %d", calls.Load())
	}
}

func TestCompleteStructuredMalformedThenValid(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			_ = json.NewEncoder(w).Encode(messagePayload("not json at all"))
			return
		}
		_ = json.NewEncoder(w).Encode(messagePayload(`{"steps":["Serve"]}`))
	}))
	defer server.Close()

	var out stepList
	if _, err := newTestClient(server.URL).CompleteStructured(context.Background(), stepsRequest(), &out); err != nil {
		t.Fatalf("CompleteStructured returned error: %v", err)
	}
	if len(out.Steps) != 1 || calls.Load() != 2 {
		t.Fatalf("steps=%v calls=%d", out.Steps, calls.Load())
	}
}

func TestCompleteStructuredRequiresAPIKey(t *testing.T) {
	client := NewClient(Config{BaseURL: "http://127.0.0.1:0"})
	_, err := client.CompleteStructured(context.Background(), stepsRequest(), &stepList{})
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestClientEmptyContentHasSnippet(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(messagePayload(""))
	}))
	defer server.Close()

	_, err := newTestClient(server.URL, WithRetryMaxAttempts(2)).CompleteStructured(context.Background(), stepsRequest(), &stepList{})
	if err == nil {
		t.Fatal("expected completion to fail")
	}
	if !strings.Contains(err.Error(), "empty content") || !strings.Contains(err.Error(), "response_snippet=") {
		t.Fatalf("expected empty-content error to include snippet, got %v", err)
	}
}

func TestClientRetriesOnHTTP429(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "rate limited"})
			return
		}
		_ = json.NewEncoder(w).Encode(messagePayload(`{"steps":["Pour"]}`))
	}))
	defer server.Close()

	var slept []time.Duration
	client := NewClient(
		Config{APIKey: "test", BaseURL: server.URL, Model: "demo-model"},
		WithSleeper(func(d time.Duration) { slept = append(slept, d) }),
		WithRetryBackoff(0, 10*time.Second),
		WithRetryMaxAttempts(5),
	)
	var out stepList
	if _, err := client.CompleteStructured(context.Background(), stepsRequest(), &out); err != nil {
		t.Fatalf("CompleteStructured returned error: %v", err)
	}
	if calls.Load() != 2 {
		t.Fatalf("expected 2 calls, got %d", calls.Load())
	}
	if len(slept) != 1 || slept[0] != time.Second {
		t.Fatalf("expected single sleep of 1s, got %v", slept)
	}
}

func TestClientDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	if _, err := newTestClient(server.URL).CompleteStructured(context.Background(), stepsRequest(), &stepList{}); err == nil {
		t.Fatal("expected error")
	}
	if calls.Load() != 1 {
		t.Fatalf("400 retried: %d calls", calls.Load())
	}
}

func TestImageFileBuildsDataURI(t *testing.T) {
	path := filepath.Join(t.TempDir(), "12.jpg")
	if err := os.WriteFile(path, []byte{0xff, 0xd8, 0xff}, 0o644); err != nil {
		t.Fatalf("write image: %v", err)
	}
	part, err := ImageFile(path)
	if err != nil {
		t.Fatalf("ImageFile: %v", err)
	}
	if part.Type != "image_url" || part.ImageURL == nil {
		t.Fatalf("unexpected part %+v", part)
	}
	if !strings.HasPrefix(part.ImageURL.URL, "data:image/jpeg;base64,") {
		t.Fatalf("unexpected data uri %q", part.ImageURL.URL)
	}
}

func TestDecodeLLMJSONExtractsEmbeddedObject(t *testing.T) {
	var out stepList
	if err := DecodeLLMJSON("Here you go: {\"steps\":[\"a\"]} thanks", &out); err != nil {
		t.Fatalf("DecodeLLMJSON: %v", err)
	}
	if len(out.Steps) != 1 {
		t.Fatalf("unexpected %v", out.Steps)
	}
	if err := DecodeLLMJSON("   ", &out); err == nil {
		t.Fatal("expected error for empty payload")
	}
}
