package services_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"stepweave/internal/model"
	"stepweave/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrExternalTool, "reconcile", "diff", "failed", base)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"reconcile", "diff", "failed"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestWarningCodeMapping(t *testing.T) {
	refusal := services.Wrap(services.ErrRefusal, "segment", "summarize", "declined", nil)
	if code := services.WarningCode(refusal); code != model.WarnGenerationRefusal {
		t.Fatalf("expected refusal code, got %s", code)
	}
	acquisition := services.Wrap(services.ErrAcquisition, "acquire", "load", "missing transcript", nil)
	if code := services.WarningCode(acquisition); code != model.WarnAcquisitionFailure {
		t.Fatalf("expected acquisition code, got %s", code)
	}
	if code := services.WarningCode(errors.New("io")); code != model.WarnGenerationFailure {
		t.Fatalf("expected generation failure code, got %s", code)
	}
}

func TestFatalOnlyForCancellationAndConfig(t *testing.T) {
	if !services.Fatal(fmt.Errorf("stage: %w", context.Canceled)) {
		t.Fatal("expected cancellation to be fatal")
	}
	if !services.Fatal(services.Wrap(services.ErrConfiguration, "llm", "", "api key required", nil)) {
		t.Fatal("expected configuration error to be fatal")
	}
	if services.Fatal(services.Wrap(services.ErrRefusal, "", "", "", nil)) {
		t.Fatal("refusal must not be fatal")
	}
	if services.Fatal(nil) {
		t.Fatal("nil must not be fatal")
	}
}

func TestErrorDetailsStripsMarker(t *testing.T) {
	err := services.Wrap(services.ErrMalformed, "hook", "summarize", "bad json", nil)
	if got := services.ErrorDetails(err).Message; got != "hook: summarize: bad json" {
		t.Fatalf("unexpected details %q", got)
	}
}
