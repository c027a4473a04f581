package model

import (
	"fmt"
	"strings"
)

// WarningCode classifies soft invariant violations surfaced to callers.
type WarningCode string

const (
	WarnUnassignedStep      WarningCode = "unassigned_step"
	WarnDuplicateAssignment WarningCode = "duplicate_assignment"
	WarnUnknownTarget       WarningCode = "unknown_target"
	WarnOverlappingSegment  WarningCode = "overlapping_segment"
	WarnUncoveredSentence   WarningCode = "uncovered_sentence"
	WarnLowConfidence       WarningCode = "low_confidence_match"
	WarnMissingSubgoal      WarningCode = "missing_subgoal"
	WarnGenerationRefusal   WarningCode = "generation_refusal"
	WarnGenerationFailure   WarningCode = "generation_failure"
	WarnAcquisitionFailure  WarningCode = "acquisition_failure"
	WarnUnassignedContent   WarningCode = "unassigned_content"
)

// Warning is a typed, non-fatal validation result.
type Warning struct {
	Stage   string      `json:"stage"`
	Code    WarningCode `json:"code"`
	Scope   string      `json:"scope,omitempty"`
	Message string      `json:"message"`
}

func (w Warning) String() string {
	var b strings.Builder
	if w.Stage != "" {
		b.WriteString(w.Stage)
		b.WriteString(": ")
	}
	b.WriteString(string(w.Code))
	if w.Scope != "" {
		b.WriteString(" [")
		b.WriteString(w.Scope)
		b.WriteString("]")
	}
	if w.Message != "" {
		b.WriteString(": ")
		b.WriteString(w.Message)
	}
	return b.String()
}

// Validation accumulates warnings alongside a primary result.
type Validation struct {
	Warnings []Warning `json:"warnings"`
}

// Add records a warning.
func (v *Validation) Add(stage string, code WarningCode, scope, format string, args ...any) {
	v.Warnings = append(v.Warnings, Warning{
		Stage:   stage,
		Code:    code,
		Scope:   scope,
		Message: fmt.Sprintf(format, args...),
	})
}

// Extend appends every warning of other.
func (v *Validation) Extend(other Validation) {
	v.Warnings = append(v.Warnings, other.Warnings...)
}

// Has reports whether any warning carries code.
func (v Validation) Has(code WarningCode) bool {
	return v.Count(code) > 0
}

// Count returns the number of warnings carrying code.
func (v Validation) Count(code WarningCode) int {
	n := 0
	for _, w := range v.Warnings {
		if w.Code == code {
			n++
		}
	}
	return n
}

// Empty reports whether no warnings were recorded.
func (v Validation) Empty() bool { return len(v.Warnings) == 0 }
