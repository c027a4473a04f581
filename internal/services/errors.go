package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"stepweave/internal/model"
)

var (
	ErrExternalTool  = errors.New("external tool error")
	ErrValidation    = errors.New("validation error")
	ErrConfiguration = errors.New("configuration error")
	ErrNotFound      = errors.New("not found")
	ErrTimeout       = errors.New("timeout")
	ErrTransient     = errors.New("transient failure")
	ErrAcquisition   = errors.New("acquisition failure")
	ErrRefusal       = errors.New("generation refused")
	ErrMalformed     = errors.New("malformed generation output")
)

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later classification. The marker should be one of the
// exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// WarningCode maps a unit failure to the warning recorded when the unit is
// skipped instead of failing the task.
func WarningCode(err error) model.WarningCode {
	switch {
	case errors.Is(err, ErrRefusal):
		return model.WarnGenerationRefusal
	case errors.Is(err, ErrAcquisition):
		return model.WarnAcquisitionFailure
	default:
		return model.WarnGenerationFailure
	}
}

// Fatal reports whether err must abort the run rather than being isolated to
// one unit of work.
func Fatal(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, ErrConfiguration)
}

// Details carries the human-readable part of a wrapped error.
type Details struct {
	Message string
}

// ErrorDetails strips marker prefixes so logs and warnings show the cause.
func ErrorDetails(err error) Details {
	if err == nil {
		return Details{}
	}
	msg := err.Error()
	for _, marker := range []error{
		ErrExternalTool, ErrValidation, ErrConfiguration, ErrNotFound,
		ErrTimeout, ErrTransient, ErrAcquisition, ErrRefusal, ErrMalformed,
	} {
		if prefix := marker.Error() + ": "; strings.HasPrefix(msg, prefix) {
			msg = strings.TrimPrefix(msg, prefix)
			break
		}
	}
	return Details{Message: strings.TrimSpace(msg)}
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
