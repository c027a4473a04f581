package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"stepweave/internal/logging"
	"stepweave/internal/model"
	"stepweave/internal/services"
)

// Stage names one pipeline step.
type Stage string

const (
	StageAcquire   Stage = "acquire"
	StageSteps     Stage = "steps"
	StageAggregate Stage = "aggregate"
	StageSegment   Stage = "segment"
	StageReconcile Stage = "reconcile"
	StageNotable   Stage = "notable"
	StageHook      Stage = "hook"
)

// Stages lists every stage in execution order.
func Stages() []Stage {
	return []Stage{StageAcquire, StageSteps, StageAggregate, StageSegment, StageReconcile, StageNotable, StageHook}
}

// ParseStage validates a stage name.
func ParseStage(value string) (Stage, error) {
	stage := Stage(strings.ToLower(strings.TrimSpace(value)))
	if !slices.Contains(Stages(), stage) {
		return "", fmt.Errorf("unknown stage %q", value)
	}
	return stage, nil
}

// StageResult records how one stage went during a run.
type StageResult struct {
	Stage    Stage
	Skipped  bool
	Duration time.Duration
	Warnings int
}

type stageSpec struct {
	name Stage
	done func() bool
	run  func(ctx context.Context, logger *slog.Logger) (model.Validation, error)
}

// execute runs one stage unless its output is already present.
func (p *Pipeline) execute(ctx context.Context, report *Report, spec stageSpec) error {
	stageCtx := services.WithStage(ctx, string(spec.name))
	logger := logging.WithContext(stageCtx, logging.ForStage(p.logger, p.cfg.Logging.StageOverrides, string(spec.name)))

	if spec.done() {
		logger.Info("stage skipped",
			logging.String(logging.FieldEventType, "stage_skip"),
			logging.String("reason", "output already stored"),
		)
		report.Stages = append(report.Stages, StageResult{Stage: spec.name, Skipped: true})
		return nil
	}

	start := time.Now()
	logger.Info("stage started", logging.String(logging.FieldEventType, "stage_start"))
	validation, err := spec.run(stageCtx, logger)
	if err != nil {
		message := strings.TrimSpace(services.ErrorDetails(err).Message)
		if message == "" {
			message = strings.TrimSpace(err.Error())
		}
		logger.Error("stage failed",
			logging.String(logging.FieldEventType, "stage_failure"),
			logging.String("error_message", message),
			logging.Error(err),
		)
		return fmt.Errorf("%s stage: %w", spec.name, err)
	}

	report.Validation.Extend(validation)
	report.Stages = append(report.Stages, StageResult{
		Stage:    spec.name,
		Duration: time.Since(start),
		Warnings: len(validation.Warnings),
	})
	logger.Info("stage completed",
		logging.String(logging.FieldEventType, "stage_complete"),
		logging.Int("warnings", len(validation.Warnings)),
		logging.Duration("stage_duration", time.Since(start)),
	)
	return nil
}
