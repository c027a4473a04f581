package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// RunStatus describes how a pipeline run ended.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunSucceeded RunStatus = "succeeded"
	RunFailed    RunStatus = "failed"
)

// Run is one recorded pipeline invocation.
type Run struct {
	ID         string
	TaskID     string
	StartedAt  time.Time
	FinishedAt *time.Time
	Status     RunStatus
	Warnings   int
	Error      string
}

// BeginRun records a new running run for the task.
func (s *Store) BeginRun(ctx context.Context, taskID string) (Run, error) {
	run := Run{
		ID:        uuid.NewString(),
		TaskID:    taskID,
		StartedAt: time.Now().UTC(),
		Status:    RunRunning,
	}
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO runs (id, task_id, started_at, status) VALUES (?, ?, ?, ?)",
		run.ID, run.TaskID, run.StartedAt.Format(timeLayout), string(run.Status),
	)
	if err != nil {
		return Run{}, fmt.Errorf("insert run: %w", err)
	}
	return run, nil
}

// FinishRun stamps the run's outcome.
func (s *Store) FinishRun(ctx context.Context, id string, status RunStatus, warnings int, runErr error) error {
	var message sql.NullString
	if runErr != nil {
		message = sql.NullString{String: runErr.Error(), Valid: true}
	}
	res, err := s.db.ExecContext(ctx,
		"UPDATE runs SET finished_at = ?, status = ?, warnings = ?, error_message = ? WHERE id = ?",
		timestamp(), string(status), warnings, message, id,
	)
	if err != nil {
		return fmt.Errorf("finish run %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("finish run %s: no such run", id)
	}
	return nil
}

// Runs lists a task's runs, newest first. A limit <= 0 returns all of them.
func (s *Store) Runs(ctx context.Context, taskID string, limit int) ([]Run, error) {
	query := `SELECT id, task_id, started_at, finished_at, status, warnings, error_message
        FROM runs WHERE task_id = ? ORDER BY started_at DESC, rowid DESC`
	args := []any{taskID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			run      Run
			started  string
			finished sql.NullString
			status   string
			message  sql.NullString
		)
		if err := rows.Scan(&run.ID, &run.TaskID, &started, &finished, &status, &run.Warnings, &message); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		run.Status = RunStatus(status)
		run.Error = message.String
		if ts, err := time.Parse(time.RFC3339Nano, started); err == nil {
			run.StartedAt = ts
		}
		if finished.Valid {
			if ts, err := time.Parse(time.RFC3339Nano, finished.String); err == nil {
				run.FinishedAt = &ts
			}
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}
