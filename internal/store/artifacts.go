package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"stepweave/internal/model"
	"stepweave/internal/services"
)

// Kind names one persisted stage output.
type Kind string

const (
	KindSources    Kind = "sources"
	KindSteps      Kind = "steps"
	KindSubgoals   Kind = "subgoals"
	KindAlignments Kind = "alignments"
	KindNotables   Kind = "notables"
	KindHooks      Kind = "hooks"
)

// Kinds lists every kind in pipeline order.
func Kinds() []Kind {
	return []Kind{KindSources, KindSteps, KindSubgoals, KindAlignments, KindNotables, KindHooks}
}

// ParseKind validates a kind name.
func ParseKind(value string) (Kind, error) {
	kind := Kind(value)
	if !slices.Contains(Kinds(), kind) {
		return "", fmt.Errorf("unknown artifact kind %q", value)
	}
	return kind, nil
}

// Approach returns the approach key a kind is stored under. Task-wide kinds
// use the empty key.
func (k Kind) Approach() string {
	switch k {
	case KindAlignments, KindNotables, KindHooks:
		return model.DefaultApproach
	default:
		return ""
	}
}

// Has reports whether the task has an artifact of kind.
func (s *Store) Has(ctx context.Context, taskID string, kind Kind) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM artifacts WHERE task_id = ? AND kind = ? AND approach = ?",
		taskID, string(kind), kind.Approach(),
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check %s of %s: %w", kind, taskID, err)
	}
	return count > 0, nil
}

// Load decodes the task's artifact of kind into target. A missing artifact
// yields an error marked services.ErrNotFound.
func (s *Store) Load(ctx context.Context, taskID string, kind Kind, target any) error {
	var payload string
	err := s.db.QueryRowContext(ctx,
		"SELECT payload FROM artifacts WHERE task_id = ? AND kind = ? AND approach = ?",
		taskID, string(kind), kind.Approach(),
	).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return services.Wrap(services.ErrNotFound, "store", "load "+string(kind), fmt.Sprintf("task %q", taskID), nil)
	}
	if err != nil {
		return fmt.Errorf("load %s of %s: %w", kind, taskID, err)
	}
	if err := json.Unmarshal([]byte(payload), target); err != nil {
		return fmt.Errorf("decode %s of %s: %w", kind, taskID, err)
	}
	return nil
}

// Save replaces the task's artifact of kind with value encoded as JSON.
func (s *Store) Save(ctx context.Context, taskID string, kind Kind, value any) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s of %s: %w", kind, taskID, err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO artifacts (task_id, kind, approach, payload, updated_at)
        VALUES (?, ?, ?, ?, ?)
        ON CONFLICT(task_id, kind, approach) DO UPDATE SET
            payload = excluded.payload,
            updated_at = excluded.updated_at`,
		taskID, string(kind), kind.Approach(), string(payload), timestamp(),
	)
	if err != nil {
		return fmt.Errorf("save %s of %s: %w", kind, taskID, err)
	}
	return nil
}

// Delete removes the task's artifact of kind if present.
func (s *Store) Delete(ctx context.Context, taskID string, kind Kind) error {
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM artifacts WHERE task_id = ? AND kind = ? AND approach = ?",
		taskID, string(kind), kind.Approach(),
	)
	if err != nil {
		return fmt.Errorf("delete %s of %s: %w", kind, taskID, err)
	}
	return nil
}

// ResetFrom removes the artifact of kind and every kind after it in pipeline
// order, in one transaction. It returns the kinds that were removed.
func (s *Store) ResetFrom(ctx context.Context, taskID string, kind Kind) ([]Kind, error) {
	all := Kinds()
	start := slices.Index(all, kind)
	if start < 0 {
		return nil, fmt.Errorf("unknown artifact kind %q", kind)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin reset tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var removed []Kind
	for _, k := range all[start:] {
		res, err := tx.ExecContext(ctx,
			"DELETE FROM artifacts WHERE task_id = ? AND kind = ? AND approach = ?",
			taskID, string(k), k.Approach(),
		)
		if err != nil {
			return nil, fmt.Errorf("reset %s of %s: %w", k, taskID, err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			removed = append(removed, k)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit reset: %w", err)
	}
	return removed, nil
}
