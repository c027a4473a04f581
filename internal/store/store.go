package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"stepweave/internal/config"
	"stepweave/internal/model"
	"stepweave/internal/services"
)

// Store persists tasks, stage artifacts and run history in SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open connects to the artifact database under the configured data directory.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	return OpenPath(cfg.DatabasePath())
}

// OpenPath initializes or connects to the database at dbPath.
func OpenPath(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

// PutTask inserts the task or refreshes its title and locators.
func (s *Store) PutTask(ctx context.Context, task model.Task) error {
	locators, err := json.Marshal(task.Locators)
	if err != nil {
		return fmt.Errorf("marshal locators: %w", err)
	}
	now := timestamp()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO tasks (id, title, sources_json, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?)
        ON CONFLICT(id) DO UPDATE SET
            title = excluded.title,
            sources_json = excluded.sources_json,
            updated_at = excluded.updated_at`,
		task.ID, task.Title, string(locators), now, now,
	)
	if err != nil {
		return fmt.Errorf("upsert task %s: %w", task.ID, err)
	}
	return nil
}

// Task fetches a stored task.
func (s *Store) Task(ctx context.Context, id string) (model.Task, error) {
	var (
		task     model.Task
		locators string
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT id, title, sources_json FROM tasks WHERE id = ?", id,
	).Scan(&task.ID, &task.Title, &locators)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Task{}, services.Wrap(services.ErrNotFound, "store", "load task", fmt.Sprintf("task %q", id), nil)
	}
	if err != nil {
		return model.Task{}, fmt.Errorf("load task %s: %w", id, err)
	}
	if err := json.Unmarshal([]byte(locators), &task.Locators); err != nil {
		return model.Task{}, fmt.Errorf("decode locators of %s: %w", id, err)
	}
	return task, nil
}

// Tasks lists stored tasks ordered by id.
func (s *Store) Tasks(ctx context.Context) ([]model.Task, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, title, sources_json FROM tasks ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []model.Task
	for rows.Next() {
		var (
			task     model.Task
			locators string
		)
		if err := rows.Scan(&task.ID, &task.Title, &locators); err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		if err := json.Unmarshal([]byte(locators), &task.Locators); err != nil {
			return nil, fmt.Errorf("decode locators of %s: %w", task.ID, err)
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func timestamp() string {
	return time.Now().UTC().Format(timeLayout)
}
