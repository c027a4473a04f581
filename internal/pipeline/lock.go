package pipeline

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	"stepweave/internal/config"
)

// ErrTaskLocked reports that another process is running or resetting the task.
var ErrTaskLocked = errors.New("task is locked by another run")

func lockTask(cfg *config.Config, taskID string) (*flock.Flock, error) {
	path := cfg.LockPath(taskID)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}
	lock := flock.New(path)
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTaskLocked, taskID)
	}
	return lock, nil
}
