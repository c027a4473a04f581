package testsupport

import (
	"context"
	"testing"

	"stepweave/internal/config"
	"stepweave/internal/model"
	"stepweave/internal/store"
)

// MustOpenStore opens a store.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *store.Store {
	t.Helper()

	st, err := store.Open(cfg)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() {
		st.Close()
	})
	return st
}

// PutTask registers a task in the store for tests.
func PutTask(t testing.TB, st *store.Store, id, title string, locators ...string) model.Task {
	t.Helper()

	task := model.Task{ID: id, Title: title, Locators: locators}
	if err := st.PutTask(context.Background(), task); err != nil {
		t.Fatalf("store.PutTask: %v", err)
	}
	return task
}
