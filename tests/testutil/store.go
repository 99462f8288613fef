package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/nhle/task-reminders/internal/model"
	"github.com/nhle/task-reminders/internal/store"
)

// NewTestStore creates an in-memory SQLiteStore with all migrations applied.
// It automatically closes the store when the test completes.
func NewTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()

	s, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("creating test store: %v", err)
	}

	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("closing test store: %v", err)
		}
	})

	return s
}

// Date returns midnight UTC of the given calendar day.
func Date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DatePtr is Date returned as a pointer, for Todo.DueDate.
func DatePtr(y int, m time.Month, d int) *time.Time {
	t := Date(y, m, d)
	return &t
}

// SeedTodo inserts a todo and fails the test on error.
func SeedTodo(t *testing.T, s *store.SQLiteStore, todo model.Todo) model.Todo {
	t.Helper()

	created, err := s.CreateTodo(context.Background(), todo)
	if err != nil {
		t.Fatalf("seeding todo %q: %v", todo.Title, err)
	}
	return created
}
