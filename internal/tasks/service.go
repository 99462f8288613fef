// Package tasks is the small task subsystem the engine ships with: it owns
// the todos table and fires a change notification after every mutation.
package tasks

import (
	"context"
	"fmt"
	"time"

	"github.com/nhle/task-reminders/internal/model"
	"github.com/nhle/task-reminders/internal/store"
)

// Store persists todos.
type Store interface {
	store.TaskReader
	store.TodoWriter
}

// Hook is notified after a todo mutation has been committed.
type Hook interface {
	TaskChanged(ctx context.Context, change model.TaskChange, now time.Time)
}

// HookFunc adapts a function to Hook.
type HookFunc func(ctx context.Context, change model.TaskChange, now time.Time)

// TaskChanged calls f.
func (f HookFunc) TaskChanged(ctx context.Context, change model.TaskChange, now time.Time) {
	f(ctx, change, now)
}

// Patch is a partial todo update. Nil fields are left unchanged. DueDate
// is reduced to its calendar date in its own location.
type Patch struct {
	Title     *string    `json:"title,omitempty"`
	DueDate   *time.Time `json:"due_date,omitempty"`
	ClearDue  bool       `json:"clear_due,omitempty"`
	Completed *bool      `json:"is_completed,omitempty"`
}

// Service mutates todos and notifies the hook.
type Service struct {
	store Store
	hook  Hook
	now   func() time.Time
}

// New creates a Service. hook may be nil.
func New(s Store, hook Hook) *Service {
	return &Service{store: s, hook: hook, now: time.Now}
}

// Create persists a new todo.
func (s *Service) Create(ctx context.Context, todo model.Todo) (model.Todo, error) {
	created, err := s.store.CreateTodo(ctx, todo.WithCalendarDue())
	if err != nil {
		return model.Todo{}, fmt.Errorf("creating todo: %w", err)
	}
	s.fire(ctx, model.TaskChange{Task: created})
	return created, nil
}

// Update applies patch to the todo owned by userID.
func (s *Service) Update(ctx context.Context, userID, id string, patch Patch) (model.Todo, error) {
	existing, err := s.owned(ctx, userID, id)
	if err != nil {
		return model.Todo{}, err
	}

	previous := *existing
	updated := *existing
	if patch.Title != nil {
		updated.Title = *patch.Title
	}
	if patch.ClearDue {
		updated.DueDate = nil
	} else if patch.DueDate != nil {
		updated.DueDate = model.CalendarDatePtr(patch.DueDate)
	}
	if patch.Completed != nil {
		updated.Completed = *patch.Completed
	}

	if err := s.store.UpdateTodo(ctx, updated); err != nil {
		return model.Todo{}, fmt.Errorf("updating todo: %w", err)
	}
	s.fire(ctx, model.TaskChange{Task: updated, Previous: &previous})
	return updated, nil
}

// Complete marks the todo done, or reopens it when done is false.
func (s *Service) Complete(ctx context.Context, userID, id string, done bool) (model.Todo, error) {
	return s.Update(ctx, userID, id, Patch{Completed: &done})
}

// Delete removes the todo owned by userID.
func (s *Service) Delete(ctx context.Context, userID, id string) error {
	existing, err := s.owned(ctx, userID, id)
	if err != nil {
		return err
	}
	if err := s.store.DeleteTodo(ctx, id); err != nil {
		return fmt.Errorf("deleting todo: %w", err)
	}
	s.fire(ctx, model.TaskChange{Task: *existing, Previous: existing, Deleted: true})
	return nil
}

// List returns the user's todos, ordered by due date.
func (s *Service) List(ctx context.Context, userID string, filter store.TodoFilter) ([]model.Todo, error) {
	filter.UserID = &userID
	todos, err := s.store.GetTodos(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("listing todos: %w", err)
	}
	return todos, nil
}

func (s *Service) owned(ctx context.Context, userID, id string) (*model.Todo, error) {
	todo, err := s.store.GetTodoByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if todo.UserID != userID {
		return nil, fmt.Errorf("todo %s: %w", id, model.ErrNotFound)
	}
	return todo, nil
}

func (s *Service) fire(ctx context.Context, change model.TaskChange) {
	if s.hook != nil {
		s.hook.TaskChanged(ctx, change, s.now())
	}
}
