package tasks_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/nhle/task-reminders/internal/lifecycle"
	"github.com/nhle/task-reminders/internal/model"
	"github.com/nhle/task-reminders/internal/tasks"
	"github.com/nhle/task-reminders/tests/testutil"
)

// recorder captures every change the service fires.
type recorder struct {
	changes []model.TaskChange
}

func (r *recorder) TaskChanged(_ context.Context, c model.TaskChange, _ time.Time) {
	r.changes = append(r.changes, c)
}

func TestServiceFiresChanges(t *testing.T) {
	s := testutil.NewTestStore(t)
	rec := &recorder{}
	svc := tasks.New(s, rec)
	ctx := context.Background()

	todo, err := svc.Create(ctx, model.Todo{UserID: "u1", Title: "draft", DueDate: testutil.DatePtr(2024, 1, 12)})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	title := "final"
	if _, err := svc.Update(ctx, "u1", todo.ID, tasks.Patch{Title: &title}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if _, err := svc.Complete(ctx, "u1", todo.ID, true); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if err := svc.Delete(ctx, "u1", todo.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	if len(rec.changes) != 4 {
		t.Fatalf("fired %d changes, want 4", len(rec.changes))
	}
	if rec.changes[0].Previous != nil {
		t.Error("create should have no previous state")
	}
	if !rec.changes[1].TitleChanged() || rec.changes[1].DueDateChanged() {
		t.Error("rename should only change the title")
	}
	if !rec.changes[2].Task.Completed || rec.changes[2].Previous.Completed {
		t.Error("complete should flip is_completed")
	}
	if !rec.changes[3].Deleted {
		t.Error("delete should be flagged")
	}
}

func TestUpdateRejectsForeignUser(t *testing.T) {
	s := testutil.NewTestStore(t)
	svc := tasks.New(s, nil)
	ctx := context.Background()

	todo, err := svc.Create(ctx, model.Todo{UserID: "u1", Title: "mine"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	done := true
	_, err = svc.Update(ctx, "u2", todo.ID, tasks.Patch{Completed: &done})
	if !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestServiceDrivesReminders(t *testing.T) {
	s := testutil.NewTestStore(t)
	m := lifecycle.New(s, lifecycle.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	svc := tasks.New(s, m)
	ctx := context.Background()

	// A due date far in the past always classifies as overdue.
	todo, err := svc.Create(ctx, model.Todo{UserID: "u1", Title: "taxes", DueDate: testutil.DatePtr(2020, 4, 15)})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	active, _ := s.FindActive(ctx, "u1", todo.ID)
	if len(active) != 1 || active[0].Tier != model.TierDanger {
		t.Fatalf("expected one danger reminder, got %+v", active)
	}

	if _, err := svc.Update(ctx, "u1", todo.ID, tasks.Patch{ClearDue: true}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if n, _ := s.DeleteAll(ctx, "u1", todo.ID); n != 0 {
		t.Errorf("clearing the due date should hard-delete reminders, %d remained", n)
	}
}
