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
	"github.com/nhle/task-reminders/internal/reconcile"
	"github.com/nhle/task-reminders/internal/store"
	"github.com/nhle/task-reminders/internal/tasks"
	"github.com/nhle/task-reminders/tests/testutil"
)

var intakeNow = time.Date(2024, 1, 10, 8, 0, 0, 0, time.UTC)

func newIntake(t *testing.T) (*tasks.Intake, *store.SQLiteStore, *lifecycle.Manager) {
	t.Helper()
	s := testutil.NewTestStore(t)
	m := lifecycle.New(s, lifecycle.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	return tasks.NewIntake(s, m), s, m
}

func externalTask() model.Todo {
	return model.Todo{ID: "ext-1", UserID: "u1", Title: "ship release", DueDate: testutil.DatePtr(2024, 1, 10)}
}

func TestIntakeReminderSurvivesSweep(t *testing.T) {
	in, s, m := newIntake(t)
	ctx := context.Background()

	out, err := in.Apply(ctx, model.TaskChange{Task: externalTask()}, intakeNow)
	if err != nil || out.Created != 1 {
		t.Fatalf("Apply = %+v, %v", out, err)
	}

	report, err := reconcile.NewSweeper(s, m, slog.New(slog.NewTextHandler(io.Discard, nil))).Sweep(ctx, intakeNow)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if report.Stale != 0 || report.Writes() != 0 {
		t.Errorf("sweep touched the reported task: %+v", report)
	}

	active, err := s.FindActive(ctx, "u1", "ext-1")
	if err != nil {
		t.Fatalf("FindActive: %v", err)
	}
	if len(active) != 1 || active[0].Tier != model.TierDanger {
		t.Errorf("expected one active danger reminder, got %+v", active)
	}
}

func TestIntakeSkipsRepeatedReport(t *testing.T) {
	in, _, _ := newIntake(t)
	ctx := context.Background()

	if _, err := in.Apply(ctx, model.TaskChange{Task: externalTask()}, intakeNow); err != nil {
		t.Fatalf("first Apply: %v", err)
	}
	out, err := in.Apply(ctx, model.TaskChange{Task: externalTask()}, intakeNow)
	if err != nil {
		t.Fatalf("second Apply: %v", err)
	}
	if out.Writes() != 0 || out.Skipped != "unchanged" {
		t.Errorf("repeated report = %+v, want an unchanged skip", out)
	}
}

func TestIntakeDeleteForgetsTask(t *testing.T) {
	in, s, _ := newIntake(t)
	ctx := context.Background()

	if _, err := in.Apply(ctx, model.TaskChange{Task: externalTask()}, intakeNow); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	out, err := in.Apply(ctx, model.TaskChange{Task: externalTask(), Deleted: true}, intakeNow)
	if err != nil || out.Deleted != 1 {
		t.Fatalf("delete Apply = %+v, %v", out, err)
	}

	if _, err := s.GetTodoByID(ctx, "ext-1"); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("expected the task to be gone, got %v", err)
	}
	if active, _ := s.FindActive(ctx, "u1", "ext-1"); len(active) != 0 {
		t.Errorf("expected no reminders, got %+v", active)
	}

	// Deleting a task the read model never saw still succeeds.
	other := externalTask()
	other.ID = "ext-2"
	if _, err := in.Apply(ctx, model.TaskChange{Task: other, Deleted: true}, intakeNow); err != nil {
		t.Errorf("deleting an unknown task: %v", err)
	}
}

// unsavable fails every write to the todos table.
type unsavable struct {
	*store.SQLiteStore
}

func (unsavable) SaveTodo(context.Context, model.Todo) error {
	return model.Transient("save todo", errors.New("database is locked"))
}

func TestIntakeReportsUnrecordedChange(t *testing.T) {
	_, s, m := newIntake(t)
	in := tasks.NewIntake(unsavable{s}, m)
	ctx := context.Background()

	_, err := in.Apply(ctx, model.TaskChange{Task: externalTask()}, intakeNow)
	if !errors.Is(err, tasks.ErrNotRecorded) || !model.IsTransient(err) {
		t.Fatalf("expected a transient ErrNotRecorded, got %v", err)
	}
	if active, _ := s.FindActive(ctx, "u1", "ext-1"); len(active) != 0 {
		t.Errorf("reminders were created for an unrecorded task: %+v", active)
	}
}

func TestIntakeRejectsInvalidTask(t *testing.T) {
	in, _, _ := newIntake(t)

	_, err := in.Apply(context.Background(), model.TaskChange{Task: model.Todo{ID: "ext-1"}}, intakeNow)
	if !model.IsValidation(err) {
		t.Fatalf("expected a validation error, got %v", err)
	}
}
