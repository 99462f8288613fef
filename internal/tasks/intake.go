package tasks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nhle/task-reminders/internal/lifecycle"
	"github.com/nhle/task-reminders/internal/model"
	"github.com/nhle/task-reminders/internal/store"
)

// ErrNotRecorded is returned when a reported change could not be written
// to the read model. The sender should retry: until the task is recorded
// the sweep cannot see it.
var ErrNotRecorded = errors.New("task change not recorded")

// IntakeStore is the read model an Intake keeps current.
type IntakeStore interface {
	store.TaskReader
	store.TodoRecorder
}

// Applier runs the reactive path for a change. *lifecycle.Manager
// implements it.
type Applier interface {
	Apply(ctx context.Context, change model.TaskChange, now time.Time) (lifecycle.Outcome, error)
}

// Intake accepts task changes from an external task subsystem. It records
// each task in the read model the sweep reconciles from, then runs the
// reactive path.
type Intake struct {
	store   IntakeStore
	applier Applier
}

// NewIntake creates an Intake writing to s and applying through a.
func NewIntake(s IntakeStore, a Applier) *Intake {
	return &Intake{store: s, applier: a}
}

// Apply records change and runs the reactive path for it. When the sender
// omits Previous, the recorded copy stands in for it so repeated reports
// of an unchanged task are no-ops.
func (in *Intake) Apply(ctx context.Context, change model.TaskChange, now time.Time) (lifecycle.Outcome, error) {
	change = change.WithCalendarDue()
	task := change.Task
	if err := task.Validate(); err != nil {
		return lifecycle.Outcome{}, err
	}

	if change.Deleted {
		err := in.store.DeleteTodo(ctx, task.ID)
		if err != nil && !errors.Is(err, model.ErrNotFound) {
			return lifecycle.Outcome{}, fmt.Errorf("%w: %w", ErrNotRecorded, err)
		}
		return in.applier.Apply(ctx, change, now)
	}

	if change.Previous == nil {
		prev, err := in.store.GetTodoByID(ctx, task.ID)
		switch {
		case err == nil:
			change.Previous = prev
		case errors.Is(err, model.ErrNotFound):
		default:
			return lifecycle.Outcome{}, fmt.Errorf("%w: %w", ErrNotRecorded, err)
		}
	}

	if err := in.store.SaveTodo(ctx, task); err != nil {
		return lifecycle.Outcome{}, fmt.Errorf("%w: %w", ErrNotRecorded, err)
	}
	return in.applier.Apply(ctx, change, now)
}
