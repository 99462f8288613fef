// Package reconcile runs the periodic sweep that converges every user's
// reminders with the current task data, independent of task mutations.
package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nhle/task-reminders/internal/lifecycle"
	"github.com/nhle/task-reminders/internal/model"
	"github.com/nhle/task-reminders/internal/store"
)

// defaultBatchTimeout bounds the per-user batch reads of a sweep.
const defaultBatchTimeout = 10 * time.Second

// Store is what a sweep reads tasks from and writes reminders to.
type Store interface {
	store.TaskReader
	lifecycle.Store
}

// Report summarizes one sweep.
type Report struct {
	StartedAt  time.Time     `json:"started_at"`
	Duration   time.Duration `json:"duration"`
	Users      int           `json:"users"`
	Tasks      int           `json:"tasks"`
	Created    int           `json:"created"`
	Updated    int           `json:"updated"`
	Superseded int           `json:"superseded"`
	Stale      int           `json:"stale"`
	Duplicates int           `json:"duplicates"`
	Muted      int           `json:"muted"`
	Invalid    int           `json:"invalid"`
	Failed     int           `json:"failed"`
}

// Writes returns the number of rows the sweep changed.
func (r Report) Writes() int {
	return r.Created + r.Updated + r.Superseded + r.Stale + r.Duplicates
}

// Sweeper reconciles every eligible task in one pass.
type Sweeper struct {
	store        Store
	manager      *lifecycle.Manager
	logger       *slog.Logger
	batchTimeout time.Duration
}

// NewSweeper creates a Sweeper. A nil logger uses slog.Default.
func NewSweeper(s Store, m *lifecycle.Manager, logger *slog.Logger) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		store:        s,
		manager:      m,
		logger:       logger,
		batchTimeout: defaultBatchTimeout,
	}
}

// Sweep reconciles every eligible task as of now, then dismisses stale
// and duplicate rows. Failures for one user or task are logged and
// counted; only failing to load the task list aborts the sweep.
func (w *Sweeper) Sweep(ctx context.Context, now time.Time) (Report, error) {
	report := Report{StartedAt: now}
	started := time.Now()

	lctx, cancel := context.WithTimeout(ctx, w.batchTimeout)
	todos, err := w.store.EligibleTodos(lctx)
	cancel()
	if err != nil {
		return report, fmt.Errorf("loading eligible tasks: %w", err)
	}

	byUser := make(map[string][]model.Todo)
	var users []string
	eligible := make(map[taskKey]bool, len(todos))
	for _, t := range todos {
		if _, ok := byUser[t.UserID]; !ok {
			users = append(users, t.UserID)
		}
		byUser[t.UserID] = append(byUser[t.UserID], t)
		eligible[taskKey{t.UserID, t.ID}] = true
	}
	report.Users = len(users)
	report.Tasks = len(todos)

	for _, userID := range users {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		w.sweepUser(ctx, userID, byUser[userID], now, &report)
	}

	stale, err := w.dismissStale(ctx, eligible)
	if err != nil {
		w.logger.Warn("stale pass failed", "error", err)
		report.Failed++
	}
	report.Stale = stale

	dups, err := w.Dedup(ctx)
	if err != nil {
		w.logger.Warn("dedup pass failed", "error", err)
		report.Failed++
	}
	report.Duplicates = dups

	report.Duration = time.Since(started)
	w.logger.Info("sweep finished",
		"users", report.Users,
		"tasks", report.Tasks,
		"created", report.Created,
		"updated", report.Updated,
		"superseded", report.Superseded,
		"stale", report.Stale,
		"duplicates", report.Duplicates,
		"failed", report.Failed,
		"duration", report.Duration,
	)
	return report, nil
}

// sweepUser reconciles one user's tasks against a single batch read of
// the user's active notifications and mute preferences.
func (w *Sweeper) sweepUser(ctx context.Context, userID string, todos []model.Todo, now time.Time, report *Report) {
	log := w.logger.With("user_id", userID)

	bctx, cancel := context.WithTimeout(ctx, w.batchTimeout)
	existing, err := w.store.ActiveForUser(bctx, userID)
	if err == nil {
		var muted map[string]bool
		muted, err = w.store.MutedTasks(bctx, userID)
		cancel()
		if err == nil {
			w.sweepTasks(ctx, log, todos, existing, muted, now, report)
			return
		}
	} else {
		cancel()
	}

	log.Warn("skipping user for this sweep", "tasks", len(todos), "error", err)
	report.Failed += len(todos)
}

func (w *Sweeper) sweepTasks(
	ctx context.Context,
	log *slog.Logger,
	todos []model.Todo,
	existing []model.Notification,
	muted map[string]bool,
	now time.Time,
	report *Report,
) {
	byTask := make(map[string][]model.Notification)
	for _, n := range existing {
		byTask[n.TaskID] = append(byTask[n.TaskID], n)
	}

	for _, t := range todos {
		out, err := w.manager.Reconcile(ctx, t, byTask[t.ID], muted[t.ID], now)
		switch {
		case err == nil:
		case model.IsValidation(err):
			log.Warn("skipping invalid task", "task_id", t.ID, "error", err)
			report.Invalid++
		default:
			log.Warn("reconciling task", "task_id", t.ID, "error", err)
			report.Failed++
		}
		report.Created += out.Created
		report.Updated += out.Updated
		report.Superseded += out.Dismissed
		if out.Skipped == "muted" {
			report.Muted++
		}
	}
}

// dismissStale dismisses active rows whose task is no longer eligible:
// completed, deleted, or without a due date, with the reactive path
// having missed the change.
func (w *Sweeper) dismissStale(ctx context.Context, eligible map[taskKey]bool) (int, error) {
	cctx, cancel := context.WithTimeout(ctx, w.batchTimeout)
	defer cancel()

	active, err := w.store.AllActive(cctx)
	if err != nil {
		return 0, fmt.Errorf("loading active notifications: %w", err)
	}

	var ids []string
	for _, n := range active {
		if !eligible[taskKey{n.UserID, n.TaskID}] {
			ids = append(ids, n.ID)
		}
	}
	if len(ids) == 0 {
		return 0, nil
	}

	count, err := w.store.DismissIDs(cctx, ids, model.ReasonStale)
	if err != nil {
		return 0, fmt.Errorf("dismissing stale notifications: %w", err)
	}
	return count, nil
}

type taskKey struct {
	userID string
	taskID string
}
