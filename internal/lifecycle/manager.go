// Package lifecycle decides, for one task at a time, which reminder rows
// should exist and applies the difference to the notification store.
package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nhle/task-reminders/internal/model"
	"github.com/nhle/task-reminders/internal/store"
	"github.com/nhle/task-reminders/internal/urgency"
)

// defaultStoreTimeout bounds each individual store call.
const defaultStoreTimeout = 5 * time.Second

// Store is the persistence the manager writes through.
type Store interface {
	store.MuteStore
	store.NotificationStore
}

// Outcome counts the writes one lifecycle step performed.
type Outcome struct {
	Created   int
	Updated   int
	Dismissed int
	Deleted   int

	// Skipped names why nothing was created when a tier matched
	// ("muted", "donotrecreate"), or why the step was a no-op.
	Skipped string
}

// Writes returns the total number of rows changed.
func (o Outcome) Writes() int {
	return o.Created + o.Updated + o.Dismissed + o.Deleted
}

// Add accumulates other into o.
func (o *Outcome) Add(other Outcome) {
	o.Created += other.Created
	o.Updated += other.Updated
	o.Dismissed += other.Dismissed
	o.Deleted += other.Deleted
}

// Manager orchestrates one task's notification set.
type Manager struct {
	store      Store
	classifier urgency.Classifier
	logger     *slog.Logger
	timeout    time.Duration
}

// Option configures a Manager.
type Option func(*Manager)

// WithClassifier overrides the default classifier.
func WithClassifier(c urgency.Classifier) Option {
	return func(m *Manager) { m.classifier = c }
}

// WithLogger sets the logger used for skipped and failed steps.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithStoreTimeout bounds every store call made by the manager.
func WithStoreTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.timeout = d
		}
	}
}

// New creates a Manager writing through s.
func New(s Store, opts ...Option) *Manager {
	m := &Manager{
		store:      s,
		classifier: urgency.Default(),
		logger:     slog.Default(),
		timeout:    defaultStoreTimeout,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Classifier returns the classifier the manager uses.
func (m *Manager) Classifier() urgency.Classifier { return m.classifier }

// TaskChanged runs the reactive path for a task mutation. Failures are
// logged and dropped: reminders are best-effort relative to the task
// itself and the next sweep corrects whatever was missed.
func (m *Manager) TaskChanged(ctx context.Context, change model.TaskChange, now time.Time) {
	out, err := m.Apply(ctx, change, now)
	log := m.logger.With("task_id", change.Task.ID, "user_id", change.Task.UserID)
	switch {
	case err == nil:
		if out.Writes() > 0 {
			log.Debug("reminders updated for task change",
				"created", out.Created, "dismissed", out.Dismissed, "deleted", out.Deleted)
		}
	case model.IsValidation(err):
		log.Warn("skipping task change with invalid task", "error", err)
	case model.IsTransient(err):
		log.Warn("store unavailable, reminder change deferred to next sweep", "error", err)
	default:
		log.Error("applying task change", "error", err)
	}
}

// Apply is the reactive path. It runs synchronously with the mutation and
// checks, in order:
//
//   - deleted task: hard-delete every row for it
//   - completed: dismiss all active rows, even when the due date was
//     cleared in the same mutation
//   - no due date: hard-delete every row for it
//   - due date, title or completion changed, or first sighting: drop the
//     active rows and create the currently classified tier, if any
//   - otherwise: no-op
//
// Only the current tier is ever created here.
func (m *Manager) Apply(ctx context.Context, change model.TaskChange, now time.Time) (Outcome, error) {
	change = change.WithCalendarDue()
	task := change.Task
	if err := task.Validate(); err != nil {
		return Outcome{}, err
	}

	switch {
	case change.Deleted:
		return m.deleteAll(ctx, task)

	case task.Completed:
		cctx, cancel := m.withTimeout(ctx)
		defer cancel()
		n, err := m.store.Dismiss(cctx, task.UserID, task.ID, nil, model.ReasonCompleted, false)
		if err != nil {
			return Outcome{}, fmt.Errorf("dismissing reminders for completed task %s: %w", task.ID, err)
		}
		return Outcome{Dismissed: n}, nil

	case task.DueDate == nil:
		return m.deleteAll(ctx, task)

	case !change.DueDateChanged() && !change.TitleChanged() && !reopened(change):
		return Outcome{Skipped: "unchanged"}, nil
	}

	cctx, cancel := m.withTimeout(ctx)
	deleted, err := m.store.DeleteActive(cctx, task.UserID, task.ID)
	cancel()
	if err != nil {
		return Outcome{}, fmt.Errorf("resetting reminders for task %s: %w", task.ID, err)
	}

	out, err := m.create(ctx, task, now, nil)
	out.Deleted += deleted
	return out, err
}

func (m *Manager) deleteAll(ctx context.Context, task model.Todo) (Outcome, error) {
	cctx, cancel := m.withTimeout(ctx)
	defer cancel()
	n, err := m.store.DeleteAll(cctx, task.UserID, task.ID)
	if err != nil {
		return Outcome{}, fmt.Errorf("clearing reminders for task %s: %w", task.ID, err)
	}
	return Outcome{Deleted: n}, nil
}

// Reconcile is one task's step of the sweep. existing holds the user's
// active notifications (rows for other tasks are ignored) and muted the
// task's mute preference, both fetched by the caller in one batch.
//
// Active rows of a tier other than the classified one are dismissed. A
// row of the classified tier is left alone when its content is current
// and updated in place otherwise. When none exists one is created unless
// the task is muted or that tier carries a do-not-recreate marker. When
// the task classifies to no tier, existing rows are left untouched.
func (m *Manager) Reconcile(
	ctx context.Context,
	task model.Todo,
	existing []model.Notification,
	muted bool,
	now time.Time,
) (Outcome, error) {
	task = task.WithCalendarDue()
	if err := task.Validate(); err != nil {
		return Outcome{}, err
	}
	if !task.Eligible() {
		return Outcome{Skipped: "ineligible"}, nil
	}

	c, ok := m.classifier.Classify(*task.DueDate, now)
	if !ok {
		return Outcome{Skipped: "no tier"}, nil
	}
	desired := desiredNotification(task, c)

	var (
		out     Outcome
		current *model.Notification
		other   []string
	)
	for i := range existing {
		n := existing[i]
		if n.TaskID != task.ID || n.UserID != task.UserID || n.Dismissed {
			continue
		}
		if n.Tier != c.Tier {
			other = append(other, n.ID)
			continue
		}
		if current == nil || store.Newer(n, *current) {
			current = &existing[i]
		}
	}

	if len(other) > 0 {
		cctx, cancel := m.withTimeout(ctx)
		n, err := m.store.DismissIDs(cctx, other, model.ReasonSuperseded)
		cancel()
		if err != nil {
			return out, fmt.Errorf("dismissing superseded reminders for task %s: %w", task.ID, err)
		}
		out.Dismissed += n
	}

	if current != nil {
		if current.SameContent(desired) {
			return out, nil
		}
		cctx, cancel := m.withTimeout(ctx)
		_, wrote, err := m.store.Upsert(cctx, desired)
		cancel()
		if err != nil {
			return out, fmt.Errorf("updating %s reminder for task %s: %w", c.Tier, task.ID, err)
		}
		if wrote {
			out.Updated++
		}
		return out, nil
	}

	created, err := m.create(ctx, task, now, &muted)
	out.Add(created)
	out.Skipped = created.Skipped
	return out, err
}

// create classifies the task and inserts the reminder unless the task is
// muted or the tier is marked do-not-recreate. muted, when non-nil, is a
// preference the caller already fetched.
func (m *Manager) create(ctx context.Context, task model.Todo, now time.Time, muted *bool) (Outcome, error) {
	c, ok := m.classifier.Classify(*task.DueDate, now)
	if !ok {
		return Outcome{Skipped: "no tier"}, nil
	}

	if muted == nil {
		cctx, cancel := m.withTimeout(ctx)
		isMuted, err := m.store.IsMuted(cctx, task.UserID, task.ID)
		cancel()
		if err != nil {
			return Outcome{}, fmt.Errorf("reading mute preference for task %s: %w", task.ID, err)
		}
		muted = &isMuted
	}
	if *muted {
		return Outcome{Skipped: "muted"}, nil
	}

	cctx, cancel := m.withTimeout(ctx)
	marked, err := m.store.HasDoNotRecreate(cctx, task.UserID, task.ID, c.Tier)
	cancel()
	if err != nil {
		return Outcome{}, fmt.Errorf("reading do-not-recreate marker for task %s: %w", task.ID, err)
	}
	if marked {
		return Outcome{Skipped: "donotrecreate"}, nil
	}

	cctx, cancel = m.withTimeout(ctx)
	_, wrote, err := m.store.Upsert(cctx, desiredNotification(task, c))
	cancel()
	if err != nil {
		return Outcome{}, fmt.Errorf("creating %s reminder for task %s: %w", c.Tier, task.ID, err)
	}
	if !wrote {
		return Outcome{}, nil
	}
	return Outcome{Created: 1}, nil
}

func (m *Manager) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, m.timeout)
}

// desiredNotification is the row a task should carry for classification c.
func desiredNotification(task model.Todo, c urgency.Classification) model.Notification {
	params := c.Params
	params.TaskTitle = task.Title
	return model.Notification{
		UserID:  task.UserID,
		TaskID:  task.ID,
		Tier:    c.Tier,
		Title:   c.TitleKey,
		Message: c.MessageKey,
		Params:  params,
		DueDate: task.DueDate,
		Origin:  model.OriginTag{Tier: c.Tier, TaskID: task.ID},
	}
}

// reopened reports whether a previously completed task became incomplete.
func reopened(change model.TaskChange) bool {
	return change.Previous != nil && change.Previous.Completed && !change.Task.Completed
}
