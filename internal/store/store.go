package store

import (
	"context"

	"github.com/nhle/task-reminders/internal/model"
)

// TodoFilter controls filtering and pagination for todo queries.
type TodoFilter struct {
	UserID    *string
	Completed *bool
	HasDue    *bool   // true: only todos with a due date
	DueDate   *string // "today", "upcoming" (next 7 days), "overdue", or nil
	Limit     int
	Offset    int
}

// TaskReader is the engine's read-only view of the task subsystem.
type TaskReader interface {
	// EligibleTodos returns every incomplete todo that has a due date.
	EligibleTodos(ctx context.Context) ([]model.Todo, error)
	GetTodoByID(ctx context.Context, id string) (*model.Todo, error)
}

// TodoRecorder keeps the engine's read model in step with tasks reported
// by an external task subsystem.
type TodoRecorder interface {
	// SaveTodo inserts or replaces the todo with the same ID.
	SaveTodo(ctx context.Context, todo model.Todo) error
	DeleteTodo(ctx context.Context, id string) error
}

// TodoWriter is implemented by stores that also own the todo table.
type TodoWriter interface {
	TodoRecorder
	CreateTodo(ctx context.Context, todo model.Todo) (model.Todo, error)
	UpdateTodo(ctx context.Context, todo model.Todo) error
	GetTodos(ctx context.Context, filter TodoFilter) ([]model.Todo, error)
}

// MuteStore persists per-(user, task) reminder opt-outs.
type MuteStore interface {
	IsMuted(ctx context.Context, userID, taskID string) (bool, error)
	SetMuted(ctx context.Context, userID, taskID string, muted bool) error
	// MutedTasks returns the ids of every task the user has muted.
	MutedTasks(ctx context.Context, userID string) (map[string]bool, error)
}

// NotificationStore persists reminder rows. It takes no locks: two
// concurrent Upserts for the same (user, task, tier) may both insert,
// and the dedup pass converges them later.
type NotificationStore interface {
	// FindActive returns the non-dismissed notifications for a task.
	FindActive(ctx context.Context, userID, taskID string) ([]model.Notification, error)

	// FindActiveByTier returns the most recently updated active
	// notification for (user, task, tier), or nil if there is none.
	FindActiveByTier(ctx context.Context, userID, taskID string, tier model.Tier) (*model.Notification, error)

	// ActiveForUser returns all of a user's active notifications,
	// newest first.
	ActiveForUser(ctx context.Context, userID string) ([]model.Notification, error)

	// AllActive returns every active notification across users.
	AllActive(ctx context.Context) ([]model.Notification, error)

	// Upsert updates the active (user, task, tier) row in place when one
	// exists and inserts otherwise. The bool reports whether anything was
	// written; an existing row with identical content is left untouched.
	Upsert(ctx context.Context, n model.Notification) (model.Notification, bool, error)

	// Dismiss marks the task's active rows dismissed, restricted to tier
	// when non-nil. doNotRecreate tags each row's origin.
	Dismiss(ctx context.Context, userID, taskID string, tier *model.Tier, reason model.DismissReason, doNotRecreate bool) (int, error)

	// DismissByID dismisses one of the user's active notifications. It
	// returns model.ErrNotFound when the id does not belong to the user or
	// the row is already dismissed, leaving its reason and marker as is.
	DismissByID(ctx context.Context, userID, id string, reason model.DismissReason, doNotRecreate bool) (*model.Notification, error)

	// DismissAll dismisses every active notification of the user.
	DismissAll(ctx context.Context, userID string, reason model.DismissReason, doNotRecreate bool) ([]model.Notification, error)

	// DismissIDs dismisses the given rows regardless of owner.
	DismissIDs(ctx context.Context, ids []string, reason model.DismissReason) (int, error)

	// HasDoNotRecreate reports whether a dismissed row for the tier
	// carries the do-not-recreate marker.
	HasDoNotRecreate(ctx context.Context, userID, taskID string, tier model.Tier) (bool, error)

	// DeleteActive hard-deletes the task's active rows, keeping dismissed
	// history (and its markers).
	DeleteActive(ctx context.Context, userID, taskID string) (int, error)

	// DeleteAll hard-deletes every row for the task.
	DeleteAll(ctx context.Context, userID, taskID string) (int, error)

	// MarkRead sets the read flag on one notification.
	MarkRead(ctx context.Context, userID, id string, read bool) error

	// MarkAllRead sets the read flag on all of a user's active rows.
	MarkAllRead(ctx context.Context, userID string, read bool) (int, error)

	// PurgeUser hard-deletes all of a user's notifications.
	PurgeUser(ctx context.Context, userID string) (int, error)
}

// Store is everything the reminder engine needs from persistence.
type Store interface {
	TaskReader
	MuteStore
	NotificationStore
	Close() error
}
