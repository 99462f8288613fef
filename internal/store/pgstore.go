package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nhle/task-reminders/internal/model"
)

// PgStore is a PostgreSQL-backed Store.
type PgStore struct {
	pool *pgxpool.Pool
}

var (
	_ Store        = (*PgStore)(nil)
	_ TodoRecorder = (*PgStore)(nil)
)

// NewPgStore connects to dsn and ensures the schema exists.
func NewPgStore(ctx context.Context, dsn string) (*PgStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, pgErr("pinging postgres", err)
	}
	s := &PgStore{pool: pool}
	if err := s.EnsureTables(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the pool.
func (s *PgStore) Close() error {
	s.pool.Close()
	return nil
}

// EnsureTables creates the todos, notifications and mute_preferences tables
// if they don't exist.
func (s *PgStore) EnsureTables(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS todos (
			id           TEXT PRIMARY KEY,
			user_id      TEXT NOT NULL,
			title        TEXT NOT NULL,
			due_date     TIMESTAMPTZ,
			is_completed BOOLEAN NOT NULL DEFAULT FALSE,
			created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_todos_eligible ON todos(user_id) WHERE NOT is_completed AND due_date IS NOT NULL`,
		`CREATE TABLE IF NOT EXISTS notifications (
			id             TEXT PRIMARY KEY,
			user_id        TEXT NOT NULL,
			task_id        TEXT NOT NULL,
			tier           TEXT NOT NULL CHECK (tier IN ('info', 'warning', 'danger')),
			title          TEXT NOT NULL,
			message        TEXT NOT NULL,
			params         TEXT NOT NULL DEFAULT '{}',
			due_date       TIMESTAMPTZ,
			read           BOOLEAN NOT NULL DEFAULT FALSE,
			dismissed      BOOLEAN NOT NULL DEFAULT FALSE,
			dismiss_reason TEXT NOT NULL DEFAULT '',
			origin_tag     TEXT NOT NULL,
			created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_notifications_active ON notifications(user_id, task_id) WHERE NOT dismissed`,
		`CREATE INDEX IF NOT EXISTS idx_notifications_origin ON notifications(user_id, task_id, origin_tag)`,
		`CREATE TABLE IF NOT EXISTS mute_preferences (
			user_id    TEXT NOT NULL,
			task_id    TEXT NOT NULL,
			muted      BOOLEAN NOT NULL DEFAULT FALSE,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (user_id, task_id)
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return pgErr("ensuring schema", err)
		}
	}
	return nil
}

// --- Tasks ---

// EligibleTodos returns every incomplete todo with a due date.
func (s *PgStore) EligibleTodos(ctx context.Context) ([]model.Todo, error) {
	rows, err := s.pool.Query(ctx, "SELECT "+todoColumns+` FROM todos
		WHERE NOT is_completed AND due_date IS NOT NULL
		ORDER BY user_id, due_date, id`)
	if err != nil {
		return nil, pgErr("querying eligible todos", err)
	}
	todos, err := pgx.CollectRows(rows, pgx.RowToStructByName[model.Todo])
	if err != nil {
		return nil, pgErr("scanning todos", err)
	}
	return todos, nil
}

// GetTodoByID retrieves a single todo by ID.
func (s *PgStore) GetTodoByID(ctx context.Context, id string) (*model.Todo, error) {
	rows, err := s.pool.Query(ctx, "SELECT "+todoColumns+" FROM todos WHERE id = $1", id)
	if err != nil {
		return nil, pgErr(fmt.Sprintf("getting todo %s", id), err)
	}
	todo, err := pgx.CollectExactlyOneRow(rows, pgx.RowToStructByName[model.Todo])
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("todo %s: %w", id, model.ErrNotFound)
	}
	if err != nil {
		return nil, pgErr(fmt.Sprintf("scanning todo %s", id), err)
	}
	return &todo, nil
}

// SaveTodo inserts the todo or replaces the stored copy with the same ID.
func (s *PgStore) SaveTodo(ctx context.Context, todo model.Todo) error {
	now := time.Now().UTC()
	_, err := s.pool.Exec(ctx, `
		INSERT INTO todos (`+todoColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		ON CONFLICT (id) DO UPDATE SET
			user_id = EXCLUDED.user_id,
			title = EXCLUDED.title,
			due_date = EXCLUDED.due_date,
			is_completed = EXCLUDED.is_completed,
			updated_at = EXCLUDED.updated_at`,
		todo.ID, todo.UserID, todo.Title, model.CalendarDatePtr(todo.DueDate), todo.Completed, now,
	)
	if err != nil {
		return pgErr(fmt.Sprintf("saving todo %s", todo.ID), err)
	}
	return nil
}

// DeleteTodo removes a todo by ID.
func (s *PgStore) DeleteTodo(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, "DELETE FROM todos WHERE id = $1", id)
	if err != nil {
		return pgErr(fmt.Sprintf("deleting todo %s", id), err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("todo %s: %w", id, model.ErrNotFound)
	}
	return nil
}

// --- Mute preferences ---

// IsMuted reports whether the user muted reminders for the task.
func (s *PgStore) IsMuted(ctx context.Context, userID, taskID string) (bool, error) {
	var muted bool
	err := s.pool.QueryRow(ctx,
		"SELECT muted FROM mute_preferences WHERE user_id = $1 AND task_id = $2",
		userID, taskID,
	).Scan(&muted)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, pgErr(fmt.Sprintf("reading mute preference %s/%s", userID, taskID), err)
	}
	return muted, nil
}

// SetMuted inserts or updates the mute preference for (user, task).
func (s *PgStore) SetMuted(ctx context.Context, userID, taskID string, muted bool) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO mute_preferences (user_id, task_id, muted, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (user_id, task_id) DO UPDATE SET
			muted = EXCLUDED.muted,
			updated_at = EXCLUDED.updated_at`,
		userID, taskID, muted,
	)
	if err != nil {
		return pgErr(fmt.Sprintf("setting mute preference %s/%s", userID, taskID), err)
	}
	return nil
}

// MutedTasks returns the set of task ids the user has muted.
func (s *PgStore) MutedTasks(ctx context.Context, userID string) (map[string]bool, error) {
	rows, err := s.pool.Query(ctx,
		"SELECT task_id FROM mute_preferences WHERE user_id = $1 AND muted", userID)
	if err != nil {
		return nil, pgErr(fmt.Sprintf("listing muted tasks for %s", userID), err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, pgErr("scanning muted tasks", err)
	}
	muted := make(map[string]bool, len(ids))
	for _, id := range ids {
		muted[id] = true
	}
	return muted, nil
}

// --- Notifications ---

func (s *PgStore) queryNotifications(ctx context.Context, op, query string, args ...any) ([]model.Notification, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, pgErr(op, err)
	}
	stored, err := pgx.CollectRows(rows, pgx.RowToStructByName[notificationRow])
	if err != nil {
		return nil, pgErr(op, err)
	}
	return rowsToModels(stored)
}

// FindActive returns the non-dismissed notifications for a task.
func (s *PgStore) FindActive(ctx context.Context, userID, taskID string) ([]model.Notification, error) {
	return s.queryNotifications(ctx,
		fmt.Sprintf("querying active notifications for task %s", taskID),
		"SELECT "+notificationColumns+` FROM notifications
		WHERE user_id = $1 AND task_id = $2 AND NOT dismissed`,
		userID, taskID,
	)
}

// FindActiveByTier returns the newest active notification for the tier.
func (s *PgStore) FindActiveByTier(ctx context.Context, userID, taskID string, tier model.Tier) (*model.Notification, error) {
	ns, err := s.queryNotifications(ctx,
		fmt.Sprintf("querying %s notification for task %s", tier, taskID),
		"SELECT "+notificationColumns+` FROM notifications
		WHERE user_id = $1 AND task_id = $2 AND tier = $3 AND NOT dismissed`,
		userID, taskID, string(tier),
	)
	if err != nil || len(ns) == 0 {
		return nil, err
	}
	return &ns[0], nil
}

// ActiveForUser returns all of a user's active notifications, newest first.
func (s *PgStore) ActiveForUser(ctx context.Context, userID string) ([]model.Notification, error) {
	return s.queryNotifications(ctx,
		fmt.Sprintf("querying active notifications for user %s", userID),
		"SELECT "+notificationColumns+" FROM notifications WHERE user_id = $1 AND NOT dismissed",
		userID,
	)
}

// AllActive returns every active notification.
func (s *PgStore) AllActive(ctx context.Context) ([]model.Notification, error) {
	return s.queryNotifications(ctx, "querying active notifications",
		"SELECT "+notificationColumns+" FROM notifications WHERE NOT dismissed")
}

// Insert writes n as a new row without looking for an existing one.
func (s *PgStore) Insert(ctx context.Context, n model.Notification) (model.Notification, error) {
	n = prepareInsert(n, newNotificationID)
	params, err := encodeParams(n.Params)
	if err != nil {
		return model.Notification{}, err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO notifications (
			id, user_id, task_id, tier, title, message, params,
			due_date, read, dismissed, dismiss_reason, origin_tag,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		n.ID, n.UserID, n.TaskID, string(n.Tier), n.Title, n.Message, params,
		n.DueDate, n.Read, n.Dismissed, string(n.DismissReason), n.Origin.String(),
		n.CreatedAt, n.UpdatedAt,
	)
	if err != nil {
		return model.Notification{}, pgErr(fmt.Sprintf("inserting notification for task %s", n.TaskID), err)
	}
	return n, nil
}

// Upsert updates the active row for (user, task, tier) in place or
// inserts a new one. The lookup and the write are not atomic.
func (s *PgStore) Upsert(ctx context.Context, n model.Notification) (model.Notification, bool, error) {
	existing, err := s.FindActiveByTier(ctx, n.UserID, n.TaskID, n.Tier)
	if err != nil {
		return model.Notification{}, false, err
	}
	if existing == nil {
		inserted, err := s.Insert(ctx, n)
		return inserted, err == nil, err
	}
	if existing.SameContent(n) {
		return *existing, false, nil
	}

	params, err := encodeParams(n.Params)
	if err != nil {
		return model.Notification{}, false, err
	}
	updatedAt := n.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}
	_, err = s.pool.Exec(ctx, `
		UPDATE notifications SET
			title = $1, message = $2, params = $3, due_date = $4, updated_at = $5
		WHERE id = $6`,
		n.Title, n.Message, params, n.DueDate, updatedAt, existing.ID,
	)
	if err != nil {
		return model.Notification{}, false, pgErr(fmt.Sprintf("updating notification %s", existing.ID), err)
	}
	existing.Title = n.Title
	existing.Message = n.Message
	existing.Params = n.Params
	existing.DueDate = n.DueDate
	existing.UpdatedAt = updatedAt
	return *existing, true, nil
}

// pgOriginTagUpdate is originTagUpdate with a positional placeholder.
const pgOriginTagUpdate = `origin_tag = CASE
	WHEN $3 AND origin_tag NOT LIKE '%-donotrecreate' THEN origin_tag || '-donotrecreate'
	ELSE origin_tag END`

// Dismiss marks a task's active rows dismissed, optionally for one tier.
func (s *PgStore) Dismiss(
	ctx context.Context,
	userID, taskID string,
	tier *model.Tier,
	reason model.DismissReason,
	doNotRecreate bool,
) (int, error) {
	query := `UPDATE notifications SET dismissed = TRUE, dismiss_reason = $1, updated_at = $2, ` +
		pgOriginTagUpdate + `
		WHERE user_id = $4 AND task_id = $5 AND NOT dismissed`
	args := []any{string(reason), time.Now().UTC(), doNotRecreate, userID, taskID}
	if tier != nil {
		query += " AND tier = $6"
		args = append(args, string(*tier))
	}
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return 0, pgErr(fmt.Sprintf("dismissing notifications for task %s", taskID), err)
	}
	return int(tag.RowsAffected()), nil
}

// DismissByID dismisses one notification owned by the user.
func (s *PgStore) DismissByID(
	ctx context.Context,
	userID, id string,
	reason model.DismissReason,
	doNotRecreate bool,
) (*model.Notification, error) {
	ns, err := s.queryNotifications(ctx,
		fmt.Sprintf("dismissing notification %s", id),
		`UPDATE notifications SET dismissed = TRUE, dismiss_reason = $1, updated_at = $2, `+
			pgOriginTagUpdate+`
		WHERE id = $4 AND user_id = $5 AND NOT dismissed
		RETURNING `+notificationColumns,
		string(reason), time.Now().UTC(), doNotRecreate, id, userID,
	)
	if err != nil {
		return nil, err
	}
	if len(ns) == 0 {
		return nil, fmt.Errorf("notification %s: %w", id, model.ErrNotFound)
	}
	return &ns[0], nil
}

// DismissAll dismisses every active notification of the user.
func (s *PgStore) DismissAll(
	ctx context.Context,
	userID string,
	reason model.DismissReason,
	doNotRecreate bool,
) ([]model.Notification, error) {
	return s.queryNotifications(ctx,
		fmt.Sprintf("dismissing notifications for user %s", userID),
		`UPDATE notifications SET dismissed = TRUE, dismiss_reason = $1, updated_at = $2, `+
			pgOriginTagUpdate+`
		WHERE user_id = $4 AND NOT dismissed
		RETURNING `+notificationColumns,
		string(reason), time.Now().UTC(), doNotRecreate, userID,
	)
}

// DismissIDs dismisses the given rows.
func (s *PgStore) DismissIDs(ctx context.Context, ids []string, reason model.DismissReason) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE notifications SET dismissed = TRUE, dismiss_reason = $1, updated_at = $2
		WHERE id = ANY($3) AND NOT dismissed`,
		string(reason), time.Now().UTC(), ids,
	)
	if err != nil {
		return 0, pgErr("dismissing notifications by id", err)
	}
	return int(tag.RowsAffected()), nil
}

// HasDoNotRecreate reports whether a dismissed row for the tier carries
// the do-not-recreate marker.
func (s *PgStore) HasDoNotRecreate(ctx context.Context, userID, taskID string, tier model.Tier) (bool, error) {
	tag := model.OriginTag{Tier: tier, TaskID: taskID, DoNotRecreate: true}
	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM notifications
			WHERE user_id = $1 AND task_id = $2 AND dismissed AND origin_tag = $3
		)`,
		userID, taskID, tag.String(),
	).Scan(&exists)
	if err != nil {
		return false, pgErr(fmt.Sprintf("checking do-not-recreate for task %s", taskID), err)
	}
	return exists, nil
}

// DeleteActive hard-deletes the task's active rows.
func (s *PgStore) DeleteActive(ctx context.Context, userID, taskID string) (int, error) {
	tag, err := s.pool.Exec(ctx,
		"DELETE FROM notifications WHERE user_id = $1 AND task_id = $2 AND NOT dismissed",
		userID, taskID)
	if err != nil {
		return 0, pgErr(fmt.Sprintf("deleting active notifications for task %s", taskID), err)
	}
	return int(tag.RowsAffected()), nil
}

// DeleteAll hard-deletes every row for the task.
func (s *PgStore) DeleteAll(ctx context.Context, userID, taskID string) (int, error) {
	tag, err := s.pool.Exec(ctx,
		"DELETE FROM notifications WHERE user_id = $1 AND task_id = $2",
		userID, taskID)
	if err != nil {
		return 0, pgErr(fmt.Sprintf("deleting notifications for task %s", taskID), err)
	}
	return int(tag.RowsAffected()), nil
}

// MarkRead sets the read flag on one of the user's notifications.
func (s *PgStore) MarkRead(ctx context.Context, userID, id string, read bool) error {
	tag, err := s.pool.Exec(ctx,
		"UPDATE notifications SET read = $1 WHERE id = $2 AND user_id = $3",
		read, id, userID)
	if err != nil {
		return pgErr(fmt.Sprintf("marking notification %s", id), err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("notification %s: %w", id, model.ErrNotFound)
	}
	return nil
}

// MarkAllRead sets the read flag on every active row of the user.
func (s *PgStore) MarkAllRead(ctx context.Context, userID string, read bool) (int, error) {
	tag, err := s.pool.Exec(ctx,
		"UPDATE notifications SET read = $1 WHERE user_id = $2 AND NOT dismissed AND read != $1",
		read, userID)
	if err != nil {
		return 0, pgErr(fmt.Sprintf("marking notifications for user %s", userID), err)
	}
	return int(tag.RowsAffected()), nil
}

// PurgeUser hard-deletes all of the user's notifications.
func (s *PgStore) PurgeUser(ctx context.Context, userID string) (int, error) {
	tag, err := s.pool.Exec(ctx, "DELETE FROM notifications WHERE user_id = $1", userID)
	if err != nil {
		return 0, pgErr(fmt.Sprintf("purging notifications for user %s", userID), err)
	}
	return int(tag.RowsAffected()), nil
}

// pgErr annotates err with op, classifying timeouts and retryable
// connection failures as transient.
func pgErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if pgconn.Timeout(err) || pgconn.SafeToRetry(err) || errors.Is(err, context.DeadlineExceeded) {
		return model.Transient(op, err)
	}
	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return model.Transient(op, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
