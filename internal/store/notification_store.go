package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/nhle/task-reminders/internal/model"
)

// newNotificationID returns a time-ordered UUID.
func newNotificationID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// originTagUpdate appends the do-not-recreate suffix to origin_tag when the
// bound flag is 1 and the tag is not already suffixed.
const originTagUpdate = `origin_tag = CASE
	WHEN ? = 1 AND origin_tag NOT LIKE '%-donotrecreate' THEN origin_tag || '-donotrecreate'
	ELSE origin_tag END`

// selectNotifications runs query and converts the result rows.
func (s *SQLiteStore) selectNotifications(
	ctx context.Context,
	op string,
	query string,
	args ...interface{},
) ([]model.Notification, error) {
	var rows []notificationRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, wrapErr(op, err)
	}
	return rowsToModels(rows)
}

// FindActive returns the non-dismissed notifications for a task.
func (s *SQLiteStore) FindActive(
	ctx context.Context,
	userID, taskID string,
) ([]model.Notification, error) {
	return s.selectNotifications(ctx,
		fmt.Sprintf("querying active notifications for task %s", taskID),
		"SELECT "+notificationColumns+` FROM notifications
		WHERE user_id = ? AND task_id = ? AND dismissed = 0`,
		userID, taskID,
	)
}

// FindActiveByTier returns the newest active notification for the tier.
func (s *SQLiteStore) FindActiveByTier(
	ctx context.Context,
	userID, taskID string,
	tier model.Tier,
) (*model.Notification, error) {
	ns, err := s.selectNotifications(ctx,
		fmt.Sprintf("querying %s notification for task %s", tier, taskID),
		"SELECT "+notificationColumns+` FROM notifications
		WHERE user_id = ? AND task_id = ? AND tier = ? AND dismissed = 0`,
		userID, taskID, string(tier),
	)
	if err != nil || len(ns) == 0 {
		return nil, err
	}
	return &ns[0], nil
}

// ActiveForUser returns all of a user's active notifications, newest first.
func (s *SQLiteStore) ActiveForUser(
	ctx context.Context,
	userID string,
) ([]model.Notification, error) {
	return s.selectNotifications(ctx,
		fmt.Sprintf("querying active notifications for user %s", userID),
		"SELECT "+notificationColumns+` FROM notifications
		WHERE user_id = ? AND dismissed = 0`,
		userID,
	)
}

// AllActive returns every active notification.
func (s *SQLiteStore) AllActive(ctx context.Context) ([]model.Notification, error) {
	return s.selectNotifications(ctx,
		"querying active notifications",
		"SELECT "+notificationColumns+" FROM notifications WHERE dismissed = 0",
	)
}

// Insert writes n as a new row without looking for an existing one.
// Callers that need deduplication use Upsert.
func (s *SQLiteStore) Insert(
	ctx context.Context,
	n model.Notification,
) (model.Notification, error) {
	n = prepareInsert(n, newNotificationID)

	params, err := encodeParams(n.Params)
	if err != nil {
		return model.Notification{}, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO notifications (
			id, user_id, task_id, tier, title, message, params,
			due_date, read, dismissed, dismiss_reason, origin_tag,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		n.ID, n.UserID, n.TaskID, string(n.Tier), n.Title, n.Message, params,
		utcPtr(n.DueDate), boolToInt(n.Read), boolToInt(n.Dismissed),
		string(n.DismissReason), n.Origin.String(),
		n.CreatedAt.UTC(), n.UpdatedAt.UTC(),
	)
	if err != nil {
		return model.Notification{}, wrapErr(fmt.Sprintf("inserting notification for task %s", n.TaskID), err)
	}
	return n, nil
}

// Upsert updates the active row for (user, task, tier) in place or
// inserts a new one. The lookup and the write are not atomic.
func (s *SQLiteStore) Upsert(
	ctx context.Context,
	n model.Notification,
) (model.Notification, bool, error) {
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

	_, err = s.db.ExecContext(ctx, `
		UPDATE notifications SET
			title = ?, message = ?, params = ?, due_date = ?, updated_at = ?
		WHERE id = ?`,
		n.Title, n.Message, params, utcPtr(n.DueDate), updatedAt.UTC(),
		existing.ID,
	)
	if err != nil {
		return model.Notification{}, false, wrapErr(fmt.Sprintf("updating notification %s", existing.ID), err)
	}

	existing.Title = n.Title
	existing.Message = n.Message
	existing.Params = n.Params
	existing.DueDate = n.DueDate
	existing.UpdatedAt = updatedAt
	return *existing, true, nil
}

// Dismiss marks a task's active rows dismissed, optionally for one tier.
func (s *SQLiteStore) Dismiss(
	ctx context.Context,
	userID, taskID string,
	tier *model.Tier,
	reason model.DismissReason,
	doNotRecreate bool,
) (int, error) {
	query := `UPDATE notifications SET dismissed = 1, dismiss_reason = ?, updated_at = ?, ` +
		originTagUpdate + `
		WHERE user_id = ? AND task_id = ? AND dismissed = 0`
	args := []interface{}{
		string(reason), time.Now().UTC(), boolToInt(doNotRecreate), userID, taskID,
	}
	if tier != nil {
		query += " AND tier = ?"
		args = append(args, string(*tier))
	}

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, wrapErr(fmt.Sprintf("dismissing notifications for task %s", taskID), err)
	}
	n, _ := result.RowsAffected()
	return int(n), nil
}

// DismissByID dismisses one active notification owned by the user. An
// already dismissed row is reported as not found and left unchanged.
func (s *SQLiteStore) DismissByID(
	ctx context.Context,
	userID, id string,
	reason model.DismissReason,
	doNotRecreate bool,
) (*model.Notification, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE notifications SET dismissed = 1, dismiss_reason = ?, updated_at = ?, `+
			originTagUpdate+`
		WHERE id = ? AND user_id = ? AND dismissed = 0`,
		string(reason), time.Now().UTC(), boolToInt(doNotRecreate), id, userID,
	)
	if err != nil {
		return nil, wrapErr(fmt.Sprintf("dismissing notification %s", id), err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return nil, fmt.Errorf("notification %s: %w", id, model.ErrNotFound)
	}

	ns, err := s.selectNotifications(ctx,
		fmt.Sprintf("reading notification %s", id),
		"SELECT "+notificationColumns+" FROM notifications WHERE id = ?", id,
	)
	if err != nil {
		return nil, err
	}
	if len(ns) == 0 {
		return nil, fmt.Errorf("notification %s: %w", id, model.ErrNotFound)
	}
	return &ns[0], nil
}

// DismissAll dismisses every active notification of the user and returns
// the rows it dismissed.
func (s *SQLiteStore) DismissAll(
	ctx context.Context,
	userID string,
	reason model.DismissReason,
	doNotRecreate bool,
) ([]model.Notification, error) {
	active, err := s.ActiveForUser(ctx, userID)
	if err != nil || len(active) == 0 {
		return nil, err
	}

	ids := make([]string, len(active))
	for i, n := range active {
		ids[i] = n.ID
	}
	query, args, err := sqlx.In(
		`UPDATE notifications SET dismissed = 1, dismiss_reason = ?, updated_at = ?, `+
			originTagUpdate+`
		WHERE id IN (?) AND dismissed = 0`,
		string(reason), time.Now().UTC(), boolToInt(doNotRecreate), ids,
	)
	if err != nil {
		return nil, fmt.Errorf("building dismiss-all query: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, s.db.Rebind(query), args...); err != nil {
		return nil, wrapErr(fmt.Sprintf("dismissing notifications for user %s", userID), err)
	}

	for i := range active {
		active[i].Dismissed = true
		active[i].DismissReason = reason
		active[i].Origin.DoNotRecreate = active[i].Origin.DoNotRecreate || doNotRecreate
	}
	return active, nil
}

// DismissIDs dismisses the given rows.
func (s *SQLiteStore) DismissIDs(
	ctx context.Context,
	ids []string,
	reason model.DismissReason,
) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	query, args, err := sqlx.In(
		`UPDATE notifications SET dismissed = 1, dismiss_reason = ?, updated_at = ?
		WHERE id IN (?) AND dismissed = 0`,
		string(reason), time.Now().UTC(), ids,
	)
	if err != nil {
		return 0, fmt.Errorf("building dismiss query: %w", err)
	}
	result, err := s.db.ExecContext(ctx, s.db.Rebind(query), args...)
	if err != nil {
		return 0, wrapErr("dismissing notifications by id", err)
	}
	n, _ := result.RowsAffected()
	return int(n), nil
}

// HasDoNotRecreate reports whether a dismissed row for the tier carries
// the do-not-recreate marker.
func (s *SQLiteStore) HasDoNotRecreate(
	ctx context.Context,
	userID, taskID string,
	tier model.Tier,
) (bool, error) {
	tag := model.OriginTag{Tier: tier, TaskID: taskID, DoNotRecreate: true}
	var count int
	err := s.db.GetContext(ctx, &count, `
		SELECT COUNT(*) FROM notifications
		WHERE user_id = ? AND task_id = ? AND dismissed = 1 AND origin_tag = ?`,
		userID, taskID, tag.String(),
	)
	if err != nil {
		return false, wrapErr(fmt.Sprintf("checking do-not-recreate for task %s", taskID), err)
	}
	return count > 0, nil
}

// DeleteActive hard-deletes the task's active rows.
func (s *SQLiteStore) DeleteActive(ctx context.Context, userID, taskID string) (int, error) {
	result, err := s.db.ExecContext(ctx,
		"DELETE FROM notifications WHERE user_id = ? AND task_id = ? AND dismissed = 0",
		userID, taskID,
	)
	if err != nil {
		return 0, wrapErr(fmt.Sprintf("deleting active notifications for task %s", taskID), err)
	}
	n, _ := result.RowsAffected()
	return int(n), nil
}

// DeleteAll hard-deletes every row for the task.
func (s *SQLiteStore) DeleteAll(ctx context.Context, userID, taskID string) (int, error) {
	result, err := s.db.ExecContext(ctx,
		"DELETE FROM notifications WHERE user_id = ? AND task_id = ?",
		userID, taskID,
	)
	if err != nil {
		return 0, wrapErr(fmt.Sprintf("deleting notifications for task %s", taskID), err)
	}
	n, _ := result.RowsAffected()
	return int(n), nil
}

// MarkRead sets the read flag on one of the user's notifications.
func (s *SQLiteStore) MarkRead(ctx context.Context, userID, id string, read bool) error {
	result, err := s.db.ExecContext(ctx,
		"UPDATE notifications SET read = ? WHERE id = ? AND user_id = ?",
		boolToInt(read), id, userID,
	)
	if err != nil {
		return wrapErr(fmt.Sprintf("marking notification %s", id), err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return fmt.Errorf("notification %s: %w", id, model.ErrNotFound)
	}
	return nil
}

// MarkAllRead sets the read flag on every active row of the user.
func (s *SQLiteStore) MarkAllRead(ctx context.Context, userID string, read bool) (int, error) {
	result, err := s.db.ExecContext(ctx,
		"UPDATE notifications SET read = ? WHERE user_id = ? AND dismissed = 0 AND read != ?",
		boolToInt(read), userID, boolToInt(read),
	)
	if err != nil {
		return 0, wrapErr(fmt.Sprintf("marking notifications for user %s", userID), err)
	}
	n, _ := result.RowsAffected()
	return int(n), nil
}

// PurgeUser hard-deletes all of the user's notifications.
func (s *SQLiteStore) PurgeUser(ctx context.Context, userID string) (int, error) {
	result, err := s.db.ExecContext(ctx,
		"DELETE FROM notifications WHERE user_id = ?", userID,
	)
	if err != nil {
		return 0, wrapErr(fmt.Sprintf("purging notifications for user %s", userID), err)
	}
	n, _ := result.RowsAffected()
	return int(n), nil
}

// utcPtr normalizes an optional timestamp to UTC for storage.
func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
