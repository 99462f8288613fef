package store

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/nhle/task-reminders/internal/model"
)

// notificationColumns is the column list every notification query selects,
// in the order notificationRow and the Postgres scanner expect.
const notificationColumns = `id, user_id, task_id, tier, title, message, params,
	due_date, read, dismissed, dismiss_reason, origin_tag, created_at, updated_at`

// notificationRow is the storage shape of a notification.
type notificationRow struct {
	ID            string     `db:"id"`
	UserID        string     `db:"user_id"`
	TaskID        string     `db:"task_id"`
	Tier          string     `db:"tier"`
	Title         string     `db:"title"`
	Message       string     `db:"message"`
	Params        string     `db:"params"`
	DueDate       *time.Time `db:"due_date"`
	Read          bool       `db:"read"`
	Dismissed     bool       `db:"dismissed"`
	DismissReason string     `db:"dismiss_reason"`
	OriginTag     string     `db:"origin_tag"`
	CreatedAt     time.Time  `db:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at"`
}

// toModel converts a stored row into a Notification. An unparseable origin
// tag is rebuilt from the row's own tier and task id.
func (r notificationRow) toModel() (model.Notification, error) {
	tier, err := model.ParseTier(r.Tier)
	if err != nil {
		return model.Notification{}, fmt.Errorf("notification %s: %w", r.ID, err)
	}

	var params model.Params
	if r.Params != "" {
		if err := json.Unmarshal([]byte(r.Params), &params); err != nil {
			return model.Notification{}, fmt.Errorf("unmarshaling params for notification %s: %w", r.ID, err)
		}
	}

	origin, err := model.ParseOriginTag(r.OriginTag)
	if err != nil {
		origin = model.OriginTag{Tier: tier, TaskID: r.TaskID}
	}

	return model.Notification{
		ID:            r.ID,
		UserID:        r.UserID,
		TaskID:        r.TaskID,
		Tier:          tier,
		Title:         r.Title,
		Message:       r.Message,
		Params:        params,
		DueDate:       r.DueDate,
		Read:          r.Read,
		Dismissed:     r.Dismissed,
		DismissReason: model.DismissReason(r.DismissReason),
		Origin:        origin,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}, nil
}

func rowsToModels(rows []notificationRow) ([]model.Notification, error) {
	out := make([]model.Notification, 0, len(rows))
	for _, r := range rows {
		n, err := r.toModel()
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	sortNewestFirst(out)
	return out, nil
}

// sortNewestFirst orders notifications by updated_at, then created_at,
// then id, all descending. Ordering is done here rather than in SQL
// because SQLite compares DATETIME text lexically.
func sortNewestFirst(ns []model.Notification) {
	sort.SliceStable(ns, func(i, j int) bool {
		return Newer(ns[i], ns[j])
	})
}

// Newer reports whether a should be kept over b when both are active
// duplicates of the same (user, task, tier).
func Newer(a, b model.Notification) bool {
	if !a.UpdatedAt.Equal(b.UpdatedAt) {
		return a.UpdatedAt.After(b.UpdatedAt)
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID > b.ID
}

func encodeParams(p model.Params) (string, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("marshaling params: %w", err)
	}
	return string(b), nil
}

// prepareInsert fills the id, origin tag and timestamps of a new row.
func prepareInsert(n model.Notification, newID func() string) model.Notification {
	if n.ID == "" {
		n.ID = newID()
	}
	now := time.Now().UTC()
	if n.CreatedAt.IsZero() {
		n.CreatedAt = now
	}
	if n.UpdatedAt.IsZero() {
		n.UpdatedAt = n.CreatedAt
	}
	if n.Origin.TaskID == "" {
		n.Origin = model.OriginTag{Tier: n.Tier, TaskID: n.TaskID}
	}
	return n
}
