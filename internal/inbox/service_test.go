package inbox_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/nhle/task-reminders/internal/inbox"
	"github.com/nhle/task-reminders/internal/lifecycle"
	"github.com/nhle/task-reminders/internal/model"
	"github.com/nhle/task-reminders/internal/store"
	"github.com/nhle/task-reminders/tests/testutil"
)

var now = time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// seed creates one active reminder per due date for user u1 and returns
// the service plus the backing store.
func seed(t *testing.T, dues map[string]time.Time) (*inbox.Service, *store.SQLiteStore) {
	t.Helper()
	s := testutil.NewTestStore(t)
	m := lifecycle.New(s, lifecycle.WithLogger(quietLogger()))
	for id, due := range dues {
		due := due
		change := model.TaskChange{Task: model.Todo{ID: id, UserID: "u1", Title: id, DueDate: &due}}
		if out, err := m.Apply(context.Background(), change, now); err != nil || out.Created != 1 {
			t.Fatalf("seeding %s: out=%+v err=%v", id, out, err)
		}
	}
	return inbox.New(s, nil, quietLogger(), 0), s
}

func TestListRendered(t *testing.T) {
	svc, _ := seed(t, map[string]time.Time{"report": testutil.Date(2024, 1, 10)})

	got, err := svc.ListRendered(context.Background(), "u1")
	if err != nil {
		t.Fatalf("ListRendered: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(got))
	}
	if got[0].TitleText != "Due Today" || got[0].MessageText != `"report" is due today` {
		t.Errorf("rendered %q / %q", got[0].TitleText, got[0].MessageText)
	}
}

func TestDismissByIDSetsMarkerOnly(t *testing.T) {
	svc, s := seed(t, map[string]time.Time{"t1": testutil.Date(2024, 1, 11)})
	ctx := context.Background()

	active, _ := svc.ListActive(ctx, "u1")
	if _, err := svc.Dismiss(ctx, "u1", inbox.ByID(active[0].ID)); err != nil {
		t.Fatalf("Dismiss: %v", err)
	}

	if marked, _ := s.HasDoNotRecreate(ctx, "u1", "t1", model.TierWarning); !marked {
		t.Error("dismissal by id should mark the tier")
	}
	if muted, _ := s.IsMuted(ctx, "u1", "t1"); muted {
		t.Error("dismissal by id must not mute the task")
	}

	_, err := svc.Dismiss(ctx, "u1", inbox.ByID("missing"))
	if !errors.Is(err, model.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestDismissByTaskMutes(t *testing.T) {
	svc, s := seed(t, map[string]time.Time{
		"t1": testutil.Date(2024, 1, 10),
		"t2": testutil.Date(2024, 1, 12),
	})
	ctx := context.Background()

	n, err := svc.Dismiss(ctx, "u1", inbox.ByTask("t1"))
	if err != nil {
		t.Fatalf("Dismiss: %v", err)
	}
	if n != 1 {
		t.Errorf("dismissed %d, want 1", n)
	}
	if muted, _ := s.IsMuted(ctx, "u1", "t1"); !muted {
		t.Error("t1 should be muted")
	}
	if muted, _ := s.IsMuted(ctx, "u1", "t2"); muted {
		t.Error("t2 should not be muted")
	}
}

func TestDismissAllMutesEveryTask(t *testing.T) {
	svc, s := seed(t, map[string]time.Time{
		"t1": testutil.Date(2024, 1, 10),
		"t2": testutil.Date(2024, 1, 12),
	})
	ctx := context.Background()

	n, err := svc.Dismiss(ctx, "u1", inbox.All())
	if err != nil {
		t.Fatalf("Dismiss: %v", err)
	}
	if n != 2 {
		t.Errorf("dismissed %d, want 2", n)
	}
	muted, _ := s.MutedTasks(ctx, "u1")
	if !muted["t1"] || !muted["t2"] {
		t.Errorf("muted = %v, want t1 and t2", muted)
	}
	if active, _ := svc.ListActive(ctx, "u1"); len(active) != 0 {
		t.Errorf("expected empty inbox, got %d", len(active))
	}
}

func TestMarkReadAndUnread(t *testing.T) {
	svc, _ := seed(t, map[string]time.Time{
		"t1": testutil.Date(2024, 1, 10),
		"t2": testutil.Date(2024, 1, 12),
	})
	ctx := context.Background()

	n, err := svc.MarkRead(ctx, "u1", inbox.All(), false)
	if err != nil {
		t.Fatalf("MarkRead: %v", err)
	}
	if n != 2 {
		t.Errorf("marked %d, want 2", n)
	}

	n, err = svc.MarkRead(ctx, "u1", inbox.ByTask("t1"), true)
	if err != nil {
		t.Fatalf("MarkRead unread: %v", err)
	}
	if n != 1 {
		t.Errorf("unmarked %d, want 1", n)
	}

	active, _ := svc.ListActive(ctx, "u1")
	for _, a := range active {
		if want := a.TaskID != "t1"; a.Read != want {
			t.Errorf("%s read = %v, want %v", a.TaskID, a.Read, want)
		}
	}
}

func TestInvalidTargets(t *testing.T) {
	svc, _ := seed(t, nil)
	ctx := context.Background()

	if _, err := svc.Dismiss(ctx, "", inbox.All()); !errors.Is(err, inbox.ErrInvalidTarget) {
		t.Errorf("empty user: got %v", err)
	}
	if _, err := svc.MarkRead(ctx, "u1", inbox.ByID(""), false); !errors.Is(err, inbox.ErrInvalidTarget) {
		t.Errorf("empty id: got %v", err)
	}
}

// downStore fails every notification read.
type downStore struct {
	inbox.Store
}

func (downStore) ActiveForUser(context.Context, string) ([]model.Notification, error) {
	return nil, model.Transient("active for user", errors.New("connection refused"))
}

func (downStore) PurgeUser(context.Context, string) (int, error) {
	return 0, errors.New("disk I/O error")
}

func TestStoreFailuresSurfaceAsUnavailable(t *testing.T) {
	svc := inbox.New(downStore{Store: testutil.NewTestStore(t)}, nil, quietLogger(), time.Second)
	ctx := context.Background()

	_, err := svc.ListActive(ctx, "u1")
	if !errors.Is(err, inbox.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if !model.IsTransient(err) {
		t.Error("underlying transient error should stay visible")
	}

	if _, err := svc.DeleteAll(ctx, "u1"); !errors.Is(err, inbox.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable from DeleteAll, got %v", err)
	}
}

func TestDeleteAll(t *testing.T) {
	svc, s := seed(t, map[string]time.Time{"t1": testutil.Date(2024, 1, 10)})
	ctx := context.Background()

	if _, err := svc.Dismiss(ctx, "u1", inbox.ByTask("t1")); err != nil {
		t.Fatalf("Dismiss: %v", err)
	}
	n, err := svc.DeleteAll(ctx, "u1")
	if err != nil {
		t.Fatalf("DeleteAll: %v", err)
	}
	if n != 1 {
		t.Errorf("deleted %d, want 1", n)
	}
	if marked, _ := s.HasDoNotRecreate(ctx, "u1", "t1", model.TierDanger); marked {
		t.Error("purge should remove dismissed rows too")
	}
}
