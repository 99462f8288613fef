package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nhle/task-reminders/internal/model"
	"github.com/nhle/task-reminders/internal/store"
	"github.com/nhle/task-reminders/tests/testutil"
)

func newNotification(userID, taskID string, tier model.Tier, days int) model.Notification {
	return model.Notification{
		UserID:  userID,
		TaskID:  taskID,
		Tier:    tier,
		Title:   "notification." + string(tier) + ".title",
		Message: "notification." + string(tier) + ".message",
		Params:  model.Params{Days: days},
		DueDate: testutil.DatePtr(2024, 1, 13),
	}
}

func TestUpsertIsIdempotent(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	n := newNotification("u1", "t1", model.TierInfo, 3)

	first, wrote, err := s.Upsert(ctx, n)
	if err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	if !wrote {
		t.Fatal("first upsert should write")
	}

	second, wrote, err := s.Upsert(ctx, n)
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if wrote {
		t.Error("identical upsert should not write")
	}
	if second.ID != first.ID {
		t.Errorf("upsert returned %s, want existing %s", second.ID, first.ID)
	}

	active, err := s.FindActive(ctx, "u1", "t1")
	if err != nil {
		t.Fatalf("FindActive: %v", err)
	}
	if len(active) != 1 {
		t.Fatalf("expected 1 active row, got %d", len(active))
	}
	if active[0].Origin.String() != "info-t1" {
		t.Errorf("origin tag = %q, want info-t1", active[0].Origin.String())
	}
}

func TestUpsertUpdatesInPlace(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	first, _, err := s.Upsert(ctx, newNotification("u1", "t1", model.TierInfo, 3))
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}

	updated, wrote, err := s.Upsert(ctx, newNotification("u1", "t1", model.TierInfo, 2))
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if !wrote {
		t.Fatal("changed params should write")
	}
	if updated.ID != first.ID {
		t.Fatalf("update created a new row %s, want %s", updated.ID, first.ID)
	}

	got, err := s.FindActiveByTier(ctx, "u1", "t1", model.TierInfo)
	if err != nil {
		t.Fatalf("FindActiveByTier: %v", err)
	}
	if got == nil || got.Params.Days != 2 {
		t.Fatalf("expected days=2 after update, got %+v", got)
	}
}

func TestDismissWithDoNotRecreate(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	if _, _, err := s.Upsert(ctx, newNotification("u1", "t1", model.TierWarning, 0)); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	tier := model.TierWarning
	n, err := s.Dismiss(ctx, "u1", "t1", &tier, model.ReasonUser, true)
	if err != nil {
		t.Fatalf("Dismiss: %v", err)
	}
	if n != 1 {
		t.Fatalf("dismissed %d rows, want 1", n)
	}

	marked, err := s.HasDoNotRecreate(ctx, "u1", "t1", model.TierWarning)
	if err != nil {
		t.Fatalf("HasDoNotRecreate: %v", err)
	}
	if !marked {
		t.Error("expected warning marker after dismissal")
	}

	other, err := s.HasDoNotRecreate(ctx, "u1", "t1", model.TierDanger)
	if err != nil {
		t.Fatalf("HasDoNotRecreate: %v", err)
	}
	if other {
		t.Error("marker must be scoped to the dismissed tier")
	}

	active, _ := s.FindActive(ctx, "u1", "t1")
	if len(active) != 0 {
		t.Errorf("expected no active rows, got %d", len(active))
	}
}

func TestDismissByIDScopedToUser(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	n, _, err := s.Upsert(ctx, newNotification("u1", "t1", model.TierDanger, 0))
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}

	_, err = s.DismissByID(ctx, "someone-else", n.ID, model.ReasonUser, true)
	if !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for foreign user, got %v", err)
	}

	got, err := s.DismissByID(ctx, "u1", n.ID, model.ReasonUser, true)
	if err != nil {
		t.Fatalf("DismissByID: %v", err)
	}
	if !got.Dismissed || !got.Origin.DoNotRecreate {
		t.Errorf("expected dismissed row with marker, got %+v", got)
	}
	if got.DismissReason != model.ReasonUser {
		t.Errorf("reason = %q, want user", got.DismissReason)
	}
}

func TestDismissByIDLeavesDismissedRowsAlone(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	n, _, err := s.Upsert(ctx, newNotification("u1", "t1", model.TierInfo, 3))
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if _, err := s.DismissIDs(ctx, []string{n.ID}, model.ReasonSuperseded); err != nil {
		t.Fatalf("DismissIDs: %v", err)
	}

	_, err = s.DismissByID(ctx, "u1", n.ID, model.ReasonUser, true)
	if !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for a dismissed row, got %v", err)
	}

	marked, err := s.HasDoNotRecreate(ctx, "u1", "t1", model.TierInfo)
	if err != nil {
		t.Fatalf("HasDoNotRecreate: %v", err)
	}
	if marked {
		t.Error("superseded row should not gain a do-not-recreate marker")
	}
}

func TestSaveTodoUpsertsWithCalendarDue(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	est := time.FixedZone("EST", -5*60*60)
	due := time.Date(2024, 1, 10, 22, 0, 0, 0, est)
	todo := model.Todo{ID: "ext-1", UserID: "u1", Title: "report", DueDate: &due}
	if err := s.SaveTodo(ctx, todo); err != nil {
		t.Fatalf("SaveTodo: %v", err)
	}

	todo.Title = "final report"
	if err := s.SaveTodo(ctx, todo); err != nil {
		t.Fatalf("SaveTodo again: %v", err)
	}

	got, err := s.GetTodoByID(ctx, "ext-1")
	if err != nil {
		t.Fatalf("GetTodoByID: %v", err)
	}
	if got.Title != "final report" {
		t.Errorf("title = %q, want the second save", got.Title)
	}
	want := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	if got.DueDate == nil || !got.DueDate.Equal(want) {
		t.Errorf("due = %v, want %v", got.DueDate, want)
	}
}

func TestDeleteActiveKeepsMarkers(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	old, _, _ := s.Upsert(ctx, newNotification("u1", "t1", model.TierInfo, 3))
	if _, err := s.DismissByID(ctx, "u1", old.ID, model.ReasonUser, true); err != nil {
		t.Fatalf("DismissByID: %v", err)
	}
	if _, _, err := s.Upsert(ctx, newNotification("u1", "t1", model.TierWarning, 0)); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	deleted, err := s.DeleteActive(ctx, "u1", "t1")
	if err != nil {
		t.Fatalf("DeleteActive: %v", err)
	}
	if deleted != 1 {
		t.Errorf("deleted %d, want 1", deleted)
	}
	marked, _ := s.HasDoNotRecreate(ctx, "u1", "t1", model.TierInfo)
	if !marked {
		t.Error("dismissed marker should survive DeleteActive")
	}

	deleted, err = s.DeleteAll(ctx, "u1", "t1")
	if err != nil {
		t.Fatalf("DeleteAll: %v", err)
	}
	if deleted != 1 {
		t.Errorf("DeleteAll removed %d, want 1", deleted)
	}
}

func TestFindActiveByTierPrefersNewest(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()
	base := time.Date(2024, 1, 10, 8, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		n := newNotification("u1", "t1", model.TierDanger, 0)
		n.CreatedAt = base
		n.UpdatedAt = base.Add(time.Duration(i) * time.Minute)
		if _, err := s.Insert(ctx, n); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}

	got, err := s.FindActiveByTier(ctx, "u1", "t1", model.TierDanger)
	if err != nil {
		t.Fatalf("FindActiveByTier: %v", err)
	}
	if want := base.Add(2 * time.Minute); !got.UpdatedAt.Equal(want) {
		t.Errorf("got updated_at %s, want %s", got.UpdatedAt, want)
	}
}

func TestMutePreferences(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	muted, err := s.IsMuted(ctx, "u1", "t1")
	if err != nil {
		t.Fatalf("IsMuted: %v", err)
	}
	if muted {
		t.Fatal("missing preference should default to not muted")
	}

	if err := s.SetMuted(ctx, "u1", "t1", true); err != nil {
		t.Fatalf("SetMuted: %v", err)
	}
	if err := s.SetMuted(ctx, "u1", "t2", true); err != nil {
		t.Fatalf("SetMuted: %v", err)
	}
	if err := s.SetMuted(ctx, "u1", "t2", false); err != nil {
		t.Fatalf("SetMuted: %v", err)
	}

	if muted, _ := s.IsMuted(ctx, "u1", "t1"); !muted {
		t.Error("t1 should be muted")
	}
	set, err := s.MutedTasks(ctx, "u1")
	if err != nil {
		t.Fatalf("MutedTasks: %v", err)
	}
	if len(set) != 1 || !set["t1"] {
		t.Errorf("MutedTasks = %v, want only t1", set)
	}
}

func TestMarkReadAndDismissAll(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	a, _, _ := s.Upsert(ctx, newNotification("u1", "t1", model.TierDanger, 0))
	if _, _, err := s.Upsert(ctx, newNotification("u1", "t2", model.TierInfo, 3)); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if _, _, err := s.Upsert(ctx, newNotification("u2", "t3", model.TierInfo, 3)); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	if err := s.MarkRead(ctx, "u1", a.ID, true); err != nil {
		t.Fatalf("MarkRead: %v", err)
	}
	n, err := s.MarkAllRead(ctx, "u1", true)
	if err != nil {
		t.Fatalf("MarkAllRead: %v", err)
	}
	if n != 1 {
		t.Errorf("MarkAllRead changed %d rows, want 1", n)
	}

	dismissed, err := s.DismissAll(ctx, "u1", model.ReasonUser, true)
	if err != nil {
		t.Fatalf("DismissAll: %v", err)
	}
	if len(dismissed) != 2 {
		t.Fatalf("DismissAll returned %d rows, want 2", len(dismissed))
	}

	others, _ := s.ActiveForUser(ctx, "u2")
	if len(others) != 1 {
		t.Errorf("other user's rows must stay active, got %d", len(others))
	}
}

func TestEligibleTodos(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	testutil.SeedTodo(t, s, model.Todo{UserID: "u1", Title: "due", DueDate: testutil.DatePtr(2024, 1, 10)})
	testutil.SeedTodo(t, s, model.Todo{UserID: "u1", Title: "no due"})
	testutil.SeedTodo(t, s, model.Todo{UserID: "u2", Title: "done", DueDate: testutil.DatePtr(2024, 1, 10), Completed: true})

	todos, err := s.EligibleTodos(ctx)
	if err != nil {
		t.Fatalf("EligibleTodos: %v", err)
	}
	if len(todos) != 1 || todos[0].Title != "due" {
		t.Fatalf("EligibleTodos = %+v, want only %q", todos, "due")
	}
	if !todos[0].DueDate.Equal(testutil.Date(2024, 1, 10)) {
		t.Errorf("due date round-trip = %s", todos[0].DueDate)
	}

	_, err = s.GetTodoByID(ctx, "missing")
	if !errors.Is(err, model.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestNewerOrdering(t *testing.T) {
	base := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	a := model.Notification{ID: "a", UpdatedAt: base.Add(time.Second), CreatedAt: base}
	b := model.Notification{ID: "b", UpdatedAt: base, CreatedAt: base}
	if !store.Newer(a, b) {
		t.Error("later updated_at should win")
	}
	c := model.Notification{ID: "c", UpdatedAt: base, CreatedAt: base}
	if !store.Newer(c, b) {
		t.Error("ties fall back to id")
	}
}
