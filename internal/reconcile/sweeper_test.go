package reconcile_test

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
	"github.com/nhle/task-reminders/internal/urgency"
	"github.com/nhle/task-reminders/tests/testutil"
)

var today = time.Date(2024, 1, 10, 8, 0, 0, 0, time.UTC)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newSweeper(s reconcile.Store) *reconcile.Sweeper {
	m := lifecycle.New(s, lifecycle.WithLogger(quietLogger()))
	return reconcile.NewSweeper(s, m, quietLogger())
}

func activeByTask(t *testing.T, s store.NotificationStore, userID string) map[string][]model.Notification {
	t.Helper()
	ns, err := s.ActiveForUser(context.Background(), userID)
	if err != nil {
		t.Fatalf("ActiveForUser: %v", err)
	}
	out := make(map[string][]model.Notification)
	for _, n := range ns {
		out[n.TaskID] = append(out[n.TaskID], n)
	}
	return out
}

func TestSweepScenario(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	seed := func(title string, due *time.Time) string {
		return testutil.SeedTodo(t, s, model.Todo{UserID: "u1", Title: title, DueDate: due}).ID
	}
	a := seed("A", testutil.DatePtr(2024, 1, 8))
	b := seed("B", testutil.DatePtr(2024, 1, 10))
	c := seed("C", testutil.DatePtr(2024, 1, 11))
	d := seed("D", testutil.DatePtr(2024, 1, 13))
	e := seed("E", testutil.DatePtr(2024, 1, 20))
	f := seed("F", testutil.DatePtr(2024, 1, 10))
	if err := s.SetMuted(ctx, "u1", f, true); err != nil {
		t.Fatalf("SetMuted: %v", err)
	}

	report, err := newSweeper(s).Sweep(ctx, today)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if report.Created != 4 || report.Muted != 1 {
		t.Errorf("report = %+v, want 4 created and 1 muted", report)
	}

	got := activeByTask(t, s, "u1")
	tests := []struct {
		name     string
		taskID   string
		tier     model.Tier
		titleKey string
		days     int
	}{
		{"overdue", a, model.TierDanger, urgency.KeyOverdueTitle, 2},
		{"due today", b, model.TierDanger, urgency.KeyDueTodayTitle, 0},
		{"due tomorrow", c, model.TierWarning, urgency.KeyTomorrowTitle, 0},
		{"upcoming", d, model.TierInfo, urgency.KeyUpcomingTitle, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ns := got[tt.taskID]
			if len(ns) != 1 {
				t.Fatalf("expected 1 active notification, got %d", len(ns))
			}
			n := ns[0]
			if n.Tier != tt.tier || n.Title != tt.titleKey || n.Params.Days != tt.days {
				t.Errorf("got tier=%s title=%s days=%d", n.Tier, n.Title, n.Params.Days)
			}
		})
	}
	if len(got[e]) != 0 {
		t.Errorf("task E should have no notification, got %d", len(got[e]))
	}
	if len(got[f]) != 0 {
		t.Errorf("muted task F should have no notification, got %d", len(got[f]))
	}
}

func TestSweepIsIdempotent(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()
	for i, due := range []*time.Time{
		testutil.DatePtr(2024, 1, 5),
		testutil.DatePtr(2024, 1, 11),
		testutil.DatePtr(2024, 1, 12),
	} {
		testutil.SeedTodo(t, s, model.Todo{UserID: "u1", Title: string(rune('a' + i)), DueDate: due})
	}

	w := newSweeper(s)
	first, err := w.Sweep(ctx, today)
	if err != nil {
		t.Fatalf("first sweep: %v", err)
	}
	if first.Created != 3 {
		t.Fatalf("first sweep created %d, want 3", first.Created)
	}

	second, err := w.Sweep(ctx, today.Add(3*time.Hour))
	if err != nil {
		t.Fatalf("second sweep: %v", err)
	}
	if second.Writes() != 0 {
		t.Errorf("second sweep wrote %+v", second)
	}
}

func TestSweepDismissesStaleRows(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	todo := testutil.SeedTodo(t, s, model.Todo{UserID: "u1", Title: "ship", DueDate: testutil.DatePtr(2024, 1, 10)})
	w := newSweeper(s)
	if _, err := w.Sweep(ctx, today); err != nil {
		t.Fatalf("Sweep: %v", err)
	}

	// Completed behind the engine's back: no reactive path ran.
	todo.Completed = true
	if err := s.UpdateTodo(ctx, todo); err != nil {
		t.Fatalf("UpdateTodo: %v", err)
	}

	report, err := w.Sweep(ctx, today)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if report.Stale != 1 {
		t.Errorf("stale = %d, want 1", report.Stale)
	}
	if got := activeByTask(t, s, "u1"); len(got[todo.ID]) != 0 {
		t.Errorf("expected no active rows for completed task, got %d", len(got[todo.ID]))
	}
}

func TestDedupKeepsNewest(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()
	base := time.Date(2024, 1, 9, 12, 0, 0, 0, time.UTC)

	var newest string
	for i := 0; i < 3; i++ {
		n, err := s.Insert(ctx, model.Notification{
			UserID:    "u1",
			TaskID:    "t1",
			Tier:      model.TierDanger,
			Title:     urgency.KeyDueTodayTitle,
			Message:   urgency.KeyDueTodayMessage,
			DueDate:   testutil.DatePtr(2024, 1, 10),
			CreatedAt: base,
			UpdatedAt: base.Add(time.Duration(i) * time.Hour),
		})
		if err != nil {
			t.Fatalf("Insert: %v", err)
		}
		newest = n.ID
	}

	count, err := newSweeper(s).Dedup(ctx)
	if err != nil {
		t.Fatalf("Dedup: %v", err)
	}
	if count != 2 {
		t.Fatalf("dismissed %d duplicates, want 2", count)
	}

	active, _ := s.FindActive(ctx, "u1", "t1")
	if len(active) != 1 || active[0].ID != newest {
		t.Fatalf("expected only %s to stay active, got %+v", newest, active)
	}
}

func TestDuplicatesIgnoresOtherTiersAndUsers(t *testing.T) {
	base := time.Date(2024, 1, 9, 0, 0, 0, 0, time.UTC)
	ns := []model.Notification{
		{ID: "a", UserID: "u1", TaskID: "t1", Tier: model.TierInfo, UpdatedAt: base},
		{ID: "b", UserID: "u1", TaskID: "t1", Tier: model.TierWarning, UpdatedAt: base},
		{ID: "c", UserID: "u2", TaskID: "t1", Tier: model.TierInfo, UpdatedAt: base},
		{ID: "d", UserID: "u1", TaskID: "t1", Tier: model.TierInfo, UpdatedAt: base.Add(time.Minute)},
		{ID: "e", UserID: "u1", TaskID: "t1", Tier: model.TierInfo, UpdatedAt: base.Add(time.Hour), Dismissed: true},
	}

	got := reconcile.Duplicates(ns)
	if len(got) != 1 || got[0] != "a" {
		t.Errorf("Duplicates = %v, want [a]", got)
	}
}

// flakyStore fails the batch reads for one user.
type flakyStore struct {
	reconcile.Store
	failUser string
}

func (f flakyStore) ActiveForUser(ctx context.Context, userID string) ([]model.Notification, error) {
	if userID == f.failUser {
		return nil, model.Transient("active for user", errors.New("i/o timeout"))
	}
	return f.Store.ActiveForUser(ctx, userID)
}

func TestSweepContinuesPastFailingUser(t *testing.T) {
	base := testutil.NewTestStore(t)
	testutil.SeedTodo(t, base, model.Todo{UserID: "bad", Title: "x", DueDate: testutil.DatePtr(2024, 1, 10)})
	testutil.SeedTodo(t, base, model.Todo{UserID: "good", Title: "y", DueDate: testutil.DatePtr(2024, 1, 10)})

	s := flakyStore{Store: base, failUser: "bad"}
	report, err := newSweeper(s).Sweep(context.Background(), today)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if report.Failed != 1 || report.Created != 1 {
		t.Errorf("report = %+v, want 1 failed and 1 created", report)
	}
}

func TestSweepKeepsTierOfOffsetDueDate(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	due := time.Date(2024, 1, 10, 22, 0, 0, 0, time.FixedZone("EST", -5*60*60))
	todo, err := s.CreateTodo(ctx, model.Todo{UserID: "u1", Title: "report", DueDate: &due})
	if err != nil {
		t.Fatalf("CreateTodo: %v", err)
	}

	m := lifecycle.New(s, lifecycle.WithLogger(quietLogger()))
	out, err := m.Apply(ctx, model.TaskChange{Task: todo}, today)
	if err != nil || out.Created != 1 {
		t.Fatalf("Apply = %+v, %v", out, err)
	}

	report, err := reconcile.NewSweeper(s, m, quietLogger()).Sweep(ctx, today)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if report.Writes() != 0 {
		t.Errorf("sweep rewrote the reactive result: %+v", report)
	}

	active := activeByTask(t, s, "u1")[todo.ID]
	if len(active) != 1 || active[0].Tier != model.TierDanger || active[0].Title != urgency.KeyDueTodayTitle {
		t.Errorf("expected the due-today reminder to survive, got %+v", active)
	}
}
