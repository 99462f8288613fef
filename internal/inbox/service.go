// Package inbox is the user-facing surface over stored reminders: listing,
// read state, and explicit dismissal.
package inbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nhle/task-reminders/internal/i18n"
	"github.com/nhle/task-reminders/internal/model"
	"github.com/nhle/task-reminders/internal/store"
)

const defaultTimeout = 5 * time.Second

var (
	// ErrUnavailable is returned when the store could not serve a request.
	// Callers show a generic failure; the underlying error is wrapped too.
	ErrUnavailable = errors.New("notifications are temporarily unavailable")

	// ErrInvalidTarget is returned for an empty user or target id.
	ErrInvalidTarget = errors.New("invalid notification target")
)

// Store is the persistence the inbox reads and writes.
type Store interface {
	store.MuteStore
	store.NotificationStore
}

// Kind selects what a Target addresses.
type Kind int

const (
	KindID Kind = iota
	KindTask
	KindAll
)

func (k Kind) String() string {
	switch k {
	case KindID:
		return "id"
	case KindTask:
		return "task"
	case KindAll:
		return "all"
	default:
		return "unknown"
	}
}

// Target addresses one notification, every notification of a task, or
// all of a user's notifications.
type Target struct {
	Kind Kind
	ID   string
}

// ByID targets a single notification.
func ByID(id string) Target { return Target{Kind: KindID, ID: id} }

// ByTask targets every notification of a task.
func ByTask(taskID string) Target { return Target{Kind: KindTask, ID: taskID} }

// All targets every notification of the user.
func All() Target { return Target{Kind: KindAll} }

func (t Target) String() string {
	if t.Kind == KindAll {
		return "all"
	}
	return t.Kind.String() + ":" + t.ID
}

// Service implements the inbox operations.
type Service struct {
	store    Store
	renderer i18n.Renderer
	logger   *slog.Logger
	timeout  time.Duration
}

// New creates a Service. A nil renderer uses the embedded English
// catalog and a nil logger uses slog.Default.
func New(s Store, r i18n.Renderer, logger *slog.Logger, timeout time.Duration) *Service {
	if r == nil {
		r = i18n.Default()
	}
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Service{store: s, renderer: r, logger: logger, timeout: timeout}
}

// ListActive returns the user's active notifications, newest first.
func (s *Service) ListActive(ctx context.Context, userID string) ([]model.Notification, error) {
	if userID == "" {
		return nil, ErrInvalidTarget
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	ns, err := s.store.ActiveForUser(ctx, userID)
	if err != nil {
		return nil, s.unavailable("listing notifications", err)
	}
	return ns, nil
}

// ListRendered is ListActive with display text resolved.
func (s *Service) ListRendered(ctx context.Context, userID string) ([]i18n.Rendered, error) {
	ns, err := s.ListActive(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.Render(ns), nil
}

// Render pairs each notification with its display text.
func (s *Service) Render(ns []model.Notification) []i18n.Rendered {
	out := make([]i18n.Rendered, 0, len(ns))
	for _, n := range ns {
		out = append(out, i18n.RenderNotification(s.renderer, n))
	}
	return out
}

// MarkRead sets the read flag on the target, or clears it when asUnread
// is true. It returns the number of rows changed.
func (s *Service) MarkRead(ctx context.Context, userID string, target Target, asUnread bool) (int, error) {
	if err := validate(userID, target); err != nil {
		return 0, err
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	read := !asUnread
	switch target.Kind {
	case KindID:
		if err := s.store.MarkRead(ctx, userID, target.ID, read); err != nil {
			if errors.Is(err, model.ErrNotFound) {
				return 0, err
			}
			return 0, s.unavailable("marking notification read", err)
		}
		return 1, nil

	case KindTask:
		ns, err := s.store.FindActive(ctx, userID, target.ID)
		if err != nil {
			return 0, s.unavailable("marking task notifications read", err)
		}
		count := 0
		for _, n := range ns {
			if n.Read == read {
				continue
			}
			if err := s.store.MarkRead(ctx, userID, n.ID, read); err != nil {
				return count, s.unavailable("marking task notifications read", err)
			}
			count++
		}
		return count, nil

	default:
		n, err := s.store.MarkAllRead(ctx, userID, read)
		if err != nil {
			return 0, s.unavailable("marking all notifications read", err)
		}
		return n, nil
	}
}

// Dismiss removes the target from the user's active set. Every explicit
// dismissal carries the do-not-recreate marker for the dismissed tier;
// the task and all forms also mute the affected tasks.
func (s *Service) Dismiss(ctx context.Context, userID string, target Target) (int, error) {
	if err := validate(userID, target); err != nil {
		return 0, err
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	log := s.logger.With("user_id", userID, "target", target.String())

	switch target.Kind {
	case KindID:
		if _, err := s.store.DismissByID(ctx, userID, target.ID, model.ReasonUser, true); err != nil {
			if errors.Is(err, model.ErrNotFound) {
				return 0, err
			}
			return 0, s.unavailable("dismissing notification", err)
		}
		log.Info("notification dismissed")
		return 1, nil

	case KindTask:
		n, err := s.store.Dismiss(ctx, userID, target.ID, nil, model.ReasonUser, true)
		if err != nil {
			return 0, s.unavailable("dismissing task notifications", err)
		}
		if err := s.store.SetMuted(ctx, userID, target.ID, true); err != nil {
			return n, s.unavailable("muting task", err)
		}
		log.Info("task notifications dismissed and muted", "count", n)
		return n, nil

	default:
		dismissed, err := s.store.DismissAll(ctx, userID, model.ReasonUser, true)
		if err != nil {
			return 0, s.unavailable("dismissing all notifications", err)
		}
		seen := make(map[string]bool)
		for _, n := range dismissed {
			if seen[n.TaskID] {
				continue
			}
			seen[n.TaskID] = true
			if err := s.store.SetMuted(ctx, userID, n.TaskID, true); err != nil {
				return len(dismissed), s.unavailable("muting task", err)
			}
		}
		log.Info("all notifications dismissed", "count", len(dismissed), "muted_tasks", len(seen))
		return len(dismissed), nil
	}
}

// Unmute clears a task's mute preference so reminders resume on the next
// sweep. Tiers dismissed with the do-not-recreate marker stay suppressed.
func (s *Service) Unmute(ctx context.Context, userID, taskID string) error {
	if userID == "" || taskID == "" {
		return ErrInvalidTarget
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.store.SetMuted(ctx, userID, taskID, false); err != nil {
		return s.unavailable("unmuting task", err)
	}
	return nil
}

// DeleteAll purges every notification of the user, dismissed or not.
func (s *Service) DeleteAll(ctx context.Context, userID string) (int, error) {
	if userID == "" {
		return 0, ErrInvalidTarget
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	n, err := s.store.PurgeUser(ctx, userID)
	if err != nil {
		return 0, s.unavailable("deleting notifications", err)
	}
	s.logger.Info("notifications purged", "user_id", userID, "count", n)
	return n, nil
}

func (s *Service) unavailable(op string, err error) error {
	s.logger.Error(op, "error", err)
	return fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
}

func validate(userID string, t Target) error {
	if userID == "" {
		return ErrInvalidTarget
	}
	if t.Kind != KindAll && t.ID == "" {
		return ErrInvalidTarget
	}
	return nil
}
