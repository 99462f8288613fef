package model

import (
	"fmt"
	"strings"
	"time"
)

// Tier is the urgency level of a reminder. Tiers are ordered
// info < warning < danger.
type Tier string

const (
	TierInfo    Tier = "info"
	TierWarning Tier = "warning"
	TierDanger  Tier = "danger"
)

// Tiers lists every tier in ascending urgency.
var Tiers = []Tier{TierInfo, TierWarning, TierDanger}

// Rank returns the ordinal of the tier (0 for unknown values).
func (t Tier) Rank() int {
	switch t {
	case TierInfo:
		return 1
	case TierWarning:
		return 2
	case TierDanger:
		return 3
	default:
		return 0
	}
}

// Valid reports whether t is one of the known tiers.
func (t Tier) Valid() bool { return t.Rank() > 0 }

// ParseTier converts a stored string into a Tier.
func ParseTier(s string) (Tier, error) {
	t := Tier(strings.ToLower(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", fmt.Errorf("unknown tier %q", s)
	}
	return t, nil
}

// Params holds the structured values a message template is rendered with.
// Two notifications with equal Params render to the same text.
type Params struct {
	// TaskTitle is the title of the task the reminder is about.
	TaskTitle string `json:"task_title,omitempty"`

	// Days is the day count shown in the message: days overdue for the
	// overdue template, days remaining for the upcoming template.
	Days int `json:"days,omitempty"`
}

// doNotRecreateSuffix marks an origin tag whose tier must not be recreated.
const doNotRecreateSuffix = "-donotrecreate"

// OriginTag identifies which tier and task a notification was generated
// for. It is persisted as "{tier}-{task_id}[-donotrecreate]".
type OriginTag struct {
	Tier          Tier
	TaskID        string
	DoNotRecreate bool
}

// String encodes the tag for storage.
func (o OriginTag) String() string {
	s := string(o.Tier) + "-" + o.TaskID
	if o.DoNotRecreate {
		s += doNotRecreateSuffix
	}
	return s
}

// ParseOriginTag decodes a stored origin tag. Task ids may themselves
// contain dashes (UUIDs do), so only the tier prefix and the optional
// suffix are split off.
func ParseOriginTag(s string) (OriginTag, error) {
	var o OriginTag
	if strings.HasSuffix(s, doNotRecreateSuffix) {
		o.DoNotRecreate = true
		s = strings.TrimSuffix(s, doNotRecreateSuffix)
	}
	tier, taskID, ok := strings.Cut(s, "-")
	if !ok || taskID == "" {
		return OriginTag{}, fmt.Errorf("malformed origin tag %q", s)
	}
	t, err := ParseTier(tier)
	if err != nil {
		return OriginTag{}, fmt.Errorf("malformed origin tag %q: %w", s, err)
	}
	o.Tier = t
	o.TaskID = taskID
	return o, nil
}

// DismissReason records why a notification left the active set.
type DismissReason string

const (
	ReasonCompleted  DismissReason = "completed"
	ReasonSuperseded DismissReason = "superseded"
	ReasonDuplicate  DismissReason = "duplicate"
	ReasonStale      DismissReason = "stale"
	ReasonUser       DismissReason = "user"
)

// Notification is a durable reminder row for one task at one tier.
// Title and Message hold template keys, never rendered text.
type Notification struct {
	ID            string        `json:"id"`
	UserID        string        `json:"user_id"`
	TaskID        string        `json:"task_id"`
	Tier          Tier          `json:"tier"`
	Title         string        `json:"title"`
	Message       string        `json:"message"`
	Params        Params        `json:"params"`
	DueDate       *time.Time    `json:"due_date,omitempty"`
	Read          bool          `json:"read"`
	Dismissed     bool          `json:"dismissed"`
	DismissReason DismissReason `json:"dismiss_reason,omitempty"`
	Origin        OriginTag     `json:"-"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// Active reports whether the notification is still shown to the user.
func (n Notification) Active() bool { return !n.Dismissed }

// SameContent reports whether n already carries the wording and display
// fields of other, so rewriting it would change nothing.
func (n Notification) SameContent(other Notification) bool {
	return n.Title == other.Title &&
		n.Message == other.Message &&
		n.Params == other.Params &&
		sameDate(n.DueDate, other.DueDate)
}

// State returns the lifecycle state of the notification.
func (n Notification) State() State {
	if n.Dismissed {
		return Dismissed{Reason: n.DismissReason, DoNotRecreate: n.Origin.DoNotRecreate}
	}
	return Active{Tier: n.Tier}
}

// State is the lifecycle state of a reminder: Pending, Active or Dismissed.
type State interface {
	state()
	String() string
}

// Pending is a classified reminder that has not been persisted yet.
type Pending struct{ Tier Tier }

// Active is a persisted, non-dismissed reminder.
type Active struct{ Tier Tier }

// Dismissed is a reminder that left the active set.
type Dismissed struct {
	Reason        DismissReason
	DoNotRecreate bool
}

func (Pending) state()   {}
func (Active) state()    {}
func (Dismissed) state() {}

func (s Pending) String() string { return "pending(" + string(s.Tier) + ")" }
func (s Active) String() string  { return "active(" + string(s.Tier) + ")" }
func (s Dismissed) String() string {
	if s.DoNotRecreate {
		return "dismissed(" + string(s.Reason) + ",donotrecreate)"
	}
	return "dismissed(" + string(s.Reason) + ")"
}

// MutePreference is a user's opt-out from reminders for one task.
type MutePreference struct {
	UserID    string    `json:"user_id" db:"user_id"`
	TaskID    string    `json:"task_id" db:"task_id"`
	Muted     bool      `json:"muted" db:"muted"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

func sameDate(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}
