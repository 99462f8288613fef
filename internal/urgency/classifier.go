// Package urgency maps a task's due date to a reminder tier and message
// template. It is pure: the current time is always passed in.
package urgency

import (
	"time"

	"github.com/nhle/task-reminders/internal/model"
)

// DefaultUpcomingDays is the largest day count that still produces an
// info reminder.
const DefaultUpcomingDays = 4

// Template keys, resolved by the message catalog.
const (
	KeyOverdueTitle    = "notification.overdue.title"
	KeyOverdueMessage  = "notification.overdue.message"
	KeyDueTodayTitle   = "notification.due_today.title"
	KeyDueTodayMessage = "notification.due_today.message"
	KeyTomorrowTitle   = "notification.due_tomorrow.title"
	KeyTomorrowMessage = "notification.due_tomorrow.message"
	KeyUpcomingTitle   = "notification.upcoming.title"
	KeyUpcomingMessage = "notification.upcoming.message"
)

// Classification is the reminder a task should carry right now.
type Classification struct {
	Tier       model.Tier
	TitleKey   string
	MessageKey string
	Params     model.Params
}

// Classifier holds the tunable upcoming window.
type Classifier struct {
	UpcomingDays int
}

// Default returns a Classifier with the default upcoming window.
func Default() Classifier {
	return Classifier{UpcomingDays: DefaultUpcomingDays}
}

// Classify applies the rules in order, first match wins:
// overdue, due today, due tomorrow, upcoming within the window.
// It returns false when no reminder should exist.
func (c Classifier) Classify(due, now time.Time) (Classification, bool) {
	days := DaysUntil(due, now)

	switch {
	case days < 0:
		return Classification{
			Tier:       model.TierDanger,
			TitleKey:   KeyOverdueTitle,
			MessageKey: KeyOverdueMessage,
			Params:     model.Params{Days: -days},
		}, true
	case days == 0:
		return Classification{
			Tier:       model.TierDanger,
			TitleKey:   KeyDueTodayTitle,
			MessageKey: KeyDueTodayMessage,
		}, true
	case days == 1:
		return Classification{
			Tier:       model.TierWarning,
			TitleKey:   KeyTomorrowTitle,
			MessageKey: KeyTomorrowMessage,
		}, true
	case days <= c.upcomingDays():
		return Classification{
			Tier:       model.TierInfo,
			TitleKey:   KeyUpcomingTitle,
			MessageKey: KeyUpcomingMessage,
			Params:     model.Params{Days: days},
		}, true
	}
	return Classification{}, false
}

func (c Classifier) upcomingDays() int {
	if c.UpcomingDays < 2 {
		return DefaultUpcomingDays
	}
	return c.UpcomingDays
}

// Classify uses the default upcoming window.
func Classify(due, now time.Time) (Classification, bool) {
	return Default().Classify(due, now)
}

// DaysUntil returns the number of calendar days from now's date to due's
// date. Negative values are days overdue. A due date is a calendar date,
// so it is read in its own location; time of day never matters.
func DaysUntil(due, now time.Time) int {
	return int(dateOf(due).Sub(dateOf(now)).Hours() / 24)
}

// dateOf normalizes t to midnight UTC of its calendar date, so the day
// difference is not skewed by DST transitions.
func dateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
