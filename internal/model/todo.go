package model

import "time"

// Todo is the read model of a user's task as seen by the reminder engine.
// It is owned by the task subsystem; the engine never writes it.
type Todo struct {
	ID        string     `json:"id" db:"id"`
	UserID    string     `json:"user_id" db:"user_id"`
	Title     string     `json:"title" db:"title"`
	DueDate   *time.Time `json:"due_date,omitempty" db:"due_date"`
	Completed bool       `json:"is_completed" db:"is_completed"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt time.Time  `json:"updated_at" db:"updated_at"`
}

// Eligible reports whether the todo can carry a reminder at all:
// it is incomplete and has a due date.
func (t Todo) Eligible() bool {
	return !t.Completed && t.DueDate != nil
}

// Validate checks the fields the engine relies on.
func (t Todo) Validate() error {
	if t.ID == "" {
		return &ValidationError{Field: "id", Message: "task id is empty"}
	}
	if t.UserID == "" {
		return &ValidationError{TaskID: t.ID, Field: "user_id", Message: "task has no owner"}
	}
	if t.DueDate != nil && t.DueDate.IsZero() {
		return &ValidationError{TaskID: t.ID, Field: "due_date", Message: "due date is the zero time"}
	}
	return nil
}

// CalendarDate returns midnight UTC of t's calendar date as read in t's
// own location. Due dates are stored and compared in this form so the
// reactive path and the sweep see the same day.
func CalendarDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// CalendarDatePtr is CalendarDate for optional due dates.
func CalendarDatePtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	d := CalendarDate(*t)
	return &d
}

// WithCalendarDue returns t with its due date normalized by CalendarDate.
func (t Todo) WithCalendarDue() Todo {
	t.DueDate = CalendarDatePtr(t.DueDate)
	return t
}

// TaskChange is fired by the task subsystem on create, update, and delete.
// Previous is nil the first time a task is seen.
type TaskChange struct {
	Task     Todo  `json:"task"`
	Previous *Todo `json:"previous,omitempty"`
	Deleted  bool  `json:"deleted,omitempty"`
}

// DueDateChanged reports whether the due date differs from the previous
// state, comparing calendar dates only. Each side is read in its own
// location, so callers normalize with WithCalendarDue first.
func (c TaskChange) DueDateChanged() bool {
	if c.Previous == nil {
		return true
	}
	a, b := c.Task.DueDate, c.Previous.DueDate
	if a == nil || b == nil {
		return a != b
	}
	return !CalendarDate(*a).Equal(CalendarDate(*b))
}

// TitleChanged reports whether the title differs from the previous state.
func (c TaskChange) TitleChanged() bool {
	return c.Previous == nil || c.Previous.Title != c.Task.Title
}

// WithCalendarDue normalizes the due dates on both sides of the change.
func (c TaskChange) WithCalendarDue() TaskChange {
	c.Task = c.Task.WithCalendarDue()
	if c.Previous != nil {
		prev := c.Previous.WithCalendarDue()
		c.Previous = &prev
	}
	return c
}
