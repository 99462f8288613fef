package inbox

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/nhle/task-reminders/internal/i18n"
	"github.com/nhle/task-reminders/internal/theme"
)

// Item wraps a rendered notification so it can be used in a bubbles/list.
type Item struct {
	i18n.Rendered
}

// FilterValue returns the string used for fuzzy filtering.
func (i Item) FilterValue() string { return i.MessageText }

// Title returns the rendered title.
func (i Item) Title() string { return i.TitleText }

// Description returns the rendered message.
func (i Item) Description() string { return i.MessageText }

// ItemDelegate renders one notification per line.
type ItemDelegate struct{}

// Height returns the number of lines each item takes.
func (d ItemDelegate) Height() int { return 1 }

// Spacing returns the number of blank lines between items.
func (d ItemDelegate) Spacing() int { return 0 }

// Update handles per-item messages (unused).
func (d ItemDelegate) Update(_ tea.Msg, _ *list.Model) tea.Cmd { return nil }

// Render draws a notification: read marker, tier badge, title, message
// and age. Read notifications are dimmed.
func (d ItemDelegate) Render(w io.Writer, m list.Model, index int, item list.Item) {
	it, ok := item.(Item)
	if !ok {
		return
	}

	marker := "●"
	if it.Read {
		marker = " "
	}
	badge := theme.TierStyle(it.Tier).Render(strings.ToUpper(string(it.Tier)))
	age := theme.DimmedStyle.Render(relativeTime(it.UpdatedAt, time.Now()))

	line := fmt.Sprintf("%s %s %s  %s  %s", marker, badge, it.TitleText, it.MessageText, age)
	if it.Read {
		line = theme.DimmedStyle.Render(line)
	}

	if index == m.Index() {
		line = theme.SelectedItemStyle.Render(line)
	} else {
		line = theme.ListItemStyle.Render(line)
	}
	fmt.Fprint(w, line)
}

// relativeTime returns a short human-friendly age.
func relativeTime(t, now time.Time) string {
	if t.IsZero() {
		return ""
	}
	d := now.Sub(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}
