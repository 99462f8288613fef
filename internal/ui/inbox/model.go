// Package inbox is the terminal view of a user's active reminders.
package inbox

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/task-reminders/internal/i18n"
	svc "github.com/nhle/task-reminders/internal/inbox"
	"github.com/nhle/task-reminders/internal/keys"
	"github.com/nhle/task-reminders/internal/theme"
)

// requestTimeout bounds each store round trip made from the view.
const requestTimeout = 5 * time.Second

// Service is the subset of the inbox service the view drives.
type Service interface {
	ListRendered(ctx context.Context, userID string) ([]i18n.Rendered, error)
	MarkRead(ctx context.Context, userID string, target svc.Target, asUnread bool) (int, error)
	Dismiss(ctx context.Context, userID string, target svc.Target) (int, error)
}

// LoadedMsg carries the user's active notifications.
type LoadedMsg struct {
	Items []i18n.Rendered
	Err   error
}

// ActionMsg reports the result of a read or dismiss action.
type ActionMsg struct {
	Verb  string
	Count int
	Err   error
}

// Model is the inbox view.
type Model struct {
	list     list.Model
	help     help.Model
	service  Service
	userID   string
	keys     *keys.KeyMap
	status   string
	err      error
	showHelp bool
	width    int
	height   int
}

// New creates the inbox view for userID.
func New(s Service, userID string, k *keys.KeyMap, width, height int) Model {
	l := list.New([]list.Item{}, ItemDelegate{}, width, height-2)
	l.Title = "Reminders"
	l.SetShowStatusBar(true)
	l.SetShowHelp(false)
	l.SetFilteringEnabled(false)
	l.Styles.Title = theme.HeaderStyle

	h := help.New()
	h.Width = width

	return Model{
		list:    l,
		help:    h,
		service: s,
		userID:  userID,
		keys:    k,
		width:   width,
		height:  height,
	}
}

// Init loads the initial notifications.
func (m Model) Init() tea.Cmd {
	return m.Load()
}

// Update handles messages for the inbox view.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case LoadedMsg:
		m.err = msg.Err
		if msg.Err != nil {
			return m, nil
		}
		items := make([]list.Item, len(msg.Items))
		for i, r := range msg.Items {
			items[i] = Item{Rendered: r}
		}
		return m, m.list.SetItems(items)

	case ActionMsg:
		m.err = msg.Err
		if msg.Err == nil {
			m.status = fmt.Sprintf("%s %d", msg.Verb, msg.Count)
		}
		return m, m.Load()

	case tea.WindowSizeMsg:
		m.SetSize(msg.Width, msg.Height)
		return m, nil

	case tea.KeyMsg:
		return m.handleKeys(msg)
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m Model) handleKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.keys.Help):
		m.showHelp = !m.showHelp
		return m, nil

	case key.Matches(msg, m.keys.Refresh):
		return m, m.Load()

	case key.Matches(msg, m.keys.ReadAll):
		return m, m.markRead("marked read", svc.All(), false)

	case key.Matches(msg, m.keys.DismissAll):
		return m, m.dismiss("dismissed", svc.All())
	}

	it, ok := m.list.SelectedItem().(Item)
	if ok {
		switch {
		case key.Matches(msg, m.keys.ToggleRead):
			verb := "marked read"
			if it.Read {
				verb = "marked unread"
			}
			return m, m.markRead(verb, svc.ByID(it.ID), it.Read)

		case key.Matches(msg, m.keys.Dismiss):
			return m, m.dismiss("dismissed", svc.ByID(it.ID))

		case key.Matches(msg, m.keys.DismissTask):
			return m, m.dismiss("dismissed and muted", svc.ByTask(it.TaskID))
		}
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

// View renders the inbox.
func (m Model) View() string {
	var body string
	if len(m.list.Items()) == 0 && m.err == nil {
		body = lipgloss.NewStyle().
			Width(m.width).
			Height(m.height-2).
			Align(lipgloss.Center, lipgloss.Center).
			Foreground(theme.ColorGray).
			Render("Nothing due. You're all caught up.")
	} else {
		body = m.list.View()
	}

	status := theme.StatusBarStyle.Render(m.status)
	if m.err != nil {
		status = theme.ErrorStyle.Render(m.err.Error())
	}

	m.help.ShowAll = m.showHelp
	return lipgloss.JoinVertical(lipgloss.Left, body, status, theme.HelpStyle.Render(m.help.View(m.keys)))
}

// Load returns a tea.Cmd that fetches the user's active notifications.
func (m Model) Load() tea.Cmd {
	s, userID := m.service, m.userID
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		items, err := s.ListRendered(ctx, userID)
		return LoadedMsg{Items: items, Err: err}
	}
}

func (m Model) markRead(verb string, target svc.Target, asUnread bool) tea.Cmd {
	s, userID := m.service, m.userID
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		n, err := s.MarkRead(ctx, userID, target, asUnread)
		return ActionMsg{Verb: verb, Count: n, Err: err}
	}
}

func (m Model) dismiss(verb string, target svc.Target) tea.Cmd {
	s, userID := m.service, m.userID
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		n, err := s.Dismiss(ctx, userID, target)
		return ActionMsg{Verb: verb, Count: n, Err: err}
	}
}

// SetSize updates the view dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.list.SetSize(width, height-2)
	m.help.Width = width
}
