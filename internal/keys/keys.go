package keys

import "github.com/charmbracelet/bubbles/key"

// KeyMap defines the inbox keybindings.
type KeyMap struct {
	Down key.Binding
	Up   key.Binding

	// Read state
	ToggleRead key.Binding
	ReadAll    key.Binding

	// Dismissal
	Dismiss     key.Binding
	DismissTask key.Binding
	DismissAll  key.Binding

	Refresh key.Binding
	Help    key.Binding
	Quit    key.Binding
}

// DefaultKeyMap returns the default set of keybindings.
func DefaultKeyMap() *KeyMap {
	return &KeyMap{
		Down: key.NewBinding(
			key.WithKeys("j", "down"),
			key.WithHelp("j/↓", "down"),
		),
		Up: key.NewBinding(
			key.WithKeys("k", "up"),
			key.WithHelp("k/↑", "up"),
		),
		ToggleRead: key.NewBinding(
			key.WithKeys("enter", " "),
			key.WithHelp("enter", "toggle read"),
		),
		ReadAll: key.NewBinding(
			key.WithKeys("R"),
			key.WithHelp("R", "mark all read"),
		),
		Dismiss: key.NewBinding(
			key.WithKeys("d"),
			key.WithHelp("d", "dismiss"),
		),
		DismissTask: key.NewBinding(
			key.WithKeys("m"),
			key.WithHelp("m", "dismiss + mute task"),
		),
		DismissAll: key.NewBinding(
			key.WithKeys("D"),
			key.WithHelp("D", "dismiss all"),
		),
		Refresh: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "refresh"),
		),
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "toggle help"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
	}
}

// ShortHelp returns the most essential keybindings for the compact help view.
func (k *KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.ToggleRead, k.Dismiss, k.DismissTask, k.Help, k.Quit}
}

// FullHelp returns all keybindings grouped by category.
func (k *KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.Refresh},
		{k.ToggleRead, k.ReadAll},
		{k.Dismiss, k.DismissTask, k.DismissAll},
		{k.Help, k.Quit},
	}
}
