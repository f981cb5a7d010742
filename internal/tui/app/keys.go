package app

import "github.com/charmbracelet/bubbles/key"

// KeyMap defines the keyboard bindings outside host editing.
type KeyMap struct {
	Start  key.Binding
	Stop   key.Binding
	Edit   key.Binding
	Debug  key.Binding
	Help   key.Binding
	Up     key.Binding
	Down   key.Binding
	Escape key.Binding
	Quit   key.Binding
}

// DefaultKeyMap returns the default key bindings.
func DefaultKeyMap() KeyMap {
	return KeyMap{
		Start: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "start streaming"),
		),
		Stop: key.NewBinding(
			key.WithKeys("s"),
			key.WithHelp("s", "stop"),
		),
		Edit: key.NewBinding(
			key.WithKeys("e", "h"),
			key.WithHelp("e", "edit host"),
		),
		Debug: key.NewBinding(
			key.WithKeys("d"),
			key.WithHelp("d", "event log"),
		),
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "help"),
		),
		Up: key.NewBinding(
			key.WithKeys("k", "up"),
			key.WithHelp("k/↑", "scroll up"),
		),
		Down: key.NewBinding(
			key.WithKeys("j", "down"),
			key.WithHelp("j/↓", "scroll down"),
		),
		Escape: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "close overlay / cancel edit"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
	}
}

// HelpBindings lists bindings in help order.
func (k KeyMap) HelpBindings() []key.Binding {
	return []key.Binding{k.Edit, k.Start, k.Stop, k.Debug, k.Up, k.Down, k.Help, k.Escape, k.Quit}
}
