package tui

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	Quit     key.Binding
	Focus    key.Binding
	Apply    key.Binding
	Blur     key.Binding
	Up       key.Binding
	Down     key.Binding
	PageUp   key.Binding
	PageDown key.Binding
	Top      key.Binding
	Bottom   key.Binding
}

func defaultKeyMap() keyMap {
	return keyMap{
		Quit:     key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
		Focus:    key.NewBinding(key.WithKeys("tab", "u"), key.WithHelp("tab", "edit url")),
		Apply:    key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "connect")),
		Blur:     key.NewBinding(key.WithKeys("esc", "tab"), key.WithHelp("esc", "cancel")),
		Up:       key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "scroll up")),
		Down:     key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "scroll down")),
		PageUp:   key.NewBinding(key.WithKeys("pgup", "b"), key.WithHelp("pgup", "page up")),
		PageDown: key.NewBinding(key.WithKeys("pgdown", " ", "f"), key.WithHelp("pgdn", "page down")),
		Top:      key.NewBinding(key.WithKeys("home", "g"), key.WithHelp("g", "newest")),
		Bottom:   key.NewBinding(key.WithKeys("end", "G"), key.WithHelp("G", "oldest")),
	}
}

// browseHelp is shown in the menu bar while the block list has focus.
func (k keyMap) browseHelp() []key.Binding {
	return []key.Binding{k.Focus, k.Up, k.Down, k.Top, k.Quit}
}

// editHelp is shown while the url input has focus.
func (k keyMap) editHelp() []key.Binding {
	return []key.Binding{k.Apply, k.Blur}
}
