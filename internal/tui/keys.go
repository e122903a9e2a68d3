package tui

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	Quit       key.Binding
	Up         key.Binding
	Down       key.Binding
	Report     key.Binding
	Search     key.Binding
	Filter     key.Binding
	Theme      key.Binding
	Logout     key.Binding
	InProgress key.Binding
	Resolved   key.Binding
	Reopen     key.Binding
	Dismiss    key.Binding

	Next     key.Binding
	Prev     key.Binding
	Submit   key.Binding
	Register key.Binding
	Back     key.Binding
	Cycle    key.Binding
}

var keys = keyMap{
	Quit:       key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	Up:         key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
	Down:       key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
	Report:     key.NewBinding(key.WithKeys("n"), key.WithHelp("n", "report issue")),
	Search:     key.NewBinding(key.WithKeys("/", "ctrl+k"), key.WithHelp("/", "search")),
	Filter:     key.NewBinding(key.WithKeys("f"), key.WithHelp("f", "filter")),
	Theme:      key.NewBinding(key.WithKeys("t", "ctrl+t"), key.WithHelp("t", "theme")),
	Logout:     key.NewBinding(key.WithKeys("o"), key.WithHelp("o", "logout")),
	InProgress: key.NewBinding(key.WithKeys("1"), key.WithHelp("1", "in progress")),
	Resolved:   key.NewBinding(key.WithKeys("2"), key.WithHelp("2", "resolved")),
	Reopen:     key.NewBinding(key.WithKeys("3"), key.WithHelp("3", "reopen")),
	Dismiss:    key.NewBinding(key.WithKeys("x"), key.WithHelp("x", "dismiss")),

	Next:     key.NewBinding(key.WithKeys("tab", "down"), key.WithHelp("tab", "next field")),
	Prev:     key.NewBinding(key.WithKeys("shift+tab", "up"), key.WithHelp("shift+tab", "prev field")),
	Submit:   key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "submit")),
	Register: key.NewBinding(key.WithKeys("ctrl+r"), key.WithHelp("ctrl+r", "register")),
	Back:     key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "back")),
	Cycle:    key.NewBinding(key.WithKeys("left", "right", " "), key.WithHelp("←/→", "role")),
}

func helpLine(bindings ...key.Binding) string {
	out := ""
	for i, b := range bindings {
		if i > 0 {
			out += " • "
		}
		h := b.Help()
		out += h.Key + " " + h.Desc
	}
	return out
}
