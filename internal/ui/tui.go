// ABOUTME: TUI initialization and control
// ABOUTME: Wraps the bubbletea program and carries key actions back to the caller
package ui

import (
	tea "github.com/charmbracelet/bubbletea"
)

// Action is a user request raised from the keyboard
type Action int

const (
	ActionSync Action = iota
	ActionToggle
	ActionQuit
)

// Control carries key actions to whoever owns the client
type Control struct {
	Actions chan Action
}

// NewControl creates a new control handler
func NewControl() *Control {
	return &Control{
		Actions: make(chan Action, 10),
	}
}

// send never blocks the UI; a nil Control drops the action
func (c *Control) send(a Action) {
	if c == nil {
		return
	}
	select {
	case c.Actions <- a:
	default:
	}
}

// NewModel creates a new TUI model
func NewModel(info Info, control *Control) Model {
	return Model{
		info:    info,
		control: control,
	}
}

// Run creates the program; the caller runs it
func Run(info Info, control *Control) (*tea.Program, error) {
	p := tea.NewProgram(NewModel(info, control), tea.WithAltScreen())
	return p, nil
}
