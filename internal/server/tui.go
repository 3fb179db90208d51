// ABOUTME: Server TUI for executor sessions and request stats
// ABOUTME: bubbletea program fed with status snapshots from the server
package server

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	tuiTitle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205")).MarginBottom(1)
	tuiLabel   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))
	tuiValue   = lipgloss.NewStyle().Foreground(lipgloss.Color("250"))
	tuiSection = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("220"))
	tuiHint    = lipgloss.NewStyle().Faint(true)
)

// ServerTUI owns the bubbletea program for serve --tui
type ServerTUI struct {
	program  *tea.Program
	updates  chan ServerStatus
	quitChan chan struct{}
}

// ServerStatus is one snapshot rendered by the TUI
type ServerStatus struct {
	Name     string
	Port     int
	Skew     time.Duration
	MDNS     bool
	Requests uint64
	Sessions []SessionInfo
}

// SessionInfo describes one executor session
type SessionInfo struct {
	ID         string
	RemoteAddr string
	Age        time.Duration
}

type statusModel struct {
	status   ServerStatus
	started  time.Time
	quitting bool
	quit     chan<- struct{}
}

type refreshMsg time.Time
type statusMsg ServerStatus

func refreshEverySecond() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg { return refreshMsg(t) })
}

func (m statusModel) Init() tea.Cmd {
	return refreshEverySecond()
}

func (m statusModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			select {
			case m.quit <- struct{}{}:
			default:
			}
			return m, tea.Quit
		}
	case refreshMsg:
		return m, refreshEverySecond()
	case statusMsg:
		m.status = ServerStatus(msg)
	}
	return m, nil
}

func (m statusModel) View() string {
	if m.quitting {
		return "Shutting down server...\n"
	}

	var b strings.Builder
	b.WriteString(tuiTitle.Render("netclock time server"))
	b.WriteString("\n\n")

	fields := []struct{ label, value string }{
		{"Server", m.status.Name},
		{"Port", fmt.Sprintf("%d", m.status.Port)},
		{"Uptime", time.Since(m.started).Round(time.Second).String()},
		{"Skew", m.status.Skew.String()},
		{"mDNS", fmt.Sprintf("%v", m.status.MDNS)},
		{"Requests", fmt.Sprintf("%d", m.status.Requests)},
	}
	for _, f := range fields {
		fmt.Fprintf(&b, "%s %s\n", tuiLabel.Render(f.label+":"), tuiValue.Render(f.value))
	}

	b.WriteString("\n")
	b.WriteString(m.renderSessions())
	b.WriteString("\n")
	b.WriteString(tuiHint.Render("q / ctrl+c to stop the server"))
	return b.String()
}

func (m statusModel) renderSessions() string {
	var b strings.Builder
	b.WriteString(tuiSection.Render(fmt.Sprintf("Executor sessions: %d", len(m.status.Sessions))))
	b.WriteString("\n")

	if len(m.status.Sessions) == 0 {
		b.WriteString(tuiValue.Render("  none"))
		b.WriteString("\n")
		return b.String()
	}
	for _, s := range m.status.Sessions {
		id := s.ID
		if len(id) > 8 {
			id = id[:8]
		}
		fmt.Fprintf(&b, "  %s %s\n", id, tuiValue.Render(fmt.Sprintf("%s, up %s", s.RemoteAddr, s.Age.Round(time.Second))))
	}
	return b.String()
}

// NewServerTUI creates a TUI; Start runs it
func NewServerTUI() *ServerTUI {
	return &ServerTUI{
		updates:  make(chan ServerStatus, 10),
		quitChan: make(chan struct{}, 1),
	}
}

// Start runs the program until it quits
func (t *ServerTUI) Start(initial ServerStatus) error {
	t.program = tea.NewProgram(statusModel{
		status:  initial,
		started: time.Now(),
		quit:    t.quitChan,
	}, tea.WithAltScreen())

	go func() {
		for status := range t.updates {
			t.program.Send(statusMsg(status))
		}
	}()

	_, err := t.program.Run()
	return err
}

// Update queues a snapshot, dropping it when the queue is full
func (t *ServerTUI) Update(status ServerStatus) {
	select {
	case t.updates <- status:
	default:
	}
}

// Stop quits the program and ends the update pump
func (t *ServerTUI) Stop() {
	if t.program != nil {
		t.program.Quit()
	}
	close(t.updates)
}

// QuitChan fires when the user quits from the TUI
func (t *ServerTUI) QuitChan() <-chan struct{} {
	return t.quitChan
}
