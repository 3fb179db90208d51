// ABOUTME: Bubbletea model for the live clock TUI
// ABOUTME: Defines display state for corrected time, offset and sync health
package ui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// Info is the static configuration shown in the header
type Info struct {
	Sources  []string
	Strategy string
	Mode     string // "main", "worker" or "remote"
	Timezone string
}

// Model represents the TUI state
type Model struct {
	info Info

	// Clock
	running   bool
	now       int64
	formatted string

	// Sync
	offset     float64
	averageRTT float64
	lastSync   int64
	syncCount  int
	errCount   int
	lastErr    string

	// Debug
	showDebug bool

	// Dimensions
	width  int
	height int

	control *Control
}

// StatusMsg updates TUI state. Nil and zero fields are left unchanged.
type StatusMsg struct {
	Running    *bool
	Now        int64
	Formatted  string
	Offset     *float64
	AverageRTT float64
	LastSync   int64
	Synced     bool
	Err        error
}

// Init initializes the model
func (m Model) Init() tea.Cmd {
	return nil
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	case StatusMsg:
		m.applyStatus(msg)
	}

	return m, nil
}

// View renders the TUI
func (m Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	s := ""
	s += m.renderHeader()
	s += m.renderClock()
	s += m.renderSync()

	if m.showDebug {
		s += m.renderDebug()
	}

	s += m.renderHelp()

	return s
}

// renderHeader renders run state and configuration
func (m Model) renderHeader() string {
	status := "Stopped"
	if m.running {
		status = "Running"
	}

	return fmt.Sprintf(`┌─ netclock ───────────────────────────────────────────┐
│ Status:   %-42s │
│ Strategy: %-42s │
│ Sources:  %-42s │
├──────────────────────────────────────────────────────┤
`, fmt.Sprintf("%s (%s)", status, m.info.Mode), m.info.Strategy, sourcesSummary(m.info.Sources))
}

// renderClock renders the corrected time
func (m Model) renderClock() string {
	if m.now == 0 {
		return "│ Waiting for first tick...                            │\n"
	}

	s := fmt.Sprintf("│ Corrected: %-41s │\n", time.UnixMilli(m.now).UTC().Format("15:04:05.000 UTC"))
	if m.formatted != "" {
		s += fmt.Sprintf("│ Local:     %-41s │\n", truncate(m.formatted+" "+m.info.Timezone, 41))
	}
	return s
}

// renderSync renders offset and round statistics
func (m Model) renderSync() string {
	icon := "✗"
	text := "Not synced"
	switch {
	case m.syncCount > 0 && m.lastErr == "":
		icon = "✓"
		text = fmt.Sprintf("offset %+.1fms, avg RTT %.1fms", m.offset, m.averageRTT)
	case m.syncCount > 0:
		icon = "⚠"
		text = fmt.Sprintf("offset %+.1fms (last round failed)", m.offset)
	}

	s := "├──────────────────────────────────────────────────────┤\n"
	s += fmt.Sprintf("│ Sync:   %s %-42s │\n", icon, truncate(text, 42))
	s += fmt.Sprintf("│ Rounds: %-4d Errors: %-4d Last: %-18s │\n", m.syncCount, m.errCount, lastSyncText(m.lastSync))
	if m.lastErr != "" {
		s += fmt.Sprintf("│ Error:  %-44s │\n", truncate(m.lastErr, 44))
	}
	s += "│                                                      │\n"
	return s
}

// renderHelp renders keyboard shortcuts
func (m Model) renderHelp() string {
	return `│ s:Sync now  space:Start/Stop  d:Debug  q:Quit        │
└──────────────────────────────────────────────────────┘
`
}

// renderDebug lists every configured source
func (m Model) renderDebug() string {
	s := "│ DEBUG:                                               │\n"
	for _, src := range m.info.Sources {
		s += fmt.Sprintf("│   %-50s │\n", truncate(src, 50))
	}
	s += fmt.Sprintf("│   Offset: %+.3fms%-30s │\n", m.offset, "")
	return s
}

// handleKey handles keyboard input
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		m.control.send(ActionQuit)
		return m, tea.Quit
	case "s":
		m.control.send(ActionSync)
	case " ":
		m.control.send(ActionToggle)
	case "d":
		m.showDebug = !m.showDebug
	}

	return m, nil
}

// applyStatus updates model from status message
func (m *Model) applyStatus(msg StatusMsg) {
	if msg.Running != nil {
		m.running = *msg.Running
	}
	if msg.Now != 0 {
		m.now = msg.Now
	}
	if msg.Formatted != "" {
		m.formatted = msg.Formatted
	}
	if msg.Offset != nil {
		m.offset = *msg.Offset
	}
	if msg.AverageRTT != 0 {
		m.averageRTT = msg.AverageRTT
	}
	if msg.Synced {
		m.syncCount++
		m.lastErr = ""
		if msg.LastSync != 0 {
			m.lastSync = msg.LastSync
		}
	}
	if msg.Err != nil {
		m.errCount++
		m.lastErr = msg.Err.Error()
	}
}

func sourcesSummary(sources []string) string {
	switch len(sources) {
	case 0:
		return "(none)"
	case 1:
		return truncate(sources[0], 42)
	default:
		return truncate(fmt.Sprintf("%s (+%d more)", sources[0], len(sources)-1), 42)
	}
}

func lastSyncText(ms int64) string {
	if ms == 0 {
		return "never"
	}
	return time.UnixMilli(ms).UTC().Format("15:04:05")
}

func truncate(s string, length int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= length {
		return s
	}
	return s[:length-3] + "..."
}
