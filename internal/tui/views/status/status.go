package status

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"

	"github.com/gyrocam/client/internal/tui/theme"
)

// Model holds the status bar state.
type Model struct {
	Phase    string // session phase label
	State    string // display text, e.g. "Failed: connection refused"
	Endpoint string
	Sent     uint64
	Failed   uint64
	Samples  uint64
	Error    string // last input error
	Width    int
}

// New creates a status bar model.
func New() Model {
	return Model{Phase: "idle", State: "Idle"}
}

// View renders the status bar.
func (m Model) View() string {
	width := max(m.Width, 40)

	stateStr := lipgloss.NewStyle().
		Foreground(theme.PhaseColor(m.Phase)).
		Render(theme.PhaseGlyph(m.Phase) + " " + m.State)

	sep := lipgloss.NewStyle().Foreground(theme.ColorBorder).Render(" | ")
	content := stateStr
	if m.Endpoint != "" {
		content += sep + m.Endpoint
	}
	content += sep + fmt.Sprintf("%d sent  %d failed  %d samples", m.Sent, m.Failed, m.Samples)
	if m.Error != "" {
		content += sep + theme.StyleError.Render(m.Error)
	}

	return lipgloss.NewStyle().
		Width(width).
		Padding(0, 1).
		BorderStyle(lipgloss.DoubleBorder()).
		BorderForeground(theme.ColorBorder).
		Render(content)
}
