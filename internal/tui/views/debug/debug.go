// Package debug provides the scrollable event log overlay: session
// transitions, per-cycle failures and UI actions.
package debug

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/gyrocam/client/internal/tui/theme"
)

const maxEntries = 500

// Kind tags an entry's origin.
type Kind string

const (
	KindSession Kind = "sess"
	KindFailure Kind = "fail"
	KindUI      Kind = "ui"
)

// Entry is a single log line.
type Entry struct {
	Time    time.Time
	Kind    Kind
	Message string
}

// Model holds the log. Offset counts lines scrolled up from the bottom.
type Model struct {
	Entries []Entry
	Offset  int
	now     func() time.Time
}

// New creates an empty log.
func New() Model {
	return Model{now: time.Now}
}

// Add appends an entry, dropping the oldest past maxEntries. A new entry
// snaps the view back to the bottom.
func (m *Model) Add(kind Kind, message string) {
	now := time.Now
	if m.now != nil {
		now = m.now
	}
	m.Entries = append(m.Entries, Entry{Time: now(), Kind: kind, Message: message})
	if len(m.Entries) > maxEntries {
		m.Entries = m.Entries[len(m.Entries)-maxEntries:]
	}
	m.Offset = 0
}

// Addf is Add with formatting.
func (m *Model) Addf(kind Kind, format string, args ...any) {
	m.Add(kind, fmt.Sprintf(format, args...))
}

// Count returns entries of kind.
func (m Model) Count(kind Kind) int {
	n := 0
	for _, e := range m.Entries {
		if e.Kind == kind {
			n++
		}
	}
	return n
}

func (m *Model) ScrollUp(n int) {
	m.Offset = min(m.Offset+n, max(len(m.Entries)-1, 0))
}

func (m *Model) ScrollDown(n int) {
	m.Offset = max(m.Offset-n, 0)
}

func panelStyle(width int) lipgloss.Style {
	return lipgloss.NewStyle().
		Width(width).
		Padding(1, 2).
		BorderStyle(lipgloss.DoubleBorder()).
		BorderForeground(theme.ColorBorder)
}

// View renders the overlay.
func (m Model) View(width, height int) string {
	innerW := max(width-4, 20)
	visible := max(height-6, 3)

	title := theme.StyleHeader.Render(" EVENT LOG ")
	help := theme.StyleDimmed.Render(fmt.Sprintf("j/k:scroll  esc:close  %d entries  %d failures",
		len(m.Entries), m.Count(KindFailure)))

	if len(m.Entries) == 0 {
		body := theme.StyleDimmed.Render("  Nothing logged yet.")
		return panelStyle(innerW).Render(lipgloss.JoinVertical(lipgloss.Left, title, "", body, "", help))
	}

	end := max(len(m.Entries)-m.Offset, 0)
	start := max(end-visible, 0)

	lines := make([]string, 0, end-start)
	for _, e := range m.Entries[start:end] {
		ts := theme.StyleDimmed.Render(e.Time.Format("15:04:05.000"))
		kind := lipgloss.NewStyle().Foreground(kindColor(e.Kind)).Width(5).Render(string(e.Kind))
		msg := e.Message
		if limit := innerW - 20; limit > 3 && len(msg) > limit {
			msg = msg[:limit-3] + "..."
		}
		lines = append(lines, ts+" "+kind+" "+msg)
	}

	scroll := ""
	if m.Offset > 0 {
		scroll = theme.StyleDimmed.Render(fmt.Sprintf(" ↓ %d more", m.Offset))
	}
	content := lipgloss.JoinVertical(lipgloss.Left, title, strings.Join(lines, "\n"), scroll, help)
	return panelStyle(innerW).Render(content)
}

func kindColor(kind Kind) lipgloss.Color {
	switch kind {
	case KindSession:
		return theme.ColorAccent
	case KindFailure:
		return theme.ColorDanger
	case KindUI:
		return theme.ColorWarning
	default:
		return theme.ColorDimmed
	}
}
