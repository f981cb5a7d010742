// Package help renders the key reference overlay from Markdown.
package help

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/gyrocam/client/internal/tui/theme"
)

const intro = `# gyrocam

Streams camera frames with the current gyroscope reading to a collector at
` + "`ws://<host>:%d`" + `. Enter the collector host, then start a session.
Stopping returns to **Disconnected**; a refused or dropped connection shows
**Failed** with the reason.
`

// Model caches the rendered overlay per width.
type Model struct {
	Port     int
	Bindings []key.Binding

	cacheWidth int
	cache      string
}

// New creates a help overlay for bindings.
func New(port int, bindings ...key.Binding) Model {
	return Model{Port: port, Bindings: bindings}
}

// Markdown returns the overlay source.
func (m Model) Markdown() string {
	var b strings.Builder
	fmt.Fprintf(&b, intro, m.Port)
	b.WriteString("\n## Keys\n\n| Key | Action |\n|---|---|\n")
	for _, kb := range m.Bindings {
		h := kb.Help()
		if h.Key == "" {
			continue
		}
		fmt.Fprintf(&b, "| `%s` | %s |\n", h.Key, h.Desc)
	}
	return b.String()
}

// Render renders the Markdown at width. Rendering errors fall back to the
// raw Markdown.
func (m *Model) Render(width int) string {
	if width == m.cacheWidth && m.cache != "" {
		return m.cache
	}
	wrap := max(width-8, 20)
	md := m.Markdown()

	out := md
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle("dark"),
		glamour.WithWordWrap(wrap),
	)
	if err == nil {
		if rendered, rerr := r.Render(md); rerr == nil {
			out = rendered
		}
	}
	m.cacheWidth = width
	m.cache = out
	return out
}

// View renders the overlay panel.
func (m *Model) View(width int) string {
	body := m.Render(width)
	footer := theme.StyleDimmed.Render("esc:close")
	return lipgloss.NewStyle().
		Width(max(width-4, 24)).
		Padding(0, 1).
		BorderStyle(lipgloss.DoubleBorder()).
		BorderForeground(theme.ColorBorder).
		Render(lipgloss.JoinVertical(lipgloss.Left, body, footer))
}
