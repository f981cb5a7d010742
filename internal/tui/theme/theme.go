// Package theme provides the Lip Gloss palette and shared styles for the
// gyrocam terminal UI. It is a leaf package with no internal imports.
package theme

import "github.com/charmbracelet/lipgloss"

// Session phase colors.
var (
	ColorIdle         = lipgloss.Color("#6b7280")
	ColorConnecting   = lipgloss.Color("#d97706")
	ColorStreaming    = lipgloss.Color("#22c55e")
	ColorDisconnected = lipgloss.Color("#9ca3af")
	ColorFailed       = lipgloss.Color("#dc2626")
)

// Gyro axis colors.
var (
	ColorAxisX = lipgloss.Color("#ef4444")
	ColorAxisY = lipgloss.Color("#22c55e")
	ColorAxisZ = lipgloss.Color("#3b82f6")
)

// UI chrome colors.
var (
	ColorBorder  = lipgloss.Color("#4b5563")
	ColorDimmed  = lipgloss.Color("#6b7280")
	ColorBright  = lipgloss.Color("#f9fafb")
	ColorAccent  = lipgloss.Color("#7c3aed")
	ColorWarning = lipgloss.Color("#d97706")
	ColorDanger  = lipgloss.Color("#dc2626")
)

// PhaseColor returns the color for a session phase label.
func PhaseColor(label string) lipgloss.Color {
	switch label {
	case "idle":
		return ColorIdle
	case "connecting":
		return ColorConnecting
	case "streaming":
		return ColorStreaming
	case "disconnected":
		return ColorDisconnected
	case "failed":
		return ColorFailed
	default:
		return ColorDimmed
	}
}

// PhaseGlyph returns a glyph for a session phase label.
func PhaseGlyph(label string) string {
	switch label {
	case "idle":
		return "○"
	case "connecting":
		return "◌"
	case "streaming":
		return "●"
	case "disconnected":
		return "◎"
	case "failed":
		return "✗"
	default:
		return "·"
	}
}

// Reusable styles.
var (
	StyleBorder = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(ColorBorder)

	StyleHeader = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorBright)

	StyleDimmed = lipgloss.NewStyle().
			Foreground(ColorDimmed)

	StyleError = lipgloss.NewStyle().
			Foreground(ColorDanger)
)
