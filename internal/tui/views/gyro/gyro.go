// Package gyro renders the live gyroscope reading as three centred bars.
// Displayed values chase the latest reading on critically damped springs so
// the bars move smoothly at the UI frame rate regardless of sample rate.
package gyro

import (
	"fmt"
	"math"
	"strings"

	"github.com/charmbracelet/harmonica"
	"github.com/charmbracelet/lipgloss"

	"github.com/gyrocam/client/internal/tui/theme"
)

// FPS is the animation step rate the springs are tuned for.
const FPS = 20

const defaultScale = 2.0

var axes = [3]struct {
	name  string
	color lipgloss.Color
}{
	{"x", theme.ColorAxisX},
	{"y", theme.ColorAxisY},
	{"z", theme.ColorAxisZ},
}

// Model is the gauge state.
type Model struct {
	// Scale is the magnitude shown at full bar length.
	Scale float64
	Width int

	spring harmonica.Spring
	target [3]float64
	pos    [3]float64
	vel    [3]float64
}

// New creates a gauge at rest.
func New() Model {
	return Model{
		Scale:  defaultScale,
		spring: harmonica.NewSpring(harmonica.FPS(FPS), 8.0, 1.0),
	}
}

// SetTarget sets the reading the bars move toward. Non-finite values are
// treated as zero.
func (m *Model) SetTarget(x, y, z float64) {
	for i, v := range [3]float64{x, y, z} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			v = 0
		}
		m.target[i] = v
	}
}

// Step advances the springs by one frame.
func (m *Model) Step() {
	for i := range m.pos {
		m.pos[i], m.vel[i] = m.spring.Update(m.pos[i], m.vel[i], m.target[i])
	}
}

// Displayed returns the current animated values.
func (m Model) Displayed() [3]float64 {
	return m.pos
}

// Settled reports whether every bar is within eps of its target.
func (m Model) Settled(eps float64) bool {
	for i := range m.pos {
		if math.Abs(m.pos[i]-m.target[i]) > eps || math.Abs(m.vel[i]) > eps {
			return false
		}
	}
	return true
}

// View renders the gauge.
func (m Model) View() string {
	barW := max(m.Width-22, 10)
	half := barW / 2
	scale := m.Scale
	if scale <= 0 {
		scale = defaultScale
	}

	lines := make([]string, 0, len(axes)+1)
	lines = append(lines, theme.StyleHeader.Render("GYRO (rad/s)"))
	for i, ax := range axes {
		v := m.pos[i]
		n := int(math.Round(math.Min(math.Abs(v)/scale, 1) * float64(half)))

		left := strings.Repeat(" ", half)
		right := strings.Repeat(" ", half)
		fill := lipgloss.NewStyle().Foreground(ax.color).Render(strings.Repeat("█", n))
		if v < 0 {
			left = strings.Repeat(" ", half-n) + fill
		} else {
			right = fill + strings.Repeat(" ", half-n)
		}
		label := lipgloss.NewStyle().Foreground(ax.color).Bold(true).Render(ax.name)
		value := fmt.Sprintf("%+7.3f", m.target[i])
		lines = append(lines, fmt.Sprintf("%s [%s│%s] %s", label, left, right, value))
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}
