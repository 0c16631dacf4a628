package status

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"

	"github.com/nagyistoce/jupyter-client/internal/theme"
)

// Model holds the status bar state.
type Model struct {
	State     string // session state, or "lost" after a transport failure
	Busy      bool
	ExecCount int
	Pending   int // requests without a reply yet
	Dropped   int
	Endpoint  string
	Width     int
}

// New creates a status bar model.
func New(endpoint string) Model {
	return Model{State: "not_started", Endpoint: endpoint}
}

// View renders the status bar.
func (m Model) View() string {
	width := max(m.Width, 40)

	state := lipgloss.NewStyle().Foreground(theme.StateColor(m.State)).Render("● " + m.State)

	activity := lipgloss.NewStyle().Foreground(theme.ColorHealthy).Render("idle")
	if m.Busy {
		activity = lipgloss.NewStyle().Foreground(theme.ColorWarning).Render("busy")
	}

	counts := fmt.Sprintf("In [%d]  %d pending", m.ExecCount, m.Pending)
	if m.Dropped > 0 {
		counts += lipgloss.NewStyle().Foreground(theme.ColorDanger).Render(fmt.Sprintf("  %d dropped", m.Dropped))
	}

	sep := lipgloss.NewStyle().Foreground(theme.ColorBorder).Render(" | ")
	content := state + sep + activity + sep + counts
	if m.Endpoint != "" {
		content += sep + theme.StyleDimmed.Render(m.Endpoint)
	}

	return lipgloss.NewStyle().
		Width(width).
		Padding(0, 1).
		BorderStyle(lipgloss.DoubleBorder()).
		BorderForeground(theme.ColorBorder).
		Render(content)
}
