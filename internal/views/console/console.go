// Package console provides the scrollable transcript of kernel traffic.
package console

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"github.com/nagyistoce/jupyter-client/internal/theme"
)

const maxEntries = 500

// Entry is one transcript item. Text may span several lines.
type Entry struct {
	Time time.Time
	Kind string // "out", "err", "in", "rep", "md", "ask", "sys"
	Text string
}

// Model holds transcript state.
type Model struct {
	Entries []Entry
	Offset  int // scroll offset in lines (from bottom)
}

func New() Model {
	return Model{}
}

// Add appends an entry and caps the buffer. Trailing newlines are trimmed.
func (m *Model) Add(kind, text string) {
	m.Entries = append(m.Entries, Entry{
		Time: time.Now(),
		Kind: kind,
		Text: strings.TrimRight(text, "\n"),
	})
	if len(m.Entries) > maxEntries {
		m.Entries = m.Entries[len(m.Entries)-maxEntries:]
	}
	// Reset scroll to bottom on new entry.
	m.Offset = 0
}

// ScrollUp moves the viewport up.
func (m *Model) ScrollUp(n int) {
	m.Offset += n
	limit := max(m.lineCount()-1, 0)
	if m.Offset > limit {
		m.Offset = limit
	}
}

// ScrollDown moves the viewport down.
func (m *Model) ScrollDown(n int) {
	m.Offset = max(m.Offset-n, 0)
}

func (m Model) lineCount() int {
	n := 0
	for _, e := range m.Entries {
		n += strings.Count(e.Text, "\n") + 1
	}
	return n
}

// lines flattens entries into display lines; continuation lines carry an
// empty timestamp column.
func (m Model) lines(width int) []string {
	var out []string
	for _, e := range m.Entries {
		kindStr := lipgloss.NewStyle().Foreground(theme.KindColor(e.Kind)).Width(4).Render(e.Kind)
		for i, line := range strings.Split(e.Text, "\n") {
			if width > 20 && lipgloss.Width(line) > width-17 && e.Kind != "md" {
				line = ansi.Truncate(line, width-17, "...")
			}
			if i == 0 {
				ts := theme.StyleDimmed.Render(e.Time.Format("15:04:05"))
				out = append(out, fmt.Sprintf("%s %s %s", ts, kindStr, line))
				continue
			}
			out = append(out, strings.Repeat(" ", 14)+line)
		}
	}
	return out
}

func panelStyle(width int) lipgloss.Style {
	return lipgloss.NewStyle().
		Width(width).
		Padding(0, 1).
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(theme.ColorBorder)
}

// View renders the transcript in a bordered panel of the given size.
func (m Model) View(width, height int) string {
	innerW := max(width-4, 20)
	visible := max(height-4, 3)

	title := theme.StyleHeader.Render(" KERNEL ")
	if len(m.Entries) == 0 {
		body := theme.StyleDimmed.Render("  Nothing received yet.")
		return panelStyle(innerW).Render(lipgloss.JoinVertical(lipgloss.Left, title, body))
	}

	all := m.lines(innerW)
	end := max(len(all)-m.Offset, 0)
	start := max(end-visible, 0)

	body := strings.Join(all[start:end], "\n")
	indicator := ""
	if m.Offset > 0 {
		indicator = theme.StyleDimmed.Render(fmt.Sprintf(" ↓ %d more", m.Offset))
	}
	return panelStyle(innerW).Render(lipgloss.JoinVertical(lipgloss.Left, title, body, indicator))
}
