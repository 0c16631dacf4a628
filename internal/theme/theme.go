// Package theme provides the Lip Gloss color palette and reusable styles
// for the kernel console. It is a leaf package with no internal imports
// to avoid import cycles.
package theme

import "github.com/charmbracelet/lipgloss"

// Stream colors.
var (
	ColorOutput  = lipgloss.Color("#e5e7eb")
	ColorError   = lipgloss.Color("#dc2626")
	ColorInput   = lipgloss.Color("#2563eb")
	ColorReply   = lipgloss.Color("#16a34a")
	ColorDisplay = lipgloss.Color("#a855f7")
	ColorPrompt  = lipgloss.Color("#d97706")
	ColorSystem  = lipgloss.Color("#7c3aed")
)

// UI chrome colors.
var (
	ColorBorder  = lipgloss.Color("#4b5563")
	ColorDimmed  = lipgloss.Color("#6b7280")
	ColorBright  = lipgloss.Color("#f9fafb")
	ColorHealthy = lipgloss.Color("#22c55e")
	ColorWarning = lipgloss.Color("#d97706")
	ColorDanger  = lipgloss.Color("#dc2626")
)

// KindColor returns the color for a console entry kind.
func KindColor(kind string) lipgloss.Color {
	switch kind {
	case "out":
		return ColorOutput
	case "err":
		return ColorError
	case "in":
		return ColorInput
	case "rep":
		return ColorReply
	case "md":
		return ColorDisplay
	case "ask":
		return ColorPrompt
	case "sys":
		return ColorSystem
	default:
		return ColorDimmed
	}
}

// StateColor returns the color for a session state name.
func StateColor(state string) lipgloss.Color {
	switch state {
	case "running":
		return ColorHealthy
	case "lost":
		return ColorDanger
	case "stopped":
		return ColorWarning
	default:
		return ColorDimmed
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

	StylePrompt = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorPrompt)
)
