package inspect

import "github.com/charmbracelet/lipgloss"

// Theme holds the styles used by the terminal renderers.
type Theme struct {
	StatusOK     lipgloss.Style
	StatusFailed lipgloss.Style
	StatusWarn   lipgloss.Style

	Border    lipgloss.Style
	Title     lipgloss.Style
	Header    lipgloss.Style
	Dim       lipgloss.Style
	Highlight lipgloss.Style
}

// DefaultTheme returns the standard colour scheme. Colours degrade to plain
// text when stdout is not a terminal.
func DefaultTheme() Theme {
	purple := lipgloss.Color("#874BFD")

	return Theme{
		StatusOK:     lipgloss.NewStyle().Foreground(lipgloss.Color("#00FF00")),
		StatusFailed: lipgloss.NewStyle().Foreground(lipgloss.Color("#FF0000")),
		StatusWarn:   lipgloss.NewStyle().Foreground(lipgloss.Color("#FFFF00")),

		Border: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(purple).
			Padding(0, 1),
		Title: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")),
		Header: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#61AFEF")),
		Dim:       lipgloss.NewStyle().Foreground(lipgloss.Color("#888888")),
		Highlight: lipgloss.NewStyle().Foreground(lipgloss.Color("#E5C07B")),
	}
}
