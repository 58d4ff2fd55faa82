// Package search implements the interactive catalog search TUI.
package search

import "github.com/charmbracelet/lipgloss"

// Theme centralizes all styling for the search TUI.
type Theme struct {
	Title   lipgloss.Style
	Input   lipgloss.Style
	Status  lipgloss.Style
	Error   lipgloss.Style
	Notice  lipgloss.Style
	Dim     lipgloss.Style
	Help    lipgloss.Style
	Header  lipgloss.Style
	Matched lipgloss.Style
}

func NewDefaultTheme() Theme {
	purple := lipgloss.Color("#874BFD")

	return Theme{
		Title: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(purple).
			Padding(0, 1),
		Input: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(purple).
			Padding(0, 1),
		Status:  lipgloss.NewStyle().Foreground(lipgloss.Color("#61AFEF")),
		Error:   lipgloss.NewStyle().Foreground(lipgloss.Color("#FF0000")),
		Notice:  lipgloss.NewStyle().Foreground(lipgloss.Color("#E5C07B")),
		Dim:     lipgloss.NewStyle().Foreground(lipgloss.Color("#888888")),
		Help:    lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
		Header:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#61AFEF")),
		Matched: lipgloss.NewStyle().Foreground(lipgloss.Color("#00FF00")),
	}
}
