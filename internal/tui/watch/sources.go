package watch

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/lookout/internal/catalog"
)

// recentChange is how long a source stays highlighted after it changed.
const recentChange = 10 * time.Second

func renderSources(sources []catalog.SourceInfo, changed map[string]time.Time, theme Theme, width int, now time.Time) string {
	innerWidth := width - 4

	if len(sources) == 0 {
		content := lipgloss.JoinVertical(lipgloss.Left,
			theme.Title.Render("SOURCES"),
			theme.Dim.Render("  No sources imported"),
		)
		return theme.Border.Width(innerWidth).Render(content)
	}

	nameWidth := len("SOURCE")
	for _, s := range sources {
		nameWidth = max(nameWidth, len(s.Name))
	}

	lines := []string{theme.Header.Render(fmt.Sprintf("  %-*s %8s %10s  %s", nameWidth, "SOURCE", "ENTRIES", "IMPORTED", "ORIGIN"))}
	for _, s := range sources {
		marker := " "
		nameStyle := lipgloss.NewStyle()
		if at, ok := changed[s.Name]; ok && now.Sub(at) < recentChange {
			marker = theme.Changed.Render("●")
			nameStyle = theme.Changed
		}
		origin := s.Origin
		if origin == catalog.OriginAPI {
			origin = theme.Highlight.Render(origin)
		}
		lines = append(lines, fmt.Sprintf("%s %s %8d %10s  %s",
			marker,
			nameStyle.Render(fmt.Sprintf("%-*s", nameWidth, s.Name)),
			s.Entries,
			formatDuration(now.Sub(s.ImportedAt))+" ago",
			origin,
		))
	}

	content := lipgloss.JoinVertical(lipgloss.Left,
		theme.Title.Render("SOURCES"),
		lipgloss.NewStyle().Padding(0, 1).Render(strings.Join(lines, "\n")),
	)
	return theme.Border.Width(innerWidth).Render(content)
}
