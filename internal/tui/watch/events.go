package watch

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/lookout/internal/catalog"
	"github.com/mattjoyce/lookout/internal/events"
)

const visibleEvents = 10

func renderEventStream(eventLog []events.Event, theme Theme, width int) string {
	innerWidth := width - 4

	if len(eventLog) == 0 {
		content := lipgloss.JoinVertical(lipgloss.Left,
			theme.Title.Render("CATALOG CHANGES"),
			theme.Dim.Render("  Waiting for changes..."),
		)
		return theme.Border.Width(innerWidth).Render(content)
	}

	lines := make([]string, 0, visibleEvents)
	for i, e := range eventLog {
		if i >= visibleEvents {
			break
		}
		lines = append(lines, formatEvent(e, theme))
	}

	content := lipgloss.JoinVertical(lipgloss.Left,
		theme.Title.Render("CATALOG CHANGES"),
		lipgloss.NewStyle().Padding(0, 1).Render(strings.Join(lines, "\n")),
	)
	return theme.Border.Width(innerWidth).Render(content)
}

func formatEvent(e events.Event, theme Theme) string {
	ts := theme.Dim.Render(e.At.Local().Format("15:04:05"))

	typeStyle := theme.Dim
	switch e.Type {
	case events.TypeCatalogImported:
		typeStyle = theme.StatusOK
	case events.TypeCatalogRemoved:
		typeStyle = theme.StatusFailed
	}
	typeName := typeStyle.Render(fmt.Sprintf("%-18s", e.Type))

	return fmt.Sprintf("%s %s %s", ts, typeName, describeEvent(e))
}

// describeEvent summarizes the import report an event carries.
func describeEvent(e events.Event) string {
	var r catalog.ImportReport
	if err := json.Unmarshal(e.Data, &r); err != nil || (r.Source == "" && r.Origin == "") {
		raw := string(e.Data)
		if len(raw) > 60 {
			raw = raw[:60] + "..."
		}
		return raw
	}

	if e.Type == events.TypeCatalogRemoved {
		return fmt.Sprintf("%s -%d", r.Origin, r.Removed)
	}
	desc := fmt.Sprintf("%s +%d ~%d -%d", r.Source, r.Added, r.Updated, r.Removed)
	if r.Origin != "" {
		desc += " (" + r.Origin + ")"
	}
	return desc
}
