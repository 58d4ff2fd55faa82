package watch

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/lookout/internal/catalog"
	"github.com/mattjoyce/lookout/internal/events"
)

const maxEventLog = 50

// Model is the main BubbleTea model for the watch TUI.
type Model struct {
	api    StatusAPI
	feed   <-chan events.Event
	target string
	now    func() time.Time

	width  int
	height int

	health   HealthState
	sources  []catalog.SourceInfo
	changed  map[string]time.Time
	eventLog []events.Event
	activity Activity

	theme     Theme
	lastError string
}

// New creates the watch model. feed carries catalog change events and may
// be nil.
func New(api StatusAPI, feed <-chan events.Event, target string) Model {
	return Model{
		api:     api,
		feed:    feed,
		target:  target,
		now:     time.Now,
		changed: make(map[string]time.Time),
		theme:   NewDefaultTheme(),
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		fetchStatus(m.api, true),
		receiveNextEvent(m.feed),
		tick(),
	)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			return m, tea.Quit
		case "r":
			return m, fetchStatus(m.api, false)
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tickMsg:
		m.activity.Advance(time.Time(msg))
		return m, tick()

	case eventMsg:
		e := events.Event(msg)
		m.eventLog = append([]events.Event{e}, m.eventLog...)
		if len(m.eventLog) > maxEventLog {
			m.eventLog = m.eventLog[:maxEventLog]
		}
		m.activity.Record(m.now())

		var r catalog.ImportReport
		if json.Unmarshal(e.Data, &r) == nil && r.Source != "" {
			m.changed[r.Source] = m.now()
		}
		// Counts and the source list are stale now.
		return m, tea.Batch(receiveNextEvent(m.feed), fetchStatus(m.api, false))

	case statusMsg:
		m.health = HealthState{
			Status:        msg.health.Status,
			UptimeSeconds: msg.health.UptimeSeconds,
			Entries:       msg.health.Entries,
			Sources:       msg.health.Sources,
			Connected:     true,
			LastCheck:     m.now(),
		}
		m.sources = msg.sources
		m.lastError = ""
		if msg.scheduled {
			return m, pollAfter(m.api, pollInterval)
		}

	case errMsg:
		m.health.Connected = false
		m.lastError = msg.err.Error()
		if msg.scheduled {
			return m, pollAfter(m.api, pollInterval)
		}

	case feedClosedMsg:
		m.feed = nil
		m.lastError = "change feed closed"
	}

	return m, nil
}

func (m Model) View() string {
	if m.width == 0 {
		return "Connecting..."
	}
	now := m.now()

	parts := []string{
		renderHeader(m.health, m.activity, m.target, m.theme, m.width, now),
		renderSources(m.sources, m.changed, m.theme, m.width, now),
		renderEventStream(m.eventLog, m.theme, m.width),
	}
	if m.lastError != "" {
		parts = append(parts, m.theme.StatusFailed.Render(fmt.Sprintf(" ⚠ %s", m.lastError)))
	}
	parts = append(parts, lipgloss.NewStyle().
		Foreground(lipgloss.Color("241")).
		Render(" [q] Quit • [r] Refresh"))

	return lipgloss.NewStyle().Margin(1, 2).Render(
		lipgloss.JoinVertical(lipgloss.Left, parts...),
	)
}

// Run starts the dashboard and blocks until the user quits or ctx is cancelled.
func Run(ctx context.Context, api StatusAPI, feed <-chan events.Event, target string) error {
	p := tea.NewProgram(New(api, feed, target), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	if err != nil && ctx.Err() != nil {
		return nil
	}
	return err
}
