package watch

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/mattjoyce/lookout/internal/catalog"
	"github.com/mattjoyce/lookout/internal/events"
	"github.com/mattjoyce/lookout/internal/transport"
)

const (
	pollInterval  = 5 * time.Second
	statusTimeout = 2 * time.Second
)

// StatusAPI is the part of the search API the dashboard polls.
type StatusAPI interface {
	Health(ctx context.Context) (transport.Health, error)
	Sources(ctx context.Context) ([]catalog.SourceInfo, error)
}

// --- Message types ---

type eventMsg events.Event

type statusMsg struct {
	health  transport.Health
	sources []catalog.SourceInfo
	// scheduled marks the periodic poll, which re-arms itself.
	scheduled bool
}

type errMsg struct {
	err       error
	scheduled bool
}

type tickMsg time.Time

type feedClosedMsg struct{}

// --- Commands ---

// fetchStatus queries /healthz and /catalog/sources.
func fetchStatus(api StatusAPI, scheduled bool) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), statusTimeout)
		defer cancel()

		h, err := api.Health(ctx)
		if err != nil {
			return errMsg{err: err, scheduled: scheduled}
		}
		sources, err := api.Sources(ctx)
		if err != nil {
			return errMsg{err: err, scheduled: scheduled}
		}
		return statusMsg{health: h, sources: sources, scheduled: scheduled}
	}
}

func pollAfter(api StatusAPI, d time.Duration) tea.Cmd {
	return tea.Tick(d, func(time.Time) tea.Msg { return fetchStatus(api, true)() })
}

// receiveNextEvent waits for the next event from the feed.
func receiveNextEvent(ch <-chan events.Event) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		ev, ok := <-ch
		if !ok {
			return feedClosedMsg{}
		}
		return eventMsg(ev)
	}
}

func tick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })
}
