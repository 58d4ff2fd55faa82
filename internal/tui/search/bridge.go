package search

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/mattjoyce/lookout/internal/catalog"
	"github.com/mattjoyce/lookout/internal/events"
)

// Outcome is one accepted dispatcher delivery: a result or an error.
type Outcome struct {
	Text   string
	Result catalog.Result
	Err    error
}

// Bridge is the dispatcher's consumer. It forwards outcomes, in delivery
// order, to the TUI through a channel.
type Bridge struct {
	out  chan Outcome
	done chan struct{}
}

func NewBridge() *Bridge {
	return &Bridge{
		out:  make(chan Outcome, 16),
		done: make(chan struct{}),
	}
}

func (b *Bridge) OnResult(text string, result catalog.Result) {
	b.send(Outcome{Text: text, Result: result})
}

func (b *Bridge) OnError(text string, err error) {
	b.send(Outcome{Text: text, Err: err})
}

// send blocks until the TUI takes the outcome or the bridge is closed, so a
// stopped TUI never wedges the dispatcher.
func (b *Bridge) send(o Outcome) {
	select {
	case b.out <- o:
	case <-b.done:
	}
}

// Outcomes is read by the TUI.
func (b *Bridge) Outcomes() <-chan Outcome { return b.out }

// Close releases any pending send.
func (b *Bridge) Close() {
	select {
	case <-b.done:
	default:
		close(b.done)
	}
}

// --- Message types ---

type outcomeMsg Outcome

type catalogChangedMsg events.Event

type closedMsg struct{}

// --- Commands ---

// receiveNextOutcome waits for the next dispatcher outcome.
func receiveNextOutcome(ch <-chan Outcome) tea.Cmd {
	return func() tea.Msg {
		o, ok := <-ch
		if !ok {
			return closedMsg{}
		}
		return outcomeMsg(o)
	}
}

// receiveNextChange waits for the next catalog change notification.
func receiveNextChange(ch <-chan events.Event) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		ev, ok := <-ch
		if !ok {
			return closedMsg{}
		}
		return catalogChangedMsg(ev)
	}
}
