package search

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/lookout/internal/catalog"
	"github.com/mattjoyce/lookout/internal/dispatch"
	"github.com/mattjoyce/lookout/internal/events"
)

// Placeholder is shown while the search field is empty.
const Placeholder = "Search by table, column, or keyword"

// Dispatcher is the part of the query dispatcher the TUI drives.
type Dispatcher interface {
	TextChanged(raw string)
	Refresh()
	Phase() dispatch.Phase
}

// Options wires the TUI to its collaborators.
type Options struct {
	Dispatcher Dispatcher
	Outcomes   <-chan Outcome
	// Changes carries catalog change events; nil when searching locally.
	Changes <-chan events.Event
	// Target names what is being searched, for the header.
	Target string
}

// Model is the main BubbleTea model for the search TUI.
type Model struct {
	opts Options

	input   textinput.Model
	spinner spinner.Model
	results table.Model
	theme   Theme

	width  int
	height int

	// Last accepted outcome.
	query   string
	result  catalog.Result
	hasHits bool
	lastErr string
	notice  string
}

// New creates the search TUI model.
func New(opts Options) Model {
	ti := textinput.New()
	ti.Placeholder = Placeholder
	ti.Prompt = "› "
	ti.CharLimit = 256
	ti.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	tbl := table.New(
		table.WithColumns(resultColumns(80)),
		table.WithFocused(false),
		table.WithHeight(10),
	)

	theme := NewDefaultTheme()
	sp.Style = theme.Status
	styles := table.DefaultStyles()
	styles.Header = styles.Header.Foreground(lipgloss.Color("#61AFEF")).Bold(true)
	tbl.SetStyles(styles)

	return Model{
		opts:    opts,
		input:   ti,
		spinner: sp,
		results: tbl,
		theme:   theme,
	}
}

func resultColumns(width int) []table.Column {
	usable := width - 8
	if usable < 40 {
		usable = 40
	}
	return []table.Column{
		{Title: "Source", Width: usable / 5},
		{Title: "Table", Width: usable / 4},
		{Title: "Column", Width: usable / 4},
		{Title: "Keywords", Width: usable - usable/5 - 2*(usable/4)},
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		textinput.Blink,
		m.spinner.Tick,
		receiveNextOutcome(m.opts.Outcomes),
		receiveNextChange(m.opts.Changes),
	)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			return m, tea.Quit
		case "ctrl+r":
			m.notice = ""
			m.opts.Dispatcher.Refresh()
			return m, nil
		}

		before := m.input.Value()
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		if after := m.input.Value(); after != before {
			m.opts.Dispatcher.TextChanged(after)
		}
		return m, cmd

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.input.Width = max(msg.Width-10, 10)
		m.results.SetColumns(resultColumns(msg.Width))
		m.results.SetHeight(max(msg.Height-10, 3))
		return m, nil

	case outcomeMsg:
		m.query = msg.Text
		if msg.Err != nil {
			m.lastErr = msg.Err.Error()
		} else {
			m.lastErr = ""
			m.result = msg.Result
			m.hasHits = true
			m.results.SetRows(rows(msg.Result))
		}
		return m, receiveNextOutcome(m.opts.Outcomes)

	case catalogChangedMsg:
		m.notice = "catalog updated"
		m.opts.Dispatcher.Refresh()
		return m, receiveNextChange(m.opts.Changes)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case closedMsg:
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func rows(res catalog.Result) []table.Row {
	out := make([]table.Row, 0, len(res.Hits))
	for _, h := range res.Hits {
		column := h.Column
		if column == "" {
			column = "(table)"
		}
		out = append(out, table.Row{h.Source, h.Table, column, strings.Join(h.Keywords, ", ")})
	}
	return out
}

func (m Model) View() string {
	title := m.theme.Title.Render("lookout")
	if m.opts.Target != "" {
		title += " " + m.theme.Dim.Render(m.opts.Target)
	}

	parts := []string{
		title,
		m.theme.Input.Render(m.input.View()),
		m.statusLine(),
	}
	if m.hasHits {
		parts = append(parts, m.results.View())
	}
	if m.lastErr != "" {
		parts = append(parts, m.theme.Error.Render(fmt.Sprintf(" ⚠ %s", m.lastErr)))
	}
	parts = append(parts, m.theme.Help.Render(" [esc] Quit • [ctrl+r] Refresh"))

	return lipgloss.NewStyle().Margin(1, 2).Render(
		lipgloss.JoinVertical(lipgloss.Left, parts...),
	)
}

func (m Model) statusLine() string {
	var status string
	switch m.opts.Dispatcher.Phase() {
	case dispatch.PhaseAwaitingResponse, dispatch.PhaseDebouncingStale:
		status = m.spinner.View() + " searching"
	case dispatch.PhaseDebouncing:
		status = m.spinner.View() + " typing"
	default:
		if m.hasHits {
			status = m.theme.Matched.Render(fmt.Sprintf("%d of %d matches", len(m.result.Hits), m.result.Total))
			if m.query != "" {
				status += m.theme.Dim.Render(fmt.Sprintf(" for %q", m.query))
			}
		}
	}
	if m.notice != "" {
		status = strings.TrimSpace(status + " " + m.theme.Notice.Render("· "+m.notice))
	}
	return m.theme.Status.Render(status)
}

// Run starts the TUI and blocks until the user quits or ctx is cancelled.
func Run(ctx context.Context, opts Options) error {
	p := tea.NewProgram(New(opts), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	if err != nil && ctx.Err() != nil {
		return nil
	}
	return err
}
