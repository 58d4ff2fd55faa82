package search

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/lookout/internal/catalog"
	"github.com/mattjoyce/lookout/internal/dispatch"
	"github.com/mattjoyce/lookout/internal/events"
)

type fakeDispatcher struct {
	mu        sync.Mutex
	texts     []string
	refreshes int
	phase     dispatch.Phase
}

func (f *fakeDispatcher) TextChanged(raw string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, raw)
}

func (f *fakeDispatcher) Refresh() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshes++
}

func (f *fakeDispatcher) Phase() dispatch.Phase {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.phase
}

func typeRunes(t *testing.T, m Model, s string) Model {
	t.Helper()
	for _, r := range s {
		next, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}})
		m = next.(Model)
	}
	return m
}

func TestKeystrokesFeedDispatcher(t *testing.T) {
	d := &fakeDispatcher{}
	m := New(Options{Dispatcher: d})

	m = typeRunes(t, m, "cat")
	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyBackspace})
	m = next.(Model)

	assert.Equal(t, []string{"c", "ca", "cat", "ca"}, d.texts)
	assert.Equal(t, "ca", m.input.Value())
}

func TestNonEditingKeysDoNotFeedDispatcher(t *testing.T) {
	d := &fakeDispatcher{}
	m := New(Options{Dispatcher: d})

	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyLeft})
	m = next.(Model)
	_, _ = m.Update(tea.KeyMsg{Type: tea.KeyBackspace})

	assert.Empty(t, d.texts)
}

func TestCtrlRRefreshes(t *testing.T) {
	d := &fakeDispatcher{}
	m := New(Options{Dispatcher: d})

	_, _ = m.Update(tea.KeyMsg{Type: tea.KeyCtrlR})
	assert.Equal(t, 1, d.refreshes)
}

func TestQuitKeys(t *testing.T) {
	m := New(Options{Dispatcher: &fakeDispatcher{}})
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}

func TestOutcomeRendersResults(t *testing.T) {
	d := &fakeDispatcher{}
	outcomes := make(chan Outcome, 1)
	m := New(Options{Dispatcher: d, Outcomes: outcomes, Target: "local"})
	next, _ := m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	m = next.(Model)

	res := catalog.Result{
		Query: "ord",
		Total: 2,
		Hits: []catalog.Entry{
			{Source: "warehouse", Table: "orders", Keywords: []string{"sales"}},
			{Source: "warehouse", Table: "orders", Column: "order_id", Keywords: []string{"id", "key"}},
		},
	}
	next, cmd := m.Update(outcomeMsg(Outcome{Text: "ord", Result: res}))
	m = next.(Model)
	require.NotNil(t, cmd, "model keeps listening for outcomes")

	view := m.View()
	for _, want := range []string{"orders", "order_id", "id, key", "2 of 2 matches", "local"} {
		assert.Contains(t, view, want)
	}
	assert.Len(t, m.results.Rows(), 2)
}

func TestOutcomeErrorKeepsPreviousResults(t *testing.T) {
	m := New(Options{Dispatcher: &fakeDispatcher{}})
	next, _ := m.Update(outcomeMsg(Outcome{Text: "a", Result: catalog.Result{Total: 1, Hits: []catalog.Entry{{Table: "t"}}}}))
	m = next.(Model)
	next, _ = m.Update(outcomeMsg(Outcome{Text: "ab", Err: errors.New("connection refused")}))
	m = next.(Model)

	assert.Contains(t, m.View(), "connection refused")
	assert.Len(t, m.results.Rows(), 1)

	next, _ = m.Update(outcomeMsg(Outcome{Text: "abc", Result: catalog.Result{}}))
	m = next.(Model)
	assert.NotContains(t, m.View(), "connection refused")
}

func TestCatalogChangeTriggersRefresh(t *testing.T) {
	d := &fakeDispatcher{}
	changes := make(chan events.Event)
	m := New(Options{Dispatcher: d, Changes: changes})

	next, cmd := m.Update(catalogChangedMsg(events.Event{ID: 1, Type: events.TypeCatalogImported}))
	m = next.(Model)

	assert.Equal(t, 1, d.refreshes)
	assert.NotNil(t, cmd)
	assert.Contains(t, m.View(), "catalog updated")
}

func TestStatusLineFollowsPhase(t *testing.T) {
	d := &fakeDispatcher{phase: dispatch.PhaseAwaitingResponse}
	m := New(Options{Dispatcher: d})
	assert.Contains(t, m.View(), "searching")

	d.phase = dispatch.PhaseDebouncing
	assert.Contains(t, m.View(), "typing")

	d.phase = dispatch.PhaseIdle
	assert.NotContains(t, m.View(), "searching")
}

func TestViewShowsPlaceholder(t *testing.T) {
	m := New(Options{Dispatcher: &fakeDispatcher{}})
	assert.True(t, strings.Contains(m.View(), "earch by table, column, or keyword"), m.View())
}

func TestBridgeDeliversInOrder(t *testing.T) {
	b := NewBridge()
	defer b.Close()

	b.OnResult("a", catalog.Result{Query: "a"})
	b.OnError("ab", errors.New("boom"))

	first := <-b.Outcomes()
	second := <-b.Outcomes()
	assert.Equal(t, "a", first.Text)
	assert.NoError(t, first.Err)
	assert.Equal(t, "ab", second.Text)
	assert.EqualError(t, second.Err, "boom")
}

func TestBridgeCloseUnblocksSend(t *testing.T) {
	b := NewBridge()
	for i := 0; i < cap(b.out); i++ {
		b.OnResult("fill", catalog.Result{})
	}

	done := make(chan struct{})
	go func() {
		b.OnResult("blocked", catalog.Result{})
		close(done)
	}()

	b.Close()
	b.Close()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("send stayed blocked after Close")
	}
}

func TestReceiveNextOutcomeClosedChannel(t *testing.T) {
	ch := make(chan Outcome)
	close(ch)
	assert.Equal(t, closedMsg{}, receiveNextOutcome(ch)())
	assert.Nil(t, receiveNextChange(nil))
}
