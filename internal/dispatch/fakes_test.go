package dispatch

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
)

func newFakeClock() *clockwork.FakeClock {
	return clockwork.NewFakeClockAt(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
}

// waitTimers blocks until exactly n timers are armed on clk.
func waitTimers(t *testing.T, clk *clockwork.FakeClock, n int) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, clk.BlockUntilContext(ctx, n), "waiting for %d armed timers", n)
}

// fakeTransport hands every call to the test, which decides when and how it completes.
// Calls ignore cancellation unless the test answers them, like a transport
// without abort support.
type fakeTransport struct {
	calls    chan *fakeCall
	released chan struct{}
}

type fakeCall struct {
	text  string
	ctx   context.Context
	reply chan fakeOutcome
}

type fakeOutcome struct {
	result string
	err    error
}

func newFakeTransport(t *testing.T) *fakeTransport {
	tr := &fakeTransport{
		calls:    make(chan *fakeCall, 16),
		released: make(chan struct{}),
	}
	t.Cleanup(func() { close(tr.released) })
	return tr
}

func (tr *fakeTransport) Submit(ctx context.Context, text string) (string, error) {
	c := &fakeCall{text: text, ctx: ctx, reply: make(chan fakeOutcome, 1)}
	tr.calls <- c
	select {
	case o := <-c.reply:
		return o.result, o.err
	case <-tr.released:
		return "", context.Canceled
	}
}

func (tr *fakeTransport) next(t *testing.T) *fakeCall {
	t.Helper()
	select {
	case c := <-tr.calls:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for transport call")
		return nil
	}
}

func (tr *fakeTransport) expectNoCall(t *testing.T) {
	t.Helper()
	select {
	case c := <-tr.calls:
		t.Fatalf("unexpected transport call for %q", c.text)
	case <-time.After(50 * time.Millisecond):
	}
}

func (c *fakeCall) succeed(result string) { c.reply <- fakeOutcome{result: result} }

func (c *fakeCall) fail(err error) { c.reply <- fakeOutcome{err: err} }

// recorder is a Consumer that remembers every delivery in order.
type recorder struct {
	mu     sync.Mutex
	events []delivery
}

type delivery struct {
	text   string
	result string
	err    error
}

func (r *recorder) OnResult(text string, result string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, delivery{text: text, result: result})
}

func (r *recorder) OnError(text string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, delivery{text: text, err: err})
}

func (r *recorder) deliveries() []delivery {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]delivery(nil), r.events...)
}

func (r *recorder) waitFor(t *testing.T, n int) []delivery {
	t.Helper()
	require.Eventually(t, func() bool { return len(r.deliveries()) >= n }, 2*time.Second, time.Millisecond)
	return r.deliveries()
}
