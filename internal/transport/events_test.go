package transport

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/lookout/internal/events"
)

func TestReadSSE(t *testing.T) {
	stream := strings.Join([]string{
		": keep-alive",
		"",
		"id: 4",
		"event: catalog.imported",
		`data: {"source":"a"}`,
		"",
		"id: 5",
		"data:line1",
		"data: line2",
		"",
		"event: ignored-without-data",
		"",
	}, "\n")

	var got []events.Event
	require.NoError(t, ReadSSE(strings.NewReader(stream), func(ev events.Event) { got = append(got, ev) }))
	require.Len(t, got, 2)
	assert.Equal(t, int64(4), got[0].ID)
	assert.Equal(t, "catalog.imported", got[0].Type)
	assert.JSONEq(t, `{"source":"a"}`, string(got[0].Data))
	assert.Equal(t, "line1\nline2", string(got[1].Data))
}

func TestSubscriberResumesFromLastEventID(t *testing.T) {
	var (
		mu      sync.Mutex
		lastIDs []string
		conns   int
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		conns++
		n := conns
		lastIDs = append(lastIDs, r.Header.Get("Last-Event-ID"))
		mu.Unlock()

		w.Header().Set("Content-Type", "text/event-stream")
		// Each connection sends one event then hangs up.
		fmt.Fprintf(w, "id: %d\nevent: catalog.imported\ndata: {}\n\n", n)
	}))
	defer srv.Close()

	sub := NewSubscriber(srv.URL, "k")
	sub.delay = 5 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan events.Event, 8)
	done := make(chan error, 1)
	go func() { done <- sub.Run(ctx, func(ev events.Event) { got <- ev }) }()

	for want := int64(1); want <= 2; want++ {
		select {
		case ev := <-got:
			assert.Equal(t, want, ev.ID)
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for event %d", want)
		}
	}
	cancel()
	require.NoError(t, <-done)

	mu.Lock()
	defer mu.Unlock()
	require.GreaterOrEqual(t, len(lastIDs), 2)
	assert.Equal(t, "", lastIDs[0])
	assert.Equal(t, "1", lastIDs[1])
}

func TestSubscriberStopsOnAuthFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"invalid API key"}`))
	}))
	defer srv.Close()

	err := NewSubscriber(srv.URL, "bad").Run(context.Background(), func(events.Event) {})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid API key")
}

func TestSubscriberBackoffResetsAfterDelivery(t *testing.T) {
	var (
		mu    sync.Mutex
		conns int
	)
	connected := make(chan int, 8)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		conns++
		n := conns
		mu.Unlock()
		connected <- n

		if n == 3 {
			w.Header().Set("Content-Type", "text/event-stream")
			fmt.Fprintf(w, "id: 1\nevent: catalog.imported\ndata: {}\n\n")
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	clk := clockwork.NewFakeClock()
	sub := NewSubscriber(srv.URL, "k")
	sub.clock = clk

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- sub.Run(ctx, func(events.Event) {}) }()

	waitConn := func(want int) {
		t.Helper()
		select {
		case n := <-connected:
			require.Equal(t, want, n)
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for connection %d", want)
		}
	}
	// Each wait advances exactly the expected backoff; a longer one would
	// leave the next connection pending.
	waitConn(1)
	for i, backoff := range []time.Duration{time.Second, 2 * time.Second, time.Second} {
		bctx, bcancel := context.WithTimeout(context.Background(), 2*time.Second)
		require.NoError(t, clk.BlockUntilContext(bctx, 1))
		bcancel()
		clk.Advance(backoff)
		waitConn(i + 2)
	}

	cancel()
	require.NoError(t, <-done)
}
