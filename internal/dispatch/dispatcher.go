package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/mattjoyce/lookout/internal/log"
)

// inboxSize bounds how many edits can queue before TextChanged blocks.
const inboxSize = 64

// Option customizes a Dispatcher.
type Option func(*options)

type options struct {
	clock  clockwork.Clock
	logger *slog.Logger
	newID  func() string
}

// WithClock replaces the system clock, mainly for tests.
func WithClock(c clockwork.Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithLogger sets the logger used for lifecycle and stale-response logs.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// Dispatcher debounces edits of one search field, submits settled queries and
// delivers only the outcome of the request that is still current.
type Dispatcher[R any] struct {
	cfg       Config
	transport Transport[R]
	consumer  Consumer[R]
	clock     clockwork.Clock
	logger    *slog.Logger
	newID     func() string

	inbox     chan message
	done      chan struct{}
	stopped   chan struct{}
	closeOnce sync.Once
	started   atomic.Bool
	published atomic.Pointer[State]

	// Owned by the Run goroutine.
	runCtx   context.Context
	state    State
	timer    clockwork.Timer
	timerGen uint64
	seq      uint64
	flight   *flight
	waiters  []chan struct{}
}

// flight is the request currently awaiting a response or a retry.
type flight struct {
	req     Request
	attempt int
	cancel  context.CancelFunc
	retry   clockwork.Timer
}

type message interface{ isMessage() }

type textMsg struct{ raw string }

type settleMsg struct{ gen uint64 }

type refreshMsg struct{}

type idleMsg struct{ ack chan struct{} }

type retryMsg struct {
	seq     uint64
	attempt int
}

type resultMsg[R any] struct {
	seq     uint64
	attempt int
	result  R
	err     error
}

func (textMsg) isMessage()      {}
func (settleMsg) isMessage()    {}
func (refreshMsg) isMessage()   {}
func (idleMsg) isMessage()      {}
func (retryMsg) isMessage()     {}
func (resultMsg[R]) isMessage() {}

// New validates cfg and creates a Dispatcher. Call Run to start it.
func New[R any](cfg Config, transport Transport[R], consumer Consumer[R], opts ...Option) (*Dispatcher[R], error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if transport == nil {
		return nil, errors.New("dispatch: transport is nil")
	}
	if consumer == nil {
		return nil, errors.New("dispatch: consumer is nil")
	}

	o := options{
		clock:  clockwork.NewRealClock(),
		logger: log.WithComponent("dispatch"),
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(&o)
	}

	d := &Dispatcher[R]{
		cfg:       cfg,
		transport: transport,
		consumer:  consumer,
		clock:     o.clock,
		logger:    o.logger,
		newID:     o.newID,
		inbox:     make(chan message, inboxSize),
		done:      make(chan struct{}),
		stopped:   make(chan struct{}),
		runCtx:    context.Background(),
	}
	d.publish()
	return d, nil
}

// Run processes edits, timers and responses until ctx is cancelled or Close
// is called. It returns ctx.Err() on cancellation and nil after Close.
func (d *Dispatcher[R]) Run(ctx context.Context) error {
	if !d.started.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer close(d.stopped)
	defer d.shutdown()

	d.runCtx = ctx
	d.logger.Debug("dispatcher started",
		"debounce", d.cfg.DebounceInterval,
		"suppress_empty", d.cfg.SuppressEmptyQuery,
		"max_attempts", d.cfg.Retry.attempts(),
	)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-d.done:
			return nil
		case m := <-d.inbox:
			d.handle(m)
			d.publish()
		}
	}
}

// Close stops the dispatcher. A pending timer is cancelled and the in-flight
// request, if any, is abandoned. Close does not wait for Run to return.
func (d *Dispatcher[R]) Close() {
	d.closeOnce.Do(func() { close(d.done) })
}

// Done is closed once Run has returned.
func (d *Dispatcher[R]) Done() <-chan struct{} {
	return d.stopped
}

// TextChanged records a new raw value of the search field and restarts the
// debounce timer. It never submits a query directly.
func (d *Dispatcher[R]) TextChanged(raw string) {
	d.post(textMsg{raw: raw})
}

// Refresh submits the current text immediately, even when it equals the last
// submitted text. Any pending debounce timer is cancelled.
func (d *Dispatcher[R]) Refresh() {
	d.post(refreshMsg{})
}

// Snapshot returns the state as of the last processed message.
func (d *Dispatcher[R]) Snapshot() State {
	if s := d.published.Load(); s != nil {
		return *s
	}
	return State{}
}

// Phase returns the current state-machine phase.
func (d *Dispatcher[R]) Phase() Phase {
	return d.Snapshot().Phase()
}

// WaitIdle blocks until every edit posted before the call has been handled
// and neither a settle timer nor a request is pending. It returns ErrStopped
// if the dispatcher stops first.
func (d *Dispatcher[R]) WaitIdle(ctx context.Context) error {
	ack := make(chan struct{})
	select {
	case d.inbox <- idleMsg{ack: ack}:
	case <-ctx.Done():
		return ctx.Err()
	case <-d.done:
		return ErrStopped
	case <-d.stopped:
		return ErrStopped
	}

	select {
	case <-ack:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-d.stopped:
		return ErrStopped
	}
}

func (d *Dispatcher[R]) post(m message) {
	select {
	case d.inbox <- m:
	case <-d.done:
	case <-d.stopped:
	}
}

func (d *Dispatcher[R]) publish() {
	s := d.state
	d.published.Store(&s)
}

func (d *Dispatcher[R]) handle(m message) {
	switch m := m.(type) {
	case textMsg:
		d.onTextChange(m.raw)
	case settleMsg:
		d.onSettle(m.gen)
	case refreshMsg:
		d.onRefresh()
	case retryMsg:
		d.onRetry(m)
	case resultMsg[R]:
		d.onResult(m)
	case idleMsg:
		d.waiters = append(d.waiters, m.ack)
	default:
		d.logger.Warn("unknown dispatcher message", "type", fmt.Sprintf("%T", m))
	}
	d.notifyIdle()
}

func (d *Dispatcher[R]) notifyIdle() {
	if len(d.waiters) == 0 || d.state.Phase() != PhaseIdle {
		return
	}
	for _, w := range d.waiters {
		close(w)
	}
	d.waiters = nil
}

func (d *Dispatcher[R]) onTextChange(raw string) {
	d.state.CurrentText = raw
	d.stopTimer()

	d.timerGen++
	gen := d.timerGen
	d.timer = d.clock.AfterFunc(d.cfg.DebounceInterval, func() {
		d.post(settleMsg{gen: gen})
	})
	d.state.PendingTimer = true
}

func (d *Dispatcher[R]) onSettle(gen uint64) {
	// A timer that fired before it was replaced may still have queued its message.
	if gen != d.timerGen || !d.state.PendingTimer {
		return
	}
	d.timer = nil
	d.state.PendingTimer = false
	d.settle(false)
}

func (d *Dispatcher[R]) onRefresh() {
	d.stopTimer()
	d.timerGen++
	d.state.PendingTimer = false
	d.settle(true)
}

// settle decides whether the current text becomes a new request.
func (d *Dispatcher[R]) settle(force bool) {
	text := d.state.CurrentText

	if !force && d.state.HasSubmitted && text == d.state.LastSubmittedText {
		d.logger.Debug("settled text unchanged, not resubmitting", "text", text)
		return
	}

	if text == "" && d.cfg.SuppressEmptyQuery {
		// Clearing the field supersedes whatever is in flight so a late
		// response for the old text cannot repopulate the results.
		d.abandonFlight()
		d.state.LastSubmittedText = ""
		d.state.HasSubmitted = true
		d.state.Stats.Suppressed++
		d.logger.Debug("empty query suppressed")
		return
	}

	d.issue(text)
}

func (d *Dispatcher[R]) issue(text string) {
	d.abandonFlight()

	d.seq++
	req := Request{
		ID:          d.newID(),
		Sequence:    d.seq,
		Text:        text,
		SubmittedAt: d.clock.Now(),
	}

	d.state.InFlightSequence = req.Sequence
	d.state.LastSubmittedText = text
	d.state.HasSubmitted = true
	d.state.Stats.Issued++

	d.flight = &flight{req: req}
	d.logger.Debug("submitting query", "sequence", req.Sequence, "request_id", req.ID, "text", text)
	d.launch(1)
}

// launch starts attempt number attempt of the current flight.
func (d *Dispatcher[R]) launch(attempt int) {
	f := d.flight
	f.attempt = attempt

	var ctx context.Context
	if d.cfg.RequestTimeout > 0 {
		ctx, f.cancel = context.WithTimeout(d.runCtx, d.cfg.RequestTimeout)
	} else {
		ctx, f.cancel = context.WithCancel(d.runCtx)
	}

	req := f.req
	go func() {
		msg := resultMsg[R]{seq: req.Sequence, attempt: attempt}
		defer func() {
			if r := recover(); r != nil {
				d.logger.Error("transport panic", "sequence", req.Sequence, "panic", r, "stack", string(debug.Stack()))
				msg.err = fmt.Errorf("transport panic: %v", r)
			}
			d.post(msg)
		}()
		msg.result, msg.err = d.transport.Submit(ctx, req.Text)
	}()
}

func (d *Dispatcher[R]) onRetry(m retryMsg) {
	f := d.flight
	if f == nil || f.req.Sequence != m.seq || d.state.InFlightSequence != m.seq {
		return
	}
	f.retry = nil
	d.state.Stats.Retried++
	d.logger.Debug("retrying query", "sequence", m.seq, "attempt", m.attempt)
	d.launch(m.attempt)
}

func (d *Dispatcher[R]) onResult(m resultMsg[R]) {
	f := d.flight
	if m.seq < d.state.LastAcceptedSequence || m.seq != d.state.InFlightSequence || f == nil || m.attempt != f.attempt {
		d.state.Stats.Stale++
		d.logger.Debug("discarding stale response",
			"sequence", m.seq,
			"in_flight", d.state.InFlightSequence,
			"last_accepted", d.state.LastAcceptedSequence,
		)
		return
	}

	if m.err != nil && m.attempt < d.cfg.Retry.attempts() && d.runCtx.Err() == nil {
		f.cancel()
		next := m.attempt + 1
		seq := m.seq
		delay := d.cfg.Retry.backoff(m.attempt)
		d.logger.Warn("query failed, scheduling retry",
			"sequence", seq, "attempt", m.attempt, "delay", delay, "error", m.err)
		f.retry = d.clock.AfterFunc(delay, func() {
			d.post(retryMsg{seq: seq, attempt: next})
		})
		return
	}

	f.cancel()
	d.flight = nil
	d.state.LastAcceptedSequence = m.seq
	d.state.InFlightSequence = 0
	d.state.Stats.Accepted++

	if m.err != nil {
		d.state.Stats.Failed++
		d.deliverError(f.req, &TransportError{Request: f.req, Attempts: m.attempt, Err: m.err})
		return
	}
	d.deliverResult(f.req, m.result)
}

func (d *Dispatcher[R]) deliverResult(req Request, result R) {
	defer d.recoverConsumer(req)
	d.consumer.OnResult(req.Text, result)
}

func (d *Dispatcher[R]) deliverError(req Request, err error) {
	defer d.recoverConsumer(req)
	d.logger.Debug("query failed", "sequence", req.Sequence, "error", err)
	d.consumer.OnError(req.Text, err)
}

func (d *Dispatcher[R]) recoverConsumer(req Request) {
	if r := recover(); r != nil {
		d.logger.Error("consumer panic", "sequence", req.Sequence, "panic", r, "stack", string(debug.Stack()))
	}
}

// abandonFlight supersedes the in-flight request. Its response, if it ever
// arrives, fails the sequence check.
func (d *Dispatcher[R]) abandonFlight() {
	if d.flight != nil {
		d.logger.Debug("superseding in-flight query", "sequence", d.flight.req.Sequence)
		if d.flight.retry != nil {
			d.flight.retry.Stop()
		}
		if d.flight.cancel != nil {
			d.flight.cancel()
		}
		d.flight = nil
	}
	d.state.InFlightSequence = 0
}

func (d *Dispatcher[R]) stopTimer() {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

func (d *Dispatcher[R]) shutdown() {
	d.stopTimer()
	d.timerGen++
	d.state.PendingTimer = false
	d.abandonFlight()
	d.publish()
	d.logger.Debug("dispatcher stopped", "last_accepted", d.state.LastAcceptedSequence)
}
