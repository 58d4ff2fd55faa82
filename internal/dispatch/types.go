package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"
)

const (
	// DefaultDebounceInterval is the quiet period after the last edit before a query is submitted.
	DefaultDebounceInterval = 200 * time.Millisecond

	// DefaultRetryBackoff is the delay before the first retry when retries are enabled.
	DefaultRetryBackoff = 250 * time.Millisecond

	// maxRetryBackoff caps the exponential retry delay.
	maxRetryBackoff = 30 * time.Second
)

// ErrMalformedConfig is returned when a Config cannot be used as given.
var ErrMalformedConfig = errors.New("malformed dispatcher configuration")

// ErrAlreadyRunning is returned by Run when the loop is already running or has run.
var ErrAlreadyRunning = errors.New("dispatcher already running")

// ErrStopped is returned by WaitIdle when the dispatcher stops while waiting.
var ErrStopped = errors.New("dispatcher stopped")

// Config controls debouncing, empty-query handling and retries.
type Config struct {
	DebounceInterval   time.Duration
	SuppressEmptyQuery bool
	// RequestTimeout bounds each transport call. Zero means no deadline.
	RequestTimeout time.Duration
	Retry          RetryConfig
}

// RetryConfig defines retry behavior for failed submissions.
// MaxAttempts counts the first attempt; zero and one both mean no retry.
type RetryConfig struct {
	MaxAttempts int
	BackoffBase time.Duration
}

// DefaultConfig returns the default dispatcher configuration.
func DefaultConfig() Config {
	return Config{
		DebounceInterval: DefaultDebounceInterval,
		Retry: RetryConfig{
			MaxAttempts: 1,
			BackoffBase: DefaultRetryBackoff,
		},
	}
}

// Validate reports every field that is out of range. Values are never clamped.
func (c Config) Validate() error {
	var errs []error
	if c.DebounceInterval < 0 {
		errs = append(errs, fmt.Errorf("debounce interval %v is negative", c.DebounceInterval))
	}
	if c.RequestTimeout < 0 {
		errs = append(errs, fmt.Errorf("request timeout %v is negative", c.RequestTimeout))
	}
	if c.Retry.MaxAttempts < 0 {
		errs = append(errs, fmt.Errorf("retry max attempts %d is negative", c.Retry.MaxAttempts))
	}
	if c.Retry.BackoffBase < 0 {
		errs = append(errs, fmt.Errorf("retry backoff %v is negative", c.Retry.BackoffBase))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrMalformedConfig, errors.Join(errs...))
	}
	return nil
}

func (r RetryConfig) attempts() int {
	if r.MaxAttempts <= 0 {
		return 1
	}
	return r.MaxAttempts
}

// backoff returns the delay before attempt+1.
func (r RetryConfig) backoff(attempt int) time.Duration {
	delay := r.BackoffBase
	for i := 1; i < attempt && delay < maxRetryBackoff; i++ {
		delay *= 2
	}
	if delay > maxRetryBackoff {
		delay = maxRetryBackoff
	}
	return delay
}

// Transport performs one search. Implementations should return promptly once
// ctx is cancelled, but the dispatcher does not rely on it.
type Transport[R any] interface {
	Submit(ctx context.Context, text string) (R, error)
}

// TransportFunc adapts a function to Transport.
type TransportFunc[R any] func(ctx context.Context, text string) (R, error)

func (f TransportFunc[R]) Submit(ctx context.Context, text string) (R, error) {
	return f(ctx, text)
}

// Consumer receives accepted outcomes. Exactly one of the two methods is
// called per accepted sequence number.
type Consumer[R any] interface {
	OnResult(text string, result R)
	OnError(text string, err error)
}

// Callbacks adapts a pair of functions to Consumer. Nil functions are skipped.
type Callbacks[R any] struct {
	Result func(text string, result R)
	Error  func(text string, err error)
}

func (c Callbacks[R]) OnResult(text string, result R) {
	if c.Result != nil {
		c.Result(text, result)
	}
}

func (c Callbacks[R]) OnError(text string, err error) {
	if c.Error != nil {
		c.Error(text, err)
	}
}

// Request is one submission of a settled query. Immutable once created.
type Request struct {
	ID          string
	Sequence    uint64
	Text        string
	SubmittedAt time.Time
}

// TransportError wraps a failure surfaced by the Transport for an accepted request.
type TransportError struct {
	Request  Request
	Attempts int
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("search %q (sequence %d) failed after %d attempt(s): %v",
		e.Request.Text, e.Request.Sequence, e.Attempts, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Phase is the dispatcher's position in its state machine.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseDebouncing
	PhaseAwaitingResponse
	// PhaseDebouncingStale means an edit arrived while a request is in flight.
	// That request is superseded once the new text settles.
	PhaseDebouncingStale
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseDebouncing:
		return "debouncing"
	case PhaseAwaitingResponse:
		return "awaiting_response"
	case PhaseDebouncingStale:
		return "debouncing_stale"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// Stats counts dispatcher activity since construction.
type Stats struct {
	Issued     int
	Accepted   int
	Failed     int
	Stale      int
	Retried    int
	Suppressed int
}

// State is a copy of the dispatcher's query state.
type State struct {
	CurrentText          string
	PendingTimer         bool
	LastAcceptedSequence uint64
	// InFlightSequence is zero when nothing is in flight.
	InFlightSequence  uint64
	LastSubmittedText string
	HasSubmitted      bool
	Stats             Stats
}

// Phase derives the state-machine phase from the state.
func (s State) Phase() Phase {
	switch {
	case s.PendingTimer && s.InFlightSequence != 0:
		return PhaseDebouncingStale
	case s.PendingTimer:
		return PhaseDebouncing
	case s.InFlightSequence != 0:
		return PhaseAwaitingResponse
	default:
		return PhaseIdle
	}
}
