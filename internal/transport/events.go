package transport

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/mattjoyce/lookout/internal/events"
	"github.com/mattjoyce/lookout/internal/log"
)

const maxReconnectDelay = 30 * time.Second

// Subscriber follows a server's /events stream, reconnecting with backoff and
// resuming from the last event it saw.
type Subscriber struct {
	endpoint string
	apiKey   string
	client   *http.Client
	delay    time.Duration
	clock    clockwork.Clock
	logger   *slog.Logger
	lastID   int64
}

func NewSubscriber(endpoint, apiKey string) *Subscriber {
	return &Subscriber{
		endpoint: strings.TrimRight(endpoint, "/"),
		apiKey:   apiKey,
		client:   &http.Client{},
		delay:    time.Second,
		clock:    clockwork.NewRealClock(),
		logger:   log.WithComponent("events-subscriber"),
		lastID:   -1,
	}
}

// Run calls fn for every event until ctx is cancelled. Connection failures
// are retried; an authentication failure is returned. The backoff starts
// over once a connection has delivered an event.
func (s *Subscriber) Run(ctx context.Context, fn func(events.Event)) error {
	delay := s.delay
	for {
		received, err := s.stream(ctx, fn)
		if ctx.Err() != nil {
			return nil
		}
		if received > 0 {
			delay = s.delay
		}
		var se *StatusError
		if errors.As(err, &se) && (se.StatusCode == http.StatusUnauthorized || se.StatusCode == http.StatusForbidden) {
			return err
		}
		s.logger.Debug("event stream disconnected", "error", err, "retry_in", delay)

		select {
		case <-ctx.Done():
			return nil
		case <-s.clock.After(delay):
		}
		delay *= 2
		if delay > maxReconnectDelay {
			delay = maxReconnectDelay
		}
	}
}

// stream reads one connection and reports how many events it delivered.
func (s *Subscriber) stream(ctx context.Context, fn func(events.Event)) (int, error) {
	u, err := url.Parse(s.endpoint + "/events")
	if err != nil {
		return 0, fmt.Errorf("parse events endpoint: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return 0, fmt.Errorf("build events request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}
	if s.lastID >= 0 {
		req.Header.Set("Last-Event-ID", strconv.FormatInt(s.lastID, 10))
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("connect events: %w", err)
	}
	defer resp.Body.Close()
	if err := checkStatus(resp); err != nil {
		return 0, err
	}

	received := 0
	err = ReadSSE(resp.Body, func(ev events.Event) {
		received++
		s.lastID = ev.ID
		fn(ev)
	})
	return received, err
}

// ReadSSE parses Server-Sent Event frames from r until it ends.
func ReadSSE(r io.Reader, fn func(events.Event)) error {
	scanner := bufio.NewScanner(r)
	var (
		current events.Event
		data    []string
	)
	for scanner.Scan() {
		line := scanner.Text()

		if line == "" {
			if len(data) > 0 {
				current.At = time.Now().UTC()
				current.Data = []byte(strings.Join(data, "\n"))
				fn(current)
			}
			current = events.Event{}
			data = nil
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "id":
			if id, err := strconv.ParseInt(value, 10, 64); err == nil {
				current.ID = id
			}
		case "event":
			current.Type = value
		case "data":
			data = append(data, value)
		}
	}
	return scanner.Err()
}
