package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/mattjoyce/lookout/internal/catalog"
)

// Encodings accepted from the search API.
const (
	EncodingJSON    = "json"
	EncodingMsgpack = "msgpack"
)

const maxErrorBody = 4 << 10

// StatusError is returned when the search API answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("search API returned %d %s", e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("search API returned %d: %s", e.StatusCode, e.Message)
}

// HTTPConfig configures the HTTP search transport.
type HTTPConfig struct {
	Endpoint string
	APIKey   string
	Limit    int
	Encoding string
}

// HTTP submits queries to a lookout server's /search endpoint.
type HTTP struct {
	base     *url.URL
	apiKey   string
	limit    int
	encoding string
	client   *http.Client
}

// HTTPOption customizes an HTTP transport.
type HTTPOption func(*HTTP)

// WithHTTPClient replaces the default client.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(t *HTTP) { t.client = c }
}

func NewHTTP(cfg HTTPConfig, opts ...HTTPOption) (*HTTP, error) {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return nil, errors.New("search endpoint is empty")
	}
	base, err := url.Parse(strings.TrimRight(cfg.Endpoint, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse search endpoint: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("search endpoint %q must be http or https", cfg.Endpoint)
	}

	encoding := strings.ToLower(strings.TrimSpace(cfg.Encoding))
	switch encoding {
	case "":
		encoding = EncodingJSON
	case EncodingJSON, EncodingMsgpack:
	default:
		return nil, fmt.Errorf("unsupported encoding %q", cfg.Encoding)
	}

	t := &HTTP{
		base:     base,
		apiKey:   cfg.APIKey,
		limit:    cfg.Limit,
		encoding: encoding,
		client:   &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// Submit runs one search. Cancelling ctx aborts the request.
func (t *HTTP) Submit(ctx context.Context, text string) (catalog.Result, error) {
	q := url.Values{}
	q.Set("q", text)
	if t.limit > 0 {
		q.Set("limit", strconv.Itoa(t.limit))
	}

	req, err := t.newRequest(ctx, "/search", q)
	if err != nil {
		return catalog.Result{}, err
	}
	if t.encoding == EncodingMsgpack {
		req.Header.Set("Accept", "application/msgpack, application/json;q=0.5")
	} else {
		req.Header.Set("Accept", "application/json")
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return catalog.Result{}, fmt.Errorf("search request: %w", err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return catalog.Result{}, err
	}

	var result catalog.Result
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/msgpack") {
		err = msgpack.NewDecoder(resp.Body).Decode(&result)
	} else {
		err = json.NewDecoder(resp.Body).Decode(&result)
	}
	if err != nil {
		return catalog.Result{}, fmt.Errorf("decode search response: %w", err)
	}
	return result, nil
}

// Health is the body of GET /healthz.
type Health struct {
	Status        string `json:"status"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	Entries       int    `json:"entries"`
	Sources       int    `json:"sources"`
}

// Health queries the server's health endpoint.
func (t *HTTP) Health(ctx context.Context) (Health, error) {
	var h Health
	if err := t.getJSON(ctx, "/healthz", &h); err != nil {
		return Health{}, fmt.Errorf("health: %w", err)
	}
	return h, nil
}

// Sources lists the catalog's sources.
func (t *HTTP) Sources(ctx context.Context) ([]catalog.SourceInfo, error) {
	var body struct {
		Sources []catalog.SourceInfo `json:"sources"`
	}
	if err := t.getJSON(ctx, "/catalog/sources", &body); err != nil {
		return nil, fmt.Errorf("sources: %w", err)
	}
	return body.Sources, nil
}

func (t *HTTP) getJSON(ctx context.Context, path string, v any) error {
	req, err := t.newRequest(ctx, path, nil)
	if err != nil {
		return err
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := checkStatus(resp); err != nil {
		return err
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (t *HTTP) newRequest(ctx context.Context, path string, q url.Values) (*http.Request, error) {
	u := *t.base
	u.Path = strings.TrimRight(u.Path, "/") + path
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if t.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+t.apiKey)
	}
	return req, nil
}

// checkStatus turns a non-2xx response into a StatusError carrying the
// server's {"error": ...} message when there is one.
func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	var payload struct {
		Error string `json:"error"`
	}
	msg := strings.TrimSpace(string(body))
	if json.Unmarshal(body, &payload) == nil && payload.Error != "" {
		msg = payload.Error
	}
	return &StatusError{StatusCode: resp.StatusCode, Message: msg}
}
