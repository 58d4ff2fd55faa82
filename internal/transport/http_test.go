package transport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/mattjoyce/lookout/internal/catalog"
)

func TestNewHTTPValidates(t *testing.T) {
	tests := []struct {
		name string
		cfg  HTTPConfig
	}{
		{name: "empty endpoint", cfg: HTTPConfig{}},
		{name: "bad scheme", cfg: HTTPConfig{Endpoint: "ftp://example.com"}},
		{name: "bad encoding", cfg: HTTPConfig{Endpoint: "http://localhost", Encoding: "xml"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewHTTP(tt.cfg)
			require.Error(t, err)
		})
	}
}

func TestHTTPSubmitJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/search", r.URL.Path)
		assert.Equal(t, "cat & dog", r.URL.Query().Get("q"))
		assert.Equal(t, "25", r.URL.Query().Get("limit"))
		assert.Equal(t, "Bearer k", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Accept"))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(catalog.Result{Query: "cat & dog", Total: 1, Hits: []catalog.Entry{{Table: "pets"}}})
	}))
	defer srv.Close()

	tr, err := NewHTTP(HTTPConfig{Endpoint: srv.URL + "/api/", APIKey: "k", Limit: 25})
	require.NoError(t, err)

	res, err := tr.Submit(context.Background(), "cat & dog")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Total)
	require.Len(t, res.Hits, 1)
	assert.Equal(t, "pets", res.Hits[0].Table)
}

func TestHTTPSubmitMsgpack(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.Header.Get("Accept"), "application/msgpack")
		body, err := msgpack.Marshal(catalog.Result{Query: "x", Total: 3})
		require.NoError(t, err)
		w.Header().Set("Content-Type", "application/msgpack")
		_, _ = w.Write(body)
	}))
	defer srv.Close()

	tr, err := NewHTTP(HTTPConfig{Endpoint: srv.URL, Encoding: "MSGPACK"})
	require.NoError(t, err)

	res, err := tr.Submit(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, 3, res.Total)
}

func TestHTTPSubmitStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":"insufficient scope"}`))
	}))
	defer srv.Close()

	tr, err := NewHTTP(HTTPConfig{Endpoint: srv.URL})
	require.NoError(t, err)

	_, err = tr.Submit(context.Background(), "x")
	var se *StatusError
	require.True(t, errors.As(err, &se), "got %v", err)
	assert.Equal(t, http.StatusForbidden, se.StatusCode)
	assert.Equal(t, "insufficient scope", se.Message)
	assert.Contains(t, err.Error(), "403")
}

func TestHTTPSubmitCancelled(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	tr, err := NewHTTP(HTTPConfig{Endpoint: srv.URL})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = tr.Submit(ctx, "slow")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestHTTPHealth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/healthz", r.URL.Path)
		_, _ = w.Write([]byte(`{"status":"ok","entries":12,"sources":2}`))
	}))
	defer srv.Close()

	tr, err := NewHTTP(HTTPConfig{Endpoint: srv.URL})
	require.NoError(t, err)
	h, err := tr.Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Health{Status: "ok", Entries: 12, Sources: 2}, h)
}

func TestHTTPSources(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/catalog/sources", r.URL.Path)
		assert.Equal(t, "Bearer k", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"sources":[{"name":"warehouse","origin":"/seeds/w.yaml","entries":5,"imported_at":"2024-01-01T12:00:00Z"}]}`))
	}))
	defer srv.Close()

	tr, err := NewHTTP(HTTPConfig{Endpoint: srv.URL, APIKey: "k"})
	require.NoError(t, err)
	got, err := tr.Sources(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "warehouse", got[0].Name)
	assert.Equal(t, 5, got[0].Entries)
}

func TestHTTPSourcesForbidden(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":"insufficient scope"}`))
	}))
	defer srv.Close()

	tr, err := NewHTTP(HTTPConfig{Endpoint: srv.URL})
	require.NoError(t, err)
	_, err = tr.Sources(context.Background())
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusForbidden, se.StatusCode)
}
