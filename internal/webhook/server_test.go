package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mattjoyce/lookout/internal/catalog"
	"github.com/mattjoyce/lookout/internal/events"
)

const testSecret = "test-secret"

var testSeed = []byte("source: warehouse\ntables:\n  - name: orders\n    columns:\n      - name: order_id\n")

// mockImporter is a hand-rolled Importer for testing.
type mockImporter struct {
	importFn func(ctx context.Context, seed catalog.Seed, origin string) (catalog.ImportReport, error)
	calls    int
}

func (m *mockImporter) Import(ctx context.Context, seed catalog.Seed, origin string) (catalog.ImportReport, error) {
	m.calls++
	if m.importFn != nil {
		return m.importFn(ctx, seed, origin)
	}
	return catalog.ImportReport{Source: seed.Source, Origin: origin, Added: 2}, nil
}

func newTestServer(imp Importer, hub *events.Hub, eps ...EndpointConfig) *Server {
	if len(eps) == 0 {
		eps = []EndpointConfig{{Path: "/hooks/ci", Secret: testSecret}}
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(Config{Listen: "127.0.0.1:0", Endpoints: eps}, imp, hub, logger)
}

func post(s *Server, path string, body []byte, header, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	if signature != "" {
		req.Header.Set(header, signature)
	}
	rec := httptest.NewRecorder()
	s.setupRoutes().ServeHTTP(rec, req)
	return rec
}

func TestHandleWebhook_ValidSignatureImports(t *testing.T) {
	hub := events.NewHub(8)
	imp := &mockImporter{
		importFn: func(ctx context.Context, seed catalog.Seed, origin string) (catalog.ImportReport, error) {
			if seed.Source != "warehouse" {
				t.Errorf("Source = %q, want warehouse", seed.Source)
			}
			if origin != "webhook:/hooks/ci" {
				t.Errorf("origin = %q, want webhook:/hooks/ci", origin)
			}
			return catalog.ImportReport{Source: seed.Source, Origin: origin, Added: 2}, nil
		},
	}
	s := newTestServer(imp, hub)

	rec := post(s, "/hooks/ci", testSeed, DefaultSignatureHeader, Sign(testSeed, testSecret))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	var report catalog.ImportReport
	if err := json.NewDecoder(rec.Body).Decode(&report); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if report.Added != 2 {
		t.Errorf("Added = %d, want 2", report.Added)
	}

	evs := hub.SnapshotSince(0)
	if len(evs) != 1 || evs[0].Type != events.TypeCatalogImported {
		t.Fatalf("expected one catalog.imported event, got %+v", evs)
	}
}

func TestHandleWebhook_JSONBody(t *testing.T) {
	imp := &mockImporter{}
	s := newTestServer(imp, nil)
	body := []byte(`{"source":"crm","tables":[{"name":"contacts"}]}`)

	rec := post(s, "/hooks/ci", body, DefaultSignatureHeader, Sign(body, testSecret))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
}

func TestHandleWebhook_UnchangedDoesNotPublish(t *testing.T) {
	hub := events.NewHub(8)
	imp := &mockImporter{
		importFn: func(ctx context.Context, seed catalog.Seed, origin string) (catalog.ImportReport, error) {
			return catalog.ImportReport{Source: seed.Source, Unchanged: 2}, nil
		},
	}
	s := newTestServer(imp, hub)

	rec := post(s, "/hooks/ci", testSeed, DefaultSignatureHeader, Sign(testSeed, testSecret))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if n := len(hub.SnapshotSince(0)); n != 0 {
		t.Errorf("published %d events for an unchanged seed", n)
	}
}

func TestHandleWebhook_Rejections(t *testing.T) {
	tests := []struct {
		name      string
		body      []byte
		signature string
		want      int
	}{
		{"missing signature", testSeed, "", http.StatusForbidden},
		{"wrong secret", testSeed, Sign(testSeed, "other"), http.StatusForbidden},
		{"not a seed", []byte("[unclosed"), Sign([]byte("[unclosed"), testSecret), http.StatusBadRequest},
		{"unknown field", []byte("source: x\nowner: me\n"), Sign([]byte("source: x\nowner: me\n"), testSecret), http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			imp := &mockImporter{}
			s := newTestServer(imp, nil)
			rec := post(s, "/hooks/ci", tt.body, DefaultSignatureHeader, tt.signature)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d: %s", rec.Code, tt.want, rec.Body.String())
			}
			if imp.calls != 0 {
				t.Errorf("importer called %d times", imp.calls)
			}
		})
	}
}

func TestHandleWebhook_ForbiddenIsGeneric(t *testing.T) {
	s := newTestServer(&mockImporter{}, nil)
	rec := post(s, "/hooks/ci", testSeed, DefaultSignatureHeader, "sha256=abcd")

	var resp ErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Error != "forbidden" {
		t.Errorf("error = %q, want forbidden", resp.Error)
	}
}

func TestHandleWebhook_PayloadTooLarge(t *testing.T) {
	s := newTestServer(&mockImporter{}, nil, EndpointConfig{Path: "/hooks/ci", Secret: testSecret, MaxBodySize: 16})
	rec := post(s, "/hooks/ci", testSeed, DefaultSignatureHeader, Sign(testSeed, testSecret))
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d, want 413", rec.Code)
	}
}

func TestHandleWebhook_ImporterErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"invalid seed", fmt.Errorf("%w: table name is empty", catalog.ErrInvalidSeed), http.StatusBadRequest},
		{"storage failure", errors.New("disk full"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			imp := &mockImporter{
				importFn: func(context.Context, catalog.Seed, string) (catalog.ImportReport, error) {
					return catalog.ImportReport{}, tt.err
				},
			}
			s := newTestServer(imp, nil)
			rec := post(s, "/hooks/ci", testSeed, DefaultSignatureHeader, Sign(testSeed, testSecret))
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestHandleWebhook_CustomHeaderAndUnknownPath(t *testing.T) {
	s := newTestServer(&mockImporter{}, nil, EndpointConfig{Path: "/hooks/registry", Secret: testSecret, SignatureHeader: "X-Hub-Signature-256"})

	rec := post(s, "/hooks/registry", testSeed, "X-Hub-Signature-256", Sign(testSeed, testSecret))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	rec = post(s, "/hooks/other", testSeed, "X-Hub-Signature-256", Sign(testSeed, testSecret))
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown path status = %d, want 404", rec.Code)
	}
}
