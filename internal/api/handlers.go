package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/mattjoyce/lookout/internal/catalog"
	"github.com/mattjoyce/lookout/internal/events"
)

const maxSeedBodyBytes = 4 << 20

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	entries, err := s.catalog.Count(r.Context())
	if err != nil {
		s.logger.Error("failed to count catalog entries", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to count catalog entries")
		return
	}
	sources, err := s.catalog.Sources(r.Context())
	if err != nil {
		s.logger.Error("failed to list catalog sources", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list catalog sources")
		return
	}

	respondJSON(w, http.StatusOK, HealthzResponse{
		Status:        "ok",
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
		Entries:       entries,
		Sources:       len(sources),
	})
}

// handleSearch serves GET /search?q=&limit=. The result is msgpack when the
// client accepts it, JSON otherwise.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			s.writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	result, err := s.catalog.Search(r.Context(), query, limit)
	if err != nil {
		s.logger.Error("search failed", "query", query, "error", err)
		s.writeError(w, http.StatusInternalServerError, "search failed")
		return
	}

	if acceptsMsgpack(r) {
		body, err := msgpack.Marshal(result)
		if err != nil {
			s.logger.Error("failed to encode msgpack result", "error", err)
			s.writeError(w, http.StatusInternalServerError, "failed to encode result")
			return
		}
		w.Header().Set("Content-Type", ContentTypeMsgpack)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(body)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

func acceptsMsgpack(r *http.Request) bool {
	for _, part := range strings.Split(r.Header.Get("Accept"), ",") {
		mt := strings.TrimSpace(strings.SplitN(part, ";", 2)[0])
		if mt == ContentTypeMsgpack || mt == "application/x-msgpack" {
			return true
		}
	}
	return false
}

func (s *Server) handleSources(w http.ResponseWriter, r *http.Request) {
	sources, err := s.catalog.Sources(r.Context())
	if err != nil {
		s.logger.Error("failed to list catalog sources", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list catalog sources")
		return
	}
	if sources == nil {
		sources = []catalog.SourceInfo{}
	}
	respondJSON(w, http.StatusOK, SourcesResponse{Sources: sources})
}

// handleImport serves POST /catalog/entries with a seed document as body.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxSeedBodyBytes))
	dec.DisallowUnknownFields()

	var seed catalog.Seed
	if err := dec.Decode(&seed); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}

	report, err := s.catalog.Import(r.Context(), seed, catalog.OriginAPI)
	if errors.Is(err, catalog.ErrInvalidSeed) {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		s.logger.Error("catalog import failed", "source", seed.Source, "error", err)
		s.writeError(w, http.StatusInternalServerError, "catalog import failed")
		return
	}

	s.logger.Info("catalog imported",
		"source", report.Source,
		"added", report.Added,
		"updated", report.Updated,
		"removed", report.Removed,
	)
	if report.Changed() {
		s.events.Publish(events.TypeCatalogImported, report)
	}
	respondJSON(w, http.StatusOK, report)
}

func respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", ContentTypeJSON)
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) writeError(w http.ResponseWriter, statusCode int, message string) {
	respondJSON(w, statusCode, ErrorResponse{Error: message})
}
