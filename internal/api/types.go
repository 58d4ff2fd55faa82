package api

import "github.com/mattjoyce/lookout/internal/catalog"

// ErrorResponse is returned on errors
type ErrorResponse struct {
	Error string `json:"error" msgpack:"error"`
}

// HealthzResponse is returned by GET /healthz.
type HealthzResponse struct {
	Status        string `json:"status"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	Entries       int    `json:"entries"`
	Sources       int    `json:"sources"`
}

// SourcesResponse is returned by GET /catalog/sources.
type SourcesResponse struct {
	Sources []catalog.SourceInfo `json:"sources"`
}

// Media types negotiated by /search.
const (
	ContentTypeJSON    = "application/json"
	ContentTypeMsgpack = "application/msgpack"
)
