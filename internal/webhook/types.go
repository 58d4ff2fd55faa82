package webhook

import (
	"context"

	"github.com/mattjoyce/lookout/internal/catalog"
)

// Importer applies a pushed seed to the catalog.
type Importer interface {
	Import(ctx context.Context, seed catalog.Seed, origin string) (catalog.ImportReport, error)
}

// Config holds webhook server configuration.
type Config struct {
	Listen    string
	Endpoints []EndpointConfig
}

// EndpointConfig defines a single seed push endpoint.
type EndpointConfig struct {
	// Path is the URL path for this webhook (e.g., "/hooks/ci").
	Path string

	// Secret is the HMAC secret shared with the pusher.
	Secret string

	// SignatureHeader carries the HMAC-SHA256 of the body.
	SignatureHeader string

	MaxBodySize int64
}

// ErrorResponse is the JSON response for webhook errors.
type ErrorResponse struct {
	Error string `json:"error"`
}

const (
	DefaultMaxBodySize     = 1048576 // 1 MB
	DefaultSignatureHeader = "X-Lookout-Signature-256"
)
