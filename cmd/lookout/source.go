package main

import (
	"context"
	"fmt"

	"github.com/mattjoyce/lookout/internal/catalog"
	"github.com/mattjoyce/lookout/internal/config"
	"github.com/mattjoyce/lookout/internal/dispatch"
	"github.com/mattjoyce/lookout/internal/storage"
	"github.com/mattjoyce/lookout/internal/transport"
)

// searchSource is where search and query send their queries.
type searchSource struct {
	transport dispatch.Transport[catalog.Result]
	// subscriber is nil for local sources, which have no change feed.
	subscriber *transport.Subscriber
	target     string
	close      func()
}

// openSource searches the catalog database directly when local is set, and
// the configured search API otherwise.
func openSource(ctx context.Context, cfg *config.Config, local bool) (*searchSource, error) {
	if local {
		db, err := storage.OpenSQLite(ctx, cfg.Catalog.Path)
		if err != nil {
			return nil, fmt.Errorf("open catalog: %w", err)
		}
		return &searchSource{
			transport: transport.NewLocal(catalog.NewStore(db), cfg.Search.Limit),
			target:    cfg.Catalog.Path,
			close:     func() { _ = db.Close() },
		}, nil
	}

	t, err := transport.NewHTTP(transport.HTTPConfig{
		Endpoint: cfg.Search.Endpoint,
		APIKey:   cfg.Search.APIKey,
		Limit:    cfg.Search.Limit,
		Encoding: cfg.Search.Encoding,
	})
	if err != nil {
		return nil, err
	}
	return &searchSource{
		transport:  t,
		subscriber: transport.NewSubscriber(cfg.Search.Endpoint, cfg.Search.APIKey),
		target:     cfg.Search.Endpoint,
		close:      func() {},
	}, nil
}
