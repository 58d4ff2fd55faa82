package transport

import (
	"context"

	"github.com/mattjoyce/lookout/internal/catalog"
)

// Searcher is the part of catalog.Store the local transport needs.
type Searcher interface {
	Search(ctx context.Context, query string, limit int) (catalog.Result, error)
}

// Local searches an in-process catalog, without a server.
type Local struct {
	store Searcher
	limit int
}

func NewLocal(store Searcher, limit int) *Local {
	return &Local{store: store, limit: limit}
}

func (l *Local) Submit(ctx context.Context, text string) (catalog.Result, error) {
	if err := ctx.Err(); err != nil {
		return catalog.Result{}, err
	}
	return l.store.Search(ctx, text, l.limit)
}
