package transport

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/lookout/internal/catalog"
)

type stubSearcher struct {
	query string
	limit int
}

func (s *stubSearcher) Search(_ context.Context, query string, limit int) (catalog.Result, error) {
	s.query, s.limit = query, limit
	return catalog.Result{Query: query, Total: 1}, nil
}

func TestLocalSubmit(t *testing.T) {
	st := &stubSearcher{}
	tr := NewLocal(st, 20)

	res, err := tr.Submit(context.Background(), "orders")
	require.NoError(t, err)
	assert.Equal(t, "orders", res.Query)
	assert.Equal(t, 20, st.limit)
}

func TestLocalSubmitCancelled(t *testing.T) {
	st := &stubSearcher{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewLocal(st, 0).Submit(ctx, "orders")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, st.query)
}
