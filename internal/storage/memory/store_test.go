package memory

import (
	"context"
	"testing"
	"time"

	"productservice/internal/product"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seed(t *testing.T, s *Store, products ...product.Product) {
	t.Helper()
	for _, p := range products {
		require.NoError(t, s.Insert(context.Background(), p))
	}
}

func TestStoreCompareAndSet(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	seed(t, s, product.Product{ID: "a", Name: "Widget", Stock: 5, Version: 1})

	p, err := s.Get(ctx, "a")
	require.NoError(t, err)

	p.Stock = 4
	p.Version = 2
	require.NoError(t, s.Update(ctx, p, 1))

	p.Stock = 3
	p.Version = 2
	assert.ErrorIs(t, s.Update(ctx, p, 1), product.ErrVersionConflict)

	got, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 4, got.Stock)
	assert.Equal(t, int64(2), got.Version)

	assert.ErrorIs(t, s.Update(ctx, product.Product{ID: "missing"}, 1), product.ErrNotFound)
}

func TestStoreDeleteReturnsLastState(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	seed(t, s, product.Product{ID: "a", Name: "Widget", Stock: 7})

	p, err := s.Delete(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 7, p.Stock)

	_, err = s.Get(ctx, "a")
	assert.ErrorIs(t, err, product.ErrNotFound)
	_, err = s.Delete(ctx, "a")
	assert.ErrorIs(t, err, product.ErrNotFound)
}

func TestStoreReads(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s := NewStore()
	seed(t, s,
		product.Product{ID: "1", Name: "Blue Widget", Stock: 2, CreatedAt: base},
		product.Product{ID: "2", Name: "Gadget", Description: "a WIDGET companion", Stock: 20, CreatedAt: base.Add(time.Minute)},
		product.Product{ID: "3", Name: "Sprocket", Stock: 10, CreatedAt: base.Add(2 * time.Minute)},
	)

	found, err := s.Search(ctx, "widget")
	require.NoError(t, err)
	assert.Len(t, found, 2)

	low, err := s.LowStock(ctx, 10)
	require.NoError(t, err)
	require.Len(t, low, 2)
	assert.Equal(t, "1", low[0].ID)
	assert.Equal(t, "3", low[1].ID)

	page, total, err := s.Paginate(ctx, 2, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	require.Len(t, page, 1)
	assert.Equal(t, "3", page[0].ID)

	page, _, err = s.Paginate(ctx, 10, 2)
	require.NoError(t, err)
	assert.Empty(t, page)
}

func TestStorePaginateOutOfRange(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	seed(t, s, product.Product{ID: "a", Name: "Widget", Version: 1})

	for _, tc := range []struct{ skip, limit int }{{-6, 10}, {0, 0}, {5, 10}} {
		got, total, err := s.Paginate(ctx, tc.skip, tc.limit)
		require.NoError(t, err)
		assert.Empty(t, got, tc)
		assert.Equal(t, int64(1), total)
	}
}
