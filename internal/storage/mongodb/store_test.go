package mongodb

import (
	"context"
	"os"
	"testing"
	"time"

	"productservice/internal/product"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func connect(t *testing.T) *Store {
	t.Helper()
	uri := os.Getenv("MONGO_URI")
	if uri == "" {
		t.Skip("MONGO_URI not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	s, err := Connect(ctx, uri, "produits_test_"+uuid.NewString()[:8])
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = s.collection.Database().Drop(context.Background())
		_ = s.Close(context.Background())
	})
	return s
}

func TestMongoStoreCompareAndSet(t *testing.T) {
	s := connect(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	p := product.Product{ID: uuid.NewString(), Name: "Widget", Category: "tools", Price: 10, Stock: 5, Version: 1, CreatedAt: now, UpdatedAt: now}
	require.NoError(t, s.Insert(ctx, p))

	next := p
	next.Stock = 2
	next.Version = 2
	require.NoError(t, s.Update(ctx, next, 1))
	assert.ErrorIs(t, s.Update(ctx, next, 1), product.ErrVersionConflict)

	got, err := s.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Stock)

	low, err := s.LowStock(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, low, 1)

	found, err := s.Search(ctx, "WIDG")
	require.NoError(t, err)
	assert.Len(t, found, 1)

	deleted, err := s.Delete(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, deleted.Stock)

	_, err = s.Get(ctx, p.ID)
	assert.ErrorIs(t, err, product.ErrNotFound)
	assert.ErrorIs(t, s.Update(ctx, next, 2), product.ErrNotFound)
}
