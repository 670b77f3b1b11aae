// Package memory is an in-process product store used by tests and local runs.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"productservice/internal/product"
)

type Store struct {
	mu       sync.RWMutex
	products map[string]product.Product
}

func NewStore() *Store {
	return &Store{products: make(map[string]product.Product)}
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) Close(context.Context) error { return nil }

func (s *Store) Insert(_ context.Context, p product.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products[p.ID] = p
	return nil
}

func (s *Store) Get(_ context.Context, id string) (product.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.products[id]
	if !ok {
		return product.Product{}, product.ErrNotFound
	}
	return p, nil
}

func (s *Store) Update(_ context.Context, p product.Product, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.products[p.ID]
	if !ok {
		return product.ErrNotFound
	}
	if current.Version != expectedVersion {
		return product.ErrVersionConflict
	}
	s.products[p.ID] = p
	return nil
}

func (s *Store) Delete(_ context.Context, id string) (product.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[id]
	if !ok {
		return product.Product{}, product.ErrNotFound
	}
	delete(s.products, id)
	return p, nil
}

func (s *Store) List(context.Context) ([]product.Product, error) {
	return s.filter(func(product.Product) bool { return true }), nil
}

func (s *Store) Search(_ context.Context, query string) ([]product.Product, error) {
	q := strings.ToLower(query)
	return s.filter(func(p product.Product) bool {
		return strings.Contains(strings.ToLower(p.Name), q) ||
			strings.Contains(strings.ToLower(p.Description), q)
	}), nil
}

func (s *Store) Paginate(_ context.Context, skip, limit int) ([]product.Product, int64, error) {
	all := s.filter(func(product.Product) bool { return true })
	total := int64(len(all))
	if skip < 0 || limit < 1 || skip >= len(all) {
		return []product.Product{}, total, nil
	}
	end := skip + limit
	if end > len(all) || end < skip {
		end = len(all)
	}
	return all[skip:end], total, nil
}

func (s *Store) LowStock(_ context.Context, threshold int) ([]product.Product, error) {
	return s.filter(func(p product.Product) bool { return p.Stock <= threshold }), nil
}

// filter returns matches ordered by creation time, then id.
func (s *Store) filter(keep func(product.Product) bool) []product.Product {
	s.mu.RLock()
	out := make([]product.Product, 0, len(s.products))
	for _, p := range s.products {
		if keep(p) {
			out = append(out, p)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}
