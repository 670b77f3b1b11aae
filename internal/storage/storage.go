// Package storage selects the product store driver from configuration.
package storage

import (
	"context"
	"fmt"

	"productservice/internal/config"
	"productservice/internal/product"
	"productservice/internal/storage/memory"
	"productservice/internal/storage/mongodb"
	"productservice/internal/storage/postgres"
)

// Store is a product repository with a connection lifecycle.
type Store interface {
	product.Repository
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

// Open connects the configured driver. A returned store has answered a ping.
func Open(ctx context.Context, cfg *config.Config) (Store, error) {
	switch cfg.StoreDriver {
	case config.StoreMongo:
		s, err := mongodb.Connect(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.StorePostgres:
		s, err := postgres.Connect(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.StoreMemory:
		return memory.NewStore(), nil
	default:
		return nil, fmt.Errorf("unsupported store driver %q", cfg.StoreDriver)
	}
}
