// Package postgres stores products in a PostgreSQL table through a pgx pool.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"productservice/internal/product"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
CREATE TABLE IF NOT EXISTS products (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL,
	origin      TEXT NOT NULL DEFAULT '',
	price       DOUBLE PRECISION NOT NULL CHECK (price >= 0),
	category    TEXT NOT NULL,
	stock       INTEGER NOT NULL DEFAULT 0 CHECK (stock >= 0),
	description TEXT NOT NULL DEFAULT '',
	version     BIGINT NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL
)`

const columns = `id, name, origin, price, category, stock, description, version, created_at, updated_at`

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

type Store struct {
	pool *pgxpool.Pool
}

// Connect opens the pool, pings it and creates the products table when missing.
func Connect(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: open postgres pool: %v", product.ErrStoreUnavailable, err)
	}
	s := &Store{pool: pool}
	if err := s.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate products table: %w", err)
	}
	return s, nil
}

func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("%w: ping postgres: %v", product.ErrStoreUnavailable, err)
	}
	return nil
}

func (s *Store) Close(context.Context) error {
	s.pool.Close()
	return nil
}

func (s *Store) Insert(ctx context.Context, p product.Product) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO products (`+columns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		p.ID, p.Name, p.Origin, p.Price, p.Category, p.Stock, p.Description, p.Version, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert product %s: %w", p.ID, err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id string) (product.Product, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+columns+` FROM products WHERE id = $1`, id)
	p, err := scan(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return product.Product{}, product.ErrNotFound
	}
	if err != nil {
		return product.Product{}, fmt.Errorf("get product %s: %w", id, err)
	}
	return p, nil
}

func (s *Store) Update(ctx context.Context, p product.Product, expectedVersion int64) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE products
		SET name = $3, origin = $4, price = $5, category = $6, stock = $7,
		    description = $8, version = $9, updated_at = $10
		WHERE id = $1 AND version = $2`,
		p.ID, expectedVersion, p.Name, p.Origin, p.Price, p.Category, p.Stock,
		p.Description, p.Version, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update product %s: %w", p.ID, err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var exists bool
	if err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM products WHERE id = $1)`, p.ID).Scan(&exists); err != nil {
		return fmt.Errorf("update product %s: %w", p.ID, err)
	}
	if !exists {
		return product.ErrNotFound
	}
	return product.ErrVersionConflict
}

func (s *Store) Delete(ctx context.Context, id string) (product.Product, error) {
	row := s.pool.QueryRow(ctx, `DELETE FROM products WHERE id = $1 RETURNING `+columns, id)
	p, err := scan(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return product.Product{}, product.ErrNotFound
	}
	if err != nil {
		return product.Product{}, fmt.Errorf("delete product %s: %w", id, err)
	}
	return p, nil
}

func (s *Store) List(ctx context.Context) ([]product.Product, error) {
	return s.query(ctx, `SELECT `+columns+` FROM products ORDER BY created_at, id`)
}

func (s *Store) Search(ctx context.Context, query string) ([]product.Product, error) {
	pattern := "%" + likeEscaper.Replace(query) + "%"
	return s.query(ctx, `
		SELECT `+columns+` FROM products
		WHERE name ILIKE $1 OR description ILIKE $1
		ORDER BY created_at, id`, pattern)
}

func (s *Store) Paginate(ctx context.Context, skip, limit int) ([]product.Product, int64, error) {
	var total int64
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM products`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count products: %w", err)
	}
	products, err := s.query(ctx, `SELECT `+columns+` FROM products ORDER BY created_at, id OFFSET $1 LIMIT $2`, skip, limit)
	if err != nil {
		return nil, 0, err
	}
	return products, total, nil
}

func (s *Store) LowStock(ctx context.Context, threshold int) ([]product.Product, error) {
	return s.query(ctx, `SELECT `+columns+` FROM products WHERE stock <= $1 ORDER BY created_at, id`, threshold)
}

func (s *Store) query(ctx context.Context, sql string, args ...any) ([]product.Product, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query products: %w", err)
	}
	defer rows.Close()

	products := []product.Product{}
	for rows.Next() {
		p, err := scan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query products: %w", err)
	}
	return products, nil
}

func scan(row pgx.Row) (product.Product, error) {
	var p product.Product
	err := row.Scan(&p.ID, &p.Name, &p.Origin, &p.Price, &p.Category, &p.Stock,
		&p.Description, &p.Version, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}
