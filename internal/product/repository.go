package product

import "context"

// Repository is the inventory store. Update must only succeed when the stored version equals
// expectedVersion and must return ErrVersionConflict otherwise; Get, Update and Delete return
// ErrNotFound for unknown ids.
type Repository interface {
	Insert(ctx context.Context, p Product) error
	Get(ctx context.Context, id string) (Product, error)
	Update(ctx context.Context, p Product, expectedVersion int64) error
	Delete(ctx context.Context, id string) (Product, error)

	List(ctx context.Context) ([]Product, error)
	Search(ctx context.Context, query string) ([]Product, error)
	Paginate(ctx context.Context, skip, limit int) ([]Product, int64, error)
	LowStock(ctx context.Context, threshold int) ([]Product, error)
}
