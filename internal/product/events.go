package product

import "time"

// DeltaKind classifies a stock mutation.
type DeltaKind string

const (
	DeltaReserved DeltaKind = "reserved"
	DeltaReleased DeltaKind = "released"
	DeltaSet      DeltaKind = "set"
)

// StockMutation describes one applied stock change. It is never persisted.
type StockMutation struct {
	Product       Product
	ProductID     string
	OldStock      int
	NewStock      int
	Quantity      int
	Kind          DeltaKind
	CorrelationID string
	OccurredAt    time.Time
}

// Notifier receives exactly one call per successful mutation. Implementations must not block
// and have no way to fail the mutation that triggered them.
type Notifier interface {
	ProductCreated(p Product)
	ProductUpdated(before, after Product)
	ProductDeleted(p Product)
	StockMutated(m StockMutation)
}

// NopNotifier discards every notification.
type NopNotifier struct{}

func (NopNotifier) ProductCreated(Product)          {}
func (NopNotifier) ProductUpdated(Product, Product) {}
func (NopNotifier) ProductDeleted(Product)          {}
func (NopNotifier) StockMutated(StockMutation)      {}
