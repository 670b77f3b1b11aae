package product

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound          = errors.New("product: not found")
	ErrInvalidQuantity   = errors.New("product: invalid quantity")
	ErrInsufficientStock = errors.New("product: insufficient stock")
	ErrValidation        = errors.New("product: validation failed")
	// ErrConflict is returned when the compare-and-set retry budget is exhausted.
	ErrConflict = errors.New("product: concurrent modification")
	// ErrVersionConflict is returned by stores when the expected version no longer matches.
	ErrVersionConflict = errors.New("product: version conflict")
	ErrStoreUnavailable = errors.New("product: store unavailable")
)

// InsufficientStockError reports what was available against what was asked for.
type InsufficientStockError struct {
	ProductID string
	Available int
	Requested int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("product %s: insufficient stock: available %d, requested %d", e.ProductID, e.Available, e.Requested)
}

func (e *InsufficientStockError) Is(target error) bool { return target == ErrInsufficientStock }

// FieldError names a single invalid field.
type FieldError struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// ValidationError lists every field that failed validation.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) add(field, reason string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Reason: reason})
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+" "+f.Reason)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

func invalidQuantity(quantity int) error {
	return fmt.Errorf("%w: %d", ErrInvalidQuantity, quantity)
}
