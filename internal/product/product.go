// Package product holds the catalog domain: the Product record, its invariants and the
// stock engine that mutates it.
package product

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// MaxStock is the largest stock level a product may hold.
const MaxStock = math.MaxInt32

// Product is the persisted catalog record. Version is bumped on every write and backs the
// compare-and-set performed by the stores.
type Product struct {
	ID          string    `json:"_id" bson:"_id"`
	Name        string    `json:"name" bson:"name"`
	Origin      string    `json:"origin,omitempty" bson:"origin,omitempty"`
	Price       float64   `json:"price" bson:"price"`
	Category    string    `json:"category" bson:"category"`
	Stock       int       `json:"stock" bson:"stock"`
	Description string    `json:"description,omitempty" bson:"description,omitempty"`
	Version     int64     `json:"__v" bson:"__v"`
	CreatedAt   time.Time `json:"createdAt" bson:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt" bson:"updatedAt"`
}

// Draft carries the caller-supplied fields of a product to create.
type Draft struct {
	Name        string
	Origin      string
	Price       *float64
	Category    string
	Stock       *int
	Description string
}

// Patch is a partial update; nil fields are left untouched.
type Patch struct {
	Name        *string
	Origin      *string
	Price       *float64
	Category    *string
	Stock       *int
	Description *string
}

// Empty reports whether the patch changes nothing.
func (p Patch) Empty() bool {
	return p.Name == nil && p.Origin == nil && p.Price == nil &&
		p.Category == nil && p.Stock == nil && p.Description == nil
}

func (p Patch) applyTo(prod *Product) {
	if p.Name != nil {
		prod.Name = *p.Name
	}
	if p.Origin != nil {
		prod.Origin = *p.Origin
	}
	if p.Price != nil {
		prod.Price = *p.Price
	}
	if p.Category != nil {
		prod.Category = *p.Category
	}
	if p.Stock != nil {
		prod.Stock = *p.Stock
	}
	if p.Description != nil {
		prod.Description = *p.Description
	}
}

// Validate checks the record invariants and reports every offending field at once.
func (p Product) Validate() error {
	var verr ValidationError
	if strings.TrimSpace(p.Name) == "" {
		verr.add("name", "is required")
	}
	if strings.TrimSpace(p.Category) == "" {
		verr.add("category", "is required")
	}
	if p.Price < 0 {
		verr.add("price", "must be >= 0")
	}
	if p.Stock < 0 {
		verr.add("stock", "must be >= 0")
	}
	if p.Stock > MaxStock {
		verr.add("stock", "must be <= "+strconv.Itoa(MaxStock))
	}
	if len(verr.Fields) > 0 {
		return &verr
	}
	return nil
}

func (d Draft) build(id string, now time.Time) (Product, error) {
	p := Product{
		ID:          id,
		Name:        d.Name,
		Origin:      d.Origin,
		Category:    d.Category,
		Description: d.Description,
		Version:     1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if d.Price != nil {
		p.Price = *d.Price
	}
	if d.Stock != nil {
		p.Stock = *d.Stock
	}

	err := p.Validate()
	if d.Price == nil {
		verr, ok := err.(*ValidationError)
		if !ok {
			verr = &ValidationError{}
		}
		verr.add("price", "is required")
		err = verr
	}
	if err != nil {
		return Product{}, err
	}
	return p, nil
}

// Page is one slice of the catalog with its totals.
type Page struct {
	Page       int       `json:"page"`
	Limit      int       `json:"limit"`
	Total      int64     `json:"total"`
	TotalPages int       `json:"totalPages"`
	Products   []Product `json:"products"`
}
