package product

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

var ErrProductNotFound = errors.New("product not found")

// Product is the catalog's view of an item. Price is the live catalog price.
type Product struct {
	ID     string          `json:"id"`
	Name   string          `json:"name"`
	Price  decimal.Decimal `json:"price"`
	Active bool            `json:"active"`
}

// Purchasable reports whether the product may still be sold.
func (p *Product) Purchasable() bool {
	return p != nil && p.Active
}

// Catalog is the read-only product collaborator.
type Catalog interface {
	GetProduct(ctx context.Context, id string) (*Product, error)
}
