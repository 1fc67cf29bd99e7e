// Package catalog provides read-only access to products and variants.
// Prices and stock levels are always resolved here at evaluation and
// commit time; client-supplied values are never trusted.
package catalog

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested product does not exist.
var ErrNotFound = errors.New("product not found")

// Product is a catalog item available for purchase.
type Product struct {
	ID       string
	Name     string
	Category string
	Price    decimal.Decimal
	Stock    int
	Active   bool
}

// Variant is a purchasable variation of a product. A nil Price means the
// variant sells at the base product price.
type Variant struct {
	ID        string
	ProductID string
	Name      string
	Price     *decimal.Decimal
	Stock     int
}

// UnitPrice returns the effective price of the variant given its parent
// product: the variant override when set, the product price otherwise.
func (v *Variant) UnitPrice(p *Product) decimal.Decimal {
	if v != nil && v.Price != nil {
		return *v.Price
	}
	return p.Price
}

// Reader resolves products and variants by id in single batch queries.
type Reader interface {
	List(ctx context.Context) ([]Product, error)
	ProductsByIDs(ctx context.Context, ids []string) ([]Product, error)
	VariantsByIDs(ctx context.Context, ids []string) ([]Variant, error)
	// VariantsByProductIDs returns every variant of the given products.
	VariantsByProductIDs(ctx context.Context, productIDs []string) ([]Variant, error)
}
