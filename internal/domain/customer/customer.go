// Package customer holds the minimal account data the checkout core needs.
package customer

import (
	"context"
	"time"

	"github.com/go-faster/errors"
)

// ErrNotFound is returned when a customer id is unknown.
var ErrNotFound = errors.New("customer not found")

// Customer is the order owner. CreatedAt participates in the
// existing-members-only gate for code-entry discounts.
type Customer struct {
	ID        string
	Email     string
	Name      string
	CreatedAt time.Time
}

// Repository provides customer lookup.
type Repository interface {
	GetByID(ctx context.Context, id string) (*Customer, error)
}
