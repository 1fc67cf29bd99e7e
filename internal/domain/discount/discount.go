// Package discount implements the discount engine: code application,
// automatic discount surfacing, and the pure amount calculation shared
// with order creation.
package discount

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Type enumerates the supported discount value kinds.
type Type string

const (
	// TypePercentage discounts a percentage (0-100) of the eligible subtotal.
	TypePercentage Type = "PERCENTAGE"
	// TypeFixed discounts a fixed amount, capped at the eligible subtotal.
	TypeFixed Type = "FIXED"
)

// Scope determines which part of the cart a discount applies to.
type Scope string

const (
	// ScopeOrder applies to the whole cart subtotal.
	ScopeOrder Scope = "ORDER"
	// ScopeProduct applies only to lines in the discount's product set.
	ScopeProduct Scope = "PRODUCT"
)

// Method determines how a discount reaches the cart.
type Method string

const (
	// MethodAuto discounts are surfaced automatically at checkout.
	MethodAuto Method = "AUTO"
	// MethodCode discounts require the customer to enter the code.
	MethodCode Method = "CODE"
)

// Business-rule rejections surfaced directly to the customer.
var (
	ErrNotFound       = errors.New("no discount found")
	ErrAutoOnly       = errors.New("this discount is applied automatically and cannot be entered as a code")
	ErrMembersOnly    = errors.New("this discount is only available to existing members")
	ErrAlreadyApplied = errors.New("discount code already applied")
	ErrNotYetActive   = errors.New("discount is not active yet")
	ErrExpired        = errors.New("discount has expired")
	ErrUsageLimit     = errors.New("discount usage limit reached")
)

// MinOrderError indicates the cart subtotal is below the discount minimum.
type MinOrderError struct {
	Min decimal.Decimal
}

func (e *MinOrderError) Error() string {
	return fmt.Sprintf("order minimum of %s not met", e.Min.StringFixed(2))
}

// StackConflictError indicates an already-applied non-stackable code blocks
// stacking a new one on top.
type StackConflictError struct {
	Code string
}

func (e *StackConflictError) Error() string {
	return fmt.Sprintf("discount %s cannot be combined with other codes", e.Code)
}

// Discount is a promotion record. Codes are stored upper-cased and matched
// case-insensitively. UsedCount is incremented only inside the order-commit
// transaction and never decremented.
type Discount struct {
	ID          string
	Code        string
	Type        Type
	Scope       Scope
	Method      Method
	Stackable   bool
	Value       decimal.Decimal
	MinOrder    *decimal.Decimal
	MaxUses     *int
	UsedCount   int
	Active      bool
	StartsAt    *time.Time
	ExpiresAt   *time.Time
	ProductIDs  []string
	Description string
	CreatedAt   time.Time
}

// CartLine is an unresolved client cart entry. Price and stock are never
// taken from the client; they are resolved from the catalog.
type CartLine struct {
	ProductID string
	VariantID string
	Quantity  int
}

// Line is a cart line with its server-resolved unit price.
type Line struct {
	ProductID string
	VariantID string
	Quantity  int
	UnitPrice decimal.Decimal
}

// Applied is the monetary contribution of a single discount against a cart
// snapshot. Amount is rounded to 2 decimal places, non-negative, and never
// exceeds the subtotal it was computed against.
type Applied struct {
	DiscountID  string
	Code        string
	Type        Type
	Scope       Scope
	Method      Method
	Stackable   bool
	Value       decimal.Decimal
	Amount      decimal.Decimal
	Description string
}

// Repository provides lookup and mutation of discount records.
// IncrementUsedCount is only ever called from inside the order-commit
// transaction primitive.
type Repository interface {
	FindByCode(ctx context.Context, code string) (*Discount, error)
	FindByCodes(ctx context.Context, codes []string) ([]Discount, error)
	FindByIDs(ctx context.Context, ids []string) ([]Discount, error)
	// FindActiveAuto returns AUTO-method discounts that are active and
	// inside their validity window at the given instant.
	FindActiveAuto(ctx context.Context, now time.Time) ([]Discount, error)
	Create(ctx context.Context, d *Discount) error
}
