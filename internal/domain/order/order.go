// Package order implements order creation and the order lifecycle state
// machine. Order creation is the only place stock and discount usage
// counters are mutated, and it happens in a single storage transaction.
package order

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Status is the fulfillment state of an order. The forward path is
// admin-driven; CANCELLED and REFUNDED are absorbing.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusConfirmed  Status = "CONFIRMED"
	StatusProcessing Status = "PROCESSING"
	StatusShipped    Status = "SHIPPED"
	StatusDelivered  Status = "DELIVERED"
	StatusCancelled  Status = "CANCELLED"
	StatusRefunded   Status = "REFUNDED"
)

// Valid reports whether s is one of the seven known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusProcessing, StatusShipped,
		StatusDelivered, StatusCancelled, StatusRefunded:
		return true
	}
	return false
}

// PaymentStatus is the parallel payment state machine:
// PENDING -> {PAID | FAILED | EXPIRED}, PAID -> REFUNDED.
type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "PENDING"
	PaymentPaid     PaymentStatus = "PAID"
	PaymentFailed   PaymentStatus = "FAILED"
	PaymentRefunded PaymentStatus = "REFUNDED"
	PaymentExpired  PaymentStatus = "EXPIRED"
)

// PaymentMethod enumerates the supported checkout payment methods.
type PaymentMethod string

const (
	MethodCOD    PaymentMethod = "COD"
	MethodStripe PaymentMethod = "STRIPE"
	MethodMoMo   PaymentMethod = "MOMO"
)

// Valid reports whether m is a supported payment method.
func (m PaymentMethod) Valid() bool {
	switch m {
	case MethodCOD, MethodStripe, MethodMoMo:
		return true
	}
	return false
}

// Sentinel errors for order validation and lifecycle rules.
var (
	ErrEmptyItems           = errors.New("order items required")
	ErrNotFound             = errors.New("order not found")
	ErrNotCancellable       = errors.New("order can no longer be cancelled")
	ErrInvalidStatus        = errors.New("invalid order status")
	ErrInvalidPaymentMethod = errors.New("invalid payment method")
)

// InvalidQuantityError indicates a line with a non-positive quantity.
type InvalidQuantityError struct {
	ProductID string
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("quantity must be greater than 0 for product %s", e.ProductID)
}

// ProductUnavailableError indicates a missing or inactive product.
type ProductUnavailableError struct {
	ProductID string
}

func (e *ProductUnavailableError) Error() string {
	return fmt.Sprintf("product %s is unavailable", e.ProductID)
}

// VariantUnavailableError indicates a referenced variant does not exist or
// does not belong to the requested product.
type VariantUnavailableError struct {
	VariantID string
}

func (e *VariantUnavailableError) Error() string {
	return fmt.Sprintf("variant %s is unavailable", e.VariantID)
}

// InsufficientStockError indicates a line quantity exceeds current stock.
type InsufficientStockError struct {
	Name      string
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s. Available: %d", e.Name, e.Available)
}

// OrderItem snapshots a purchased line at its price at time of purchase.
// Items are immutable after creation; prices are never recomputed.
type OrderItem struct {
	ID        string
	ProductID string
	VariantID string
	Name      string
	Quantity  int
	Price     decimal.Decimal
}

// Order is a committed checkout. All monetary fields carry 2 decimal
// places. DiscountCode holds the comma-joined list of every applied code;
// DiscountID references the first applied discount.
type Order struct {
	ID             string
	CustomerID     string
	AddressID      string
	Note           string
	Items          []OrderItem
	Subtotal       decimal.Decimal
	ShippingCost   decimal.Decimal
	Tax            decimal.Decimal
	DiscountAmount decimal.Decimal
	Total          decimal.Decimal
	DiscountID     string
	DiscountCode   string
	PaymentMethod  PaymentMethod
	PaymentStatus  PaymentStatus
	Status         Status
	Currency       string
	PaymentExpiry  *time.Time
	TransactionID  string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Cancellable reports whether the order may still be cancelled by the
// customer.
func (o *Order) Cancellable() bool {
	return o.Status == StatusPending || o.Status == StatusConfirmed
}

// Repository defines persistence for orders, including the transaction
// primitives that keep stock, usage counters, and order rows consistent.
type Repository interface {
	GetByID(ctx context.Context, id string) (*Order, error)
	ListByCustomer(ctx context.Context, customerID string) ([]Order, error)

	// List returns orders across all customers, newest first, paged by
	// limit and offset. Serves the admin back office.
	List(ctx context.Context, limit, offset int) ([]Order, error)

	// CreateWithSideEffects atomically inserts the order with its items,
	// decrements stock for every line (variant stock when the line has a
	// variant, product stock otherwise), and increments used_count for
	// each applied discount. Stock decrements are guarded; a line that
	// would go negative fails the whole transaction with
	// *InsufficientStockError.
	CreateWithSideEffects(ctx context.Context, o *Order, discountIDs []string) error

	// CancelAndRestock transitions the order to CANCELLED and restores
	// stock for every item in one transaction. The transition is guarded
	// by the cancellable statuses; a stale order yields ErrNotCancellable.
	// A non-nil payment status is recorded alongside (FAILED or EXPIRED).
	// refundUsage additionally decrements used_count of applied discounts.
	CancelAndRestock(ctx context.Context, orderID string, payment *PaymentStatus, refundUsage bool) error

	// MarkPaid records a successful payment: payment_status PAID, status
	// CONFIRMED, provider transaction id. Guarded by payment_status =
	// PENDING so redelivered webhooks are no-ops.
	MarkPaid(ctx context.Context, orderID, transactionID string) error

	UpdateStatus(ctx context.Context, orderID string, status Status) error

	// FindExpiredPending returns non-COD orders whose payment window has
	// lapsed while still PENDING.
	FindExpiredPending(ctx context.Context, now time.Time) ([]Order, error)
}
