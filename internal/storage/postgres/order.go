package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lv7dev/shop-v2-sub000/internal/domain/order"
)

const (
	orderColumns = `id, customer_id, address_id, note, subtotal, shipping_cost,
		tax, discount_amount, total, discount_id, discount_code, payment_method,
		payment_status, status, currency, payment_expiry, transaction_id,
		created_at, updated_at`

	getOrderByIDSQL = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	listOrdersByCustomerSQL = `SELECT ` + orderColumns + `
		FROM orders WHERE customer_id = $1 ORDER BY created_at DESC`

	listOrdersSQL = `SELECT ` + orderColumns + `
		FROM orders ORDER BY created_at DESC LIMIT $1 OFFSET $2`

	getOrderItemsSQL = `SELECT id, product_id, variant_id, name, quantity, price
		FROM order_items WHERE order_id = ANY($1) ORDER BY id`

	insertOrderSQL = `INSERT INTO orders (id, customer_id, address_id, note,
		subtotal, shipping_cost, tax, discount_amount, total, discount_id,
		discount_code, payment_method, payment_status, status, currency,
		payment_expiry, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
			$15, $16, $17, $17)`

	insertOrderItemSQL = `INSERT INTO order_items (id, order_id, product_id,
		variant_id, name, quantity, price)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	decrementProductStockSQL = `UPDATE products SET stock = stock - $2
		WHERE id = $1 AND stock >= $2`

	decrementVariantStockSQL = `UPDATE product_variants SET stock = stock - $2
		WHERE id = $1 AND stock >= $2`

	productStockInfoSQL = `SELECT name, stock FROM products WHERE id = $1`

	variantStockInfoSQL = `SELECT p.name || ' ' || v.name, v.stock
		FROM product_variants v JOIN products p ON p.id = v.product_id
		WHERE v.id = $1`

	incrementUsedCountSQL = `UPDATE discounts SET used_count = used_count + 1
		WHERE id = $1`

	decrementUsedCountSQL = `UPDATE discounts
		SET used_count = GREATEST(used_count - 1, 0)
		WHERE UPPER(code) = UPPER($1)`

	cancelOrderSQL = `UPDATE orders
		SET status = 'CANCELLED',
			payment_status = COALESCE($2, payment_status),
			updated_at = now()
		WHERE id = $1 AND status IN ('PENDING', 'CONFIRMED')
		RETURNING discount_code`

	restockProductSQL = `UPDATE products SET stock = stock + $2 WHERE id = $1`

	restockVariantSQL = `UPDATE product_variants SET stock = stock + $2
		WHERE id = $1`

	markOrderPaidSQL = `UPDATE orders
		SET payment_status = 'PAID', status = 'CONFIRMED',
			transaction_id = $2, updated_at = now()
		WHERE id = $1 AND payment_status = 'PENDING'`

	updateOrderStatusSQL = `UPDATE orders SET status = $2, updated_at = now()
		WHERE id = $1`

	findExpiredPendingSQL = `SELECT ` + orderColumns + `
		FROM orders
		WHERE payment_status = 'PENDING'
			AND payment_expiry IS NOT NULL AND payment_expiry < $1`

	orderExistsSQL = `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL,
// including the transaction primitives that keep stock, usage counters, and
// order rows consistent.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// GetByID loads an order with its items. Returns order.ErrNotFound when no
// such order exists.
func (r *OrderRepository) GetByID(ctx context.Context, id string) (*order.Order, error) {
	rows, err := r.pool.Query(ctx, getOrderByIDSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}

	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}

	orders := []order.Order{o}
	if err := r.attachItems(ctx, orders); err != nil {
		return nil, err
	}
	return &orders[0], nil
}

// ListByCustomer returns a customer's orders, newest first, with items.
func (r *OrderRepository) ListByCustomer(ctx context.Context, customerID string) ([]order.Order, error) {
	rows, err := r.pool.Query(ctx, listOrdersByCustomerSQL, customerID)
	if err != nil {
		return nil, fmt.Errorf("listing orders for customer %q: %w", customerID, err)
	}

	orders, err := pgx.CollectRows(rows, scanOrder)
	if err != nil {
		return nil, fmt.Errorf("listing orders for customer %q: %w", customerID, err)
	}
	if err := r.attachItems(ctx, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// List returns a page of orders across all customers, newest first, with
// items.
func (r *OrderRepository) List(ctx context.Context, limit, offset int) ([]order.Order, error) {
	rows, err := r.pool.Query(ctx, listOrdersSQL, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("listing orders: %w", err)
	}

	orders, err := pgx.CollectRows(rows, scanOrder)
	if err != nil {
		return nil, fmt.Errorf("listing orders: %w", err)
	}
	if err := r.attachItems(ctx, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// CreateWithSideEffects atomically inserts the order with its items,
// decrements stock for every line, and increments used_count for each
// applied discount. A line that would drive stock negative fails the whole
// transaction with *order.InsufficientStockError.
func (r *OrderRepository) CreateWithSideEffects(ctx context.Context, o *order.Order, discountIDs []string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	for _, item := range o.Items {
		if err := decrementStock(ctx, tx, item); err != nil {
			return err
		}
	}

	for _, id := range discountIDs {
		if _, err := tx.Exec(ctx, incrementUsedCountSQL, id); err != nil {
			return fmt.Errorf("incrementing usage for discount %q: %w", id, err)
		}
	}

	_, err = tx.Exec(ctx, insertOrderSQL,
		o.ID, o.CustomerID, nullable(o.AddressID), o.Note,
		o.Subtotal, o.ShippingCost, o.Tax, o.DiscountAmount, o.Total,
		nullable(o.DiscountID), o.DiscountCode, o.PaymentMethod,
		o.PaymentStatus, o.Status, o.Currency, o.PaymentExpiry, o.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("creating order %q: %w", o.ID, err)
	}

	for _, item := range o.Items {
		_, err := tx.Exec(ctx, insertOrderItemSQL,
			item.ID, o.ID, item.ProductID, nullable(item.VariantID),
			item.Name, item.Quantity, item.Price,
		)
		if err != nil {
			return fmt.Errorf("creating order item %q: %w", item.ID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing order %q: %w", o.ID, err)
	}
	return nil
}

// CancelAndRestock transitions the order to CANCELLED and restores stock for
// every item in one transaction. The status guard makes concurrent and
// repeated cancellations safe: a second attempt sees no cancellable row.
func (r *OrderRepository) CancelAndRestock(ctx context.Context, orderID string, payment *order.PaymentStatus, refundUsage bool) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var discountCode string
	err = tx.QueryRow(ctx, cancelOrderSQL, orderID, payment).Scan(&discountCode)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			var exists bool
			if qerr := r.pool.QueryRow(ctx, orderExistsSQL, orderID).Scan(&exists); qerr != nil {
				return fmt.Errorf("checking order %q: %w", orderID, qerr)
			}
			if !exists {
				return order.ErrNotFound
			}
			return order.ErrNotCancellable
		}
		return fmt.Errorf("cancelling order %q: %w", orderID, err)
	}

	itemRows, err := tx.Query(ctx, getOrderItemsSQL, []string{orderID})
	if err != nil {
		return fmt.Errorf("loading items of order %q: %w", orderID, err)
	}
	items, err := pgx.CollectRows(itemRows, scanOrderItem)
	if err != nil {
		return fmt.Errorf("loading items of order %q: %w", orderID, err)
	}

	for _, item := range items {
		sql, id := restockProductSQL, item.ProductID
		if item.VariantID != "" {
			sql, id = restockVariantSQL, item.VariantID
		}
		if _, err := tx.Exec(ctx, sql, id, item.Quantity); err != nil {
			return fmt.Errorf("restocking %q: %w", id, err)
		}
	}

	if refundUsage {
		for _, code := range strings.Split(discountCode, ",") {
			if code == "" {
				continue
			}
			if _, err := tx.Exec(ctx, decrementUsedCountSQL, code); err != nil {
				return fmt.Errorf("refunding usage of discount %q: %w", code, err)
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing cancellation of order %q: %w", orderID, err)
	}
	return nil
}

// MarkPaid records a successful payment. The payment_status guard makes
// redelivered webhooks no-ops.
func (r *OrderRepository) MarkPaid(ctx context.Context, orderID, transactionID string) error {
	tag, err := r.pool.Exec(ctx, markOrderPaidSQL, orderID, transactionID)
	if err != nil {
		return fmt.Errorf("marking order %q paid: %w", orderID, err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := r.pool.QueryRow(ctx, orderExistsSQL, orderID).Scan(&exists); err != nil {
			return fmt.Errorf("checking order %q: %w", orderID, err)
		}
		if !exists {
			return order.ErrNotFound
		}
	}
	return nil
}

// UpdateStatus sets the fulfillment status of an order.
func (r *OrderRepository) UpdateStatus(ctx context.Context, orderID string, status order.Status) error {
	tag, err := r.pool.Exec(ctx, updateOrderStatusSQL, orderID, status)
	if err != nil {
		return fmt.Errorf("updating status of order %q: %w", orderID, err)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrNotFound
	}
	return nil
}

// FindExpiredPending returns orders whose payment window has lapsed while
// payment is still PENDING. Items are not loaded; the sweep only needs ids.
func (r *OrderRepository) FindExpiredPending(ctx context.Context, now time.Time) ([]order.Order, error) {
	rows, err := r.pool.Query(ctx, findExpiredPendingSQL, now)
	if err != nil {
		return nil, fmt.Errorf("finding expired orders: %w", err)
	}

	orders, err := pgx.CollectRows(rows, scanOrder)
	if err != nil {
		return nil, fmt.Errorf("finding expired orders: %w", err)
	}
	return orders, nil
}

// decrementStock applies a guarded stock decrement for one line. Zero rows
// affected means the guard failed; the current name and stock are read back
// to build the customer-facing error.
func decrementStock(ctx context.Context, tx pgx.Tx, item order.OrderItem) error {
	sql, infoSQL, id := decrementProductStockSQL, productStockInfoSQL, item.ProductID
	if item.VariantID != "" {
		sql, infoSQL, id = decrementVariantStockSQL, variantStockInfoSQL, item.VariantID
	}

	tag, err := tx.Exec(ctx, sql, id, item.Quantity)
	if err != nil {
		return fmt.Errorf("decrementing stock of %q: %w", id, err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	stockErr := &order.InsufficientStockError{Name: item.Name}
	err = tx.QueryRow(ctx, infoSQL, id).Scan(&stockErr.Name, &stockErr.Available)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("reading stock of %q: %w", id, err)
	}
	return stockErr
}

// attachItems loads order items for the given orders in one batch query.
func (r *OrderRepository) attachItems(ctx context.Context, orders []order.Order) error {
	if len(orders) == 0 {
		return nil
	}

	ids := make([]string, len(orders))
	index := make(map[string]*order.Order, len(orders))
	for i := range orders {
		ids[i] = orders[i].ID
		index[orders[i].ID] = &orders[i]
	}

	rows, err := r.pool.Query(ctx, `SELECT order_id, id, product_id, variant_id,
		name, quantity, price FROM order_items WHERE order_id = ANY($1) ORDER BY id`, ids)
	if err != nil {
		return fmt.Errorf("loading order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			orderID   string
			item      order.OrderItem
			variantID *string
		)
		if err := rows.Scan(&orderID, &item.ID, &item.ProductID, &variantID,
			&item.Name, &item.Quantity, &item.Price); err != nil {
			return fmt.Errorf("loading order items: %w", err)
		}
		if variantID != nil {
			item.VariantID = *variantID
		}
		if o, ok := index[orderID]; ok {
			o.Items = append(o.Items, item)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("loading order items: %w", err)
	}
	return nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o             order.Order
		addressID     *string
		discountID    *string
		transactionID *string
	)
	err := row.Scan(
		&o.ID, &o.CustomerID, &addressID, &o.Note, &o.Subtotal,
		&o.ShippingCost, &o.Tax, &o.DiscountAmount, &o.Total, &discountID,
		&o.DiscountCode, &o.PaymentMethod, &o.PaymentStatus, &o.Status,
		&o.Currency, &o.PaymentExpiry, &transactionID, &o.CreatedAt,
		&o.UpdatedAt,
	)
	if addressID != nil {
		o.AddressID = *addressID
	}
	if discountID != nil {
		o.DiscountID = *discountID
	}
	if transactionID != nil {
		o.TransactionID = *transactionID
	}
	return o, err
}

func scanOrderItem(row pgx.CollectableRow) (order.OrderItem, error) {
	var (
		item      order.OrderItem
		variantID *string
	)
	err := row.Scan(&item.ID, &item.ProductID, &variantID, &item.Name,
		&item.Quantity, &item.Price)
	if variantID != nil {
		item.VariantID = *variantID
	}
	return item, err
}

// nullable maps the empty string to NULL for optional foreign keys.
func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
