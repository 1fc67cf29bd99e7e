package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lv7dev/shop-v2-sub000/internal/domain/discount"
)

const (
	discountColumns = `id, code, type, scope, method, stackable, value,
		min_order, max_uses, used_count, active, starts_at, expires_at,
		description, created_at`

	getDiscountByCodeSQL = `SELECT ` + discountColumns + `
		FROM discounts WHERE UPPER(code) = UPPER($1)`

	getDiscountsByCodesSQL = `SELECT ` + discountColumns + `
		FROM discounts WHERE code = ANY($1)`

	getDiscountsByIDsSQL = `SELECT ` + discountColumns + `
		FROM discounts WHERE id = ANY($1)`

	getActiveAutoDiscountsSQL = `SELECT ` + discountColumns + `
		FROM discounts
		WHERE method = 'AUTO' AND active = TRUE
			AND (starts_at IS NULL OR starts_at <= $1)
			AND (expires_at IS NULL OR expires_at > $1)`

	createDiscountSQL = `INSERT INTO discounts (id, code, type, scope, method,
		stackable, value, min_order, max_uses, active, starts_at, expires_at,
		description, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

	linkDiscountProductSQL = `INSERT INTO discount_products (discount_id, product_id)
		VALUES ($1, $2) ON CONFLICT DO NOTHING`

	getDiscountProductsSQL = `SELECT discount_id, product_id
		FROM discount_products WHERE discount_id = ANY($1)`
)

var _ discount.Repository = (*DiscountRepository)(nil)

// DiscountRepository implements discount.Repository backed by PostgreSQL.
type DiscountRepository struct {
	pool *pgxpool.Pool
}

// NewDiscountRepository returns a DiscountRepository that uses the given pool.
func NewDiscountRepository(pool *pgxpool.Pool) *DiscountRepository {
	return &DiscountRepository{pool: pool}
}

// FindByCode looks up a discount by its code (case-insensitive).
// Returns discount.ErrNotFound when no such code exists.
func (r *DiscountRepository) FindByCode(ctx context.Context, code string) (*discount.Discount, error) {
	rows, err := r.pool.Query(ctx, getDiscountByCodeSQL, code)
	if err != nil {
		return nil, fmt.Errorf("finding discount by code %q: %w", code, err)
	}

	d, err := pgx.CollectExactlyOneRow(rows, scanDiscount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, discount.ErrNotFound
		}
		return nil, fmt.Errorf("finding discount by code %q: %w", code, err)
	}

	ds := []discount.Discount{d}
	if err := r.attachProductIDs(ctx, ds); err != nil {
		return nil, err
	}
	return &ds[0], nil
}

// FindByCodes resolves a batch of codes. Codes are stored upper-cased, so
// the caller passes normalized codes. Unknown codes are absent from the
// result.
func (r *DiscountRepository) FindByCodes(ctx context.Context, codes []string) ([]discount.Discount, error) {
	if len(codes) == 0 {
		return nil, nil
	}
	return r.findMany(ctx, getDiscountsByCodesSQL, codes)
}

// FindByIDs resolves a batch of discount ids.
func (r *DiscountRepository) FindByIDs(ctx context.Context, ids []string) ([]discount.Discount, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return r.findMany(ctx, getDiscountsByIDsSQL, ids)
}

// FindActiveAuto returns AUTO-method discounts that are active and inside
// their validity window at the given instant.
func (r *DiscountRepository) FindActiveAuto(ctx context.Context, now time.Time) ([]discount.Discount, error) {
	rows, err := r.pool.Query(ctx, getActiveAutoDiscountsSQL, now)
	if err != nil {
		return nil, fmt.Errorf("finding active auto discounts: %w", err)
	}

	ds, err := pgx.CollectRows(rows, scanDiscount)
	if err != nil {
		return nil, fmt.Errorf("finding active auto discounts: %w", err)
	}
	if err := r.attachProductIDs(ctx, ds); err != nil {
		return nil, err
	}
	return ds, nil
}

// Create inserts a discount and its product links.
func (r *DiscountRepository) Create(ctx context.Context, d *discount.Discount) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	_, err = tx.Exec(ctx, createDiscountSQL,
		d.ID, d.Code, d.Type, d.Scope, d.Method, d.Stackable, d.Value,
		d.MinOrder, d.MaxUses, d.Active, d.StartsAt, d.ExpiresAt,
		d.Description, d.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("creating discount %q: %w", d.Code, err)
	}

	for _, productID := range d.ProductIDs {
		if _, err := tx.Exec(ctx, linkDiscountProductSQL, d.ID, productID); err != nil {
			return fmt.Errorf("linking discount %q to product %q: %w", d.Code, productID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing discount %q: %w", d.Code, err)
	}
	return nil
}

func (r *DiscountRepository) findMany(ctx context.Context, sql string, args []string) ([]discount.Discount, error) {
	rows, err := r.pool.Query(ctx, sql, args)
	if err != nil {
		return nil, fmt.Errorf("finding discounts: %w", err)
	}

	ds, err := pgx.CollectRows(rows, scanDiscount)
	if err != nil {
		return nil, fmt.Errorf("finding discounts: %w", err)
	}
	if err := r.attachProductIDs(ctx, ds); err != nil {
		return nil, err
	}
	return ds, nil
}

// attachProductIDs loads the product links of PRODUCT-scoped discounts into
// the slice in place.
func (r *DiscountRepository) attachProductIDs(ctx context.Context, ds []discount.Discount) error {
	ids := make([]string, 0, len(ds))
	for i := range ds {
		if ds[i].Scope == discount.ScopeProduct {
			ids = append(ids, ds[i].ID)
		}
	}
	if len(ids) == 0 {
		return nil
	}

	rows, err := r.pool.Query(ctx, getDiscountProductsSQL, ids)
	if err != nil {
		return fmt.Errorf("loading discount products: %w", err)
	}
	defer rows.Close()

	links := make(map[string][]string)
	for rows.Next() {
		var discountID, productID string
		if err := rows.Scan(&discountID, &productID); err != nil {
			return fmt.Errorf("loading discount products: %w", err)
		}
		links[discountID] = append(links[discountID], productID)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("loading discount products: %w", err)
	}

	for i := range ds {
		ds[i].ProductIDs = links[ds[i].ID]
	}
	return nil
}

func scanDiscount(row pgx.CollectableRow) (discount.Discount, error) {
	var d discount.Discount
	err := row.Scan(
		&d.ID, &d.Code, &d.Type, &d.Scope, &d.Method, &d.Stackable, &d.Value,
		&d.MinOrder, &d.MaxUses, &d.UsedCount, &d.Active, &d.StartsAt,
		&d.ExpiresAt, &d.Description, &d.CreatedAt,
	)
	return d, err
}
