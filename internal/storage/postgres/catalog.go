package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lv7dev/shop-v2-sub000/internal/domain/catalog"
)

const (
	listProductsSQL = `SELECT id, name, category, price, stock, active
		FROM products WHERE active = TRUE ORDER BY name`

	getProductsByIDsSQL = `SELECT id, name, category, price, stock, active
		FROM products WHERE id = ANY($1)`

	getVariantsByIDsSQL = `SELECT id, product_id, name, price, stock
		FROM product_variants WHERE id = ANY($1)`

	getVariantsByProductIDsSQL = `SELECT id, product_id, name, price, stock
		FROM product_variants WHERE product_id = ANY($1) ORDER BY name`
)

var _ catalog.Reader = (*CatalogRepository)(nil)

// CatalogRepository implements catalog.Reader backed by PostgreSQL.
type CatalogRepository struct {
	pool *pgxpool.Pool
}

// NewCatalogRepository returns a CatalogRepository that uses the given pool.
func NewCatalogRepository(pool *pgxpool.Pool) *CatalogRepository {
	return &CatalogRepository{pool: pool}
}

// List returns all active products ordered by name.
func (r *CatalogRepository) List(ctx context.Context) ([]catalog.Product, error) {
	rows, err := r.pool.Query(ctx, listProductsSQL)
	if err != nil {
		return nil, fmt.Errorf("listing products: %w", err)
	}

	products, err := pgx.CollectRows(rows, scanProduct)
	if err != nil {
		return nil, fmt.Errorf("listing products: %w", err)
	}
	return products, nil
}

// ProductsByIDs resolves products by id in a single batch query. Unknown ids
// are simply absent from the result.
func (r *CatalogRepository) ProductsByIDs(ctx context.Context, ids []string) ([]catalog.Product, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	rows, err := r.pool.Query(ctx, getProductsByIDsSQL, ids)
	if err != nil {
		return nil, fmt.Errorf("getting products by ids: %w", err)
	}

	products, err := pgx.CollectRows(rows, scanProduct)
	if err != nil {
		return nil, fmt.Errorf("getting products by ids: %w", err)
	}
	return products, nil
}

// VariantsByIDs resolves variants by id in a single batch query.
func (r *CatalogRepository) VariantsByIDs(ctx context.Context, ids []string) ([]catalog.Variant, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	rows, err := r.pool.Query(ctx, getVariantsByIDsSQL, ids)
	if err != nil {
		return nil, fmt.Errorf("getting variants by ids: %w", err)
	}

	variants, err := pgx.CollectRows(rows, scanVariant)
	if err != nil {
		return nil, fmt.Errorf("getting variants by ids: %w", err)
	}
	return variants, nil
}

// VariantsByProductIDs returns every variant of the given products.
func (r *CatalogRepository) VariantsByProductIDs(ctx context.Context, productIDs []string) ([]catalog.Variant, error) {
	if len(productIDs) == 0 {
		return nil, nil
	}

	rows, err := r.pool.Query(ctx, getVariantsByProductIDsSQL, productIDs)
	if err != nil {
		return nil, fmt.Errorf("getting variants by product ids: %w", err)
	}

	variants, err := pgx.CollectRows(rows, scanVariant)
	if err != nil {
		return nil, fmt.Errorf("getting variants by product ids: %w", err)
	}
	return variants, nil
}

func scanProduct(row pgx.CollectableRow) (catalog.Product, error) {
	var p catalog.Product
	err := row.Scan(&p.ID, &p.Name, &p.Category, &p.Price, &p.Stock, &p.Active)
	return p, err
}

func scanVariant(row pgx.CollectableRow) (catalog.Variant, error) {
	var v catalog.Variant
	err := row.Scan(&v.ID, &v.ProductID, &v.Name, &v.Price, &v.Stock)
	return v, err
}
