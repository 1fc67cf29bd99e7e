// Command seed-db loads catalog, customer, and discount fixtures into the
// database from a JSON file. Existing rows are upserted so the tool is safe
// to re-run.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/lv7dev/shop-v2-sub000/internal/storage/postgres"
)

type fixtureFile struct {
	Products  []productJSON  `json:"products"`
	Customers []customerJSON `json:"customers"`
	Discounts []discountJSON `json:"discounts"`
}

type productJSON struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Category string          `json:"category"`
	Price    decimal.Decimal `json:"price"`
	Stock    int             `json:"stock"`
	Active   *bool           `json:"active,omitempty"`
	Variants []variantJSON   `json:"variants,omitempty"`
}

type variantJSON struct {
	ID    string           `json:"id"`
	Name  string           `json:"name"`
	Price *decimal.Decimal `json:"price,omitempty"`
	Stock int              `json:"stock"`
}

type customerJSON struct {
	ID        string     `json:"id"`
	Email     string     `json:"email"`
	Name      string     `json:"name"`
	CreatedAt *time.Time `json:"createdAt,omitempty"`
}

type discountJSON struct {
	ID          string           `json:"id"`
	Code        string           `json:"code"`
	Type        string           `json:"type"`
	Scope       string           `json:"scope,omitempty"`
	Method      string           `json:"method,omitempty"`
	Stackable   bool             `json:"stackable"`
	Value       decimal.Decimal  `json:"value"`
	MinOrder    *decimal.Decimal `json:"minOrder,omitempty"`
	MaxUses     *int             `json:"maxUses,omitempty"`
	StartsAt    *time.Time       `json:"startsAt,omitempty"`
	ExpiresAt   *time.Time       `json:"expiresAt,omitempty"`
	ProductIDs  []string         `json:"productIds,omitempty"`
	Description string           `json:"description,omitempty"`
}

func main() {
	var (
		databaseURL  string
		fixturesFile string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&fixturesFile, "fixtures-file", "db/seed/fixtures.json", "path to fixtures JSON file")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, fixturesFile); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, fixturesFile string) error {
	slog.Info("reading fixtures file", slog.String("path", fixturesFile))

	data, err := os.ReadFile(fixturesFile)
	if err != nil {
		return errors.Wrap(err, "read fixtures file")
	}
	var fixtures fixtureFile
	if err := json.Unmarshal(data, &fixtures); err != nil {
		return errors.Wrap(err, "parse fixtures JSON")
	}

	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := seedProducts(ctx, pool, fixtures.Products); err != nil {
		return errors.Wrap(err, "seed products")
	}
	if err := seedCustomers(ctx, pool, fixtures.Customers); err != nil {
		return errors.Wrap(err, "seed customers")
	}
	if err := seedDiscounts(ctx, pool, fixtures.Discounts); err != nil {
		return errors.Wrap(err, "seed discounts")
	}

	return nil
}

const (
	upsertProductSQL = `INSERT INTO products (id, name, category, price, stock, active)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name, category = EXCLUDED.category,
			price = EXCLUDED.price, stock = EXCLUDED.stock,
			active = EXCLUDED.active`

	upsertVariantSQL = `INSERT INTO product_variants (id, product_id, name, price, stock)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name, price = EXCLUDED.price, stock = EXCLUDED.stock`

	upsertCustomerSQL = `INSERT INTO customers (id, email, name, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
		ON CONFLICT (id) DO UPDATE SET email = EXCLUDED.email, name = EXCLUDED.name`

	upsertDiscountSQL = `INSERT INTO discounts (id, code, type, scope, method,
		stackable, value, min_order, max_uses, active, starts_at, expires_at, description)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, TRUE, $10, $11, $12)
		ON CONFLICT (code) DO UPDATE SET
			type = EXCLUDED.type, scope = EXCLUDED.scope, method = EXCLUDED.method,
			stackable = EXCLUDED.stackable, value = EXCLUDED.value,
			min_order = EXCLUDED.min_order, max_uses = EXCLUDED.max_uses,
			starts_at = EXCLUDED.starts_at, expires_at = EXCLUDED.expires_at,
			description = EXCLUDED.description`

	linkDiscountProductSQL = `INSERT INTO discount_products (discount_id, product_id)
		VALUES ((SELECT id FROM discounts WHERE code = $1), $2)
		ON CONFLICT DO NOTHING`
)

func seedProducts(ctx context.Context, pool *pgxpool.Pool, products []productJSON) error {
	slog.Info("upserting products", slog.Int("count", len(products)))

	for _, p := range products {
		active := true
		if p.Active != nil {
			active = *p.Active
		}
		if _, err := pool.Exec(ctx, upsertProductSQL,
			p.ID, p.Name, p.Category, p.Price, p.Stock, active); err != nil {
			return errors.Wrapf(err, "upsert product %s", p.ID)
		}
		for _, v := range p.Variants {
			if _, err := pool.Exec(ctx, upsertVariantSQL,
				v.ID, p.ID, v.Name, v.Price, v.Stock); err != nil {
				return errors.Wrapf(err, "upsert variant %s", v.ID)
			}
		}

		slog.Info("upserted product",
			slog.String("id", p.ID),
			slog.String("name", p.Name),
			slog.Int("variants", len(p.Variants)),
		)
	}

	return nil
}

func seedCustomers(ctx context.Context, pool *pgxpool.Pool, customers []customerJSON) error {
	slog.Info("upserting customers", slog.Int("count", len(customers)))

	for _, c := range customers {
		if _, err := pool.Exec(ctx, upsertCustomerSQL,
			c.ID, c.Email, c.Name, c.CreatedAt); err != nil {
			return errors.Wrapf(err, "upsert customer %s", c.ID)
		}
	}

	return nil
}

func seedDiscounts(ctx context.Context, pool *pgxpool.Pool, discounts []discountJSON) error {
	slog.Info("upserting discounts", slog.Int("count", len(discounts)))

	for _, d := range discounts {
		scope := d.Scope
		if scope == "" {
			scope = "ORDER"
		}
		method := d.Method
		if method == "" {
			method = "CODE"
		}
		code := strings.ToUpper(strings.TrimSpace(d.Code))

		if _, err := pool.Exec(ctx, upsertDiscountSQL,
			d.ID, code, d.Type, scope, method, d.Stackable, d.Value,
			d.MinOrder, d.MaxUses, d.StartsAt, d.ExpiresAt, d.Description,
		); err != nil {
			return errors.Wrapf(err, "upsert discount %s", code)
		}
		for _, productID := range d.ProductIDs {
			if _, err := pool.Exec(ctx, linkDiscountProductSQL, code, productID); err != nil {
				return errors.Wrapf(err, "link discount %s to product %s", code, productID)
			}
		}

		slog.Info("upserted discount", slog.String("code", code), slog.String("description", d.Description))
	}

	return nil
}
