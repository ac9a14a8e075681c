package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/voltstore/storefront/internal/domain/product"
)

const (
	productColumns = `id, name, sku, price, stock, image_path, is_active, created_at`

	listActiveProductsSQL = `SELECT ` + productColumns + `
		FROM products WHERE is_active ORDER BY name`

	getProductByIDSQL = `SELECT ` + productColumns + `
		FROM products WHERE id = $1`

	getProductsByIDsSQL = `SELECT ` + productColumns + `
		FROM products WHERE id = ANY($1)`

	upsertProductSQL = `INSERT INTO products (name, sku, price, stock, image_path, is_active)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (sku) DO UPDATE SET
			name = EXCLUDED.name,
			price = EXCLUDED.price,
			stock = EXCLUDED.stock,
			image_path = EXCLUDED.image_path,
			is_active = EXCLUDED.is_active
		RETURNING id`
)

var _ product.Repository = (*ProductRepository)(nil)

// ProductRepository implements product.Repository backed by PostgreSQL.
type ProductRepository struct {
	pool *pgxpool.Pool
}

// NewProductRepository returns a ProductRepository that uses the given pool.
func NewProductRepository(pool *pgxpool.Pool) *ProductRepository {
	return &ProductRepository{pool: pool}
}

// ListActive returns the purchasable catalog ordered by name.
func (r *ProductRepository) ListActive(ctx context.Context) ([]product.Product, error) {
	rows, err := r.pool.Query(ctx, listActiveProductsSQL)
	if err != nil {
		return nil, errors.Wrap(err, "listing products")
	}
	return pgx.CollectRows(rows, scanProduct)
}

// GetByID returns a single product by its identifier.
func (r *ProductRepository) GetByID(ctx context.Context, id int64) (*product.Product, error) {
	rows, err := r.pool.Query(ctx, getProductByIDSQL, id)
	if err != nil {
		return nil, errors.Wrapf(err, "getting product %d", id)
	}

	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, product.ErrNotFound
		}
		return nil, errors.Wrapf(err, "getting product %d", id)
	}
	return &p, nil
}

// GetByIDs returns products matching any of the given IDs. Missing IDs are
// simply absent from the result.
func (r *ProductRepository) GetByIDs(ctx context.Context, ids []int64) ([]product.Product, error) {
	rows, err := r.pool.Query(ctx, getProductsByIDsSQL, ids)
	if err != nil {
		return nil, errors.Wrap(err, "getting products by ids")
	}
	return pgx.CollectRows(rows, scanProduct)
}

// Upsert creates or refreshes a catalog entry keyed by SKU, used by the
// seed and import tools.
func (r *ProductRepository) Upsert(ctx context.Context, p *product.Product) error {
	err := r.pool.QueryRow(ctx, upsertProductSQL,
		p.Name, p.SKU, p.Price, p.Stock, p.ImagePath, p.IsActive,
	).Scan(&p.ID)
	if err != nil {
		return errors.Wrapf(err, "upserting product %q", p.SKU)
	}
	return nil
}

func scanProduct(row pgx.CollectableRow) (product.Product, error) {
	var p product.Product
	err := row.Scan(
		&p.ID, &p.Name, &p.SKU, &p.Price, &p.Stock,
		&p.ImagePath, &p.IsActive, &p.CreatedAt,
	)
	return p, err
}
