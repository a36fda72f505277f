package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shopprime/storefront/internal/domain/product"
)

const (
	productColumns = `id, name, description, category, brand, price, discount_price, stock, created_at, updated_at`

	listProductsSQL = `SELECT ` + productColumns + ` FROM products
		WHERE ($1::text = '' OR strpos(lower(name), lower($1::text)) > 0)
			AND ($2::text = '' OR category = $2::text)
			AND ($3::numeric IS NULL OR price >= $3::numeric)
			AND ($4::numeric IS NULL OR price <= $4::numeric)
		ORDER BY created_at DESC, id`

	listCategoriesSQL = `SELECT DISTINCT category FROM products WHERE category <> '' ORDER BY category`

	getProductByIDSQL = `SELECT ` + productColumns + ` FROM products WHERE id = $1`

	decrementStockSQL = `UPDATE products SET stock = stock - $2, updated_at = now()
		WHERE id = $1 AND stock >= $2`

	restoreStockSQL = `UPDATE products SET stock = stock + $2, updated_at = now() WHERE id = $1`

	setStockSQL = `UPDATE products SET stock = $2, updated_at = now() WHERE id = $1`

	updateProductSQL = `UPDATE products SET
			name = $2, description = $3, category = $4, brand = $5,
			price = $6, discount_price = $7, stock = $8, updated_at = now()
		WHERE id = $1
		RETURNING created_at, updated_at`

	deleteProductSQL = `DELETE FROM products WHERE id = $1`

	productExistsSQL = `SELECT EXISTS (SELECT 1 FROM products WHERE id = $1)`

	upsertProductSQL = `INSERT INTO products (id, name, description, category, brand, price, discount_price, stock)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			category = EXCLUDED.category,
			brand = EXCLUDED.brand,
			price = EXCLUDED.price,
			discount_price = EXCLUDED.discount_price,
			stock = EXCLUDED.stock,
			updated_at = now()
		RETURNING created_at, updated_at`
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

// List returns the products matching f, newest first. The name search is a
// plain substring match, so LIKE wildcards in the query have no effect.
func (r *ProductRepository) List(ctx context.Context, f product.Filter) ([]product.Product, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, listProductsSQL, f.Query, f.Category, f.MinPrice, f.MaxPrice)
	if err != nil {
		return nil, errors.Wrap(err, "list products")
	}
	products, err := pgx.CollectRows(rows, scanProduct)
	if err != nil {
		return nil, errors.Wrap(err, "list products")
	}
	return products, nil
}

// Categories returns the distinct non-empty categories, sorted.
func (r *ProductRepository) Categories(ctx context.Context) ([]string, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, listCategoriesSQL)
	if err != nil {
		return nil, errors.Wrap(err, "list categories")
	}
	categories, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, errors.Wrap(err, "list categories")
	}
	return categories, nil
}

// GetByID returns a single product by its identifier.
func (r *ProductRepository) GetByID(ctx context.Context, id string) (*product.Product, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, getProductByIDSQL, id)
	if err != nil {
		return nil, errors.Wrapf(err, "get product %q", id)
	}

	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, product.ErrNotFound
		}
		return nil, errors.Wrapf(err, "get product %q", id)
	}
	return &p, nil
}

// DecrementStock subtracts qty in a single conditional UPDATE, so two
// concurrent decrements can never take the stock below zero.
func (r *ProductRepository) DecrementStock(ctx context.Context, id string, qty int) error {
	q := conn(ctx, r.pool)
	tag, err := q.Exec(ctx, decrementStockSQL, id, qty)
	if err != nil {
		return errors.Wrapf(err, "decrement stock of %q", id)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var exists bool
	if err := q.QueryRow(ctx, productExistsSQL, id).Scan(&exists); err != nil {
		return errors.Wrapf(err, "check product %q", id)
	}
	if !exists {
		return product.ErrNotFound
	}
	return product.ErrInsufficientStock
}

// RestoreStock adds qty back to the product stock.
func (r *ProductRepository) RestoreStock(ctx context.Context, id string, qty int) error {
	tag, err := conn(ctx, r.pool).Exec(ctx, restoreStockSQL, id, qty)
	if err != nil {
		return errors.Wrapf(err, "restore stock of %q", id)
	}
	if tag.RowsAffected() == 0 {
		return product.ErrNotFound
	}
	return nil
}

// SetStock overwrites the stock level.
func (r *ProductRepository) SetStock(ctx context.Context, id string, stock int) error {
	tag, err := conn(ctx, r.pool).Exec(ctx, setStockSQL, id, stock)
	if err != nil {
		return errors.Wrapf(err, "set stock of %q", id)
	}
	if tag.RowsAffected() == 0 {
		return product.ErrNotFound
	}
	return nil
}

// Create inserts the product, replacing any product with the same id. An
// empty id is filled with a new UUID.
func (r *ProductRepository) Create(ctx context.Context, p *product.Product) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	err := conn(ctx, r.pool).QueryRow(ctx, upsertProductSQL,
		p.ID, p.Name, p.Description, p.Category, p.Brand, p.Price, p.DiscountPrice, p.Stock,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return errors.Wrapf(err, "upsert product %q", p.ID)
	}
	return nil
}

// Update replaces the editable fields of an existing product.
func (r *ProductRepository) Update(ctx context.Context, p *product.Product) error {
	err := conn(ctx, r.pool).QueryRow(ctx, updateProductSQL,
		p.ID, p.Name, p.Description, p.Category, p.Brand, p.Price, p.DiscountPrice, p.Stock,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return product.ErrNotFound
		}
		return errors.Wrapf(err, "update product %q", p.ID)
	}
	return nil
}

// Delete removes the product. Cart, wishlist and review rows cascade; orders
// keep their line snapshots.
func (r *ProductRepository) Delete(ctx context.Context, id string) error {
	tag, err := conn(ctx, r.pool).Exec(ctx, deleteProductSQL, id)
	if err != nil {
		return errors.Wrapf(err, "delete product %q", id)
	}
	if tag.RowsAffected() == 0 {
		return product.ErrNotFound
	}
	return nil
}

func scanProduct(row pgx.CollectableRow) (product.Product, error) {
	var p product.Product
	err := row.Scan(
		&p.ID, &p.Name, &p.Description, &p.Category, &p.Brand,
		&p.Price, &p.DiscountPrice, &p.Stock, &p.CreatedAt, &p.UpdatedAt,
	)
	return p, err
}
