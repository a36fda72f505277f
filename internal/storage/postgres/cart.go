package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shopprime/storefront/internal/domain/cart"
)

const (
	getCartSQL = `SELECT product_id, quantity, added_at FROM cart_items
		WHERE user_id = $1 ORDER BY added_at, product_id`

	addCartItemSQL = `INSERT INTO cart_items (user_id, product_id, quantity) VALUES ($1, $2, $3)
		ON CONFLICT (user_id, product_id) DO UPDATE SET quantity = cart_items.quantity + EXCLUDED.quantity`

	setCartQuantitySQL = `UPDATE cart_items SET quantity = $3 WHERE user_id = $1 AND product_id = $2`

	removeCartItemSQL = `DELETE FROM cart_items WHERE user_id = $1 AND product_id = $2`

	clearCartSQL = `DELETE FROM cart_items WHERE user_id = $1`
)

var _ cart.Repository = (*CartRepository)(nil)

// CartRepository implements cart.Repository backed by PostgreSQL.
type CartRepository struct {
	pool *pgxpool.Pool
}

// NewCartRepository returns a CartRepository that uses the given pool.
func NewCartRepository(pool *pgxpool.Pool) *CartRepository {
	return &CartRepository{pool: pool}
}

// Get returns the user's cart items in insertion order.
func (r *CartRepository) Get(ctx context.Context, userID string) ([]cart.Item, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, getCartSQL, userID)
	if err != nil {
		return nil, errors.Wrapf(err, "get cart of %q", userID)
	}
	items, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (cart.Item, error) {
		var it cart.Item
		err := row.Scan(&it.ProductID, &it.Quantity, &it.AddedAt)
		return it, err
	})
	if err != nil {
		return nil, errors.Wrapf(err, "get cart of %q", userID)
	}
	return items, nil
}

func (r *CartRepository) AddItem(ctx context.Context, userID, productID string, qty int) error {
	if _, err := conn(ctx, r.pool).Exec(ctx, addCartItemSQL, userID, productID, qty); err != nil {
		return errors.Wrapf(err, "add %q to cart of %q", productID, userID)
	}
	return nil
}

func (r *CartRepository) SetQuantity(ctx context.Context, userID, productID string, qty int) error {
	tag, err := conn(ctx, r.pool).Exec(ctx, setCartQuantitySQL, userID, productID, qty)
	if err != nil {
		return errors.Wrapf(err, "set quantity of %q in cart of %q", productID, userID)
	}
	if tag.RowsAffected() == 0 {
		return cart.ErrItemNotFound
	}
	return nil
}

func (r *CartRepository) RemoveItem(ctx context.Context, userID, productID string) error {
	if _, err := conn(ctx, r.pool).Exec(ctx, removeCartItemSQL, userID, productID); err != nil {
		return errors.Wrapf(err, "remove %q from cart of %q", productID, userID)
	}
	return nil
}

func (r *CartRepository) Clear(ctx context.Context, userID string) error {
	if _, err := conn(ctx, r.pool).Exec(ctx, clearCartSQL, userID); err != nil {
		return errors.Wrapf(err, "clear cart of %q", userID)
	}
	return nil
}
