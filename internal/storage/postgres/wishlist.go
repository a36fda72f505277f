package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shopprime/storefront/internal/domain/product"
	"github.com/shopprime/storefront/internal/domain/wishlist"
)

const (
	getWishlistSQL = `SELECT product_id, added_at FROM wishlist_items
		WHERE user_id = $1 ORDER BY added_at, product_id`

	addWishlistItemSQL = `INSERT INTO wishlist_items (user_id, product_id) VALUES ($1, $2)
		ON CONFLICT (user_id, product_id) DO NOTHING`

	removeWishlistItemSQL = `DELETE FROM wishlist_items WHERE user_id = $1 AND product_id = $2`
)

var _ wishlist.Repository = (*WishlistRepository)(nil)

// WishlistRepository implements wishlist.Repository backed by PostgreSQL.
type WishlistRepository struct {
	pool *pgxpool.Pool
}

// NewWishlistRepository returns a WishlistRepository that uses the given pool.
func NewWishlistRepository(pool *pgxpool.Pool) *WishlistRepository {
	return &WishlistRepository{pool: pool}
}

// Get returns the user's saved items in the order they were added.
func (r *WishlistRepository) Get(ctx context.Context, userID string) ([]wishlist.Item, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, getWishlistSQL, userID)
	if err != nil {
		return nil, errors.Wrapf(err, "get wishlist of %q", userID)
	}
	items, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (wishlist.Item, error) {
		var it wishlist.Item
		err := row.Scan(&it.ProductID, &it.AddedAt)
		return it, err
	})
	if err != nil {
		return nil, errors.Wrapf(err, "get wishlist of %q", userID)
	}
	return items, nil
}

func (r *WishlistRepository) Add(ctx context.Context, userID, productID string) error {
	if _, err := conn(ctx, r.pool).Exec(ctx, addWishlistItemSQL, userID, productID); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == foreignKeyViolation {
			return product.ErrNotFound
		}
		return errors.Wrapf(err, "add %q to wishlist of %q", productID, userID)
	}
	return nil
}

func (r *WishlistRepository) Remove(ctx context.Context, userID, productID string) error {
	if _, err := conn(ctx, r.pool).Exec(ctx, removeWishlistItemSQL, userID, productID); err != nil {
		return errors.Wrapf(err, "remove %q from wishlist of %q", productID, userID)
	}
	return nil
}
