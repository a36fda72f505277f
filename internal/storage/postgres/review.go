package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shopprime/storefront/internal/domain/product"
	"github.com/shopprime/storefront/internal/domain/review"
)

const (
	addReviewSQL = `INSERT INTO product_reviews (product_id, user_id, rating, comment)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (product_id, user_id) DO NOTHING
		RETURNING created_at`

	listReviewsSQL = `SELECT product_id, user_id, rating, comment, created_at FROM product_reviews
		WHERE product_id = $1 ORDER BY created_at DESC, user_id`

	foreignKeyViolation = "23503"
)

var _ review.Repository = (*ReviewRepository)(nil)

// ReviewRepository implements review.Repository backed by PostgreSQL.
type ReviewRepository struct {
	pool *pgxpool.Pool
}

// NewReviewRepository returns a ReviewRepository that uses the given pool.
func NewReviewRepository(pool *pgxpool.Pool) *ReviewRepository {
	return &ReviewRepository{pool: pool}
}

// Add inserts the review. The (product, user) primary key turns a second
// review into review.ErrAlreadyReviewed.
func (r *ReviewRepository) Add(ctx context.Context, rv *review.Review) error {
	err := conn(ctx, r.pool).QueryRow(ctx, addReviewSQL,
		rv.ProductID, rv.UserID, rv.Rating, rv.Comment,
	).Scan(&rv.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return review.ErrAlreadyReviewed
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == foreignKeyViolation {
			return product.ErrNotFound
		}
		return errors.Wrapf(err, "add review of %q", rv.ProductID)
	}
	return nil
}

// ListByProduct returns the product's reviews, newest first.
func (r *ReviewRepository) ListByProduct(ctx context.Context, productID string) ([]review.Review, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, listReviewsSQL, productID)
	if err != nil {
		return nil, errors.Wrapf(err, "list reviews of %q", productID)
	}
	reviews, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (review.Review, error) {
		var rv review.Review
		err := row.Scan(&rv.ProductID, &rv.UserID, &rv.Rating, &rv.Comment, &rv.CreatedAt)
		return rv, err
	})
	if err != nil {
		return nil, errors.Wrapf(err, "list reviews of %q", productID)
	}
	return reviews, nil
}
