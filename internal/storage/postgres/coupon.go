package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shopprime/storefront/internal/domain/coupon"
)

const (
	couponColumns = `code, discount_type, discount_value, min_order_value, expires_at,
		active, usage_limit, used_count, created_at`

	getCouponByCodeSQL = `SELECT ` + couponColumns + ` FROM coupons WHERE code = $1`

	listCouponsSQL = `SELECT ` + couponColumns + ` FROM coupons ORDER BY created_at DESC, code`

	incrementCouponUsesSQL = `UPDATE coupons SET used_count = used_count + 1
		WHERE code = $1 AND (usage_limit IS NULL OR used_count < usage_limit)`

	decrementCouponUsesSQL = `UPDATE coupons SET used_count = used_count - 1
		WHERE code = $1 AND used_count > 0`

	couponExistsSQL = `SELECT EXISTS (SELECT 1 FROM coupons WHERE code = $1)`

	upsertCouponSQL = `INSERT INTO coupons (code, discount_type, discount_value, min_order_value,
			expires_at, active, usage_limit)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (code) DO UPDATE SET
			discount_type = EXCLUDED.discount_type,
			discount_value = EXCLUDED.discount_value,
			min_order_value = EXCLUDED.min_order_value,
			expires_at = EXCLUDED.expires_at,
			active = EXCLUDED.active,
			usage_limit = EXCLUDED.usage_limit
		RETURNING used_count, created_at`

	deleteCouponSQL = `DELETE FROM coupons WHERE code = $1`
)

var _ coupon.Repository = (*CouponRepository)(nil)

// CouponRepository implements coupon.Repository backed by PostgreSQL.
type CouponRepository struct {
	pool *pgxpool.Pool
}

// NewCouponRepository returns a CouponRepository that uses the given pool.
func NewCouponRepository(pool *pgxpool.Pool) *CouponRepository {
	return &CouponRepository{pool: pool}
}

// FindByCode looks up a coupon by its normalized code.
func (r *CouponRepository) FindByCode(ctx context.Context, code string) (*coupon.Coupon, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, getCouponByCodeSQL, code)
	if err != nil {
		return nil, errors.Wrapf(err, "find coupon %q", code)
	}

	c, err := pgx.CollectExactlyOneRow(rows, scanCoupon)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coupon.ErrCouponInvalid
		}
		return nil, errors.Wrapf(err, "find coupon %q", code)
	}
	return &c, nil
}

// IncrementUses consumes one redemption with a conditional UPDATE. Of two
// transactions racing for the last slot, the second blocks on the row lock
// and then matches zero rows.
func (r *CouponRepository) IncrementUses(ctx context.Context, code string) error {
	q := conn(ctx, r.pool)
	tag, err := q.Exec(ctx, incrementCouponUsesSQL, code)
	if err != nil {
		return errors.Wrapf(err, "increment uses of coupon %q", code)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var exists bool
	if err := q.QueryRow(ctx, couponExistsSQL, code).Scan(&exists); err != nil {
		return errors.Wrapf(err, "check coupon %q", code)
	}
	if !exists {
		return coupon.ErrCouponInvalid
	}
	return coupon.ErrUsageLimitExceeded
}

// DecrementUses returns one redemption.
func (r *CouponRepository) DecrementUses(ctx context.Context, code string) error {
	if _, err := conn(ctx, r.pool).Exec(ctx, decrementCouponUsesSQL, code); err != nil {
		return errors.Wrapf(err, "decrement uses of coupon %q", code)
	}
	return nil
}

// Create inserts the coupon or updates the definition of an existing one.
// The used count of an existing coupon is preserved.
func (r *CouponRepository) Create(ctx context.Context, c *coupon.Coupon) error {
	err := conn(ctx, r.pool).QueryRow(ctx, upsertCouponSQL,
		c.Code, string(c.DiscountType), c.DiscountValue, c.MinOrderValue,
		c.ExpiresAt, c.Active, c.UsageLimit,
	).Scan(&c.UsedCount, &c.CreatedAt)
	if err != nil {
		return errors.Wrapf(err, "upsert coupon %q", c.Code)
	}
	return nil
}

// List returns every coupon, newest first.
func (r *CouponRepository) List(ctx context.Context) ([]coupon.Coupon, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, listCouponsSQL)
	if err != nil {
		return nil, errors.Wrap(err, "list coupons")
	}
	coupons, err := pgx.CollectRows(rows, scanCoupon)
	if err != nil {
		return nil, errors.Wrap(err, "list coupons")
	}
	return coupons, nil
}

// Delete removes a coupon.
func (r *CouponRepository) Delete(ctx context.Context, code string) error {
	tag, err := conn(ctx, r.pool).Exec(ctx, deleteCouponSQL, code)
	if err != nil {
		return errors.Wrapf(err, "delete coupon %q", code)
	}
	if tag.RowsAffected() == 0 {
		return coupon.ErrCouponInvalid
	}
	return nil
}

func scanCoupon(row pgx.CollectableRow) (coupon.Coupon, error) {
	var (
		c            coupon.Coupon
		discountType string
	)
	err := row.Scan(
		&c.Code, &discountType, &c.DiscountValue, &c.MinOrderValue, &c.ExpiresAt,
		&c.Active, &c.UsageLimit, &c.UsedCount, &c.CreatedAt,
	)
	c.DiscountType = coupon.DiscountType(discountType)
	return c, err
}
