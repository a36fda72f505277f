package coupon

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Validation is the outcome of a successful coupon check.
type Validation struct {
	Coupon   Coupon
	Discount decimal.Decimal
}

// Ledger validates coupons and records redemptions against a Repository.
type Ledger struct {
	repo Repository
	now  func() time.Time
}

// NewLedger creates a Ledger backed by the given Repository.
func NewLedger(repo Repository) *Ledger {
	return &Ledger{repo: repo, now: time.Now}
}

// Validate looks up code and checks it against amount. It does not consume
// a redemption.
func (l *Ledger) Validate(ctx context.Context, code string, amount decimal.Decimal) (*Validation, error) {
	code = NormalizeCode(code)
	if code == "" {
		return nil, ErrCouponInvalid
	}

	c, err := l.repo.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, ErrInvalidCoupon) {
			return nil, err
		}
		return nil, errors.Wrap(err, "lookup coupon")
	}

	if err := c.Check(l.now(), amount); err != nil {
		return nil, err
	}

	return &Validation{
		Coupon:   *c,
		Discount: c.Discount(amount),
	}, nil
}

// Preview is Validate for callers that only display the discount.
func (l *Ledger) Preview(ctx context.Context, code string, amount decimal.Decimal) (*Validation, error) {
	return l.Validate(ctx, code, amount)
}

// Redeem consumes one use of the coupon. When concurrent redemptions race
// for the last slot exactly one of them succeeds.
func (l *Ledger) Redeem(ctx context.Context, code string) error {
	if err := l.repo.IncrementUses(ctx, NormalizeCode(code)); err != nil {
		if errors.Is(err, ErrInvalidCoupon) {
			return err
		}
		return errors.Wrap(err, "increment coupon uses")
	}
	return nil
}

// Release returns a use consumed by Redeem.
func (l *Ledger) Release(ctx context.Context, code string) error {
	if err := l.repo.DecrementUses(ctx, NormalizeCode(code)); err != nil {
		return errors.Wrap(err, "decrement coupon uses")
	}
	return nil
}
