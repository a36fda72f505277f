package coupon

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// DiscountType enumerates the supported coupon discount strategies.
type DiscountType string

const (
	// DiscountPercentage takes a percentage of the order amount.
	DiscountPercentage DiscountType = "percentage"
	// DiscountFlat takes a fixed amount, capped at the order amount.
	DiscountFlat DiscountType = "flat"
)

// Valid reports whether t is a known discount type.
func (t DiscountType) Valid() bool {
	return t == DiscountPercentage || t == DiscountFlat
}

// ErrInvalidCoupon matches every reason a coupon can be rejected for.
// Use errors.Is against the specific sentinels to tell them apart.
var ErrInvalidCoupon = errors.New("invalid coupon")

var (
	// ErrCouponInvalid is returned for unknown or inactive codes.
	ErrCouponInvalid error = &rejection{msg: "coupon not found or inactive"}
	// ErrCouponExpired is returned once the expiry timestamp has passed.
	ErrCouponExpired error = &rejection{msg: "coupon expired"}
	// ErrMinOrderNotMet is returned when the order amount is below the
	// coupon minimum. The concrete error is a *MinOrderError.
	ErrMinOrderNotMet error = &rejection{msg: "minimum order value not met"}
	// ErrUsageLimitExceeded is returned when every redemption slot is taken.
	ErrUsageLimitExceeded error = &rejection{msg: "coupon usage limit reached"}
)

type rejection struct {
	msg string
}

func (r *rejection) Error() string { return r.msg }

func (r *rejection) Is(target error) bool { return target == ErrInvalidCoupon }

// MinOrderError reports the minimum order value the coupon requires.
type MinOrderError struct {
	MinOrderValue decimal.Decimal
}

func (e *MinOrderError) Error() string {
	return fmt.Sprintf("minimum order value is %s", e.MinOrderValue.StringFixed(2))
}

func (e *MinOrderError) Is(target error) bool {
	return target == ErrMinOrderNotMet || target == ErrInvalidCoupon
}

// Coupon is a discount code with eligibility constraints and a usage counter.
type Coupon struct {
	Code          string
	DiscountType  DiscountType
	DiscountValue decimal.Decimal
	MinOrderValue decimal.Decimal
	ExpiresAt     time.Time
	Active        bool
	UsageLimit    *int
	UsedCount     int
	CreatedAt     time.Time
}

// NormalizeCode returns the canonical stored form of a coupon code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Check returns nil when the coupon may be applied to amount at now.
func (c *Coupon) Check(now time.Time, amount decimal.Decimal) error {
	if !c.Active {
		return ErrCouponInvalid
	}
	if !c.ExpiresAt.After(now) {
		return ErrCouponExpired
	}
	if amount.LessThan(c.MinOrderValue) {
		return &MinOrderError{MinOrderValue: c.MinOrderValue}
	}
	if c.UsageLimit != nil && c.UsedCount >= *c.UsageLimit {
		return ErrUsageLimitExceeded
	}
	return nil
}

// Discount computes the discount for amount, never exceeding amount itself.
func (c *Coupon) Discount(amount decimal.Decimal) decimal.Decimal {
	var d decimal.Decimal
	switch c.DiscountType {
	case DiscountPercentage:
		d = amount.Mul(c.DiscountValue).Div(decimal.NewFromInt(100))
	case DiscountFlat:
		d = c.DiscountValue
	}
	if d.IsNegative() {
		d = decimal.Zero
	}
	return decimal.Min(d, amount).Round(2)
}

// Validate checks the fields required to create a coupon.
func (c *Coupon) Validate() error {
	switch {
	case c.Code == "":
		return errors.New("code is required")
	case !c.DiscountType.Valid():
		return errors.Errorf("unsupported discount type: %q", c.DiscountType)
	case !c.DiscountValue.IsPositive():
		return errors.New("discount value must be positive")
	case c.DiscountType == DiscountPercentage && c.DiscountValue.GreaterThan(decimal.NewFromInt(100)):
		return errors.New("percentage discount must not exceed 100")
	case c.MinOrderValue.IsNegative():
		return errors.New("min order value must not be negative")
	case c.ExpiresAt.IsZero():
		return errors.New("expiry is required")
	case c.UsageLimit != nil && *c.UsageLimit < 0:
		return errors.New("usage limit must not be negative")
	}
	return nil
}

// Repository provides lookup and mutation of coupons. Codes passed in are
// already normalized.
type Repository interface {
	// FindByCode returns ErrCouponInvalid when no coupon has the code.
	FindByCode(ctx context.Context, code string) (*Coupon, error)
	// IncrementUses atomically increments the used count if the usage limit
	// still has room. It returns ErrUsageLimitExceeded otherwise.
	IncrementUses(ctx context.Context, code string) error
	// DecrementUses undoes one IncrementUses, never going below zero.
	DecrementUses(ctx context.Context, code string) error
	Create(ctx context.Context, c *Coupon) error
	List(ctx context.Context) ([]Coupon, error)
	Delete(ctx context.Context, code string) error
}
