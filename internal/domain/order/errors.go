package order

import (
	"fmt"

	"github.com/go-faster/errors"

	"github.com/shopprime/storefront/internal/domain/product"
)

var (
	// ErrNotFound is returned when an order does not exist or does not
	// belong to the caller.
	ErrNotFound = errors.New("order not found")
	// ErrConflict is returned when a concurrent checkout won a race for the
	// same stock or coupon slot. The caller may retry.
	ErrConflict = errors.New("conflicting concurrent update")
)

// ValidationError reports malformed input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s %s", e.Field, e.Reason)
}

// ProductNotFoundError indicates a cart references a product that no
// longer exists.
type ProductNotFoundError struct {
	ProductID string
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product %s not found", e.ProductID)
}

func (e *ProductNotFoundError) Is(target error) bool { return target == product.ErrNotFound }
