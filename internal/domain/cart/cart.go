package cart

import (
	"context"
	"time"

	"github.com/go-faster/errors"
)

var (
	// ErrEmpty is returned when checking out a cart with no items.
	ErrEmpty = errors.New("cart is empty")
	// ErrItemNotFound is returned when a product is not in the cart.
	ErrItemNotFound = errors.New("item not found in cart")
	// ErrInvalidQuantity is returned for quantities below one.
	ErrInvalidQuantity = errors.New("quantity must be greater than 0")
)

// Item is one product line in a user's cart.
type Item struct {
	ProductID string
	Quantity  int
	AddedAt   time.Time
}

// Repository stores one cart per user. Get returns items in insertion
// order and an empty slice for users without a cart.
type Repository interface {
	Get(ctx context.Context, userID string) ([]Item, error)
	// AddItem inserts the product or adds qty to an existing line.
	AddItem(ctx context.Context, userID, productID string, qty int) error
	// SetQuantity returns ErrItemNotFound when the product is not in the cart.
	SetQuantity(ctx context.Context, userID, productID string, qty int) error
	RemoveItem(ctx context.Context, userID, productID string) error
	Clear(ctx context.Context, userID string) error
}
