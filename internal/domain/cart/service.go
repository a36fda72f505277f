package cart

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/shopprime/storefront/internal/domain/product"
	"github.com/shopprime/storefront/internal/lock"
)

// Locker serializes work on a key.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// LockKey is the key that guards a user's cart. Checkout holds it from
// reading the cart until clearing it.
func LockKey(userID string) string {
	return "checkout:" + userID
}

// Line is a cart item joined with the current catalog entry.
type Line struct {
	Item
	Product product.Product
}

// Service manages user carts, checking quantities against the catalog.
type Service struct {
	carts    Repository
	products product.Reader
	locks    Locker
}

// NewService creates a cart Service. Pass the checkout Locker so mutations
// wait for an in-flight checkout; nil uses a process-local lock.
func NewService(carts Repository, products product.Reader, locks Locker) *Service {
	if locks == nil {
		locks = lock.NewKeyedMutex()
	}
	return &Service{carts: carts, products: products, locks: locks}
}

// Get returns the user's cart with product details. Items whose product has
// since been removed from the catalog are left out.
func (s *Service) Get(ctx context.Context, userID string) ([]Line, error) {
	items, err := s.carts.Get(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "get cart")
	}

	lines := make([]Line, 0, len(items))
	for _, it := range items {
		p, err := s.products.GetByID(ctx, it.ProductID)
		if err != nil {
			if errors.Is(err, product.ErrNotFound) {
				zctx.From(ctx).Debug("Skipping cart item for missing product",
					zap.String("user_id", userID),
					zap.String("product_id", it.ProductID),
				)
				continue
			}
			return nil, errors.Wrapf(err, "get product %s", it.ProductID)
		}
		lines = append(lines, Line{Item: it, Product: *p})
	}
	return lines, nil
}

// AddItem adds qty units of the product, merging with an existing line.
func (s *Service) AddItem(ctx context.Context, userID, productID string, qty int) error {
	if qty <= 0 {
		return ErrInvalidQuantity
	}
	unlock, err := s.lock(ctx, userID)
	if err != nil {
		return err
	}
	defer unlock()

	items, err := s.carts.Get(ctx, userID)
	if err != nil {
		return errors.Wrap(err, "get cart")
	}
	total := qty
	for _, it := range items {
		if it.ProductID == productID {
			total += it.Quantity
		}
	}

	if err := s.checkStock(ctx, productID, total); err != nil {
		return err
	}
	if err := s.carts.AddItem(ctx, userID, productID, qty); err != nil {
		return errors.Wrap(err, "add cart item")
	}
	return nil
}

// SetQuantity replaces the quantity of a product already in the cart.
func (s *Service) SetQuantity(ctx context.Context, userID, productID string, qty int) error {
	if qty <= 0 {
		return ErrInvalidQuantity
	}
	unlock, err := s.lock(ctx, userID)
	if err != nil {
		return err
	}
	defer unlock()

	if err := s.checkStock(ctx, productID, qty); err != nil {
		return err
	}
	if err := s.carts.SetQuantity(ctx, userID, productID, qty); err != nil {
		if errors.Is(err, ErrItemNotFound) {
			return err
		}
		return errors.Wrap(err, "set cart quantity")
	}
	return nil
}

// RemoveItem drops a product from the cart. Removing an absent product is
// not an error.
func (s *Service) RemoveItem(ctx context.Context, userID, productID string) error {
	unlock, err := s.lock(ctx, userID)
	if err != nil {
		return err
	}
	defer unlock()

	if err := s.carts.RemoveItem(ctx, userID, productID); err != nil {
		return errors.Wrap(err, "remove cart item")
	}
	return nil
}

// Clear empties the cart.
func (s *Service) Clear(ctx context.Context, userID string) error {
	unlock, err := s.lock(ctx, userID)
	if err != nil {
		return err
	}
	defer unlock()

	if err := s.carts.Clear(ctx, userID); err != nil {
		return errors.Wrap(err, "clear cart")
	}
	return nil
}

func (s *Service) lock(ctx context.Context, userID string) (func(), error) {
	unlock, err := s.locks.Lock(ctx, LockKey(userID))
	if err != nil {
		return nil, errors.Wrap(err, "acquire cart lock")
	}
	return unlock, nil
}

func (s *Service) checkStock(ctx context.Context, productID string, qty int) error {
	p, err := s.products.GetByID(ctx, productID)
	if err != nil {
		if errors.Is(err, product.ErrNotFound) {
			return err
		}
		return errors.Wrapf(err, "get product %s", productID)
	}
	if p.Stock < qty {
		return &product.InsufficientStockError{
			ProductID: p.ID,
			Name:      p.Name,
			Available: p.Stock,
			Requested: qty,
		}
	}
	return nil
}
