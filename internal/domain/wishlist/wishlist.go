// Package wishlist keeps the products a user saved for later.
package wishlist

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/shopprime/storefront/internal/domain/product"
)

// Item is one saved product.
type Item struct {
	ProductID string
	AddedAt   time.Time
}

// Repository stores one wishlist per user. Get returns items in the order
// they were added and an empty slice for users without a wishlist.
type Repository interface {
	Get(ctx context.Context, userID string) ([]Item, error)
	// Add saves the product; adding a saved product again is a no-op.
	Add(ctx context.Context, userID, productID string) error
	// Remove drops the product; removing an absent product is a no-op.
	Remove(ctx context.Context, userID, productID string) error
}

// Service resolves wishlists against the catalog.
type Service struct {
	items    Repository
	products product.Reader
}

// NewService creates a wishlist Service.
func NewService(items Repository, products product.Reader) *Service {
	return &Service{items: items, products: products}
}

// Get returns the saved products. Products that left the catalog are
// skipped.
func (s *Service) Get(ctx context.Context, userID string) ([]product.Product, error) {
	items, err := s.items.Get(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "get wishlist")
	}

	out := make([]product.Product, 0, len(items))
	for _, it := range items {
		p, err := s.products.GetByID(ctx, it.ProductID)
		if err != nil {
			if errors.Is(err, product.ErrNotFound) {
				zctx.From(ctx).Debug("Skipping wishlist item for missing product",
					zap.String("user_id", userID),
					zap.String("product_id", it.ProductID),
				)
				continue
			}
			return nil, errors.Wrapf(err, "get product %s", it.ProductID)
		}
		out = append(out, *p)
	}
	return out, nil
}

// Add saves an existing product.
func (s *Service) Add(ctx context.Context, userID, productID string) error {
	if _, err := s.products.GetByID(ctx, productID); err != nil {
		if errors.Is(err, product.ErrNotFound) {
			return err
		}
		return errors.Wrapf(err, "get product %s", productID)
	}
	if err := s.items.Add(ctx, userID, productID); err != nil {
		return errors.Wrap(err, "add wishlist item")
	}
	return nil
}

func (s *Service) Remove(ctx context.Context, userID, productID string) error {
	if err := s.items.Remove(ctx, userID, productID); err != nil {
		return errors.Wrap(err, "remove wishlist item")
	}
	return nil
}
