package product

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound is returned when a requested product does not exist.
	ErrNotFound = errors.New("product not found")
	// ErrInsufficientStock is returned by DecrementStock when the product
	// does not hold enough units to satisfy the request.
	ErrInsufficientStock = errors.New("insufficient stock")
)

// InsufficientStockError names the product that cannot cover a requested
// quantity.
type InsufficientStockError struct {
	ProductID string
	Name      string
	Available int
	Requested int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s: %d available, %d requested", e.Name, e.Available, e.Requested)
}

func (e *InsufficientStockError) Is(target error) bool { return target == ErrInsufficientStock }

// Product represents a catalog item available for purchase.
type Product struct {
	ID            string
	Name          string
	Description   string
	Category      string
	Brand         string
	Price         decimal.Decimal
	DiscountPrice decimal.NullDecimal
	Stock         int
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// UnitPrice returns the price charged for a single unit. A non-zero
// discount price takes precedence over the list price.
func (p *Product) UnitPrice() decimal.Decimal {
	if p.DiscountPrice.Valid && !p.DiscountPrice.Decimal.IsZero() {
		return p.DiscountPrice.Decimal
	}
	return p.Price
}

// Validate checks the fields required to create a product.
func (p *Product) Validate() error {
	switch {
	case p.Name == "":
		return errors.New("name is required")
	case p.Price.IsNegative():
		return errors.New("price must not be negative")
	case p.DiscountPrice.Valid && p.DiscountPrice.Decimal.IsNegative():
		return errors.New("discount price must not be negative")
	case p.Stock < 0:
		return errors.New("stock must not be negative")
	}
	return nil
}

// Filter narrows a catalog listing. Zero fields match every product.
type Filter struct {
	// Query matches a case-insensitive substring of the name.
	Query    string
	Category string
	// MinPrice and MaxPrice bound the list price, inclusive.
	MinPrice decimal.NullDecimal
	MaxPrice decimal.NullDecimal
}

// Validate rejects negative or inverted price bounds.
func (f Filter) Validate() error {
	switch {
	case f.MinPrice.Valid && f.MinPrice.Decimal.IsNegative():
		return errors.New("minPrice must not be negative")
	case f.MaxPrice.Valid && f.MaxPrice.Decimal.IsNegative():
		return errors.New("maxPrice must not be negative")
	case f.MinPrice.Valid && f.MaxPrice.Valid && f.MinPrice.Decimal.GreaterThan(f.MaxPrice.Decimal):
		return errors.New("minPrice must not exceed maxPrice")
	}
	return nil
}

// Match reports whether p passes the filter.
func (f Filter) Match(p *Product) bool {
	if f.Query != "" && !strings.Contains(strings.ToLower(p.Name), strings.ToLower(f.Query)) {
		return false
	}
	if f.Category != "" && p.Category != f.Category {
		return false
	}
	if f.MinPrice.Valid && p.Price.LessThan(f.MinPrice.Decimal) {
		return false
	}
	if f.MaxPrice.Valid && p.Price.GreaterThan(f.MaxPrice.Decimal) {
		return false
	}
	return true
}

// Reader exposes read access to the catalog.
type Reader interface {
	// List returns the products matching f, newest first.
	List(ctx context.Context, f Filter) ([]Product, error)
	GetByID(ctx context.Context, id string) (*Product, error)
}

// Repository defines catalog reads plus the stock mutations used by checkout
// and administration.
type Repository interface {
	Reader
	// Categories returns the distinct non-empty categories in order.
	Categories(ctx context.Context) ([]string, error)
	// DecrementStock atomically subtracts qty from the product stock if and
	// only if the stock is at least qty. Otherwise it returns
	// ErrInsufficientStock and leaves the stock untouched.
	DecrementStock(ctx context.Context, id string, qty int) error
	// RestoreStock adds qty back to the product stock.
	RestoreStock(ctx context.Context, id string, qty int) error
	Create(ctx context.Context, p *Product) error
	// Update replaces the editable fields of an existing product and
	// returns ErrNotFound when there is none.
	Update(ctx context.Context, p *Product) error
	Delete(ctx context.Context, id string) error
	SetStock(ctx context.Context, id string, stock int) error
}

// RelatedLimit is how many related products the storefront shows.
const RelatedLimit = 4

// Related returns up to limit other products from the category of product
// id. A product without a category has no related products.
func Related(ctx context.Context, r Reader, id string, limit int) ([]Product, error) {
	p, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	out := make([]Product, 0, limit)
	if p.Category == "" {
		return out, nil
	}

	candidates, err := r.List(ctx, Filter{Category: p.Category})
	if err != nil {
		return nil, errors.Wrap(err, "list category")
	}
	for _, c := range candidates {
		if len(out) == limit {
			break
		}
		if c.ID != id {
			out = append(out, c)
		}
	}
	return out, nil
}
