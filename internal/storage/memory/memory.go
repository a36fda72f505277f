// Package memory implements the storefront repositories in process memory.
//
// Every repository guards its state with a mutex, which makes the
// conditional updates used by checkout atomic. Values are copied on the way
// in and out, so callers never share slices with the store. Nothing
// survives a restart.
package memory

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shopprime/storefront/internal/domain/auth"
	"github.com/shopprime/storefront/internal/domain/cart"
	"github.com/shopprime/storefront/internal/domain/coupon"
	"github.com/shopprime/storefront/internal/domain/order"
	"github.com/shopprime/storefront/internal/domain/product"
	"github.com/shopprime/storefront/internal/domain/review"
	"github.com/shopprime/storefront/internal/domain/wishlist"
)

// Store bundles one repository per aggregate.
type Store struct {
	Products  *ProductRepository
	Coupons   *CouponRepository
	Carts     *CartRepository
	Orders    *OrderRepository
	APIKeys   *APIKeyRepository
	Reviews   *ReviewRepository
	Wishlists *WishlistRepository
}

// New returns an empty Store. Deleting a product also drops it from carts,
// wishlists and reviews.
func New() *Store {
	s := &Store{
		Products:  &ProductRepository{items: map[string]product.Product{}},
		Coupons:   &CouponRepository{items: map[string]coupon.Coupon{}},
		Carts:     &CartRepository{items: map[string][]cart.Item{}},
		Orders:    &OrderRepository{items: map[string]order.Order{}},
		APIKeys:   &APIKeyRepository{items: map[string]auth.APIKeyInfo{}},
		Reviews:   &ReviewRepository{items: map[string][]review.Review{}},
		Wishlists: &WishlistRepository{items: map[string][]wishlist.Item{}},
	}
	s.Products.onDelete = []func(productID string){
		s.Carts.dropProduct,
		s.Wishlists.dropProduct,
		s.Reviews.dropProduct,
	}
	return s
}

var _ product.Repository = (*ProductRepository)(nil)

// ProductRepository implements product.Repository on a map keyed by id.
type ProductRepository struct {
	mu       sync.RWMutex
	items    map[string]product.Product
	onDelete []func(productID string)
}

// List returns the products matching f, newest first.
func (r *ProductRepository) List(_ context.Context, f product.Filter) ([]product.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]product.Product, 0, len(r.items))
	for _, p := range r.items {
		if f.Match(&p) {
			out = append(out, p)
		}
	}
	slices.SortFunc(out, func(a, b product.Product) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out, nil
}

// Categories returns the distinct non-empty categories, sorted.
func (r *ProductRepository) Categories(context.Context) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0)
	for _, p := range r.items {
		if p.Category != "" {
			out = append(out, p.Category)
		}
	}
	slices.Sort(out)
	return slices.Compact(out), nil
}

// GetByID returns a copy of the product.
func (r *ProductRepository) GetByID(_ context.Context, id string) (*product.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.items[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	return &p, nil
}

// DecrementStock checks and subtracts under one lock.
func (r *ProductRepository) DecrementStock(_ context.Context, id string, qty int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.items[id]
	if !ok {
		return product.ErrNotFound
	}
	if p.Stock < qty {
		return product.ErrInsufficientStock
	}
	p.Stock -= qty
	p.UpdatedAt = time.Now().UTC()
	r.items[id] = p
	return nil
}

// RestoreStock adds qty back to the product stock.
func (r *ProductRepository) RestoreStock(_ context.Context, id string, qty int) error {
	return r.mutate(id, func(p *product.Product) { p.Stock += qty })
}

// SetStock overwrites the stock level.
func (r *ProductRepository) SetStock(_ context.Context, id string, stock int) error {
	return r.mutate(id, func(p *product.Product) { p.Stock = stock })
}

func (r *ProductRepository) mutate(id string, fn func(p *product.Product)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.items[id]
	if !ok {
		return product.ErrNotFound
	}
	fn(&p)
	p.UpdatedAt = time.Now().UTC()
	r.items[id] = p
	return nil
}

// Create inserts the product, replacing any product with the same id. An
// empty id is filled with a new UUID.
func (r *ProductRepository) Create(_ context.Context, p *product.Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if prev, ok := r.items[p.ID]; ok {
		p.CreatedAt = prev.CreatedAt
	} else {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	r.items[p.ID] = *p
	return nil
}

// Update replaces the editable fields of an existing product, keeping its
// creation time.
func (r *ProductRepository) Update(_ context.Context, p *product.Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev, ok := r.items[p.ID]
	if !ok {
		return product.ErrNotFound
	}
	p.CreatedAt = prev.CreatedAt
	p.UpdatedAt = time.Now().UTC()
	r.items[p.ID] = *p
	return nil
}

// Delete removes the product. Orders keep their line snapshots.
func (r *ProductRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	_, ok := r.items[id]
	delete(r.items, id)
	r.mu.Unlock()

	if !ok {
		return product.ErrNotFound
	}
	for _, fn := range r.onDelete {
		fn(id)
	}
	return nil
}

var _ coupon.Repository = (*CouponRepository)(nil)

// CouponRepository implements coupon.Repository on a map keyed by code.
type CouponRepository struct {
	mu    sync.RWMutex
	items map[string]coupon.Coupon
}

// FindByCode returns a copy of the coupon.
func (r *CouponRepository) FindByCode(_ context.Context, code string) (*coupon.Coupon, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.items[code]
	if !ok {
		return nil, coupon.ErrCouponInvalid
	}
	c = cloneCoupon(c)
	return &c, nil
}

// IncrementUses consumes one use unless the usage limit is reached.
func (r *CouponRepository) IncrementUses(_ context.Context, code string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.items[code]
	if !ok {
		return coupon.ErrCouponInvalid
	}
	if c.UsageLimit != nil && c.UsedCount >= *c.UsageLimit {
		return coupon.ErrUsageLimitExceeded
	}
	c.UsedCount++
	r.items[code] = c
	return nil
}

// DecrementUses gives one use back, never going below zero.
func (r *CouponRepository) DecrementUses(_ context.Context, code string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.items[code]; ok && c.UsedCount > 0 {
		c.UsedCount--
		r.items[code] = c
	}
	return nil
}

// Create stores the coupon definition, keeping the used count of an
// existing coupon with the same code.
func (r *CouponRepository) Create(_ context.Context, c *coupon.Coupon) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.items[c.Code]; ok {
		c.UsedCount = prev.UsedCount
		c.CreatedAt = prev.CreatedAt
	} else {
		c.UsedCount = 0
		c.CreatedAt = time.Now().UTC()
	}
	r.items[c.Code] = cloneCoupon(*c)
	return nil
}

// List returns every coupon, newest first.
func (r *CouponRepository) List(context.Context) ([]coupon.Coupon, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]coupon.Coupon, 0, len(r.items))
	for _, c := range r.items {
		out = append(out, cloneCoupon(c))
	}
	slices.SortFunc(out, func(a, b coupon.Coupon) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.Code, b.Code)
	})
	return out, nil
}

// Delete removes the coupon.
func (r *CouponRepository) Delete(_ context.Context, code string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.items[code]; !ok {
		return coupon.ErrCouponInvalid
	}
	delete(r.items, code)
	return nil
}

func cloneCoupon(c coupon.Coupon) coupon.Coupon {
	if c.UsageLimit != nil {
		limit := *c.UsageLimit
		c.UsageLimit = &limit
	}
	return c
}

var _ cart.Repository = (*CartRepository)(nil)

// CartRepository implements cart.Repository with one item slice per user.
type CartRepository struct {
	mu    sync.Mutex
	items map[string][]cart.Item
}

// Get returns a copy of the user's items.
func (r *CartRepository) Get(_ context.Context, userID string) ([]cart.Item, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return slices.Clone(r.items[userID]), nil
}

// AddItem inserts the product or adds qty to an existing line.
func (r *CartRepository) AddItem(_ context.Context, userID, productID string, qty int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	items := r.items[userID]
	if i := indexOf(items, productID); i >= 0 {
		items[i].Quantity += qty
		return nil
	}
	r.items[userID] = append(items, cart.Item{
		ProductID: productID,
		Quantity:  qty,
		AddedAt:   time.Now().UTC(),
	})
	return nil
}

// SetQuantity replaces the quantity of a line already in the cart.
func (r *CartRepository) SetQuantity(_ context.Context, userID, productID string, qty int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	items := r.items[userID]
	i := indexOf(items, productID)
	if i < 0 {
		return cart.ErrItemNotFound
	}
	items[i].Quantity = qty
	return nil
}

// RemoveItem drops the product from the cart.
func (r *CartRepository) RemoveItem(_ context.Context, userID, productID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.items[userID] = slices.DeleteFunc(r.items[userID], func(it cart.Item) bool {
		return it.ProductID == productID
	})
	return nil
}

// Clear empties the cart.
func (r *CartRepository) Clear(_ context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.items, userID)
	return nil
}

func (r *CartRepository) dropProduct(productID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for userID, items := range r.items {
		r.items[userID] = slices.DeleteFunc(items, func(it cart.Item) bool {
			return it.ProductID == productID
		})
	}
}

func indexOf(items []cart.Item, productID string) int {
	return slices.IndexFunc(items, func(it cart.Item) bool { return it.ProductID == productID })
}

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository on a map keyed by id.
type OrderRepository struct {
	mu    sync.RWMutex
	items map[string]order.Order
}

// Create stores a copy of o and rejects a duplicate id with
// order.ErrConflict.
func (r *OrderRepository) Create(_ context.Context, o *order.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.items[o.ID]; ok {
		return order.ErrConflict
	}
	r.items[o.ID] = cloneOrder(*o)
	return nil
}

// FindByID returns a copy of the order.
func (r *OrderRepository) FindByID(_ context.Context, id string) (*order.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	o, ok := r.items[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	o = cloneOrder(o)
	return &o, nil
}

// FindByUser returns the user's orders, newest first.
func (r *OrderRepository) FindByUser(_ context.Context, userID string) ([]order.Order, error) {
	return r.filter(func(o *order.Order) bool { return o.UserID == userID }), nil
}

// List returns orders with the given status, or all orders for an empty
// status, newest first.
func (r *OrderRepository) List(_ context.Context, status order.Status) ([]order.Order, error) {
	return r.filter(func(o *order.Order) bool { return status == "" || o.Status == status }), nil
}

// UpdateStatus sets the fulfilment status and returns the updated order.
func (r *OrderRepository) UpdateStatus(_ context.Context, id string, status order.Status) (*order.Order, error) {
	return r.mutate(id, func(o *order.Order) { o.Status = status })
}

// UpdatePaymentStatus sets the payment status and returns the updated order.
func (r *OrderRepository) UpdatePaymentStatus(_ context.Context, id string, status order.PaymentStatus) (*order.Order, error) {
	return r.mutate(id, func(o *order.Order) { o.PaymentStatus = status })
}

func (r *OrderRepository) mutate(id string, fn func(o *order.Order)) (*order.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	o, ok := r.items[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	fn(&o)
	o.UpdatedAt = time.Now().UTC()
	r.items[id] = o
	o = cloneOrder(o)
	return &o, nil
}

func (r *OrderRepository) filter(match func(o *order.Order) bool) []order.Order {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]order.Order, 0)
	for _, o := range r.items {
		if match(&o) {
			out = append(out, cloneOrder(o))
		}
	}
	slices.SortFunc(out, func(a, b order.Order) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out
}

func cloneOrder(o order.Order) order.Order {
	o.Lines = slices.Clone(o.Lines)
	return o
}

var _ auth.Repository = (*APIKeyRepository)(nil)

// APIKeyRepository indexes keys by hash.
type APIKeyRepository struct {
	mu    sync.RWMutex
	items map[string]auth.APIKeyInfo
}

// FindByHash returns a copy of the key stored under hash.
func (r *APIKeyRepository) FindByHash(_ context.Context, hash string) (*auth.APIKeyInfo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	k, ok := r.items[hash]
	if !ok {
		return nil, auth.ErrNotFound
	}
	k.Scopes = slices.Clone(k.Scopes)
	return &k, nil
}

// Upsert stores key, dropping the previous hash of a key with the same id.
func (r *APIKeyRepository) Upsert(_ context.Context, key auth.APIKeyInfo) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for hash, k := range r.items {
		if k.ID == key.ID {
			delete(r.items, hash)
		}
	}
	key.Scopes = slices.Clone(key.Scopes)
	r.items[key.KeyHash] = key
	return nil
}

var _ review.Repository = (*ReviewRepository)(nil)

// ReviewRepository implements review.Repository with one slice per product.
type ReviewRepository struct {
	mu    sync.RWMutex
	items map[string][]review.Review
}

// Add appends the review unless the user already reviewed the product.
func (r *ReviewRepository) Add(_ context.Context, rv *review.Review) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	reviews := r.items[rv.ProductID]
	if slices.ContainsFunc(reviews, func(prev review.Review) bool { return prev.UserID == rv.UserID }) {
		return review.ErrAlreadyReviewed
	}
	rv.CreatedAt = time.Now().UTC()
	r.items[rv.ProductID] = append(reviews, *rv)
	return nil
}

// ListByProduct returns the product's reviews, newest first.
func (r *ReviewRepository) ListByProduct(_ context.Context, productID string) ([]review.Review, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := slices.Clone(r.items[productID])
	if out == nil {
		out = []review.Review{}
	}
	slices.Reverse(out)
	return out, nil
}

func (r *ReviewRepository) dropProduct(productID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.items, productID)
}

var _ wishlist.Repository = (*WishlistRepository)(nil)

// WishlistRepository implements wishlist.Repository with one item slice per
// user.
type WishlistRepository struct {
	mu    sync.Mutex
	items map[string][]wishlist.Item
}

// Get returns a copy of the user's saved items.
func (r *WishlistRepository) Get(_ context.Context, userID string) ([]wishlist.Item, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := slices.Clone(r.items[userID])
	if out == nil {
		out = []wishlist.Item{}
	}
	return out, nil
}

// Add saves the product unless it is already saved.
func (r *WishlistRepository) Add(_ context.Context, userID, productID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	items := r.items[userID]
	if slices.ContainsFunc(items, func(it wishlist.Item) bool { return it.ProductID == productID }) {
		return nil
	}
	r.items[userID] = append(items, wishlist.Item{ProductID: productID, AddedAt: time.Now().UTC()})
	return nil
}

// Remove drops the product from the wishlist.
func (r *WishlistRepository) Remove(_ context.Context, userID, productID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.items[userID] = slices.DeleteFunc(r.items[userID], func(it wishlist.Item) bool {
		return it.ProductID == productID
	})
	return nil
}

func (r *WishlistRepository) dropProduct(productID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for userID, items := range r.items {
		r.items[userID] = slices.DeleteFunc(items, func(it wishlist.Item) bool {
			return it.ProductID == productID
		})
	}
}
