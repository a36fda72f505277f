package cart

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shopprime/storefront/internal/domain/product"
	"github.com/shopprime/storefront/internal/lock"
)

type mockProducts struct {
	byID map[string]*product.Product
	err  error
}

func (m *mockProducts) List(context.Context, product.Filter) ([]product.Product, error) {
	return nil, nil
}

func (m *mockProducts) GetByID(_ context.Context, id string) (*product.Product, error) {
	if m.err != nil {
		return nil, m.err
	}
	p, ok := m.byID[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	return p, nil
}

type mockCartRepo struct {
	items []Item
	err   error
}

func (m *mockCartRepo) Get(context.Context, string) ([]Item, error) {
	return m.items, m.err
}

func (m *mockCartRepo) AddItem(_ context.Context, _, productID string, qty int) error {
	if m.err != nil {
		return m.err
	}
	for i := range m.items {
		if m.items[i].ProductID == productID {
			m.items[i].Quantity += qty
			return nil
		}
	}
	m.items = append(m.items, Item{ProductID: productID, Quantity: qty})
	return nil
}

func (m *mockCartRepo) SetQuantity(_ context.Context, _, productID string, qty int) error {
	for i := range m.items {
		if m.items[i].ProductID == productID {
			m.items[i].Quantity = qty
			return nil
		}
	}
	return ErrItemNotFound
}

func (m *mockCartRepo) RemoveItem(_ context.Context, _, productID string) error {
	for i := range m.items {
		if m.items[i].ProductID == productID {
			m.items = append(m.items[:i], m.items[i+1:]...)
			return nil
		}
	}
	return nil
}

func (m *mockCartRepo) Clear(context.Context, string) error {
	m.items = nil
	return m.err
}

func newProducts() *mockProducts {
	return &mockProducts{byID: map[string]*product.Product{
		"kettle": {ID: "kettle", Name: "Kettle", Price: decimal.NewFromInt(1200), Stock: 3},
		"mug":    {ID: "mug", Name: "Mug", Price: decimal.NewFromInt(150), Stock: 10},
	}}
}

func TestService_AddItem(t *testing.T) {
	ctx := context.Background()

	t.Run("new item", func(t *testing.T) {
		repo := &mockCartRepo{}
		svc := NewService(repo, newProducts(), nil)

		require.NoError(t, svc.AddItem(ctx, "u1", "kettle", 2))
		require.Len(t, repo.items, 1)
		assert.Equal(t, 2, repo.items[0].Quantity)
	})

	t.Run("merges with existing line", func(t *testing.T) {
		repo := &mockCartRepo{items: []Item{{ProductID: "mug", Quantity: 4}}}
		svc := NewService(repo, newProducts(), nil)

		require.NoError(t, svc.AddItem(ctx, "u1", "mug", 3))
		require.Len(t, repo.items, 1)
		assert.Equal(t, 7, repo.items[0].Quantity)
	})

	t.Run("merged quantity exceeds stock", func(t *testing.T) {
		repo := &mockCartRepo{items: []Item{{ProductID: "kettle", Quantity: 2}}}
		svc := NewService(repo, newProducts(), nil)

		err := svc.AddItem(ctx, "u1", "kettle", 2)
		var stockErr *product.InsufficientStockError
		require.ErrorAs(t, err, &stockErr)
		assert.Equal(t, "Kettle", stockErr.Name)
		assert.Equal(t, 3, stockErr.Available)
		assert.Equal(t, 4, stockErr.Requested)
		assert.ErrorIs(t, err, product.ErrInsufficientStock)
		assert.Equal(t, 2, repo.items[0].Quantity)
	})

	t.Run("unknown product", func(t *testing.T) {
		svc := NewService(&mockCartRepo{}, newProducts(), nil)
		require.ErrorIs(t, svc.AddItem(ctx, "u1", "ghost", 1), product.ErrNotFound)
	})

	t.Run("invalid quantity", func(t *testing.T) {
		svc := NewService(&mockCartRepo{}, newProducts(), nil)
		require.ErrorIs(t, svc.AddItem(ctx, "u1", "mug", 0), ErrInvalidQuantity)
	})

	t.Run("catalog failure", func(t *testing.T) {
		dbErr := errors.New("connection reset")
		svc := NewService(&mockCartRepo{}, &mockProducts{err: dbErr}, nil)
		require.ErrorIs(t, svc.AddItem(ctx, "u1", "mug", 1), dbErr)
	})
}

func TestService_SetQuantity(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		product string
		qty     int
		wantErr error
	}{
		{name: "within stock", product: "mug", qty: 10},
		{name: "above stock", product: "mug", qty: 11, wantErr: product.ErrInsufficientStock},
		{name: "zero", product: "mug", qty: 0, wantErr: ErrInvalidQuantity},
		{name: "not in cart", product: "kettle", qty: 1, wantErr: ErrItemNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &mockCartRepo{items: []Item{{ProductID: "mug", Quantity: 1}}}
			svc := NewService(repo, newProducts(), nil)

			err := svc.SetQuantity(ctx, "u1", tt.product, tt.qty)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.qty, repo.items[0].Quantity)
		})
	}
}

func TestService_Get(t *testing.T) {
	repo := &mockCartRepo{items: []Item{
		{ProductID: "kettle", Quantity: 1},
		{ProductID: "discontinued", Quantity: 5},
		{ProductID: "mug", Quantity: 2},
	}}
	svc := NewService(repo, newProducts(), nil)

	lines, err := svc.Get(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, lines, 2)
	assert.Equal(t, "Kettle", lines[0].Product.Name)
	assert.Equal(t, "Mug", lines[1].Product.Name)
	assert.Equal(t, 2, lines[1].Quantity)
}

func TestService_RemoveAndClear(t *testing.T) {
	ctx := context.Background()
	repo := &mockCartRepo{items: []Item{
		{ProductID: "kettle", Quantity: 1},
		{ProductID: "mug", Quantity: 2},
	}}
	svc := NewService(repo, newProducts(), nil)

	require.NoError(t, svc.RemoveItem(ctx, "u1", "kettle"))
	require.Len(t, repo.items, 1)
	assert.Equal(t, "mug", repo.items[0].ProductID)

	require.NoError(t, svc.RemoveItem(ctx, "u1", "absent"))

	require.NoError(t, svc.Clear(ctx, "u1"))
	assert.Empty(t, repo.items)
}

type failingLocker struct{ err error }

func (l failingLocker) Lock(context.Context, string) (func(), error) { return nil, l.err }

func TestService_MutationsWaitForCheckout(t *testing.T) {
	ctx := context.Background()
	locks := lock.NewKeyedMutex()

	for name, mutate := range map[string]func(*Service) error{
		"AddItem":     func(s *Service) error { return s.AddItem(ctx, "u1", "mug", 1) },
		"SetQuantity": func(s *Service) error { return s.SetQuantity(ctx, "u1", "mug", 2) },
		"RemoveItem":  func(s *Service) error { return s.RemoveItem(ctx, "u1", "mug") },
		"Clear":       func(s *Service) error { return s.Clear(ctx, "u1") },
	} {
		t.Run(name, func(t *testing.T) {
			repo := &mockCartRepo{items: []Item{{ProductID: "mug", Quantity: 1}}}
			svc := NewService(repo, newProducts(), locks)

			// Checkout holds the user's lock while it reads and clears the cart.
			unlock, err := locks.Lock(ctx, LockKey("u1"))
			require.NoError(t, err)

			done := make(chan error, 1)
			go func() { done <- mutate(svc) }()

			select {
			case <-done:
				t.Fatal("cart mutated while checkout held the lock")
			case <-time.After(50 * time.Millisecond):
			}
			assert.Equal(t, []Item{{ProductID: "mug", Quantity: 1}}, repo.items)

			unlock()
			select {
			case err := <-done:
				require.NoError(t, err)
			case <-time.After(time.Second):
				t.Fatal("mutation did not resume after checkout")
			}
		})
	}
}

func TestService_OtherUsersNotBlocked(t *testing.T) {
	ctx := context.Background()
	locks := lock.NewKeyedMutex()
	svc := NewService(&mockCartRepo{}, newProducts(), locks)

	unlock, err := locks.Lock(ctx, LockKey("u1"))
	require.NoError(t, err)
	defer unlock()

	require.NoError(t, svc.AddItem(ctx, "u2", "mug", 1))
}

func TestService_LockFailure(t *testing.T) {
	lockErr := errors.New("redis unavailable")
	repo := &mockCartRepo{}
	svc := NewService(repo, newProducts(), failingLocker{err: lockErr})

	require.ErrorIs(t, svc.AddItem(context.Background(), "u1", "mug", 1), lockErr)
	assert.Empty(t, repo.items)
}
