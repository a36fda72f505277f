package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shopprime/storefront/internal/domain/order"
)

type mockWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *mockWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *mockWriter) Close() error {
	w.closed = true
	return nil
}

func testOrder() *order.Order {
	return &order.Order{
		ID:     "ord-1",
		UserID: "user-7",
		Lines: []order.Line{
			{ProductID: "p1", Name: "Mug \"XL\"", Quantity: 2, UnitPrice: decimal.RequireFromString("249.5")},
		},
		Subtotal:       decimal.RequireFromString("499"),
		Discount:       decimal.Zero,
		DeliveryCharge: decimal.NewFromInt(50),
		Total:          decimal.RequireFromString("549"),
		CreatedAt:      time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestEncodeOrderPlaced(t *testing.T) {
	var got struct {
		Event    string `json:"event"`
		OrderID  string `json:"order_id"`
		UserID   string `json:"user_id"`
		Subtotal string `json:"subtotal"`
		Discount string `json:"discount"`
		Delivery string `json:"delivery_charge"`
		Total    string `json:"total"`
		Coupon   string `json:"coupon_code"`
		Created  string `json:"created_at"`
		Lines    []struct {
			ProductID string `json:"product_id"`
			Name      string `json:"name"`
			Quantity  int    `json:"quantity"`
			UnitPrice string `json:"unit_price"`
		} `json:"lines"`
	}
	require.NoError(t, json.Unmarshal(EncodeOrderPlaced(testOrder()), &got))

	assert.Equal(t, TypeOrderPlaced, got.Event)
	assert.Equal(t, "ord-1", got.OrderID)
	assert.Equal(t, "499.00", got.Subtotal)
	assert.Equal(t, "0.00", got.Discount)
	assert.Equal(t, "50.00", got.Delivery)
	assert.Equal(t, "549.00", got.Total)
	assert.Empty(t, got.Coupon)
	assert.Equal(t, "2026-05-01T12:00:00Z", got.Created)
	require.Len(t, got.Lines, 1)
	assert.Equal(t, "Mug \"XL\"", got.Lines[0].Name)
	assert.Equal(t, "249.50", got.Lines[0].UnitPrice)
}

func TestPublisher_OrderPlaced(t *testing.T) {
	w := &mockWriter{}
	p := NewPublisher(w)

	require.NoError(t, p.OrderPlaced(context.Background(), testOrder()))
	require.Len(t, w.msgs, 1)
	assert.Equal(t, "user-7", string(w.msgs[0].Key))
	require.Len(t, w.msgs[0].Headers, 1)
	assert.Equal(t, TypeOrderPlaced, string(w.msgs[0].Headers[0].Value))

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestPublisher_WriteError(t *testing.T) {
	boom := errors.New("broker down")
	p := NewPublisher(&mockWriter{err: boom})

	err := p.OrderPlaced(context.Background(), testOrder())
	require.ErrorIs(t, err, boom)
}
