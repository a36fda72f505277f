package order

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Status is the fulfilment state of an order.
type Status string

const (
	StatusPlaced         Status = "placed"
	StatusConfirmed      Status = "confirmed"
	StatusShipped        Status = "shipped"
	StatusOutForDelivery Status = "out_for_delivery"
	StatusDelivered      Status = "delivered"
	StatusCancelled      Status = "cancelled"
)

// Valid reports whether s is a known order status.
func (s Status) Valid() bool {
	switch s {
	case StatusPlaced, StatusConfirmed, StatusShipped, StatusOutForDelivery, StatusDelivered, StatusCancelled:
		return true
	}
	return false
}

// PaymentStatus is the payment state of an order.
type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentPaid    PaymentStatus = "paid"
	PaymentFailed  PaymentStatus = "failed"
)

// Valid reports whether s is a known payment status.
func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentPending, PaymentPaid, PaymentFailed:
		return true
	}
	return false
}

// Order is an immutable record of a checkout. Only Status, PaymentStatus
// and UpdatedAt change after creation.
type Order struct {
	ID              string
	UserID          string
	Lines           []Line
	ShippingAddress Address
	Subtotal        decimal.Decimal
	Discount        decimal.Decimal
	DeliveryCharge  decimal.Decimal
	Total           decimal.Decimal
	PaymentStatus   PaymentStatus
	Status          Status
	CouponCode      string
	PaymentRef      string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Line is a product snapshot taken when the order was placed.
type Line struct {
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// Amount returns UnitPrice * Quantity.
func (l Line) Amount() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Address is where an order ships to.
type Address struct {
	Label   string `json:"label,omitempty"`
	Line1   string `json:"line1"`
	Line2   string `json:"line2,omitempty"`
	City    string `json:"city"`
	State   string `json:"state"`
	Pincode string `json:"pincode"`
	Country string `json:"country"`
}

// Normalize trims every field and fills Country with defaultCountry when
// empty.
func (a Address) Normalize(defaultCountry string) Address {
	a.Label = strings.TrimSpace(a.Label)
	a.Line1 = strings.TrimSpace(a.Line1)
	a.Line2 = strings.TrimSpace(a.Line2)
	a.City = strings.TrimSpace(a.City)
	a.State = strings.TrimSpace(a.State)
	a.Pincode = strings.TrimSpace(a.Pincode)
	a.Country = strings.TrimSpace(a.Country)
	if a.Country == "" {
		a.Country = defaultCountry
	}
	return a
}

// Validate returns a *ValidationError for the first missing required field.
func (a Address) Validate() error {
	for _, f := range []struct {
		name  string
		value string
	}{
		{"shippingAddress.line1", a.Line1},
		{"shippingAddress.city", a.City},
		{"shippingAddress.state", a.State},
		{"shippingAddress.pincode", a.Pincode},
	} {
		if f.value == "" {
			return &ValidationError{Field: f.name, Reason: "is required"}
		}
	}
	return nil
}

// Repository defines persistence operations for orders.
type Repository interface {
	Create(ctx context.Context, o *Order) error
	// FindByID returns ErrNotFound when the order does not exist.
	FindByID(ctx context.Context, id string) (*Order, error)
	// FindByUser returns the user's orders, newest first.
	FindByUser(ctx context.Context, userID string) ([]Order, error)
	// List returns all orders, newest first. An empty status matches any.
	List(ctx context.Context, status Status) ([]Order, error)
	UpdateStatus(ctx context.Context, id string, status Status) (*Order, error)
	UpdatePaymentStatus(ctx context.Context, id string, status PaymentStatus) (*Order, error)
}
