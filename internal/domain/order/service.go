package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/shopprime/storefront/internal/domain/cart"
	"github.com/shopprime/storefront/internal/domain/coupon"
	"github.com/shopprime/storefront/internal/domain/product"
	"github.com/shopprime/storefront/internal/lock"
)

// Transactor runs fn atomically. Implementations pass the transaction to
// repositories through the context given to fn.
type Transactor interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Locker serializes work on a key.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// Publisher is notified about committed orders.
type Publisher interface {
	OrderPlaced(ctx context.Context, o *Order) error
}

// CouponLedger validates and redeems coupon codes.
type CouponLedger interface {
	Validate(ctx context.Context, code string, amount decimal.Decimal) (*coupon.Validation, error)
	Redeem(ctx context.Context, code string) error
	Release(ctx context.Context, code string) error
}

// Carts is the part of cart storage checkout needs.
type Carts interface {
	Get(ctx context.Context, userID string) ([]cart.Item, error)
	Clear(ctx context.Context, userID string) error
}

// Products is the part of the catalog checkout needs.
type Products interface {
	GetByID(ctx context.Context, id string) (*product.Product, error)
	DecrementStock(ctx context.Context, id string, qty int) error
	RestoreStock(ctx context.Context, id string, qty int) error
}

// Deps holds the collaborators of a Service. Tx, Locks and Events are
// optional.
type Deps struct {
	Products Products
	Coupons  CouponLedger
	Carts    Carts
	Orders   Repository
	Tx       Transactor
	Locks    Locker
	Events   Publisher
}

// Config holds checkout pricing and telemetry settings.
type Config struct {
	// FreeDeliveryThreshold is the subtotal above which delivery is free.
	// Defaults to 500 when not set; a set zero makes every order ship free.
	FreeDeliveryThreshold decimal.NullDecimal
	// DeliveryCharge is applied to subtotals at or below the threshold.
	// Defaults to 50 when not set.
	DeliveryCharge decimal.NullDecimal
	DefaultCountry string

	TracerProvider trace.TracerProvider
	MeterProvider  metric.MeterProvider
}

func (c *Config) setDefaults() {
	if !c.FreeDeliveryThreshold.Valid {
		c.FreeDeliveryThreshold = decimal.NewNullDecimal(decimal.NewFromInt(500))
	}
	if !c.DeliveryCharge.Valid {
		c.DeliveryCharge = decimal.NewNullDecimal(decimal.NewFromInt(50))
	}
	if c.DefaultCountry == "" {
		c.DefaultCountry = "India"
	}
	if c.TracerProvider == nil {
		c.TracerProvider = otel.GetTracerProvider()
	}
	if c.MeterProvider == nil {
		c.MeterProvider = otel.GetMeterProvider()
	}
}

// PlaceOrderRequest holds the input for placing an order.
type PlaceOrderRequest struct {
	UserID          string
	ShippingAddress Address
	CouponCode      string
	PaymentRef      string
}

// Service encapsulates checkout and order management.
type Service struct {
	products Products
	coupons  CouponLedger
	carts    Carts
	orders   Repository
	tx       Transactor
	locks    Locker
	events   Publisher

	cfg   Config
	now   func() time.Time
	newID func() string

	tracer trace.Tracer
	placed metric.Int64Counter
	failed metric.Int64Counter
}

// NewService creates an order Service.
func NewService(cfg Config, deps Deps) (*Service, error) {
	cfg.setDefaults()

	s := &Service{
		products: deps.Products,
		coupons:  deps.Coupons,
		carts:    deps.Carts,
		orders:   deps.Orders,
		tx:       deps.Tx,
		locks:    deps.Locks,
		events:   deps.Events,
		cfg:      cfg,
		now:      time.Now,
		newID:    uuid.NewString,
		tracer:   cfg.TracerProvider.Tracer("github.com/shopprime/storefront/internal/domain/order"),
	}
	if s.tx == nil {
		s.tx = directTx{}
	}
	if s.locks == nil {
		s.locks = lock.NewKeyedMutex()
	}
	if s.events == nil {
		s.events = nopPublisher{}
	}

	meter := cfg.MeterProvider.Meter("github.com/shopprime/storefront/internal/domain/order")
	var err error
	if s.placed, err = meter.Int64Counter("orders.placed",
		metric.WithDescription("Orders placed successfully"),
	); err != nil {
		return nil, errors.Wrap(err, "create placed counter")
	}
	if s.failed, err = meter.Int64Counter("orders.failed",
		metric.WithDescription("Checkout attempts that did not produce an order"),
	); err != nil {
		return nil, errors.Wrap(err, "create failed counter")
	}

	return s, nil
}

// PlaceOrder converts the user's cart into an order. Stock and coupon
// consumption either all take effect together with the persisted order or
// none of them do.
func (s *Service) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (*Order, error) {
	ctx, span := s.tracer.Start(ctx, "order.PlaceOrder",
		trace.WithAttributes(attribute.String("user.id", req.UserID)),
	)
	defer span.End()

	o, err := s.placeOrder(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.failed.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", failureReason(err))))
		return nil, err
	}

	span.SetAttributes(
		attribute.String("order.id", o.ID),
		attribute.String("order.total", o.Total.StringFixed(2)),
	)
	s.placed.Add(ctx, 1)
	return o, nil
}

func (s *Service) placeOrder(ctx context.Context, req PlaceOrderRequest) (*Order, error) {
	if req.UserID == "" {
		return nil, &ValidationError{Field: "user", Reason: "is required"}
	}
	addr := req.ShippingAddress.Normalize(s.cfg.DefaultCountry)
	if err := addr.Validate(); err != nil {
		return nil, err
	}

	unlock, err := s.locks.Lock(ctx, cart.LockKey(req.UserID))
	if err != nil {
		return nil, errors.Wrap(err, "acquire checkout lock")
	}
	defer unlock()

	items, err := s.carts.Get(ctx, req.UserID)
	if err != nil {
		return nil, errors.Wrap(err, "get cart")
	}
	if len(items) == 0 {
		return nil, cart.ErrEmpty
	}

	var o *Order
	if err := s.tx.InTx(ctx, func(ctx context.Context) error {
		// Transactors may retry fn, so every attempt starts a fresh log.
		var undo compensator
		created, err := s.assemble(ctx, req, addr, items, &undo)
		if err != nil {
			undo.run(context.WithoutCancel(ctx))
			return err
		}
		o = created
		return nil
	}); err != nil {
		return nil, err
	}

	lg := zctx.From(ctx).With(zap.String("order_id", o.ID), zap.String("user_id", o.UserID))
	lg.Info("Order placed",
		zap.String("total", o.Total.StringFixed(2)),
		zap.Int("lines", len(o.Lines)),
	)

	if err := s.carts.Clear(ctx, req.UserID); err != nil {
		// The order is committed; a stale cart is recoverable by the user.
		lg.Error("Clear cart after checkout", zap.Error(err))
	}
	if err := s.events.OrderPlaced(ctx, o); err != nil {
		lg.Warn("Publish order placed event", zap.Error(err))
	}

	return o, nil
}

// assemble performs steps that must commit together. Every side effect is
// recorded in undo before the next one starts.
func (s *Service) assemble(
	ctx context.Context,
	req PlaceOrderRequest,
	addr Address,
	items []cart.Item,
	undo *compensator,
) (*Order, error) {
	lines := make([]Line, 0, len(items))
	subtotal := decimal.Zero
	for _, it := range items {
		if it.Quantity <= 0 {
			return nil, &ValidationError{Field: "quantity", Reason: "must be greater than 0 for product " + it.ProductID}
		}
		p, err := s.products.GetByID(ctx, it.ProductID)
		if err != nil {
			if errors.Is(err, product.ErrNotFound) {
				return nil, &ProductNotFoundError{ProductID: it.ProductID}
			}
			return nil, errors.Wrapf(err, "get product %s", it.ProductID)
		}
		if p.Stock < it.Quantity {
			return nil, &product.InsufficientStockError{
				ProductID: p.ID,
				Name:      p.Name,
				Available: p.Stock,
				Requested: it.Quantity,
			}
		}

		line := Line{
			ProductID: p.ID,
			Name:      p.Name,
			Quantity:  it.Quantity,
			UnitPrice: p.UnitPrice(),
		}
		lines = append(lines, line)
		subtotal = subtotal.Add(line.Amount())
	}
	subtotal = subtotal.Round(2)

	discount, couponCode, err := s.applyCoupon(ctx, req.CouponCode, subtotal)
	if err != nil {
		return nil, err
	}

	delivery := s.cfg.DeliveryCharge.Decimal
	if subtotal.GreaterThan(s.cfg.FreeDeliveryThreshold.Decimal) {
		delivery = decimal.Zero
	}
	delivery = delivery.Round(2)

	for _, l := range lines {
		if err := s.products.DecrementStock(ctx, l.ProductID, l.Quantity); err != nil {
			if errors.Is(err, product.ErrInsufficientStock) {
				return nil, errors.Wrapf(ErrConflict, "stock of %s changed during checkout", l.Name)
			}
			return nil, errors.Wrapf(err, "decrement stock of %s", l.ProductID)
		}
		undo.add("restore stock "+l.ProductID, func(ctx context.Context) error {
			return s.products.RestoreStock(ctx, l.ProductID, l.Quantity)
		})
	}

	if couponCode != "" {
		if err := s.coupons.Redeem(ctx, couponCode); err != nil {
			if errors.Is(err, coupon.ErrUsageLimitExceeded) {
				return nil, errors.Wrapf(ErrConflict, "coupon %s was used up during checkout", couponCode)
			}
			return nil, errors.Wrap(err, "redeem coupon")
		}
		undo.add("release coupon "+couponCode, func(ctx context.Context) error {
			return s.coupons.Release(ctx, couponCode)
		})
	}

	now := s.now().UTC()
	o := &Order{
		ID:              s.newID(),
		UserID:          req.UserID,
		Lines:           lines,
		ShippingAddress: addr,
		Subtotal:        subtotal,
		Discount:        discount,
		DeliveryCharge:  delivery,
		Total:           subtotal.Sub(discount).Add(delivery),
		PaymentStatus:   PaymentPaid,
		Status:          StatusPlaced,
		CouponCode:      couponCode,
		PaymentRef:      req.PaymentRef,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.orders.Create(ctx, o); err != nil {
		return nil, errors.Wrap(err, "create order")
	}
	return o, nil
}

// applyCoupon returns the discount and the normalized code to redeem. A
// coupon that fails validation yields no discount rather than an error.
func (s *Service) applyCoupon(ctx context.Context, code string, subtotal decimal.Decimal) (decimal.Decimal, string, error) {
	if coupon.NormalizeCode(code) == "" {
		return decimal.Zero, "", nil
	}

	v, err := s.coupons.Validate(ctx, code, subtotal)
	if err != nil {
		if errors.Is(err, coupon.ErrInvalidCoupon) {
			zctx.From(ctx).Info("Coupon not applied",
				zap.String("coupon", code),
				zap.String("reason", err.Error()),
			)
			return decimal.Zero, "", nil
		}
		return decimal.Zero, "", errors.Wrap(err, "validate coupon")
	}

	return decimal.Min(v.Discount, subtotal).Round(2), v.Coupon.Code, nil
}

// GetForUser returns the order when it belongs to userID.
func (s *Service) GetForUser(ctx context.Context, userID, id string) (*Order, error) {
	o, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if o.UserID != userID {
		return nil, ErrNotFound
	}
	return o, nil
}

// Get returns any order by id.
func (s *Service) Get(ctx context.Context, id string) (*Order, error) {
	o, err := s.orders.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, errors.Wrap(err, "find order")
	}
	return o, nil
}

// ListForUser returns the user's orders, newest first.
func (s *Service) ListForUser(ctx context.Context, userID string) ([]Order, error) {
	orders, err := s.orders.FindByUser(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "find user orders")
	}
	return orders, nil
}

// List returns every order, optionally filtered by status.
func (s *Service) List(ctx context.Context, status Status) ([]Order, error) {
	if status != "" && !status.Valid() {
		return nil, &ValidationError{Field: "status", Reason: "is not a valid order status"}
	}
	orders, err := s.orders.List(ctx, status)
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	return orders, nil
}

// UpdateStatus sets the fulfilment status of an order.
func (s *Service) UpdateStatus(ctx context.Context, id string, status Status) (*Order, error) {
	if !status.Valid() {
		return nil, &ValidationError{Field: "orderStatus", Reason: "is not a valid order status"}
	}
	o, err := s.orders.UpdateStatus(ctx, id, status)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, errors.Wrap(err, "update order status")
	}
	zctx.From(ctx).Info("Order status updated",
		zap.String("order_id", id),
		zap.String("status", string(status)),
	)
	return o, nil
}

// UpdatePaymentStatus sets the payment status of an order.
func (s *Service) UpdatePaymentStatus(ctx context.Context, id string, status PaymentStatus) (*Order, error) {
	if !status.Valid() {
		return nil, &ValidationError{Field: "paymentStatus", Reason: "is not a valid payment status"}
	}
	o, err := s.orders.UpdatePaymentStatus(ctx, id, status)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, errors.Wrap(err, "update payment status")
	}
	zctx.From(ctx).Info("Payment status updated",
		zap.String("order_id", id),
		zap.String("status", string(status)),
	)
	return o, nil
}

func failureReason(err error) string {
	var (
		validation *ValidationError
		missing    *ProductNotFoundError
	)
	switch {
	case errors.Is(err, cart.ErrEmpty):
		return "empty_cart"
	case errors.Is(err, product.ErrInsufficientStock):
		return "insufficient_stock"
	case errors.As(err, &missing):
		return "product_not_found"
	case errors.As(err, &validation):
		return "validation"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return "timeout"
	default:
		return "internal"
	}
}

type directTx struct{}

func (directTx) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type nopPublisher struct{}

func (nopPublisher) OrderPlaced(context.Context, *Order) error { return nil }
