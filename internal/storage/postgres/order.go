package postgres

import (
	"context"
	"encoding/json"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shopprime/storefront/internal/domain/order"
)

const (
	orderColumns = `id, user_id, lines, shipping_address, subtotal, discount, delivery_charge, total,
		payment_status, order_status, COALESCE(coupon_code, ''), payment_ref, created_at, updated_at`

	createOrderSQL = `INSERT INTO orders (id, user_id, lines, shipping_address, subtotal, discount,
			delivery_charge, total, payment_status, order_status, coupon_code, payment_ref, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NULLIF($11, ''), $12, $13, $14)`

	getOrderByIDSQL = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	listOrdersByUserSQL = `SELECT ` + orderColumns + ` FROM orders
		WHERE user_id = $1 ORDER BY created_at DESC, id`

	listOrdersSQL = `SELECT ` + orderColumns + ` FROM orders
		WHERE ($1 = '' OR order_status = $1) ORDER BY created_at DESC, id`

	updateOrderStatusSQL = `UPDATE orders SET order_status = $2, updated_at = now()
		WHERE id = $1 RETURNING ` + orderColumns

	updatePaymentStatusSQL = `UPDATE orders SET payment_status = $2, updated_at = now()
		WHERE id = $1 RETURNING ` + orderColumns
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL. Lines
// and the shipping address are stored as JSONB.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Create persists a new order.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	linesJSON, err := json.Marshal(o.Lines)
	if err != nil {
		return errors.Wrap(err, "marshal order lines")
	}
	addressJSON, err := json.Marshal(o.ShippingAddress)
	if err != nil {
		return errors.Wrap(err, "marshal shipping address")
	}

	_, err = conn(ctx, r.pool).Exec(ctx, createOrderSQL,
		o.ID, o.UserID, linesJSON, addressJSON,
		o.Subtotal, o.Discount, o.DeliveryCharge, o.Total,
		string(o.PaymentStatus), string(o.Status), o.CouponCode, o.PaymentRef,
		o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		return errors.Wrapf(err, "create order %q", o.ID)
	}
	return nil
}

func (r *OrderRepository) FindByID(ctx context.Context, id string) (*order.Order, error) {
	return r.one(ctx, getOrderByIDSQL, id)
}

func (r *OrderRepository) FindByUser(ctx context.Context, userID string) ([]order.Order, error) {
	return r.many(ctx, listOrdersByUserSQL, userID)
}

func (r *OrderRepository) List(ctx context.Context, status order.Status) ([]order.Order, error) {
	return r.many(ctx, listOrdersSQL, string(status))
}

func (r *OrderRepository) UpdateStatus(ctx context.Context, id string, status order.Status) (*order.Order, error) {
	return r.one(ctx, updateOrderStatusSQL, id, string(status))
}

func (r *OrderRepository) UpdatePaymentStatus(ctx context.Context, id string, status order.PaymentStatus) (*order.Order, error) {
	return r.one(ctx, updatePaymentStatusSQL, id, string(status))
}

func (r *OrderRepository) one(ctx context.Context, sql, id string, args ...any) (*order.Order, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, sql, append([]any{id}, args...)...)
	if err != nil {
		return nil, errors.Wrapf(err, "query order %q", id)
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, errors.Wrapf(err, "query order %q", id)
	}
	return &o, nil
}

func (r *OrderRepository) many(ctx context.Context, sql string, args ...any) ([]order.Order, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, sql, args...)
	if err != nil {
		return nil, errors.Wrap(err, "query orders")
	}
	orders, err := pgx.CollectRows(rows, scanOrder)
	if err != nil {
		return nil, errors.Wrap(err, "query orders")
	}
	return orders, nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o             order.Order
		linesJSON     []byte
		addressJSON   []byte
		paymentStatus string
		status        string
	)
	if err := row.Scan(
		&o.ID, &o.UserID, &linesJSON, &addressJSON,
		&o.Subtotal, &o.Discount, &o.DeliveryCharge, &o.Total,
		&paymentStatus, &status, &o.CouponCode, &o.PaymentRef,
		&o.CreatedAt, &o.UpdatedAt,
	); err != nil {
		return o, err
	}
	if err := json.Unmarshal(linesJSON, &o.Lines); err != nil {
		return o, errors.Wrap(err, "unmarshal order lines")
	}
	if err := json.Unmarshal(addressJSON, &o.ShippingAddress); err != nil {
		return o, errors.Wrap(err, "unmarshal shipping address")
	}
	o.PaymentStatus = order.PaymentStatus(paymentStatus)
	o.Status = order.Status(status)
	return o, nil
}
