// Package events publishes order lifecycle events to Kafka.
package events

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/shopprime/storefront/internal/domain/order"
)

// TypeOrderPlaced is the value of the "event" header on order placed
// messages.
const TypeOrderPlaced = "order.placed"

// Writer is the subset of *kafka.Writer used by Publisher.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

var _ order.Publisher = (*Publisher)(nil)

// Publisher writes order events keyed by user id, so events of one user
// land on one partition in order.
type Publisher struct {
	w Writer
}

// NewPublisher returns a Publisher on w.
func NewPublisher(w Writer) *Publisher {
	return &Publisher{w: w}
}

// NewWriter returns a kafka writer for topic that hashes keys to partitions.
func NewWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		BatchTimeout:           10 * time.Millisecond,
		AllowAutoTopicCreation: true,
	}
}

// OrderPlaced publishes o as an order.placed event.
func (p *Publisher) OrderPlaced(ctx context.Context, o *order.Order) error {
	msg := kafka.Message{
		Key:   []byte(o.UserID),
		Value: EncodeOrderPlaced(o),
		Headers: []kafka.Header{
			{Key: "event", Value: []byte(TypeOrderPlaced)},
		},
	}
	if err := p.w.WriteMessages(ctx, msg); err != nil {
		return errors.Wrapf(err, "write %s for order %q", TypeOrderPlaced, o.ID)
	}
	zctx.From(ctx).Debug("Published event",
		zap.String("event", TypeOrderPlaced),
		zap.String("order_id", o.ID),
	)
	return nil
}

// Close flushes pending messages.
func (p *Publisher) Close() error {
	return p.w.Close()
}

// EncodeOrderPlaced renders the event payload. Money is encoded as strings
// with two decimal places.
func EncodeOrderPlaced(o *order.Order) []byte {
	var e jx.Encoder
	e.Obj(func(e *jx.Encoder) {
		e.Field("event", func(e *jx.Encoder) { e.Str(TypeOrderPlaced) })
		e.Field("order_id", func(e *jx.Encoder) { e.Str(o.ID) })
		e.Field("user_id", func(e *jx.Encoder) { e.Str(o.UserID) })
		e.Field("lines", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, l := range o.Lines {
					e.Obj(func(e *jx.Encoder) {
						e.Field("product_id", func(e *jx.Encoder) { e.Str(l.ProductID) })
						e.Field("name", func(e *jx.Encoder) { e.Str(l.Name) })
						e.Field("quantity", func(e *jx.Encoder) { e.Int(l.Quantity) })
						e.Field("unit_price", func(e *jx.Encoder) { e.Str(l.UnitPrice.StringFixed(2)) })
					})
				}
			})
		})
		e.Field("subtotal", func(e *jx.Encoder) { e.Str(o.Subtotal.StringFixed(2)) })
		e.Field("discount", func(e *jx.Encoder) { e.Str(o.Discount.StringFixed(2)) })
		e.Field("delivery_charge", func(e *jx.Encoder) { e.Str(o.DeliveryCharge.StringFixed(2)) })
		e.Field("total", func(e *jx.Encoder) { e.Str(o.Total.StringFixed(2)) })
		if o.CouponCode != "" {
			e.Field("coupon_code", func(e *jx.Encoder) { e.Str(o.CouponCode) })
		}
		e.Field("created_at", func(e *jx.Encoder) { e.Str(o.CreatedAt.UTC().Format(time.RFC3339)) })
	})
	return e.Bytes()
}
