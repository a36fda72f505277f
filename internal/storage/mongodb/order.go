package mongodb

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/shopprime/storefront/internal/domain/order"
)

type orderDoc struct {
	ID              string               `bson:"_id"`
	UserID          string               `bson:"userId"`
	Lines           []lineDoc            `bson:"lines"`
	ShippingAddress addressDoc           `bson:"shippingAddress"`
	Subtotal        primitive.Decimal128 `bson:"subtotal"`
	Discount        primitive.Decimal128 `bson:"discount"`
	DeliveryCharge  primitive.Decimal128 `bson:"deliveryCharge"`
	Total           primitive.Decimal128 `bson:"total"`
	PaymentStatus   string               `bson:"paymentStatus"`
	Status          string               `bson:"orderStatus"`
	CouponCode      string               `bson:"couponCode,omitempty"`
	PaymentRef      string               `bson:"paymentRef"`
	CreatedAt       time.Time            `bson:"createdAt"`
	UpdatedAt       time.Time            `bson:"updatedAt"`
}

type lineDoc struct {
	ProductID string               `bson:"productId"`
	Name      string               `bson:"name"`
	Quantity  int                  `bson:"quantity"`
	UnitPrice primitive.Decimal128 `bson:"unitPrice"`
}

type addressDoc struct {
	Label   string `bson:"label,omitempty"`
	Line1   string `bson:"line1"`
	Line2   string `bson:"line2,omitempty"`
	City    string `bson:"city"`
	State   string `bson:"state"`
	Pincode string `bson:"pincode"`
	Country string `bson:"country"`
}

func newOrderDoc(o *order.Order) (orderDoc, error) {
	var c decimalCodec
	doc := orderDoc{
		ID:              o.ID,
		UserID:          o.UserID,
		Lines:           make([]lineDoc, 0, len(o.Lines)),
		ShippingAddress: addressDoc(o.ShippingAddress),
		Subtotal:        c.encode(o.Subtotal),
		Discount:        c.encode(o.Discount),
		DeliveryCharge:  c.encode(o.DeliveryCharge),
		Total:           c.encode(o.Total),
		PaymentStatus:   string(o.PaymentStatus),
		Status:          string(o.Status),
		CouponCode:      o.CouponCode,
		PaymentRef:      o.PaymentRef,
		CreatedAt:       o.CreatedAt,
		UpdatedAt:       o.UpdatedAt,
	}
	for _, l := range o.Lines {
		doc.Lines = append(doc.Lines, lineDoc{
			ProductID: l.ProductID,
			Name:      l.Name,
			Quantity:  l.Quantity,
			UnitPrice: c.encode(l.UnitPrice),
		})
	}
	return doc, c.err
}

func (d *orderDoc) toDomain() (order.Order, error) {
	var c decimalCodec
	o := order.Order{
		ID:              d.ID,
		UserID:          d.UserID,
		Lines:           make([]order.Line, 0, len(d.Lines)),
		ShippingAddress: order.Address(d.ShippingAddress),
		Subtotal:        c.decode(d.Subtotal),
		Discount:        c.decode(d.Discount),
		DeliveryCharge:  c.decode(d.DeliveryCharge),
		Total:           c.decode(d.Total),
		PaymentStatus:   order.PaymentStatus(d.PaymentStatus),
		Status:          order.Status(d.Status),
		CouponCode:      d.CouponCode,
		PaymentRef:      d.PaymentRef,
		CreatedAt:       d.CreatedAt,
		UpdatedAt:       d.UpdatedAt,
	}
	for _, l := range d.Lines {
		o.Lines = append(o.Lines, order.Line{
			ProductID: l.ProductID,
			Name:      l.Name,
			Quantity:  l.Quantity,
			UnitPrice: c.decode(l.UnitPrice),
		})
	}
	return o, c.err
}

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by MongoDB.
type OrderRepository struct {
	coll *mongo.Collection
}

// NewOrderRepository returns an OrderRepository on db.
func NewOrderRepository(db *mongo.Database) *OrderRepository {
	return &OrderRepository{coll: db.Collection(ordersCollection)}
}

func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	doc, err := newOrderDoc(o)
	if err != nil {
		return errors.Wrapf(err, "encode order %q", o.ID)
	}
	if _, err := r.coll.InsertOne(ctx, doc); err != nil {
		return errors.Wrapf(err, "insert order %q", o.ID)
	}
	return nil
}

func (r *OrderRepository) FindByID(ctx context.Context, id string) (*order.Order, error) {
	var doc orderDoc
	if err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, order.ErrNotFound
		}
		return nil, errors.Wrapf(err, "find order %q", id)
	}
	return decodeOrder(&doc)
}

func (r *OrderRepository) FindByUser(ctx context.Context, userID string) ([]order.Order, error) {
	return r.find(ctx, bson.M{"userId": userID})
}

func (r *OrderRepository) List(ctx context.Context, status order.Status) ([]order.Order, error) {
	filter := bson.M{}
	if status != "" {
		filter["orderStatus"] = string(status)
	}
	return r.find(ctx, filter)
}

func (r *OrderRepository) UpdateStatus(ctx context.Context, id string, status order.Status) (*order.Order, error) {
	return r.set(ctx, id, "orderStatus", string(status))
}

func (r *OrderRepository) UpdatePaymentStatus(ctx context.Context, id string, status order.PaymentStatus) (*order.Order, error) {
	return r.set(ctx, id, "paymentStatus", string(status))
}

func (r *OrderRepository) set(ctx context.Context, id, field, value string) (*order.Order, error) {
	var doc orderDoc
	err := r.coll.FindOneAndUpdate(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{field: value, "updatedAt": time.Now().UTC()}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, order.ErrNotFound
		}
		return nil, errors.Wrapf(err, "update %s of order %q", field, id)
	}
	return decodeOrder(&doc)
}

func (r *OrderRepository) find(ctx context.Context, filter bson.M) ([]order.Order, error) {
	cur, err := r.coll.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}))
	if err != nil {
		return nil, errors.Wrap(err, "find orders")
	}
	var docs []orderDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, errors.Wrap(err, "decode orders")
	}

	orders := make([]order.Order, 0, len(docs))
	for i := range docs {
		o, err := decodeOrder(&docs[i])
		if err != nil {
			return nil, err
		}
		orders = append(orders, *o)
	}
	return orders, nil
}

func decodeOrder(doc *orderDoc) (*order.Order, error) {
	o, err := doc.toDomain()
	if err != nil {
		return nil, errors.Wrapf(err, "order %q", doc.ID)
	}
	return &o, nil
}
