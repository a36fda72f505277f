// Package mongodb implements the storefront repositories on MongoDB.
//
// Checkout atomicity relies on multi-document transactions, so the server
// must run as a replica set.
package mongodb

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const (
	productsCollection  = "products"
	couponsCollection   = "coupons"
	cartsCollection     = "carts"
	ordersCollection    = "orders"
	apiKeysCollection   = "api_keys"
	reviewsCollection   = "reviews"
	wishlistsCollection = "wishlists"
)

// Connect opens a client and verifies the primary is reachable.
func Connect(ctx context.Context, uri string) (*mongo.Client, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, errors.Wrap(err, "connect")
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.WithoutCancel(ctx))
		return nil, errors.Wrap(err, "ping")
	}
	return client, nil
}

// EnsureIndexes creates the secondary indexes the repositories query by.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	for coll, models := range map[string][]mongo.IndexModel{
		ordersCollection: {
			{
				Keys:    bson.D{{Key: "userId", Value: 1}, {Key: "createdAt", Value: -1}},
				Options: options.Index().SetName("userId_createdAt"),
			},
			{
				Keys:    bson.D{{Key: "orderStatus", Value: 1}},
				Options: options.Index().SetName("orderStatus"),
			},
		},
		apiKeysCollection: {
			{
				Keys:    bson.D{{Key: "keyHash", Value: 1}},
				Options: options.Index().SetName("keyHash_unique").SetUnique(true),
			},
		},
		productsCollection: {
			{
				Keys:    bson.D{{Key: "category", Value: 1}},
				Options: options.Index().SetName("category"),
			},
			{
				Keys:    bson.D{{Key: "price", Value: 1}},
				Options: options.Index().SetName("price"),
			},
		},
		reviewsCollection: {
			{
				Keys:    bson.D{{Key: "productId", Value: 1}, {Key: "userId", Value: 1}},
				Options: options.Index().SetName("productId_userId_unique").SetUnique(true),
			},
			{
				Keys:    bson.D{{Key: "productId", Value: 1}, {Key: "createdAt", Value: -1}},
				Options: options.Index().SetName("productId_createdAt"),
			},
		},
	} {
		if _, err := db.Collection(coll).Indexes().CreateMany(ctx, models); err != nil {
			return errors.Wrapf(err, "create %s indexes", coll)
		}
	}
	return nil
}

// Transactor runs functions inside a MongoDB transaction.
type Transactor struct {
	client *mongo.Client
}

// NewTransactor returns a Transactor that starts sessions on client.
func NewTransactor(client *mongo.Client) *Transactor {
	return &Transactor{client: client}
}

// InTx runs fn in a transaction. The driver retries fn on transient
// transaction errors. Nested calls join the outer session.
func (t *Transactor) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if mongo.SessionFromContext(ctx) != nil {
		return fn(ctx)
	}

	session, err := t.client.StartSession()
	if err != nil {
		return errors.Wrap(err, "start session")
	}
	defer session.EndSession(context.WithoutCancel(ctx))

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (any, error) {
		return nil, fn(sc)
	})
	return err
}

// decimalCodec converts between decimal.Decimal and BSON Decimal128,
// remembering the first encoding failure.
type decimalCodec struct {
	err error
}

func (c *decimalCodec) encode(d decimal.Decimal) primitive.Decimal128 {
	v, err := primitive.ParseDecimal128(d.String())
	if err != nil && c.err == nil {
		c.err = errors.Wrapf(err, "encode decimal %s", d)
	}
	return v
}

func (c *decimalCodec) decode(v primitive.Decimal128) decimal.Decimal {
	d, err := decimal.NewFromString(v.String())
	if err != nil && c.err == nil {
		c.err = errors.Wrapf(err, "decode decimal %s", v)
	}
	return d
}
