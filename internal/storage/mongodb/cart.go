package mongodb

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/shopprime/storefront/internal/domain/cart"
)

// cartDoc holds one user's cart; items keep insertion order.
type cartDoc struct {
	UserID    string        `bson:"_id"`
	Items     []cartItemDoc `bson:"items"`
	UpdatedAt time.Time     `bson:"updatedAt"`
}

type cartItemDoc struct {
	ProductID string    `bson:"productId"`
	Quantity  int       `bson:"quantity"`
	AddedAt   time.Time `bson:"addedAt"`
}

var _ cart.Repository = (*CartRepository)(nil)

// CartRepository implements cart.Repository backed by MongoDB.
type CartRepository struct {
	coll *mongo.Collection
}

// NewCartRepository returns a CartRepository on db.
func NewCartRepository(db *mongo.Database) *CartRepository {
	return &CartRepository{coll: db.Collection(cartsCollection)}
}

func (r *CartRepository) Get(ctx context.Context, userID string) ([]cart.Item, error) {
	var doc cartDoc
	if err := r.coll.FindOne(ctx, bson.M{"_id": userID}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return []cart.Item{}, nil
		}
		return nil, errors.Wrapf(err, "find cart of %q", userID)
	}

	items := make([]cart.Item, 0, len(doc.Items))
	for _, it := range doc.Items {
		items = append(items, cart.Item{
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			AddedAt:   it.AddedAt,
		})
	}
	return items, nil
}

// AddItem increments an existing line, or appends a new one when the
// product is not in the cart yet.
func (r *CartRepository) AddItem(ctx context.Context, userID, productID string, qty int) error {
	now := time.Now().UTC()

	res, err := r.coll.UpdateOne(ctx,
		bson.M{"_id": userID, "items.productId": productID},
		bson.M{
			"$inc": bson.M{"items.$.quantity": qty},
			"$set": bson.M{"updatedAt": now},
		},
	)
	if err != nil {
		return errors.Wrapf(err, "increment %q in cart of %q", productID, userID)
	}
	if res.MatchedCount == 1 {
		return nil
	}

	_, err = r.coll.UpdateOne(ctx,
		bson.M{"_id": userID, "items.productId": bson.M{"$ne": productID}},
		bson.M{
			"$push": bson.M{"items": cartItemDoc{ProductID: productID, Quantity: qty, AddedAt: now}},
			"$set":  bson.M{"updatedAt": now},
		},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return errors.Wrapf(err, "push %q to cart of %q", productID, userID)
	}
	return nil
}

func (r *CartRepository) SetQuantity(ctx context.Context, userID, productID string, qty int) error {
	res, err := r.coll.UpdateOne(ctx,
		bson.M{"_id": userID, "items.productId": productID},
		bson.M{"$set": bson.M{"items.$.quantity": qty, "updatedAt": time.Now().UTC()}},
	)
	if err != nil {
		return errors.Wrapf(err, "set quantity of %q in cart of %q", productID, userID)
	}
	if res.MatchedCount == 0 {
		return cart.ErrItemNotFound
	}
	return nil
}

func (r *CartRepository) RemoveItem(ctx context.Context, userID, productID string) error {
	_, err := r.coll.UpdateOne(ctx,
		bson.M{"_id": userID},
		bson.M{
			"$pull": bson.M{"items": bson.M{"productId": productID}},
			"$set":  bson.M{"updatedAt": time.Now().UTC()},
		},
	)
	if err != nil {
		return errors.Wrapf(err, "remove %q from cart of %q", productID, userID)
	}
	return nil
}

func (r *CartRepository) Clear(ctx context.Context, userID string) error {
	if _, err := r.coll.DeleteOne(ctx, bson.M{"_id": userID}); err != nil {
		return errors.Wrapf(err, "clear cart of %q", userID)
	}
	return nil
}
