package mongodb

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/shopprime/storefront/internal/domain/wishlist"
)

// wishlistDoc holds one user's wishlist; items keep insertion order.
type wishlistDoc struct {
	UserID    string            `bson:"_id"`
	Items     []wishlistItemDoc `bson:"items"`
	UpdatedAt time.Time         `bson:"updatedAt"`
}

type wishlistItemDoc struct {
	ProductID string    `bson:"productId"`
	AddedAt   time.Time `bson:"addedAt"`
}

var _ wishlist.Repository = (*WishlistRepository)(nil)

// WishlistRepository implements wishlist.Repository backed by MongoDB.
type WishlistRepository struct {
	coll *mongo.Collection
}

// NewWishlistRepository returns a WishlistRepository on db.
func NewWishlistRepository(db *mongo.Database) *WishlistRepository {
	return &WishlistRepository{coll: db.Collection(wishlistsCollection)}
}

func (r *WishlistRepository) Get(ctx context.Context, userID string) ([]wishlist.Item, error) {
	var doc wishlistDoc
	if err := r.coll.FindOne(ctx, bson.M{"_id": userID}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return []wishlist.Item{}, nil
		}
		return nil, errors.Wrapf(err, "find wishlist of %q", userID)
	}

	items := make([]wishlist.Item, 0, len(doc.Items))
	for _, it := range doc.Items {
		items = append(items, wishlist.Item{ProductID: it.ProductID, AddedAt: it.AddedAt})
	}
	return items, nil
}

// Add pushes the product unless the wishlist already holds it. When it
// does, the upsert collides with the existing document and the duplicate
// key error means there is nothing to do.
func (r *WishlistRepository) Add(ctx context.Context, userID, productID string) error {
	now := time.Now().UTC()
	_, err := r.coll.UpdateOne(ctx,
		bson.M{"_id": userID, "items.productId": bson.M{"$ne": productID}},
		bson.M{
			"$push": bson.M{"items": wishlistItemDoc{ProductID: productID, AddedAt: now}},
			"$set":  bson.M{"updatedAt": now},
		},
		options.Update().SetUpsert(true),
	)
	if err != nil && !mongo.IsDuplicateKeyError(err) {
		return errors.Wrapf(err, "push %q to wishlist of %q", productID, userID)
	}
	return nil
}

func (r *WishlistRepository) Remove(ctx context.Context, userID, productID string) error {
	_, err := r.coll.UpdateOne(ctx,
		bson.M{"_id": userID},
		bson.M{
			"$pull": bson.M{"items": bson.M{"productId": productID}},
			"$set":  bson.M{"updatedAt": time.Now().UTC()},
		},
	)
	if err != nil {
		return errors.Wrapf(err, "remove %q from wishlist of %q", productID, userID)
	}
	return nil
}
