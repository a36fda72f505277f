package mongodb

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/shopprime/storefront/internal/domain/review"
)

type reviewDoc struct {
	ID        string    `bson:"_id"`
	ProductID string    `bson:"productId"`
	UserID    string    `bson:"userId"`
	Rating    int       `bson:"rating"`
	Comment   string    `bson:"comment,omitempty"`
	CreatedAt time.Time `bson:"createdAt"`
}

var _ review.Repository = (*ReviewRepository)(nil)

// ReviewRepository implements review.Repository backed by MongoDB. The
// unique (productId, userId) index allows one review per user and product.
type ReviewRepository struct {
	coll *mongo.Collection
}

// NewReviewRepository returns a ReviewRepository on db.
func NewReviewRepository(db *mongo.Database) *ReviewRepository {
	return &ReviewRepository{coll: db.Collection(reviewsCollection)}
}

func (r *ReviewRepository) Add(ctx context.Context, rv *review.Review) error {
	doc := reviewDoc{
		ID:        uuid.NewString(),
		ProductID: rv.ProductID,
		UserID:    rv.UserID,
		Rating:    rv.Rating,
		Comment:   rv.Comment,
		CreatedAt: time.Now().UTC(),
	}
	if _, err := r.coll.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return review.ErrAlreadyReviewed
		}
		return errors.Wrapf(err, "insert review of %q", rv.ProductID)
	}
	rv.CreatedAt = doc.CreatedAt
	return nil
}

// ListByProduct returns the product's reviews, newest first.
func (r *ReviewRepository) ListByProduct(ctx context.Context, productID string) ([]review.Review, error) {
	cur, err := r.coll.Find(ctx,
		bson.M{"productId": productID},
		options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "userId", Value: 1}}),
	)
	if err != nil {
		return nil, errors.Wrapf(err, "find reviews of %q", productID)
	}
	var docs []reviewDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, errors.Wrapf(err, "decode reviews of %q", productID)
	}

	reviews := make([]review.Review, 0, len(docs))
	for _, d := range docs {
		reviews = append(reviews, review.Review{
			ProductID: d.ProductID,
			UserID:    d.UserID,
			Rating:    d.Rating,
			Comment:   d.Comment,
			CreatedAt: d.CreatedAt,
		})
	}
	return reviews, nil
}
