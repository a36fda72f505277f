package mongodb

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/shopprime/storefront/internal/domain/coupon"
)

type couponDoc struct {
	Code          string               `bson:"_id"`
	DiscountType  string               `bson:"discountType"`
	DiscountValue primitive.Decimal128 `bson:"discountValue"`
	MinOrderValue primitive.Decimal128 `bson:"minOrderValue"`
	ExpiresAt     time.Time            `bson:"expiresAt"`
	Active        bool                 `bson:"active"`
	UsageLimit    *int                 `bson:"usageLimit"`
	UsedCount     int                  `bson:"usedCount"`
	CreatedAt     time.Time            `bson:"createdAt"`
}

func (d *couponDoc) toDomain() (coupon.Coupon, error) {
	var c decimalCodec
	out := coupon.Coupon{
		Code:          d.Code,
		DiscountType:  coupon.DiscountType(d.DiscountType),
		DiscountValue: c.decode(d.DiscountValue),
		MinOrderValue: c.decode(d.MinOrderValue),
		ExpiresAt:     d.ExpiresAt,
		Active:        d.Active,
		UsageLimit:    d.UsageLimit,
		UsedCount:     d.UsedCount,
		CreatedAt:     d.CreatedAt,
	}
	return out, c.err
}

var _ coupon.Repository = (*CouponRepository)(nil)

// CouponRepository implements coupon.Repository backed by MongoDB. The
// normalized code is the document id.
type CouponRepository struct {
	coll *mongo.Collection
}

// NewCouponRepository returns a CouponRepository on db.
func NewCouponRepository(db *mongo.Database) *CouponRepository {
	return &CouponRepository{coll: db.Collection(couponsCollection)}
}

func (r *CouponRepository) FindByCode(ctx context.Context, code string) (*coupon.Coupon, error) {
	var doc couponDoc
	if err := r.coll.FindOne(ctx, bson.M{"_id": code}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, coupon.ErrCouponInvalid
		}
		return nil, errors.Wrapf(err, "find coupon %q", code)
	}
	c, err := doc.toDomain()
	if err != nil {
		return nil, errors.Wrapf(err, "coupon %q", code)
	}
	return &c, nil
}

// IncrementUses matches only while a slot is free, so concurrent
// redemptions never push usedCount past usageLimit.
func (r *CouponRepository) IncrementUses(ctx context.Context, code string) error {
	res, err := r.coll.UpdateOne(ctx,
		bson.M{
			"_id": code,
			"$or": bson.A{
				bson.M{"usageLimit": nil},
				bson.M{"$expr": bson.M{"$lt": bson.A{"$usedCount", "$usageLimit"}}},
			},
		},
		bson.M{"$inc": bson.M{"usedCount": 1}},
	)
	if err != nil {
		return errors.Wrapf(err, "increment uses of coupon %q", code)
	}
	if res.MatchedCount == 1 {
		return nil
	}

	n, err := r.coll.CountDocuments(ctx, bson.M{"_id": code})
	if err != nil {
		return errors.Wrapf(err, "check coupon %q", code)
	}
	if n == 0 {
		return coupon.ErrCouponInvalid
	}
	return coupon.ErrUsageLimitExceeded
}

func (r *CouponRepository) DecrementUses(ctx context.Context, code string) error {
	_, err := r.coll.UpdateOne(ctx,
		bson.M{"_id": code, "usedCount": bson.M{"$gt": 0}},
		bson.M{"$inc": bson.M{"usedCount": -1}},
	)
	if err != nil {
		return errors.Wrapf(err, "decrement uses of coupon %q", code)
	}
	return nil
}

// Create inserts the coupon or updates the definition of an existing one,
// keeping its used count.
func (r *CouponRepository) Create(ctx context.Context, c *coupon.Coupon) error {
	var dc decimalCodec
	set := bson.M{
		"discountType":  string(c.DiscountType),
		"discountValue": dc.encode(c.DiscountValue),
		"minOrderValue": dc.encode(c.MinOrderValue),
		"expiresAt":     c.ExpiresAt,
		"active":        c.Active,
		"usageLimit":    c.UsageLimit,
	}
	if dc.err != nil {
		return dc.err
	}

	now := time.Now().UTC()
	var doc couponDoc
	err := r.coll.FindOneAndUpdate(ctx,
		bson.M{"_id": c.Code},
		bson.M{"$set": set, "$setOnInsert": bson.M{"usedCount": 0, "createdAt": now}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&doc)
	if err != nil {
		return errors.Wrapf(err, "upsert coupon %q", c.Code)
	}
	c.UsedCount = doc.UsedCount
	c.CreatedAt = doc.CreatedAt
	return nil
}

func (r *CouponRepository) List(ctx context.Context) ([]coupon.Coupon, error) {
	cur, err := r.coll.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}))
	if err != nil {
		return nil, errors.Wrap(err, "find coupons")
	}
	var docs []couponDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, errors.Wrap(err, "decode coupons")
	}

	coupons := make([]coupon.Coupon, 0, len(docs))
	for i := range docs {
		c, err := docs[i].toDomain()
		if err != nil {
			return nil, errors.Wrapf(err, "coupon %q", docs[i].Code)
		}
		coupons = append(coupons, c)
	}
	return coupons, nil
}

func (r *CouponRepository) Delete(ctx context.Context, code string) error {
	res, err := r.coll.DeleteOne(ctx, bson.M{"_id": code})
	if err != nil {
		return errors.Wrapf(err, "delete coupon %q", code)
	}
	if res.DeletedCount == 0 {
		return coupon.ErrCouponInvalid
	}
	return nil
}
