package mongodb

import (
	"context"
	"regexp"
	"slices"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/shopprime/storefront/internal/domain/product"
)

type productDoc struct {
	ID            string                `bson:"_id"`
	Name          string                `bson:"name"`
	Description   string                `bson:"description"`
	Category      string                `bson:"category"`
	Brand         string                `bson:"brand"`
	Price         primitive.Decimal128  `bson:"price"`
	DiscountPrice *primitive.Decimal128 `bson:"discountPrice"`
	Stock         int                   `bson:"stock"`
	CreatedAt     time.Time             `bson:"createdAt"`
	UpdatedAt     time.Time             `bson:"updatedAt"`
}

func (d *productDoc) toDomain() (product.Product, error) {
	var c decimalCodec
	p := product.Product{
		ID:          d.ID,
		Name:        d.Name,
		Description: d.Description,
		Category:    d.Category,
		Brand:       d.Brand,
		Price:       c.decode(d.Price),
		Stock:       d.Stock,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}
	if d.DiscountPrice != nil {
		p.DiscountPrice = decimal.NewNullDecimal(c.decode(*d.DiscountPrice))
	}
	return p, c.err
}

var _ product.Repository = (*ProductRepository)(nil)

// ProductRepository implements product.Repository backed by MongoDB.
type ProductRepository struct {
	db   *mongo.Database
	coll *mongo.Collection
}

// NewProductRepository returns a ProductRepository on db.
func NewProductRepository(db *mongo.Database) *ProductRepository {
	return &ProductRepository{db: db, coll: db.Collection(productsCollection)}
}

// productFilter translates f into a query document.
func productFilter(f product.Filter) (bson.M, error) {
	q := bson.M{}
	if f.Query != "" {
		q["name"] = primitive.Regex{Pattern: regexp.QuoteMeta(f.Query), Options: "i"}
	}
	if f.Category != "" {
		q["category"] = f.Category
	}

	var c decimalCodec
	price := bson.M{}
	if f.MinPrice.Valid {
		price["$gte"] = c.encode(f.MinPrice.Decimal)
	}
	if f.MaxPrice.Valid {
		price["$lte"] = c.encode(f.MaxPrice.Decimal)
	}
	if len(price) > 0 {
		q["price"] = price
	}
	return q, c.err
}

// List returns the products matching f, newest first.
func (r *ProductRepository) List(ctx context.Context, f product.Filter) ([]product.Product, error) {
	q, err := productFilter(f)
	if err != nil {
		return nil, err
	}
	cur, err := r.coll.Find(ctx, q, options.Find().SetSort(bson.D{
		{Key: "createdAt", Value: -1},
		{Key: "_id", Value: 1},
	}))
	if err != nil {
		return nil, errors.Wrap(err, "find products")
	}
	var docs []productDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, errors.Wrap(err, "decode products")
	}

	products := make([]product.Product, 0, len(docs))
	for i := range docs {
		p, err := docs[i].toDomain()
		if err != nil {
			return nil, errors.Wrapf(err, "product %q", docs[i].ID)
		}
		products = append(products, p)
	}
	return products, nil
}

// Categories returns the distinct non-empty categories, sorted.
func (r *ProductRepository) Categories(ctx context.Context) ([]string, error) {
	values, err := r.coll.Distinct(ctx, "category", bson.M{"category": bson.M{"$ne": ""}})
	if err != nil {
		return nil, errors.Wrap(err, "distinct categories")
	}
	categories := make([]string, 0, len(values))
	for _, v := range values {
		if s, ok := v.(string); ok {
			categories = append(categories, s)
		}
	}
	slices.Sort(categories)
	return categories, nil
}

func (r *ProductRepository) GetByID(ctx context.Context, id string) (*product.Product, error) {
	var doc productDoc
	if err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, product.ErrNotFound
		}
		return nil, errors.Wrapf(err, "find product %q", id)
	}
	p, err := doc.toDomain()
	if err != nil {
		return nil, errors.Wrapf(err, "product %q", id)
	}
	return &p, nil
}

// DecrementStock matches only while stock >= qty, so the $inc can never
// take stock below zero.
func (r *ProductRepository) DecrementStock(ctx context.Context, id string, qty int) error {
	res, err := r.coll.UpdateOne(ctx,
		bson.M{"_id": id, "stock": bson.M{"$gte": qty}},
		bson.M{
			"$inc": bson.M{"stock": -qty},
			"$set": bson.M{"updatedAt": time.Now().UTC()},
		},
	)
	if err != nil {
		return errors.Wrapf(err, "decrement stock of %q", id)
	}
	if res.MatchedCount == 1 {
		return nil
	}

	n, err := r.coll.CountDocuments(ctx, bson.M{"_id": id})
	if err != nil {
		return errors.Wrapf(err, "check product %q", id)
	}
	if n == 0 {
		return product.ErrNotFound
	}
	return product.ErrInsufficientStock
}

func (r *ProductRepository) RestoreStock(ctx context.Context, id string, qty int) error {
	return r.update(ctx, id, bson.M{
		"$inc": bson.M{"stock": qty},
		"$set": bson.M{"updatedAt": time.Now().UTC()},
	})
}

func (r *ProductRepository) SetStock(ctx context.Context, id string, stock int) error {
	return r.update(ctx, id, bson.M{
		"$set": bson.M{"stock": stock, "updatedAt": time.Now().UTC()},
	})
}

func (r *ProductRepository) update(ctx context.Context, id string, update bson.M) error {
	res, err := r.coll.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return errors.Wrapf(err, "update product %q", id)
	}
	if res.MatchedCount == 0 {
		return product.ErrNotFound
	}
	return nil
}

// Create inserts the product, replacing any product with the same id. An
// empty id is filled with a new UUID.
func (r *ProductRepository) Create(ctx context.Context, p *product.Product) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	now := time.Now().UTC()

	set, err := productFields(p, now)
	if err != nil {
		return err
	}
	_, err = r.coll.UpdateOne(ctx,
		bson.M{"_id": p.ID},
		bson.M{"$set": set, "$setOnInsert": bson.M{"createdAt": now}},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return errors.Wrapf(err, "upsert product %q", p.ID)
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	return nil
}

// Update replaces the editable fields of an existing product.
func (r *ProductRepository) Update(ctx context.Context, p *product.Product) error {
	now := time.Now().UTC()
	set, err := productFields(p, now)
	if err != nil {
		return err
	}

	var doc productDoc
	err = r.coll.FindOneAndUpdate(ctx,
		bson.M{"_id": p.ID},
		bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return product.ErrNotFound
		}
		return errors.Wrapf(err, "update product %q", p.ID)
	}
	p.CreatedAt = doc.CreatedAt
	p.UpdatedAt = doc.UpdatedAt
	return nil
}

// Delete removes the product and pulls it from carts and wishlists along
// with its reviews. Orders keep their line snapshots.
func (r *ProductRepository) Delete(ctx context.Context, id string) error {
	res, err := r.coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return errors.Wrapf(err, "delete product %q", id)
	}
	if res.DeletedCount == 0 {
		return product.ErrNotFound
	}

	now := time.Now().UTC()
	if _, err := r.db.Collection(cartsCollection).UpdateMany(ctx,
		bson.M{"items.productId": id},
		bson.M{"$pull": bson.M{"items": bson.M{"productId": id}}, "$set": bson.M{"updatedAt": now}},
	); err != nil {
		return errors.Wrapf(err, "pull %q from carts", id)
	}
	if _, err := r.db.Collection(wishlistsCollection).UpdateMany(ctx,
		bson.M{"items.productId": id},
		bson.M{"$pull": bson.M{"items": bson.M{"productId": id}}, "$set": bson.M{"updatedAt": now}},
	); err != nil {
		return errors.Wrapf(err, "pull %q from wishlists", id)
	}
	if _, err := r.db.Collection(reviewsCollection).DeleteMany(ctx, bson.M{"productId": id}); err != nil {
		return errors.Wrapf(err, "delete reviews of %q", id)
	}
	return nil
}

func productFields(p *product.Product, now time.Time) (bson.M, error) {
	var c decimalCodec
	set := bson.M{
		"name":          p.Name,
		"description":   p.Description,
		"category":      p.Category,
		"brand":         p.Brand,
		"price":         c.encode(p.Price),
		"discountPrice": nil,
		"stock":         p.Stock,
		"updatedAt":     now,
	}
	if p.DiscountPrice.Valid {
		set["discountPrice"] = c.encode(p.DiscountPrice.Decimal)
	}
	return set, c.err
}
