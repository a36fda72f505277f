package mongodb

import (
	"context"

	"github.com/go-faster/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/shopprime/storefront/internal/domain/auth"
)

type apiKeyDoc struct {
	ID      string   `bson:"_id"`
	KeyHash string   `bson:"keyHash"`
	Name    string   `bson:"name"`
	Scopes  []string `bson:"scopes"`
	Active  bool     `bson:"active"`
}

var _ auth.Repository = (*APIKeyRepository)(nil)

// APIKeyRepository provides API key lookups backed by MongoDB.
type APIKeyRepository struct {
	coll *mongo.Collection
}

// NewAPIKeyRepository returns an APIKeyRepository on db.
func NewAPIKeyRepository(db *mongo.Database) *APIKeyRepository {
	return &APIKeyRepository{coll: db.Collection(apiKeysCollection)}
}

func (r *APIKeyRepository) FindByHash(ctx context.Context, hash string) (*auth.APIKeyInfo, error) {
	var doc apiKeyDoc
	if err := r.coll.FindOne(ctx, bson.M{"keyHash": hash, "active": true}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, auth.ErrNotFound
		}
		return nil, errors.Wrap(err, "find api key by hash")
	}
	return &auth.APIKeyInfo{
		ID:      doc.ID,
		KeyHash: doc.KeyHash,
		Name:    doc.Name,
		Scopes:  doc.Scopes,
	}, nil
}

// Upsert stores the key, reactivating it if it was disabled.
func (r *APIKeyRepository) Upsert(ctx context.Context, key auth.APIKeyInfo) error {
	doc := apiKeyDoc{
		ID:      key.ID,
		KeyHash: key.KeyHash,
		Name:    key.Name,
		Scopes:  key.Scopes,
		Active:  true,
	}
	_, err := r.coll.ReplaceOne(ctx, bson.M{"_id": key.ID}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return errors.Wrapf(err, "upsert api key %q", key.ID)
	}
	return nil
}
