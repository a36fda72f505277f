package auth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"slices"

	"github.com/go-faster/errors"
)

var (
	// ErrNotFound is returned by Repository when no active key matches.
	ErrNotFound = errors.New("api key not found")
	// ErrUnauthorized is returned for any key that fails verification.
	ErrUnauthorized = errors.New("unauthorized")
)

// ScopeAdmin grants access to catalog, coupon and order administration.
const ScopeAdmin = "admin"

// APIKeyInfo holds the identity and permission data for a validated API key.
type APIKeyInfo struct {
	ID      string
	KeyHash string
	Name    string
	Scopes  []string
}

// HasScope reports whether the key carries scope.
func (k *APIKeyInfo) HasScope(scope string) bool {
	return slices.Contains(k.Scopes, scope)
}

// Repository provides lookup of API keys by their HMAC hash.
type Repository interface {
	FindByHash(ctx context.Context, hash string) (*APIKeyInfo, error)
	Upsert(ctx context.Context, key APIKeyInfo) error
}

// HashKey returns the hex HMAC-SHA256 of key under pepper, the form keys are
// stored in.
func HashKey(pepper []byte, key string) string {
	mac := hmac.New(sha256.New, pepper)
	mac.Write([]byte(key))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verifier authenticates raw API keys.
type Verifier struct {
	keys   Repository
	pepper []byte
}

// NewVerifier creates a Verifier with the given key repository and HMAC pepper.
func NewVerifier(keys Repository, pepper []byte) *Verifier {
	return &Verifier{keys: keys, pepper: pepper}
}

// Verify looks the key up by hash and re-checks the stored hash in constant
// time. Every failure is reported as ErrUnauthorized.
func (v *Verifier) Verify(ctx context.Context, key string) (*APIKeyInfo, error) {
	if key == "" {
		return nil, ErrUnauthorized
	}
	mac := hmac.New(sha256.New, v.pepper)
	mac.Write([]byte(key))
	hash := mac.Sum(nil)

	info, err := v.keys.FindByHash(ctx, hex.EncodeToString(hash))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrUnauthorized
		}
		return nil, errors.Wrap(err, "find api key")
	}

	stored, err := hex.DecodeString(info.KeyHash)
	if err != nil || subtle.ConstantTimeCompare(hash, stored) != 1 {
		return nil, ErrUnauthorized
	}
	return info, nil
}
