package db

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrations(t *testing.T) {
	list, err := Migrations()
	require.NoError(t, err)
	require.NotEmpty(t, list)

	assert.Equal(t, "migrations/001_schema.sql", list[0].Name)
	for i, m := range list {
		assert.NotEmpty(t, strings.TrimSpace(m.SQL), m.Name)
		if i > 0 {
			assert.Less(t, list[i-1].Name, m.Name)
		}
	}
	for _, table := range []string{"products", "coupons", "cart_items", "orders", "api_keys"} {
		assert.Contains(t, list[0].SQL, "CREATE TABLE IF NOT EXISTS "+table)
	}

	require.Len(t, list, 2)
	assert.Equal(t, "migrations/002_reviews_wishlists.sql", list[1].Name)
	for _, table := range []string{"product_reviews", "wishlist_items"} {
		assert.Contains(t, list[1].SQL, "CREATE TABLE IF NOT EXISTS "+table)
	}
}
