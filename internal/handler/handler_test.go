package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-faster/errors"
	"github.com/golang-jwt/jwt/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shopprime/storefront/internal/domain/auth"
	"github.com/shopprime/storefront/internal/domain/cart"
	"github.com/shopprime/storefront/internal/domain/coupon"
	"github.com/shopprime/storefront/internal/domain/order"
	"github.com/shopprime/storefront/internal/domain/product"
	"github.com/shopprime/storefront/internal/domain/review"
	"github.com/shopprime/storefront/internal/domain/wishlist"
	"github.com/shopprime/storefront/internal/lock"
	"github.com/shopprime/storefront/internal/storage/memory"
)

var (
	testSecret = []byte("test-jwt-secret")
	testPepper = []byte("test-pepper")
)

const (
	adminKey  = "admin-key"
	readerKey = "reader-key"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type env struct {
	t      *testing.T
	store  *memory.Store
	router *gin.Engine
}

func newEnv(t *testing.T) *env {
	t.Helper()
	ctx := context.Background()
	store := memory.New()

	for _, p := range []product.Product{
		{ID: "kettle", Name: "Kettle", Category: "kitchen", Price: decimal.NewFromInt(450), Stock: 5},
		{ID: "mug", Name: "Mug", Category: "kitchen", Price: decimal.NewFromInt(120), DiscountPrice: decimal.NewNullDecimal(decimal.NewFromInt(100)), Stock: 1},
	} {
		require.NoError(t, store.Products.Create(ctx, &p))
	}
	for _, c := range []coupon.Coupon{
		{Code: "WELCOME10", DiscountType: coupon.DiscountPercentage, DiscountValue: decimal.NewFromInt(10), MinOrderValue: decimal.NewFromInt(100), ExpiresAt: time.Now().Add(24 * time.Hour), Active: true},
		{Code: "OLD", DiscountType: coupon.DiscountFlat, DiscountValue: decimal.NewFromInt(50), ExpiresAt: time.Now().Add(-time.Hour), Active: true},
	} {
		require.NoError(t, store.Coupons.Create(ctx, &c))
	}
	require.NoError(t, store.APIKeys.Upsert(ctx, auth.APIKeyInfo{
		ID: "k1", KeyHash: auth.HashKey(testPepper, adminKey), Name: "ops", Scopes: []string{auth.ScopeAdmin},
	}))
	require.NoError(t, store.APIKeys.Upsert(ctx, auth.APIKeyInfo{
		ID: "k2", KeyHash: auth.HashKey(testPepper, readerKey), Name: "reader",
	}))

	locks := lock.NewKeyedMutex()
	orders, err := order.NewService(order.Config{}, order.Deps{
		Products: store.Products,
		Coupons:  coupon.NewLedger(store.Coupons),
		Carts:    store.Carts,
		Orders:   store.Orders,
		Locks:    locks,
	})
	require.NoError(t, err)

	h := New(Config{JWTSecret: testSecret, CheckoutTimeout: 5 * time.Second}, Deps{
		Orders:   orders,
		Carts:    cart.NewService(store.Carts, store.Products, locks),
		Coupons:  coupon.NewLedger(store.Coupons),
		Catalog:  store.Products,
		CouponDB: store.Coupons,
		Reviews:  review.NewService(store.Reviews, store.Products),
		Wishlist: wishlist.NewService(store.Wishlists, store.Products),
		APIKeys:  auth.NewVerifier(store.APIKeys, testPepper),
	})
	return &env{t: t, store: store, router: NewRouter(h)}
}

func token(t *testing.T, claims jwt.MapClaims, secret []byte) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	require.NoError(t, err)
	return s
}

type call struct {
	method string
	path   string
	body   any
	user   string
	apiKey string
}

func (e *env) do(c call) (int, map[string]any) {
	e.t.Helper()
	var buf bytes.Buffer
	if c.body != nil {
		require.NoError(e.t, json.NewEncoder(&buf).Encode(c.body))
	}
	r := httptest.NewRequest(c.method, c.path, &buf)
	r.Header.Set("Content-Type", "application/json")
	if c.user != "" {
		r.Header.Set("Authorization", "Bearer "+token(e.t, jwt.MapClaims{"userId": c.user}, testSecret))
	}
	if c.apiKey != "" {
		r.Header.Set(headerAPIKey, c.apiKey)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, r)

	var out map[string]any
	if w.Body.Len() > 0 && w.Body.Bytes()[0] == '{' {
		require.NoError(e.t, json.Unmarshal(w.Body.Bytes(), &out))
	}
	return w.Code, out
}

func (e *env) doList(c call) (int, []map[string]any) {
	e.t.Helper()
	var out []map[string]any
	code := e.doInto(c, &out)
	return code, out
}

// doInto decodes the JSON response into out.
func (e *env) doInto(c call, out any) int {
	e.t.Helper()
	r := httptest.NewRequest(c.method, c.path, nil)
	if c.user != "" {
		r.Header.Set("Authorization", "Bearer "+token(e.t, jwt.MapClaims{"userId": c.user}, testSecret))
	}
	if c.apiKey != "" {
		r.Header.Set(headerAPIKey, c.apiKey)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, r)

	require.NoError(e.t, json.Unmarshal(w.Body.Bytes(), out), w.Body.String())
	return w.Code
}

var address = map[string]any{
	"line1":   "12 MG Road",
	"city":    "Pune",
	"state":   "MH",
	"pincode": "411001",
}

func TestUserAuth(t *testing.T) {
	e := newEnv(t)
	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"Missing", "", http.StatusUnauthorized},
		{"NotBearer", "Basic abc", http.StatusUnauthorized},
		{"WrongSecret", "Bearer " + token(t, jwt.MapClaims{"userId": "u1"}, []byte("other")), http.StatusUnauthorized},
		{"NoUserClaim", "Bearer " + token(t, jwt.MapClaims{"role": "x"}, testSecret), http.StatusUnauthorized},
		{"Expired", "Bearer " + token(t, jwt.MapClaims{"userId": "u1", "exp": time.Now().Add(-time.Minute).Unix()}, testSecret), http.StatusUnauthorized},
		{"UserIDClaim", "Bearer " + token(t, jwt.MapClaims{"userId": "u1"}, testSecret), http.StatusOK},
		{"SubClaim", "Bearer " + token(t, jwt.MapClaims{"sub": "u1"}, testSecret), http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/api/cart", nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			e.router.ServeHTTP(w, r)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
		})
	}
}

func TestParseUserToken_RejectsOtherAlgorithms(t *testing.T) {
	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"userId": "u1"}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = parseUserToken("Bearer "+none, testSecret)
	assert.Error(t, err)
}

func TestProducts(t *testing.T) {
	e := newEnv(t)

	code, list := e.doList(call{method: http.MethodGet, path: "/api/product"})
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, list, 2)

	code, body := e.do(call{method: http.MethodGet, path: "/api/product/mug"})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 100.0, body["discountPrice"])

	code, body = e.do(call{method: http.MethodGet, path: "/api/product/nope"})
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, 404.0, body["code"])
}

func TestProducts_Filters(t *testing.T) {
	e := newEnv(t)
	require.NoError(t, e.store.Products.Create(context.Background(), &product.Product{
		ID: "lamp", Name: "Desk Lamp", Category: "lighting", Price: decimal.NewFromInt(900), Stock: 2,
	}))

	tests := []struct {
		query string
		want  []string
	}{
		{query: "", want: []string{"kettle", "lamp", "mug"}},
		{query: "?search=KET", want: []string{"kettle"}},
		{query: "?category=kitchen", want: []string{"kettle", "mug"}},
		{query: "?minPrice=200", want: []string{"kettle", "lamp"}},
		{query: "?minPrice=120&maxPrice=450", want: []string{"kettle", "mug"}},
		{query: "?category=kitchen&maxPrice=119.99", want: []string{}},
		{query: "?search=lamp&category=kitchen", want: []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			code, list := e.doList(call{method: http.MethodGet, path: "/api/product" + tt.query})
			require.Equal(t, http.StatusOK, code)
			ids := make([]string, 0, len(list))
			for _, p := range list {
				ids = append(ids, p["id"].(string))
			}
			assert.ElementsMatch(t, tt.want, ids)
		})
	}

	for _, query := range []string{"?minPrice=cheap", "?maxPrice=-5", "?minPrice=500&maxPrice=100"} {
		code, body := e.do(call{method: http.MethodGet, path: "/api/product" + query})
		assert.Equal(t, http.StatusBadRequest, code, query)
		assert.Equal(t, 400.0, body["code"], query)
	}
}

func TestProducts_CategoriesAndRelated(t *testing.T) {
	e := newEnv(t)
	require.NoError(t, e.store.Products.Create(context.Background(), &product.Product{
		ID: "lamp", Name: "Desk Lamp", Category: "lighting", Price: decimal.NewFromInt(900), Stock: 2,
	}))

	var categories []string
	code := e.doInto(call{method: http.MethodGet, path: "/api/product/categories/all"}, &categories)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, []string{"kitchen", "lighting"}, categories)

	code, related := e.doList(call{method: http.MethodGet, path: "/api/product/kettle/related"})
	require.Equal(t, http.StatusOK, code)
	require.Len(t, related, 1)
	assert.Equal(t, "mug", related[0]["id"])

	code, related = e.doList(call{method: http.MethodGet, path: "/api/product/lamp/related"})
	require.Equal(t, http.StatusOK, code)
	assert.Empty(t, related)

	code, body := e.do(call{method: http.MethodGet, path: "/api/product/nope/related"})
	assert.Equal(t, http.StatusNotFound, code, body)
}

func TestReviews(t *testing.T) {
	e := newEnv(t)

	code, body := e.do(call{method: http.MethodPost, path: "/api/product/kettle/review", body: map[string]any{"rating": 5}})
	assert.Equal(t, http.StatusUnauthorized, code, body)

	code, body = e.do(call{method: http.MethodPost, path: "/api/product/kettle/review", user: "u1", body: map[string]any{
		"rating": 5, "comment": "Boils fast",
	}})
	require.Equal(t, http.StatusCreated, code, body)
	assert.Equal(t, "u1", body["userId"])

	code, body = e.do(call{method: http.MethodPost, path: "/api/product/kettle/review", user: "u2", body: map[string]any{"rating": 2}})
	require.Equal(t, http.StatusCreated, code, body)

	code, body = e.do(call{method: http.MethodPost, path: "/api/product/kettle/review", user: "u1", body: map[string]any{"rating": 4}})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "product already reviewed by this user", body["message"])

	code, _ = e.do(call{method: http.MethodPost, path: "/api/product/kettle/review", user: "u3", body: map[string]any{"rating": 6}})
	assert.Equal(t, http.StatusBadRequest, code)
	code, _ = e.do(call{method: http.MethodPost, path: "/api/product/kettle/review", user: "u3", body: map[string]any{"comment": "no rating"}})
	assert.Equal(t, http.StatusBadRequest, code)
	code, _ = e.do(call{method: http.MethodPost, path: "/api/product/nope/review", user: "u3", body: map[string]any{"rating": 3}})
	assert.Equal(t, http.StatusNotFound, code)

	code, body = e.do(call{method: http.MethodGet, path: "/api/product/kettle"})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 3.5, body["averageRating"])
	assert.Equal(t, "Kettle", body["name"])
	reviews, ok := body["reviews"].([]any)
	require.True(t, ok)
	assert.Len(t, reviews, 2)

	code, body = e.do(call{method: http.MethodGet, path: "/api/product/mug"})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 0.0, body["averageRating"])
	assert.Empty(t, body["reviews"])
}

func TestWishlist(t *testing.T) {
	e := newEnv(t)

	code, body := e.do(call{method: http.MethodGet, path: "/api/wishlist", user: "u1"})
	require.Equal(t, http.StatusOK, code)
	assert.Empty(t, body["products"])

	code, body = e.do(call{method: http.MethodPost, path: "/api/wishlist", user: "u1", body: map[string]any{"productId": "kettle"}})
	require.Equal(t, http.StatusOK, code, body)
	code, body = e.do(call{method: http.MethodPost, path: "/api/wishlist", user: "u1", body: map[string]any{"productId": "mug"}})
	require.Equal(t, http.StatusOK, code, body)
	code, body = e.do(call{method: http.MethodPost, path: "/api/wishlist", user: "u1", body: map[string]any{"productId": "kettle"}})
	require.Equal(t, http.StatusOK, code, body)
	assert.Len(t, body["products"], 2)

	code, _ = e.do(call{method: http.MethodPost, path: "/api/wishlist", user: "u1", body: map[string]any{"productId": "nope"}})
	assert.Equal(t, http.StatusNotFound, code)
	code, _ = e.do(call{method: http.MethodPost, path: "/api/wishlist", user: "u1", body: map[string]any{}})
	assert.Equal(t, http.StatusBadRequest, code)

	code, body = e.do(call{method: http.MethodDelete, path: "/api/wishlist/kettle", user: "u1"})
	require.Equal(t, http.StatusOK, code)
	products := body["products"].([]any)
	require.Len(t, products, 1)
	assert.Equal(t, "mug", products[0].(map[string]any)["id"])

	code, body = e.do(call{method: http.MethodGet, path: "/api/wishlist", user: "u2"})
	require.Equal(t, http.StatusOK, code)
	assert.Empty(t, body["products"])
}

func TestCart(t *testing.T) {
	e := newEnv(t)

	code, body := e.do(call{method: http.MethodPost, path: "/api/cart", user: "u1", body: map[string]any{"productId": "kettle"}})
	require.Equal(t, http.StatusOK, code, body)
	code, body = e.do(call{method: http.MethodPost, path: "/api/cart", user: "u1", body: map[string]any{"productId": "kettle", "quantity": 2}})
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, 1350.0, body["subtotal"])

	code, body = e.do(call{method: http.MethodPost, path: "/api/cart", user: "u1", body: map[string]any{"productId": "mug", "quantity": 2}})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, body["message"], "insufficient stock")

	code, _ = e.do(call{method: http.MethodPut, path: "/api/cart/mug", user: "u1", body: map[string]any{"quantity": 1}})
	assert.Equal(t, http.StatusNotFound, code)

	code, body = e.do(call{method: http.MethodPut, path: "/api/cart/kettle", user: "u1", body: map[string]any{"quantity": 0}})
	assert.Equal(t, http.StatusBadRequest, code, body)

	code, body = e.do(call{method: http.MethodDelete, path: "/api/cart/kettle", user: "u1"})
	require.Equal(t, http.StatusOK, code)
	assert.Empty(t, body["items"])

	code, _ = e.do(call{method: http.MethodDelete, path: "/api/cart", user: "u1"})
	assert.Equal(t, http.StatusNoContent, code)
}

func TestPlaceOrder(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	require.NoError(t, e.store.Carts.AddItem(ctx, "u1", "kettle", 2))

	code, body := e.do(call{method: http.MethodPost, path: "/api/order", user: "u1", body: map[string]any{
		"shippingAddress": address,
		"couponCode":      "welcome10",
		"paymentRef":      "pay_123",
	}})
	require.Equal(t, http.StatusCreated, code, body)
	assert.Equal(t, 900.0, body["subtotal"])
	assert.Equal(t, 90.0, body["discount"])
	assert.Equal(t, 0.0, body["deliveryCharge"])
	assert.Equal(t, 810.0, body["total"])
	assert.Equal(t, "WELCOME10", body["couponCode"])
	assert.Equal(t, "paid", body["paymentStatus"])
	assert.Equal(t, "placed", body["orderStatus"])
	assert.Equal(t, "India", body["shippingAddress"].(map[string]any)["country"])

	id := body["id"].(string)
	code, body = e.do(call{method: http.MethodGet, path: "/api/order/" + id, user: "u1"})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, id, body["id"])

	code, _ = e.do(call{method: http.MethodGet, path: "/api/order/" + id, user: "u2"})
	assert.Equal(t, http.StatusNotFound, code, "orders of other users are hidden")

	code, list := e.doList(call{method: http.MethodGet, path: "/api/order/mine", user: "u1"})
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, list, 1)

	p, err := e.store.Products.GetByID(ctx, "kettle")
	require.NoError(t, err)
	assert.Equal(t, 3, p.Stock)
	items, err := e.store.Carts.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestPlaceOrder_Rejected(t *testing.T) {
	tests := []struct {
		name    string
		cart    map[string]int
		body    map[string]any
		want    int
		message string
	}{
		{
			name:    "EmptyCart",
			body:    map[string]any{"shippingAddress": address},
			want:    http.StatusBadRequest,
			message: "cart is empty",
		},
		{
			name: "MissingAddress",
			cart: map[string]int{"kettle": 1},
			body: map[string]any{},
			want: http.StatusBadRequest,
		},
		{
			name:    "MissingPincode",
			cart:    map[string]int{"kettle": 1},
			body:    map[string]any{"shippingAddress": map[string]any{"line1": "x", "city": "y", "state": "z"}},
			want:    http.StatusBadRequest,
			message: "shippingAddress.pincode is required",
		},
		{
			name: "InsufficientStock",
			cart: map[string]int{"mug": 3},
			body: map[string]any{"shippingAddress": address},
			want: http.StatusBadRequest,
		},
		{
			name: "ProductGone",
			cart: map[string]int{"ghost": 1},
			body: map[string]any{"shippingAddress": address},
			want: http.StatusNotFound,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t)
			for id, qty := range tt.cart {
				require.NoError(t, e.store.Carts.AddItem(context.Background(), "u1", id, qty))
			}
			code, body := e.do(call{method: http.MethodPost, path: "/api/order", user: "u1", body: tt.body})
			assert.Equal(t, tt.want, code, body)
			assert.Equal(t, float64(tt.want), body["code"])
			if tt.message != "" {
				assert.Equal(t, tt.message, body["message"])
			}
		})
	}
}

func TestApplyCoupon(t *testing.T) {
	e := newEnv(t)
	tests := []struct {
		name     string
		code     string
		amount   string
		want     int
		discount float64
	}{
		{"Valid", "welcome10", "1000", http.StatusOK, 100},
		{"Unknown", "NOPE", "1000", http.StatusNotFound, 0},
		{"Expired", "OLD", "1000", http.StatusNotFound, 0},
		{"BelowMinimum", "WELCOME10", "50", http.StatusBadRequest, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, body := e.do(call{method: http.MethodPost, path: "/api/coupon/apply", user: "u1", body: map[string]any{
				"code":        tt.code,
				"orderAmount": tt.amount,
			}})
			require.Equal(t, tt.want, code, body)
			if tt.want == http.StatusOK {
				assert.Equal(t, true, body["valid"])
				assert.Equal(t, tt.discount, body["discount"])
				assert.Equal(t, "WELCOME10", body["coupon"].(map[string]any)["code"])
			}
		})
	}

	c, err := e.store.Coupons.FindByCode(context.Background(), "WELCOME10")
	require.NoError(t, err)
	assert.Zero(t, c.UsedCount, "preview does not redeem")
}

func TestAdminAuth(t *testing.T) {
	e := newEnv(t)

	code, _ := e.do(call{method: http.MethodGet, path: "/api/admin/coupons"})
	assert.Equal(t, http.StatusUnauthorized, code)

	code, _ = e.do(call{method: http.MethodGet, path: "/api/admin/coupons", apiKey: "wrong"})
	assert.Equal(t, http.StatusUnauthorized, code)

	code, _ = e.do(call{method: http.MethodGet, path: "/api/admin/coupons", apiKey: readerKey})
	assert.Equal(t, http.StatusForbidden, code)

	code, list := e.doList(call{method: http.MethodGet, path: "/api/admin/coupons", apiKey: adminKey})
	assert.Equal(t, http.StatusOK, code)
	assert.Len(t, list, 2)
}

func TestAdminOrders(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	require.NoError(t, e.store.Carts.AddItem(ctx, "u1", "kettle", 1))
	code, body := e.do(call{method: http.MethodPost, path: "/api/order", user: "u1", body: map[string]any{"shippingAddress": address}})
	require.Equal(t, http.StatusCreated, code, body)
	id := body["id"].(string)
	assert.Equal(t, 50.0, body["deliveryCharge"])

	code, body = e.do(call{method: http.MethodPut, path: "/api/admin/orders/" + id + "/status", apiKey: adminKey, body: map[string]any{"status": "teleported"}})
	assert.Equal(t, http.StatusBadRequest, code, body)

	code, body = e.do(call{method: http.MethodPut, path: "/api/admin/orders/" + id + "/status", apiKey: adminKey, body: map[string]any{"status": "shipped"}})
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, "shipped", body["orderStatus"])

	code, body = e.do(call{method: http.MethodPut, path: "/api/admin/orders/" + id + "/payment", apiKey: adminKey, body: map[string]any{"paymentStatus": "failed"}})
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, "failed", body["paymentStatus"])
	assert.Equal(t, "shipped", body["orderStatus"])

	code, list := e.doList(call{method: http.MethodGet, path: "/api/admin/orders?status=shipped", apiKey: adminKey})
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, list, 1)

	code, _ = e.do(call{method: http.MethodGet, path: "/api/admin/orders/missing", apiKey: adminKey})
	assert.Equal(t, http.StatusNotFound, code)
}

func TestAdminCatalogAndCoupons(t *testing.T) {
	e := newEnv(t)

	code, body := e.do(call{method: http.MethodPost, path: "/api/admin/coupons", apiKey: adminKey, body: map[string]any{
		"code":          " flat500 ",
		"discountType":  "flat",
		"discountValue": "500",
		"minOrderValue": "5000",
		"expiry":        time.Now().Add(15 * 24 * time.Hour).Format(time.RFC3339),
		"usageLimit":    10,
	}})
	require.Equal(t, http.StatusCreated, code, body)
	assert.Equal(t, "FLAT500", body["code"])
	assert.Equal(t, true, body["isActive"])

	code, _ = e.do(call{method: http.MethodPost, path: "/api/admin/coupons", apiKey: adminKey, body: map[string]any{
		"code": "BAD", "discountType": "bogo", "discountValue": "1", "expiry": time.Now().Format(time.RFC3339),
	}})
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = e.do(call{method: http.MethodDelete, path: "/api/admin/coupons/flat500", apiKey: adminKey})
	assert.Equal(t, http.StatusNoContent, code)
	code, _ = e.do(call{method: http.MethodDelete, path: "/api/admin/coupons/flat500", apiKey: adminKey})
	assert.Equal(t, http.StatusNotFound, code)

	code, body = e.do(call{method: http.MethodPost, path: "/api/admin/products", apiKey: adminKey, body: map[string]any{
		"name": "Teapot", "price": "799.50", "stock": 4,
	}})
	require.Equal(t, http.StatusCreated, code, body)
	id := body["id"].(string)
	assert.NotEmpty(t, id)
	assert.Equal(t, 799.5, body["price"])

	code, body = e.do(call{method: http.MethodPut, path: "/api/admin/products/" + id + "/stock", apiKey: adminKey, body: map[string]any{"stock": 9}})
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, 9.0, body["stock"])

	code, _ = e.do(call{method: http.MethodPut, path: "/api/admin/products/" + id + "/stock", apiKey: adminKey, body: map[string]any{"stock": -1}})
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = e.do(call{method: http.MethodPost, path: "/api/admin/products", apiKey: adminKey, body: map[string]any{
		"name": "Broken", "price": "-1",
	}})
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestAdminUpdateAndDeleteProduct(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	code, body := e.do(call{method: http.MethodPut, path: "/api/admin/products/kettle", apiKey: adminKey, body: map[string]any{
		"name": "Electric Kettle", "category": "appliances", "price": "499", "discountPrice": "449", "stock": 7,
	}})
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, "kettle", body["id"])
	assert.Equal(t, "Electric Kettle", body["name"])
	assert.Equal(t, 449.0, body["discountPrice"])

	got, err := e.store.Products.GetByID(ctx, "kettle")
	require.NoError(t, err)
	assert.Equal(t, 7, got.Stock)
	assert.Equal(t, "appliances", got.Category)

	code, _ = e.do(call{method: http.MethodPut, path: "/api/admin/products/nope", apiKey: adminKey, body: map[string]any{
		"name": "Ghost", "price": "1",
	}})
	assert.Equal(t, http.StatusNotFound, code)
	code, _ = e.do(call{method: http.MethodPut, path: "/api/admin/products/kettle", apiKey: adminKey, body: map[string]any{
		"name": "Kettle", "price": "-3",
	}})
	assert.Equal(t, http.StatusBadRequest, code)
	code, _ = e.do(call{method: http.MethodPut, path: "/api/admin/products/kettle", apiKey: readerKey, body: map[string]any{
		"name": "Kettle", "price": "3",
	}})
	assert.Equal(t, http.StatusForbidden, code)

	// A placed order keeps its snapshot after the product is deleted.
	require.NoError(t, e.store.Carts.AddItem(ctx, "u1", "mug", 1))
	code, placed := e.do(call{method: http.MethodPost, path: "/api/order", user: "u1", body: map[string]any{"shippingAddress": address}})
	require.Equal(t, http.StatusCreated, code, placed)
	require.NoError(t, e.store.Carts.AddItem(ctx, "u2", "mug", 1))

	code, _ = e.do(call{method: http.MethodDelete, path: "/api/admin/products/mug", apiKey: adminKey})
	assert.Equal(t, http.StatusNoContent, code)
	code, _ = e.do(call{method: http.MethodDelete, path: "/api/admin/products/mug", apiKey: adminKey})
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = e.do(call{method: http.MethodGet, path: "/api/product/mug"})
	assert.Equal(t, http.StatusNotFound, code)

	code, body = e.do(call{method: http.MethodGet, path: "/api/cart", user: "u2"})
	require.Equal(t, http.StatusOK, code)
	assert.Empty(t, body["items"])

	code, body = e.do(call{method: http.MethodGet, path: "/api/order/" + placed["id"].(string), user: "u1"})
	require.Equal(t, http.StatusOK, code)
	items := body["items"].([]any)
	require.Len(t, items, 1)
	assert.Equal(t, "Mug", items[0].(map[string]any)["name"])
}

func TestStatusOf(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{cart.ErrEmpty, http.StatusBadRequest},
		{cart.ErrInvalidQuantity, http.StatusBadRequest},
		{&product.InsufficientStockError{ProductID: "p", Name: "P", Available: 1, Requested: 2}, http.StatusBadRequest},
		{&order.ValidationError{Field: "userId", Reason: "is required"}, http.StatusBadRequest},
		{&order.ProductNotFoundError{ProductID: "p"}, http.StatusNotFound},
		{order.ErrNotFound, http.StatusNotFound},
		{cart.ErrItemNotFound, http.StatusNotFound},
		{errors.Wrap(order.ErrConflict, "redeem coupon"), http.StatusConflict},
		{coupon.ErrCouponInvalid, http.StatusNotFound},
		{coupon.ErrCouponExpired, http.StatusNotFound},
		{&coupon.MinOrderError{MinOrderValue: decimal.NewFromInt(10)}, http.StatusBadRequest},
		{coupon.ErrUsageLimitExceeded, http.StatusBadRequest},
		{review.ErrAlreadyReviewed, http.StatusBadRequest},
		{review.ErrInvalidRating, http.StatusBadRequest},
		{context.DeadlineExceeded, http.StatusInternalServerError},
		{errors.New("db down"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.want, statusOf(tt.err))
		})
	}
}

func TestNoRoute(t *testing.T) {
	e := newEnv(t)
	code, body := e.do(call{method: http.MethodGet, path: "/api/nowhere"})
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "route not found", body["message"])
}
