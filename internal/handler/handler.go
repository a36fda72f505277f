// Package handler exposes the storefront over HTTP with gin.
package handler

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/shopprime/storefront/internal/domain/auth"
	"github.com/shopprime/storefront/internal/domain/cart"
	"github.com/shopprime/storefront/internal/domain/coupon"
	"github.com/shopprime/storefront/internal/domain/order"
	"github.com/shopprime/storefront/internal/domain/product"
	"github.com/shopprime/storefront/internal/domain/review"
)

// Orders is the order service used by the handlers.
type Orders interface {
	PlaceOrder(ctx context.Context, req order.PlaceOrderRequest) (*order.Order, error)
	GetForUser(ctx context.Context, userID, id string) (*order.Order, error)
	Get(ctx context.Context, id string) (*order.Order, error)
	ListForUser(ctx context.Context, userID string) ([]order.Order, error)
	List(ctx context.Context, status order.Status) ([]order.Order, error)
	UpdateStatus(ctx context.Context, id string, status order.Status) (*order.Order, error)
	UpdatePaymentStatus(ctx context.Context, id string, status order.PaymentStatus) (*order.Order, error)
}

// Carts is the cart service used by the handlers.
type Carts interface {
	Get(ctx context.Context, userID string) ([]cart.Line, error)
	AddItem(ctx context.Context, userID, productID string, qty int) error
	SetQuantity(ctx context.Context, userID, productID string, qty int) error
	RemoveItem(ctx context.Context, userID, productID string) error
	Clear(ctx context.Context, userID string) error
}

// CouponPreviewer prices a coupon without redeeming it.
type CouponPreviewer interface {
	Preview(ctx context.Context, code string, amount decimal.Decimal) (*coupon.Validation, error)
}

// Reviews adds and summarizes product reviews.
type Reviews interface {
	Add(ctx context.Context, r *review.Review) error
	Summary(ctx context.Context, productID string) (*review.Summary, error)
}

// Wishlist is the wishlist service used by the handlers.
type Wishlist interface {
	Get(ctx context.Context, userID string) ([]product.Product, error)
	Add(ctx context.Context, userID, productID string) error
	Remove(ctx context.Context, userID, productID string) error
}

// Deps holds the collaborators of a Handler.
type Deps struct {
	Orders   Orders
	Carts    Carts
	Coupons  CouponPreviewer
	Catalog  product.Repository
	CouponDB coupon.Repository
	Reviews  Reviews
	Wishlist Wishlist
	APIKeys  *auth.Verifier
}

// Config holds handler settings.
type Config struct {
	// JWTSecret verifies HS256 bearer tokens.
	JWTSecret []byte
	// CheckoutTimeout bounds a single PlaceOrder call; zero disables it.
	CheckoutTimeout time.Duration
}

// Handler serves the storefront API.
type Handler struct {
	orders   Orders
	carts    Carts
	coupons  CouponPreviewer
	catalog  product.Repository
	couponDB coupon.Repository
	reviews  Reviews
	wishlist Wishlist
	apiKeys  *auth.Verifier
	cfg      Config
}

// New creates a Handler.
func New(cfg Config, deps Deps) *Handler {
	return &Handler{
		orders:   deps.Orders,
		carts:    deps.Carts,
		coupons:  deps.Coupons,
		catalog:  deps.Catalog,
		couponDB: deps.CouponDB,
		reviews:  deps.Reviews,
		wishlist: deps.Wishlist,
		apiKeys:  deps.APIKeys,
		cfg:      cfg,
	}
}

// Register mounts every route under /api on r.
func (h *Handler) Register(r gin.IRouter) {
	api := r.Group("/api")

	api.GET("/product", h.ListProducts)
	api.GET("/product/categories/all", h.ListCategories)
	api.GET("/product/:id", h.GetProduct)
	api.GET("/product/:id/related", h.RelatedProducts)

	user := api.Group("", UserAuth(h.cfg.JWTSecret))
	user.POST("/order", h.PlaceOrder)
	user.GET("/order/mine", h.ListMyOrders)
	user.GET("/order/:id", h.GetMyOrder)
	user.POST("/coupon/apply", h.ApplyCoupon)

	user.GET("/cart", h.GetCart)
	user.POST("/cart", h.AddToCart)
	user.PUT("/cart/:productId", h.SetCartQuantity)
	user.DELETE("/cart/:productId", h.RemoveFromCart)
	user.DELETE("/cart", h.ClearCart)

	user.POST("/product/:id/review", h.AddReview)

	user.GET("/wishlist", h.GetWishlist)
	user.POST("/wishlist", h.AddToWishlist)
	user.DELETE("/wishlist/:productId", h.RemoveFromWishlist)

	admin := api.Group("/admin", AdminAuth(h.apiKeys))
	admin.GET("/orders", h.AdminListOrders)
	admin.GET("/orders/:id", h.AdminGetOrder)
	admin.PUT("/orders/:id/status", h.AdminUpdateOrderStatus)
	admin.PUT("/orders/:id/payment", h.AdminUpdatePaymentStatus)
	admin.GET("/coupons", h.AdminListCoupons)
	admin.POST("/coupons", h.AdminCreateCoupon)
	admin.DELETE("/coupons/:code", h.AdminDeleteCoupon)
	admin.POST("/products", h.AdminCreateProduct)
	admin.PUT("/products/:id", h.AdminUpdateProduct)
	admin.DELETE("/products/:id", h.AdminDeleteProduct)
	admin.PUT("/products/:id/stock", h.AdminSetStock)
}

// NewRouter returns a gin engine with the API routes mounted. Logging,
// recovery and CORS live in the net/http middleware around it.
func NewRouter(h *Handler) *gin.Engine {
	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.NoRoute(func(c *gin.Context) { abort(c, 404, "route not found") })
	r.NoMethod(func(c *gin.Context) { abort(c, 405, "method not allowed") })
	h.Register(r)
	return r
}
