package handler

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/shopprime/storefront/internal/domain/cart"
	"github.com/shopprime/storefront/internal/domain/coupon"
	"github.com/shopprime/storefront/internal/domain/order"
	"github.com/shopprime/storefront/internal/domain/product"
	"github.com/shopprime/storefront/internal/domain/review"
)

// money renders a decimal as a JSON number with two decimal places.
type money decimal.Decimal

func (m money) MarshalJSON() ([]byte, error) {
	return []byte(decimal.Decimal(m).StringFixed(2)), nil
}

type addressDTO struct {
	Label   string `json:"label,omitempty"`
	Line1   string `json:"line1"`
	Line2   string `json:"line2,omitempty"`
	City    string `json:"city"`
	State   string `json:"state"`
	Pincode string `json:"pincode"`
	Country string `json:"country,omitempty"`
}

type placeOrderRequest struct {
	ShippingAddress *addressDTO `json:"shippingAddress" binding:"required"`
	CouponCode      string      `json:"couponCode"`
	PaymentRef      string      `json:"paymentRef"`
}

type applyCouponRequest struct {
	Code        string          `json:"code" binding:"required"`
	OrderAmount decimal.Decimal `json:"orderAmount"`
}

type addToCartRequest struct {
	ProductID string `json:"productId" binding:"required"`
	Quantity  *int   `json:"quantity"`
}

type setQuantityRequest struct {
	Quantity *int `json:"quantity" binding:"required"`
}

type orderStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

type paymentStatusRequest struct {
	PaymentStatus string `json:"paymentStatus" binding:"required"`
}

type couponRequest struct {
	Code          string          `json:"code" binding:"required"`
	DiscountType  string          `json:"discountType" binding:"required,oneof=percentage flat"`
	DiscountValue decimal.Decimal `json:"discountValue"`
	MinOrderValue decimal.Decimal `json:"minOrderValue"`
	ExpiresAt     time.Time       `json:"expiry" binding:"required"`
	Active        *bool           `json:"isActive"`
	UsageLimit    *int            `json:"usageLimit" binding:"omitempty,min=0"`
}

type productRequest struct {
	ID            string              `json:"id"`
	Name          string              `json:"name" binding:"required"`
	Description   string              `json:"description"`
	Category      string              `json:"category"`
	Brand         string              `json:"brand"`
	Price         decimal.Decimal     `json:"price"`
	DiscountPrice decimal.NullDecimal `json:"discountPrice"`
	Stock         int                 `json:"stock" binding:"min=0"`
}

func (r *productRequest) product(id string) *product.Product {
	return &product.Product{
		ID:            id,
		Name:          r.Name,
		Description:   r.Description,
		Category:      r.Category,
		Brand:         r.Brand,
		Price:         r.Price,
		DiscountPrice: r.DiscountPrice,
		Stock:         r.Stock,
	}
}

type productQuery struct {
	Search   string `form:"search"`
	Category string `form:"category"`
	MinPrice string `form:"minPrice"`
	MaxPrice string `form:"maxPrice"`
}

type reviewRequest struct {
	Rating  int    `json:"rating" binding:"required"`
	Comment string `json:"comment"`
}

type wishlistRequest struct {
	ProductID string `json:"productId" binding:"required"`
}

type stockRequest struct {
	Stock *int `json:"stock" binding:"required,min=0"`
}

type orderLineResponse struct {
	ProductID string `json:"productId"`
	Name      string `json:"name"`
	Quantity  int    `json:"quantity"`
	UnitPrice money  `json:"unitPrice"`
	Amount    money  `json:"amount"`
}

type orderResponse struct {
	ID              string              `json:"id"`
	UserID          string              `json:"userId"`
	Items           []orderLineResponse `json:"items"`
	ShippingAddress addressDTO          `json:"shippingAddress"`
	Subtotal        money               `json:"subtotal"`
	Discount        money               `json:"discount"`
	DeliveryCharge  money               `json:"deliveryCharge"`
	Total           money               `json:"total"`
	PaymentStatus   string              `json:"paymentStatus"`
	OrderStatus     string              `json:"orderStatus"`
	CouponCode      string              `json:"couponCode,omitempty"`
	PaymentRef      string              `json:"paymentRef,omitempty"`
	CreatedAt       time.Time           `json:"createdAt"`
	UpdatedAt       time.Time           `json:"updatedAt"`
}

func toOrderResponse(o *order.Order) orderResponse {
	items := make([]orderLineResponse, 0, len(o.Lines))
	for _, l := range o.Lines {
		items = append(items, orderLineResponse{
			ProductID: l.ProductID,
			Name:      l.Name,
			Quantity:  l.Quantity,
			UnitPrice: money(l.UnitPrice),
			Amount:    money(l.Amount()),
		})
	}
	return orderResponse{
		ID:              o.ID,
		UserID:          o.UserID,
		Items:           items,
		ShippingAddress: addressDTO(o.ShippingAddress),
		Subtotal:        money(o.Subtotal),
		Discount:        money(o.Discount),
		DeliveryCharge:  money(o.DeliveryCharge),
		Total:           money(o.Total),
		PaymentStatus:   string(o.PaymentStatus),
		OrderStatus:     string(o.Status),
		CouponCode:      o.CouponCode,
		PaymentRef:      o.PaymentRef,
		CreatedAt:       o.CreatedAt,
		UpdatedAt:       o.UpdatedAt,
	}
}

func toOrderResponses(orders []order.Order) []orderResponse {
	out := make([]orderResponse, 0, len(orders))
	for i := range orders {
		out = append(out, toOrderResponse(&orders[i]))
	}
	return out
}

type productResponse struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Description   string    `json:"description,omitempty"`
	Category      string    `json:"category,omitempty"`
	Brand         string    `json:"brand,omitempty"`
	Price         money     `json:"price"`
	DiscountPrice *money    `json:"discountPrice,omitempty"`
	Stock         int       `json:"stock"`
	CreatedAt     time.Time `json:"createdAt"`
}

func toProductResponse(p *product.Product) productResponse {
	resp := productResponse{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Category:    p.Category,
		Brand:       p.Brand,
		Price:       money(p.Price),
		Stock:       p.Stock,
		CreatedAt:   p.CreatedAt,
	}
	if p.DiscountPrice.Valid {
		dp := money(p.DiscountPrice.Decimal)
		resp.DiscountPrice = &dp
	}
	return resp
}

func toProductResponses(products []product.Product) []productResponse {
	out := make([]productResponse, 0, len(products))
	for i := range products {
		out = append(out, toProductResponse(&products[i]))
	}
	return out
}

type reviewResponse struct {
	UserID    string    `json:"userId"`
	Rating    int       `json:"rating"`
	Comment   string    `json:"comment,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

func toReviewResponse(r *review.Review) reviewResponse {
	return reviewResponse{
		UserID:    r.UserID,
		Rating:    r.Rating,
		Comment:   r.Comment,
		CreatedAt: r.CreatedAt,
	}
}

type productDetailResponse struct {
	productResponse
	AverageRating money            `json:"averageRating"`
	Reviews       []reviewResponse `json:"reviews"`
}

func toProductDetailResponse(p *product.Product, sum *review.Summary) productDetailResponse {
	resp := productDetailResponse{
		productResponse: toProductResponse(p),
		AverageRating:   money(sum.Average),
		Reviews:         make([]reviewResponse, 0, len(sum.Reviews)),
	}
	for i := range sum.Reviews {
		resp.Reviews = append(resp.Reviews, toReviewResponse(&sum.Reviews[i]))
	}
	return resp
}

type wishlistResponse struct {
	Products []productResponse `json:"products"`
}

type cartLineResponse struct {
	ProductID string          `json:"productId"`
	Quantity  int             `json:"quantity"`
	AddedAt   time.Time       `json:"addedAt"`
	Product   productResponse `json:"product"`
	Amount    money           `json:"amount"`
}

type cartResponse struct {
	Items    []cartLineResponse `json:"items"`
	Subtotal money              `json:"subtotal"`
}

func toCartResponse(lines []cart.Line) cartResponse {
	resp := cartResponse{Items: make([]cartLineResponse, 0, len(lines))}
	subtotal := decimal.Zero
	for i := range lines {
		l := &lines[i]
		amount := l.Product.UnitPrice().Mul(decimal.NewFromInt(int64(l.Quantity)))
		subtotal = subtotal.Add(amount)
		resp.Items = append(resp.Items, cartLineResponse{
			ProductID: l.ProductID,
			Quantity:  l.Quantity,
			AddedAt:   l.AddedAt,
			Product:   toProductResponse(&l.Product),
			Amount:    money(amount),
		})
	}
	resp.Subtotal = money(subtotal.Round(2))
	return resp
}

type couponSummary struct {
	Code          string `json:"code"`
	DiscountType  string `json:"discountType"`
	DiscountValue money  `json:"discountValue"`
}

type applyCouponResponse struct {
	Valid    bool          `json:"valid"`
	Discount money         `json:"discount"`
	Coupon   couponSummary `json:"coupon"`
}

type couponResponse struct {
	Code          string    `json:"code"`
	DiscountType  string    `json:"discountType"`
	DiscountValue money     `json:"discountValue"`
	MinOrderValue money     `json:"minOrderValue"`
	ExpiresAt     time.Time `json:"expiry"`
	Active        bool      `json:"isActive"`
	UsageLimit    *int      `json:"usageLimit,omitempty"`
	UsedCount     int       `json:"usedCount"`
	CreatedAt     time.Time `json:"createdAt"`
}

func toCouponResponse(c *coupon.Coupon) couponResponse {
	return couponResponse{
		Code:          c.Code,
		DiscountType:  string(c.DiscountType),
		DiscountValue: money(c.DiscountValue),
		MinOrderValue: money(c.MinOrderValue),
		ExpiresAt:     c.ExpiresAt,
		Active:        c.Active,
		UsageLimit:    c.UsageLimit,
		UsedCount:     c.UsedCount,
		CreatedAt:     c.CreatedAt,
	}
}
