package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/shopprime/storefront/internal/domain/product"
	"github.com/shopprime/storefront/internal/domain/review"
)

// ListProducts lists the catalog, narrowed by ?search=, ?category=,
// ?minPrice= and ?maxPrice=.
func (h *Handler) ListProducts(c *gin.Context) {
	var q productQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		abort(c, http.StatusBadRequest, "invalid query: "+err.Error())
		return
	}
	f, err := q.filter()
	if err != nil {
		abort(c, http.StatusBadRequest, err.Error())
		return
	}

	products, err := h.catalog.List(c.Request.Context(), f)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toProductResponses(products))
}

func (h *Handler) ListCategories(c *gin.Context) {
	categories, err := h.catalog.Categories(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, categories)
}

// GetProduct returns the product with its reviews and average rating.
func (h *Handler) GetProduct(c *gin.Context) {
	ctx := c.Request.Context()
	p, err := h.catalog.GetByID(ctx, c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	sum, err := h.reviews.Summary(ctx, p.ID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toProductDetailResponse(p, sum))
}

func (h *Handler) RelatedProducts(c *gin.Context) {
	related, err := product.Related(c.Request.Context(), h.catalog, c.Param("id"), product.RelatedLimit)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toProductResponses(related))
}

func (h *Handler) AddReview(c *gin.Context) {
	var req reviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	r := &review.Review{
		ProductID: c.Param("id"),
		UserID:    userID(c),
		Rating:    req.Rating,
		Comment:   req.Comment,
	}
	if err := h.reviews.Add(c.Request.Context(), r); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, toReviewResponse(r))
}

func (q productQuery) filter() (product.Filter, error) {
	f := product.Filter{Query: q.Search, Category: q.Category}
	var err error
	if f.MinPrice, err = parsePrice("minPrice", q.MinPrice); err != nil {
		return f, err
	}
	if f.MaxPrice, err = parsePrice("maxPrice", q.MaxPrice); err != nil {
		return f, err
	}
	return f, f.Validate()
}

func parsePrice(name, s string) (decimal.NullDecimal, error) {
	if s == "" {
		return decimal.NullDecimal{}, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.NullDecimal{}, errors.Errorf("%s must be a number", name)
	}
	return decimal.NewNullDecimal(d), nil
}
