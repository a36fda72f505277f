package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/shopprime/storefront/internal/domain/cart"
	"github.com/shopprime/storefront/internal/domain/coupon"
	"github.com/shopprime/storefront/internal/domain/order"
	"github.com/shopprime/storefront/internal/domain/product"
	"github.com/shopprime/storefront/internal/domain/review"
)

type errorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func abort(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, errorResponse{Code: status, Message: msg})
}

// statusOf maps a domain error to its HTTP status. Unknown errors are 500.
func statusOf(err error) int {
	var verr *order.ValidationError
	switch {
	case errors.As(err, &verr),
		errors.Is(err, cart.ErrEmpty),
		errors.Is(err, cart.ErrInvalidQuantity),
		errors.Is(err, product.ErrInsufficientStock):
		return http.StatusBadRequest
	case errors.Is(err, product.ErrNotFound),
		errors.Is(err, order.ErrNotFound),
		errors.Is(err, cart.ErrItemNotFound):
		return http.StatusNotFound
	case errors.Is(err, order.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, coupon.ErrCouponInvalid),
		errors.Is(err, coupon.ErrCouponExpired):
		return http.StatusNotFound
	case errors.Is(err, coupon.ErrMinOrderNotMet),
		errors.Is(err, coupon.ErrUsageLimitExceeded):
		return http.StatusBadRequest
	case errors.Is(err, review.ErrAlreadyReviewed),
		errors.Is(err, review.ErrInvalidRating),
		errors.Is(err, review.ErrCommentTooLong):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// fail writes err as an API error. Internal errors are logged and their
// message is not exposed.
func fail(c *gin.Context, err error) {
	status := statusOf(err)
	if status == http.StatusInternalServerError {
		zctx.From(c.Request.Context()).Error("Request failed",
			zap.String("route", c.FullPath()),
			zap.Error(err),
		)
		abort(c, status, "internal error")
		return
	}
	abort(c, status, err.Error())
}

// badRequest reports a body that failed to bind.
func badRequest(c *gin.Context, err error) {
	abort(c, http.StatusBadRequest, "invalid request body: "+err.Error())
}
