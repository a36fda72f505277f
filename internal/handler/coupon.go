package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// ApplyCoupon previews the discount a code gives on orderAmount without
// consuming a use.
func (h *Handler) ApplyCoupon(c *gin.Context) {
	var req applyCouponRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if req.OrderAmount.IsNegative() {
		abort(c, http.StatusBadRequest, "orderAmount must not be negative")
		return
	}

	v, err := h.coupons.Preview(c.Request.Context(), req.Code, req.OrderAmount)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, applyCouponResponse{
		Valid:    true,
		Discount: money(v.Discount),
		Coupon: couponSummary{
			Code:          v.Coupon.Code,
			DiscountType:  string(v.Coupon.DiscountType),
			DiscountValue: money(v.Coupon.DiscountValue),
		},
	})
}
