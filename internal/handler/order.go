package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/shopprime/storefront/internal/domain/order"
)

// PlaceOrder checks out the caller's cart.
func (h *Handler) PlaceOrder(c *gin.Context) {
	var req placeOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	ctx := c.Request.Context()
	if h.cfg.CheckoutTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.cfg.CheckoutTimeout)
		defer cancel()
	}

	o, err := h.orders.PlaceOrder(ctx, order.PlaceOrderRequest{
		UserID:          userID(c),
		ShippingAddress: order.Address(*req.ShippingAddress),
		CouponCode:      req.CouponCode,
		PaymentRef:      req.PaymentRef,
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, toOrderResponse(o))
}

// ListMyOrders returns the caller's orders, newest first.
func (h *Handler) ListMyOrders(c *gin.Context) {
	orders, err := h.orders.ListForUser(c.Request.Context(), userID(c))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toOrderResponses(orders))
}

// GetMyOrder returns one of the caller's orders. Orders of other users are
// reported as not found.
func (h *Handler) GetMyOrder(c *gin.Context) {
	o, err := h.orders.GetForUser(c.Request.Context(), userID(c), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toOrderResponse(o))
}
