package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (h *Handler) GetCart(c *gin.Context) {
	h.respondCart(c, http.StatusOK)
}

// AddToCart adds one unit unless a quantity is given.
func (h *Handler) AddToCart(c *gin.Context) {
	var req addToCartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	qty := 1
	if req.Quantity != nil {
		qty = *req.Quantity
	}
	if err := h.carts.AddItem(c.Request.Context(), userID(c), req.ProductID, qty); err != nil {
		fail(c, err)
		return
	}
	h.respondCart(c, http.StatusOK)
}

func (h *Handler) SetCartQuantity(c *gin.Context) {
	var req setQuantityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if err := h.carts.SetQuantity(c.Request.Context(), userID(c), c.Param("productId"), *req.Quantity); err != nil {
		fail(c, err)
		return
	}
	h.respondCart(c, http.StatusOK)
}

func (h *Handler) RemoveFromCart(c *gin.Context) {
	if err := h.carts.RemoveItem(c.Request.Context(), userID(c), c.Param("productId")); err != nil {
		fail(c, err)
		return
	}
	h.respondCart(c, http.StatusOK)
}

func (h *Handler) ClearCart(c *gin.Context) {
	if err := h.carts.Clear(c.Request.Context(), userID(c)); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) respondCart(c *gin.Context, status int) {
	lines, err := h.carts.Get(c.Request.Context(), userID(c))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(status, toCartResponse(lines))
}
