package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (h *Handler) GetWishlist(c *gin.Context) {
	h.respondWishlist(c)
}

func (h *Handler) AddToWishlist(c *gin.Context) {
	var req wishlistRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if err := h.wishlist.Add(c.Request.Context(), userID(c), req.ProductID); err != nil {
		fail(c, err)
		return
	}
	h.respondWishlist(c)
}

// RemoveFromWishlist drops a product. Removing an absent product still
// returns the wishlist.
func (h *Handler) RemoveFromWishlist(c *gin.Context) {
	if err := h.wishlist.Remove(c.Request.Context(), userID(c), c.Param("productId")); err != nil {
		fail(c, err)
		return
	}
	h.respondWishlist(c)
}

func (h *Handler) respondWishlist(c *gin.Context) {
	products, err := h.wishlist.Get(c.Request.Context(), userID(c))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, wishlistResponse{Products: toProductResponses(products)})
}
