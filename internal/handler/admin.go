package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/shopprime/storefront/internal/domain/coupon"
	"github.com/shopprime/storefront/internal/domain/order"
)

// AdminListOrders lists all orders, optionally filtered by ?status=.
func (h *Handler) AdminListOrders(c *gin.Context) {
	orders, err := h.orders.List(c.Request.Context(), order.Status(c.Query("status")))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toOrderResponses(orders))
}

func (h *Handler) AdminGetOrder(c *gin.Context) {
	o, err := h.orders.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toOrderResponse(o))
}

func (h *Handler) AdminUpdateOrderStatus(c *gin.Context) {
	var req orderStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	o, err := h.orders.UpdateStatus(c.Request.Context(), c.Param("id"), order.Status(req.Status))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toOrderResponse(o))
}

func (h *Handler) AdminUpdatePaymentStatus(c *gin.Context) {
	var req paymentStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	o, err := h.orders.UpdatePaymentStatus(c.Request.Context(), c.Param("id"), order.PaymentStatus(req.PaymentStatus))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toOrderResponse(o))
}

func (h *Handler) AdminListCoupons(c *gin.Context) {
	coupons, err := h.couponDB.List(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	resp := make([]couponResponse, 0, len(coupons))
	for i := range coupons {
		resp = append(resp, toCouponResponse(&coupons[i]))
	}
	c.JSON(http.StatusOK, resp)
}

// AdminCreateCoupon creates a coupon or redefines an existing code. The
// used count of an existing code is kept.
func (h *Handler) AdminCreateCoupon(c *gin.Context) {
	var req couponRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	cp := &coupon.Coupon{
		Code:          coupon.NormalizeCode(req.Code),
		DiscountType:  coupon.DiscountType(req.DiscountType),
		DiscountValue: req.DiscountValue,
		MinOrderValue: req.MinOrderValue,
		ExpiresAt:     req.ExpiresAt.UTC(),
		Active:        req.Active == nil || *req.Active,
		UsageLimit:    req.UsageLimit,
	}
	if err := cp.Validate(); err != nil {
		abort(c, http.StatusBadRequest, err.Error())
		return
	}

	ctx := c.Request.Context()
	if err := h.couponDB.Create(ctx, cp); err != nil {
		fail(c, err)
		return
	}
	zctx.From(ctx).Info("Coupon saved", zap.String("code", cp.Code))
	c.JSON(http.StatusCreated, toCouponResponse(cp))
}

func (h *Handler) AdminDeleteCoupon(c *gin.Context) {
	ctx := c.Request.Context()
	code := coupon.NormalizeCode(c.Param("code"))
	if err := h.couponDB.Delete(ctx, code); err != nil {
		fail(c, err)
		return
	}
	zctx.From(ctx).Info("Coupon deleted", zap.String("code", code))
	c.Status(http.StatusNoContent)
}

func (h *Handler) AdminCreateProduct(c *gin.Context) {
	var req productRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	p := req.product(req.ID)
	if err := p.Validate(); err != nil {
		abort(c, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.catalog.Create(c.Request.Context(), p); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, toProductResponse(p))
}

// AdminUpdateProduct replaces every editable field of a product, stock
// included.
func (h *Handler) AdminUpdateProduct(c *gin.Context) {
	var req productRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	p := req.product(c.Param("id"))
	if err := p.Validate(); err != nil {
		abort(c, http.StatusBadRequest, err.Error())
		return
	}
	ctx := c.Request.Context()
	if err := h.catalog.Update(ctx, p); err != nil {
		fail(c, err)
		return
	}
	zctx.From(ctx).Info("Product updated", zap.String("product_id", p.ID))
	c.JSON(http.StatusOK, toProductResponse(p))
}

// AdminDeleteProduct removes a product from the catalog. Placed orders keep
// their line snapshots.
func (h *Handler) AdminDeleteProduct(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")
	if err := h.catalog.Delete(ctx, id); err != nil {
		fail(c, err)
		return
	}
	zctx.From(ctx).Info("Product deleted", zap.String("product_id", id))
	c.Status(http.StatusNoContent)
}

func (h *Handler) AdminSetStock(c *gin.Context) {
	var req stockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	ctx := c.Request.Context()
	id := c.Param("id")
	if err := h.catalog.SetStock(ctx, id, *req.Stock); err != nil {
		fail(c, err)
		return
	}
	p, err := h.catalog.GetByID(ctx, id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toProductResponse(p))
}
