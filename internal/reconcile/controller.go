package reconcile

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"summitpass/internal/orders"
	"summitpass/internal/payments"
	"summitpass/internal/shared/utils/response"
)

// Gateway signature header for IPN callbacks.
const signatureHeader = "x-nowpayments-sig"

type Controller struct {
	service    Service
	ordersRepo orders.Repository
}

func NewController(service Service, ordersRepo orders.Repository) *Controller {
	return &Controller{service: service, ordersRepo: ordersRepo}
}

// HandleWebhook handles POST /api/v1/payments/webhook
//
// The response deliberately does not distinguish a bad signature from a
// malformed body: callers probing the endpoint learn nothing.
func (c *Controller) HandleWebhook(ctx *gin.Context) {
	rawBody, err := io.ReadAll(ctx.Request.Body)
	if err != nil {
		response.Error(ctx, http.StatusBadRequest, "Invalid webhook", nil)
		return
	}

	_, err = c.service.HandleWebhook(ctx.Request.Context(), rawBody, ctx.GetHeader(signatureHeader), ctx.ClientIP())
	if err != nil {
		if errors.Is(err, payments.ErrUnauthorized) {
			response.Error(ctx, http.StatusUnauthorized, "Invalid webhook", nil)
			return
		}
		response.Error(ctx, http.StatusBadRequest, "Invalid webhook", nil)
		return
	}

	response.Success(ctx, http.StatusOK, "Webhook processed", nil)
}

// ResyncRequest represents the admin resync request body
type ResyncRequest struct {
	Force bool `json:"force"`
}

// ResyncOrder handles POST /api/v1/admin/orders/:id/resync
func (c *Controller) ResyncOrder(ctx *gin.Context) {
	orderID, err := uuid.Parse(ctx.Param("id"))
	if err != nil {
		response.Error(ctx, http.StatusBadRequest, "Invalid order id", nil)
		return
	}

	var req ResyncRequest
	if ctx.Request.ContentLength > 0 {
		if err := ctx.ShouldBindJSON(&req); err != nil {
			response.Error(ctx, http.StatusBadRequest, "Invalid request body", err.Error())
			return
		}
	}

	order, err := c.ordersRepo.GetByID(ctx.Request.Context(), orderID)
	if err != nil {
		response.Error(ctx, http.StatusNotFound, "Order not found", nil)
		return
	}
	if order.PaymentID == nil {
		response.Error(ctx, http.StatusConflict, "Order has no payment attached", nil)
		return
	}

	resynced, err := c.service.ForceResync(ctx.Request.Context(), *order.PaymentID, req.Force)
	if err != nil {
		response.Error(ctx, http.StatusBadGateway, "Failed to resync order", err.Error())
		return
	}

	response.Success(ctx, http.StatusOK, "Order resynced", resynced.ToSnapshot())
}
