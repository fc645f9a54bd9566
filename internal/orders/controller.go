package orders

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"summitpass/internal/payments"
	"summitpass/internal/shared/utils/response"
	"summitpass/internal/stock"
)

type Controller struct {
	service Service
}

func NewController(service Service) *Controller {
	return &Controller{service: service}
}

// CreateOrder handles POST /api/v1/orders
func (c *Controller) CreateOrder(ctx *gin.Context) {
	var req CreateOrderRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		response.Error(ctx, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}

	purchase, err := c.service.CreateOrder(ctx.Request.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidTicketType), errors.Is(err, ErrInvalidQuantity):
			response.Error(ctx, http.StatusBadRequest, err.Error(), nil)
		case errors.Is(err, stock.ErrInsufficientStock):
			response.Error(ctx, http.StatusConflict, "Not enough tickets available", nil)
		case errors.Is(err, payments.ErrGatewayUnavailable):
			response.Error(ctx, http.StatusBadGateway, "Payment gateway unavailable, please retry", nil)
		default:
			response.Error(ctx, http.StatusInternalServerError, "Failed to create order", nil)
		}
		return
	}

	response.Success(ctx, http.StatusCreated, "Order created successfully", purchase)
}

// CancelOrder handles POST /api/v1/orders/cancel
func (c *Controller) CancelOrder(ctx *gin.Context) {
	var req PaymentIDRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		response.Error(ctx, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}

	order, err := c.service.CancelOrder(ctx.Request.Context(), req.PaymentID)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			response.Error(ctx, http.StatusNotFound, "Order not found", nil)
		case errors.Is(err, ErrNotCancellable):
			response.Error(ctx, http.StatusConflict, "Order can no longer be cancelled", nil)
		default:
			response.Error(ctx, http.StatusInternalServerError, "Failed to cancel order", nil)
		}
		return
	}

	response.Success(ctx, http.StatusOK, "Order cancelled", order.ToSnapshot())
}

// PollStatus handles POST /api/v1/orders/status
func (c *Controller) PollStatus(ctx *gin.Context) {
	var req PaymentIDRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		response.Error(ctx, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}

	order, err := c.service.PollStatus(ctx.Request.Context(), req.PaymentID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			response.Error(ctx, http.StatusNotFound, "Order not found", nil)
			return
		}
		response.Error(ctx, http.StatusInternalServerError, "Failed to check payment status", nil)
		return
	}

	response.Success(ctx, http.StatusOK, "Payment status retrieved", order.ToSnapshot())
}

// ResendTicketEmail handles POST /api/v1/orders/resend-email
func (c *Controller) ResendTicketEmail(ctx *gin.Context) {
	var req ResendEmailRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		response.Error(ctx, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}

	orderID, err := uuid.Parse(req.OrderID)
	if err != nil {
		response.Error(ctx, http.StatusBadRequest, "Invalid order id", nil)
		return
	}

	if err := c.service.ResendTicketEmail(ctx.Request.Context(), orderID); err != nil {
		var cooldown *CooldownError
		switch {
		case errors.Is(err, ErrNotFound):
			response.Error(ctx, http.StatusNotFound, "Order not found", nil)
		case errors.Is(err, ErrResendNotEligible):
			response.Error(ctx, http.StatusConflict, "Ticket email is only available for completed orders", nil)
		case errors.As(err, &cooldown):
			response.Error(ctx, http.StatusTooManyRequests, "Please wait before requesting another email", gin.H{
				"retryAfterSeconds": int(cooldown.Remaining.Seconds()),
			})
		default:
			response.Error(ctx, http.StatusInternalServerError, "Failed to re-send ticket email", nil)
		}
		return
	}

	response.Success(ctx, http.StatusOK, "Ticket email queued", nil)
}

// ReservationTime handles POST /api/v1/orders/reservation-time
func (c *Controller) ReservationTime(ctx *gin.Context) {
	var req PaymentIDRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		response.Error(ctx, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}

	remaining, err := c.service.ReservationTime(ctx.Request.Context(), req.PaymentID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			response.Error(ctx, http.StatusNotFound, "Reservation not found", nil)
			return
		}
		response.Error(ctx, http.StatusInternalServerError, "Failed to check reservation", nil)
		return
	}

	response.Success(ctx, http.StatusOK, "Reservation time retrieved", remaining)
}
