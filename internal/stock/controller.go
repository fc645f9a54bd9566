package stock

import (
	"net/http"
	"time"

	"summitpass/internal/shared/utils/response"
	"summitpass/pkg/cache"

	"github.com/gin-gonic/gin"
)

const stockListCacheKey = "stock:list"

type Controller struct {
	service  Service
	cache    cache.Service
	cacheTTL time.Duration
}

func NewController(service Service, cacheService cache.Service, cacheTTL time.Duration) *Controller {
	return &Controller{
		service:  service,
		cache:    cacheService,
		cacheTTL: cacheTTL,
	}
}

// ListStock handles GET /api/v1/stock
//
// The sales page polls this endpoint; a short-lived cached snapshot keeps
// that traffic off Postgres. Slightly stale availability is fine because
// the purchase path re-checks atomically.
func (c *Controller) ListStock(ctx *gin.Context) {
	var views []StockView

	fetch := func() (interface{}, error) {
		return c.service.ListStock(ctx.Request.Context())
	}

	if c.cache != nil {
		if err := c.cache.GetOrSet(ctx.Request.Context(), stockListCacheKey, c.cacheTTL, fetch, &views); err != nil {
			response.Error(ctx, http.StatusInternalServerError, "Failed to load stock", nil)
			return
		}
	} else {
		var err error
		views, err = c.service.ListStock(ctx.Request.Context())
		if err != nil {
			response.Error(ctx, http.StatusInternalServerError, "Failed to load stock", nil)
			return
		}
	}

	response.Success(ctx, http.StatusOK, "Stock retrieved successfully", views)
}

// SeedStockRequest represents the admin seed request body
type SeedStockRequest struct {
	TicketType string `json:"ticketType" binding:"required"`
	Total      int    `json:"total" binding:"required,min=0"`
}

// SeedStock handles POST /api/v1/admin/stock/seed
func (c *Controller) SeedStock(ctx *gin.Context) {
	var req SeedStockRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		response.Error(ctx, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}

	ticketType := TicketType(req.TicketType)
	if err := c.service.Seed(ctx.Request.Context(), ticketType, req.Total); err != nil {
		if err == ErrUnknownTicketType {
			response.Error(ctx, http.StatusBadRequest, "Unknown ticket type", nil)
			return
		}
		response.Error(ctx, http.StatusInternalServerError, "Failed to seed stock", nil)
		return
	}

	// Drop the public snapshot so the new capacity shows up immediately
	if c.cache != nil {
		_ = c.cache.Delete(ctx.Request.Context(), stockListCacheKey)
	}

	response.Success(ctx, http.StatusOK, "Stock seeded successfully", gin.H{
		"ticket_type": req.TicketType,
		"total":       req.Total,
	})
}
