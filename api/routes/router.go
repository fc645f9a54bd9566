package routes

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"summitpass/internal/auth"
	"summitpass/internal/notifications"
	"summitpass/internal/orders"
	"summitpass/internal/payments"
	"summitpass/internal/reconcile"
	"summitpass/internal/reservations"
	"summitpass/internal/shared/clock"
	"summitpass/internal/shared/config"
	"summitpass/internal/shared/database"
	"summitpass/internal/shared/middleware"
	"summitpass/internal/stock"
	"summitpass/internal/tickets"
	"summitpass/pkg/cache"
	"summitpass/pkg/logger"
)

// Router holds all route dependencies
type Router struct {
	config     *config.Config
	db         *database.DB
	dispatcher notifications.Dispatcher
	log        *logger.Logger

	// Retained for the background sweep job started from main.
	reservationService reservations.Service
}

// NewRouter creates a new router instance
func NewRouter(cfg *config.Config, db *database.DB, dispatcher notifications.Dispatcher, log *logger.Logger) *Router {
	return &Router{
		config:     cfg,
		db:         db,
		dispatcher: dispatcher,
		log:        log,
	}
}

// ReservationService exposes the wired reservation service so main can
// attach the expiry sweep job to it.
func (r *Router) ReservationService() reservations.Service {
	return r.reservationService
}

// SetupRoutes configures all application routes
func (r *Router) SetupRoutes(engine *gin.Engine) {
	r.setupHealthRoutes(engine)

	pg := r.db.GetPostgreSQL()
	rdb := r.db.GetRedisClient()

	// Stock ledger
	stockRepo := stock.NewRepository(pg)
	stockService := stock.NewService(stockRepo, r.log)
	stockController := stock.NewController(stockService, cache.NewService(rdb), r.config.Redis.StockCacheTTL)

	// Reservations
	reservationRepo := reservations.NewRepository(pg)
	reservationService := reservations.NewService(reservationRepo, stockService, clock.System(), r.config.Tickets.ReservationTTL, r.log)
	r.reservationService = reservationService

	// Orders
	orderRepo := orders.NewRepository(pg)

	// Payment gateway
	gatewayClient := payments.NewClient(r.config.Gateway, r.log)
	webhookVerifier := payments.NewWebhookVerifier(r.config.Gateway.IPNSecret)

	// Ticket artifacts
	ticketGenerator := tickets.NewGenerator(r.config.Tickets.TicketSecret)

	// Reconciliation engine
	deduper := reconcile.NewRedisDeduper(rdb, r.config.Redis.WebhookDedupTTL)
	reconcileService := reconcile.NewService(
		orderRepo,
		reservationService,
		stockService,
		gatewayClient,
		webhookVerifier,
		r.dispatcher,
		ticketGenerator,
		deduper,
		r.log,
	)
	reconcileController := reconcile.NewController(reconcileService, orderRepo)

	// Purchase surface
	orderService := orders.NewService(
		orderRepo,
		reservationService,
		gatewayClient,
		reconcileService,
		r.dispatcher,
		clock.System(),
		r.config,
		r.log,
	)
	orderController := orders.NewController(orderService)

	// Admin auth
	authService := auth.NewService(r.config)
	authController := auth.NewController(authService, r.log)

	api := engine.Group(r.config.GetAPIBasePath())
	{
		stock.SetupStockRoutes(api, stockController)
		orders.SetupOrderRoutes(api, orderController)
		reconcile.SetupWebhookRoutes(api, reconcileController)

		admin := api.Group("/admin")
		{
			auth.SetupAuthRoutes(admin, authController)

			protected := admin.Group("")
			protected.Use(middleware.JWTAuth(r.config), middleware.RequireAdmin())
			{
				reconcile.SetupAdminRoutes(protected, reconcileController)
				stock.SetupAdminStockRoutes(protected, stockController)
			}
		}
	}
}

// setupHealthRoutes sets up health check and system status routes
func (r *Router) setupHealthRoutes(engine *gin.Engine) {
	engine.GET("/health", func(c *gin.Context) {
		if err := r.db.HealthCheck(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":    "unhealthy",
				"error":     err.Error(),
				"timestamp": time.Now(),
				"service":   "summitpass-backend",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"timestamp": time.Now(),
			"service":   "summitpass-backend",
		})
	})

	engine.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "pong",
			"version": r.config.APIVersion,
		})
	})
}
