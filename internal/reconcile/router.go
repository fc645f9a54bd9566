package reconcile

import "github.com/gin-gonic/gin"

// SetupWebhookRoutes registers the gateway callback endpoint.
func SetupWebhookRoutes(rg *gin.RouterGroup, controller *Controller) {
	payments := rg.Group("/payments")
	{
		payments.POST("/webhook", controller.HandleWebhook)
	}
}

// SetupAdminRoutes registers the admin resync endpoint. The group is
// expected to carry admin auth middleware already.
func SetupAdminRoutes(rg *gin.RouterGroup, controller *Controller) {
	adminOrders := rg.Group("/orders")
	{
		adminOrders.POST("/:id/resync", controller.ResyncOrder)
	}
}
