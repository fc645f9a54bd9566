package orders

import "github.com/gin-gonic/gin"

// SetupOrderRoutes registers the customer-facing purchase endpoints.
func SetupOrderRoutes(rg *gin.RouterGroup, controller *Controller) {
	ordersGroup := rg.Group("/orders")
	{
		ordersGroup.POST("", controller.CreateOrder)
		ordersGroup.POST("/cancel", controller.CancelOrder)
		ordersGroup.POST("/status", controller.PollStatus)
		ordersGroup.POST("/resend-email", controller.ResendTicketEmail)
		ordersGroup.POST("/reservation-time", controller.ReservationTime)
	}
}
