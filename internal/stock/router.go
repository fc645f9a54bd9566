package stock

import (
	"github.com/gin-gonic/gin"
)

// SetupStockRoutes configures public stock routes
func SetupStockRoutes(rg *gin.RouterGroup, controller *Controller) {
	rg.GET("/stock", controller.ListStock) // GET /api/v1/stock
}

// SetupAdminStockRoutes configures admin stock routes; the caller attaches
// auth middleware to the group.
func SetupAdminStockRoutes(rg *gin.RouterGroup, controller *Controller) {
	rg.POST("/stock/seed", controller.SeedStock) // POST /api/v1/admin/stock/seed
}
