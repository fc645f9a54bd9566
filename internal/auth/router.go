package auth

import "github.com/gin-gonic/gin"

// SetupAuthRoutes registers the admin login endpoint.
func SetupAuthRoutes(rg *gin.RouterGroup, controller *Controller) {
	rg.POST("/login", controller.Login)
}
