package marketplace

import (
	"github.com/gin-gonic/gin"

	"tradedaemon/internal/middleware"
)

// RegisterRoutes wires the Marketplace Service's endpoints onto r, grouped
// under /api/v1/marketplace.
func RegisterRoutes(r *gin.Engine, svc *Service) {
	c := NewController(svc)

	group := r.Group("/api/v1/marketplace")
	{
		group.GET("/listings", c.Browse)

		authed := group.Group("")
		authed.Use(middleware.AuthMiddleware())
		authed.POST("/listings", c.Publish)
		authed.POST("/listings/:id/adopt", c.Adopt)
	}
}
