package router

import (
	"github.com/labstack/echo/v4"

	"github.com/fudly/marketplace-api/internal/handler"
	"github.com/fudly/marketplace-api/internal/middleware"
	"github.com/fudly/marketplace-api/internal/model"
)

// RegisterAdmin registers moderation and dashboard endpoints under
// /v1/admin.  Admin accounts are provisioned out of band; there is no
// self-service path to this role.
func RegisterAdmin(e *echo.Echo, h *handler.AdminHandler, jwtSecret string) {
	g := e.Group(
		"/v1/admin",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(model.RoleAdmin),
	)
	g.GET("/stores/pending", h.PendingStores)
	g.POST("/stores/:id/approve", h.ApproveStore)
	g.POST("/stores/:id/reject", h.RejectStore)
	g.GET("/stats", h.PlatformStats)
}
