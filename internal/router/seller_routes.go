package router

import (
	"github.com/labstack/echo/v4"

	"github.com/fudly/marketplace-api/internal/handler"
	"github.com/fudly/marketplace-api/internal/middleware"
	"github.com/fudly/marketplace-api/internal/model"
)

// RegisterSeller registers store and offer management endpoints under
// /v1/seller.  Applying for a store is open to customers since that is how
// one becomes a seller; everything else requires the seller role.
func RegisterSeller(e *echo.Echo, h *handler.SellerHandler, jwtSecret string) {
	apply := e.Group(
		"/v1/seller",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(model.RoleCustomer, model.RoleSeller, model.RoleAdmin),
	)
	apply.POST("/stores", h.CreateStore)
	apply.GET("/stores", h.MyStores)

	g := e.Group(
		"/v1/seller",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(model.RoleSeller, model.RoleAdmin),
	)
	g.POST("/offers", h.CreateOffer)
	g.DELETE("/offers/:id", h.DeleteOffer)
	g.GET("/stores/:id/offers", h.StoreOffers)
	g.GET("/stores/:id/bookings", h.StoreBookings)
	g.POST("/redeem", h.Redeem)
}
