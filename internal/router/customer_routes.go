package router

import (
	"github.com/labstack/echo/v4"

	"github.com/fudly/marketplace-api/internal/handler"
	"github.com/fudly/marketplace-api/internal/middleware"
	"github.com/fudly/marketplace-api/internal/model"
)

// RegisterCustomer registers the booking lifecycle endpoints under /v1.
// Any authenticated user may book; sellers and admins buy like everyone
// else.
func RegisterCustomer(e *echo.Echo, h *handler.CustomerHandler, jwtSecret string) {
	g := e.Group(
		"/v1",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(model.RoleCustomer, model.RoleSeller, model.RoleAdmin),
	)
	g.POST("/bookings", h.CreateBooking)
	g.GET("/bookings", h.ListBookings)
	g.GET("/bookings/:id", h.GetBooking)
	g.DELETE("/bookings/:id", h.CancelBooking)
}
