package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4"

	"github.com/fudly/marketplace-api/internal/handler"
	"github.com/fudly/marketplace-api/internal/middleware"
	"github.com/fudly/marketplace-api/internal/model"
)

// RegisterRoutes registers routes that do not require authentication on the
// provided Echo instance.  Currently it exposes only a health check.
func RegisterRoutes(e *echo.Echo) {
	// Used by load balancers and monitoring to verify the service is up.
	e.GET("/healthz", handler.Health)
}

// RegisterAuth registers all authentication-related routes.
// Unauthenticated operations live under /v1/auth, while protected
// endpoints live under /v1.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, jwtSecret string) {
	g := e.Group("/v1/auth")
	g.POST("/register", a.Register)
	g.POST("/login", a.Login)
	// Rotates the refresh token.
	g.POST("/refresh", a.Refresh)
	// Issues a new access token without rotating the refresh token.
	g.POST("/refresh-access", a.RefreshAccess)
	// Logout accepts a refresh token in the body, or revokes every session
	// when called with a bearer token and no body.
	g.POST("/logout", a.Logout)

	auth := e.Group("/v1")
	auth.Use(middleware.JWTAuth(jwtSecret))
	auth.Use(middleware.RequireRole(model.RoleCustomer, model.RoleSeller, model.RoleAdmin))
	auth.GET("/me", a.Me)

	// Kept at the top level as well so clients can log out without a JWT.
	e.POST("/v1/logout", a.Logout)
}

// RegisterPublic registers unauthenticated browse endpoints: reservable
// offers and approved stores.  These are the read-heavy routes; main mounts
// the response cache and rate limit middleware in front of them.
func RegisterPublic(e *echo.Echo, p *handler.PublicHandler, mw ...echo.MiddlewareFunc) {
	e.GET("/v1/offers", p.ListOffers, mw...)
	e.GET("/v1/offers/:id", p.GetOffer, mw...)
	e.GET("/v1/stores", p.ListStores, mw...)
	e.GET("/v1/stores/:id", p.GetStore, mw...)
}
