// Package router wires handlers and middleware onto echo.
package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/social-media-api/internal/handler"
	"github.com/iliyamo/social-media-api/internal/middleware"
)

// APIPrefix is the root of every API route.
const APIPrefix = "/social-media-api"

// RegisterRoutes registers the unauthenticated operational endpoints. The
// readiness probe is only mounted when db is non-nil.
func RegisterRoutes(e *echo.Echo, db handler.Pinger) {
	e.GET("/healthz", handler.Health)
	if db != nil {
		e.GET("/readyz", handler.Ready(db))
	}
}

// RegisterAuth mounts the API group. The authenticator runs on every API
// request; limiter guards the endpoints that accept credentials or tokens
// in the body.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, v middleware.RequestValidator, limiter echo.MiddlewareFunc) {
	if limiter == nil {
		limiter = func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}

	api := e.Group(APIPrefix, middleware.Authenticator(v))

	g := api.Group("/auth")
	g.POST("/login", a.Login, limiter)
	g.POST("/token", a.Token, limiter)
	g.POST("/refresh", a.Refresh, limiter)
	g.POST("/logout", a.Logout, limiter)
	g.GET("/me", a.Me, middleware.RequireAuth())

	api.POST("/users/register", a.Register, limiter)
}
