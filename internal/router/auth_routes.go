package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/pharmatrace/internal/handler"
)

// RegisterAuth registers /v1/auth and /v1/me. Register, login and refresh
// need no credential; logout and me do.
func RegisterAuth(e *echo.Echo, h *handler.AuthHandler, ch Chain) {
	g := e.Group("/v1/auth", ch.limit())
	g.POST("/register", h.Register)
	g.POST("/login", h.Login)
	g.POST("/refresh", h.Refresh)
	g.POST("/logout", h.Logout, ch.Authn)

	e.GET("/v1/me", h.Me, ch.Authn, ch.limit())
}
