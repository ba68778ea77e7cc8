// Package router wires handlers and middleware onto an echo instance.
package router

import (
	"net/http"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/iliyamo/pharmatrace/internal/access"
	"github.com/iliyamo/pharmatrace/internal/handler"
	"github.com/iliyamo/pharmatrace/internal/logger"
)

// Chain holds the middleware shared by route groups.
type Chain struct {
	Authn echo.MiddlewareFunc
	Guard *access.Guard
	Limit echo.MiddlewareFunc
	Cache echo.MiddlewareFunc
}

func (ch Chain) limit() echo.MiddlewareFunc {
	if ch.Limit == nil {
		return passthrough
	}
	return ch.Limit
}

func (ch Chain) cache() echo.MiddlewareFunc {
	if ch.Cache == nil {
		return passthrough
	}
	return ch.Cache
}

func passthrough(next echo.HandlerFunc) echo.HandlerFunc { return next }

// New builds the echo instance with request logging, panic recovery, the
// envelope error handler and the request validator.
func New(log *zap.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = handler.NewValidator()
	e.HTTPErrorHandler = handler.ErrorHandler(log)
	e.Use(logger.RequestLogger(log))
	e.Use(logger.Recover(log))
	e.Use(echomw.BodyLimit("12M"))
	return e
}

// RegisterRoutes registers the unauthenticated operational endpoints.
func RegisterRoutes(e *echo.Echo, ops *handler.OpsHandler, metrics http.Handler) {
	e.GET("/healthz", handler.Live)
	e.GET("/readyz", ops.Ready)
	if metrics != nil {
		e.GET("/metrics", echo.WrapHandler(metrics))
	}
}
