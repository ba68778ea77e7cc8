package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/pharmatrace/internal/access"
	"github.com/iliyamo/pharmatrace/internal/handler"
	"github.com/iliyamo/pharmatrace/internal/middleware"
)

// RegisterStakeholders registers stakeholder administration and lookups.
func RegisterStakeholders(e *echo.Echo, h *handler.StakeholderHandler, ch Chain) {
	g := e.Group("/v1/stakeholders", ch.limit())
	g.GET("/:address", h.Get)
	g.GET("/:address/qr", h.QR)
	g.POST("", h.Register, ch.Authn, middleware.Require(ch.Guard, access.OpRegisterStakeholder))
	g.POST("/:address/verify", h.Verify, ch.Authn, middleware.Require(ch.Guard, access.OpVerifyStakeholder))
}

// RegisterOps registers the regulator-only operational views. audit may be
// nil when no audit store is configured.
func RegisterOps(e *echo.Echo, ops *handler.OpsHandler, audit *handler.AuditHandler, ch Chain) {
	g := e.Group("/v1", ch.Authn, ch.limit())
	g.GET("/ledger/status", ops.LedgerStatus, middleware.Require(ch.Guard, access.OpLedgerStatus))
	if audit != nil {
		g.GET("/audit/:address", audit.List, middleware.Require(ch.Guard, access.OpReadAudit))
	}
}
