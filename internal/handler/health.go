package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/pharmatrace/internal/ledger"
	"github.com/iliyamo/pharmatrace/internal/service"
)

// Live reports that the process is serving.
func Live(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

// OpsHandler serves readiness and the ledger status.
type OpsHandler struct {
	health *service.Health
	ledger *ledger.Gateway
}

func NewOpsHandler(health *service.Health, gw *ledger.Gateway) *OpsHandler {
	return &OpsHandler{health: health, ledger: gw}
}

// Ready answers 503 while any dependency probe fails.
func (h *OpsHandler) Ready(c echo.Context) error {
	r := h.health.Check(c.Request().Context())
	status := http.StatusOK
	if !r.Ready {
		status = http.StatusServiceUnavailable
	}
	return c.JSON(status, r)
}

// LedgerStatus reports the signer balance and fee estimate.
func (h *OpsHandler) LedgerStatus(c echo.Context) error {
	st, err := h.ledger.Status(c.Request().Context())
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, st, "")
}
