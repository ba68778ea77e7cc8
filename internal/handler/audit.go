package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/pharmatrace/internal/apperror"
	"github.com/iliyamo/pharmatrace/internal/audit"
	"github.com/iliyamo/pharmatrace/internal/model"
)

// AuditReader lists recorded access decisions.
type AuditReader interface {
	ListBySubject(ctx context.Context, subject string, limit int) ([]audit.Event, error)
}

// AuditHandler exposes the persisted security audit trail to regulators.
type AuditHandler struct {
	reader AuditReader
}

func NewAuditHandler(reader AuditReader) *AuditHandler {
	return &AuditHandler{reader: reader}
}

// List returns recent denials recorded for one address, newest first.
func (h *AuditHandler) List(c echo.Context) error {
	addr, err := model.NormalizeAddress(c.Param("address"))
	if err != nil {
		return apperror.Wrap(apperror.CodeValidation, "invalid address", err)
	}
	limit := 0
	if s := c.QueryParam("limit"); s != "" {
		if limit, err = strconv.Atoi(s); err != nil {
			return apperror.New(apperror.CodeValidation, "limit must be an integer")
		}
	}
	events, err := h.reader.ListBySubject(c.Request().Context(), addr, limit)
	if err != nil {
		return apperror.Wrap(apperror.CodeInternal, "read audit trail", err)
	}
	if events == nil {
		events = []audit.Event{}
	}
	return respond(c, http.StatusOK, events, "")
}
