package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/pharmatrace/internal/apperror"
	"github.com/iliyamo/pharmatrace/internal/integrity"
	"github.com/iliyamo/pharmatrace/internal/service"
)

// VerifyHandler serves the public verification endpoints.
type VerifyHandler struct {
	batches *service.BatchService
}

func NewVerifyHandler(batches *service.BatchService) *VerifyHandler {
	return &VerifyHandler{batches: batches}
}

// ByFingerprint answers whether a fingerprint is recorded on the ledger. An
// unknown fingerprint is a normal answer, not an error.
func (h *VerifyHandler) ByFingerprint(c echo.Context) error {
	v, err := h.batches.VerifyFingerprint(c.Request().Context(), c.Param("fingerprint"))
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, v, "")
}

// Payload checks a scanned QR payload.
func (h *VerifyHandler) Payload(c echo.Context) error {
	var p integrity.QRPayload
	if err := c.Bind(&p); err != nil {
		return apperror.Wrap(apperror.CodeMalformedPayload, "payload is not valid JSON", err)
	}
	v, err := h.batches.VerifyPayload(c.Request().Context(), p)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, v, "")
}
