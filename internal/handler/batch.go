package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/pharmatrace/internal/apperror"
	"github.com/iliyamo/pharmatrace/internal/middleware"
	"github.com/iliyamo/pharmatrace/internal/service"
)

const dateLayout = "2006-01-02"

// BatchHandler serves /v1/batches.
type BatchHandler struct {
	batches *service.BatchService
}

func NewBatchHandler(batches *service.BatchService) *BatchHandler {
	return &BatchHandler{batches: batches}
}

type mintReq struct {
	DrugName          string `json:"drugName" validate:"required,max=200"`
	BatchNumber       string `json:"batchNumber" validate:"required,max=100"`
	ManufacturingDate string `json:"manufacturingDate" validate:"required,datetime=2006-01-02"`
	ExpiryDate        string `json:"expiryDate" validate:"required,datetime=2006-01-02"`
	DocumentRef       string `json:"documentRef" validate:"required"`
	Quantity          uint64 `json:"quantity" validate:"gt=0"`
}

type transferReq struct {
	To       string `json:"to" validate:"required,ethaddr"`
	Location string `json:"location" validate:"required,max=200"`
}

type statusReq struct {
	Status   string `json:"status" validate:"required"`
	Location string `json:"location" validate:"max=200"`
}

type recallReq struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

func tokenID(c echo.Context) (uint64, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return 0, apperror.New(apperror.CodeValidation, "batch id must be a positive integer")
	}
	return id, nil
}

func caller(c echo.Context) (string, error) {
	claims := middleware.Claims(c)
	if claims == nil {
		return "", apperror.ErrTokenInvalid
	}
	return claims.Subject, nil
}

// Mint records a new batch for the calling manufacturer.
func (h *BatchHandler) Mint(c echo.Context) error {
	actor, err := caller(c)
	if err != nil {
		return err
	}
	var req mintReq
	if err := bind(c, &req); err != nil {
		return err
	}
	mfg, _ := time.Parse(dateLayout, req.ManufacturingDate)
	exp, _ := time.Parse(dateLayout, req.ExpiryDate)
	out, err := h.batches.Mint(c.Request().Context(), actor, service.MintInput{
		DrugName:          req.DrugName,
		BatchNumber:       req.BatchNumber,
		ManufacturingDate: mfg,
		ExpiryDate:        exp,
		DocumentRef:       req.DocumentRef,
		Quantity:          req.Quantity,
	})
	if err != nil {
		return err
	}
	return respond(c, http.StatusCreated, out, "batch minted")
}

// Get handles GET /v1/batches/:id.
func (h *BatchHandler) Get(c echo.Context) error {
	id, err := tokenID(c)
	if err != nil {
		return err
	}
	b, err := h.batches.Get(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, b, "")
}

// History handles GET /v1/batches/:id/history and returns the custody chain.
func (h *BatchHandler) History(c echo.Context) error {
	id, err := tokenID(c)
	if err != nil {
		return err
	}
	records, err := h.batches.History(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, records, "")
}

// Transfer handles POST /v1/batches/:id/transfer. Only the current holder may move a batch.
func (h *BatchHandler) Transfer(c echo.Context) error {
	actor, err := caller(c)
	if err != nil {
		return err
	}
	id, err := tokenID(c)
	if err != nil {
		return err
	}
	var req transferReq
	if err := bind(c, &req); err != nil {
		return err
	}
	tx, err := h.batches.Transfer(c.Request().Context(), actor, id, req.To, req.Location)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, tx, "batch transferred")
}

// UpdateStatus: holder moves the batch along Manufactured, InTransit, Delivered, Dispensed.
func (h *BatchHandler) UpdateStatus(c echo.Context) error {
	actor, err := caller(c)
	if err != nil {
		return err
	}
	id, err := tokenID(c)
	if err != nil {
		return err
	}
	var req statusReq
	if err := bind(c, &req); err != nil {
		return err
	}
	tx, err := h.batches.UpdateStatus(c.Request().Context(), actor, id, req.Status, req.Location)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, tx, "status updated")
}

// Recall handles POST /v1/batches/:id/recall.
func (h *BatchHandler) Recall(c echo.Context) error {
	actor, err := caller(c)
	if err != nil {
		return err
	}
	id, err := tokenID(c)
	if err != nil {
		return err
	}
	var req recallReq
	if err := bind(c, &req); err != nil {
		return err
	}
	tx, err := h.batches.Recall(c.Request().Context(), actor, id, req.Reason)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, tx, "batch recalled")
}
