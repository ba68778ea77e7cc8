package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/pharmatrace/internal/service"
)

// StakeholderHandler serves /v1/stakeholders.
type StakeholderHandler struct {
	stakeholders *service.StakeholderService
}

func NewStakeholderHandler(stakeholders *service.StakeholderService) *StakeholderHandler {
	return &StakeholderHandler{stakeholders: stakeholders}
}

type stakeholderReq struct {
	Address string `json:"address" validate:"required,ethaddr"`
	Name    string `json:"name" validate:"required,max=200"`
	License string `json:"license" validate:"required,max=200"`
	Role    string `json:"role" validate:"required"`

	// Password, when given, becomes the stakeholder's initial login.
	Password string `json:"password" validate:"omitempty,min=8,max=72"`
}

// Register records a stakeholder on behalf of a regulator.
func (h *StakeholderHandler) Register(c echo.Context) error {
	actor, err := caller(c)
	if err != nil {
		return err
	}
	var req stakeholderReq
	if err := bind(c, &req); err != nil {
		return err
	}
	tx, err := h.stakeholders.RegisterByAdmin(c.Request().Context(), actor, service.RegisterStakeholderInput{
		Address:  req.Address,
		Name:     req.Name,
		License:  req.License,
		Role:     req.Role,
		Password: req.Password,
	})
	if err != nil {
		return err
	}
	return respond(c, http.StatusCreated, tx, "stakeholder registered")
}

// Get: public profile lookup.
func (h *StakeholderHandler) Get(c echo.Context) error {
	sh, err := h.stakeholders.Get(c.Request().Context(), c.Param("address"))
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, sh, "")
}

// Verify handles POST /v1/stakeholders/:address/verify (regulators only).
func (h *StakeholderHandler) Verify(c echo.Context) error {
	actor, err := caller(c)
	if err != nil {
		return err
	}
	tx, err := h.stakeholders.SetVerified(c.Request().Context(), actor, c.Param("address"))
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, tx, "stakeholder verified")
}

// QR returns the stakeholder identity payload and its rendered symbol.
func (h *StakeholderHandler) QR(c echo.Context) error {
	qr, err := h.stakeholders.QR(c.Request().Context(), c.Param("address"))
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, qr, "")
}
