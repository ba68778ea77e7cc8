package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/pharmatrace/internal/apperror"
	"github.com/iliyamo/pharmatrace/internal/middleware"
	"github.com/iliyamo/pharmatrace/internal/model"
	"github.com/iliyamo/pharmatrace/internal/service"
)

// AuthHandler serves the /v1/auth endpoints and /v1/me.
type AuthHandler struct {
	auth         *service.AuthService
	stakeholders *service.StakeholderService
}

func NewAuthHandler(auth *service.AuthService, stakeholders *service.StakeholderService) *AuthHandler {
	return &AuthHandler{auth: auth, stakeholders: stakeholders}
}

type registerReq struct {
	Address  string `json:"address" validate:"required,ethaddr"`
	Password string `json:"password" validate:"required,min=8,max=72"`
	Name     string `json:"name" validate:"required,max=200"`
	License  string `json:"license" validate:"required,max=200"`
	Role     string `json:"role" validate:"required"`
}

type loginReq struct {
	Address  string `json:"address" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type refreshReq struct {
	RefreshToken string `json:"refreshToken" validate:"required"`
}

type logoutReq struct {
	RefreshToken string `json:"refreshToken"`
}

// Register creates an account and a pending stakeholder record.
func (h *AuthHandler) Register(c echo.Context) error {
	var req registerReq
	if err := bind(c, &req); err != nil {
		return err
	}
	res, err := h.auth.Register(c.Request().Context(), service.RegisterInput{
		Address:  req.Address,
		Password: req.Password,
		Name:     req.Name,
		License:  req.License,
		Role:     req.Role,
	})
	if err != nil {
		return err
	}
	return respond(c, http.StatusCreated, res, "registered; awaiting verification")
}

// Login: check password, return a fresh pair.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := bind(c, &req); err != nil {
		return err
	}
	res, err := h.auth.Login(c.Request().Context(), req.Address, req.Password)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, res, "")
}

// Refresh: spend the refresh token, issue a new pair.
func (h *AuthHandler) Refresh(c echo.Context) error {
	var req refreshReq
	if err := bind(c, &req); err != nil {
		return err
	}
	pair, err := h.auth.Refresh(c.Request().Context(), req.RefreshToken)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, pair, "")
}

// Logout revokes the caller's access credential and the refresh credential
// in the body, if any.
func (h *AuthHandler) Logout(c echo.Context) error {
	var req logoutReq
	if c.Request().ContentLength != 0 {
		if err := c.Bind(&req); err != nil {
			return apperror.Wrap(apperror.CodeValidation, "malformed request body", err)
		}
	}
	if err := h.auth.Logout(c.Request().Context(), middleware.AccessToken(c), req.RefreshToken); err != nil {
		return err
	}
	return respond(c, http.StatusOK, nil, "logged out")
}

type meResp struct {
	Address         string     `json:"address"`
	Role            model.Role `json:"role"`
	Verified        bool       `json:"verified"`
	Name            string     `json:"name"`
	License         string     `json:"license"`
	VerifiedAtIssue bool       `json:"tokenVerified"`
}

// Me returns the caller's live stakeholder record next to the snapshot in
// the credential.
func (h *AuthHandler) Me(c echo.Context) error {
	claims := middleware.Claims(c)
	if claims == nil {
		return apperror.ErrTokenInvalid
	}
	sh, err := h.stakeholders.Get(c.Request().Context(), claims.Subject)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, meResp{
		Address:         sh.Address,
		Role:            sh.Role,
		Verified:        sh.Verified,
		Name:            sh.Name,
		License:         sh.License,
		VerifiedAtIssue: claims.Verified,
	}, "")
}
