package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/iliyamo/pharmatrace/internal/apperror"
)

func TestRender(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   apperror.Code
	}{
		{"app error", apperror.ErrBatchNotFound, http.StatusNotFound, apperror.CodeBatchNotFound},
		{"wrapped", apperror.Wrap(apperror.CodeLedgerUnavailable, "node down", errors.New("dial")), http.StatusServiceUnavailable, apperror.CodeLedgerUnavailable},
		{"echo 404", echo.ErrNotFound, http.StatusNotFound, "NOT_FOUND"},
		{"echo 405", echo.ErrMethodNotAllowed, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED"},
		{"echo 413", echo.ErrStatusRequestEntityTooLarge, http.StatusRequestEntityTooLarge, apperror.CodeValidation},
		{"plain", errors.New("boom"), http.StatusInternalServerError, apperror.CodeInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := render(tt.err)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.code, body.Code)
		})
	}
}

func TestErrorHandlerHidesInternalDetail(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)

	ErrorHandler(zap.NewNop())(errors.New("sql: connection refused at 10.0.0.5"), c)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "10.0.0.5")
	var env Envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	assert.False(t, env.Success)
	assert.Equal(t, apperror.CodeInternal, env.Error.Code)
	assert.False(t, env.Timestamp.IsZero())
}

func TestValidator(t *testing.T) {
	v := NewValidator()

	err := v.Validate(&transferReq{To: "0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed", Location: "Dock"})
	assert.NoError(t, err)

	err = v.Validate(&transferReq{To: "5aaeb6053f3e94c9b9a09f33669435e7ef1beaed", Location: "Dock"})
	assert.Equal(t, apperror.CodeValidation, apperror.CodeOf(err))
	assert.Equal(t, "to must be a 0x-prefixed address", apperror.MessageOf(err))

	err = v.Validate(&mintReq{DrugName: "x", BatchNumber: "b", ManufacturingDate: "01/02/2026",
		ExpiryDate: "2027-01-01", DocumentRef: "sha256:x", Quantity: 1})
	assert.Equal(t, "manufacturingDate must be a date in YYYY-MM-DD form", apperror.MessageOf(err))

	err = v.Validate(&mintReq{DrugName: "x", BatchNumber: "b", ManufacturingDate: "2026-01-02",
		ExpiryDate: "2027-01-01", DocumentRef: "sha256:x"})
	assert.Equal(t, "quantity must be greater than 0", apperror.MessageOf(err))

	err = v.Validate(&registerReq{Address: "0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed", Password: "short",
		Name: "n", License: "l", Role: "Retailer"})
	assert.Equal(t, "password must be at least 8", apperror.MessageOf(err))
}
