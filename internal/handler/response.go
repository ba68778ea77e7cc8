// Package handler implements the HTTP endpoints. Every response uses the same
// envelope; errors are rendered from their apperror code.
package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/pharmatrace/internal/apperror"
	"github.com/iliyamo/pharmatrace/internal/logger"
)

type errorBody struct {
	Code    apperror.Code `json:"code"`
	Message string        `json:"message"`
}

// Envelope is the body of every JSON response.
type Envelope struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	Error     *errorBody  `json:"error,omitempty"`
	Message   string      `json:"message,omitempty"`
	RequestID string      `json:"requestId,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

func respond(c echo.Context, status int, data interface{}, message string) error {
	return c.JSON(status, Envelope{
		Success:   true,
		Data:      data,
		Message:   message,
		RequestID: logger.RequestID(c),
		Timestamp: time.Now().UTC(),
	})
}

// ErrorHandler renders errors in the envelope. Echo's own errors (unknown
// route, wrong method, oversized body) keep their status.
func ErrorHandler(log *zap.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		status, body := render(err)
		if status >= http.StatusInternalServerError {
			logger.FromContext(c, log).Error("request failed", zap.String("code", string(body.Code)), zap.Error(err))
		}
		env := Envelope{
			Error:     &body,
			RequestID: logger.RequestID(c),
			Timestamp: time.Now().UTC(),
		}
		var werr error
		if c.Request().Method == http.MethodHead {
			werr = c.NoContent(status)
		} else {
			werr = c.JSON(status, env)
		}
		if werr != nil {
			logger.FromContext(c, log).Warn("write error response", zap.Error(werr))
		}
	}
}

func render(err error) (int, errorBody) {
	var ae *apperror.Error
	if errors.As(err, &ae) {
		return apperror.HTTPStatus(ae.Code), errorBody{Code: ae.Code, Message: ae.Message}
	}
	var he *echo.HTTPError
	if errors.As(err, &he) {
		msg := http.StatusText(he.Code)
		if s, ok := he.Message.(string); ok && s != "" {
			msg = s
		}
		var code apperror.Code
		switch {
		case he.Code == http.StatusNotFound:
			code = "NOT_FOUND"
		case he.Code == http.StatusMethodNotAllowed:
			code = "METHOD_NOT_ALLOWED"
		case he.Code == http.StatusTooManyRequests:
			code = apperror.CodeRateLimited
		case he.Code >= http.StatusInternalServerError:
			code = apperror.CodeInternal
		default:
			code = apperror.CodeValidation
		}
		return he.Code, errorBody{Code: code, Message: msg}
	}
	return http.StatusInternalServerError, errorBody{Code: apperror.CodeInternal, Message: "internal error"}
}
