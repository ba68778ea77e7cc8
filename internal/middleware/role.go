package middleware

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/pharmatrace/internal/access"
	"github.com/iliyamo/pharmatrace/internal/model"
)

// RequireRole rejects callers whose role claim is not in roles.
func RequireRole(guard *access.Guard, roles ...model.Role) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if err := guard.Authorize(c.Request().Context(), Claims(c), endpoint(c), roles...); err != nil {
				return err
			}
			return next(c)
		}
	}
}

// RequireVerified rejects callers whose stakeholder record is not verified.
func RequireVerified(guard *access.Guard) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if err := guard.RequireVerified(c.Request().Context(), Claims(c), endpoint(c)); err != nil {
				return err
			}
			return next(c)
		}
	}
}

// Require applies the policy rule of op.
func Require(guard *access.Guard, op string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if err := guard.Check(c.Request().Context(), Claims(c), op, endpoint(c)); err != nil {
				return err
			}
			return next(c)
		}
	}
}
