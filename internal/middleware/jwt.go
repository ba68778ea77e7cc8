package middleware

import (
	"context"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/pharmatrace/internal/apperror"
	"github.com/iliyamo/pharmatrace/internal/auth"
	"github.com/iliyamo/pharmatrace/internal/logger"
)

// TokenVerifier checks an access credential.
type TokenVerifier interface {
	Verify(ctx context.Context, raw string) (*auth.Claims, error)
}

// Authenticate validates the Bearer access credential and stores its claims
// in the context. Expired, revoked and malformed credentials are rejected with
// their own codes.
func Authenticate(tokens TokenVerifier) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw, ok := bearer(c.Request().Header.Get(echo.HeaderAuthorization))
			if !ok {
				return apperror.New(apperror.CodeTokenInvalid, "missing bearer token")
			}
			claims, err := tokens.Verify(c.Request().Context(), raw)
			if err != nil {
				logger.FromContext(c, nil).Debug("credential rejected", zap.String("code", string(apperror.CodeOf(err))))
				return err
			}
			c.Set(claimsKey, claims)
			c.Set(accessTokenKey, raw)
			return next(c)
		}
	}
}

func bearer(header string) (string, bool) {
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	raw := strings.TrimSpace(header[len(prefix):])
	return raw, raw != ""
}
