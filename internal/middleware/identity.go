package middleware

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/pharmatrace/internal/auth"
)

const (
	claimsKey      = "claims"
	accessTokenKey = "access_token"
)

// Claims returns the verified claims stored by Authenticate, or nil.
func Claims(c echo.Context) *auth.Claims {
	cl, _ := c.Get(claimsKey).(*auth.Claims)
	return cl
}

// AccessToken returns the raw bearer credential accepted by Authenticate.
func AccessToken(c echo.Context) string {
	s, _ := c.Get(accessTokenKey).(string)
	return s
}

// subject identifies the caller for rate-limit keys. Unauthenticated callers
// share the "anon" bucket of their IP.
func subject(c echo.Context) string {
	if cl := Claims(c); cl != nil && cl.Subject != "" {
		return cl.Subject
	}
	return "anon"
}

func endpoint(c echo.Context) string {
	return c.Request().Method + " " + c.Path()
}
