package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/pharmatrace/internal/access"
	"github.com/iliyamo/pharmatrace/internal/apperror"
	"github.com/iliyamo/pharmatrace/internal/auth"
	"github.com/iliyamo/pharmatrace/internal/config"
	"github.com/iliyamo/pharmatrace/internal/model"
)

const caller = "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"

func newManager() *auth.Manager {
	return auth.NewManager(config.JWTConfig{
		Secret:        "access-secret",
		RefreshSecret: "refresh-secret",
		Issuer:        "pharmatrace",
		AccessTTL:     time.Minute,
		RefreshTTL:    time.Hour,
	}, auth.NewMemoryRevocationStore(), nil)
}

func newContext(method, path, authz string) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	req := httptest.NewRequest(method, path, nil)
	if authz != "" {
		req.Header.Set(echo.HeaderAuthorization, authz)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetPath(path)
	return c, rec
}

func ok(c echo.Context) error { return c.NoContent(http.StatusNoContent) }

func TestAuthenticate(t *testing.T) {
	tokens := newManager()
	pair, err := tokens.Issue(auth.Subject{Address: caller, Role: model.RoleDistributor})
	require.NoError(t, err)
	mw := Authenticate(tokens)

	c, _ := newContext(http.MethodGet, "/v1/me", "")
	assert.Equal(t, apperror.CodeTokenInvalid, apperror.CodeOf(mw(ok)(c)))

	c, _ = newContext(http.MethodGet, "/v1/me", "Basic abc")
	assert.Equal(t, apperror.CodeTokenInvalid, apperror.CodeOf(mw(ok)(c)))

	c, _ = newContext(http.MethodGet, "/v1/me", "Bearer "+pair.RefreshToken)
	assert.Equal(t, apperror.CodeTokenInvalid, apperror.CodeOf(mw(ok)(c)))

	c, rec := newContext(http.MethodGet, "/v1/me", "bearer "+pair.AccessToken)
	require.NoError(t, mw(ok)(c))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	require.NotNil(t, Claims(c))
	assert.Equal(t, caller, Claims(c).Subject)
	assert.Equal(t, pair.AccessToken, AccessToken(c))

	require.NoError(t, tokens.Revoke(context.Background(), pair.AccessToken))
	c, _ = newContext(http.MethodGet, "/v1/me", "Bearer "+pair.AccessToken)
	assert.Equal(t, apperror.CodeTokenRevoked, apperror.CodeOf(mw(ok)(c)))
}

type staticProfiles struct{ s model.Stakeholder }

func (p staticProfiles) Get(context.Context, string) (model.Stakeholder, error) { return p.s, nil }

func TestRoleMiddleware(t *testing.T) {
	policy, err := access.DefaultPolicy()
	require.NoError(t, err)
	unverified := access.NewGuard(policy, staticProfiles{model.Stakeholder{Address: caller, Role: model.RoleManufacturer}}, nil, nil)
	verified := access.NewGuard(policy, staticProfiles{model.Stakeholder{Address: caller, Role: model.RoleManufacturer, Verified: true}}, nil, nil)

	withClaims := func(role model.Role) echo.Context {
		c, _ := newContext(http.MethodPost, "/v1/batches", "")
		cl := &auth.Claims{Role: role, TokenType: auth.TokenTypeAccess}
		cl.Subject = caller
		c.Set(claimsKey, cl)
		return c
	}

	c, _ := newContext(http.MethodPost, "/v1/batches", "")
	assert.Equal(t, apperror.CodeForbidden, apperror.CodeOf(RequireRole(verified, model.RoleManufacturer)(ok)(c)))

	assert.Equal(t, apperror.CodeForbidden,
		apperror.CodeOf(RequireRole(verified, model.RoleRegulator)(ok)(withClaims(model.RoleManufacturer))))
	assert.NoError(t, RequireRole(verified, model.RoleManufacturer)(ok)(withClaims(model.RoleManufacturer)))

	assert.Equal(t, apperror.CodeUnverified,
		apperror.CodeOf(RequireVerified(unverified)(ok)(withClaims(model.RoleManufacturer))))
	assert.NoError(t, RequireVerified(verified)(ok)(withClaims(model.RoleManufacturer)))

	assert.Equal(t, apperror.CodeUnverified,
		apperror.CodeOf(Require(unverified, access.OpMintBatch)(ok)(withClaims(model.RoleManufacturer))))
	assert.NoError(t, Require(verified, access.OpMintBatch)(ok)(withClaims(model.RoleManufacturer)))
	assert.Equal(t, apperror.CodeForbidden,
		apperror.CodeOf(Require(verified, "unknown.op")(ok)(withClaims(model.RoleManufacturer))))
}

func TestTokenBucketLocalFallback(t *testing.T) {
	cfg := config.RateLimitConfig{
		Enabled:        true,
		Capacity:       2,
		RefillTokens:   1,
		RefillInterval: time.Hour,
		TTL:            time.Hour,
		KeyStrategy:    "ip",
		Prefix:         "rl",
	}
	mw := NewTokenBucket(cfg, nil, nil)

	for i := 0; i < 2; i++ {
		c, rec := newContext(http.MethodGet, "/v1/verify/x", "")
		require.NoError(t, mw(ok)(c))
		assert.Equal(t, "2", rec.Header().Get("X-RateLimit-Limit"))
	}
	c, rec := newContext(http.MethodGet, "/v1/verify/x", "")
	err := mw(ok)(c)
	assert.Equal(t, apperror.CodeRateLimited, apperror.CodeOf(err))
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))

	disabled := NewTokenBucket(config.RateLimitConfig{}, nil, nil)
	for i := 0; i < 5; i++ {
		c, _ := newContext(http.MethodGet, "/", "")
		assert.NoError(t, disabled(ok)(c))
	}
}

func TestBuildRateKey(t *testing.T) {
	c, _ := newContext(http.MethodGet, "/v1/batches/:id", "")
	c.Request().RemoteAddr = "10.0.0.1:5555"
	cl := &auth.Claims{}
	cl.Subject = caller

	tests := []struct {
		strategy string
		claims   bool
		want     string
	}{
		{"ip", false, "rl:ip:10.0.0.1"},
		{"user", false, "rl:user:anon"},
		{"user", true, "rl:user:" + caller},
		{"route", false, "rl:route:GET /v1/batches/:id"},
		{"", true, "rl:ip:10.0.0.1:user:" + caller + ":route:GET /v1/batches/:id"},
	}
	for _, tt := range tests {
		t.Run(tt.strategy, func(t *testing.T) {
			c.Set(claimsKey, nil)
			if tt.claims {
				c.Set(claimsKey, cl)
			}
			assert.Equal(t, tt.want, buildRateKey(config.RateLimitConfig{Prefix: "rl", KeyStrategy: tt.strategy}, c))
		})
	}
}

func TestCachePayloadEncoding(t *testing.T) {
	hdr := http.Header{"Content-Type": {"application/json"}}
	bs, err := encodePayload(http.StatusOK, hdr, []byte(`{"a":1}`))
	require.NoError(t, err)

	status, got, body, ok := decodePayload(bs)
	require.True(t, ok)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "application/json", got.Get("Content-Type"))
	assert.Equal(t, `{"a":1}`, string(body))

	_, _, _, ok = decodePayload(bs[:5])
	assert.False(t, ok)
	_, _, _, ok = decodePayload(append([]byte{0, 0, 0, 200, 0, 0, 1, 0}, 'x'))
	assert.False(t, ok)
}

func TestCacheKeyIgnoresUnrelatedState(t *testing.T) {
	cfg := config.CacheConfig{Prefix: "cache", KeyStrategy: "route_query"}
	a, _ := newContext(http.MethodGet, "/v1/verify/abc?x=1", "")
	b, _ := newContext(http.MethodGet, "/v1/verify/abc?x=2", "")
	assert.NotEqual(t, cacheKeyFrom(cfg, a), cacheKeyFrom(cfg, b))

	cfg.KeyStrategy = "route"
	assert.Equal(t, cacheKeyFrom(cfg, a), cacheKeyFrom(cfg, b))
}

func TestCaptureWriterLimit(t *testing.T) {
	rec := httptest.NewRecorder()
	cw := &captureWriter{ResponseWriter: rec, status: http.StatusOK, limit: 4}
	_, _ = cw.Write([]byte("ab"))
	_, _ = cw.Write([]byte("cdef"))
	assert.True(t, cw.truncated)
	assert.Equal(t, "ab", cw.buf.String())
	assert.Equal(t, "abcdef", rec.Body.String())
}
