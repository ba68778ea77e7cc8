package auth

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/iliyamo/pharmatrace/internal/apperror"
	"github.com/iliyamo/pharmatrace/internal/config"
)

// SubjectResolver confirms that a subject still exists and returns its current
// profile. Refresh uses it so a new access token carries fresh role and
// verification snapshots.
type SubjectResolver interface {
	ResolveSubject(ctx context.Context, address string) (Subject, error)
}

// Manager is the identity and token manager.
type Manager struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	issuer        string
	revoked       RevocationStore
	log           *zap.Logger
	now           func() time.Time
}

// NewManager builds a Manager. A nil store falls back to an in-process set.
func NewManager(cfg config.JWTConfig, revoked RevocationStore, log *zap.Logger) *Manager {
	if revoked == nil {
		revoked = NewMemoryRevocationStore()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{
		accessSecret:  []byte(cfg.Secret),
		refreshSecret: []byte(cfg.RefreshSecret),
		accessTTL:     cfg.AccessTTL,
		refreshTTL:    cfg.RefreshTTL,
		issuer:        cfg.Issuer,
		revoked:       revoked,
		log:           log.Named("auth"),
		now:           time.Now,
	}
}

// Issue signs an access and a refresh credential for s. Each carries its own
// unique id.
func (m *Manager) Issue(s Subject) (TokenPair, error) {
	now := m.now()
	access := &Claims{
		RegisteredClaims: m.registered(s.Address, now, m.accessTTL),
		Role:             s.Role,
		Verified:         s.Verified,
		Name:             s.Name,
		TokenType:        TokenTypeAccess,
	}
	accessToken, err := sign(access, m.accessSecret)
	if err != nil {
		return TokenPair{}, apperror.Wrap(apperror.CodeInternal, "sign access token", err)
	}

	refresh := &Claims{
		RegisteredClaims: m.registered(s.Address, now, m.refreshTTL),
		TokenType:        TokenTypeRefresh,
	}
	refreshToken, err := sign(refresh, m.refreshSecret)
	if err != nil {
		return TokenPair{}, apperror.Wrap(apperror.CodeInternal, "sign refresh token", err)
	}

	return TokenPair{
		AccessToken:      accessToken,
		RefreshToken:     refreshToken,
		AccessExpiresAt:  now.Add(m.accessTTL),
		RefreshExpiresAt: now.Add(m.refreshTTL),
		TokenType:        "Bearer",
	}, nil
}

func (m *Manager) registered(subject string, now time.Time, ttl time.Duration) jwt.RegisteredClaims {
	return jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Issuer:    m.issuer,
		Subject:   subject,
		Audience:  jwt.ClaimStrings{m.issuer},
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		NotBefore: jwt.NewNumericDate(now),
		IssuedAt:  jwt.NewNumericDate(now),
	}
}

func sign(c *Claims, secret []byte) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(secret)
}

// Verify validates an access credential: signature, expiry, type and the
// revocation set. When the revocation store cannot be reached the check is
// skipped and the token is accepted on structural validity alone.
func (m *Manager) Verify(ctx context.Context, raw string) (*Claims, error) {
	claims, err := m.parse(raw, m.accessSecret, TokenTypeAccess)
	if err != nil {
		return nil, err
	}
	if err := m.checkRevoked(ctx, claims); err != nil {
		return nil, err
	}
	return claims, nil
}

// VerifyRefresh is Verify for refresh credentials. Any failure of the refresh
// token's own checks surfaces as InvalidRefreshToken, except revocation.
func (m *Manager) VerifyRefresh(ctx context.Context, raw string) (*Claims, error) {
	claims, err := m.parse(raw, m.refreshSecret, TokenTypeRefresh)
	if err != nil {
		return nil, apperror.Wrap(apperror.CodeInvalidRefreshToken, "invalid refresh token", err)
	}
	if err := m.checkRevoked(ctx, claims); err != nil {
		return nil, err
	}
	return claims, nil
}

func (m *Manager) checkRevoked(ctx context.Context, claims *Claims) error {
	revoked, err := m.revoked.IsRevoked(ctx, claims.ID)
	if err != nil {
		m.log.Warn("revocation store unreachable, accepting token on signature",
			zap.String("jti", claims.ID), zap.Error(err))
		return nil
	}
	if revoked {
		return apperror.ErrTokenRevoked
	}
	return nil
}

func (m *Manager) parse(raw string, secret []byte, want TokenType, opts ...jwt.ParserOption) (*Claims, error) {
	opts = append(opts,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(m.issuer),
		jwt.WithTimeFunc(m.now),
	)
	tok, err := jwt.ParseWithClaims(raw, &Claims{}, func(*jwt.Token) (interface{}, error) {
		return secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, apperror.ErrTokenExpired
		}
		return nil, apperror.Wrap(apperror.CodeTokenInvalid, "invalid token", err)
	}
	claims, ok := tok.Claims.(*Claims)
	if !ok || claims.TokenType != want || claims.ID == "" || claims.Subject == "" {
		return nil, apperror.ErrTokenInvalid
	}
	return claims, nil
}

// Revoke adds the credential's id to the revocation set for the rest of its
// lifetime. Both access and refresh credentials are accepted. Revoking twice
// or revoking an already expired credential is a no-op.
func (m *Manager) Revoke(ctx context.Context, raw string) error {
	claims, err := m.parse(raw, m.accessSecret, TokenTypeAccess, jwt.WithoutClaimsValidation())
	if err != nil {
		claims, err = m.parse(raw, m.refreshSecret, TokenTypeRefresh, jwt.WithoutClaimsValidation())
		if err != nil {
			return apperror.ErrTokenInvalid
		}
	}
	ttl := claims.RemainingTTL(m.now())
	if ttl == 0 {
		return nil
	}
	if err := m.revoked.Revoke(ctx, claims.ID, ttl); err != nil {
		return apperror.Wrap(apperror.CodeInternal, "revocation store unavailable", err)
	}
	m.log.Info("token revoked", zap.String("jti", claims.ID), zap.String("subject", claims.Subject),
		zap.String("type", string(claims.TokenType)))
	return nil
}

// Refresh exchanges a refresh credential for a new pair. The credential's id
// is claimed in the revocation set before anything is issued, so of several
// concurrent calls with the same refresh token only one succeeds. The subject
// is re-resolved after the claim; a failed lookup still spends the token.
func (m *Manager) Refresh(ctx context.Context, raw string, resolver SubjectResolver) (TokenPair, error) {
	claims, err := m.VerifyRefresh(ctx, raw)
	if err != nil {
		return TokenPair{}, err
	}
	ttl := claims.RemainingTTL(m.now())
	won, err := m.revoked.Claim(ctx, claims.ID, ttl)
	switch {
	case err != nil:
		m.log.Warn("revocation store unreachable, refresh token not retired",
			zap.String("jti", claims.ID), zap.Error(err))
	case !won && ttl > 0:
		return TokenPair{}, apperror.ErrTokenRevoked
	}

	subject, err := resolver.ResolveSubject(ctx, claims.Subject)
	if err != nil {
		if apperror.CodeOf(err) == apperror.CodeStakeholderNotFound {
			return TokenPair{}, apperror.Wrap(apperror.CodeInvalidRefreshToken, "subject no longer exists", err)
		}
		return TokenPair{}, err
	}
	return m.Issue(subject)
}
