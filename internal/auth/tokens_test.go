package auth

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/pharmatrace/internal/apperror"
	"github.com/iliyamo/pharmatrace/internal/config"
	"github.com/iliyamo/pharmatrace/internal/model"
)

const testAddr = "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"

func testJWTConfig() config.JWTConfig {
	return config.JWTConfig{
		Secret:        "access-secret",
		RefreshSecret: "refresh-secret",
		Issuer:        "pharmatrace",
		AccessTTL:     15 * time.Minute,
		RefreshTTL:    24 * time.Hour,
	}
}

type failingStore struct{}

func (failingStore) Revoke(context.Context, string, time.Duration) error {
	return errors.New("connection refused")
}

func (failingStore) IsRevoked(context.Context, string) (bool, error) {
	return false, errors.New("connection refused")
}

func (failingStore) Claim(context.Context, string, time.Duration) (bool, error) {
	return false, errors.New("connection refused")
}

// slowResolver widens the window between the refresh check and the issue.
type slowResolver struct {
	subject Subject
	delay   time.Duration
}

func (r slowResolver) ResolveSubject(ctx context.Context, _ string) (Subject, error) {
	select {
	case <-time.After(r.delay):
		return r.subject, nil
	case <-ctx.Done():
		return Subject{}, ctx.Err()
	}
}

type staticResolver struct {
	subject Subject
	err     error
}

func (r staticResolver) ResolveSubject(context.Context, string) (Subject, error) {
	return r.subject, r.err
}

func manufacturer() Subject {
	return Subject{Address: testAddr, Role: model.RoleManufacturer, Verified: true, Name: "Acme Pharma"}
}

func TestIssueAndVerify(t *testing.T) {
	m := NewManager(testJWTConfig(), nil, nil)
	pair, err := m.Issue(manufacturer())
	require.NoError(t, err)
	assert.Equal(t, "Bearer", pair.TokenType)

	claims, err := m.Verify(context.Background(), pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, testAddr, claims.Address())
	assert.Equal(t, model.RoleManufacturer, claims.Role)
	assert.True(t, claims.Verified)
	assert.NotEmpty(t, claims.ID)

	other, err := m.Issue(manufacturer())
	require.NoError(t, err)
	otherClaims, err := m.Verify(context.Background(), other.AccessToken)
	require.NoError(t, err)
	assert.NotEqual(t, claims.ID, otherClaims.ID)
}

func TestVerifyRejectsRefreshAsAccess(t *testing.T) {
	m := NewManager(testJWTConfig(), nil, nil)
	pair, err := m.Issue(manufacturer())
	require.NoError(t, err)

	_, err = m.Verify(context.Background(), pair.RefreshToken)
	assert.True(t, errors.Is(err, apperror.ErrTokenInvalid))

	_, err = m.VerifyRefresh(context.Background(), pair.AccessToken)
	assert.True(t, errors.Is(err, apperror.ErrInvalidRefreshToken))
}

func TestVerifyExpired(t *testing.T) {
	m := NewManager(testJWTConfig(), nil, nil)
	issuedAt := time.Now().Add(-time.Hour)
	m.now = func() time.Time { return issuedAt }
	pair, err := m.Issue(manufacturer())
	require.NoError(t, err)

	m.now = time.Now
	_, err = m.Verify(context.Background(), pair.AccessToken)
	assert.True(t, errors.Is(err, apperror.ErrTokenExpired))
}

func TestVerifyTampered(t *testing.T) {
	m := NewManager(testJWTConfig(), nil, nil)
	forged := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID: "x", Subject: testAddr, Issuer: "pharmatrace",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Role:      model.RoleRegulator,
		TokenType: TokenTypeAccess,
	})
	raw, err := forged.SignedString([]byte("guessed-secret"))
	require.NoError(t, err)

	_, err = m.Verify(context.Background(), raw)
	assert.True(t, errors.Is(err, apperror.ErrTokenInvalid))

	_, err = m.Verify(context.Background(), "not-a-jwt")
	assert.True(t, errors.Is(err, apperror.ErrTokenInvalid))
}

func TestRevokeIsMonotonic(t *testing.T) {
	store := NewMemoryRevocationStore()
	m := NewManager(testJWTConfig(), store, nil)
	pair, err := m.Issue(manufacturer())
	require.NoError(t, err)

	require.NoError(t, m.Revoke(context.Background(), pair.AccessToken))
	require.NoError(t, m.Revoke(context.Background(), pair.AccessToken))

	for i := 0; i < 5; i++ {
		_, err = m.Verify(context.Background(), pair.AccessToken)
		assert.True(t, errors.Is(err, apperror.ErrTokenRevoked))
	}
	assert.Len(t, store.entries, 1)
}

func TestRevokeRefreshToken(t *testing.T) {
	m := NewManager(testJWTConfig(), nil, nil)
	pair, err := m.Issue(manufacturer())
	require.NoError(t, err)

	require.NoError(t, m.Revoke(context.Background(), pair.RefreshToken))
	_, err = m.VerifyRefresh(context.Background(), pair.RefreshToken)
	assert.True(t, errors.Is(err, apperror.ErrTokenRevoked))

	assert.True(t, errors.Is(m.Revoke(context.Background(), "garbage"), apperror.ErrTokenInvalid))
}

func TestVerifyDegradesWhenStoreUnreachable(t *testing.T) {
	m := NewManager(testJWTConfig(), failingStore{}, nil)
	pair, err := m.Issue(manufacturer())
	require.NoError(t, err)

	claims, err := m.Verify(context.Background(), pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, testAddr, claims.Subject)

	err = m.Revoke(context.Background(), pair.AccessToken)
	assert.Equal(t, apperror.CodeInternal, apperror.CodeOf(err))
}

func TestRefresh(t *testing.T) {
	m := NewManager(testJWTConfig(), nil, nil)
	pending := manufacturer()
	pending.Verified = false
	pair, err := m.Issue(pending)
	require.NoError(t, err)

	next, err := m.Refresh(context.Background(), pair.RefreshToken, staticResolver{subject: manufacturer()})
	require.NoError(t, err)
	claims, err := m.Verify(context.Background(), next.AccessToken)
	require.NoError(t, err)
	assert.True(t, claims.Verified, "refresh picks up the current verification flag")

	_, err = m.Refresh(context.Background(), pair.RefreshToken, staticResolver{subject: manufacturer()})
	assert.True(t, errors.Is(err, apperror.ErrTokenRevoked), "refresh tokens are single use")
}

func TestRefreshFailures(t *testing.T) {
	m := NewManager(testJWTConfig(), nil, nil)
	pair, err := m.Issue(manufacturer())
	require.NoError(t, err)

	_, err = m.Refresh(context.Background(), pair.AccessToken, staticResolver{subject: manufacturer()})
	assert.True(t, errors.Is(err, apperror.ErrInvalidRefreshToken))

	_, err = m.Refresh(context.Background(), pair.RefreshToken, staticResolver{err: apperror.ErrStakeholderNotFound})
	assert.True(t, errors.Is(err, apperror.ErrInvalidRefreshToken))
}

func TestConcurrentVerifyAndRevoke(t *testing.T) {
	m := NewManager(testJWTConfig(), nil, nil)
	pair, err := m.Issue(manufacturer())
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = m.Verify(context.Background(), pair.AccessToken)
		}()
		go func() {
			defer wg.Done()
			_ = m.Revoke(context.Background(), pair.AccessToken)
		}()
	}
	wg.Wait()

	_, err = m.Verify(context.Background(), pair.AccessToken)
	assert.True(t, errors.Is(err, apperror.ErrTokenRevoked))
}

func TestRefreshTokenRedeemedOnceUnderConcurrency(t *testing.T) {
	m := NewManager(testJWTConfig(), nil, nil)
	pair, err := m.Issue(manufacturer())
	require.NoError(t, err)

	const callers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		revoked   int
	)
	resolver := slowResolver{subject: manufacturer(), delay: 20 * time.Millisecond}
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.Refresh(context.Background(), pair.RefreshToken, resolver)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, apperror.ErrTokenRevoked):
				revoked++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, callers-1, revoked)
}

func TestRefreshDegradesWhenStoreUnreachable(t *testing.T) {
	m := NewManager(testJWTConfig(), failingStore{}, nil)
	pair, err := m.Issue(manufacturer())
	require.NoError(t, err)

	_, err = m.Refresh(context.Background(), pair.RefreshToken, staticResolver{subject: manufacturer()})
	assert.NoError(t, err)
}
