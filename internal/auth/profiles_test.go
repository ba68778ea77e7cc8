package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/pharmatrace/internal/apperror"
	"github.com/iliyamo/pharmatrace/internal/model"
)

type countingSource struct {
	calls int
	byKey map[string]model.Stakeholder
}

func (s *countingSource) GetStakeholder(_ context.Context, address string) (model.Stakeholder, error) {
	s.calls++
	st, ok := s.byKey[profileKey(address)]
	if !ok {
		return model.Stakeholder{}, apperror.ErrStakeholderNotFound
	}
	return st, nil
}

type brokenCache struct{}

func (brokenCache) Get(context.Context, string) (model.Stakeholder, bool, error) {
	return model.Stakeholder{}, false, errors.New("redis down")
}
func (brokenCache) Set(context.Context, model.Stakeholder, time.Duration) error {
	return errors.New("redis down")
}
func (brokenCache) Delete(context.Context, string) error { return errors.New("redis down") }

func newSource() *countingSource {
	return &countingSource{byKey: map[string]model.Stakeholder{
		profileKey(testAddr): {Address: testAddr, Name: "Acme", Role: model.RoleManufacturer},
	}}
}

func TestProfilesCacheAside(t *testing.T) {
	src := newSource()
	p := NewProfiles(NewMemoryProfileCache(), src, time.Hour, nil)

	s, err := p.Get(context.Background(), testAddr)
	require.NoError(t, err)
	assert.Equal(t, "Acme", s.Name)

	_, err = p.Get(context.Background(), "0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed")
	require.NoError(t, err)
	assert.Equal(t, 1, src.calls, "second read is served from cache regardless of casing")

	p.Invalidate(context.Background(), testAddr)
	_, err = p.Get(context.Background(), testAddr)
	require.NoError(t, err)
	assert.Equal(t, 2, src.calls)
}

func TestProfilesExpiry(t *testing.T) {
	src := newSource()
	cache := NewMemoryProfileCache()
	now := time.Now()
	cache.now = func() time.Time { return now }
	p := NewProfiles(cache, src, time.Minute, nil)

	_, err := p.Get(context.Background(), testAddr)
	require.NoError(t, err)
	now = now.Add(2 * time.Minute)
	_, err = p.Get(context.Background(), testAddr)
	require.NoError(t, err)
	assert.Equal(t, 2, src.calls)
}

func TestProfilesBypassBrokenCache(t *testing.T) {
	src := newSource()
	p := NewProfiles(brokenCache{}, src, time.Hour, nil)

	s, err := p.Get(context.Background(), testAddr)
	require.NoError(t, err)
	assert.Equal(t, model.RoleManufacturer, s.Role)
	p.Invalidate(context.Background(), testAddr)
}

func TestProfilesNotFound(t *testing.T) {
	p := NewProfiles(nil, newSource(), 0, nil)
	_, err := p.Get(context.Background(), "0x0000000000000000000000000000000000000001")
	assert.True(t, errors.Is(err, apperror.ErrStakeholderNotFound))
}

func TestResolveSubjectReadsSource(t *testing.T) {
	src := newSource()
	p := NewProfiles(nil, src, time.Hour, nil)
	_, err := p.Get(context.Background(), testAddr)
	require.NoError(t, err)

	sub, err := p.ResolveSubject(context.Background(), testAddr)
	require.NoError(t, err)
	assert.Equal(t, testAddr, sub.Address)
	assert.Equal(t, 2, src.calls)
}

func TestMemoryRevocationStoreExpiry(t *testing.T) {
	s := NewMemoryRevocationStore()
	now := time.Now()
	s.now = func() time.Time { return now }

	require.NoError(t, s.Revoke(context.Background(), "jti-1", time.Minute))
	ok, err := s.IsRevoked(context.Background(), "jti-1")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, s.Revoke(context.Background(), "jti-1", time.Second))
	now = now.Add(30 * time.Second)
	ok, _ = s.IsRevoked(context.Background(), "jti-1")
	assert.True(t, ok, "a second revoke does not shorten the entry")

	now = now.Add(time.Minute)
	ok, _ = s.IsRevoked(context.Background(), "jti-1")
	assert.False(t, ok)

	won, err := s.Claim(context.Background(), "jti-3", time.Minute)
	require.NoError(t, err)
	assert.True(t, won)
	won, err = s.Claim(context.Background(), "jti-3", time.Minute)
	require.NoError(t, err)
	assert.False(t, won, "a live entry cannot be claimed twice")

	require.NoError(t, s.Revoke(context.Background(), "jti-2", 0))
	ok, _ = s.IsRevoked(context.Background(), "jti-2")
	assert.False(t, ok)
}
