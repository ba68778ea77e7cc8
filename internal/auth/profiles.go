package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/iliyamo/pharmatrace/internal/model"
)

// ProfileCache stores stakeholder profiles keyed by address. It is advisory:
// losing it only costs a ledger read.
type ProfileCache interface {
	Get(ctx context.Context, address string) (model.Stakeholder, bool, error)
	Set(ctx context.Context, s model.Stakeholder, ttl time.Duration) error
	Delete(ctx context.Context, address string) error
}

// StakeholderSource is the authoritative store behind the cache.
type StakeholderSource interface {
	GetStakeholder(ctx context.Context, address string) (model.Stakeholder, error)
}

func profileKey(address string) string { return strings.ToLower(address) }

// RedisProfileCache keeps profiles as JSON strings with a TTL.
type RedisProfileCache struct {
	client *redis.Client
	prefix string
}

func NewRedisProfileCache(client *redis.Client) *RedisProfileCache {
	return &RedisProfileCache{client: client, prefix: "auth:profile:"}
}

func (c *RedisProfileCache) Get(ctx context.Context, address string) (model.Stakeholder, bool, error) {
	raw, err := c.client.Get(ctx, c.prefix+profileKey(address)).Bytes()
	if errors.Is(err, redis.Nil) {
		return model.Stakeholder{}, false, nil
	}
	if err != nil {
		return model.Stakeholder{}, false, err
	}
	var s model.Stakeholder
	if err := json.Unmarshal(raw, &s); err != nil {
		return model.Stakeholder{}, false, fmt.Errorf("decode cached profile: %w", err)
	}
	return s, true, nil
}

func (c *RedisProfileCache) Set(ctx context.Context, s model.Stakeholder, ttl time.Duration) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.prefix+profileKey(s.Address), raw, ttl).Err()
}

func (c *RedisProfileCache) Delete(ctx context.Context, address string) error {
	return c.client.Del(ctx, c.prefix+profileKey(address)).Err()
}

// MemoryProfileCache is the in-process twin.
type MemoryProfileCache struct {
	mu      sync.RWMutex
	entries map[string]cachedProfile
	now     func() time.Time
}

type cachedProfile struct {
	profile model.Stakeholder
	expires time.Time
}

func NewMemoryProfileCache() *MemoryProfileCache {
	return &MemoryProfileCache{entries: make(map[string]cachedProfile), now: time.Now}
}

func (c *MemoryProfileCache) Get(_ context.Context, address string) (model.Stakeholder, bool, error) {
	c.mu.RLock()
	e, ok := c.entries[profileKey(address)]
	c.mu.RUnlock()
	if !ok || !c.now().Before(e.expires) {
		return model.Stakeholder{}, false, nil
	}
	return e.profile, true, nil
}

func (c *MemoryProfileCache) Set(_ context.Context, s model.Stakeholder, ttl time.Duration) error {
	c.mu.Lock()
	c.entries[profileKey(s.Address)] = cachedProfile{profile: s, expires: c.now().Add(ttl)}
	c.mu.Unlock()
	return nil
}

func (c *MemoryProfileCache) Delete(_ context.Context, address string) error {
	c.mu.Lock()
	delete(c.entries, profileKey(address))
	c.mu.Unlock()
	return nil
}

// Profiles is a cache-aside reader over the ledger's stakeholder records.
// Reads may be stale by up to ttl; writers that change a profile call
// Invalidate. Cache errors are logged and bypassed.
type Profiles struct {
	cache  ProfileCache
	source StakeholderSource
	ttl    time.Duration
	log    *zap.Logger
}

// NewProfiles builds the cache-aside lookup. A non-positive ttl means one hour.
func NewProfiles(cache ProfileCache, source StakeholderSource, ttl time.Duration, log *zap.Logger) *Profiles {
	if cache == nil {
		cache = NewMemoryProfileCache()
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Profiles{cache: cache, source: source, ttl: ttl, log: log.Named("profiles")}
}

// Get returns the profile for address, loading it from the source on a miss.
func (p *Profiles) Get(ctx context.Context, address string) (model.Stakeholder, error) {
	s, ok, err := p.cache.Get(ctx, address)
	switch {
	case err != nil:
		p.log.Warn("profile cache read failed", zap.String("address", address), zap.Error(err))
	case ok:
		return s, nil
	}

	s, err = p.source.GetStakeholder(ctx, address)
	if err != nil {
		return model.Stakeholder{}, err
	}
	if err := p.cache.Set(ctx, s, p.ttl); err != nil {
		p.log.Warn("profile cache write failed", zap.String("address", address), zap.Error(err))
	}
	return s, nil
}

// Fresh bypasses the cache and refreshes it with the authoritative record.
func (p *Profiles) Fresh(ctx context.Context, address string) (model.Stakeholder, error) {
	s, err := p.source.GetStakeholder(ctx, address)
	if err != nil {
		return model.Stakeholder{}, err
	}
	if err := p.cache.Set(ctx, s, p.ttl); err != nil {
		p.log.Warn("profile cache write failed", zap.String("address", address), zap.Error(err))
	}
	return s, nil
}

// Invalidate drops the cached profile for address.
func (p *Profiles) Invalidate(ctx context.Context, address string) {
	if err := p.cache.Delete(ctx, address); err != nil {
		p.log.Warn("profile cache delete failed", zap.String("address", address), zap.Error(err))
	}
}

// ResolveSubject implements SubjectResolver. It always reads the authoritative
// record.
func (p *Profiles) ResolveSubject(ctx context.Context, address string) (Subject, error) {
	s, err := p.Fresh(ctx, address)
	if err != nil {
		return Subject{}, err
	}
	return Subject{Address: s.Address, Role: s.Role, Verified: s.Verified, Name: s.Name}, nil
}
