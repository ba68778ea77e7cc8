package auth

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RevocationStore holds the ids of credentials invalidated before their natural
// expiry. An id is written at most once and is never removed before its TTL
// runs out.
type RevocationStore interface {
	Revoke(ctx context.Context, jti string, ttl time.Duration) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
	// Claim writes jti only when it is absent and reports whether this call
	// wrote it. Exactly one concurrent caller wins.
	Claim(ctx context.Context, jti string, ttl time.Duration) (bool, error)
}

// RedisRevocationStore shares the revocation set between instances.
type RedisRevocationStore struct {
	client    *redis.Client
	keyPrefix string
}

func NewRedisRevocationStore(client *redis.Client) *RedisRevocationStore {
	return &RedisRevocationStore{client: client, keyPrefix: "auth:revoked:"}
}

func (s *RedisRevocationStore) key(jti string) string { return s.keyPrefix + jti }

// Revoke uses SETNX so a second revocation neither resets nor shortens the
// existing entry.
func (s *RedisRevocationStore) Revoke(ctx context.Context, jti string, ttl time.Duration) error {
	_, err := s.Claim(ctx, jti, ttl)
	return err
}

// Claim is SETNX; its reply says whether this caller created the key.
func (s *RedisRevocationStore) Claim(ctx context.Context, jti string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		return false, nil
	}
	won, err := s.client.SetNX(ctx, s.key(jti), "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("revoke %s: %w", jti, err)
	}
	return won, nil
}

func (s *RedisRevocationStore) IsRevoked(ctx context.Context, jti string) (bool, error) {
	n, err := s.client.Exists(ctx, s.key(jti)).Result()
	if err != nil {
		return false, fmt.Errorf("check revocation %s: %w", jti, err)
	}
	return n > 0, nil
}

var _ RevocationStore = (*RedisRevocationStore)(nil)

// MemoryRevocationStore is the single-process twin used when Redis is not
// configured and in tests. Entries are dropped lazily after expiry.
type MemoryRevocationStore struct {
	mu      sync.Mutex
	entries map[string]time.Time
	now     func() time.Time
}

func NewMemoryRevocationStore() *MemoryRevocationStore {
	return &MemoryRevocationStore{entries: make(map[string]time.Time), now: time.Now}
}

func (s *MemoryRevocationStore) Revoke(ctx context.Context, jti string, ttl time.Duration) error {
	_, err := s.Claim(ctx, jti, ttl)
	return err
}

// Claim checks and writes under one lock. An expired entry can be claimed again.
func (s *MemoryRevocationStore) Claim(_ context.Context, jti string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		return false, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if exp, ok := s.entries[jti]; ok && s.now().Before(exp) {
		return false, nil
	}
	s.entries[jti] = s.now().Add(ttl)
	return true, nil
}

func (s *MemoryRevocationStore) IsRevoked(_ context.Context, jti string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	exp, ok := s.entries[jti]
	if !ok {
		return false, nil
	}
	if !s.now().Before(exp) {
		delete(s.entries, jti)
		return false, nil
	}
	return true, nil
}

var _ RevocationStore = (*MemoryRevocationStore)(nil)
