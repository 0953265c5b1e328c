package auth

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	DefaultRevocationCacheTTL = time.Minute

	revocationKeyPrefix = "revoked:"

	// beyond this many cached entries a lookup sweeps the expired ones
	revocationCacheSweepSize = 10000
)

// RevocationStore answers whether a token id has been revoked. The
// store is external, implementations must bound their latency through
// the passed context.
type RevocationStore interface {
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

// RedisRevocationStore reads revocations from Redis, where the token
// service marks revoked tokens under revoked:<jti>.
type RedisRevocationStore struct {
	client *redis.Client
}

// NewRedisRevocationStore connects to the store behind a redis:// URI.
func NewRedisRevocationStore(uri string) (*RedisRevocationStore, error) {
	opt, err := redis.ParseURL(uri)
	if err != nil {
		return nil, err
	}

	return &RedisRevocationStore{client: redis.NewClient(opt)}, nil
}

func (s *RedisRevocationStore) IsRevoked(ctx context.Context, jti string) (bool, error) {
	n, err := s.client.Exists(ctx, revocationKeyPrefix+jti).Result()
	if err != nil {
		return false, err
	}

	return n > 0, nil
}

func (s *RedisRevocationStore) Close() error {
	return s.client.Close()
}

type revocationEntry struct {
	revoked   bool
	expiresAt time.Time
}

// CachedRevocations wraps a RevocationStore with an in-process cache to
// absorb the store latency. Staleness is bounded by the TTL.
type CachedRevocations struct {
	store RevocationStore
	ttl   time.Duration
	now   func() time.Time

	mx      sync.Mutex
	entries map[string]revocationEntry
}

// NewCachedRevocations initializes the cache. A zero ttl applies the
// default of one minute.
func NewCachedRevocations(store RevocationStore, ttl time.Duration) *CachedRevocations {
	if ttl <= 0 {
		ttl = DefaultRevocationCacheTTL
	}

	return &CachedRevocations{
		store:   store,
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]revocationEntry),
	}
}

func (c *CachedRevocations) IsRevoked(ctx context.Context, jti string) (bool, error) {
	now := c.now()

	c.mx.Lock()
	e, ok := c.entries[jti]
	c.mx.Unlock()

	if ok && now.Before(e.expiresAt) {
		return e.revoked, nil
	}

	revoked, err := c.store.IsRevoked(ctx, jti)
	if err != nil {
		return false, err
	}

	c.mx.Lock()
	if len(c.entries) >= revocationCacheSweepSize {
		c.sweep(now)
	}
	c.entries[jti] = revocationEntry{revoked: revoked, expiresAt: now.Add(c.ttl)}
	c.mx.Unlock()

	return revoked, nil
}

func (c *CachedRevocations) sweep(now time.Time) {
	for jti, e := range c.entries {
		if !now.Before(e.expiresAt) {
			delete(c.entries, jti)
		}
	}
}
