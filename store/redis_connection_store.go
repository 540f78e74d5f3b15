package store

import (
	"context"
	"time"
)

const defaultConnectionTTL = 24 * time.Hour

// RedisConnectionCache remembers which user owns a business connection so
// every business update does not need a getBusinessConnection round trip.
type RedisConnectionCache struct {
	rc  *RedisClient
	ttl time.Duration
}

func NewRedisConnectionCache(rc *RedisClient, ttl time.Duration) *RedisConnectionCache {
	if ttl <= 0 {
		ttl = defaultConnectionTTL
	}
	return &RedisConnectionCache{rc: rc, ttl: ttl}
}

func (c *RedisConnectionCache) connKey(connectionID string) string {
	return c.rc.key("conn", connectionID)
}

func (c *RedisConnectionCache) GetOwner(ctx context.Context, connectionID string) (int64, bool, error) {
	return c.rc.getInt64(ctx, c.connKey(connectionID))
}

func (c *RedisConnectionCache) SetOwner(ctx context.Context, connectionID string, ownerID int64) error {
	return c.rc.setInt64(ctx, c.connKey(connectionID), ownerID, c.ttl)
}

func (c *RedisConnectionCache) Forget(ctx context.Context, connectionID string) error {
	return c.rc.del(ctx, c.connKey(connectionID))
}
