package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	redisPoolSize    = 10
	redisDialTimeout = 5 * time.Second
	redisIOTimeout   = 2 * time.Second
)

// RedisClient is a go-redis client whose keys all live under one prefix.
type RedisClient struct {
	client *redis.Client
	prefix string
}

// NewRedisClient connects and pings. A failed ping closes the client.
func NewRedisClient(ctx context.Context, addr, password string, db int, prefix string) (*RedisClient, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		PoolSize:     redisPoolSize,
		DialTimeout:  redisDialTimeout,
		ReadTimeout:  redisIOTimeout,
		WriteTimeout: redisIOTimeout,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis at %s: %w", addr, err)
	}
	return &RedisClient{client: rdb, prefix: strings.TrimSuffix(prefix, ":")}, nil
}

func (r *RedisClient) key(parts ...string) string {
	return strings.Join(append([]string{r.prefix}, parts...), ":")
}

// getInt64 reports ok=false for a missing key.
func (r *RedisClient) getInt64(ctx context.Context, key string) (int64, bool, error) {
	raw, err := r.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("key %s holds %q: %w", key, raw, err)
	}
	return v, true, nil
}

func (r *RedisClient) setInt64(ctx context.Context, key string, v int64, ttl time.Duration) error {
	return r.client.Set(ctx, key, strconv.FormatInt(v, 10), ttl).Err()
}

func (r *RedisClient) del(ctx context.Context, key string) error {
	return r.client.Del(ctx, key).Err()
}

func (r *RedisClient) Close() error {
	return r.client.Close()
}
