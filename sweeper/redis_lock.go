package sweeper

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisLocker implements Locker with a redis SET NX lease, so only one
// instance of the daemon sweeps at a time.
type RedisLocker struct {
	client *redis.Client
}

// NewRedisLocker creates a locker on the given client.
func NewRedisLocker(client *redis.Client) *RedisLocker {
	return &RedisLocker{client: client}
}

// Acquire takes the lease if free. The TTL guards against a crashed holder
// wedging the sweep forever.
func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		ttl = time.Minute
	}

	ok, err := l.client.SetNX(ctx, key, "held", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx %q: %w", key, err)
	}

	return ok, nil
}

// Release frees the lease.
func (l *RedisLocker) Release(ctx context.Context, key string) error {
	if err := l.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis del %q: %w", key, err)
	}

	return nil
}
