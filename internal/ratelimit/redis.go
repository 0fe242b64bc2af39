package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultRedisPrefix = "cnw:ratelimit:"

// Redis is a fixed-window limiter shared by every server instance using the
// same Redis database.
type Redis struct {
	client *redis.Client
	limit  int64
	window time.Duration
	prefix string
	nowFn  func() time.Time
}

// NewRedis creates a limiter allowing limit requests per window per key.
func NewRedis(client *redis.Client, limit int, window time.Duration) *Redis {
	return &Redis{
		client: client,
		limit:  int64(limit),
		window: window,
		prefix: defaultRedisPrefix,
		nowFn:  time.Now,
	}
}

// Allow counts the request against key's current window and reports whether
// the count is still within the limit.
func (r *Redis) Allow(ctx context.Context, key string) (bool, error) {
	bucket := r.nowFn().UnixNano() / int64(r.window)
	k := fmt.Sprintf("%s%s:%d", r.prefix, key, bucket)

	var incr *redis.IntCmd
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, k)
		pipe.Expire(ctx, k, r.window)
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("rate limit incr: %w", err)
	}
	return incr.Val() <= r.limit, nil
}
