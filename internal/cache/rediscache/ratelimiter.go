package rediscache

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// RateLimiter is a fixed-window counter shared by every route-worker replica.
type RateLimiter struct {
	c *redis.Client
}

func NewRateLimiter(opts Options) *RateLimiter {
	return &RateLimiter{
		c: redis.NewClient(&redis.Options{Addr: opts.Addr, Password: opts.Password, DB: opts.DB}),
	}
}

func (rl *RateLimiter) Close() error {
	return rl.c.Close()
}

// Allow increments key and re-arms its expiry in one transaction.
// It returns whether the call fits into limit and the count so far in this window.
func (rl *RateLimiter) Allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, int64, error) {
	pipe := rl.c.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, 0, errors.Wrap(err, "redis ratelimit")
	}
	n := incr.Val()
	return n <= limit, n, nil
}
