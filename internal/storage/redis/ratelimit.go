package redisstore

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"

	"github.com/xenking/storefront/internal/domain/auth"
)

var _ auth.RateLimiter = (*Limiter)(nil)

// Limiter is a fixed-window counter shared by all API instances.
type Limiter struct {
	rdb *redis.Client
}

// NewLimiter creates a Limiter.
func NewLimiter(rdb *redis.Client) *Limiter {
	return &Limiter{rdb: rdb}
}

// Hit increments the counter for key and returns the count in the current
// window and when the window ends. The window starts with the first hit.
func (l *Limiter) Hit(ctx context.Context, key string, window time.Duration) (int, time.Time, error) {
	k := KeyRateLimit + key
	var (
		incr *redis.IntCmd
		ttl  *redis.DurationCmd
	)
	_, err := l.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, k)
		pipe.ExpireNX(ctx, k, window)
		ttl = pipe.PTTL(ctx, k)
		return nil
	})
	if err != nil {
		return 0, time.Time{}, errors.Wrapf(err, "rate limit %s", key)
	}
	left := ttl.Val()
	if left < 0 {
		left = window
	}
	return int(incr.Val()), time.Now().Add(left), nil
}

// Allow reports whether key is still within limit after this hit.
func (l *Limiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	n, _, err := l.Hit(ctx, key, window)
	if err != nil {
		return false, err
	}
	return n <= limit, nil
}
