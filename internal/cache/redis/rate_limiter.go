package redis

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/xness/riskcore/internal/domain"
)

//go:embed scripts/sliding_window.lua
var slidingWindowLua string

// RateLimiter implements a distributed sliding-window limiter using a Lua
// script over a sorted set. It is applied to the order placement surface.
type RateLimiter struct {
	rdb    *redis.Client
	script *redis.Script
}

func NewRateLimiter(c *Client) *RateLimiter {
	return &RateLimiter{
		rdb:    c.Underlying(),
		script: redis.NewScript(slidingWindowLua),
	}
}

// Allow reports whether a request identified by key is admitted under the
// given limit per window. Errors fail open: callers decide whether to admit.
func (rl *RateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	now := time.Now().UnixMilli()
	res, err := rl.script.Run(ctx, rl.rdb,
		[]string{"ratelimit:" + key},
		now, window.Milliseconds(), limit,
	).Int()
	if err != nil {
		return false, fmt.Errorf("redis: rate limit %s: %w", key, err)
	}
	return res == 1, nil
}

var _ domain.RateLimiter = (*RateLimiter)(nil)
