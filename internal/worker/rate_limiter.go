package worker

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

// Lua script for an atomic fixed-window check. The counter is only
// incremented when the request fits in the window.
const windowLimitLuaScript = `
local key = KEYS[1]
local increment = tonumber(ARGV[1])
local limit = tonumber(ARGV[2])
local ttl = tonumber(ARGV[3])

local current = tonumber(redis.call("GET", key) or "0")

if current + increment > limit then
    return {0, current}  -- denied
end

local newVal = redis.call("INCRBY", key, increment)
if newVal == increment then
    redis.call("EXPIRE", key, ttl)
end

return {1, newVal}  -- allowed
`

// RedisLimiter caps dispatch throughput across every process sharing the
// Redis instance. At most limit sends are admitted per interval.
type RedisLimiter struct {
	redis    *redis.Client
	script   *redis.Script
	key      string
	limit    int
	interval time.Duration
	now      func() time.Time
}

// NewRedisLimiter creates a shared limiter admitting limit sends per interval.
func NewRedisLimiter(client *redis.Client, key string, limit int, interval time.Duration) *RedisLimiter {
	if interval <= 0 {
		interval = time.Minute
	}
	if limit <= 0 {
		limit = 60
	}
	return &RedisLimiter{
		redis:    client,
		script:   redis.NewScript(windowLimitLuaScript),
		key:      key,
		limit:    limit,
		interval: interval,
		now:      time.Now,
	}
}

// Allow atomically claims one slot in the current window. When denied it
// returns how long to wait for the next window.
func (r *RedisLimiter) Allow(ctx context.Context) (allowed bool, wait time.Duration, err error) {
	now := r.now()
	window := now.UnixNano() / int64(r.interval)
	key := fmt.Sprintf("ratelimit:%s:%d", r.key, window)
	ttl := int(2*r.interval/time.Second) + 1

	result, err := r.script.Run(ctx, r.redis, []string{key}, 1, r.limit, ttl).Slice()
	if err != nil {
		return false, 0, fmt.Errorf("rate limit check failed: %w", err)
	}
	if result[0].(int64) == 1 {
		return true, 0, nil
	}
	next := time.Unix(0, (window+1)*int64(r.interval))
	return false, next.Sub(now), nil
}

// Wait blocks until a slot is available or ctx is done. Redis errors fail
// open so an unavailable Redis does not halt delivery.
func (r *RedisLimiter) Wait(ctx context.Context) error {
	for {
		allowed, wait, err := r.Allow(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Printf("[worker.RedisLimiter] %v; allowing send", err)
			return nil
		}
		if allowed {
			return nil
		}
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}

// LocalLimiter is the single-process limiter used when Redis is not
// configured.
type LocalLimiter struct {
	limiter *rate.Limiter
}

// NewLocalLimiter spreads limit sends evenly over interval, allowing bursts
// of up to burst messages.
func NewLocalLimiter(limit int, interval time.Duration, burst int) *LocalLimiter {
	if interval <= 0 {
		interval = time.Minute
	}
	if limit <= 0 {
		limit = 60
	}
	if burst <= 0 {
		burst = 1
	}
	every := interval / time.Duration(limit)
	return &LocalLimiter{limiter: rate.NewLimiter(rate.Every(every), burst)}
}

func (l *LocalLimiter) Wait(ctx context.Context) error {
	return l.limiter.Wait(ctx)
}
