package middleware

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/crsongirkar/YT-Platform/internal/logging"
)

// RedisCounter is the subset of the Redis client used by the limiter. *redis.Client satisfies it.
type RedisCounter interface {
	Incr(ctx context.Context, key string) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
}

// redisRateLimiter counts requests per fixed window in Redis so every API instance shares
// the same budget.
type redisRateLimiter struct {
	client   RedisCounter
	prefix   string
	requests int64
	window   time.Duration
	timeout  time.Duration
	now      func() time.Time
}

// NewRedisRateLimiter constructs a limiter allowing `requests` events per `window` per key.
// When Redis is unreachable the limiter lets requests through.
func NewRedisRateLimiter(client RedisCounter, prefix string, requests int, window time.Duration) RateLimiter {
	if requests <= 0 {
		requests = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	if prefix == "" {
		prefix = "ratelimit"
	}
	return &redisRateLimiter{
		client:   client,
		prefix:   prefix,
		requests: int64(requests),
		window:   window,
		timeout:  250 * time.Millisecond,
		now:      time.Now,
	}
}

func (l *redisRateLimiter) Allow(ctx context.Context, key string) bool {
	if key == "" {
		key = "unknown"
	}

	bucket := l.now().UnixNano() / int64(l.window)
	redisKey := fmt.Sprintf("%s:%s:%d", l.prefix, key, bucket)

	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	count, err := l.client.Incr(ctx, redisKey).Result()
	if err != nil {
		logging.FromContext(ctx).Warn("rate limiter unavailable, allowing request", "key", key, "error", err)
		return true
	}
	if count == 1 {
		if err := l.client.Expire(ctx, redisKey, l.window).Err(); err != nil {
			logging.FromContext(ctx).Warn("set rate limit window expiry", "key", key, "error", err)
		}
	}

	return count <= l.requests
}
