package middleware

import (
	"fmt"
	"time"

	"secretsanta/server/internal/logger"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

// RedisRateLimiter is a fixed window limiter shared by every server instance
// pointing at the same redis.
type RedisRateLimiter struct {
	redis  *redis.Client
	prefix string
	limit  int
	window time.Duration
	log    *logger.Logger
}

func NewRedisRateLimiter(client *redis.Client, prefix string, limit int, window time.Duration, log *logger.Logger) *RedisRateLimiter {
	return &RedisRateLimiter{redis: client, prefix: prefix, limit: limit, window: window, log: log}
}

// Handler counts requests per user (or IP) in the current window. Redis
// failures let the request through.
func (r *RedisRateLimiter) Handler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		key := fmt.Sprintf("%s:%s", r.prefix, limitKey(c))

		pipe := r.redis.TxPipeline()
		incr := pipe.Incr(c.UserContext(), key)
		pipe.ExpireNX(c.UserContext(), key, r.window)
		if _, err := pipe.Exec(c.UserContext()); err != nil {
			r.log.Warn("rate limiter unavailable", "prefix", r.prefix, "error", err)
			return c.Next()
		}

		if incr.Val() > int64(r.limit) {
			return limitReached(c)
		}
		return c.Next()
	}
}

// SendRateLimiter picks the redis limiter when a client is configured and the
// in-process limiter otherwise.
func SendRateLimiter(client *redis.Client, log *logger.Logger) fiber.Handler {
	if client == nil {
		return ModerateRateLimiter()
	}
	return NewRedisRateLimiter(client, "ratelimit:send", 30, time.Minute, log).Handler()
}
