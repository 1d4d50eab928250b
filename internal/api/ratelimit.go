package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/Gaur97shiv/playknow/internal/metrics"
)

const redisTimeout = 200 * time.Millisecond

// Counter is the subset of redis commands the limiter uses.
type Counter interface {
	Incr(ctx context.Context, key string) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
}

// RateLimiter is a fixed-window limiter backed by redis INCR/EXPIRE.
// It fails open: a nil client or a redis error lets the request through.
type RateLimiter struct {
	client Counter
	limit  int
	window time.Duration
}

// NewRateLimiter creates a limiter. A nil client disables limiting.
func NewRateLimiter(client Counter, limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{client: client, limit: limit, window: window}
}

// NewRedisClient connects to redis and pings it. On failure it returns nil
// so the limiter stays open and the server stays available.
func NewRedisClient(ctx context.Context, addr, password string, db int) *redis.Client {
	if addr == "" {
		return nil
	}
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		log.Warn().Err(err).Str("addr", addr).Msg("Redis unavailable, rate limiting disabled")
		_ = client.Close()
		return nil
	}
	log.Info().Str("addr", addr).Msg("Connected to Redis")
	return client
}

// Middleware limits by user id when authenticated, else by client IP.
// key format: rl:<window_seconds>:<identifier>
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if rl == nil || rl.client == nil || rl.limit <= 0 {
			c.Next()
			return
		}

		ident := "ip:" + c.ClientIP()
		if id := currentUser(c); id != 0 {
			ident = "user:" + strconv.FormatInt(id, 10)
		}
		key := "rl:" + strconv.FormatInt(int64(rl.window.Seconds()), 10) + ":" + ident

		ctx, cancel := context.WithTimeout(c.Request.Context(), redisTimeout)
		defer cancel()

		val, err := rl.client.Incr(ctx, key).Result()
		if err != nil {
			c.Header("X-RateLimit-Error", "redis-error")
			c.Next()
			return
		}
		if val == 1 {
			rl.client.Expire(ctx, key, rl.window)
		}

		endpoint := c.FullPath()
		c.Header("X-RateLimit-Limit", strconv.Itoa(rl.limit))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(max(0, int64(rl.limit)-val), 10))
		if val > int64(rl.limit) {
			metrics.RLBlocked.WithLabelValues(endpoint).Inc()
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded", "code": "rate_limited"})
			return
		}
		metrics.RLRequests.WithLabelValues(endpoint).Inc()
		c.Next()
	}
}
