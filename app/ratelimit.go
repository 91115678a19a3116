// Redis-backed request throttling. Limits are shared across process
// instances; a per-process counter map would silently multiply every limit
// by the instance count.
package app

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/samuelogboye/cv-forge-api/app/config"
	"github.com/samuelogboye/cv-forge-api/auth"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
)

var redisClient *redis.Client

// MustInitRedis connects the shared limiter store. Redis being unconfigured
// is allowed for local development; limits are then not enforced.
func MustInitRedis() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("failed to load config for redis: %v", err)
	}
	if cfg.Redis.Addr == "" {
		log.Printf("REDIS_ADDR missing; rate limits disabled")
		return
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		log.Fatalf("redis ping failed: %v", err)
	}

	log.Println("Connected to Redis")
	redisClient = client
}

// SetRedis swaps the limiter store. Used by tests with miniredis.
func SetRedis(client *redis.Client) { redisClient = client }

// allowRate implements a fixed window counter: INCR plus EXPIRE in one
// pipeline, so concurrent instances share the same window.
func allowRate(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if redisClient == nil {
		return true, nil
	}

	pipe := redisClient.Pipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, window)
	if _, err := pipe.Exec(ctx); err != nil {
		// Fail open: a limiter outage must not take down request paths.
		return true, fmt.Errorf("redis error: %w", err)
	}

	return incr.Val() <= int64(limit), nil
}

// RateLimit returns gin middleware enforcing limit requests per window for
// the given scope, keyed by authenticated user when available and client IP
// otherwise.
func RateLimit(scope string, limit int, window time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := "ratelimit:" + scope + ":"
		if claims, ok := auth.ClaimsFromContext(c.Request.Context()); ok {
			key += "user:" + claims.Subject
		} else {
			key += "ip:" + c.ClientIP()
		}

		allowed, err := allowRate(c.Request.Context(), key, limit, window)
		if err != nil {
			log.Printf("rate limiter degraded scope=%s: %v", scope, err)
		}
		if !allowed {
			retryAfter := int(window.Seconds())
			c.Header("Retry-After", fmt.Sprintf("%d", retryAfter))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "rate limit exceeded",
				"retry_after": retryAfter,
			})
			return
		}
		c.Next()
	}
}
