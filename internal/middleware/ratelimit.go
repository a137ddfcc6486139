package middleware

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// windowCounter counts hits for key within the current fixed window.
type windowCounter interface {
	Hit(ctx context.Context, key string, window time.Duration) (int64, error)
}

type RateLimiter struct {
	counter windowCounter
	limit   int
	window  time.Duration
}

// NewRateLimiter keeps per-IP counts in process memory.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{counter: newMemoryCounter(window), limit: limit, window: window}
}

// NewRedisRateLimiter shares counts between replicas through Redis.
func NewRedisRateLimiter(client *redis.Client, limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{counter: &redisCounter{client: client}, limit: limit, window: window}
}

func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		count, err := rl.counter.Hit(r.Context(), clientIP(r), rl.window)
		if err != nil {
			// Fail open: a broken limiter must not take the chat endpoint down.
			log.Ctx(r.Context()).Warn().Err(err).Msg("rate limiter unavailable")
			next.ServeHTTP(w, r)
			return
		}

		if count > int64(rl.limit) {
			writeError(w, http.StatusTooManyRequests, "RATE_LIMITED", "Too many requests. Please try again later.", r)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

type visitor struct {
	count       int64
	windowStart time.Time
}

type memoryCounter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
}

func newMemoryCounter(window time.Duration) *memoryCounter {
	c := &memoryCounter{visitors: make(map[string]*visitor)}

	// Cleanup goroutine
	go func() {
		for {
			time.Sleep(window)
			c.mu.Lock()
			for ip, v := range c.visitors {
				if time.Since(v.windowStart) > window {
					delete(c.visitors, ip)
				}
			}
			c.mu.Unlock()
		}
	}()

	return c
}

func (c *memoryCounter) Hit(_ context.Context, key string, window time.Duration) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Rejected hits still count but never move windowStart.
	v, exists := c.visitors[key]
	if !exists || time.Since(v.windowStart) > window {
		c.visitors[key] = &visitor{count: 1, windowStart: time.Now()}
		return 1, nil
	}

	v.count++
	return v.count, nil
}

type redisCounter struct {
	client *redis.Client
}

func (c *redisCounter) Hit(ctx context.Context, key string, window time.Duration) (int64, error) {
	redisKey := fmt.Sprintf("ratelimit:%s", key)

	count, err := c.client.Incr(ctx, redisKey).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to increment %s: %w", redisKey, err)
	}
	if count == 1 {
		if err := c.client.Expire(ctx, redisKey, window).Err(); err != nil {
			return 0, fmt.Errorf("failed to set expiry on %s: %w", redisKey, err)
		}
	}
	return count, nil
}
