// Package infra provides shared infrastructure components used across
// the application: caching and rate limiting of outbound requests.
package infra

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
)

// --- TTL cache ---

// Cache is a thread-safe in-memory cache with a default TTL, backed by
// go-cache. Expired entries are purged every two TTLs.
type Cache struct {
	c   *gocache.Cache
	ttl time.Duration
}

// NewCache creates a new cache with the given default TTL. A TTL of zero or
// less disables caching: Set is a no-op and every Get misses.
func NewCache(ttl time.Duration) *Cache {
	if ttl <= 0 {
		return &Cache{c: gocache.New(gocache.NoExpiration, 0)}
	}
	return &Cache{c: gocache.New(ttl, 2*ttl), ttl: ttl}
}

// Enabled reports whether the cache stores anything.
func (c *Cache) Enabled() bool {
	return c != nil && c.ttl > 0
}

// Get retrieves a value from the cache. Returns nil, false if not found or expired.
func (c *Cache) Get(key string) (any, bool) {
	if !c.Enabled() {
		return nil, false
	}
	return c.c.Get(key)
}

// Set stores a value in the cache with the default TTL.
func (c *Cache) Set(key string, value any) {
	if !c.Enabled() {
		return
	}
	c.c.SetDefault(key, value)
}

// SetWithTTL stores a value in the cache with a custom TTL.
func (c *Cache) SetWithTTL(key string, value any, ttl time.Duration) {
	if !c.Enabled() || ttl <= 0 {
		return
	}
	c.c.Set(key, value, ttl)
}

// Invalidate removes a key from the cache.
func (c *Cache) Invalidate(key string) {
	c.c.Delete(key)
}

// Flush removes all entries from the cache.
func (c *Cache) Flush() {
	c.c.Flush()
}

// Len returns the number of entries, including expired ones not yet purged.
func (c *Cache) Len() int {
	return c.c.ItemCount()
}

// Fetch returns the cached value for key, or calls load and caches its
// result on success.
func Fetch[T any](c *Cache, key string, load func() (T, error)) (T, error) {
	if c.Enabled() {
		if v, ok := c.Get(key); ok {
			if typed, ok := v.(T); ok {
				return typed, nil
			}
		}
	}
	v, err := load()
	if err != nil {
		return v, err
	}
	c.Set(key, v)
	return v, nil
}

// --- Rate limiter ---

// RateLimiter is a token bucket that allows a steady request rate with a
// small burst.
type RateLimiter struct {
	l *rate.Limiter
}

// NewRateLimiter creates a rate limiter that allows maxTokens requests
// per refillRate duration.
func NewRateLimiter(maxTokens int, refillRate time.Duration) *RateLimiter {
	if maxTokens <= 0 {
		maxTokens = 1
	}
	if refillRate <= 0 {
		return &RateLimiter{l: rate.NewLimiter(rate.Inf, maxTokens)}
	}
	every := rate.Every(refillRate / time.Duration(maxTokens))
	return &RateLimiter{l: rate.NewLimiter(every, maxTokens)}
}

// NewPerSecond creates a limiter allowing rps requests per second. A
// non-positive rps disables limiting.
func NewPerSecond(rps float64) *RateLimiter {
	if rps <= 0 {
		return &RateLimiter{l: rate.NewLimiter(rate.Inf, 1)}
	}
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{l: rate.NewLimiter(rate.Limit(rps), burst)}
}

// Wait blocks until a token is available or context is cancelled.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	if rl == nil {
		return nil
	}
	return rl.l.Wait(ctx)
}

// Allow reports whether a request may proceed now without waiting.
func (rl *RateLimiter) Allow() bool {
	if rl == nil {
		return true
	}
	return rl.l.Allow()
}
