package middleware

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

// Limiter bounds credential attempts per client key (normally the IP).
// A limiter failure must not take the login surface down, so Redis-backed
// implementations fail open and report the error separately.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// LoginLimiter is an in-memory token bucket keyed by client
type LoginLimiter struct {
	ratePerMinute int
	burst         int
	buckets       map[string]*bucket
	mu            sync.Mutex
}

type bucket struct {
	tokens     float64
	lastUpdate time.Time
}

// NewLoginLimiter creates a limiter allowing ratePerMinute attempts with a
// burst allowance on top.
func NewLoginLimiter(ratePerMinute, burst int) *LoginLimiter {
	if ratePerMinute <= 0 {
		ratePerMinute = 10
	}
	if burst < 0 {
		burst = 0
	}
	return &LoginLimiter{
		ratePerMinute: ratePerMinute,
		burst:         burst,
		buckets:       make(map[string]*bucket),
	}
}

// Allow checks whether an attempt is allowed for the key
func (l *LoginLimiter) Allow(ctx context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	max := float64(l.ratePerMinute + l.burst)

	b, exists := l.buckets[key]
	if !exists {
		b = &bucket{tokens: max, lastUpdate: now}
		l.buckets[key] = b
	}

	// Refill based on elapsed time
	elapsed := now.Sub(b.lastUpdate)
	b.tokens += elapsed.Minutes() * float64(l.ratePerMinute)
	if b.tokens > max {
		b.tokens = max
	}
	b.lastUpdate = now

	if b.tokens >= 1 {
		b.tokens--
		return true, nil
	}
	return false, nil
}

// Cleanup removes buckets idle long enough to have fully refilled
func (l *LoginLimiter) Cleanup() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	for key, b := range l.buckets {
		if now.Sub(b.lastUpdate) > 2*time.Minute {
			delete(l.buckets, key)
		}
	}
}

// StartCleanup starts a background goroutine to cleanup idle buckets
func (l *LoginLimiter) StartCleanup(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	go func() {
		for {
			select {
			case <-ticker.C:
				l.Cleanup()
			case <-ctx.Done():
				ticker.Stop()
				return
			}
		}
	}()
}

// DistributedLoginLimiter counts attempts in Redis so the limit holds
// across instances. On a Redis failure it fails open: blocking all logins
// because the cache is down is worse than briefly losing the limit.
type DistributedLoginLimiter struct {
	redis         *redis.Client
	ratePerMinute int
	prefix        string
}

// NewDistributedLoginLimiter creates a Redis-backed login limiter
func NewDistributedLoginLimiter(client *redis.Client, ratePerMinute int) *DistributedLoginLimiter {
	if ratePerMinute <= 0 {
		ratePerMinute = 10
	}
	return &DistributedLoginLimiter{
		redis:         client,
		ratePerMinute: ratePerMinute,
		prefix:        "gatehouse:loginlimit",
	}
}

// Allow checks whether an attempt is allowed for the key
func (l *DistributedLoginLimiter) Allow(ctx context.Context, key string) (bool, error) {
	redisKey := fmt.Sprintf("%s:%s", l.prefix, key)

	pipe := l.redis.Pipeline()
	incr := pipe.Incr(ctx, redisKey)
	pipe.Expire(ctx, redisKey, time.Minute)

	if _, err := pipe.Exec(ctx); err != nil {
		return true, fmt.Errorf("redis error: %w", err)
	}

	return incr.Val() <= int64(l.ratePerMinute), nil
}

// Reset clears the counter for a key
func (l *DistributedLoginLimiter) Reset(ctx context.Context, key string) error {
	return l.redis.Del(ctx, fmt.Sprintf("%s:%s", l.prefix, key)).Err()
}
