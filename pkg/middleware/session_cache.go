package middleware

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

// SessionCache is the server-side token storage consulted before any other
// transport. It also tracks the one-time-per-session login warning flag.
type SessionCache interface {
	// GetToken returns the token stored for the session, or "" if none
	GetToken(ctx context.Context, sessionID string) (string, error)

	// SetToken stores the token for the session
	SetToken(ctx context.Context, sessionID, token string) error

	// ClearToken removes the session's stored token
	ClearToken(ctx context.Context, sessionID string) error

	// MarkWarned flips the session's warning flag and reports whether this
	// call was the first to do so.
	MarkWarned(ctx context.Context, sessionID string) (bool, error)

	// Close releases cache resources
	Close() error
}

// RedisSessionCache stores session tokens in Redis so every instance behind
// a load balancer sees the same session state.
type RedisSessionCache struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// NewRedisSessionCache creates a Redis-backed session cache. Entries expire
// after ttl, which should be at least the access token lifetime.
func NewRedisSessionCache(client *redis.Client, ttl time.Duration) *RedisSessionCache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &RedisSessionCache{
		client: client,
		ttl:    ttl,
		prefix: "gatehouse:session",
	}
}

func (c *RedisSessionCache) tokenKey(sessionID string) string {
	return fmt.Sprintf("%s:token:%s", c.prefix, sessionID)
}

func (c *RedisSessionCache) warnedKey(sessionID string) string {
	return fmt.Sprintf("%s:warned:%s", c.prefix, sessionID)
}

// GetToken returns the token stored for the session
func (c *RedisSessionCache) GetToken(ctx context.Context, sessionID string) (string, error) {
	val, err := c.client.Get(ctx, c.tokenKey(sessionID)).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read session token: %w", err)
	}
	return val, nil
}

// SetToken stores the token for the session
func (c *RedisSessionCache) SetToken(ctx context.Context, sessionID, token string) error {
	if err := c.client.Set(ctx, c.tokenKey(sessionID), token, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store session token: %w", err)
	}
	return nil
}

// ClearToken removes the session's stored token
func (c *RedisSessionCache) ClearToken(ctx context.Context, sessionID string) error {
	if err := c.client.Del(ctx, c.tokenKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("failed to clear session token: %w", err)
	}
	return nil
}

// MarkWarned flips the session's warning flag
func (c *RedisSessionCache) MarkWarned(ctx context.Context, sessionID string) (bool, error) {
	first, err := c.client.SetNX(ctx, c.warnedKey(sessionID), "1", c.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to mark session warned: %w", err)
	}
	return first, nil
}

// Close closes the underlying client
func (c *RedisSessionCache) Close() error {
	return c.client.Close()
}

// MemorySessionCache keeps session state in process memory. Suitable for
// tests and single-instance deployments.
type MemorySessionCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	tokens  map[string]memoryEntry
	warned  map[string]time.Time
}

type memoryEntry struct {
	token     string
	expiresAt time.Time
}

// NewMemorySessionCache creates an in-memory session cache
func NewMemorySessionCache(ttl time.Duration) *MemorySessionCache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &MemorySessionCache{
		ttl:    ttl,
		tokens: make(map[string]memoryEntry),
		warned: make(map[string]time.Time),
	}
}

// GetToken returns the token stored for the session
func (c *MemorySessionCache) GetToken(ctx context.Context, sessionID string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.tokens[sessionID]
	if !ok || time.Now().After(entry.expiresAt) {
		delete(c.tokens, sessionID)
		return "", nil
	}
	return entry.token, nil
}

// SetToken stores the token for the session
func (c *MemorySessionCache) SetToken(ctx context.Context, sessionID, token string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tokens[sessionID] = memoryEntry{token: token, expiresAt: time.Now().Add(c.ttl)}
	return nil
}

// ClearToken removes the session's stored token
func (c *MemorySessionCache) ClearToken(ctx context.Context, sessionID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.tokens, sessionID)
	return nil
}

// MarkWarned flips the session's warning flag
func (c *MemorySessionCache) MarkWarned(ctx context.Context, sessionID string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if at, ok := c.warned[sessionID]; ok && time.Now().Before(at.Add(c.ttl)) {
		return false, nil
	}
	c.warned[sessionID] = time.Now()
	return true, nil
}

// Close is a no-op
func (c *MemorySessionCache) Close() error { return nil }
