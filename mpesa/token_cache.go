package mpesa

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// tokenExpirySkew retires cached tokens slightly before the provider does.
const tokenExpirySkew = 60 * time.Second

// TokenCache holds one access token per biller shortcode.
type TokenCache interface {
	Get(ctx context.Context, shortcode string) (string, bool)
	Set(ctx context.Context, shortcode, token string, expiresAt time.Time)
	Invalidate(ctx context.Context, shortcode string)
}

type cachedToken struct {
	token     string
	expiresAt time.Time
}

// MemoryTokenCache is a process-local TokenCache.
type MemoryTokenCache struct {
	mu      sync.Mutex
	entries map[string]cachedToken
	now     func() time.Time
}

func NewMemoryTokenCache() *MemoryTokenCache {
	return &MemoryTokenCache{
		entries: make(map[string]cachedToken),
		now:     time.Now,
	}
}

func (c *MemoryTokenCache) Get(_ context.Context, shortcode string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[shortcode]
	if !ok {
		return "", false
	}
	if !c.now().Before(entry.expiresAt.Add(-tokenExpirySkew)) {
		delete(c.entries, shortcode)
		return "", false
	}
	return entry.token, true
}

func (c *MemoryTokenCache) Set(_ context.Context, shortcode, token string, expiresAt time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[shortcode] = cachedToken{token: token, expiresAt: expiresAt}
}

func (c *MemoryTokenCache) Invalidate(_ context.Context, shortcode string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, shortcode)
}

// RedisTokenCache shares tokens between replicas. Errors degrade to a cache
// miss; the provider is the authority on token validity.
type RedisTokenCache struct {
	client redis.UniversalClient
	prefix string
	now    func() time.Time
}

func NewRedisTokenCache(client redis.UniversalClient, prefix string) *RedisTokenCache {
	prefix = strings.TrimSuffix(strings.TrimSpace(prefix), ":")
	if prefix == "" {
		prefix = "rentpay:mpesa_token"
	}
	return &RedisTokenCache{client: client, prefix: prefix, now: time.Now}
}

func (c *RedisTokenCache) key(shortcode string) string {
	return c.prefix + ":" + shortcode
}

func (c *RedisTokenCache) Get(ctx context.Context, shortcode string) (string, bool) {
	token, err := c.client.Get(ctx, c.key(shortcode)).Result()
	if err != nil {
		// redis.Nil is an ordinary miss; anything else is treated as one.
		return "", false
	}
	return token, token != ""
}

func (c *RedisTokenCache) Set(ctx context.Context, shortcode, token string, expiresAt time.Time) {
	ttl := expiresAt.Sub(c.now()) - tokenExpirySkew
	if ttl <= 0 {
		return
	}
	c.client.Set(ctx, c.key(shortcode), token, ttl)
}

func (c *RedisTokenCache) Invalidate(ctx context.Context, shortcode string) {
	c.client.Del(ctx, c.key(shortcode))
}
