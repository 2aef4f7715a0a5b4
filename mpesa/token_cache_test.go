package mpesa

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type redisEntry struct {
	value     string
	expiresAt time.Time
}

// stubRedis keeps GET/SET/DEL in memory. Any other command panics through
// the nil embedded client.
type stubRedis struct {
	redis.UniversalClient

	mu   sync.Mutex
	now  func() time.Time
	data map[string]redisEntry
	ttls map[string]time.Duration
}

func newStubRedis(now func() time.Time) *stubRedis {
	return &stubRedis{now: now, data: map[string]redisEntry{}, ttls: map[string]time.Duration{}}
}

func (s *stubRedis) Get(ctx context.Context, key string) *redis.StringCmd {
	s.mu.Lock()
	defer s.mu.Unlock()
	cmd := redis.NewStringCmd(ctx, "get", key)
	e, ok := s.data[key]
	if !ok || !s.now().Before(e.expiresAt) {
		delete(s.data, key)
		cmd.SetErr(redis.Nil)
		return cmd
	}
	cmd.SetVal(e.value)
	return cmd
}

func (s *stubRedis) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = redisEntry{value: value.(string), expiresAt: s.now().Add(expiration)}
	s.ttls[key] = expiration
	cmd := redis.NewStatusCmd(ctx, "set", key, value)
	cmd.SetVal("OK")
	return cmd
}

func (s *stubRedis) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	s.mu.Lock()
	defer s.mu.Unlock()
	cmd := redis.NewIntCmd(ctx, "del")
	var n int64
	for _, k := range keys {
		if _, ok := s.data[k]; ok {
			delete(s.data, k)
			n++
		}
	}
	cmd.SetVal(n)
	return cmd
}

func (s *stubRedis) keys() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.data)
}

func TestRedisTokenCache(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	rdb := newStubRedis(clock)
	c := NewRedisTokenCache(rdb, "test:token:")
	c.now = clock

	_, ok := c.Get(ctx, "174379")
	assert.False(t, ok)

	c.Set(ctx, "174379", "tok", now.Add(time.Hour))
	assert.Equal(t, time.Hour-tokenExpirySkew, rdb.ttls["test:token:174379"])
	tok, ok := c.Get(ctx, "174379")
	require.True(t, ok)
	assert.Equal(t, "tok", tok)

	_, ok = c.Get(ctx, "600999")
	assert.False(t, ok)

	t.Run("expires with the ttl", func(t *testing.T) {
		now = now.Add(time.Hour - tokenExpirySkew)
		_, ok := c.Get(ctx, "174379")
		assert.False(t, ok)
	})

	t.Run("miss after invalidate", func(t *testing.T) {
		c.Set(ctx, "174379", "tok2", now.Add(time.Hour))
		c.Invalidate(ctx, "174379")
		_, ok := c.Get(ctx, "174379")
		assert.False(t, ok)
		assert.Equal(t, 0, rdb.keys())
	})

	t.Run("expired tokens are not stored", func(t *testing.T) {
		c.Set(ctx, "174379", "stale", now.Add(-time.Minute))
		c.Set(ctx, "174379", "inside-skew", now.Add(tokenExpirySkew/2))
		assert.Equal(t, 0, rdb.keys())
		_, ok := c.Get(ctx, "174379")
		assert.False(t, ok)
	})
}

func TestNewRedisTokenCache_DefaultPrefix(t *testing.T) {
	c := NewRedisTokenCache(newStubRedis(time.Now), "  ")
	assert.Equal(t, "rentpay:mpesa_token:174379", c.key("174379"))
}

func TestRedisTokenCache_SharedBetweenClients(t *testing.T) {
	f := &fakeProvider{}
	srv := f.server(t)
	router, err := NewRouter(testBillers())
	require.NoError(t, err)

	now := func() time.Time { return time.Date(2026, 3, 2, 6, 0, 0, 0, time.UTC) }
	rdb := newStubRedis(now)
	newClient := func() *Client {
		cache := NewRedisTokenCache(rdb, "")
		cache.now = now
		c := NewClient(ClientConfig{BaseURL: srv.URL, CallbackURL: "https://example.com/cb", Timeout: 5 * time.Second}, router, cache, zerolog.Nop())
		c.now = now
		return c
	}
	a, b := newClient(), newClient()
	req := PushRequest{Phone: "254712345678", Amount: decimal.NewFromInt(10), BillerShortcode: "174379"}

	_, err = a.InitiatePush(context.Background(), req)
	require.NoError(t, err)
	_, err = b.InitiatePush(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&f.tokenCalls))

	// A 401 on one replica invalidates the shared entry; the retry fetches a
	// fresh token that the other replica then reuses.
	atomic.StoreInt32(&f.rejectFirst, 1)
	_, err = b.InitiatePush(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&f.tokenCalls))

	_, err = a.InitiatePush(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&f.tokenCalls))
}
