// Package tokencache caches short-lived provider access tokens in Redis,
// with an in-process copy, and collapses concurrent refreshes.
package tokencache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

// expirySkew is subtracted from the provider TTL so a cached token is never
// presented right at its expiry.
const expirySkew = 60 * time.Second

// Fetcher obtains a fresh token and its lifetime from the provider.
type Fetcher func(ctx context.Context) (token string, ttl time.Duration, err error)

// Cache hands out a valid token, fetching one when none is cached.
type Cache struct {
	rdb   *redis.Client
	key   string
	fetch Fetcher
	group singleflight.Group
	now   func() time.Time

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

// New creates a cache. rdb may be nil, in which case only the in-process
// copy is used.
func New(rdb *redis.Client, key string, fetch Fetcher) *Cache {
	return &Cache{rdb: rdb, key: key, fetch: fetch, now: time.Now}
}

// Token returns a cached token or fetches a new one.
func (c *Cache) Token(ctx context.Context) (string, error) {
	if tok, ok := c.local(); ok {
		return tok, nil
	}

	if tok, ttl, ok := c.remote(ctx); ok {
		c.store(tok, ttl)
		return tok, nil
	}

	// The shared fetch must not be cancelled by whichever caller started it.
	ch := c.group.DoChan(c.key, func() (interface{}, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
		defer cancel()
		return c.refresh(fetchCtx)
	})

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

// Invalidate drops the cached token, e.g. after the provider rejected it.
func (c *Cache) Invalidate(ctx context.Context) {
	c.mu.Lock()
	c.token = ""
	c.expiresAt = time.Time{}
	c.mu.Unlock()

	if c.rdb != nil {
		if err := c.rdb.Del(ctx, c.key).Err(); err != nil {
			log.Warn().Err(err).Str("key", c.key).Msg("token cache: redis delete failed")
		}
	}
}

func (c *Cache) refresh(ctx context.Context) (string, error) {
	tok, ttl, err := c.fetch(ctx)
	if err != nil {
		return "", err
	}
	if tok == "" {
		return "", errors.New("token cache: provider returned empty token")
	}

	ttl -= expirySkew
	if ttl <= 0 {
		ttl = time.Second
	}
	c.store(tok, ttl)

	if c.rdb != nil {
		if err := c.rdb.Set(ctx, c.key, tok, ttl).Err(); err != nil {
			log.Warn().Err(err).Str("key", c.key).Msg("token cache: redis set failed")
		}
	}
	return tok, nil
}

func (c *Cache) local() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token != "" && c.now().Before(c.expiresAt) {
		return c.token, true
	}
	return "", false
}

func (c *Cache) store(tok string, ttl time.Duration) {
	c.mu.Lock()
	c.token = tok
	c.expiresAt = c.now().Add(ttl)
	c.mu.Unlock()
}

func (c *Cache) remote(ctx context.Context) (string, time.Duration, bool) {
	if c.rdb == nil {
		return "", 0, false
	}

	pipe := c.rdb.Pipeline()
	get := pipe.Get(ctx, c.key)
	pttl := pipe.PTTL(ctx, c.key)
	if _, err := pipe.Exec(ctx); err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Warn().Err(err).Str("key", c.key).Msg("token cache: redis read failed")
		}
		return "", 0, false
	}

	tok, ttl := get.Val(), pttl.Val()
	if tok == "" || ttl <= 0 {
		return "", 0, false
	}
	return tok, ttl, true
}

// String implements fmt.Stringer without leaking the token.
func (c *Cache) String() string {
	return fmt.Sprintf("tokencache(%s)", c.key)
}
