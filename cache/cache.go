// Package cache provides the read-through cache used for aggregation results.
// Values are stored as JSON bytes so the in-memory and Redis backends are interchangeable.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
)

// Cacher is implemented by MemoryCache and RedisCache.
type Cacher interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Close() error
}

// Stats holds cache statistics.
type Stats struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
	Sets   int64 `json:"sets"`
	Items  int   `json:"items"`
}

type entry struct {
	value     []byte
	expiresAt time.Time
}

// MemoryCache is a thread-safe in-process cache with per-entry TTL.
type MemoryCache struct {
	data    sync.Map
	now     func() time.Time
	stopCh  chan struct{}
	stopped atomic.Bool

	hits   atomic.Int64
	misses atomic.Int64
	sets   atomic.Int64
}

// NewMemory creates an empty memory cache.
func NewMemory() *MemoryCache {
	return &MemoryCache{
		now:    time.Now,
		stopCh: make(chan struct{}),
	}
}

func (c *MemoryCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	val, ok := c.data.Load(key)
	if !ok {
		c.misses.Add(1)
		return nil, false, nil
	}

	e := val.(*entry)
	if !c.now().Before(e.expiresAt) {
		c.data.Delete(key)
		c.misses.Add(1)
		return nil, false, nil
	}

	c.hits.Add(1)
	return e.value, true, nil
}

func (c *MemoryCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	c.data.Store(key, &entry{value: value, expiresAt: c.now().Add(ttl)})
	c.sets.Add(1)
	return nil
}

// StartCleanup removes expired entries every interval until Close is called.
func (c *MemoryCache) StartCleanup(interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				c.removeExpired()
			case <-c.stopCh:
				return
			}
		}
	}()
}

func (c *MemoryCache) removeExpired() {
	now := c.now()
	c.data.Range(func(key, value any) bool {
		if !now.Before(value.(*entry).expiresAt) {
			c.data.Delete(key)
		}
		return true
	})
}

func (c *MemoryCache) Close() error {
	if c.stopped.CompareAndSwap(false, true) {
		close(c.stopCh)
	}
	return nil
}

func (c *MemoryCache) Stats() Stats {
	items := 0
	c.data.Range(func(_, _ any) bool {
		items++
		return true
	})
	return Stats{
		Hits:   c.hits.Load(),
		Misses: c.misses.Load(),
		Sets:   c.sets.Load(),
		Items:  items,
	}
}

// GetOrLoad returns the cached value for key, or calls load and caches its result.
// Cache backend failures are logged and bypassed; only load errors are returned.
// A nil Cacher or non-positive ttl disables caching.
func GetOrLoad[T any](ctx context.Context, c Cacher, key string, ttl time.Duration, load func(ctx context.Context) (T, error)) (T, error) {
	if c == nil || ttl <= 0 {
		return load(ctx)
	}

	if raw, ok, err := c.Get(ctx, key); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("cache get failed")
	} else if ok {
		var cached T
		if err := json.Unmarshal(raw, &cached); err == nil {
			return cached, nil
		}
		log.Warn().Str("key", key).Msg("discarding undecodable cache entry")
	}

	value, err := load(ctx)
	if err != nil {
		var zero T
		return zero, err
	}

	raw, err := json.Marshal(value)
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("cache encode failed")
		return value, nil
	}
	if err := c.Set(ctx, key, raw, ttl); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("cache set failed")
	}
	return value, nil
}

// Key joins parts into a namespaced cache key.
func Key(parts ...string) string {
	key := "analytics"
	for _, p := range parts {
		key = fmt.Sprintf("%s:%s", key, p)
	}
	return key
}
