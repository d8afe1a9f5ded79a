package storage

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/jonboulle/clockwork"
)

// CachedStore keeps recently read routes in memory for a short TTL.
// Misses are never cached so freshly populated routes show up on the next request.
type CachedStore struct {
	inner Store
	cache *ttlCache
}

// NewCachedStore wraps a store with an LRU cache of maxEntries records
func NewCachedStore(inner Store, maxEntries int, ttl time.Duration, clock clockwork.Clock) *CachedStore {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &CachedStore{
		inner: inner,
		cache: newTTLCache(maxEntries, ttl, clock),
	}
}

// GetMany serves cached keys and fetches the rest in one inner round-trip
func (c *CachedStore) GetMany(ctx context.Context, keys []string) (map[string]RouteRecord, error) {
	result := make(map[string]RouteRecord, len(keys))
	var missing []string
	for _, key := range keys {
		if record, ok := c.cache.get(key); ok {
			result[key] = record
			continue
		}
		missing = append(missing, key)
	}
	if len(missing) == 0 {
		return result, nil
	}

	fetched, err := c.inner.GetMany(ctx, missing)
	if err != nil {
		return nil, err
	}
	for key, record := range fetched {
		c.cache.put(key, record)
		result[key] = record
	}
	return result, nil
}

// Callsigns is not cached, listings are admin traffic
func (c *CachedStore) Callsigns(ctx context.Context) ([]string, error) {
	return c.inner.Callsigns(ctx)
}

// Ping implements RouteStore
func (c *CachedStore) Ping(ctx context.Context) error {
	return c.inner.Ping(ctx)
}

// Close implements RouteStore
func (c *CachedStore) Close() error {
	return c.inner.Close()
}

// Len returns the number of cached records, including expired ones not yet evicted
func (c *CachedStore) Len() int {
	return c.cache.len()
}

type cacheEntry struct {
	record    RouteRecord
	expiresAt time.Time
}

// ttlCache is an LRU whose entries also expire
type ttlCache struct {
	entries *lru.Cache[string, cacheEntry]
	ttl     time.Duration
	clock   clockwork.Clock
}

func newTTLCache(maxEntries int, ttl time.Duration, clock clockwork.Clock) *ttlCache {
	// lru.New only fails for a non-positive size
	entries, _ := lru.New[string, cacheEntry](max(maxEntries, 1))
	return &ttlCache{
		entries: entries,
		ttl:     ttl,
		clock:   clock,
	}
}

func (c *ttlCache) get(key string) (RouteRecord, bool) {
	e, ok := c.entries.Get(key)
	if !ok {
		return RouteRecord{}, false
	}
	if !c.clock.Now().Before(e.expiresAt) {
		c.entries.Remove(key)
		return RouteRecord{}, false
	}
	return e.record, true
}

func (c *ttlCache) put(key string, record RouteRecord) {
	c.entries.Add(key, cacheEntry{record: record, expiresAt: c.clock.Now().Add(c.ttl)})
}

func (c *ttlCache) len() int {
	return c.entries.Len()
}
