package embed

import (
	"context"
	"log/slog"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/kalambet/yomark/internal/vectorcache"
)

const defaultLRUSize = 10000

// CachedProvider wraps a Provider with two cache tiers keyed by content
// hash: an in-memory LRU and an optional persistent SQLite cache. Lookups go
// LRU → SQLite → provider; fills write back through both tiers. Concurrent
// fills for the same key converge last-write-wins.
type CachedProvider struct {
	inner   Provider
	model   string
	lru     *lru.Cache[string, []float32]
	persist *vectorcache.Cache // optional; nil disables the persistent tier
}

// NewCachedProvider creates a caching wrapper around inner. persist may be
// nil. model labels persisted rows so a model switch can purge them.
func NewCachedProvider(inner Provider, model string, maxEntries int, persist *vectorcache.Cache) *CachedProvider {
	if maxEntries <= 0 {
		maxEntries = defaultLRUSize
	}
	cache, err := lru.New[string, []float32](maxEntries)
	if err != nil {
		// Only reachable with a non-positive size; keep a working cache anyway.
		cache, _ = lru.New[string, []float32](defaultLRUSize)
	}
	return &CachedProvider{inner: inner, model: model, lru: cache, persist: persist}
}

// Embed returns the vector for text, consulting the caches first. Vectors
// handed out are copies so callers cannot mutate cached state.
func (c *CachedProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	hash := ContentHash(text)

	if vec, ok := c.lru.Get(hash); ok {
		return copyVec(vec), nil
	}

	if c.persist != nil {
		vec, ok, err := c.persist.Get(hash)
		if err != nil {
			slog.Warn("persistent embedding cache read failed", "error", err)
		} else if ok {
			c.lru.Add(hash, vec)
			return copyVec(vec), nil
		}
	}

	vec, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	c.lru.Add(hash, vec)
	if c.persist != nil {
		// Persistence failures are logged, never fatal: the vector is
		// already usable for this query.
		if err := c.persist.Put(hash, c.model, vec); err != nil {
			slog.Warn("persistent embedding cache write failed", "error", err)
		}
	}
	return copyVec(vec), nil
}

// CacheLen returns the number of entries in the in-memory tier.
func (c *CachedProvider) CacheLen() int {
	return c.lru.Len()
}

func copyVec(v []float32) []float32 {
	out := make([]float32, len(v))
	copy(out, v)
	return out
}
