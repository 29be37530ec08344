package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/hrygo/recruitsense/internal/errs"
)

// DefaultCacheSize is the default number of embeddings to cache.
// At 1536 dimensions * 4 bytes * 10000 entries ≈ 60MB memory.
const DefaultCacheSize = 10000

const cacheType = "embedding"

// Cache stores vectors by key. Implementations must be safe for concurrent use.
type Cache interface {
	Get(key string) ([]float32, bool)
	Put(key string, vector []float32)
}

// LRUCache is a bounded Cache that evicts the least recently used entry.
type LRUCache struct {
	cache *lru.Cache[string, []float32]
}

// NewLRUCache creates an LRU cache holding at most size entries.
func NewLRUCache(size int) *LRUCache {
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, _ := lru.New[string, []float32](size)
	return &LRUCache{cache: cache}
}

func (c *LRUCache) Get(key string) ([]float32, bool) {
	return c.cache.Get(key)
}

func (c *LRUCache) Put(key string, vector []float32) {
	c.cache.Add(key, vector)
}

// Len returns the number of cached entries.
func (c *LRUCache) Len() int {
	return c.cache.Len()
}

// CacheKey derives the cache key for text under a model and dimension.
// Switching either yields a disjoint key space.
func CacheKey(model string, dimensions int, text string) string {
	hash := sha256.Sum256([]byte(model + "\x00" + strconv.Itoa(dimensions) + "\x00" + text))
	return hex.EncodeToString(hash[:])
}

// CachedEmbedder wraps a Service with a Cache. Concurrent misses for the same
// key share one provider call; failures are never cached.
type CachedEmbedder struct {
	inner         Service
	cache         Cache
	group         singleflight.Group
	metrics       Metrics
	flightTimeout time.Duration
}

// CachedOption configures a CachedEmbedder.
type CachedOption func(*CachedEmbedder)

// WithCacheMetrics records cache hits and misses.
func WithCacheMetrics(m Metrics) CachedOption {
	return func(c *CachedEmbedder) {
		c.metrics = m
	}
}

// WithFlightTimeout bounds a shared provider call. The call outlives the
// cancellation of any single caller; only this timeout stops it.
func WithFlightTimeout(d time.Duration) CachedOption {
	return func(c *CachedEmbedder) {
		if d > 0 {
			c.flightTimeout = d
		}
	}
}

// NewCachedEmbedder creates a cached embedder wrapping inner. A nil cache
// uses an LRU of DefaultCacheSize entries.
func NewCachedEmbedder(inner Service, cache Cache, opts ...CachedOption) *CachedEmbedder {
	if cache == nil {
		cache = NewLRUCache(DefaultCacheSize)
	}
	c := &CachedEmbedder{inner: inner, cache: cache, flightTimeout: DefaultConfig().Timeout}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Embed returns the cached embedding if available, otherwise computes and caches it.
func (c *CachedEmbedder) Embed(ctx context.Context, text string) (*Embedding, error) {
	if err := checkText(text); err != nil {
		return nil, err
	}

	key := CacheKey(c.inner.Model(), c.inner.Dimensions(), text)
	if vec, ok := c.cache.Get(key); ok {
		c.recordLookup(true)
		return c.result(vec), nil
	}
	c.recordLookup(false)

	// The flight is shared, so it runs detached from the ctx of whichever
	// caller started it. Each caller still stops waiting on its own ctx.
	flight := c.group.DoChan(key, func() (any, error) {
		// A caller that lost the race to an earlier flight finds the entry here.
		if vec, ok := c.cache.Get(key); ok {
			return vec, nil
		}
		flightCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.flightTimeout)
		defer cancel()
		emb, err := c.inner.Embed(flightCtx, text)
		if err != nil {
			return nil, err
		}
		c.cache.Put(key, emb.Vector)
		return emb.Vector, nil
	})

	select {
	case <-ctx.Done():
		return nil, errs.ProviderUnavailable(ctx.Err(), "embedding request canceled")
	case res := <-flight:
		if res.Err != nil {
			return nil, res.Err
		}
		return c.result(res.Val.([]float32)), nil
	}
}

// result copies vec so callers cannot mutate cached entries.
func (c *CachedEmbedder) result(vec []float32) *Embedding {
	out := make([]float32, len(vec))
	copy(out, vec)
	return &Embedding{Vector: out, Model: c.inner.Model()}
}

func (c *CachedEmbedder) recordLookup(hit bool) {
	if c.metrics == nil {
		return
	}
	if hit {
		c.metrics.RecordCacheHit(cacheType)
	} else {
		c.metrics.RecordCacheMiss(cacheType)
	}
}

// Model returns the model identifier (passthrough to inner).
func (c *CachedEmbedder) Model() string {
	return c.inner.Model()
}

// Dimensions returns the embedding dimension (passthrough to inner).
func (c *CachedEmbedder) Dimensions() int {
	return c.inner.Dimensions()
}

// Inner returns the underlying service.
func (c *CachedEmbedder) Inner() Service {
	return c.inner
}
