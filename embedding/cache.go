package embedding

import (
	"context"

	lru "github.com/hashicorp/golang-lru"
	"go.uber.org/zap"
)

// cacheKeyLength is how much of the input text keys a cache entry. Repeated
// short queries (topics, anniversaries) hit without storing full documents.
const cacheKeyLength = 100

// Cache stores embedding vectors between calls. Implementations must be safe
// for concurrent use; aggregation requests run in parallel.
type Cache interface {
	Get(key string) ([]float32, bool)
	Add(key string, vec []float32)
	Purge()
}

// LRUCache is the default Cache, bounded with least-recently-used eviction.
type LRUCache struct {
	inner *lru.Cache
}

func NewLRUCache(size int) (*LRUCache, error) {
	inner, err := lru.New(size)
	if err != nil {
		return nil, err
	}
	return &LRUCache{inner: inner}, nil
}

func (c *LRUCache) Get(key string) ([]float32, bool) {
	v, ok := c.inner.Get(key)
	if !ok {
		return nil, false
	}
	vec, ok := v.([]float32)
	return vec, ok
}

func (c *LRUCache) Add(key string, vec []float32) {
	c.inner.Add(key, vec)
}

func (c *LRUCache) Purge() {
	c.inner.Purge()
}

// CachedEmbedder wraps an Embedder with a prefix-keyed cache. The cache is
// injectable so tests can substitute a fresh instance per run.
type CachedEmbedder struct {
	inner  Embedder
	cache  Cache
	logger *zap.Logger
}

func NewCachedEmbedder(inner Embedder, cache Cache, logger *zap.Logger) *CachedEmbedder {
	return &CachedEmbedder{inner: inner, cache: cache, logger: logger}
}

func (e *CachedEmbedder) Dimensions() int {
	return e.inner.Dimensions()
}

func (e *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	key := cacheKey(text)
	if vec, ok := e.cache.Get(key); ok {
		return vec, nil
	}

	vec, err := e.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	e.cache.Add(key, vec)
	return vec, nil
}

func (e *CachedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	var missing []string
	var missingIdx []int

	for i, text := range texts {
		if vec, ok := e.cache.Get(cacheKey(text)); ok {
			vectors[i] = vec
			continue
		}
		missing = append(missing, text)
		missingIdx = append(missingIdx, i)
	}

	if len(missing) == 0 {
		return vectors, nil
	}

	fetched, err := e.inner.EmbedBatch(ctx, missing)
	if err != nil {
		return nil, err
	}
	for j, vec := range fetched {
		vectors[missingIdx[j]] = vec
		if !isZeroVector(vec) {
			e.cache.Add(cacheKey(missing[j]), vec)
		}
	}
	return vectors, nil
}

// Clear drops every cached vector.
func (e *CachedEmbedder) Clear() {
	e.cache.Purge()
}

func cacheKey(text string) string {
	runes := []rune(text)
	if len(runes) > cacheKeyLength {
		return string(runes[:cacheKeyLength])
	}
	return text
}

func isZeroVector(vec []float32) bool {
	for _, v := range vec {
		if v != 0 {
			return false
		}
	}
	return true
}
