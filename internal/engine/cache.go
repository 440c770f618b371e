package engine

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCacheSize bounds CachedEmbedder when no size is given.
const DefaultCacheSize = 1024

// CachedEmbedder memoizes embeddings by model and text. Queries repeat
// across retrieval modes, so the vector and hybrid paths share one lookup.
type CachedEmbedder struct {
	inner Embedder
	cache *lru.Cache[string, []float64]
}

// NewCachedEmbedder wraps inner with an LRU cache of size entries.
func NewCachedEmbedder(inner Embedder, size int) (*CachedEmbedder, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, err := lru.New[string, []float64](size)
	if err != nil {
		return nil, err
	}
	return &CachedEmbedder{inner: inner, cache: cache}, nil
}

func (c *CachedEmbedder) Model() string   { return c.inner.Model() }
func (c *CachedEmbedder) Dimensions() int { return c.inner.Dimensions() }

// Embed returns a cached vector or asks the wrapped embedder. Errors are not cached.
func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	key := c.inner.Model() + "\x00" + text
	if vec, ok := c.cache.Get(key); ok {
		return vec, nil
	}
	vec, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.cache.Add(key, vec)
	return vec, nil
}

// Fit refits the wrapped embedder when it is a Fitter. The cache is
// dropped whenever a fit happens since weights may move without the
// model name changing.
func (c *CachedEmbedder) Fit(texts []string) bool {
	f, ok := c.inner.(Fitter)
	if !ok {
		return false
	}
	changed := f.Fit(texts)
	c.cache.Purge()
	return changed
}

// Purge drops every cached vector.
func (c *CachedEmbedder) Purge() { c.cache.Purge() }

// Len reports how many vectors are cached.
func (c *CachedEmbedder) Len() int { return c.cache.Len() }
