package heapbuilder

import lru "github.com/hashicorp/golang-lru"

// hybridLayoutCache is spec.md §3's "Hybrid Layout Cache": a per-instance-class
// memoization of HybridLayoutProvider lookups. The key space — classes
// that opt into a hybrid layout — is a small, bounded subset of all
// instantiated classes in a real build, so this is backed by a bounded
// hashicorp/golang-lru cache rather than an unbounded map: a build that
// instantiates many thousands of classes still keeps this cache small and
// predictable instead of growing with every distinct hybrid class ever
// seen across a long-running builder process.
type hybridLayoutCache struct {
	cache *lru.Cache
}

const defaultHybridLayoutCacheSize = 256

func newHybridLayoutCache() *hybridLayoutCache {
	c, err := lru.New(defaultHybridLayoutCacheSize)
	if err != nil {
		// Only invalid (<=0) sizes make lru.New fail; the constant above
		// is fixed and positive, so this is unreachable in practice.
		panic(err)
	}
	return &hybridLayoutCache{cache: c}
}

// getOrBuild returns the cached HybridLayoutProvider for className,
// building and storing it via build() on a miss.
func (c *hybridLayoutCache) getOrBuild(className string, build func() HybridLayoutProvider) HybridLayoutProvider {
	if v, ok := c.cache.Get(className); ok {
		return v.(HybridLayoutProvider)
	}
	layout := build()
	c.cache.Add(className, layout)
	return layout
}
