package convert

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultSignatureCacheCapacity bounds the thinking-signature cache (spec §9:
// the source's unbounded map for this was a known leak).
const DefaultSignatureCacheCapacity = 10000

// SignatureCache records thinking/tool-use signatures seen during
// conversion, bounded and LRU-evicted rather than grown without limit.
type SignatureCache struct {
	cache *lru.Cache[string, struct{}]
}

// NewSignatureCache builds a cache with the given capacity, falling back to
// DefaultSignatureCacheCapacity when capacity <= 0.
func NewSignatureCache(capacity int) *SignatureCache {
	if capacity <= 0 {
		capacity = DefaultSignatureCacheCapacity
	}
	cache, _ := lru.New[string, struct{}](capacity)
	return &SignatureCache{cache: cache}
}

// Put records a signature as seen.
func (s *SignatureCache) Put(signature string) {
	if s == nil || s.cache == nil || signature == "" {
		return
	}
	s.cache.Add(signature, struct{}{})
}
