package vision

import (
	"container/list"
	"sync"
)

// sampleCache is an LRU cache for decoded sample planes, keyed by file
// path. Decoding dominates epoch time on repeated passes, so samples
// are kept in memory up to a fixed entry count.
type sampleCache struct {
	mu      sync.Mutex
	entries map[string][]float32
	lru     *list.List
	lruMap  map[string]*list.Element
	maxSize int

	hits   int64
	misses int64
}

func newSampleCache(maxSize int) *sampleCache {
	return &sampleCache{
		entries: make(map[string][]float32),
		lru:     list.New(),
		lruMap:  make(map[string]*list.Element),
		maxSize: maxSize,
	}
}

func (c *sampleCache) get(key string) ([]float32, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if data, exists := c.entries[key]; exists {
		if elem, ok := c.lruMap[key]; ok {
			c.lru.MoveToFront(elem)
		}
		c.hits++
		return data, true
	}
	c.misses++
	return nil, false
}

func (c *sampleCache) put(key string, data []float32) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; exists {
		if elem, ok := c.lruMap[key]; ok {
			c.lru.MoveToFront(elem)
		}
		return
	}

	elem := c.lru.PushFront(key)
	c.lruMap[key] = elem
	c.entries[key] = data

	for len(c.entries) > c.maxSize && c.lru.Len() > 0 {
		oldest := c.lru.Back()
		oldKey := oldest.Value.(string)
		c.lru.Remove(oldest)
		delete(c.lruMap, oldKey)
		delete(c.entries, oldKey)
	}
}

// CacheStats reports cache effectiveness counters.
type CacheStats struct {
	Size   int
	Hits   int64
	Misses int64
}

func (c *sampleCache) stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CacheStats{
		Size:   len(c.entries),
		Hits:   c.hits,
		Misses: c.misses,
	}
}
