package embedding

import (
	"container/list"
	"sync"
)

// CacheStats is a snapshot of cache occupancy and effectiveness.
type CacheStats struct {
	Entries  int    `json:"entries"`
	Capacity int    `json:"capacity"`
	Hits     uint64 `json:"hits"`
	Misses   uint64 `json:"misses"`
}

// EmbeddingCache is an LRU of embeddings keyed by text. Cached slices are
// shared with callers and must not be modified.
type EmbeddingCache struct {
	capacity int
	entries  map[string]*list.Element
	recency  *list.List // front is most recently used
	hits     uint64
	misses   uint64
	mu       sync.Mutex
}

type cacheEntry struct {
	text string
	vec  []float32
}

// NewEmbeddingCache creates a cache holding at most capacity embeddings.
func NewEmbeddingCache(capacity int) *EmbeddingCache {
	if capacity <= 0 {
		capacity = 1
	}
	return &EmbeddingCache{
		capacity: capacity,
		entries:  make(map[string]*list.Element, capacity),
		recency:  list.New(),
	}
}

// Get returns the embedding cached for text and marks it recently used.
func (c *EmbeddingCache) Get(text string) ([]float32, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[text]
	if !ok {
		c.misses++
		return nil, false
	}
	c.hits++
	c.recency.MoveToFront(elem)
	return elem.Value.(*cacheEntry).vec, true
}

// Set stores vec for text, evicting the least recently used entry when full.
func (c *EmbeddingCache) Set(text string, vec []float32) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[text]; ok {
		elem.Value.(*cacheEntry).vec = vec
		c.recency.MoveToFront(elem)
		return
	}
	c.entries[text] = c.recency.PushFront(&cacheEntry{text: text, vec: vec})
	for c.recency.Len() > c.capacity {
		oldest := c.recency.Remove(c.recency.Back()).(*cacheEntry)
		delete(c.entries, oldest.text)
	}
}

// Len returns the number of cached entries.
func (c *EmbeddingCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.recency.Len()
}

// Stats returns the current counters.
func (c *EmbeddingCache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CacheStats{
		Entries:  c.recency.Len(),
		Capacity: c.capacity,
		Hits:     c.hits,
		Misses:   c.misses,
	}
}
