package mcpconn

import (
	"container/list"
	"sync"
)

// ByteBoundedCache is the byte-bounded resource content cache
// ("LRU byte-bounded content cache with insertion-order eviction"): unlike
// the capability TTL cache, eviction here is driven purely by total byte
// size, oldest insertion first, with no time component.
type ByteBoundedCache struct {
	mu sync.Mutex
	maxBytes int
	curBytes int
	order *list.List // front = oldest
	index map[string]*list.Element
}

type byteEntry struct {
	key string
	value []byte
}

// NewByteBoundedCache builds a cache capped at maxBytes total content size.
func NewByteBoundedCache(maxBytes int) *ByteBoundedCache {
	return &ByteBoundedCache{
		maxBytes: maxBytes,
		order: list.New(),
		index: make(map[string]*list.Element),
	}
}

// Get returns cached bytes for key without changing eviction order —
// insertion order, not access order, governs eviction here.
func (c *ByteBoundedCache) Get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.index[key]
	if !ok {
		return nil, false
	}
	return el.Value.(*byteEntry).value, true
}

// Set inserts or replaces an entry, evicting the oldest insertions until
// the cache fits within maxBytes.
func (c *ByteBoundedCache) Set(key string, value []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.index[key]; ok {
		old := el.Value.(*byteEntry)
		c.curBytes -= len(old.value)
		c.order.Remove(el)
		delete(c.index, key)
	}

	el := c.order.PushBack(&byteEntry{key: key, value: value})
	c.index[key] = el
	c.curBytes += len(value)

	for c.curBytes > c.maxBytes && c.order.Len() > 0 {
		oldest := c.order.Front()
		oe := oldest.Value.(*byteEntry)
		c.curBytes -= len(oe.value)
		c.order.Remove(oldest)
		delete(c.index, oe.key)
	}
}

// Len reports the current entry count.
func (c *ByteBoundedCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}
