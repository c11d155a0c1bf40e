package mcpconn

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestByteBoundedCache_EvictsOldestInsertionFirst(t *testing.T) {
	c := NewByteBoundedCache(10)
	c.Set("a", []byte("12345")) // 5 bytes
	c.Set("b", []byte("123")) // 3 bytes, total 8
	c.Set("c", []byte("123")) // 3 bytes, pushes total to 11 -> evict "a"

	_, ok := c.Get("a")
	assert.False(t, ok)
	_, ok = c.Get("b")
	assert.True(t, ok)
	_, ok = c.Get("c")
	assert.True(t, ok)
}

func TestByteBoundedCache_GetDoesNotReorder(t *testing.T) {
	c := NewByteBoundedCache(6)
	c.Set("a", []byte("123"))
	c.Set("b", []byte("123"))
	c.Get("a") // insertion order still a, b — access must not protect "a"
	c.Set("c", []byte("123"))

	_, ok := c.Get("a")
	assert.False(t, ok, "insertion order governs eviction, not access order")
	_, ok = c.Get("b")
	assert.True(t, ok)
}
