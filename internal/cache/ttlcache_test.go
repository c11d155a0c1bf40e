package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTTLCache_ExpiresAndRefreshes(t *testing.T) {
	c := New[string, int](2, 50*time.Millisecond)
	now := time.Now()
	c.WithClock(func() time.Time { return now })

	c.Set("a", 1)
	v, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 1, v)

	now = now.Add(100 * time.Millisecond)
	_, ok = c.Get("a")
	assert.False(t, ok, "entry should have expired past its TTL")
}

func TestTTLCache_EvictsOldestOnCapacity(t *testing.T) {
	c := New[string, int](2, 0)
	c.Set("a", 1)
	c.Set("b", 2)
	// touch "a" so "b" becomes the least-recently-used entry
	c.Get("a")
	c.Set("c", 3)

	_, ok := c.Get("b")
	assert.False(t, ok, "least-recently-used entry should have been evicted")
	_, ok = c.Get("a")
	assert.True(t, ok)
	_, ok = c.Get("c")
	assert.True(t, ok)
}
