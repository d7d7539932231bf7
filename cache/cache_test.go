package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCachePutGet(t *testing.T) {
	c := New()

	c.Put("sta_all_default", []string{"aa:bb"})

	v, ok := c.Get("sta_all_default")
	assert.True(t, ok)
	assert.Equal(t, []string{"aa:bb"}, v)

	_, ok = c.Get("missing")
	assert.False(t, ok)
}

func TestCacheOverwrite(t *testing.T) {
	c := New()

	c.Put("k", 1)
	c.Put("k", 2)

	v, ok := c.Get("k")
	assert.True(t, ok)
	assert.Equal(t, 2, v)
	assert.Equal(t, 1, c.Len())
}

func TestCacheExpiry(t *testing.T) {
	c := New()

	c.PutWithTTL("k", "v", 20*time.Millisecond)

	v, ok := c.Get("k")
	assert.True(t, ok)
	assert.Equal(t, "v", v)

	time.Sleep(30 * time.Millisecond)

	_, ok = c.Get("k")
	assert.False(t, ok, "entry past its ttl must behave like an absent key")
}

func TestCacheGetWithin(t *testing.T) {
	c := New()

	c.Put("k", "v")

	// Caller-supplied window overrides the stored ttl in both directions.
	_, ok := c.GetWithin("k", 0)
	assert.False(t, ok)

	v, ok := c.GetWithin("k", time.Hour)
	assert.True(t, ok)
	assert.Equal(t, "v", v)
}

func TestCacheInvalidatePrefix(t *testing.T) {
	c := New()

	c.Put("sta_all_default", 1)
	c.Put("sta_guest_default", 2)
	c.Put("device_all_default", 3)

	removed := c.Invalidate("sta_")
	assert.Equal(t, 2, removed)

	_, ok := c.Get("sta_all_default")
	assert.False(t, ok)
	_, ok = c.Get("sta_guest_default")
	assert.False(t, ok)

	// Entries outside the prefix survive.
	v, ok := c.Get("device_all_default")
	assert.True(t, ok)
	assert.Equal(t, 3, v)
}

func TestCacheInvalidateAll(t *testing.T) {
	c := New()

	c.Put("a", 1)
	c.Put("b", 2)

	removed := c.Invalidate("")
	assert.Equal(t, 2, removed)
	assert.Equal(t, 0, c.Len())
}

func TestCacheDefaultTTLOption(t *testing.T) {
	c := New(func(o *Options) { o.TTL = 10 * time.Millisecond })

	c.Put("k", "v")
	time.Sleep(20 * time.Millisecond)

	_, ok := c.Get("k")
	assert.False(t, ok)
}
