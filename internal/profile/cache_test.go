package profile

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMinuteBucket(t *testing.T) {
	base := at(10, 5)
	assert.Equal(t, base, MinuteBucket(base))
	assert.Equal(t, base, MinuteBucket(base.Add(59*time.Second+999*time.Millisecond)))
	assert.Equal(t, base.Add(time.Minute), MinuteBucket(base.Add(time.Minute)))
}

func TestTemporalCache_GetSet(t *testing.T) {
	c := NewTemporalCache[string](time.Minute, 10)
	go c.Start()
	defer c.Stop()

	key := CacheKey{Minute: 1, Parameter: "basal"}
	_, ok := c.Get(key)
	assert.False(t, ok)

	c.Set(key, "a")
	v, ok := c.Get(key)
	require.True(t, ok)
	assert.Equal(t, "a", v)

	c.Set(key, "b")
	v, _ = c.Get(key)
	assert.Equal(t, "b", v)

	other := key
	other.Fingerprint = 99
	_, ok = c.Get(other)
	assert.False(t, ok, "fingerprint is part of the key")
}

func TestTemporalCache_GetOrCompute(t *testing.T) {
	c := NewTemporalCache[int](time.Minute, 10)
	go c.Start()
	defer c.Stop()

	calls := 0
	compute := func() int { calls++; return 42 }
	key := CacheKey{Minute: 1}

	assert.Equal(t, 42, c.GetOrCompute(key, compute))
	assert.Equal(t, 42, c.GetOrCompute(key, compute))
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, c.Len())

	c.DeleteAll()
	assert.Equal(t, 0, c.Len())
}

func TestTemporalCache_Expires(t *testing.T) {
	c := NewTemporalCache[int](50*time.Millisecond, 10)
	go c.Start()
	defer c.Stop()

	key := CacheKey{Minute: 1}
	c.Set(key, 1)

	// reads do not extend the lifetime
	time.Sleep(30 * time.Millisecond)
	_, ok := c.Get(key)
	require.True(t, ok)

	assert.Eventually(t, func() bool {
		_, ok := c.Get(key)
		return !ok
	}, time.Second, 10*time.Millisecond)
}
