package cache

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(ttl time.Duration, capacity int) (*Cache, *time.Time) {
	c := New(ttl, capacity)
	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return clock }
	return c, &clock
}

func TestKeyIsStableAndBodySensitive(t *testing.T) {
	k1 := Key("POST", "http://localhost:11434/api/chat", []byte(`{"model":"a"}`))
	k2 := Key("POST", "http://localhost:11434/api/chat", []byte(`{"model":"a"}`))
	k3 := Key("POST", "http://localhost:11434/api/chat", []byte(`{"model":"b"}`))
	k4 := Key("GET", "http://localhost:11434/api/chat", []byte(`{"model":"a"}`))

	assert.Equal(t, k1, k2)
	assert.NotEqual(t, k1, k3)
	assert.NotEqual(t, k1, k4)
}

func TestGetWithinTTLReturnsExactValue(t *testing.T) {
	c, clock := newTestCache(time.Minute, 10)

	c.Put("k", []byte("payload"))
	*clock = clock.Add(59 * time.Second)

	v, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, []byte("payload"), v)
}

func TestGetAfterTTLIsAbsentAndEvicts(t *testing.T) {
	c, clock := newTestCache(time.Minute, 10)

	c.Put("k", "v")
	*clock = clock.Add(61 * time.Second)

	_, ok := c.Get("k")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len(), "expired entry should be deleted by the lookup")
}

func TestGetUnknownKey(t *testing.T) {
	c, _ := newTestCache(time.Minute, 10)
	_, ok := c.Get("nope")
	assert.False(t, ok)
}

func TestPutNeverExceedsCapacity(t *testing.T) {
	c, clock := newTestCache(time.Hour, 8)

	for i := 0; i < 50; i++ {
		c.Put(fmt.Sprintf("k%d", i), i)
		*clock = clock.Add(time.Second)
		assert.LessOrEqual(t, c.Len(), 8)
	}
}

func TestPutAtCapacityEvictsOldestQuartile(t *testing.T) {
	c, clock := newTestCache(time.Hour, 8)

	for i := 0; i < 8; i++ {
		c.Put(fmt.Sprintf("k%d", i), i)
		*clock = clock.Add(time.Second)
	}
	require.Equal(t, 8, c.Len())

	c.Put("new", "x")

	// 8/4 = 2 oldest entries go, the new one comes in.
	assert.Equal(t, 7, c.Len())
	_, ok := c.Get("k0")
	assert.False(t, ok)
	_, ok = c.Get("k1")
	assert.False(t, ok)
	_, ok = c.Get("k2")
	assert.True(t, ok)
	_, ok = c.Get("new")
	assert.True(t, ok)
}

func TestPutExistingKeyDoesNotEvict(t *testing.T) {
	c, clock := newTestCache(time.Hour, 4)

	for i := 0; i < 4; i++ {
		c.Put(fmt.Sprintf("k%d", i), i)
		*clock = clock.Add(time.Second)
	}

	c.Put("k3", "updated")
	assert.Equal(t, 4, c.Len())
	v, ok := c.Get("k0")
	assert.True(t, ok)
	assert.Equal(t, 0, v)
}
