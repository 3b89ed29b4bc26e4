package cache

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func frozenClock(start time.Time) (func() time.Time, func(time.Duration)) {
	now := start
	var mu sync.Mutex
	return func() time.Time {
			mu.Lock()
			defer mu.Unlock()
			return now
		}, func(d time.Duration) {
			mu.Lock()
			defer mu.Unlock()
			now = now.Add(d)
		}
}

func TestLRU_BasicGetPut(t *testing.T) {
	c := NewLRU[string, bool](10, 5*time.Minute)

	c.Put("a", true)
	c.Put("b", false)

	v, ok := c.Get("a")
	require.True(t, ok)
	assert.True(t, v)

	v, ok = c.Get("b")
	require.True(t, ok)
	assert.False(t, v)

	_, ok = c.Get("missing")
	assert.False(t, ok)
}

func TestLRU_Eviction(t *testing.T) {
	c := NewLRU[string, int](3, 5*time.Minute)

	c.Put("a", 1)
	c.Put("b", 2)
	c.Put("c", 3)
	c.Get("a")
	c.Put("d", 4)

	_, ok := c.Get("b")
	assert.False(t, ok, "b should have been evicted")

	v, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 1, v)
	assert.Equal(t, 3, c.Len())
}

func TestLRU_Unbounded(t *testing.T) {
	c := NewLRU[int, struct{}](0, time.Minute)
	for i := 0; i < 1000; i++ {
		c.Put(i, struct{}{})
	}
	assert.Equal(t, 1000, c.Len())
	assert.True(t, c.Contains(0))
}

func TestLRU_TTLExpiration(t *testing.T) {
	c := NewLRU[string, bool](10, 5*time.Minute)
	now, advance := frozenClock(time.Now())
	c.nowFn = now

	c.Put("a", true)
	assert.True(t, c.Contains("a"))

	advance(6 * time.Minute)
	_, ok := c.Get("a")
	assert.False(t, ok, "entry should have expired")
	assert.Equal(t, 0, c.Len(), "expired entry dropped on lookup")
}

func TestLRU_UpdateExisting(t *testing.T) {
	c := NewLRU[string, int](10, 5*time.Minute)

	c.Put("a", 1)
	c.Put("a", 2)

	v, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, 2, v)
	assert.Equal(t, 1, c.Len())
}

func TestLRU_PutIfAbsentKeepsOriginalExpiry(t *testing.T) {
	c := NewLRU[string, struct{}](10, 10*time.Minute)
	now, advance := frozenClock(time.Now())
	c.nowFn = now

	require.True(t, c.PutIfAbsent("k", struct{}{}))
	advance(6 * time.Minute)
	assert.False(t, c.PutIfAbsent("k", struct{}{}))

	advance(5 * time.Minute)
	assert.False(t, c.Contains("k"), "second put must not extend expiry")
	assert.True(t, c.PutIfAbsent("k", struct{}{}))
}

func TestLRU_PutIfAbsentConcurrent(t *testing.T) {
	c := NewLRU[string, struct{}](0, time.Minute)

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if c.PutIfAbsent("same", struct{}{}) {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())
}

func TestLRU_Sweep(t *testing.T) {
	c := NewLRU[string, int](0, time.Minute)
	now, advance := frozenClock(time.Now())
	c.nowFn = now

	c.Put("old-1", 1)
	c.Put("old-2", 2)
	advance(45 * time.Second)
	c.Put("fresh", 3)
	advance(30 * time.Second)

	assert.Equal(t, 2, c.Sweep())
	assert.Equal(t, 1, c.Len())
	assert.True(t, c.Contains("fresh"))
	assert.Equal(t, 0, c.Sweep())
}

func TestLRU_Stats(t *testing.T) {
	c := NewLRU[string, bool](10, 5*time.Minute)

	c.Put("a", true)
	c.Get("a")
	c.Get("a")
	c.Get("miss")

	hits, misses := c.Stats()
	assert.Equal(t, int64(2), hits)
	assert.Equal(t, int64(1), misses)
}
