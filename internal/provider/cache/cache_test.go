package cache

import (
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"metalprice/internal/provider"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

func TestCache_GetExpiresAfterTTL(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Date(2025, 3, 1, 6, 0, 0, 0, time.UTC)}
	c := New(time.Hour, 0)
	c.Now = clock.Now

	key := NewKey(provider.Gold, "gbp")
	c.Put(key, decimal.NewFromInt(55), clock.Now())

	// Assert: fresh within the hour, currency normalized.
	e, ok := c.Get(NewKey(provider.Gold, "GBP"))
	require.True(t, ok)
	require.True(t, e.Price.Equal(decimal.NewFromInt(55)))

	// Assert: a miss once the hour has elapsed.
	clock.Advance(time.Hour)
	_, ok = c.Get(key)
	require.False(t, ok)

	// Assert: the expired entry is still available as a stale value.
	e, ok = c.Stale(key)
	require.True(t, ok)
	require.True(t, e.Price.Equal(decimal.NewFromInt(55)))
	require.Equal(t, 1, c.Len())
}

func TestCache_MissForUnknownKey(t *testing.T) {
	t.Parallel()

	c := New(0, 0)
	require.Equal(t, DefaultTTL, c.TTL)

	_, ok := c.Get(NewKey(provider.Platinum, "USD"))
	require.False(t, ok)
	_, ok = c.Stale(NewKey(provider.Platinum, "USD"))
	require.False(t, ok)
}

func TestCache_MaxItemsEvictsExpiredFirst(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Date(2025, 3, 1, 6, 0, 0, 0, time.UTC)}
	c := New(time.Minute, 2)
	c.Now = clock.Now

	old := NewKey(provider.Silver, "USD")
	c.Put(old, decimal.NewFromInt(1), clock.Now())
	clock.Advance(2 * time.Minute)

	c.Put(NewKey(provider.Gold, "USD"), decimal.NewFromInt(60), clock.Now())
	c.Put(NewKey(provider.Platinum, "USD"), decimal.NewFromInt(28), clock.Now())

	require.Equal(t, 2, c.Len())
	_, ok := c.Stale(old)
	require.False(t, ok, "expired entry should be evicted first")
}

func TestCache_ConcurrentAccess(t *testing.T) {
	t.Parallel()

	c := New(time.Hour, 0)
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := NewKey(provider.Metals[i%len(provider.Metals)], "GBP")
			c.Put(key, decimal.NewFromInt(int64(i)), time.Time{})
			c.Get(key)
			c.Stale(key)
		}(i)
	}
	wg.Wait()
	require.Equal(t, len(provider.Metals), c.Len())
}
