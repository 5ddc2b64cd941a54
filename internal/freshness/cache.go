// ABOUTME: Thread-safe single-slot cache with expiry-margin freshness checks.
// ABOUTME: Serves a cached value while it stays fresh, otherwise runs the supplied refresh.

package freshness

import (
	"context"
	"sync"
	"time"
)

// RefreshFunc produces a new value together with its time-to-live.
// It is invoked synchronously by GetOrRefresh when the cached value
// is missing or too close to expiry.
type RefreshFunc func(ctx context.Context) (value string, ttl time.Duration, err error)

// Cache holds a single value and its absolute expiry time. The pair is
// replaced wholesale on a successful refresh and never partially updated.
// A failed refresh leaves the previous state untouched.
//
// Refreshes are not deduplicated: two goroutines that observe a stale slot
// at the same time will both invoke the refresh. Each gets its own result
// and the last store wins, which is an accepted inefficiency rather than a
// correctness problem, since every successful refresh yields a valid value.
type Cache struct {
	mu        sync.Mutex
	value     string
	expiresAt time.Time
	now       func() time.Time
}

// New creates an empty cache using the wall clock.
func New() *Cache {
	return NewWithClock(time.Now)
}

// NewWithClock creates an empty cache with an injected clock.
func NewWithClock(now func() time.Time) *Cache {
	return &Cache{now: now}
}

// GetOrRefresh returns the cached value if it stays valid for at least
// margin beyond now. Otherwise it invokes refresh; on success the new
// value and expiry are stored and the value returned, on failure the
// error is returned and the cached state is left as it was.
//
// The refresh runs outside the lock so readers of a still-fresh slot are
// never blocked behind a slow refresh.
func (c *Cache) GetOrRefresh(ctx context.Context, margin time.Duration, refresh RefreshFunc) (string, error) {
	c.mu.Lock()
	if c.fresh(margin) {
		v := c.value
		c.mu.Unlock()
		return v, nil
	}
	c.mu.Unlock()

	value, ttl, err := refresh(ctx)
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	c.value = value
	c.expiresAt = c.now().Add(ttl)
	c.mu.Unlock()
	return value, nil
}

// Peek returns the current value, its expiry, and whether a value is held.
// It performs no freshness check and never triggers a refresh.
func (c *Cache) Peek() (string, time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value, c.expiresAt, !c.expiresAt.IsZero()
}

// fresh reports whether the slot holds a value valid beyond the margin.
// Must be called with mu held.
func (c *Cache) fresh(margin time.Duration) bool {
	if c.expiresAt.IsZero() {
		return false
	}
	return c.expiresAt.After(c.now().Add(margin))
}
