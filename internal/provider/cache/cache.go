package cache

import (
    "strings"
    "sync"
    "time"

    "github.com/shopspring/decimal"

    "metalprice/internal/provider"
)

// DefaultTTL is how long a fetched spot price is served without refetching.
const DefaultTTL = time.Hour

// Key identifies one metal/currency pair.
type Key struct {
    Metal    provider.Metal
    Currency string
}

// NewKey normalizes the currency code so "gbp" and "GBP" share an entry.
func NewKey(m provider.Metal, currency string) Key {
    return Key{Metal: m, Currency: strings.ToUpper(strings.TrimSpace(currency))}
}

// Entry is one cached price.
type Entry struct {
    Price     decimal.Decimal
    FetchedAt time.Time
    expiresAt time.Time
}

// Cache is a process-local price cache shared by concurrent request handlers.
// Expired entries stay in the map: Get treats them as a miss while Stale
// still returns them for last-resort fallback.
type Cache struct {
    TTL      time.Duration
    MaxItems int
    Now      func() time.Time

    mu    sync.RWMutex
    items map[Key]Entry
}

// New returns a cache with the given TTL (DefaultTTL when <= 0).
func New(ttl time.Duration, maxItems int) *Cache {
    if ttl <= 0 { ttl = DefaultTTL }
    return &Cache{TTL: ttl, MaxItems: maxItems, items: make(map[Key]Entry)}
}

func (c *Cache) now() time.Time {
    if c.Now != nil { return c.Now() }
    return time.Now()
}

// Get returns the entry for key only while it is fresh.
func (c *Cache) Get(key Key) (Entry, bool) {
    c.mu.RLock()
    e, ok := c.items[key]
    c.mu.RUnlock()
    if !ok || !c.now().Before(e.expiresAt) {
        return Entry{}, false
    }
    return e, true
}

// Stale returns the last entry stored for key regardless of age.
func (c *Cache) Stale(key Key) (Entry, bool) {
    c.mu.RLock()
    defer c.mu.RUnlock()
    e, ok := c.items[key]
    return e, ok
}

// Put stores price for key. Expiry is measured from fetchedAt.
func (c *Cache) Put(key Key, price decimal.Decimal, fetchedAt time.Time) {
    if fetchedAt.IsZero() { fetchedAt = c.now() }
    ttl := c.TTL
    if ttl <= 0 { ttl = DefaultTTL }

    c.mu.Lock()
    defer c.mu.Unlock()
    if c.items == nil { c.items = make(map[Key]Entry) }
    c.items[key] = Entry{Price: price, FetchedAt: fetchedAt, expiresAt: fetchedAt.Add(ttl)}

    // best-effort cap: drop expired entries first, then arbitrary ones
    if c.MaxItems > 0 && len(c.items) > c.MaxItems {
        now := c.now()
        for k, v := range c.items {
            if k != key && now.After(v.expiresAt) { delete(c.items, k) }
            if len(c.items) <= c.MaxItems { break }
        }
        for k := range c.items {
            if len(c.items) <= c.MaxItems { break }
            if k != key { delete(c.items, k) }
        }
    }
}

// Len returns the number of entries, fresh or not.
func (c *Cache) Len() int {
    c.mu.RLock()
    defer c.mu.RUnlock()
    return len(c.items)
}
