package ratelimit

import (
    "context"
    "sync"
    "time"

    "metalprice/internal/provider"
)

// MinInterval spaces out spot-price API calls. A caller arriving sooner than
// Interval after the previous call waits, unless its context ends first.
type MinInterval struct {
    F        provider.Fetcher
    Interval time.Duration

    mu   sync.Mutex
    last time.Time
}

// reserve claims the next call slot and returns how long to wait for it.
func (m *MinInterval) reserve() time.Duration {
    m.mu.Lock()
    defer m.mu.Unlock()
    now := time.Now()
    next := m.last.Add(m.Interval)
    if next.Before(now) { next = now }
    m.last = next
    return next.Sub(now)
}

func (m *MinInterval) Latest(ctx context.Context, currency string) (provider.Rates, error) {
    if m.Interval > 0 {
        if wait := m.reserve(); wait > 0 {
            t := time.NewTimer(wait)
            defer t.Stop()
            select {
            case <-ctx.Done():
                return provider.Rates{}, ctx.Err()
            case <-t.C:
            }
        }
    }
    return m.F.Latest(ctx, currency)
}
