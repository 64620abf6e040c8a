package ratelimit

import (
    "context"
    "sync"
    "time"

    "metalprice/internal/provider"
)

// TokenBucket is a blocking limiter: rate tokens per second, up to burst.
type TokenBucket struct {
    rate     float64
    capacity float64

    mu     sync.Mutex
    tokens float64
    last   time.Time
}

func NewTokenBucket(tokensPerSecond float64, burst int) *TokenBucket {
    if tokensPerSecond <= 0 { tokensPerSecond = 0.0000001 }
    if burst <= 0 { burst = 1 }
    return &TokenBucket{
        rate:     tokensPerSecond,
        capacity: float64(burst),
        tokens:   float64(burst),
        last:     time.Now(),
    }
}

// Wait blocks until a token is taken or ctx is done.
func (tb *TokenBucket) Wait(ctx context.Context) error {
    for {
        tb.mu.Lock()
        now := time.Now()
        if elapsed := now.Sub(tb.last).Seconds(); elapsed > 0 {
            tb.tokens = min(tb.tokens+elapsed*tb.rate, tb.capacity)
            tb.last = now
        }
        if tb.tokens >= 1 {
            tb.tokens--
            tb.mu.Unlock()
            return nil
        }
        deficit := 1 - tb.tokens
        tb.mu.Unlock()

        waitDur := time.Duration(deficit / tb.rate * float64(time.Second))
        if waitDur <= 0 { waitDur = time.Millisecond }
        timer := time.NewTimer(waitDur)
        select {
        case <-ctx.Done():
            timer.Stop()
            return ctx.Err()
        case <-timer.C:
        }
    }
}

// TokenBucketFetcher gates Latest calls through a TokenBucket so the metered
// spot-price quota is not burned by bursts of refreshes.
type TokenBucketFetcher struct {
    F  provider.Fetcher
    TB *TokenBucket
}

func (t *TokenBucketFetcher) Latest(ctx context.Context, currency string) (provider.Rates, error) {
    if t.TB != nil {
        if err := t.TB.Wait(ctx); err != nil { return provider.Rates{}, err }
    }
    return t.F.Latest(ctx, currency)
}
