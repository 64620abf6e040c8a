// Package spot resolves a single metal price with graceful degradation:
// fresh cache, then the API, then a stale cache entry, then a configured
// default. It never returns an error; the Resolution says where the value
// came from.
package spot

import (
    "context"
    "errors"
    "strings"
    "time"

    "github.com/rs/zerolog"
    "github.com/shopspring/decimal"
    "golang.org/x/sync/singleflight"

    "metalprice/internal/metrics"
    "metalprice/internal/provider"
    "metalprice/internal/provider/cache"
)

// DefaultPrices are the per-gram fallbacks used when nothing else is available.
func DefaultPrices() map[provider.Metal]decimal.Decimal {
    return map[provider.Metal]decimal.Decimal{
        provider.Gold:     decimal.RequireFromString("55.00"),
        provider.Platinum: decimal.RequireFromString("25.00"),
        provider.Silver:   decimal.RequireFromString("0.70"),
    }
}

type Config struct {
    Name     string                             // log label, default: spot
    Currency string                             // used when a call passes ""
    Defaults map[provider.Metal]decimal.Decimal // default: DefaultPrices()
}

type Provider struct {
    cfg     Config
    fetcher provider.Fetcher
    cache   *cache.Cache
    log     zerolog.Logger
    metrics *metrics.Metrics

    // one upstream call per currency at a time
    sf singleflight.Group

    Now func() time.Time
}

func New(cfg Config, f provider.Fetcher, c *cache.Cache, log zerolog.Logger, m *metrics.Metrics) *Provider {
    if cfg.Name == "" { cfg.Name = "spot" }
    if cfg.Currency == "" { cfg.Currency = "USD" }
    if len(cfg.Defaults) == 0 { cfg.Defaults = DefaultPrices() }
    if c == nil { c = cache.New(cache.DefaultTTL, 0) }
    return &Provider{
        cfg:     cfg,
        fetcher: f,
        cache:   c,
        log:     log.With().Str("component", cfg.Name).Logger(),
        metrics: m,
    }
}

func (p *Provider) now() time.Time {
    if p.Now != nil { return p.Now() }
    return time.Now()
}

// Cache exposes the underlying cache, e.g. for warming after a refresh.
func (p *Provider) Cache() *cache.Cache { return p.cache }

// resolver is one step of the fallback chain. ok=false passes to the next step.
type resolver func(ctx context.Context, key cache.Key, prev error) (provider.Resolution, bool, error)

// FetchSpotPrice resolves metal in currency. It never fails.
func (p *Provider) FetchSpotPrice(ctx context.Context, metal provider.Metal, currency string) provider.Resolution {
    if strings.TrimSpace(currency) == "" { currency = p.cfg.Currency }
    key := cache.NewKey(metal, currency)

    chain := []resolver{p.fromCache, p.fromAPI, p.fromStale, p.fromDefault}
    var lastErr error
    for _, step := range chain {
        res, ok, err := step(ctx, key, lastErr)
        if err != nil { lastErr = err }
        if ok {
            res.Err = lastErr
            p.metrics.RecordResolution(string(metal), string(res.Tier))
            return res
        }
    }
    // no default configured for metal
    return provider.Resolution{Metal: metal, Currency: key.Currency, Tier: provider.TierDefault, FetchedAt: p.now(), Err: lastErr}
}

func (p *Provider) fromCache(_ context.Context, key cache.Key, _ error) (provider.Resolution, bool, error) {
    e, ok := p.cache.Get(key)
    if !ok { return provider.Resolution{}, false, nil }
    return p.resolution(key, e.Price, provider.TierCache, e.FetchedAt), true, nil
}

func (p *Provider) fromAPI(ctx context.Context, key cache.Key, _ error) (provider.Resolution, bool, error) {
    if p.fetcher == nil {
        return provider.Resolution{}, false, provider.ErrConfiguration
    }
    // the shared call outlives any one caller; the HTTP client timeout bounds it
    fetchCtx := context.WithoutCancel(ctx)
    v, err, _ := p.sf.Do(key.Currency, func() (any, error) {
        rates, err := p.fetcher.Latest(fetchCtx, key.Currency)
        if err != nil { return provider.Rates{}, err }
        p.Prime(rates)
        return rates, nil
    })
    if err != nil {
        p.metrics.RecordAPIRequest("error")
        if errors.Is(err, provider.ErrConfiguration) {
            p.log.Warn().Str("metal", string(key.Metal)).Msg("spot price api key not configured, using default")
        } else {
            p.log.Warn().Err(err).Str("metal", string(key.Metal)).Str("currency", key.Currency).Msg("spot price fetch failed")
        }
        return provider.Resolution{}, false, err
    }
    p.metrics.RecordAPIRequest("success")

    rates := v.(provider.Rates)
    price, ok := rates.Price(key.Metal)
    if !ok {
        err := &provider.ParseError{Reason: "response has no usable price: " + rates.Missing(key.Metal)}
        return provider.Resolution{}, false, err
    }
    return p.resolution(key, price, provider.TierAPI, rates.FetchedAt), true, nil
}

func (p *Provider) fromStale(_ context.Context, key cache.Key, prev error) (provider.Resolution, bool, error) {
    // a missing key is permanent; go straight to the default
    if errors.Is(prev, provider.ErrConfiguration) { return provider.Resolution{}, false, nil }
    e, ok := p.cache.Stale(key)
    if !ok { return provider.Resolution{}, false, nil }
    p.metrics.RecordStaleRead("cache")
    p.log.Warn().
        Str("metal", string(key.Metal)).
        Str("currency", key.Currency).
        Time("fetched_at", e.FetchedAt).
        Msg("serving stale cached spot price")
    return p.resolution(key, e.Price, provider.TierStaleCache, e.FetchedAt), true, nil
}

func (p *Provider) fromDefault(_ context.Context, key cache.Key, _ error) (provider.Resolution, bool, error) {
    price, ok := p.cfg.Defaults[key.Metal]
    if !ok { return provider.Resolution{}, false, nil }
    return p.resolution(key, price, provider.TierDefault, p.now()), true, nil
}

func (p *Provider) resolution(key cache.Key, price decimal.Decimal, tier provider.Tier, at time.Time) provider.Resolution {
    return provider.Resolution{Metal: key.Metal, Currency: key.Currency, Price: price, Tier: tier, FetchedAt: at}
}

// Prime stores every metal in rates in the cache.
func (p *Provider) Prime(rates provider.Rates) {
    at := rates.FetchedAt
    if at.IsZero() { at = p.now() }
    for m, price := range rates.Prices {
        p.cache.Put(cache.NewKey(m, rates.Currency), price, at)
    }
}
