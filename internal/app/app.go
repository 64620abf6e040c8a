// Package app assembles the price service from configuration. Both binaries
// share it so the fetch, store and fallback wiring cannot drift apart.
package app

import (
    "fmt"
    "time"

    "github.com/rs/zerolog"

    "metalprice/internal/batch"
    "metalprice/internal/catalog"
    "metalprice/internal/config"
    "metalprice/internal/httpx"
    "metalprice/internal/metrics"
    "metalprice/internal/pricing"
    "metalprice/internal/provider"
    "metalprice/internal/provider/cache"
    "metalprice/internal/provider/metalsapi"
    "metalprice/internal/provider/ratelimit"
    "metalprice/internal/provider/spot"
    "metalprice/internal/refresh"
    "metalprice/internal/store"
)

type App struct {
    Config    config.Config
    Client    *metalsapi.Client // nil without an API key
    Fetcher   provider.Fetcher  // rate limited Client, nil without an API key
    Spot      *spot.Provider
    Store     *store.PersistentPriceStore
    Refresher *refresh.Refresher
    Updater   *batch.Updater
    Catalog   *catalog.Repo // nil unless a catalog DSN is configured
}

// New builds every component. m may be nil.
func New(cfg config.Config, log zerolog.Logger, m *metrics.Metrics) (*App, error) {
    a := &App{Config: cfg}

    if cfg.HasAPIKey() {
        hc := httpx.New(time.Duration(cfg.MetalsAPI.TimeoutSec) * time.Second)
        a.Client = metalsapi.NewClient(cfg.MetalsAPI.APIKey,
            metalsapi.WithBaseURL(cfg.MetalsAPI.BaseURL),
            metalsapi.WithHTTPClient(hc),
        )
        a.Fetcher = limit(a.Client, cfg.MetalsAPI)
    } else {
        log.Warn().Msg("METALS_API_KEY not set; serving stored or default prices only")
    }

    defaults, err := cfg.DefaultPrices()
    if err != nil { return nil, err }
    rates, err := cfg.StoneRates()
    if err != nil { return nil, err }

    c := cache.New(time.Duration(cfg.MetalsAPI.CacheTTLSeconds)*time.Second, cfg.MetalsAPI.CacheMaxItems)
    a.Spot = spot.New(spot.Config{Currency: cfg.Currency, Defaults: defaults}, a.Fetcher, c, log, m)

    backend, err := store.Open(cfg.Store.Backend, cfg.Store.Path)
    if err != nil { return nil, fmt.Errorf("opening price store: %w", err) }
    a.Store = store.New(backend, time.Duration(cfg.Store.ValiditySec)*time.Second, log, m)

    a.Refresher = refresh.New(a.Fetcher, a.Store, a.Spot, log, m)
    a.Updater = batch.New(a.Store, a.Spot, pricing.NewCalculator(rates), cfg.Currency, log, m)

    if cfg.Catalog.DSN != "" {
        a.Catalog, err = catalog.Open(cfg.Catalog.DSN)
        if err != nil {
            a.Store.Close()
            return nil, fmt.Errorf("opening catalog: %w", err)
        }
    }
    return a, nil
}

// limit prefers a token bucket when a per-minute quota is set, otherwise a
// minimum interval between calls.
func limit(f provider.Fetcher, cfg config.MetalsAPI) provider.Fetcher {
    if cfg.MaxRequestsPerMinute > 0 {
        rate := float64(cfg.MaxRequestsPerMinute) / 60.0
        burst := cfg.Burst
        if burst <= 0 { burst = 1 }
        return &ratelimit.TokenBucketFetcher{F: f, TB: ratelimit.NewTokenBucket(rate, burst)}
    }
    if cfg.MinRequestIntervalSec > 0 {
        return &ratelimit.MinInterval{F: f, Interval: time.Duration(cfg.MinRequestIntervalSec) * time.Second}
    }
    return f
}

func (a *App) Close() error {
    var err error
    if a.Catalog != nil { err = a.Catalog.Close() }
    if cerr := a.Store.Close(); cerr != nil && err == nil { err = cerr }
    return err
}
