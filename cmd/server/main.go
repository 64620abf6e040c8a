package main

import (
    "context"
    "errors"
    "net/http"
    "os"
    "os/signal"
    "syscall"
    "time"

    "github.com/prometheus/client_golang/prometheus"
    "github.com/prometheus/client_golang/prometheus/collectors"
    "github.com/shopspring/decimal"

    "metalprice/internal/api"
    "metalprice/internal/app"
    "metalprice/internal/config"
    "metalprice/internal/logging"
    "metalprice/internal/metrics"
    "metalprice/internal/provider"
)

func main() {
    // Config
    cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
    logger := logging.New(cfg.Log.Level, cfg.Log.Format, os.Stderr)
    if err != nil { logger.Fatal().Err(err).Msg("config") }

    // prices go out as JSON numbers
    decimal.MarshalJSONWithoutQuotes = true

    reg := prometheus.NewRegistry()
    reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
    m := metrics.NewWithRegistry(reg)

    a, err := app.New(cfg, logger, m)
    if err != nil { logger.Fatal().Err(err).Msg("building service") }
    defer a.Close()

    // warm the provider cache from the last stored set so the first requests
    // after a restart do not hit the API
    if set := a.Store.Load(context.Background()); set != nil {
        a.Spot.Prime(provider.Rates{
            Currency:  set.Currency,
            Prices:    map[provider.Metal]decimal.Decimal{provider.Gold: set.Gold.Price, provider.Platinum: set.Platinum.Price},
            FetchedAt: set.Gold.Time(),
        })
        logger.Info().Str("last_updated", set.LastUpdated).Str("currency", set.Currency).Msg("loaded stored prices")
    }

    var cat api.Catalog
    if a.Catalog != nil { cat = a.Catalog }
    h := api.NewHandler(a.Store, a.Updater, a.Refresher, cat, logger)
    router := api.NewRouter(h, logger, api.RouterConfig{
        MaxBodyBytes: cfg.Server.MaxBodyBytes,
        Timeout:      time.Duration(cfg.Server.RequestTimeoutSec) * time.Second,
        Gatherer:     reg,
        Metrics:      m,
    })

    srv := &http.Server{
        Addr:              ":" + cfg.Server.Port,
        Handler:           router,
        ReadHeaderTimeout: 5 * time.Second,
        ReadTimeout:       15 * time.Second,
        WriteTimeout:      time.Duration(cfg.Server.RequestTimeoutSec+10) * time.Second,
        IdleTimeout:       60 * time.Second,
    }

    go func() {
        logger.Info().Str("addr", srv.Addr).Bool("api_key", cfg.HasAPIKey()).Msg("server listening")
        if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
            logger.Fatal().Err(err).Msg("server")
        }
    }()

    // graceful shutdown
    ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
    defer stop()
    <-ctx.Done()
    shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
    defer cancel()
    _ = srv.Shutdown(shutdownCtx)
}
