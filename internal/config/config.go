package config

import (
    "encoding/json"
    "errors"
    "fmt"
    "os"
    "path/filepath"
    "strings"

    "github.com/shopspring/decimal"
    "gopkg.in/yaml.v3"

    "metalprice/internal/pricing"
    "metalprice/internal/provider"
)

type Server struct {
    Port              string `json:"port" yaml:"port"`
    RequestTimeoutSec int    `json:"request_timeout_sec" yaml:"request_timeout_sec"`
    MaxBodyBytes      int64  `json:"max_body_bytes" yaml:"max_body_bytes"`
}

type MetalsAPI struct {
    APIKey                string            `json:"api_key" yaml:"api_key"`
    BaseURL               string            `json:"base_url" yaml:"base_url"`
    TimeoutSec            int               `json:"timeout_sec" yaml:"timeout_sec"`
    MaxRequestsPerMinute  int               `json:"max_requests_per_minute" yaml:"max_requests_per_minute"`
    MinRequestIntervalSec int               `json:"min_request_interval_sec" yaml:"min_request_interval_sec"`
    Burst                 int               `json:"burst" yaml:"burst"`
    CacheTTLSeconds       int               `json:"cache_ttl_sec" yaml:"cache_ttl_sec"`
    CacheMaxItems         int               `json:"cache_max_items" yaml:"cache_max_items"`
    Defaults              map[string]string `json:"defaults" yaml:"defaults"` // metal -> price per gram
}

type Store struct {
    Backend     string `json:"backend" yaml:"backend"` // file, badger, sqlite
    Path        string `json:"path" yaml:"path"`
    ValiditySec int    `json:"validity_sec" yaml:"validity_sec"`
}

type Catalog struct {
    DSN string `json:"dsn" yaml:"dsn"` // empty disables catalog endpoints
}

type Schedule struct {
    Cron string `json:"cron" yaml:"cron"`
}

type Log struct {
    Level  string `json:"level" yaml:"level"`
    Format string `json:"format" yaml:"format"` // json or console
}

type Stones struct {
    PerCarat  map[string]string `json:"per_carat" yaml:"per_carat"`
    PearlUnit string            `json:"pearl_unit" yaml:"pearl_unit"`
}

type Config struct {
    Currency  string    `json:"currency" yaml:"currency"`
    Server    Server    `json:"server" yaml:"server"`
    MetalsAPI MetalsAPI `json:"metals_api" yaml:"metals_api"`
    Store     Store     `json:"store" yaml:"store"`
    Catalog   Catalog   `json:"catalog" yaml:"catalog"`
    Schedule  Schedule  `json:"schedule" yaml:"schedule"`
    Log       Log       `json:"log" yaml:"log"`
    Stones    Stones    `json:"stones" yaml:"stones"`
}

func Default() Config {
    return Config{
        Currency: "GBP",
        Server:   Server{Port: "8080", RequestTimeoutSec: 10, MaxBodyBytes: 1 << 20},
        MetalsAPI: MetalsAPI{
            BaseURL:              "https://api.metals.dev/v1",
            TimeoutSec:           10,
            MaxRequestsPerMinute: 2,
            Burst:                1,
            CacheTTLSeconds:      3600,
            CacheMaxItems:        64,
            Defaults:             map[string]string{"gold": "55.00", "platinum": "25.00", "silver": "0.70"},
        },
        Store:    Store{Backend: "file", Path: filepath.Join("data", "metal-prices.json"), ValiditySec: 12 * 3600},
        Schedule: Schedule{Cron: "0 6,18 * * *"},
        Log:      Log{Level: "info", Format: "json"},
    }
}

// Load reads config from path (JSON, or YAML for .yaml/.yml). If path is
// empty or the file does not exist, it returns defaults. Environment
// variables override select fields so secrets stay out of files.
func Load(path string) (Config, error) {
    cfg := Default()
    if path == "" {
        for _, p := range []string{"config.json", "config.yaml", "config.yml"} {
            if _, err := os.Stat(p); err == nil { path = p; break }
        }
    }
    if path != "" {
        b, err := os.ReadFile(path)
        if err != nil && !errors.Is(err, os.ErrNotExist) {
            return cfg, fmt.Errorf("read config: %w", err)
        }
        if err == nil {
            switch strings.ToLower(filepath.Ext(path)) {
            case ".yaml", ".yml":
                err = yaml.Unmarshal(b, &cfg)
            default:
                err = json.Unmarshal(b, &cfg)
            }
            if err != nil {
                return cfg, fmt.Errorf("parse config: %w", err)
            }
        }
    }
    applyEnv(&cfg)
    cfg.Currency = strings.ToUpper(strings.TrimSpace(cfg.Currency))
    if err := cfg.Validate(); err != nil {
        return cfg, err
    }
    return cfg, nil
}

// Validate checks values that would otherwise fail later at a worse time.
// A missing API key is not an error.
func (c Config) Validate() error {
    if c.Currency == "" {
        return errors.New("config: currency is required")
    }
    switch strings.ToLower(c.Store.Backend) {
    case "", "file", "badger", "sqlite":
    default:
        return fmt.Errorf("config: unknown store backend %q", c.Store.Backend)
    }
    if _, err := c.DefaultPrices(); err != nil {
        return err
    }
    if _, err := c.StoneRates(); err != nil {
        return err
    }
    return nil
}

// HasAPIKey reports whether live prices can be fetched.
func (c Config) HasAPIKey() bool { return strings.TrimSpace(c.MetalsAPI.APIKey) != "" }

// DefaultPrices parses the configured per-gram fallbacks.
func (c Config) DefaultPrices() (map[provider.Metal]decimal.Decimal, error) {
    out := make(map[provider.Metal]decimal.Decimal, len(c.MetalsAPI.Defaults))
    for name, v := range c.MetalsAPI.Defaults {
        m, ok := provider.ParseMetal(name)
        if !ok { return nil, fmt.Errorf("config: unknown metal %q in defaults", name) }
        d, err := decimal.NewFromString(strings.TrimSpace(v))
        if err != nil || !d.IsPositive() {
            return nil, fmt.Errorf("config: invalid default price %q for %s", v, name)
        }
        out[m] = d
    }
    return out, nil
}

// StoneRates overlays configured stone rates on the built-in catalog.
func (c Config) StoneRates() (pricing.StoneRates, error) {
    rates := pricing.DefaultStoneRates()
    for name, v := range c.Stones.PerCarat {
        d, err := decimal.NewFromString(strings.TrimSpace(v))
        if err != nil || d.IsNegative() {
            return rates, fmt.Errorf("config: invalid rate %q for stone %s", v, name)
        }
        rates.PerCarat[pricing.StoneType(name).Normalize()] = d
    }
    if c.Stones.PearlUnit != "" {
        d, err := decimal.NewFromString(strings.TrimSpace(c.Stones.PearlUnit))
        if err != nil || d.IsNegative() {
            return rates, fmt.Errorf("config: invalid pearl unit price %q", c.Stones.PearlUnit)
        }
        rates.PearlUnit = d
    }
    return rates, nil
}

func applyEnv(cfg *Config) {
    if v := os.Getenv("PORT"); v != "" { cfg.Server.Port = v }
    if v := os.Getenv("REQUEST_TIMEOUT_SEC"); v != "" {
        var x int; fmt.Sscanf(v, "%d", &x); if x > 0 { cfg.Server.RequestTimeoutSec = x }
    }
    if v := os.Getenv("PRICE_CURRENCY"); v != "" { cfg.Currency = v }

    if v := os.Getenv("METALS_API_KEY"); v != "" { cfg.MetalsAPI.APIKey = v }
    if v := os.Getenv("METALS_API_BASE_URL"); v != "" { cfg.MetalsAPI.BaseURL = v }
    if v := os.Getenv("METALS_API_MAX_RPM"); v != "" {
        var x int; fmt.Sscanf(v, "%d", &x); if x >= 0 { cfg.MetalsAPI.MaxRequestsPerMinute = x }
    }
    if v := os.Getenv("METALS_API_MIN_INTERVAL_SEC"); v != "" {
        var x int; fmt.Sscanf(v, "%d", &x); if x >= 0 { cfg.MetalsAPI.MinRequestIntervalSec = x }
    }
    if v := os.Getenv("PRICE_CACHE_TTL_SEC"); v != "" {
        var x int; fmt.Sscanf(v, "%d", &x); if x > 0 { cfg.MetalsAPI.CacheTTLSeconds = x }
    }

    if v := os.Getenv("PRICE_STORE_BACKEND"); v != "" { cfg.Store.Backend = strings.ToLower(v) }
    if v := os.Getenv("PRICE_STORE_PATH"); v != "" { cfg.Store.Path = v }
    if v := os.Getenv("PRICE_VALIDITY_SEC"); v != "" {
        var x int; fmt.Sscanf(v, "%d", &x); if x > 0 { cfg.Store.ValiditySec = x }
    }

    if v := os.Getenv("CATALOG_DSN"); v != "" { cfg.Catalog.DSN = v }
    if v := os.Getenv("REFRESH_CRON"); v != "" { cfg.Schedule.Cron = v }
    if v := os.Getenv("LOG_LEVEL"); v != "" { cfg.Log.Level = v }
    if v := os.Getenv("LOG_FORMAT"); v != "" { cfg.Log.Format = v }
}
