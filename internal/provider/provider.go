package provider

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Metal identifies a precious metal quoted by the spot-price API.
type Metal string

const (
	Gold     Metal = "gold"
	Platinum Metal = "platinum"
	Silver   Metal = "silver"
)

// Metals lists every metal the service knows how to price.
var Metals = []Metal{Gold, Platinum, Silver}

// ParseMetal maps a user supplied metal name onto a Metal.
func ParseMetal(s string) (Metal, bool) {
	switch Metal(strings.ToLower(strings.TrimSpace(s))) {
	case Gold:
		return Gold, true
	case Platinum:
		return Platinum, true
	case Silver:
		return Silver, true
	}
	return "", false
}

// Rates is the normalized payload of one spot-price API call.
// Prices are per gram in Currency; gold is always the 24k (fine) price.
// Skipped holds metals present in the payload with an unusable value.
type Rates struct {
	Currency  string
	Prices    map[Metal]decimal.Decimal
	Skipped   map[Metal]string
	FetchedAt time.Time
}

// Price returns the per-gram price for m, if the payload carried it.
func (r Rates) Price(m Metal) (decimal.Decimal, bool) {
	p, ok := r.Prices[m]
	return p, ok
}

// Missing explains why m has no price: the skip reason, or "missing".
func (r Rates) Missing(m Metal) string {
	if reason, ok := r.Skipped[m]; ok {
		return string(m) + " " + reason
	}
	return string(m) + " missing"
}

// Tier names the source a resolved price came from.
type Tier string

const (
	TierCache      Tier = "cache"
	TierAPI        Tier = "api"
	TierStaleCache Tier = "stale-cache"
	TierDefault    Tier = "default"
	TierStore      Tier = "store"
	TierFixed      Tier = "fixed"
)

// Resolution is a resolved price together with the tier that produced it.
// Err carries the failure that pushed resolution past the API tier, if any.
type Resolution struct {
	Metal     Metal           `json:"metal"`
	Currency  string          `json:"currency"`
	Price     decimal.Decimal `json:"price_per_gram"`
	Tier      Tier            `json:"tier"`
	FetchedAt time.Time       `json:"fetched_at"`
	Err       error           `json:"-"`
}

//go:generate mockgen -destination=mock/mock_provider.go -package=mock metalprice/internal/provider Fetcher,SpotSource

// Fetcher performs one call against the spot-price API and returns every
// metal in the response.
type Fetcher interface {
	Latest(ctx context.Context, currency string) (Rates, error)
}

// SpotSource resolves a single metal price. Implementations never fail; they
// degrade to cached or default values and report the tier used.
type SpotSource interface {
	FetchSpotPrice(ctx context.Context, metal Metal, currency string) Resolution
}
