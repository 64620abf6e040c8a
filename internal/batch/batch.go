// Package batch reprices many products at once, resolving the metal price
// for each distinct material exactly once.
package batch

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"metalprice/internal/material"
	"metalprice/internal/metrics"
	"metalprice/internal/pricing"
	"metalprice/internal/provider"
	"metalprice/internal/store"
)

// PricedProduct is one product with its computed price. Error is set when the
// price fell back to the product's base price. Warning is set when the metal
// price came from a degraded tier (stale data or a fixed default).
type PricedProduct struct {
	Product       pricing.Product `json:"product"`
	ComputedPrice decimal.Decimal `json:"computedPrice"`
	PricePerGram  decimal.Decimal `json:"pricePerGram"`
	Tier          provider.Tier   `json:"tier"`
	Error         string          `json:"error,omitempty"`
	Warning       string          `json:"warning,omitempty"`
}

type Updater struct {
	store    *store.PersistentPriceStore
	source   provider.SpotSource
	calc     pricing.Calculator
	currency string
	log      zerolog.Logger
	metrics  *metrics.Metrics
}

func New(s *store.PersistentPriceStore, src provider.SpotSource, calc pricing.Calculator, currency string, log zerolog.Logger, m *metrics.Metrics) *Updater {
	return &Updater{
		store:    s,
		source:   src,
		calc:     calc,
		currency: strings.ToUpper(strings.TrimSpace(currency)),
		log:      log.With().Str("component", "batch").Logger(),
		metrics:  m,
	}
}

// Currency is the currency all prices are resolved in.
func (u *Updater) Currency() string { return u.currency }

// resolved is the outcome of resolving one material.
type resolved struct {
	res provider.Resolution
	err error
}

// PriceAll prices products. The stored price set is read once so every
// product in the batch sees the same snapshot. A product whose material
// cannot be priced gets its base price and an Error; the rest are unaffected.
func (u *Updater) PriceAll(ctx context.Context, products []pricing.Product) []PricedProduct {
	out := make([]PricedProduct, len(products))
	if len(products) == 0 {
		return out
	}

	snapshot := u.snapshot(ctx)
	byMaterial := make(map[string]resolved)
	for _, g := range material.GroupByMaterial(products) {
		needs := false
		for _, i := range g.Indexes {
			if products[i].NeedsMetalPrice() {
				needs = true
				break
			}
		}
		if !needs {
			continue
		}
		res, err := u.resolve(ctx, g.MaterialType, u.currency, snapshot)
		byMaterial[g.MaterialType] = resolved{res: res, err: err}
	}

	for i, p := range products {
		out[i] = u.price(p, byMaterial)
		u.metrics.RecordBatchProduct(string(out[i].Tier))
	}

	u.log.Info().
		Int("products", len(products)).
		Int("materials", len(byMaterial)).
		Msg("batch priced")
	return out
}

func (u *Updater) price(p pricing.Product, byMaterial map[string]resolved) PricedProduct {
	if !p.NeedsMetalPrice() {
		return PricedProduct{Product: p, ComputedPrice: u.calc.TotalPrice(p, decimal.Zero), Tier: provider.TierFixed}
	}

	r := byMaterial[p.MaterialType]
	if r.err != nil {
		u.log.Warn().Err(r.err).Str("product", p.ID).Str("material", p.MaterialType).Msg("falling back to base price")
		return PricedProduct{Product: p, ComputedPrice: p.Fallback(), Tier: provider.TierFixed, Error: r.err.Error()}
	}
	out := PricedProduct{
		Product:       p,
		ComputedPrice: u.calc.TotalPrice(p, r.res.Price),
		PricePerGram:  r.res.Price,
		Tier:          r.res.Tier,
	}
	if r.res.Err != nil {
		out.Warning = r.res.Err.Error()
	}
	return out
}

// ResolveMaterial returns the purity-adjusted price per gram for
// materialType in currency (the updater's currency when empty).
func (u *Updater) ResolveMaterial(ctx context.Context, materialType, currency string) (provider.Resolution, error) {
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if currency == "" {
		currency = u.currency
	}
	return u.resolve(ctx, materialType, currency, u.snapshot(ctx))
}

func (u *Updater) snapshot(ctx context.Context) *store.StoredPriceSet {
	if u.store == nil {
		return nil
	}
	return u.store.Load(ctx)
}

// resolve uses the stored set while it is fresh, then the spot source. An
// expired stored price is only preferred over a default or an older stale
// cache entry. The returned price already includes the purity multiplier;
// Err on the resolution carries the reason for a degraded tier.
func (u *Updater) resolve(ctx context.Context, materialType, currency string, snapshot *store.StoredPriceSet) (provider.Resolution, error) {
	m, err := material.Parse(materialType)
	if err != nil {
		return provider.Resolution{}, err
	}

	stored, haveStored := fromStore(m, currency, snapshot)
	if haveStored && u.fresh(stored) {
		return stored, nil
	}
	if u.source == nil {
		if haveStored {
			return u.staleStored(stored, nil), nil
		}
		return provider.Resolution{}, fmt.Errorf("no price source for %s", m.Metal)
	}

	res := u.source.FetchSpotPrice(ctx, m.Metal, currency)
	if haveStored && preferStored(stored, res) {
		return u.staleStored(stored, res.Err), nil
	}
	if !res.Price.IsPositive() {
		if res.Err != nil {
			return provider.Resolution{}, fmt.Errorf("no price for %s: %w", m.Metal, res.Err)
		}
		return provider.Resolution{}, fmt.Errorf("no price for %s", m.Metal)
	}
	if degraded(res.Tier) && res.Err == nil {
		res.Err = fmt.Errorf("%s price served from %s tier", m.Metal, res.Tier)
	}
	res.Price = res.Price.Mul(m.Multiplier)
	return res, nil
}

func (u *Updater) fresh(stored provider.Resolution) bool {
	if u.store == nil {
		return true
	}
	return u.store.Fresh(stored.FetchedAt)
}

func (u *Updater) staleStored(stored provider.Resolution, cause error) provider.Resolution {
	u.log.Warn().
		Str("metal", string(stored.Metal)).
		Time("fetched_at", stored.FetchedAt).
		AnErr("cause", cause).
		Msg("using expired stored price")
	stored.Err = fmt.Errorf("stored %s price expired (fetched %s)", stored.Metal, stored.FetchedAt.UTC().Format(time.RFC3339))
	if cause != nil {
		stored.Err = fmt.Errorf("%w; live price unavailable: %w", stored.Err, cause)
	}
	return stored
}

func degraded(t provider.Tier) bool {
	return t == provider.TierDefault || t == provider.TierStaleCache
}

// preferStored reports whether an expired stored price beats res. A stale
// cache entry wins only when it is newer than the stored price.
func preferStored(stored, res provider.Resolution) bool {
	switch res.Tier {
	case provider.TierDefault:
		return true
	case provider.TierStaleCache:
		return !res.FetchedAt.After(stored.FetchedAt)
	}
	return !res.Price.IsPositive()
}

func fromStore(m material.Material, currency string, set *store.StoredPriceSet) (provider.Resolution, bool) {
	if set == nil || !strings.EqualFold(set.Currency, currency) {
		return provider.Resolution{}, false
	}
	var sp store.MetalSpotPrice
	switch m.Metal {
	case provider.Gold:
		sp = set.Gold
	case provider.Platinum:
		sp = set.Platinum
	default:
		return provider.Resolution{}, false
	}
	if !sp.Price.IsPositive() {
		return provider.Resolution{}, false
	}
	return provider.Resolution{
		Metal:     m.Metal,
		Currency:  set.Currency,
		Price:     sp.Price.Mul(m.Multiplier),
		Tier:      provider.TierStore,
		FetchedAt: sp.Time(),
	}, true
}
