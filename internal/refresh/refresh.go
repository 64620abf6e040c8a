// Package refresh fetches gold and platinum in one API call and persists
// them. It is the target of the twice-daily scheduler and of manual refreshes.
package refresh

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"metalprice/internal/metrics"
	"metalprice/internal/provider"
	"metalprice/internal/store"
)

// Warmer receives freshly fetched rates, e.g. the spot provider's cache.
type Warmer interface {
	Prime(rates provider.Rates)
}

type Refresher struct {
	fetcher provider.Fetcher
	store   *store.PersistentPriceStore
	warmer  Warmer
	log     zerolog.Logger
	metrics *metrics.Metrics

	// runs are serialized so two saves never interleave
	mu sync.Mutex
}

func New(f provider.Fetcher, s *store.PersistentPriceStore, w Warmer, log zerolog.Logger, m *metrics.Metrics) *Refresher {
	return &Refresher{
		fetcher: f,
		store:   s,
		warmer:  w,
		log:     log.With().Str("component", "refresh").Logger(),
		metrics: m,
	}
}

// Refresh performs one fetch and save. On a fetch failure it returns the last
// stored set, if any, with a nil error; only when nothing is stored in the
// requested currency does the fetch error surface. A failed save is always returned.
func (r *Refresher) Refresh(ctx context.Context, currency string, source store.Source) (*store.StoredPriceSet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	currency = strings.ToUpper(strings.TrimSpace(currency))
	start := time.Now()
	log := r.log.With().
		Str("run_id", uuid.NewString()).
		Str("currency", currency).
		Str("source", string(source)).
		Logger()

	done := func(outcome string) {
		r.metrics.RecordRefresh(string(source), outcome, time.Since(start).Seconds(), time.Now().Unix())
	}

	rates, err := r.fetch(ctx, currency)
	if err != nil {
		prev := r.store.Load(ctx)
		if prev == nil {
			log.Error().Err(err).Msg("refresh failed and no stored prices exist")
			done("error")
			return nil, err
		}
		if !strings.EqualFold(prev.Currency, currency) {
			log.Error().Err(err).Str("stored_currency", prev.Currency).Msg("refresh failed and stored prices are in another currency")
			done("error")
			return nil, fmt.Errorf("no stored %s prices (stored set is %s): %w", currency, prev.Currency, err)
		}
		log.Warn().Err(err).Str("last_updated", prev.LastUpdated).Msg("refresh failed, keeping stored prices")
		done("fallback")
		return prev, nil
	}

	for m, reason := range rates.Skipped {
		log.Warn().Str("metal", string(m)).Str("reason", reason).Msg("skipped unusable metal price")
	}

	gold, _ := rates.Price(provider.Gold)
	platinum, _ := rates.Price(provider.Platinum)
	set, err := r.store.Save(ctx, gold, platinum, currency, source)
	if err != nil {
		log.Error().Err(err).Msg("persisting refreshed prices")
		done("error")
		return nil, err
	}
	if r.warmer != nil {
		r.warmer.Prime(rates)
	}

	log.Info().
		Str("gold", gold.String()).
		Str("platinum", platinum.String()).
		Dur("took", time.Since(start)).
		Msg("prices refreshed")
	done("success")
	return set, nil
}

// fetch makes exactly one API call and requires both persisted metals.
func (r *Refresher) fetch(ctx context.Context, currency string) (provider.Rates, error) {
	if r.fetcher == nil {
		return provider.Rates{}, fmt.Errorf("refresh: %w", provider.ErrConfiguration)
	}
	rates, err := r.fetcher.Latest(ctx, currency)
	if err != nil {
		return provider.Rates{}, err
	}
	var missing []string
	for _, m := range []provider.Metal{provider.Gold, provider.Platinum} {
		if _, ok := rates.Price(m); !ok {
			missing = append(missing, rates.Missing(m))
		}
	}
	if len(missing) > 0 {
		return provider.Rates{}, &provider.ParseError{Reason: "response has no usable " + strings.Join(missing, ", ")}
	}
	if rates.Currency == "" {
		rates.Currency = currency
	}
	return rates, nil
}

// IsFetchError reports whether err came from the API rather than storage.
func IsFetchError(err error) bool {
	var (
		auth      *provider.AuthError
		status    *provider.StatusError
		transport *provider.TransportError
		parse     *provider.ParseError
	)
	return errors.Is(err, provider.ErrConfiguration) ||
		errors.As(err, &auth) || errors.As(err, &status) ||
		errors.As(err, &transport) || errors.As(err, &parse)
}
