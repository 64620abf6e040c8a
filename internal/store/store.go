// Package store persists the last fetched gold and platinum prices so they
// survive restarts and can back pricing when the API is unavailable.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"metalprice/internal/metrics"
)

// DefaultValidity is how long a stored price set counts as fresh.
const DefaultValidity = 12 * time.Hour

// ErrNotFound is returned by a Backend that holds no price set yet.
var ErrNotFound = errors.New("no stored prices")

// Source records what triggered a save.
type Source string

const (
	SourceScheduled Source = "scheduled"
	SourceManual    Source = "manual"
)

// MetalSpotPrice is a per-gram price and the unix millis it was fetched at.
type MetalSpotPrice struct {
	Price     decimal.Decimal `json:"price"`
	Timestamp int64           `json:"timestamp"`
}

// MarshalJSON writes the price as a JSON number.
func (m MetalSpotPrice) MarshalJSON() ([]byte, error) {
	return []byte(fmt.Sprintf(`{"price":%s,"timestamp":%d}`, m.Price.String(), m.Timestamp)), nil
}

// Time returns Timestamp as a time.
func (m MetalSpotPrice) Time() time.Time { return time.UnixMilli(m.Timestamp).UTC() }

// StoredPriceSet is the unit of persistence. Both metals share Currency and
// the set is always overwritten as a whole.
type StoredPriceSet struct {
	Gold        MetalSpotPrice `json:"gold"`
	Platinum    MetalSpotPrice `json:"platinum"`
	LastUpdated string         `json:"lastUpdated"`
	Currency    string         `json:"currency"`
	Source      Source         `json:"source"`
}

// Backend is a durable single-document store.
type Backend interface {
	Read(ctx context.Context) (*StoredPriceSet, error)
	Write(ctx context.Context, set *StoredPriceSet) error
	Close() error
}

// Open returns the backend named by kind: "file", "badger" or "sqlite".
func Open(kind, path string) (Backend, error) {
	switch strings.ToLower(kind) {
	case "", "file":
		return NewFileBackend(path), nil
	case "badger":
		return OpenBadger(path)
	case "sqlite":
		return OpenSQLite(path)
	}
	return nil, fmt.Errorf("unknown store backend %q", kind)
}

// PersistentPriceStore wraps a Backend with the validity policy. Stale data
// is still returned, with a warning.
type PersistentPriceStore struct {
	backend  Backend
	validity time.Duration
	log      zerolog.Logger
	metrics  *metrics.Metrics

	Now func() time.Time
}

func New(b Backend, validity time.Duration, log zerolog.Logger, m *metrics.Metrics) *PersistentPriceStore {
	if validity <= 0 {
		validity = DefaultValidity
	}
	return &PersistentPriceStore{
		backend:  b,
		validity: validity,
		log:      log.With().Str("component", "store").Logger(),
		metrics:  m,
	}
}

func (s *PersistentPriceStore) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Validity returns the freshness window.
func (s *PersistentPriceStore) Validity() time.Duration { return s.validity }

// Load returns the stored set, or nil when there is none or it cannot be
// read. It never fails.
func (s *PersistentPriceStore) Load(ctx context.Context) *StoredPriceSet {
	set, err := s.backend.Read(ctx)
	if errors.Is(err, ErrNotFound) {
		s.log.Debug().Msg("no stored prices")
		return nil
	}
	if err != nil {
		s.log.Error().Err(err).Msg("reading stored prices")
		return nil
	}
	if !s.Valid(set) {
		s.metrics.RecordStaleRead("store")
		s.log.Warn().
			Str("last_updated", set.LastUpdated).
			Dur("validity", s.validity).
			Msg("stored prices are stale, using them anyway")
	}
	return set
}

// Save overwrites the stored set with fresh gold and platinum prices.
func (s *PersistentPriceStore) Save(ctx context.Context, gold, platinum decimal.Decimal, currency string, source Source) (*StoredPriceSet, error) {
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if currency == "" {
		return nil, errors.New("saving prices: empty currency")
	}
	if !gold.IsPositive() || !platinum.IsPositive() {
		return nil, fmt.Errorf("saving prices: non-positive price gold=%s platinum=%s", gold, platinum)
	}
	if source == "" {
		source = SourceScheduled
	}

	now := s.now().UTC()
	set := &StoredPriceSet{
		Gold:        MetalSpotPrice{Price: gold, Timestamp: now.UnixMilli()},
		Platinum:    MetalSpotPrice{Price: platinum, Timestamp: now.UnixMilli()},
		LastUpdated: now.Format("2006-01-02T15:04:05.000Z07:00"),
		Currency:    currency,
		Source:      source,
	}
	if err := s.backend.Write(ctx, set); err != nil {
		return nil, fmt.Errorf("saving prices: %w", err)
	}
	s.log.Info().
		Str("currency", currency).
		Str("source", string(source)).
		Str("gold", gold.String()).
		Str("platinum", platinum.String()).
		Msg("stored prices")
	return set, nil
}

// Fresh reports whether a price fetched at t is inside the validity window.
func (s *PersistentPriceStore) Fresh(t time.Time) bool {
	return s.now().Sub(t) < s.validity
}

// Valid reports whether both components of set are inside the validity window.
func (s *PersistentPriceStore) Valid(set *StoredPriceSet) bool {
	if set == nil {
		return false
	}
	return s.Fresh(set.Gold.Time()) && s.Fresh(set.Platinum.Time())
}

// IsValid reports whether the currently stored set is fresh.
func (s *PersistentPriceStore) IsValid(ctx context.Context) bool {
	set, err := s.backend.Read(ctx)
	if err != nil {
		return false
	}
	return s.Valid(set)
}

func (s *PersistentPriceStore) Close() error { return s.backend.Close() }
