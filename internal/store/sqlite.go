package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"
)

// SQLiteBackend keeps the price set in a single-row table.
type SQLiteBackend struct {
	db *sqlx.DB
}

type priceSetRow struct {
	GoldPrice     decimal.Decimal `db:"gold_price"`
	GoldTS        int64           `db:"gold_ts"`
	PlatinumPrice decimal.Decimal `db:"platinum_price"`
	PlatinumTS    int64           `db:"platinum_ts"`
	LastUpdated   string          `db:"last_updated"`
	Currency      string          `db:"currency"`
	Source        string          `db:"source"`
}

func OpenSQLite(dsn string) (*SQLiteBackend, error) {
	if dsn == "" {
		dsn = "file:metal-prices.db"
	}
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}
	if err := ensurePriceSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLiteBackend{db: db}, nil
}

func ensurePriceSchema(db *sqlx.DB) error {
	_, err := db.Exec(`
CREATE TABLE IF NOT EXISTS price_set(
  id INTEGER PRIMARY KEY CHECK (id = 1),
  gold_price TEXT NOT NULL,
  gold_ts INTEGER NOT NULL,
  platinum_price TEXT NOT NULL,
  platinum_ts INTEGER NOT NULL,
  last_updated TEXT NOT NULL,
  currency TEXT NOT NULL,
  source TEXT NOT NULL
);`)
	return err
}

func (s *SQLiteBackend) Read(ctx context.Context) (*StoredPriceSet, error) {
	var row priceSetRow
	err := s.db.GetContext(ctx, &row, `
		SELECT gold_price, gold_ts, platinum_price, platinum_ts, last_updated, currency, source
		FROM price_set WHERE id = 1`)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading price set: %w", err)
	}
	return &StoredPriceSet{
		Gold:        MetalSpotPrice{Price: row.GoldPrice, Timestamp: row.GoldTS},
		Platinum:    MetalSpotPrice{Price: row.PlatinumPrice, Timestamp: row.PlatinumTS},
		LastUpdated: row.LastUpdated,
		Currency:    row.Currency,
		Source:      Source(row.Source),
	}, nil
}

func (s *SQLiteBackend) Write(ctx context.Context, set *StoredPriceSet) error {
	row := priceSetRow{
		GoldPrice:     set.Gold.Price,
		GoldTS:        set.Gold.Timestamp,
		PlatinumPrice: set.Platinum.Price,
		PlatinumTS:    set.Platinum.Timestamp,
		LastUpdated:   set.LastUpdated,
		Currency:      set.Currency,
		Source:        string(set.Source),
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.NamedExecContext(ctx, `
		INSERT INTO price_set(id, gold_price, gold_ts, platinum_price, platinum_ts, last_updated, currency, source)
		VALUES (1, :gold_price, :gold_ts, :platinum_price, :platinum_ts, :last_updated, :currency, :source)
		ON CONFLICT(id) DO UPDATE SET
		  gold_price = excluded.gold_price,
		  gold_ts = excluded.gold_ts,
		  platinum_price = excluded.platinum_price,
		  platinum_ts = excluded.platinum_ts,
		  last_updated = excluded.last_updated,
		  currency = excluded.currency,
		  source = excluded.source`, row); err != nil {
		return fmt.Errorf("writing price set: %w", err)
	}
	return tx.Commit()
}

func (s *SQLiteBackend) Close() error { return s.db.Close() }
