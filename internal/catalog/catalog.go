// Package catalog is a read model of the product catalog backed by SQLite.
package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"metalprice/internal/pricing"
)

// ErrNotFound is returned by GetProduct for an unknown id.
var ErrNotFound = errors.New("product not found")

type Repo struct{ db *sqlx.DB }

type productRow struct {
	ID           string              `db:"id"`
	MaterialType string              `db:"material_type"`
	WeightGrams  decimal.NullDecimal `db:"weight_grams"`
	StonesJSON   sql.NullString      `db:"stones_json"`
	LaborCost    decimal.Decimal     `db:"labor_cost"`
	PricingModel string              `db:"pricing_model"`
	BasePrice    decimal.NullDecimal `db:"base_price"`
}

func Open(dsn string) (*Repo, error) {
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	if err = db.Ping(); err != nil {
		db.Close()
		return nil, err
	}
	if err := ensureSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Repo{db: db}, nil
}

func ensureSchema(db *sqlx.DB) error {
	_, err := db.Exec(`
CREATE TABLE IF NOT EXISTS products(
  id TEXT PRIMARY KEY,
  material_type TEXT NOT NULL DEFAULT '',
  weight_grams TEXT,
  stones_json TEXT,
  labor_cost TEXT NOT NULL DEFAULT '0',
  pricing_model TEXT NOT NULL DEFAULT 'fixed' CHECK (pricing_model IN ('fixed','dynamic')),
  base_price TEXT,
  updated_at TEXT DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_products_material ON products(material_type);`)
	return err
}

func (r *Repo) Close() error { return r.db.Close() }

// ListProducts returns every product ordered by id.
func (r *Repo) ListProducts(ctx context.Context) ([]pricing.Product, error) {
	var rows []productRow
	if err := r.db.SelectContext(ctx, &rows, `
		SELECT id, material_type, weight_grams, stones_json, labor_cost, pricing_model, base_price
		FROM products ORDER BY id`); err != nil {
		return nil, fmt.Errorf("listing products: %w", err)
	}
	out := make([]pricing.Product, 0, len(rows))
	for _, row := range rows {
		p, err := row.product()
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func (r *Repo) GetProduct(ctx context.Context, id string) (pricing.Product, error) {
	var row productRow
	err := r.db.GetContext(ctx, &row, `
		SELECT id, material_type, weight_grams, stones_json, labor_cost, pricing_model, base_price
		FROM products WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return pricing.Product{}, ErrNotFound
	}
	if err != nil {
		return pricing.Product{}, fmt.Errorf("getting product %s: %w", id, err)
	}
	return row.product()
}

// Upsert inserts or replaces p. An empty ID is assigned a new uuid, which is
// returned.
func (r *Repo) Upsert(ctx context.Context, p pricing.Product) (string, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.PricingModel == "" {
		p.PricingModel = pricing.Fixed
	}
	stones, err := json.Marshal(p.Stones)
	if err != nil {
		return "", fmt.Errorf("encoding stones: %w", err)
	}

	_, err = r.db.NamedExecContext(ctx, `
		INSERT INTO products(id, material_type, weight_grams, stones_json, labor_cost, pricing_model, base_price, updated_at)
		VALUES (:id, :material_type, :weight_grams, :stones_json, :labor_cost, :pricing_model, :base_price, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET
		  material_type = excluded.material_type,
		  weight_grams = excluded.weight_grams,
		  stones_json = excluded.stones_json,
		  labor_cost = excluded.labor_cost,
		  pricing_model = excluded.pricing_model,
		  base_price = excluded.base_price,
		  updated_at = CURRENT_TIMESTAMP`, productRow{
		ID:           p.ID,
		MaterialType: p.MaterialType,
		WeightGrams:  p.WeightGrams,
		StonesJSON:   sql.NullString{String: string(stones), Valid: len(p.Stones) > 0},
		LaborCost:    p.LaborCost,
		PricingModel: string(p.PricingModel),
		BasePrice:    p.BasePrice,
	})
	if err != nil {
		return "", fmt.Errorf("upserting product %s: %w", p.ID, err)
	}
	return p.ID, nil
}

func (row productRow) product() (pricing.Product, error) {
	p := pricing.Product{
		ID:           row.ID,
		MaterialType: row.MaterialType,
		WeightGrams:  row.WeightGrams,
		LaborCost:    row.LaborCost,
		PricingModel: pricing.PricingModel(row.PricingModel),
		BasePrice:    row.BasePrice,
	}
	if row.StonesJSON.Valid && row.StonesJSON.String != "" {
		if err := json.Unmarshal([]byte(row.StonesJSON.String), &p.Stones); err != nil {
			return pricing.Product{}, fmt.Errorf("decoding stones for %s: %w", row.ID, err)
		}
	}
	return p, nil
}
