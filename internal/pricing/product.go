// Package pricing computes product sale prices from metal weight, gemstones
// and labor. Everything here is pure: no I/O, no shared state.
package pricing

import (
	"strings"

	"github.com/shopspring/decimal"
)

// PricingModel selects whether a product is priced from live metal data.
type PricingModel string

const (
	Fixed   PricingModel = "fixed"
	Dynamic PricingModel = "dynamic"
)

// StoneType is the gemstone family used to look up a catalog rate.
type StoneType string

const (
	Diamond  StoneType = "Diamond"
	Emerald  StoneType = "Emerald"
	Sapphire StoneType = "Sapphire"
	Ruby     StoneType = "Ruby"
	Pearl    StoneType = "Pearl"
	Other    StoneType = "Other"
)

// Normalize maps free-form stone names onto a known StoneType. Anything
// unrecognized is Other.
func (t StoneType) Normalize() StoneType {
	switch strings.ToLower(strings.TrimSpace(string(t))) {
	case "diamond":
		return Diamond
	case "emerald":
		return Emerald
	case "sapphire":
		return Sapphire
	case "ruby":
		return Ruby
	case "pearl":
		return Pearl
	}
	return Other
}

// Stone is one gemstone line on a product.
type Stone struct {
	Type         StoneType           `json:"type"`
	SizeLabel    string              `json:"sizeLabel,omitempty"`
	WeightCarats decimal.NullDecimal `json:"weightCarats"`
	Quantity     int                 `json:"quantity"`
}

// Product is the pricing-relevant subset of a catalog entry. Optional fields
// are NullDecimal so a missing weight or base price is explicit.
type Product struct {
	ID           string              `json:"id"`
	MaterialType string              `json:"materialType"`
	WeightGrams  decimal.NullDecimal `json:"weightGrams"`
	Stones       []Stone             `json:"stones"`
	LaborCost    decimal.Decimal     `json:"laborCost"`
	PricingModel PricingModel        `json:"pricingModel"`
	BasePrice    decimal.NullDecimal `json:"basePrice"`
}

// IsDynamic reports whether the product opts into live pricing.
func (p Product) IsDynamic() bool { return p.PricingModel == Dynamic }

// NeedsMetalPrice reports whether TotalPrice will use a price per gram.
func (p Product) NeedsMetalPrice() bool {
	return p.IsDynamic() && strings.TrimSpace(p.MaterialType) != "" && p.WeightGrams.Valid
}

// Fallback is the price used whenever dynamic pricing does not apply.
func (p Product) Fallback() decimal.Decimal {
	if p.BasePrice.Valid {
		return p.BasePrice.Decimal
	}
	return decimal.Zero
}
