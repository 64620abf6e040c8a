package pricing

import (
	"github.com/shopspring/decimal"
)

// StoneRates is the gemstone catalog: a per-carat rate per stone type and a
// per-unit rate for pearls.
type StoneRates struct {
	PerCarat  map[StoneType]decimal.Decimal
	PearlUnit decimal.Decimal
}

// DefaultStoneRates returns the built-in gemstone catalog.
func DefaultStoneRates() StoneRates {
	return StoneRates{
		PerCarat: map[StoneType]decimal.Decimal{
			Diamond:  decimal.NewFromInt(500),
			Emerald:  decimal.NewFromInt(300),
			Sapphire: decimal.NewFromInt(250),
			Ruby:     decimal.NewFromInt(350),
			Other:    decimal.NewFromInt(100),
		},
		PearlUnit: decimal.NewFromInt(50),
	}
}

// PerCaratRate returns the rate for t, falling back to the Other rate.
func (r StoneRates) PerCaratRate(t StoneType) decimal.Decimal {
	if v, ok := r.PerCarat[t.Normalize()]; ok {
		return v
	}
	return r.PerCarat[Other]
}

// Calculator holds the gemstone catalog used for stone valuation.
type Calculator struct {
	Stones StoneRates
}

// NewCalculator returns a Calculator using rates.
func NewCalculator(rates StoneRates) Calculator {
	return Calculator{Stones: rates}
}

// Default is a Calculator over DefaultStoneRates.
var Default = NewCalculator(DefaultStoneRates())

// MetalValue is weight × price per gram. A missing or non-positive weight is 0.
func MetalValue(weightGrams decimal.NullDecimal, pricePerGram decimal.Decimal) decimal.Decimal {
	if !weightGrams.Valid || !weightGrams.Decimal.IsPositive() {
		return decimal.Zero
	}
	return weightGrams.Decimal.Mul(pricePerGram)
}

// StoneValue sums the valuation of every stone line.
func (c Calculator) StoneValue(stones []Stone) decimal.Decimal {
	total := decimal.Zero
	for _, s := range stones {
		qty := decimal.NewFromInt(int64(max(s.Quantity, 1)))
		if s.Type.Normalize() == Pearl {
			total = total.Add(c.Stones.PearlUnit.Mul(qty))
			continue
		}
		if !s.WeightCarats.Valid {
			continue
		}
		total = total.Add(c.Stones.PerCaratRate(s.Type).Mul(s.WeightCarats.Decimal).Mul(qty))
	}
	return total
}

// TotalPrice returns metal + stones + labor rounded half-up to 2 decimals.
// pricePerGram must already be purity adjusted. Fixed products, and dynamic
// products lacking a material or weight, return their base price (or 0).
func (c Calculator) TotalPrice(p Product, pricePerGram decimal.Decimal) decimal.Decimal {
	if !p.NeedsMetalPrice() {
		return p.Fallback()
	}
	total := MetalValue(p.WeightGrams, pricePerGram).
		Add(c.StoneValue(p.Stones)).
		Add(p.LaborCost)
	return total.Round(2)
}
