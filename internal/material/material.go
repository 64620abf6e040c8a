// Package material turns catalog material strings into a metal plus purity,
// and groups products that share a material so each is priced once.
package material

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"metalprice/internal/pricing"
	"metalprice/internal/provider"
)

// ErrUnknownMaterial is returned when no metal can be identified.
var ErrUnknownMaterial = errors.New("unknown material")

// aliasMap normalizes the spellings catalogs use for each metal.
//
//	gold, au, xau                  -> gold
//	platinum, plat, pt, pt950, xpt -> platinum
//	silver, sterling, 925, ag, xag -> silver
var aliasMap = map[string]provider.Metal{
	"gold":     provider.Gold,
	"au":       provider.Gold,
	"xau":      provider.Gold,
	"platinum": provider.Platinum,
	"plat":     provider.Platinum,
	"pt":       provider.Platinum,
	"pt950":    provider.Platinum,
	"xpt":      provider.Platinum,
	"silver":   provider.Silver,
	"sterling": provider.Silver,
	"925":      provider.Silver,
	"ag":       provider.Silver,
	"xag":      provider.Silver,
}

var (
	tokenSplit = regexp.MustCompile(`[^a-z0-9]+`)
	karatToken = regexp.MustCompile(`^\d{1,2}k$`)
)

// Material is a parsed material string.
type Material struct {
	Type       string
	Metal      provider.Metal
	Multiplier decimal.Decimal
}

// Parse identifies the metal in materialType and its purity multiplier.
// A bare karat marking ("18k") implies gold.
func Parse(materialType string) (Material, error) {
	s := strings.ToLower(strings.TrimSpace(materialType))
	if s == "" {
		return Material{}, fmt.Errorf("%w: empty", ErrUnknownMaterial)
	}

	var metal provider.Metal
	karat := false
	for _, tok := range tokenSplit.Split(s, -1) {
		if tok == "" {
			continue
		}
		if m, ok := aliasMap[tok]; ok {
			metal = m
			break
		}
		if karatToken.MatchString(tok) {
			karat = true
		}
	}
	if metal == "" && karat {
		metal = provider.Gold
	}
	if metal == "" {
		return Material{}, fmt.Errorf("%w: %q", ErrUnknownMaterial, materialType)
	}

	return Material{
		Type:       materialType,
		Metal:      metal,
		Multiplier: pricing.PurityMultiplier(materialType),
	}, nil
}

// Group is the set of products sharing one exact material string.
// Indexes point into the slice passed to GroupByMaterial.
type Group struct {
	MaterialType string
	Indexes      []int
}

// GroupByMaterial buckets products by exact MaterialType. Groups are sorted
// by material; indexes keep input order.
func GroupByMaterial(products []pricing.Product) []Group {
	byType := make(map[string]*Group, len(products))
	for i, p := range products {
		g, ok := byType[p.MaterialType]
		if !ok {
			g = &Group{MaterialType: p.MaterialType}
			byType[p.MaterialType] = g
		}
		g.Indexes = append(g.Indexes, i)
	}

	out := make([]Group, 0, len(byType))
	for _, g := range byType {
		out = append(out, *g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MaterialType < out[j].MaterialType })
	return out
}
