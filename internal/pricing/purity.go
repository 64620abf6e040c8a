package pricing

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// PurityTable maps karat labels to the fraction of fine metal.
var PurityTable = map[string]decimal.Decimal{
	"24k":      decimal.NewFromInt(1),
	"22k":      decimal.RequireFromString("0.9167"),
	"18k":      decimal.RequireFromString("0.75"),
	"14k":      decimal.RequireFromString("0.5833"),
	"10k":      decimal.RequireFromString("0.4167"),
	"Platinum": decimal.NewFromInt(1),
}

var (
	karatPattern = regexp.MustCompile(`(?i)(\d{1,2})\s*k\b`)
	sterlingMark = regexp.MustCompile(`\b925\b`)
	sterling     = decimal.RequireFromString("0.925")
	one          = decimal.NewFromInt(1)
)

// PurityMultiplier returns the purity fraction for a material string such as
// "22k Gold". Platinum is always 1.0; sterling (or a 925 mark) is 0.925,
// other silver 1.0. Gold without a karat marking is treated
// as 24k. Karats missing from PurityTable are derived as NN/24.
func PurityMultiplier(materialType string) decimal.Decimal {
	lower := strings.ToLower(materialType)
	switch {
	case strings.Contains(lower, "platinum"):
		return PurityTable["Platinum"]
	case strings.Contains(lower, "sterling") || sterlingMark.MatchString(lower):
		return sterling
	case strings.Contains(lower, "silver"):
		return one
	}

	m := karatPattern.FindStringSubmatch(materialType)
	if m == nil {
		return PurityTable["24k"]
	}
	if v, ok := PurityTable[m[1]+"k"]; ok {
		return v
	}
	k, err := strconv.Atoi(m[1])
	if err != nil || k <= 0 || k > 24 {
		return PurityTable["24k"]
	}
	return decimal.NewFromInt(int64(k)).Div(decimal.NewFromInt(24)).Round(4)
}

// AdjustedPricePerGram scales a fine-metal price to the purity of materialType.
func AdjustedPricePerGram(base decimal.Decimal, materialType string) decimal.Decimal {
	return base.Mul(PurityMultiplier(materialType))
}
