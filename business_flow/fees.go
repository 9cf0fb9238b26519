package businessflow

import (
	"math"

	"github.com/meridianpay/meridian/models"
)

// FeeBreakdown is the result of applying a fee schedule to a gross
// deposit amount. All amounts are integer cents; FeeCents+NetCents
// always equals AmountCents.
type FeeBreakdown struct {
	AmountCents int64   `json:"amount_cents"`
	FeeCents    int64   `json:"fee_cents"`
	NetCents    int64   `json:"net_cents"`
	FeePercent  float64 `json:"fee_percent"`
	Tier        models.FeeTier
}

// FeeCalculator resolves the fee percent for a tier and computes the
// fee split. It is pure and safe for concurrent use.
type FeeCalculator struct {
	tierPercents map[models.FeeTier]float64
}

// DefaultTierPercents is the fallback schedule when no configuration
// overrides are supplied.
var DefaultTierPercents = map[models.FeeTier]float64{
	models.FeeTierStandard: 2.0,
	models.FeeTierSilver:   1.5,
	models.FeeTierGold:     1.0,
	models.FeeTierVIP:      0.5,
}

func NewFeeCalculator(tierPercents map[models.FeeTier]float64) *FeeCalculator {
	if len(tierPercents) == 0 {
		tierPercents = DefaultTierPercents
	}
	resolved := make(map[models.FeeTier]float64, len(tierPercents))
	for tier, percent := range tierPercents {
		resolved[tier] = percent
	}
	return &FeeCalculator{tierPercents: resolved}
}

// PercentFor returns the fee percent for a tier, falling back to the
// standard tier for unknown values.
func (c *FeeCalculator) PercentFor(tier models.FeeTier) float64 {
	if percent, ok := c.tierPercents[tier]; ok {
		return percent
	}
	return c.tierPercents[models.FeeTierStandard]
}

// Calculate splits the gross amount into fee and net portions. The fee
// is rounded half-up to the nearest cent and the net is derived by
// subtraction so the parts always sum back to the gross.
func (c *FeeCalculator) Calculate(amountCents int64, tier models.FeeTier) (*FeeBreakdown, error) {
	percent := c.PercentFor(tier)
	return CalculateFee(amountCents, percent, tier)
}

// CalculateFee computes the fee split for an explicit percent. It
// rejects non-positive amounts and percents outside [0, 100].
func CalculateFee(amountCents int64, percent float64, tier models.FeeTier) (*FeeBreakdown, error) {
	if amountCents <= 0 {
		return nil, ErrInvalidAmount
	}
	if percent < 0 || percent > 100 || math.IsNaN(percent) {
		return nil, ErrInvalidFeePercent
	}

	// Work in basis points so the rounding is exact integer arithmetic.
	basisPoints := int64(math.Round(percent * 100))
	feeCents := (amountCents*basisPoints + 5000) / 10000

	return &FeeBreakdown{
		AmountCents: amountCents,
		FeeCents:    feeCents,
		NetCents:    amountCents - feeCents,
		FeePercent:  percent,
		Tier:        tier,
	}, nil
}
