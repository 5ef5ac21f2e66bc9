package engine

import "math"

// Default fee tier: the first $1000 of lifetime profit is free, everything
// above is charged at 3%.
const (
	DefaultFeeThresholdUSD = 1000.0
	DefaultFeeRate         = 0.03
)

// FeeTier describes the tiered lifetime-profit fee model
type FeeTier struct {
	ThresholdUSD float64 `json:"threshold_usd"`
	Rate         float64 `json:"rate"`
}

// DefaultFeeTier returns the standard tier
func DefaultFeeTier() FeeTier {
	return FeeTier{ThresholdUSD: DefaultFeeThresholdUSD, Rate: DefaultFeeRate}
}

// FeeForDelta computes the fee owed on a realized profit delta given the
// wallet's lifetime profit before the delta. Only the portion of the delta
// that lifts cumulative profit above the threshold is taxable. Non-positive
// deltas owe nothing.
func (t FeeTier) FeeForDelta(prevLifetimeProfit, delta float64) (fee, taxable float64) {
	if delta <= 0 {
		return 0, 0
	}
	if prevLifetimeProfit < 0 {
		prevLifetimeProfit = 0
	}
	taxable = math.Max(0, prevLifetimeProfit+delta-t.ThresholdUSD) -
		math.Max(0, prevLifetimeProfit-t.ThresholdUSD)
	return taxable * t.Rate, taxable
}
