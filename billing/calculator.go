/*
calculator.go - Electric and tiered water charges

ELECTRIC:
  amount = max(consumption x rate, minimum charge)

WATER (7 tiers, schedule chosen by unit type):
  Tiers 1-3 are flat-fee bands. A unit whose consumption lands in one of
  them pays that tier's fee once, however far into the band it is.

  Tiers 4-7 are per-cubic-meter bands stacked on top of tier 3's fee:

    amount = fee(tier 3)
           + sum over bands 4..k of (cu.m inside the band x band rate)

  where k is the occupied tier. Tier 7 is open-ended.

  Example (residential, tier 3 max 30 @ 350 flat, tier 4 max 40 @ 45/cu.m):
    consumption 34 -> 350 + 4 x 45 = 530

TIER STRATEGY:
  Two behaviours are not settled by the rate sheet and are configurable:
  - Boundary: is consumption == tier max inside that tier (inclusive) or
    already in the next tier (exclusive)?
  - Zero consumption: free (no_charge) or tier 1's fee (minimum)?

  Every result carries a per-tier breakdown for audit.
*/
package billing

import (
	"github.com/shopspring/decimal"
	"github.com/warp/condo-billing/generic"
)

// =============================================================================
// TIER STRATEGY
// =============================================================================

type BoundaryMode string

const (
	BoundaryInclusive BoundaryMode = "inclusive"
	BoundaryExclusive BoundaryMode = "exclusive"
)

type ZeroConsumptionMode string

const (
	ZeroNoCharge ZeroConsumptionMode = "no_charge"
	ZeroMinimum  ZeroConsumptionMode = "minimum"
)

// TierStrategy pins the ambiguous tier semantics.
type TierStrategy struct {
	Boundary BoundaryMode
	Zero     ZeroConsumptionMode
}

// DefaultTierStrategy is inclusive boundaries and a free zero reading.
func DefaultTierStrategy() TierStrategy {
	return TierStrategy{Boundary: BoundaryInclusive, Zero: ZeroNoCharge}
}

// ParseTierStrategy builds a strategy from config strings. Empty means default.
func ParseTierStrategy(boundary, zero string) (TierStrategy, error) {
	s := DefaultTierStrategy()
	switch BoundaryMode(lower(boundary)) {
	case "":
	case BoundaryInclusive, BoundaryExclusive:
		s.Boundary = BoundaryMode(lower(boundary))
	default:
		return s, generic.NewValidationError("water.boundary", "unknown boundary mode %q", boundary)
	}
	switch ZeroConsumptionMode(lower(zero)) {
	case "":
	case ZeroNoCharge, ZeroMinimum:
		s.Zero = ZeroConsumptionMode(lower(zero))
	default:
		return s, generic.NewValidationError("water.zero_consumption", "unknown zero-consumption mode %q", zero)
	}
	return s, nil
}

// within reports whether consumption c still belongs to a tier bounded by max.
func (s TierStrategy) within(c, max decimal.Decimal) bool {
	if s.Boundary == BoundaryExclusive {
		return c.LessThan(max)
	}
	return c.LessThanOrEqual(max)
}

// =============================================================================
// ELECTRIC
// =============================================================================

// ComputeElectric returns max(consumption x rate, minCharge), rounded.
func ComputeElectric(consumption, rate, minCharge decimal.Decimal) decimal.Decimal {
	return generic.Round(decimal.Max(consumption.Mul(rate), minCharge))
}

// =============================================================================
// WATER
// =============================================================================

// TierLine is the consumption and charge attributed to one tier.
type TierLine struct {
	Tier        int
	Flat        bool
	Consumption decimal.Decimal
	Rate        decimal.Decimal
	Amount      decimal.Decimal
}

// WaterCharge is the itemized result of a water computation.
type WaterCharge struct {
	Consumption decimal.Decimal
	Tier        int // occupied tier, 0 when nothing was charged
	Amount      decimal.Decimal
	Lines       []TierLine
}

// ComputeWater prices consumption against the unit type's schedule.
func ComputeWater(consumption decimal.Decimal, unitType UnitType, rates RateConfiguration, strategy TierStrategy) (WaterCharge, error) {
	return ComputeWaterSchedule(consumption, rates.WaterSchedule(unitType), strategy)
}

// ComputeWaterSchedule prices consumption against one schedule.
func ComputeWaterSchedule(consumption decimal.Decimal, schedule WaterTierSchedule, strategy TierStrategy) (WaterCharge, error) {
	if consumption.IsNegative() {
		return WaterCharge{}, generic.NewValidationError("consumption", "must be >= 0, got %s", consumption)
	}
	if err := schedule.Validate("water"); err != nil {
		return WaterCharge{}, &generic.ComputationError{Op: "water tiers", Err: err}
	}

	result := WaterCharge{Consumption: consumption, Amount: decimal.Zero}

	if consumption.IsZero() {
		if strategy.Zero == ZeroMinimum {
			fee := generic.Round(schedule.Tiers[0].Rate)
			result.Tier = 1
			result.Amount = fee
			result.Lines = []TierLine{{Tier: 1, Flat: true, Consumption: decimal.Zero, Rate: fee, Amount: fee}}
		}
		return result, nil
	}

	occupied := occupiedTier(consumption, schedule, strategy)
	result.Tier = occupied + 1

	// Flat band: one fee covers everything.
	if occupied < FlatTierCount {
		fee := generic.Round(schedule.Tiers[occupied].Rate)
		result.Amount = fee
		result.Lines = []TierLine{{
			Tier: occupied + 1, Flat: true, Consumption: consumption, Rate: fee, Amount: fee,
		}}
		return result, nil
	}

	// Per-unit bands stack on top of the last flat fee.
	flatFee := generic.Round(schedule.Tiers[FlatTierCount-1].Rate)
	flatMax, _ := schedule.upperBound(FlatTierCount - 1)
	result.Lines = append(result.Lines, TierLine{
		Tier: FlatTierCount, Flat: true, Consumption: flatMax, Rate: flatFee, Amount: flatFee,
	})
	total := flatFee

	for i := FlatTierCount; i <= occupied; i++ {
		lo := schedule.lowerBound(i)
		hi := consumption
		if max, bounded := schedule.upperBound(i); bounded && max.LessThan(consumption) {
			hi = max
		}
		units := generic.NonNegative(hi.Sub(lo))
		rate := schedule.Tiers[i].Rate
		amount := generic.Round(units.Mul(rate))
		result.Lines = append(result.Lines, TierLine{
			Tier: i + 1, Consumption: units, Rate: rate, Amount: amount,
		})
		total = total.Add(amount)
	}

	result.Amount = total
	return result, nil
}

// occupiedTier returns the zero-based tier index consumption falls in.
func occupiedTier(consumption decimal.Decimal, schedule WaterTierSchedule, strategy TierStrategy) int {
	for i := 0; i < WaterTierCount-1; i++ {
		max, _ := schedule.upperBound(i)
		if strategy.within(consumption, max) {
			return i
		}
	}
	return WaterTierCount - 1
}
