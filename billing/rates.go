package billing

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/condo-billing/generic"
)

// =============================================================================
// RATE CONFIGURATION - Tenant-wide billing constants
// =============================================================================

// WaterTierCount is the fixed number of tiers in a water schedule.
const WaterTierCount = 7

// FlatTierCount is how many leading tiers are flat-fee bands.
const FlatTierCount = 3

// WaterTier is one band of a water schedule. MaxConsumption is nil only on
// the open-ended last tier.
//
// Tiers 1-3: Rate is a flat fee for the whole band.
// Tiers 4-7: Rate is per cubic meter inside the band.
type WaterTier struct {
	MaxConsumption *decimal.Decimal
	Rate           decimal.Decimal
}

// WaterTierSchedule is exactly seven tiers, ordered.
type WaterTierSchedule struct {
	Tiers [WaterTierCount]WaterTier
}

// Validate checks boundaries are strictly increasing and rates non-negative.
func (s WaterTierSchedule) Validate(name string) error {
	prev := decimal.Zero
	for i, tier := range s.Tiers {
		field := name + ".tier" + itoa(i+1)
		if tier.Rate.IsNegative() {
			return generic.NewValidationError(field, "rate must be >= 0, got %s", tier.Rate)
		}
		last := i == WaterTierCount-1
		if last {
			if tier.MaxConsumption != nil {
				return generic.NewValidationError(field, "the last tier is open-ended and takes no max_consumption")
			}
			continue
		}
		if tier.MaxConsumption == nil {
			return generic.NewValidationError(field, "max_consumption is required")
		}
		if !tier.MaxConsumption.GreaterThan(prev) {
			return generic.NewValidationError(field, "max_consumption %s must be greater than %s", *tier.MaxConsumption, prev)
		}
		prev = *tier.MaxConsumption
	}
	return nil
}

// upperBound returns tier i's max, with the last tier unbounded.
func (s WaterTierSchedule) upperBound(i int) (decimal.Decimal, bool) {
	if m := s.Tiers[i].MaxConsumption; m != nil {
		return *m, true
	}
	return decimal.Zero, false
}

// lowerBound returns the consumption at which tier i's band starts.
func (s WaterTierSchedule) lowerBound(i int) decimal.Decimal {
	if i == 0 {
		return decimal.Zero
	}
	return *s.Tiers[i-1].MaxConsumption
}

// RateConfiguration is the active snapshot of a tenant's billing constants.
type RateConfiguration struct {
	TenantID            generic.TenantID
	ElectricRate        decimal.Decimal
	ElectricMinCharge   decimal.Decimal
	AssociationDuesRate decimal.Decimal
	ParkingRate         decimal.Decimal
	PenaltyRate         decimal.Decimal // fraction, 0.10 = 10% per month
	WaterResidential    WaterTierSchedule
	WaterCommercial     WaterTierSchedule
	Version             int
	UpdatedAt           time.Time
}

// Validate enforces non-negative rates and well-formed schedules.
func (c RateConfiguration) Validate() error {
	for field, v := range map[string]decimal.Decimal{
		"electric_rate":         c.ElectricRate,
		"electric_min_charge":   c.ElectricMinCharge,
		"association_dues_rate": c.AssociationDuesRate,
		"parking_rate":          c.ParkingRate,
		"penalty_rate":          c.PenaltyRate,
	} {
		if v.IsNegative() {
			return generic.NewValidationError(field, "must be >= 0, got %s", v)
		}
	}
	if c.PenaltyRate.GreaterThan(decimal.NewFromInt(1)) {
		return generic.NewValidationError("penalty_rate", "is a fraction and must be <= 1, got %s", c.PenaltyRate)
	}
	if err := c.WaterResidential.Validate("water_residential"); err != nil {
		return err
	}
	return c.WaterCommercial.Validate("water_commercial")
}

// WaterSchedule selects the schedule for a unit type.
func (c RateConfiguration) WaterSchedule(t UnitType) WaterTierSchedule {
	if t == UnitCommercial {
		return c.WaterCommercial
	}
	return c.WaterResidential
}

// DuesFor returns area x association dues rate, rounded.
func (c RateConfiguration) DuesFor(u Unit) decimal.Decimal {
	return generic.Round(u.Area.Mul(c.AssociationDuesRate))
}

// ParkingFor returns parking area x parking rate, rounded.
func (c RateConfiguration) ParkingFor(u Unit) decimal.Decimal {
	return generic.Round(u.ParkingArea.Mul(c.ParkingRate))
}
