/*
Package generic provides the domain-agnostic primitives of the billing engine.

PURPOSE:
  Money arithmetic, calendar months, billing-cycle date math, the error
  taxonomy and the append-only ledger model live here. Nothing in this
  package knows about condominiums, water tiers or penalties; the billing
  package builds those on top.

KEY CONCEPTS IN THIS FILE (types.go):
  - Money helpers: decimal.Decimal wrappers for rounding and clamping
  - Identifiers: type-safe tenant/unit/bill IDs

DESIGN PRINCIPLES:
  1. Precision: all amounts are decimal.Decimal, never float64
  2. Rounding happens once, at the edge of a computed charge (2 places)
  3. Type Safety: strong typing for IDs prevents mixing tenant/unit IDs

USAGE:
  fee := generic.Round(area.Mul(rate))
  applied := generic.MinZero(available, charge)

SEE ALSO:
  - time.go: Month
  - period.go: BillingCycle and BillingPeriod
  - errors.go: Validation/Conflict/NotFound/Computation errors
  - ledger.go: Append-only ledger entries for credit pools
*/
package generic

import (
	"github.com/shopspring/decimal"
)

// =============================================================================
// MONEY - decimal helpers
// =============================================================================

// MoneyPlaces is the number of decimal places money is rounded to.
const MoneyPlaces = 2

// Round rounds an amount to MoneyPlaces using half-away-from-zero.
func Round(d decimal.Decimal) decimal.Decimal { return d.Round(MoneyPlaces) }

// NonNegative returns d, or zero when d is negative.
func NonNegative(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}

// MinZero returns min(a, b) clamped at zero.
func MinZero(a, b decimal.Decimal) decimal.Decimal {
	return NonNegative(decimal.Min(a, b))
}

// Sum adds all values.
func Sum(values ...decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, v := range values {
		total = total.Add(v)
	}
	return total
}

// MustParseDecimal parses s, returning zero on malformed input.
// Only use for values that were written by this system.
func MustParseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// =============================================================================
// IDENTIFIERS
// =============================================================================

type TenantID string
type UnitID string
type BillID string
