package billing

import (
	"github.com/shopspring/decimal"
	"github.com/warp/condo-billing/generic"
)

// =============================================================================
// CREDIT ALLOCATOR - How much of each advance pool a bill draws
// =============================================================================

// Allocation is the decision, not the debit. It is a plain value so that a
// preview can show it without touching balances; ApplyAllocation performs
// the debit on commit.
type Allocation struct {
	DuesApplied decimal.Decimal
	UtilApplied decimal.Decimal
}

// IsZero reports whether nothing is drawn from either pool.
func (a Allocation) IsZero() bool { return a.DuesApplied.IsZero() && a.UtilApplied.IsZero() }

// Total is the sum drawn from both pools.
func (a Allocation) Total() decimal.Decimal { return a.DuesApplied.Add(a.UtilApplied) }

// Allocate draws the dues pool against association dues only, and the
// utilities pool against electric + water as one sum. Both draws are capped
// at availability and never negative.
func Allocate(availableDues, availableUtil, duesCharge, electricCharge, waterCharge decimal.Decimal) Allocation {
	return Allocation{
		DuesApplied: generic.MinZero(availableDues, duesCharge),
		UtilApplied: generic.MinZero(availableUtil, electricCharge.Add(waterCharge)),
	}
}
