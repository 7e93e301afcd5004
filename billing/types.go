/*
Package billing implements the condominium billing computation and
generation engine.

PURPOSE:
  Turns a unit's metered consumption, the tenant's rate configuration,
  one-time adjustments, prepaid advance balances and its prior unpaid bills
  into one finalized bill per billing month, and commits a tenant's batch of
  bills exactly once per month.

PIPELINE (leaf first):
  rates.go      RateConfiguration + 7-tier water schedules
  calculator.go Electric (flat with minimum) and water (tiered) charges
  penalty.go    Cumulative compounding penalty over prior unpaid bills
  allocator.go  Draws from the dues / utilities advance pools
  assembler.go  Composes the above into a BillPreview
  numbering.go  Tenant-wide sequential bill numbers
  advance.go    Applies an allocation as ledger debits
  generator.go  Preview and transactional Commit

SEE ALSO:
  - generic/: money, months, errors, ledger entries
  - store/sqlite: persistence
*/
package billing

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/condo-billing/generic"
)

// =============================================================================
// TENANT + UNIT
// =============================================================================

// Tenant is one condominium corporation.
type Tenant struct {
	ID         generic.TenantID
	Name       string
	BillPrefix string
	CreatedAt  time.Time
}

type UnitType string

const (
	UnitResidential UnitType = "RESIDENTIAL"
	UnitCommercial  UnitType = "COMMERCIAL"
)

// ParseUnitType accepts either case.
func ParseUnitType(s string) (UnitType, error) {
	switch UnitType(upper(s)) {
	case UnitResidential:
		return UnitResidential, nil
	case UnitCommercial:
		return UnitCommercial, nil
	}
	return "", generic.NewValidationError("unit_type", "unknown unit type %q", s)
}

// Unit is a billable condominium unit.
type Unit struct {
	ID          generic.UnitID
	TenantID    generic.TenantID
	UnitNumber  string
	Floor       int
	OwnerName   string
	Type        UnitType
	Area        decimal.Decimal // sq.m, drives association dues
	ParkingArea decimal.Decimal // sq.m, drives parking fee
	Active      bool
}

// =============================================================================
// READINGS + ADJUSTMENTS
// =============================================================================

type ReadingKind string

const (
	ReadingElectric ReadingKind = "ELECTRIC"
	ReadingWater    ReadingKind = "WATER"
)

// Reading is a meter reading taken for ReadingMonth, which is the month
// before the bill that consumes it.
type Reading struct {
	ID           string
	TenantID     generic.TenantID
	UnitID       generic.UnitID
	Kind         ReadingKind
	ReadingMonth generic.Month
	Previous     decimal.Decimal
	Present      decimal.Decimal
}

// Consumption returns present - previous. A present value below the
// previous one is a meter-entry mistake and is rejected, not clamped.
func (r Reading) Consumption() (decimal.Decimal, error) {
	c := r.Present.Sub(r.Previous)
	if c.IsNegative() {
		return decimal.Zero, generic.NewValidationError("reading",
			"%s reading for unit %s in %s goes backwards (previous %s, present %s)",
			lower(string(r.Kind)), r.UnitID, r.ReadingMonth, r.Previous, r.Present)
	}
	return c, nil
}

// Adjustment holds the one-time charges and discounts for a unit's bill.
// At most one exists per (tenant, unit, billing month).
type Adjustment struct {
	ID           string
	TenantID     generic.TenantID
	UnitID       generic.UnitID
	BillingMonth generic.Month
	SpAssessment decimal.Decimal
	Discounts    decimal.Decimal
	Remarks      string
}

// =============================================================================
// ADVANCE BALANCE
// =============================================================================

const (
	PoolDues      generic.Pool = "dues"
	PoolUtilities generic.Pool = "utilities"
)

// AdvanceBalance is a unit's prepaid credit, split into two pools.
type AdvanceBalance struct {
	UnitID           generic.UnitID
	AdvanceDues      decimal.Decimal
	AdvanceUtilities decimal.Decimal
}

// =============================================================================
// BILL
// =============================================================================

type BillStatus string

const (
	StatusUnpaid  BillStatus = "UNPAID"
	StatusPartial BillStatus = "PARTIAL"
	StatusPaid    BillStatus = "PAID"
)

// Outstanding reports whether the bill still carries a balance.
func (s BillStatus) Outstanding() bool { return s == StatusUnpaid || s == StatusPartial }

type BillType string

const (
	BillRegular        BillType = "REGULAR"
	BillOpeningBalance BillType = "OPENING_BALANCE"
)

// Bill is the ledger entity. After creation only payments (external) move
// PaidAmount, Balance and Status.
type Bill struct {
	ID            generic.BillID
	TenantID      generic.TenantID
	UnitID        generic.UnitID
	BillNumber    string
	BillingMonth  generic.Month
	PeriodStart   time.Time
	PeriodEnd     time.Time
	StatementDate time.Time
	DueDate       time.Time

	ElectricConsumption decimal.Decimal
	WaterConsumption    decimal.Decimal

	Electric           decimal.Decimal
	Water              decimal.Decimal
	AssociationDues    decimal.Decimal
	Parking            decimal.Decimal
	SpAssessment       decimal.Decimal
	Discounts          decimal.Decimal
	AdvanceDuesApplied decimal.Decimal
	AdvanceUtilApplied decimal.Decimal
	PreviousBalance    decimal.Decimal
	Penalty            decimal.Decimal
	TotalAmount        decimal.Decimal
	PaidAmount         decimal.Decimal
	Balance            decimal.Decimal

	Status    BillStatus
	Type      BillType
	CreatedBy string
	CreatedAt time.Time
}

// CurrentCharges is electric + water + dues + parking + special assessment.
func (b Bill) CurrentCharges() decimal.Decimal {
	return generic.Sum(b.Electric, b.Water, b.AssociationDues, b.Parking, b.SpAssessment)
}

// ExpectedTotal recomputes the total from the stored components.
func (b Bill) ExpectedTotal() decimal.Decimal {
	return b.CurrentCharges().
		Add(b.PreviousBalance).
		Add(b.Penalty).
		Sub(b.Discounts).
		Sub(b.AdvanceDuesApplied).
		Sub(b.AdvanceUtilApplied)
}

// CheckTotals verifies the total and balance invariants of a new bill.
func (b Bill) CheckTotals() error {
	if !b.TotalAmount.Equal(b.ExpectedTotal()) {
		return &generic.ComputationError{
			Op:  "bill " + b.BillNumber,
			Err: errorf("total %s does not match components %s", b.TotalAmount, b.ExpectedTotal()),
		}
	}
	if !b.Balance.Equal(b.TotalAmount.Sub(b.PaidAmount)) {
		return &generic.ComputationError{
			Op:  "bill " + b.BillNumber,
			Err: errorf("balance %s does not equal total %s minus paid %s", b.Balance, b.TotalAmount, b.PaidAmount),
		}
	}
	return nil
}

// Payment is read here only to warn when none were recorded.
type Payment struct {
	ID       string
	TenantID generic.TenantID
	UnitID   generic.UnitID
	BillID   generic.BillID
	Amount   decimal.Decimal
	PaidAt   time.Time
}
