package billing_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/condo-billing/billing"
	"github.com/warp/condo-billing/generic"
)

// =============================================================================
// ALLOCATOR
// =============================================================================

func TestAllocate_CapsEachPoolAtItsCharge(t *testing.T) {
	tests := []struct {
		name               string
		availDues, availUt string
		wantDues, wantUtil string
	}{
		{"pools smaller than charges", "1000", "500", "1000", "500"},
		{"pools larger than charges", "2000", "1000", "1250", "700"},
		{"empty pools", "0", "0", "0", "0"},
		{"negative pool draws nothing", "-10", "-5", "0", "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := billing.Allocate(d(tt.availDues), d(tt.availUt), d("1250"), d("300"), d("400"))
			assert.True(t, d(tt.wantDues).Equal(got.DuesApplied), "dues %s", got.DuesApplied)
			assert.True(t, d(tt.wantUtil).Equal(got.UtilApplied), "util %s", got.UtilApplied)
		})
	}
}

func TestAllocate_DuesPoolNeverCoversUtilities(t *testing.T) {
	got := billing.Allocate(d("5000"), decimal.Zero, d("1250"), d("300"), d("400"))

	assert.True(t, d("1250").Equal(got.DuesApplied))
	assert.True(t, got.UtilApplied.IsZero())
	assert.True(t, d("1250").Equal(got.Total()))
	assert.False(t, got.IsZero())
}

// =============================================================================
// ASSEMBLER
// =============================================================================

func fullInput() billing.AssembleInput {
	unit := billing.Unit{
		ID: "u1", TenantID: "t1", UnitNumber: "101", Floor: 1,
		Type: billing.UnitResidential, Area: d("50"), ParkingArea: d("12.5"), Active: true,
	}
	return billing.AssembleInput{
		Unit: unit,
		Electric: &billing.Reading{
			UnitID: "u1", Kind: billing.ReadingElectric, ReadingMonth: feb2025,
			Previous: d("1000"), Present: d("1100"),
		},
		Water: &billing.Reading{
			UnitID: "u1", Kind: billing.ReadingWater, ReadingMonth: feb2025,
			Previous: d("500"), Present: d("534"),
		},
		Adjustment: &billing.Adjustment{UnitID: "u1", BillingMonth: mar2025, SpAssessment: d("500"), Discounts: d("200")},
		Advance:    &billing.AdvanceBalance{UnitID: "u1", AdvanceDues: d("1000"), AdvanceUtilities: d("500")},
		PriorBills: []billing.Bill{
			unpaidBill("u1", "SOA-202501-0001", jan2025, "1000"),
			unpaidBill("u1", "SOA-202502-0002", feb2025, "500"),
		},
		Rates:    testRates("t1"),
		Period:   generic.DefaultBillingCycle().PeriodFor(mar2025),
		Strategy: billing.DefaultTierStrategy(),
	}
}

func TestAssembleBill_ComposesEveryComponent(t *testing.T) {
	// GIVEN: a unit with readings, an adjustment, advances and two unpaid bills
	// WHEN: assembling March
	// THEN: current charges 4780, total 4780 + 1500 + 165 - 200 - 1000 - 500

	p, err := billing.AssembleBill(fullInput())
	require.NoError(t, err)

	assert.True(t, d("1250").Equal(p.Electric), "electric %s", p.Electric)
	assert.True(t, d("530").Equal(p.Water.Amount), "water %s", p.Water.Amount)
	assert.True(t, d("1250").Equal(p.AssociationDues))
	assert.True(t, d("1250").Equal(p.Parking))
	assert.True(t, d("500").Equal(p.SpAssessment))
	assert.True(t, d("200").Equal(p.Discounts))
	assert.True(t, d("1500").Equal(p.PreviousBalance))
	assert.True(t, d("165").Equal(p.Penalty.Total))
	assert.True(t, d("1000").Equal(p.Allocation.DuesApplied))
	assert.True(t, d("500").Equal(p.Allocation.UtilApplied))
	assert.True(t, d("4780").Equal(p.CurrentCharges), "current %s", p.CurrentCharges)
	assert.True(t, d("4745").Equal(p.Total), "total %s", p.Total)
	assert.Empty(t, p.Warnings)
}

func TestAssembleBill_MissingReadingsWarnButDoNotBlock(t *testing.T) {
	in := fullInput()
	in.Electric = nil
	in.Water = nil

	p, err := billing.AssembleBill(in)
	require.NoError(t, err)

	assert.Equal(t, []string{billing.WarnMissingElectric, billing.WarnMissingWater}, p.Warnings)
	assert.True(t, p.ElectricConsumption.IsZero())
	assert.True(t, d("300").Equal(p.Electric), "minimum charge still applies")
	assert.True(t, p.Water.Amount.IsZero())
}

func TestAssembleBill_NoAdjustmentOrAdvanceDefaultsToZero(t *testing.T) {
	in := fullInput()
	in.Adjustment = nil
	in.Advance = nil
	in.PriorBills = nil

	p, err := billing.AssembleBill(in)
	require.NoError(t, err)

	assert.True(t, p.SpAssessment.IsZero())
	assert.True(t, p.Discounts.IsZero())
	assert.True(t, p.Allocation.IsZero())
	assert.True(t, p.PreviousBalance.IsZero())
	assert.True(t, p.Penalty.Total.IsZero())
	assert.True(t, p.Total.Equal(p.CurrentCharges))
}

func TestAssembleBill_BackwardsReadingIsRejected(t *testing.T) {
	in := fullInput()
	in.Water.Present = d("499")

	_, err := billing.AssembleBill(in)
	require.Error(t, err)
	assert.True(t, generic.IsClientError(err))
}

func TestAssembleBill_IsRepeatable(t *testing.T) {
	in := fullInput()

	first, err := billing.AssembleBill(in)
	require.NoError(t, err)
	second, err := billing.AssembleBill(in)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.True(t, d("1000").Equal(in.Advance.AdvanceDues), "input balance untouched")
}

func TestBillPreview_ToBill(t *testing.T) {
	p, err := billing.AssembleBill(fullInput())
	require.NoError(t, err)

	now := time.Date(2025, time.March, 27, 9, 0, 0, 0, time.UTC)
	bill := p.ToBill("SOA-202503-0003", "admin", now)

	assert.NotEmpty(t, bill.ID)
	assert.Equal(t, "SOA-202503-0003", bill.BillNumber)
	assert.Equal(t, mar2025, bill.BillingMonth)
	assert.Equal(t, p.Period.DueDate, bill.DueDate)
	assert.Equal(t, billing.StatusUnpaid, bill.Status)
	assert.Equal(t, billing.BillRegular, bill.Type)
	assert.True(t, bill.PaidAmount.IsZero())
	assert.True(t, bill.Balance.Equal(bill.TotalAmount))
	assert.True(t, d("34").Equal(bill.WaterConsumption))
	require.NoError(t, bill.CheckTotals())

	bill.TotalAmount = bill.TotalAmount.Add(d("0.01"))
	err = bill.CheckTotals()
	require.Error(t, err)
	assert.True(t, generic.IsComputation(err))
}
