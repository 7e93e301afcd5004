package billing

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/warp/condo-billing/generic"
)

// =============================================================================
// BILL ASSEMBLER - One unit, one month, no side effects
// =============================================================================

const (
	WarnMissingElectric = "Missing electric meter reading"
	WarnMissingWater    = "Missing water meter reading"
)

// AssembleInput is everything the assembler needs for one unit. Readings,
// adjustment and advance balance are optional.
type AssembleInput struct {
	Unit       Unit
	Electric   *Reading
	Water      *Reading
	Adjustment *Adjustment
	Advance    *AdvanceBalance
	PriorBills []Bill
	Rates      RateConfiguration
	Period     generic.BillingPeriod
	Strategy   TierStrategy
}

// BillPreview is the fully itemized, not yet numbered bill for one unit.
type BillPreview struct {
	Unit   Unit
	Period generic.BillingPeriod

	ElectricConsumption decimal.Decimal
	Electric            decimal.Decimal
	Water               WaterCharge
	AssociationDues     decimal.Decimal
	Parking             decimal.Decimal
	SpAssessment        decimal.Decimal
	Discounts           decimal.Decimal
	PreviousBalance     decimal.Decimal
	Penalty             PenaltyResult
	Allocation          Allocation
	CurrentCharges      decimal.Decimal
	Total               decimal.Decimal

	Warnings []string
}

// AssembleBill computes a unit's bill for in.Period. It never mutates its
// inputs and is safe to call any number of times.
func AssembleBill(in AssembleInput) (BillPreview, error) {
	unit := in.Unit
	p := BillPreview{
		Unit:         unit,
		Period:       in.Period,
		SpAssessment: decimal.Zero,
		Discounts:    decimal.Zero,
	}

	electricUse, warn, err := consumptionOf(in.Electric, WarnMissingElectric)
	if err != nil {
		return BillPreview{}, err
	}
	p.addWarning(warn)
	p.ElectricConsumption = electricUse
	p.Electric = ComputeElectric(electricUse, in.Rates.ElectricRate, in.Rates.ElectricMinCharge)

	waterUse, warn, err := consumptionOf(in.Water, WarnMissingWater)
	if err != nil {
		return BillPreview{}, err
	}
	p.addWarning(warn)
	p.Water, err = ComputeWater(waterUse, unit.Type, in.Rates, in.Strategy)
	if err != nil {
		return BillPreview{}, err
	}

	p.AssociationDues = in.Rates.DuesFor(unit)
	p.Parking = in.Rates.ParkingFor(unit)

	if adj := in.Adjustment; adj != nil {
		p.SpAssessment = generic.Round(adj.SpAssessment)
		p.Discounts = generic.Round(adj.Discounts)
	}

	prior := OutstandingBefore(in.PriorBills, in.Period.Month)
	p.PreviousBalance = decimal.Zero
	for _, b := range prior {
		p.PreviousBalance = p.PreviousBalance.Add(b.Balance)
	}
	p.Penalty = AccruePenalty(prior, in.Period.Month, in.Rates.PenaltyRate, ChargeFallback{
		Dues:    p.AssociationDues,
		Parking: p.Parking,
	})

	availDues, availUtil := decimal.Zero, decimal.Zero
	if adv := in.Advance; adv != nil {
		availDues, availUtil = adv.AdvanceDues, adv.AdvanceUtilities
	}
	p.Allocation = Allocate(availDues, availUtil, p.AssociationDues, p.Electric, p.Water.Amount)

	p.CurrentCharges = generic.Sum(p.Electric, p.Water.Amount, p.AssociationDues, p.Parking, p.SpAssessment)
	p.Total = p.CurrentCharges.
		Add(p.PreviousBalance).
		Add(p.Penalty.Total).
		Sub(p.Discounts).
		Sub(p.Allocation.DuesApplied).
		Sub(p.Allocation.UtilApplied)

	return p, nil
}

func consumptionOf(r *Reading, missing string) (decimal.Decimal, string, error) {
	if r == nil {
		return decimal.Zero, missing, nil
	}
	c, err := r.Consumption()
	if err != nil {
		return decimal.Zero, "", err
	}
	return c, "", nil
}

func (p *BillPreview) addWarning(w string) {
	if w != "" {
		p.Warnings = append(p.Warnings, w)
	}
}

// ToBill turns the preview into a persisted-shape Bill with a fresh ID.
func (p BillPreview) ToBill(number, createdBy string, now time.Time) Bill {
	return Bill{
		ID:                  generic.BillID(uuid.NewString()),
		TenantID:            p.Unit.TenantID,
		UnitID:              p.Unit.ID,
		BillNumber:          number,
		BillingMonth:        p.Period.Month,
		PeriodStart:         p.Period.PeriodFrom,
		PeriodEnd:           p.Period.PeriodTo,
		StatementDate:       p.Period.StatementDate,
		DueDate:             p.Period.DueDate,
		ElectricConsumption: p.ElectricConsumption,
		WaterConsumption:    p.Water.Consumption,
		Electric:            p.Electric,
		Water:               p.Water.Amount,
		AssociationDues:     p.AssociationDues,
		Parking:             p.Parking,
		SpAssessment:        p.SpAssessment,
		Discounts:           p.Discounts,
		AdvanceDuesApplied:  p.Allocation.DuesApplied,
		AdvanceUtilApplied:  p.Allocation.UtilApplied,
		PreviousBalance:     p.PreviousBalance,
		Penalty:             p.Penalty.Total,
		TotalAmount:         p.Total,
		PaidAmount:          decimal.Zero,
		Balance:             p.Total,
		Status:              StatusUnpaid,
		Type:                BillRegular,
		CreatedBy:           createdBy,
		CreatedAt:           now,
	}
}
