/*
penalty.go - Cumulative compounding penalty over prior unpaid bills

POLICY:
  The penalty printed on a new bill is computed fresh from the unit's older
  outstanding bills. Older bills are never edited; their unpaid balance is
  simply an input to the next run.

  For each outstanding bill, oldest first:
    monthsOverdue = current month index - bill month index
    unpaid        = max(0, balance)
    eligible      = unpaid, except on OPENING_BALANCE bills where the
                    migrated legacy debt is carved out:
                      charges  = electric + water + dues + parking
                      migrated = max(0, total - charges)
                      eligible = max(0, unpaid - migrated)

    skip when monthsOverdue < 1 (grace) or eligible <= 0

    first accruing bill:  interest = eligible x rate
    every later one:      interest = (interest + eligible x rate) x (1 + rate)

  The add-then-compound order reproduces the association's spreadsheet and
  must not be replaced with independent per-bill interest.

EXAMPLE:
  rate 0.10, eligible 1000 then 500:
    100, then (100 + 50) x 1.10 = 165
*/
package billing

import (
	"sort"

	"github.com/shopspring/decimal"
	"github.com/warp/condo-billing/generic"
)

// Eligibility classifies how the penalty engine treated a prior bill.
type Eligibility string

const (
	EligibilityAccrued   Eligibility = "accrued"
	EligibilityGrace     Eligibility = "grace_period"
	EligibilityNoBalance Eligibility = "no_eligible_balance"
)

// PenaltyLine records the engine's view of one prior bill.
type PenaltyLine struct {
	BillNumber      string
	BillingMonth    generic.Month
	BillType        BillType
	MonthsOverdue   int
	UnpaidBalance   decimal.Decimal
	MigratedDebt    decimal.Decimal
	EligibleBalance decimal.Decimal
	Eligibility     Eligibility
	InterestAfter   decimal.Decimal // running pool after this bill
}

// PenaltyResult is the total plus the per-bill classification.
type PenaltyResult struct {
	Total decimal.Decimal
	Lines []PenaltyLine
}

// ChargeFallback supplies dues and parking for opening-balance bills that
// did not store them; they are recomputed from the unit's area and rates.
type ChargeFallback struct {
	Dues    decimal.Decimal
	Parking decimal.Decimal
}

// OutstandingBefore returns the unit's UNPAID/PARTIAL bills dated strictly
// before month, oldest first. Ties keep bill-number order.
func OutstandingBefore(bills []Bill, month generic.Month) []Bill {
	var out []Bill
	for _, b := range bills {
		if b.BillingMonth.Before(month) && b.Status.Outstanding() {
			out = append(out, b)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].BillingMonth.Equal(out[j].BillingMonth) {
			return out[i].BillingMonth.Before(out[j].BillingMonth)
		}
		return out[i].BillNumber < out[j].BillNumber
	})
	return out
}

// AccruePenalty computes the cumulative penalty for a new bill in month.
func AccruePenalty(priorBills []Bill, month generic.Month, rate decimal.Decimal, fallback ChargeFallback) PenaltyResult {
	bills := OutstandingBefore(priorBills, month)
	onePlusRate := decimal.NewFromInt(1).Add(rate)

	result := PenaltyResult{Total: decimal.Zero}
	interest := decimal.Zero
	accruing := false

	for _, b := range bills {
		line := PenaltyLine{
			BillNumber:    b.BillNumber,
			BillingMonth:  b.BillingMonth,
			BillType:      b.Type,
			MonthsOverdue: month.MonthsSince(b.BillingMonth),
			UnpaidBalance: generic.NonNegative(b.Balance),
			MigratedDebt:  decimal.Zero,
		}
		line.EligibleBalance = line.UnpaidBalance

		if b.Type == BillOpeningBalance {
			line.MigratedDebt = migratedDebt(b, fallback)
			line.EligibleBalance = generic.NonNegative(line.UnpaidBalance.Sub(line.MigratedDebt))
		}

		switch {
		case line.MonthsOverdue < 1:
			line.Eligibility = EligibilityGrace
		case !line.EligibleBalance.IsPositive():
			line.Eligibility = EligibilityNoBalance
		default:
			line.Eligibility = EligibilityAccrued
			principalInterest := line.EligibleBalance.Mul(rate)
			if !accruing {
				interest = principalInterest
				accruing = true
			} else {
				interest = interest.Add(principalInterest).Mul(onePlusRate)
			}
		}

		line.InterestAfter = interest
		result.Lines = append(result.Lines, line)
	}

	result.Total = generic.Round(interest)
	return result
}

// migratedDebt is the part of an opening-balance total that is not this
// system's own current charges.
func migratedDebt(b Bill, fallback ChargeFallback) decimal.Decimal {
	dues := b.AssociationDues
	if dues.IsZero() {
		dues = fallback.Dues
	}
	parking := b.Parking
	if parking.IsZero() {
		parking = fallback.Parking
	}
	charges := generic.Sum(b.Electric, b.Water, dues, parking)
	return generic.NonNegative(b.TotalAmount.Sub(charges))
}
