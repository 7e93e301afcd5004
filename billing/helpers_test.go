package billing_test

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/condo-billing/billing"
	"github.com/warp/condo-billing/generic"
)

var (
	jan2025 = generic.NewMonth(2025, time.January)
	feb2025 = generic.NewMonth(2025, time.February)
	mar2025 = generic.NewMonth(2025, time.March)
	dec2024 = generic.NewMonth(2024, time.December)
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func dp(s string) *decimal.Decimal {
	v := d(s)
	return &v
}

// schedule builds a 7-tier schedule from six maxima and seven rates.
func schedule(maxes [6]string, rates [7]string) billing.WaterTierSchedule {
	var s billing.WaterTierSchedule
	for i := range s.Tiers {
		s.Tiers[i].Rate = d(rates[i])
		if i < len(maxes) {
			s.Tiers[i].MaxConsumption = dp(maxes[i])
		}
	}
	return s
}

// residential: 10/200, 20/280, 30/350 flat, then 45, 50, 55, 60 per cu.m.
func residentialSchedule() billing.WaterTierSchedule {
	return schedule(
		[6]string{"10", "20", "30", "40", "50", "60"},
		[7]string{"200", "280", "350", "45", "50", "55", "60"},
	)
}

// commercial: 10/300, 20/420, 30/520 flat, then 60, 65, 70, 75 per cu.m.
func commercialSchedule() billing.WaterTierSchedule {
	return schedule(
		[6]string{"10", "20", "30", "40", "50", "60"},
		[7]string{"300", "420", "520", "60", "65", "70", "75"},
	)
}

func testRates(tenantID generic.TenantID) billing.RateConfiguration {
	return billing.RateConfiguration{
		TenantID:            tenantID,
		ElectricRate:        d("12.50"),
		ElectricMinCharge:   d("300"),
		AssociationDuesRate: d("25"),
		ParkingRate:         d("100"),
		PenaltyRate:         d("0.10"),
		WaterResidential:    residentialSchedule(),
		WaterCommercial:     commercialSchedule(),
		Version:             1,
	}
}

func unpaidBill(unit generic.UnitID, number string, month generic.Month, balance string) billing.Bill {
	return billing.Bill{
		ID:           generic.BillID("bill-" + number),
		TenantID:     "t1",
		UnitID:       unit,
		BillNumber:   number,
		BillingMonth: month,
		TotalAmount:  d(balance),
		PaidAmount:   decimal.Zero,
		Balance:      d(balance),
		Status:       billing.StatusUnpaid,
		Type:         billing.BillRegular,
	}
}
