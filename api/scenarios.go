/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the database with realistic
	data for testing and demos. Each scenario creates a tenant, its rate
	configuration, units and the inputs for the current billing month.

AVAILABLE SCENARIOS:

	first-month:   Fresh building, readings only, nothing owed
	arrears:       Unpaid bills, an opening balance, advances and adjustments
	tiered-water:  Heavy water users reaching the per-cubic-meter tiers

	Every scenario bills the current month, so its readings are for the
	previous month. Preview with GET .../billing/preview?month=<current>.

HOW SCENARIOS WORK:
 1. Reset database (clear all data)
 2. Create tenant and rate configuration via factory presets
 3. Create units
 4. Add readings, adjustments, advances and prior bills

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "arrears"}

NOTE:

	Scenarios reset the database. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: ResetDatabase
  - factory/rates.go: Rate presets
*/
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/condo-billing/billing"
	"github.com/warp/condo-billing/factory"
	"github.com/warp/condo-billing/generic"
)

// DemoTenantID is the tenant every scenario creates.
const DemoTenantID generic.TenantID = "demo-acme"

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "first-month",
		Name:        "First Month",
		Description: "Four units with meter readings and no billing history",
	},
	{
		ID:          "arrears",
		Name:        "Arrears",
		Description: "Unpaid bills with compounding penalty, an opening balance, advance credits and adjustments",
	},
	{
		ID:          "tiered-water",
		Name:        "Tiered Water",
		Description: "Residential and commercial units consuming into every water tier",
	},
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	current := h.getCurrentScenario()
	if current == "" {
		writeJSON(w, http.StatusOK, nil)
		return
	}

	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, ScenarioDTO{ID: current, Name: current})
}

// LoadScenario loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if !h.decodeRequest(w, r, &req) {
		return
	}

	var loader func(context.Context, generic.Month) error
	switch req.ScenarioID {
	case "first-month":
		loader = h.loadFirstMonthScenario
	case "arrears":
		loader = h.loadArrearsScenario
	case "tiered-water":
		loader = h.loadTieredWaterScenario
	default:
		writeError(w, http.StatusBadRequest, "Unknown scenario", nil)
		return
	}

	ctx := r.Context()

	// Reset first
	if err := h.Store.Reset(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	h.setCurrentScenario("")
	h.Rates.Invalidate(ctx, DemoTenantID)

	month := generic.MonthOf(h.Generator.Now())
	if err := loader(ctx, month); err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to load scenario: %v", err), err)
		return
	}

	h.setCurrentScenario(req.ScenarioID)
	writeJSON(w, http.StatusOK, map[string]string{
		"status":        "loaded",
		"scenario":      req.ScenarioID,
		"tenant_id":     string(DemoTenantID),
		"billing_month": month.String(),
	})
}

func (h *Handler) setCurrentScenario(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.currentScenario = id
}

func (h *Handler) getCurrentScenario() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.currentScenario
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

// demoUnits: two residential units on floor 1, one commercial, one on
// floor 2 with parking.
var demoUnits = []billing.Unit{
	{ID: "unit-101", UnitNumber: "101", Floor: 1, OwnerName: "Maria Santos", Type: billing.UnitResidential, Area: dec("48"), Active: true},
	{ID: "unit-102", UnitNumber: "102", Floor: 1, OwnerName: "Corner Cafe Inc.", Type: billing.UnitCommercial, Area: dec("65"), Active: true},
	{ID: "unit-201", UnitNumber: "201", Floor: 2, OwnerName: "Jose Reyes", Type: billing.UnitResidential, Area: dec("52"), ParkingArea: dec("12.5"), Active: true},
	{ID: "unit-202", UnitNumber: "202", Floor: 2, OwnerName: "Ana Cruz", Type: billing.UnitResidential, Area: dec("36"), Active: true},
}

func (h *Handler) loadBuilding(ctx context.Context) error {
	if err := h.Store.SaveTenant(ctx, billing.Tenant{
		ID:         DemoTenantID,
		Name:       "Acme Towers Condominium Corporation",
		BillPrefix: "ACME",
		CreatedAt:  time.Now().UTC(),
	}); err != nil {
		return err
	}
	if _, err := h.Store.SaveRateConfiguration(ctx, factory.DefaultRateConfiguration(DemoTenantID)); err != nil {
		return err
	}
	for _, u := range demoUnits {
		u.TenantID = DemoTenantID
		if err := h.Store.SaveUnit(ctx, u); err != nil {
			return err
		}
	}
	return nil
}

// saveReadings stores electric and water readings for month as
// {unit: [electricPrev, electricPresent, waterPrev, waterPresent]}.
func (h *Handler) saveReadings(ctx context.Context, month generic.Month, readings map[generic.UnitID][4]string) error {
	for unitID, r := range readings {
		for i, kind := range []billing.ReadingKind{billing.ReadingElectric, billing.ReadingWater} {
			reading := billing.Reading{
				ID:           fmt.Sprintf("%s-%s-%s", unitID, kind, month.Compact()),
				TenantID:     DemoTenantID,
				UnitID:       unitID,
				Kind:         kind,
				ReadingMonth: month,
				Previous:     dec(r[2*i]),
				Present:      dec(r[2*i+1]),
			}
			if err := h.Store.SaveReading(ctx, reading); err != nil {
				return err
			}
		}
	}
	return nil
}

func (h *Handler) loadFirstMonthScenario(ctx context.Context, month generic.Month) error {
	if err := h.loadBuilding(ctx); err != nil {
		return err
	}
	return h.saveReadings(ctx, month.Previous(), map[generic.UnitID][4]string{
		"unit-101": {"10450", "10612", "820", "838"},
		"unit-102": {"5520", "6310", "1410", "1442"},
		"unit-201": {"8800", "8815", "300", "300"},
		"unit-202": {"2210", "2399", "95", "104"},
	})
}

func (h *Handler) loadArrearsScenario(ctx context.Context, month generic.Month) error {
	if err := h.loadFirstMonthScenario(ctx, month); err != nil {
		return err
	}

	cycle := h.Generator.Cycle

	// 102 carries legacy debt imported as an opening balance.
	obMonth := month.AddMonths(-3)
	ob := demoBill("unit-102", "ACME-"+obMonth.Compact()+"-0000", obMonth, cycle, "18500.00", "0")
	ob.Type = billing.BillOpeningBalance
	ob.Electric = dec("4200.00")
	ob.Water = dec("1800.00")

	// Two unpaid months for 101, compounding into this month's penalty.
	twoAgo, oneAgo := month.AddMonths(-2), month.Previous()
	partial := demoBill("unit-202", "ACME-"+oneAgo.Compact()+"-0008", oneAgo, cycle, "2980.00", "1500.00")
	prior := []billing.Bill{
		ob,
		demoBill("unit-101", "ACME-"+twoAgo.Compact()+"-0001", twoAgo, cycle, "3150.00", "0"),
		demoBill("unit-101", "ACME-"+oneAgo.Compact()+"-0005", oneAgo, cycle, "3320.00", "0"),
		partial,
	}

	for _, b := range prior {
		if err := h.Store.InsertBill(ctx, b); err != nil {
			return err
		}
	}

	if err := h.Store.InsertPayment(ctx, billing.Payment{
		ID:       "pay-202",
		TenantID: DemoTenantID,
		UnitID:   "unit-202",
		BillID:   partial.ID,
		Amount:   dec("1500.00"),
		PaidAt:   cycle.PeriodFor(month).PeriodFrom.Add(72 * time.Hour),
	}); err != nil {
		return err
	}

	if err := h.Store.SaveAdjustment(ctx, billing.Adjustment{
		ID:           "adj-201",
		TenantID:     DemoTenantID,
		UnitID:       "unit-201",
		BillingMonth: month,
		SpAssessment: dec("1500.00"),
		Discounts:    dec("250.00"),
		Remarks:      "Roof repair assessment; senior discount",
	}); err != nil {
		return err
	}

	now := time.Now().UTC()
	if _, err := billing.CreditAdvance(ctx, h.Store, DemoTenantID, "unit-201", billing.PoolDues, dec("5000"), "OR-1182", "scenario", now); err != nil {
		return err
	}
	_, err := billing.CreditAdvance(ctx, h.Store, DemoTenantID, "unit-201", billing.PoolUtilities, dec("400"), "OR-1183", "scenario", now)
	return err
}

func (h *Handler) loadTieredWaterScenario(ctx context.Context, month generic.Month) error {
	if err := h.loadBuilding(ctx); err != nil {
		return err
	}
	// Water use of 0, 30, 45 and 72 cu.m.
	return h.saveReadings(ctx, month.Previous(), map[generic.UnitID][4]string{
		"unit-101": {"1000", "1180", "500", "545"},
		"unit-102": {"7000", "7900", "2000", "2072"},
		"unit-201": {"3000", "3010", "100", "100"},
		"unit-202": {"4000", "4150", "700", "730"},
	})
}

func demoBill(unitID generic.UnitID, number string, month generic.Month, cycle generic.BillingCycle, total, paid string) billing.Bill {
	period := cycle.PeriodFor(month)
	b := billing.Bill{
		ID:            generic.BillID("bill-" + number),
		TenantID:      DemoTenantID,
		UnitID:        unitID,
		BillNumber:    number,
		BillingMonth:  month,
		PeriodStart:   period.PeriodFrom,
		PeriodEnd:     period.PeriodTo,
		StatementDate: period.StatementDate,
		DueDate:       period.DueDate,
		TotalAmount:   dec(total),
		PaidAmount:    dec(paid),
		Type:          billing.BillRegular,
		CreatedBy:     "scenario",
	}
	b.Balance = b.TotalAmount.Sub(b.PaidAmount)
	b.Status = billing.StatusUnpaid
	if b.PaidAmount.IsPositive() {
		b.Status = billing.StatusPartial
	}
	return b
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }
