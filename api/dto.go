/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal billing model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

MONEY:
  Amounts are rendered as fixed two-decimal strings ("1250.00") so clients
  never round-trip money through floating point. Request bodies accept
  either strings or numbers.

VALIDATION:
  Request structs carry go-playground/validator tags, checked by
  decodeRequest before the handler runs. Amount fields are decimals and
  are range-checked in handlers.

SEE ALSO:
  - handlers.go: Uses these types
  - factory/rates.go: RateConfigJSON type
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/condo-billing/billing"
	"github.com/warp/condo-billing/factory"
	"github.com/warp/condo-billing/generic"
)

// =============================================================================
// TENANTS + UNITS
// =============================================================================

// TenantDTO represents a tenant in API responses.
type TenantDTO struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	BillPrefix string `json:"bill_prefix"`
	CreatedAt  string `json:"created_at,omitempty"`
}

// CreateTenantRequest is the request to create a tenant. An empty ID is
// generated, an empty prefix takes the configured default.
type CreateTenantRequest struct {
	ID         string `json:"id" validate:"omitempty,max=64"`
	Name       string `json:"name" validate:"required,max=200"`
	BillPrefix string `json:"bill_prefix" validate:"omitempty,alphanum,max=12"`
}

// UnitDTO represents a unit in API responses.
type UnitDTO struct {
	ID          string `json:"id"`
	UnitNumber  string `json:"unit_number"`
	Floor       int    `json:"floor"`
	OwnerName   string `json:"owner_name,omitempty"`
	UnitType    string `json:"unit_type"`
	Area        string `json:"area"`
	ParkingArea string `json:"parking_area"`
	Active      bool   `json:"active"`
}

// CreateUnitRequest is the request to create or update a unit.
type CreateUnitRequest struct {
	ID          string          `json:"id" validate:"omitempty,max=64"`
	UnitNumber  string          `json:"unit_number" validate:"required,max=32"`
	Floor       int             `json:"floor" validate:"gte=0"`
	OwnerName   string          `json:"owner_name" validate:"max=200"`
	UnitType    string          `json:"unit_type" validate:"required"`
	Area        decimal.Decimal `json:"area"`
	ParkingArea decimal.Decimal `json:"parking_area"`
	Active      *bool           `json:"active"`
}

// =============================================================================
// RATE SETTINGS
// =============================================================================

// SettingsDTO wraps the rate document with its version.
type SettingsDTO struct {
	TenantID  string                 `json:"tenant_id"`
	Version   int                    `json:"version"`
	UpdatedAt string                 `json:"updated_at,omitempty"`
	Config    factory.RateConfigJSON `json:"config"`
}

// =============================================================================
// READINGS + ADJUSTMENTS
// =============================================================================

// SaveReadingRequest upserts one meter reading.
type SaveReadingRequest struct {
	UnitID       string          `json:"unit_id" validate:"required"`
	Kind         string          `json:"kind" validate:"required,oneof=electric water ELECTRIC WATER"`
	ReadingMonth string          `json:"reading_month" validate:"required,datetime=2006-01"`
	Previous     decimal.Decimal `json:"previous"`
	Present      decimal.Decimal `json:"present"`
}

// ReadingDTO represents a stored reading.
type ReadingDTO struct {
	ID           string `json:"id"`
	UnitID       string `json:"unit_id"`
	Kind         string `json:"kind"`
	ReadingMonth string `json:"reading_month"`
	Previous     string `json:"previous"`
	Present      string `json:"present"`
	Consumption  string `json:"consumption"`
}

// SaveAdjustmentRequest upserts a unit's one-time charges for a month.
type SaveAdjustmentRequest struct {
	UnitID       string          `json:"unit_id" validate:"required"`
	BillingMonth string          `json:"billing_month" validate:"required,datetime=2006-01"`
	SpAssessment decimal.Decimal `json:"sp_assessment"`
	Discounts    decimal.Decimal `json:"discounts"`
	Remarks      string          `json:"remarks" validate:"max=500"`
}

// AdjustmentDTO represents a stored adjustment.
type AdjustmentDTO struct {
	ID           string `json:"id"`
	UnitID       string `json:"unit_id"`
	BillingMonth string `json:"billing_month"`
	SpAssessment string `json:"sp_assessment"`
	Discounts    string `json:"discounts"`
	Remarks      string `json:"remarks,omitempty"`
}

// =============================================================================
// ADVANCES
// =============================================================================

// CreditAdvanceRequest adds prepaid credit to one pool.
type CreditAdvanceRequest struct {
	Pool      string          `json:"pool" validate:"required,oneof=dues utilities"`
	Amount    decimal.Decimal `json:"amount"`
	Reference string          `json:"reference" validate:"required,max=64"`
	CreatedBy string          `json:"created_by" validate:"max=64"`
}

// AdvanceDTO is a unit's pool balances and ledger.
type AdvanceDTO struct {
	UnitID           string           `json:"unit_id"`
	AdvanceDues      string           `json:"advance_dues"`
	AdvanceUtilities string           `json:"advance_utilities"`
	Entries          []LedgerEntryDTO `json:"entries"`
}

// LedgerEntryDTO represents one advance posting.
type LedgerEntryDTO struct {
	ID        string `json:"id"`
	Pool      string `json:"pool"`
	Type      string `json:"type"`
	Amount    string `json:"amount"`
	Reference string `json:"reference,omitempty"`
	Reason    string `json:"reason,omitempty"`
	CreatedBy string `json:"created_by,omitempty"`
	CreatedAt string `json:"created_at"`
}

// =============================================================================
// GENERATION
// =============================================================================

// GenerateRequest commits a billing month.
type GenerateRequest struct {
	BillingMonth string `json:"billing_month" validate:"required,datetime=2006-01"`
	Regenerate   bool   `json:"regenerate"`
	CreatedBy    string `json:"created_by" validate:"max=64"`
}

// PeriodDTO is the statement's date block.
type PeriodDTO struct {
	BillingMonth  string `json:"billing_month"`
	PeriodFrom    string `json:"period_from"`
	PeriodTo      string `json:"period_to"`
	StatementDate string `json:"statement_date"`
	DueDate       string `json:"due_date"`
}

// TierLineDTO is one band of a water charge.
type TierLineDTO struct {
	Tier        int    `json:"tier"`
	Flat        bool   `json:"flat"`
	Consumption string `json:"consumption"`
	Rate        string `json:"rate"`
	Amount      string `json:"amount"`
}

// PenaltyLineDTO explains one prior bill's treatment.
type PenaltyLineDTO struct {
	BillNumber      string `json:"bill_number"`
	BillingMonth    string `json:"billing_month"`
	BillType        string `json:"bill_type"`
	MonthsOverdue   int    `json:"months_overdue"`
	UnpaidBalance   string `json:"unpaid_balance"`
	MigratedDebt    string `json:"migrated_debt,omitempty"`
	EligibleBalance string `json:"eligible_balance"`
	Eligibility     string `json:"eligibility"`
	InterestAfter   string `json:"interest_after"`
}

// BillPreviewDTO is one unit's computed, unsaved bill.
type BillPreviewDTO struct {
	UnitID              string           `json:"unit_id"`
	UnitNumber          string           `json:"unit_number"`
	Floor               int              `json:"floor"`
	OwnerName           string           `json:"owner_name,omitempty"`
	UnitType            string           `json:"unit_type"`
	ElectricConsumption string           `json:"electric_consumption"`
	Electric            string           `json:"electric"`
	WaterConsumption    string           `json:"water_consumption"`
	WaterTier           int              `json:"water_tier"`
	Water               string           `json:"water"`
	WaterBreakdown      []TierLineDTO    `json:"water_breakdown"`
	AssociationDues     string           `json:"association_dues"`
	Parking             string           `json:"parking"`
	SpAssessment        string           `json:"sp_assessment"`
	Discounts           string           `json:"discounts"`
	PreviousBalance     string           `json:"previous_balance"`
	Penalty             string           `json:"penalty"`
	PenaltyBreakdown    []PenaltyLineDTO `json:"penalty_breakdown"`
	AdvanceDuesApplied  string           `json:"advance_dues_applied"`
	AdvanceUtilApplied  string           `json:"advance_util_applied"`
	CurrentCharges      string           `json:"current_charges"`
	Total               string           `json:"total"`
	Warnings            []string         `json:"warnings"`
}

// SummaryDTO totals a batch.
type SummaryDTO struct {
	Units              int    `json:"units"`
	UnitsWithWarnings  int    `json:"units_with_warnings"`
	Electric           string `json:"electric"`
	Water              string `json:"water"`
	AssociationDues    string `json:"association_dues"`
	Parking            string `json:"parking"`
	SpAssessment       string `json:"sp_assessment"`
	Discounts          string `json:"discounts"`
	PreviousBalance    string `json:"previous_balance"`
	Penalties          string `json:"penalties"`
	AdvanceDuesApplied string `json:"advance_dues_applied"`
	AdvanceUtilApplied string `json:"advance_util_applied"`
	CurrentCharges     string `json:"current_charges"`
	Total              string `json:"total"`
}

// ValidationDTO carries the tenant-wide flags.
type ValidationDTO struct {
	NoPaymentsRecorded bool `json:"no_payments_recorded"`
	NoAdjustments      bool `json:"no_adjustments"`
}

// PreviewResponse is the body of GET .../billing/preview.
type PreviewResponse struct {
	TenantID   string           `json:"tenant_id"`
	Period     PeriodDTO        `json:"period"`
	Bills      []BillPreviewDTO `json:"bills"`
	Summary    SummaryDTO       `json:"summary"`
	Validation ValidationDTO    `json:"validation"`
	Warnings   []string         `json:"warnings"`
}

// BillDTO represents a stored bill.
type BillDTO struct {
	ID                  string `json:"id"`
	BillNumber          string `json:"bill_number"`
	UnitID              string `json:"unit_id"`
	BillingMonth        string `json:"billing_month"`
	PeriodStart         string `json:"period_start,omitempty"`
	PeriodEnd           string `json:"period_end,omitempty"`
	StatementDate       string `json:"statement_date,omitempty"`
	DueDate             string `json:"due_date,omitempty"`
	ElectricConsumption string `json:"electric_consumption"`
	WaterConsumption    string `json:"water_consumption"`
	Electric            string `json:"electric"`
	Water               string `json:"water"`
	AssociationDues     string `json:"association_dues"`
	Parking             string `json:"parking"`
	SpAssessment        string `json:"sp_assessment"`
	Discounts           string `json:"discounts"`
	AdvanceDuesApplied  string `json:"advance_dues_applied"`
	AdvanceUtilApplied  string `json:"advance_util_applied"`
	PreviousBalance     string `json:"previous_balance"`
	Penalty             string `json:"penalty"`
	TotalAmount         string `json:"total_amount"`
	PaidAmount          string `json:"paid_amount"`
	Balance             string `json:"balance"`
	Status              string `json:"status"`
	BillType            string `json:"bill_type"`
	CreatedBy           string `json:"created_by,omitempty"`
}

// GenerateResponse is the body of POST .../billing/generate.
type GenerateResponse struct {
	Message  string     `json:"message"`
	Period   PeriodDTO  `json:"period"`
	Bills    []BillDTO  `json:"bills"`
	Summary  SummaryDTO `json:"summary"`
	Replaced int        `json:"replaced"`
	Warnings []string   `json:"warnings"`
}

// =============================================================================
// SCENARIOS + ERRORS
// =============================================================================

// ScenarioDTO describes a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// LoadScenarioRequest selects a scenario.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id" validate:"required"`
}

// ErrorResponse is the body of every error.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// ConflictResponse adds the number of bills already generated.
type ConflictResponse struct {
	Error         string `json:"error"`
	Details       string `json:"details,omitempty"`
	ExistingCount int    `json:"existing_count"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func money(d decimal.Decimal) string { return d.StringFixed(generic.MoneyPlaces) }

func date(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("2006-01-02")
}

func toTenantDTO(t billing.Tenant) TenantDTO {
	dto := TenantDTO{ID: string(t.ID), Name: t.Name, BillPrefix: t.BillPrefix}
	if !t.CreatedAt.IsZero() {
		dto.CreatedAt = t.CreatedAt.Format(time.RFC3339)
	}
	return dto
}

func toUnitDTO(u billing.Unit) UnitDTO {
	return UnitDTO{
		ID:          string(u.ID),
		UnitNumber:  u.UnitNumber,
		Floor:       u.Floor,
		OwnerName:   u.OwnerName,
		UnitType:    string(u.Type),
		Area:        u.Area.String(),
		ParkingArea: u.ParkingArea.String(),
		Active:      u.Active,
	}
}

func toPeriodDTO(p generic.BillingPeriod) PeriodDTO {
	return PeriodDTO{
		BillingMonth:  p.Month.String(),
		PeriodFrom:    date(p.PeriodFrom),
		PeriodTo:      date(p.PeriodTo),
		StatementDate: date(p.StatementDate),
		DueDate:       date(p.DueDate),
	}
}

func toSummaryDTO(s billing.Summary) SummaryDTO {
	return SummaryDTO{
		Units:              s.Units,
		UnitsWithWarnings:  s.UnitsWithWarnings,
		Electric:           money(s.Electric),
		Water:              money(s.Water),
		AssociationDues:    money(s.AssociationDues),
		Parking:            money(s.Parking),
		SpAssessment:       money(s.SpAssessment),
		Discounts:          money(s.Discounts),
		PreviousBalance:    money(s.PreviousBalance),
		Penalties:          money(s.Penalties),
		AdvanceDuesApplied: money(s.AdvanceDuesApplied),
		AdvanceUtilApplied: money(s.AdvanceUtilApplied),
		CurrentCharges:     money(s.CurrentCharges),
		Total:              money(s.Total),
	}
}

func toBillPreviewDTO(p billing.BillPreview) BillPreviewDTO {
	dto := BillPreviewDTO{
		UnitID:              string(p.Unit.ID),
		UnitNumber:          p.Unit.UnitNumber,
		Floor:               p.Unit.Floor,
		OwnerName:           p.Unit.OwnerName,
		UnitType:            string(p.Unit.Type),
		ElectricConsumption: p.ElectricConsumption.String(),
		Electric:            money(p.Electric),
		WaterConsumption:    p.Water.Consumption.String(),
		WaterTier:           p.Water.Tier,
		Water:               money(p.Water.Amount),
		WaterBreakdown:      []TierLineDTO{},
		AssociationDues:     money(p.AssociationDues),
		Parking:             money(p.Parking),
		SpAssessment:        money(p.SpAssessment),
		Discounts:           money(p.Discounts),
		PreviousBalance:     money(p.PreviousBalance),
		Penalty:             money(p.Penalty.Total),
		PenaltyBreakdown:    []PenaltyLineDTO{},
		AdvanceDuesApplied:  money(p.Allocation.DuesApplied),
		AdvanceUtilApplied:  money(p.Allocation.UtilApplied),
		CurrentCharges:      money(p.CurrentCharges),
		Total:               money(p.Total),
		Warnings:            append([]string{}, p.Warnings...),
	}
	for _, l := range p.Water.Lines {
		dto.WaterBreakdown = append(dto.WaterBreakdown, TierLineDTO{
			Tier:        l.Tier,
			Flat:        l.Flat,
			Consumption: l.Consumption.String(),
			Rate:        money(l.Rate),
			Amount:      money(l.Amount),
		})
	}
	for _, l := range p.Penalty.Lines {
		line := PenaltyLineDTO{
			BillNumber:      l.BillNumber,
			BillingMonth:    l.BillingMonth.String(),
			BillType:        string(l.BillType),
			MonthsOverdue:   l.MonthsOverdue,
			UnpaidBalance:   money(l.UnpaidBalance),
			EligibleBalance: money(l.EligibleBalance),
			Eligibility:     string(l.Eligibility),
			InterestAfter:   l.InterestAfter.String(),
		}
		if !l.MigratedDebt.IsZero() {
			line.MigratedDebt = money(l.MigratedDebt)
		}
		dto.PenaltyBreakdown = append(dto.PenaltyBreakdown, line)
	}
	return dto
}

func toPreviewResponse(res *billing.PreviewResult) PreviewResponse {
	resp := PreviewResponse{
		TenantID: string(res.TenantID),
		Period:   toPeriodDTO(res.Period),
		Bills:    make([]BillPreviewDTO, 0, len(res.Previews)),
		Summary:  toSummaryDTO(res.Summary),
		Validation: ValidationDTO{
			NoPaymentsRecorded: res.Flags.NoPaymentsRecorded,
			NoAdjustments:      res.Flags.NoAdjustments,
		},
		Warnings: append([]string{}, res.Warnings...),
	}
	for _, p := range res.Previews {
		resp.Bills = append(resp.Bills, toBillPreviewDTO(p))
	}
	return resp
}

func toBillDTO(b billing.Bill) BillDTO {
	return BillDTO{
		ID:                  string(b.ID),
		BillNumber:          b.BillNumber,
		UnitID:              string(b.UnitID),
		BillingMonth:        b.BillingMonth.String(),
		PeriodStart:         date(b.PeriodStart),
		PeriodEnd:           date(b.PeriodEnd),
		StatementDate:       date(b.StatementDate),
		DueDate:             date(b.DueDate),
		ElectricConsumption: b.ElectricConsumption.String(),
		WaterConsumption:    b.WaterConsumption.String(),
		Electric:            money(b.Electric),
		Water:               money(b.Water),
		AssociationDues:     money(b.AssociationDues),
		Parking:             money(b.Parking),
		SpAssessment:        money(b.SpAssessment),
		Discounts:           money(b.Discounts),
		AdvanceDuesApplied:  money(b.AdvanceDuesApplied),
		AdvanceUtilApplied:  money(b.AdvanceUtilApplied),
		PreviousBalance:     money(b.PreviousBalance),
		Penalty:             money(b.Penalty),
		TotalAmount:         money(b.TotalAmount),
		PaidAmount:          money(b.PaidAmount),
		Balance:             money(b.Balance),
		Status:              string(b.Status),
		BillType:            string(b.Type),
		CreatedBy:           b.CreatedBy,
	}
}

func toBillDTOs(bills []billing.Bill) []BillDTO {
	dtos := make([]BillDTO, 0, len(bills))
	for _, b := range bills {
		dtos = append(dtos, toBillDTO(b))
	}
	return dtos
}

func toLedgerEntryDTO(e generic.LedgerEntry) LedgerEntryDTO {
	return LedgerEntryDTO{
		ID:        e.ID,
		Pool:      string(e.Pool),
		Type:      string(e.Type),
		Amount:    money(e.Amount),
		Reference: e.Reference,
		Reason:    e.Reason,
		CreatedBy: e.CreatedBy,
		CreatedAt: e.CreatedAt.Format(time.RFC3339),
	}
}
