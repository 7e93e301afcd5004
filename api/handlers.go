/*
handlers.go - HTTP API handlers for the billing engine

PURPOSE:
  Exposes the billing engine via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to the billing package.

ENDPOINTS:
  Tenants:
    GET    /api/tenants                          List tenants
    POST   /api/tenants                          Create tenant
    GET    /api/tenants/{tenantID}               Get tenant
    GET    /api/tenants/{tenantID}/settings      Rate configuration
    PUT    /api/tenants/{tenantID}/settings      Replace rate configuration

  Inputs:
    GET    /api/tenants/{tenantID}/units         List units
    POST   /api/tenants/{tenantID}/units         Create or update unit
    POST   /api/tenants/{tenantID}/readings      Upsert meter reading
    PUT    /api/tenants/{tenantID}/adjustments   Upsert adjustment
    GET    /api/tenants/{tenantID}/advances/{unitID}  Balances + ledger
    POST   /api/tenants/{tenantID}/advances/{unitID}  Credit a pool

  Billing:
    GET    /api/tenants/{tenantID}/billing/preview?month=YYYY-MM
    POST   /api/tenants/{tenantID}/billing/generate
    GET    /api/tenants/{tenantID}/bills?month=YYYY-MM

ARCHITECTURE:
  Handler struct holds all dependencies:
  - Store: Database access (registry writes, bill queries)
  - Generator: Preview and Commit
  - Rates: Rate cache, invalidated on settings writes

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Tenant, settings, units or unit not found
  - 409: Month already generated (body carries existing_count)
  - 500: Computation and storage failures

SECURITY NOTE:
  No authentication or tenant resolution. Callers name the tenant in the
  path.

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/warp/condo-billing/billing"
	"github.com/warp/condo-billing/cache"
	"github.com/warp/condo-billing/factory"
	"github.com/warp/condo-billing/generic"
	"github.com/warp/condo-billing/store/sqlite"
	"go.uber.org/zap"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Options configures a Handler. Zero values take defaults.
type Options struct {
	Cycle      generic.BillingCycle
	Strategy   billing.TierStrategy
	BillPrefix string
	RateCache  *cache.RateCache
	Observer   billing.Observer
	Logger     *zap.Logger
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store       *sqlite.Store
	Generator   *billing.Generator
	Rates       *cache.RateCache
	RateFactory *factory.RateFactory
	BillPrefix  string
	Logger      *zap.Logger

	validate *validator.Validate

	mu              sync.Mutex
	currentScenario string
}

// NewHandler creates a new handler with the given store.
func NewHandler(store *sqlite.Store, opts Options) *Handler {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	rates := opts.RateCache
	if rates == nil {
		rates = cache.NewRateCache(nil, store, 0, logger)
	}

	gen := billing.NewGenerator(store, logger.Named("generator"))
	gen.Rates = rates
	gen.Observer = opts.Observer
	if opts.Cycle != (generic.BillingCycle{}) {
		gen.Cycle = opts.Cycle
	}
	if opts.Strategy != (billing.TierStrategy{}) {
		gen.Strategy = opts.Strategy
	}

	prefix := opts.BillPrefix
	if prefix == "" {
		prefix = billing.DefaultBillPrefix
	}

	return &Handler{
		Store:       store,
		Generator:   gen,
		Rates:       rates,
		RateFactory: factory.NewRateFactory(),
		BillPrefix:  prefix,
		Logger:      logger,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
	}
}

// =============================================================================
// TENANT HANDLERS
// =============================================================================

// ListTenants returns all tenants.
func (h *Handler) ListTenants(w http.ResponseWriter, r *http.Request) {
	tenants, err := h.Store.ListTenants(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list tenants", err)
		return
	}

	dtos := make([]TenantDTO, 0, len(tenants))
	for _, t := range tenants {
		dtos = append(dtos, toTenantDTO(t))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateTenant creates a tenant.
func (h *Handler) CreateTenant(w http.ResponseWriter, r *http.Request) {
	var req CreateTenantRequest
	if !h.decodeRequest(w, r, &req) {
		return
	}

	t := billing.Tenant{
		ID:         generic.TenantID(req.ID),
		Name:       strings.TrimSpace(req.Name),
		BillPrefix: strings.ToUpper(req.BillPrefix),
		CreatedAt:  time.Now().UTC(),
	}
	if t.ID == "" {
		t.ID = generic.TenantID(uuid.NewString())
	}
	if t.BillPrefix == "" {
		t.BillPrefix = h.BillPrefix
	}

	if err := h.Store.SaveTenant(r.Context(), t); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create tenant", err)
		return
	}

	// New tenants start from the preset rates; PUT .../settings replaces them.
	existing, err := h.Store.GetRateConfiguration(r.Context(), t.ID)
	if err == nil && existing == nil {
		_, err = h.Store.SaveRateConfiguration(r.Context(), factory.DefaultRateConfiguration(t.ID))
	}
	if err != nil {
		h.writeDomainError(w, r, "Failed to seed tenant settings", err)
		return
	}
	writeJSON(w, http.StatusCreated, toTenantDTO(t))
}

// GetTenant returns a single tenant.
func (h *Handler) GetTenant(w http.ResponseWriter, r *http.Request) {
	t, ok := h.requireTenant(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, toTenantDTO(*t))
}

// GetSettings returns the tenant's rate configuration.
func (h *Handler) GetSettings(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.requireTenant(w, r); !ok {
		return
	}
	tenantID := tenantParam(r)

	cfg, err := h.Store.GetRateConfiguration(r.Context(), tenantID)
	if err != nil {
		h.writeDomainError(w, r, "Failed to load settings", err)
		return
	}
	if cfg == nil {
		writeError(w, http.StatusNotFound, "Tenant settings not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, h.toSettingsDTO(*cfg))
}

// PutSettings replaces the tenant's rate configuration.
func (h *Handler) PutSettings(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.requireTenant(w, r); !ok {
		return
	}
	tenantID := tenantParam(r)

	var rj factory.RateConfigJSON
	if err := json.NewDecoder(r.Body).Decode(&rj); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	cfg, err := h.RateFactory.FromJSON(rj)
	if err == nil {
		err = cfg.Validate()
	}
	if err != nil {
		h.writeDomainError(w, r, "Invalid rate configuration", err)
		return
	}
	cfg.TenantID = tenantID

	version, err := h.Store.SaveRateConfiguration(r.Context(), cfg)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save settings", err)
		return
	}
	h.Rates.Invalidate(r.Context(), tenantID)

	cfg.Version = version
	cfg.UpdatedAt = time.Now().UTC()
	h.Logger.Info("rate configuration updated",
		zap.String("tenant_id", string(tenantID)),
		zap.Int("version", version))
	writeJSON(w, http.StatusOK, h.toSettingsDTO(cfg))
}

func (h *Handler) toSettingsDTO(cfg billing.RateConfiguration) SettingsDTO {
	dto := SettingsDTO{
		TenantID: string(cfg.TenantID),
		Version:  cfg.Version,
		Config:   h.RateFactory.ToJSON(cfg),
	}
	if !cfg.UpdatedAt.IsZero() {
		dto.UpdatedAt = cfg.UpdatedAt.Format(time.RFC3339)
	}
	return dto
}

// =============================================================================
// UNIT HANDLERS
// =============================================================================

// ListUnits returns every unit of the tenant, active or not.
func (h *Handler) ListUnits(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.requireTenant(w, r); !ok {
		return
	}

	units, err := h.Store.ListUnits(r.Context(), tenantParam(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list units", err)
		return
	}
	dtos := make([]UnitDTO, 0, len(units))
	for _, u := range units {
		dtos = append(dtos, toUnitDTO(u))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateUnit creates or updates a unit.
func (h *Handler) CreateUnit(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.requireTenant(w, r); !ok {
		return
	}
	var req CreateUnitRequest
	if !h.decodeRequest(w, r, &req) {
		return
	}

	unitType, err := billing.ParseUnitType(req.UnitType)
	if err != nil {
		h.writeDomainError(w, r, "Invalid unit", err)
		return
	}
	if err := nonNegative(map[string]decimal.Decimal{"area": req.Area, "parking_area": req.ParkingArea}); err != nil {
		h.writeDomainError(w, r, "Invalid unit", err)
		return
	}

	u := billing.Unit{
		ID:          generic.UnitID(req.ID),
		TenantID:    tenantParam(r),
		UnitNumber:  strings.TrimSpace(req.UnitNumber),
		Floor:       req.Floor,
		OwnerName:   req.OwnerName,
		Type:        unitType,
		Area:        req.Area,
		ParkingArea: req.ParkingArea,
		Active:      req.Active == nil || *req.Active,
	}
	if u.ID == "" {
		u.ID = generic.UnitID(uuid.NewString())
	}

	if err := h.Store.SaveUnit(r.Context(), u); err != nil {
		h.writeDomainError(w, r, "Failed to save unit", err)
		return
	}
	writeJSON(w, http.StatusCreated, toUnitDTO(u))
}

// =============================================================================
// READINGS + ADJUSTMENTS
// =============================================================================

// SaveReading upserts a meter reading. A reading that goes backwards is
// rejected here as well as at billing time.
func (h *Handler) SaveReading(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.requireTenant(w, r); !ok {
		return
	}
	var req SaveReadingRequest
	if !h.decodeRequest(w, r, &req) {
		return
	}
	if _, ok := h.requireUnit(w, r, generic.UnitID(req.UnitID)); !ok {
		return
	}

	month, err := generic.ParseMonth(req.ReadingMonth)
	if err != nil {
		h.writeDomainError(w, r, "Invalid reading", err)
		return
	}
	reading := billing.Reading{
		ID:           uuid.NewString(),
		TenantID:     tenantParam(r),
		UnitID:       generic.UnitID(req.UnitID),
		Kind:         billing.ReadingKind(strings.ToUpper(req.Kind)),
		ReadingMonth: month,
		Previous:     req.Previous,
		Present:      req.Present,
	}
	consumption, err := reading.Consumption()
	if err != nil {
		h.writeDomainError(w, r, "Invalid reading", err)
		return
	}

	if err := h.Store.SaveReading(r.Context(), reading); err != nil {
		h.writeDomainError(w, r, "Failed to save reading", err)
		return
	}
	writeJSON(w, http.StatusOK, ReadingDTO{
		ID:           reading.ID,
		UnitID:       string(reading.UnitID),
		Kind:         string(reading.Kind),
		ReadingMonth: month.String(),
		Previous:     reading.Previous.String(),
		Present:      reading.Present.String(),
		Consumption:  consumption.String(),
	})
}

// SaveAdjustment upserts a unit's special assessment and discount for a
// billing month.
func (h *Handler) SaveAdjustment(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.requireTenant(w, r); !ok {
		return
	}
	var req SaveAdjustmentRequest
	if !h.decodeRequest(w, r, &req) {
		return
	}
	if _, ok := h.requireUnit(w, r, generic.UnitID(req.UnitID)); !ok {
		return
	}

	month, err := generic.ParseMonth(req.BillingMonth)
	if err != nil {
		h.writeDomainError(w, r, "Invalid adjustment", err)
		return
	}
	if err := nonNegative(map[string]decimal.Decimal{"sp_assessment": req.SpAssessment, "discounts": req.Discounts}); err != nil {
		h.writeDomainError(w, r, "Invalid adjustment", err)
		return
	}

	adj := billing.Adjustment{
		ID:           uuid.NewString(),
		TenantID:     tenantParam(r),
		UnitID:       generic.UnitID(req.UnitID),
		BillingMonth: month,
		SpAssessment: generic.Round(req.SpAssessment),
		Discounts:    generic.Round(req.Discounts),
		Remarks:      req.Remarks,
	}
	if err := h.Store.SaveAdjustment(r.Context(), adj); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save adjustment", err)
		return
	}
	writeJSON(w, http.StatusOK, AdjustmentDTO{
		ID:           adj.ID,
		UnitID:       string(adj.UnitID),
		BillingMonth: month.String(),
		SpAssessment: money(adj.SpAssessment),
		Discounts:    money(adj.Discounts),
		Remarks:      adj.Remarks,
	})
}

// =============================================================================
// ADVANCES
// =============================================================================

// GetAdvance returns a unit's pool balances and its ledger.
func (h *Handler) GetAdvance(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.requireTenant(w, r); !ok {
		return
	}
	unitID := generic.UnitID(chi.URLParam(r, "unitID"))
	if _, ok := h.requireUnit(w, r, unitID); !ok {
		return
	}
	dto, err := h.advanceDTO(r, unitID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load advances", err)
		return
	}
	writeJSON(w, http.StatusOK, dto)
}

// CreditAdvance records prepaid credit. Debits happen only when bills are
// generated.
func (h *Handler) CreditAdvance(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.requireTenant(w, r); !ok {
		return
	}
	unitID := generic.UnitID(chi.URLParam(r, "unitID"))
	if _, ok := h.requireUnit(w, r, unitID); !ok {
		return
	}
	var req CreditAdvanceRequest
	if !h.decodeRequest(w, r, &req) {
		return
	}

	_, err := billing.CreditAdvance(r.Context(), h.Store, tenantParam(r), unitID,
		generic.Pool(req.Pool), req.Amount, req.Reference, req.CreatedBy, time.Now().UTC())
	if err != nil {
		h.writeDomainError(w, r, "Failed to credit advance", err)
		return
	}

	dto, err := h.advanceDTO(r, unitID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load advances", err)
		return
	}
	writeJSON(w, http.StatusCreated, dto)
}

func (h *Handler) advanceDTO(r *http.Request, unitID generic.UnitID) (AdvanceDTO, error) {
	ctx := r.Context()
	tenantID := tenantParam(r)

	dues, err := h.Store.PoolBalance(ctx, tenantID, string(unitID), billing.PoolDues)
	if err != nil {
		return AdvanceDTO{}, err
	}
	util, err := h.Store.PoolBalance(ctx, tenantID, string(unitID), billing.PoolUtilities)
	if err != nil {
		return AdvanceDTO{}, err
	}
	entries, err := h.Store.Entries(ctx, tenantID, string(unitID))
	if err != nil {
		return AdvanceDTO{}, err
	}

	dto := AdvanceDTO{
		UnitID:           string(unitID),
		AdvanceDues:      money(dues),
		AdvanceUtilities: money(util),
		Entries:          make([]LedgerEntryDTO, 0, len(entries)),
	}
	for _, e := range entries {
		dto.Entries = append(dto.Entries, toLedgerEntryDTO(e))
	}
	return dto, nil
}

// =============================================================================
// BILLING
// =============================================================================

// PreviewBilling computes every active unit's bill for ?month without
// saving anything.
func (h *Handler) PreviewBilling(w http.ResponseWriter, r *http.Request) {
	month, err := generic.ParseMonth(r.URL.Query().Get("month"))
	if err != nil {
		h.writeDomainError(w, r, "Invalid month", err)
		return
	}

	res, err := h.Generator.Preview(r.Context(), tenantParam(r), month)
	if err != nil {
		h.writeDomainError(w, r, "Failed to preview billing", err)
		return
	}
	writeJSON(w, http.StatusOK, toPreviewResponse(res))
}

// GenerateBilling commits a month's bills.
func (h *Handler) GenerateBilling(w http.ResponseWriter, r *http.Request) {
	var req GenerateRequest
	if !h.decodeRequest(w, r, &req) {
		return
	}
	month, err := generic.ParseMonth(req.BillingMonth)
	if err != nil {
		h.writeDomainError(w, r, "Invalid month", err)
		return
	}
	createdBy := req.CreatedBy
	if createdBy == "" {
		createdBy = "api"
	}

	res, err := h.Generator.Commit(r.Context(), billing.CommitRequest{
		TenantID:   tenantParam(r),
		Month:      month,
		Regenerate: req.Regenerate,
		CreatedBy:  createdBy,
	})
	if err != nil {
		h.writeDomainError(w, r, "Failed to generate bills", err)
		return
	}

	writeJSON(w, http.StatusCreated, GenerateResponse{
		Message:  res.Message,
		Period:   toPeriodDTO(res.Period),
		Bills:    toBillDTOs(res.Bills),
		Summary:  toSummaryDTO(res.Summary),
		Replaced: res.Replaced,
		Warnings: append([]string{}, res.Warnings...),
	})
}

// ListBills returns the tenant's bills, optionally for one ?month.
func (h *Handler) ListBills(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.requireTenant(w, r); !ok {
		return
	}

	var month *generic.Month
	if q := r.URL.Query().Get("month"); q != "" {
		m, err := generic.ParseMonth(q)
		if err != nil {
			h.writeDomainError(w, r, "Invalid month", err)
			return
		}
		month = &m
	}

	bills, err := h.Store.ListBills(r.Context(), tenantParam(r), month)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list bills", err)
		return
	}
	writeJSON(w, http.StatusOK, toBillDTOs(bills))
}

// ResetDatabase clears all data.
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.Reset(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	h.setCurrentScenario("")
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// HELPERS
// =============================================================================

func tenantParam(r *http.Request) generic.TenantID {
	return generic.TenantID(chi.URLParam(r, "tenantID"))
}

// requireTenant writes 404 and returns false when the path's tenant is
// unknown.
func (h *Handler) requireTenant(w http.ResponseWriter, r *http.Request) (*billing.Tenant, bool) {
	t, err := h.Store.GetTenant(r.Context(), tenantParam(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get tenant", err)
		return nil, false
	}
	if t == nil {
		writeError(w, http.StatusNotFound, "Tenant not found", nil)
		return nil, false
	}
	return t, true
}

func (h *Handler) requireUnit(w http.ResponseWriter, r *http.Request, unitID generic.UnitID) (*billing.Unit, bool) {
	u, err := h.Store.GetUnit(r.Context(), tenantParam(r), unitID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get unit", err)
		return nil, false
	}
	if u == nil {
		writeError(w, http.StatusNotFound, "Unit not found", nil)
		return nil, false
	}
	return u, true
}

// decodeRequest decodes the JSON body into dst and validates its tags.
func (h *Handler) decodeRequest(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			writeError(w, http.StatusBadRequest, "Invalid request",
				fmt.Errorf("%s failed on '%s'", strings.ToLower(fe.Field()), fe.Tag()))
			return false
		}
		writeError(w, http.StatusBadRequest, "Invalid request", err)
		return false
	}
	return true
}

func nonNegative(fields map[string]decimal.Decimal) error {
	for name, v := range fields {
		if v.IsNegative() {
			return generic.NewValidationError(name, "must be >= 0, got %s", v)
		}
	}
	return nil
}

// writeDomainError maps the billing error taxonomy onto HTTP statuses.
// Computation failures are checked first: their cause may itself be a
// validation error.
func (h *Handler) writeDomainError(w http.ResponseWriter, r *http.Request, message string, err error) {
	var conflict *generic.ConflictError
	switch {
	case generic.IsComputation(err):
		h.Logger.Error(message,
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Error(err))
		writeError(w, http.StatusInternalServerError, message, err)
	case errors.As(err, &conflict):
		writeJSON(w, http.StatusConflict, ConflictResponse{
			Error:         message,
			Details:       err.Error(),
			ExistingCount: conflict.Existing,
		})
	case generic.IsClientError(err):
		writeError(w, http.StatusBadRequest, message, err)
	case generic.IsNotFound(err):
		writeError(w, http.StatusNotFound, message, err)
	default:
		h.Logger.Error(message,
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Error(err))
		writeError(w, http.StatusInternalServerError, message, err)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
