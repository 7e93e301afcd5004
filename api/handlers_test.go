/*
handlers_test.go - HTTP tests for the billing API

Tests for:
- Tenant, settings, unit and reading setup through the router
- Preview and generate, including the second-generate conflict
- Error mapping (400 for bad input, 404 for unknown tenants)
*/
package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/condo-billing/store/sqlite"
)

func newTestServer(t *testing.T) (*Handler, http.Handler) {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	h := NewHandler(store, Options{})
	h.Generator.Now = func() time.Time { return time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC) }
	return h, NewRouter(h, []string{"*"})
}

func do(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

// seedTenant creates tenant "t1" with preset rates and one 40 sq.m
// residential unit that used 100 kWh and 15 cu.m in February 2025.
func seedTenant(t *testing.T, router http.Handler) {
	t.Helper()

	rec := do(t, router, http.MethodPost, "/api/tenants", map[string]any{
		"id": "t1", "name": "Bayview Residences", "bill_prefix": "BAY",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = do(t, router, http.MethodPost, "/api/tenants/t1/units", map[string]any{
		"id": "u1", "unit_number": "1A", "floor": 1, "unit_type": "residential", "area": "40",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	for _, r := range []map[string]any{
		{"unit_id": "u1", "kind": "electric", "reading_month": "2025-02", "previous": "1000", "present": "1100"},
		{"unit_id": "u1", "kind": "water", "reading_month": "2025-02", "previous": "50", "present": "65"},
	} {
		rec = do(t, router, http.MethodPost, "/api/tenants/t1/readings", r)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}
}

func TestCreateTenant_SeedsDefaultSettings(t *testing.T) {
	_, router := newTestServer(t)
	seedTenant(t, router)

	rec := do(t, router, http.MethodGet, "/api/tenants/t1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	tenant := decode[TenantDTO](t, rec)
	assert.Equal(t, "BAY", tenant.BillPrefix)

	rec = do(t, router, http.MethodGet, "/api/tenants/t1/settings", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	settings := decode[SettingsDTO](t, rec)
	assert.Equal(t, "12.5", settings.Config.ElectricRate.String())
	assert.Len(t, settings.Config.WaterResidential, 7)
}

func TestPutSettings_RejectsInvalidSchedule(t *testing.T) {
	_, router := newTestServer(t)
	seedTenant(t, router)

	rec := do(t, router, http.MethodPut, "/api/tenants/t1/settings", map[string]any{
		"electric_rate":         "-1",
		"electric_min_charge":   "300",
		"association_dues_rate": "25",
		"parking_rate":          "100",
		"penalty_rate":          "0.10",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
}

func TestPutSettings_BumpsVersion(t *testing.T) {
	_, router := newTestServer(t)
	seedTenant(t, router)

	rec := do(t, router, http.MethodPut, "/api/tenants/t1/settings", map[string]any{
		"electric_rate":         "14",
		"electric_min_charge":   "300",
		"association_dues_rate": "25",
		"parking_rate":          "100",
		"penalty_rate":          "0.10",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	settings := decode[SettingsDTO](t, rec)
	assert.Equal(t, 2, settings.Version)

	rec = do(t, router, http.MethodGet, "/api/tenants/t1/billing/preview?month=2025-03", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	preview := decode[PreviewResponse](t, rec)
	assert.Equal(t, "1400.00", preview.Bills[0].Electric)
}

func TestPreviewBilling_ComputesUnitBill(t *testing.T) {
	_, router := newTestServer(t)
	seedTenant(t, router)

	rec := do(t, router, http.MethodGet, "/api/tenants/t1/billing/preview?month=2025-03", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	preview := decode[PreviewResponse](t, rec)
	require.Len(t, preview.Bills, 1)
	bill := preview.Bills[0]
	assert.Equal(t, "1250.00", bill.Electric)
	assert.Equal(t, "280.00", bill.Water)
	assert.Equal(t, 2, bill.WaterTier)
	assert.Equal(t, "1000.00", bill.AssociationDues)
	assert.Equal(t, "2530.00", bill.Total)

	assert.Equal(t, "2025-02-27", preview.Period.PeriodFrom)
	assert.Equal(t, "2025-03-26", preview.Period.PeriodTo)
	assert.True(t, preview.Validation.NoPaymentsRecorded)
	assert.True(t, preview.Validation.NoAdjustments)

	// Preview never writes.
	rec = do(t, router, http.MethodGet, "/api/tenants/t1/bills", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[[]BillDTO](t, rec))
}

func TestGenerateBilling_CreatesBillsOnce(t *testing.T) {
	_, router := newTestServer(t)
	seedTenant(t, router)

	rec := do(t, router, http.MethodPost, "/api/tenants/t1/billing/generate", map[string]any{
		"billing_month": "2025-03",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	gen := decode[GenerateResponse](t, rec)
	require.Len(t, gen.Bills, 1)
	assert.Equal(t, "BAY-202503-0001", gen.Bills[0].BillNumber)
	assert.Equal(t, "2530.00", gen.Bills[0].TotalAmount)
	assert.Equal(t, "UNPAID", gen.Bills[0].Status)
	assert.Equal(t, "api", gen.Bills[0].CreatedBy)

	// Second generate for the same month is refused.
	rec = do(t, router, http.MethodPost, "/api/tenants/t1/billing/generate", map[string]any{
		"billing_month": "2025-03",
	})
	require.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())
	conflict := decode[ConflictResponse](t, rec)
	assert.Equal(t, 1, conflict.ExistingCount)

	// Regenerate replaces and reuses the number.
	rec = do(t, router, http.MethodPost, "/api/tenants/t1/billing/generate", map[string]any{
		"billing_month": "2025-03", "regenerate": true,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	gen = decode[GenerateResponse](t, rec)
	assert.Equal(t, 1, gen.Replaced)
	assert.Equal(t, "BAY-202503-0001", gen.Bills[0].BillNumber)

	rec = do(t, router, http.MethodGet, "/api/tenants/t1/bills?month=2025-03", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]BillDTO](t, rec), 1)
}

func TestGenerateBilling_AppliesAdvanceCredit(t *testing.T) {
	_, router := newTestServer(t)
	seedTenant(t, router)

	rec := do(t, router, http.MethodPost, "/api/tenants/t1/advances/u1", map[string]any{
		"pool": "dues", "amount": "600", "reference": "OR-77",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = do(t, router, http.MethodPost, "/api/tenants/t1/billing/generate", map[string]any{
		"billing_month": "2025-03",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	gen := decode[GenerateResponse](t, rec)
	assert.Equal(t, "600.00", gen.Bills[0].AdvanceDuesApplied)
	assert.Equal(t, "1930.00", gen.Bills[0].TotalAmount)

	rec = do(t, router, http.MethodGet, "/api/tenants/t1/advances/u1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	adv := decode[AdvanceDTO](t, rec)
	assert.Equal(t, "0.00", adv.AdvanceDues)
	assert.Len(t, adv.Entries, 2)
}

func TestSaveAdjustment_FlowsIntoPreview(t *testing.T) {
	_, router := newTestServer(t)
	seedTenant(t, router)

	rec := do(t, router, http.MethodPut, "/api/tenants/t1/adjustments", map[string]any{
		"unit_id": "u1", "billing_month": "2025-03", "sp_assessment": "500", "discounts": "30",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(t, router, http.MethodGet, "/api/tenants/t1/billing/preview?month=2025-03", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	preview := decode[PreviewResponse](t, rec)
	assert.Equal(t, "3000.00", preview.Bills[0].Total)
	assert.False(t, preview.Validation.NoAdjustments)
}

func TestRequests_RejectBadInput(t *testing.T) {
	_, router := newTestServer(t)
	seedTenant(t, router)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
	}{
		{"malformed preview month", http.MethodGet, "/api/tenants/t1/billing/preview?month=2025-13", nil, http.StatusBadRequest},
		{"missing preview month", http.MethodGet, "/api/tenants/t1/billing/preview", nil, http.StatusBadRequest},
		{"malformed generate month", http.MethodPost, "/api/tenants/t1/billing/generate", map[string]any{"billing_month": "March"}, http.StatusBadRequest},
		{"backwards reading", http.MethodPost, "/api/tenants/t1/readings", map[string]any{
			"unit_id": "u1", "kind": "water", "reading_month": "2025-02", "previous": "70", "present": "65",
		}, http.StatusBadRequest},
		{"unknown reading kind", http.MethodPost, "/api/tenants/t1/readings", map[string]any{
			"unit_id": "u1", "kind": "gas", "reading_month": "2025-02", "previous": "1", "present": "2",
		}, http.StatusBadRequest},
		{"negative area", http.MethodPost, "/api/tenants/t1/units", map[string]any{
			"unit_number": "9Z", "unit_type": "residential", "area": "-5",
		}, http.StatusBadRequest},
		{"unknown pool", http.MethodPost, "/api/tenants/t1/advances/u1", map[string]any{
			"pool": "parking", "amount": "10", "reference": "OR-1",
		}, http.StatusBadRequest},
		{"unknown tenant", http.MethodGet, "/api/tenants/nope/billing/preview?month=2025-03", nil, http.StatusNotFound},
		{"unknown tenant bills", http.MethodGet, "/api/tenants/nope/bills", nil, http.StatusNotFound},
		{"unknown unit", http.MethodGet, "/api/tenants/t1/advances/nope", nil, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, router, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}
}

func TestHealth(t *testing.T) {
	_, router := newTestServer(t)
	rec := do(t, router, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
