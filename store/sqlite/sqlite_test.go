package sqlite_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/condo-billing/billing"
	"github.com/warp/condo-billing/factory"
	"github.com/warp/condo-billing/generic"
	"github.com/warp/condo-billing/store/sqlite"
)

var (
	dec2024 = generic.NewMonth(2024, time.December)
	jan2025 = generic.NewMonth(2025, time.January)
	feb2025 = generic.NewMonth(2025, time.February)
	mar2025 = generic.NewMonth(2025, time.March)
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func bill(unit generic.UnitID, number string, month generic.Month, balance string) billing.Bill {
	return billing.Bill{
		ID:           generic.BillID("bill-" + number),
		TenantID:     "t1",
		UnitID:       unit,
		BillNumber:   number,
		BillingMonth: month,
		TotalAmount:  d(balance),
		Balance:      d(balance),
		Status:       billing.StatusUnpaid,
		Type:         billing.BillRegular,
	}
}

// seed loads tenant t1 with two billable units:
//
//	101 residential: readings, adjustment, advances, unpaid January bill (March total 4180)
//	102 commercial:  readings, opening-balance bill from December (March total 7270)
func seed(t *testing.T, store *sqlite.Store) {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, store.SaveTenant(ctx, billing.Tenant{ID: "t1", Name: "Acme Towers", BillPrefix: "ACME"}))
	_, err := store.SaveRateConfiguration(ctx, factory.DefaultRateConfiguration("t1"))
	require.NoError(t, err)

	require.NoError(t, store.SaveUnit(ctx, billing.Unit{ID: "u-101", TenantID: "t1", UnitNumber: "101", Floor: 1, Type: billing.UnitResidential, Area: d("50"), ParkingArea: d("12.5"), Active: true}))
	require.NoError(t, store.SaveUnit(ctx, billing.Unit{ID: "u-102", TenantID: "t1", UnitNumber: "102", Floor: 1, Type: billing.UnitCommercial, Area: d("40"), Active: true}))

	for _, r := range []billing.Reading{
		{ID: "r1", TenantID: "t1", UnitID: "u-101", Kind: billing.ReadingElectric, ReadingMonth: feb2025, Previous: d("1000"), Present: d("1100")},
		{ID: "r2", TenantID: "t1", UnitID: "u-101", Kind: billing.ReadingWater, ReadingMonth: feb2025, Previous: d("500"), Present: d("534")},
		{ID: "r3", TenantID: "t1", UnitID: "u-102", Kind: billing.ReadingElectric, ReadingMonth: feb2025, Previous: d("200"), Present: d("260")},
		{ID: "r4", TenantID: "t1", UnitID: "u-102", Kind: billing.ReadingWater, ReadingMonth: feb2025, Previous: d("100"), Present: d("115")},
	} {
		require.NoError(t, store.SaveReading(ctx, r))
	}
	require.NoError(t, store.SaveAdjustment(ctx, billing.Adjustment{ID: "a1", TenantID: "t1", UnitID: "u-101", BillingMonth: mar2025, SpAssessment: d("500"), Discounts: d("200")}))

	ob := bill("u-102", "ACME-202412-0004", dec2024, "5000")
	ob.Type = billing.BillOpeningBalance
	require.NoError(t, store.InsertBill(ctx, ob))
	require.NoError(t, store.InsertBill(ctx, bill("u-101", "ACME-202501-0005", jan2025, "1000")))

	now := time.Date(2025, time.February, 20, 0, 0, 0, 0, time.UTC)
	_, err = billing.CreditAdvance(ctx, store, "t1", "u-101", billing.PoolDues, d("1000"), "OR-1", "cashier", now)
	require.NoError(t, err)
	_, err = billing.CreditAdvance(ctx, store, "t1", "u-101", billing.PoolUtilities, d("500"), "OR-2", "cashier", now)
	require.NoError(t, err)
}

func newGenerator(store billing.TxStore) *billing.Generator {
	g := billing.NewGenerator(store, nil)
	g.Now = func() time.Time { return time.Date(2025, time.March, 27, 8, 0, 0, 0, time.UTC) }
	return g
}

// =============================================================================
// REGISTRY
// =============================================================================

func TestStore_TenantRoundTrip(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	missing, err := store.GetTenant(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)

	require.NoError(t, store.SaveTenant(ctx, billing.Tenant{ID: "t1", Name: "Acme Towers", BillPrefix: "ACME"}))
	got, err := store.GetTenant(ctx, "t1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "ACME", got.BillPrefix)
	assert.False(t, got.CreatedAt.IsZero())

	tenants, err := store.ListTenants(ctx)
	require.NoError(t, err)
	assert.Len(t, tenants, 1)
}

func TestStore_RateConfigurationVersionsOnEverySave(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	require.NoError(t, store.SaveTenant(ctx, billing.Tenant{ID: "t1", Name: "Acme"}))

	cfg := factory.DefaultRateConfiguration("t1")
	v1, err := store.SaveRateConfiguration(ctx, cfg)
	require.NoError(t, err)
	cfg.ElectricRate = d("13.75")
	v2, err := store.SaveRateConfiguration(ctx, cfg)
	require.NoError(t, err)

	assert.Equal(t, 1, v1)
	assert.Equal(t, 2, v2)

	got, err := store.GetRateConfiguration(ctx, "t1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 2, got.Version)
	assert.True(t, d("13.75").Equal(got.ElectricRate))
	require.NoError(t, got.Validate())
}

func TestStore_ActiveUnitsOrderedByFloorThenNumber(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	require.NoError(t, store.SaveTenant(ctx, billing.Tenant{ID: "t1", Name: "Acme"}))

	for _, u := range []billing.Unit{
		{ID: "a", TenantID: "t1", UnitNumber: "201", Floor: 2, Type: billing.UnitResidential, Active: true},
		{ID: "b", TenantID: "t1", UnitNumber: "102", Floor: 1, Type: billing.UnitCommercial, Active: true},
		{ID: "c", TenantID: "t1", UnitNumber: "101", Floor: 1, Type: billing.UnitResidential, Active: true},
		{ID: "e", TenantID: "t1", UnitNumber: "301", Floor: 3, Type: billing.UnitResidential, Active: false},
	} {
		require.NoError(t, store.SaveUnit(ctx, u))
	}

	active, err := store.ListActiveUnits(ctx, "t1")
	require.NoError(t, err)
	var numbers []string
	for _, u := range active {
		numbers = append(numbers, u.UnitNumber)
	}
	assert.Equal(t, []string{"101", "102", "201"}, numbers)

	all, err := store.ListUnits(ctx, "t1")
	require.NoError(t, err)
	assert.Len(t, all, 4)

	err = store.SaveUnit(ctx, billing.Unit{ID: "dup", TenantID: "t1", UnitNumber: "101", Type: billing.UnitResidential})
	require.Error(t, err)
	assert.True(t, generic.IsClientError(err))
}

func TestStore_SaveReadingUpsertsAndRejectsBackwards(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	require.NoError(t, store.SaveTenant(ctx, billing.Tenant{ID: "t1", Name: "Acme"}))
	require.NoError(t, store.SaveUnit(ctx, billing.Unit{ID: "u1", TenantID: "t1", UnitNumber: "101", Type: billing.UnitResidential, Active: true}))

	r := billing.Reading{ID: "r1", TenantID: "t1", UnitID: "u1", Kind: billing.ReadingWater, ReadingMonth: feb2025, Previous: d("10"), Present: d("20")}
	require.NoError(t, store.SaveReading(ctx, r))
	r.ID = "r2"
	r.Present = d("25")
	require.NoError(t, store.SaveReading(ctx, r))

	readings, err := store.ListReadings(ctx, "t1", billing.ReadingWater, feb2025)
	require.NoError(t, err)
	require.Len(t, readings, 1)
	assert.True(t, d("25").Equal(readings[0].Present))

	r.Present = d("5")
	err = store.SaveReading(ctx, r)
	require.Error(t, err)
	assert.True(t, generic.IsClientError(err))
}

// =============================================================================
// LEDGER
// =============================================================================

func TestStore_LedgerRejectsOverdraftAndKeepsBalance(t *testing.T) {
	// GIVEN: a dues pool with 100
	// WHEN: debiting 150
	// THEN: rejected, balance and entries unchanged

	store := newStore(t)
	ctx := context.Background()
	now := time.Now()

	_, err := billing.CreditAdvance(ctx, store, "t1", "u1", billing.PoolDues, d("100"), "OR-1", "cashier", now)
	require.NoError(t, err)

	err = store.Post(ctx, generic.LedgerEntry{
		ID: "debit-1", TenantID: "t1", Account: "u1", Pool: billing.PoolDues,
		Type: generic.EntryDebit, Amount: d("150"), Reference: "SOA-202503-0001",
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, generic.ErrInsufficientBalance))

	balance, err := store.PoolBalance(ctx, "t1", "u1", billing.PoolDues)
	require.NoError(t, err)
	assert.True(t, d("100").Equal(balance))

	entries, err := store.Entries(ctx, "t1", "u1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, balance.Equal(generic.ReplayBalance(entries, billing.PoolDues)))
}

func TestStore_LedgerRejectsDuplicateEntryID(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	e := generic.LedgerEntry{ID: "e1", TenantID: "t1", Account: "u1", Pool: billing.PoolUtilities, Type: generic.EntryCredit, Amount: d("10")}

	require.NoError(t, store.Post(ctx, e))
	assert.ErrorIs(t, store.Post(ctx, e), generic.ErrDuplicateEntry)
}

// =============================================================================
// BILLS
// =============================================================================

func TestStore_OneRegularBillPerUnitAndMonth(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	require.NoError(t, store.InsertBill(ctx, bill("u1", "SOA-202503-0001", mar2025, "100")))

	err := store.InsertBill(ctx, bill("u1", "SOA-202503-0002", mar2025, "100"))
	require.Error(t, err)
	assert.True(t, generic.IsConflict(err))

	ob := bill("u1", "OB-0001", mar2025, "100")
	ob.Type = billing.BillOpeningBalance
	require.NoError(t, store.InsertBill(ctx, ob), "opening balances live beside regular bills")

	n, err := store.CountRegularBills(ctx, "t1", mar2025)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestStore_LastBillNumberFollowsInsertOrder(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	last, err := store.LastBillNumber(ctx, "t1")
	require.NoError(t, err)
	assert.Empty(t, last)

	require.NoError(t, store.InsertBill(ctx, bill("u1", "SOA-202504-0009", generic.NewMonth(2025, time.April), "1")))
	require.NoError(t, store.InsertBill(ctx, bill("u1", "SOA-202503-0010", mar2025, "1")))

	last, err = store.LastBillNumber(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "SOA-202503-0010", last)
}

func TestStore_OutstandingBillsBeforeMonth(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	paid := bill("u1", "SOA-202501-0001", jan2025, "0")
	paid.Status = billing.StatusPaid
	require.NoError(t, store.InsertBill(ctx, paid))
	require.NoError(t, store.InsertBill(ctx, bill("u1", "SOA-202502-0002", feb2025, "500")))
	require.NoError(t, store.InsertBill(ctx, bill("u1", "SOA-202503-0003", mar2025, "700")))

	got, err := store.ListOutstandingBills(ctx, "t1", mar2025)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "SOA-202502-0002", got[0].BillNumber)
	assert.True(t, d("500").Equal(got[0].Balance))
}

func TestStore_CountPaymentsByDate(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	for i, at := range []time.Time{
		time.Date(2025, time.January, 27, 9, 0, 0, 0, time.UTC),
		time.Date(2025, time.February, 26, 23, 0, 0, 0, time.UTC),
		time.Date(2025, time.February, 27, 0, 0, 0, 0, time.UTC),
	} {
		require.NoError(t, store.InsertPayment(ctx, billing.Payment{
			ID: "p" + string(rune('1'+i)), TenantID: "t1", UnitID: "u1", Amount: d("10"), PaidAt: at,
		}))
	}

	n, err := store.CountPayments(ctx, "t1",
		time.Date(2025, time.January, 27, 0, 0, 0, 0, time.UTC),
		time.Date(2025, time.February, 26, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestStore_WithTxRollsBackOnError(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := store.WithTx(ctx, func(tx billing.Store) error {
		require.NoError(t, tx.InsertBill(ctx, bill("u1", "SOA-202503-0001", mar2025, "100")))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	bills, err := store.ListBills(ctx, "t1", nil)
	require.NoError(t, err)
	assert.Empty(t, bills)
}

func TestStore_Reset(t *testing.T) {
	store := newStore(t)
	seed(t, store)
	ctx := context.Background()

	require.NoError(t, store.Reset(ctx))

	tenants, err := store.ListTenants(ctx)
	require.NoError(t, err)
	assert.Empty(t, tenants)
	entries, err := store.Entries(ctx, "t1", "u-101")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

// =============================================================================
// GENERATION END TO END
// =============================================================================

func TestGenerator_CommitOnSQLite(t *testing.T) {
	// GIVEN: the seeded tenant
	// WHEN: committing March
	// THEN: two bills continue the tenant counter, advances are drawn down,
	//       and a second commit conflicts

	store := newStore(t)
	seed(t, store)
	ctx := context.Background()
	g := newGenerator(store)

	res, err := g.Commit(ctx, billing.CommitRequest{TenantID: "t1", Month: mar2025, CreatedBy: "admin"})
	require.NoError(t, err)
	require.Len(t, res.Bills, 2)
	assert.Equal(t, "ACME-202503-0006", res.Bills[0].BillNumber)
	assert.Equal(t, "ACME-202503-0007", res.Bills[1].BillNumber)
	assert.True(t, d("11450").Equal(res.Summary.Total), "total %s", res.Summary.Total)

	stored, err := store.ListBills(ctx, "t1", &mar2025)
	require.NoError(t, err)
	require.Len(t, stored, 2)
	for _, b := range stored {
		require.NoError(t, b.CheckTotals())
		assert.Equal(t, mar2025.Day(27), b.StatementDate)
	}

	dues, err := store.PoolBalance(ctx, "t1", "u-101", billing.PoolDues)
	require.NoError(t, err)
	assert.True(t, dues.IsZero())
	entries, err := store.Entries(ctx, "t1", "u-101")
	require.NoError(t, err)
	assert.Len(t, entries, 4)

	_, err = g.Commit(ctx, billing.CommitRequest{TenantID: "t1", Month: mar2025})
	require.Error(t, err)
	var conflict *generic.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, 2, conflict.Existing)
}

func TestGenerator_RegenerateOnSQLiteRestoresAdvances(t *testing.T) {
	store := newStore(t)
	seed(t, store)
	ctx := context.Background()
	g := newGenerator(store)

	_, err := g.Commit(ctx, billing.CommitRequest{TenantID: "t1", Month: mar2025})
	require.NoError(t, err)

	res, err := g.Commit(ctx, billing.CommitRequest{TenantID: "t1", Month: mar2025, Regenerate: true})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Replaced)
	assert.Len(t, res.Bills, 2)

	entries, err := store.Entries(ctx, "t1", "u-101")
	require.NoError(t, err)
	assert.True(t, generic.ReplayBalance(entries, billing.PoolDues).IsZero())
	assert.True(t, generic.ReplayBalance(entries, billing.PoolUtilities).IsZero())

	all, err := store.ListBills(ctx, "t1", &mar2025)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestGenerator_ConcurrentCommitsOnFileDatabase(t *testing.T) {
	// GIVEN: a file database shared by two commits for the same month
	// WHEN: both run at once
	// THEN: exactly one succeeds, the other sees the committed batch

	store, err := sqlite.New(filepath.Join(t.TempDir(), "billing.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	seed(t, store)
	g := newGenerator(store)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		ok        int
		conflicts int
	)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := g.Commit(context.Background(), billing.CommitRequest{TenantID: "t1", Month: mar2025})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case generic.IsConflict(err):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, conflicts)

	n, err := store.CountRegularBills(context.Background(), "t1", mar2025)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}
