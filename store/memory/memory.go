// Package memory provides an in-memory billing.TxStore for tests and dev.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/condo-billing/billing"
	"github.com/warp/condo-billing/generic"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory keeps every table in maps guarded by one mutex. WithTx works on a
// copy of the data and swaps it in on success, so a failed transaction
// leaves nothing behind.
type Memory struct {
	mu sync.Mutex
	d  *dataset

	// OnInsertBill, when set, runs before each bill insert. Tests use it to
	// inject failures mid-batch.
	OnInsertBill func(billing.Bill) error
}

type readingKey struct {
	unit  generic.UnitID
	kind  billing.ReadingKind
	month generic.Month
}

type adjustmentKey struct {
	unit  generic.UnitID
	month generic.Month
}

type poolKey struct {
	tenant  generic.TenantID
	account string
	pool    generic.Pool
}

type dataset struct {
	tenants     map[generic.TenantID]billing.Tenant
	rates       map[generic.TenantID]billing.RateConfiguration
	units       map[generic.UnitID]billing.Unit
	readings    map[readingKey]billing.Reading
	adjustments map[adjustmentKey]billing.Adjustment
	balances    map[poolKey]decimal.Decimal
	entries     []generic.LedgerEntry
	entryIDs    map[string]bool
	bills       []billing.Bill
	payments    []billing.Payment
}

func newDataset() *dataset {
	return &dataset{
		tenants:     make(map[generic.TenantID]billing.Tenant),
		rates:       make(map[generic.TenantID]billing.RateConfiguration),
		units:       make(map[generic.UnitID]billing.Unit),
		readings:    make(map[readingKey]billing.Reading),
		adjustments: make(map[adjustmentKey]billing.Adjustment),
		balances:    make(map[poolKey]decimal.Decimal),
		entryIDs:    make(map[string]bool),
	}
}

func (d *dataset) clone() *dataset {
	c := newDataset()
	for k, v := range d.tenants {
		c.tenants[k] = v
	}
	for k, v := range d.rates {
		c.rates[k] = v
	}
	for k, v := range d.units {
		c.units[k] = v
	}
	for k, v := range d.readings {
		c.readings[k] = v
	}
	for k, v := range d.adjustments {
		c.adjustments[k] = v
	}
	for k, v := range d.balances {
		c.balances[k] = v
	}
	for k, v := range d.entryIDs {
		c.entryIDs[k] = v
	}
	c.entries = append([]generic.LedgerEntry{}, d.entries...)
	c.bills = append([]billing.Bill{}, d.bills...)
	c.payments = append([]billing.Payment{}, d.payments...)
	return c
}

func New() *Memory {
	return &Memory{d: newDataset()}
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx runs fn against a private copy of the data. Concurrent WithTx
// calls are serialized.
func (m *Memory) WithTx(_ context.Context, fn func(billing.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	view := &Memory{d: m.d.clone(), OnInsertBill: m.OnInsertBill}
	if err := fn(view); err != nil {
		return err
	}
	m.d = view.d
	return nil
}

// =============================================================================
// SEEDING - Registry writes used by tests and scenarios
// =============================================================================

func (m *Memory) PutTenant(t billing.Tenant) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.d.tenants[t.ID] = t
}

func (m *Memory) PutRateConfiguration(c billing.RateConfiguration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.d.rates[c.TenantID] = c
}

func (m *Memory) PutUnit(u billing.Unit) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.d.units[u.ID] = u
}

func (m *Memory) PutReading(r billing.Reading) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.d.readings[readingKey{r.UnitID, r.Kind, r.ReadingMonth}] = r
}

func (m *Memory) PutAdjustment(a billing.Adjustment) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.d.adjustments[adjustmentKey{a.UnitID, a.BillingMonth}] = a
}

func (m *Memory) PutBill(b billing.Bill) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.d.bills = append(m.d.bills, b)
}

func (m *Memory) PutPayment(p billing.Payment) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.d.payments = append(m.d.payments, p)
}

// =============================================================================
// READS (billing.Reader)
// =============================================================================

func (m *Memory) GetTenant(_ context.Context, tenantID generic.TenantID) (*billing.Tenant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.d.tenants[tenantID]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

func (m *Memory) GetRateConfiguration(_ context.Context, tenantID generic.TenantID) (*billing.RateConfiguration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.d.rates[tenantID]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (m *Memory) ListActiveUnits(_ context.Context, tenantID generic.TenantID) ([]billing.Unit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var units []billing.Unit
	for _, u := range m.d.units {
		if u.TenantID == tenantID && u.Active {
			units = append(units, u)
		}
	}
	sort.Slice(units, func(i, j int) bool {
		if units[i].Floor != units[j].Floor {
			return units[i].Floor < units[j].Floor
		}
		return units[i].UnitNumber < units[j].UnitNumber
	})
	return units, nil
}

func (m *Memory) ListReadings(_ context.Context, tenantID generic.TenantID, kind billing.ReadingKind, readingMonth generic.Month) ([]billing.Reading, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var readings []billing.Reading
	for k, r := range m.d.readings {
		if r.TenantID == tenantID && k.kind == kind && k.month.Equal(readingMonth) {
			readings = append(readings, r)
		}
	}
	return readings, nil
}

func (m *Memory) ListAdjustments(_ context.Context, tenantID generic.TenantID, billingMonth generic.Month) ([]billing.Adjustment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var adjustments []billing.Adjustment
	for k, a := range m.d.adjustments {
		if a.TenantID == tenantID && k.month.Equal(billingMonth) {
			adjustments = append(adjustments, a)
		}
	}
	return adjustments, nil
}

func (m *Memory) ListAdvanceBalances(_ context.Context, tenantID generic.TenantID) ([]billing.AdvanceBalance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	byUnit := map[generic.UnitID]*billing.AdvanceBalance{}
	for k, v := range m.d.balances {
		if k.tenant != tenantID {
			continue
		}
		unitID := generic.UnitID(k.account)
		b, ok := byUnit[unitID]
		if !ok {
			b = &billing.AdvanceBalance{UnitID: unitID}
			byUnit[unitID] = b
		}
		switch k.pool {
		case billing.PoolDues:
			b.AdvanceDues = v
		case billing.PoolUtilities:
			b.AdvanceUtilities = v
		}
	}
	balances := make([]billing.AdvanceBalance, 0, len(byUnit))
	for _, b := range byUnit {
		balances = append(balances, *b)
	}
	return balances, nil
}

func (m *Memory) ListOutstandingBills(_ context.Context, tenantID generic.TenantID, before generic.Month) ([]billing.Bill, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var bills []billing.Bill
	for _, b := range m.d.bills {
		if b.TenantID == tenantID && b.BillingMonth.Before(before) && b.Status.Outstanding() {
			bills = append(bills, b)
		}
	}
	return bills, nil
}

func (m *Memory) ListBills(_ context.Context, tenantID generic.TenantID, month *generic.Month) ([]billing.Bill, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var bills []billing.Bill
	for _, b := range m.d.bills {
		if b.TenantID != tenantID {
			continue
		}
		if month != nil && !b.BillingMonth.Equal(*month) {
			continue
		}
		bills = append(bills, b)
	}
	return bills, nil
}

func (m *Memory) CountPayments(_ context.Context, tenantID generic.TenantID, from, to time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	from, to = generic.DateOnly(from), generic.DateOnly(to)
	count := 0
	for _, p := range m.d.payments {
		d := generic.DateOnly(p.PaidAt)
		if p.TenantID == tenantID && !d.Before(from) && !d.After(to) {
			count++
		}
	}
	return count, nil
}

// =============================================================================
// WRITES (billing.Writer)
// =============================================================================

func (m *Memory) CountRegularBills(_ context.Context, tenantID generic.TenantID, month generic.Month) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, b := range m.d.bills {
		if b.TenantID == tenantID && b.BillingMonth.Equal(month) && b.Type == billing.BillRegular {
			count++
		}
	}
	return count, nil
}

func (m *Memory) DeleteRegularBills(_ context.Context, tenantID generic.TenantID, month generic.Month) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.d.bills[:0:0]
	deleted := 0
	for _, b := range m.d.bills {
		if b.TenantID == tenantID && b.BillingMonth.Equal(month) && b.Type == billing.BillRegular {
			deleted++
			continue
		}
		kept = append(kept, b)
	}
	m.d.bills = kept
	return deleted, nil
}

// LastBillNumber returns the number of the tenant's most recently inserted bill.
func (m *Memory) LastBillNumber(_ context.Context, tenantID generic.TenantID) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.d.bills) - 1; i >= 0; i-- {
		if m.d.bills[i].TenantID == tenantID {
			return m.d.bills[i].BillNumber, nil
		}
	}
	return "", nil
}

func (m *Memory) InsertBill(_ context.Context, bill billing.Bill) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.OnInsertBill != nil {
		if err := m.OnInsertBill(bill); err != nil {
			return err
		}
	}
	m.d.bills = append(m.d.bills, bill)
	return nil
}

// =============================================================================
// LEDGER (generic.Ledger)
// =============================================================================

// Post appends an entry and moves the pool balance. Overdrafts are refused.
func (m *Memory) Post(_ context.Context, entry generic.LedgerEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := entry.Validate(); err != nil {
		return err
	}
	if m.d.entryIDs[entry.ID] {
		return generic.ErrDuplicateEntry
	}
	k := poolKey{entry.TenantID, entry.Account, entry.Pool}
	next := m.d.balances[k].Add(entry.Delta())
	if next.IsNegative() {
		return &generic.InsufficientBalanceError{
			Account:   entry.Account,
			Pool:      string(entry.Pool),
			Available: m.d.balances[k].String(),
			Requested: entry.Amount.String(),
		}
	}
	m.d.balances[k] = next
	m.d.entries = append(m.d.entries, entry)
	m.d.entryIDs[entry.ID] = true
	return nil
}

func (m *Memory) PoolBalance(_ context.Context, tenantID generic.TenantID, account string, pool generic.Pool) (decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.d.balances[poolKey{tenantID, account, pool}], nil
}

func (m *Memory) Entries(_ context.Context, tenantID generic.TenantID, account string) ([]generic.LedgerEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var entries []generic.LedgerEntry
	for _, e := range m.d.entries {
		if e.TenantID == tenantID && e.Account == account {
			entries = append(entries, e)
		}
	}
	return entries, nil
}

var _ billing.TxStore = (*Memory)(nil)
