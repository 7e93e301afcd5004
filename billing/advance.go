package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/warp/condo-billing/generic"
)

// =============================================================================
// ADVANCE LEDGER - Applying allocations as postings
// =============================================================================

// ApplyAllocation debits a unit's pools by exactly what the allocator
// decided for bill billNumber. It must run inside the commit transaction;
// a shortfall aborts the whole batch.
func ApplyAllocation(ctx context.Context, ledger generic.Ledger, tenantID generic.TenantID, unitID generic.UnitID, alloc Allocation, billNumber, actor string, now time.Time) error {
	for _, draw := range []struct {
		pool   generic.Pool
		amount decimal.Decimal
	}{
		{PoolDues, alloc.DuesApplied},
		{PoolUtilities, alloc.UtilApplied},
	} {
		if !draw.amount.IsPositive() {
			continue
		}
		entry := generic.LedgerEntry{
			ID:        uuid.NewString(),
			TenantID:  tenantID,
			Account:   string(unitID),
			Pool:      draw.pool,
			Type:      generic.EntryDebit,
			Amount:    draw.amount,
			Reference: billNumber,
			Reason:    fmt.Sprintf("applied to %s", billNumber),
			CreatedBy: actor,
			CreatedAt: now,
		}
		if err := ledger.Post(ctx, entry); err != nil {
			return fmt.Errorf("failed to debit %s advance for unit %s: %w", draw.pool, unitID, err)
		}
	}
	return nil
}

// ReverseAllocation credits back what a bill drew, used when a period is
// regenerated and its bills are deleted.
func ReverseAllocation(ctx context.Context, ledger generic.Ledger, bill Bill, actor string, now time.Time) error {
	for _, draw := range []struct {
		pool   generic.Pool
		amount decimal.Decimal
	}{
		{PoolDues, bill.AdvanceDuesApplied},
		{PoolUtilities, bill.AdvanceUtilApplied},
	} {
		if !draw.amount.IsPositive() {
			continue
		}
		entry := generic.LedgerEntry{
			ID:        uuid.NewString(),
			TenantID:  bill.TenantID,
			Account:   string(bill.UnitID),
			Pool:      draw.pool,
			Type:      generic.EntryCredit,
			Amount:    draw.amount,
			Reference: bill.BillNumber,
			Reason:    fmt.Sprintf("reversed: %s regenerated", bill.BillNumber),
			CreatedBy: actor,
			CreatedAt: now,
		}
		if err := ledger.Post(ctx, entry); err != nil {
			return fmt.Errorf("failed to reverse %s advance for unit %s: %w", draw.pool, bill.UnitID, err)
		}
	}
	return nil
}

// CreditAdvance records prepaid credit into one pool. This is the hook the
// external payment workflow calls.
func CreditAdvance(ctx context.Context, ledger generic.Ledger, tenantID generic.TenantID, unitID generic.UnitID, pool generic.Pool, amount decimal.Decimal, reference, actor string, now time.Time) (generic.LedgerEntry, error) {
	if pool != PoolDues && pool != PoolUtilities {
		return generic.LedgerEntry{}, generic.NewValidationError("pool", "unknown advance pool %q", pool)
	}
	entry := generic.LedgerEntry{
		ID:        uuid.NewString(),
		TenantID:  tenantID,
		Account:   string(unitID),
		Pool:      pool,
		Type:      generic.EntryCredit,
		Amount:    generic.Round(amount),
		Reference: reference,
		Reason:    "advance payment",
		CreatedBy: actor,
		CreatedAt: now,
	}
	if err := entry.Validate(); err != nil {
		return generic.LedgerEntry{}, err
	}
	if err := ledger.Post(ctx, entry); err != nil {
		return generic.LedgerEntry{}, err
	}
	return entry, nil
}
