/*
store.go - Persistence interfaces consumed by the generator

READS (preview and commit):
  Tenant, rate configuration, active units (floor, then unit number),
  readings for the reading month, adjustments for the billing month,
  advance balances, outstanding bills before the billing month, and a
  payment count for the tenant-wide warning.

WRITES (commit only, always inside WithTx):
  Regular-bill count / delete for a month, last bill number, bill insert,
  and ledger postings against the advance pools.

MISSING ROWS:
  Single-row getters return (nil, nil) when the row does not exist. The
  generator turns that into a NotFoundError.

IMPLEMENTATIONS:
  - store/sqlite: production
  - store/memory: tests
*/
package billing

import (
	"context"
	"time"

	"github.com/warp/condo-billing/generic"
)

// RateSource loads a tenant's active rate configuration.
type RateSource interface {
	GetRateConfiguration(ctx context.Context, tenantID generic.TenantID) (*RateConfiguration, error)
}

// Reader is the read side used to build previews.
type Reader interface {
	RateSource

	GetTenant(ctx context.Context, tenantID generic.TenantID) (*Tenant, error)

	// ListActiveUnits returns active units ordered by floor, then unit number.
	ListActiveUnits(ctx context.Context, tenantID generic.TenantID) ([]Unit, error)

	ListReadings(ctx context.Context, tenantID generic.TenantID, kind ReadingKind, readingMonth generic.Month) ([]Reading, error)
	ListAdjustments(ctx context.Context, tenantID generic.TenantID, billingMonth generic.Month) ([]Adjustment, error)
	ListAdvanceBalances(ctx context.Context, tenantID generic.TenantID) ([]AdvanceBalance, error)

	// ListOutstandingBills returns UNPAID/PARTIAL bills of every type with a
	// billing month strictly before the given month.
	ListOutstandingBills(ctx context.Context, tenantID generic.TenantID, before generic.Month) ([]Bill, error)

	// ListBills returns a tenant's bills, optionally limited to one month.
	ListBills(ctx context.Context, tenantID generic.TenantID, month *generic.Month) ([]Bill, error)

	// CountPayments counts payments dated within [from, to].
	CountPayments(ctx context.Context, tenantID generic.TenantID, from, to time.Time) (int, error)
}

// Writer is the write side used only by Commit.
type Writer interface {
	LastNumberSource
	generic.Ledger

	// CountRegularBills counts non-opening-balance bills for a month.
	CountRegularBills(ctx context.Context, tenantID generic.TenantID, month generic.Month) (int, error)

	// DeleteRegularBills deletes non-opening-balance bills for a month and
	// returns how many were removed. Opening-balance bills are never touched.
	DeleteRegularBills(ctx context.Context, tenantID generic.TenantID, month generic.Month) (int, error)

	InsertBill(ctx context.Context, bill Bill) error
}

// Store is the full read/write surface.
type Store interface {
	Reader
	Writer
}

// TxStore runs a function against a Store bound to one transaction. The
// transaction must serialize writers, so two commits for the same tenant
// cannot both pass the duplicate check.
type TxStore interface {
	Store
	generic.TxRunner[Store]
}
