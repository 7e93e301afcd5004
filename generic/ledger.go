/*
ledger.go - Append-only ledger for prepaid credit pools

PURPOSE:
  A unit's advance payments are held in independent pools (dues, utilities).
  Every change to a pool is recorded as an immutable ledger entry, and the
  running balance is maintained next to it in the same transaction, so the
  balance can always be explained by replaying the entries.

CRITICAL INVARIANTS:
  1. APPEND-ONLY: entries are never updated or deleted
  2. NON-NEGATIVE: a debit larger than the pool's balance is rejected
     with ErrInsufficientBalance and writes nothing
  3. ATTRIBUTED: every debit names the document that caused it

EXAMPLE FLOW:
  1. Owner prepays 3,000 dues:         Credit dues +3000 (ref: OR-1182)
  2. March bill applies 1,250 dues:    Debit  dues -1250 (ref: SOA-202503-0014)
  3. April bill applies 1,250 dues:    Debit  dues -1250 (ref: SOA-202504-0031)

  dues pool: [+3000, -1250, -1250] = 500

SEE ALSO:
  - billing/advance.go: applies a credit allocation as debits
  - store/sqlite/sqlite.go: advance_balances + advance_entries tables
*/
package generic

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// LEDGER ENTRY - Atomic change to a pool balance
// =============================================================================

type EntryType string

const (
	EntryCredit EntryType = "credit"
	EntryDebit  EntryType = "debit"
)

// Pool names one independently tracked balance of an account.
type Pool string

// LedgerEntry is one posting. Amount is always positive; Type gives the sign.
type LedgerEntry struct {
	ID        string
	TenantID  TenantID
	Account   string
	Pool      Pool
	Type      EntryType
	Amount    decimal.Decimal
	Reference string
	Reason    string
	CreatedBy string
	CreatedAt time.Time
}

// Delta returns the signed change this entry makes to its pool.
func (e LedgerEntry) Delta() decimal.Decimal {
	if e.Type == EntryDebit {
		return e.Amount.Neg()
	}
	return e.Amount
}

// Validate checks the entry is postable.
func (e LedgerEntry) Validate() error {
	if e.Account == "" {
		return NewValidationError("account", "is required")
	}
	if e.Pool == "" {
		return NewValidationError("pool", "is required")
	}
	if e.Type != EntryCredit && e.Type != EntryDebit {
		return NewValidationError("type", "unknown entry type %q", e.Type)
	}
	if !e.Amount.IsPositive() {
		return NewValidationError("amount", "must be positive, got %s", e.Amount)
	}
	return nil
}

// =============================================================================
// LEDGER - Posting interface
// =============================================================================

// Ledger posts entries and reports balances. Implementations must apply
// the entry and the balance change atomically.
type Ledger interface {
	// Post appends an entry and moves the pool balance by entry.Delta().
	// Debits that would make the pool negative fail with
	// *InsufficientBalanceError and leave the pool untouched.
	Post(ctx context.Context, entry LedgerEntry) error

	// PoolBalance returns the current balance of one pool.
	PoolBalance(ctx context.Context, tenantID TenantID, account string, pool Pool) (decimal.Decimal, error)

	// Entries returns an account's postings, oldest first.
	Entries(ctx context.Context, tenantID TenantID, account string) ([]LedgerEntry, error)
}

// ReplayBalance sums entries for one pool. Used to audit stored balances.
func ReplayBalance(entries []LedgerEntry, pool Pool) decimal.Decimal {
	balance := decimal.Zero
	for _, e := range entries {
		if e.Pool == pool {
			balance = balance.Add(e.Delta())
		}
	}
	return balance
}

// =============================================================================
// TRANSACTIONAL STORE - For atomic operations across multiple writes
// =============================================================================

// TxRunner executes fn within one database transaction.
// If fn returns an error the transaction is rolled back, otherwise committed.
type TxRunner[S any] interface {
	WithTx(ctx context.Context, fn func(S) error) error
}
