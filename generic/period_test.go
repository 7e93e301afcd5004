package generic_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/condo-billing/generic"
)

// =============================================================================
// MONTH
// =============================================================================

func TestParseMonth_AcceptsBothForms(t *testing.T) {
	m, err := generic.ParseMonth("2025-03")
	require.NoError(t, err)
	assert.Equal(t, generic.NewMonth(2025, time.March), m)

	m, err = generic.ParseMonth("2025-03-01")
	require.NoError(t, err)
	assert.Equal(t, generic.NewMonth(2025, time.March), m)
}

func TestParseMonth_RejectsMalformedInput(t *testing.T) {
	for _, in := range []string{"", "  ", "2025/03", "March", "2025-03-15", "2025-13"} {
		_, err := generic.ParseMonth(in)
		require.Error(t, err, "input %q", in)
		assert.True(t, generic.IsClientError(err), "input %q should be a validation error", in)
	}
}

func TestMonth_ArithmeticCrossesYearBoundary(t *testing.T) {
	jan := generic.NewMonth(2026, time.January)

	assert.Equal(t, generic.NewMonth(2025, time.December), jan.Previous())
	assert.Equal(t, generic.NewMonth(2026, time.February), jan.Next())
	assert.Equal(t, 13, jan.MonthsSince(generic.NewMonth(2024, time.December)))
	assert.True(t, jan.After(generic.NewMonth(2025, time.December)))
	assert.Equal(t, "202601", jan.Compact())
	assert.Equal(t, "January 2026", jan.Label())
}

// =============================================================================
// BILLING CYCLE
// =============================================================================

func TestBillingCycle_DefaultDates(t *testing.T) {
	// GIVEN: the default 26/27/6 cycle
	// WHEN: computing March 2025
	// THEN: Feb 27 - Mar 26, statement Mar 27, due Apr 6

	p := generic.DefaultBillingCycle().PeriodFor(generic.NewMonth(2025, time.March))

	assert.Equal(t, time.Date(2025, time.February, 27, 0, 0, 0, 0, time.UTC), p.PeriodFrom)
	assert.Equal(t, time.Date(2025, time.March, 26, 0, 0, 0, 0, time.UTC), p.PeriodTo)
	assert.Equal(t, time.Date(2025, time.March, 27, 0, 0, 0, 0, time.UTC), p.StatementDate)
	assert.Equal(t, time.Date(2025, time.April, 6, 0, 0, 0, 0, time.UTC), p.DueDate)
	assert.Equal(t, generic.NewMonth(2025, time.February), p.ReadingMonth())
}

func TestBillingCycle_JanuaryReachesBackIntoDecember(t *testing.T) {
	p := generic.DefaultBillingCycle().PeriodFor(generic.NewMonth(2026, time.January))

	assert.Equal(t, time.Date(2025, time.December, 27, 0, 0, 0, 0, time.UTC), p.PeriodFrom)
	assert.Equal(t, time.Date(2026, time.February, 6, 0, 0, 0, 0, time.UTC), p.DueDate)
	assert.True(t, p.Contains(time.Date(2025, time.December, 31, 15, 4, 0, 0, time.UTC)))
	assert.False(t, p.Contains(time.Date(2026, time.January, 27, 0, 0, 0, 0, time.UTC)))
}

func TestBillingCycle_ValidateRejectsLateAnchors(t *testing.T) {
	c := generic.DefaultBillingCycle()
	c.DueDay = 31
	err := c.Validate()
	require.Error(t, err)
	assert.True(t, generic.IsClientError(err))
}

// =============================================================================
// MONEY + LEDGER
// =============================================================================

func TestMoneyHelpers(t *testing.T) {
	assert.True(t, generic.Round(decimal.RequireFromString("10.005")).Equal(decimal.RequireFromString("10.01")))
	assert.True(t, generic.NonNegative(decimal.NewFromInt(-3)).IsZero())
	assert.True(t, generic.MinZero(decimal.NewFromInt(5), decimal.NewFromInt(-1)).IsZero())
	assert.True(t, generic.MinZero(decimal.NewFromInt(5), decimal.NewFromInt(8)).Equal(decimal.NewFromInt(5)))
}

func TestReplayBalance_SumsSignedEntriesPerPool(t *testing.T) {
	entries := []generic.LedgerEntry{
		{Pool: "dues", Type: generic.EntryCredit, Amount: decimal.NewFromInt(3000)},
		{Pool: "dues", Type: generic.EntryDebit, Amount: decimal.NewFromInt(1250)},
		{Pool: "utilities", Type: generic.EntryCredit, Amount: decimal.NewFromInt(400)},
		{Pool: "dues", Type: generic.EntryDebit, Amount: decimal.NewFromInt(1250)},
	}

	assert.True(t, generic.ReplayBalance(entries, "dues").Equal(decimal.NewFromInt(500)))
	assert.True(t, generic.ReplayBalance(entries, "utilities").Equal(decimal.NewFromInt(400)))
}

func TestLedgerEntry_ValidateRejectsNonPositiveAmounts(t *testing.T) {
	e := generic.LedgerEntry{Account: "u-1", Pool: "dues", Type: generic.EntryDebit, Amount: decimal.Zero}
	assert.True(t, generic.IsClientError(e.Validate()))

	e.Amount = decimal.NewFromInt(1)
	assert.NoError(t, e.Validate())
}

func TestErrorClassification(t *testing.T) {
	conflict := &generic.ConflictError{Month: generic.NewMonth(2025, time.March), Existing: 4}
	assert.True(t, generic.IsConflict(conflict))
	assert.Contains(t, conflict.Error(), "4 bills already exist for March 2025")

	notFound := &generic.NotFoundError{Resource: "tenant", ID: "t-9"}
	assert.True(t, generic.IsNotFound(notFound))
	assert.False(t, generic.IsClientError(notFound))

	comp := &generic.ComputationError{Op: "water tiers", Err: generic.ErrInsufficientBalance}
	assert.ErrorIs(t, comp, generic.ErrComputation)
	assert.ErrorIs(t, comp, generic.ErrInsufficientBalance)
}
