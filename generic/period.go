package generic

import (
	"fmt"
	"time"
)

// =============================================================================
// BILLING CYCLE - Which days a billing month covers
// =============================================================================

// BillingCycle fixes the day-of-month anchors of every billing period.
//
// With the defaults (cutoff 26, statement 27, due 6) the bill for March 2025
// covers Feb 27 - Mar 26, is issued on Mar 27 and is due on Apr 6.
type BillingCycle struct {
	CutoffDay    int // last day covered by the billing month
	StatementDay int // day the statement is issued, in the billing month
	DueDay       int // day payment is due, in the following month
}

// DefaultBillingCycle returns the 26/27/6 cycle.
func DefaultBillingCycle() BillingCycle {
	return BillingCycle{CutoffDay: 26, StatementDay: 27, DueDay: 6}
}

// Validate rejects anchors that would not exist in February.
func (c BillingCycle) Validate() error {
	for name, day := range map[string]int{
		"cutoff_day":    c.CutoffDay,
		"statement_day": c.StatementDay,
		"due_day":       c.DueDay,
	} {
		if day < 1 || day > 28 {
			return NewValidationError(name, "must be between 1 and 28, got %d", day)
		}
	}
	return nil
}

// BillingPeriod holds the dates printed on a statement.
type BillingPeriod struct {
	Month         Month
	PeriodFrom    time.Time
	PeriodTo      time.Time
	StatementDate time.Time
	DueDate       time.Time
}

// PeriodFor returns the billing period dates for a billing month.
func (c BillingCycle) PeriodFor(m Month) BillingPeriod {
	return BillingPeriod{
		Month:         m,
		PeriodFrom:    m.Previous().Day(c.CutoffDay).AddDate(0, 0, 1),
		PeriodTo:      m.Day(c.CutoffDay),
		StatementDate: m.Day(c.StatementDay),
		DueDate:       m.Next().Day(c.DueDay),
	}
}

// ReadingMonth is the month whose meter readings a bill consumes.
func (p BillingPeriod) ReadingMonth() Month { return p.Month.Previous() }

// Contains returns true if t falls in [PeriodFrom, PeriodTo] by date.
func (p BillingPeriod) Contains(t time.Time) bool {
	d := DateOnly(t)
	return !d.Before(p.PeriodFrom) && !d.After(p.PeriodTo)
}

// String returns a string representation of the period.
func (p BillingPeriod) String() string {
	return fmt.Sprintf("%s [%s, %s]", p.Month, p.PeriodFrom.Format("2006-01-02"), p.PeriodTo.Format("2006-01-02"))
}
