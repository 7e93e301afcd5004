package generic

import (
	"strings"
	"time"
)

// =============================================================================
// MONTH - A calendar month (billing months and reading months)
// =============================================================================

// Month identifies one calendar month. Bills are keyed by their billing
// month; readings by their reading month, which is always one month earlier.
type Month struct {
	Year  int
	Month time.Month
}

// NewMonth normalizes year/month, so NewMonth(2025, 13) is January 2026.
func NewMonth(year int, month time.Month) Month {
	t := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	return Month{Year: t.Year(), Month: t.Month()}
}

// MonthOf returns the month containing t.
func MonthOf(t time.Time) Month {
	return Month{Year: t.Year(), Month: t.Month()}
}

// ParseMonth accepts "YYYY-MM" or a first-of-month "YYYY-MM-DD".
func ParseMonth(s string) (Month, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Month{}, NewValidationError("billing_month", "is required")
	}
	if t, err := time.Parse("2006-01", s); err == nil {
		return MonthOf(t), nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return Month{}, NewValidationError("billing_month", "invalid month %q (use YYYY-MM)", s)
	}
	if t.Day() != 1 {
		return Month{}, NewValidationError("billing_month", "%q is not the first day of a month", s)
	}
	return MonthOf(t), nil
}

// Index returns year*12 + month, so month distances are plain subtraction.
func (m Month) Index() int { return m.Year*12 + int(m.Month) }

// MonthsSince returns how many months m is after other (negative if before).
func (m Month) MonthsSince(other Month) int { return m.Index() - other.Index() }

func (m Month) Before(other Month) bool { return m.Index() < other.Index() }
func (m Month) After(other Month) bool  { return m.Index() > other.Index() }
func (m Month) Equal(other Month) bool  { return m.Index() == other.Index() }
func (m Month) IsZero() bool            { return m.Year == 0 && m.Month == 0 }

func (m Month) AddMonths(n int) Month { return NewMonth(m.Year, m.Month+time.Month(n)) }
func (m Month) Previous() Month       { return m.AddMonths(-1) }
func (m Month) Next() Month           { return m.AddMonths(1) }

// FirstDay returns the first day of the month at midnight UTC.
func (m Month) FirstDay() time.Time {
	return time.Date(m.Year, m.Month, 1, 0, 0, 0, 0, time.UTC)
}

// Day returns the given day of this month at midnight UTC.
func (m Month) Day(day int) time.Time {
	return time.Date(m.Year, m.Month, day, 0, 0, 0, 0, time.UTC)
}

// String formats as "2025-03".
func (m Month) String() string { return m.FirstDay().Format("2006-01") }

// Compact formats as "202503", the bill-number infix.
func (m Month) Compact() string { return m.FirstDay().Format("200601") }

// Label formats as "March 2025".
func (m Month) Label() string { return m.FirstDay().Format("January 2006") }

// =============================================================================
// TIME UTILITIES
// =============================================================================

// DateOnly truncates t to midnight UTC.
func DateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
