/*
numbering.go - Tenant-wide sequential bill numbers

FORMAT:
  <PREFIX>-<YYYYMM>-<NNNN>, e.g. SOA-202503-0042

SEQUENCE:
  The counter is per tenant, not per month. The next number is the
  trailing numeric suffix of the tenant's most recently numbered bill plus
  one, or 1 when the tenant has no bills. The YYYYMM infix only labels the
  billing month.

  Consequence: regenerating an older month continues the tenant's global
  counter, so its new numbers can be higher than those of later months.
  Numbers are zero-padded to four digits and simply grow past 9999.
*/
package billing

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/warp/condo-billing/generic"
)

// DefaultBillPrefix is used when a tenant has none configured.
const DefaultBillPrefix = "SOA"

// LastNumberSource returns the number of the tenant's most recently
// numbered bill, or "" when there is none.
type LastNumberSource interface {
	LastBillNumber(ctx context.Context, tenantID generic.TenantID) (string, error)
}

// BillNumberer hands out consecutive numbers for one generation batch.
type BillNumberer struct {
	prefix string
	month  generic.Month
	next   int
}

// NewBillNumberer seeds a numberer from the tenant's last issued number.
// Must be called inside the commit transaction.
func NewBillNumberer(ctx context.Context, src LastNumberSource, tenantID generic.TenantID, prefix string, month generic.Month) (*BillNumberer, error) {
	last, err := src.LastBillNumber(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to read last bill number: %w", err)
	}
	if strings.TrimSpace(prefix) == "" {
		prefix = DefaultBillPrefix
	}
	return &BillNumberer{prefix: prefix, month: month, next: ParseSequence(last) + 1}, nil
}

// Next returns the next number and advances the counter.
func (n *BillNumberer) Next() string {
	number := FormatBillNumber(n.prefix, n.month, n.next)
	n.next++
	return number
}

// FormatBillNumber renders PREFIX-YYYYMM-NNNN.
func FormatBillNumber(prefix string, month generic.Month, seq int) string {
	return fmt.Sprintf("%s-%s-%04d", prefix, month.Compact(), seq)
}

// ParseSequence extracts the numeric suffix after the last '-' of a bill
// number. Numbers without one (e.g. imported legacy references) count as 0.
func ParseSequence(number string) int {
	number = strings.TrimSpace(number)
	suffix := number[strings.LastIndex(number, "-")+1:]
	seq, err := strconv.Atoi(suffix)
	if err != nil || seq < 0 {
		return 0
	}
	return seq
}
