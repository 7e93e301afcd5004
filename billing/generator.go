/*
generator.go - Preview and transactional Commit of a tenant's monthly bills

MODES:
  Preview  Runs the assembler over every active unit and returns itemized
           previews, a summary and tenant-wide warnings. Never writes.

  Commit   One transaction:
             1. Count existing REGULAR bills for the month. If any exist and
                regenerate is false, fail with *ConflictError (no writes).
                If regenerate is true, credit back the advance they drew
                and delete them. OPENING_BALANCE bills are never touched.
             2. Recompute every preview against the transaction's view.
             3. Number bills from the tenant's global counter.
             4. Insert each bill (paid 0, balance = total, UNPAID) and debit
                the advance pools by exactly the previewed allocation.
           Any error rolls back the whole batch.

CONCURRENCY:
  The duplicate check and every write share one transaction, and the store
  serializes writers, so two concurrent commits for the same month cannot
  both succeed. Previews take no locks.

SEE ALSO:
  - assembler.go: per-unit computation
  - store.go: persistence contract
*/
package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/condo-billing/generic"
	"go.uber.org/zap"
)

const (
	WarnNoPayments    = "No payments recorded for the previous billing period"
	WarnNoAdjustments = "No billing adjustments entered for this month"
)

// Observer receives one event per generation run. Implemented by the
// metrics package.
type Observer interface {
	ObserveGeneration(mode, outcome string, bills int, elapsed time.Duration)
}

// Generator orchestrates preview and commit for one tenant at a time.
type Generator struct {
	Store    TxStore
	Rates    RateSource // optional read-through cache for previews
	Cycle    generic.BillingCycle
	Strategy TierStrategy
	Logger   *zap.Logger
	Observer Observer
	Now      func() time.Time
}

// NewGenerator returns a generator with the default cycle and strategy.
func NewGenerator(store TxStore, logger *zap.Logger) *Generator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Generator{
		Store:    store,
		Cycle:    generic.DefaultBillingCycle(),
		Strategy: DefaultTierStrategy(),
		Logger:   logger,
		Now:      time.Now,
	}
}

// =============================================================================
// RESULTS
// =============================================================================

// Summary totals a batch of previews or bills.
type Summary struct {
	Units              int
	UnitsWithWarnings  int
	Electric           decimal.Decimal
	Water              decimal.Decimal
	AssociationDues    decimal.Decimal
	Parking            decimal.Decimal
	SpAssessment       decimal.Decimal
	Discounts          decimal.Decimal
	PreviousBalance    decimal.Decimal
	Penalties          decimal.Decimal
	AdvanceDuesApplied decimal.Decimal
	AdvanceUtilApplied decimal.Decimal
	CurrentCharges     decimal.Decimal
	Total              decimal.Decimal
}

func (s *Summary) add(p BillPreview) {
	s.Units++
	if len(p.Warnings) > 0 {
		s.UnitsWithWarnings++
	}
	s.Electric = s.Electric.Add(p.Electric)
	s.Water = s.Water.Add(p.Water.Amount)
	s.AssociationDues = s.AssociationDues.Add(p.AssociationDues)
	s.Parking = s.Parking.Add(p.Parking)
	s.SpAssessment = s.SpAssessment.Add(p.SpAssessment)
	s.Discounts = s.Discounts.Add(p.Discounts)
	s.PreviousBalance = s.PreviousBalance.Add(p.PreviousBalance)
	s.Penalties = s.Penalties.Add(p.Penalty.Total)
	s.AdvanceDuesApplied = s.AdvanceDuesApplied.Add(p.Allocation.DuesApplied)
	s.AdvanceUtilApplied = s.AdvanceUtilApplied.Add(p.Allocation.UtilApplied)
	s.CurrentCharges = s.CurrentCharges.Add(p.CurrentCharges)
	s.Total = s.Total.Add(p.Total)
}

// ValidationFlags are the tenant-wide warnings. They never block.
type ValidationFlags struct {
	NoPaymentsRecorded bool
	NoAdjustments      bool
}

// PreviewResult is everything a preview shows.
type PreviewResult struct {
	TenantID generic.TenantID
	Period   generic.BillingPeriod
	Previews []BillPreview
	Summary  Summary
	Flags    ValidationFlags
	Warnings []string
}

// CommitRequest asks for one month to be committed.
type CommitRequest struct {
	TenantID   generic.TenantID
	Month      generic.Month
	Regenerate bool
	CreatedBy  string
}

// CommitResult lists the bills created.
type CommitResult struct {
	Period   generic.BillingPeriod
	Bills    []Bill
	Summary  Summary
	Replaced int
	Warnings []string
	Message  string
}

// =============================================================================
// PREVIEW
// =============================================================================

// Preview computes every active unit's bill for month without writing.
func (g *Generator) Preview(ctx context.Context, tenantID generic.TenantID, month generic.Month) (*PreviewResult, error) {
	start := g.now()
	rates := g.Rates
	if rates == nil {
		rates = g.Store
	}

	result, _, err := g.buildPreviews(ctx, g.Store, rates, tenantID, month)
	if err != nil {
		g.observe("preview", outcomeOf(err), 0, start)
		g.logger().Warn("billing preview failed",
			zap.String("tenant_id", string(tenantID)),
			zap.Stringer("month", month),
			zap.Error(err))
		return nil, err
	}

	g.observe("preview", "ok", len(result.Previews), start)
	g.logger().Info("billing preview",
		zap.String("tenant_id", string(tenantID)),
		zap.Stringer("month", month),
		zap.Int("units", result.Summary.Units),
		zap.Int("units_with_warnings", result.Summary.UnitsWithWarnings),
		zap.Duration("elapsed", g.now().Sub(start)))
	return result, nil
}

// buildPreviews is shared by Preview and Commit. Inside Commit, s is the
// transaction-bound store.
func (g *Generator) buildPreviews(ctx context.Context, s Reader, rateSrc RateSource, tenantID generic.TenantID, month generic.Month) (*PreviewResult, *Tenant, error) {
	if tenantID == "" {
		return nil, nil, generic.NewValidationError("tenant_id", "is required")
	}
	if month.IsZero() {
		return nil, nil, generic.NewValidationError("billing_month", "is required")
	}
	if err := g.Cycle.Validate(); err != nil {
		return nil, nil, err
	}

	tenant, err := s.GetTenant(ctx, tenantID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load tenant: %w", err)
	}
	if tenant == nil {
		return nil, nil, &generic.NotFoundError{Resource: "tenant", ID: string(tenantID)}
	}

	rates, err := rateSrc.GetRateConfiguration(ctx, tenantID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load rate configuration: %w", err)
	}
	if rates == nil {
		return nil, nil, &generic.NotFoundError{Resource: "tenant settings", ID: string(tenantID)}
	}
	if err := rates.Validate(); err != nil {
		return nil, nil, &generic.ComputationError{Op: "rate configuration", Err: err}
	}

	units, err := s.ListActiveUnits(ctx, tenantID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list units: %w", err)
	}
	if len(units) == 0 {
		return nil, nil, &generic.NotFoundError{Resource: "active units", ID: string(tenantID)}
	}

	period := g.Cycle.PeriodFor(month)
	in, err := loadInputs(ctx, s, tenantID, period)
	if err != nil {
		return nil, nil, err
	}

	result := &PreviewResult{TenantID: tenantID, Period: period}
	for _, unit := range units {
		p, err := AssembleBill(AssembleInput{
			Unit:       unit,
			Electric:   in.electric[unit.ID],
			Water:      in.water[unit.ID],
			Adjustment: in.adjustments[unit.ID],
			Advance:    in.advances[unit.ID],
			PriorBills: in.prior[unit.ID],
			Rates:      *rates,
			Period:     period,
			Strategy:   g.Strategy,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("unit %s: %w", unit.UnitNumber, err)
		}
		result.Previews = append(result.Previews, p)
		result.Summary.add(p)
	}

	if in.payments == 0 {
		result.Flags.NoPaymentsRecorded = true
		result.Warnings = append(result.Warnings, WarnNoPayments)
	}
	if len(in.adjustments) == 0 {
		result.Flags.NoAdjustments = true
		result.Warnings = append(result.Warnings, WarnNoAdjustments)
	}
	return result, tenant, nil
}

// unitInputs indexes a tenant's per-unit inputs for one period.
type unitInputs struct {
	electric    map[generic.UnitID]*Reading
	water       map[generic.UnitID]*Reading
	adjustments map[generic.UnitID]*Adjustment
	advances    map[generic.UnitID]*AdvanceBalance
	prior       map[generic.UnitID][]Bill
	payments    int
}

func loadInputs(ctx context.Context, s Reader, tenantID generic.TenantID, period generic.BillingPeriod) (*unitInputs, error) {
	in := &unitInputs{
		electric:    map[generic.UnitID]*Reading{},
		water:       map[generic.UnitID]*Reading{},
		adjustments: map[generic.UnitID]*Adjustment{},
		advances:    map[generic.UnitID]*AdvanceBalance{},
		prior:       map[generic.UnitID][]Bill{},
	}

	for kind, into := range map[ReadingKind]map[generic.UnitID]*Reading{
		ReadingElectric: in.electric,
		ReadingWater:    in.water,
	} {
		readings, err := s.ListReadings(ctx, tenantID, kind, period.ReadingMonth())
		if err != nil {
			return nil, fmt.Errorf("failed to list %s readings: %w", lower(string(kind)), err)
		}
		for i := range readings {
			into[readings[i].UnitID] = &readings[i]
		}
	}

	adjustments, err := s.ListAdjustments(ctx, tenantID, period.Month)
	if err != nil {
		return nil, fmt.Errorf("failed to list adjustments: %w", err)
	}
	for i := range adjustments {
		in.adjustments[adjustments[i].UnitID] = &adjustments[i]
	}

	advances, err := s.ListAdvanceBalances(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list advance balances: %w", err)
	}
	for i := range advances {
		in.advances[advances[i].UnitID] = &advances[i]
	}

	prior, err := s.ListOutstandingBills(ctx, tenantID, period.Month)
	if err != nil {
		return nil, fmt.Errorf("failed to list outstanding bills: %w", err)
	}
	for _, b := range prior {
		in.prior[b.UnitID] = append(in.prior[b.UnitID], b)
	}

	in.payments, err = s.CountPayments(ctx, tenantID, period.PeriodFrom, period.PeriodTo)
	if err != nil {
		return nil, fmt.Errorf("failed to count payments: %w", err)
	}
	return in, nil
}

// =============================================================================
// COMMIT
// =============================================================================

// Commit persists the month's bills atomically.
func (g *Generator) Commit(ctx context.Context, req CommitRequest) (*CommitResult, error) {
	start := g.now()
	log := g.logger().With(
		zap.String("tenant_id", string(req.TenantID)),
		zap.Stringer("month", req.Month),
		zap.Bool("regenerate", req.Regenerate))

	var result *CommitResult
	err := g.Store.WithTx(ctx, func(tx Store) error {
		var err error
		result, err = g.commitTx(ctx, tx, req)
		return err
	})
	if err != nil {
		g.observe("commit", outcomeOf(err), 0, start)
		if generic.IsConflict(err) {
			log.Warn("billing commit refused", zap.Error(err))
		} else {
			log.Error("billing commit rolled back", zap.Error(err))
		}
		return nil, err
	}

	g.observe("commit", "ok", len(result.Bills), start)
	log.Info("billing commit",
		zap.Int("bills", len(result.Bills)),
		zap.Int("replaced", result.Replaced),
		zap.String("total", result.Summary.Total.StringFixed(generic.MoneyPlaces)),
		zap.Duration("elapsed", g.now().Sub(start)))
	return result, nil
}

func (g *Generator) commitTx(ctx context.Context, tx Store, req CommitRequest) (*CommitResult, error) {
	now := g.now()

	existing, err := tx.CountRegularBills(ctx, req.TenantID, req.Month)
	if err != nil {
		return nil, fmt.Errorf("failed to count existing bills: %w", err)
	}
	replaced := 0
	if existing > 0 {
		if !req.Regenerate {
			return nil, &generic.ConflictError{TenantID: req.TenantID, Month: req.Month, Existing: existing}
		}
		if replaced, err = g.removeRegularBills(ctx, tx, req, now); err != nil {
			return nil, err
		}
	}

	preview, tenant, err := g.buildPreviews(ctx, tx, tx, req.TenantID, req.Month)
	if err != nil {
		return nil, err
	}

	numberer, err := NewBillNumberer(ctx, tx, tenant.ID, tenant.BillPrefix, req.Month)
	if err != nil {
		return nil, err
	}

	result := &CommitResult{
		Period:   preview.Period,
		Summary:  preview.Summary,
		Replaced: replaced,
		Warnings: preview.Warnings,
	}
	for _, p := range preview.Previews {
		bill := p.ToBill(numberer.Next(), req.CreatedBy, now)
		if err := bill.CheckTotals(); err != nil {
			return nil, err
		}
		if err := tx.InsertBill(ctx, bill); err != nil {
			return nil, fmt.Errorf("failed to insert bill %s: %w", bill.BillNumber, err)
		}
		if err := ApplyAllocation(ctx, tx, bill.TenantID, bill.UnitID, p.Allocation, bill.BillNumber, req.CreatedBy, now); err != nil {
			return nil, err
		}
		result.Bills = append(result.Bills, bill)
	}

	result.Message = fmt.Sprintf("Successfully generated %d bills for %s", len(result.Bills), req.Month.Label())
	return result, nil
}

// removeRegularBills deletes the month's REGULAR bills and returns what
// they drew from the advance pools. Bills that already carry payments are
// not replaced.
func (g *Generator) removeRegularBills(ctx context.Context, tx Store, req CommitRequest, now time.Time) (int, error) {
	month := req.Month
	bills, err := tx.ListBills(ctx, req.TenantID, &month)
	if err != nil {
		return 0, fmt.Errorf("failed to list bills to replace: %w", err)
	}

	var regular []Bill
	paid := 0
	for _, b := range bills {
		if b.Type != BillRegular {
			continue
		}
		regular = append(regular, b)
		if b.PaidAmount.IsPositive() {
			paid++
		}
	}
	if paid > 0 {
		return 0, generic.NewValidationError("regenerate",
			"%d bills for %s already have payments recorded and cannot be replaced", paid, month.Label())
	}

	for _, b := range regular {
		if err := ReverseAllocation(ctx, tx, b, req.CreatedBy, now); err != nil {
			return 0, err
		}
	}

	deleted, err := tx.DeleteRegularBills(ctx, req.TenantID, month)
	if err != nil {
		return 0, fmt.Errorf("failed to delete existing bills: %w", err)
	}
	return deleted, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func (g *Generator) now() time.Time {
	if g.Now == nil {
		return time.Now()
	}
	return g.Now()
}

func (g *Generator) logger() *zap.Logger {
	if g.Logger == nil {
		return zap.NewNop()
	}
	return g.Logger
}

func (g *Generator) observe(mode, outcome string, bills int, start time.Time) {
	if g.Observer != nil {
		g.Observer.ObserveGeneration(mode, outcome, bills, g.now().Sub(start))
	}
}

// outcomeOf labels an error for metrics.
func outcomeOf(err error) string {
	switch {
	case err == nil:
		return "ok"
	case generic.IsComputation(err):
		return "error"
	case generic.IsConflict(err):
		return "conflict"
	case generic.IsNotFound(err):
		return "not_found"
	case generic.IsClientError(err):
		return "invalid"
	default:
		return "error"
	}
}
