/*
scheduler.go - Automated monthly bill generation

PURPOSE:
  Periodically checks every tenant and, once the statement day of the
  current month has arrived, commits that month's bills.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Waits for the statement day so late readings can still be entered
  - Skips tenants whose month is already generated
  - Never regenerates; replacing a committed batch stays a manual action

CONFIGURATION:
  - CheckInterval: How often to check (default: 1 hour)
  - Enabled: Whether scheduler is active (default: false, see config)

USAGE:
  scheduler := NewGenerationScheduler(handler, logger)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: GenerateBilling endpoint (manual generation)
  - billing/generator.go: Commit
*/
package api

import (
	"context"
	"sync"
	"time"

	"github.com/warp/condo-billing/billing"
	"github.com/warp/condo-billing/generic"
	"go.uber.org/zap"
)

// SchedulerActor is recorded as CreatedBy on scheduled bills.
const SchedulerActor = "scheduler"

// GenerationScheduler handles automated monthly generation.
type GenerationScheduler struct {
	Handler       *Handler
	CheckInterval time.Duration
	Enabled       bool
	Logger        *zap.Logger
	Now           func() time.Time

	ticker *time.Ticker
	stop   chan bool
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// RunReport counts what a single check did.
type RunReport struct {
	Generated int
	Skipped   int
	Failed    int
}

// NewGenerationScheduler creates a new scheduler.
func NewGenerationScheduler(handler *Handler, logger *zap.Logger) *GenerationScheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GenerationScheduler{
		Handler:       handler,
		CheckInterval: 1 * time.Hour,
		Enabled:       true,
		Logger:        logger.Named("scheduler"),
		Now:           time.Now,
		stop:          make(chan bool),
	}
}

// Start begins the scheduler.
func (gs *GenerationScheduler) Start() {
	gs.mu.Lock()
	defer gs.mu.Unlock()

	if !gs.Enabled {
		gs.Logger.Info("disabled, not starting")
		return
	}

	gs.ticker = time.NewTicker(gs.CheckInterval)
	gs.wg.Add(1)

	go gs.run()

	gs.Logger.Info("started", zap.Duration("interval", gs.CheckInterval))
}

// Stop stops the scheduler.
func (gs *GenerationScheduler) Stop() {
	gs.mu.Lock()
	defer gs.mu.Unlock()

	if gs.ticker != nil {
		gs.ticker.Stop()
		close(gs.stop)
		gs.wg.Wait()
		gs.ticker = nil
		gs.Logger.Info("stopped")
	}
}

func (gs *GenerationScheduler) run() {
	defer gs.wg.Done()

	// Run immediately on start
	gs.checkAndGenerate(context.Background())

	for {
		select {
		case <-gs.ticker.C:
			gs.checkAndGenerate(context.Background())
		case <-gs.stop:
			return
		}
	}
}

// RunNow triggers an immediate check (for testing/admin).
func (gs *GenerationScheduler) RunNow(ctx context.Context) RunReport {
	return gs.checkAndGenerate(ctx)
}

// NextRunTime returns when the next scheduled check will occur.
func (gs *GenerationScheduler) NextRunTime() time.Time {
	return gs.Now().Add(gs.CheckInterval)
}

func (gs *GenerationScheduler) checkAndGenerate(ctx context.Context) RunReport {
	var report RunReport

	now := gs.Now()
	gen := gs.Handler.Generator
	month := generic.MonthOf(now)
	period := gen.Cycle.PeriodFor(month)
	if generic.DateOnly(now).Before(period.StatementDate) {
		return report
	}

	tenants, err := gs.Handler.Store.ListTenants(ctx)
	if err != nil {
		gs.Logger.Error("listing tenants", zap.Error(err))
		return report
	}

	for _, t := range tenants {
		existing, err := gs.Handler.Store.CountRegularBills(ctx, t.ID, month)
		if err != nil {
			gs.Logger.Error("counting bills", zap.String("tenant", string(t.ID)), zap.Error(err))
			report.Failed++
			continue
		}
		if existing > 0 {
			report.Skipped++
			continue
		}

		result, err := gen.Commit(ctx, billing.CommitRequest{
			TenantID:  t.ID,
			Month:     month,
			CreatedBy: SchedulerActor,
		})
		switch {
		case err == nil:
			report.Generated++
			gs.Logger.Info("generated",
				zap.String("tenant", string(t.ID)),
				zap.Stringer("month", month),
				zap.Int("bills", len(result.Bills)))
		case generic.IsConflict(err):
			// Another commit won the race.
			report.Skipped++
		case generic.IsNotFound(err):
			report.Skipped++
			gs.Logger.Debug("tenant not ready", zap.String("tenant", string(t.ID)), zap.Error(err))
		default:
			report.Failed++
			gs.Logger.Error("generation failed", zap.String("tenant", string(t.ID)), zap.Error(err))
		}
	}

	if report.Generated > 0 || report.Failed > 0 {
		gs.Logger.Info("check completed",
			zap.Int("generated", report.Generated),
			zap.Int("skipped", report.Skipped),
			zap.Int("failed", report.Failed))
	}
	return report
}
