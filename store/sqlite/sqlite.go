/*
Package sqlite provides a SQLite-backed implementation of the billing store.

PURPOSE:
  Implements billing.TxStore (reads, writes, advance ledger) plus the
  registry writes the API needs (tenants, units, readings, adjustments,
  payments). In production the same patterns apply to PostgreSQL with
  minor SQL dialect differences.

APPEND-ONLY ENFORCEMENT:
  advance_entries is never updated or deleted. advance_balances is the
  running balance next to it, moved in the same transaction as the entry.

  bills rows are only deleted by a regenerate, and only REGULAR ones.

KEY TABLES:
  tenants, rate_configs, units, readings, adjustments: inputs
  bills:            generated statements (plus imported opening balances)
  advance_entries:  immutable ledger of advance credits and debits
  advance_balances: current balance per (tenant, unit, pool)
  payments:         read model, consulted for the "no payments" warning

INDEXES:
  - idx_bills_unique_regular: at most one REGULAR bill per unit and month
  - idx_bills_number:         bill numbers are unique per tenant
  - idx_readings_unique:      one reading per unit, kind and reading month

CONCURRENCY:
  Transactions begin IMMEDIATE (_txlock=immediate), so the writer lock is
  taken before the duplicate check and two commits for the same month are
  serialized. A waiting writer retries for _busy_timeout ms.

  ":memory:" databases are per-connection, so the pool is capped at one
  connection. Inside WithTx every query must go through the tx store.

USAGE:
  store, err := sqlite.New("./data/billing.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  gen := billing.NewGenerator(store, logger)

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - billing/store.go: Interface definitions
  - store/memory: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sqlite3 "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/warp/condo-billing/billing"
	"github.com/warp/condo-billing/factory"
	"github.com/warp/condo-billing/generic"
)

// querier is the subset of *sql.DB and *sql.Tx the queries need.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store implements billing.TxStore using SQLite.
type Store struct {
	*queries
	db *sql.DB
}

// queries holds every statement. Store runs them against the pool, WithTx
// against one transaction.
type queries struct {
	q querier
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	dsn := dbPath + "?_foreign_keys=on&_txlock=immediate&_busy_timeout=5000"
	if dbPath != ":memory:" {
		dsn += "&_journal_mode=WAL"
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	store := &Store{queries: &queries{q: db}, db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS tenants (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		bill_prefix TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);

	-- Rate configuration is stored as the factory's JSON document
	CREATE TABLE IF NOT EXISTS rate_configs (
		tenant_id TEXT PRIMARY KEY REFERENCES tenants(id) ON DELETE CASCADE,
		config_json TEXT NOT NULL,
		version INTEGER NOT NULL DEFAULT 1,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS units (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL REFERENCES tenants(id) ON DELETE CASCADE,
		unit_number TEXT NOT NULL,
		floor INTEGER NOT NULL DEFAULT 0,
		owner_name TEXT,
		unit_type TEXT NOT NULL,
		area TEXT NOT NULL,
		parking_area TEXT NOT NULL,
		active INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_units_number
		ON units(tenant_id, unit_number);

	CREATE TABLE IF NOT EXISTS readings (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		unit_id TEXT NOT NULL REFERENCES units(id) ON DELETE CASCADE,
		kind TEXT NOT NULL,
		reading_month TEXT NOT NULL,
		previous TEXT NOT NULL,
		present TEXT NOT NULL,
		consumption TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_readings_unique
		ON readings(tenant_id, unit_id, kind, reading_month);

	CREATE TABLE IF NOT EXISTS adjustments (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		unit_id TEXT NOT NULL REFERENCES units(id) ON DELETE CASCADE,
		billing_month TEXT NOT NULL,
		sp_assessment TEXT NOT NULL,
		discounts TEXT NOT NULL,
		remarks TEXT,
		created_at TEXT NOT NULL
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_adjustments_unique
		ON adjustments(tenant_id, unit_id, billing_month);

	-- Advance ledger (append-only) and running balances
	CREATE TABLE IF NOT EXISTS advance_entries (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		account TEXT NOT NULL,
		pool TEXT NOT NULL,
		entry_type TEXT NOT NULL,
		amount TEXT NOT NULL,
		reference TEXT,
		reason TEXT,
		created_by TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_advance_entries_account
		ON advance_entries(tenant_id, account);

	CREATE TABLE IF NOT EXISTS advance_balances (
		tenant_id TEXT NOT NULL,
		account TEXT NOT NULL,
		pool TEXT NOT NULL,
		balance TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (tenant_id, account, pool)
	);

	CREATE TABLE IF NOT EXISTS bills (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		unit_id TEXT NOT NULL,
		bill_number TEXT NOT NULL,
		billing_month TEXT NOT NULL,
		period_start TEXT,
		period_end TEXT,
		statement_date TEXT,
		due_date TEXT,
		electric_consumption TEXT NOT NULL,
		water_consumption TEXT NOT NULL,
		electric TEXT NOT NULL,
		water TEXT NOT NULL,
		association_dues TEXT NOT NULL,
		parking TEXT NOT NULL,
		sp_assessment TEXT NOT NULL,
		discounts TEXT NOT NULL,
		advance_dues_applied TEXT NOT NULL,
		advance_util_applied TEXT NOT NULL,
		previous_balance TEXT NOT NULL,
		penalty TEXT NOT NULL,
		total_amount TEXT NOT NULL,
		paid_amount TEXT NOT NULL,
		balance TEXT NOT NULL,
		status TEXT NOT NULL,
		bill_type TEXT NOT NULL,
		created_by TEXT,
		created_at TEXT NOT NULL
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_bills_number
		ON bills(tenant_id, bill_number);

	-- CRITICAL: never two REGULAR bills for the same unit and month
	CREATE UNIQUE INDEX IF NOT EXISTS idx_bills_unique_regular
		ON bills(tenant_id, unit_id, billing_month)
		WHERE bill_type = 'REGULAR';

	-- Outstanding-bill scans for penalties (hot path)
	CREATE INDEX IF NOT EXISTS idx_bills_tenant_status_month
		ON bills(tenant_id, status, billing_month);

	CREATE TABLE IF NOT EXISTS payments (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		unit_id TEXT NOT NULL,
		bill_id TEXT,
		amount TEXT NOT NULL,
		paid_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_payments_tenant_date
		ON payments(tenant_id, paid_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// TRANSACTIONAL STORE (billing.TxStore interface)
// =============================================================================

// WithTx executes a function within one IMMEDIATE transaction.
func (s *Store) WithTx(ctx context.Context, fn func(store billing.Store) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&queries{q: sqlTx}); err != nil {
		return err
	}

	return sqlTx.Commit()
}

// Post wraps a single posting in its own transaction so the entry and the
// balance move together.
func (s *Store) Post(ctx context.Context, entry generic.LedgerEntry) error {
	return s.WithTx(ctx, func(tx billing.Store) error {
		return tx.Post(ctx, entry)
	})
}

var (
	_ billing.TxStore = (*Store)(nil)
	_ billing.Store   = (*queries)(nil)
)

// =============================================================================
// TENANTS
// =============================================================================

// SaveTenant inserts or updates a tenant.
func (s *queries) SaveTenant(ctx context.Context, t billing.Tenant) error {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO tenants (id, name, bill_prefix, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, bill_prefix = excluded.bill_prefix
	`, t.ID, t.Name, t.BillPrefix, t.CreatedAt.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to save tenant: %w", err)
	}
	return nil
}

func (s *queries) GetTenant(ctx context.Context, tenantID generic.TenantID) (*billing.Tenant, error) {
	var (
		t         billing.Tenant
		createdAt string
	)
	err := s.q.QueryRowContext(ctx,
		"SELECT id, name, bill_prefix, created_at FROM tenants WHERE id = ?", tenantID,
	).Scan(&t.ID, &t.Name, &t.BillPrefix, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get tenant: %w", err)
	}
	t.CreatedAt = parseTime(createdAt)
	return &t, nil
}

func (s *queries) ListTenants(ctx context.Context) ([]billing.Tenant, error) {
	rows, err := s.q.QueryContext(ctx, "SELECT id, name, bill_prefix, created_at FROM tenants ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("failed to list tenants: %w", err)
	}
	defer rows.Close()

	var tenants []billing.Tenant
	for rows.Next() {
		var (
			t         billing.Tenant
			createdAt string
		)
		if err := rows.Scan(&t.ID, &t.Name, &t.BillPrefix, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan tenant: %w", err)
		}
		t.CreatedAt = parseTime(createdAt)
		tenants = append(tenants, t)
	}
	return tenants, rows.Err()
}

// =============================================================================
// RATE CONFIGURATION
// =============================================================================

// SaveRateConfiguration replaces the tenant's configuration and bumps its
// version.
func (s *queries) SaveRateConfiguration(ctx context.Context, cfg billing.RateConfiguration) (int, error) {
	data, err := factory.EncodeRateConfiguration(cfg)
	if err != nil {
		return 0, err
	}
	var version int
	err = s.q.QueryRowContext(ctx, `
		INSERT INTO rate_configs (tenant_id, config_json, version, updated_at)
		VALUES (?, ?, 1, ?)
		ON CONFLICT(tenant_id) DO UPDATE SET
			config_json = excluded.config_json,
			version = rate_configs.version + 1,
			updated_at = excluded.updated_at
		RETURNING version
	`, cfg.TenantID, string(data), time.Now().UTC().Format(time.RFC3339)).Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("failed to save rate configuration: %w", err)
	}
	return version, nil
}

func (s *queries) GetRateConfiguration(ctx context.Context, tenantID generic.TenantID) (*billing.RateConfiguration, error) {
	var (
		data      string
		version   int
		updatedAt string
	)
	err := s.q.QueryRowContext(ctx,
		"SELECT config_json, version, updated_at FROM rate_configs WHERE tenant_id = ?", tenantID,
	).Scan(&data, &version, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get rate configuration: %w", err)
	}

	cfg, err := factory.DecodeRateConfiguration([]byte(data))
	if err != nil {
		return nil, &generic.ComputationError{Op: "stored rate configuration", Err: err}
	}
	cfg.TenantID = tenantID
	cfg.Version = version
	cfg.UpdatedAt = parseTime(updatedAt)
	return &cfg, nil
}

// =============================================================================
// UNITS
// =============================================================================

// SaveUnit inserts or updates a unit.
func (s *queries) SaveUnit(ctx context.Context, u billing.Unit) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO units (id, tenant_id, unit_number, floor, owner_name, unit_type, area, parking_area, active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			unit_number = excluded.unit_number,
			floor = excluded.floor,
			owner_name = excluded.owner_name,
			unit_type = excluded.unit_type,
			area = excluded.area,
			parking_area = excluded.parking_area,
			active = excluded.active
	`, u.ID, u.TenantID, u.UnitNumber, u.Floor, nullString(u.OwnerName), u.Type,
		u.Area.String(), u.ParkingArea.String(), u.Active, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		if isUniqueConstraintError(err) {
			return generic.NewValidationError("unit_number", "unit %s already exists", u.UnitNumber)
		}
		return fmt.Errorf("failed to save unit: %w", err)
	}
	return nil
}

const unitColumns = `id, tenant_id, unit_number, floor, owner_name, unit_type, area, parking_area, active`

func (s *queries) GetUnit(ctx context.Context, tenantID generic.TenantID, unitID generic.UnitID) (*billing.Unit, error) {
	units, err := s.queryUnits(ctx,
		"SELECT "+unitColumns+" FROM units WHERE tenant_id = ? AND id = ?", tenantID, unitID)
	if err != nil || len(units) == 0 {
		return nil, err
	}
	return &units[0], nil
}

// ListUnits returns every unit, active or not.
func (s *queries) ListUnits(ctx context.Context, tenantID generic.TenantID) ([]billing.Unit, error) {
	return s.queryUnits(ctx,
		"SELECT "+unitColumns+" FROM units WHERE tenant_id = ? ORDER BY floor, unit_number", tenantID)
}

func (s *queries) ListActiveUnits(ctx context.Context, tenantID generic.TenantID) ([]billing.Unit, error) {
	return s.queryUnits(ctx,
		"SELECT "+unitColumns+" FROM units WHERE tenant_id = ? AND active = 1 ORDER BY floor, unit_number", tenantID)
}

func (s *queries) queryUnits(ctx context.Context, query string, args ...any) ([]billing.Unit, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query units: %w", err)
	}
	defer rows.Close()

	var units []billing.Unit
	for rows.Next() {
		var (
			u                 billing.Unit
			owner             sql.NullString
			area, parkingArea string
		)
		if err := rows.Scan(&u.ID, &u.TenantID, &u.UnitNumber, &u.Floor, &owner, &u.Type,
			&area, &parkingArea, &u.Active); err != nil {
			return nil, fmt.Errorf("failed to scan unit: %w", err)
		}
		u.OwnerName = owner.String
		u.Area = generic.MustParseDecimal(area)
		u.ParkingArea = generic.MustParseDecimal(parkingArea)
		units = append(units, u)
	}
	return units, rows.Err()
}

// =============================================================================
// READINGS + ADJUSTMENTS
// =============================================================================

// SaveReading upserts the reading for (unit, kind, reading month). A
// reading that goes backwards is rejected.
func (s *queries) SaveReading(ctx context.Context, r billing.Reading) error {
	consumption, err := r.Consumption()
	if err != nil {
		return err
	}
	_, err = s.q.ExecContext(ctx, `
		INSERT INTO readings (id, tenant_id, unit_id, kind, reading_month, previous, present, consumption, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(tenant_id, unit_id, kind, reading_month) DO UPDATE SET
			previous = excluded.previous,
			present = excluded.present,
			consumption = excluded.consumption
	`, r.ID, r.TenantID, r.UnitID, r.Kind, r.ReadingMonth.String(),
		r.Previous.String(), r.Present.String(), consumption.String(), time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to save reading: %w", err)
	}
	return nil
}

func (s *queries) ListReadings(ctx context.Context, tenantID generic.TenantID, kind billing.ReadingKind, readingMonth generic.Month) ([]billing.Reading, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, tenant_id, unit_id, kind, reading_month, previous, present
		FROM readings
		WHERE tenant_id = ? AND kind = ? AND reading_month = ?
	`, tenantID, kind, readingMonth.String())
	if err != nil {
		return nil, fmt.Errorf("failed to query readings: %w", err)
	}
	defer rows.Close()

	var readings []billing.Reading
	for rows.Next() {
		var (
			r                        billing.Reading
			month, previous, present string
		)
		if err := rows.Scan(&r.ID, &r.TenantID, &r.UnitID, &r.Kind, &month, &previous, &present); err != nil {
			return nil, fmt.Errorf("failed to scan reading: %w", err)
		}
		if r.ReadingMonth, err = generic.ParseMonth(month); err != nil {
			return nil, err
		}
		r.Previous = generic.MustParseDecimal(previous)
		r.Present = generic.MustParseDecimal(present)
		readings = append(readings, r)
	}
	return readings, rows.Err()
}

// SaveAdjustment upserts the adjustment for (unit, billing month).
func (s *queries) SaveAdjustment(ctx context.Context, a billing.Adjustment) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO adjustments (id, tenant_id, unit_id, billing_month, sp_assessment, discounts, remarks, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(tenant_id, unit_id, billing_month) DO UPDATE SET
			sp_assessment = excluded.sp_assessment,
			discounts = excluded.discounts,
			remarks = excluded.remarks
	`, a.ID, a.TenantID, a.UnitID, a.BillingMonth.String(),
		a.SpAssessment.String(), a.Discounts.String(), nullString(a.Remarks), time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to save adjustment: %w", err)
	}
	return nil
}

func (s *queries) ListAdjustments(ctx context.Context, tenantID generic.TenantID, billingMonth generic.Month) ([]billing.Adjustment, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, tenant_id, unit_id, billing_month, sp_assessment, discounts, remarks
		FROM adjustments
		WHERE tenant_id = ? AND billing_month = ?
	`, tenantID, billingMonth.String())
	if err != nil {
		return nil, fmt.Errorf("failed to query adjustments: %w", err)
	}
	defer rows.Close()

	var adjustments []billing.Adjustment
	for rows.Next() {
		var (
			a                    billing.Adjustment
			month, sp, discounts string
			remarks              sql.NullString
		)
		if err := rows.Scan(&a.ID, &a.TenantID, &a.UnitID, &month, &sp, &discounts, &remarks); err != nil {
			return nil, fmt.Errorf("failed to scan adjustment: %w", err)
		}
		if a.BillingMonth, err = generic.ParseMonth(month); err != nil {
			return nil, err
		}
		a.SpAssessment = generic.MustParseDecimal(sp)
		a.Discounts = generic.MustParseDecimal(discounts)
		a.Remarks = remarks.String
		adjustments = append(adjustments, a)
	}
	return adjustments, rows.Err()
}

// =============================================================================
// ADVANCE LEDGER (generic.Ledger interface)
// =============================================================================

// Post appends an entry and moves the running balance. Must run inside a
// transaction; Store.Post wraps it in one.
func (s *queries) Post(ctx context.Context, e generic.LedgerEntry) error {
	if err := e.Validate(); err != nil {
		return err
	}

	current, err := s.PoolBalance(ctx, e.TenantID, e.Account, e.Pool)
	if err != nil {
		return err
	}
	next := current.Add(e.Delta())
	if next.IsNegative() {
		return &generic.InsufficientBalanceError{
			Account:   e.Account,
			Pool:      string(e.Pool),
			Available: current.String(),
			Requested: e.Amount.String(),
		}
	}

	createdAt := e.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err = s.q.ExecContext(ctx, `
		INSERT INTO advance_entries (id, tenant_id, account, pool, entry_type, amount, reference, reason, created_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, e.ID, e.TenantID, e.Account, e.Pool, e.Type, e.Amount.String(),
		nullString(e.Reference), nullString(e.Reason), nullString(e.CreatedBy), createdAt.Format(time.RFC3339Nano))
	if err != nil {
		if isUniqueConstraintError(err) {
			return generic.ErrDuplicateEntry
		}
		return fmt.Errorf("failed to append ledger entry: %w", err)
	}

	_, err = s.q.ExecContext(ctx, `
		INSERT INTO advance_balances (tenant_id, account, pool, balance, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(tenant_id, account, pool) DO UPDATE SET
			balance = excluded.balance,
			updated_at = excluded.updated_at
	`, e.TenantID, e.Account, e.Pool, next.String(), createdAt.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to update balance: %w", err)
	}
	return nil
}

func (s *queries) PoolBalance(ctx context.Context, tenantID generic.TenantID, account string, pool generic.Pool) (decimal.Decimal, error) {
	var balance string
	err := s.q.QueryRowContext(ctx,
		"SELECT balance FROM advance_balances WHERE tenant_id = ? AND account = ? AND pool = ?",
		tenantID, account, pool,
	).Scan(&balance)
	if err == sql.ErrNoRows {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to read balance: %w", err)
	}
	return generic.MustParseDecimal(balance), nil
}

func (s *queries) Entries(ctx context.Context, tenantID generic.TenantID, account string) ([]generic.LedgerEntry, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, tenant_id, account, pool, entry_type, amount, reference, reason, created_by, created_at
		FROM advance_entries
		WHERE tenant_id = ? AND account = ?
		ORDER BY rowid
	`, tenantID, account)
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger entries: %w", err)
	}
	defer rows.Close()

	var entries []generic.LedgerEntry
	for rows.Next() {
		var (
			e                            generic.LedgerEntry
			amount, createdAt            string
			reference, reason, createdBy sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.TenantID, &e.Account, &e.Pool, &e.Type, &amount,
			&reference, &reason, &createdBy, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan ledger entry: %w", err)
		}
		e.Amount = generic.MustParseDecimal(amount)
		e.Reference = reference.String
		e.Reason = reason.String
		e.CreatedBy = createdBy.String
		e.CreatedAt = parseTime(createdAt)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *queries) ListAdvanceBalances(ctx context.Context, tenantID generic.TenantID) ([]billing.AdvanceBalance, error) {
	rows, err := s.q.QueryContext(ctx,
		"SELECT account, pool, balance FROM advance_balances WHERE tenant_id = ? ORDER BY account", tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to query advance balances: %w", err)
	}
	defer rows.Close()

	var (
		balances []billing.AdvanceBalance
		index    = map[generic.UnitID]int{}
	)
	for rows.Next() {
		var account, pool, balance string
		if err := rows.Scan(&account, &pool, &balance); err != nil {
			return nil, fmt.Errorf("failed to scan advance balance: %w", err)
		}
		unitID := generic.UnitID(account)
		i, ok := index[unitID]
		if !ok {
			i = len(balances)
			index[unitID] = i
			balances = append(balances, billing.AdvanceBalance{UnitID: unitID})
		}
		switch generic.Pool(pool) {
		case billing.PoolDues:
			balances[i].AdvanceDues = generic.MustParseDecimal(balance)
		case billing.PoolUtilities:
			balances[i].AdvanceUtilities = generic.MustParseDecimal(balance)
		}
	}
	return balances, rows.Err()
}

// =============================================================================
// BILLS
// =============================================================================

const billColumns = `id, tenant_id, unit_id, bill_number, billing_month,
	period_start, period_end, statement_date, due_date,
	electric_consumption, water_consumption, electric, water, association_dues, parking,
	sp_assessment, discounts, advance_dues_applied, advance_util_applied,
	previous_balance, penalty, total_amount, paid_amount, balance,
	status, bill_type, created_by, created_at`

func (s *queries) InsertBill(ctx context.Context, b billing.Bill) error {
	createdAt := b.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO bills (`+billColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		b.ID, b.TenantID, b.UnitID, b.BillNumber, b.BillingMonth.String(),
		formatDate(b.PeriodStart), formatDate(b.PeriodEnd), formatDate(b.StatementDate), formatDate(b.DueDate),
		b.ElectricConsumption.String(), b.WaterConsumption.String(),
		b.Electric.String(), b.Water.String(), b.AssociationDues.String(), b.Parking.String(),
		b.SpAssessment.String(), b.Discounts.String(), b.AdvanceDuesApplied.String(), b.AdvanceUtilApplied.String(),
		b.PreviousBalance.String(), b.Penalty.String(), b.TotalAmount.String(), b.PaidAmount.String(), b.Balance.String(),
		b.Status, b.Type, nullString(b.CreatedBy), createdAt.Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return &generic.ConflictError{TenantID: b.TenantID, Month: b.BillingMonth, Existing: 1}
		}
		return fmt.Errorf("failed to insert bill: %w", err)
	}
	return nil
}

func (s *queries) ListBills(ctx context.Context, tenantID generic.TenantID, month *generic.Month) ([]billing.Bill, error) {
	if month != nil {
		return s.queryBills(ctx,
			"SELECT "+billColumns+" FROM bills WHERE tenant_id = ? AND billing_month = ? ORDER BY rowid",
			tenantID, month.String())
	}
	return s.queryBills(ctx,
		"SELECT "+billColumns+" FROM bills WHERE tenant_id = ? ORDER BY billing_month, rowid", tenantID)
}

func (s *queries) ListOutstandingBills(ctx context.Context, tenantID generic.TenantID, before generic.Month) ([]billing.Bill, error) {
	return s.queryBills(ctx, `
		SELECT `+billColumns+` FROM bills
		WHERE tenant_id = ? AND billing_month < ? AND status IN ('UNPAID', 'PARTIAL')
		ORDER BY billing_month, bill_number
	`, tenantID, before.String())
}

func (s *queries) CountRegularBills(ctx context.Context, tenantID generic.TenantID, month generic.Month) (int, error) {
	var count int
	err := s.q.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM bills WHERE tenant_id = ? AND billing_month = ? AND bill_type = 'REGULAR'",
		tenantID, month.String(),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count bills: %w", err)
	}
	return count, nil
}

func (s *queries) DeleteRegularBills(ctx context.Context, tenantID generic.TenantID, month generic.Month) (int, error) {
	res, err := s.q.ExecContext(ctx,
		"DELETE FROM bills WHERE tenant_id = ? AND billing_month = ? AND bill_type = 'REGULAR'",
		tenantID, month.String())
	if err != nil {
		return 0, fmt.Errorf("failed to delete bills: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// LastBillNumber returns the number of the tenant's most recently inserted
// bill. rowid grows with every insert, so it orders by insertion.
func (s *queries) LastBillNumber(ctx context.Context, tenantID generic.TenantID) (string, error) {
	var number string
	err := s.q.QueryRowContext(ctx,
		"SELECT bill_number FROM bills WHERE tenant_id = ? ORDER BY rowid DESC LIMIT 1", tenantID,
	).Scan(&number)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read last bill number: %w", err)
	}
	return number, nil
}

func (s *queries) queryBills(ctx context.Context, query string, args ...any) ([]billing.Bill, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query bills: %w", err)
	}
	defer rows.Close()

	var bills []billing.Bill
	for rows.Next() {
		b, err := scanBill(rows)
		if err != nil {
			return nil, err
		}
		bills = append(bills, b)
	}
	return bills, rows.Err()
}

func scanBill(rows *sql.Rows) (billing.Bill, error) {
	var (
		b                                              billing.Bill
		month                                          string
		periodStart, periodEnd, statementDate, dueDate sql.NullString
		createdBy                                      sql.NullString
		createdAt                                      string
		amounts                                        [15]string
	)
	err := rows.Scan(
		&b.ID, &b.TenantID, &b.UnitID, &b.BillNumber, &month,
		&periodStart, &periodEnd, &statementDate, &dueDate,
		&amounts[0], &amounts[1], &amounts[2], &amounts[3], &amounts[4], &amounts[5],
		&amounts[6], &amounts[7], &amounts[8], &amounts[9],
		&amounts[10], &amounts[11], &amounts[12], &amounts[13], &amounts[14],
		&b.Status, &b.Type, &createdBy, &createdAt,
	)
	if err != nil {
		return b, fmt.Errorf("failed to scan bill: %w", err)
	}
	if b.BillingMonth, err = generic.ParseMonth(month); err != nil {
		return b, err
	}
	b.PeriodStart = parseDate(periodStart)
	b.PeriodEnd = parseDate(periodEnd)
	b.StatementDate = parseDate(statementDate)
	b.DueDate = parseDate(dueDate)

	for i, dst := range []*decimal.Decimal{
		&b.ElectricConsumption, &b.WaterConsumption, &b.Electric, &b.Water, &b.AssociationDues, &b.Parking,
		&b.SpAssessment, &b.Discounts, &b.AdvanceDuesApplied, &b.AdvanceUtilApplied,
		&b.PreviousBalance, &b.Penalty, &b.TotalAmount, &b.PaidAmount, &b.Balance,
	} {
		*dst = generic.MustParseDecimal(amounts[i])
	}
	b.CreatedBy = createdBy.String
	b.CreatedAt = parseTime(createdAt)
	return b, nil
}

// =============================================================================
// PAYMENTS (read model)
// =============================================================================

// InsertPayment records a payment row. Applying it to bills belongs to the
// external payment workflow.
func (s *queries) InsertPayment(ctx context.Context, p billing.Payment) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO payments (id, tenant_id, unit_id, bill_id, amount, paid_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, p.ID, p.TenantID, p.UnitID, nullString(string(p.BillID)), p.Amount.String(), p.PaidAt.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to insert payment: %w", err)
	}
	return nil
}

func (s *queries) CountPayments(ctx context.Context, tenantID generic.TenantID, from, to time.Time) (int, error) {
	var count int
	err := s.q.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM payments WHERE tenant_id = ? AND date(paid_at) BETWEEN ? AND ?",
		tenantID, formatDate(from), formatDate(to),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count payments: %w", err)
	}
	return count, nil
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	return s.WithTx(ctx, func(tx billing.Store) error {
		q := tx.(*queries)
		tables := []string{"payments", "bills", "advance_balances", "advance_entries",
			"adjustments", "readings", "units", "rate_configs", "tenants"}
		for _, table := range tables {
			if _, err := q.q.ExecContext(ctx, "DELETE FROM "+table); err != nil {
				return err
			}
		}
		return nil
	})
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("2006-01-02")
}

func parseDate(s sql.NullString) time.Time {
	if !s.Valid || s.String == "" {
		return time.Time{}
	}
	t, _ := time.Parse("2006-01-02", s.String)
	return t
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func isUniqueConstraintError(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.ExtendedCode == sqlite3.ErrConstraintUnique || se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}
