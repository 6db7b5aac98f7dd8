// Package ledger stores run manifests, result rows and diagnostics in SQL.
package ledger

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"strconv"
	"strings"

	"acore/domain/core"
	"acore/domain/inference"
	"acore/domain/run"
	apperrors "acore/internal/errors"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Supported drivers
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

func init() {
	sqlx.BindDriver(DriverSQLite, sqlx.QUESTION)
}

// runRecord is the runs table row; the B′ grid is stored as a comma list
type runRecord struct {
	run.Manifest
	BPrimes string `db:"b_prime_grid"`
}

type rowRecord struct {
	RunID core.RunID `db:"run_id"`
	Seq   int        `db:"seq"`
	inference.ResultRow
}

type diagnosticRecord struct {
	RunID core.RunID `db:"run_id"`
	Seq   int        `db:"seq"`
	inference.Diagnostic
}

// SQLLedger implements ports.LedgerPort on sqlite or postgres
type SQLLedger struct {
	db *sqlx.DB
}

// Open connects to the ledger database and applies pending migrations
func Open(ctx context.Context, driver, dsn string) (*SQLLedger, error) {
	switch driver {
	case DriverSQLite, DriverPostgres:
	default:
		return nil, apperrors.Newf(apperrors.CodeConfigInvalid, "unsupported ledger driver %q", driver)
	}
	db, err := sqlx.ConnectContext(ctx, driver, dsn)
	if err != nil {
		return nil, apperrors.PersistenceError("failed to connect to ledger", err)
	}
	if driver == DriverSQLite {
		// one writer at a time
		db.SetMaxOpenConns(1)
	}
	if err := Migrate(ctx, db); err != nil {
		db.Close()
		return nil, apperrors.PersistenceError("failed to migrate ledger", err)
	}
	return &SQLLedger{db: db}, nil
}

// NewSQLLedger wraps an already migrated connection
func NewSQLLedger(db *sqlx.DB) *SQLLedger {
	return &SQLLedger{db: db}
}

// Close releases the connection pool
func (l *SQLLedger) Close() error {
	return l.db.Close()
}

// RecordRun stores the manifest of a new run
func (l *SQLLedger) RecordRun(ctx context.Context, manifest *run.Manifest) error {
	if err := manifest.Validate(); err != nil {
		return apperrors.WithCause(apperrors.CodeInvalidInput, "invalid manifest", err)
	}
	grid := make([]string, len(manifest.BPrimeGrid))
	for i, b := range manifest.BPrimeGrid {
		grid[i] = strconv.Itoa(b)
	}
	rec := runRecord{Manifest: *manifest, BPrimes: strings.Join(grid, ",")}

	query := `
		INSERT INTO runs (
			run_id, model, classifier_id, classifier_name, statistic, seed, alpha, b,
			sample_size_obs, sample_size_check, size_reference, n_eval_grid, b_prime_grid,
			benchmark, empirical_marginal, debug, fingerprint, created_at
		) VALUES (
			:run_id, :model, :classifier_id, :classifier_name, :statistic, :seed, :alpha, :b,
			:sample_size_obs, :sample_size_check, :size_reference, :n_eval_grid, :b_prime_grid,
			:benchmark, :empirical_marginal, :debug, :fingerprint, :created_at
		)`
	if _, err := l.db.NamedExecContext(ctx, query, rec); err != nil {
		return apperrors.PersistenceError(fmt.Sprintf("failed to record run %s", manifest.RunID), err)
	}
	return nil
}

// AppendRows adds rows and diagnostics to an existing run in one transaction
func (l *SQLLedger) AppendRows(ctx context.Context, runID core.RunID, rows []inference.ResultRow, diagnostics []inference.Diagnostic) error {
	tx, err := l.db.BeginTxx(ctx, nil)
	if err != nil {
		return apperrors.PersistenceError("failed to begin transaction", err)
	}
	defer tx.Rollback()

	var exists int
	if err := tx.GetContext(ctx, &exists, tx.Rebind("SELECT COUNT(*) FROM runs WHERE run_id = ?"), runID); err != nil {
		return apperrors.PersistenceError("failed to look up run", err)
	}
	if exists == 0 {
		return apperrors.NotFound("run " + runID.String())
	}

	var nextRow, nextDiag int
	if err := tx.GetContext(ctx, &nextRow, tx.Rebind("SELECT COUNT(*) FROM result_rows WHERE run_id = ?"), runID); err != nil {
		return apperrors.PersistenceError("failed to count rows", err)
	}
	if err := tx.GetContext(ctx, &nextDiag, tx.Rebind("SELECT COUNT(*) FROM diagnostics WHERE run_id = ?"), runID); err != nil {
		return apperrors.PersistenceError("failed to count diagnostics", err)
	}

	rowQuery := `
		INSERT INTO result_rows (
			run_id, seq, b_prime, classifier, class_cde, run, n_eval_grid, sample_check, sample_reference,
			percent_correct_coverage, average_coverage, percent_correct_coverage_lr, average_coverage_lr,
			percent_correct_coverage_1std, average_coverage_1std, percent_correct_coverage_2std,
			average_coverage_2std, test_statistics
		) VALUES (
			:run_id, :seq, :b_prime, :classifier, :class_cde, :run, :n_eval_grid, :sample_check, :sample_reference,
			:percent_correct_coverage, :average_coverage, :percent_correct_coverage_lr, :average_coverage_lr,
			:percent_correct_coverage_1std, :average_coverage_1std, :percent_correct_coverage_2std,
			:average_coverage_2std, :test_statistics
		)`
	for i, row := range rows {
		rec := rowRecord{RunID: runID, Seq: nextRow + i, ResultRow: row}
		if _, err := tx.NamedExecContext(ctx, rowQuery, rec); err != nil {
			return apperrors.PersistenceError("failed to insert result row", err)
		}
	}

	diagQuery := `
		INSERT INTO diagnostics (run_id, seq, code, message, b_prime, algorithm)
		VALUES (:run_id, :seq, :code, :message, :b_prime, :algorithm)`
	for i, d := range diagnostics {
		rec := diagnosticRecord{RunID: runID, Seq: nextDiag + i, Diagnostic: d}
		if _, err := tx.NamedExecContext(ctx, diagQuery, rec); err != nil {
			return apperrors.PersistenceError("failed to insert diagnostic", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return apperrors.PersistenceError("failed to commit rows", err)
	}
	return nil
}

const runColumns = `run_id, model, classifier_id, classifier_name, statistic, seed, alpha, b,
	sample_size_obs, sample_size_check, size_reference, n_eval_grid, b_prime_grid,
	benchmark, empirical_marginal, debug, fingerprint, created_at`

// ListRuns returns the most recent runs first; limit <= 0 returns all
func (l *SQLLedger) ListRuns(ctx context.Context, limit int) ([]run.Manifest, error) {
	query := "SELECT " + runColumns + " FROM runs ORDER BY created_at DESC"
	var args []interface{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	var records []runRecord
	if err := l.db.SelectContext(ctx, &records, l.db.Rebind(query), args...); err != nil {
		return nil, apperrors.PersistenceError("failed to list runs", err)
	}
	out := make([]run.Manifest, 0, len(records))
	for _, rec := range records {
		m, err := rec.manifest()
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

// GetRun returns one manifest
func (l *SQLLedger) GetRun(ctx context.Context, runID core.RunID) (*run.Manifest, error) {
	var rec runRecord
	err := l.db.GetContext(ctx, &rec, l.db.Rebind("SELECT "+runColumns+" FROM runs WHERE run_id = ?"), runID)
	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NotFound("run " + runID.String())
		}
		return nil, apperrors.PersistenceError("failed to get run", err)
	}
	m, err := rec.manifest()
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// GetRows returns the rows of a run in append order
func (l *SQLLedger) GetRows(ctx context.Context, runID core.RunID) ([]inference.ResultRow, error) {
	var records []rowRecord
	query := l.db.Rebind("SELECT * FROM result_rows WHERE run_id = ? ORDER BY seq")
	if err := l.db.SelectContext(ctx, &records, query, runID); err != nil {
		return nil, apperrors.PersistenceError("failed to get rows", err)
	}
	rows := make([]inference.ResultRow, len(records))
	for i, rec := range records {
		rows[i] = rec.ResultRow
	}
	return rows, nil
}

// GetDiagnostics returns the diagnostics of a run in append order
func (l *SQLLedger) GetDiagnostics(ctx context.Context, runID core.RunID) ([]inference.Diagnostic, error) {
	var records []diagnosticRecord
	query := l.db.Rebind("SELECT * FROM diagnostics WHERE run_id = ? ORDER BY seq")
	if err := l.db.SelectContext(ctx, &records, query, runID); err != nil {
		return nil, apperrors.PersistenceError("failed to get diagnostics", err)
	}
	diags := make([]inference.Diagnostic, len(records))
	for i, rec := range records {
		diags[i] = rec.Diagnostic
	}
	return diags, nil
}

func (r runRecord) manifest() (run.Manifest, error) {
	m := r.Manifest
	m.BPrimeGrid = nil
	if r.BPrimes == "" {
		return m, nil
	}
	for _, part := range strings.Split(r.BPrimes, ",") {
		b, err := strconv.Atoi(part)
		if err != nil {
			return run.Manifest{}, apperrors.PersistenceError(fmt.Sprintf("corrupt b_prime_grid for run %s", m.RunID), err)
		}
		m.BPrimeGrid = append(m.BPrimeGrid, b)
	}
	return m, nil
}
