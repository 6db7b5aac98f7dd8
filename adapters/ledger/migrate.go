package ledger

import (
	"context"
	"fmt"
	"strings"

	"acore/domain/core"

	"github.com/jmoiron/sqlx"
)

// migration is one forward-only schema step
type migration struct {
	Version string
	SQL     []string
}

// Statements use types both sqlite and postgres accept
var migrations = []migration{
	{
		Version: "001_runs",
		SQL: []string{`
		CREATE TABLE IF NOT EXISTS runs (
			run_id TEXT PRIMARY KEY,
			model TEXT NOT NULL,
			classifier_id TEXT NOT NULL,
			classifier_name TEXT NOT NULL,
			statistic TEXT NOT NULL,
			seed BIGINT NOT NULL,
			alpha DOUBLE PRECISION NOT NULL,
			b INTEGER NOT NULL,
			sample_size_obs INTEGER NOT NULL,
			sample_size_check INTEGER NOT NULL,
			size_reference INTEGER NOT NULL,
			n_eval_grid INTEGER NOT NULL,
			b_prime_grid TEXT NOT NULL,
			benchmark INTEGER NOT NULL,
			empirical_marginal BOOLEAN NOT NULL,
			debug BOOLEAN NOT NULL,
			fingerprint TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL
		)`, `
		CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs (created_at)`,
		},
	},
	{
		Version: "002_result_rows",
		SQL: []string{`
		CREATE TABLE IF NOT EXISTS result_rows (
			run_id TEXT NOT NULL REFERENCES runs (run_id),
			seq INTEGER NOT NULL,
			b_prime INTEGER NOT NULL,
			classifier TEXT NOT NULL,
			class_cde TEXT NOT NULL,
			run TEXT NOT NULL,
			n_eval_grid INTEGER NOT NULL,
			sample_check INTEGER NOT NULL,
			sample_reference INTEGER NOT NULL,
			percent_correct_coverage DOUBLE PRECISION NOT NULL,
			average_coverage DOUBLE PRECISION NOT NULL,
			percent_correct_coverage_lr DOUBLE PRECISION NOT NULL,
			average_coverage_lr DOUBLE PRECISION NOT NULL,
			percent_correct_coverage_1std DOUBLE PRECISION NOT NULL,
			average_coverage_1std DOUBLE PRECISION NOT NULL,
			percent_correct_coverage_2std DOUBLE PRECISION NOT NULL,
			average_coverage_2std DOUBLE PRECISION NOT NULL,
			test_statistics TEXT NOT NULL,
			PRIMARY KEY (run_id, seq)
		)`},
	},
	{
		Version: "003_diagnostics",
		SQL: []string{`
		CREATE TABLE IF NOT EXISTS diagnostics (
			run_id TEXT NOT NULL REFERENCES runs (run_id),
			seq INTEGER NOT NULL,
			code TEXT NOT NULL,
			message TEXT NOT NULL,
			b_prime INTEGER NOT NULL,
			algorithm TEXT NOT NULL,
			PRIMARY KEY (run_id, seq)
		)`},
	},
}

func (m migration) checksum() string {
	return core.NewHash([]byte(strings.Join(m.SQL, ";"))).Short()
}

// Migrate applies every pending migration, each in its own transaction
func Migrate(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			checksum TEXT NOT NULL,
			applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	var applied []string
	if err := db.SelectContext(ctx, &applied, "SELECT version FROM schema_migrations"); err != nil {
		return fmt.Errorf("failed to get applied migrations: %w", err)
	}
	done := make(map[string]bool, len(applied))
	for _, v := range applied {
		done[v] = true
	}

	for _, m := range migrations {
		if done[m.Version] {
			continue
		}
		if err := apply(ctx, db, m); err != nil {
			return fmt.Errorf("failed to apply migration %s: %w", m.Version, err)
		}
	}
	return nil
}

func apply(ctx context.Context, db *sqlx.DB, m migration) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, stmt := range m.SQL {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	if _, err := tx.ExecContext(ctx, tx.Rebind("INSERT INTO schema_migrations (version, checksum) VALUES (?, ?)"),
		m.Version, m.checksum()); err != nil {
		return err
	}
	return tx.Commit()
}
