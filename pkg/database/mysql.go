package database

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"strings"
	"time"

	"dev/bravebird/frametime-bench/pkg/models"

	_ "github.com/go-sql-driver/mysql"
)

//go:embed schema.sql
var schema string

// DB represents the database connection
type DB struct {
	conn *sql.DB
}

// New creates a new database connection
func New(dsn string) (*DB, error) {
	conn, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(5 * time.Minute)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{conn: conn}, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

// Migrate creates the tables if they do not exist
func (db *DB) Migrate(ctx context.Context) error {
	for _, stmt := range splitStatements(schema) {
		if _, err := db.conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to migrate: %w", err)
		}
	}
	return nil
}

func splitStatements(sqlText string) []string {
	var stmts []string
	for _, stmt := range strings.Split(sqlText, ";") {
		if stmt = strings.TrimSpace(stmt); stmt != "" {
			stmts = append(stmts, stmt)
		}
	}
	return stmts
}

// ==================== Bench Runs ====================

const runColumns = `id, name, temporal_workflow_id, temporal_run_id, status, selection, headless,
		       started_at, completed_at, COALESCE(error_message, ''), created_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (models.BenchRun, error) {
	var run models.BenchRun
	var selection sql.NullString
	err := row.Scan(
		&run.ID,
		&run.Name,
		&run.TemporalWorkflowID,
		&run.TemporalRunID,
		&run.Status,
		&selection,
		&run.Headless,
		&run.StartedAt,
		&run.CompletedAt,
		&run.ErrorMessage,
		&run.CreatedAt,
	)
	run.SelectionJSON = selection.String
	return run, err
}

// CreateRun creates a new benchmark run
func (db *DB) CreateRun(ctx context.Context, run *models.BenchRun) error {
	query := `
		INSERT INTO bench_runs (id, name, temporal_workflow_id, temporal_run_id, status, selection, headless, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	run.CreatedAt = time.Now()
	if run.Status == "" {
		run.Status = models.StatusPending
	}

	_, err := db.conn.ExecContext(ctx, query,
		run.ID,
		run.Name,
		run.TemporalWorkflowID,
		run.TemporalRunID,
		run.Status,
		run.SelectionJSON,
		run.Headless,
		run.CreatedAt,
	)

	return err
}

// GetRun retrieves a run by ID, or nil if there is none
func (db *DB) GetRun(ctx context.Context, id string) (*models.BenchRun, error) {
	query := `SELECT ` + runColumns + ` FROM bench_runs WHERE id = ?`

	run, err := scanRun(db.conn.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	return &run, nil
}

// ListRuns retrieves all runs, newest first
func (db *DB) ListRuns(ctx context.Context) ([]models.BenchRun, error) {
	query := `SELECT ` + runColumns + ` FROM bench_runs ORDER BY created_at DESC`

	rows, err := db.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	runs := []models.BenchRun{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}

	return runs, rows.Err()
}

// UpdateRunTemporal stores the Temporal execution a run was started as
func (db *DB) UpdateRunTemporal(ctx context.Context, id, workflowID, runID string) error {
	query := `UPDATE bench_runs SET temporal_workflow_id = ?, temporal_run_id = ? WHERE id = ?`
	_, err := db.conn.ExecContext(ctx, query, workflowID, runID, id)
	return err
}

// UpdateRunStatus updates the status of a run and stamps its start or completion time
func (db *DB) UpdateRunStatus(ctx context.Context, id string, status models.RunStatus, errorMsg string) error {
	query := `
		UPDATE bench_runs
		SET status = ?, error_message = ?,
		    started_at = CASE WHEN ? = 'running' AND started_at IS NULL THEN NOW() ELSE started_at END,
		    completed_at = CASE WHEN ? IN ('success', 'failed', 'canceled') THEN NOW() ELSE completed_at END
		WHERE id = ?
	`

	_, err := db.conn.ExecContext(ctx, query, status, errorMsg, status, status, id)
	return err
}

// ==================== Bench Results ====================

// CreateResults inserts the results of a run in one transaction
func (db *DB) CreateResults(ctx context.Context, results []models.BenchResult) error {
	query := `
		INSERT INTO bench_results (id, run_id, opt_level, wasm_opt, lto, codegen_units, strip, panic,
		                           build_time, wasm_opt_time, size, size_gzipped, frame_time, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	now := time.Now()
	for i := range results {
		r := &results[i]
		if r.CreatedAt.IsZero() {
			r.CreatedAt = now
		}
		_, err := stmt.ExecContext(ctx,
			r.ID,
			r.RunID,
			r.OptLevel,
			r.WasmOpt,
			r.Lto,
			r.CodegenUnits,
			r.Strip,
			r.Panic,
			r.BuildTime,
			r.WasmOptTime,
			r.Size,
			r.SizeGzipped,
			r.FrameTime,
			r.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert result: %w", err)
		}
	}

	return tx.Commit()
}

// ListResults retrieves the results of a run in the order they were measured.
// Result ids are UUIDv7 so they sort by creation time.
func (db *DB) ListResults(ctx context.Context, runID string) ([]models.BenchResult, error) {
	query := `
		SELECT id, run_id, opt_level, wasm_opt, lto, codegen_units, strip, panic,
		       build_time, wasm_opt_time, size, size_gzipped, frame_time, created_at
		FROM bench_results
		WHERE run_id = ?
		ORDER BY id
	`

	rows, err := db.conn.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get results: %w", err)
	}
	defer rows.Close()

	results := []models.BenchResult{}
	for rows.Next() {
		var r models.BenchResult
		err := rows.Scan(
			&r.ID,
			&r.RunID,
			&r.OptLevel,
			&r.WasmOpt,
			&r.Lto,
			&r.CodegenUnits,
			&r.Strip,
			&r.Panic,
			&r.BuildTime,
			&r.WasmOptTime,
			&r.Size,
			&r.SizeGzipped,
			&r.FrameTime,
			&r.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		results = append(results, r)
	}

	return results, rows.Err()
}
