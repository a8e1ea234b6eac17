// Package store provides SQLite-backed history of cleanup runs.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"

	_ "modernc.org/sqlite"
)

// Store provides SQLite-backed persistence
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// New creates a new Store, opening the SQLite database and running migrations
func New(dbPath string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &Store{
		db:     db,
		logger: logger,
	}

	// Run migrations
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	logger.Debug("store initialized", "path", dbPath)
	return s, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}

// CreateCleanupRun inserts a new CleanupRun and sets its ID
func (s *Store) CreateCleanupRun(run *CleanupRun) error {
	const query = `
		INSERT INTO cleanup_runs (
			start_time, end_time, dry_run, root_count, base_names,
			total_deleted, total_blocked, total_failed, status, error_message
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := s.db.Exec(
		query,
		run.StartTime, run.EndTime, run.DryRun, run.RootCount, run.BaseNames,
		run.TotalDeleted, run.TotalBlocked, run.TotalFailed, run.Status, run.ErrorMessage,
	)
	if err != nil {
		return fmt.Errorf("failed to insert cleanup run: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	run.ID = id

	return nil
}

// UpdateCleanupRun updates the mutable fields of a run record
func (s *Store) UpdateCleanupRun(run *CleanupRun) error {
	const query = `
		UPDATE cleanup_runs SET
			end_time = ?, base_names = ?, total_deleted = ?, total_blocked = ?,
			total_failed = ?, status = ?, error_message = ?
		WHERE id = ?
	`

	_, err := s.db.Exec(
		query,
		run.EndTime, run.BaseNames, run.TotalDeleted, run.TotalBlocked,
		run.TotalFailed, run.Status, run.ErrorMessage, run.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update cleanup run: %w", err)
	}
	return nil
}

// AddCleanupResult inserts a per-base-name result row for a run
func (s *Store) AddCleanupResult(res *CleanupResult) error {
	const query = `
		INSERT INTO cleanup_results (
			run_id, base_name, candidates, total_deleted, old_versions,
			old_diff_versions, old_trn_versions, old_weekly, old_monthly,
			old_yearly, blocked, failed
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := s.db.Exec(
		query,
		res.RunID, res.BaseName, res.Candidates, res.TotalDeleted, res.OldVersions,
		res.OldDiffVersions, res.OldTrnVersions, res.OldWeekly, res.OldMonthly,
		res.OldYearly, res.Blocked, res.Failed,
	)
	if err != nil {
		return fmt.Errorf("failed to insert cleanup result: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	res.ID = id

	return nil
}

// ListCleanupRuns returns the most recent runs, newest first
func (s *Store) ListCleanupRuns(limit int) ([]*CleanupRun, error) {
	if limit <= 0 {
		limit = 20
	}

	const query = `
		SELECT id, start_time, COALESCE(end_time, start_time), dry_run,
			root_count, base_names, total_deleted, total_blocked, total_failed,
			status, COALESCE(error_message, '')
		FROM cleanup_runs
		ORDER BY start_time DESC, id DESC
		LIMIT ?
	`

	rows, err := s.db.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query cleanup runs: %w", err)
	}
	defer rows.Close()

	var runs []*CleanupRun
	for rows.Next() {
		run := &CleanupRun{}
		if err := rows.Scan(
			&run.ID, &run.StartTime, &run.EndTime, &run.DryRun,
			&run.RootCount, &run.BaseNames, &run.TotalDeleted, &run.TotalBlocked,
			&run.TotalFailed, &run.Status, &run.ErrorMessage,
		); err != nil {
			return nil, fmt.Errorf("failed to scan cleanup run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// ResultsForRun returns the per-base-name results of a run
func (s *Store) ResultsForRun(runID int64) ([]*CleanupResult, error) {
	const query = `
		SELECT id, run_id, base_name, candidates, total_deleted, old_versions,
			old_diff_versions, old_trn_versions, old_weekly, old_monthly,
			old_yearly, blocked, failed
		FROM cleanup_results
		WHERE run_id = ?
		ORDER BY base_name
	`

	rows, err := s.db.Query(query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query cleanup results: %w", err)
	}
	defer rows.Close()

	var results []*CleanupResult
	for rows.Next() {
		res := &CleanupResult{}
		if err := rows.Scan(
			&res.ID, &res.RunID, &res.BaseName, &res.Candidates, &res.TotalDeleted,
			&res.OldVersions, &res.OldDiffVersions, &res.OldTrnVersions, &res.OldWeekly,
			&res.OldMonthly, &res.OldYearly, &res.Blocked, &res.Failed,
		); err != nil {
			return nil, fmt.Errorf("failed to scan cleanup result: %w", err)
		}
		results = append(results, res)
	}
	return results, rows.Err()
}
