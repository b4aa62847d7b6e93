package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// InsertIngestRun records the outcome of an ingestion job.
func (db *DB) InsertIngestRun(ctx context.Context, run *IngestRun) error {
	_, err := db.conn.NamedExecContext(ctx,
		`INSERT OR REPLACE INTO ingest_runs
		(run_id, started_at, finished_at, raw_rows, skipped_rows, duplicates_by_id,
		duplicates_by_content, messages, needs_review, referrals, failures, status, error)
		VALUES (:run_id, :started_at, :finished_at, :raw_rows, :skipped_rows, :duplicates_by_id,
		:duplicates_by_content, :messages, :needs_review, :referrals, :failures, :status, :error)`,
		run,
	)
	if err != nil {
		return fmt.Errorf("recording ingest run: %w", err)
	}
	return nil
}

// GetLastIngestRun returns the most recent ingestion run, or nil if none.
func (db *DB) GetLastIngestRun(ctx context.Context) (*IngestRun, error) {
	var run IngestRun
	err := db.conn.GetContext(ctx, &run,
		`SELECT run_id, started_at, finished_at, raw_rows, skipped_rows, duplicates_by_id,
		duplicates_by_content, messages, needs_review, referrals, failures, status, error
		FROM ingest_runs ORDER BY started_at DESC, rowid DESC LIMIT 1`)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// GetStats returns aggregate statistics across all tables.
func (db *DB) GetStats(ctx context.Context) (*Stats, error) {
	var s Stats
	err := db.conn.GetContext(ctx, &s, `SELECT
		(SELECT COUNT(*) FROM messages) AS messages,
		(SELECT COUNT(DISTINCT thread_id) FROM messages) AS threads,
		(SELECT COUNT(*) FROM messages WHERE type = 'human') AS human_turns,
		(SELECT COUNT(*) FROM messages WHERE requires_review = 1) AS needs_review,
		(SELECT COUNT(*) FROM referrals) AS referrals,
		(SELECT COUNT(*) FROM failures) AS failures,
		(SELECT COUNT(*) FROM corrections) AS corrections`)
	if err != nil {
		return nil, err
	}
	return &s, nil
}
