// ABOUTME: SQLite implementation of the RunLog interface using modernc.org/sqlite
// ABOUTME: Provides send/outcome persistence with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// maxStoredMessage caps how much of a message body the ledger keeps.
const maxStoredMessage = 2000

// SQLiteStore implements the RunLog interface using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite run log at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite run log initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist.
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS runs (
			id           TEXT PRIMARY KEY,
			thread_id    TEXT NOT NULL,
			agent_id     TEXT NOT NULL,
			message      TEXT NOT NULL,
			run_id       TEXT,
			status       TEXT NOT NULL DEFAULT 'pending',
			error        TEXT,
			created_at   DATETIME NOT NULL,
			completed_at DATETIME
		);

		CREATE INDEX IF NOT EXISTS idx_runs_thread_created
			ON runs(thread_id, created_at);

		CREATE INDEX IF NOT EXISTS idx_runs_created
			ON runs(created_at DESC);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("executing schema: %w", err)
	}
	return nil
}

// RecordSend inserts a pending send record. Message bodies are truncated
// so oversized payloads cannot bloat the ledger.
func (s *SQLiteStore) RecordSend(ctx context.Context, rec *SendRecord) error {
	message := rec.Message
	if len(message) > maxStoredMessage {
		message = message[:maxStoredMessage]
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, thread_id, agent_id, message, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		rec.ID, rec.ThreadID, rec.AgentID, message, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting send record: %w", err)
	}
	return nil
}

// RecordOutcome updates a send record with its run result.
func (s *SQLiteStore) RecordOutcome(ctx context.Context, id string, out *OutcomeRecord) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE runs
		SET run_id = ?, status = ?, error = ?, completed_at = ?
		WHERE id = ?`,
		nullString(out.RunID), out.Status, nullString(out.Error), out.CompletedAt, id)
	if err != nil {
		return fmt.Errorf("updating outcome: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking outcome update: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// RecentRuns lists run records newest first. A non-positive limit falls
// back to 50.
func (s *SQLiteStore) RecentRuns(ctx context.Context, limit int) ([]*RunRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, thread_id, agent_id, message, run_id, status, error, created_at, completed_at
		FROM runs
		ORDER BY created_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	var records []*RunRecord
	for rows.Next() {
		var rec RunRecord
		var runID, errText sql.NullString
		var completedAt sql.NullTime

		if err := rows.Scan(&rec.ID, &rec.ThreadID, &rec.AgentID, &rec.Message,
			&runID, &rec.Status, &errText, &rec.CreatedAt, &completedAt); err != nil {
			return nil, fmt.Errorf("scanning run record: %w", err)
		}

		rec.RunID = runID.String
		rec.Error = errText.String
		if completedAt.Valid {
			t := completedAt.Time
			rec.CompletedAt = &t
		}
		records = append(records, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating run records: %w", err)
	}
	return records, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// nullString maps empty strings to SQL NULL.
func nullString(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}
