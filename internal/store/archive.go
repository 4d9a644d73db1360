// ABOUTME: SQLite transcript archive using modernc.org/sqlite
// ABOUTME: Append-only ledger of every routed line, keyed by customer conversation id

package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/campuschat/handoff-gateway/internal/conversation"
)

// timeFormat is RFC 3339 with fixed-width nanoseconds, so stored timestamps
// compare correctly as text in ORDER BY.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// ArchivedLine is one transcript line as read back from the archive.
type ArchivedLine struct {
	ID         string
	CustomerID string
	From       conversation.Origin
	Text       string
	CreatedAt  time.Time
}

// SQLiteArchive implements conversation.Archiver against a SQLite database.
// Rows are only ever inserted, never updated or deleted.
type SQLiteArchive struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteArchive opens (or creates) the archive at the given path. The
// schema is created automatically, and parent directories are created if
// needed. Use ":memory:" for an ephemeral archive.
func NewSQLiteArchive(path string, logger *slog.Logger) (*SQLiteArchive, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "archive")

	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// WAL keeps archive writes off the message path's critical latency.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	a := &SQLiteArchive{db: db, logger: logger}
	if err := a.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("transcript archive initialized", "path", path)
	return a, nil
}

func (a *SQLiteArchive) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS transcript_lines (
			id         TEXT PRIMARY KEY,
			customer_id TEXT NOT NULL,
			origin     TEXT NOT NULL,
			body       TEXT NOT NULL,
			created_at DATETIME NOT NULL,

			CHECK (origin IN ('customer', 'agent'))
		);

		CREATE INDEX IF NOT EXISTS idx_transcript_customer_created
			ON transcript_lines(customer_id, created_at);
	`
	if _, err := a.db.Exec(schema); err != nil {
		return err
	}
	return nil
}

// Close closes the underlying database.
func (a *SQLiteArchive) Close() error {
	return a.db.Close()
}

// SaveLine appends one transcript line to the archive.
func (a *SQLiteArchive) SaveLine(ctx context.Context, customerID string, line conversation.Line) error {
	query := `
		INSERT INTO transcript_lines (id, customer_id, origin, body, created_at)
		VALUES (?, ?, ?, ?, ?)
	`

	id := uuid.New().String()
	_, err := a.db.ExecContext(ctx, query,
		id,
		customerID,
		string(line.From),
		line.Text,
		line.Timestamp.UTC().Format(timeFormat),
	)
	if err != nil {
		return fmt.Errorf("inserting transcript line: %w", err)
	}

	a.logger.Debug("archived transcript line",
		"id", id,
		"customer_id", customerID,
		"origin", line.From)
	return nil
}

// LinesByCustomer retrieves archived lines for one customer conversation.
// With a positive limit the most recent `limit` lines are returned; either
// way the result is in chronological order (oldest first).
func (a *SQLiteArchive) LinesByCustomer(ctx context.Context, customerID string, limit int) ([]*ArchivedLine, error) {
	var query string
	var args []any

	if limit > 0 {
		query = `
			SELECT id, customer_id, origin, body, created_at
			FROM (
				SELECT id, customer_id, origin, body, created_at
				FROM transcript_lines
				WHERE customer_id = ?
				ORDER BY created_at DESC
				LIMIT ?
			)
			ORDER BY created_at ASC
		`
		args = []any{customerID, limit}
	} else {
		query = `
			SELECT id, customer_id, origin, body, created_at
			FROM transcript_lines
			WHERE customer_id = ?
			ORDER BY created_at ASC
		`
		args = []any{customerID}
	}

	rows, err := a.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying transcript lines: %w", err)
	}
	defer rows.Close()

	var lines []*ArchivedLine
	for rows.Next() {
		var line ArchivedLine
		var origin, createdAtStr string

		if err := rows.Scan(&line.ID, &line.CustomerID, &origin, &line.Text, &createdAtStr); err != nil {
			return nil, fmt.Errorf("scanning transcript row: %w", err)
		}

		line.From = conversation.Origin(origin)
		line.CreatedAt, err = time.Parse(timeFormat, createdAtStr)
		if err != nil {
			return nil, fmt.Errorf("parsing transcript created_at: %w", err)
		}

		lines = append(lines, &line)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating transcript rows: %w", err)
	}

	return lines, nil
}

// CountLines returns the total number of archived lines, across all
// conversations. Used by diagnostics.
func (a *SQLiteArchive) CountLines(ctx context.Context) (int, error) {
	var n int
	err := a.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM transcript_lines").Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting transcript lines: %w", err)
	}
	return n, nil
}
