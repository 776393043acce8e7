// Package tracker keeps a SQLite log of provider attempts.
package tracker

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/pario-ai/tandem/pkg/models"
)

// Tracker records and queries provider attempts.
type Tracker interface {
	// RecordAttempt stores one attempt.
	RecordAttempt(ctx context.Context, a models.Attempt) error
	// Recent returns the newest attempts first, at most limit of them.
	Recent(ctx context.Context, limit int) ([]models.Attempt, error)
	// Request returns the attempts made for one request in order.
	Request(ctx context.Context, requestID string) ([]models.Attempt, error)
	// Summary aggregates attempts per model since a given time.
	Summary(ctx context.Context, since time.Time) ([]models.ModelSummary, error)
	// Prune deletes attempts older than before.
	Prune(ctx context.Context, before time.Time) (int64, error)
	// Close releases resources.
	Close() error
}

// SQLiteTracker implements Tracker with a SQLite database.
type SQLiteTracker struct {
	db *sql.DB
}

const createTable = `
CREATE TABLE IF NOT EXISTS attempts (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	request_id TEXT NOT NULL DEFAULT '',
	session_id TEXT NOT NULL DEFAULT '',
	model TEXT NOT NULL,
	outcome TEXT NOT NULL,
	status_code INTEGER NOT NULL DEFAULT 0,
	reason TEXT NOT NULL DEFAULT '',
	latency_ms INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_attempts_time ON attempts(created_at);
CREATE INDEX IF NOT EXISTS idx_attempts_request ON attempts(request_id);
`

// New creates a SQLiteTracker and runs auto-migration.
func New(dbPath string) (*SQLiteTracker, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open tracker db: %w", err)
	}

	if _, err := db.Exec(createTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate tracker db: %w", err)
	}

	return &SQLiteTracker{db: db}, nil
}

// RecordAttempt stores one attempt. A zero CreatedAt is stamped with now.
func (t *SQLiteTracker) RecordAttempt(ctx context.Context, a models.Attempt) error {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	_, err := t.db.ExecContext(ctx,
		`INSERT INTO attempts (request_id, session_id, model, outcome, status_code, reason, latency_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.RequestID, a.SessionID, a.Model, string(a.Outcome), a.StatusCode, a.Reason, a.LatencyMs, a.CreatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("record attempt: %w", err)
	}
	return nil
}

const selectAttempts = `SELECT id, request_id, session_id, model, outcome, status_code, reason, latency_ms, created_at FROM attempts`

// Recent returns the newest attempts first.
func (t *SQLiteTracker) Recent(ctx context.Context, limit int) ([]models.Attempt, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := t.db.QueryContext(ctx, selectAttempts+` ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("recent attempts: %w", err)
	}
	return scanAttempts(rows)
}

// Request returns every attempt made for requestID, oldest first.
func (t *SQLiteTracker) Request(ctx context.Context, requestID string) ([]models.Attempt, error) {
	rows, err := t.db.QueryContext(ctx, selectAttempts+` WHERE request_id = ? ORDER BY id ASC`, requestID)
	if err != nil {
		return nil, fmt.Errorf("request attempts: %w", err)
	}
	return scanAttempts(rows)
}

func scanAttempts(rows *sql.Rows) ([]models.Attempt, error) {
	defer rows.Close()

	var out []models.Attempt
	for rows.Next() {
		var (
			a       models.Attempt
			outcome string
			created int64
		)
		if err := rows.Scan(&a.ID, &a.RequestID, &a.SessionID, &a.Model, &outcome, &a.StatusCode, &a.Reason, &a.LatencyMs, &created); err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		a.Outcome = models.AttemptOutcome(outcome)
		a.CreatedAt = time.Unix(0, created).UTC()
		out = append(out, a)
	}
	return out, rows.Err()
}

// Summary aggregates attempts per model since a given time. A zero since
// covers the whole log.
func (t *SQLiteTracker) Summary(ctx context.Context, since time.Time) ([]models.ModelSummary, error) {
	var from int64
	if !since.IsZero() {
		from = since.UnixNano()
	}
	rows, err := t.db.QueryContext(ctx,
		`SELECT model, COUNT(*),
		        COALESCE(SUM(CASE WHEN outcome = ? THEN 1 ELSE 0 END), 0),
		        COALESCE(CAST(AVG(latency_ms) AS INTEGER), 0),
		        COALESCE(MAX(CASE WHEN outcome = ? THEN created_at END), 0)
		 FROM attempts WHERE created_at >= ?
		 GROUP BY model ORDER BY model`,
		string(models.OutcomeSuccess), string(models.OutcomeSuccess), from,
	)
	if err != nil {
		return nil, fmt.Errorf("summary: %w", err)
	}
	defer rows.Close()

	var summaries []models.ModelSummary
	for rows.Next() {
		var (
			s    models.ModelSummary
			last int64
		)
		if err := rows.Scan(&s.Model, &s.Attempts, &s.Successes, &s.AvgLatencyMs, &last); err != nil {
			return nil, fmt.Errorf("scan summary: %w", err)
		}
		s.Failures = s.Attempts - s.Successes
		if last > 0 {
			s.LastSuccess = time.Unix(0, last).UTC()
		}
		summaries = append(summaries, s)
	}
	return summaries, rows.Err()
}

// Prune deletes attempts created before the given time.
func (t *SQLiteTracker) Prune(ctx context.Context, before time.Time) (int64, error) {
	res, err := t.db.ExecContext(ctx, `DELETE FROM attempts WHERE created_at < ?`, before.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("prune attempts: %w", err)
	}
	return res.RowsAffected()
}

// Close releases the database connection.
func (t *SQLiteTracker) Close() error {
	return t.db.Close()
}
