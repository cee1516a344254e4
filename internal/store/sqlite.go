// internal/store/sqlite.go
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/fyrsmithlabs/reflectd/internal/analysis"
)

const schema = `
CREATE TABLE IF NOT EXISTS interaction_log (
	id              TEXT PRIMARY KEY,
	user_id         TEXT NOT NULL,
	tool            TEXT NOT NULL,
	raw_input       TEXT NOT NULL,
	idempotency_key TEXT NOT NULL,
	outcome_json    TEXT NOT NULL,
	created_at      TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_interaction_log_dedup
	ON interaction_log (user_id, idempotency_key);

CREATE TABLE IF NOT EXISTS score_ledger (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id     TEXT NOT NULL,
	virtue      TEXT NOT NULL,
	score       INTEGER NOT NULL,
	delta       INTEGER NOT NULL,
	recorded_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_score_ledger_user_virtue
	ON score_ledger (user_id, virtue);
`

// SQLite is a durable Store backed by a single database file.
//
// Note there is deliberately no UNIQUE constraint on
// (user_id, idempotency_key): the log is a plain append log and dedup is
// the orchestrator's query-before-write responsibility.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens the database file and runs migrations.
func NewSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &SQLite{db: db}, nil
}

// Close implements Store.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// QueryLatestLogEntry implements Store.
func (s *SQLite) QueryLatestLogEntry(ctx context.Context, userID, idempotencyKey string) (*LogEntry, error) {
	if userID == "" {
		return nil, ErrEmptyUserID
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, tool, raw_input, idempotency_key, outcome_json, created_at
		FROM interaction_log
		WHERE user_id = ? AND idempotency_key = ?
		ORDER BY created_at DESC, rowid DESC
		LIMIT 1`, userID, idempotencyKey)

	entry, err := scanLogEntry(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query latest log entry: %w", err)
	}
	return entry, nil
}

// InsertLogEntry implements Store.
func (s *SQLite) InsertLogEntry(ctx context.Context, entry LogEntry) error {
	if entry.UserID == "" {
		return ErrEmptyUserID
	}

	outcomeJSON, err := json.Marshal(entry.Outcome)
	if err != nil {
		return fmt.Errorf("marshal outcome: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO interaction_log (id, user_id, tool, raw_input, idempotency_key, outcome_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.UserID, string(entry.Tool), entry.RawInput,
		entry.IdempotencyKey, string(outcomeJSON), entry.CreatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("insert log entry: %w", err)
	}
	return nil
}

// RecentLogEntries implements Store.
func (s *SQLite) RecentLogEntries(ctx context.Context, userID string, limit int) ([]LogEntry, error) {
	if userID == "" {
		return nil, ErrEmptyUserID
	}
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, tool, raw_input, idempotency_key, outcome_json, created_at
		FROM interaction_log
		WHERE user_id = ?
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent log entries: %w", err)
	}
	defer rows.Close()

	var entries []LogEntry
	for rows.Next() {
		entry, err := scanLogEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan log entry: %w", err)
		}
		entries = append(entries, *entry)
	}
	return entries, rows.Err()
}

// QueryLatestScoresByVirtue implements Store.
func (s *SQLite) QueryLatestScoresByVirtue(ctx context.Context, userID string, virtues []analysis.Virtue) (map[analysis.Virtue]int, error) {
	if userID == "" {
		return nil, ErrEmptyUserID
	}
	if len(virtues) == 0 {
		return map[analysis.Virtue]int{}, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(virtues)), ",")
	args := make([]any, 0, len(virtues)+2)
	args = append(args, userID)
	for _, v := range virtues {
		args = append(args, string(v))
	}

	query := fmt.Sprintf(`
		SELECT virtue, score FROM score_ledger
		WHERE id IN (
			SELECT MAX(id) FROM score_ledger
			WHERE user_id = ? AND virtue IN (%s)
			GROUP BY virtue
		)`, placeholders)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query latest scores: %w", err)
	}
	defer rows.Close()

	scores := make(map[analysis.Virtue]int)
	for rows.Next() {
		var virtue string
		var score int
		if err := rows.Scan(&virtue, &score); err != nil {
			return nil, fmt.Errorf("scan score row: %w", err)
		}
		scores[analysis.Virtue(virtue)] = score
	}
	return scores, rows.Err()
}

// InsertScoreRows implements Store. The batch is applied in one
// transaction: all rows or none.
func (s *SQLite) InsertScoreRows(ctx context.Context, rows []ScoreRow) error {
	if len(rows) == 0 {
		return ErrNoRows
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, row := range rows {
		if row.UserID == "" {
			return ErrEmptyUserID
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO score_ledger (user_id, virtue, score, delta, recorded_at)
			VALUES (?, ?, ?, ?, ?)`,
			row.UserID, string(row.Virtue), row.Score, row.Delta,
			row.RecordedAt.UTC().Format(time.RFC3339Nano)); err != nil {
			return fmt.Errorf("insert score row: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit score rows: %w", err)
	}
	return nil
}

// rowScanner abstracts *sql.Row and *sql.Rows for scanLogEntry.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanLogEntry(r rowScanner) (*LogEntry, error) {
	var entry LogEntry
	var tool, outcomeJSON, createdAt string
	if err := r.Scan(&entry.ID, &entry.UserID, &tool, &entry.RawInput,
		&entry.IdempotencyKey, &outcomeJSON, &createdAt); err != nil {
		return nil, err
	}

	entry.Tool = analysis.ToolKind(tool)
	if err := json.Unmarshal([]byte(outcomeJSON), &entry.Outcome); err != nil {
		return nil, fmt.Errorf("unmarshal outcome: %w", err)
	}

	ts, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	entry.CreatedAt = ts
	return &entry, nil
}
