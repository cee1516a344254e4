// Package store provides the append-only backing store for reflectd:
// the interaction log and the score ledger.
//
// The subsystem only ever appends and reads; no implementation exposes
// update or delete. Two backends exist: SQLite for durable runs and an
// in-memory store for tests and ephemeral use.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/fyrsmithlabs/reflectd/internal/analysis"
)

// Common errors for store operations.
var (
	ErrEmptyUserID = errors.New("user ID cannot be empty")
	ErrNoRows      = errors.New("no rows to insert")
)

// LogEntry is one immutable interaction log record.
type LogEntry struct {
	ID             string            `json:"id"`
	UserID         string            `json:"user_id"`
	Tool           analysis.ToolKind `json:"tool"`
	RawInput       string            `json:"raw_input"`
	IdempotencyKey string            `json:"idempotency_key"`
	Outcome        analysis.Outcome  `json:"outcome"`
	CreatedAt      time.Time         `json:"created_at"`
}

// ScoreRow is one self-contained score ledger record. Score is the
// resolved absolute value after applying Delta, so history lines read
// independently of each other.
type ScoreRow struct {
	UserID     string          `json:"user_id"`
	Virtue     analysis.Virtue `json:"virtue"`
	Score      int             `json:"score"`
	Delta      int             `json:"delta"`
	RecordedAt time.Time       `json:"recorded_at"`
}

// Store is the backing store consumed by the orchestrator and the read
// surfaces. Uniqueness of (user, idempotency key) is NOT enforced here;
// the orchestrator enforces it with query-before-write.
type Store interface {
	// QueryLatestLogEntry returns the most recent entry for the
	// (userID, idempotencyKey) pair, or nil when none exists.
	QueryLatestLogEntry(ctx context.Context, userID, idempotencyKey string) (*LogEntry, error)

	// InsertLogEntry appends one interaction log entry.
	InsertLogEntry(ctx context.Context, entry LogEntry) error

	// RecentLogEntries returns up to limit entries for the user, newest first.
	RecentLogEntries(ctx context.Context, userID string, limit int) ([]LogEntry, error)

	// QueryLatestScoresByVirtue returns the latest ledger score per
	// requested virtue. Virtues with no history are absent from the map.
	QueryLatestScoresByVirtue(ctx context.Context, userID string, virtues []analysis.Virtue) (map[analysis.Virtue]int, error)

	// InsertScoreRows appends ledger rows as one batch. Implementations
	// either apply the whole batch or none of it.
	InsertScoreRows(ctx context.Context, rows []ScoreRow) error

	// Close releases backing resources.
	Close() error
}
