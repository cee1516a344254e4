// internal/store/memory.go
package store

import (
	"context"
	"sync"

	"github.com/fyrsmithlabs/reflectd/internal/analysis"
)

// Memory is an in-process Store for tests and ephemeral runs.
//
// The exported hook fields let tests fail individual operations to
// exercise degradation paths; they are nil-safe and read under the lock.
type Memory struct {
	mu      sync.RWMutex
	entries []LogEntry
	rows    []ScoreRow

	// QueryLogErr, when set, is returned by QueryLatestLogEntry.
	QueryLogErr error

	// InsertLogErr, when set, is returned by InsertLogEntry.
	InsertLogErr error

	// QueryScoresErr, when set, is returned by QueryLatestScoresByVirtue.
	QueryScoresErr error

	// InsertRowsErr, when set, is returned by InsertScoreRows for every
	// call. BatchOnlyErr restricts the failure to multi-row batches so
	// the single-row retry path can succeed.
	InsertRowsErr error
	BatchOnlyErr  error
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{}
}

// QueryLatestLogEntry implements Store.
func (m *Memory) QueryLatestLogEntry(ctx context.Context, userID, idempotencyKey string) (*LogEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.QueryLogErr != nil {
		return nil, m.QueryLogErr
	}
	if userID == "" {
		return nil, ErrEmptyUserID
	}

	for i := len(m.entries) - 1; i >= 0; i-- {
		e := m.entries[i]
		if e.UserID == userID && e.IdempotencyKey == idempotencyKey {
			entry := e
			return &entry, nil
		}
	}
	return nil, nil
}

// InsertLogEntry implements Store.
func (m *Memory) InsertLogEntry(ctx context.Context, entry LogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.InsertLogErr != nil {
		return m.InsertLogErr
	}
	if entry.UserID == "" {
		return ErrEmptyUserID
	}

	m.entries = append(m.entries, entry)
	return nil
}

// RecentLogEntries implements Store.
func (m *Memory) RecentLogEntries(ctx context.Context, userID string, limit int) ([]LogEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if userID == "" {
		return nil, ErrEmptyUserID
	}
	if limit <= 0 {
		limit = 20
	}

	out := make([]LogEntry, 0, limit)
	for i := len(m.entries) - 1; i >= 0 && len(out) < limit; i-- {
		if m.entries[i].UserID == userID {
			out = append(out, m.entries[i])
		}
	}
	return out, nil
}

// QueryLatestScoresByVirtue implements Store.
func (m *Memory) QueryLatestScoresByVirtue(ctx context.Context, userID string, virtues []analysis.Virtue) (map[analysis.Virtue]int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.QueryScoresErr != nil {
		return nil, m.QueryScoresErr
	}
	if userID == "" {
		return nil, ErrEmptyUserID
	}

	wanted := make(map[analysis.Virtue]struct{}, len(virtues))
	for _, v := range virtues {
		wanted[v] = struct{}{}
	}

	scores := make(map[analysis.Virtue]int)
	for i := len(m.rows) - 1; i >= 0; i-- {
		row := m.rows[i]
		if row.UserID != userID {
			continue
		}
		if _, ok := wanted[row.Virtue]; !ok {
			continue
		}
		if _, seen := scores[row.Virtue]; !seen {
			scores[row.Virtue] = row.Score
		}
	}
	return scores, nil
}

// InsertScoreRows implements Store.
func (m *Memory) InsertScoreRows(ctx context.Context, rows []ScoreRow) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.InsertRowsErr != nil {
		return m.InsertRowsErr
	}
	if m.BatchOnlyErr != nil && len(rows) > 1 {
		return m.BatchOnlyErr
	}
	if len(rows) == 0 {
		return ErrNoRows
	}

	m.rows = append(m.rows, rows...)
	return nil
}

// Close implements Store.
func (m *Memory) Close() error {
	return nil
}

// Entries returns a copy of all log entries, oldest first.
func (m *Memory) Entries() []LogEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]LogEntry, len(m.entries))
	copy(out, m.entries)
	return out
}

// ScoreRows returns a copy of all ledger rows, oldest first.
func (m *Memory) ScoreRows() []ScoreRow {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]ScoreRow, len(m.rows))
	copy(out, m.rows)
	return out
}
