// Package journal persists resolved analyses as immutable interaction
// log entries. Entries are written exactly once per resolved request,
// fallback outcomes included, so degraded answers stay auditable and
// count toward idempotency dedup.
package journal

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/reflectd/internal/analysis"
	"github.com/fyrsmithlabs/reflectd/internal/metrics"
	"github.com/fyrsmithlabs/reflectd/internal/store"
)

// Writer appends interaction log entries to the backing store.
type Writer struct {
	store   store.Store
	logger  *zap.Logger
	metrics *metrics.Metrics

	// now and newID are injectable for tests.
	now   func() time.Time
	newID func() string
}

// NewWriter creates a Writer over the backing store.
func NewWriter(s store.Store, logger *zap.Logger, m *metrics.Metrics) *Writer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Writer{
		store:   s,
		logger:  logger,
		metrics: m,
		now:     time.Now,
		newID:   func() string { return uuid.NewString() },
	}
}

// Record appends one entry and returns its ID.
//
// A persistence failure here is non-fatal to the user flow: the analysis
// already succeeded from the user's perspective. The failure is logged
// and counted; callers are expected to swallow the returned error.
func (w *Writer) Record(ctx context.Context, userID string, req analysis.Request, outcome analysis.Outcome) (string, error) {
	entry := store.LogEntry{
		ID:             w.newID(),
		UserID:         userID,
		Tool:           req.Tool,
		RawInput:       req.RawInput,
		IdempotencyKey: req.IdempotencyKey,
		Outcome:        outcome,
		CreatedAt:      w.now().UTC(),
	}

	if err := w.store.InsertLogEntry(ctx, entry); err != nil {
		w.metrics.JournalWriteFailure()
		w.logger.Warn("interaction log write failed",
			zap.String("user_id", userID),
			zap.String("tool", string(req.Tool)),
			zap.String("idempotency_key", req.IdempotencyKey),
			zap.Error(err))
		return "", fmt.Errorf("recording interaction: %w", err)
	}

	w.logger.Debug("interaction recorded",
		zap.String("entry_id", entry.ID),
		zap.String("tool", string(req.Tool)),
		zap.Bool("degraded", outcome.Degraded))
	return entry.ID, nil
}
