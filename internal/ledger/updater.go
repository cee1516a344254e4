// Package ledger applies virtue score deltas as best-effort appends to
// the score ledger.
//
// The backing store is append-only and non-transactional across calls,
// so the updater approximates a transaction: one optimistic batched
// append, degraded on failure to independent single-row appends with
// per-row result tracking. Partial application leaves a ledger that is
// monotonically consistent but possibly sparse; each virtue's history is
// independently meaningful, so this is an accepted, logged degradation.
package ledger

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/reflectd/internal/analysis"
	"github.com/fyrsmithlabs/reflectd/internal/metrics"
	"github.com/fyrsmithlabs/reflectd/internal/store"
)

const (
	// BaselineScore is the starting point for a virtue with no ledger
	// history. Scores live on a 0-100 scale; new users start at the
	// midline so early movement is visible in both directions.
	BaselineScore = 50

	// MinScore and MaxScore bound every resolved absolute score.
	MinScore = 0
	MaxScore = 100
)

// Updater applies outcome deltas to the score ledger.
type Updater struct {
	store   store.Store
	logger  *zap.Logger
	metrics *metrics.Metrics

	// now is injectable for tests.
	now func() time.Time
}

// NewUpdater creates an Updater over the backing store.
func NewUpdater(s store.Store, logger *zap.Logger, m *metrics.Metrics) *Updater {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Updater{
		store:   s,
		logger:  logger,
		metrics: m,
		now:     time.Now,
	}
}

// ApplyDeltas records the score movements from one outcome.
//
// Zero deltas are filtered before any store interaction: a zero-delta
// entry means "virtue identified, no score change" and is a no-op, not a
// ledger row. The returned error reports a fully failed application;
// callers treat it as non-fatal. Partial failure of individual rows is
// logged here and not reported as an error.
func (u *Updater) ApplyDeltas(ctx context.Context, userID string, deltas []analysis.VirtueDelta) error {
	filtered := make([]analysis.VirtueDelta, 0, len(deltas))
	virtues := make([]analysis.Virtue, 0, len(deltas))
	seen := make(map[analysis.Virtue]struct{}, len(deltas))
	for _, d := range deltas {
		if d.Delta == 0 || !d.Virtue.Valid() {
			continue
		}
		if _, dup := seen[d.Virtue]; dup {
			continue
		}
		seen[d.Virtue] = struct{}{}
		filtered = append(filtered, d)
		virtues = append(virtues, d.Virtue)
	}
	if len(filtered) == 0 {
		return nil
	}

	prior, err := u.store.QueryLatestScoresByVirtue(ctx, userID, virtues)
	if err != nil {
		u.metrics.LedgerRows("lost", len(filtered))
		u.logger.Warn("ledger score read failed, skipping update",
			zap.String("user_id", userID),
			zap.Int("deltas", len(filtered)),
			zap.Error(err))
		return fmt.Errorf("reading latest scores: %w", err)
	}

	now := u.now().UTC()
	rows := make([]store.ScoreRow, len(filtered))
	for i, d := range filtered {
		before, ok := prior[d.Virtue]
		if !ok {
			before = BaselineScore
		}
		rows[i] = store.ScoreRow{
			UserID:     userID,
			Virtue:     d.Virtue,
			Score:      clamp(before + d.Delta),
			Delta:      d.Delta,
			RecordedAt: now,
		}
	}

	batchErr := u.store.InsertScoreRows(ctx, rows)
	if batchErr == nil {
		u.metrics.LedgerRows("written", len(rows))
		return nil
	}
	u.logger.Warn("ledger batch append failed, retrying rows independently",
		zap.String("user_id", userID),
		zap.Int("rows", len(rows)),
		zap.Error(batchErr))

	// Saga-style degradation: replay each unit independently and track
	// which ones landed.
	var lost int
	for _, row := range rows {
		if err := u.store.InsertScoreRows(ctx, []store.ScoreRow{row}); err != nil {
			lost++
			u.logger.Warn("ledger row lost",
				zap.String("user_id", userID),
				zap.String("virtue", string(row.Virtue)),
				zap.Int("delta", row.Delta),
				zap.Error(err))
			continue
		}
		u.metrics.LedgerRows("degraded", 1)
	}
	u.metrics.LedgerRows("lost", lost)

	if lost == len(rows) {
		return fmt.Errorf("all %d ledger rows failed to append", lost)
	}
	return nil
}

// LatestScores returns the latest ledger score per virtue for display,
// with the baseline filled in for virtues without history.
func (u *Updater) LatestScores(ctx context.Context, userID string) (map[analysis.Virtue]int, error) {
	scores, err := u.store.QueryLatestScoresByVirtue(ctx, userID, analysis.AllVirtues())
	if err != nil {
		return nil, fmt.Errorf("reading latest scores: %w", err)
	}
	for _, v := range analysis.AllVirtues() {
		if _, ok := scores[v]; !ok {
			scores[v] = BaselineScore
		}
	}
	return scores, nil
}

func clamp(score int) int {
	if score < MinScore {
		return MinScore
	}
	if score > MaxScore {
		return MaxScore
	}
	return score
}
