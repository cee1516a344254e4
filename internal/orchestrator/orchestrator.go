// internal/orchestrator/orchestrator.go
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/reflectd/internal/analysis"
	"github.com/fyrsmithlabs/reflectd/internal/cache"
	"github.com/fyrsmithlabs/reflectd/internal/inference"
	"github.com/fyrsmithlabs/reflectd/internal/journal"
	"github.com/fyrsmithlabs/reflectd/internal/ledger"
	"github.com/fyrsmithlabs/reflectd/internal/metrics"
	"github.com/fyrsmithlabs/reflectd/internal/store"
)

// Common errors for orchestration.
var (
	ErrNotAuthenticated = errors.New("not authenticated")
	ErrNilStore         = errors.New("store cannot be nil")
	ErrNilDispatcher    = errors.New("dispatcher cannot be nil")
)

// Dispatcher is the inference surface the orchestrator consumes.
// *inference.Dispatcher satisfies it.
type Dispatcher interface {
	Dispatch(ctx context.Context, req analysis.Request, live func() bool) (map[string]any, error)
}

// UsageGate is the sibling usage-limit subsystem's hook. The
// orchestrator does not enforce quota; it reports fresh, non-duplicate
// resolutions so the gate can act. degraded distinguishes fallback
// outcomes from live inference successes.
type UsageGate interface {
	Debit(ctx context.Context, userID string, tool analysis.ToolKind, degraded bool) error
}

// NopGate is a UsageGate that only logs.
type NopGate struct {
	Logger *zap.Logger
}

// Debit implements UsageGate.
func (g NopGate) Debit(ctx context.Context, userID string, tool analysis.ToolKind, degraded bool) error {
	if g.Logger != nil {
		g.Logger.Debug("usage debit signal",
			zap.String("user_id", userID),
			zap.String("tool", string(tool)),
			zap.Bool("degraded", degraded))
	}
	return nil
}

// Deps bundles the collaborators shared across orchestrator instances.
type Deps struct {
	Store      store.Store
	Dispatcher Dispatcher
	Journal    *journal.Writer
	Ledger     *ledger.Updater
	Cache      *cache.SessionCache
	Gate       UsageGate
	Logger     *zap.Logger
	Metrics    *metrics.Metrics
}

// Result is what a resolved submission returns to the caller.
type Result struct {
	Outcome analysis.Outcome `json:"outcome"`

	// Duplicate marks resolutions served from a prior log entry.
	Duplicate bool `json:"duplicate,omitempty"`

	// DegradedReason carries the inference failure kind when the outcome
	// came from the fallback generator, so the UI can message it.
	DegradedReason string `json:"degraded_reason,omitempty"`
}

// Orchestrator runs analyses for a single user session.
type Orchestrator struct {
	userID string
	deps   Deps
	logger *zap.Logger

	// now is injectable for tests.
	now func() time.Time

	mu         sync.Mutex
	generation int64
	inFlight   bool
	current    *Result
}

// New creates an orchestrator for one user.
func New(userID string, deps Deps) (*Orchestrator, error) {
	if userID == "" {
		return nil, ErrNotAuthenticated
	}
	if deps.Store == nil {
		return nil, ErrNilStore
	}
	if deps.Dispatcher == nil {
		return nil, ErrNilDispatcher
	}
	if deps.Journal == nil || deps.Ledger == nil {
		return nil, errors.New("journal and ledger are required")
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Gate == nil {
		deps.Gate = NopGate{Logger: deps.Logger}
	}

	return &Orchestrator{
		userID: userID,
		deps:   deps,
		logger: deps.Logger.With(zap.String("user_id", userID)),
		now:    time.Now,
	}, nil
}

// Submit runs one analysis.
//
// A nil result with a nil error means the submission was benignly
// ignored: another analysis is already in flight, or this one was
// cancelled or superseded before resolving. Expected conditions never
// surface as errors; an error here is caller misuse (invalid request).
func (o *Orchestrator) Submit(ctx context.Context, tool analysis.ToolKind, rawInput, idempotencyKey string) (*Result, error) {
	req := analysis.Request{Tool: tool, RawInput: rawInput, IdempotencyKey: idempotencyKey}
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = analysis.DeriveKey(tool, rawInput, o.now())
	}

	// Arm: at most one in-flight analysis per instance. A second submit
	// while armed is rejected outright, no queueing, no interruption.
	o.mu.Lock()
	if o.inFlight {
		o.mu.Unlock()
		o.logger.Debug("submission ignored, analysis already in flight",
			zap.String("tool", string(tool)))
		return nil, nil
	}
	o.generation++
	gen := o.generation
	o.inFlight = true
	o.mu.Unlock()

	result := o.run(ctx, req, gen)

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.generation != gen {
		// Superseded while resolving; the result is discarded silently.
		return nil, nil
	}
	o.inFlight = false
	if result != nil {
		o.current = result
	}
	return result, nil
}

// run executes the guarded pipeline for one armed submission. It
// returns nil when the submission resolved to nothing (superseded).
func (o *Orchestrator) run(ctx context.Context, req analysis.Request, gen int64) *Result {
	live := func() bool { return o.liveGeneration(gen) }

	// Idempotency guard: query-before-write against the interaction log.
	// A failed lookup fails open; dedup is a cost optimization, and a
	// duplicate log row is more tolerable than a blocked user.
	prior, err := o.deps.Store.QueryLatestLogEntry(ctx, o.userID, req.IdempotencyKey)
	if err != nil {
		o.deps.Metrics.GuardFailOpen()
		o.logger.Warn("idempotency lookup failed, treating as fresh",
			zap.String("idempotency_key", req.IdempotencyKey),
			zap.Error(err))
	}
	if prior != nil {
		o.deps.Metrics.DedupHit()
		o.logger.Info("duplicate submission resolved from interaction log",
			zap.String("idempotency_key", req.IdempotencyKey),
			zap.String("entry_id", prior.ID))
		result := &Result{Outcome: prior.Outcome, Duplicate: true}
		o.cacheResult(req, result)
		return result
	}

	raw, err := o.deps.Dispatcher.Dispatch(ctx, req, live)
	if errors.Is(err, inference.ErrSuperseded) {
		return nil
	}

	var result Result
	switch {
	case err != nil:
		kind := inference.KindOf(err)
		result.Outcome = analysis.Fallback(req.Tool, req.RawInput)
		result.DegradedReason = string(kind)
		o.deps.Metrics.Fallback(req.Tool, string(kind))
	default:
		result.Outcome = analysis.Normalize(req.Tool, raw)
		if !result.Outcome.Presentable() {
			// No usable tool-specific template in the response.
			result.Outcome = analysis.Fallback(req.Tool, req.RawInput)
			result.DegradedReason = string(inference.FailureUnknown)
			o.deps.Metrics.Fallback(req.Tool, string(inference.FailureUnknown))
		}
	}

	// Checkpoint before side effects: nothing from a superseded call may
	// reach the cache, the log, or the ledger.
	if !live() {
		return nil
	}

	o.cacheResult(req, &result)

	// The log write is non-fatal; the writer logs both dispositions.
	_, _ = o.deps.Journal.Record(ctx, o.userID, req, result.Outcome)

	// Ledger failures are non-fatal and partial-tolerant; the updater
	// logs what it could not apply.
	if err := o.deps.Ledger.ApplyDeltas(ctx, o.userID, result.Outcome.VirtueDeltas); err != nil {
		o.logger.Warn("score ledger update failed", zap.Error(err))
	}

	if err := o.deps.Gate.Debit(ctx, o.userID, req.Tool, result.Outcome.Degraded); err != nil {
		o.logger.Warn("usage gate debit failed", zap.Error(err))
	}

	return &result
}

// Cancel aborts the in-flight analysis, if any.
//
// The loading flag clears synchronously; the underlying call may still
// be in flight, and its eventual resolution is discarded at the
// generation checkpoints. Cancel writes nothing: no interaction log
// entry, no ledger rows.
func (o *Orchestrator) Cancel() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.inFlight {
		return
	}
	o.generation++
	o.inFlight = false
	o.logger.Info("analysis cancelled")
}

// IsLoading reports whether an analysis is in flight.
func (o *Orchestrator) IsLoading() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.inFlight
}

// Current returns the last resolved result, restoring from the session
// cache when this instance has none (a reloaded session).
func (o *Orchestrator) Current() *Result {
	o.mu.Lock()
	if o.current != nil {
		defer o.mu.Unlock()
		result := *o.current
		return &result
	}
	o.mu.Unlock()

	if o.deps.Cache == nil {
		return nil
	}
	cached, ok := o.deps.Cache.Get(o.userID)
	if !ok {
		return nil
	}

	result := &Result{Outcome: cached.Outcome}
	o.mu.Lock()
	o.current = result
	o.mu.Unlock()
	return result
}

// Reset clears the cached and current outcome. It does not touch the
// interaction log or the score ledger.
func (o *Orchestrator) Reset() {
	o.mu.Lock()
	o.current = nil
	o.mu.Unlock()
	if o.deps.Cache != nil {
		o.deps.Cache.Clear(o.userID)
	}
}

// liveGeneration reports whether gen is still the armed generation.
func (o *Orchestrator) liveGeneration(gen int64) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.generation == gen
}

// cacheResult stores a resolved outcome for reload survival.
func (o *Orchestrator) cacheResult(req analysis.Request, result *Result) {
	if o.deps.Cache == nil {
		return
	}
	o.deps.Cache.Set(o.userID, cache.Result{
		Outcome:        result.Outcome,
		Tool:           req.Tool,
		RawInput:       req.RawInput,
		IdempotencyKey: req.IdempotencyKey,
	})
}
