// Package inference builds tool-specific payloads, invokes the external
// inference endpoint, and classifies results and failures.
package inference

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/reflectd/internal/analysis"
	"github.com/fyrsmithlabs/reflectd/internal/config"
	"github.com/fyrsmithlabs/reflectd/internal/metrics"
)

// Model is the minimal surface of an inference backend.
//
// Implementations handle transport concerns; the dispatcher handles
// payload shape, timeout, rate limiting, and failure classification.
type Model interface {
	// Complete generates a completion for the given prompt.
	Complete(ctx context.Context, prompt string) (string, error)
}

// Dispatcher invokes the external inference endpoint for one request at
// a time and classifies the result or failure.
type Dispatcher struct {
	model   Model
	limiter *rate.Limiter
	timeout time.Duration
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// NewDispatcher creates a dispatcher around a model backend.
func NewDispatcher(model Model, cfg config.InferenceConfig, logger *zap.Logger, m *metrics.Metrics) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		model:   model,
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.RateBurst),
		timeout: cfg.Timeout.Duration(),
		logger:  logger,
		metrics: m,
	}
}

// Dispatch performs one inference call.
//
// live is the active cancellation token's check; it is observed at two
// checkpoints: immediately before the call and immediately after the
// response. A checkpoint failure returns ErrSuperseded and the result is
// discarded so nothing downstream of a cancelled call can reach persisted
// state. live may be nil, meaning always live.
//
// Failures are returned as *Error with a classified kind; the caller
// recovers them locally via the fallback generator.
func (d *Dispatcher) Dispatch(ctx context.Context, req analysis.Request, live func() bool) (map[string]any, error) {
	if live == nil {
		live = func() bool { return true }
	}

	callCtx := ctx
	if d.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	// A full limiter means we would queue behind other calls; surface it
	// as rate limiting rather than silently stretching the user's wait.
	if !d.limiter.Allow() {
		if err := d.limiter.Wait(callCtx); err != nil {
			d.metrics.InferenceFailure(req.Tool, string(FailureRateLimit))
			return nil, &Error{Kind: FailureRateLimit, Err: err}
		}
	}

	// Checkpoint: cancelled while waiting for a limiter slot.
	if !live() {
		return nil, ErrSuperseded
	}

	start := time.Now()
	reply, err := d.model.Complete(callCtx, BuildPrompt(req))
	elapsed := time.Since(start)

	// Checkpoint: cancelled while the call was in flight. The transport
	// itself is not aborted on supersession; its resolution is discarded
	// here instead.
	if !live() {
		d.logger.Debug("discarding superseded inference result",
			zap.String("tool", string(req.Tool)),
			zap.Duration("elapsed", elapsed))
		return nil, ErrSuperseded
	}

	if err != nil {
		classified := classify(err)
		d.metrics.InferenceFailure(req.Tool, string(classified.Kind))
		d.logger.Warn("inference call failed",
			zap.String("tool", string(req.Tool)),
			zap.String("kind", string(classified.Kind)),
			zap.Duration("elapsed", elapsed),
			zap.Error(err))
		return nil, classified
	}

	d.metrics.InferenceSuccess(req.Tool, elapsed)
	d.logger.Debug("inference call succeeded",
		zap.String("tool", string(req.Tool)),
		zap.Duration("elapsed", elapsed))

	return ParseResponse(reply), nil
}
