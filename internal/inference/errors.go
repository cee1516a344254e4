// internal/inference/errors.go
package inference

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// FailureKind classifies why an inference call failed.
type FailureKind string

const (
	FailureNetwork   FailureKind = "network"
	FailureRateLimit FailureKind = "rate_limited"
	FailureQuota     FailureKind = "quota_exceeded"
	FailureTimeout   FailureKind = "timeout"
	FailureCanceled  FailureKind = "canceled"
	FailureUnknown   FailureKind = "unknown"
)

// ErrSuperseded is returned when a cancellation checkpoint finds the call
// no longer live. It is not a failure kind: a superseded call produces no
// outcome at all, not a fallback.
var ErrSuperseded = errors.New("inference call superseded")

// Error is a classified inference failure.
type Error struct {
	Kind FailureKind
	Err  error
}

// Error implements error.
func (e *Error) Error() string {
	return fmt.Sprintf("inference %s: %v", e.Kind, e.Err)
}

// Unwrap supports errors.Is/As on the cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf extracts the failure kind, FailureUnknown for unclassified errors.
func KindOf(err error) FailureKind {
	var ie *Error
	if errors.As(err, &ie) {
		return ie.Kind
	}
	return FailureUnknown
}

// classify wraps an underlying transport error with its failure kind.
func classify(err error) *Error {
	kind := FailureUnknown

	var netErr net.Error
	msg := strings.ToLower(err.Error())

	switch {
	case errors.Is(err, context.Canceled):
		// The caller's context died mid-call (client disconnect); this is
		// not a timeout and must not masquerade as one.
		kind = FailureCanceled
	case errors.Is(err, context.DeadlineExceeded):
		kind = FailureTimeout
	case errors.As(err, &netErr) && netErr.Timeout():
		kind = FailureTimeout
	case strings.Contains(msg, "insufficient_quota") || strings.Contains(msg, "quota"):
		kind = FailureQuota
	case strings.Contains(msg, "429") || strings.Contains(msg, "rate limit") || strings.Contains(msg, "too many requests"):
		kind = FailureRateLimit
	case errors.As(err, &netErr),
		strings.Contains(msg, "connection refused"),
		strings.Contains(msg, "no such host"),
		strings.Contains(msg, "connection reset"),
		strings.Contains(msg, "eof"):
		kind = FailureNetwork
	}

	return &Error{Kind: kind, Err: err}
}
