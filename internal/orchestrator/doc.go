// Package orchestrator turns one piece of free-text user input into
// exactly one durable, idempotent, cancellable analysis outcome.
//
// One Orchestrator instance serves one user session and serializes its
// submissions: at most one analysis is in flight per instance, and at
// most one inference call is made per idempotency key. The orchestrator
// coordinates three side effects that must not corrupt state under
// retries, concurrent taps, network failure, or reload:
//
//   - a single external inference call (recovered locally via the
//     fallback generator on any classified failure)
//   - an append-only interaction log entry, deduplicated by
//     query-before-write on (user, idempotency key)
//   - a best-effort score ledger update
//
// Cancellation is a generation counter, not transport abort: each
// submission arms a new generation, cancel and re-submit bump it, and
// checkpoints compare their generation to the current one. A superseded
// call's eventual resolution is discarded silently; no side effect from
// a cancelled call ever reaches persisted state.
package orchestrator
