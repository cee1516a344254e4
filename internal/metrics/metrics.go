// Package metrics provides Prometheus instrumentation for reflectd.
//
// A nil *Metrics is valid everywhere; all methods no-op on nil so wiring
// stays optional in tests.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/fyrsmithlabs/reflectd/internal/analysis"
)

// Metrics holds all reflectd instrument handles.
type Metrics struct {
	inferenceCalls    *prometheus.CounterVec
	inferenceDuration *prometheus.HistogramVec
	fallbacks         *prometheus.CounterVec
	dedupHits         prometheus.Counter
	guardFailOpen     prometheus.Counter
	journalFailures   prometheus.Counter
	ledgerRows        *prometheus.CounterVec
}

// New registers all reflectd metrics against reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		inferenceCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "reflectd_inference_calls_total",
			Help: "Inference calls by tool and result (success or a failure kind).",
		}, []string{"tool", "result"}),
		inferenceDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "reflectd_inference_duration_seconds",
			Help:    "Latency of successful inference calls by tool.",
			Buckets: []float64{0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"tool"}),
		fallbacks: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "reflectd_fallback_outcomes_total",
			Help: "Locally generated fallback outcomes by tool and failure kind.",
		}, []string{"tool", "kind"}),
		dedupHits: factory.NewCounter(prometheus.CounterOpts{
			Name: "reflectd_idempotency_dedup_hits_total",
			Help: "Submissions resolved from a prior interaction log entry.",
		}),
		guardFailOpen: factory.NewCounter(prometheus.CounterOpts{
			Name: "reflectd_idempotency_guard_failopen_total",
			Help: "Guard lookups that failed and were treated as fresh.",
		}),
		journalFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "reflectd_journal_write_failures_total",
			Help: "Interaction log writes that failed and were swallowed.",
		}),
		ledgerRows: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "reflectd_ledger_rows_total",
			Help: "Score ledger rows by outcome: written, degraded (written via single-row retry), or lost.",
		}, []string{"outcome"}),
	}
}

// InferenceSuccess records one successful inference call.
func (m *Metrics) InferenceSuccess(tool analysis.ToolKind, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.inferenceCalls.WithLabelValues(string(tool), "success").Inc()
	m.inferenceDuration.WithLabelValues(string(tool)).Observe(elapsed.Seconds())
}

// InferenceFailure records one classified inference failure. The kind is
// a plain string here to avoid an import cycle with the inference package.
func (m *Metrics) InferenceFailure(tool analysis.ToolKind, kind string) {
	if m == nil {
		return
	}
	m.inferenceCalls.WithLabelValues(string(tool), kind).Inc()
}

// Fallback records one fallback outcome served to a user.
func (m *Metrics) Fallback(tool analysis.ToolKind, kind string) {
	if m == nil {
		return
	}
	m.fallbacks.WithLabelValues(string(tool), kind).Inc()
}

// DedupHit records a submission collapsed onto a prior log entry.
func (m *Metrics) DedupHit() {
	if m == nil {
		return
	}
	m.dedupHits.Inc()
}

// GuardFailOpen records a guard lookup failure treated as fresh.
func (m *Metrics) GuardFailOpen() {
	if m == nil {
		return
	}
	m.guardFailOpen.Inc()
}

// JournalWriteFailure records a swallowed interaction log write failure.
func (m *Metrics) JournalWriteFailure() {
	if m == nil {
		return
	}
	m.journalFailures.Inc()
}

// LedgerRows records ledger row dispositions.
func (m *Metrics) LedgerRows(outcome string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.ledgerRows.WithLabelValues(outcome).Add(float64(n))
}
