package orchestrator

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/reflectd/internal/analysis"
	"github.com/fyrsmithlabs/reflectd/internal/cache"
	"github.com/fyrsmithlabs/reflectd/internal/config"
	"github.com/fyrsmithlabs/reflectd/internal/inference"
	"github.com/fyrsmithlabs/reflectd/internal/journal"
	"github.com/fyrsmithlabs/reflectd/internal/ledger"
	"github.com/fyrsmithlabs/reflectd/internal/store"
)

// scriptModel scripts the inference backend. A non-nil release channel
// makes Complete block until the channel is closed, so tests can hold a
// call in flight.
type scriptModel struct {
	reply   string
	err     error
	started chan struct{}
	release chan struct{}

	mu    sync.Mutex
	calls int
}

func (m *scriptModel) Complete(ctx context.Context, prompt string) (string, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()

	if m.started != nil {
		m.started <- struct{}{}
	}
	if m.release != nil {
		<-m.release
	}
	if m.err != nil {
		return "", m.err
	}
	return m.reply, nil
}

func (m *scriptModel) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

type harness struct {
	orch  *Orchestrator
	mem   *store.Memory
	cache *cache.SessionCache
	deps  Deps
}

func newHarness(t *testing.T, model inference.Model) *harness {
	t.Helper()

	mem := store.NewMemory()
	sessionCache := cache.New(5*time.Minute, 16)
	cfg := config.InferenceConfig{
		Timeout:       config.Duration(5 * time.Second),
		RatePerSecond: 1000,
		RateBurst:     1000,
	}

	deps := Deps{
		Store:      mem,
		Dispatcher: inference.NewDispatcher(model, cfg, nil, nil),
		Journal:    journal.NewWriter(mem, nil, nil),
		Ledger:     ledger.NewUpdater(mem, nil, nil),
		Cache:      sessionCache,
	}

	orch, err := New("u1", deps)
	require.NoError(t, err)
	return &harness{orch: orch, mem: mem, cache: sessionCache, deps: deps}
}

const recalReply = `{
	"reframe": "criticism is information plus noise",
	"in_your_control": "your reply, your tone",
	"virtue_called_for": "courage",
	"stance": "take the useful part, drop the rest",
	"next_step": "ask one clarifying question",
	"virtue_deltas": [{"virtue": "courage", "delta": 2}]
}`

func TestSubmit_SuccessPath(t *testing.T) {
	h := newHarness(t, &scriptModel{reply: recalReply})

	result, err := h.orch.Submit(context.Background(), analysis.ToolRecalibration,
		"my boss criticized me in front of the team", "")
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.Equal(t, "criticism is information plus noise", result.Outcome.Summary)
	assert.Equal(t, "take the useful part, drop the rest", result.Outcome.Stance)
	assert.False(t, result.Outcome.Degraded)
	assert.Empty(t, result.DegradedReason)
	assert.False(t, result.Duplicate)

	entries := h.mem.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, analysis.ToolRecalibration, entries[0].Tool)
	assert.NotEmpty(t, entries[0].IdempotencyKey)

	rows := h.mem.ScoreRows()
	require.Len(t, rows, 1)
	assert.Equal(t, analysis.VirtueCourage, rows[0].Virtue)
	assert.Equal(t, ledger.BaselineScore+2, rows[0].Score)

	assert.False(t, h.orch.IsLoading())
	require.NotNil(t, h.orch.Current())

	cached, ok := h.cache.Get("u1")
	require.True(t, ok)
	assert.Equal(t, result.Outcome, cached.Outcome)
}

func TestSubmit_IdempotencyCollapsesRetries(t *testing.T) {
	model := &scriptModel{reply: recalReply}
	h := newHarness(t, model)
	ctx := context.Background()

	first, err := h.orch.Submit(ctx, analysis.ToolRecalibration, "same input", "key-1")
	require.NoError(t, err)
	require.NotNil(t, first)

	second, err := h.orch.Submit(ctx, analysis.ToolRecalibration, "same input", "key-1")
	require.NoError(t, err)
	require.NotNil(t, second)

	assert.True(t, second.Duplicate)
	assert.Equal(t, first.Outcome, second.Outcome)
	assert.Equal(t, 1, model.callCount(), "at most one inference call per idempotency key")
	assert.Len(t, h.mem.Entries(), 1, "exactly one interaction log entry")
}

func TestSubmit_SingleFlight(t *testing.T) {
	model := &scriptModel{
		reply:   recalReply,
		started: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	h := newHarness(t, model)
	ctx := context.Background()

	var wg sync.WaitGroup
	var firstResult *Result
	wg.Add(1)
	go func() {
		defer wg.Done()
		firstResult, _ = h.orch.Submit(ctx, analysis.ToolFreeform, "first input", "")
	}()

	<-model.started
	assert.True(t, h.orch.IsLoading())

	// A second submit while armed resolves to nil immediately, with no
	// additional inference call, even with different input.
	second, err := h.orch.Submit(ctx, analysis.ToolFreeform, "second, different input", "")
	require.NoError(t, err)
	assert.Nil(t, second)

	close(model.release)
	wg.Wait()

	require.NotNil(t, firstResult, "first call proceeds to completion unaffected")
	assert.Equal(t, 1, model.callCount())
	assert.Len(t, h.mem.Entries(), 1)
}

func TestCancel_NoLeakage(t *testing.T) {
	model := &scriptModel{
		reply:   recalReply,
		started: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	h := newHarness(t, model)

	var wg sync.WaitGroup
	var result *Result
	var submitErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		result, submitErr = h.orch.Submit(context.Background(), analysis.ToolDecision, "take the job?", "")
	}()

	<-model.started
	h.orch.Cancel()
	assert.False(t, h.orch.IsLoading(), "loading clears synchronously on cancel")

	// The underlying call later "succeeds"; its resolution must be
	// discarded without any persisted side effect.
	close(model.release)
	wg.Wait()

	require.NoError(t, submitErr)
	assert.Nil(t, result)
	assert.Empty(t, h.mem.Entries(), "no interaction log write from a cancelled call")
	assert.Empty(t, h.mem.ScoreRows(), "no ledger write from a cancelled call")
	_, ok := h.cache.Get("u1")
	assert.False(t, ok, "no cache write from a cancelled call")
}

func TestCancel_Idle(t *testing.T) {
	h := newHarness(t, &scriptModel{reply: recalReply})
	// Must be a no-op outside Armed.
	h.orch.Cancel()
	assert.False(t, h.orch.IsLoading())
}

func TestSubmit_FallbackTotality(t *testing.T) {
	for _, tool := range analysis.AllTools() {
		t.Run(string(tool), func(t *testing.T) {
			h := newHarness(t, &scriptModel{err: errors.New("dial tcp: connection refused")})

			result, err := h.orch.Submit(context.Background(), tool, "something happened", "")
			require.NoError(t, err)
			require.NotNil(t, result, "inference failure still resolves to an outcome")

			assert.True(t, result.Outcome.Presentable())
			assert.True(t, result.Outcome.Degraded)
			assert.Equal(t, string(inference.FailureNetwork), result.DegradedReason)
			assert.Empty(t, result.Outcome.VirtueDeltas)

			// Fallbacks are auditable and join the dedup set.
			require.Len(t, h.mem.Entries(), 1)
			assert.Equal(t, tool, h.mem.Entries()[0].Tool)
			assert.Empty(t, h.mem.ScoreRows())
		})
	}
}

func TestSubmit_RecalibrationFallbackScenario(t *testing.T) {
	h := newHarness(t, &scriptModel{err: errors.New("dial tcp: connection refused")})

	result, err := h.orch.Submit(context.Background(), analysis.ToolRecalibration,
		"my boss criticized me in front of the team", "")
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.Contains(t, strings.ToLower(result.Outcome.Summary), "ground")
	assert.Empty(t, result.Outcome.VirtueDeltas)

	entries := h.mem.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, analysis.ToolRecalibration, entries[0].Tool)
}

func TestSubmit_ZeroDeltaWritesNoLedgerRow(t *testing.T) {
	reply := `{"summary": "noted", "stance": "steady", "virtue_deltas": [{"virtue": "courage", "delta": 0}]}`
	h := newHarness(t, &scriptModel{reply: reply})

	result, err := h.orch.Submit(context.Background(), analysis.ToolFreeform, "a quiet day", "")
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.Len(t, h.mem.Entries(), 1)
	assert.Empty(t, h.mem.ScoreRows())
}

func TestSubmit_ClampsAgainstPriorScore(t *testing.T) {
	reply := `{"summary": "bold move", "stance": "go", "virtue_deltas": [{"virtue": "courage", "delta": 10}]}`
	h := newHarness(t, &scriptModel{reply: reply})
	ctx := context.Background()

	require.NoError(t, h.mem.InsertScoreRows(ctx, []store.ScoreRow{
		{UserID: "u1", Virtue: analysis.VirtueCourage, Score: 98, Delta: 0, RecordedAt: time.Now()},
	}))

	_, err := h.orch.Submit(ctx, analysis.ToolFreeform, "did the hard thing", "")
	require.NoError(t, err)

	rows := h.mem.ScoreRows()
	require.Len(t, rows, 2)
	assert.Equal(t, 100, rows[1].Score)
}

func TestSubmit_GuardFailsOpen(t *testing.T) {
	model := &scriptModel{reply: recalReply}
	h := newHarness(t, model)
	h.mem.QueryLogErr = errors.New("store unreachable")

	result, err := h.orch.Submit(context.Background(), analysis.ToolRecalibration, "input", "key-1")
	require.NoError(t, err)
	require.NotNil(t, result, "lookup failure must not block the user")
	assert.False(t, result.Duplicate)
	assert.Equal(t, 1, model.callCount())
	assert.Len(t, h.mem.Entries(), 1)
}

func TestSubmit_JournalFailureDoesNotBlockOutcome(t *testing.T) {
	h := newHarness(t, &scriptModel{reply: recalReply})
	h.mem.InsertLogErr = errors.New("disk full")

	result, err := h.orch.Submit(context.Background(), analysis.ToolRecalibration, "input", "")
	require.NoError(t, err)
	require.NotNil(t, result, "log persistence failure never blocks the outcome")
	assert.True(t, result.Outcome.Presentable())
}

func TestSubmit_InvalidRequest(t *testing.T) {
	h := newHarness(t, &scriptModel{reply: recalReply})

	_, err := h.orch.Submit(context.Background(), analysis.ToolKind("astrology"), "input", "")
	require.ErrorIs(t, err, analysis.ErrUnknownTool)

	_, err = h.orch.Submit(context.Background(), analysis.ToolFreeform, "", "")
	require.ErrorIs(t, err, analysis.ErrEmptyInput)
}

func TestCurrent_RestoresFromSessionCache(t *testing.T) {
	h := newHarness(t, &scriptModel{reply: recalReply})

	_, err := h.orch.Submit(context.Background(), analysis.ToolFreeform, "input", "")
	require.NoError(t, err)

	// A reloaded session gets a fresh instance over the same cache.
	reloaded, err := New("u1", h.deps)
	require.NoError(t, err)

	restored := reloaded.Current()
	require.NotNil(t, restored)
	assert.True(t, restored.Outcome.Presentable())
}

func TestReset_ClearsCacheAndCurrent(t *testing.T) {
	h := newHarness(t, &scriptModel{reply: recalReply})
	ctx := context.Background()

	_, err := h.orch.Submit(ctx, analysis.ToolFreeform, "input", "")
	require.NoError(t, err)
	require.NotNil(t, h.orch.Current())

	h.orch.Reset()
	assert.Nil(t, h.orch.Current())
	_, ok := h.cache.Get("u1")
	assert.False(t, ok)

	// The log and ledger are untouched.
	assert.Len(t, h.mem.Entries(), 1)
}

func TestNew_Validation(t *testing.T) {
	h := newHarness(t, &scriptModel{reply: recalReply})

	_, err := New("", h.deps)
	require.ErrorIs(t, err, ErrNotAuthenticated)

	deps := h.deps
	deps.Store = nil
	_, err = New("u1", deps)
	require.ErrorIs(t, err, ErrNilStore)
}

func TestRegistry_PerUserInstances(t *testing.T) {
	h := newHarness(t, &scriptModel{reply: recalReply})
	reg := NewRegistry(h.deps)

	a, err := reg.ForUser("alice")
	require.NoError(t, err)
	b, err := reg.ForUser("bob")
	require.NoError(t, err)
	again, err := reg.ForUser("alice")
	require.NoError(t, err)

	assert.Same(t, a, again)
	assert.NotSame(t, a, b)

	_, err = reg.ForUser("")
	require.ErrorIs(t, err, ErrNotAuthenticated)
}
