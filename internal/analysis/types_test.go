package analysis

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveKey(t *testing.T) {
	base := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)

	key := DeriveKey(ToolRecalibration, "my boss criticized me", base)
	assert.NotEmpty(t, key)
	assert.Contains(t, key, string(ToolRecalibration))

	t.Run("same minute collapses", func(t *testing.T) {
		again := DeriveKey(ToolRecalibration, "my boss criticized me", base.Add(4*time.Second))
		assert.Equal(t, key, again)
	})

	t.Run("next minute is fresh", func(t *testing.T) {
		later := DeriveKey(ToolRecalibration, "my boss criticized me", base.Add(time.Minute))
		assert.NotEqual(t, key, later)
	})

	t.Run("tool distinguishes", func(t *testing.T) {
		other := DeriveKey(ToolDecision, "my boss criticized me", base)
		assert.NotEqual(t, key, other)
	})

	t.Run("input distinguishes", func(t *testing.T) {
		other := DeriveKey(ToolRecalibration, "a colleague praised me", base)
		assert.NotEqual(t, key, other)
	})
}

func TestRequest_Validate(t *testing.T) {
	tests := []struct {
		name    string
		req     Request
		wantErr error
	}{
		{name: "valid", req: Request{Tool: ToolFreeform, RawInput: "a thing happened"}},
		{name: "unknown tool", req: Request{Tool: "astrology", RawInput: "x"}, wantErr: ErrUnknownTool},
		{name: "empty input", req: Request{Tool: ToolDecision}, wantErr: ErrEmptyInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestOutcome_Validate(t *testing.T) {
	tests := []struct {
		name    string
		outcome Outcome
		wantErr error
	}{
		{
			name:    "stance only is presentable",
			outcome: Outcome{Stance: "steady"},
		},
		{
			name:    "summary only is presentable",
			outcome: Outcome{Summary: "a reframe"},
		},
		{
			name:    "empty is not presentable",
			outcome: Outcome{},
			wantErr: ErrNotPresentable,
		},
		{
			name: "duplicate virtue rejected",
			outcome: Outcome{
				Summary: "s",
				VirtueDeltas: []VirtueDelta{
					{Virtue: VirtueCourage, Delta: 1},
					{Virtue: VirtueCourage, Delta: 2},
				},
			},
			wantErr: ErrDuplicateVirtue,
		},
		{
			name: "unknown virtue rejected",
			outcome: Outcome{
				Summary:      "s",
				VirtueDeltas: []VirtueDelta{{Virtue: "patience", Delta: 1}},
			},
			wantErr: ErrUnknownVirtue,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.outcome.Validate()
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", Truncate("short", 10))
	assert.Equal(t, "abcde…", Truncate("abcdefgh", 5))
	// Rune-aware, not byte-aware.
	assert.Equal(t, "αβγ…", Truncate("αβγδε", 3))
}

func TestToolAndVirtueSets(t *testing.T) {
	assert.Len(t, AllVirtues(), 4)
	for _, v := range AllVirtues() {
		assert.True(t, v.Valid())
	}
	assert.False(t, Virtue("patience").Valid())

	assert.Len(t, AllTools(), 6)
	for _, tool := range AllTools() {
		assert.True(t, tool.Valid())
	}
	assert.False(t, ToolKind("astrology").Valid())
}
