package journal

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/reflectd/internal/analysis"
	"github.com/fyrsmithlabs/reflectd/internal/store"
)

func TestWriter_Record(t *testing.T) {
	mem := store.NewMemory()
	w := NewWriter(mem, nil, nil)
	w.now = func() time.Time { return time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC) }
	w.newID = func() string { return "entry-1" }

	req := analysis.Request{
		Tool:           analysis.ToolRecalibration,
		RawInput:       "my boss criticized me",
		IdempotencyKey: "key-1",
	}
	outcome := analysis.Outcome{Stance: "steady"}

	id, err := w.Record(context.Background(), "u1", req, outcome)
	require.NoError(t, err)
	assert.Equal(t, "entry-1", id)

	entries := mem.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "u1", entries[0].UserID)
	assert.Equal(t, analysis.ToolRecalibration, entries[0].Tool)
	assert.Equal(t, "key-1", entries[0].IdempotencyKey)
	assert.Equal(t, outcome, entries[0].Outcome)
	assert.Equal(t, time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC), entries[0].CreatedAt)
}

func TestWriter_RecordFailureIsReturned(t *testing.T) {
	mem := store.NewMemory()
	mem.InsertLogErr = assert.AnError
	w := NewWriter(mem, nil, nil)

	_, err := w.Record(context.Background(), "u1",
		analysis.Request{Tool: analysis.ToolFreeform, RawInput: "x", IdempotencyKey: "k"},
		analysis.Outcome{Summary: "s"})
	require.ErrorIs(t, err, assert.AnError)
	assert.Empty(t, mem.Entries())
}

func TestWriter_GeneratesUniqueIDs(t *testing.T) {
	mem := store.NewMemory()
	w := NewWriter(mem, nil, nil)

	req := analysis.Request{Tool: analysis.ToolFreeform, RawInput: "x", IdempotencyKey: "k"}
	first, err := w.Record(context.Background(), "u1", req, analysis.Outcome{Summary: "s"})
	require.NoError(t, err)
	second, err := w.Record(context.Background(), "u1", req, analysis.Outcome{Summary: "s"})
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
}
