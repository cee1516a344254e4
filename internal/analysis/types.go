// Package analysis defines the canonical domain types for reflection
// analysis: tool kinds, virtues, requests, and outcomes, plus the pure
// normalization and fallback stages that produce outcomes.
package analysis

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"time"
)

// Common errors for analysis types.
var (
	ErrUnknownTool     = errors.New("unknown tool kind")
	ErrEmptyInput      = errors.New("raw input cannot be empty")
	ErrDuplicateVirtue = errors.New("duplicate virtue in deltas")
	ErrUnknownVirtue   = errors.New("unknown virtue")
	ErrNotPresentable  = errors.New("outcome has neither stance nor summary")
)

// ToolKind identifies which guidance flow the user invoked.
type ToolKind string

const (
	ToolMorningPreparation ToolKind = "morning-preparation"
	ToolRecalibration      ToolKind = "recalibration"
	ToolEveningReview      ToolKind = "evening-review"
	ToolDecision           ToolKind = "decision"
	ToolConflict           ToolKind = "conflict"
	ToolFreeform           ToolKind = "freeform"
)

// AllTools returns every tool kind.
func AllTools() []ToolKind {
	return []ToolKind{
		ToolMorningPreparation,
		ToolRecalibration,
		ToolEveningReview,
		ToolDecision,
		ToolConflict,
		ToolFreeform,
	}
}

// Valid reports whether t is a known tool kind.
func (t ToolKind) Valid() bool {
	switch t {
	case ToolMorningPreparation, ToolRecalibration, ToolEveningReview,
		ToolDecision, ToolConflict, ToolFreeform:
		return true
	}
	return false
}

// Virtue is one of the fixed four-element category set against which
// longitudinal scores are tracked.
type Virtue string

const (
	VirtueWisdom     Virtue = "wisdom"
	VirtueCourage    Virtue = "courage"
	VirtueJustice    Virtue = "justice"
	VirtueTemperance Virtue = "temperance"
)

// AllVirtues returns the fixed virtue set.
func AllVirtues() []Virtue {
	return []Virtue{VirtueWisdom, VirtueCourage, VirtueJustice, VirtueTemperance}
}

// Valid reports whether v is in the fixed virtue set.
func (v Virtue) Valid() bool {
	switch v {
	case VirtueWisdom, VirtueCourage, VirtueJustice, VirtueTemperance:
		return true
	}
	return false
}

// VirtueDelta is one virtue score movement attributed to an outcome.
type VirtueDelta struct {
	Virtue Virtue `json:"virtue"`
	Delta  int    `json:"delta"`
}

// Request is one immutable analysis submission.
type Request struct {
	Tool           ToolKind `json:"tool"`
	RawInput       string   `json:"raw_input"`
	IdempotencyKey string   `json:"idempotency_key"`
}

// Validate checks request invariants.
func (r Request) Validate() error {
	if !r.Tool.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownTool, r.Tool)
	}
	if r.RawInput == "" {
		return ErrEmptyInput
	}
	return nil
}

// Outcome is the canonical, tool-agnostic structured result returned to
// the caller. String fields use "" for absent and are omitted from JSON;
// callers distinguish "no data" from "empty data" by omission.
type Outcome struct {
	Summary      string        `json:"summary,omitempty"`
	ControlMap   string        `json:"control_map,omitempty"`
	VirtueFocus  string        `json:"virtue_focus,omitempty"`
	TensionNote  string        `json:"tension_note,omitempty"`
	Stance       string        `json:"stance,omitempty"`
	Action       string        `json:"action,omitempty"`
	VirtueDeltas []VirtueDelta `json:"virtue_deltas,omitempty"`

	// Degraded marks outcomes produced by the fallback generator rather
	// than live inference, so callers can label them.
	Degraded bool `json:"degraded,omitempty"`
}

// Presentable reports whether the outcome satisfies the UI contract:
// at least one of Stance or Summary is populated.
func (o Outcome) Presentable() bool {
	return o.Stance != "" || o.Summary != ""
}

// Validate checks outcome invariants.
func (o Outcome) Validate() error {
	if !o.Presentable() {
		return ErrNotPresentable
	}
	seen := make(map[Virtue]struct{}, len(o.VirtueDeltas))
	for _, vd := range o.VirtueDeltas {
		if !vd.Virtue.Valid() {
			return fmt.Errorf("%w: %q", ErrUnknownVirtue, vd.Virtue)
		}
		if _, dup := seen[vd.Virtue]; dup {
			return fmt.Errorf("%w: %q", ErrDuplicateVirtue, vd.Virtue)
		}
		seen[vd.Virtue] = struct{}{}
	}
	return nil
}

// keyInputLimit bounds how much raw input feeds the idempotency key.
const keyInputLimit = 120

// DeriveKey builds an idempotency key from the tool, the truncated raw
// input, and the submission time bucketed to the minute. Accidental
// double-taps collapse onto one key; a deliberate resubmission a minute
// later is a fresh request.
func DeriveKey(tool ToolKind, rawInput string, submittedAt time.Time) string {
	digest := sha256.Sum256([]byte(Truncate(rawInput, keyInputLimit)))
	return fmt.Sprintf("%s:%x:%d", tool, digest[:8], submittedAt.UTC().Truncate(time.Minute).Unix())
}

// Truncate shortens s to at most n runes, appending an ellipsis when cut.
func Truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "…"
}
