// internal/analysis/normalizer.go
package analysis

import (
	"math"
	"sort"
	"strings"
)

// fieldMap names the source field per canonical outcome field for one tool.
// The upstream inference service is not uniform across tools; each flow has
// its own response vocabulary, so normalization is a fixed lookup table,
// not a generic transform.
type fieldMap struct {
	summary     string
	controlMap  string
	virtueFocus string
	tensionNote string
	stance      string
	action      string
}

var toolFields = map[ToolKind]fieldMap{
	ToolMorningPreparation: {
		summary:     "overview",
		controlMap:  "within_control",
		virtueFocus: "virtue",
		tensionNote: "anticipated_challenge",
		stance:      "intention",
		action:      "morning_practice",
	},
	ToolRecalibration: {
		summary:     "reframe",
		controlMap:  "in_your_control",
		virtueFocus: "virtue_called_for",
		tensionNote: "tension",
		stance:      "stance",
		action:      "next_step",
	},
	ToolEveningReview: {
		summary:     "review",
		controlMap:  "handled_well",
		virtueFocus: "virtue_exercised",
		tensionNote: "to_improve",
		stance:      "closing_thought",
		action:      "tomorrow_focus",
	},
	ToolDecision: {
		summary:     "framing",
		controlMap:  "controllables",
		virtueFocus: "governing_virtue",
		tensionNote: "tradeoff",
		stance:      "principle",
		action:      "recommended_choice",
	},
	ToolConflict: {
		summary:     "situation",
		controlMap:  "your_part",
		virtueFocus: "virtue_needed",
		tensionNote: "friction_point",
		stance:      "posture",
		action:      "repair_step",
	},
	ToolFreeform: {
		summary:     "summary",
		controlMap:  "control_map",
		virtueFocus: "virtue_focus",
		tensionNote: "tension_note",
		stance:      "stance",
		action:      "action",
	},
}

// summaryCandidates are tried in order when a response has no usable
// tool-specific shape and the normalizer degrades to a summary-only outcome.
var summaryCandidates = []string{"summary", "text", "message", "content", "response", "output"}

// Normalize maps one raw inference result into the canonical outcome.
//
// It is total: it never fails, and unexpected shapes degrade to an outcome
// with only Summary populated from the most plausible string field. Absent
// optional fields stay absent rather than becoming empty strings.
func Normalize(tool ToolKind, raw map[string]any) Outcome {
	fields, ok := toolFields[tool]
	if !ok {
		return degradedOutcome(raw)
	}

	out := Outcome{
		Summary:     stringField(raw, fields.summary),
		ControlMap:  stringField(raw, fields.controlMap),
		VirtueFocus: stringField(raw, fields.virtueFocus),
		TensionNote: stringField(raw, fields.tensionNote),
		Stance:      stringField(raw, fields.stance),
		Action:      stringField(raw, fields.action),
	}
	out.VirtueDeltas = extractDeltas(raw, fields.virtueFocus)

	if !out.Presentable() {
		out.Summary = degradedOutcome(raw).Summary
	}
	return out
}

// extractDeltas pulls virtue score movements out of a raw result.
//
// An explicit virtue_deltas array of {virtue, delta} pairs wins. Failing
// that, a bare virtue name (either the tool's virtue field or a top-level
// "virtue") synthesizes a single zero-delta entry: virtue identified, no
// score change. Duplicate virtues keep the first occurrence.
func extractDeltas(raw map[string]any, virtueField string) []VirtueDelta {
	if arr, ok := raw["virtue_deltas"].([]any); ok {
		deltas := make([]VirtueDelta, 0, len(arr))
		seen := make(map[Virtue]struct{}, len(arr))
		for _, item := range arr {
			entry, ok := item.(map[string]any)
			if !ok {
				continue
			}
			virtue := Virtue(strings.ToLower(strings.TrimSpace(stringField(entry, "virtue"))))
			if !virtue.Valid() {
				continue
			}
			if _, dup := seen[virtue]; dup {
				continue
			}
			seen[virtue] = struct{}{}
			deltas = append(deltas, VirtueDelta{Virtue: virtue, Delta: intField(entry, "delta")})
		}
		if len(deltas) > 0 {
			return deltas
		}
	}

	for _, key := range []string{virtueField, "virtue"} {
		if key == "" {
			continue
		}
		virtue := Virtue(strings.ToLower(strings.TrimSpace(stringField(raw, key))))
		if virtue.Valid() {
			return []VirtueDelta{{Virtue: virtue, Delta: 0}}
		}
	}
	return nil
}

// degradedOutcome salvages a summary-only outcome from an unexpected shape.
func degradedOutcome(raw map[string]any) Outcome {
	for _, key := range summaryCandidates {
		if s := stringField(raw, key); s != "" {
			return Outcome{Summary: s}
		}
	}

	// Last resort: the first non-empty string value in key order, so the
	// result is deterministic for a given input.
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if s, ok := raw[k].(string); ok && strings.TrimSpace(s) != "" {
			return Outcome{Summary: s}
		}
	}
	return Outcome{}
}

// stringField reads a trimmed string value, "" when absent or non-string.
func stringField(raw map[string]any, key string) string {
	if key == "" {
		return ""
	}
	if s, ok := raw[key].(string); ok {
		return strings.TrimSpace(s)
	}
	return ""
}

// intField reads an integer value, tolerating the float64 that
// encoding/json produces for all numbers.
func intField(raw map[string]any, key string) int {
	switch v := raw[key].(type) {
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0
		}
		return int(v)
	case int:
		return v
	}
	return 0
}
