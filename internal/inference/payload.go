// internal/inference/payload.go
package inference

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/reflectd/internal/analysis"
)

// promptInputLimit bounds how much user text is embedded in a prompt.
const promptInputLimit = 2000

// recalibrationInput is the structured form the recalibration flow may
// embed in raw input. Parsing is best effort; a plain sentence is treated
// as the description with no intensity.
type recalibrationInput struct {
	Description string `json:"description"`
	Intensity   int    `json:"intensity"`
}

// responseContract tells the model which fields to emit, matching the
// per-tool vocabulary the normalizer expects.
var responseContract = map[analysis.ToolKind]string{
	analysis.ToolMorningPreparation: `"overview", "within_control", "virtue", "anticipated_challenge", "intention", "morning_practice"`,
	analysis.ToolRecalibration:      `"reframe", "in_your_control", "virtue_called_for", "tension", "stance", "next_step"`,
	analysis.ToolEveningReview:      `"review", "handled_well", "virtue_exercised", "to_improve", "closing_thought", "tomorrow_focus"`,
	analysis.ToolDecision:           `"framing", "controllables", "governing_virtue", "tradeoff", "principle", "recommended_choice"`,
	analysis.ToolConflict:           `"situation", "your_part", "virtue_needed", "friction_point", "posture", "repair_step"`,
	analysis.ToolFreeform:           `"summary", "control_map", "virtue_focus", "tension_note", "stance", "action"`,
}

var toolFraming = map[analysis.ToolKind]string{
	analysis.ToolMorningPreparation: "The user is preparing for the day ahead.",
	analysis.ToolRecalibration:      "The user is in the middle of a difficult moment and needs to recalibrate now.",
	analysis.ToolEveningReview:      "The user is reviewing the day that just ended.",
	analysis.ToolDecision:           "The user faces a decision and wants it framed by what they control.",
	analysis.ToolConflict:           "The user is in an interpersonal conflict.",
	analysis.ToolFreeform:           "The user shared a free-form reflection.",
}

// BuildPrompt renders the tool-specific payload for one request.
//
// The recalibration flow additionally carries an intensity scalar parsed
// out of structured JSON embedded in the raw input; when parsing fails the
// whole string is the triggering description.
func BuildPrompt(req analysis.Request) string {
	var b strings.Builder

	b.WriteString("You are a Stoic reflection guide. ")
	b.WriteString(toolFraming[req.Tool])
	b.WriteString("\n\n")

	if req.Tool == analysis.ToolRecalibration {
		// Parse before truncating: the embedded JSON envelope is not
		// user prose and must survive intact; only the extracted
		// description is subject to the prompt budget.
		desc, intensity := parseRecalibration(req.RawInput)
		fmt.Fprintf(&b, "Triggering situation: %s\n", analysis.Truncate(desc, promptInputLimit))
		if intensity > 0 {
			fmt.Fprintf(&b, "Reported intensity (1-10): %d\n", intensity)
		}
	} else {
		fmt.Fprintf(&b, "Situation: %s\n", analysis.Truncate(req.RawInput, promptInputLimit))
	}

	b.WriteString("\nRespond with a single JSON object using exactly these string fields: ")
	b.WriteString(responseContract[req.Tool])
	b.WriteString(`. Optionally include "virtue_deltas": an array of {"virtue", "delta"} objects`)
	b.WriteString(" where virtue is one of wisdom, courage, justice, temperance and delta is an integer in [-3, 3].")
	b.WriteString(" No text outside the JSON object.")

	return b.String()
}

// parseRecalibration extracts the description and intensity from embedded
// JSON, falling back to the raw string.
func parseRecalibration(input string) (string, int) {
	var parsed recalibrationInput
	if err := json.Unmarshal([]byte(input), &parsed); err != nil || parsed.Description == "" {
		return input, 0
	}
	if parsed.Intensity < 0 {
		parsed.Intensity = 0
	}
	return parsed.Description, parsed.Intensity
}

// ParseResponse decodes the model's reply into the raw result map handed
// to the normalizer. Replies wrapped in markdown fences are unwrapped
// first. A reply with no JSON object at all is returned as a plain text
// map so normalization can still salvage a summary.
func ParseResponse(reply string) map[string]any {
	trimmed := strings.TrimSpace(reply)
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(trimmed, "```")
	trimmed = strings.TrimSpace(trimmed)

	// Tolerate prose around the object by slicing the outermost braces.
	if start, end := strings.Index(trimmed, "{"), strings.LastIndex(trimmed, "}"); start >= 0 && end > start {
		var raw map[string]any
		if err := json.Unmarshal([]byte(trimmed[start:end+1]), &raw); err == nil {
			return raw
		}
	}

	if trimmed == "" {
		return map[string]any{}
	}
	return map[string]any{"text": trimmed}
}
