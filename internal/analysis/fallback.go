// internal/analysis/fallback.go
package analysis

import "fmt"

// fallbackEchoLimit bounds how much of the raw input is echoed back.
const fallbackEchoLimit = 140

// fallbackTemplate holds the fixed prose per tool for locally computed
// outcomes. The summary is built from the template plus a truncated echo
// of the input.
type fallbackTemplate struct {
	summary string
	stance  string
	action  string
}

var fallbackTemplates = map[ToolKind]fallbackTemplate{
	ToolMorningPreparation: {
		summary: "Guidance is offline right now. Begin the day by naming one thing within your control regarding: %s",
		stance:  "I will meet today's events with attention, not anticipation.",
		action:  "Write down the single obstacle most likely to unsettle you today, and one response you would respect.",
	},
	ToolRecalibration: {
		summary: "Guidance is offline right now. Take one slow breath and ground yourself in the present moment before responding to: %s",
		stance:  "This moment is raw material, not a verdict.",
		action:  "Separate what just happened from the story you are telling about it, then act only on the part you control.",
	},
	ToolEveningReview: {
		summary: "Guidance is offline right now. Review the day on your own terms, starting from: %s",
		stance:  "The day is complete; judgment of it is still mine to shape.",
		action:  "Name one thing you handled well and one you would do differently, without dwelling on either.",
	},
	ToolDecision: {
		summary: "Guidance is offline right now. Lay the choice out plainly before weighing it: %s",
		stance:  "A good decision is one made for reasons I would accept in hindsight.",
		action:  "List what this decision controls and what it merely influences, then choose using only the first list.",
	},
	ToolConflict: {
		summary: "Guidance is offline right now. Before engaging further, set down your side of: %s",
		stance:  "I am responsible for my part of this, and only my part.",
		action:  "Write what the other person is likely afraid of, then what you are afraid of, and compare.",
	},
	ToolFreeform: {
		summary: "Guidance is offline right now. Sit with what you wrote for a moment: %s",
		stance:  "Naming the situation clearly is already half the work.",
		action:  "Reread your own words and underline the one clause that is actually in your control.",
	},
}

// Fallback produces a deterministic, locally computed outcome for when
// inference fails or is unavailable. The same (tool, rawInput) pair always
// yields the same outcome.
//
// Fallback outcomes never carry virtue deltas; synthetic guidance must not
// move ledger scores. They are marked Degraded so callers can present them
// as such rather than passing them off as live analysis.
func Fallback(tool ToolKind, rawInput string) Outcome {
	tmpl, ok := fallbackTemplates[tool]
	if !ok {
		tmpl = fallbackTemplates[ToolFreeform]
	}

	return Outcome{
		Summary:  fmt.Sprintf(tmpl.summary, Truncate(rawInput, fallbackEchoLimit)),
		Stance:   tmpl.stance,
		Action:   tmpl.action,
		Degraded: true,
	}
}
