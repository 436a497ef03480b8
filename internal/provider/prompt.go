// File: internal/provider/prompt.go
package provider

import (
	"fmt"
	"strings"
)

// planPromptFormat is the instruction wrapped around every planning request.
// The field names mirror the planner package's wire protocol exactly; a
// model that follows the schema produces directly parsable output.
const planPromptFormat = `You are a desktop automation assistant. Based on the task description and the current screenshot, plan the single next action.

Task: %s
%s
Analyze the screenshot and reply with a JSON action instruction:
{
    "analysis": "what the screen currently shows",
    "can_proceed": true or false,
    "action": {
        "action": "one of click/type/hotkey/scroll/wait/done",
        "x": click X coordinate (click only),
        "y": click Y coordinate (click only),
        "text": "text to enter (type only)",
        "keys": ["key", "list"] (hotkey only),
        "direction": "up" or "down" (scroll only),
        "duration": seconds to pause (wait only)
    },
    "reason": "why this action"
}

If the task is already complete, set action.action to "done".
If the task cannot continue, set can_proceed to false and explain why in reason.
Reply with JSON only.`

// buildPlanPrompt renders the planning instruction for a goal, folding in
// summaries of the most recent steps so the model can avoid repeating
// itself.
func buildPlanPrompt(goal string, history []string) string {
	var section string
	if len(history) > 0 {
		var b strings.Builder
		b.WriteString("\nSteps taken so far:\n")
		for _, line := range history {
			b.WriteString("- ")
			b.WriteString(line)
			b.WriteString("\n")
		}
		section = b.String()
	}
	return fmt.Sprintf(planPromptFormat, goal, section)
}
