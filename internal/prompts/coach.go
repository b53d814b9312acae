package prompts

import (
	"fmt"
	"strings"
)

const coachSystemPrompt = `You are an empathetic and supportive health coach. Give safe, actionable,
non-medication tips based on the user's situation.

Keep it short: one paragraph acknowledging how they feel plus the main suggestion, then
at most two bullet points with specific tips. Acknowledge what they have already tried
and suggest complementary actions instead of repeating it.

Never give medication dosing or prescription advice, never diagnose, and never speculate
beyond the data you are given.`

// CoachSnapshot is the active-episode context handed to the coach.
type CoachSnapshot struct {
	Condition     string
	Severity      *int
	StartedAt     string
	Salient       string
	Interventions []string
}

// CoachMessages returns the system prompt and user turn for coaching.
// snapshot may be nil when nothing is being tracked.
func CoachMessages(message string, snapshot *CoachSnapshot, tips []string) (system, user string) {
	var b strings.Builder
	if snapshot == nil {
		b.WriteString("Current episode: none being tracked.\n")
	} else {
		fmt.Fprintf(&b, "Current episode: %s, started %s", snapshot.Condition, snapshot.StartedAt)
		if snapshot.Severity != nil {
			fmt.Fprintf(&b, ", severity %d/10", *snapshot.Severity)
		}
		if snapshot.Salient != "" {
			fmt.Fprintf(&b, " (%s)", snapshot.Salient)
		}
		b.WriteByte('\n')
		if len(snapshot.Interventions) > 0 {
			fmt.Fprintf(&b, "Already tried: %s\n", strings.Join(snapshot.Interventions, ", "))
		}
	}
	if len(tips) > 0 {
		b.WriteString("\nGuidance to draw on:\n")
		for _, t := range tips {
			fmt.Fprintf(&b, "- %s\n", t)
		}
	}
	fmt.Fprintf(&b, "\nUser: %s", message)
	return coachSystemPrompt, b.String()
}
