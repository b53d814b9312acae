package prompts

import (
	"fmt"
	"strings"
)

// extractorSystemPrompt turns one health message into a flat JSON record.
const extractorSystemPrompt = `You are a clinical logging assistant for a holistic health journal.
Analyze the user's LATEST message in the context of the recent conversation and the open
episodes listed below.

Decide whether the user is:
1. creating a NEW health episode ("episode_create")
2. updating an EXISTING episode ("episode_update")
3. logging a general observation ("observation")
4. recording an intervention or treatment ("intervention")
5. asking about their health data ("query")

Episode continuity:
- "still", "ongoing", "it's now", "down to", "up to" usually mean an update of the same episode.
- "new", "another", "different", "started" usually mean a new episode.
- Use the conversation to resolve "it", "the pain", "this".

Condition names: use migraine, sleep, reflux, asthma, anxiety, depression, back_pain,
neck_pain or pain when they fit ("headache" is migraine, "tired" is sleep, "stress" is
anxiety). Otherwise use a short lower-case name.

link_strategy:
- "same_episode": clearly continues an open episode; set episode_id from the list below.
- "new_episode": clearly something new.
- "unknown": ambiguous; deterministic rules will decide.

Severity is an integer 0-10 or null. Put the user's original words in notes. Record each
treatment as an element of the interventions list. Set confidence 0.0-1.0 by how clear
the message is.

Reply with ONLY a JSON object:
{"intent": "...", "condition": null, "severity": null, "location": null, "triggers": [],
 "start_time": null, "end_time": null, "notes": "...", "value": null,
 "link_strategy": "unknown", "episode_id": null, "rationale": "...", "confidence": 0.0,
 "interventions": [{"type": "...", "dose": null, "timing": null, "notes": null}]}

Examples:
"It's now down to a 4 after taking some ibuprofen" (after a migraine was logged) →
{"intent": "episode_update", "condition": "migraine", "severity": 4, "notes": "It's now down to a 4 after taking some ibuprofen", "link_strategy": "same_episode", "interventions": [{"type": "ibuprofen", "timing": "recently"}], "confidence": 0.9}
"Woke up with a terrible headache, feels like an 8/10" →
{"intent": "episode_create", "condition": "migraine", "severity": 8, "start_time": "this morning", "notes": "Woke up with a terrible headache, feels like an 8/10", "link_strategy": "new_episode", "confidence": 0.85}`

// CandidateLine is one open episode as shown to the extractor.
type CandidateLine struct {
	EpisodeID     string
	Condition     string
	StartedAt     string
	LastUpdatedAt string
	Salient       string
}

// ExtractorMessages returns the system prompt and user turn for health
// data extraction.
func ExtractorMessages(message string, history []string, candidates []CandidateLine) (system, user string) {
	var b strings.Builder
	b.WriteString("Open episodes:\n")
	if len(candidates) == 0 {
		b.WriteString("(none)\n")
	}
	for _, c := range candidates {
		fmt.Fprintf(&b, "- %s: %s, started %s, last updated %s (%s)\n",
			c.EpisodeID, c.Condition, c.StartedAt, c.LastUpdatedAt, c.Salient)
	}
	if len(history) > 0 {
		b.WriteString("\nRecent conversation:\n")
		for _, h := range history {
			b.WriteString(h)
			b.WriteByte('\n')
		}
	}
	fmt.Fprintf(&b, "\nLatest message: %s", message)
	return extractorSystemPrompt, b.String()
}
