package prompts

import (
	"strings"
	"testing"
)

func TestRouterMessages(t *testing.T) {
	system, user := RouterMessages("when did my last migraine start?", []string{"user: hi", "assistant: hello"})
	if !strings.Contains(system, `"primary"`) {
		t.Error("router system prompt should describe the JSON contract")
	}
	if !strings.Contains(user, "user: hi\nassistant: hello\n") {
		t.Errorf("history missing from user turn: %q", user)
	}
	if !strings.HasSuffix(user, "Latest message: when did my last migraine start?") {
		t.Errorf("user turn = %q", user)
	}

	_, user = RouterMessages("hello", nil)
	if strings.Contains(user, "Recent conversation") {
		t.Errorf("empty history should be omitted: %q", user)
	}
}

func TestExtractorMessages(t *testing.T) {
	_, user := ExtractorMessages("still pounding", nil, []CandidateLine{{
		EpisodeID:     "ep_2025-03-14_migraine_ab12cd34",
		Condition:     "migraine",
		StartedAt:     "2025-03-14T08:00:00Z",
		LastUpdatedAt: "2025-03-14T09:00:00Z",
		Salient:       "severity 7",
	}})
	for _, want := range []string{"ep_2025-03-14_migraine_ab12cd34: migraine", "(severity 7)", "Latest message: still pounding"} {
		if !strings.Contains(user, want) {
			t.Errorf("extractor user turn missing %q:\n%s", want, user)
		}
	}

	_, user = ExtractorMessages("slept 5 hours", nil, nil)
	if !strings.Contains(user, "(none)") {
		t.Errorf("no candidates should say (none): %q", user)
	}
}

func TestCoachMessages(t *testing.T) {
	sev := 6
	_, user := CoachMessages("what should I do?", &CoachSnapshot{
		Condition:     "migraine",
		Severity:      &sev,
		StartedAt:     "2025-03-14",
		Interventions: []string{"ibuprofen", "dark room"},
	}, []string{"Sip water slowly and regularly."})
	for _, want := range []string{"severity 6/10", "Already tried: ibuprofen, dark room", "- Sip water slowly"} {
		if !strings.Contains(user, want) {
			t.Errorf("coach user turn missing %q:\n%s", want, user)
		}
	}

	_, user = CoachMessages("help", nil, nil)
	if !strings.Contains(user, "none being tracked") {
		t.Errorf("nil snapshot: %q", user)
	}
}
