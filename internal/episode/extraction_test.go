package episode

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParseExtraction(t *testing.T) {
	data := []byte(`{
		"intent": "episode_update",
		"condition": "Headache",
		"severity": 6.6,
		"location": "left temple",
		"triggers": ["screen time"],
		"notes": "still throbbing",
		"link_strategy": "same_episode",
		"episode_id": "ep_20250314_migraine_ab12cd34",
		"rationale": "continuation",
		"confidence": 0.85,
		"intervention_types": ["ibuprofen", ""],
		"intervention_doses": ["400mg"]
	}`)

	got, err := ParseExtraction(data)
	if err != nil {
		t.Fatalf("ParseExtraction: %v", err)
	}

	want := Extraction{
		Intent:    IntentEpisodeUpdate,
		Condition: "migraine",
		Fields: Fields{
			Severity: Intptr(7),
			Location: "left temple",
			Triggers: []string{"screen time"},
			Notes:    "still throbbing",
		},
		LinkStrategy:  LinkSameEpisode,
		EpisodeID:     "ep_20250314_migraine_ab12cd34",
		Rationale:     "continuation",
		Confidence:    0.85,
		Interventions: []InterventionInput{{Type: "ibuprofen", Dose: "400mg"}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ParseExtraction mismatch (-want +got):\n%s", diff)
	}
}

func TestParseExtraction_Defaults(t *testing.T) {
	got, err := ParseExtraction([]byte(`{"intent":"observation","condition":null,"severity":null}`))
	if err != nil {
		t.Fatalf("ParseExtraction: %v", err)
	}
	if got.LinkStrategy != LinkUnknown {
		t.Errorf("LinkStrategy = %q, want unknown", got.LinkStrategy)
	}
	if got.Confidence != 0 || got.Fields.Severity != nil || got.Condition != "" {
		t.Errorf("unexpected defaults: %+v", got)
	}
}

func TestParseExtraction_Severity(t *testing.T) {
	tests := []struct {
		raw  string
		want *int
	}{
		{`{"intent":"episode_create","severity":"severe"}`, Intptr(8)},
		{`{"intent":"episode_create","severity":"7/10"}`, Intptr(7)},
		{`{"intent":"episode_create","severity":14}`, Intptr(10)},
		{`{"intent":"episode_create","severity":1e300}`, Intptr(10)},
		{`{"intent":"episode_create","severity":-1e300}`, Intptr(0)},
		{`{"intent":"episode_create","severity":9.6}`, Intptr(10)},
		{`{"intent":"episode_create","severity":"meh"}`, nil},
	}
	for _, tt := range tests {
		got, err := ParseExtraction([]byte(tt.raw))
		if err != nil {
			t.Fatalf("ParseExtraction(%s): %v", tt.raw, err)
		}
		if diff := cmp.Diff(tt.want, got.Fields.Severity); diff != "" {
			t.Errorf("ParseExtraction(%s) severity (-want +got):\n%s", tt.raw, diff)
		}
	}
}

func TestParseExtraction_KeepsCanonicalCondition(t *testing.T) {
	for _, cond := range []string{"back_pain", "neck_pain", "migraine"} {
		got, err := ParseExtraction([]byte(`{"intent":"episode_update","condition":"` + cond + `","link_strategy":"same_episode","confidence":0.9}`))
		if err != nil {
			t.Fatalf("ParseExtraction(%s): %v", cond, err)
		}
		if got.Condition != cond {
			t.Errorf("ParseExtraction condition = %q, want %q", got.Condition, cond)
		}
	}
}

func TestParseExtraction_Errors(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{name: "not json", raw: `nope`},
		{name: "bad intent", raw: `{"intent":"diagnose"}`},
		{name: "missing intent", raw: `{"condition":"migraine"}`},
		{name: "bad link strategy", raw: `{"intent":"episode_create","link_strategy":"maybe"}`},
		{name: "bad severity type", raw: `{"intent":"episode_create","severity":true}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseExtraction([]byte(tt.raw)); err == nil {
				t.Errorf("ParseExtraction(%s) error = nil, want error", tt.raw)
			}
		})
	}
}

func TestParseExtraction_ConfidenceClamped(t *testing.T) {
	got, err := ParseExtraction([]byte(`{"intent":"query","confidence":1.7}`))
	if err != nil {
		t.Fatalf("ParseExtraction: %v", err)
	}
	if got.Confidence != 1 {
		t.Errorf("Confidence = %v, want 1", got.Confidence)
	}
}

func TestNormalizeCondition(t *testing.T) {
	tests := []struct{ in, want string }{
		{"Migraine", "migraine"},
		{"acid reflux", "reflux"},
		{"  Gout ", "gout"},
		{"back_pain", "back_pain"},
		{"neck_pain", "neck_pain"},
		{"Back_Pain", "back_pain"},
		{"pain", "pain"},
		{"throbbing", "throbbing"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := NormalizeCondition(tt.in); got != tt.want {
			t.Errorf("NormalizeCondition(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
