package ontology

import (
	"slices"
	"testing"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		want   string
		wantOK bool
	}{
		{name: "direct", text: "migraine", want: Migraine, wantOK: true},
		{name: "synonym", text: "I have a Headache", want: Migraine, wantOK: true},
		{name: "back pain", text: "back pain", want: BackPain, wantOK: true},
		{name: "neck pain", text: "my stiff neck is killing me", want: NeckPain, wantOK: true},
		{name: "generic pain", text: "knee hurt", want: Pain, wantOK: true},
		{name: "sleep", text: "slept badly, so tired", want: Sleep, wantOK: true},
		{name: "hint only", text: "throbbing", wantOK: false},
		{name: "chest is not an alias", text: "tight chest and wheezy", wantOK: false},
		{name: "neck is not an alias", text: "my neck is stiff", wantOK: false},
		{name: "empty", text: "", wantOK: false},
		{name: "unknown", text: "purple elephant", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Normalize(tt.text)
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("Normalize(%q) = (%q, %v), want (%q, %v)", tt.text, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestCanonical(t *testing.T) {
	tests := []struct {
		text   string
		want   string
		wantOK bool
	}{
		{"back_pain", BackPain, true},
		{" Neck_Pain ", NeckPain, true},
		{Pain, Pain, true},
		{"lower_back", BackPain, true},
		{"headache", Migraine, true},
		{"throbbing", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := Canonical(tt.text)
		if ok != tt.wantOK || got != tt.want {
			t.Errorf("Canonical(%q) = (%q, %v), want (%q, %v)", tt.text, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestInferCondition(t *testing.T) {
	tests := []struct {
		text   string
		want   string
		wantOK bool
	}{
		{"headache again", Migraine, true},
		{"throbbing temple", Migraine, true},
		{"burning chest after dinner", Reflux, true},
		{"tight chest and wheezy", Asthma, true},
		{"stiff neck this morning", NeckPain, true},
		{"my spine", BackPain, true},
		{"", "", false},
		{"purple elephant", "", false},
	}
	for _, tt := range tests {
		got, ok := InferCondition(tt.text)
		if ok != tt.wantOK || got != tt.want {
			t.Errorf("InferCondition(%q) = (%q, %v), want (%q, %v)", tt.text, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestNormalize_FirstFamilyWins(t *testing.T) {
	// "neck-related head pain" contains aliases from migraine, neck_pain
	// and pain. Dictionary order puts migraine first.
	got, _ := Normalize("neck-related head pain")
	if got != Migraine {
		t.Errorf("Normalize = %q, want %q (first family in order)", got, Migraine)
	}

	// "lower back pain" contains "pain", but back_pain precedes pain.
	got, _ = Normalize("lower back pain")
	if got != BackPain {
		t.Errorf("Normalize = %q, want %q", got, BackPain)
	}
}

func TestFamilyOrder(t *testing.T) {
	var names []string
	for _, f := range Families {
		names = append(names, f.Name)
	}
	want := []string{Migraine, Sleep, Reflux, Asthma, Anxiety, Depression, BackPain, NeckPain, Pain}
	if !slices.Equal(names, want) {
		t.Errorf("family order = %v, want %v", names, want)
	}
}

func TestConditionsMatch(t *testing.T) {
	tests := []struct {
		a, b string
		want bool
	}{
		{Migraine, Migraine, true},
		{Migraine, "headache", true},
		{"heartburn", Reflux, true},
		{Migraine, BackPain, false},
		{Pain, Migraine, false},
		{Pain, BackPain, false},
		{"back pain", BackPain, false},
		{"", Migraine, false},
	}
	for _, tt := range tests {
		if got := ConditionsMatch(tt.a, tt.b); got != tt.want {
			t.Errorf("ConditionsMatch(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestRelatedConditions(t *testing.T) {
	got := RelatedConditions("pain")
	for _, want := range []string{Migraine, BackPain, NeckPain, Pain} {
		if !slices.Contains(got, want) {
			t.Errorf("RelatedConditions(pain) = %v, missing %q", got, want)
		}
	}

	if got := RelatedConditions("headache"); !slices.Equal(got, []string{Migraine}) {
		t.Errorf("RelatedConditions(headache) = %v, want [migraine]", got)
	}
	if got := RelatedConditions(BackPain); !slices.Equal(got, []string{BackPain}) {
		t.Errorf("RelatedConditions(back_pain) = %v, want [back_pain]", got)
	}
	if got := RelatedConditions("xyzzy"); got != nil {
		t.Errorf("RelatedConditions(xyzzy) = %v, want nil", got)
	}
}

func TestRelatedConditions_ReturnsCopy(t *testing.T) {
	a := RelatedConditions("pain")
	a[0] = "mutated"
	b := RelatedConditions("pain")
	if b[0] == "mutated" {
		t.Error("RelatedConditions leaked its backing array")
	}
}

func TestSynonymsAndHints(t *testing.T) {
	if got := Synonyms(Reflux); !slices.Contains(got, "gerd") {
		t.Errorf("Synonyms(reflux) = %v, want gerd included", got)
	}
	if got := Synonyms("nope"); got != nil {
		t.Errorf("Synonyms(nope) = %v, want nil", got)
	}
	if got := BodyRegionHints(BackPain); !slices.Contains(got, "spine") {
		t.Errorf("BodyRegionHints(back_pain) = %v, want spine included", got)
	}
	if !Known(Asthma) || Known("flu") {
		t.Error("Known() mismatch")
	}
}

func TestNormalizeSeverity(t *testing.T) {
	tests := []struct {
		text   string
		want   int
		wantOK bool
	}{
		{"7", 7, true},
		{"8/10", 8, true},
		{" 6 out of 10", 6, true},
		{"15", 10, true},
		{"-3", 0, true},
		{"mild", 2, true},
		{"Severe", 8, true},
		{"very severe", 9, true},
		{"moderate ache", 5, true},
		{"worst ever", 10, true},
		{"none", 0, true},
		{"9 but mild now", 9, true},
		{"", 0, false},
		{"meh", 0, false},
	}
	for _, tt := range tests {
		got, ok := NormalizeSeverity(tt.text)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("NormalizeSeverity(%q) = (%d, %v), want (%d, %v)", tt.text, got, ok, tt.want, tt.wantOK)
		}
	}
}
