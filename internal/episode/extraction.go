package episode

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/nanaoosaki/health-companion/internal/ontology"
)

// Intent is what the extractor thinks the message does.
type Intent string

const (
	IntentEpisodeCreate Intent = "episode_create"
	IntentEpisodeUpdate Intent = "episode_update"
	IntentObservation   Intent = "observation"
	IntentIntervention  Intent = "intervention"
	IntentQuery         Intent = "query"
)

// Valid reports whether i is a known intent.
func (i Intent) Valid() bool {
	switch i {
	case IntentEpisodeCreate, IntentEpisodeUpdate, IntentObservation, IntentIntervention, IntentQuery:
		return true
	}
	return false
}

// LinkStrategy is the extractor's own guess about episode continuity.
type LinkStrategy string

const (
	LinkSameEpisode LinkStrategy = "same_episode"
	LinkNewEpisode  LinkStrategy = "new_episode"
	LinkUnknown     LinkStrategy = "unknown"
)

// Valid reports whether s is a known link strategy.
func (s LinkStrategy) Valid() bool {
	switch s {
	case LinkSameEpisode, LinkNewEpisode, LinkUnknown:
		return true
	}
	return false
}

// InterventionInput is an intervention mentioned in a message, before it
// has been stored.
type InterventionInput struct {
	Type   string `json:"type"`
	Dose   string `json:"dose,omitempty"`
	Timing string `json:"timing,omitempty"`
	Notes  string `json:"notes,omitempty"`
}

// Extraction is the validated structured reading of one user message.
type Extraction struct {
	Intent        Intent              `json:"intent"`
	Condition     string              `json:"condition,omitempty"`
	Fields        Fields              `json:"fields"`
	LinkStrategy  LinkStrategy        `json:"link_strategy"`
	EpisodeID     string              `json:"episode_id,omitempty"`
	Rationale     string              `json:"rationale,omitempty"`
	Confidence    float64             `json:"confidence"`
	Interventions []InterventionInput `json:"interventions,omitempty"`
}

// rawExtraction is the flat record the extraction model produces. Both a
// nested interventions list and the parallel-array form are accepted.
type rawExtraction struct {
	Intent               string              `json:"intent"`
	Condition            *string             `json:"condition"`
	Severity             json.RawMessage     `json:"severity"`
	Location             *string             `json:"location"`
	Triggers             []string            `json:"triggers"`
	StartTime            *string             `json:"start_time"`
	EndTime              *string             `json:"end_time"`
	Notes                *string             `json:"notes"`
	Value                *string             `json:"value"`
	LinkStrategy         string              `json:"link_strategy"`
	EpisodeID            *string             `json:"episode_id"`
	Rationale            *string             `json:"rationale"`
	Confidence           *float64            `json:"confidence"`
	Interventions        []InterventionInput `json:"interventions"`
	InterventionTypes    []string            `json:"intervention_types"`
	InterventionDoses    []*string           `json:"intervention_doses"`
	InterventionTimings  []*string           `json:"intervention_timings"`
	InterventionNotesArr []*string           `json:"intervention_notes"`
}

// ParseExtraction decodes and validates an extraction record. Intent must
// be one of the known values; an empty link strategy means unknown.
// Conditions are normalized through the ontology when they match it and
// kept verbatim otherwise.
func ParseExtraction(data []byte) (Extraction, error) {
	var raw rawExtraction
	if err := json.Unmarshal(data, &raw); err != nil {
		return Extraction{}, fmt.Errorf("decode extraction: %w", err)
	}

	intent := Intent(strings.ToLower(strings.TrimSpace(raw.Intent)))
	if !intent.Valid() {
		return Extraction{}, fmt.Errorf("invalid intent %q", raw.Intent)
	}

	link := LinkStrategy(strings.ToLower(strings.TrimSpace(raw.LinkStrategy)))
	if link == "" {
		link = LinkUnknown
	}
	if !link.Valid() {
		return Extraction{}, fmt.Errorf("invalid link_strategy %q", raw.LinkStrategy)
	}

	ex := Extraction{
		Intent:       intent,
		LinkStrategy: link,
		Condition:    NormalizeCondition(deref(raw.Condition)),
		EpisodeID:    strings.TrimSpace(deref(raw.EpisodeID)),
		Rationale:    deref(raw.Rationale),
		Fields: Fields{
			Location:  deref(raw.Location),
			Triggers:  raw.Triggers,
			StartTime: deref(raw.StartTime),
			EndTime:   deref(raw.EndTime),
			Notes:     deref(raw.Notes),
			Value:     deref(raw.Value),
		},
	}
	if raw.Confidence != nil {
		ex.Confidence = clampUnit(*raw.Confidence)
	}

	sev, err := parseSeverity(raw.Severity)
	if err != nil {
		return Extraction{}, err
	}
	ex.Fields.Severity = sev

	ex.Interventions = append(ex.Interventions, raw.Interventions...)
	for i, typ := range raw.InterventionTypes {
		if strings.TrimSpace(typ) == "" {
			continue
		}
		ex.Interventions = append(ex.Interventions, InterventionInput{
			Type:   typ,
			Dose:   at(raw.InterventionDoses, i),
			Timing: at(raw.InterventionTimings, i),
			Notes:  at(raw.InterventionNotesArr, i),
		})
	}

	return ex, nil
}

// NormalizeCondition maps a free-text condition onto its canonical name
// when the ontology knows it, and otherwise returns the trimmed,
// lower-cased input.
func NormalizeCondition(text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}
	if canonical, ok := ontology.Canonical(text); ok {
		return canonical
	}
	return strings.ToLower(text)
}

// parseSeverity accepts a JSON number, a numeric string or a severity
// word. null and absent both mean no severity.
func parseSeverity(raw json.RawMessage) (*int, error) {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return nil, nil
	}

	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		f = math.Max(0, math.Min(float64(ontology.MaxSeverity), f))
		return Intptr(int(math.Round(f))), nil
	}

	var text string
	if err := json.Unmarshal(raw, &text); err != nil {
		return nil, fmt.Errorf("invalid severity %s", s)
	}
	if n, ok := ontology.NormalizeSeverity(text); ok {
		return Intptr(n), nil
	}
	return nil, nil
}

func clampUnit(f float64) float64 {
	if math.IsNaN(f) || f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}

func at(list []*string, i int) string {
	if i < len(list) {
		return deref(list[i])
	}
	return ""
}
