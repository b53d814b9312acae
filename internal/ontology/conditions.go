// Package ontology maps free-text health descriptions onto canonical
// condition names and severity levels.
//
// All tables in this package are ordered slices rather than maps. Lookups
// walk them front to back and the first hit wins, so the order of entries
// is part of the observable behavior: "neck-related head pain" resolves to
// migraine because migraine is listed before neck_pain.
package ontology

import "strings"

// Canonical condition names.
const (
	Migraine   = "migraine"
	Sleep      = "sleep"
	Reflux     = "reflux"
	Asthma     = "asthma"
	Anxiety    = "anxiety"
	Depression = "depression"
	BackPain   = "back_pain"
	NeckPain   = "neck_pain"
	Pain       = "pain" // generic family used to widen recall queries
)

// Family groups the alias phrases that normalize to one canonical
// condition.
type Family struct {
	Name    string
	Aliases []string
}

// Families is the ordered condition dictionary.
var Families = []Family{
	{Migraine, []string{"migraine", "headache", "head pain", "temple pain", "behind eye", "neck-related head pain"}},
	{Sleep, []string{"sleep", "insomnia", "sleep quality", "nap", "tired", "fatigue"}},
	{Reflux, []string{"reflux", "heartburn", "gerd", "acid", "indigestion"}},
	{Asthma, []string{"asthma", "wheeze", "wheezing", "shortness of breath"}},
	{Anxiety, []string{"anxiety", "anxious", "panic", "worry", "stress"}},
	{Depression, []string{"depression", "depressed", "sad", "down", "low mood"}},
	{BackPain, []string{"back pain", "backache", "lower back", "spine pain"}},
	{NeckPain, []string{"neck pain", "neck ache", "stiff neck"}},
	{Pain, []string{"pain", "ache", "hurt", "sore"}},
}

// bodyRegionHints back InferCondition. Normalize never reads them.
var bodyRegionHints = []Family{
	{Migraine, []string{"temple", "behind eye", "photophobia", "nausea", "throbbing", "neck", "head"}},
	{Reflux, []string{"burning chest", "acid", "sour taste", "chest"}},
	{Asthma, []string{"wheeze", "short of breath", "tight chest", "chest"}},
	{BackPain, []string{"lower back", "spine", "back"}},
	{NeckPain, []string{"neck", "cervical", "stiff neck"}},
}

// painRelated lists the conditions a generic "pain" recall query expands to.
var painRelated = []string{Pain, Migraine, BackPain, NeckPain}

// Normalize returns the canonical condition for free text. Matching is a
// case-insensitive substring search of each family alias against the
// input, first family in dictionary order wins. Text that no alias
// matches does not normalize.
func Normalize(text string) (string, bool) {
	t := strings.ToLower(strings.TrimSpace(text))
	if t == "" {
		return "", false
	}
	return firstMatch(Families, t)
}

// Canonical is Normalize for values that may already be canonical, such
// as a model's extraction or a stored episode condition. A canonical name
// comes back unchanged, and underscores read as spaces, so "back_pain"
// stays back_pain instead of falling through to the generic pain alias.
func Canonical(text string) (string, bool) {
	t := strings.ToLower(strings.TrimSpace(text))
	if Known(t) {
		return t, true
	}
	return Normalize(strings.ReplaceAll(t, "_", " "))
}

// InferCondition guesses a condition for conversational text such as a
// recall question or a request for advice. It tries Normalize first and
// then the body-region hints, where the longest matching hint wins and
// ties go to table order. Episode data must use Normalize instead.
func InferCondition(text string) (string, bool) {
	if name, ok := Canonical(text); ok {
		return name, true
	}
	t := strings.ToLower(strings.TrimSpace(text))
	if t == "" {
		return "", false
	}
	best, bestLen := "", 0
	for _, f := range bodyRegionHints {
		for _, hint := range f.Aliases {
			if len(hint) > bestLen && strings.Contains(t, hint) {
				best, bestLen = f.Name, len(hint)
			}
		}
	}
	return best, bestLen > 0
}

func firstMatch(table []Family, text string) (string, bool) {
	for _, f := range table {
		for _, alias := range f.Aliases {
			if strings.Contains(text, alias) {
				return f.Name, true
			}
		}
	}
	return "", false
}

// ConditionsMatch reports whether two condition strings refer to the same
// family: they are equal, or both appear verbatim in one family's alias
// list. It deliberately does not widen "pain" to the specific pain
// conditions; use [RelatedConditions] for that.
func ConditionsMatch(a, b string) bool {
	if a == b {
		return true
	}
	a, b = strings.ToLower(a), strings.ToLower(b)
	for _, f := range Families {
		if contains(f.Aliases, a) && contains(f.Aliases, b) {
			return true
		}
	}
	return false
}

// RelatedConditions returns the canonical conditions a recall query for
// text should cover. A generic pain query expands to every pain-type
// condition; anything else maps to its single canonical name. Returns nil
// when text does not normalize.
func RelatedConditions(text string) []string {
	name, ok := Canonical(text)
	if !ok {
		return nil
	}
	if name == Pain {
		out := make([]string, len(painRelated))
		copy(out, painRelated)
		return out
	}
	return []string{name}
}

// Synonyms returns the alias list for a canonical condition.
func Synonyms(canonical string) []string {
	return lookup(Families, canonical)
}

// BodyRegionHints returns the body-region hints for a canonical condition.
func BodyRegionHints(canonical string) []string {
	return lookup(bodyRegionHints, canonical)
}

// Known reports whether name is a canonical condition.
func Known(name string) bool {
	return lookup(Families, name) != nil
}

func lookup(table []Family, name string) []string {
	for _, f := range table {
		if f.Name == name {
			out := make([]string, len(f.Aliases))
			copy(out, f.Aliases)
			return out
		}
	}
	return nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
