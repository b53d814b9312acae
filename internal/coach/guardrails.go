// Package coach gives short, non-prescriptive self-care suggestions.
package coach

import (
	"strings"
)

// SafeAlternative replaces any advice that strays into prescribing.
const SafeAlternative = "Based on general wellness principles, focusing on lifestyle factors like hydration, rest, and stress management can be beneficial. For specific medical advice, please consult a healthcare professional."

// OveruseNote is appended when the advice talks about frequent
// medication use.
const OveruseNote = "Frequent use of pain medication (more than 2-3 days per week) can sometimes lead to medication overuse headaches. It's always a good idea to track usage and discuss patterns with your doctor."

// Disclaimer closes every piece of advice that does not already point to
// a professional.
const Disclaimer = "*Always consult with a healthcare professional for persistent or severe symptoms.*"

var (
	prescriptiveTerms = []string{"dosage", "mg", "prescription", "diagnose", "prescribe", "take medication", "increase dose"}
	overuseTerms      = []string{"frequent medication", "daily pain meds", "medication more than", "taking pills daily"}
)

// ApplyGuardrails makes advice safe to show. Prescriptive advice is
// replaced outright; otherwise an overuse note, terminal punctuation and
// the disclaimer are added as needed.
func ApplyGuardrails(advice string) string {
	lower := strings.ToLower(advice)
	if containsAny(lower, prescriptiveTerms) {
		return SafeAlternative
	}

	out := strings.TrimSpace(advice)
	if containsAny(lower, overuseTerms) {
		out += "\n\n" + OveruseNote
	}
	if !strings.HasSuffix(out, ".") && !strings.HasSuffix(out, "!") && !strings.HasSuffix(out, "?") {
		out += "."
	}
	if !strings.Contains(strings.ToLower(out), "healthcare professional") {
		out += "\n\n" + Disclaimer
	}
	return out
}

func containsAny(s string, terms []string) bool {
	for _, t := range terms {
		if strings.Contains(s, t) {
			return true
		}
	}
	return false
}
