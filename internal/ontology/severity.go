package ontology

import (
	"strconv"
	"strings"
	"unicode"
)

// MaxSeverity is the top of the 0-10 severity scale.
const MaxSeverity = 10

type severityWord struct {
	word  string
	level int
}

// severityWords is matched by substring in order. Longer phrases come
// before the words they contain.
var severityWords = []severityWord{
	{"excruciating", 10},
	{"unbearable", 10},
	{"worst", 10},
	{"very severe", 9},
	{"severe", 8},
	{"intense", 7},
	{"bad", 6},
	{"moderate", 5},
	{"mild", 2},
	{"slight", 1},
	{"minimal", 1},
	{"none", 0},
}

// NormalizeSeverity converts a severity description to the 0-10 scale.
// A leading number ("7", "8/10", "6 out of 10") takes priority and is
// clamped; otherwise the severity word table is consulted.
func NormalizeSeverity(text string) (int, bool) {
	t := strings.ToLower(strings.TrimSpace(text))
	if t == "" {
		return 0, false
	}
	if n, ok := leadingInt(t); ok {
		return ClampSeverity(n), true
	}
	for _, sw := range severityWords {
		if strings.Contains(t, sw.word) {
			return sw.level, true
		}
	}
	return 0, false
}

// ClampSeverity forces n into 0..MaxSeverity.
func ClampSeverity(n int) int {
	switch {
	case n < 0:
		return 0
	case n > MaxSeverity:
		return MaxSeverity
	default:
		return n
	}
}

func leadingInt(s string) (int, bool) {
	end := 0
	if end < len(s) && s[end] == '-' {
		end++
	}
	for end < len(s) && unicode.IsDigit(rune(s[end])) {
		end++
	}
	if end == 0 || (end == 1 && s[0] == '-') {
		return 0, false
	}
	n, err := strconv.Atoi(s[:end])
	if err != nil {
		return 0, false
	}
	return n, true
}
