package llm

import (
	"encoding/json"
	"errors"
	"strings"
)

// ErrNoJSON is returned by ExtractJSON when the reply holds no JSON object.
var ErrNoJSON = errors.New("no JSON object in model reply")

// ExtractJSON pulls the first JSON object out of a model reply. Models
// that ignore JSON mode tend to wrap the object in a markdown fence, in
// <json> tags, or in a sentence of preamble; all three are handled.
func ExtractJSON(content string) ([]byte, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, ErrNoJSON
	}

	if inner, ok := between(content, "<json>", "</json>"); ok {
		content = inner
	} else if inner, ok := between(content, "```json", "```"); ok {
		content = inner
	} else if inner, ok := between(content, "```", "```"); ok {
		content = inner
	}

	start := strings.IndexByte(content, '{')
	if start < 0 {
		return nil, ErrNoJSON
	}
	obj, ok := balancedObject(content[start:])
	if !ok || !json.Valid([]byte(obj)) {
		return nil, ErrNoJSON
	}
	return []byte(obj), nil
}

// DecodeJSON extracts the first JSON object in content into v.
func DecodeJSON(content string, v any) error {
	data, err := ExtractJSON(content)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

func between(s, open, close string) (string, bool) {
	i := strings.Index(s, open)
	if i < 0 {
		return "", false
	}
	rest := s[i+len(open):]
	if j := strings.Index(rest, close); j >= 0 {
		return strings.TrimSpace(rest[:j]), true
	}
	// Unterminated: take everything after the opener.
	return strings.TrimSpace(rest), true
}

// balancedObject returns the prefix of s (which starts with '{') up to the
// matching close brace, honoring string literals.
func balancedObject(s string) (string, bool) {
	depth := 0
	inString, escaped := false, false
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case escaped:
			escaped = false
		case inString && c == '\\':
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return s[:i+1], true
			}
		}
	}
	return "", false
}
