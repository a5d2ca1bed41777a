package llm

import (
	"errors"
	"strings"
)

var errNoJSONObject = errors.New("no JSON object in model output")

// ExtractJSONObject pulls the first balanced JSON object out of a model reply. It strips
// markdown fences and any prose around the object. Braces inside strings are ignored.
func ExtractJSONObject(content string) ([]byte, error) {
	s := strings.TrimSpace(content)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")

	start := strings.IndexByte(s, '{')
	if start < 0 {
		return nil, errNoJSONObject
	}
	depth := 0
	inString, escaped := false, false
	for i := start; i < len(s); i++ {
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
				return []byte(s[start : i+1]), nil
			}
		}
	}
	return nil, errNoJSONObject
}
