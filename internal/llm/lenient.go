package llm

import (
	"encoding/json"
	"errors"
	"strings"
)

// ErrNoJSONObject means the response text held no decodable JSON object.
var ErrNoJSONObject = errors.New("no JSON object in response")

// ExtractJSONObject locates the first well-formed top-level JSON object in free text.
// Prose around the object and markdown fences are ignored. Numbers decode as json.Number.
// Objects nested inside a malformed outer object are never returned.
func ExtractJSONObject(text string) (map[string]any, error) {
	for i := 0; i < len(text); i++ {
		if text[i] != '{' {
			continue
		}
		dec := json.NewDecoder(strings.NewReader(text[i:]))
		dec.UseNumber()
		var m map[string]any
		if err := dec.Decode(&m); err == nil && m != nil {
			return m, nil
		}
		end := closingBrace(text, i)
		if end < 0 {
			// unclosed: every later brace sits inside the broken object
			break
		}
		i = end
	}
	return nil, ErrNoJSONObject
}

// closingBrace returns the index of the brace closing the one at open, or -1.
// Braces inside string literals do not count.
func closingBrace(text string, open int) int {
	depth := 0
	inString, escaped := false, false
	for j := open; j < len(text); j++ {
		c := text[j]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return j
			}
		}
	}
	return -1
}
