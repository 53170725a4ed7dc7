// Package extract pulls structured JSON out of free-form model output.
package extract

import (
	"encoding/json"
	"regexp"
	"strings"
)

// Shape selects which bracket kind the balanced scan tries first.
type Shape int

const (
	// ShapeArray tries `[` before `{`.
	ShapeArray Shape = iota
	// ShapeObject tries `{` before `[`.
	ShapeObject
)

var (
	thinkBlockPattern = regexp.MustCompile(`(?is)<think>.*?</think>`)
	jsonFencePattern  = regexp.MustCompile("(?s)```json\\s*(.*?)\\s*```")
	anyFencePattern   = regexp.MustCompile("(?s)```[a-zA-Z0-9_-]*\\s*(.*?)\\s*```")
	danglingThinkEnd  = regexp.MustCompile(`(?is)^.*</think>`)
)

// StripThinking removes <think>...</think> spans. A closing tag without an
// opening tag drops everything before it.
func StripThinking(text string) string {
	text = thinkBlockPattern.ReplaceAllString(text, "")
	text = danglingThinkEnd.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}

// Thinking returns the concatenated content of all <think> spans.
func Thinking(text string) string {
	matches := thinkBlockPattern.FindAllString(text, -1)
	parts := make([]string, 0, len(matches))
	for _, m := range matches {
		inner := strings.TrimSpace(m[len("<think>") : len(m)-len("</think>")])
		if inner != "" {
			parts = append(parts, inner)
		}
	}
	return strings.Join(parts, "\n")
}

// strategy returns the extracted candidate and whether it applied.
type strategy func(text string, prefer Shape) (string, bool)

var strategies = []strategy{
	fencedJSON,
	fencedAny,
	balanced,
}

// JSON returns the substring of text most likely to be valid JSON, preferring
// arrays. When nothing matches the cleaned text is returned unchanged.
func JSON(text string) string {
	return Extract(text, ShapeArray)
}

// Object is JSON with objects preferred over arrays.
func Object(text string) string {
	return Extract(text, ShapeObject)
}

// Extract runs the extraction strategies in order.
func Extract(text string, prefer Shape) string {
	cleaned := StripThinking(text)
	for _, s := range strategies {
		if out, ok := s(cleaned, prefer); ok {
			return out
		}
	}
	return cleaned
}

func fencedJSON(text string, _ Shape) (string, bool) {
	return fenced(jsonFencePattern, text)
}

func fencedAny(text string, _ Shape) (string, bool) {
	return fenced(anyFencePattern, text)
}

func fenced(pattern *regexp.Regexp, text string) (string, bool) {
	for _, m := range pattern.FindAllStringSubmatch(text, -1) {
		body := strings.TrimSpace(m[1])
		if strings.HasPrefix(body, "{") || strings.HasPrefix(body, "[") {
			return body, true
		}
	}
	return "", false
}

// balanced collects the top-level bracketed spans of text and picks one.
// Brackets nested in a span, including those inside its string literals,
// never start a candidate of their own. Valid JSON of the preferred shape
// wins, then valid JSON of either shape, then the first preferred span.
// An unterminated span reaching the end of text is kept for repair.
func balanced(text string, prefer Shape) (string, bool) {
	want := byte('[')
	if prefer == ShapeObject {
		want = '{'
	}

	var spans []string
	for i := 0; i < len(text); {
		off := strings.IndexAny(text[i:], "[{")
		if off < 0 {
			break
		}
		start := i + off
		end, ok := scanBalanced(text, start)
		if !ok {
			if len(spans) == 0 {
				return text[start:], true
			}
			break
		}
		spans = append(spans, text[start:end+1])
		i = end + 1
	}
	if len(spans) == 0 {
		return "", false
	}

	pick := func(match func(string) bool) (string, bool) {
		for _, span := range spans {
			if match(span) {
				return span, true
			}
		}
		return "", false
	}
	if out, ok := pick(func(s string) bool { return s[0] == want && json.Valid([]byte(s)) }); ok {
		return out, true
	}
	if out, ok := pick(func(s string) bool { return json.Valid([]byte(s)) }); ok {
		return out, true
	}
	if out, ok := pick(func(s string) bool { return s[0] == want }); ok {
		return out, true
	}
	return spans[0], true
}

// scanBalanced walks text from start and returns the index of the bracket
// closing the one at start. Brackets inside string literals are ignored.
func scanBalanced(text string, start int) (int, bool) {
	depth := 0
	inString := false
	escaped := false

	for i := start; i < len(text); i++ {
		c := text[i]
		if escaped {
			escaped = false
			continue
		}
		if c == '\\' {
			escaped = true
			continue
		}
		if c == '"' {
			inString = !inString
			continue
		}
		if inString {
			continue
		}
		switch c {
		case '[', '{':
			depth++
		case ']', '}':
			depth--
			if depth == 0 {
				return i, true
			}
			if depth < 0 {
				return 0, false
			}
		}
	}
	return 0, false
}
