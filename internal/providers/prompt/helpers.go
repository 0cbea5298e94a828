package prompt

import (
	"encoding/json"
	"errors"
	"strings"
)

var errEmptyPayload = errors.New("empty payload")

func coalesce(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

// parseModelPayload decodes the first JSON value found in a model reply.
// Unknown fields are ignored.
func parseModelPayload[T any](raw string) (T, error) {
	var out T
	fragment := extractJSONFragment(raw)
	if fragment == "" {
		return out, errEmptyPayload
	}
	if err := json.Unmarshal([]byte(fragment), &out); err != nil {
		return out, err
	}
	return out, nil
}

// extractJSONFragment returns the first balanced JSON object or array in raw,
// after removing a surrounding code fence. Prose before or after the value is
// dropped. An unterminated value is returned as is so the decoder can report
// it.
func extractJSONFragment(raw string) string {
	text := trimCodeFence(raw)
	start := strings.IndexAny(text, "{[")
	if start < 0 {
		return text
	}
	if end := matchingClose(text, start); end > 0 {
		return text[start : end+1]
	}
	return strings.TrimSpace(text[start:])
}

// matchingClose finds the bracket closing the one at open, skipping string
// literals. It returns -1 when the value never closes.
func matchingClose(text string, open int) int {
	depth := 0
	inString, escaped := false, false
	for i := open; i < len(text); i++ {
		c := text[i]
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
		case '{', '[':
			depth++
		case '}', ']':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

func trimCodeFence(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```")
	// drop the language tag on the opening fence line
	if nl := strings.IndexByte(text, '\n'); nl >= 0 && !strings.ContainsAny(text[:nl], "{[") {
		text = text[nl+1:]
	}
	if idx := strings.LastIndex(text, "```"); idx >= 0 {
		text = text[:idx]
	}
	return strings.TrimSpace(text)
}

// unquote strips one layer of matching quotes the model sometimes wraps
// around a refined prompt.
func unquote(text string) string {
	text = strings.TrimSpace(text)
	if len(text) >= 2 {
		first, last := text[0], text[len(text)-1]
		if (first == '"' && last == '"') || (first == '\'' && last == '\'') {
			return strings.TrimSpace(text[1 : len(text)-1])
		}
	}
	return text
}
