// Package aijson recovers structured JSON from raw assistant output. Model
// replies frequently wrap the required object in markdown fences or
// conversational prose; this package is the defense against that leakage.
// It is pure and never consults the model.
package aijson

import (
	"encoding/json"
	"strings"
	"unicode/utf8"
)

// Extract returns the first JSON value recoverable from raw, trying in order:
// the fenced/trimmed text as-is, then the largest balanced {...} substring,
// then the largest balanced [...] substring. Objects win over arrays when
// both are present. The second return is false when nothing parses.
func Extract(raw string) (json.RawMessage, bool) {
	text := stripFences(strings.TrimSpace(raw))

	if candidate := tryParse(text); candidate != nil {
		return candidate, true
	}
	if candidate := tryParse(balancedSpan(text, '{', '}')); candidate != nil {
		return candidate, true
	}
	if candidate := tryParse(balancedSpan(text, '[', ']')); candidate != nil {
		return candidate, true
	}
	return nil, false
}

// ExtractInto extracts and unmarshals into out.
func ExtractInto(raw string, out any) bool {
	data, ok := Extract(raw)
	if !ok {
		return false
	}
	return json.Unmarshal(data, out) == nil
}

// Prose returns up to limit bytes of the non-JSON text, used to attach a
// short diagnostic excerpt to parse failures. The cut never splits a
// multi-byte rune.
func Prose(raw string, limit int) string {
	text := strings.TrimSpace(raw)
	if len(text) <= limit {
		return text
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut]
}

func tryParse(text string) json.RawMessage {
	if text == "" {
		return nil
	}
	var probe any
	if err := json.Unmarshal([]byte(text), &probe); err != nil {
		return nil
	}
	switch probe.(type) {
	case map[string]any, []any:
		return json.RawMessage(text)
	default:
		return nil
	}
}

func stripFences(text string) string {
	if !strings.HasPrefix(text, "```") {
		return text
	}
	// Drop the opening fence line (``` or ```json) and a trailing fence.
	if idx := strings.IndexByte(text, '\n'); idx >= 0 {
		text = text[idx+1:]
	} else {
		return strings.TrimPrefix(text, "```")
	}
	text = strings.TrimSpace(text)
	if idx := strings.LastIndex(text, "```"); idx >= 0 {
		text = text[:idx]
	}
	return strings.TrimSpace(text)
}

// balancedSpan finds the largest balanced open..close substring using a
// depth counter that ignores brackets inside JSON strings.
func balancedSpan(text string, open, close byte) string {
	depth := 0
	start := -1
	best := ""
	inString := false
	escaped := false

	for i := 0; i < len(text); i++ {
		ch := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case open:
			if depth == 0 {
				start = i
			}
			depth++
		case close:
			if depth == 0 {
				continue
			}
			depth--
			if depth == 0 && start >= 0 {
				span := text[start : i+1]
				if len(span) > len(best) {
					best = span
				}
			}
		}
	}
	return best
}
