package jsonrepair

import "strings"

// matchClose returns the index just past the bracket that closes the one at
// s[start], honoring double-quoted strings. ok is false when the input ends
// before the bracket closes.
func matchClose(s string, start int) (end int, ok bool) {
	if start < 0 || start >= len(s) {
		return 0, false
	}
	open := s[start]
	var close byte
	switch open {
	case '{':
		close = '}'
	case '[':
		close = ']'
	default:
		return 0, false
	}
	depth := 0
	inString := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch c {
			case '\\':
				i++
			case '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				return i + 1, true
			}
		}
	}
	return 0, false
}

// longestBalancedObject returns the longest top-level {...} span of s in a
// single pass. Spans nested inside a longer span are never candidates.
func longestBalancedObject(s string) (string, bool) {
	bestStart, bestEnd := -1, -1
	depth := 0
	start := -1
	inString := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			switch c {
			case '\\':
				i++
			case '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			if depth > 0 {
				inString = true
			}
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth == 0 {
				continue
			}
			depth--
			if depth == 0 && i+1-start > bestEnd-bestStart {
				bestStart, bestEnd = start, i+1
			}
		}
	}
	if bestStart < 0 {
		return "", false
	}
	return s[bestStart:bestEnd], true
}

// outerBraces returns s from its first '{' to its last '}'.
func outerBraces(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end <= start {
		return "", false
	}
	return s[start : end+1], true
}

// readQuoted returns the literal starting at s[start] (which must be the
// quote byte) including both quotes.
func readQuoted(s string, start int, quote byte) (lit string, end int, ok bool) {
	for i := start + 1; i < len(s); i++ {
		switch s[i] {
		case '\\':
			i++
		case quote:
			return s[start : i+1], i + 1, true
		case '\n':
			if quote == '\'' {
				return "", 0, false
			}
		}
	}
	return "", 0, false
}

func skipSpace(s string, i int) int {
	for i < len(s) {
		switch s[i] {
		case ' ', '\t', '\n', '\r':
			i++
		default:
			return i
		}
	}
	return i
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}
