package jsonrepair

import "strings"

// Clean rewrites near-JSON into something encoding/json has a chance of
// accepting. It removes line breaks and trailing commas, turns single-quoted
// strings into double-quoted ones, quotes bare keys, maps Python literals,
// repairs invalid escape sequences and unescapes JSON that was itself
// string-escaped. Clean is total and never panics.
func Clean(s string) string {
	s = strings.TrimPrefix(s, "\ufeff")
	s = unescapeWrapped(s)

	var b strings.Builder
	b.Grow(len(s) + 16)
	inString := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			switch c {
			case '\\':
				if i+1 >= len(s) {
					b.WriteString(`\\`)
					continue
				}
				next := s[i+1]
				if strings.IndexByte(`"\/bfnrtu`, next) >= 0 {
					b.WriteByte(c)
					b.WriteByte(next)
				} else {
					// invalid escape: keep the character, escape the backslash
					b.WriteString(`\\`)
					b.WriteByte(next)
				}
				i++
			case '"':
				inString = false
				b.WriteByte(c)
			case '\n', '\r', '\t':
				b.WriteByte(' ')
			default:
				b.WriteByte(c)
			}
			continue
		}

		switch {
		case c == '\n' || c == '\r' || c == '\t':
			b.WriteByte(' ')
		case c == '"':
			inString = true
			b.WriteByte(c)
		case c == '\\' && i+1 < len(s) && s[i+1] == '"':
			// escaped quote outside any string opens one
			inString = true
			b.WriteByte('"')
			i++
		case c == '\'':
			lit, end, ok := readSingleQuoted(s, i)
			if !ok {
				b.WriteByte(c)
				continue
			}
			b.WriteString(lit)
			i = end - 1
		case c == ',':
			j := skipSpace(s, i+1)
			if j < len(s) && (s[j] == '}' || s[j] == ']') {
				continue
			}
			b.WriteByte(c)
		case isIdentStart(c) && (i == 0 || !isIdentPart(s[i-1])):
			j := i
			for j < len(s) && isIdentPart(s[j]) {
				j++
			}
			word := s[i:j]
			k := skipSpace(s, j)
			switch {
			case k < len(s) && s[k] == ':' && afterStructural(s, i):
				b.WriteByte('"')
				b.WriteString(word)
				b.WriteByte('"')
			case word == "True":
				b.WriteString("true")
			case word == "False":
				b.WriteString("false")
			case word == "None":
				b.WriteString("null")
			default:
				b.WriteString(word)
			}
			i = j - 1
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// unescapeWrapped handles `{\"a\": 1}`: when no bare double quote exists but
// escaped ones do, the whole object was string-escaped once.
func unescapeWrapped(s string) string {
	if !strings.Contains(s, `\"`) {
		return s
	}
	for i := 0; i < len(s); i++ {
		if s[i] == '"' && (i == 0 || s[i-1] != '\\') {
			return s
		}
	}
	s = strings.ReplaceAll(s, `\\`, "\x00")
	s = strings.ReplaceAll(s, `\"`, `"`)
	return strings.ReplaceAll(s, "\x00", `\`)
}

// readSingleQuoted converts a 'single quoted' literal at s[start] into a
// double-quoted JSON string. The closing quote must be followed by a
// structural character so apostrophes inside words do not end the literal.
func readSingleQuoted(s string, start int) (lit string, end int, ok bool) {
	var b strings.Builder
	b.WriteByte('"')
	for i := start + 1; i < len(s); i++ {
		c := s[i]
		switch c {
		case '\\':
			if i+1 < len(s) && s[i+1] == '\'' {
				b.WriteByte('\'')
				i++
				continue
			}
			b.WriteByte(c)
		case '"':
			b.WriteString(`\"`)
		case '\n', '\r':
			return "", 0, false
		case '\'':
			j := skipSpace(s, i+1)
			if j >= len(s) || strings.IndexByte(":,}]", s[j]) >= 0 {
				b.WriteByte('"')
				return b.String(), i + 1, true
			}
			b.WriteByte(c)
		default:
			b.WriteByte(c)
		}
	}
	return "", 0, false
}

// afterStructural reports whether the token at s[i] follows '{' or ','.
func afterStructural(s string, i int) bool {
	for j := i - 1; j >= 0; j-- {
		switch s[j] {
		case ' ', '\t', '\n', '\r':
			continue
		case '{', ',':
			return true
		default:
			return false
		}
	}
	return false
}
