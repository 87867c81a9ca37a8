package jsonrepair

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
)

// Bare (unquoted) keys are only trusted for fields the analysis schema uses;
// prose is full of "Word:" patterns.
var bareKeys = map[string]bool{
	"description":         true,
	"nutrients":           true,
	"feedback":            true,
	"suggestions":         true,
	"detailedIngredients": true,
	"goalScore":           true,
	"overall":             true,
	"specific":            true,
	"name":                true,
	"value":               true,
	"unit":                true,
	"isHighlight":         true,
	"percentOfDailyValue": true,
	"category":            true,
	"confidence":          true,
}

var (
	keyRe    = regexp.MustCompile(`"([^"\\\n]{1,64})"\s*:|'([^'\\\n]{1,64})'\s*:|\b([A-Za-z_][A-Za-z0-9_]{0,63})\s*:`)
	numberRe = regexp.MustCompile(`^-?\d+(?:\.\d+)?(?:[eE][+-]?\d+)?`)
)

const maxDepth = 8

// reconstruct rebuilds an object from key/value pairs found anywhere in s.
// Composite values are captured first so that keys nested inside them are
// not promoted to the top level. The first occurrence of a key wins.
func reconstruct(s string) map[string]any {
	return reconstructDepth(s, 0)
}

func reconstructDepth(s string, depth int) map[string]any {
	out := map[string]any{}
	if depth > maxDepth {
		return out
	}
	consumed := 0
	for _, m := range keyRe.FindAllStringSubmatchIndex(s, -1) {
		if m[0] < consumed {
			continue
		}
		key := ""
		switch {
		case m[2] >= 0:
			key = s[m[2]:m[3]]
		case m[4] >= 0:
			key = s[m[4]:m[5]]
		case m[6] >= 0:
			key = s[m[6]:m[7]]
			if !bareKeys[key] {
				continue
			}
		}
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		val, end, ok := readValue(s, skipSpace(s, m[1]), depth)
		if end > consumed {
			consumed = end
		}
		if !ok {
			continue
		}
		if _, seen := out[key]; !seen {
			out[key] = val
		}
	}
	return out
}

// readValue parses one JSON-ish value starting at s[i] and returns the index
// just past it. A composite that cannot be decoded still reports its extent
// so the caller does not rescan its contents.
func readValue(s string, i, depth int) (any, int, bool) {
	if i >= len(s) {
		return nil, 0, false
	}
	switch c := s[i]; {
	case c == '[':
		return readArray(s, i, depth)
	case c == '{':
		return readObject(s, i, depth)
	case c == '"':
		lit, end, ok := readQuoted(s, i, '"')
		if !ok {
			return nil, 0, false
		}
		var str string
		if err := json.Unmarshal([]byte(lit), &str); err != nil {
			str = strings.Trim(lit, `"`)
		}
		return str, end, true
	case c == '\'':
		lit, end, ok := readQuoted(s, i, '\'')
		if !ok {
			return nil, 0, false
		}
		return strings.ReplaceAll(lit[1:len(lit)-1], `\'`, "'"), end, true
	case c == '-' || (c >= '0' && c <= '9'):
		num := numberRe.FindString(s[i:])
		if num == "" {
			return nil, 0, false
		}
		f, err := strconv.ParseFloat(num, 64)
		if err != nil {
			return nil, 0, false
		}
		return f, i + len(num), true
	default:
		for lit, v := range map[string]any{"true": true, "false": false, "null": nil, "True": true, "False": false, "None": nil} {
			if strings.HasPrefix(s[i:], lit) && (i+len(lit) == len(s) || !isIdentPart(s[i+len(lit)])) {
				return v, i + len(lit), true
			}
		}
	}
	return nil, 0, false
}

func readArray(s string, i, depth int) (any, int, bool) {
	if end, ok := matchClose(s, i); ok {
		raw := s[i:end]
		if v, err := decodeArray(raw); err == nil {
			return v, end, true
		}
		if v, err := decodeArray(Clean(raw)); err == nil {
			return v, end, true
		}
		if items := salvageItems(raw[1:len(raw)-1], depth); len(items) > 0 {
			return items, end, true
		}
		return nil, end, false
	}
	// Unterminated: the rest of the input belongs to this array.
	items := salvageItems(s[i+1:], depth)
	if len(items) == 0 {
		return nil, len(s), false
	}
	return items, len(s), true
}

func readObject(s string, i, depth int) (any, int, bool) {
	if end, ok := matchClose(s, i); ok {
		raw := s[i:end]
		if v, err := decodeObject(raw); err == nil {
			return v, end, true
		}
		if v, err := decodeObject(Clean(raw)); err == nil {
			return v, end, true
		}
		if inner := reconstructDepth(raw[1:len(raw)-1], depth+1); len(inner) > 0 {
			return inner, end, true
		}
		return nil, end, false
	}
	inner := reconstructDepth(s[i+1:], depth+1)
	if len(inner) == 0 {
		return nil, len(s), false
	}
	return inner, len(s), true
}

// salvageItems recovers the complete elements of a damaged array body:
// balanced objects first, then plain string literals.
func salvageItems(body string, depth int) []any {
	var out []any
	for i := 0; i < len(body); i++ {
		if body[i] != '{' {
			continue
		}
		end, ok := matchClose(body, i)
		if !ok {
			break
		}
		if v, err := decodeObject(body[i:end]); err == nil {
			out = append(out, v)
		} else if v, err := decodeObject(Clean(body[i:end])); err == nil {
			out = append(out, v)
		} else if inner := reconstructDepth(body[i+1:end-1], depth+1); len(inner) > 0 {
			out = append(out, inner)
		}
		i = end - 1
	}
	if len(out) > 0 {
		return out
	}
	for i := 0; i < len(body); i++ {
		if body[i] != '"' {
			continue
		}
		lit, end, ok := readQuoted(body, i, '"')
		if !ok {
			break
		}
		var str string
		if err := json.Unmarshal([]byte(lit), &str); err == nil && strings.TrimSpace(str) != "" {
			out = append(out, str)
		}
		i = end - 1
	}
	return out
}

func decodeArray(s string) ([]any, error) {
	var v []any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil, err
	}
	return v, nil
}

var (
	labeledDescRe     = regexp.MustCompile(`(?i)["']?description["']?\s*[:=]\s*["']?([^"'\n{}\[\]]{3,400})`)
	labeledFeedbackRe = regexp.MustCompile(`(?i)["']?feedback["']?\s*[:=]\s*["']?([^"'\n{}\[\]]{3,600})`)
	proseDescRe       = regexp.MustCompile(`(?i)\b(?:this|the) (?:meal|dish|plate|image) (?:is|shows|contains|appears to (?:be|contain)|looks like|consists of)\b[^.\n]{3,300}\.?`)
	proseFeedbackRe   = regexp.MustCompile(`(?i)[^.\n]{0,200}\b(?:recommend|consider|should|balanced|healthy|nutritious|good source)\b[^.\n]{0,200}\.?`)
)

// fragments pulls description-like and feedback-like text out of free prose.
func fragments(s string) map[string]any {
	out := map[string]any{}
	if m := labeledDescRe.FindStringSubmatch(s); m != nil {
		out["description"] = strings.TrimSpace(strings.TrimRight(m[1], ", "))
	} else if m := proseDescRe.FindString(s); m != "" {
		out["description"] = strings.TrimSpace(m)
	}
	if m := labeledFeedbackRe.FindStringSubmatch(s); m != nil {
		out["feedback"] = strings.TrimSpace(strings.TrimRight(m[1], ", "))
	} else if m := proseFeedbackRe.FindString(s); m != "" {
		fb := strings.TrimSpace(m)
		if d, _ := out["description"].(string); fb != d {
			out["feedback"] = fb
		}
	}
	for k, v := range out {
		if str, _ := v.(string); str == "" {
			delete(out, k)
		}
	}
	return out
}
