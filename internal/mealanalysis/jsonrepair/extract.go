// Package jsonrepair recovers a JSON object from model output that may be
// wrapped in prose, fenced in markdown, truncated or otherwise malformed.
package jsonrepair

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

type Strategy string

const (
	StrategyNone         Strategy = ""
	StrategyDirect       Strategy = "direct"
	StrategyBalancedSpan Strategy = "balanced_span"
	StrategyCodeBlock    Strategy = "code_block"
	StrategyKeyValue     Strategy = "key_value"
	StrategyFragments    Strategy = "fragments"

	// StrategyTruncate labels the Attempt recorded when the input was cut
	// to MaxRepairInput before the repair strategies ran.
	StrategyTruncate Strategy = "truncate"
)

// MaxRepairInput bounds the text handed to every strategy after direct.
// The heuristic strategies scan with bounded-repeat patterns, so their cost
// grows with input length times pattern width.
const MaxRepairInput = 256 << 10

// Rank is the 1-based position of s in the strategy order, 0 for none.
func (s Strategy) Rank() int {
	for i, st := range order {
		if st.name == s {
			return i + 1
		}
	}
	return 0
}

// Reconstructed reports whether the object was rebuilt piecemeal rather than
// decoded from a contiguous JSON text.
func (s Strategy) Reconstructed() bool {
	return s == StrategyKeyValue || s == StrategyFragments
}

type Attempt struct {
	Strategy Strategy `json:"strategy"`
	Error    string   `json:"error,omitempty"`
}

type Extraction struct {
	Object   map[string]any
	Strategy Strategy
	Attempts []Attempt
}

func (e Extraction) OK() bool { return e.Object != nil }

// Error summarizes why every strategy failed.
func (e Extraction) Error() string {
	if e.OK() {
		return ""
	}
	parts := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		parts = append(parts, fmt.Sprintf("%s: %s", a.Strategy, a.Error))
	}
	return "no JSON object recovered (" + strings.Join(parts, "; ") + ")"
}

var errNoObject = errors.New("no object found")

type strategy struct {
	name Strategy
	run  func(string) (map[string]any, error)
}

var order = []strategy{
	{StrategyDirect, direct},
	{StrategyBalancedSpan, balancedSpan},
	{StrategyCodeBlock, codeBlock},
	{StrategyKeyValue, keyValue},
	{StrategyFragments, fragmentText},
}

// Extract runs the strategies in order and stops at the first that yields an
// object. It never panics; a failed extraction has a nil Object and one
// recorded Attempt per strategy, plus a truncate Attempt when the input was
// longer than MaxRepairInput.
func Extract(text string) (ext Extraction) {
	repairText := text
	for i, st := range order {
		if i == 1 && len(text) > MaxRepairInput {
			repairText = truncateUTF8(text, MaxRepairInput)
			ext.Attempts = append(ext.Attempts, Attempt{
				Strategy: StrategyTruncate,
				Error:    fmt.Sprintf("input truncated from %d to %d bytes", len(text), len(repairText)),
			})
		}
		in := text
		if i > 0 {
			in = repairText
		}
		obj, err := safeRun(st.run, in)
		if err == nil && obj != nil {
			ext.Attempts = append(ext.Attempts, Attempt{Strategy: st.name})
			ext.Object = obj
			ext.Strategy = st.name
			return ext
		}
		if err == nil {
			err = errNoObject
		}
		ext.Attempts = append(ext.Attempts, Attempt{Strategy: st.name, Error: err.Error()})
	}
	return ext
}

// truncateUTF8 cuts s to at most n bytes without splitting a rune.
func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func safeRun(fn func(string) (map[string]any, error), text string) (obj map[string]any, err error) {
	defer func() {
		if r := recover(); r != nil {
			obj, err = nil, fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(text)
}

func direct(text string) (map[string]any, error) {
	return decodeObject(strings.TrimSpace(text))
}

// balancedSpan looks only at text outside markdown fences; fenced content is
// the code block strategy's business.
func balancedSpan(text string) (map[string]any, error) {
	outside := fenceRe.ReplaceAllString(text, " ")
	var candidates []string
	if span, ok := longestBalancedObject(outside); ok {
		candidates = append(candidates, span)
	}
	if span, ok := outerBraces(outside); ok && (len(candidates) == 0 || span != candidates[0]) {
		candidates = append(candidates, span)
	}
	if len(candidates) == 0 {
		return nil, errNoObject
	}
	return decodeCandidates(candidates)
}

var (
	fenceRe     = regexp.MustCompile("(?s)```[A-Za-z]*[ \t]*\\r?\\n?(.*?)```")
	openFenceRe = regexp.MustCompile("(?s)```[A-Za-z]*[ \t]*\\r?\\n?(.*)$")
)

func codeBlock(text string) (map[string]any, error) {
	var bodies []string
	for _, m := range fenceRe.FindAllStringSubmatch(text, -1) {
		bodies = append(bodies, m[1])
	}
	if len(bodies) == 0 {
		// a truncated answer can lose its closing fence
		if m := openFenceRe.FindStringSubmatch(text); m != nil {
			bodies = append(bodies, m[1])
		}
	}
	if len(bodies) == 0 {
		return nil, errors.New("no fenced code block")
	}
	var candidates []string
	for _, body := range bodies {
		body = strings.TrimSpace(body)
		candidates = append(candidates, body)
		if span, ok := longestBalancedObject(body); ok && span != body {
			candidates = append(candidates, span)
		}
	}
	return decodeCandidates(candidates)
}

func keyValue(text string) (map[string]any, error) {
	obj := reconstruct(text)
	if len(obj) == 0 {
		return nil, errors.New("no key/value pairs found")
	}
	return obj, nil
}

func fragmentText(text string) (map[string]any, error) {
	obj := fragments(text)
	if len(obj) == 0 {
		return nil, errors.New("no description or feedback fragments found")
	}
	return obj, nil
}

// decodeCandidates tries each candidate verbatim, then after cleaning.
func decodeCandidates(candidates []string) (map[string]any, error) {
	var firstErr error
	for _, c := range candidates {
		obj, err := decodeObject(c)
		if err == nil {
			return obj, nil
		}
		if firstErr == nil {
			firstErr = err
		}
		if obj, err := decodeObject(Clean(c)); err == nil {
			return obj, nil
		}
	}
	return nil, firstErr
}

func decodeObject(s string) (map[string]any, error) {
	if s == "" {
		return nil, errors.New("empty input")
	}
	dec := json.NewDecoder(bytes.NewReader([]byte(s)))
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, errors.New("trailing data after object")
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("top-level value is %T, not an object", v)
	}
	return obj, nil
}
