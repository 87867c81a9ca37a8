package normalize

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

var numberRe = regexp.MustCompile(`-?\d+(?:\.\d+)?`)

// toNumber coerces JSON-ish scalars to a float. Strings have everything but
// the first number stripped ("about 1,200 kcal" is 1200).
func toNumber(v any) (float64, bool) {
	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case float32:
		f = float64(t)
	case int:
		f = float64(t)
	case int64:
		f = float64(t)
	case int32:
		f = float64(t)
	case string:
		s := strings.ReplaceAll(t, ",", "")
		m := numberRe.FindString(s)
		if m == "" {
			return 0, false
		}
		p, err := strconv.ParseFloat(m, 64)
		if err != nil {
			return 0, false
		}
		f = p
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func nonNegative(f float64) float64 {
	if f < 0 {
		return 0
	}
	return f
}

func clamp(f, lo, hi float64) float64 {
	if f < lo {
		return lo
	}
	if f > hi {
		return hi
	}
	return f
}

func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func toBool(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		b, _ := strconv.ParseBool(strings.TrimSpace(t))
		return b
	case float64:
		return t != 0
	}
	return false
}

func toString(v any) (string, bool) {
	s, ok := v.(string)
	if !ok {
		return "", false
	}
	s = strings.TrimSpace(s)
	return s, s != ""
}

// GoalKey is the normalized form of a health goal: lower-cased with all
// whitespace removed.
func GoalKey(goal string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(goal) {
		if !unicode.IsSpace(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

var coreAliases = map[string]string{
	"calories":           "calories",
	"calorie":            "calories",
	"energy":             "calories",
	"kcal":               "calories",
	"protein":            "protein",
	"proteins":           "protein",
	"carbs":              "carbs",
	"carb":               "carbs",
	"carbohydrates":      "carbs",
	"carbohydrate":       "carbs",
	"totalcarbohydrates": "carbs",
	"fat":                "fat",
	"fats":               "fat",
	"totalfat":           "fat",
}

// canonicalName maps core nutrient aliases to their canonical name and
// leaves every other name as written.
func canonicalName(name string) string {
	name = strings.TrimSpace(name)
	if core, ok := coreAliases[GoalKey(name)]; ok {
		return core
	}
	return name
}

func defaultUnit(name string) string {
	if name == "calories" {
		return "kcal"
	}
	return "g"
}
