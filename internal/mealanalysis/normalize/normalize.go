// Package normalize coerces a loosely structured model answer into a
// complete AnalysisResult. Each field is handled on its own so a bad value in
// one never prevents the others from being kept.
package normalize

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/yungbote/mealsense-backend/internal/domain/meal"
	"github.com/yungbote/mealsense-backend/internal/mealanalysis/cannedtext"
)

// RequiredKeys must be present in a model answer for it to count as complete.
var RequiredKeys = []string{"description", "nutrients", "feedback", "suggestions", "goalScore"}

// Normalize is total: any document, including nil, yields a result that
// passes Validate. Metadata other than the flags is left for the caller.
func Normalize(doc meal.Document, goals []string) (meal.AnalysisResult, meal.NormalizationFlags) {
	var (
		res   meal.AnalysisResult
		flags meal.NormalizationFlags
	)
	copyText := cannedtext.Get()

	if s, ok := toString(doc["description"]); ok {
		res.Description = s
	} else {
		res.Description = copyText.Defaults.Description
		flags.DescriptionWasDefault = true
	}

	res.Nutrients = normalizeNutrients(doc["nutrients"], &flags)
	res.Feedback = normalizeFeedback(doc["feedback"], copyText.Defaults.Feedback, &flags)
	res.Suggestions = normalizeSuggestions(doc["suggestions"], copyText.Defaults.Suggestions, &flags)
	res.GoalScore = normalizeGoalScore(doc["goalScore"], goals, &flags)
	res.DetailedIngredients = normalizeIngredients(doc["detailedIngredients"], &flags)

	res.Metadata.NormalizationFlags = flags
	return res, flags
}

func normalizeNutrients(v any, flags *meal.NormalizationFlags) []meal.Nutrient {
	var out []meal.Nutrient
	switch t := v.(type) {
	case []any:
		for _, item := range t {
			m, ok := item.(map[string]any)
			if !ok {
				continue
			}
			name, ok := toString(m["name"])
			if !ok {
				continue
			}
			n, converted := nutrientFrom(name, m["value"], m)
			if converted {
				flags.NutrientsWereConverted = true
			}
			out = appendUnique(out, n)
		}
		if len(out) == 0 {
			flags.NutrientsWereDefault = true
		}
	case map[string]any:
		// legacy flat shape: {"calories": 450, "protein": "20g"}
		flags.NutrientsWereConverted = true
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if strings.TrimSpace(k) == "" {
				continue
			}
			val := t[k]
			var attrs map[string]any
			if m, ok := val.(map[string]any); ok {
				attrs = m
				val = m["value"]
			}
			n, _ := nutrientFrom(k, val, attrs)
			out = appendUnique(out, n)
		}
		if len(out) == 0 {
			flags.NutrientsWereDefault = true
		}
	default:
		flags.NutrientsWereDefault = true
	}

	have := map[string]bool{}
	for _, n := range out {
		have[n.Name] = true
	}
	missing := false
	for _, core := range meal.CoreNutrients {
		if !have[core] {
			out = append(out, meal.Nutrient{Name: core, Value: "0", Unit: defaultUnit(core)})
			missing = true
		}
	}
	if missing && !flags.NutrientsWereDefault {
		flags.NutrientsWereCompleted = true
	}
	return out
}

// nutrientFrom builds one nutrient. converted reports whether the value was
// not already a canonical numeric string.
func nutrientFrom(name string, value any, attrs map[string]any) (meal.Nutrient, bool) {
	n := meal.Nutrient{Name: canonicalName(name)}
	f, _ := toNumber(value)
	n.Value = formatNumber(nonNegative(f))
	raw, isString := value.(string)
	converted := !isString || raw != n.Value

	if u, ok := toString(attrs["unit"]); ok {
		n.Unit = u
	} else {
		n.Unit = defaultUnit(n.Name)
	}
	n.IsHighlight = toBool(attrs["isHighlight"])
	if p, ok := toNumber(attrs["percentOfDailyValue"]); ok {
		p = nonNegative(p)
		n.PercentOfDailyValue = &p
	}
	return n, converted
}

func appendUnique(list []meal.Nutrient, n meal.Nutrient) []meal.Nutrient {
	for _, existing := range list {
		if existing.Name == n.Name {
			return list
		}
	}
	return append(list, n)
}

func normalizeFeedback(v any, def string, flags *meal.NormalizationFlags) string {
	switch t := v.(type) {
	case string:
		if s := strings.TrimSpace(t); s != "" {
			return s
		}
	case []any:
		parts := make([]string, 0, len(t))
		for _, item := range t {
			if s, ok := toString(item); ok {
				parts = append(parts, strings.TrimRight(s, ". "))
			}
		}
		if joined := strings.Join(parts, ". "); joined != "" {
			flags.FeedbackWasJoined = true
			return joined + "."
		}
	}
	flags.FeedbackWasDefault = true
	return def
}

func normalizeSuggestions(v any, def []string, flags *meal.NormalizationFlags) []string {
	switch t := v.(type) {
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			if s, ok := toString(item); ok {
				out = append(out, s)
			}
		}
		if len(out) > 0 {
			return out
		}
	case []string:
		out := make([]string, 0, len(t))
		for _, s := range t {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
		if len(out) > 0 {
			return out
		}
	case string:
		if s := strings.TrimSpace(t); s != "" {
			flags.SuggestionsWereWrapped = true
			return []string{s}
		}
	}
	flags.SuggestionsWereDefault = true
	return append([]string(nil), def...)
}

func normalizeGoalScore(v any, goals []string, flags *meal.NormalizationFlags) meal.GoalScore {
	gs := meal.GoalScore{Specific: map[string]float64{}}
	switch t := v.(type) {
	case map[string]any:
		if f, ok := toNumber(t["overall"]); ok {
			gs.Overall = clamp(f, 0, 100)
		} else {
			flags.GoalScoreWasDefault = true
		}
		if spec, ok := t["specific"].(map[string]any); ok {
			for k, raw := range spec {
				key := GoalKey(k)
				if key == "" {
					continue
				}
				if f, ok := toNumber(raw); ok {
					gs.Specific[key] = clamp(f, 0, 100)
				}
			}
		}
	case nil:
		flags.GoalScoreWasDefault = true
	default:
		if f, ok := toNumber(t); ok {
			gs.Overall = clamp(f, 0, 100)
			flags.GoalScoreWasConverted = true
		} else {
			flags.GoalScoreWasDefault = true
		}
	}
	if len(gs.Specific) == 0 && len(goals) > 0 {
		for _, g := range goals {
			if key := GoalKey(g); key != "" {
				gs.Specific[key] = gs.Overall
			}
		}
		if len(gs.Specific) > 0 {
			flags.GoalScoreSpecificFilled = true
		}
	}
	return gs
}

func normalizeIngredients(v any, flags *meal.NormalizationFlags) []meal.Ingredient {
	list, ok := v.([]any)
	if !ok {
		flags.IngredientsWereDefault = true
		return []meal.Ingredient{}
	}
	out := make([]meal.Ingredient, 0, len(list))
	for _, item := range list {
		var ing meal.Ingredient
		switch t := item.(type) {
		case map[string]any:
			name, ok := toString(t["name"])
			if !ok {
				continue
			}
			ing.Name = name
			ing.Category, _ = toString(t["category"])
			if c, ok := toNumber(t["confidence"]); ok {
				if c > 1 {
					c = c / 100
				}
				ing.Confidence = clamp(c, 0, 1)
			}
		case string:
			name := strings.TrimSpace(t)
			if name == "" {
				continue
			}
			ing.Name = name
		default:
			continue
		}
		if ing.Category == "" {
			ing.Category = "unknown"
		}
		out = append(out, ing)
	}
	return out
}

// ToDocument renders a result back into the untyped shape Normalize accepts.
func ToDocument(r meal.AnalysisResult) meal.Document {
	nutrients := make([]any, 0, len(r.Nutrients))
	for _, n := range r.Nutrients {
		m := map[string]any{
			"name":        n.Name,
			"value":       n.Value,
			"unit":        n.Unit,
			"isHighlight": n.IsHighlight,
		}
		if n.PercentOfDailyValue != nil {
			m["percentOfDailyValue"] = *n.PercentOfDailyValue
		}
		nutrients = append(nutrients, m)
	}
	suggestions := make([]any, 0, len(r.Suggestions))
	for _, s := range r.Suggestions {
		suggestions = append(suggestions, s)
	}
	ingredients := make([]any, 0, len(r.DetailedIngredients))
	for _, ing := range r.DetailedIngredients {
		ingredients = append(ingredients, map[string]any{
			"name":       ing.Name,
			"category":   ing.Category,
			"confidence": ing.Confidence,
		})
	}
	specific := make(map[string]any, len(r.GoalScore.Specific))
	for k, v := range r.GoalScore.Specific {
		specific[k] = v
	}
	return meal.Document{
		"description":         r.Description,
		"nutrients":           nutrients,
		"feedback":            r.Feedback,
		"suggestions":         suggestions,
		"detailedIngredients": ingredients,
		"goalScore": map[string]any{
			"overall":  r.GoalScore.Overall,
			"specific": specific,
		},
	}
}

// MissingRequired lists the required keys that are absent or empty in doc.
func MissingRequired(doc meal.Document) []string {
	var missing []string
	for _, k := range RequiredKeys {
		if isEmpty(doc[k]) {
			missing = append(missing, k)
		}
	}
	return missing
}

func isEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	case []any:
		return len(t) == 0
	case map[string]any:
		return len(t) == 0
	}
	return false
}

// Validate checks the invariants every returned result must satisfy.
func Validate(r meal.AnalysisResult) error {
	var errs []error
	if strings.TrimSpace(r.Description) == "" {
		errs = append(errs, errors.New("description is empty"))
	}
	if strings.TrimSpace(r.Feedback) == "" {
		errs = append(errs, errors.New("feedback is empty"))
	}
	if len(r.Suggestions) == 0 {
		errs = append(errs, errors.New("suggestions is empty"))
	}
	have := map[string]bool{}
	for _, n := range r.Nutrients {
		have[n.Name] = true
		f, ok := toNumber(n.Value)
		if !ok || f < 0 {
			errs = append(errs, fmt.Errorf("nutrient %q has non-numeric or negative value %q", n.Name, n.Value))
		}
	}
	for _, core := range meal.CoreNutrients {
		if !have[core] {
			errs = append(errs, fmt.Errorf("core nutrient %q missing", core))
		}
	}
	if r.GoalScore.Overall < 0 || r.GoalScore.Overall > 100 {
		errs = append(errs, fmt.Errorf("goalScore.overall %v out of range", r.GoalScore.Overall))
	}
	if r.GoalScore.Specific == nil {
		errs = append(errs, errors.New("goalScore.specific is nil"))
	}
	for k, v := range r.GoalScore.Specific {
		if v < 0 || v > 100 {
			errs = append(errs, fmt.Errorf("goalScore.specific[%s] %v out of range", k, v))
		}
	}
	if r.DetailedIngredients == nil {
		errs = append(errs, errors.New("detailedIngredients is nil"))
	}
	for _, ing := range r.DetailedIngredients {
		if ing.Confidence < 0 || ing.Confidence > 1 {
			errs = append(errs, fmt.Errorf("ingredient %q confidence %v out of range", ing.Name, ing.Confidence))
		}
	}
	return errors.Join(errs...)
}
