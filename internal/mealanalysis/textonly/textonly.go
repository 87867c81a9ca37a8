// Package textonly analyzes a meal from a plain-text description (OCR output
// or a canned substitute) using a nutrient lookup service instead of a
// vision model.
package textonly

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/yungbote/mealsense-backend/internal/domain/meal"
	"github.com/yungbote/mealsense-backend/internal/mealanalysis/normalize"
	"github.com/yungbote/mealsense-backend/internal/platform/ctxutil"
	"github.com/yungbote/mealsense-backend/internal/platform/logger"
	"github.com/yungbote/mealsense-backend/internal/platform/nutritionix"
)

type Result struct {
	Success  bool
	Reason   string
	Category meal.ErrorCategory
	Items    []string
	Document meal.Document
}

type Analyzer struct {
	log    *logger.Logger
	lookup nutritionix.Client
}

func New(log *logger.Logger, lookup nutritionix.Client) *Analyzer {
	if log == nil {
		log = logger.NewNop()
	}
	return &Analyzer{log: log.With("service", "textonly.Analyzer"), lookup: lookup}
}

var (
	splitRe   = regexp.MustCompile(`(?i)[,\n\r]+|\band\b`)
	numericRe = regexp.MustCompile(`^[\d\s.,/%-]+$`)
)

// ExtractFoodItems splits text on commas, newlines and the word "and",
// drops numeric and very short tokens and removes duplicates.
func ExtractFoodItems(text string) []string {
	seen := map[string]bool{}
	var out []string
	for _, tok := range splitRe.Split(text, -1) {
		tok = strings.Trim(strings.Join(strings.Fields(tok), " "), " .;:-")
		if len(tok) < 3 || numericRe.MatchString(tok) {
			continue
		}
		key := strings.ToLower(tok)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, tok)
	}
	return out
}

func (a *Analyzer) Analyze(ctx context.Context, text string, goals, prefs []string) Result {
	ctx = ctxutil.Default(ctx)
	log := a.log.With("request_id", ctxutil.RequestID(ctx))

	items := ExtractFoodItems(text)
	if len(items) == 0 {
		return Result{Reason: "no food items found in text", Category: meal.ErrOCRLowConfidence}
	}
	if a.lookup == nil {
		return Result{Items: items, Reason: "nutrient lookup not configured", Category: meal.ErrNutrientLookupFailed}
	}

	foods, err := a.lookup.Lookup(ctx, strings.Join(items, ", "))
	if err != nil {
		log.Warn("nutrient lookup failed", "error", err, "items", len(items))
		return Result{Items: items, Reason: fmt.Sprintf("nutrient lookup failed: %v", err), Category: meal.ErrNutrientLookupFailed}
	}
	if len(foods) == 0 {
		return Result{Items: items, Reason: "nutrient lookup matched no foods", Category: meal.ErrNutrientLookupFailed}
	}

	tot := nutritionix.Sum(foods)
	names := make([]string, 0, len(foods))
	for _, f := range foods {
		if n := strings.TrimSpace(f.Name); n != "" {
			names = append(names, n)
		}
	}
	if len(names) == 0 {
		names = items
	}

	feedback, suggestions, specific, overall := assess(tot, names, goals, prefs)
	log.Debug("text-only analysis done", "foods", len(foods), "calories", tot.Calories)

	return Result{
		Success:  true,
		Items:    items,
		Document: buildDocument(tot, names, feedback, suggestions, specific, overall),
	}
}

type goalCheck struct {
	match      []string
	pass       func(nutritionix.Totals) bool
	good       string
	bad        string
	suggestion string
}

var goalChecks = []goalCheck{
	{
		match:      []string{"weight", "lose", "loss", "calorie"},
		pass:       func(t nutritionix.Totals) bool { return t.Calories <= 600 },
		good:       "At about %.0f kcal this meal fits comfortably in a weight-loss plan",
		bad:        "At about %.0f kcal this meal is on the heavy side for a weight-loss plan",
		suggestion: "Swap a starchy side for non-starchy vegetables to cut calories.",
	},
	{
		match:      []string{"muscle", "gain", "protein", "strength"},
		pass:       func(t nutritionix.Totals) bool { return t.Protein >= 25 },
		good:       "With %.0fg of protein this meal supports muscle building",
		bad:        "With only %.0fg of protein this meal is light for muscle building",
		suggestion: "Add a lean protein such as chicken, fish, tofu or Greek yogurt.",
	},
	{
		match:      []string{"heart", "pressure", "sodium", "cholesterol"},
		pass:       func(t nutritionix.Totals) bool { return t.Sodium <= 600 },
		good:       "Sodium is moderate at about %.0fmg, which is good for heart health",
		bad:        "Sodium is high at about %.0fmg for a heart-healthy diet",
		suggestion: "Choose lower-sodium sauces and season with herbs instead of salt.",
	},
	{
		match:      []string{"sugar", "diabet", "glucose", "insulin"},
		pass:       func(t nutritionix.Totals) bool { return t.Sugar <= 15 },
		good:       "Sugar is low at %.0fg, which helps keep blood sugar steady",
		bad:        "Sugar is high at %.0fg, which may spike blood sugar",
		suggestion: "Pair carbohydrates with fiber and protein, and skip sugary drinks.",
	},
}

func checkValue(i int, t nutritionix.Totals) float64 {
	switch i {
	case 0:
		return t.Calories
	case 1:
		return t.Protein
	case 2:
		return t.Sodium
	default:
		return t.Sugar
	}
}

var meatWords = []string{"chicken", "beef", "pork", "bacon", "ham", "turkey", "lamb", "sausage", "fish", "salmon", "tuna", "shrimp", "steak", "burger", "hamburger", "cheeseburger"}
var animalWords = []string{"egg", "cheese", "milk", "yogurt", "butter", "honey", "cream"}

// plantQualifiers mark the following food word as a plant-based stand-in
// ("almond milk", "peanut butter").
var plantQualifiers = map[string]bool{
	"almond": true, "oat": true, "soy": true, "coconut": true, "cashew": true, "rice": true,
	"peanut": true, "vegan": true, "plant": true, "veggie": true, "tofu": true,
}

func assess(t nutritionix.Totals, names, goals, prefs []string) (feedback string, suggestions []string, specific map[string]any, overall float64) {
	var sentences []string
	specific = map[string]any{}
	overall = 70

	for _, g := range goals {
		lg := strings.ToLower(g)
		score := 70.0
		for i, c := range goalChecks {
			if !containsAny(lg, c.match) {
				continue
			}
			if c.pass(t) {
				sentences = append(sentences, fmt.Sprintf(c.good, checkValue(i, t)))
				score = 85
				overall += 10
			} else {
				sentences = append(sentences, fmt.Sprintf(c.bad, checkValue(i, t)))
				suggestions = append(suggestions, c.suggestion)
				score = 45
				overall -= 15
			}
			break
		}
		if key := normalize.GoalKey(g); key != "" {
			specific[key] = score
		}
	}

	joined := strings.ToLower(strings.Join(names, " "))
	for _, p := range prefs {
		lp := strings.ToLower(p)
		if !strings.Contains(lp, "vegetarian") && !strings.Contains(lp, "vegan") {
			continue
		}
		words := meatWords
		if strings.Contains(lp, "vegan") {
			words = append(append([]string(nil), meatWords...), animalWords...)
		}
		if hit := firstFoodWord(joined, words); hit != "" {
			sentences = append(sentences, fmt.Sprintf("This meal appears to contain %s, which may not fit a %s diet", hit, lp))
			suggestions = append(suggestions, "Replace "+hit+" with a plant-based protein like beans, lentils or tofu.")
			overall -= 10
		}
	}

	if len(sentences) == 0 {
		sentences = append(sentences, fmt.Sprintf("This meal provides about %.0f kcal with %.0fg protein, %.0fg carbohydrates and %.0fg fat",
			t.Calories, t.Protein, t.Carbs, t.Fat))
	}
	if len(suggestions) == 0 {
		suggestions = []string{
			"Keep portions balanced with half the plate vegetables.",
			"Drink water with your meal instead of sugary beverages.",
		}
		if t.Fiber < 5 {
			suggestions = append(suggestions, "Add whole grains, legumes or vegetables for more fiber.")
		}
	}
	feedback = strings.Join(sentences, ". ") + "."
	overall = max(0, min(100, overall))
	return feedback, suggestions, specific, overall
}

func buildDocument(t nutritionix.Totals, names []string, feedback string, suggestions []string, specific map[string]any, overall float64) meal.Document {
	nutrient := func(name string, v float64, unit string, highlight bool) map[string]any {
		return map[string]any{"name": name, "value": fmt.Sprintf("%.1f", v), "unit": unit, "isHighlight": highlight}
	}
	ingredients := make([]any, 0, len(names))
	for _, n := range names {
		ingredients = append(ingredients, map[string]any{"name": n, "category": "food", "confidence": 0.6})
	}
	sugg := make([]any, 0, len(suggestions))
	for _, s := range suggestions {
		sugg = append(sugg, s)
	}
	return meal.Document{
		"description": "Meal identified from text: " + strings.Join(names, ", ") + ".",
		"nutrients": []any{
			nutrient("calories", t.Calories, "kcal", true),
			nutrient("protein", t.Protein, "g", true),
			nutrient("carbs", t.Carbs, "g", false),
			nutrient("fat", t.Fat, "g", false),
			nutrient("fiber", t.Fiber, "g", false),
			nutrient("sugar", t.Sugar, "g", false),
			nutrient("sodium", t.Sodium, "mg", false),
		},
		"feedback":            feedback,
		"suggestions":         sugg,
		"detailedIngredients": ingredients,
		"goalScore":           map[string]any{"overall": overall, "specific": specific},
	}
}

// containsAny reports whether s contains any of subs as a substring. Goal
// keywords are stems ("diabet"), so substring matching is intended here.
func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// firstFoodWord returns the first of words that appears in text as a whole
// word, allowing a plural "s" or "es". "ham" does not match "graham" and
// "egg" does not match "eggplant".
func firstFoodWord(text string, words []string) string {
	toks := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool { return !unicode.IsLetter(r) })
	for _, w := range words {
		for i, tok := range toks {
			if tok != w && tok != w+"s" && tok != w+"es" {
				continue
			}
			if i > 0 && plantQualifiers[toks[i-1]] {
				continue
			}
			return w
		}
	}
	return ""
}
