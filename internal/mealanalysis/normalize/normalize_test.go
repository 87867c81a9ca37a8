package normalize

import (
	"encoding/json"
	"reflect"
	"testing"

	"github.com/yungbote/mealsense-backend/internal/domain/meal"
)

func mustDoc(t *testing.T, raw string) meal.Document {
	t.Helper()
	var doc meal.Document
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		t.Fatalf("unmarshal %q: %v", raw, err)
	}
	return doc
}

func nutrientByName(res meal.AnalysisResult, name string) (meal.Nutrient, bool) {
	for _, n := range res.Nutrients {
		if n.Name == name {
			return n, true
		}
	}
	return meal.Nutrient{}, false
}

func TestNormalizeCompletesCoreNutrientsAndDefaults(t *testing.T) {
	doc := mustDoc(t, `{"description":"Salad","nutrients":[{"name":"calories","value":"200","unit":"kcal","isHighlight":true}]}`)
	res, flags := Normalize(doc, nil)

	if res.Description != "Salad" {
		t.Fatalf("description: got=%q", res.Description)
	}
	cal, ok := nutrientByName(res, "calories")
	if !ok || cal.Value != "200" || cal.Unit != "kcal" || !cal.IsHighlight {
		t.Fatalf("calories: got=%+v", cal)
	}
	for _, core := range []string{"protein", "carbs", "fat"} {
		n, ok := nutrientByName(res, core)
		if !ok || n.Value != "0" || n.Unit != "g" {
			t.Fatalf("%s: got=%+v ok=%v", core, n, ok)
		}
	}
	if flags.NutrientsWereDefault {
		t.Fatalf("nutrientsWereDefault should be false")
	}
	if !flags.NutrientsWereCompleted {
		t.Fatalf("nutrientsWereCompleted should be true")
	}
	if !flags.SuggestionsWereDefault || !flags.FeedbackWasDefault {
		t.Fatalf("expected default feedback and suggestions, flags=%+v", flags)
	}
	if len(res.Suggestions) < 2 || len(res.Suggestions) > 3 {
		t.Fatalf("default suggestions: got=%v", res.Suggestions)
	}
	if res.Metadata.SuggestionsWereDefault != true {
		t.Fatalf("flags should be mirrored into metadata")
	}
}

func TestNormalizeTotality(t *testing.T) {
	goals := []string{"Weight Loss", "heart health"}
	docs := []meal.Document{
		nil,
		{},
		{"nutrients": "lots"},
		{"nutrients": []any{"calories", 5, nil}},
		{"nutrients": map[string]any{}},
		{"suggestions": []any{"", 3}},
		{"goalScore": "n/a"},
		{"goalScore": map[string]any{"overall": -5, "specific": map[string]any{"x": 400}}},
		{"detailedIngredients": "rice"},
		{"feedback": []any{}},
		{"description": 42},
	}
	for i, doc := range docs {
		res, _ := Normalize(doc, goals)
		if err := Validate(res); err != nil {
			t.Fatalf("case %d: invalid result: %v", i, err)
		}
		for _, core := range meal.CoreNutrients {
			if _, ok := nutrientByName(res, core); !ok {
				t.Fatalf("case %d: missing %s", i, core)
			}
		}
		if len(res.Suggestions) == 0 {
			t.Fatalf("case %d: empty suggestions", i)
		}
	}
}

func TestNormalizeFillsSpecificFromGoals(t *testing.T) {
	res, flags := Normalize(meal.Document{"goalScore": 72.0}, []string{"Weight Loss", " Muscle  Gain "})
	want := map[string]float64{"weightloss": 72, "musclegain": 72}
	if !reflect.DeepEqual(res.GoalScore.Specific, want) {
		t.Fatalf("specific: want=%v got=%v", want, res.GoalScore.Specific)
	}
	if !flags.GoalScoreWasConverted || !flags.GoalScoreSpecificFilled {
		t.Fatalf("flags: %+v", flags)
	}
}

func TestNormalizeGoalScoreObjectWithoutSpecific(t *testing.T) {
	res, flags := Normalize(meal.Document{"goalScore": map[string]any{"overall": "80"}}, nil)
	if res.GoalScore.Overall != 80 {
		t.Fatalf("overall: got=%v", res.GoalScore.Overall)
	}
	if res.GoalScore.Specific == nil || len(res.GoalScore.Specific) != 0 {
		t.Fatalf("specific: want empty map got=%v", res.GoalScore.Specific)
	}
	if flags.GoalScoreWasDefault || flags.GoalScoreSpecificFilled {
		t.Fatalf("flags: %+v", flags)
	}
}

func TestNormalizeLegacyNutrientMap(t *testing.T) {
	doc := mustDoc(t, `{"nutrients":{"Calories":"450 kcal","protein":"20g","Carbohydrates":35.5,"fat":{"value":"12","unit":"g"},"sodium":"1,200mg"}}`)
	res, flags := Normalize(doc, nil)
	if !flags.NutrientsWereConverted || flags.NutrientsWereDefault || flags.NutrientsWereCompleted {
		t.Fatalf("flags: %+v", flags)
	}
	checks := map[string]string{"calories": "450", "protein": "20", "carbs": "35.5", "fat": "12", "sodium": "1200"}
	for name, want := range checks {
		n, ok := nutrientByName(res, name)
		if !ok || n.Value != want {
			t.Fatalf("%s: want=%s got=%+v", name, want, n)
		}
	}
	if n, _ := nutrientByName(res, "calories"); n.Unit != "kcal" {
		t.Fatalf("calories unit: got=%q", n.Unit)
	}
}

func TestNormalizeCoercesNutrientValues(t *testing.T) {
	doc := meal.Document{"nutrients": []any{
		map[string]any{"name": "calories", "value": 310.0},
		map[string]any{"name": "protein", "value": "-4"},
		map[string]any{"name": "fiber", "value": "trace", "percentOfDailyValue": "12%"},
	}}
	res, flags := Normalize(doc, nil)
	if !flags.NutrientsWereConverted {
		t.Fatalf("expected converted flag")
	}
	if n, _ := nutrientByName(res, "calories"); n.Value != "310" {
		t.Fatalf("calories: got=%+v", n)
	}
	if n, _ := nutrientByName(res, "protein"); n.Value != "0" {
		t.Fatalf("negative protein should coerce to 0, got=%+v", n)
	}
	fiber, _ := nutrientByName(res, "fiber")
	if fiber.Value != "0" || fiber.PercentOfDailyValue == nil || *fiber.PercentOfDailyValue != 12 {
		t.Fatalf("fiber: got=%+v", fiber)
	}
}

func TestNormalizeFeedbackAndSuggestionShapes(t *testing.T) {
	res, flags := Normalize(meal.Document{
		"feedback":    []any{"Good protein.", "Low fiber"},
		"suggestions": "Add a side salad",
	}, nil)
	if res.Feedback != "Good protein. Low fiber." {
		t.Fatalf("feedback: got=%q", res.Feedback)
	}
	if !reflect.DeepEqual(res.Suggestions, []string{"Add a side salad"}) {
		t.Fatalf("suggestions: got=%v", res.Suggestions)
	}
	if !flags.FeedbackWasJoined || !flags.SuggestionsWereWrapped {
		t.Fatalf("flags: %+v", flags)
	}
}

func TestNormalizeIngredients(t *testing.T) {
	res, flags := Normalize(meal.Document{"detailedIngredients": []any{
		map[string]any{"name": "rice", "category": "grain", "confidence": 85.0},
		map[string]any{"category": "nameless"},
		"broccoli",
	}}, nil)
	if flags.IngredientsWereDefault {
		t.Fatalf("ingredients were present")
	}
	want := []meal.Ingredient{
		{Name: "rice", Category: "grain", Confidence: 0.85},
		{Name: "broccoli", Category: "unknown"},
	}
	if !reflect.DeepEqual(res.DetailedIngredients, want) {
		t.Fatalf("ingredients: want=%+v got=%+v", want, res.DetailedIngredients)
	}
}

func TestNormalizeIsIdempotent(t *testing.T) {
	goals := []string{"Weight Loss"}
	inputs := []string{
		`{"description":"Salad","nutrients":[{"name":"calories","value":"200","unit":"kcal","isHighlight":true}]}`,
		`{"nutrients":{"calories":"450 kcal","fat":7},"goalScore":55,"feedback":["a","b."]}`,
		`{"description":"Bowl","suggestions":"eat slower","detailedIngredients":[{"name":"egg","confidence":90}],"goalScore":{"overall":101}}`,
		`{}`,
	}
	for _, raw := range inputs {
		first, _ := Normalize(mustDoc(t, raw), goals)
		second, _ := Normalize(ToDocument(first), goals)
		first.Metadata, second.Metadata = meal.AnalysisMetadata{}, meal.AnalysisMetadata{}
		if !reflect.DeepEqual(first, second) {
			t.Fatalf("not idempotent for %s:\nfirst=%+v\nsecond=%+v", raw, first, second)
		}
	}
}

func TestMissingRequired(t *testing.T) {
	got := MissingRequired(meal.Document{"description": "Oatmeal", "feedback": "  ", "nutrients": []any{}})
	want := []string{"nutrients", "feedback", "suggestions", "goalScore"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("missing: want=%v got=%v", want, got)
	}
}

func TestGoalKey(t *testing.T) {
	if got := GoalKey(" Heart\tHealth "); got != "hearthealth" {
		t.Fatalf("GoalKey: got=%q", got)
	}
}
