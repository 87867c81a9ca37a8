package textonly

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/yungbote/mealsense-backend/internal/domain/meal"
	"github.com/yungbote/mealsense-backend/internal/mealanalysis/normalize"
	"github.com/yungbote/mealsense-backend/internal/platform/nutritionix"
)

type fakeLookup struct {
	foods []nutritionix.Food
	err   error
	query string
}

func (f *fakeLookup) Lookup(_ context.Context, q string) ([]nutritionix.Food, error) {
	f.query = q
	return f.foods, f.err
}

func TestExtractFoodItems(t *testing.T) {
	got := ExtractFoodItems("Grilled chicken, rice and broccoli\n250\nRice, an, brown bread and  butter")
	want := []string{"Grilled chicken", "rice", "broccoli", "brown bread", "butter"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("items: want=%v got=%v", want, got)
	}
}

func TestExtractFoodItemsKeepsWordsContainingAnd(t *testing.T) {
	got := ExtractFoodItems("candied almonds, sandwich")
	want := []string{"candied almonds", "sandwich"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("items: want=%v got=%v", want, got)
	}
}

func TestAnalyzeBuildsDocumentFromLookup(t *testing.T) {
	lookup := &fakeLookup{foods: []nutritionix.Food{
		{Name: "grilled chicken", Calories: 280, Protein: 40, Fat: 9, Sodium: 400},
		{Name: "rice", Calories: 200, Protein: 4, Carbs: 45, Sugar: 1},
	}}
	a := New(nil, lookup)
	res := a.Analyze(context.Background(), "Grilled chicken, rice", []string{"Weight Loss", "Muscle Gain"}, nil)
	if !res.Success {
		t.Fatalf("expected success, reason=%s", res.Reason)
	}
	if lookup.query != "Grilled chicken, rice" {
		t.Fatalf("query: got=%q", lookup.query)
	}

	out, flags := normalize.Normalize(res.Document, []string{"Weight Loss", "Muscle Gain"})
	if err := normalize.Validate(out); err != nil {
		t.Fatalf("invalid result: %v", err)
	}
	if flags.NutrientsWereDefault || flags.FeedbackWasDefault || flags.SuggestionsWereDefault {
		t.Fatalf("text-only document should be complete, flags=%+v", flags)
	}
	for _, n := range out.Nutrients {
		if n.Name == "calories" && n.Value != "480" {
			t.Fatalf("calories: got=%s", n.Value)
		}
	}
	if !strings.Contains(out.Feedback, "weight-loss") || !strings.Contains(out.Feedback, "muscle") {
		t.Fatalf("feedback should address both goals: %q", out.Feedback)
	}
	if out.GoalScore.Specific["weightloss"] != 85 || out.GoalScore.Specific["musclegain"] != 85 {
		t.Fatalf("specific: %v", out.GoalScore.Specific)
	}
}

func TestAnalyzeFlagsFailedGoalsAndPreferences(t *testing.T) {
	lookup := &fakeLookup{foods: []nutritionix.Food{{Name: "bacon cheeseburger", Calories: 950, Protein: 45, Sodium: 1700}}}
	res := New(nil, lookup).Analyze(context.Background(), "bacon cheeseburger", []string{"lose weight", "heart health"}, []string{"Vegetarian"})
	if !res.Success {
		t.Fatalf("expected success")
	}
	out, _ := normalize.Normalize(res.Document, nil)
	if !strings.Contains(out.Feedback, "heavy side") || !strings.Contains(out.Feedback, "bacon") {
		t.Fatalf("feedback: %q", out.Feedback)
	}
	if len(out.Suggestions) != 3 {
		t.Fatalf("suggestions: %v", out.Suggestions)
	}
	if out.GoalScore.Overall != 30 {
		t.Fatalf("overall: got=%v", out.GoalScore.Overall)
	}
}

func TestFirstFoodWordMatchesWholeWords(t *testing.T) {
	vegan := append(append([]string(nil), meatWords...), animalWords...)
	tests := []struct {
		text string
		want string
	}{
		{"graham crackers", ""},
		{"grilled eggplant", ""},
		{"butternut squash soup", ""},
		{"honeydew melon", ""},
		{"almond milk smoothie", ""},
		{"peanut butter toast", ""},
		{"ham sandwich", "ham"},
		{"scrambled eggs", "egg"},
		{"fish-and-chips", "fish"},
		{"Turkey Club", "turkey"},
		{"oat milk latte with whipped cream", "cream"},
	}
	for _, tt := range tests {
		if got := firstFoodWord(tt.text, vegan); got != tt.want {
			t.Errorf("firstFoodWord(%q): want=%q got=%q", tt.text, tt.want, got)
		}
	}
}

func TestAnalyzePlantDishesDoNotConflictWithVeganPreference(t *testing.T) {
	lookup := &fakeLookup{foods: []nutritionix.Food{
		{Name: "grilled eggplant", Calories: 120, Protein: 3, Fiber: 6},
		{Name: "graham crackers", Calories: 130, Protein: 2, Sugar: 8},
	}}
	res := New(nil, lookup).Analyze(context.Background(), "grilled eggplant, graham crackers", nil, []string{"Vegan"})
	if !res.Success {
		t.Fatalf("expected success, reason=%s", res.Reason)
	}
	out, _ := normalize.Normalize(res.Document, nil)
	if strings.Contains(out.Feedback, "may not fit") {
		t.Fatalf("plant dishes flagged: %q", out.Feedback)
	}
	if out.GoalScore.Overall != 70 {
		t.Fatalf("overall: got=%v", out.GoalScore.Overall)
	}

	lookup = &fakeLookup{foods: []nutritionix.Food{{Name: "ham sandwich", Calories: 350, Protein: 20}}}
	res = New(nil, lookup).Analyze(context.Background(), "ham sandwich", nil, []string{"Vegan"})
	out, _ = normalize.Normalize(res.Document, nil)
	if !strings.Contains(out.Feedback, "contain ham") || out.GoalScore.Overall != 60 {
		t.Fatalf("ham sandwich: feedback=%q overall=%v", out.Feedback, out.GoalScore.Overall)
	}
}

func TestAnalyzeFailures(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		lookup nutritionix.Client
		want   meal.ErrorCategory
	}{
		{"no items", "12, 4 and ok", &fakeLookup{}, meal.ErrOCRLowConfidence},
		{"lookup error", "apple pie", &fakeLookup{err: errors.New("down")}, meal.ErrNutrientLookupFailed},
		{"no matches", "apple pie", &fakeLookup{}, meal.ErrNutrientLookupFailed},
		{"no lookup", "apple pie", nil, meal.ErrNutrientLookupFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := New(nil, tt.lookup).Analyze(context.Background(), tt.text, nil, nil)
			if res.Success || res.Reason == "" || res.Category != tt.want {
				t.Fatalf("result: %+v", res)
			}
			if res.Document != nil {
				t.Fatalf("failed analysis must not carry a document")
			}
		})
	}
}
