// Package fallback builds the synthetic results returned when the pipeline
// cannot produce a genuine analysis. There are three tiers: partial (some
// structured data survived), empty (nothing did), and emergency (the
// pipeline itself failed).
package fallback

import (
	"time"

	"github.com/yungbote/mealsense-backend/internal/domain/meal"
	"github.com/yungbote/mealsense-backend/internal/mealanalysis/cannedtext"
	"github.com/yungbote/mealsense-backend/internal/mealanalysis/normalize"
)

const (
	PartialConfidence = 0.5
	EmptyConfidence   = 0.1
)

// Partial salvages every usable field of doc and fills the rest with the
// normalizer's defaults.
func Partial(doc meal.Document, goals []string, errMsg string) meal.AnalysisResult {
	res, _ := normalize.Normalize(doc, goals)
	res.Metadata.IsPartialResult = true
	res.Metadata.FallbackTier = meal.TierPartial
	res.Metadata.Confidence = PartialConfidence
	res.Metadata.Error = errMsg
	res.Metadata.GeneratedAt = time.Now().UTC()
	return res
}

// Empty is a complete result built only from constants.
func Empty(goals []string, errMsg string) meal.AnalysisResult {
	copyText := cannedtext.Get()
	specific := map[string]float64{}
	for _, g := range goals {
		if key := normalize.GoalKey(g); key != "" {
			specific[key] = 0
		}
	}
	return meal.AnalysisResult{
		Description:         copyText.Empty.Description,
		Nutrients:           zeroNutrients(),
		Feedback:            copyText.Empty.Feedback,
		Suggestions:         append([]string(nil), copyText.Empty.Suggestions...),
		DetailedIngredients: []meal.Ingredient{},
		GoalScore:           meal.GoalScore{Overall: 0, Specific: specific},
		Metadata: meal.AnalysisMetadata{
			Confidence:   EmptyConfidence,
			Error:        errMsg,
			Fallback:     true,
			FallbackTier: meal.TierEmpty,
			GeneratedAt:  time.Now().UTC(),
		},
	}
}

// Emergency is the last-resort result for failures inside the pipeline
// itself. It is never populated from request data.
func Emergency(errMsg string) meal.AnalysisResult {
	return meal.AnalysisResult{
		Description:         "Meal analysis is temporarily unavailable.",
		Nutrients:           zeroNutrients(),
		Feedback:            "Our system is currently overloaded and could not analyze this meal. Your photo was not the problem.",
		Suggestions:         []string{"Please try again in a few minutes."},
		DetailedIngredients: []meal.Ingredient{},
		GoalScore:           meal.GoalScore{Overall: 0, Specific: map[string]float64{}},
		Metadata: meal.AnalysisMetadata{
			ModelUsed:     meal.ModelUsedError,
			Confidence:    0,
			Error:         errMsg,
			ErrorCategory: meal.ErrInternal,
			Fallback:      true,
			FallbackTier:  meal.TierEmergency,
			Path:          meal.PathNone,
			GeneratedAt:   time.Now().UTC(),
		},
	}
}

func zeroNutrients() []meal.Nutrient {
	out := make([]meal.Nutrient, 0, len(meal.CoreNutrients))
	for _, name := range meal.CoreNutrients {
		unit := "g"
		if name == "calories" {
			unit = "kcal"
		}
		out = append(out, meal.Nutrient{Name: name, Value: "0", Unit: unit})
	}
	return out
}
