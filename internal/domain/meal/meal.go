package meal

import (
	"strings"
	"time"
)

// AnalysisRequest is consumed exactly once by the pipeline. Construct it with
// NewAnalysisRequest so the caller's slices are not shared.
type AnalysisRequest struct {
	Image              []byte
	MimeType           string
	HealthGoals        []string
	DietaryPreferences []string
	RequestID          string
}

func NewAnalysisRequest(image []byte, mimeType string, goals, prefs []string, requestID string) AnalysisRequest {
	return AnalysisRequest{
		Image:              append([]byte(nil), image...),
		MimeType:           strings.TrimSpace(mimeType),
		HealthGoals:        cleanList(goals),
		DietaryPreferences: cleanList(prefs),
		RequestID:          strings.TrimSpace(requestID),
	}
}

func cleanList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

type Nutrient struct {
	Name                string   `json:"name"`
	Value               string   `json:"value"`
	Unit                string   `json:"unit"`
	IsHighlight         bool     `json:"isHighlight"`
	PercentOfDailyValue *float64 `json:"percentOfDailyValue,omitempty"`
}

type Ingredient struct {
	Name       string  `json:"name"`
	Category   string  `json:"category"`
	Confidence float64 `json:"confidence"`
}

type GoalScore struct {
	Overall  float64            `json:"overall"`
	Specific map[string]float64 `json:"specific"`
}

type AnalysisResult struct {
	Description         string           `json:"description"`
	Nutrients           []Nutrient       `json:"nutrients"`
	Feedback            string           `json:"feedback"`
	Suggestions         []string         `json:"suggestions"`
	DetailedIngredients []Ingredient     `json:"detailedIngredients"`
	GoalScore           GoalScore        `json:"goalScore"`
	Metadata            AnalysisMetadata `json:"metadata"`
}

type TokenUsage struct {
	PromptTokens     int `json:"promptTokens"`
	CompletionTokens int `json:"completionTokens"`
	TotalTokens      int `json:"totalTokens"`
}

// AnalysisMetadata travels with every result so callers can tell a genuine
// answer from a synthesized one.
type AnalysisMetadata struct {
	RequestID          string        `json:"requestId"`
	ModelUsed          string        `json:"modelUsed"`
	UsedFallbackModel  bool          `json:"usedFallbackModel"`
	ProcessingTimeMs   int64         `json:"processingTimeMs"`
	Confidence         float64       `json:"confidence"`
	Error              string        `json:"error"`
	ErrorCategory      ErrorCategory `json:"errorCategory,omitempty"`
	ImageQuality       string        `json:"imageQuality"`
	IsPartialResult    bool          `json:"isPartialResult"`
	ExtractedFromText  bool          `json:"extractedFromText"`
	Fallback           bool          `json:"fallback"`
	FallbackTier       FallbackTier  `json:"fallbackTier,omitempty"`
	Path               Path          `json:"path,omitempty"`
	ExtractionStrategy string        `json:"extractionStrategy,omitempty"`
	Degradations       int           `json:"degradations"`
	TokenUsage         *TokenUsage   `json:"tokenUsage,omitempty"`
	GeneratedAt        time.Time     `json:"generatedAt"`

	NormalizationFlags
}

// NormalizationFlags records which fields the normalizer synthesized or
// coerced rather than taking verbatim from the model output.
type NormalizationFlags struct {
	DescriptionWasDefault   bool `json:"descriptionWasDefault"`
	NutrientsWereDefault    bool `json:"nutrientsWereDefault"`
	NutrientsWereConverted  bool `json:"nutrientsWereConverted"`
	NutrientsWereCompleted  bool `json:"nutrientsWereCompleted"`
	FeedbackWasDefault      bool `json:"feedbackWasDefault"`
	FeedbackWasJoined       bool `json:"feedbackWasJoined"`
	SuggestionsWereDefault  bool `json:"suggestionsWereDefault"`
	SuggestionsWereWrapped  bool `json:"suggestionsWereWrapped"`
	GoalScoreWasDefault     bool `json:"goalScoreWasDefault"`
	GoalScoreWasConverted   bool `json:"goalScoreWasConverted"`
	GoalScoreSpecificFilled bool `json:"goalScoreSpecificFilled"`
	IngredientsWereDefault  bool `json:"ingredientsWereDefault"`
}

// Count returns how many coercions were applied.
func (f NormalizationFlags) Count() int {
	n := 0
	for _, b := range []bool{
		f.DescriptionWasDefault,
		f.NutrientsWereDefault,
		f.NutrientsWereConverted,
		f.NutrientsWereCompleted,
		f.FeedbackWasDefault,
		f.FeedbackWasJoined,
		f.SuggestionsWereDefault,
		f.SuggestionsWereWrapped,
		f.GoalScoreWasDefault,
		f.GoalScoreWasConverted,
		f.GoalScoreSpecificFilled,
		f.IngredientsWereDefault,
	} {
		if b {
			n++
		}
	}
	return n
}

// Document is the untyped pre-normalization shape of a model answer.
type Document map[string]any

type Path string

const (
	PathVision Path = "vision"
	PathOCR    Path = "ocr"
	PathNone   Path = "none"
)

type FallbackTier string

const (
	TierNone      FallbackTier = ""
	TierPartial   FallbackTier = "partial"
	TierEmpty     FallbackTier = "empty"
	TierEmergency FallbackTier = "emergency"
)

type ErrorCategory string

const (
	ErrNone                 ErrorCategory = ""
	ErrProviderUnavailable  ErrorCategory = "provider_unavailable"
	ErrOCRLowConfidence     ErrorCategory = "ocr_low_confidence"
	ErrMalformedOutput      ErrorCategory = "malformed_output"
	ErrIncompleteOutput     ErrorCategory = "incomplete_output"
	ErrNutrientLookupFailed ErrorCategory = "nutrient_lookup_failed"
	ErrInvalidImage         ErrorCategory = "invalid_image"
	ErrInternal             ErrorCategory = "internal"
)

// Core nutrients every normalized result carries.
var CoreNutrients = []string{"calories", "protein", "carbs", "fat"}

// ModelUsedError marks a result whose model call did not produce usable output.
const ModelUsedError = "error"
