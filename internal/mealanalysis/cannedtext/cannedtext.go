// Package cannedtext holds the fixed copy used by the analysis pipeline: the
// vision system prompt, the OCR substitute meals, and default wording for
// synthesized fields. The copy ships embedded and may be replaced at runtime
// by pointing CANNED_TEXT_YAML at a file of the same shape.
package cannedtext

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

const overrideEnv = "CANNED_TEXT_YAML"

//go:embed cannedtext.yaml
var embedded []byte

type Block struct {
	Description string   `yaml:"description"`
	Feedback    string   `yaml:"feedback"`
	Suggestions []string `yaml:"suggestions"`
}

type Text struct {
	Version            int      `yaml:"version"`
	FallbackMeals      []string `yaml:"fallback_meals"`
	Defaults           Block    `yaml:"defaults"`
	Empty              Block    `yaml:"empty"`
	VisionSystemPrompt string   `yaml:"vision_system_prompt"`
}

// used when both the override and the embedded copy fail validation
var builtin = Text{
	Version: 1,
	FallbackMeals: []string{
		"Grilled chicken breast with steamed broccoli and brown rice",
		"Mixed green salad with tomatoes, cucumber and olive oil",
		"Whole wheat pasta with tomato sauce and ground turkey",
		"Oatmeal with banana, blueberries and walnuts",
		"Salmon fillet with roasted sweet potatoes and green beans",
	},
	Defaults: Block{
		Description: "A meal was detected, but its contents could not be fully identified.",
		Feedback:    "We could only partially analyze this meal.",
		Suggestions: []string{
			"Try taking the photo in good lighting with the whole plate in view.",
			"Include a variety of vegetables to round out the meal.",
		},
	},
	Empty: Block{
		Description: "We were unable to analyze this meal.",
		Feedback:    "The meal could not be analyzed right now.",
		Suggestions: []string{"Please try again with a clearer photo of your meal."},
	},
	VisionSystemPrompt: "You are a nutrition analysis assistant. Respond with one JSON object with keys " +
		"description, nutrients, feedback, suggestions, detailedIngredients and goalScore.",
}

var (
	loadOnce sync.Once
	current  Text
)

// Get returns the active copy. It never fails.
func Get() Text {
	loadOnce.Do(func() {
		current = builtin
		if path := strings.TrimSpace(os.Getenv(overrideEnv)); path != "" {
			if data, err := os.ReadFile(path); err == nil {
				if t, err := Parse(data); err == nil {
					current = t
					return
				}
			}
		}
		if t, err := Parse(embedded); err == nil {
			current = t
		}
	})
	return current
}

func Parse(data []byte) (Text, error) {
	var t Text
	if err := yaml.Unmarshal(data, &t); err != nil {
		return Text{}, fmt.Errorf("canned text yaml: %w", err)
	}
	if err := validate(t); err != nil {
		return Text{}, err
	}
	return t, nil
}

func validate(t Text) error {
	if len(t.FallbackMeals) == 0 {
		return errors.New("fallback_meals must not be empty")
	}
	for i, m := range t.FallbackMeals {
		if strings.TrimSpace(m) == "" {
			return fmt.Errorf("fallback_meals[%d] is empty", i)
		}
	}
	for name, b := range map[string]Block{"defaults": t.Defaults, "empty": t.Empty} {
		if strings.TrimSpace(b.Description) == "" || strings.TrimSpace(b.Feedback) == "" {
			return fmt.Errorf("%s: description and feedback are required", name)
		}
		if len(b.Suggestions) == 0 {
			return fmt.Errorf("%s: suggestions must not be empty", name)
		}
	}
	if strings.TrimSpace(t.VisionSystemPrompt) == "" {
		return errors.New("vision_system_prompt is required")
	}
	return nil
}
