package pipeline

import (
	"github.com/yungbote/mealsense-backend/internal/domain/meal"
	"github.com/yungbote/mealsense-backend/internal/mealanalysis/jsonrepair"
	"github.com/yungbote/mealsense-backend/internal/mealanalysis/vision"
)

// Outcome describes how a result was produced. It is diagnostic only; the
// result itself already carries everything a client needs.
type Outcome struct {
	Path     meal.Path
	Tier     meal.FallbackTier
	Category meal.ErrorCategory

	VisionAttempted bool
	ProbeFailure    vision.ProbeFailure
	OCRAttempted    bool
	OCRSubstituted  bool

	Strategy jsonrepair.Strategy
	Attempts []jsonrepair.Attempt

	// number of times the request dropped to a less trustworthy source
	Degradations int
	Panicked     bool
}

// Degraded reports whether the result is anything but a clean first-choice answer.
func (o Outcome) Degraded() bool {
	return o.Tier != meal.TierNone || o.Degradations > 0 || o.Category != meal.ErrNone
}
