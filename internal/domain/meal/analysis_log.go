package meal

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// AnalysisLog is the caller-side audit row written after each analysis.
type AnalysisLog struct {
	ID           uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	RequestID    string         `gorm:"column:request_id;index;not null" json:"request_id"`
	ModelUsed    string         `gorm:"column:model_used;not null" json:"model_used"`
	Path         string         `gorm:"column:path" json:"path"`
	FallbackTier string         `gorm:"column:fallback_tier" json:"fallback_tier"`
	Confidence   float64        `gorm:"column:confidence" json:"confidence"`
	Success      bool           `gorm:"column:success;not null" json:"success"`
	Error        string         `gorm:"column:error" json:"error"`
	ProcessingMs int64          `gorm:"column:processing_ms" json:"processing_ms"`
	Result       datatypes.JSON `gorm:"column:result" json:"result"`
	CreatedAt    time.Time      `gorm:"not null" json:"created_at"`
}

func (AnalysisLog) TableName() string {
	return "meal_analysis_log"
}
