package analysislog

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/mealsense-backend/internal/domain/meal"
	"github.com/yungbote/mealsense-backend/internal/platform/logger"
)

type AnalysisLogRepo interface {
	Create(ctx context.Context, tx *gorm.DB, rows []*meal.AnalysisLog) ([]*meal.AnalysisLog, error)
	GetLatestByRequestID(ctx context.Context, tx *gorm.DB, requestID string) (*meal.AnalysisLog, error)
	ListRecent(ctx context.Context, tx *gorm.DB, limit int) ([]*meal.AnalysisLog, error)
}

type analysisLogRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewAnalysisLogRepo(db *gorm.DB, baseLog *logger.Logger) AnalysisLogRepo {
	if baseLog == nil {
		baseLog = logger.NewNop()
	}
	return &analysisLogRepo{db: db, log: baseLog.With("repo", "AnalysisLogRepo")}
}

// NewRow snapshots res into a log row.
func NewRow(res meal.AnalysisResult) (*meal.AnalysisLog, error) {
	raw, err := json.Marshal(res)
	if err != nil {
		return nil, fmt.Errorf("marshal analysis result: %w", err)
	}
	md := res.Metadata
	return &meal.AnalysisLog{
		ID:           uuid.New(),
		RequestID:    md.RequestID,
		ModelUsed:    md.ModelUsed,
		Path:         string(md.Path),
		FallbackTier: string(md.FallbackTier),
		Confidence:   md.Confidence,
		Success:      md.FallbackTier == meal.TierNone,
		Error:        md.Error,
		ProcessingMs: md.ProcessingTimeMs,
		Result:       datatypes.JSON(raw),
		CreatedAt:    time.Now().UTC(),
	}, nil
}

func (r *analysisLogRepo) Create(ctx context.Context, tx *gorm.DB, rows []*meal.AnalysisLog) ([]*meal.AnalysisLog, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(rows) == 0 {
		return []*meal.AnalysisLog{}, nil
	}
	for _, row := range rows {
		if row.ID == uuid.Nil {
			row.ID = uuid.New()
		}
		if row.CreatedAt.IsZero() {
			row.CreatedAt = time.Now().UTC()
		}
	}
	if err := transaction.WithContext(ctx).Create(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// GetLatestByRequestID returns gorm.ErrRecordNotFound when no row matches.
func (r *analysisLogRepo) GetLatestByRequestID(ctx context.Context, tx *gorm.DB, requestID string) (*meal.AnalysisLog, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return nil, gorm.ErrRecordNotFound
	}
	var row meal.AnalysisLog
	if err := transaction.WithContext(ctx).
		Where("request_id = ?", requestID).
		Order("created_at DESC").
		First(&row).Error; err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *analysisLogRepo) ListRecent(ctx context.Context, tx *gorm.DB, limit int) ([]*meal.AnalysisLog, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	var results []*meal.AnalysisLog
	if err := transaction.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
