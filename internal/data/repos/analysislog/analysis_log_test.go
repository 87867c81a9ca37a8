package analysislog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/yungbote/mealsense-backend/internal/data/db"
	"github.com/yungbote/mealsense-backend/internal/domain/meal"
)

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: gormLogger.Default.LogMode(gormLogger.Silent)})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrateAll(gdb); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() { _ = db.Close(gdb) })
	return gdb
}

func sampleResult(requestID string, tier meal.FallbackTier) meal.AnalysisResult {
	return meal.AnalysisResult{
		Description: "Salad",
		Nutrients:   []meal.Nutrient{{Name: "calories", Value: "200", Unit: "kcal"}},
		Feedback:    "ok",
		Suggestions: []string{"more protein"},
		GoalScore:   meal.GoalScore{Overall: 70, Specific: map[string]float64{}},
		Metadata: meal.AnalysisMetadata{
			RequestID:    requestID,
			ModelUsed:    "gpt-4o",
			Path:         meal.PathVision,
			FallbackTier: tier,
			Confidence:   0.9,
		},
	}
}

func TestNewRow(t *testing.T) {
	row, err := NewRow(sampleResult("r1", meal.TierPartial))
	if err != nil {
		t.Fatalf("NewRow: %v", err)
	}
	if row.RequestID != "r1" || row.Success || row.FallbackTier != "partial" || row.Path != "vision" {
		t.Fatalf("row: %+v", row)
	}
	var back meal.AnalysisResult
	if err := json.Unmarshal(row.Result, &back); err != nil || back.Description != "Salad" {
		t.Fatalf("result json: %v %+v", err, back)
	}
}

func TestCreateAndGetLatest(t *testing.T) {
	ctx := context.Background()
	repo := NewAnalysisLogRepo(testDB(t), nil)

	older, _ := NewRow(sampleResult("req-1", meal.TierEmpty))
	older.CreatedAt = time.Now().UTC().Add(-time.Minute)
	newer, _ := NewRow(sampleResult("req-1", meal.TierNone))
	other, _ := NewRow(sampleResult("req-2", meal.TierNone))
	if _, err := repo.Create(ctx, nil, []*meal.AnalysisLog{older, newer, other}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := repo.GetLatestByRequestID(ctx, nil, "req-1")
	if err != nil {
		t.Fatalf("GetLatestByRequestID: %v", err)
	}
	if got.ID != newer.ID || !got.Success {
		t.Fatalf("want newest row, got %+v", got)
	}

	if _, err := repo.GetLatestByRequestID(ctx, nil, "missing"); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("want ErrRecordNotFound, got %v", err)
	}

	recent, err := repo.ListRecent(ctx, nil, 2)
	if err != nil || len(recent) != 2 {
		t.Fatalf("ListRecent: %v len=%d", err, len(recent))
	}
}

func TestCreateEmpty(t *testing.T) {
	rows, err := NewAnalysisLogRepo(nil, nil).Create(context.Background(), nil, nil)
	if err != nil || len(rows) != 0 {
		t.Fatalf("rows=%v err=%v", rows, err)
	}
}
