package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/yungbote/mealsense-backend/internal/data/repos/analysislog"
	"github.com/yungbote/mealsense-backend/internal/domain/meal"
	"github.com/yungbote/mealsense-backend/internal/http/response"
	"github.com/yungbote/mealsense-backend/internal/mealanalysis/imagequality"
	"github.com/yungbote/mealsense-backend/internal/mealanalysis/pipeline"
	"github.com/yungbote/mealsense-backend/internal/platform/ctxutil"
	"github.com/yungbote/mealsense-backend/internal/platform/logger"
)

type MealAnalyzer interface {
	Analyze(ctx context.Context, req meal.AnalysisRequest) (meal.AnalysisResult, pipeline.Outcome)
}

type MealHandlerDeps struct {
	Log      *logger.Logger
	Analyzer MealAnalyzer
	// Logs is optional; without it analyses are not persisted.
	Logs          analysislog.AnalysisLogRepo
	MaxImageBytes int
}

type MealHandler struct {
	log       *logger.Logger
	analyzer  MealAnalyzer
	logs      analysislog.AnalysisLogRepo
	bodyLimit int64
}

func NewMealHandler(deps MealHandlerDeps) *MealHandler {
	log := deps.Log
	if log == nil {
		log = logger.NewNop()
	}
	maxImage := deps.MaxImageBytes
	if maxImage <= 0 {
		maxImage = imagequality.DefaultMaxBytes
	}
	// base64 inflates by 4/3; leave room so oversized images still reach
	// the pipeline and come back as an invalid-image result
	limit := int64(maxImage)*8/3 + 1<<20
	return &MealHandler{
		log:       log.With("handler", "MealHandler"),
		analyzer:  deps.Analyzer,
		logs:      deps.Logs,
		bodyLimit: limit,
	}
}

type analyzeMealRequest struct {
	Image              string   `json:"image"`
	MimeType           string   `json:"mimeType"`
	HealthGoals        []string `json:"healthGoals"`
	DietaryPreferences []string `json:"dietaryPreferences"`
	RequestID          string   `json:"requestId"`
}

// POST /api/meals/analyze
func (h *MealHandler) Analyze(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.bodyLimit)

	var body analyzeMealRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			response.RespondError(c, http.StatusRequestEntityTooLarge, "payload_too_large", err)
			return
		}
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	if h.analyzer == nil {
		response.RespondError(c, http.StatusServiceUnavailable, "analyzer_unavailable", errors.New("meal analyzer not configured"))
		return
	}

	ctx := c.Request.Context()
	// an undecodable image is the pipeline's call: it answers with an invalid-image result
	img, err := imagequality.DecodeBase64(body.Image)
	if err != nil {
		h.log.Warn("image payload is not base64", "request_id", ctxutil.RequestID(ctx), "error", err)
		img = nil
	}
	requestID := strings.TrimSpace(body.RequestID)
	if requestID == "" {
		requestID = ctxutil.RequestID(ctx)
	}

	req := meal.NewAnalysisRequest(img, body.MimeType, body.HealthGoals, body.DietaryPreferences, requestID)
	res, out := h.analyzer.Analyze(ctx, req)
	h.record(ctx, res)

	c.Header("X-Analysis-Path", string(out.Path))
	if out.Tier != meal.TierNone {
		c.Header("X-Analysis-Fallback", string(out.Tier))
	}
	response.RespondOK(c, res)
}

func (h *MealHandler) record(ctx context.Context, res meal.AnalysisResult) {
	if h.logs == nil {
		return
	}
	row, err := analysislog.NewRow(res)
	if err == nil {
		_, err = h.logs.Create(context.WithoutCancel(ctx), nil, []*meal.AnalysisLog{row})
	}
	if err != nil {
		h.log.Warn("failed to record analysis", "request_id", res.Metadata.RequestID, "error", err)
	}
}

// GET /api/meals/analyses/:requestId
func (h *MealHandler) GetAnalysis(c *gin.Context) {
	if h.logs == nil {
		response.RespondError(c, http.StatusServiceUnavailable, "persistence_disabled", errors.New("analysis log is not configured"))
		return
	}
	requestID := strings.TrimSpace(c.Param("requestId"))
	if requestID == "" {
		response.RespondError(c, http.StatusBadRequest, "invalid_request_id", errors.New("request id required"))
		return
	}
	row, err := h.logs.GetLatestByRequestID(c.Request.Context(), nil, requestID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		response.RespondError(c, http.StatusNotFound, "analysis_not_found", err)
		return
	}
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "analysis_lookup_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"analysis": row})
}
