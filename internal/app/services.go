package app

import (
	"github.com/yungbote/mealsense-backend/internal/config"
	"github.com/yungbote/mealsense-backend/internal/mealanalysis/imagequality"
	"github.com/yungbote/mealsense-backend/internal/mealanalysis/ocr"
	"github.com/yungbote/mealsense-backend/internal/mealanalysis/pipeline"
	"github.com/yungbote/mealsense-backend/internal/mealanalysis/textonly"
	"github.com/yungbote/mealsense-backend/internal/mealanalysis/vision"
	"github.com/yungbote/mealsense-backend/internal/platform/logger"
)

func wirePipeline(log *logger.Logger, cfg config.Config, clients Clients) *pipeline.Pipeline {
	log.Info("Wiring meal analysis pipeline...",
		"use_vision", cfg.Vision.Enabled,
		"force_vision", cfg.Vision.Force,
		"ocr_provider", cfg.OCR.Provider,
	)

	var vis pipeline.VisionAnalyzer
	if cfg.Vision.Enabled {
		vis = vision.NewLazy(log, clients.OpenAI, vision.Config{
			Model:         cfg.Vision.Model,
			FallbackModel: cfg.Vision.FallbackModel,
			MaxTokens:     cfg.Vision.MaxTokens,
			Temperature:   cfg.Vision.Temperature,
			Timeout:       cfg.Vision.Timeout.Std(),
			Force:         cfg.Vision.Force,
		})
	}

	var engine ocr.Engine
	if clients.OCR != nil {
		engine = clients.OCR
	}
	extractor := ocr.New(log, engine, ocr.Config{
		ConfidenceThreshold: cfg.OCR.ConfidenceThreshold,
		MinTextLength:       cfg.OCR.MinTextLength,
	})
	text := textonly.New(log, clients.Nutrition)

	return pipeline.New(log, pipeline.Config{
		UseVision:   cfg.Vision.Enabled,
		ForceVision: cfg.Vision.Force,
		Limits: imagequality.Limits{
			MaxBytes:     cfg.Image.MaxBytes,
			MinDimension: cfg.Image.MinDimension,
		},
	}, vis, extractor, text)
}
