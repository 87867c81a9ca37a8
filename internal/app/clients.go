package app

import (
	"fmt"
	"strings"

	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/mealsense-backend/internal/config"
	"github.com/yungbote/mealsense-backend/internal/mealanalysis/ocr"
	"github.com/yungbote/mealsense-backend/internal/platform/gcp"
	"github.com/yungbote/mealsense-backend/internal/platform/logger"
	"github.com/yungbote/mealsense-backend/internal/platform/nutritionix"
	"github.com/yungbote/mealsense-backend/internal/platform/openai"
)

type ocrEngine interface {
	ocr.Engine
	Close() error
}

type Clients struct {
	Redis     *goredis.Client
	OCR       ocrEngine
	Nutrition nutritionix.Client
	// OpenAI is dialed on first use so a missing key only fails the vision
	// path, not startup.
	OpenAI func() (openai.Client, error)
}

func wireClients(log *logger.Logger, cfg config.Config) (Clients, error) {
	log.Info("Wiring clients...")

	// Redis
	var rdb *goredis.Client
	if strings.TrimSpace(cfg.Nutrition.RedisAddr) != "" {
		c, err := nutritionix.NewRedisClient(cfg.Nutrition.RedisAddr)
		if err != nil {
			return Clients{}, fmt.Errorf("init redis: %w", err)
		}
		rdb = c
	}

	// OCR
	var engine ocrEngine
	switch cfg.OCR.Provider {
	case config.OCRProviderGCPVision:
		v, err := gcp.NewVision(log, cfg.OCR.Timeout.Std())
		if err != nil {
			// no credentials is a normal local setup; OCR then substitutes
			log.Warn("Cloud Vision unavailable, OCR will substitute canned text", "error", err)
		} else {
			engine = v
		}
	case config.OCRProviderDocumentAI:
		d, err := gcp.NewDocument(log, gcp.DocumentConfig{
			ProjectID:        cfg.OCR.DocumentAIProjectID,
			Location:         cfg.OCR.DocumentAILocation,
			ProcessorID:      cfg.OCR.DocumentAIProcessorID,
			ProcessorVersion: cfg.OCR.DocumentAIProcessorVersion,
			Timeout:          cfg.OCR.Timeout.Std(),
		})
		if err != nil {
			closeRedis(rdb)
			return Clients{}, fmt.Errorf("init document ai: %w", err)
		}
		engine = d
	}

	// Nutritionix
	var nutrition nutritionix.Client
	if cfg.Nutrition.AppID != "" || cfg.Nutrition.APIKey != "" {
		n, err := nutritionix.New(log, nutritionix.Config{
			AppID:   cfg.Nutrition.AppID,
			APIKey:  cfg.Nutrition.APIKey,
			BaseURL: cfg.Nutrition.BaseURL,
			Timeout: cfg.Nutrition.Timeout.Std(),
		})
		if err != nil {
			closeRedis(rdb)
			if engine != nil {
				_ = engine.Close()
			}
			return Clients{}, fmt.Errorf("init nutritionix: %w", err)
		}
		nutrition = nutritionix.WithCache(log, n, rdb, cfg.Nutrition.CacheTTL.Std())
	} else {
		log.Warn("NUTRITIONIX credentials not set, the OCR path will return empty results")
	}

	// OpenAI
	openaiCfg := openai.Config{
		APIKey:  cfg.OpenAI.APIKey,
		BaseURL: cfg.OpenAI.BaseURL,
		Timeout: cfg.Vision.Timeout.Std(),
	}
	factory := func() (openai.Client, error) { return openai.NewClient(log, openaiCfg) }

	return Clients{
		Redis:     rdb,
		OCR:       engine,
		Nutrition: nutrition,
		OpenAI:    factory,
	}, nil
}

func closeRedis(rdb *goredis.Client) {
	if rdb != nil {
		_ = rdb.Close()
	}
}

func (c *Clients) Close() {
	if c == nil {
		return
	}
	if c.OCR != nil {
		_ = c.OCR.Close()
	}
	closeRedis(c.Redis)
}
