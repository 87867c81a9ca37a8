package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/yungbote/mealsense-backend/internal/platform/envutil"
)

const (
	PathEnv     = "MEALSENSE_CONFIG_PATH"
	DefaultPath = "./config/config.yaml"
)

// Load builds the config from defaults, then the YAML file (if present),
// then environment variables. A missing default file is not an error; a
// missing file named by MEALSENSE_CONFIG_PATH is.
func Load() (Config, error) {
	cfg := Default()

	path := strings.TrimSpace(os.Getenv(PathEnv))
	explicit := path != ""
	if !explicit {
		path = DefaultPath
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", path, err)
		}
	case errors.Is(err, fs.ErrNotExist) && !explicit:
	default:
		return Config{}, fmt.Errorf("read %s: %w", path, err)
	}

	applyEnv(&cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.LogMode = envutil.String("LOG_MODE", cfg.LogMode)
	cfg.LogLevel = envutil.String("LOG_LEVEL", cfg.LogLevel)
	cfg.LogRedaction = envutil.Bool("LOG_REDACTION_ENABLED", cfg.LogRedaction)
	cfg.Environment = envutil.String("APP_ENV", cfg.Environment)
	cfg.HTTPAddr = envutil.String("HTTP_ADDR", cfg.HTTPAddr)
	cfg.MetricsAddr = envutil.String("METRICS_ADDR", cfg.MetricsAddr)
	if origins := envutil.String("CORS_ORIGINS", ""); origins != "" {
		cfg.CORSOrigins = splitList(origins)
	}

	cfg.OpenAI.APIKey = envutil.String("OPENAI_API_KEY", cfg.OpenAI.APIKey)
	cfg.OpenAI.BaseURL = envutil.String("OPENAI_BASE_URL", cfg.OpenAI.BaseURL)

	cfg.Vision.Enabled = envutil.Bool("USE_GPT4V", cfg.Vision.Enabled)
	cfg.Vision.Force = envutil.Bool("FORCE_GPT4V", cfg.Vision.Force)
	cfg.Vision.Model = envutil.String("VISION_MODEL", cfg.Vision.Model)
	cfg.Vision.FallbackModel = envutil.String("VISION_FALLBACK_MODEL", cfg.Vision.FallbackModel)
	cfg.Vision.MaxTokens = envutil.Int("VISION_MAX_TOKENS", cfg.Vision.MaxTokens)
	cfg.Vision.Temperature = envutil.Float("VISION_TEMPERATURE", cfg.Vision.Temperature)
	cfg.Vision.Timeout = Duration(envutil.Duration("VISION_TIMEOUT", cfg.Vision.Timeout.Std()))

	cfg.OCR.Provider = strings.ToLower(envutil.String("OCR_PROVIDER", cfg.OCR.Provider))
	cfg.OCR.ConfidenceThreshold = envutil.Float("OCR_CONFIDENCE_THRESHOLD", cfg.OCR.ConfidenceThreshold)
	cfg.OCR.MinTextLength = envutil.Int("OCR_MIN_TEXT_LENGTH", cfg.OCR.MinTextLength)
	cfg.OCR.Timeout = Duration(envutil.Duration("OCR_TIMEOUT", cfg.OCR.Timeout.Std()))
	cfg.OCR.DocumentAIProjectID = envutil.String("DOCUMENTAI_PROJECT_ID", cfg.OCR.DocumentAIProjectID)
	cfg.OCR.DocumentAILocation = envutil.String("DOCUMENTAI_LOCATION", cfg.OCR.DocumentAILocation)
	cfg.OCR.DocumentAIProcessorID = envutil.String("DOCUMENTAI_PROCESSOR_ID", cfg.OCR.DocumentAIProcessorID)
	cfg.OCR.DocumentAIProcessorVersion = envutil.String("DOCUMENTAI_PROCESSOR_VERSION", cfg.OCR.DocumentAIProcessorVersion)

	cfg.Nutrition.AppID = envutil.String("NUTRITIONIX_APP_ID", cfg.Nutrition.AppID)
	cfg.Nutrition.APIKey = envutil.String("NUTRITIONIX_API_KEY", cfg.Nutrition.APIKey)
	cfg.Nutrition.BaseURL = envutil.String("NUTRITIONIX_BASE_URL", cfg.Nutrition.BaseURL)
	cfg.Nutrition.RedisAddr = envutil.String("REDIS_ADDR", cfg.Nutrition.RedisAddr)
	cfg.Nutrition.CacheTTL = Duration(envutil.Duration("NUTRIENT_CACHE_TTL", cfg.Nutrition.CacheTTL.Std()))

	cfg.Database.Driver = strings.ToLower(envutil.String("DB_DRIVER", cfg.Database.Driver))
	cfg.Database.DSN = envutil.String("DB_DSN", cfg.Database.DSN)

	cfg.Image.MaxBytes = envutil.Int("MAX_IMAGE_BYTES", cfg.Image.MaxBytes)
	cfg.Image.MinDimension = envutil.Int("MIN_IMAGE_DIMENSION", cfg.Image.MinDimension)

	cfg.OtelEnabled = envutil.Bool("OTEL_ENABLED", cfg.OtelEnabled)
	cfg.MetricsEnabled = envutil.Bool("METRICS_ENABLED", cfg.MetricsEnabled)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
