package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	LogMode      string   `yaml:"log_mode"`
	LogLevel     string   `yaml:"log_level"`
	LogRedaction bool     `yaml:"log_redaction"`
	Environment  string   `yaml:"environment"`
	HTTPAddr     string   `yaml:"http_addr"`
	MetricsAddr  string   `yaml:"metrics_addr"`
	CORSOrigins  []string `yaml:"cors_origins"`

	OpenAI    OpenAIConfig    `yaml:"openai"`
	Vision    VisionConfig    `yaml:"vision"`
	OCR       OCRConfig       `yaml:"ocr"`
	Nutrition NutritionConfig `yaml:"nutrition"`
	Database  DatabaseConfig  `yaml:"database"`
	Image     ImageConfig     `yaml:"image"`

	OtelEnabled    bool `yaml:"otel_enabled"`
	MetricsEnabled bool `yaml:"metrics_enabled"`
}

type OpenAIConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
}

type VisionConfig struct {
	Enabled       bool     `yaml:"enabled"`
	Force         bool     `yaml:"force"`
	Model         string   `yaml:"model"`
	FallbackModel string   `yaml:"fallback_model"`
	MaxTokens     int      `yaml:"max_tokens"`
	Temperature   float64  `yaml:"temperature"`
	Timeout       Duration `yaml:"timeout"`
}

type OCRConfig struct {
	Provider            string   `yaml:"provider"`
	ConfidenceThreshold float64  `yaml:"confidence_threshold"`
	MinTextLength       int      `yaml:"min_text_length"`
	Timeout             Duration `yaml:"timeout"`

	DocumentAIProjectID        string `yaml:"documentai_project_id"`
	DocumentAILocation         string `yaml:"documentai_location"`
	DocumentAIProcessorID      string `yaml:"documentai_processor_id"`
	DocumentAIProcessorVersion string `yaml:"documentai_processor_version"`
}

type NutritionConfig struct {
	AppID     string   `yaml:"app_id"`
	APIKey    string   `yaml:"api_key"`
	BaseURL   string   `yaml:"base_url"`
	Timeout   Duration `yaml:"timeout"`
	RedisAddr string   `yaml:"redis_addr"`
	CacheTTL  Duration `yaml:"cache_ttl"`
}

type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

type ImageConfig struct {
	MaxBytes     int `yaml:"max_bytes"`
	MinDimension int `yaml:"min_dimension"`
}

const (
	OCRProviderGCPVision  = "gcp_vision"
	OCRProviderDocumentAI = "documentai"
	OCRProviderNone       = "none"
)

func Default() Config {
	return Config{
		LogMode:      "development",
		LogLevel:     "debug",
		LogRedaction: true,
		Environment:  "development",
		HTTPAddr:     ":8080",
		MetricsAddr:  "",
		CORSOrigins: []string{
			"http://localhost:3000",
			"http://localhost:5173",
			"http://127.0.0.1:3000",
			"http://127.0.0.1:5173",
		},
		OpenAI: OpenAIConfig{BaseURL: "https://api.openai.com"},
		Vision: VisionConfig{
			Enabled:       true,
			Model:         "gpt-4-vision-preview",
			FallbackModel: "gpt-4o",
			MaxTokens:     1500,
			Temperature:   0.2,
			Timeout:       Duration(45 * time.Second),
		},
		OCR: OCRConfig{
			Provider:            OCRProviderGCPVision,
			ConfidenceThreshold: 0.7,
			MinTextLength:       10,
			Timeout:             Duration(20 * time.Second),
			DocumentAILocation:  "us",
		},
		Nutrition: NutritionConfig{
			BaseURL:  "https://trackapi.nutritionix.com",
			Timeout:  Duration(10 * time.Second),
			CacheTTL: Duration(24 * time.Hour),
		},
		Database: DatabaseConfig{Driver: "sqlite", DSN: "file:mealsense.db?_busy_timeout=5000"},
		Image:    ImageConfig{MaxBytes: 8 << 20, MinDimension: 256},
	}
}

func (c Config) Validate() error {
	var problems []string
	if strings.TrimSpace(c.HTTPAddr) == "" {
		problems = append(problems, "http_addr is required")
	}
	switch c.OCR.Provider {
	case OCRProviderGCPVision, OCRProviderNone:
	case OCRProviderDocumentAI:
		if c.OCR.DocumentAIProjectID == "" || c.OCR.DocumentAIProcessorID == "" {
			problems = append(problems, "documentai provider needs DOCUMENTAI_PROJECT_ID and DOCUMENTAI_PROCESSOR_ID")
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown ocr provider %q", c.OCR.Provider))
	}
	if c.OCR.ConfidenceThreshold < 0 || c.OCR.ConfidenceThreshold > 1 {
		problems = append(problems, "ocr confidence_threshold must be within [0,1]")
	}
	if c.Vision.Force && !c.Vision.Enabled {
		problems = append(problems, "FORCE_GPT4V requires USE_GPT4V")
	}
	if c.Vision.MaxTokens <= 0 {
		problems = append(problems, "vision max_tokens must be positive")
	}
	if c.Image.MaxBytes <= 0 {
		problems = append(problems, "image max_bytes must be positive")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// Duration reads "45s" style strings or a bare integer number of seconds.
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	raw := strings.TrimSpace(node.Value)
	if raw == "" {
		*d = 0
		return nil
	}
	if secs, err := strconv.Atoi(raw); err == nil {
		*d = Duration(time.Duration(secs) * time.Second)
		return nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}
