package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv(PathEnv, "")
	t.Setenv("LOG_REDACTION_ENABLED", "")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !cfg.LogRedaction {
		t.Fatalf("log redaction should default on")
	}
	if cfg.Vision.Model != "gpt-4-vision-preview" || cfg.Vision.FallbackModel != "gpt-4o" {
		t.Fatalf("vision models: %+v", cfg.Vision)
	}
	if cfg.Vision.Timeout.Std() != 45*time.Second || !cfg.Vision.Enabled || cfg.Vision.Force {
		t.Fatalf("vision: %+v", cfg.Vision)
	}
	if cfg.OCR.ConfidenceThreshold != 0.7 || cfg.OCR.MinTextLength != 10 {
		t.Fatalf("ocr: %+v", cfg.OCR)
	}
	if cfg.Nutrition.CacheTTL.Std() != 24*time.Hour || cfg.Image.MaxBytes != 8<<20 {
		t.Fatalf("nutrition/image: %+v %+v", cfg.Nutrition, cfg.Image)
	}
}

func TestLoadFileThenEnv(t *testing.T) {
	path := writeConfig(t, `
http_addr: ":9090"
vision:
  model: gpt-4o-mini
  timeout: 30s
  max_tokens: 900
ocr:
  provider: none
  confidence_threshold: 0.5
nutrition:
  cache_ttl: 3600
`)
	t.Setenv(PathEnv, path)
	t.Setenv("VISION_MODEL", "gpt-4.1")
	t.Setenv("FORCE_GPT4V", "true")
	t.Setenv("OCR_MIN_TEXT_LENGTH", "25")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTPAddr != ":9090" || cfg.Vision.MaxTokens != 900 || cfg.Vision.Timeout.Std() != 30*time.Second {
		t.Fatalf("file values not applied: %+v", cfg)
	}
	if cfg.Vision.Model != "gpt-4.1" || !cfg.Vision.Force || cfg.OCR.MinTextLength != 25 {
		t.Fatalf("env overrides not applied: %+v", cfg)
	}
	if cfg.OCR.Provider != OCRProviderNone || cfg.OCR.ConfidenceThreshold != 0.5 {
		t.Fatalf("ocr: %+v", cfg.OCR)
	}
	if cfg.Nutrition.CacheTTL.Std() != time.Hour {
		t.Fatalf("cache ttl: %v", cfg.Nutrition.CacheTTL.Std())
	}
	if cfg.Vision.FallbackModel != "gpt-4o" {
		t.Fatalf("unset keys keep defaults, got %q", cfg.Vision.FallbackModel)
	}
}

func TestLoadExplicitMissingFile(t *testing.T) {
	t.Setenv(PathEnv, filepath.Join(t.TempDir(), "nope.yaml"))
	if _, err := Load(); err == nil {
		t.Fatalf("expected error for missing explicit config file")
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"unknown ocr provider", map[string]string{"OCR_PROVIDER": "tesseract"}, "unknown ocr provider"},
		{"documentai without processor", map[string]string{"OCR_PROVIDER": "documentai"}, "DOCUMENTAI_PROJECT_ID"},
		{"force without vision", map[string]string{"USE_GPT4V": "false", "FORCE_GPT4V": "true"}, "FORCE_GPT4V"},
		{"threshold out of range", map[string]string{"OCR_CONFIDENCE_THRESHOLD": "70"}, "confidence_threshold"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Chdir(t.TempDir())
			t.Setenv(PathEnv, "")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("want error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestDurationYAML(t *testing.T) {
	path := writeConfig(t, "vision:\n  timeout: nonsense\n")
	t.Setenv(PathEnv, path)
	if _, err := Load(); err == nil {
		t.Fatalf("expected duration parse error")
	}
}
