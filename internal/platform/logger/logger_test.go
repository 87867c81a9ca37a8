package logger

import (
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestRedactsSecretsAndClipsBlobs(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	log := NewWithCore(core, true).With("service", "test", "api_key", "sk-live")

	raw := strings.Repeat("é", 400)
	log.Info("analysis",
		"Authorization", "Bearer abc",
		"access_token", "t0k",
		"prompt_tokens", 120,
		"raw_text", raw,
		"image", []byte{1, 2, 3},
		"request_id", "req-1",
	)

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("entries: %d", len(entries))
	}
	got := entries[0].ContextMap()
	for _, k := range []string{"api_key", "Authorization", "access_token"} {
		if got[k] != "[REDACTED]" {
			t.Fatalf("%s: %v", k, got[k])
		}
	}
	if got["prompt_tokens"] != int64(120) || got["request_id"] != "req-1" || got["service"] != "test" {
		t.Fatalf("plain fields changed: %v", got)
	}
	clipped, _ := got["raw_text"].(string)
	if !strings.HasSuffix(clipped, "...(800 bytes)") || !strings.HasPrefix(clipped, strings.Repeat("é", maxBlobBytes/2)) {
		t.Fatalf("raw_text: %q", clipped)
	}
	if got["image"] != "(3 bytes)" {
		t.Fatalf("image: %v", got["image"])
	}
}

func TestRedactionOffPassesFieldsThrough(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	NewWithCore(core, false).Warn("x", "api_key", "sk-live")
	got := logs.All()[0].ContextMap()
	if got["api_key"] != "sk-live" {
		t.Fatalf("api_key: %v", got["api_key"])
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]string{"": "debug", "INFO": "info", " warning ": "warn", "error": "error", "bogus": "debug"}
	for in, want := range tests {
		if got := ParseLevel(in).String(); got != want {
			t.Fatalf("ParseLevel(%q): want=%s got=%s", in, want, got)
		}
	}
}
