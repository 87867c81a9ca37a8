package logger

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Logger struct {
	SugaredLogger *zap.SugaredLogger
	fields        fieldPolicy
}

type Options struct {
	// Mode is "production" (JSON) or anything else (console).
	Mode string
	// Level is debug, info, warn or error. Empty means debug.
	Level string
	// Redact masks credential fields and shortens blob fields.
	Redact bool
}

func New(opts Options) (*Logger, error) {
	var cfg zap.Config
	switch strings.ToLower(strings.TrimSpace(opts.Mode)) {
	case "prod", "production":
		cfg = zap.NewProductionConfig()
	default:
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(ParseLevel(opts.Level))
	zapLogger, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return &Logger{SugaredLogger: zapLogger.Sugar(), fields: fieldPolicy{enabled: opts.Redact}}, nil
}

// NewNop returns a logger that discards everything. Used by tests and by
// components constructed without an explicit logger.
func NewNop() *Logger {
	return &Logger{SugaredLogger: zap.NewNop().Sugar()}
}

// NewWithCore wraps an existing zap core, e.g. an observer in tests.
func NewWithCore(core zapcore.Core, redact bool) *Logger {
	return &Logger{SugaredLogger: zap.New(core).Sugar(), fields: fieldPolicy{enabled: redact}}
}

func ParseLevel(s string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "info":
		return zap.InfoLevel
	case "warn", "warning":
		return zap.WarnLevel
	case "error":
		return zap.ErrorLevel
	default:
		return zap.DebugLevel
	}
}

func (l *Logger) Sync() {
	_ = l.SugaredLogger.Sync()
}

func (l *Logger) Debug(msg string, keysAndValues ...interface{}) {
	l.SugaredLogger.Debugw(msg, l.fields.apply(keysAndValues)...)
}
func (l *Logger) Info(msg string, keysAndValues ...interface{}) {
	l.SugaredLogger.Infow(msg, l.fields.apply(keysAndValues)...)
}
func (l *Logger) Warn(msg string, keysAndValues ...interface{}) {
	l.SugaredLogger.Warnw(msg, l.fields.apply(keysAndValues)...)
}
func (l *Logger) Error(msg string, keysAndValues ...interface{}) {
	l.SugaredLogger.Errorw(msg, l.fields.apply(keysAndValues)...)
}
func (l *Logger) Fatal(msg string, keysAndValues ...interface{}) {
	l.SugaredLogger.Fatalw(msg, l.fields.apply(keysAndValues)...)
}
func (l *Logger) With(keysAndValues ...interface{}) *Logger {
	return &Logger{SugaredLogger: l.SugaredLogger.With(l.fields.apply(keysAndValues)...), fields: l.fields}
}

// Base64 images and raw model output can run to megabytes; values under blob
// keys keep only this many bytes.
const maxBlobBytes = 256

// Key fragments, matched against the lowercased key.
var (
	secretKeys = []string{"api_key", "apikey", "app_key", "authorization", "secret", "password", "dsn"}
	blobKeys   = []string{"image", "raw_text", "body", "prompt"}
)

type fieldPolicy struct {
	enabled bool
}

func (p fieldPolicy) apply(kv []interface{}) []interface{} {
	if !p.enabled || len(kv) == 0 {
		return kv
	}
	out := make([]interface{}, len(kv))
	copy(out, kv)
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		out[i+1] = p.value(strings.ToLower(key), kv[i+1])
	}
	return out
}

func (p fieldPolicy) value(key string, v interface{}) interface{} {
	switch {
	case isSecretKey(key):
		return "[REDACTED]"
	case hasAny(key, blobKeys):
		return clip(v)
	default:
		return v
	}
}

// isSecretKey also masks "token" fields but not token counts ("tokens",
// "prompt_tokens").
func isSecretKey(key string) bool {
	if hasAny(key, secretKeys) {
		return true
	}
	return strings.Contains(key, "token") && !strings.Contains(key, "tokens")
}

func hasAny(key string, frags []string) bool {
	for _, f := range frags {
		if strings.Contains(key, f) {
			return true
		}
	}
	return false
}

func clip(v interface{}) interface{} {
	var s string
	switch t := v.(type) {
	case string:
		s = t
	case []byte:
		return fmt.Sprintf("(%d bytes)", len(t))
	default:
		return v
	}
	if len(s) <= maxBlobBytes {
		return s
	}
	cut := maxBlobBytes
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return fmt.Sprintf("%s...(%d bytes)", s[:cut], len(s))
}
