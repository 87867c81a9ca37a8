// Package vision asks a vision-capable language model to describe a meal
// photo. The adapter probes the configured model first and, when the probe
// fails for any reason, switches to the fallback model unless Force is set.
package vision

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/yungbote/mealsense-backend/internal/domain/meal"
	"github.com/yungbote/mealsense-backend/internal/mealanalysis/cannedtext"
	"github.com/yungbote/mealsense-backend/internal/pkg/httpx"
	"github.com/yungbote/mealsense-backend/internal/platform/ctxutil"
	"github.com/yungbote/mealsense-backend/internal/platform/logger"
	"github.com/yungbote/mealsense-backend/internal/platform/openai"
)

type ProbeFailure string

const (
	ProbeOK               ProbeFailure = ""
	ProbePermissionDenied ProbeFailure = "permission_denied"
	ProbeNotFound         ProbeFailure = "not_found"
	ProbeOther            ProbeFailure = "other"
)

// ClassifyProbeError maps a probe error to the reason logged for the switch.
// The reason never changes which fallback model is used.
func ClassifyProbeError(err error) ProbeFailure {
	switch {
	case err == nil:
		return ProbeOK
	case httpx.IsPermissionDenied(err):
		return ProbePermissionDenied
	case httpx.IsNotFound(err):
		return ProbeNotFound
	default:
		return ProbeOther
	}
}

var (
	ErrEmptyResponse    = errors.New("vision model returned empty content")
	ErrModelUnavailable = errors.New("configured vision model unavailable")
)

type Config struct {
	Model         string
	FallbackModel string
	MaxTokens     int
	Temperature   float64
	Timeout       time.Duration
	// Force pins the configured model: a failed availability check fails the call
	// instead of switching to FallbackModel.
	Force bool
}

func DefaultConfig() Config {
	return Config{
		Model:         "gpt-4-vision-preview",
		FallbackModel: "gpt-4o",
		MaxTokens:     1500,
		Temperature:   0.2,
		Timeout:       45 * time.Second,
	}
}

type Result struct {
	Success           bool
	RawText           string
	ModelUsed         string
	UsedFallbackModel bool
	ProbeFailure      ProbeFailure
	LatencyMs         int64
	Usage             *meal.TokenUsage
	Err               error
}

type Adapter struct {
	log    *logger.Logger
	cfg    Config
	client func() (openai.Client, error)
	now    func() time.Time
}

func New(log *logger.Logger, client openai.Client, cfg Config) *Adapter {
	return NewLazy(log, func() (openai.Client, error) { return client, nil }, cfg)
}

// NewLazy defers building the model client until the first Analyze call. The
// client is built at most once and shared by every later call.
func NewLazy(log *logger.Logger, factory func() (openai.Client, error), cfg Config) *Adapter {
	if log == nil {
		log = logger.NewNop()
	}
	def := DefaultConfig()
	if strings.TrimSpace(cfg.Model) == "" {
		cfg.Model = def.Model
	}
	if strings.TrimSpace(cfg.FallbackModel) == "" {
		cfg.FallbackModel = def.FallbackModel
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = def.MaxTokens
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	return &Adapter{
		log:    log.With("service", "vision.Adapter"),
		cfg:    cfg,
		client: sync.OnceValues(factory),
		now:    time.Now,
	}
}

func (a *Adapter) Config() Config { return a.cfg }

func (a *Adapter) Analyze(ctx context.Context, image []byte, mimeType string, goals, prefs []string) Result {
	ctx = ctxutil.Default(ctx)
	log := a.log.With("request_id", ctxutil.RequestID(ctx))
	start := a.now()
	fail := func(res Result, err error) Result {
		res.Success = false
		res.ModelUsed = meal.ModelUsedError
		res.Err = err
		res.LatencyMs = a.now().Sub(start).Milliseconds()
		return res
	}

	client, err := a.client()
	if err == nil && client == nil {
		err = errors.New("vision model client not configured")
	}
	if err != nil {
		log.Warn("vision model client unavailable", "error", err)
		return fail(Result{}, err)
	}

	ctx, cancel := context.WithTimeout(ctx, a.cfg.Timeout)
	defer cancel()

	var res Result
	model := a.cfg.Model
	if _, perr := client.RetrieveModel(ctx, model); perr != nil {
		res.ProbeFailure = ClassifyProbeError(perr)
		if a.cfg.Force {
			log.Warn("vision model probe failed in force mode",
				"model", model,
				"reason", string(res.ProbeFailure),
				"error", perr,
			)
			return fail(res, fmt.Errorf("%w: %s (%s): %w", ErrModelUnavailable, model, res.ProbeFailure, perr))
		}
		res.UsedFallbackModel = true
		log.Warn("vision model probe failed, using fallback model",
			"model", model,
			"fallback_model", a.cfg.FallbackModel,
			"reason", string(res.ProbeFailure),
			"error", perr,
		)
		model = a.cfg.FallbackModel
	}

	temp := a.cfg.Temperature
	resp, err := client.CreateChatCompletion(ctx, openai.ChatRequest{
		Model:        model,
		System:       cannedtext.Get().VisionSystemPrompt,
		User:         BuildUserPrompt(goals, prefs),
		ImageDataURL: DataURL(image, mimeType),
		ImageDetail:  "high",
		MaxTokens:    a.cfg.MaxTokens,
		Temperature:  &temp,
		JSONMode:     true,
	})
	if err != nil {
		log.Warn("vision model call failed", "model", model, "error", err)
		return fail(res, err)
	}
	if strings.TrimSpace(resp.Content) == "" {
		log.Warn("vision model returned no content", "model", model, "finish_reason", resp.FinishReason)
		return fail(res, ErrEmptyResponse)
	}

	res.Success = true
	res.RawText = resp.Content
	res.ModelUsed = model
	res.LatencyMs = a.now().Sub(start).Milliseconds()
	res.Usage = &meal.TokenUsage{
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		TotalTokens:      resp.Usage.TotalTokens,
	}
	log.Info("vision model responded",
		"model", model,
		"latency_ms", res.LatencyMs,
		"total_tokens", resp.Usage.TotalTokens,
		"raw_text", res.RawText,
	)
	return res
}

func DataURL(image []byte, mimeType string) string {
	if strings.TrimSpace(mimeType) == "" {
		mimeType = "image/jpeg"
	}
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(image)
}

func BuildUserPrompt(goals, prefs []string) string {
	var b strings.Builder
	b.WriteString("Analyze this meal photo.")
	if g := joinNonEmpty(goals); g != "" {
		b.WriteString(" The user's health goals: ")
		b.WriteString(g)
		b.WriteString(". Score each goal in goalScore.specific using the goal name in lowercase without spaces.")
	}
	if p := joinNonEmpty(prefs); p != "" {
		b.WriteString(" Dietary preferences: ")
		b.WriteString(p)
		b.WriteString(". Mention any conflicts in the feedback.")
	}
	return b.String()
}

func joinNonEmpty(items []string) string {
	out := make([]string, 0, len(items))
	for _, s := range items {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return strings.Join(out, ", ")
}
