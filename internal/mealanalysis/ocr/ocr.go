// Package ocr wraps an external OCR engine. Extract always returns usable
// text: when the engine fails, or reports low confidence and too little
// text, one of the canned example meals is substituted and the result says
// so.
package ocr

import (
	"context"
	"errors"
	"math/rand/v2"
	"strings"

	"google.golang.org/grpc/status"

	"github.com/yungbote/mealsense-backend/internal/mealanalysis/cannedtext"
	"github.com/yungbote/mealsense-backend/internal/platform/ctxutil"
	"github.com/yungbote/mealsense-backend/internal/platform/logger"
)

// Engine is an OCR backend. confidence is on a 0-100 scale.
type Engine interface {
	Recognize(ctx context.Context, img []byte, mimeType string) (text string, confidence float64, err error)
}

// Whitelist is the character set kept from engine output; food labels and
// menus rarely need anything else.
const Whitelist = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789 ,.-%()/&'"

// SubstituteConfidence is reported when the text is a canned meal.
const SubstituteConfidence = 0.2

type Config struct {
	// 0-1; engine results below it are low confidence
	ConfidenceThreshold float64
	MinTextLength       int
}

func DefaultConfig() Config {
	return Config{ConfidenceThreshold: 0.7, MinTextLength: 10}
}

type Result struct {
	Text string
	// 0-1
	Confidence       float64
	EngineConfidence float64
	LowConfidence    bool
	Substituted      bool
	// the engine failure that forced a substitution, if any
	Err error
}

var ErrNoEngine = errors.New("ocr engine not configured")

type Adapter struct {
	log    *logger.Logger
	engine Engine
	cfg    Config
	pick   func(n int) int
}

func New(log *logger.Logger, engine Engine, cfg Config) *Adapter {
	if log == nil {
		log = logger.NewNop()
	}
	if cfg.ConfidenceThreshold <= 0 {
		cfg.ConfidenceThreshold = DefaultConfig().ConfidenceThreshold
	}
	if cfg.MinTextLength <= 0 {
		cfg.MinTextLength = DefaultConfig().MinTextLength
	}
	return &Adapter{
		log:    log.With("service", "ocr.Adapter"),
		engine: engine,
		cfg:    cfg,
		pick:   rand.IntN,
	}
}

func (a *Adapter) Extract(ctx context.Context, img []byte, mimeType string) Result {
	ctx = ctxutil.Default(ctx)
	log := a.log.With("request_id", ctxutil.RequestID(ctx))

	if a.engine == nil {
		return a.substitute(log, Result{Err: ErrNoEngine, LowConfidence: true})
	}

	raw, conf, err := a.engine.Recognize(ctx, img, mimeType)
	if err != nil {
		log.Warn("OCR engine failed", "error", err, "grpc_code", status.Code(err).String())
		return a.substitute(log, Result{Err: err, LowConfidence: true})
	}

	text := Filter(raw)
	conf01 := clamp01(conf / 100)
	res := Result{
		Text:             text,
		Confidence:       conf01,
		EngineConfidence: conf,
		LowConfidence:    conf01 < a.cfg.ConfidenceThreshold,
	}
	short := len(text) < a.cfg.MinTextLength
	if text == "" || (res.LowConfidence && short) {
		log.Info("OCR result unusable, substituting canned meal",
			"engine_confidence", conf,
			"chars", len(text),
			"threshold", a.cfg.ConfidenceThreshold,
		)
		return a.substitute(log, res)
	}
	if res.LowConfidence {
		log.Info("OCR confidence below threshold", "engine_confidence", conf, "chars", len(text))
	}
	return res
}

func (a *Adapter) substitute(log *logger.Logger, res Result) Result {
	meals := cannedtext.Get().FallbackMeals
	idx := 0
	if n := len(meals); n > 1 {
		idx = a.pick(n)
		if idx < 0 || idx >= n {
			idx = 0
		}
	}
	res.Text = meals[idx]
	res.Substituted = true
	res.Confidence = min(res.Confidence, SubstituteConfidence)
	if res.Confidence == 0 {
		res.Confidence = SubstituteConfidence
	}
	log.Debug("canned meal chosen", "index", idx)
	return res
}

// Filter drops every character outside Whitelist and collapses whitespace.
func Filter(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r == '\n' || r == '\t' || r == '\r':
			b.WriteByte(' ')
		case r < 128 && strings.ContainsRune(Whitelist, r):
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

func clamp01(f float64) float64 {
	if f < 0 || f != f {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
