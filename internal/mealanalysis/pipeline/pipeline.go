// Package pipeline turns a meal photo into an AnalysisResult. It picks the
// vision or OCR path, repairs and normalizes whatever the provider returned,
// and downgrades to a fallback tier instead of failing. Analyze never panics
// and never returns an error.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/yungbote/mealsense-backend/internal/domain/meal"
	"github.com/yungbote/mealsense-backend/internal/mealanalysis/fallback"
	"github.com/yungbote/mealsense-backend/internal/mealanalysis/imagequality"
	"github.com/yungbote/mealsense-backend/internal/mealanalysis/jsonrepair"
	"github.com/yungbote/mealsense-backend/internal/mealanalysis/normalize"
	"github.com/yungbote/mealsense-backend/internal/mealanalysis/ocr"
	"github.com/yungbote/mealsense-backend/internal/mealanalysis/textonly"
	"github.com/yungbote/mealsense-backend/internal/mealanalysis/vision"
	"github.com/yungbote/mealsense-backend/internal/observability"
	"github.com/yungbote/mealsense-backend/internal/pkg/httpx"
	"github.com/yungbote/mealsense-backend/internal/platform/ctxutil"
	"github.com/yungbote/mealsense-backend/internal/platform/logger"
)

const (
	StageQuality   = "quality"
	StageVision    = "vision"
	StageExtract   = "extract"
	StageNormalize = "normalize"
	StageOCR       = "ocr"
	StageTextOnly  = "textonly"
)

// ModelUsedTextOnly marks results built from OCR text and a nutrient lookup.
const ModelUsedTextOnly = "text-only"

// Confidence reported for each way a result can be produced.
const (
	ConfidenceVision    = 0.9
	ConfidenceRepaired  = 0.8
	ConfidenceFragments = 0.3
	ConfidenceTextMax   = 0.6
)

type VisionAnalyzer interface {
	Analyze(ctx context.Context, image []byte, mimeType string, goals, prefs []string) vision.Result
}

type TextExtractor interface {
	Extract(ctx context.Context, image []byte, mimeType string) ocr.Result
}

type TextAnalyzer interface {
	Analyze(ctx context.Context, text string, goals, prefs []string) textonly.Result
}

type Config struct {
	// UseVision selects the vision path first.
	UseVision bool
	// ForceVision fails closed when the vision path fails instead of
	// downgrading to OCR.
	ForceVision bool
	Limits      imagequality.Limits
}

func DefaultConfig() Config {
	return Config{UseVision: true, Limits: imagequality.DefaultLimits()}
}

type Pipeline struct {
	log    *logger.Logger
	cfg    Config
	vision VisionAnalyzer
	ocr    TextExtractor
	text   TextAnalyzer
	now    func() time.Time
}

// New wires the pipeline. A nil vision analyzer disables the vision path; a
// nil extractor or text analyzer is replaced by one with no backend, which
// still produces a degraded result.
func New(log *logger.Logger, cfg Config, vis VisionAnalyzer, extractor TextExtractor, text TextAnalyzer) *Pipeline {
	if log == nil {
		log = logger.NewNop()
	}
	if extractor == nil {
		extractor = ocr.New(log, nil, ocr.DefaultConfig())
	}
	if text == nil {
		text = textonly.New(log, nil)
	}
	return &Pipeline{
		log:    log.With("service", "MealAnalysisPipeline"),
		cfg:    cfg,
		vision: vis,
		ocr:    extractor,
		text:   text,
		now:    time.Now,
	}
}

func (p *Pipeline) Analyze(ctx context.Context, req meal.AnalysisRequest) (res meal.AnalysisResult, out Outcome) {
	start := p.now()
	ctx = ctxutil.Default(ctx)

	requestID := strings.TrimSpace(req.RequestID)
	if requestID == "" {
		requestID = ctxutil.RequestID(ctx)
	}
	if requestID == "" {
		requestID = uuid.NewString()
	}
	td := ctxutil.TraceData{RequestID: requestID}
	if cur := ctxutil.GetTraceData(ctx); cur != nil {
		td.TraceID = cur.TraceID
	}
	ctx = ctxutil.WithTraceData(ctx, &td)
	log := p.log.With("request_id", requestID)

	ctx, span := observability.StartSpan(ctx, "meal.analyze", attribute.String("request_id", requestID))
	defer func() {
		var spanErr error
		if r := recover(); r != nil {
			log.Error("meal analysis panicked", "panic", fmt.Sprint(r), "stack", string(debug.Stack()))
			res = fallback.Emergency(fmt.Sprintf("internal error: %v", r))
			out = Outcome{Path: meal.PathNone, Tier: meal.TierEmergency, Category: meal.ErrInternal, Panicked: true}
			spanErr = fmt.Errorf("panic: %v", r)
		}
		res.Metadata.RequestID = requestID
		res.Metadata.ProcessingTimeMs = p.now().Sub(start).Milliseconds()
		if res.Metadata.Path == "" {
			res.Metadata.Path = out.Path
		}
		span.SetAttributes(
			attribute.String("meal.path", string(out.Path)),
			attribute.String("meal.fallback_tier", string(out.Tier)),
			attribute.String("meal.error_category", string(out.Category)),
		)
		observability.EndSpan(span, spanErr)
		observability.Current().ObserveAnalysis(string(out.Path), string(out.Tier), string(out.Category), p.now().Sub(start))
		log.Info("meal analysis finished",
			"path", string(out.Path),
			"tier", string(out.Tier),
			"category", string(out.Category),
			"strategy", string(out.Strategy),
			"confidence", res.Metadata.Confidence,
			"degradations", out.Degradations,
			"processing_ms", res.Metadata.ProcessingTimeMs,
		)
	}()

	res, out = p.run(ctx, log, req)
	res.Metadata.Degradations = out.Degradations
	return res, out
}

func (p *Pipeline) run(ctx context.Context, log *logger.Logger, req meal.AnalysisRequest) (meal.AnalysisResult, Outcome) {
	var out Outcome
	goals := req.HealthGoals

	var rep imagequality.Report
	_ = p.stage(ctx, StageQuality, func(context.Context) error {
		rep = imagequality.Assess(req.Image, p.cfg.Limits)
		if !rep.Valid() {
			return errors.New(rep.Reason)
		}
		return nil
	})
	if !rep.Valid() {
		log.Warn("image rejected", "reason", rep.Reason, "bytes", rep.Bytes)
		res := fallback.Empty(goals, "invalid image: "+rep.Reason)
		res.Metadata.ModelUsed = meal.ModelUsedError
		res.Metadata.ImageQuality = string(rep.Quality)
		res.Metadata.ErrorCategory = meal.ErrInvalidImage
		res.Metadata.Path = meal.PathNone
		out.Path, out.Tier, out.Category = meal.PathNone, meal.TierEmpty, meal.ErrInvalidImage
		return res, out
	}
	mimeType := req.MimeType
	if mimeType == "" {
		mimeType = rep.MimeType
	}

	var visionErr error
	if p.cfg.UseVision || p.cfg.ForceVision {
		out.Path = meal.PathVision
		out.VisionAttempted = true
		var vr vision.Result
		if p.vision == nil {
			vr = vision.Result{ModelUsed: meal.ModelUsedError, Err: errors.New("vision model not configured")}
		} else {
			_ = p.stage(ctx, StageVision, func(ctx context.Context) error {
				vr = p.vision.Analyze(ctx, req.Image, mimeType, goals, req.DietaryPreferences)
				if !vr.Success && vr.Err == nil {
					vr.Err = errors.New("vision model failed")
				}
				return vr.Err
			})
		}
		out.ProbeFailure = vr.ProbeFailure
		if p.cfg.ForceVision && vr.Success && (vr.ProbeFailure != vision.ProbeOK || vr.UsedFallbackModel) {
			// an answer from the fallback model does not satisfy force mode
			vr.Success = false
			vr.ModelUsed = meal.ModelUsedError
			vr.Err = fmt.Errorf("%w: availability check %s", vision.ErrModelUnavailable, vr.ProbeFailure)
		}
		if vr.Success {
			return p.fromModelText(ctx, log, req, rep, vr, out)
		}
		visionErr = vr.Err
		if p.cfg.ForceVision {
			log.Warn("vision path failed in force mode, not downgrading", "error", vr.Err)
			res := fallback.Empty(goals, "vision model unavailable: "+errString(vr.Err))
			res.Metadata.ModelUsed = meal.ModelUsedError
			res.Metadata.UsedFallbackModel = vr.UsedFallbackModel
			res.Metadata.ImageQuality = string(rep.Quality)
			res.Metadata.ErrorCategory = meal.ErrProviderUnavailable
			res.Metadata.Path = meal.PathVision
			out.Tier, out.Category = meal.TierEmpty, meal.ErrProviderUnavailable
			return res, out
		}
		log.Warn("vision path failed, downgrading to OCR", "error", vr.Err)
		out.Degradations++
	}

	return p.fromOCR(ctx, log, req, rep, mimeType, visionErr, out)
}

func (p *Pipeline) fromModelText(ctx context.Context, log *logger.Logger, req meal.AnalysisRequest, rep imagequality.Report, vr vision.Result, out Outcome) (meal.AnalysisResult, Outcome) {
	goals := req.HealthGoals
	stamp := func(res *meal.AnalysisResult) {
		res.Metadata.ModelUsed = vr.ModelUsed
		res.Metadata.UsedFallbackModel = vr.UsedFallbackModel
		res.Metadata.TokenUsage = vr.Usage
		res.Metadata.ImageQuality = string(rep.Quality)
		res.Metadata.Path = meal.PathVision
		res.Metadata.ExtractionStrategy = string(out.Strategy)
	}

	var ext jsonrepair.Extraction
	_ = p.stage(ctx, StageExtract, func(context.Context) error {
		ext = jsonrepair.Extract(vr.RawText)
		if !ext.OK() {
			return errors.New(ext.Error())
		}
		return nil
	})
	out.Strategy, out.Attempts = ext.Strategy, ext.Attempts
	observability.Current().IncExtraction(string(ext.Strategy))

	if !ext.OK() {
		log.Warn("no JSON recovered from model output", "attempts", len(ext.Attempts), "raw_text", vr.RawText)
		res := fallback.Empty(goals, "malformed model output: "+ext.Error())
		stamp(&res)
		res.Metadata.ErrorCategory = meal.ErrMalformedOutput
		out.Tier, out.Category = meal.TierEmpty, meal.ErrMalformedOutput
		out.Degradations++
		return res, out
	}
	if ext.Strategy != jsonrepair.StrategyDirect {
		log.Info("model output repaired", "strategy", string(ext.Strategy), "rank", ext.Strategy.Rank())
	}

	doc := meal.Document(ext.Object)
	missing := normalize.MissingRequired(doc)

	var (
		res      meal.AnalysisResult
		validErr error
	)
	_ = p.stage(ctx, StageNormalize, func(context.Context) error {
		if len(missing) > 0 || ext.Strategy.Reconstructed() {
			res = fallback.Partial(doc, goals, incompleteMessage(missing, ext.Strategy))
		} else {
			res, _ = normalize.Normalize(doc, goals)
			res.Metadata.GeneratedAt = time.Now().UTC()
		}
		validErr = normalize.Validate(res)
		return validErr
	})
	if validErr != nil {
		// Normalize is total; reaching this means a bug, not bad input.
		log.Error("normalized result failed validation", "error", validErr)
		res = fallback.Partial(nil, goals, "normalized result failed validation: "+validErr.Error())
	}
	stamp(&res)

	switch {
	case res.Metadata.IsPartialResult:
		out.Tier, out.Category = meal.TierPartial, meal.ErrIncompleteOutput
		res.Metadata.ErrorCategory = meal.ErrIncompleteOutput
		out.Degradations++
		if ext.Strategy == jsonrepair.StrategyFragments {
			res.Metadata.Confidence = ConfidenceFragments
		}
	case ext.Strategy == jsonrepair.StrategyDirect:
		res.Metadata.Confidence = ConfidenceVision
	default:
		res.Metadata.Confidence = ConfidenceRepaired
	}
	return res, out
}

func (p *Pipeline) fromOCR(ctx context.Context, log *logger.Logger, req meal.AnalysisRequest, rep imagequality.Report, mimeType string, visionErr error, out Outcome) (meal.AnalysisResult, Outcome) {
	goals := req.HealthGoals
	out.Path = meal.PathOCR
	out.OCRAttempted = true

	var oc ocr.Result
	_ = p.stage(ctx, StageOCR, func(ctx context.Context) error {
		oc = p.ocr.Extract(ctx, req.Image, mimeType)
		return oc.Err
	})
	out.OCRSubstituted = oc.Substituted
	switch {
	case oc.Substituted:
		observability.Current().IncOCRResult("substituted")
		out.Degradations++
	case oc.LowConfidence:
		observability.Current().IncOCRResult("low_confidence")
	default:
		observability.Current().IncOCRResult("ok")
	}

	var tr textonly.Result
	_ = p.stage(ctx, StageTextOnly, func(ctx context.Context) error {
		tr = p.text.Analyze(ctx, oc.Text, goals, req.DietaryPreferences)
		if !tr.Success {
			return errors.New(tr.Reason)
		}
		return nil
	})

	var notes []string
	if visionErr != nil {
		notes = append(notes, "vision path failed: "+visionErr.Error())
	}
	if oc.Substituted {
		notes = append(notes, "OCR text unusable, example meal substituted")
	}

	if !tr.Success {
		log.Warn("text-only analysis failed", "reason", tr.Reason, "category", string(tr.Category))
		res := fallback.Empty(goals, strings.Join(append(notes, tr.Reason), "; "))
		res.Metadata.ModelUsed = meal.ModelUsedError
		res.Metadata.ImageQuality = string(rep.Quality)
		res.Metadata.ExtractedFromText = true
		res.Metadata.ErrorCategory = tr.Category
		res.Metadata.Path = meal.PathOCR
		out.Tier, out.Category = meal.TierEmpty, tr.Category
		out.Degradations++
		return res, out
	}

	var res meal.AnalysisResult
	_ = p.stage(ctx, StageNormalize, func(context.Context) error {
		res, _ = normalize.Normalize(tr.Document, goals)
		return normalize.Validate(res)
	})
	res.Metadata.ModelUsed = ModelUsedTextOnly
	res.Metadata.ImageQuality = string(rep.Quality)
	res.Metadata.ExtractedFromText = true
	res.Metadata.Path = meal.PathOCR
	res.Metadata.Confidence = min(ConfidenceTextMax, oc.Confidence)
	res.Metadata.Error = strings.Join(notes, "; ")
	res.Metadata.GeneratedAt = time.Now().UTC()
	switch {
	case oc.Substituted:
		res.Metadata.Confidence = min(res.Metadata.Confidence, ocr.SubstituteConfidence)
		res.Metadata.ErrorCategory = meal.ErrOCRLowConfidence
		out.Category = meal.ErrOCRLowConfidence
	case visionErr != nil:
		res.Metadata.ErrorCategory = meal.ErrProviderUnavailable
		out.Category = meal.ErrProviderUnavailable
	}
	return res, out
}

// stage runs fn inside a span and records its latency.
func (p *Pipeline) stage(ctx context.Context, name string, fn func(context.Context) error) (err error) {
	start := p.now()
	ctx, span := observability.StartSpan(ctx, "meal."+name, attribute.String("stage", name))
	defer func() {
		status := "ok"
		if err != nil {
			status = "failed"
			if label := httpx.StatusLabel(err); label != "error" {
				status = label
			}
		}
		observability.Current().ObserveStage(name, status, p.now().Sub(start))
		observability.EndSpan(span, err)
	}()
	return fn(ctx)
}

func incompleteMessage(missing []string, strategy jsonrepair.Strategy) string {
	if len(missing) > 0 {
		return "model output missing required fields: " + strings.Join(missing, ", ")
	}
	return "model output was reconstructed from fragments (" + string(strategy) + ")"
}

func errString(err error) string {
	if err == nil {
		return "unknown error"
	}
	return err.Error()
}
