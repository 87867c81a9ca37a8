package observability

import (
	"context"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/yungbote/mealsense-backend/internal/platform/envutil"
	"github.com/yungbote/mealsense-backend/internal/platform/logger"
)

type Metrics struct {
	apiRequests     *CounterVec
	apiLatency      *HistogramVec
	apiInflight     *Gauge
	llmRequests     *CounterVec
	llmLatency      *HistogramVec
	llmTokens       *CounterVec
	analyses        *CounterVec
	analysisLatency *HistogramVec
	stageLatency    *HistogramVec
	extraction      *CounterVec
	ocrResults      *CounterVec
	nutrientCache   *CounterVec
	dbStats         *GaugeVec
	redisUp         *Gauge
	redisPing       *Gauge
}

var (
	initOnce sync.Once
	instance *Metrics
)

// Current returns the process metrics, or nil when metrics are disabled.
// Every method is safe on a nil receiver.
func Current() *Metrics {
	return instance
}

func Init(log *logger.Logger, enabled bool) *Metrics {
	if !enabled {
		return nil
	}
	initOnce.Do(func() {
		instance = newMetrics()
		if log != nil {
			log.Info("metrics enabled")
		}
	})
	return instance
}

func newMetrics() *Metrics {
	latency := []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30}
	slow := []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30, 45, 60}
	return &Metrics{
		apiRequests:     NewCounterVec("ms_api_requests_total", "Total API requests by method/route/status.", []string{"method", "route", "status"}),
		apiLatency:      NewHistogramVec("ms_api_request_duration_seconds", "API request latency in seconds by method/route/status.", []string{"method", "route", "status"}, latency),
		apiInflight:     NewGauge("ms_api_inflight_requests", "In-flight API requests."),
		llmRequests:     NewCounterVec("ms_llm_requests_total", "Vision model requests by model/endpoint/status.", []string{"model", "endpoint", "status"}),
		llmLatency:      NewHistogramVec("ms_llm_request_duration_seconds", "Vision model request latency in seconds.", []string{"model", "endpoint", "status"}, slow),
		llmTokens:       NewCounterVec("ms_llm_tokens_total", "Tokens reported by the vision model.", []string{"model", "kind"}),
		analyses:        NewCounterVec("ms_meal_analyses_total", "Meal analyses by path, fallback tier and error category.", []string{"path", "tier", "category"}),
		analysisLatency: NewHistogramVec("ms_meal_analysis_duration_seconds", "End-to-end meal analysis latency in seconds.", []string{"path"}, slow),
		stageLatency:    NewHistogramVec("ms_pipeline_stage_duration_seconds", "Pipeline stage latency in seconds.", []string{"stage", "status"}, latency),
		extraction:      NewCounterVec("ms_json_extraction_total", "Model output extraction results by strategy.", []string{"strategy"}),
		ocrResults:      NewCounterVec("ms_ocr_results_total", "OCR adapter results by outcome.", []string{"outcome"}),
		nutrientCache:   NewCounterVec("ms_nutrient_cache_total", "Nutrient lookup cache results.", []string{"result"}),
		dbStats:         NewGaugeVec("ms_db_pool", "Database connection pool stats.", []string{"stat"}),
		redisUp:         NewGauge("ms_redis_up", "Redis connectivity (1=up, 0=down)."),
		redisPing:       NewGauge("ms_redis_ping_seconds", "Redis ping latency in seconds."),
	}
}

func (m *Metrics) WriteHTTP(w http.ResponseWriter, r *http.Request) {
	if m == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	_ = m.WritePrometheus(w)
}

func (m *Metrics) WritePrometheus(w io.Writer) error {
	if m == nil {
		return nil
	}
	for _, c := range []interface{ WritePrometheus(io.Writer) error }{
		m.apiRequests, m.apiLatency, m.apiInflight,
		m.llmRequests, m.llmLatency, m.llmTokens,
		m.analyses, m.analysisLatency, m.stageLatency,
		m.extraction, m.ocrResults, m.nutrientCache,
		m.dbStats, m.redisUp, m.redisPing,
	} {
		if err := c.WritePrometheus(w); err != nil {
			return err
		}
	}
	return nil
}

func (m *Metrics) ObserveAPI(method, route, status string, dur time.Duration) {
	if m == nil {
		return
	}
	if method == "" {
		method = "UNKNOWN"
	}
	if route == "" {
		route = "unknown"
	}
	if status == "" {
		status = "0"
	}
	m.apiRequests.Inc(method, route, status)
	m.apiLatency.Observe(dur.Seconds(), method, route, status)
}

func (m *Metrics) APIInflightInc() {
	if m == nil {
		return
	}
	m.apiInflight.Inc()
}

func (m *Metrics) APIInflightDec() {
	if m == nil {
		return
	}
	m.apiInflight.Dec()
}

func (m *Metrics) ObserveLLMRequest(model, endpoint, status string, dur time.Duration, inputTokens, outputTokens int) {
	if m == nil {
		return
	}
	model = orUnknown(model)
	endpoint = orUnknown(endpoint)
	if status = strings.TrimSpace(status); status == "" {
		status = "0"
	}
	m.llmRequests.Inc(model, endpoint, status)
	if dur > 0 {
		m.llmLatency.Observe(dur.Seconds(), model, endpoint, status)
	}
	if inputTokens > 0 {
		m.llmTokens.Add(float64(inputTokens), model, "input")
	}
	if outputTokens > 0 {
		m.llmTokens.Add(float64(outputTokens), model, "output")
	}
}

func (m *Metrics) ObserveAnalysis(path, tier, category string, dur time.Duration) {
	if m == nil {
		return
	}
	if tier == "" {
		tier = "none"
	}
	if category == "" {
		category = "none"
	}
	path = orUnknown(path)
	m.analyses.Inc(path, tier, category)
	m.analysisLatency.Observe(dur.Seconds(), path)
}

func (m *Metrics) ObserveStage(stage, status string, dur time.Duration) {
	if m == nil {
		return
	}
	m.stageLatency.Observe(dur.Seconds(), orUnknown(stage), orUnknown(status))
}

func (m *Metrics) IncExtraction(strategy string) {
	if m == nil {
		return
	}
	if strategy == "" {
		strategy = "exhausted"
	}
	m.extraction.Inc(strategy)
}

func (m *Metrics) IncOCRResult(outcome string) {
	if m == nil {
		return
	}
	m.ocrResults.Inc(orUnknown(outcome))
}

func (m *Metrics) IncNutrientCache(result string) {
	if m == nil {
		return
	}
	m.nutrientCache.Inc(orUnknown(result))
}

func (m *Metrics) StartDBCollector(ctx context.Context, log *logger.Logger, db *gorm.DB) {
	if m == nil || db == nil {
		return
	}
	interval := scrapeInterval()
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				sqlDB, err := db.DB()
				if err != nil {
					if log != nil {
						log.Warn("metrics: db stats unavailable", "error", err)
					}
					continue
				}
				stats := sqlDB.Stats()
				m.dbStats.Set(float64(stats.OpenConnections), "open_connections")
				m.dbStats.Set(float64(stats.InUse), "in_use")
				m.dbStats.Set(float64(stats.Idle), "idle")
				m.dbStats.Set(float64(stats.WaitCount), "wait_count")
			}
		}
	}()
}

func (m *Metrics) StartRedisCollector(ctx context.Context, log *logger.Logger, rdb *redis.Client) {
	if m == nil || rdb == nil {
		return
	}
	interval := scrapeInterval()
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				start := time.Now()
				if err := rdb.Ping(ctx).Err(); err != nil {
					m.redisUp.Set(0)
					if log != nil {
						log.Warn("metrics: redis ping failed", "error", err)
					}
					continue
				}
				m.redisUp.Set(1)
				m.redisPing.Set(time.Since(start).Seconds())
			}
		}
	}()
}

func scrapeInterval() time.Duration {
	d := envutil.Duration("METRICS_SCRAPE_INTERVAL", 10*time.Second)
	if d <= 0 {
		return 10 * time.Second
	}
	return d
}

func orUnknown(s string) string {
	if s = strings.TrimSpace(s); s == "" {
		return "unknown"
	}
	return s
}
