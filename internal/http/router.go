package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/yungbote/mealsense-backend/internal/http/handlers"
	httpMW "github.com/yungbote/mealsense-backend/internal/http/middleware"
	"github.com/yungbote/mealsense-backend/internal/observability"
	"github.com/yungbote/mealsense-backend/internal/platform/logger"
)

type RouterConfig struct {
	Log         *logger.Logger
	Metrics     *observability.Metrics
	CORSOrigins []string
	// Tracing adds the otelgin middleware; ServiceName names its spans.
	Tracing     bool
	ServiceName string
	// ServeMetrics exposes /metrics on the API listener.
	ServeMetrics bool

	HealthHandler *httpH.HealthHandler
	MealHandler   *httpH.MealHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.Tracing {
		name := cfg.ServiceName
		if name == "" {
			name = "mealsense"
		}
		r.Use(otelgin.Middleware(name))
	}
	r.Use(httpMW.AttachTraceContext())
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.Metrics(cfg.Metrics))
	r.Use(httpMW.CORS(cfg.CORSOrigins))

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
		r.GET("/readyz", cfg.HealthHandler.Ready)
	}
	if cfg.ServeMetrics {
		r.GET("/metrics", gin.WrapF(cfg.Metrics.WriteHTTP))
	}

	api := r.Group("/api")
	{
		// Meals
		if cfg.MealHandler != nil {
			api.POST("/meals/analyze", cfg.MealHandler.Analyze)
			api.GET("/meals/analyses/:requestId", cfg.MealHandler.GetAnalysis)
		}
	}

	return r
}
