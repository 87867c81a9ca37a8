package app

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/yungbote/mealsense-backend/internal/config"
	apphttp "github.com/yungbote/mealsense-backend/internal/http"
	httpH "github.com/yungbote/mealsense-backend/internal/http/handlers"
	"github.com/yungbote/mealsense-backend/internal/mealanalysis/pipeline"
	"github.com/yungbote/mealsense-backend/internal/observability"
	"github.com/yungbote/mealsense-backend/internal/platform/logger"
)

type Handlers struct {
	Health *httpH.HealthHandler
	Meal   *httpH.MealHandler
}

func wireHandlers(log *logger.Logger, cfg config.Config, db *gorm.DB, clients Clients, repos Repos, pipe *pipeline.Pipeline) Handlers {
	log.Info("Wiring handlers...")
	return Handlers{
		Health: httpH.NewHealthHandler(db, clients.Redis),
		Meal: httpH.NewMealHandler(httpH.MealHandlerDeps{
			Log:           log,
			Analyzer:      pipe,
			Logs:          repos.AnalysisLog,
			MaxImageBytes: cfg.Image.MaxBytes,
		}),
	}
}

func wireRouter(log *logger.Logger, cfg config.Config, metrics *observability.Metrics, handlers Handlers) *gin.Engine {
	return apphttp.NewRouter(apphttp.RouterConfig{
		Log:         log,
		Metrics:     metrics,
		CORSOrigins: cfg.CORSOrigins,
		Tracing:     cfg.OtelEnabled,
		ServiceName: serviceName,
		// with a dedicated listener /metrics stays off the public port
		ServeMetrics:  metrics != nil && cfg.MetricsAddr == "",
		HealthHandler: handlers.Health,
		MealHandler:   handlers.Meal,
	})
}

func metricsHandler(m *observability.Metrics) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", m.WriteHTTP)
	return mux
}
