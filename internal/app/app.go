package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/gin-gonic/gin"
	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/yungbote/mealsense-backend/internal/config"
	"github.com/yungbote/mealsense-backend/internal/data/db"
	apphttp "github.com/yungbote/mealsense-backend/internal/http"
	"github.com/yungbote/mealsense-backend/internal/mealanalysis/pipeline"
	"github.com/yungbote/mealsense-backend/internal/observability"
	"github.com/yungbote/mealsense-backend/internal/platform/logger"
)

const serviceName = "mealsense"

type App struct {
	Log      *logger.Logger
	Cfg      config.Config
	DB       *gorm.DB
	Redis    *goredis.Client
	Metrics  *observability.Metrics
	Repos    Repos
	Clients  Clients
	Pipeline *pipeline.Pipeline
	Router   *gin.Engine

	otelShutdown func(context.Context) error
}

// New wires the service from cfg. Optional backends (database, redis, OCR,
// nutrition lookups) that are not configured are left out and the pipeline
// degrades around them; a backend that is configured but unreachable is an
// error.
func New(ctx context.Context, log *logger.Logger, cfg config.Config) (*App, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}

	shutdown := observability.InitOTel(ctx, log, observability.OtelConfig{
		Enabled:     cfg.OtelEnabled,
		ServiceName: serviceName,
		Environment: cfg.Environment,
	})
	metrics := observability.Init(log, cfg.MetricsEnabled)

	theDB, err := db.Open(log, db.Config{Driver: cfg.Database.Driver, DSN: cfg.Database.DSN})
	if err != nil {
		return nil, fmt.Errorf("init database: %w", err)
	}

	clients, err := wireClients(log, cfg)
	if err != nil {
		_ = db.Close(theDB)
		return nil, err
	}

	reposet := wireRepos(theDB, log)
	pipe := wirePipeline(log, cfg, clients)
	handlerset := wireHandlers(log, cfg, theDB, clients, reposet, pipe)
	router := wireRouter(log, cfg, metrics, handlerset)

	return &App{
		Log:          log,
		Cfg:          cfg,
		DB:           theDB,
		Redis:        clients.Redis,
		Metrics:      metrics,
		Repos:        reposet,
		Clients:      clients,
		Pipeline:     pipe,
		Router:       router,
		otelShutdown: shutdown,
	}, nil
}

// Run serves the API (and the metrics listener when METRICS_ADDR is set)
// until ctx is done or a listener fails.
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.Router == nil {
		return errors.New("app not initialized")
	}
	g, ctx := errgroup.WithContext(ctx)

	a.Metrics.StartDBCollector(ctx, a.Log, a.DB)
	a.Metrics.StartRedisCollector(ctx, a.Log, a.Redis)

	g.Go(func() error {
		a.Log.Info("HTTP server listening", "addr", a.Cfg.HTTPAddr)
		return apphttp.ServeHandler(ctx, a.Cfg.HTTPAddr, a.Router)
	})
	if a.Metrics != nil && a.Cfg.MetricsAddr != "" {
		g.Go(func() error {
			a.Log.Info("metrics server listening", "addr", a.Cfg.MetricsAddr)
			return apphttp.ServeHandler(ctx, a.Cfg.MetricsAddr, metricsHandler(a.Metrics))
		})
	}
	return g.Wait()
}

func (a *App) Close() {
	if a == nil {
		return
	}
	a.Clients.Close()
	if err := db.Close(a.DB); err != nil {
		a.Log.Warn("database close failed", "error", err)
	}
	if a.otelShutdown != nil {
		if err := a.otelShutdown(context.Background()); err != nil {
			a.Log.Warn("otel shutdown failed", "error", err)
		}
	}
	a.Log.Sync()
}
