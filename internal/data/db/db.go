package db

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/yungbote/mealsense-backend/internal/domain/meal"
	"github.com/yungbote/mealsense-backend/internal/platform/logger"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverNone     = "none"
)

type Config struct {
	Driver string
	DSN    string
}

// Open connects to the configured database and migrates the analysis log.
// It returns (nil, nil) for the "none" driver.
func Open(logg *logger.Logger, cfg Config) (*gorm.DB, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	var dialector gorm.Dialector
	switch driver {
	case "", DriverNone:
		return nil, nil
	case DriverPostgres:
		if strings.TrimSpace(cfg.DSN) == "" {
			return nil, fmt.Errorf("DB_DSN is required for the postgres driver")
		}
		dialector = postgres.Open(cfg.DSN)
	case DriverSQLite:
		dsn := strings.TrimSpace(cfg.DSN)
		if dsn == "" {
			dsn = "file:mealsense.db?_busy_timeout=5000"
		}
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("unknown DB_DRIVER %q", cfg.Driver)
	}

	gormLog := gormLogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormLogger.Config{
			SlowThreshold:             500 * time.Millisecond,
			LogLevel:                  gormLogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	gdb, err := gorm.Open(dialector, &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger:                                   gormLog,
	})
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", driver, err)
	}
	if err := AutoMigrateAll(gdb); err != nil {
		return nil, fmt.Errorf("%s automigrate: %w", driver, err)
	}
	if logg != nil {
		logg.With("service", "Database").Info("database ready", "driver", driver)
	}
	return gdb, nil
}

func AutoMigrateAll(db *gorm.DB) error {
	return db.AutoMigrate(
		&meal.AnalysisLog{},
	)
}

func Close(db *gorm.DB) error {
	if db == nil {
		return nil
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
