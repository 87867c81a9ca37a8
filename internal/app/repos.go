package app

import (
	"gorm.io/gorm"

	"github.com/yungbote/mealsense-backend/internal/data/repos/analysislog"
	"github.com/yungbote/mealsense-backend/internal/platform/logger"
)

type Repos struct {
	// AnalysisLog is nil when DB_DRIVER=none.
	AnalysisLog analysislog.AnalysisLogRepo
}

func wireRepos(db *gorm.DB, log *logger.Logger) Repos {
	if db == nil {
		log.Info("No database configured, analyses will not be recorded")
		return Repos{}
	}
	log.Info("Wiring repos...")
	return Repos{
		AnalysisLog: analysislog.NewAnalysisLogRepo(db, log),
	}
}
