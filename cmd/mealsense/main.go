package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/yungbote/mealsense-backend/internal/app"
	"github.com/yungbote/mealsense-backend/internal/config"
	"github.com/yungbote/mealsense-backend/internal/platform/logger"
)

func main() {
	// .env is optional
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Printf("Failed to load .env: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Options{Mode: cfg.LogMode, Level: cfg.LogLevel, Redact: cfg.LogRedaction})
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, log, cfg)
	if err != nil {
		log.Error("Failed to init app", "error", err)
		os.Exit(1)
	}
	defer application.Close()

	if err := application.Run(ctx); err != nil {
		log.Error("Server exited", "error", err)
		os.Exit(1)
	}
	log.Info("Server stopped")
}
