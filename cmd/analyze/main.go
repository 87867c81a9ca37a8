// Command analyze runs the meal analysis pipeline against local image files
// and prints each result as JSON. With -recent it lists the latest rows of
// the analysis log instead.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"

	"github.com/yungbote/mealsense-backend/internal/app"
	"github.com/yungbote/mealsense-backend/internal/config"
	"github.com/yungbote/mealsense-backend/internal/data/repos/analysislog"
	"github.com/yungbote/mealsense-backend/internal/domain/meal"
	"github.com/yungbote/mealsense-backend/internal/platform/logger"
)

type listFlag []string

func (l *listFlag) String() string { return strings.Join(*l, ",") }
func (l *listFlag) Set(v string) error {
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			*l = append(*l, part)
		}
	}
	return nil
}

func main() {
	var goals, prefs listFlag
	var recent int
	var record bool
	flag.Var(&goals, "goal", "health goal (repeatable or comma separated)")
	flag.Var(&prefs, "pref", "dietary preference (repeatable or comma separated)")
	flag.IntVar(&recent, "recent", 0, "list the N most recent recorded analyses and exit")
	flag.BoolVar(&record, "record", false, "write each result to the analysis log")
	flag.Parse()

	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("load config: %v\n", err)
		os.Exit(1)
	}
	log, err := logger.New(logger.Options{Mode: cfg.LogMode, Level: cfg.LogLevel, Redact: cfg.LogRedaction})
	if err != nil {
		fmt.Printf("init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx := context.Background()
	application, err := app.New(ctx, log, cfg)
	if err != nil {
		fmt.Printf("init app: %v\n", err)
		os.Exit(1)
	}
	defer application.Close()

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	if recent > 0 {
		if application.Repos.AnalysisLog == nil {
			fmt.Println("no database configured (DB_DRIVER=none)")
			os.Exit(1)
		}
		rows, err := application.Repos.AnalysisLog.ListRecent(ctx, nil, recent)
		if err != nil {
			fmt.Printf("list analyses: %v\n", err)
			os.Exit(1)
		}
		_ = enc.Encode(rows)
		return
	}

	if flag.NArg() == 0 {
		fmt.Println("usage: analyze [-goal g] [-pref p] [-record] image...")
		os.Exit(2)
	}

	failed := 0
	for _, path := range flag.Args() {
		img, err := os.ReadFile(path)
		if err != nil {
			fmt.Printf("read %s: %v\n", path, err)
			failed++
			continue
		}
		req := meal.NewAnalysisRequest(img, mime.TypeByExtension(filepath.Ext(path)), goals, prefs, "")
		res, out := application.Pipeline.Analyze(ctx, req)
		if record && application.Repos.AnalysisLog != nil {
			row, err := analysislog.NewRow(res)
			if err == nil {
				_, err = application.Repos.AnalysisLog.Create(ctx, nil, []*meal.AnalysisLog{row})
			}
			if err != nil {
				log.Warn("failed to record analysis", "file", path, "error", err)
			}
		}
		if out.Degraded() {
			failed++
		}
		_ = enc.Encode(map[string]any{"file": path, "path": out.Path, "tier": out.Tier, "result": res})
	}
	if failed > 0 {
		os.Exit(1)
	}
}
