// import-leads uploads the local lead collection to the Smartlead global
// list and optionally attaches it to a campaign. One-shot operator tool;
// lead state is read-only here.
package main

import (
	"context"
	"database/sql"
	"flag"
	"os"
	"time"

	_ "github.com/lib/pq"

	"github.com/ignite/lead-engagement/internal/config"
	"github.com/ignite/lead-engagement/internal/pkg/logger"
	"github.com/ignite/lead-engagement/internal/repository/postgres"
	"github.com/ignite/lead-engagement/internal/smartlead"
)

func main() {
	campaignID := flag.Int64("campaign", 0, "campaign id to attach the uploaded leads to (0 = global list only)")
	flag.Parse()

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config/config.yaml"
	}
	cfg, err := config.LoadFromEnv(configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err.Error())
		os.Exit(1)
	}
	if cfg.Smartlead.APIKey == "" {
		logger.Error("SMARTLEAD_API_KEY is required")
		os.Exit(1)
	}

	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		logger.Error("failed to open database", "error", err.Error())
		os.Exit(1)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	leads, err := postgres.NewLeadStore(db).List(ctx)
	if err != nil {
		logger.Error("failed to load leads", "error", err.Error())
		os.Exit(1)
	}
	if len(leads) == 0 {
		logger.Info("no leads to upload")
		return
	}

	exporter := smartlead.NewExporter(smartlead.NewClient(cfg.Smartlead))
	if err := exporter.PushAll(ctx, leads, *campaignID); err != nil {
		logger.Error("lead upload failed", "error", err.Error())
		os.Exit(1)
	}
	logger.Info("lead upload complete", "total", len(leads), "campaign_id", *campaignID)
}
