package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/ignite/lead-engagement/internal/api"
	"github.com/ignite/lead-engagement/internal/classifier"
	"github.com/ignite/lead-engagement/internal/config"
	"github.com/ignite/lead-engagement/internal/dedup"
	"github.com/ignite/lead-engagement/internal/engagement"
	"github.com/ignite/lead-engagement/internal/pkg/logger"
	"github.com/ignite/lead-engagement/internal/repository/postgres"
	"github.com/ignite/lead-engagement/internal/smartlead"
)

// runSegmentSync pushes current segments to the remote platform hourly.
// Sync failures never touch lead state; the next run retries.
func runSegmentSync(ctx context.Context, exporter *smartlead.Exporter, leads *postgres.LeadStore) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for range ticker.C {
		all, err := leads.List(ctx)
		if err != nil {
			logger.Warn("segment sync skipped", "error", err.Error())
			continue
		}
		stats := exporter.SyncSegments(ctx, all)
		logger.Info("segment sync complete",
			"updated", stats.Updated, "created", stats.Created, "failed", stats.Failed)
	}
}

func main() {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config/config.yaml"
	}

	cfg, err := config.LoadFromEnv(configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err.Error())
		os.Exit(1)
	}

	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		logger.Error("failed to open database", "error", err.Error())
		os.Exit(1)
	}
	defer db.Close()
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxOpenConns / 2)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := db.PingContext(pingCtx); err != nil {
		cancel()
		logger.Error("database unreachable", "error", err.Error())
		os.Exit(1)
	}
	cancel()
	logger.Info("connected to database")

	leadStore := postgres.NewLeadStore(db)
	auditStore := postgres.NewAuditStore(db)

	opts := []engagement.Option{
		engagement.WithThresholds(classifier.Thresholds{
			MinHumanSeconds:      cfg.Tracking.MinHumanSeconds,
			GmailProxySeconds:    cfg.Tracking.GmailProxySeconds,
			AppleProxySeconds:    cfg.Tracking.AppleProxySeconds,
			DesktopClientSeconds: cfg.Tracking.DesktopClientSeconds,
		}),
	}

	if cfg.Redis.Enabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		ttl := time.Duration(cfg.Redis.DedupTTLHrs) * time.Hour
		opts = append(opts, engagement.WithSeenCache(dedup.NewCache(rdb, ttl)))
		logger.Info("dedup cache enabled", "addr", cfg.Redis.Addr)
	}

	service := engagement.NewService(leadStore, auditStore, opts...)
	server := api.NewServer(service, leadStore, auditStore, db)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	go func() {
		logger.Info("engagement tracker listening", "addr", addr)
		if err := server.ListenAndServe(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "error", err.Error())
			os.Exit(1)
		}
	}()

	if cfg.Smartlead.APIKey != "" {
		exporter := smartlead.NewExporter(smartlead.NewClient(cfg.Smartlead))
		go runSegmentSync(context.Background(), exporter, leadStore)
		logger.Info("segment sync enabled", "base_url", cfg.Smartlead.BaseURL)
	}

	// Liveness heartbeat, also keeps idle platform containers warm.
	heartbeat := time.NewTicker(14 * time.Minute)
	defer heartbeat.Stop()
	go func() {
		for range heartbeat.C {
			logger.Info("heartbeat", "addr", addr)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("shutdown failed", "error", err.Error())
	}
}
