package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"market-monitor/config"
	"market-monitor/services"
	"market-monitor/server"
	"market-monitor/storage"
	"market-monitor/utils"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		utils.NewLogger().Error("Invalid configuration: %v", err)
		os.Exit(1)
	}
	logger := utils.NewLoggerWithLevel(os.Stdout, cfg.LogLevel)

	logger.Info("=== Market Monitor starting ===")
	logger.Info("Config: listings=%s | stats=%s | zips=%d | broker=%s | addr=%s",
		cfg.ListingsPath, cfg.StatsPath, len(cfg.AllowedZips), cfg.BrokerID, cfg.HTTPAddr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		store    *storage.PostgresStore
		snapshot services.Snapshot
	)
	if cfg.SnapshotEnabled {
		retry := &utils.RetryConfig{MaxAttempts: cfg.MaxRetries, BaseDelay: 2 * time.Second, Logger: logger}
		store, err = storage.NewPostgresStore(ctx, cfg.DSN(), retry)
		if err != nil {
			logger.Error("Snapshot store unavailable, continuing without it: %v", err)
		} else {
			defer store.Close()
			snapshot = store
		}
	}

	allow := services.NewAllowSet(cfg.AllowedZips)
	loader := services.NewLoader(logger, cfg.MaxConcurrency, snapshot)
	ds, report := loader.LoadDataset(ctx, cfg.ListingsPath, cfg.StatsPath, allow, cfg.BrokerID)
	for _, err := range report.Errors() {
		logger.Error("Load failed: %v", err)
	}

	if store != nil {
		saveSnapshot(ctx, store, ds, report, logger)
	}

	insights := services.NewInsightService(logger)
	insights.Print(os.Stdout, insights.Summarize(ds, time.Now()))

	srv := server.New(ds, insights,
		services.NewUploadPreviewer(logger, cfg.PreviewRows, cfg.MaxConcurrency),
		server.NewMetrics(), logger,
		server.Options{
			TopN:           cfg.TopN,
			HistogramBins:  cfg.HistogramBins,
			MaxUploadBytes: cfg.MaxUploadBytes,
			UploadRPS:      cfg.UploadRPS,
			UploadBurst:    cfg.UploadBurst,
		})

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("Shutdown: %v", err)
		}
	}()

	logger.Info("Serving dashboard API on %s", cfg.HTTPAddr)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("HTTP server failed: %v", err)
		os.Exit(1)
	}
	logger.Info("=== Market Monitor stopped ===")
}

// saveSnapshot stores every table that was loaded fresh from its file.
func saveSnapshot(ctx context.Context, store storage.SnapshotStore, ds *services.Dataset, report services.LoadReport, logger *utils.Logger) {
	if report.Listings.Err == nil {
		if err := store.WriteListings(ctx, ds.Listings); err != nil {
			logger.Error("Snapshot listings failed: %v", err)
		} else {
			logger.Info("Snapshot: %d listings stored in PostgreSQL", len(ds.Listings))
		}
	}
	if report.Stats.Err == nil {
		if err := store.WriteStats(ctx, ds.Stats); err != nil {
			logger.Error("Snapshot stats failed: %v", err)
		} else {
			logger.Info("Snapshot: %d stat rows stored in PostgreSQL", len(ds.Stats))
		}
	}
}
