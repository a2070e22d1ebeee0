// Package main is the entry point for the portfolio rebalancer. The service
// watches a crypto portfolio on Binance, compares it against configured
// target allocations, and submits the market orders needed to converge.
//
// Startup sequence:
//  1. Load configuration from environment variables (.env honored)
//  2. Initialize structured logging
//  3. Open the three databases (config, history, client_data) and migrate
//  4. Wire clients, repositories, services and the orchestrator
//  5. Start the HTTP server and background jobs
//  6. Wait for a shutdown signal and drain gracefully
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Jailtonfonseca/rebalanceamento-binance/internal/clientdata"
	"github.com/Jailtonfonseca/rebalanceamento-binance/internal/clients/binance"
	"github.com/Jailtonfonseca/rebalanceamento-binance/internal/clients/cmc"
	"github.com/Jailtonfonseca/rebalanceamento-binance/internal/config"
	"github.com/Jailtonfonseca/rebalanceamento-binance/internal/database"
	"github.com/Jailtonfonseca/rebalanceamento-binance/internal/modules/executor"
	"github.com/Jailtonfonseca/rebalanceamento-binance/internal/modules/gateway"
	"github.com/Jailtonfonseca/rebalanceamento-binance/internal/modules/history"
	"github.com/Jailtonfonseca/rebalanceamento-binance/internal/modules/planner"
	"github.com/Jailtonfonseca/rebalanceamento-binance/internal/modules/settings"
	"github.com/Jailtonfonseca/rebalanceamento-binance/internal/reliability"
	"github.com/Jailtonfonseca/rebalanceamento-binance/internal/retry"
	"github.com/Jailtonfonseca/rebalanceamento-binance/internal/scheduler"
	"github.com/Jailtonfonseca/rebalanceamento-binance/internal/server"
	"github.com/Jailtonfonseca/rebalanceamento-binance/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{Level: "info", Pretty: true})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.LogPretty,
	})

	log.Info().Msg("Starting rebalancer")

	// Three databases, three durability profiles. The run history is an audit
	// trail for real money and gets the strictest one.
	databases := map[string]*database.DB{}
	for _, dbCfg := range []database.Config{
		{Path: cfg.DatabasePath("config"), Profile: database.ProfileStandard, Name: "config"},
		{Path: cfg.DatabasePath("history"), Profile: database.ProfileLedger, Name: "history"},
		{Path: cfg.DatabasePath("client_data"), Profile: database.ProfileCache, Name: "client_data"},
	} {
		db, err := database.New(dbCfg)
		if err != nil {
			log.Fatal().Err(err).Str("database", dbCfg.Name).Msg("Failed to open database")
		}
		if err := db.Migrate(); err != nil {
			log.Fatal().Err(err).Str("database", dbCfg.Name).Msg("Failed to migrate database")
		}
		databases[dbCfg.Name] = db
	}
	defer func() {
		for name, db := range databases {
			if err := db.Close(); err != nil {
				log.Error().Err(err).Str("database", name).Msg("Failed to close database")
			}
		}
	}()
	log.Info().Int("databases", len(databases)).Msg("Databases initialized")

	cacheRepo := clientdata.NewRepository(databases["client_data"].Conn())

	retryPolicy := retry.DefaultPolicy(log)
	binanceClient := binance.NewClient(binance.Config{
		BaseURL:   cfg.BinanceBaseURL,
		APIKey:    cfg.BinanceAPIKey,
		APISecret: cfg.BinanceAPISecret,
	}, cacheRepo, retryPolicy, log)
	cmcClient := cmc.NewClient(cmc.Config{
		APIKey: cfg.CMCAPIKey,
	}, cacheRepo, retryPolicy, log)

	settingsService := settings.NewService(
		settings.NewRepository(databases["config"].Conn(), log), log)
	runStore := history.NewRepository(databases["history"].Conn(), log)

	orchestrator := executor.NewOrchestrator(
		gateway.NewService(binanceClient, cmcClient, log),
		settingsService,
		planner.New(log),
		runStore,
		executor.NewLiveSubmitter(binanceClient, log),
		executor.NewDryRunSubmitter(binanceClient, log),
		log,
	)

	apiServer := server.New(orchestrator, runStore, settingsService,
		binanceClient, cmcClient, databases, log)

	sched := scheduler.New(log)

	currentSettings, err := settingsService.GetRebalanceSettings()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load rebalance settings")
	}
	if currentSettings.RebalanceSchedule != "" {
		job := scheduler.NewRebalanceJob(orchestrator, log)
		if err := sched.AddJob(currentSettings.RebalanceSchedule, job); err != nil {
			log.Fatal().Err(err).
				Str("schedule", currentSettings.RebalanceSchedule).
				Msg("Invalid rebalance schedule")
		}
	} else {
		log.Info().Msg("No rebalance schedule configured, runs are manual only")
	}

	if err := sched.AddJob("@daily", scheduler.NewCacheCleanupJob(cacheRepo, log)); err != nil {
		log.Fatal().Err(err).Msg("Failed to register cache cleanup job")
	}

	if cfg.Backup.Enabled {
		s3Client, err := reliability.NewS3Client(context.Background(), reliability.S3Config{
			Endpoint:        cfg.Backup.Endpoint,
			Region:          cfg.Backup.Region,
			AccessKeyID:     cfg.Backup.AccessKeyID,
			SecretAccessKey: cfg.Backup.SecretAccessKey,
			Bucket:          cfg.Backup.Bucket,
		}, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create S3 client")
		}
		backupService := reliability.NewBackupService(
			s3Client, databases, cfg.DataDir, cfg.Backup.KeepArchives, log)
		if err := sched.AddJob("@daily", scheduler.NewBackupJob(backupService, log)); err != nil {
			log.Fatal().Err(err).Msg("Failed to register backup job")
		}
	} else {
		log.Info().Msg("Backups disabled, no S3 bucket configured")
	}

	sched.Start()
	defer sched.Stop()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      apiServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 65 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info().Int("port", cfg.Port).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server stopped")
}
