package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tdworks/basistracker/internal/alert"
	"github.com/tdworks/basistracker/internal/basis"
	"github.com/tdworks/basistracker/internal/clients/brokerage"
	"github.com/tdworks/basistracker/internal/config"
	"github.com/tdworks/basistracker/internal/database"
	"github.com/tdworks/basistracker/internal/ledger"
	"github.com/tdworks/basistracker/internal/scheduler"
	"github.com/tdworks/basistracker/internal/series"
	serieshandlers "github.com/tdworks/basistracker/internal/series/handlers"
	"github.com/tdworks/basistracker/internal/server"
	syncengine "github.com/tdworks/basistracker/internal/sync"
	"github.com/tdworks/basistracker/pkg/logger"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fallback := logger.New(logger.Config{Level: "info", Pretty: true})
		fallback.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Initialize logger
	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})

	log.Info().Msg("Starting basis tracker")

	// Initialize databases
	ledgerDB, err := database.New(database.Config{
		Path:    cfg.LedgerDBPath(),
		Profile: database.ProfileLedger,
		Name:    "ledger",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize ledger database")
	}
	defer ledgerDB.Close()

	cacheDB, err := database.New(database.Config{
		Path:    cfg.CacheDBPath(),
		Profile: database.ProfileCache,
		Name:    "cache",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize cache database")
	}
	defer cacheDB.Close()

	// Run migrations
	if err := ledgerDB.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("Failed to migrate ledger database")
	}
	if err := cacheDB.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("Failed to migrate cache database")
	}

	// Core services
	store := ledger.NewStore(ledgerDB.Conn(), log)
	basisCache := basis.NewCache(cacheDB.Conn(), log)
	calculator := basis.NewCalculator(store, basisCache, log)
	seriesSvc := series.NewService(store, calculator, log)

	var notifier alert.Notifier = alert.Nop{}
	if cfg.TelegramBotID != "" && cfg.TelegramChatID != "" {
		notifier = alert.NewTelegram(cfg.TelegramBotID, cfg.TelegramChatID, log)
	}

	// Sync engine runs only when broker credentials are configured; the
	// query API still serves a previously-synced ledger without them.
	var syncSvc *syncengine.Service
	if cfg.BrokerBaseURL != "" && cfg.BrokerAPIKey != "" {
		client := brokerage.NewClient(cfg.BrokerBaseURL, cfg.BrokerAPIKey, log)
		syncSvc = syncengine.New(syncengine.Config{
			Store:    store,
			API:      client,
			Notifier: notifier,
			Accounts: cfg.SyncAccounts,
			Overlap:  cfg.SyncOverlap,
			Retry: syncengine.RetryConfig{
				Attempts:  cfg.SyncRetryAttempts,
				BaseDelay: cfg.SyncRetryBase,
			},
			Log: log,
		})
	} else {
		log.Warn().Msg("Broker API not configured, sync disabled")
	}

	// Initialize scheduler
	sched := scheduler.New(log)
	if syncSvc != nil && cfg.SyncSchedule != "" {
		if err := sched.AddJob(cfg.SyncSchedule, syncengine.NewJob(syncSvc, time.Hour)); err != nil {
			log.Fatal().Err(err).Msg("Failed to register sync job")
		}
	}
	sched.Start()
	defer sched.Stop()

	// Initialize HTTP server
	srv := server.New(server.Config{
		Port:           cfg.Port,
		Log:            log,
		Config:         cfg,
		SeriesHandlers: serieshandlers.NewHandler(seriesSvc, log),
		SystemHandlers: server.NewSystemHandlers(log, ledgerDB, cacheDB, syncSvc),
		DevMode:        cfg.DevMode,
	})

	// Start server in goroutine
	go func() {
		if err := srv.Start(); err != nil {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	log.Info().Int("port", cfg.Port).Msg("Server started successfully")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server stopped")
}
