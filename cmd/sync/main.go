// One-shot sync: pulls transactions and prices for every account, then
// exits. Useful for cron-less setups and for backfilling a fresh ledger.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tdworks/basistracker/internal/alert"
	"github.com/tdworks/basistracker/internal/clients/brokerage"
	"github.com/tdworks/basistracker/internal/config"
	"github.com/tdworks/basistracker/internal/database"
	"github.com/tdworks/basistracker/internal/ledger"
	syncengine "github.com/tdworks/basistracker/internal/sync"
	"github.com/tdworks/basistracker/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallback := logger.New(logger.Config{Level: "info", Pretty: true})
		fallback.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})

	if cfg.BrokerBaseURL == "" || cfg.BrokerAPIKey == "" {
		log.Fatal().Msg("BROKER_API_URL and BROKER_API_KEY must be set")
	}

	ledgerDB, err := database.New(database.Config{
		Path:    cfg.LedgerDBPath(),
		Profile: database.ProfileLedger,
		Name:    "ledger",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize ledger database")
	}
	defer ledgerDB.Close()

	if err := ledgerDB.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("Failed to migrate ledger database")
	}

	store := ledger.NewStore(ledgerDB.Conn(), log)
	client := brokerage.NewClient(cfg.BrokerBaseURL, cfg.BrokerAPIKey, log)

	var notifier alert.Notifier = alert.Nop{}
	if cfg.TelegramBotID != "" && cfg.TelegramChatID != "" {
		notifier = alert.NewTelegram(cfg.TelegramBotID, cfg.TelegramChatID, log)
	}

	svc := syncengine.New(syncengine.Config{
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

	// Ctrl-C stops at the next account boundary.
	ctx, cancel := context.WithTimeout(context.Background(), time.Hour)
	defer cancel()
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	report, err := svc.Run(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Sync run failed")
		os.Exit(1)
	}

	log.Info().
		Str("run_id", report.RunID).
		Int("new_transactions", report.NewTransactions).
		Int("duplicates", report.Duplicates).
		Int("price_snapshots", report.PriceSnapshots).
		Int("accounts_failed", len(report.AccountsFailed)).
		Msg("Sync complete")

	if len(report.AccountsFailed) > 0 {
		os.Exit(1)
	}
}
