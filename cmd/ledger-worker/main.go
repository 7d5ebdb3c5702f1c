package main

import (
	"context"
	"errors"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"spendwise/internal/cli"
	applog "spendwise/internal/log"
	"spendwise/internal/sheets/google"
	"spendwise/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig()
	logger := cli.SetupLogger(cfg, applog.ComponentWorker)

	if cfg.AMQPURL == "" {
		logger.Error("AMQP_URL is required for the ledger worker")
		os.Exit(1)
	}
	if !cfg.SheetsEnabled() {
		logger.Error("GOOGLE_SPREADSHEET_ID is required for the ledger worker")
		os.Exit(1)
	}

	logger.Info("Starting ledger worker",
		"backend", cfg.DataBackend,
		"queue", cfg.AMQPQueue,
		"batch_size", cfg.SyncBatchSize,
		"sync_interval", cfg.SyncInterval)

	initCtx, cancelInit := context.WithTimeout(applog.NewContext(context.Background(), logger), 30*time.Second)
	defer cancelInit()

	sheets, err := google.New(initCtx, google.Config{
		SpreadsheetID:   cfg.GoogleSpreadsheetID,
		SheetName:       cfg.GoogleSheetName,
		CredentialsJSON: cfg.GoogleServiceAccountJSON,
		CredentialsFile: cfg.GoogleServiceAccountFile,
	})
	if err != nil {
		logger.Error("Failed to initialize Google Sheets client", applog.FieldError, err)
		os.Exit(1)
	}
	if err := sheets.EnsureHeader(initCtx); err != nil {
		logger.Error("Failed to prepare ledger sheet", "sheet", sheets.SheetName(), applog.FieldError, err)
		os.Exit(1)
	}

	res, err := cli.InitBackend(initCtx, logger, cfg)
	if err != nil {
		logger.Error("Failed to initialize backend", applog.FieldError, err)
		os.Exit(1)
	}
	defer func() {
		if err := res.Close(); err != nil {
			logger.Error("Backend cleanup failed", applog.FieldError, err)
		}
	}()

	amqpClient := cli.InitAMQP(logger, cfg)
	if amqpClient == nil {
		logger.Error("AMQP connection is required for the ledger worker")
		os.Exit(1)
	}
	defer amqpClient.Close()

	syncWorker := worker.NewSyncWorker(res.Store, sheets, res.Tracker, cfg.SyncBatchSize)

	// Catch up on anything published while the worker was down.
	if synced, failed, err := syncWorker.ProcessPending(initCtx); err != nil {
		logger.Warn("Initial pending sync failed", applog.FieldError, err)
	} else if synced+failed > 0 {
		logger.Info("Initial pending sync done", "synced", synced, "failed", failed)
	}

	poller := worker.NewPoller(syncWorker, worker.PollerConfig{PollInterval: cfg.SyncInterval})

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(shutdownCtx context.Context) {
		if err := poller.Stop(shutdownCtx); err != nil {
			logger.Error("Poller shutdown error", applog.FieldError, err)
		}
	})
	ctx = applog.NewContext(ctx, logger)

	if err := poller.Start(ctx); err != nil {
		logger.Error("Failed to start pending-sync poller", applog.FieldError, err)
		os.Exit(1)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Consuming ledger events", "queue", cfg.AMQPQueue)
		err := amqpClient.Consume(gctx, syncWorker.HandleLedgerChanged)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	if err := g.Wait(); err != nil {
		logger.Error("Consumer stopped with error", applog.FieldError, err)
		os.Exit(1)
	}
	if ctx.Err() != nil {
		<-done
	}
	logger.Info("Ledger worker stopped")
}
