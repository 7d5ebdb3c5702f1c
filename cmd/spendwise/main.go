package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"spendwise/internal/cache"
	"spendwise/internal/cli"
	"spendwise/internal/core"
	httpserver "spendwise/internal/http"
	applog "spendwise/internal/log"
	"spendwise/internal/parser"
	"spendwise/internal/services"
)

func main() {
	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig()
	logger := cli.SetupLogger(cfg, applog.ComponentApp)

	logger.Info("Starting spendwise", "port", cfg.Port, "backend", cfg.DataBackend)

	res, err := cli.InitBackend(context.Background(), logger, cfg)
	if err != nil {
		logger.Error("Failed to initialize backend", applog.FieldError, err)
		os.Exit(1)
	}
	defer func() {
		if err := res.Close(); err != nil {
			logger.Error("Backend cleanup failed", applog.FieldError, err)
		}
	}()

	statsCache := cache.NewLRUCache[core.DashboardStats](cfg.StatsCacheSize, cfg.StatsCacheTTL)
	cacheManager := cache.NewManager(logger)
	cacheManager.Register(statsCache)
	cacheManager.StartCleanup(cfg.StatsCacheTTL)
	defer cacheManager.Stop()

	statsSvc := services.NewStatsService(res.Store, statsCache)

	amqpClient := cli.InitAMQP(logger, cfg)
	var publisher services.EventPublisher
	if amqpClient != nil {
		publisher = amqpClient
		defer amqpClient.Close()
	}
	expenseSvc := services.NewExpenseService(res.Store, publisher, statsSvc).
		WithLogger(logger.WithComponent(applog.ComponentExpense))

	srv := httpserver.NewServer(":"+cfg.Port, httpserver.Deps{
		Expenses: expenseSvc,
		Stats:    statsSvc,
		Parser:   parser.New(),
		Ready:    res.Pinger,
		Cache:    statsCache,
	}, httpserver.Options{
		Logger:             logger,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		AllowedOrigins:     cfg.CORSAllowedOrigins,
	})

	ctx, done := cli.GracefulShutdown(logger, 15*time.Second, func(shutdownCtx context.Context) {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", applog.FieldError, err)
		}
	})

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("HTTP server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if amqpClient != nil {
		// Other instances publish changes too; drop our cached stats for them.
		g.Go(func() error {
			err := amqpClient.Subscribe(gctx, statsSvc.HandleLedgerChanged)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}

	// A failed goroutine must bring the server down as well.
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("Server stopped with error", applog.FieldError, err)
		os.Exit(1)
	}
	if ctx.Err() != nil {
		<-done
	}
	logger.Info("spendwise stopped")
}

