package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"spendcast/internal/backend"
	"spendcast/internal/cli"
	"spendcast/internal/log"
	"spendcast/internal/worker"
)

func main() {
	cli.LoadEnvFile()

	cfg, cfgErr := cli.LoadAndValidateConfig()
	logger := log.New(log.DefaultConfig())
	if cfgErr != nil {
		cli.Fatal(logger, "Configuration validation failed", cfgErr)
	}
	logger = cli.SetupLogger(cfg, log.ComponentWorker, nil)
	logger.Info("Starting spendcast-worker")

	rt, err := cli.InitRuntime(context.Background(), cfg, backend.NewFactory(logger), logger)
	if err != nil {
		cli.Fatal(logger, "Failed to initialize", err)
	}
	defer func() {
		if err := rt.Close(); err != nil {
			logger.Error("Backend cleanup failed", log.FieldError, err)
		}
	}()

	refresher := worker.NewRefreshWorker(rt.Backend.Store, rt.Sync, cfg.RefreshConcurrency, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	scheduler := worker.NewScheduler(refresher, cfg.RefreshInterval, logger)
	if err := scheduler.Start(ctx); err != nil {
		logger.Error("Failed to start refresh scheduler", log.FieldError, err)
		return
	}

	consumeErr := make(chan error, 1)
	if q := rt.Backend.Queue; q != nil {
		go func() {
			consumeErr <- q.ConsumeHistoryRefresh(ctx, refresher.HandleRefresh)
		}()
	} else {
		logger.Info("AMQP not configured, running scheduled refreshes only")
	}

	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case err := <-consumeErr:
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Message consumption failed", log.FieldError, err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := scheduler.Stop(shutdownCtx); err != nil {
		logger.Error("Scheduler shutdown error", log.FieldError, err)
	}

	logger.Info("Worker stopped gracefully")
}
