package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"spendcast/internal/backend"
	"spendcast/internal/cli"
	apphttp "spendcast/internal/http"
	"spendcast/internal/log"
)

func main() {
	cli.LoadEnvFile()

	cfg, cfgErr := cli.LoadAndValidateConfig()
	logger := log.New(log.DefaultConfig())
	if cfgErr != nil {
		cli.Fatal(logger, "Configuration validation failed", cfgErr)
	}
	logger = cli.SetupLogger(cfg, log.ComponentApp, nil)

	rt, err := cli.InitRuntime(context.Background(), cfg, backend.NewFactory(logger), logger)
	if err != nil {
		cli.Fatal(logger, "Failed to initialize", err)
	}
	defer func() {
		if err := rt.Close(); err != nil {
			logger.Error("Backend cleanup failed", log.FieldError, err)
		}
	}()

	deps := apphttp.Dependencies{Store: rt.Backend.Store, Sync: rt.Sync, Reports: rt.Reports}
	if rt.Backend.Queue != nil {
		deps.Queue = rt.Backend.Queue
	}
	srv, err := apphttp.NewServer(apphttp.Options{
		Addr:               ":" + cfg.Port,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		TrustedProxies:     cfg.TrustedProxies,
	}, deps, logger)
	if err != nil {
		cli.Fatal(logger, "Failed to create HTTP server", err)
	}
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting spendcast server",
			"port", cfg.Port,
			"store", cfg.DataBackend,
			"upstream", cfg.Upstream,
			"amqp_enabled", deps.Queue != nil)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server error", log.FieldError, err, "port", cfg.Port)
			return
		}
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err)
		}
	}

	logger.Info("Server stopped gracefully")
}
