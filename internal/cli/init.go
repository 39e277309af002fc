// Package cli holds the start-up steps shared by cmd/spendcast,
// cmd/spendcast-worker and cmd/spendcast-oauth-init.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"spendcast/internal/backend"
	"spendcast/internal/config"
	"spendcast/internal/history"
	"spendcast/internal/log"
	"spendcast/internal/services"

	"github.com/joho/godotenv"
)

const backendInitTimeout = 30 * time.Second

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// SetupLogger builds the process logger from LOG_LEVEL and LOG_FORMAT and
// installs it as the slog default. An unknown level falls back to info
// with a warning.
func SetupLogger(cfg *config.Config, component string, w io.Writer) *log.Logger {
	if w == nil {
		w = os.Stdout
	}
	level, err := log.ParseLevel(cfg.LogLevel)
	logger := log.New(log.Config{
		Level:     level,
		Format:    cfg.LogFormat,
		Component: component,
		Writer:    w,
	})
	log.SetDefault(logger)
	if err != nil {
		logger.Warn("Unknown log level, using info", log.FieldError, err)
	}
	return logger
}

// LoadAndValidateConfig reads the environment and validates it.
func LoadAndValidateConfig() (*config.Config, error) {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Runtime is everything a binary needs once configuration is settled.
type Runtime struct {
	Backend *backend.Backend
	Sync    *services.SyncService
	Reports *services.ReportService
}

// Close releases the backend.
func (r *Runtime) Close() error {
	return r.Backend.Cleanup()
}

// InitRuntime creates the backend and the services on top of it.
func InitRuntime(ctx context.Context, cfg *config.Config, factory backend.Factory, logger *log.Logger) (*Runtime, error) {
	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("backend configuration: %w", err)
	}

	initCtx, cancel := context.WithTimeout(ctx, backendInitTimeout)
	defer cancel()
	b, err := factory.CreateBackend(initCtx, backendCfg)
	if err != nil {
		return nil, fmt.Errorf("initialize backend: %w", err)
	}

	pipeline := cfg.Pipeline()
	syncSvc := services.NewSyncService(b.Store, history.NewFetcher(b.Source, pipeline.Fetch, logger), cfg.HistoryMonths, logger)
	reports, err := services.NewReportService(b.Store, syncSvc, services.ReportConfig{
		Outlier:  pipeline.Outlier,
		Forecast: pipeline.Forecast,
		Trend:    pipeline.Trend,
		Timeout:  cfg.ReportTimeout,
	}, logger)
	if err != nil {
		_ = b.Cleanup()
		return nil, fmt.Errorf("report pipeline: %w", err)
	}

	return &Runtime{Backend: b, Sync: syncSvc, Reports: reports}, nil
}

// Fatal logs err and exits.
func Fatal(logger *log.Logger, msg string, err error) {
	logger.Error(msg, log.FieldError, err)
	os.Exit(1)
}
