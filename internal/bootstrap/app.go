// Package bootstrap wires configuration, storage, clients and services for
// the serve command and the one-shot CLI commands.
package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	infralogger "github.com/jonesrussell/north-cloud/scrape-analyzer/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/scrape-analyzer/internal/config"
	"github.com/jonesrussell/north-cloud/scrape-analyzer/internal/database"
	"github.com/jonesrussell/north-cloud/scrape-analyzer/internal/service"
	"github.com/jonesrussell/north-cloud/scrape-analyzer/internal/taskrunner"
	"github.com/jonesrussell/north-cloud/scrape-analyzer/internal/telemetry"
)

// App holds the initialized components shared by every command.
type App struct {
	Config     *config.Config
	Logger     infralogger.Logger
	DB         *database.Connection
	Repository *database.Repository
	Redis      *redis.Client
	Locker     service.Locker
	Registry   *prometheus.Registry
	Telemetry  *telemetry.Provider
	TaskRunner *taskrunner.Client
	Ingester   *service.Ingester

	analysis    *service.AnalysisService
	analysisErr error
}

// New loads the config at configPath and builds every component. The
// analysis service is optional: without LLM credentials Analysis reports why.
func New(ctx context.Context, configPath string) (*App, error) {
	// Phase 1: Load config and create logger
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	log, err := CreateLogger(cfg)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}

	app := &App{Config: cfg, Logger: log}

	// Phase 2: Storage
	if err = app.setupDatabase(); err != nil {
		_ = log.Sync()
		return nil, err
	}
	app.setupLocker(ctx)

	// Phase 3: Metrics, clients and services
	app.setupTelemetry()
	app.setupServices()

	return app, nil
}

// Analysis returns the analysis service, or the reason it is unavailable.
func (a *App) Analysis() (*service.AnalysisService, error) {
	if a.analysis == nil {
		return nil, a.analysisErr
	}
	return a.analysis, nil
}

// Close releases connections and flushes the logger.
func (a *App) Close() error {
	var errs []error
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
	}
	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close database: %w", err))
		}
	}
	_ = a.Logger.Sync()
	return errors.Join(errs...)
}
