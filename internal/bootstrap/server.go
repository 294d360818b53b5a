package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"time"

	infragin "github.com/jonesrussell/north-cloud/scrape-analyzer/infrastructure/gin"
	infralogger "github.com/jonesrussell/north-cloud/scrape-analyzer/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/scrape-analyzer/infrastructure/monitoring"
	"github.com/jonesrussell/north-cloud/scrape-analyzer/infrastructure/profiling"
	"github.com/jonesrussell/north-cloud/scrape-analyzer/infrastructure/sse"
	"github.com/jonesrussell/north-cloud/scrape-analyzer/internal/api"
	"github.com/jonesrussell/north-cloud/scrape-analyzer/internal/config"
	"github.com/jonesrussell/north-cloud/scrape-analyzer/internal/scheduler"
	"github.com/jonesrussell/north-cloud/scrape-analyzer/internal/service"
)

const (
	jobsShutdownTimeout   = 30 * time.Second
	pprofShutdownTimeout  = 5 * time.Second
	memoryGrowthThreshold = 2.0
	memoryCheckInterval   = 5 * time.Minute
	memoryWarmup          = 2 * time.Minute
)

// Serve runs the HTTP API, the SSE broker and the optional scheduler until
// ctx is cancelled, then drains running jobs.
func (a *App) Serve(ctx context.Context) error {
	cfg := a.Config

	// Phase 0: Profiling and memory monitoring
	a.startProfiling(ctx)
	go monitoring.NewMemoryMonitor(memoryGrowthThreshold, memoryCheckInterval, func(report string) {
		a.Logger.Warn("Memory growth detected", infralogger.String("report", report))
	}).Run(ctx, memoryWarmup)

	// Phase 1: Event broker and job tracker
	broker := sse.NewBroker(a.Logger)
	if err := broker.Start(ctx); err != nil {
		return fmt.Errorf("start sse broker: %w", err)
	}
	defer func() { _ = broker.Stop() }()

	jobs := service.NewJobs(service.JobsConfig{
		History: cfg.Scheduler.JobHistory,
		LockTTL: cfg.Scheduler.LockTTL,
	}, a.Locker, broker, a.Logger, a.Telemetry)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), jobsShutdownTimeout)
		defer cancel()
		if err := jobs.Shutdown(shutdownCtx); err != nil {
			a.Logger.Warn("Jobs did not finish before shutdown", infralogger.Error(err))
		}
	}()

	ingest, analyze := a.jobFactories()

	// Phase 2: Scheduler (optional)
	if cfg.Scheduler.Cron != "" {
		sched, err := a.newScheduler(jobs, analyze)
		if err != nil {
			return err
		}
		if err = sched.Start(); err != nil {
			return err
		}
		defer sched.Stop()
	}

	// Phase 3: HTTP server
	router := api.NewRouter(api.Deps{
		Records:      a.Repository,
		Jobs:         jobs,
		Ingest:       ingest,
		Analyze:      analyze,
		Broker:       broker,
		JWTSecret:    cfg.Auth.JWTSecret,
		MaxBatchSize: config.MaxBatchSize(),
		Logger:       a.Logger,
	})
	if cfg.Auth.JWTSecret == "" {
		a.Logger.Warn("AUTH_JWT_SECRET not set, ingest and analyze endpoints are unauthenticated")
	}

	server := router.NewServer(serverConfig(cfg), infragin.Options{
		Checks:  a.healthChecks(),
		Metrics: infragin.NewHTTPMetrics(a.Registry),
	})

	if err := server.Run(ctx); err != nil {
		return fmt.Errorf("server: %w", err)
	}
	a.Logger.Info("Server exited")
	return nil
}

// jobFactories returns nil for an operation whose upstream is not configured.
func (a *App) jobFactories() (
	ingest func(service.IngestOptions) service.JobFunc,
	analyze func(service.AnalyzeOptions) service.JobFunc,
) {
	if a.Config.Apify.Token != "" {
		ingest = func(opts service.IngestOptions) service.JobFunc {
			return service.IngestJob(a.Ingester, opts)
		}
	}
	if svc, err := a.Analysis(); err == nil {
		analyze = func(opts service.AnalyzeOptions) service.JobFunc {
			return service.AnalyzeJob(svc, opts)
		}
	}
	return ingest, analyze
}

var errSchedulerNeedsTask = errors.New("scheduler.cron requires apify.token and apify.task_id")

func (a *App) newScheduler(jobs *service.Jobs, analyze func(service.AnalyzeOptions) service.JobFunc) (*scheduler.Scheduler, error) {
	if !a.TaskRunner.Configured() {
		return nil, errSchedulerNeedsTask
	}

	analyzeJob := func(context.Context, service.ProgressFunc) (any, error) {
		return nil, a.analysisErr
	}
	if analyze != nil {
		analyzeJob = analyze(service.AnalyzeOptions{})
	}

	sched, err := scheduler.New(a.Config.Scheduler.Cron, jobs,
		service.IngestJob(a.Ingester, service.IngestOptions{}), analyzeJob, a.Logger)
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}
	return sched, nil
}

func (a *App) healthChecks() map[string]infragin.HealthChecker {
	checks := map[string]infragin.HealthChecker{
		"database": infragin.PingChecker("database", infragin.HealthStatusUnhealthy, a.DB.Ping),
	}
	if a.Redis != nil {
		checks["redis"] = infragin.PingChecker("redis", infragin.HealthStatusDegraded, func(ctx context.Context) error {
			return a.Redis.Ping(ctx).Err()
		})
	}
	return checks
}

func (a *App) startProfiling(ctx context.Context) {
	cfg := a.Config

	if srv := profiling.StartPprofServer(cfg.Profiling, a.Logger); srv != nil {
		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), pprofShutdownTimeout)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	profiler, err := profiling.StartPyroscope(cfg.Service.Name, cfg.Service.Version, cfg.Profiling, a.Logger)
	if err != nil {
		a.Logger.Warn("Continuous profiling disabled", infralogger.Error(err))
		return
	}
	if profiler != nil {
		go func() {
			<-ctx.Done()
			if stopErr := profiler.Stop(); stopErr != nil {
				a.Logger.Warn("Failed to stop profiler", infralogger.Error(stopErr))
			}
		}()
	}
}

func serverConfig(cfg *config.Config) *infragin.Config {
	return &infragin.Config{
		Port:  cfg.Service.Port,
		Debug: cfg.Service.Debug,
		CORS: infragin.CORSConfig{
			Enabled:        len(cfg.Service.CORSOrigins) > 0,
			AllowedOrigins: cfg.Service.CORSOrigins,
		},
		ServiceName:    cfg.Service.Name,
		ServiceVersion: cfg.Service.Version,
	}
}
