package bootstrap

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	infralogger "github.com/jonesrussell/north-cloud/scrape-analyzer/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/scrape-analyzer/internal/analyzer"
	"github.com/jonesrussell/north-cloud/scrape-analyzer/internal/config"
	"github.com/jonesrussell/north-cloud/scrape-analyzer/internal/llm"
	"github.com/jonesrussell/north-cloud/scrape-analyzer/internal/service"
	"github.com/jonesrussell/north-cloud/scrape-analyzer/internal/taskrunner"
	"github.com/jonesrussell/north-cloud/scrape-analyzer/internal/telemetry"
)

func (a *App) setupTelemetry() {
	a.Registry = prometheus.NewRegistry()
	a.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	a.Telemetry = telemetry.NewProvider(a.Registry)
}

func (a *App) setupServices() {
	cfg := a.Config

	a.TaskRunner = taskrunner.NewClient(taskrunnerConfig(cfg.Apify), taskrunner.WithLogger(a.Logger))
	a.Ingester = service.NewIngester(a.TaskRunner, a.Repository, a.Locker, service.IngesterConfig{
		Fields: service.FieldMapping{
			ID:        cfg.Apify.Fields.ID,
			URL:       cfg.Apify.Fields.URL,
			Content:   cfg.Apify.Fields.Content,
			CreatedAt: cfg.Apify.Fields.CreatedAt,
		},
		LockTTL: cfg.Scheduler.LockTTL,
	}, a.Logger, a.Telemetry)

	completer, err := llm.New(llmConfig(cfg.LLM))
	if err != nil {
		a.analysisErr = err
		a.Logger.Warn("Analysis disabled", infralogger.Error(err))
		return
	}

	recordAnalyzer := analyzer.New(completer, analyzer.Options{
		MaxContentChars: cfg.Analysis.MaxContentChars,
		MaxKeywords:     cfg.Analysis.MaxKeywords,
		MaxTokens:       cfg.LLM.MaxTokens,
		Temperature:     cfg.LLM.Temperature,
		Retry: analyzer.RetryPolicy{
			MaxRetries: cfg.Analysis.MaxRetries,
			BaseDelay:  cfg.Analysis.RetryBaseDelay,
		},
	}, analyzer.WithLogger(a.Logger), analyzer.WithObserver(a.Telemetry))

	a.analysis = service.NewAnalysisService(a.Repository, recordAnalyzer, a.Locker, service.AnalysisConfig{
		BatchSize:    cfg.Analysis.BatchSize,
		MaxBatchSize: config.MaxBatchSize(),
		RequestDelay: cfg.Analysis.RequestDelay,
		LockTTL:      cfg.Scheduler.LockTTL,
	}, a.Logger, a.Telemetry)

	a.Logger.Info("Analysis enabled",
		infralogger.String("provider", cfg.LLM.Provider),
		infralogger.String("model", cfg.LLM.Model),
	)
}

func taskrunnerConfig(c config.ApifyConfig) taskrunner.Config {
	return taskrunner.Config{
		BaseURL:         c.BaseURL,
		Token:           c.Token,
		TaskID:          c.TaskID,
		PollInterval:    c.PollInterval,
		RunTimeout:      c.RunTimeout,
		DatasetPageSize: c.DatasetPageSize,
		HTTPTimeout:     c.HTTPTimeout,
	}
}

func llmConfig(c config.LLMConfig) llm.Config {
	return llm.Config{
		Provider:        c.Provider,
		Model:           c.Model,
		OpenAIAPIKey:    c.OpenAIAPIKey,
		OpenAIBaseURL:   c.OpenAIBaseURL,
		AnthropicAPIKey: c.AnthropicAPIKey,
		AnthropicURL:    c.AnthropicURL,
		Timeout:         c.Timeout,
	}
}
