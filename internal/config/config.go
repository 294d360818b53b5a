// Package config holds scrape-analyzer configuration.
package config

import (
	"fmt"
	"time"

	infraconfig "github.com/jonesrussell/north-cloud/scrape-analyzer/infrastructure/config"
	"github.com/jonesrussell/north-cloud/scrape-analyzer/infrastructure/profiling"
)

// Default service configuration values.
const (
	defaultServiceName    = "scrape-analyzer"
	defaultServiceVersion = "1.0.0"
	defaultServicePort    = 8090
)

// Default task runner, LLM and analysis values.
const (
	defaultApifyBaseURL      = "https://api.apify.com"
	defaultApifyPollInterval = 5 * time.Second
	defaultApifyRunTimeout   = 10 * time.Minute
	defaultApifyPageSize     = 1000
	defaultApifyHTTPTimeout  = 30 * time.Second
	defaultFieldID           = "id"
	defaultFieldURL          = "url"
	defaultFieldContent      = "text"
	defaultFieldCreatedAt    = "createdAt"
	defaultLLMProvider       = "openai"
	defaultOpenAIModel       = "gpt-4o-mini"
	defaultAnthropicModel    = "claude-3-5-haiku-latest"
	defaultOpenAIBaseURL     = "https://api.openai.com/v1"
	defaultLLMMaxTokens      = 512
	defaultLLMTimeout        = 60 * time.Second
	defaultBatchSize         = 10
	maxBatchSize             = 100
	defaultRequestDelay      = time.Second
	defaultMaxContentChars   = 8000
	defaultMaxKeywords       = 10
	defaultMaxRetries        = 3
	defaultRetryBaseDelay    = time.Second
	defaultLockTTL           = 30 * time.Minute
	defaultJobHistory        = 100
)

// Supported LLM providers.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// Config holds the application configuration.
type Config struct {
	Service   ServiceConfig              `yaml:"service"`
	Database  infraconfig.DatabaseConfig `yaml:"database"`
	Redis     infraconfig.RedisConfig    `yaml:"redis"`
	Apify     ApifyConfig                `yaml:"apify"`
	LLM       LLMConfig                  `yaml:"llm"`
	Analysis  AnalysisConfig             `yaml:"analysis"`
	Scheduler SchedulerConfig            `yaml:"scheduler"`
	Auth      AuthConfig                 `yaml:"auth"`
	Logging   infraconfig.LoggingConfig  `yaml:"logging"`
	Profiling profiling.Config           `yaml:"profiling"`
}

// ServiceConfig holds service identity and runtime settings.
type ServiceConfig struct {
	Name        string   `yaml:"name"`
	Version     string   `yaml:"version"`
	Port        int      `env:"SCRAPE_ANALYZER_PORT" yaml:"port"`
	Debug       bool     `env:"APP_DEBUG"            yaml:"debug"`
	CORSOrigins []string `env:"CORS_ORIGINS"         yaml:"cors_origins"`
}

// ApifyConfig configures the task runner and how dataset items map to records.
type ApifyConfig struct {
	BaseURL         string        `env:"APIFY_BASE_URL" yaml:"base_url"`
	Token           string        `env:"APIFY_TOKEN"    yaml:"token"` //nolint:gosec // credential from env
	TaskID          string        `env:"APIFY_TASK_ID"  yaml:"task_id"`
	PollInterval    time.Duration `yaml:"poll_interval"`
	RunTimeout      time.Duration `yaml:"run_timeout"`
	DatasetPageSize int           `yaml:"dataset_page_size"`
	HTTPTimeout     time.Duration `yaml:"http_timeout"`
	Fields          FieldMapping  `yaml:"fields"`
}

// FieldMapping names the dataset item fields. Each field falls back to a
// list of common alternatives when the configured name is absent.
type FieldMapping struct {
	ID        string `yaml:"id"`
	URL       string `yaml:"url"`
	Content   string `yaml:"content"`
	CreatedAt string `yaml:"created_at"`
}

// LLMConfig selects and configures the completion provider.
type LLMConfig struct {
	Provider        string        `env:"LLM_PROVIDER"       yaml:"provider"`
	Model           string        `env:"LLM_MODEL"          yaml:"model"`
	OpenAIAPIKey    string        `env:"OPENAI_API_KEY"     yaml:"openai_api_key"`    //nolint:gosec // credential from env
	OpenAIBaseURL   string        `env:"OPENAI_BASE_URL"    yaml:"openai_base_url"`
	AnthropicAPIKey string        `env:"ANTHROPIC_API_KEY"  yaml:"anthropic_api_key"` //nolint:gosec // credential from env
	AnthropicURL    string        `env:"ANTHROPIC_BASE_URL" yaml:"anthropic_base_url"`
	MaxTokens       int           `yaml:"max_tokens"`
	Temperature     float64       `yaml:"temperature"`
	Timeout         time.Duration `yaml:"timeout"`
}

// AnalysisConfig tunes the analyze batch.
type AnalysisConfig struct {
	BatchSize       int           `env:"ANALYSIS_BATCH_SIZE"    yaml:"batch_size"`
	RequestDelay    time.Duration `env:"ANALYSIS_REQUEST_DELAY" yaml:"request_delay"`
	MaxContentChars int           `yaml:"max_content_chars"`
	MaxKeywords     int           `yaml:"max_keywords"`
	MaxRetries      int           `yaml:"max_retries"`
	RetryBaseDelay  time.Duration `yaml:"retry_base_delay"`
}

// SchedulerConfig enables periodic ingest + analyze runs. Empty Cron disables it.
type SchedulerConfig struct {
	Cron       string        `env:"SCHEDULER_CRON" yaml:"cron"`
	LockTTL    time.Duration `yaml:"lock_ttl"`
	JobHistory int           `yaml:"job_history"`
}

// AuthConfig holds authentication settings. An empty secret leaves the API open.
type AuthConfig struct {
	JWTSecret string `env:"AUTH_JWT_SECRET" yaml:"jwt_secret"` //nolint:gosec // credential from env
}

// MaxBatchSize is the upper bound for one analyze batch.
func MaxBatchSize() int {
	return maxBatchSize
}

// Load loads configuration from a YAML file, applies defaults, then env overrides.
func Load(path string) (*Config, error) {
	cfg, loadErr := infraconfig.LoadWithDefaults(path, setDefaults)
	if loadErr != nil {
		return nil, fmt.Errorf("load config: %w", loadErr)
	}

	if validateErr := cfg.Validate(); validateErr != nil {
		return nil, fmt.Errorf("validate config: %w", validateErr)
	}

	return cfg, nil
}

// Validate checks structural validity. Missing Apify or LLM credentials are
// not errors here: the server starts and the affected operation reports
// "not configured" when triggered.
func (c *Config) Validate() error {
	if err := infraconfig.ValidatePort("service.port", c.Service.Port); err != nil {
		return err
	}
	if err := c.Database.Validate(); err != nil {
		return err
	}
	if err := c.Logging.Validate(); err != nil {
		return err
	}
	if err := infraconfig.ValidateURL("apify.base_url", c.Apify.BaseURL); err != nil {
		return err
	}

	switch c.LLM.Provider {
	case ProviderOpenAI, ProviderAnthropic:
	default:
		return &infraconfig.ValidationError{Field: "llm.provider", Message: "must be openai or anthropic"}
	}

	if c.Analysis.BatchSize < 1 || c.Analysis.BatchSize > maxBatchSize {
		return &infraconfig.ValidationError{
			Field:   "analysis.batch_size",
			Message: fmt.Sprintf("must be between 1 and %d", maxBatchSize),
		}
	}
	if c.Analysis.RequestDelay < 0 {
		return &infraconfig.ValidationError{Field: "analysis.request_delay", Message: "must not be negative"}
	}

	return nil
}

func setDefaults(cfg *Config) {
	setServiceDefaults(&cfg.Service)
	cfg.Database.SetDefaults()
	cfg.Logging.SetDefaults()
	cfg.Profiling.SetDefaults()
	setApifyDefaults(&cfg.Apify)
	setLLMDefaults(&cfg.LLM)
	setAnalysisDefaults(&cfg.Analysis)
	setSchedulerDefaults(&cfg.Scheduler)
}

func setServiceDefaults(s *ServiceConfig) {
	if s.Name == "" {
		s.Name = defaultServiceName
	}
	if s.Version == "" {
		s.Version = defaultServiceVersion
	}
	if s.Port == 0 {
		s.Port = defaultServicePort
	}
}

func setApifyDefaults(a *ApifyConfig) {
	if a.BaseURL == "" {
		a.BaseURL = defaultApifyBaseURL
	}
	if a.PollInterval == 0 {
		a.PollInterval = defaultApifyPollInterval
	}
	if a.RunTimeout == 0 {
		a.RunTimeout = defaultApifyRunTimeout
	}
	if a.DatasetPageSize == 0 {
		a.DatasetPageSize = defaultApifyPageSize
	}
	if a.HTTPTimeout == 0 {
		a.HTTPTimeout = defaultApifyHTTPTimeout
	}
	if a.Fields.ID == "" {
		a.Fields.ID = defaultFieldID
	}
	if a.Fields.URL == "" {
		a.Fields.URL = defaultFieldURL
	}
	if a.Fields.Content == "" {
		a.Fields.Content = defaultFieldContent
	}
	if a.Fields.CreatedAt == "" {
		a.Fields.CreatedAt = defaultFieldCreatedAt
	}
}

func setLLMDefaults(l *LLMConfig) {
	if l.Provider == "" {
		l.Provider = defaultLLMProvider
	}
	if l.Model == "" {
		if l.Provider == ProviderAnthropic {
			l.Model = defaultAnthropicModel
		} else {
			l.Model = defaultOpenAIModel
		}
	}
	if l.OpenAIBaseURL == "" {
		l.OpenAIBaseURL = defaultOpenAIBaseURL
	}
	if l.MaxTokens == 0 {
		l.MaxTokens = defaultLLMMaxTokens
	}
	if l.Timeout == 0 {
		l.Timeout = defaultLLMTimeout
	}
}

func setAnalysisDefaults(a *AnalysisConfig) {
	if a.BatchSize == 0 {
		a.BatchSize = defaultBatchSize
	}
	if a.RequestDelay == 0 {
		a.RequestDelay = defaultRequestDelay
	}
	if a.MaxContentChars == 0 {
		a.MaxContentChars = defaultMaxContentChars
	}
	if a.MaxKeywords == 0 {
		a.MaxKeywords = defaultMaxKeywords
	}
	if a.MaxRetries == 0 {
		a.MaxRetries = defaultMaxRetries
	}
	if a.RetryBaseDelay == 0 {
		a.RetryBaseDelay = defaultRetryBaseDelay
	}
}

func setSchedulerDefaults(s *SchedulerConfig) {
	if s.LockTTL == 0 {
		s.LockTTL = defaultLockTTL
	}
	if s.JobHistory == 0 {
		s.JobHistory = defaultJobHistory
	}
}
