// Package analyzer turns the content of one record into a summary, a
// sentiment and a keyword list by asking a completion model.
package analyzer

import (
	"context"
	"errors"
	"fmt"
	"time"

	infralogger "github.com/jonesrussell/north-cloud/scrape-analyzer/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/scrape-analyzer/infrastructure/retry"
	"github.com/jonesrussell/north-cloud/scrape-analyzer/internal/domain"
	"github.com/jonesrussell/north-cloud/scrape-analyzer/internal/llm"
)

var (
	// ErrEmptyContent is returned when nothing is left after normalization.
	ErrEmptyContent = errors.New("record has no content to analyze")
	// ErrInvalidCompletion is returned when the model answer is not the requested JSON.
	ErrInvalidCompletion = errors.New("invalid completion")
)

// Default option values.
const (
	DefaultMaxContentChars = 8000
	DefaultMaxKeywords     = 10
	DefaultMaxTokens       = 512
)

// Options tune a single analysis.
type Options struct {
	MaxContentChars int
	MaxKeywords     int
	MaxTokens       int
	Temperature     float64
	Retry           RetryPolicy
}

func (o *Options) setDefaults() {
	if o.MaxContentChars <= 0 {
		o.MaxContentChars = DefaultMaxContentChars
	}
	if o.MaxKeywords <= 0 {
		o.MaxKeywords = DefaultMaxKeywords
	}
	if o.MaxTokens <= 0 {
		o.MaxTokens = DefaultMaxTokens
	}
	if o.Retry == (RetryPolicy{}) {
		o.Retry = DefaultRetryPolicy()
	}
}

// Observer receives completion timings and rate-limit retries.
type Observer interface {
	CompletionFinished(d time.Duration, err error)
	RateLimited(retry int, delay time.Duration)
}

// Analyzer analyzes record content with a Completer.
type Analyzer struct {
	completer llm.Completer
	opts      Options
	logger    infralogger.Logger
	observer  Observer
	sleep     retry.SleepFunc
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithLogger sets the logger.
func WithLogger(log infralogger.Logger) Option {
	return func(a *Analyzer) { a.logger = log }
}

// WithObserver sets the metrics observer.
func WithObserver(o Observer) Option {
	return func(a *Analyzer) { a.observer = o }
}

// WithSleep replaces the wait between retries.
func WithSleep(sleep retry.SleepFunc) Option {
	return func(a *Analyzer) { a.sleep = sleep }
}

// New creates an Analyzer.
func New(completer llm.Completer, opts Options, options ...Option) *Analyzer {
	opts.setDefaults()

	a := &Analyzer{
		completer: completer,
		opts:      opts,
		logger:    infralogger.NewNop(),
		sleep:     retry.Sleep,
	}
	for _, opt := range options {
		opt(a)
	}
	return a
}

// Analyze returns the analysis of content. Rate-limited completions are
// retried under the configured policy; every other failure is returned as is.
func (a *Analyzer) Analyze(ctx context.Context, content string) (*domain.Analysis, error) {
	text := PrepareContent(content, a.opts.MaxContentChars)
	if text == "" {
		return nil, ErrEmptyContent
	}

	req := llm.Request{
		System:      buildSystemPrompt(a.opts.MaxKeywords),
		Prompt:      buildUserPrompt(text),
		MaxTokens:   a.opts.MaxTokens,
		Temperature: a.opts.Temperature,
		JSON:        true,
	}

	var resp *llm.Response
	err := a.opts.Retry.run(ctx, a.sleep, a.onRetry, func() error {
		start := time.Now()
		r, callErr := a.completer.Complete(ctx, req)
		if a.observer != nil {
			a.observer.CompletionFinished(time.Since(start), callErr)
		}
		if callErr != nil {
			return callErr
		}
		resp = r
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("completion: %w", err)
	}

	analysis, err := parseCompletion(resp.Text, a.opts.MaxKeywords)
	if err != nil {
		a.logger.Debug("Unparseable completion",
			infralogger.String("model", resp.Model),
			infralogger.Int("length", len(resp.Text)),
		)
		return nil, err
	}
	return analysis, nil
}

func (a *Analyzer) onRetry(n int, delay time.Duration, err error) {
	a.logger.Warn("Completion rate limited, retrying",
		infralogger.Int("retry", n+1),
		infralogger.Duration("delay", delay),
		infralogger.Error(err),
	)
	if a.observer != nil {
		a.observer.RateLimited(n, delay)
	}
}
