package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/time/rate"

	infralogger "github.com/jonesrussell/north-cloud/scrape-analyzer/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/scrape-analyzer/internal/domain"
	"github.com/jonesrussell/north-cloud/scrape-analyzer/internal/telemetry"
)

// RecordAnalyzer produces an analysis for record content.
type RecordAnalyzer interface {
	Analyze(ctx context.Context, content string) (*domain.Analysis, error)
}

// AnalysisStore selects unanalyzed records and stores results.
type AnalysisStore interface {
	ListUnanalyzed(ctx context.Context, limit int) ([]domain.Record, error)
	SaveAnalysis(ctx context.Context, id uuid.UUID, analysis domain.Analysis, analyzedAt time.Time) (bool, error)
}

// AnalyzeOptions selects the batch.
type AnalyzeOptions struct {
	// Limit caps the batch. Zero uses the configured batch size; values above
	// the maximum are clamped.
	Limit    int
	Progress ProgressFunc
}

// AnalysisConfig tunes the AnalysisService.
type AnalysisConfig struct {
	BatchSize    int
	MaxBatchSize int
	// RequestDelay is the minimum gap between completion requests.
	RequestDelay time.Duration
	LockTTL      time.Duration
}

// Default batch values.
const (
	DefaultBatchSize    = 10
	DefaultMaxBatchSize = 100
)

// AnalysisService analyzes batches of unanalyzed records, one at a time.
type AnalysisService struct {
	store     AnalysisStore
	analyzer  RecordAnalyzer
	locker    Locker
	limiter   *rate.Limiter
	cfg       AnalysisConfig
	now       func() time.Time
	logger    infralogger.Logger
	telemetry *telemetry.Provider
}

// NewAnalysisService creates the service. tel may be nil.
func NewAnalysisService(
	store AnalysisStore,
	analyzer RecordAnalyzer,
	locker Locker,
	cfg AnalysisConfig,
	log infralogger.Logger,
	tel *telemetry.Provider,
) *AnalysisService {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = DefaultMaxBatchSize
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = defaultLockTTL
	}

	limit := rate.Inf
	if cfg.RequestDelay > 0 {
		limit = rate.Every(cfg.RequestDelay)
	}

	return &AnalysisService{
		store:     store,
		analyzer:  analyzer,
		locker:    locker,
		limiter:   rate.NewLimiter(limit, 1),
		cfg:       cfg,
		now:       time.Now,
		logger:    log.With(infralogger.String("service", "analyzer")),
		telemetry: tel,
	}
}

func (s *AnalysisService) batchLimit(requested int) int {
	if requested <= 0 {
		return s.cfg.BatchSize
	}
	return min(requested, s.cfg.MaxBatchSize)
}

// Analyze processes up to Limit unanalyzed records. A failing record is
// recorded and the batch moves on; only context cancellation stops it early,
// in which case the partial result is returned with the error.
func (s *AnalysisService) Analyze(ctx context.Context, opts AnalyzeOptions) (result *domain.AnalyzeResult, err error) {
	ctx, release, err := acquireLock(ctx, s.locker, LockAnalyze, s.cfg.LockTTL)
	if err != nil {
		return nil, err
	}
	defer release()

	limit := s.batchLimit(opts.Limit)
	ctx, span := s.telemetry.StartSpan(ctx, "service.Analyze", attribute.Int("limit", limit))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	records, err := s.store.ListUnanalyzed(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("select records: %w", err)
	}

	result = &domain.AnalyzeResult{Selected: len(records)}
	opts.Progress.report(0, 0, 0, len(records))

	for i := range records {
		if err = s.limiter.Wait(ctx); err != nil {
			break
		}
		s.analyzeOne(ctx, &records[i], result)
		if err = ctx.Err(); err != nil {
			break
		}
		opts.Progress.report(i+1, result.Analyzed, result.Failed, result.Selected)
	}

	s.telemetry.RecordAnalyze(result)
	span.SetAttributes(
		attribute.Int("selected", result.Selected),
		attribute.Int("analyzed", result.Analyzed),
		attribute.Int("failed", result.Failed),
	)
	s.logger.Info("Analysis batch finished",
		infralogger.Int("selected", result.Selected),
		infralogger.Int("analyzed", result.Analyzed),
		infralogger.Int("failed", result.Failed),
		infralogger.Int("skipped", result.Skipped),
	)

	if err != nil {
		return result, fmt.Errorf("analysis batch interrupted: %w", err)
	}
	return result, nil
}

func (s *AnalysisService) analyzeOne(ctx context.Context, record *domain.Record, result *domain.AnalyzeResult) {
	log := s.logger.With(infralogger.RecordID(record.ID.String()))

	analysis, err := s.analyzer.Analyze(ctx, record.Content)
	if err == nil {
		var saved bool
		saved, err = s.store.SaveAnalysis(ctx, record.ID, *analysis, s.now().UTC())
		if err == nil {
			if saved {
				result.Analyzed++
			} else {
				result.Skipped++
				log.Info("Record already analyzed, skipping")
			}
			return
		}
		err = fmt.Errorf("save analysis: %w", err)
	}

	// Interrupted, not failed: the record stays unanalyzed for the next batch.
	if ctx.Err() != nil {
		return
	}

	result.Failed++
	result.Failures = append(result.Failures, domain.RecordFailure{
		RecordID: record.ID.String(),
		Error:    err.Error(),
	})
	log.Warn("Record analysis failed", infralogger.Error(err))
}
