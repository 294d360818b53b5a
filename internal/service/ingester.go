package service

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	infralogger "github.com/jonesrussell/north-cloud/scrape-analyzer/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/scrape-analyzer/internal/domain"
	"github.com/jonesrussell/north-cloud/scrape-analyzer/internal/taskrunner"
	"github.com/jonesrussell/north-cloud/scrape-analyzer/internal/telemetry"
)

// TaskRunner is the part of the task-runner client ingest needs.
type TaskRunner interface {
	StartTask(ctx context.Context, input map[string]any) (*taskrunner.Run, error)
	WaitForRun(ctx context.Context, runID string) (*taskrunner.Run, error)
	ListDatasetItems(ctx context.Context, datasetID string) ([]map[string]any, error)
}

// RecordWriter stores new records, skipping known external ids.
type RecordWriter interface {
	InsertRecords(ctx context.Context, records []*domain.Record) (int, error)
}

// IngestOptions selects what to ingest.
type IngestOptions struct {
	// DatasetID re-reads an existing dataset instead of starting a run.
	DatasetID string
	// Input overrides the task's saved input for a new run.
	Input    map[string]any
	Progress ProgressFunc
}

// Ingester pulls scraped items into the records table.
type Ingester struct {
	runner    TaskRunner
	store     RecordWriter
	locker    Locker
	lockTTL   time.Duration
	fields    FieldMapping
	logger    infralogger.Logger
	telemetry *telemetry.Provider
}

// IngesterConfig tunes the Ingester.
type IngesterConfig struct {
	Fields  FieldMapping
	LockTTL time.Duration
}

// NewIngester creates an Ingester. tel may be nil.
func NewIngester(
	runner TaskRunner,
	store RecordWriter,
	locker Locker,
	cfg IngesterConfig,
	log infralogger.Logger,
	tel *telemetry.Provider,
) *Ingester {
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = defaultLockTTL
	}
	return &Ingester{
		runner:    runner,
		store:     store,
		locker:    locker,
		lockTTL:   cfg.LockTTL,
		fields:    cfg.Fields,
		logger:    log.With(infralogger.String("service", "ingester")),
		telemetry: tel,
	}
}

// Ingest starts a task run (or reuses DatasetID), reads its dataset and
// inserts the items that are not stored yet.
func (s *Ingester) Ingest(ctx context.Context, opts IngestOptions) (result *domain.IngestResult, err error) {
	ctx, release, err := acquireLock(ctx, s.locker, LockIngest, s.lockTTL)
	if err != nil {
		return nil, err
	}
	defer release()

	ctx, span := s.telemetry.StartSpan(ctx, "service.Ingest",
		attribute.String("dataset_id", opts.DatasetID),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	result = &domain.IngestResult{DatasetID: opts.DatasetID}

	if result.DatasetID == "" {
		run, runErr := s.runTask(ctx, opts.Input)
		if run != nil {
			result.RunID = run.ID
		}
		if runErr != nil {
			return nil, runErr
		}
		result.DatasetID = run.DefaultDatasetID
	}

	items, err := s.runner.ListDatasetItems(ctx, result.DatasetID)
	if err != nil {
		return nil, fmt.Errorf("read dataset: %w", err)
	}
	result.Fetched = len(items)
	opts.Progress.report(0, 0, 0, len(items))

	records := s.mapItems(items, result)

	inserted, err := s.store.InsertRecords(ctx, records)
	if err != nil {
		return nil, fmt.Errorf("insert records: %w", err)
	}
	result.Inserted = inserted
	result.Duplicates += len(records) - inserted
	opts.Progress.report(result.Fetched, result.Inserted, result.Invalid, result.Fetched)

	span.SetAttributes(
		attribute.String("run_id", result.RunID),
		attribute.Int("fetched", result.Fetched),
		attribute.Int("inserted", result.Inserted),
	)
	s.telemetry.RecordIngest(result)
	s.logger.Info("Ingest finished",
		infralogger.RunID(result.RunID),
		infralogger.String("dataset_id", result.DatasetID),
		infralogger.Int("fetched", result.Fetched),
		infralogger.Int("invalid", result.Invalid),
		infralogger.Int("inserted", result.Inserted),
		infralogger.Int("duplicates", result.Duplicates),
	)
	return result, nil
}

func (s *Ingester) runTask(ctx context.Context, input map[string]any) (*taskrunner.Run, error) {
	run, err := s.runner.StartTask(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("start task: %w", err)
	}

	finished, err := s.runner.WaitForRun(ctx, run.ID)
	if err != nil {
		return run, fmt.Errorf("wait for run: %w", err)
	}
	return finished, nil
}

// mapItems converts items to records, counting invalid items and repeats of
// an external id within the dataset on result.
func (s *Ingester) mapItems(items []map[string]any, result *domain.IngestResult) []*domain.Record {
	records := make([]*domain.Record, 0, len(items))
	seen := make(map[string]struct{}, len(items))

	for i, item := range items {
		mapped, ok, err := mapItem(item, s.fields)
		if err != nil {
			s.logger.Debug("Dataset item not decodable", infralogger.Int("index", i), infralogger.Error(err))
		}
		if !ok {
			result.Invalid++
			continue
		}
		if _, dup := seen[mapped.ExternalID]; dup {
			result.Duplicates++
			continue
		}
		seen[mapped.ExternalID] = struct{}{}
		records = append(records, domain.NewRecord(mapped))
	}
	return records
}
