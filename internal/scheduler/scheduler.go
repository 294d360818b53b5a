// Package scheduler runs ingest followed by analyze on a cron schedule.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	infralogger "github.com/jonesrussell/north-cloud/scrape-analyzer/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/scrape-analyzer/internal/service"
)

// JobRunner starts and awaits background jobs.
type JobRunner interface {
	Start(ctx context.Context, kind service.JobKind, fn service.JobFunc) (service.Job, error)
	Wait(ctx context.Context, id string) (service.Job, error)
}

// Scheduler triggers ingest then analyze on every tick.
type Scheduler struct {
	cron    *cron.Cron
	spec    string
	jobs    JobRunner
	ingest  service.JobFunc
	analyze service.JobFunc
	logger  infralogger.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New parses spec (standard five fields, or descriptors such as @hourly).
func New(spec string, jobs JobRunner, ingest, analyze service.JobFunc, log infralogger.Logger) (*Scheduler, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	if _, err := parser.Parse(spec); err != nil {
		return nil, fmt.Errorf("invalid cron expression %q: %w", spec, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:    cron.New(cron.WithParser(parser), cron.WithChain(cron.Recover(cron.DefaultLogger), cron.SkipIfStillRunning(cron.DiscardLogger))),
		spec:    spec,
		jobs:    jobs,
		ingest:  ingest,
		analyze: analyze,
		logger:  log.With(infralogger.String("service", "scheduler")),
		ctx:     ctx,
		cancel:  cancel,
	}, nil
}

// Start registers the tick and starts the cron loop.
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.spec, s.tick); err != nil {
		return fmt.Errorf("schedule tick: %w", err)
	}
	s.cron.Start()
	s.logger.Info("Scheduler started", infralogger.String("cron", s.spec))
	return nil
}

// Stop halts the schedule and waits for an in-flight tick.
func (s *Scheduler) Stop() {
	s.cancel()
	<-s.cron.Stop().Done()
	s.wg.Wait()
	s.logger.Info("Scheduler stopped")
}

// Tick runs one ingest + analyze cycle immediately.
func (s *Scheduler) Tick() {
	s.tick()
}

func (s *Scheduler) tick() {
	s.wg.Add(1)
	defer s.wg.Done()

	if s.ctx.Err() != nil {
		return
	}

	if !s.runStep(service.KindIngest, s.ingest) {
		return
	}
	s.runStep(service.KindAnalyze, s.analyze)
}

// runStep starts a job and waits for it. It returns false when the cycle
// should stop: the step is locked by another run or was cut short.
func (s *Scheduler) runStep(kind service.JobKind, fn service.JobFunc) bool {
	log := s.logger.With(infralogger.String("kind", string(kind)))
	start := time.Now()

	job, err := s.jobs.Start(s.ctx, kind, fn)
	if errors.Is(err, service.ErrJobRunning) {
		log.Info("Scheduled run skipped, already running")
		return false
	}
	if err != nil {
		log.Error("Scheduled run not started", infralogger.Error(err))
		return false
	}

	finished, err := s.jobs.Wait(s.ctx, job.ID)
	if err != nil {
		log.Warn("Stopped waiting for scheduled run", infralogger.JobID(job.ID), infralogger.Error(err))
		return false
	}

	log.Info("Scheduled run finished",
		infralogger.JobID(job.ID),
		infralogger.String("status", string(finished.Status)),
		infralogger.Duration("duration", time.Since(start)),
	)
	// A failed ingest still leaves earlier records to analyze.
	return true
}
