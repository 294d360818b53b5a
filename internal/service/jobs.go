package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	infralogger "github.com/jonesrussell/north-cloud/scrape-analyzer/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/scrape-analyzer/infrastructure/sse"
	"github.com/jonesrussell/north-cloud/scrape-analyzer/internal/telemetry"
)

// ErrJobNotFound is returned for an unknown job id.
var ErrJobNotFound = errors.New("job not found")

// JobKind names what a job does. It doubles as the lock name.
type JobKind string

const (
	KindIngest  JobKind = LockIngest
	KindAnalyze JobKind = LockAnalyze
)

// JobStatus is the lifecycle state of a job.
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobSucceeded JobStatus = "succeeded"
	JobFailed    JobStatus = "failed"
)

// IsTerminal reports whether the job has finished.
func (s JobStatus) IsTerminal() bool {
	return s == JobSucceeded || s == JobFailed
}

// JobProgress is the latest progress report of a running job.
type JobProgress struct {
	Processed int `json:"processed"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Total     int `json:"total"`
}

// Job is a background ingest or analyze run.
type Job struct {
	ID         string       `json:"id"`
	Kind       JobKind      `json:"kind"`
	Status     JobStatus    `json:"status"`
	Progress   *JobProgress `json:"progress,omitempty"`
	Result     any          `json:"result,omitempty"`
	Error      string       `json:"error,omitempty"`
	CreatedAt  time.Time    `json:"created_at"`
	StartedAt  *time.Time   `json:"started_at,omitempty"`
	FinishedAt *time.Time   `json:"finished_at,omitempty"`
}

// ProgressFunc receives progress reports from a running operation.
type ProgressFunc func(processed, succeeded, failed, total int)

func (p ProgressFunc) report(processed, succeeded, failed, total int) {
	if p != nil {
		p(processed, succeeded, failed, total)
	}
}

// JobFunc is the work a job performs.
type JobFunc func(ctx context.Context, progress ProgressFunc) (any, error)

// JobsConfig tunes the tracker.
type JobsConfig struct {
	// History is how many jobs are kept in memory. Default 100.
	History int
	// LockTTL bounds how long a crashed instance can block others. Default 30m.
	LockTTL time.Duration
}

const (
	defaultJobHistory = 100
	defaultLockTTL    = 30 * time.Minute
)

type jobEntry struct {
	job  Job
	done chan struct{}
}

// Jobs runs operations in the background, one per kind at a time, and
// publishes their lifecycle on the SSE broker.
type Jobs struct {
	mu      sync.RWMutex
	entries map[string]*jobEntry
	order   []string

	cfg       JobsConfig
	locker    Locker
	publisher sse.Publisher
	logger    infralogger.Logger
	telemetry *telemetry.Provider

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewJobs creates a tracker. publisher and tel may be nil.
func NewJobs(
	cfg JobsConfig,
	locker Locker,
	publisher sse.Publisher,
	log infralogger.Logger,
	tel *telemetry.Provider,
) *Jobs {
	if cfg.History <= 0 {
		cfg.History = defaultJobHistory
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = defaultLockTTL
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &Jobs{
		entries:   make(map[string]*jobEntry),
		cfg:       cfg,
		locker:    locker,
		publisher: publisher,
		logger:    log.With(infralogger.String("service", "jobs")),
		telemetry: tel,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start takes the kind's lock and runs fn in the background. The lock is
// taken before Start returns, so a conflicting run fails with ErrJobRunning
// here rather than inside the job.
func (j *Jobs) Start(ctx context.Context, kind JobKind, fn JobFunc) (Job, error) {
	if err := j.ctx.Err(); err != nil {
		return Job{}, fmt.Errorf("jobs shut down: %w", err)
	}

	_, release, err := acquireLock(ctx, j.locker, string(kind), j.cfg.LockTTL)
	if err != nil {
		return Job{}, err
	}

	entry := &jobEntry{
		job: Job{
			ID:        uuid.NewString(),
			Kind:      kind,
			Status:    JobPending,
			CreatedAt: time.Now().UTC(),
		},
		done: make(chan struct{}),
	}

	j.mu.Lock()
	j.entries[entry.job.ID] = entry
	j.order = append(j.order, entry.job.ID)
	j.trimLocked()
	snapshot := entry.job
	j.mu.Unlock()

	j.publish(sse.NewJobStatusEvent(snapshot.ID, string(kind), string(JobPending)))

	jobCtx := withHeldLock(j.ctx, string(kind))
	j.wg.Add(1)
	go func() {
		defer j.wg.Done()
		j.run(jobCtx, entry, fn, release)
	}()

	return snapshot, nil
}

// run executes fn and finalizes the job. The lock is released and the
// completed event published before waiters are woken.
func (j *Jobs) run(ctx context.Context, entry *jobEntry, fn JobFunc, release func()) {
	defer close(entry.done)

	id, kind := entry.job.ID, string(entry.job.Kind)
	log := j.logger.With(infralogger.JobID(id), infralogger.String("kind", kind))

	started := time.Now().UTC()
	j.update(entry, func(job *Job) {
		job.Status = JobRunning
		job.StartedAt = &started
	})
	j.publish(sse.NewJobStatusEvent(id, kind, string(JobRunning)))
	log.Info("Job started")

	progress := func(processed, succeeded, failed, total int) {
		j.update(entry, func(job *Job) {
			job.Progress = &JobProgress{Processed: processed, Succeeded: succeeded, Failed: failed, Total: total}
		})
		j.publish(sse.NewJobProgressEvent(id, kind, processed, succeeded, failed, total))
	}

	result, err := safeRun(ctx, fn, progress)
	release()

	finished := time.Now().UTC()
	status := JobSucceeded
	errMsg := ""
	if err != nil {
		status = JobFailed
		errMsg = err.Error()
	}

	j.update(entry, func(job *Job) {
		job.Status = status
		job.Result = result
		job.Error = errMsg
		job.FinishedAt = &finished
	})

	duration := finished.Sub(started)
	j.telemetry.RecordJob(kind, string(status), duration)
	j.publish(sse.NewJobCompletedEvent(id, kind, string(status), duration, result, errMsg))

	if err != nil {
		log.Error("Job failed", infralogger.Error(err), infralogger.Duration("duration", duration))
		return
	}
	log.Info("Job succeeded", infralogger.Duration("duration", duration))
}

func safeRun(ctx context.Context, fn JobFunc, progress ProgressFunc) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = fmt.Errorf("job panicked: %v", r)
		}
	}()
	return fn(ctx, progress)
}

func (j *Jobs) update(entry *jobEntry, mutate func(*Job)) {
	j.mu.Lock()
	mutate(&entry.job)
	j.mu.Unlock()
}

// trimLocked drops the oldest finished jobs beyond History.
func (j *Jobs) trimLocked() {
	for i := 0; len(j.order) > j.cfg.History && i < len(j.order); {
		id := j.order[i]
		if j.entries[id].job.Status.IsTerminal() {
			delete(j.entries, id)
			j.order = slices.Delete(j.order, i, i+1)
			continue
		}
		i++
	}
}

func (j *Jobs) publish(event sse.Event) {
	if j.publisher == nil {
		return
	}
	if err := j.publisher.Publish(j.ctx, event); err != nil {
		j.logger.Debug("Job event not published",
			infralogger.String("event", event.Type),
			infralogger.Error(err),
		)
	}
}

// Get returns a copy of the job.
func (j *Jobs) Get(id string) (Job, bool) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	entry, ok := j.entries[id]
	if !ok {
		return Job{}, false
	}
	return copyJob(entry.job), true
}

// List returns the tracked jobs, newest first.
func (j *Jobs) List() []Job {
	j.mu.RLock()
	defer j.mu.RUnlock()

	out := make([]Job, 0, len(j.order))
	for i := len(j.order) - 1; i >= 0; i-- {
		out = append(out, copyJob(j.entries[j.order[i]].job))
	}
	return out
}

// Wait blocks until the job finishes or ctx ends.
func (j *Jobs) Wait(ctx context.Context, id string) (Job, error) {
	j.mu.RLock()
	entry, ok := j.entries[id]
	j.mu.RUnlock()
	if !ok {
		return Job{}, ErrJobNotFound
	}

	select {
	case <-entry.done:
	case <-ctx.Done():
		return Job{}, ctx.Err()
	}

	j.mu.RLock()
	defer j.mu.RUnlock()
	return copyJob(entry.job), nil
}

// Shutdown cancels running jobs and waits for them to return.
func (j *Jobs) Shutdown(ctx context.Context) error {
	j.cancel()

	done := make(chan struct{})
	go func() {
		j.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for jobs: %w", ctx.Err())
	}
}

func copyJob(job Job) Job {
	if job.Progress != nil {
		p := *job.Progress
		job.Progress = &p
	}
	return job
}
