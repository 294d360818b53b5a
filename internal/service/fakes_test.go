package service_test

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jonesrussell/north-cloud/scrape-analyzer/infrastructure/sse"
	"github.com/jonesrussell/north-cloud/scrape-analyzer/internal/domain"
	"github.com/jonesrussell/north-cloud/scrape-analyzer/internal/taskrunner"
)

// fakeRunner serves a fixed dataset and records calls.
type fakeRunner struct {
	mu       sync.Mutex
	items    []map[string]any
	runErr   error
	started  int
	datasets []string
}

func (f *fakeRunner) StartTask(_ context.Context, _ map[string]any) (*taskrunner.Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started++
	return &taskrunner.Run{ID: "run-1", Status: taskrunner.StatusReady, DefaultDatasetID: "ds-run"}, nil
}

func (f *fakeRunner) WaitForRun(_ context.Context, runID string) (*taskrunner.Run, error) {
	if f.runErr != nil {
		return &taskrunner.Run{ID: runID, Status: taskrunner.StatusFailed}, f.runErr
	}
	return &taskrunner.Run{ID: runID, Status: taskrunner.StatusSucceeded, DefaultDatasetID: "ds-run"}, nil
}

func (f *fakeRunner) ListDatasetItems(_ context.Context, datasetID string) ([]map[string]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.datasets = append(f.datasets, datasetID)
	return f.items, nil
}

// memoryStore mimics the records table: unique external ids, guarded
// analysis updates, oldest-first selection.
type memoryStore struct {
	mu      sync.Mutex
	records []*domain.Record
	saveErr map[uuid.UUID]error
}

func (m *memoryStore) InsertRecords(_ context.Context, records []*domain.Record) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	inserted := 0
	for _, r := range records {
		if m.findByExternalID(r.ExternalID) != nil {
			continue
		}
		copied := *r
		copied.CreatedAt = time.Now().Add(time.Duration(len(m.records)) * time.Millisecond)
		m.records = append(m.records, &copied)
		inserted++
	}
	return inserted, nil
}

func (m *memoryStore) findByExternalID(id string) *domain.Record {
	for _, r := range m.records {
		if r.ExternalID == id {
			return r
		}
	}
	return nil
}

func (m *memoryStore) ListUnanalyzed(_ context.Context, limit int) ([]domain.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []domain.Record
	for _, r := range m.records {
		if r.AnalyzedAt == nil {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memoryStore) SaveAnalysis(_ context.Context, id uuid.UUID, analysis domain.Analysis, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.saveErr[id]; err != nil {
		return false, err
	}
	for _, r := range m.records {
		if r.ID == id {
			if r.AnalyzedAt != nil {
				return false, nil
			}
			a := analysis
			r.Analysis = &a
			r.AnalyzedAt = &at
			return true, nil
		}
	}
	return false, nil
}

func (m *memoryStore) analyzedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, r := range m.records {
		if r.AnalyzedAt != nil {
			n++
		}
	}
	return n
}

func (m *memoryStore) seed(contents ...string) []*domain.Record {
	var out []*domain.Record
	for i, c := range contents {
		r := domain.NewRecord(domain.DatasetItem{ExternalID: uuid.NewString(), Content: c})
		r.CreatedAt = time.Date(2026, 1, 1, 0, 0, i, 0, time.UTC)
		m.records = append(m.records, r)
		out = append(out, r)
	}
	return out
}

// fakeAnalyzer fails for content listed in failOn.
type fakeAnalyzer struct {
	mu     sync.Mutex
	failOn map[string]error
	calls  []string
	hook   func(content string)
}

func (f *fakeAnalyzer) Analyze(_ context.Context, content string) (*domain.Analysis, error) {
	f.mu.Lock()
	f.calls = append(f.calls, content)
	hook := f.hook
	err := f.failOn[content]
	f.mu.Unlock()

	if hook != nil {
		hook(content)
	}
	if err != nil {
		return nil, err
	}
	return &domain.Analysis{Summary: "summary of " + content, Sentiment: domain.SentimentNeutral}, nil
}

// recordingPublisher keeps every published event.
type recordingPublisher struct {
	mu     sync.Mutex
	events []sse.Event
}

func (p *recordingPublisher) Publish(_ context.Context, event sse.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

var errBoom = errors.New("boom")
