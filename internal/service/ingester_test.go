package service_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	infralogger "github.com/jonesrussell/north-cloud/scrape-analyzer/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/scrape-analyzer/internal/domain"
	"github.com/jonesrussell/north-cloud/scrape-analyzer/internal/service"
	"github.com/jonesrussell/north-cloud/scrape-analyzer/internal/taskrunner"
)

var testFields = service.FieldMapping{ID: "id", URL: "url", Content: "text", CreatedAt: "createdAt"}

func sampleItems() []map[string]any {
	return []map[string]any{
		{"id": "1", "url": "https://example.com/1", "text": "first"},
		{"id": "2", "url": "https://example.com/2", "text": "second"},
		{"id": "2", "url": "https://example.com/2", "text": "second again"},
		{"url": "https://example.com/3", "text": "keyed by url"},
		{"id": "4", "text": ""},
		{"text": "no id, no url"},
	}
}

func newIngester(runner service.TaskRunner, store service.RecordWriter, locker service.Locker) *service.Ingester {
	return service.NewIngester(runner, store, locker, service.IngesterConfig{Fields: testFields}, infralogger.NewNop(), nil)
}

func TestIngest_StartsRunAndInserts(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{items: sampleItems()}
	store := &memoryStore{}
	ingester := newIngester(runner, store, service.NewLocalLocker())

	var reports [][4]int
	result, err := ingester.Ingest(context.Background(), service.IngestOptions{
		Progress: func(processed, succeeded, failed, total int) {
			reports = append(reports, [4]int{processed, succeeded, failed, total})
		},
	})
	require.NoError(t, err)

	assert.Equal(t, &domain.IngestResult{
		RunID:      "run-1",
		DatasetID:  "ds-run",
		Fetched:    6,
		Invalid:    2,
		Inserted:   3,
		Duplicates: 1,
	}, result)
	assert.Equal(t, 1, runner.started)
	assert.Equal(t, []string{"ds-run"}, runner.datasets)
	assert.Equal(t, [][4]int{{0, 0, 0, 6}, {6, 3, 2, 6}}, reports)

	require.NotNil(t, store.findByExternalID(domain.URLHash("https://example.com/3")))
	assert.Equal(t, "second", store.findByExternalID("2").Content, "first occurrence wins")
}

func TestIngest_IsIdempotent(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{items: sampleItems()}
	store := &memoryStore{}
	ingester := newIngester(runner, store, service.NewLocalLocker())

	_, err := ingester.Ingest(context.Background(), service.IngestOptions{})
	require.NoError(t, err)

	again, err := ingester.Ingest(context.Background(), service.IngestOptions{})
	require.NoError(t, err)

	assert.Zero(t, again.Inserted)
	assert.Equal(t, 4, again.Duplicates)
	assert.Len(t, store.records, 3)
}

func TestIngest_ExistingDataset(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{items: sampleItems()[:1]}
	ingester := newIngester(runner, &memoryStore{}, service.NewLocalLocker())

	result, err := ingester.Ingest(context.Background(), service.IngestOptions{DatasetID: "ds-existing"})
	require.NoError(t, err)

	assert.Zero(t, runner.started)
	assert.Empty(t, result.RunID)
	assert.Equal(t, "ds-existing", result.DatasetID)
	assert.Equal(t, 1, result.Inserted)
}

func TestIngest_RunFailed(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{runErr: taskrunner.ErrRunFailed}
	store := &memoryStore{}
	ingester := newIngester(runner, store, service.NewLocalLocker())

	_, err := ingester.Ingest(context.Background(), service.IngestOptions{})
	require.ErrorIs(t, err, taskrunner.ErrRunFailed)
	assert.Empty(t, runner.datasets)
	assert.Empty(t, store.records)
}

func TestIngest_LockHeld(t *testing.T) {
	t.Parallel()

	locker := service.NewLocalLocker()
	release, err := locker.Acquire(context.Background(), service.LockIngest, 0)
	require.NoError(t, err)
	defer release()

	runner := &fakeRunner{items: sampleItems()}
	ingester := newIngester(runner, &memoryStore{}, locker)

	_, err = ingester.Ingest(context.Background(), service.IngestOptions{})
	require.ErrorIs(t, err, service.ErrJobRunning)
	assert.Zero(t, runner.started)
}
