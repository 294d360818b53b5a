package database_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/scrape-analyzer/internal/database"
	"github.com/jonesrussell/north-cloud/scrape-analyzer/internal/domain"
)

var recordCols = []string{
	"id", "external_id", "source", "content", "source_created_at",
	"analysis", "analyzed_at", "created_at", "updated_at",
}

func newRepo(t *testing.T) (*database.Repository, sqlmock.Sqlmock) {
	t.Helper()

	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })

	return database.NewRepository(sqlx.NewDb(mockDB, "postgres")), mock
}

func makeRecords(n int) []*domain.Record {
	records := make([]*domain.Record, n)
	for i := range records {
		records[i] = domain.NewRecord(domain.DatasetItem{
			ExternalID: fmt.Sprintf("ext-%d", i),
			Source:     "https://example.com",
			Content:    "body",
		})
	}
	return records
}

func idRows(n int) *sqlmock.Rows {
	rows := sqlmock.NewRows([]string{"id"})
	for range n {
		rows.AddRow(uuid.NewString())
	}
	return rows
}

func TestInsertRecords_BatchesAndCountsReturnedRows(t *testing.T) {
	t.Parallel()

	repo, mock := newRepo(t)
	records := makeRecords(60)

	mock.ExpectBegin()
	// first batch of 50: 48 new, 2 conflicts
	mock.ExpectQuery(`INSERT INTO records .* ON CONFLICT \(external_id\) DO NOTHING RETURNING id`).
		WillReturnRows(idRows(48))
	mock.ExpectQuery(`INSERT INTO records .* ON CONFLICT \(external_id\) DO NOTHING RETURNING id`).
		WillReturnRows(idRows(10))
	mock.ExpectCommit()

	inserted, err := repo.InsertRecords(context.Background(), records)
	require.NoError(t, err)
	assert.Equal(t, 58, inserted)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertRecords_AllDuplicatesInsertsZero(t *testing.T) {
	t.Parallel()

	repo, mock := newRepo(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO records`).WillReturnRows(idRows(0))
	mock.ExpectCommit()

	inserted, err := repo.InsertRecords(context.Background(), makeRecords(3))
	require.NoError(t, err)
	assert.Zero(t, inserted)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertRecords_RollsBackOnError(t *testing.T) {
	t.Parallel()

	repo, mock := newRepo(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO records`).WillReturnError(fmt.Errorf("connection reset"))
	mock.ExpectRollback()

	_, err := repo.InsertRecords(context.Background(), makeRecords(2))
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertRecords_Empty(t *testing.T) {
	t.Parallel()

	repo, mock := newRepo(t)
	inserted, err := repo.InsertRecords(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, inserted)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListUnanalyzed(t *testing.T) {
	t.Parallel()

	repo, mock := newRepo(t)
	now := time.Now()
	id := uuid.New()

	mock.ExpectQuery(`SELECT .* FROM records\s+WHERE analyzed_at IS NULL\s+ORDER BY created_at ASC\s+LIMIT \$1`).
		WithArgs(10).
		WillReturnRows(sqlmock.NewRows(recordCols).
			AddRow(id.String(), "ext-1", "https://example.com", "hello", nil, nil, nil, now, now))

	records, err := repo.ListUnanalyzed(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, id, records[0].ID)
	assert.Nil(t, records[0].Analysis)
	assert.False(t, records[0].IsAnalyzed())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveAnalysis_Guarded(t *testing.T) {
	t.Parallel()

	analysis := domain.Analysis{Summary: "s", Sentiment: domain.SentimentNeutral, Keywords: []string{"k"}}
	at := time.Now()

	tests := []struct {
		name     string
		affected int64
		want     bool
	}{
		{name: "first write", affected: 1, want: true},
		{name: "already analyzed", affected: 0, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, mock := newRepo(t)
			id := uuid.New()

			mock.ExpectExec(`UPDATE records\s+SET analysis = \$2, analyzed_at = \$3, updated_at = \$3\s+WHERE id = \$1 AND analyzed_at IS NULL`).
				WithArgs(id, sqlmock.AnyArg(), at).
				WillReturnResult(sqlmock.NewResult(0, tt.affected))

			saved, err := repo.SaveAnalysis(context.Background(), id, analysis, at)
			require.NoError(t, err)
			assert.Equal(t, tt.want, saved)
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestListRecords_AnalyzedFilter(t *testing.T) {
	t.Parallel()

	repo, mock := newRepo(t)
	now := time.Now()
	analyzed := true

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM records WHERE analyzed_at IS NOT NULL`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(7))
	mock.ExpectQuery(`FROM records WHERE analyzed_at IS NOT NULL ORDER BY created_at DESC LIMIT \$1 OFFSET \$2`).
		WithArgs(2, 4).
		WillReturnRows(sqlmock.NewRows(recordCols).
			AddRow(uuid.NewString(), "ext-1", "", "a", nil,
				[]byte(`{"summary":"x","sentiment":"positive","keywords":["go"]}`), now, now, now))

	page, err := repo.ListRecords(context.Background(), domain.RecordFilter{Limit: 2, Offset: 4, Analyzed: &analyzed})
	require.NoError(t, err)
	assert.Equal(t, 7, page.Total)
	require.Len(t, page.Records, 1)
	require.NotNil(t, page.Records[0].Analysis)
	assert.Equal(t, domain.SentimentPositive, page.Records[0].Analysis.Sentiment)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetRecord_NotFound(t *testing.T) {
	t.Parallel()

	repo, mock := newRepo(t)
	id := uuid.New()

	mock.ExpectQuery(`FROM records WHERE id = \$1`).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows(recordCols))

	_, err := repo.GetRecord(context.Background(), id)
	require.ErrorIs(t, err, database.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}
