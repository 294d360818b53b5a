package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jonesrussell/north-cloud/scrape-analyzer/internal/domain"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("record not found")

// insertBatchSize bounds the rows per INSERT statement.
const insertBatchSize = 50

const insertColumns = 5

const recordColumns = `id, external_id, source, content, source_created_at, analysis, analyzed_at, created_at, updated_at`

// Repository handles database operations for records.
type Repository struct {
	db *sqlx.DB
}

// NewRepository creates a new repository with the given database connection.
func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

// Ping checks database connectivity.
func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// InsertRecords inserts records in batches inside one transaction.
// Rows whose external_id already exists are skipped; the return value counts
// only rows actually inserted.
func (r *Repository) InsertRecords(ctx context.Context, records []*domain.Record) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin insert: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	inserted := 0
	for start := 0; start < len(records); start += insertBatchSize {
		end := min(start+insertBatchSize, len(records))

		n, batchErr := insertBatch(ctx, tx, records[start:end])
		if batchErr != nil {
			return 0, fmt.Errorf("insert records %d-%d: %w", start, end, batchErr)
		}
		inserted += n
	}

	if commitErr := tx.Commit(); commitErr != nil {
		return 0, fmt.Errorf("commit insert: %w", commitErr)
	}

	return inserted, nil
}

func insertBatch(ctx context.Context, tx *sqlx.Tx, batch []*domain.Record) (int, error) {
	var query strings.Builder
	query.WriteString(`INSERT INTO records (id, external_id, source, content, source_created_at) VALUES `)

	args := make([]any, 0, len(batch)*insertColumns)
	for i, rec := range batch {
		if i > 0 {
			query.WriteString(", ")
		}
		base := i * insertColumns
		query.WriteString("(")
		for col := range insertColumns {
			if col > 0 {
				query.WriteString(", ")
			}
			query.WriteString("$" + strconv.Itoa(base+col+1))
		}
		query.WriteString(")")

		args = append(args, rec.ID, rec.ExternalID, rec.Source, rec.Content, rec.SourceCreatedAt)
	}
	query.WriteString(` ON CONFLICT (external_id) DO NOTHING RETURNING id`)

	rows, err := tx.QueryContext(ctx, query.String(), args...)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	n := 0
	for rows.Next() {
		n++
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return 0, rowsErr
	}
	return n, nil
}

// ListUnanalyzed returns up to limit records without analysis, oldest first.
func (r *Repository) ListUnanalyzed(ctx context.Context, limit int) ([]domain.Record, error) {
	query := `SELECT ` + recordColumns + `
		FROM records
		WHERE analyzed_at IS NULL
		ORDER BY created_at ASC
		LIMIT $1`

	var records []domain.Record
	if err := r.db.SelectContext(ctx, &records, query, limit); err != nil {
		return nil, fmt.Errorf("list unanalyzed: %w", err)
	}
	return records, nil
}

// SaveAnalysis stores analysis for a record that has none yet. It returns
// false when the record is missing or was already analyzed.
func (r *Repository) SaveAnalysis(
	ctx context.Context,
	id uuid.UUID,
	analysis domain.Analysis,
	analyzedAt time.Time,
) (bool, error) {
	query := `
		UPDATE records
		SET analysis = $2, analyzed_at = $3, updated_at = $3
		WHERE id = $1 AND analyzed_at IS NULL`

	result, err := r.db.ExecContext(ctx, query, id, analysis, analyzedAt)
	if err != nil {
		return false, fmt.Errorf("save analysis: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("save analysis rows affected: %w", err)
	}
	return affected == 1, nil
}

// ListRecords returns a page of records, newest first.
func (r *Repository) ListRecords(ctx context.Context, filter domain.RecordFilter) (*domain.RecordPage, error) {
	where := ""
	if filter.Analyzed != nil {
		if *filter.Analyzed {
			where = " WHERE analyzed_at IS NOT NULL"
		} else {
			where = " WHERE analyzed_at IS NULL"
		}
	}

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM records`+where); err != nil {
		return nil, fmt.Errorf("count records: %w", err)
	}

	query := `SELECT ` + recordColumns + ` FROM records` + where +
		` ORDER BY created_at DESC LIMIT $1 OFFSET $2`

	records := make([]domain.Record, 0, filter.Limit)
	if err := r.db.SelectContext(ctx, &records, query, filter.Limit, filter.Offset); err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}

	return &domain.RecordPage{
		Records: records,
		Total:   total,
		Limit:   filter.Limit,
		Offset:  filter.Offset,
	}, nil
}

// GetRecord returns one record or ErrNotFound.
func (r *Repository) GetRecord(ctx context.Context, id uuid.UUID) (*domain.Record, error) {
	var rec domain.Record
	err := r.db.GetContext(ctx, &rec, `SELECT `+recordColumns+` FROM records WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get record: %w", err)
	}
	return &rec, nil
}
