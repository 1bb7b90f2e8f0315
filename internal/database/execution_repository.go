package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/jonesrussell/north-cloud/monitor/internal/domain"
)

// ExecutionRepository stores one summary record per monitor run.
type ExecutionRepository struct {
	db *sql.DB
}

// NewExecutionRepository creates a new repository.
func NewExecutionRepository(db *sql.DB) *ExecutionRepository {
	return &ExecutionRepository{db: db}
}

// Start inserts a new execution record and returns its id. The record is
// finalized later by Finish, exactly once per run.
func (r *ExecutionRepository) Start(ctx context.Context, id, jobName string, startedAt time.Time) error {
	query := `
		INSERT INTO execution_records (id, job_name, started_at, success)
		VALUES ($1, $2, $3, FALSE)`

	if _, err := r.db.ExecContext(ctx, query, id, jobName, startedAt); err != nil {
		return fmt.Errorf("start execution record: %w", err)
	}
	return nil
}

// Finish finalizes an execution record with the run outcome. The error list
// is bounded before storage.
func (r *ExecutionRepository) Finish(ctx context.Context, id string, success bool, errs []string, summary domain.RunSummary) error {
	responseData, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("marshal run summary: %w", err)
	}

	query := `
		UPDATE execution_records
		SET completed_at = NOW(),
		    success = $2,
		    errors = $3,
		    response_data = $4
		WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query, id, success,
		pq.Array(domain.BoundErrors(errs)), responseData)
	if err != nil {
		return fmt.Errorf("finish execution record: %w", err)
	}

	rows, rowsErr := result.RowsAffected()
	if rowsErr != nil {
		return fmt.Errorf("get affected rows: %w", rowsErr)
	}
	if rows == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Recent returns the most recent execution records for a job, newest first.
func (r *ExecutionRepository) Recent(ctx context.Context, jobName string, limit int) ([]domain.ExecutionRecord, error) {
	query := `
		SELECT id, job_name, started_at, completed_at, success, errors, response_data
		FROM execution_records
		WHERE job_name = $1
		ORDER BY started_at DESC
		LIMIT $2`

	rows, err := r.db.QueryContext(ctx, query, jobName, limit)
	if err != nil {
		return nil, fmt.Errorf("recent execution records: %w", err)
	}
	defer rows.Close()

	records := make([]domain.ExecutionRecord, 0, limit)
	for rows.Next() {
		record, scanErr := scanExecutionRecord(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		records = append(records, *record)
	}
	return records, rows.Err()
}

// RecentFailures returns failed runs completed within the window, for the
// job-failure detector.
func (r *ExecutionRepository) RecentFailures(ctx context.Context, since time.Time) ([]domain.ExecutionRecord, error) {
	query := `
		SELECT id, job_name, started_at, completed_at, success, errors, response_data
		FROM execution_records
		WHERE success = FALSE
		  AND completed_at IS NOT NULL
		  AND completed_at >= $1
		ORDER BY completed_at DESC`

	rows, err := r.db.QueryContext(ctx, query, since)
	if err != nil {
		return nil, fmt.Errorf("recent execution failures: %w", err)
	}
	defer rows.Close()

	records := make([]domain.ExecutionRecord, 0, initialIssueCapacity)
	for rows.Next() {
		record, scanErr := scanExecutionRecord(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		records = append(records, *record)
	}
	return records, rows.Err()
}

func scanExecutionRecord(rows *sql.Rows) (*domain.ExecutionRecord, error) {
	var record domain.ExecutionRecord
	var recordedErrors pq.StringArray
	var responseData []byte

	err := rows.Scan(
		&record.ID, &record.JobName, &record.StartedAt, &record.CompletedAt,
		&record.Success, &recordedErrors, &responseData,
	)
	if err != nil {
		return nil, fmt.Errorf("scan execution record: %w", err)
	}

	record.Errors = recordedErrors
	if len(responseData) > 0 {
		if unmarshalErr := json.Unmarshal(responseData, &record.Summary); unmarshalErr != nil {
			// Tolerate older records with a different summary shape.
			record.Summary = domain.RunSummary{}
		}
	}
	return &record, nil
}

// LastCompleted returns the most recent completed run for a job, or
// ErrNotFound when the job has never completed. A run still in flight does
// not shadow earlier completed runs.
func (r *ExecutionRepository) LastCompleted(ctx context.Context, jobName string) (*domain.ExecutionRecord, error) {
	query := `
		SELECT id, job_name, started_at, completed_at, success, errors, response_data
		FROM execution_records
		WHERE job_name = $1
		  AND completed_at IS NOT NULL
		ORDER BY completed_at DESC
		LIMIT 1`

	rows, err := r.db.QueryContext(ctx, query, jobName)
	if err != nil {
		return nil, fmt.Errorf("last completed execution record: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if rowsErr := rows.Err(); rowsErr != nil {
			return nil, rowsErr
		}
		return nil, domain.ErrNotFound
	}
	return scanExecutionRecord(rows)
}
