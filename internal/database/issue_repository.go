package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/jonesrussell/north-cloud/monitor/internal/domain"
)

// issueSelectList is the column list for SELECT/RETURNING on pipeline_issues
// (single source for schema changes).
const issueSelectList = `id, issue_type, subject_ref, scope_ref, description,
			status, retry_count, max_retries, next_retry_at,
			auto_fixable, fix_result, created_at, resolved_at`

// IssueRepository is the durable issue ledger. All lifecycle mutation goes
// through single-row updates keyed by issue id.
type IssueRepository struct {
	db *sql.DB
}

// NewIssueRepository creates a new repository.
func NewIssueRepository(db *sql.DB) *IssueRepository {
	return &IssueRepository{db: db}
}

// Create inserts a new issue unless a non-resolved issue with the same dedup
// key already exists. Returns true when a row was inserted. A duplicate-key
// race with a concurrent insert is absorbed as a no-op, not an error.
func (r *IssueRepository) Create(ctx context.Context, issue *domain.Issue) (bool, error) {
	query := `
		INSERT INTO pipeline_issues (
			id, issue_type, subject_ref, scope_ref, description, dedup_key,
			status, retry_count, max_retries, next_retry_at, auto_fixable,
			created_at, updated_at
		)
		SELECT $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $12
		WHERE NOT EXISTS (
			SELECT 1 FROM pipeline_issues
			WHERE dedup_key = $6 AND status <> 'resolved'
		)
		ON CONFLICT DO NOTHING`

	result, err := r.db.ExecContext(ctx, query,
		issue.ID, issue.Type, issue.SubjectRef, issue.ScopeRef,
		issue.Description, issue.DedupKey(), issue.Status, issue.RetryCount,
		issue.MaxRetries, issue.NextRetryAt, issue.AutoFixable, issue.CreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("create issue: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("get affected rows: %w", err)
	}
	return rows > 0, nil
}

// GetRetryable returns auto-fixable issues eligible for a fix attempt at the
// given time, grouped by type for efficient batch dispatch.
func (r *IssueRepository) GetRetryable(ctx context.Context, now time.Time) ([]domain.Issue, error) {
	query := `SELECT ` + issueSelectList + `
		FROM pipeline_issues
		WHERE status IN ('open', 'retrying')
		  AND auto_fixable = TRUE
		  AND (next_retry_at IS NULL OR next_retry_at <= $1)
		ORDER BY issue_type, created_at`

	rows, err := r.db.QueryContext(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("get retryable issues: %w", err)
	}
	defer rows.Close()

	return scanIssues(rows)
}

// MarkRetrying claims a set of issues for an in-flight batch attempt, so a
// crash mid-batch does not leave them silently open with stale bookkeeping.
func (r *IssueRepository) MarkRetrying(ctx context.Context, ids []string) error {
	query := `
		UPDATE pipeline_issues
		SET status = 'retrying', updated_at = NOW()
		WHERE id = ANY($1)`

	if _, err := r.db.ExecContext(ctx, query, pq.Array(ids)); err != nil {
		return fmt.Errorf("mark retrying: %w", err)
	}
	return nil
}

// execExpectOneRow runs an exec and returns domain.ErrNotFound when no row
// was affected.
func (r *IssueRepository) execExpectOneRow(ctx context.Context, query string, args ...any) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
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

// MarkResolved records a successful fix attempt: terminal success.
func (r *IssueRepository) MarkResolved(ctx context.Context, id, result string) error {
	query := `
		UPDATE pipeline_issues
		SET status = 'resolved',
		    retry_count = retry_count + 1,
		    fix_result = $2,
		    resolved_at = NOW(),
		    updated_at = NOW()
		WHERE id = $1`
	if err := r.execExpectOneRow(ctx, query, id, result); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return err
		}
		return fmt.Errorf("mark resolved: %w", err)
	}
	return nil
}

// MarkRetryScheduled records a failed attempt with retries remaining: the
// issue returns to open and becomes eligible again at nextRetryAt.
func (r *IssueRepository) MarkRetryScheduled(ctx context.Context, id, result string, nextRetryAt time.Time) error {
	query := `
		UPDATE pipeline_issues
		SET status = 'open',
		    retry_count = retry_count + 1,
		    fix_result = $2,
		    next_retry_at = $3,
		    updated_at = NOW()
		WHERE id = $1`
	if err := r.execExpectOneRow(ctx, query, id, result, nextRetryAt); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return err
		}
		return fmt.Errorf("mark retry scheduled: %w", err)
	}
	return nil
}

// MarkNeedsManual records a failed attempt with the retry budget exhausted:
// terminal until an operator reopens the issue.
func (r *IssueRepository) MarkNeedsManual(ctx context.Context, id, result string) error {
	query := `
		UPDATE pipeline_issues
		SET status = 'needs_manual',
		    retry_count = retry_count + 1,
		    fix_result = $2,
		    updated_at = NOW()
		WHERE id = $1`
	if err := r.execExpectOneRow(ctx, query, id, result); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return err
		}
		return fmt.Errorf("mark needs manual: %w", err)
	}
	return nil
}

// ReopenManual resets a needs_manual issue back to open, optionally clearing
// its retry count. Operator action, outside the automatic flow.
func (r *IssueRepository) ReopenManual(ctx context.Context, id string, resetRetries bool) error {
	query := `
		UPDATE pipeline_issues
		SET status = 'open',
		    retry_count = CASE WHEN $2 THEN 0 ELSE retry_count END,
		    next_retry_at = NOW(),
		    updated_at = NOW()
		WHERE id = $1 AND status = 'needs_manual'`
	if err := r.execExpectOneRow(ctx, query, id, resetRetries); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return err
		}
		return fmt.Errorf("reopen manual: %w", err)
	}
	return nil
}

// GetByID retrieves a single issue by id.
func (r *IssueRepository) GetByID(ctx context.Context, id string) (*domain.Issue, error) {
	query := `SELECT ` + issueSelectList + `
		FROM pipeline_issues
		WHERE id = $1`

	var i domain.Issue
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&i.ID, &i.Type, &i.SubjectRef, &i.ScopeRef, &i.Description,
		&i.Status, &i.RetryCount, &i.MaxRetries, &i.NextRetryAt,
		&i.AutoFixable, &i.FixResult, &i.CreatedAt, &i.ResolvedAt,
	)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get issue by id: %w", err)
	}
	return &i, nil
}

// ListByStatus returns issues in a given status, newest first.
func (r *IssueRepository) ListByStatus(ctx context.Context, status domain.IssueStatus, limit int) ([]domain.Issue, error) {
	query := `SELECT ` + issueSelectList + `
		FROM pipeline_issues
		WHERE status = $1
		ORDER BY created_at DESC
		LIMIT $2`

	rows, err := r.db.QueryContext(ctx, query, status, limit)
	if err != nil {
		return nil, fmt.Errorf("list issues by status: %w", err)
	}
	defer rows.Close()

	return scanIssues(rows)
}

// IssueStats holds ledger counts for monitoring.
type IssueStats struct {
	Open        int64 `json:"open"`
	Retrying    int64 `json:"retrying"`
	Resolved    int64 `json:"resolved"`
	NeedsManual int64 `json:"needs_manual"`
}

// GetStats returns ledger counts by status.
func (r *IssueRepository) GetStats(ctx context.Context) (*IssueStats, error) {
	query := `
		SELECT
			COUNT(*) FILTER (WHERE status = 'open') as open,
			COUNT(*) FILTER (WHERE status = 'retrying') as retrying,
			COUNT(*) FILTER (WHERE status = 'resolved') as resolved,
			COUNT(*) FILTER (WHERE status = 'needs_manual') as needs_manual
		FROM pipeline_issues`

	var stats IssueStats
	err := r.db.QueryRowContext(ctx, query).Scan(
		&stats.Open, &stats.Retrying, &stats.Resolved, &stats.NeedsManual,
	)
	if err != nil {
		return nil, fmt.Errorf("get issue stats: %w", err)
	}
	return &stats, nil
}

// initialIssueCapacity is a reasonable default for batch operations.
const initialIssueCapacity = 64

func scanIssues(rows *sql.Rows) ([]domain.Issue, error) {
	issues := make([]domain.Issue, 0, initialIssueCapacity)
	for rows.Next() {
		var i domain.Issue
		err := rows.Scan(
			&i.ID, &i.Type, &i.SubjectRef, &i.ScopeRef, &i.Description,
			&i.Status, &i.RetryCount, &i.MaxRetries, &i.NextRetryAt,
			&i.AutoFixable, &i.FixResult, &i.CreatedAt, &i.ResolvedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan issue: %w", err)
		}
		issues = append(issues, i)
	}
	return issues, rows.Err()
}
