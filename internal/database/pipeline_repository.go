package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// PipelineJob is one row of the content pipeline's own job history.
type PipelineJob struct {
	ID           string     `db:"id"            json:"id"`
	JobName      string     `db:"job_name"      json:"job_name"`
	ScopeRef     *string    `db:"scope_ref"     json:"scope_ref,omitempty"`
	Success      bool       `db:"success"       json:"success"`
	ErrorMessage *string    `db:"error_message" json:"error_message,omitempty"`
	StartedAt    time.Time  `db:"started_at"    json:"started_at"`
	CompletedAt  *time.Time `db:"completed_at"  json:"completed_at,omitempty"`
}

// ScheduledItem is an item the pipeline was expected to produce.
type ScheduledItem struct {
	ID          string    `db:"id"           json:"id"`
	ScopeRef    string    `db:"scope_ref"    json:"scope_ref"`
	ContentID   *string   `db:"content_id"   json:"content_id,omitempty"`
	ScheduledAt time.Time `db:"scheduled_at" json:"scheduled_at"`
}

// DeliveryGap is a published content item with no delivery receipt.
type DeliveryGap struct {
	ContentID   string    `db:"content_id"   json:"content_id"`
	Channel     string    `db:"channel"      json:"channel"`
	PublishedAt time.Time `db:"published_at" json:"published_at"`
}

// PipelineRepository provides the read-only pipeline views the fault
// detectors scan. It never mutates pipeline state.
type PipelineRepository struct {
	db *sql.DB
}

// NewPipelineRepository creates a new repository.
func NewPipelineRepository(db *sql.DB) *PipelineRepository {
	return &PipelineRepository{db: db}
}

// FailedJobsSince returns pipeline jobs that completed unsuccessfully within
// the window.
func (r *PipelineRepository) FailedJobsSince(ctx context.Context, since time.Time) ([]PipelineJob, error) {
	query := `
		SELECT id, job_name, scope_ref, success, error_message, started_at, completed_at
		FROM pipeline_jobs
		WHERE success = FALSE
		  AND completed_at IS NOT NULL
		  AND completed_at >= $1
		ORDER BY completed_at DESC`

	rows, err := r.db.QueryContext(ctx, query, since)
	if err != nil {
		return nil, fmt.Errorf("failed jobs since: %w", err)
	}
	defer rows.Close()

	jobs := make([]PipelineJob, 0, initialIssueCapacity)
	for rows.Next() {
		var j PipelineJob
		if scanErr := rows.Scan(&j.ID, &j.JobName, &j.ScopeRef, &j.Success,
			&j.ErrorMessage, &j.StartedAt, &j.CompletedAt); scanErr != nil {
			return nil, fmt.Errorf("scan pipeline job: %w", scanErr)
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

// UnfulfilledScheduledItems returns items that were due within the window
// but have no produced content attached.
func (r *PipelineRepository) UnfulfilledScheduledItems(ctx context.Context, since, until time.Time) ([]ScheduledItem, error) {
	query := `
		SELECT id, scope_ref, content_id, scheduled_at
		FROM scheduled_items
		WHERE content_id IS NULL
		  AND scheduled_at >= $1
		  AND scheduled_at <= $2
		ORDER BY scheduled_at`

	rows, err := r.db.QueryContext(ctx, query, since, until)
	if err != nil {
		return nil, fmt.Errorf("unfulfilled scheduled items: %w", err)
	}
	defer rows.Close()

	items := make([]ScheduledItem, 0, initialIssueCapacity)
	for rows.Next() {
		var item ScheduledItem
		if scanErr := rows.Scan(&item.ID, &item.ScopeRef, &item.ContentID, &item.ScheduledAt); scanErr != nil {
			return nil, fmt.Errorf("scan scheduled item: %w", scanErr)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// MissedDeliveriesSince returns content published within the window that has
// no matching delivery receipt.
func (r *PipelineRepository) MissedDeliveriesSince(ctx context.Context, since time.Time) ([]DeliveryGap, error) {
	query := `
		SELECT p.content_id, p.channel, p.published_at
		FROM publish_history p
		LEFT JOIN delivery_receipts d ON d.content_id = p.content_id
		WHERE p.published_at >= $1
		  AND d.content_id IS NULL
		ORDER BY p.published_at DESC`

	rows, err := r.db.QueryContext(ctx, query, since)
	if err != nil {
		return nil, fmt.Errorf("missed deliveries since: %w", err)
	}
	defer rows.Close()

	gaps := make([]DeliveryGap, 0, initialIssueCapacity)
	for rows.Next() {
		var g DeliveryGap
		if scanErr := rows.Scan(&g.ContentID, &g.Channel, &g.PublishedAt); scanErr != nil {
			return nil, fmt.Errorf("scan delivery gap: %w", scanErr)
		}
		gaps = append(gaps, g)
	}
	return gaps, rows.Err()
}
