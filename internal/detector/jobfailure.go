package detector

import (
	"context"
	"fmt"
	"time"

	"github.com/jonesrussell/north-cloud/monitor/internal/domain"
)

// JobFailureDetector flags pipeline jobs that completed unsuccessfully in
// the window.
type JobFailureDetector struct {
	jobs   JobReader
	window time.Duration
}

// NewJobFailureDetector creates the detector.
func NewJobFailureDetector(jobs JobReader, window time.Duration) *JobFailureDetector {
	return &JobFailureDetector{jobs: jobs, window: window}
}

// Name identifies the detector in logs and run summaries.
func (d *JobFailureDetector) Name() string { return "job_failure" }

// Scan returns one candidate per failed job in the window.
func (d *JobFailureDetector) Scan(ctx context.Context, now time.Time) ([]domain.Candidate, error) {
	jobs, err := d.jobs.FailedJobsSince(ctx, now.Add(-d.window))
	if err != nil {
		return nil, fmt.Errorf("job failure detector: %w", err)
	}

	var candidates []domain.Candidate
	for i := range jobs {
		job := &jobs[i]
		if job.ID == "" {
			continue
		}

		detail := "no error recorded"
		if job.ErrorMessage != nil && *job.ErrorMessage != "" {
			detail = *job.ErrorMessage
		}

		subject := job.ID
		candidates = append(candidates, domain.Candidate{
			Type:        domain.IssueTypeJobFailure,
			SubjectRef:  &subject,
			ScopeRef:    job.ScopeRef,
			Description: fmt.Sprintf("job %s failed: %s", job.JobName, detail),
		})
	}
	return candidates, nil
}
