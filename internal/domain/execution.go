package domain

import "time"

// MaxRecordedErrors bounds the error list stored on an execution record.
const MaxRecordedErrors = 10

// ExecutionRecord summarizes one monitor run. Exactly one record is written
// per invocation, success or not.
type ExecutionRecord struct {
	ID          string     `db:"id"           json:"id"`
	JobName     string     `db:"job_name"     json:"job_name"`
	StartedAt   time.Time  `db:"started_at"   json:"started_at"`
	CompletedAt *time.Time `db:"completed_at" json:"completed_at,omitempty"`
	Success     bool       `db:"success"      json:"success"`
	Errors      []string   `db:"-"            json:"errors,omitempty"`
	Summary     RunSummary `db:"-"            json:"response_data"`
}

// RunSummary holds the counts and per-attempt detail reported by one run.
type RunSummary struct {
	IssuesDetected int             `json:"issues_detected"`
	IssuesCreated  int             `json:"issues_created"`
	IssuesFixed    int             `json:"issues_fixed"`
	IssuesFailed   int             `json:"issues_failed"`
	IssuesSkipped  int             `json:"issues_skipped"`
	Attempts       []AttemptDetail `json:"attempts,omitempty"`
}

// AttemptDetail records the outcome of one fix attempt within a run.
type AttemptDetail struct {
	IssueID   string    `json:"issue_id"`
	IssueType IssueType `json:"issue_type"`
	Success   bool      `json:"success"`
	Message   string    `json:"message,omitempty"`
}

// BoundErrors truncates an error list to MaxRecordedErrors entries.
func BoundErrors(errs []string) []string {
	if len(errs) <= MaxRecordedErrors {
		return errs
	}
	return errs[:MaxRecordedErrors]
}
