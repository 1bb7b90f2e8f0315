// Package domain contains the core domain models for the monitor service.
package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrNotFound is returned when an entity is not found in the database.
var ErrNotFound = errors.New("entity not found")

// ErrInvalidIssue is returned when creating an issue with invalid fields.
var ErrInvalidIssue = errors.New("invalid issue")

// IssueType identifies one class of pipeline defect and determines which
// fixer applies.
type IssueType string

const (
	IssueTypeMissingOutput        IssueType = "missing_output"
	IssueTypePlaceholderOutput    IssueType = "placeholder_output"
	IssueTypeJobFailure           IssueType = "job_failure"
	IssueTypeMissingScheduledItem IssueType = "missing_scheduled_item"
	IssueTypeUndersizedOutput     IssueType = "undersized_output"
	IssueTypeMissedDelivery       IssueType = "missed_delivery"
)

// IssueStatus represents the lifecycle state of an issue.
type IssueStatus string

const (
	IssueStatusOpen        IssueStatus = "open"
	IssueStatusRetrying    IssueStatus = "retrying"
	IssueStatusResolved    IssueStatus = "resolved"
	IssueStatusNeedsManual IssueStatus = "needs_manual"
)

// Issue is a durable record of one detected pipeline defect with retry
// bookkeeping. Rows are owned by the issue ledger; nothing caches issue
// state across runs.
type Issue struct {
	ID          string      `db:"id"            json:"id"`
	Type        IssueType   `db:"issue_type"    json:"issue_type"`
	SubjectRef  *string     `db:"subject_ref"   json:"subject_ref,omitempty"`
	ScopeRef    *string     `db:"scope_ref"     json:"scope_ref,omitempty"`
	Description string      `db:"description"   json:"description"`
	Status      IssueStatus `db:"status"        json:"status"`
	RetryCount  int         `db:"retry_count"   json:"retry_count"`
	MaxRetries  int         `db:"max_retries"   json:"max_retries"`
	NextRetryAt *time.Time  `db:"next_retry_at" json:"next_retry_at,omitempty"`
	AutoFixable bool        `db:"auto_fixable"  json:"auto_fixable"`
	FixResult   *string     `db:"fix_result"    json:"fix_result,omitempty"`
	CreatedAt   time.Time   `db:"created_at"    json:"created_at"`
	ResolvedAt  *time.Time  `db:"resolved_at"   json:"resolved_at,omitempty"`
}

// CanRetry returns true if another automatic fix attempt is permitted.
func (i *Issue) CanRetry() bool {
	return i.RetryCount < i.MaxRetries
}

// IsExhausted returns true if all retries have been used up.
func (i *Issue) IsExhausted() bool {
	return i.RetryCount >= i.MaxRetries
}

// IsTerminal returns true for states that never transition automatically.
func (i *Issue) IsTerminal() bool {
	return i.Status == IssueStatusResolved || i.Status == IssueStatusNeedsManual
}

// DedupKey returns the deduplication key for this issue: the subject
// reference when present, otherwise the normalized description.
func (i *Issue) DedupKey() string {
	if i.SubjectRef != nil && *i.SubjectRef != "" {
		return string(i.Type) + ":" + *i.SubjectRef
	}
	return string(i.Type) + ":" + NormalizeDescription(i.Description)
}

// NormalizeDescription collapses whitespace and lowercases a description so
// that cosmetic differences do not defeat deduplication.
func NormalizeDescription(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// Candidate is a possible issue proposed by a fault detector. Detectors are
// read-only; candidates only become issues through intake.
type Candidate struct {
	Type        IssueType
	SubjectRef  *string
	ScopeRef    *string
	Description string
}

// DedupKey returns the deduplication key for this candidate, matching
// Issue.DedupKey for the issue it would create.
func (c *Candidate) DedupKey() string {
	if c.SubjectRef != nil && *c.SubjectRef != "" {
		return string(c.Type) + ":" + *c.SubjectRef
	}
	return string(c.Type) + ":" + NormalizeDescription(c.Description)
}

// ToIssue builds a new open issue from the candidate with per-type defaults.
func (c *Candidate) ToIssue(id string, now time.Time) (*Issue, error) {
	if c.Type == "" {
		return nil, fmt.Errorf("%w: issue_type is required", ErrInvalidIssue)
	}
	if c.Description == "" && c.SubjectRef == nil {
		return nil, fmt.Errorf("%w: description or subject_ref is required", ErrInvalidIssue)
	}

	nextRetry := now
	return &Issue{
		ID:          id,
		Type:        c.Type,
		SubjectRef:  c.SubjectRef,
		ScopeRef:    c.ScopeRef,
		Description: c.Description,
		Status:      IssueStatusOpen,
		RetryCount:  0,
		MaxRetries:  DefaultMaxRetries(c.Type),
		NextRetryAt: &nextRetry,
		AutoFixable: DefaultAutoFixable(c.Type),
		CreatedAt:   now,
	}, nil
}

const (
	defaultMaxRetries        = 3
	batchMaxRetries          = 5
	jobFailureMaxRetries     = 2
	missedDeliveryMaxRetries = 4
)

// DefaultMaxRetries returns the retry budget fixed at creation for an
// issue type.
func DefaultMaxRetries(t IssueType) int {
	switch t {
	case IssueTypeMissingOutput:
		return batchMaxRetries
	case IssueTypeJobFailure:
		return jobFailureMaxRetries
	case IssueTypeMissedDelivery:
		return missedDeliveryMaxRetries
	default:
		return defaultMaxRetries
	}
}

// DefaultAutoFixable reports whether issues of this type enter automatic
// remediation. Non-auto-fixable issues are surfaced for manual handling only.
func DefaultAutoFixable(t IssueType) bool {
	// Missing scheduled items need a human to decide whether the schedule
	// or the pipeline is wrong.
	return t != IssueTypeMissingScheduledItem
}

// BatchPayload is the structured description carried by missing_output
// issues. It is serialized as JSON into the description column; all other
// issue types carry plain text.
type BatchPayload struct {
	ScopeRef    string    `json:"scope_ref"`
	WindowStart time.Time `json:"window_start"`
	WindowEnd   time.Time `json:"window_end"`
	Reason      string    `json:"reason,omitempty"`
}

// Encode serializes the payload for storage in an issue description.
func (p *BatchPayload) Encode() (string, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("encode batch payload: %w", err)
	}
	return string(data), nil
}

// ParseBatchPayload decodes a missing_output issue description.
func ParseBatchPayload(description string) (*BatchPayload, error) {
	var p BatchPayload
	if err := json.Unmarshal([]byte(description), &p); err != nil {
		return nil, fmt.Errorf("parse batch payload: %w", err)
	}
	if p.ScopeRef == "" {
		return nil, fmt.Errorf("%w: batch payload missing scope_ref", ErrInvalidIssue)
	}
	return &p, nil
}
