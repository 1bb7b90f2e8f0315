package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jonesrussell/north-cloud/monitor/internal/domain"
	"github.com/jonesrussell/north-cloud/monitor/internal/logger"
)

// IssueStore is the ledger surface the monitor mutates. All writes are
// single-row updates keyed by issue id.
type IssueStore interface {
	Create(ctx context.Context, issue *domain.Issue) (bool, error)
	GetRetryable(ctx context.Context, now time.Time) ([]domain.Issue, error)
	MarkRetrying(ctx context.Context, ids []string) error
	MarkResolved(ctx context.Context, id, result string) error
	MarkRetryScheduled(ctx context.Context, id, result string, nextRetryAt time.Time) error
	MarkNeedsManual(ctx context.Context, id, result string) error
}

// Intake turns detector candidates into ledger rows with insert-or-skip
// deduplication. Rediscovery of an existing issue never resets its
// bookkeeping.
type Intake struct {
	issues IssueStore
	logger logger.Logger
}

// NewIntake creates the intake stage.
func NewIntake(issues IssueStore, log logger.Logger) *Intake {
	return &Intake{issues: issues, logger: log}
}

// CreateIssues inserts one issue per candidate whose dedup key is not held
// by a live row. It returns how many rows were created; a store error on one
// candidate does not stop the rest.
func (in *Intake) CreateIssues(ctx context.Context, candidates []domain.Candidate, now time.Time) (int, error) {
	created := 0
	var lastErr error

	for i := range candidates {
		candidate := &candidates[i]

		issue, err := candidate.ToIssue(uuid.NewString(), now)
		if err != nil {
			in.logger.Warn("skipping invalid candidate",
				logger.String("issue_type", string(candidate.Type)),
				logger.Error(err),
			)
			continue
		}

		inserted, err := in.issues.Create(ctx, issue)
		if err != nil {
			lastErr = fmt.Errorf("create issue %s: %w", issue.DedupKey(), err)
			in.logger.Error("failed to create issue",
				logger.String("issue_type", string(issue.Type)),
				logger.Error(err),
			)
			continue
		}
		if inserted {
			created++
			in.logger.Info("issue created",
				logger.String("issue_id", issue.ID),
				logger.String("issue_type", string(issue.Type)),
				logger.String("description", issue.Description),
			)
		}
	}

	return created, lastErr
}
