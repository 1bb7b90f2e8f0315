package monitor

import (
	"context"
	"time"

	"github.com/jonesrussell/north-cloud/monitor/internal/config"
	"github.com/jonesrussell/north-cloud/monitor/internal/content"
	"github.com/jonesrussell/north-cloud/monitor/internal/domain"
	"github.com/jonesrussell/north-cloud/monitor/internal/generation"
	"github.com/jonesrussell/north-cloud/monitor/internal/logger"
)

// BatchGenerator produces content for a set of scope references under an
// explicit time budget, reporting partial progress on early stop.
type BatchGenerator interface {
	GenerateBatch(ctx context.Context, scopeRefs []string, budget time.Duration) (*generation.BatchResult, error)
}

// ReconciliationReader queries the content store for items produced since a
// timestamp, restricted to a scope set.
type ReconciliationReader interface {
	ItemsSince(ctx context.Context, since time.Time, scopeRefs []string) ([]content.Item, error)
}

// BatchFixer remediates missing_output issues with a single batched
// generation call, then judges each scope by observation: a scope with
// fresh content in the store succeeded, a scope without it failed. The
// batch call's own per-item return values are not trusted.
type BatchFixer struct {
	issues IssueStore
	gen    BatchGenerator
	reader ReconciliationReader
	cfg    config.MonitorConfig
	logger logger.Logger
}

// NewBatchFixer creates the batch fixer.
func NewBatchFixer(issues IssueStore, gen BatchGenerator, reader ReconciliationReader, cfg config.MonitorConfig, log logger.Logger) *BatchFixer {
	return &BatchFixer{
		issues: issues,
		gen:    gen,
		reader: reader,
		cfg:    cfg,
		logger: log,
	}
}

// Fix processes a group of missing_output issues. Issues beyond the
// per-type cap are counted as skipped. Issues left when the deadline hits
// are untouched.
func (b *BatchFixer) Fix(ctx context.Context, group []domain.Issue, deadline time.Time) DispatchResult {
	var result DispatchResult
	if len(group) == 0 {
		return result
	}

	typeCap := b.cfg.CapFor(string(domain.IssueTypeMissingOutput))
	if len(group) > typeCap {
		result.Skipped += len(group) - typeCap
		group = group[:typeCap]
	}

	if time.Until(deadline) <= 0 {
		b.logger.Warn("run deadline reached, skipping batch fix",
			logger.Int("remaining", len(group)),
		)
		return result
	}

	claimed, scopes := b.claim(ctx, group, &result)
	if len(claimed) == 0 {
		return result
	}

	startedAt := time.Now()
	if err := b.issues.MarkRetrying(ctx, issueIDs(claimed)); err != nil {
		b.logger.Error("failed to claim batch issues", logger.Error(err))
		return result
	}

	budget := time.Until(deadline) - b.cfg.BatchBudgetSlack
	var batchErr error
	if budget > 0 {
		_, batchErr = b.gen.GenerateBatch(ctx, scopes, budget)
	} else {
		batchErr = context.DeadlineExceeded
	}
	if batchErr != nil {
		b.logger.Error("batch generation call failed", logger.Error(batchErr))
	}

	present := b.reconcile(ctx, startedAt, scopes)
	for i := range claimed {
		b.settle(ctx, &claimed[i], scopes[i], present[scopes[i]], batchErr, &result)
	}

	b.logger.Info("batch fix completed",
		logger.Int("claimed", len(claimed)),
		logger.Int("fixed", result.Fixed),
		logger.Int("failed", result.Failed),
	)
	return result
}

// claim validates each issue's payload and collects its scope reference.
// Issues without a usable scope cannot ever be batch-fixed and go straight
// to needs_manual.
func (b *BatchFixer) claim(ctx context.Context, group []domain.Issue, result *DispatchResult) ([]domain.Issue, []string) {
	claimed := make([]domain.Issue, 0, len(group))
	scopes := make([]string, 0, len(group))

	for i := range group {
		issue := &group[i]

		scope := batchScope(issue)
		if scope == "" {
			result.Failed++
			result.Attempts = append(result.Attempts, domain.AttemptDetail{
				IssueID:   issue.ID,
				IssueType: issue.Type,
				Success:   false,
				Message:   "issue has no scope reference",
			})
			if err := b.issues.MarkNeedsManual(ctx, issue.ID, "issue has no scope reference"); err != nil {
				b.logger.Error("failed to mark issue needs_manual",
					logger.String("issue_id", issue.ID),
					logger.Error(err),
				)
			}
			continue
		}

		claimed = append(claimed, *issue)
		scopes = append(scopes, scope)
	}
	return claimed, scopes
}

// reconcile returns the set of scopes with content created since the batch
// started. A failed reconciliation query returns an empty set, so every
// claimed issue follows the failure path and is retried next run.
func (b *BatchFixer) reconcile(ctx context.Context, since time.Time, scopes []string) map[string]bool {
	items, err := b.reader.ItemsSince(ctx, since, scopes)
	if err != nil {
		b.logger.Error("batch reconciliation query failed", logger.Error(err))
		return map[string]bool{}
	}
	return content.ScopesPresent(items)
}

// settle applies the per-issue outcome after reconciliation, following the
// same resolved/retry/needs_manual transitions as single-issue dispatch.
func (b *BatchFixer) settle(ctx context.Context, issue *domain.Issue, scope string, produced bool, batchErr error, result *DispatchResult) {
	var (
		message string
		err     error
	)

	switch {
	case produced:
		message = "content generated for scope " + scope
		result.Fixed++
		err = b.issues.MarkResolved(ctx, issue.ID, message)
	default:
		if batchErr != nil {
			message = "batch generation failed: " + batchErr.Error()
		} else {
			message = "no content produced for scope " + scope
		}
		result.Failed++
		if issue.RetryCount+1 < issue.MaxRetries {
			next := time.Now().Add(b.cfg.RetryBackoff)
			err = b.issues.MarkRetryScheduled(ctx, issue.ID, message, next)
		} else {
			err = b.issues.MarkNeedsManual(ctx, issue.ID, message)
		}
	}

	result.Attempts = append(result.Attempts, domain.AttemptDetail{
		IssueID:   issue.ID,
		IssueType: issue.Type,
		Success:   produced,
		Message:   message,
	})

	if err != nil {
		b.logger.Error("failed to record batch outcome",
			logger.String("issue_id", issue.ID),
			logger.Error(err),
		)
	}
}

// batchScope extracts the scope reference for a missing_output issue,
// preferring the structured payload in the description.
func batchScope(issue *domain.Issue) string {
	if payload, err := domain.ParseBatchPayload(issue.Description); err == nil && payload.ScopeRef != "" {
		return payload.ScopeRef
	}
	if issue.ScopeRef != nil {
		return *issue.ScopeRef
	}
	return ""
}

func issueIDs(issues []domain.Issue) []string {
	ids := make([]string, len(issues))
	for i := range issues {
		ids[i] = issues[i].ID
	}
	return ids
}
